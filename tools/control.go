package tools

import (
	"context"
	"strings"

	"github.com/m4xw311/superagent/errors"
)

// BrowserTool searches the web or opens a page and returns its text.
type BrowserTool struct {
	browser Browser
}

func (t *BrowserTool) Name() string { return "browser_actions" }
func (t *BrowserTool) Kind() Kind   { return KindBrowser }
func (t *BrowserTool) Description() string {
	return "Searches the web for a query, or opens a URL, and returns the page as plain text. Provide exactly one of query or url."
}
func (t *BrowserTool) Schema() Schema {
	return Schema{
		{Name: "query", Description: "Search terms."},
		{Name: "url", Description: "Address of the page to open."},
	}
}

func (t *BrowserTool) Invoke(ctx context.Context, args Args) Result {
	query := strings.TrimSpace(args.String("query"))
	url := strings.TrimSpace(args.String("url"))
	if (query == "") == (url == "") {
		return Failf(InvalidArguments, "provide exactly one of <query> or <url>")
	}
	if t.browser == nil {
		return Failf(ToolExecutionError, "no browser is configured")
	}

	var (
		text string
		err  error
	)
	if query != "" {
		text, err = t.browser.Search(ctx, query)
	} else {
		text, err = t.browser.Open(ctx, url)
	}
	if err != nil {
		return ErrorResult(err)
	}
	return OK(text)
}

// AskUserTool asks the operator a question and returns the answer.
type AskUserTool struct {
	input UserInput
}

func (t *AskUserTool) Name() string { return "ask_user" }
func (t *AskUserTool) Kind() Kind   { return KindAskUser }
func (t *AskUserTool) Description() string {
	return "Asks the user a clarifying question when the task is ambiguous or needs information you cannot find yourself. Use sparingly."
}
func (t *AskUserTool) Schema() Schema {
	return Schema{{Name: "question", Required: true, Description: "A clear, specific question."}}
}

func (t *AskUserTool) Invoke(ctx context.Context, args Args) Result {
	if t.input == nil {
		return Failf(ToolExecutionError, "no user is available to answer questions; proceed with your best judgement")
	}
	answer, err := t.input.Ask(ctx, args.String("question"))
	if err != nil {
		return ErrorResult(errors.Wrapf(err, "failed to read the user's answer"))
	}
	return OK("User answered: " + answer)
}

// AttemptCompletionTool presents the final result. When confirmation is on
// the user may reject it with feedback, and the run continues.
type AttemptCompletionTool struct {
	input   UserInput
	confirm bool
}

func (t *AttemptCompletionTool) Name() string { return "attempt_completion" }
func (t *AttemptCompletionTool) Kind() Kind   { return KindCompletion }
func (t *AttemptCompletionTool) Description() string {
	return "Presents the final result of the task once every previous tool use has succeeded. The result must be final and must not end with a question."
}
func (t *AttemptCompletionTool) Schema() Schema {
	return Schema{{Name: "result", Required: true, Description: "Description of the completed work."}}
}

func (t *AttemptCompletionTool) Invoke(ctx context.Context, args Args) Result {
	result := args.String("result")
	if !t.confirm || t.input == nil {
		return OK(result)
	}
	satisfied, err := t.input.Confirm(ctx, "The agent reports the task is complete:\n"+result+"\n\nAre you satisfied?")
	if err != nil {
		return ErrorResult(errors.Wrapf(err, "failed to confirm completion"))
	}
	if satisfied {
		return OK(result)
	}
	feedback, err := t.input.Ask(ctx, "What should be improved?")
	if err != nil {
		return ErrorResult(errors.Wrapf(err, "failed to read feedback"))
	}
	return Failf(UserDenied, "the user is not satisfied with the result. Feedback: %s", feedback)
}
