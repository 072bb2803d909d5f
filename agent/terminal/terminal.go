package terminal

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/m4xw311/superagent/agent"
	"github.com/m4xw311/superagent/errors"
	"github.com/m4xw311/superagent/parser"
	"github.com/m4xw311/superagent/tools"
)

// ToolVerbosity controls how much of each tool call is printed.
type ToolVerbosity int

const (
	ToolVerbosityNone ToolVerbosity = iota
	ToolVerbosityInfo
	ToolVerbosityAll
)

func ParseVerbosity(s string) (ToolVerbosity, error) {
	switch s {
	case "none":
		return ToolVerbosityNone, nil
	case "", "info":
		return ToolVerbosityInfo, nil
	case "all":
		return ToolVerbosityAll, nil
	}
	return 0, errors.New("invalid tool verbosity '%s'. Must be 'none', 'info', or 'all'", s)
}

var (
	agentStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	toolStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	outputStyle  = lipgloss.NewStyle().Faint(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	doneStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
)

// maxPrintedOutput bounds tool output echoed to the terminal; the model
// still sees the full observation.
const maxPrintedOutput = 2000

// prompter is the interactive half of the terminal.
type prompter interface {
	input(ctx context.Context, title string) (string, error)
	confirm(ctx context.Context, title string) (bool, error)
}

type huhPrompter struct{}

func (huhPrompter) input(ctx context.Context, title string) (string, error) {
	var value string
	inp := huh.NewInput().
		Title(title).
		Value(&value)
	if err := huh.NewForm(huh.NewGroup(inp)).WithShowHelp(true).RunWithContext(ctx); err != nil {
		return "", err
	}
	return value, nil
}

func (huhPrompter) confirm(ctx context.Context, title string) (bool, error) {
	value := false
	c := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&value)
	if err := huh.NewForm(huh.NewGroup(c)).WithShowHelp(true).RunWithContext(ctx); err != nil {
		return false, err
	}
	return value, nil
}

// Terminal prints agent events and answers the agent's questions from the
// operator. It implements tools.UserInput.
type Terminal struct {
	out       io.Writer
	verbosity ToolVerbosity
	prompter  prompter
	onAbort   func()
}

// New creates a Terminal. onAbort is called when the operator aborts a
// prompt with Ctrl+C, which the prompt library captures before the process
// signal handler sees it.
func New(out io.Writer, verbosity ToolVerbosity, onAbort func()) *Terminal {
	return &Terminal{
		out:       out,
		verbosity: verbosity,
		prompter:  huhPrompter{},
		onAbort:   onAbort,
	}
}

var _ tools.UserInput = (*Terminal)(nil)

func (t *Terminal) Ask(ctx context.Context, question string) (string, error) {
	fmt.Fprintln(t.out, agentStyle.Render("superagent asks:")+" "+question)
	answer, err := t.prompter.input(ctx, question)
	if err != nil {
		return "", t.aborted(err)
	}
	return strings.TrimSpace(answer), nil
}

func (t *Terminal) Confirm(ctx context.Context, prompt string) (bool, error) {
	ok, err := t.prompter.confirm(ctx, prompt)
	if err != nil {
		return false, t.aborted(err)
	}
	return ok, nil
}

func (t *Terminal) aborted(err error) error {
	if errors.Is(err, huh.ErrUserAborted) && t.onAbort != nil {
		t.onAbort()
	}
	return err
}

// Callbacks returns the event printers for an agent run.
func (t *Terminal) Callbacks() agent.Callbacks {
	return agent.Callbacks{
		OnThought: func(text string) {
			if text = strings.TrimSpace(text); text != "" {
				fmt.Fprintf(t.out, "%s %s\n", agentStyle.Render("superagent:"), text)
			}
		},
		OnToolCall: func(action parser.Action) {
			switch t.verbosity {
			case ToolVerbosityAll:
				fmt.Fprintln(t.out, toolStyle.Render("→ "+action.String()))
			case ToolVerbosityInfo:
				fmt.Fprintln(t.out, toolStyle.Render("→ "+action.ToolName))
			}
		},
		OnToolResult: func(action parser.Action, result tools.Result) {
			if !result.OK && t.verbosity != ToolVerbosityNone {
				fmt.Fprintln(t.out, errorStyle.Render(fmt.Sprintf("✗ %s: %s", action.ToolName, result.Error)))
			}
			if t.verbosity == ToolVerbosityAll {
				fmt.Fprintln(t.out, outputStyle.Render(clip(result.Output)))
			}
		},
		OnWarning: func(warning string) {
			fmt.Fprintln(t.out, warningStyle.Render("Warning: "+warning))
		},
	}
}

// PrintOutcome reports how the run ended.
func (t *Terminal) PrintOutcome(out agent.Outcome) {
	switch out.State {
	case agent.StateCompleted:
		fmt.Fprintln(t.out, doneStyle.Render("Task completed"))
		if out.Result != "" {
			fmt.Fprintln(t.out, out.Result)
		}
	default:
		msg := fmt.Sprintf("Task %s after %d turn(s)", out.State, out.Turns)
		if out.Err != nil {
			msg += ": " + out.Err.Error()
		}
		fmt.Fprintln(t.out, errorStyle.Render(msg))
	}
}

func clip(s string) string {
	if len(s) <= maxPrintedOutput {
		return s
	}
	return s[:maxPrintedOutput] + fmt.Sprintf("\n… (%d more bytes)", len(s)-maxPrintedOutput)
}
