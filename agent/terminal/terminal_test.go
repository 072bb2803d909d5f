package terminal

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/charmbracelet/huh"
	"github.com/m4xw311/superagent/agent"
	"github.com/m4xw311/superagent/errors"
	"github.com/m4xw311/superagent/parser"
	"github.com/m4xw311/superagent/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedPrompter struct {
	answer        string
	confirmAnswer bool
	err           error
	titles        []string
}

func (s *scriptedPrompter) input(ctx context.Context, title string) (string, error) {
	s.titles = append(s.titles, title)
	return s.answer, s.err
}

func (s *scriptedPrompter) confirm(ctx context.Context, title string) (bool, error) {
	s.titles = append(s.titles, title)
	return s.confirmAnswer, s.err
}

func newTestTerminal(verbosity ToolVerbosity, p *scriptedPrompter, onAbort func()) (*Terminal, *bytes.Buffer) {
	var buf bytes.Buffer
	term := New(&buf, verbosity, onAbort)
	term.prompter = p
	return term, &buf
}

func TestAskAndConfirm(t *testing.T) {
	p := &scriptedPrompter{answer: "  blue \n", confirmAnswer: true}
	term, buf := newTestTerminal(ToolVerbosityInfo, p, nil)

	answer, err := term.Ask(context.Background(), "Favourite colour?")
	require.NoError(t, err)
	assert.Equal(t, "blue", answer)
	assert.Contains(t, buf.String(), "Favourite colour?")

	ok, err := term.Confirm(context.Background(), "Allow the agent to run:\nls")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"Favourite colour?", "Allow the agent to run:\nls"}, p.titles)
}

func TestAbortedPromptCallsOnAbort(t *testing.T) {
	aborted := 0
	p := &scriptedPrompter{err: huh.ErrUserAborted}
	term, _ := newTestTerminal(ToolVerbosityInfo, p, func() { aborted++ })

	_, err := term.Ask(context.Background(), "q")
	assert.True(t, errors.Is(err, huh.ErrUserAborted))
	_, err = term.Confirm(context.Background(), "q")
	assert.Error(t, err)
	assert.Equal(t, 2, aborted)

	p.err = errors.Sentinel("io failure")
	_, _ = term.Ask(context.Background(), "q")
	assert.Equal(t, 2, aborted)
}

func TestCallbacksRespectVerbosity(t *testing.T) {
	action := parser.Action{ToolName: "shell", Arguments: map[string]string{"command": "ls"}}
	ok := tools.OK("a.txt")
	failed := tools.Failf(tools.SessionTimeout, "timed out")

	tests := []struct {
		verbosity ToolVerbosity
		want      []string
		notWant   []string
	}{
		{ToolVerbosityNone, []string{"thinking"}, []string{"→", "a.txt", "SessionTimeout"}},
		{ToolVerbosityInfo, []string{"→ shell", "SessionTimeout"}, []string{`command="ls"`, "a.txt"}},
		{ToolVerbosityAll, []string{`shell(command="ls")`, "a.txt", "SessionTimeout"}, nil},
	}
	for _, tc := range tests {
		term, buf := newTestTerminal(tc.verbosity, &scriptedPrompter{}, nil)
		cb := term.Callbacks()
		cb.OnThought("thinking")
		cb.OnToolCall(action)
		cb.OnToolResult(action, ok)
		cb.OnToolResult(action, failed)

		for _, w := range tc.want {
			assert.Contains(t, buf.String(), w, "verbosity %d", tc.verbosity)
		}
		for _, w := range tc.notWant {
			assert.NotContains(t, buf.String(), w, "verbosity %d", tc.verbosity)
		}
	}
}

func TestPrintOutcome(t *testing.T) {
	term, buf := newTestTerminal(ToolVerbosityInfo, &scriptedPrompter{}, nil)
	term.PrintOutcome(agent.Outcome{State: agent.StateCompleted, Result: "all done"})
	assert.Contains(t, buf.String(), "Task completed")
	assert.Contains(t, buf.String(), "all done")

	buf.Reset()
	term.PrintOutcome(agent.Outcome{State: agent.StateAborted, Turns: 4, Err: errors.Sentinel("iteration limit reached")})
	assert.Contains(t, buf.String(), "Task aborted after 4 turn(s): iteration limit reached")
}

func TestParseVerbosity(t *testing.T) {
	v, err := ParseVerbosity("all")
	require.NoError(t, err)
	assert.Equal(t, ToolVerbosityAll, v)
	_, err = ParseVerbosity("loud")
	assert.Error(t, err)
}

func TestClip(t *testing.T) {
	long := strings.Repeat("x", maxPrintedOutput+10)
	assert.True(t, strings.HasSuffix(clip(long), "(10 more bytes)"))
	assert.Equal(t, "short", clip("short"))
}
