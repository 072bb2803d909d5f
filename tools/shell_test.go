package tools

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/m4xw311/superagent/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	out      session.Output
	err      error
	commands []string
	timeouts []time.Duration
}

func (f *fakeRunner) Run(ctx context.Context, command string, timeout time.Duration) (session.Output, error) {
	f.commands = append(f.commands, command)
	f.timeouts = append(f.timeouts, timeout)
	return f.out, f.err
}

// fakeInput answers every confirmation with confirm and every question with
// answer.
type fakeInput struct {
	confirm   bool
	answer    string
	questions []string
	prompts   []string
}

func (f *fakeInput) Ask(ctx context.Context, question string) (string, error) {
	f.questions = append(f.questions, question)
	return f.answer, nil
}

func (f *fakeInput) Confirm(ctx context.Context, prompt string) (bool, error) {
	f.prompts = append(f.prompts, prompt)
	return f.confirm, nil
}

func TestShellToolFormatsOutput(t *testing.T) {
	runner := &fakeRunner{out: session.Output{Stdout: "a\nb\n", Stderr: "warn", ExitStatus: 1}}
	tool := &ShellTool{runner: runner, timeout: time.Minute, approver: approver{mode: "auto"}}

	res := tool.Invoke(context.Background(), Args{"command": "ls"})
	require.True(t, res.OK)
	assert.Equal(t, "Exit status: 1\nStdout:\na\nb\nStderr:\nwarn\n", res.Output)
	assert.Equal(t, []time.Duration{time.Minute}, runner.timeouts)
}

func TestShellToolTimeoutArgument(t *testing.T) {
	runner := &fakeRunner{}
	tool := &ShellTool{runner: runner, timeout: time.Minute, approver: approver{mode: "auto"}}

	res := tool.Invoke(context.Background(), Args{"command": "make", "timeout": "5"})
	require.True(t, res.OK)
	assert.Contains(t, res.Output, "(no output)")
	assert.Equal(t, []time.Duration{5 * time.Second}, runner.timeouts)
}

func TestShellToolApproval(t *testing.T) {
	tests := []struct {
		name      string
		mode      string
		flagged   string
		confirm   bool
		wantAsked bool
		wantRun   bool
	}{
		{"auto unflagged runs silently", "auto", "false", false, false, true},
		{"auto flagged approved", "auto", "true", true, true, true},
		{"auto flagged denied", "auto", "true", false, true, false},
		{"prompt mode always asks", "prompt", "false", true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			input := &fakeInput{confirm: tt.confirm}
			tool := &ShellTool{runner: runner, approver: approver{mode: tt.mode, input: input}}

			res := tool.Invoke(context.Background(), Args{"command": "rm -rf build", "requires_approval": tt.flagged})
			assert.Equal(t, tt.wantAsked, len(input.prompts) == 1)
			assert.Equal(t, tt.wantRun, len(runner.commands) == 1)
			if !tt.wantRun {
				assert.Equal(t, UserDenied, res.Error)
			}
		})
	}
}

func TestShellToolSessionErrors(t *testing.T) {
	tests := []struct {
		err       error
		kind      ErrorKind
		wantFatal bool
	}{
		{fmt.Errorf("%w after 1s", session.ErrSessionTimeout), SessionTimeout, false},
		{session.ErrSessionDead, SessionDead, false},
		{fmt.Errorf("%w: %w", session.ErrSessionFailed, session.ErrSessionTimeout), SessionError, true},
		{fmt.Errorf("boom"), ToolExecutionError, false},
	}
	for _, tt := range tests {
		tool := &ShellTool{runner: &fakeRunner{err: tt.err}, approver: approver{mode: "auto"}}
		res := tool.Invoke(context.Background(), Args{"command": "sleep 100"})
		assert.False(t, res.OK)
		assert.Equal(t, tt.kind, res.Error, "error %v", tt.err)
		assert.Equal(t, tt.wantFatal, res.Fatal, "error %v", tt.err)
	}
}

func TestExecuteCommandAllowlist(t *testing.T) {
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not available")
	}
	tool := &ExecuteCommandTool{
		workDir:         t.TempDir(),
		allowedCommands: []string{`^echo( .*)?$`},
		approver:        approver{mode: "auto"},
		timeout:         5 * time.Second,
	}
	ctx := context.Background()

	res := tool.Invoke(ctx, Args{"command": `echo "hello world"`})
	require.True(t, res.OK, res.Output)
	assert.Contains(t, res.Output, "hello world")

	res = tool.Invoke(ctx, Args{"command": "rm -rf /"})
	assert.Equal(t, UserDenied, res.Error)

	res = tool.Invoke(ctx, Args{"command": `echo "unterminated`})
	assert.Equal(t, InvalidArguments, res.Error)
}

func TestExecuteCommandFailure(t *testing.T) {
	if _, err := exec.LookPath("ls"); err != nil {
		t.Skip("ls not available")
	}
	tool := &ExecuteCommandTool{allowedCommands: []string{"^ls"}, approver: approver{mode: "auto"}}

	res := tool.Invoke(context.Background(), Args{"command": "ls /nonexistent_directory_12345"})
	assert.False(t, res.OK)
	assert.Equal(t, ToolExecutionError, res.Error)
	assert.Contains(t, res.Output, "command execution failed")
}

func TestIsCommandAllowed(t *testing.T) {
	allowed := []string{"^go (build|test)", "[invalid", "make"}
	assert.True(t, isCommandAllowed("go test ./...", allowed))
	assert.False(t, isCommandAllowed("go run .", allowed))
	assert.True(t, isCommandAllowed("[invalid", allowed))
	assert.True(t, isCommandAllowed("make all", allowed))
	assert.False(t, isCommandAllowed("", allowed))
}
