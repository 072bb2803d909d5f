package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m4xw311/superagent/errors"
	"github.com/m4xw311/superagent/session"
)

// ShellTool runs commands in the run's persistent shell, so cd, exports and
// background jobs carry over between calls.
type ShellTool struct {
	runner   ShellRunner
	timeout  time.Duration
	approver approver
}

func (t *ShellTool) Name() string { return "shell" }
func (t *ShellTool) Kind() Kind   { return KindShell }
func (t *ShellTool) Description() string {
	return "Executes a command in a persistent bash session. The working directory, environment variables and background jobs persist between calls. Commands cannot read from stdin. Set requires_approval to true for impactful operations such as installing packages, deleting files or network access."
}
func (t *ShellTool) Schema() Schema {
	return Schema{
		{Name: "command", Required: true, Description: "The command line to run."},
		{Name: "requires_approval", Type: TypeBool, Description: "Whether the user must approve the command first."},
		{Name: "timeout", Type: TypeInt, Description: "Seconds to wait before the command is killed."},
	}
}

func (t *ShellTool) Invoke(ctx context.Context, args Args) Result {
	if t.runner == nil {
		return Failf(ToolExecutionError, "no shell session is configured")
	}
	command := args.String("command")

	ok, err := t.approver.approve(ctx, args.Bool("requires_approval", false), command)
	if err != nil {
		return ErrorResult(errors.Wrapf(err, "failed to get approval"))
	}
	if !ok {
		return Failf(UserDenied, "the user denied the request to execute: %s", command)
	}

	timeout := t.timeout
	if secs := args.Int("timeout", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	out, err := t.runner.Run(ctx, command, timeout)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrSessionFailed):
		return Result{Error: SessionError, Output: err.Error(), Err: err, Fatal: true}
	case errors.Is(err, session.ErrSessionTimeout):
		return Result{Error: SessionTimeout, Err: err, Output: fmt.Sprintf("command did not finish within %s and was killed; the shell was restarted, check the working directory before relying on it", timeout)}
	case errors.Is(err, session.ErrSessionDead):
		return Result{Error: SessionDead, Err: err, Output: "the shell exited unexpectedly and was restarted, check the working directory before relying on it"}
	default:
		return ErrorResult(err)
	}

	return OK(formatOutput(out))
}

func formatOutput(out session.Output) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Exit status: %d\n", out.ExitStatus)
	if out.Stdout != "" {
		b.WriteString("Stdout:\n")
		b.WriteString(out.Stdout)
		if !strings.HasSuffix(out.Stdout, "\n") {
			b.WriteByte('\n')
		}
	}
	if out.Stderr != "" {
		b.WriteString("Stderr:\n")
		b.WriteString(out.Stderr)
		if !strings.HasSuffix(out.Stderr, "\n") {
			b.WriteByte('\n')
		}
	}
	if out.Stdout == "" && out.Stderr == "" {
		b.WriteString("(no output)\n")
	}
	return b.String()
}
