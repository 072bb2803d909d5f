package tools

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/m4xw311/superagent/errors"
	"github.com/mattn/go-shellwords"
)

// ExecuteCommandTool runs an allowlisted program as an isolated one-shot
// process. Nothing carries over between calls.
type ExecuteCommandTool struct {
	workDir         string
	allowedCommands []string
	approver        approver
	timeout         time.Duration
}

func (t *ExecuteCommandTool) Name() string { return "execute_command" }
func (t *ExecuteCommandTool) Kind() Kind   { return KindTerminal }
func (t *ExecuteCommandTool) Description() string {
	if len(t.allowedCommands) == 0 {
		return "Executes a single program without a shell. No commands are currently allowed."
	}

	allowedList := "Allowed command patterns (regular expressions):\n"
	for _, cmd := range t.allowedCommands {
		allowedList += fmt.Sprintf("- %s\n", cmd)
	}

	return fmt.Sprintf("Executes a single program in a fresh process, without a shell: pipes, redirects and cd have no effect. Use the shell tool for stateful work.\n%s", allowedList)
}
func (t *ExecuteCommandTool) Schema() Schema {
	return Schema{{Name: "command", Required: true, Description: "Program and arguments, quoted as in a shell."}}
}

func (t *ExecuteCommandTool) Invoke(ctx context.Context, args Args) Result {
	command := strings.TrimSpace(args.String("command"))

	if !isCommandAllowed(command, t.allowedCommands) {
		return Failf(UserDenied, "command '%s' is not in the list of allowed commands", command)
	}
	ok, err := t.approver.approve(ctx, false, command)
	if err != nil {
		return ErrorResult(errors.Wrapf(err, "failed to get approval"))
	}
	if !ok {
		return Failf(UserDenied, "the user denied the request to execute: %s", command)
	}

	parts, err := shellwords.Parse(command)
	if err != nil {
		return Failf(InvalidArguments, "could not split command: %v", err)
	}
	if len(parts) == 0 {
		return Failf(InvalidArguments, "empty command")
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = t.workDir
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Failf(ToolExecutionError, "command timed out after %s. Output:\n%s", t.timeout, output.String())
		}
		return Result{
			Error:  ToolExecutionError,
			Err:    err,
			Output: fmt.Sprintf("command execution failed: %v. Output:\n%s", err, output.String()),
		}
	}

	return OK(fmt.Sprintf("Command executed successfully. Output:\n%s", output.String()))
}

// isCommandAllowed checks if a command is in the allowlist (with regex support).
func isCommandAllowed(command string, allowed []string) bool {
	if command == "" {
		return false
	}

	for _, pattern := range allowed {
		re, err := regexp.Compile(pattern)
		if err != nil {
			slog.Warn("invalid regex in allowed_commands", "pattern", pattern, "error", err)
			// Fallback to simple string comparison if regex is invalid
			if command == pattern {
				return true
			}
			continue
		}
		if re.MatchString(command) {
			return true
		}
	}
	return false
}
