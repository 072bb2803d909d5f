package tools

import (
	"context"
	"time"

	"github.com/m4xw311/superagent/config"
	"github.com/m4xw311/superagent/parser"
	"github.com/m4xw311/superagent/session"
)

// ShellRunner is the persistent shell the shell tool delegates to.
type ShellRunner interface {
	Run(ctx context.Context, command string, timeout time.Duration) (session.Output, error)
}

// Browser fetches web content as plain text. Calls block until done.
type Browser interface {
	Search(ctx context.Context, query string) (string, error)
	Open(ctx context.Context, url string) (string, error)
}

// UserInput is how tools and the agent reach the human operator.
type UserInput interface {
	Ask(ctx context.Context, question string) (string, error)
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// Deps carries everything the built-in tools need.
type Deps struct {
	WorkDir           string
	Access            config.FilesystemAccess
	AllowedCommands   []string
	Mode              string // "auto" or "prompt"
	Shell             ShellRunner
	ShellTimeout      time.Duration
	Browser           Browser
	Input             UserInput
	ConfirmCompletion bool
}

// Builtins returns every built-in tool, in catalogue order.
func Builtins(d Deps) []Tool {
	fs := fileTool{workDir: d.WorkDir, access: d.Access}
	approver := approver{mode: d.Mode, input: d.Input}
	return []Tool{
		&ReadFileTool{fileTool: fs},
		&WriteFileTool{fileTool: fs},
		&ReplaceInFileTool{fileTool: fs},
		&ListDirectoryTool{fileTool: fs},
		&GlobDirectoryTool{fileTool: fs},
		&ShellTool{runner: d.Shell, timeout: d.ShellTimeout, approver: approver},
		&ExecuteCommandTool{workDir: d.WorkDir, allowedCommands: d.AllowedCommands, approver: approver, timeout: d.ShellTimeout},
		&BrowserTool{browser: d.Browser},
		&AskUserTool{input: d.Input},
		&AttemptCompletionTool{input: d.Input, confirm: d.ConfirmCompletion},
	}
}

// BuiltinShapes is the grammar for every built-in tool, whether or not the
// active toolset enables it.
func BuiltinShapes() []parser.Shape {
	var shapes []parser.Shape
	for _, t := range Builtins(Deps{}) {
		shapes = append(shapes, t.Schema().Shape(t.Name()))
	}
	return shapes
}

// approver asks the user before commands run. In "prompt" mode every command
// is confirmed; in "auto" mode only those the model flags.
type approver struct {
	mode  string
	input UserInput
}

func (a approver) approve(ctx context.Context, flagged bool, command string) (bool, error) {
	if a.mode != "prompt" && !flagged {
		return true, nil
	}
	if a.input == nil {
		return false, nil
	}
	return a.input.Confirm(ctx, "Allow the agent to run:\n"+command)
}
