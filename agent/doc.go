// Package agent runs one task to completion.
//
// The Agent is a small state machine. Each turn it renders the context log
// into a prompt, asks the model for a reply, parses the reply into at most one
// tool call, dispatches the call through the tool registry and appends the
// result to the log. A run ends in exactly one terminal state:
//
//   - Completed: the completion tool succeeded (exit code 0)
//   - Failed: the model kept producing unparsable replies, the model could
//     not be reached, or the command session broke twice in a row (exit 1)
//   - Aborted: the iteration ceiling was hit or the context was cancelled
//     (exit 2)
//
// While an ask_user call waits for the operator the Agent reports the
// AwaitingUser state. The command session handed to New is closed on every
// exit path of Run.
//
// # Usage
//
//	a, err := agent.New(agent.Config{
//	    Client:   client,
//	    Parser:   parser.New(tools.BuiltinShapes()...),
//	    Registry: registry,
//	    Prompt:   builder,
//	    Session:  sess,
//	    Options:  agent.Options{MaxIterations: 50, MaxParseRetries: 3, TokenBudget: 24000},
//	    Callbacks: term.Callbacks(),
//	})
//	if err != nil {
//	    // handle error
//	}
//	out := a.Run(ctx, "add a README")
//	os.Exit(out.ExitCode())
//
// # Callbacks
//
// Callbacks let an interaction mode observe thoughts, tool calls, tool
// results, warnings and state changes without the loop knowing how they are
// displayed. See agent/terminal for the command-line implementation.
package agent
