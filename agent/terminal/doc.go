// Package terminal is the command-line face of an agent run.
//
// It prints what the agent thinks and does as the run progresses and answers
// the agent's questions from the operator: ask_user questions, approvals of
// shell commands in prompt mode, and completion confirmation. Prompts use
// huh forms; output is styled with lipgloss.
//
// # Usage
//
//	term := terminal.New(os.Stdout, terminal.ToolVerbosityInfo, cancel)
//	deps.Input = term
//	a, err := agent.New(agent.Config{..., Callbacks: term.Callbacks()})
//	out := a.Run(ctx, task)
//	term.PrintOutcome(out)
//
// # Verbosity Levels
//
//   - None: only the agent's reasoning and warnings are printed
//   - Info: tool names are printed when called, failures when they occur
//   - All: tool arguments and (clipped) output are printed as well
package terminal
