package main

import (
	"fmt"

	"github.com/m4xw311/superagent/prompt"
	"github.com/m4xw311/superagent/tools"
	"github.com/spf13/cobra"
)

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the built-in tools and their call syntax",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, t := range tools.Builtins(tools.Deps{}) {
				fmt.Fprintf(out, "%s (%s)\n  %s\n", t.Name(), t.Kind(), t.Description())
				for _, p := range t.Schema() {
					req := ""
					if p.Required {
						req = ", required"
					}
					fmt.Fprintf(out, "    %s (%s%s): %s\n", p.Name, p.Type, req, p.Description)
				}
				fmt.Fprintf(out, "%s\n\n", prompt.Example(t))
			}
			return nil
		},
	}
}
