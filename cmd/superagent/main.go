package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	exitCode := 0
	root := newRootCmd(&exitCode)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func newRootCmd(exitCode *int) *cobra.Command {
	root := &cobra.Command{
		Use:           "superagent",
		Short:         "Autonomous task execution with a language model and a persistent shell",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(exitCode), newToolsCmd())
	return root
}
