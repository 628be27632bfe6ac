// Command routinectl evaluates context settings and routine templates offline:
// which context a moment resolves to, which template would be picked and how
// long each routine takes.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	_ "time/tzdata"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	var noColor bool

	root := &cobra.Command{
		Use:           "routinectl",
		Short:         "Inspect Kanso routine templates and context rules",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	root.AddCommand(newResolveCmd(), newSelectCmd(), newEstimateCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		os.Exit(1)
	}
}
