package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
)

func newSelectCmd() *cobra.Command {
	var flags contextFlags
	var templatesPath string

	cmd := &cobra.Command{
		Use:   "select",
		Short: "Show which template would start for a context",
		Long: `Scores every template in a YAML file against the resolved context and
prints the one a smart start would pick. Exits non-zero when nothing matches
and no template is marked as default.`,
		Example: `  routinectl select -t routines.yaml --at 2026-03-09T07:30:00Z`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			templates, err := loadTemplates(templatesPath)
			if err != nil {
				return err
			}
			ctx, local, err := flags.evaluate(cmd)
			if err != nil {
				return err
			}
			printContext(cmd, ctx, local)

			green := color.New(color.FgGreen).SprintFunc()
			gray := color.New(color.FgHiBlack).SprintFunc()
			out := cmd.OutOrStdout()

			fmt.Fprintln(out)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TEMPLATE\tSCORE\tELIGIBLE")
			for _, s := range domain.ExplainSelection(templates, ctx) {
				eligible := gray("no")
				if s.Eligible {
					eligible = green("yes")
				}
				fmt.Fprintf(w, "%s\t%d\t%s\n", s.Name, s.Score, eligible)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			best := domain.SelectBestTemplate(templates, ctx)
			if best == nil {
				return domain.ErrNoMatchingTemplate
			}

			how := "matched"
			if _, ok := domain.ScoreTemplate(best, ctx); !ok {
				how = "default"
			}
			fmt.Fprintf(out, "\n%s %s (%s, ~%s)\n",
				color.New(color.FgGreen, color.Bold).Sprint("Selected:"),
				best.Name, how, formatDuration(best.EstimatedDuration()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&templatesPath, "templates", "t", "", "YAML file with a templates list")
	_ = cmd.MarkFlagRequired("templates")
	flags.register(cmd)
	return cmd
}
