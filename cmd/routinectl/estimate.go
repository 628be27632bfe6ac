package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newEstimateCmd() *cobra.Command {
	var templatesPath string
	var verbose bool

	cmd := &cobra.Command{
		Use:     "estimate",
		Short:   "Estimated duration of each template",
		Example: `  routinectl estimate -t routines.yaml -v`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			templates, err := loadTemplates(templatesPath)
			if err != nil {
				return err
			}

			cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
			gray := color.New(color.FgHiBlack).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, t := range templates {
				fmt.Fprintf(w, "%s\t%s\t\n", cyan(t.Name), formatDuration(t.EstimatedDuration()))
				if !verbose {
					continue
				}
				for _, h := range t.ActiveHabits() {
					name := h.DisplayName()
					if h.IsOptional {
						name += " " + gray("(optional)")
					}
					kind := string(h.Type.Kind)
					if h.IsConditional() {
						kind = yellow(kind)
					}
					fmt.Fprintf(w, "  %s\t%s\t%s\n", name, formatDuration(h.EstimatedDuration()), kind)
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&templatesPath, "templates", "t", "", "YAML file with a templates list")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list every active habit")
	_ = cmd.MarkFlagRequired("templates")
	return cmd
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
