package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/comitanigiacomo/kanso-routines/internal/config"
	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
)

// contextFlags are shared by every command that resolves a context.
type contextFlags struct {
	configPath string
	at         string
	timezone   string
	lat        float64
	lon        float64
}

func (f *contextFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "TOML file with a [context] section (built-in slots when empty)")
	cmd.Flags().StringVar(&f.at, "at", "", "RFC3339 instant to evaluate (default now)")
	cmd.Flags().StringVar(&f.timezone, "tz", "UTC", "IANA timezone of the user's wall clock")
	cmd.Flags().Float64Var(&f.lat, "lat", 0, "latitude of the last known location")
	cmd.Flags().Float64Var(&f.lon, "lon", 0, "longitude of the last known location")
}

func (f *contextFlags) settings() (domain.ContextSettings, error) {
	cfg, err := config.LoadFile(f.configPath)
	if err != nil {
		return domain.ContextSettings{}, err
	}
	return cfg.ContextDefaults()
}

// evaluate resolves the context described by the flags and returns it with
// the local time it was evaluated at.
func (f *contextFlags) evaluate(cmd *cobra.Command) (domain.Context, time.Time, error) {
	settings, err := f.settings()
	if err != nil {
		return domain.Context{}, time.Time{}, err
	}

	loc, err := time.LoadLocation(f.timezone)
	if err != nil {
		return domain.Context{}, time.Time{}, fmt.Errorf("%w: %s", domain.ErrInvalidTimezone, f.timezone)
	}

	at := time.Now()
	if f.at != "" {
		if at, err = time.Parse(time.RFC3339, f.at); err != nil {
			return domain.Context{}, time.Time{}, fmt.Errorf("invalid --at, use RFC3339: %w", err)
		}
	}
	local := at.In(loc)

	latSet, lonSet := cmd.Flags().Changed("lat"), cmd.Flags().Changed("lon")
	if latSet != lonSet {
		return domain.Context{}, time.Time{}, fmt.Errorf("--lat and --lon must be given together")
	}
	var coord *domain.Coordinate
	if latSet {
		coord = &domain.Coordinate{Latitude: f.lat, Longitude: f.lon}
		if err := coord.Validate(); err != nil {
			return domain.Context{}, time.Time{}, err
		}
	}

	return domain.NewContextResolver(settings).Resolve(local, local.Weekday(), coord), local, nil
}

func printContext(cmd *cobra.Command, ctx domain.Context, local time.Time) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s %s\n", cyan("Context at"), local.Format("Mon 2006-01-02 15:04 MST"))
	fmt.Fprintf(out, "  Time slot:    %s\n", ctx.TimeSlot)
	fmt.Fprintf(out, "  Day category: %s\n", ctx.DayCategory)
	location := ctx.LocationCategory
	if location == domain.LocationUnknown {
		location = gray(location)
	}
	fmt.Fprintf(out, "  Location:     %s\n", location)
}

func newResolveCmd() *cobra.Command {
	var flags contextFlags
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve time slot, day category and location category",
		Example: `  routinectl resolve --at 2026-03-14T08:00:00Z --tz Europe/Rome
  routinectl resolve -c kanso.toml --lat 45.4642 --lon 9.19`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, local, err := flags.evaluate(cmd)
			if err != nil {
				return err
			}
			printContext(cmd, ctx, local)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
