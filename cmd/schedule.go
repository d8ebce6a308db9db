// cmd/schedule.go
package cmd

import (
	"context"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/halcyonsec/scangate/api/schemas"
	"github.com/halcyonsec/scangate/internal/config"
	"github.com/halcyonsec/scangate/internal/observability"
	"github.com/halcyonsec/scangate/internal/scheduler"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// newScheduleCmd groups the schedule management subcommands.
func newScheduleCmd() *cobra.Command {
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manages recurring scan schedules",
	}

	scheduleCmd.AddCommand(
		newScheduleCreateCmd(),
		newScheduleListCmd(),
		newScheduleGetCmd(),
		newScheduleUpdateCmd(),
		newScheduleDeleteCmd(),
		newScheduleRunCmd(),
		newScheduleServeCmd(),
	)
	return scheduleCmd
}

// withScheduler wires the full pipeline plus a (not started) scheduler and
// hands it to fn. One-shot CRUD commands go through the scheduler so next-run
// computation and validation behave exactly as in serve mode.
func withScheduler(ctx context.Context, cfg *config.Config, fn func(ctx context.Context, s *scheduler.Scheduler) error) error {
	logger := observability.GetLogger()

	comps, err := initializeComponents(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer comps.Shutdown()

	sched, err := scheduler.New(comps.Store, comps.Service, cfg.Scheduler, logger)
	if err != nil {
		return err
	}
	return fn(ctx, sched)
}

// scheduleFlags binds the selector flags shared by create and update.
func scheduleFlags(cmd *cobra.Command) {
	cmd.Flags().String("repo", "", "Repository reference to scan.")
	cmd.Flags().String("type", "", "Schedule cadence: daily, weekly, monthly or manual.")
	cmd.Flags().Int("hour", -1, "Hour of day (0-23). Defaults to 2.")
	cmd.Flags().Int("minute", -1, "Minute of hour (0-59). Defaults to 0.")
	cmd.Flags().Int("day-of-week", -1, "Day of week for weekly schedules (0=Sunday). Defaults to Monday.")
	cmd.Flags().Int("day-of-month", -1, "Day of month for monthly schedules (1-31). Defaults to 1.")
	cmd.Flags().String("timezone", "", "IANA timezone name, e.g. Europe/Berlin. Defaults to UTC.")
}

// applyScheduleFlags copies changed selector flags onto the definition. The
// -1 sentinels keep 0 (midnight, Sunday) usable as a real value.
func applyScheduleFlags(cmd *cobra.Command, def *schemas.ScheduleDefinition) {
	if v, _ := cmd.Flags().GetString("repo"); v != "" {
		def.RepositoryRef = v
	}
	if v, _ := cmd.Flags().GetString("type"); v != "" {
		def.Type = schemas.ScheduleType(v)
	}
	if v, _ := cmd.Flags().GetInt("hour"); v >= 0 {
		def.Config.Hour = &v
	}
	if v, _ := cmd.Flags().GetInt("minute"); v >= 0 {
		def.Config.Minute = &v
	}
	if v, _ := cmd.Flags().GetInt("day-of-week"); v >= 0 {
		def.Config.DayOfWeek = &v
	}
	if v, _ := cmd.Flags().GetInt("day-of-month"); v >= 1 {
		def.Config.DayOfMonth = &v
	}
	if v, _ := cmd.Flags().GetString("timezone"); v != "" {
		def.Timezone = v
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newScheduleCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Creates a recurring scan schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			def := &schemas.ScheduleDefinition{Enabled: true}
			applyScheduleFlags(cmd, def)
			if disabled, _ := cmd.Flags().GetBool("disabled"); disabled {
				def.Enabled = false
			}

			return withScheduler(cmd.Context(), appConfig, func(ctx context.Context, s *scheduler.Scheduler) error {
				if err := s.Create(ctx, def); err != nil {
					return err
				}
				return printJSON(def)
			})
		},
	}
	scheduleFlags(cmd)
	cmd.Flags().Bool("disabled", false, "Create the schedule in disabled state.")
	_ = cmd.MarkFlagRequired("repo")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newScheduleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists all scan schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScheduler(cmd.Context(), appConfig, func(ctx context.Context, s *scheduler.Scheduler) error {
				defs, err := s.List(ctx)
				if err != nil {
					return err
				}
				if defs == nil {
					defs = []schemas.ScheduleDefinition{}
				}
				return printJSON(defs)
			})
		},
	}
}

func newScheduleGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Shows one scan schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScheduler(cmd.Context(), appConfig, func(ctx context.Context, s *scheduler.Scheduler) error {
				def, err := s.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(def)
			})
		},
	}
}

func newScheduleUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Updates a scan schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScheduler(cmd.Context(), appConfig, func(ctx context.Context, s *scheduler.Scheduler) error {
				def, err := s.Get(ctx, args[0])
				if err != nil {
					return err
				}
				applyScheduleFlags(cmd, def)
				if cmd.Flags().Changed("enabled") {
					def.Enabled, _ = cmd.Flags().GetBool("enabled")
				}
				if err := s.Update(ctx, def); err != nil {
					return err
				}
				return printJSON(def)
			})
		},
	}
	scheduleFlags(cmd)
	cmd.Flags().Bool("enabled", true, "Enable or disable the schedule.")
	return cmd
}

func newScheduleDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Deletes a scan schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScheduler(cmd.Context(), appConfig, func(ctx context.Context, s *scheduler.Scheduler) error {
				if err := s.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func newScheduleRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <id>",
		Short: "Triggers one schedule immediately",
		Long: `Triggers the schedule's scan right now, regardless of its next run time.
This is also the only way a manual schedule ever runs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScheduler(cmd.Context(), appConfig, func(ctx context.Context, s *scheduler.Scheduler) error {
				return s.ExecuteNow(ctx, args[0])
			})
		},
	}
}

func newScheduleServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the schedule engine until interrupted",
		Long: `Loads all enabled schedules, arms a timer for each, and executes scans as
they come due. Overdue schedules are caught up by a periodic sweep. Stops
cleanly on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			return withScheduler(cmd.Context(), appConfig, func(ctx context.Context, s *scheduler.Scheduler) error {
				if err := s.Start(ctx); err != nil {
					return err
				}
				logger.Info("Schedule engine running", zap.String("version", Version))

				<-ctx.Done()
				logger.Info("Shutting down schedule engine")
				s.Stop()
				return nil
			})
		},
	}
}
