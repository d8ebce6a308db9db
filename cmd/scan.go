// File: cmd/scan.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/halcyonsec/scangate/api/schemas"
	"github.com/halcyonsec/scangate/internal/observability"
	"github.com/halcyonsec/scangate/internal/reporting"
)

// newScanCmd creates and configures the `scan` command.
func newScanCmd() *cobra.Command {
	scanCmd := &cobra.Command{
		Use:   "scan <repository>",
		Short: "Runs all enabled security scanners against a repository",
		Long: `Runs the enabled scanner tools against the given repository reference
(a local path, an owner/repo shorthand, or a clone URL), evaluates the
security gate policy over the normalized findings, and writes a report.

Exit codes: 0 when the gate passes or warns, 1 when the gate fails and
--fail-on-gate is set, 2 when the scan itself fails.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Flag overrides take precedence over the config file and env.
			if err := viper.BindPFlag("scanners.concurrency", cmd.Flags().Lookup("concurrency")); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg := appConfig
			if c, err := cmd.Flags().GetInt("concurrency"); err == nil && c > 0 {
				cfg.Scanners.Concurrency = c
			}

			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			failOnGate, _ := cmd.Flags().GetBool("fail-on-gate")
			strict, _ := cmd.Flags().GetBool("strict")
			triggeredBy, _ := cmd.Flags().GetString("triggered-by")

			reporter, err := reporting.New(format, output, Version)
			if err != nil {
				return err
			}
			defer func() {
				if err := reporter.Close(); err != nil {
					logger.Warn("Failed to close reporter", zap.Error(err))
				}
			}()

			comps, err := initializeComponents(ctx, cfg, logger, false)
			if err != nil {
				return err
			}
			defer comps.Shutdown()

			result, err := comps.Service.Scan(ctx, args[0], triggeredBy)
			if err != nil && result == nil {
				return err
			}
			if err != nil {
				// Persistence failed but the scan completed; still report.
				logger.Warn("Continuing with report despite persistence failure", zap.Error(err))
			}

			report := &reporting.Report{
				Payload:  result.Payload,
				Mappings: result.Mappings,
				Decision: result.Decision,
			}
			if err := reporter.Write(report); err != nil {
				return err
			}

			decision := result.Decision
			gateBlocks := decision.Status == schemas.GateFailed ||
				(strict && decision.Status == schemas.GateWarning)
			if failOnGate && gateBlocks {
				return fmt.Errorf("%w: %s", errGateFailed, decision.Reason)
			}
			if decision.Status != schemas.GatePassed {
				logger.Warn("Security gate did not pass cleanly",
					zap.String("status", string(decision.Status)),
					zap.String("reason", decision.Reason))
			}
			return nil
		},
	}

	scanCmd.Flags().StringP("format", "f", "json", "Report format: 'json', 'sarif' or 'junit'.")
	scanCmd.Flags().StringP("output", "o", "", "Report file path. Defaults to stdout.")
	scanCmd.Flags().Bool("fail-on-gate", true, "Exit non-zero when the security gate fails.")
	scanCmd.Flags().Bool("strict", false, "Treat a gate warning like a failure for the exit code.")
	scanCmd.Flags().IntP("concurrency", "j", 0, "Number of scanner tools to run at once. Zero runs all concurrently.")
	scanCmd.Flags().String("triggered-by", "cli", "Trigger label recorded on the scan, e.g. 'ci' or 'api'.")

	return scanCmd
}
