package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"daily-digest/internal/observability/logging"
	"daily-digest/internal/usecase/schedule"
)

var runRespectWindows bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Dispatch one batch now and exit",
	Long: `Dispatch today's digest to every eligible subscriber who has not received it yet.
Intended for an external cron entry. Subscribers already sent today are skipped, so
the command is safe to repeat.

Examples:
  digest run
  digest run --respect-windows`,
	Args: cobra.NoArgs,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().BoolVar(&runRespectWindows, "respect-windows", false,
		"behave like one scheduler tick: only dispatch when a delivery window is open")
}

func runOnce(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger()
	a, err := newApp(ctx, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	s := a.newScheduler()

	var result schedule.TickResult
	if runRespectWindows {
		result, err = s.Tick(ctx)
	} else {
		result, err = s.DispatchPending(ctx)
	}
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	if result.Batch == nil {
		logger.Info("nothing to dispatch",
			slog.Int("eligible", result.Eligible),
			slog.Int("pending", result.Pending))
		fmt.Fprintln(cmd.OutOrStdout(), "nothing to dispatch")
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Batch.String())
	if result.Batch.Interrupted {
		return fmt.Errorf("batch %s interrupted after %d of %d subscribers",
			result.Batch.RunID, result.Batch.Processed, result.Batch.Total)
	}
	return nil
}
