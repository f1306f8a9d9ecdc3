// Package logging builds the process logger (JSON by default, level from LOG_LEVEL)
// and carries per-run loggers through context.
//
// Example usage:
//
//	logger := logging.NewLogger()
//	ctx = logging.WithLogger(ctx, logger.With(slog.String("run_id", runID)))
//	logging.FromContext(ctx).Info("batch started")
package logging
