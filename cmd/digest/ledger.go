package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"daily-digest/internal/domain/entity"
	"daily-digest/internal/infra/adapter/persistence/postgres"
	"daily-digest/internal/infra/db"
	"daily-digest/internal/observability/logging"
	"daily-digest/internal/repository"
)

type ledgerOptions struct {
	date   string
	email  string
	status string
	limit  int
}

// ledgerCmd prints dispatch records, newest first.
func ledgerCmd() *cobra.Command {
	var opts ledgerOptions
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Show dispatch ledger entries",
		Long: `List ledger records, newest first.

Examples:
  digest ledger --date 2025-03-01
  digest ledger --email reader@example.com --status failed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := logging.NewLogger()
			database, err := db.Open(cmd.Context(), os.Getenv("DATABASE_URL"))
			if err != nil {
				return err
			}
			defer func() {
				if err := database.Close(); err != nil {
					logger.Error("failed to close database", slog.Any("error", err))
				}
			}()
			return printLedger(cmd.Context(), cmd.OutOrStdout(),
				postgres.NewSubscriberRepo(database), postgres.NewDispatchRepo(database), opts)
		},
	}
	cmd.Flags().StringVar(&opts.date, "date", "", "digest date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.email, "email", "", "only records for this subscriber")
	cmd.Flags().StringVar(&opts.status, "status", "", "sent, failed or skipped")
	cmd.Flags().IntVar(&opts.limit, "limit", 50, "maximum rows, 0 for all")
	return cmd
}

func (o ledgerOptions) filter(ctx context.Context, subs repository.SubscriberRepository) (repository.DispatchFilter, error) {
	f := repository.DispatchFilter{Limit: o.limit}
	if o.date != "" {
		d, err := time.Parse(time.DateOnly, o.date)
		if err != nil {
			return f, fmt.Errorf("invalid --date %q: want YYYY-MM-DD", o.date)
		}
		f.DigestDate = d
	}
	if o.status != "" {
		f.Status = entity.DispatchStatus(strings.ToLower(o.status))
		if !f.Status.Valid() {
			return f, fmt.Errorf("invalid --status %q", o.status)
		}
	}
	if o.email != "" {
		sub, err := subs.GetByEmail(ctx, o.email)
		if err != nil {
			return f, err
		}
		f.SubscriberID = sub.ID
	}
	return f, nil
}

func printLedger(
	ctx context.Context, out io.Writer,
	subs repository.SubscriberRepository, ledger repository.DispatchRepository, opts ledgerOptions,
) error {
	f, err := opts.filter(ctx, subs)
	if err != nil {
		return err
	}
	records, err := ledger.Search(ctx, f)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "no records")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSUBSCRIBER\tDATE\tSTATUS\tCREATED\tDETAIL")
	for _, r := range records {
		detail := r.TransportID
		if r.Status != entity.DispatchStatusSent {
			detail = r.ErrorMessage
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n",
			r.ID, r.SubscriberID, r.DigestDate.Format(time.DateOnly), r.Status,
			r.CreatedAt.UTC().Format(time.RFC3339), detail)
	}
	return tw.Flush()
}
