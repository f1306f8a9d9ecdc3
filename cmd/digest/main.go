package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"daily-digest/internal/handler/http/respond"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "digest",
		Short:         "Daily personalized news digest",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(ledgerCmd())

	if err := rootCmd.Execute(); err != nil {
		// DSNs and API keys can end up in wrapped errors.
		fmt.Fprintln(os.Stderr, "error:", respond.SanitizeError(err))
		os.Exit(1)
	}
}
