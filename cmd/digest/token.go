package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"daily-digest/internal/config"
	"daily-digest/internal/service/unsubscribe"
)

// tokenCmd groups the unsubscribe token helpers used by support staff.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign or verify unsubscribe tokens",
	}
	cmd.AddCommand(tokenSignCmd())
	cmd.AddCommand(tokenVerifyCmd())
	return cmd
}

func tokenSignCmd() *cobra.Command {
	var printURL bool
	cmd := &cobra.Command{
		Use:   "sign <email>",
		Short: "Print an unsubscribe token for an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, tokens, err := loadTokens()
			if err != nil {
				return err
			}
			token, err := tokens.Sign(args[0])
			if err != nil {
				return err
			}
			if printURL {
				fmt.Fprintln(cmd.OutOrStdout(), cfg.UnsubscribeURL(token))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().BoolVar(&printURL, "url", false, "print the full unsubscribe link")
	return cmd
}

func tokenVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Print the address an unsubscribe token was issued for",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, tokens, err := loadTokens()
			if err != nil {
				return err
			}
			email, err := tokens.Verify(args[0])
			switch {
			case errors.Is(err, unsubscribe.ErrExpiredToken):
				return fmt.Errorf("token expired")
			case err != nil:
				return fmt.Errorf("token invalid: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), email)
			return nil
		},
	}
}

func loadTokens() (*config.AppConfig, *unsubscribe.Tokens, error) {
	cfg, err := config.LoadAppConfig()
	if err != nil {
		return nil, nil, err
	}
	tokens, err := unsubscribe.NewTokens(cfg.SecretKey)
	if err != nil {
		return nil, nil, err
	}
	return cfg, tokens, nil
}
