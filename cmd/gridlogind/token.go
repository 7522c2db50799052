package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hnrobert/gridlogin/internal/auth"
)

var (
	tokenUser      string
	tokenTTL       time.Duration
	tokenNewSecret bool
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print an admin bearer token, or a fresh admin secret",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if tokenNewSecret {
			s, err := auth.NewRandomSecretB64(32)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.AdminSecret == "" {
			return errors.New("admin_secret is not configured")
		}
		key, err := auth.DecodeSecret(cfg.AdminSecret)
		if err != nil {
			return err
		}
		tok, err := auth.SignHS256(key, tokenUser, true, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "admin", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	tokenCmd.Flags().BoolVar(&tokenNewSecret, "new-secret", false, "print a random admin secret instead")
}
