package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hnrobert/gridlogin/internal/auth"
	"github.com/hnrobert/gridlogin/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file with a fresh admin secret",
	Long: `Create the config file with default values if it does not exist yet and
give it a random admin_secret when none is set. Existing settings are kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store := config.NewStore(configPath)
		if err := store.Ensure(); err != nil {
			return err
		}
		cfg, err := store.Get()
		if err != nil {
			return err
		}
		if cfg.AdminSecret == "" {
			if cfg.AdminSecret, err = auth.NewRandomSecretB64(32); err != nil {
				return err
			}
			if err := store.Save(cfg); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config ready at %s\n", store.Path())
		return nil
	},
}
