package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hnrobert/gridlogin/internal/daemon"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <username>",
	Short: "Refresh one login name and print its credential records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := daemon.New(cfg)
		if err != nil {
			return err
		}
		name := args[0]
		d.Engine().RefreshOneUser(cmd.Context(), name)
		if d.Protocol().AllowsJobs() {
			d.Engine().RefreshOneJob(cmd.Context(), name)
		}
		logins := d.Lookup(name)
		if len(logins) == 0 {
			return fmt.Errorf("no %s logins for %s", cfg.Protocol, name)
		}
		for i, l := range logins {
			if i > 0 {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			fmt.Fprintln(cmd.OutOrStdout(), l.String())
		}
		return nil
	},
}
