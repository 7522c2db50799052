package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hnrobert/gridlogin/internal/config"
	"github.com/hnrobert/gridlogin/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "gridlogind",
	Short:         "Credential and session refresh daemon for grid file access front-ends",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c",
		getenvDefault("GRIDLOGIN_CONFIG", config.DefaultPath()), "path to the YAML config file")
	rootCmd.AddCommand(initCmd, serveCmd, lookupCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config and sets up logging from it.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if cfg.LogDir != "" {
		if err := logger.Init(cfg.LogDir); err != nil {
			return config.Config{}, fmt.Errorf("init logging: %w", err)
		}
	}
	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
