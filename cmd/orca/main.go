package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orca-mail/orca/internal/app"
	"github.com/orca-mail/orca/internal/config"
)

var (
	cfgFile   string
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "orca",
	Short: "Orca - bulk email dispatch service",
	Long:  `Orca queues, paces and tracks bulk email dispatches across per-user sending servers.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dispatch service",
	Long:  `Start the Orca HTTP API and the background dispatch workers.`,
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("orca version %s\n", version)
		if commit != "unknown" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(serveCmd, configCmd, versionCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(context.Background())
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	servers := 0
	for _, u := range cfg.Users {
		servers += len(u.Servers)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  API: %s\n", cfg.Server.ListenAddr)
	fmt.Printf("  Storage: %s\n", cfg.Storage.Path)
	fmt.Printf("  Users: %d\n", len(cfg.Users))
	fmt.Printf("  Sending servers: %d\n", servers)
	fmt.Printf("  Workers: %d\n", cfg.Dispatch.Workers)

	return nil
}
