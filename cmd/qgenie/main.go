// Package main provides the qgenie CLI: the HTTP backend plus one-shot
// commands for profiles, queries, annotations and exports.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koustreak/qgenie/internal/config"
	"github.com/koustreak/qgenie/internal/logger"
)

var (
	// configFile is set by the --config flag.
	configFile string
	// jsonOutput prints command results as JSON instead of text.
	jsonOutput bool

	cfg *config.Config
	log *logger.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "qgenie",
	Short: "QGenie schema annotation engine",
	Long: `QGenie registers connections to relational databases, inspects their
schemas, runs ad-hoc SQL and stores AI-generated descriptions of databases,
tables, columns and relationships.`,
	SilenceUsage:      true,
	PersistentPreRunE: bootstrap,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ./configs/config.yaml, ./config.yaml or ~/.qgenie/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(annotateCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(keygenCmd)
}

// bootstrap loads configuration and installs the process logger.
func bootstrap(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == keygenCmd.Name() {
		return nil
	}
	c, err := config.Load(configFile)
	if err != nil {
		return err
	}
	cfg = c

	lc := logger.DefaultConfig()
	lc.Level = cfg.Logging.Level
	lc.Format = cfg.Logging.Format
	log = logger.New(lc)
	logger.SetGlobal(log)
	return nil
}
