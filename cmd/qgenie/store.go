package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koustreak/qgenie/internal/store"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the embedded store",
}

var storeInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or upgrade the embedded store",
	Long: `Init opens the embedded SQLite store, creating missing tables, triggers
and columns. Running it again is harmless.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := store.Open(cmd.Context(), store.Options{Path: cfg.Store.Path, BusyTimeout: cfg.Store.BusyTimeout}, log)
		if err != nil {
			return err
		}
		defer st.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "store ready at %s\n", st.Path())
		return nil
	},
}

func init() {
	storeCmd.AddCommand(storeInitCmd)
}
