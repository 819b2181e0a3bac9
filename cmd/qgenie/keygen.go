package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koustreak/qgenie/internal/credential"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Print a new credential encryption key",
	Long: `Keygen prints a random key for credential.key. Passwords and API keys
stored with one key cannot be read with another, so keep it safe.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := credential.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}
