package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/koustreak/qgenie/internal/profile"
)

var profileInput profile.Input

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage connection profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connection profiles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.profiles.List(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(list)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tHOST\tDATABASE\tANNOTATED")
		for _, p := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", p.ID, p.Type, p.Host, p.Name, p.AnnotationID != nil)
		}
		return tw.Flush()
	},
}

var profileAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a connection profile",
	Long: `Add validates and stores a connection profile. The password is
encrypted at rest.

Example:
  qgenie profile add --type sqlite --name ./shop.sqlite
  qgenie profile add --type postgresql --host db --port 5432 --name shop --username app --password s3cret`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.profiles.Create(cmd.Context(), profileInput)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(p)
		}
		fmt.Fprintln(cmd.OutOrStdout(), p.ID)
		return nil
	},
}

var profileTestCmd = &cobra.Command{
	Use:   "test <profile-id>",
	Short: "Check that a stored profile can connect",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.profiles.TestStored(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "connection ok")
		return nil
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <profile-id>",
	Short: "Delete a profile and its annotation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.profiles.Delete(cmd.Context(), args[0])
	},
}

func init() {
	f := profileAddCmd.Flags()
	f.StringVar(&profileInput.Type, "type", "", "database type: postgresql, mysql, mariadb, oracle, sqlserver, sqlite (required)")
	f.StringVar(&profileInput.Host, "host", "", "server host")
	f.IntVar(&profileInput.Port, "port", 0, "server port (default: the type's default port)")
	f.StringVar(&profileInput.Name, "name", "", "database name, or file path for sqlite")
	f.StringVar(&profileInput.Username, "username", "", "user name")
	f.StringVar(&profileInput.Password, "password", "", "password")
	f.StringVar(&profileInput.ViewName, "view-name", "", "display name")
	_ = profileAddCmd.MarkFlagRequired("type")

	profileCmd.AddCommand(profileListCmd, profileAddCmd, profileTestCmd, profileDeleteCmd)
}
