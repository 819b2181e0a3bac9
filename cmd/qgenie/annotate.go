package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var annotateTree bool

var annotateCmd = &cobra.Command{
	Use:   "annotate <profile-id>",
	Short: "Annotate a profile's database with AI descriptions",
	Long: `Annotate scans the profile's database, asks the configured AI service
for descriptions and stores them, replacing any previous annotation of the
profile. When the AI service is unreachable, template descriptions are
stored instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		full, err := a.annotations.Create(ctx, args[0])
		if err != nil {
			return err
		}
		if annotateTree {
			tree, err := a.annotations.Hierarchical(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(tree)
		}
		if jsonOutput {
			return printJSON(full)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d table(s) annotated\n", full.ID, len(full.Tables))
		return nil
	},
}

var annotationShowCmd = &cobra.Command{
	Use:   "show <profile-id>",
	Short: "Print the stored annotation tree of a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		tree, err := a.annotations.Hierarchical(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(tree)
	},
}

func init() {
	annotateCmd.Flags().BoolVar(&annotateTree, "tree", false, "print the nested annotation tree")
	annotateCmd.AddCommand(annotationShowCmd)
}
