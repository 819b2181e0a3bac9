package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/koustreak/qgenie/internal/query"
)

var (
	queryProfile  string
	queryDatabase string
	queryDryRun   bool
)

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run one SQL statement against a profile",
	Long: `Query runs a statement on the profile's database. SELECT statements
print their rows; anything else prints the affected row count. With --test
the statement runs inside a transaction that is always rolled back.

Example:
  qgenie query --profile USER-DB-... "SELECT * FROM orders"
  qgenie query --profile USER-DB-... --test "DELETE FROM orders"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryProfile, "profile", "", "profile id (required)")
	queryCmd.Flags().StringVar(&queryDatabase, "database", "", "override the profile's database")
	queryCmd.Flags().BoolVar(&queryDryRun, "test", false, "roll back instead of committing")
	_ = queryCmd.MarkFlagRequired("profile")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.profiles.Resolve(ctx, queryProfile)
	if err != nil {
		return err
	}
	req := query.Request{SQL: args[0], Params: p.Params(), Database: queryDatabase}

	run := a.queries.Execute
	if queryDryRun {
		run = a.queries.ExecuteTest
	}
	res, err := run(ctx, req)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(res)
	}

	out := cmd.OutOrStdout()
	if res.Kind == query.KindMutation {
		fmt.Fprintf(out, "%d row(s) affected\n", res.RowsAffected)
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, c := range res.Columns {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, c)
	}
	fmt.Fprintln(tw)
	for _, row := range res.Rows {
		for i, v := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, v)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
