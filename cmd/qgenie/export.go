package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <annotation-id>",
	Short: "Export an annotation as YAML to object storage",
	Long: `Export writes the full annotation to the configured bucket under
annotations/<id>.yaml and prints a presigned download URL. Requires
export.enabled and the export.* storage settings.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openExporter(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.exporter.Export(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "s3://%s/%s (%d bytes)\n%s\n", res.Bucket, res.Key, res.Size, res.URL)
		return nil
	},
}

var exportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List exported annotations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openExporter(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		objects, err := a.exporter.List(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(objects)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tSIZE\tMODIFIED")
		for _, o := range objects {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", o.Key, o.Size, o.LastModified.Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	},
}

var exportGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Read an exported annotation back",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openExporter(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := a.exporter.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(doc)
	},
}

func openExporter(cmd *cobra.Command) (*app, error) {
	if !cfg.Export.Enabled {
		return nil, errors.New("export is disabled; set export.enabled and the export.* storage settings")
	}
	return openApp(cmd.Context(), true)
}

func init() {
	exportCmd.AddCommand(exportListCmd, exportGetCmd)
}
