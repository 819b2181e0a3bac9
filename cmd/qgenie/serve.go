package main

import (
	"github.com/spf13/cobra"

	"github.com/koustreak/qgenie/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve exposes profiles, schema browsing, query execution, annotations,
credentials and chat tabs as a JSON API. Prometheus metrics are served on
/metrics. The server stops gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	return server.New(a.serverDeps(), log).Run(ctx, addr)
}
