package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/koustreak/qgenie/internal/annotation"
	"github.com/koustreak/qgenie/internal/chat"
	"github.com/koustreak/qgenie/internal/credential"
	"github.com/koustreak/qgenie/internal/database"
	"github.com/koustreak/qgenie/internal/database/registry"
	"github.com/koustreak/qgenie/internal/export"
	"github.com/koustreak/qgenie/internal/filestore"
	"github.com/koustreak/qgenie/internal/filestore/minio"
	"github.com/koustreak/qgenie/internal/metrics"
	"github.com/koustreak/qgenie/internal/profile"
	"github.com/koustreak/qgenie/internal/query"
	"github.com/koustreak/qgenie/internal/schema"
	"github.com/koustreak/qgenie/internal/server"
	"github.com/koustreak/qgenie/internal/store"
)

// app holds every service built from cfg.
type app struct {
	store       *store.Store
	metrics     *metrics.Metrics
	profiles    *profile.Service
	scanner     *schema.Scanner
	annotations *annotation.Service
	exporter    *export.Exporter
	queries     *query.Executor
	history     *query.History
	vault       *credential.Vault
	chats       *chat.Repository
	assistant   *chat.Service
	connector   *database.Connector
}

// openApp opens the embedded store and wires the services. withExport
// connects to the object store when export is enabled.
func openApp(ctx context.Context, withExport bool) (*app, error) {
	if cfg.Credential.Key == "" {
		return nil, fmt.Errorf("credential.key is not set; generate one with `qgenie keygen` and export it as QGENIE_CREDENTIAL_KEY")
	}
	cipher, err := credential.NewCipher(cfg.Credential.Key)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, store.Options{Path: cfg.Store.Path, BusyTimeout: cfg.Store.BusyTimeout}, log)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	dbOpts := database.DefaultOptions()
	dbOpts.Log = log
	connector := registry.NewConnector(dbOpts)
	profiles := profile.NewService(profile.NewRepository(st.DB()), cipher, connector, log)
	scanner := schema.NewScanner(connector, log)
	history := query.NewHistory(st.DB())
	vault := credential.NewVault(st.DB(), cipher, log)

	a := &app{
		store:     st,
		metrics:   m,
		profiles:  profiles,
		scanner:   scanner,
		queries:   query.NewExecutor(connector, history, log, query.WithTimeout(cfg.Query.Timeout), query.WithMetrics(m)),
		history:   history,
		vault:     vault,
		chats:     chat.NewRepository(st.DB()),
		connector: connector,
	}
	a.assistant = chat.NewService(a.chats, chat.NewHTTPAssistant(cfg.AI.ChatURL, cfg.AI.Timeout, log), log)
	a.annotations = annotation.NewService(profiles, scanner, newAnnotator(vault, m), st, m, log)

	if withExport && cfg.Export.Enabled {
		fs, err := minio.New(ctx, &filestore.Config{
			Endpoint:  cfg.Export.Endpoint,
			AccessKey: cfg.Export.AccessKey,
			SecretKey: cfg.Export.SecretKey,
			UseSSL:    cfg.Export.UseSSL,
			Region:    cfg.Export.Region,
			Bucket:    cfg.Export.Bucket,
		})
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		a.exporter = export.New(fs, cfg.Export.Bucket, a.annotations, log)
	}
	return a, nil
}

func newAnnotator(keys annotation.KeySource, m *metrics.Metrics) annotation.Annotator {
	switch strings.ToLower(cfg.AI.Provider) {
	case "openai":
		return annotation.NewOpenAIClient(annotation.OpenAIConfig{
			APIKey:  cfg.AI.APIKey,
			Model:   cfg.AI.Model,
			BaseURL: cfg.AI.BaseURL,
			Timeout: cfg.AI.Timeout,
		}, keys, m, log)
	default:
		return annotation.NewHTTPClient(cfg.AI.URL, cfg.AI.Timeout, m, log)
	}
}

func (a *app) serverDeps() server.Deps {
	return server.Deps{
		Profiles:    a.profiles,
		Schemas:     a.scanner,
		Annotations: a.annotations,
		Queries:     a.queries,
		History:     a.history,
		Credentials: a.vault,
		Chats:       a.chats,
		Assistant:   a.assistant,
		Connector:   a.connector,
		Exporter:    a.exporter,
		Metrics:     a.metrics,
	}
}

func (a *app) Close() error {
	return a.store.Close()
}

// printJSON writes v indented to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
