// Package app owns the server lifecycle: config, storage, routes,
// serving and shutdown.
package app

import (
	"context"
	"fmt"

	"groupchat/pkg/api"
	"groupchat/pkg/api/handlers"
	"groupchat/pkg/banner"
	"groupchat/pkg/config"
	"groupchat/pkg/knowledge"
	"groupchat/pkg/llm"
	"groupchat/pkg/logger"
	"groupchat/pkg/store"
)

// Version is stamped at build time.
var Version = "dev"

// App is the assembled server.
type App struct {
	cfg    *config.Config
	roster *config.Roster
}

// New loads storage and wires the dependency graph.
func New(cfg *config.Config, roster *config.Roster) (*App, error) {
	backend, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}
	store.Open(backend)
	return &App{cfg: cfg, roster: roster}, nil
}

func openBackend(cfg *config.Config) (store.Backend, error) {
	switch cfg.Storage.Backend {
	case "", "pebble":
		return store.OpenPebble(cfg.Storage.Path)
	case "redis":
		return store.OpenRedis(cfg.Storage.Redis.Addr, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func (a *App) retriever(reg *llm.Registry) knowledge.Retriever {
	if a.cfg.Knowledge.Backend != "qdrant" {
		return knowledge.NewStoreRetriever()
	}
	q := a.cfg.Knowledge.Qdrant
	entry, key, err := reg.Resolve(a.cfg.Knowledge.EmbedModel)
	if err != nil {
		logger.Warn("qdrant_embed_model_unavailable", "error", err)
		return knowledge.NewStoreRetriever()
	}
	ret, err := knowledge.NewQdrantRetriever(q.Host, q.Port, q.APIKey, q.UseTLS, q.Collection, llm.NewClient(entry.BaseURL, key), entry.Model)
	if err != nil {
		logger.Warn("qdrant_unavailable_falling_back", "error", err)
		return knowledge.NewStoreRetriever()
	}
	return ret
}

// Run serves until ctx is cancelled, then shuts down cleanly.
func (a *App) Run(ctx context.Context) error {
	reg := llm.NewRegistry(a.cfg.Models)
	handler := api.NewRouter(handlers.Deps{
		Registry:  reg,
		Retriever: a.retriever(reg),
		Config:    a.cfg,
		Roster:    a.roster,
	})

	banner.Print(Version, a.cfg.Addr())
	err := a.serveHTTP(ctx, handler)

	if cerr := store.Close(); cerr != nil {
		logger.Error("store_close_failed", "error", cerr)
	}
	return err
}
