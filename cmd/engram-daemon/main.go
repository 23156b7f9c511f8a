// Command engram-daemon hosts the Engram memory engine: it opens the
// configured store, wires the provider clients, starts the background job
// scheduler, and runs until interrupted. Configuration is hot-reloaded
// when the config file changes (logged; a restart applies structural
// changes like a different storage engine).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/engine"
	"github.com/scrypster/engram/internal/provider"
	"github.com/scrypster/engram/internal/retrieval"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/internal/storage/postgres"
	"github.com/scrypster/engram/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("engram-daemon: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	embedder, reranker := buildProviders(cfg)
	enhancer := retrieval.NewLocalEnhancer()

	eng, err := engine.New(cfg, store, embedder, reranker, enhancer)
	if err != nil {
		store.Close()
		return err
	}
	if err := eng.Start(); err != nil {
		store.Close()
		return err
	}

	var watcher *config.Watcher
	if configPath != "" {
		watcher = config.NewWatcher(configPath, func(updated *config.Config) {
			log.Printf("daemon: config file changed; tunables reload on next restart")
		})
		if err := watcher.Start(); err != nil {
			log.Printf("daemon: config watcher disabled: %v", err)
			watcher = nil
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("daemon: received %s, shutting down", sig)

	if watcher != nil {
		watcher.Stop()
	}
	return eng.Stop()
}

// openStore opens the configured storage backend.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Engine {
	case "sqlite":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("daemon: create data dir: %w", err)
		}
		return sqlite.New(filepath.Join(cfg.Storage.DataPath, "engram.db"))
	case "postgres":
		return postgres.New(cfg.Storage.PostgresDSN)
	default:
		return nil, fmt.Errorf("daemon: unknown storage engine %q", cfg.Storage.Engine)
	}
}

// buildProviders wires the HTTP provider client behind the embedding cache.
func buildProviders(cfg *config.Config) (provider.Embedder, provider.Reranker) {
	client := provider.NewHTTPClient(provider.HTTPClientConfig{
		BaseURL:        cfg.Provider.BaseURL,
		EmbeddingModel: cfg.Provider.EmbeddingModel,
		RerankModel:    cfg.Provider.RerankModel,
		Timeout:        cfg.Provider.Timeout,
		RatePerSecond:  cfg.Provider.RatePerSecond,
		MaxRetries:     cfg.Provider.MaxRetries,
	})

	cached, err := provider.NewCachedEmbedder(client, cfg.Provider.CacheSize)
	if err != nil {
		log.Printf("daemon: embedding cache disabled: %v", err)
		return client, client
	}
	return cached, client
}
