// Command recall-query runs a single query through the Recall pipeline and
// prints the result as JSON. It is the reference wiring of the full stack:
// config, storage backend, LLM provider, and the pipeline coordinator.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/engine"
	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/internal/storage/postgres"
	"github.com/scrypster/recall/internal/storage/sqlite"
)

var (
	userID       = flag.String("user", "default", "User ID scoping aliases and memories")
	sessionID    = flag.String("session", "", "Session ID for temporal coherence")
	recentTurns  = flag.String("turns", "", "Recent conversation turns, separated by |")
	recentIDs    = flag.String("recent-entities", "", "Comma-separated entity IDs from recent turns")
	remember     = flag.String("remember", "", "Store this text as a memory instead of querying")
	confirmAlias = flag.String("confirm-alias", "", "Confirm mention=entity_id and exit")
	noLLM        = flag.Bool("no-llm", false, "Run without an LLM provider (degraded mode)")
	timeout      = flag.Duration("timeout", 30*time.Second, "Overall request timeout")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	var provider llm.Provider
	if !*noLLM {
		client := llm.NewOllamaClient(llm.OllamaConfig{
			BaseURL:        cfg.LLM.OllamaURL,
			Model:          cfg.LLM.OllamaModel,
			EmbeddingModel: cfg.LLM.OllamaEmbeddingModel,
			Timeout:        cfg.LLM.RequestTimeout,
		})
		provider = llm.NewThrottled(client, cfg.LLM.RequestsPerSecond, cfg.LLM.Burst)
	}

	coordinator, err := engine.New(store, provider, cfg)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch {
	case *confirmAlias != "":
		mention, entityID, ok := strings.Cut(*confirmAlias, "=")
		if !ok {
			log.Fatalf("Invalid -confirm-alias value %q, want mention=entity_id", *confirmAlias)
		}
		if err := coordinator.ConfirmAlias(ctx, *userID, mention, entityID); err != nil {
			log.Fatalf("Failed to confirm alias: %v", err)
		}
		log.Printf("Confirmed %q -> %s for user %s", mention, entityID, *userID)

	case *remember != "":
		if err := rememberText(ctx, coordinator); err != nil {
			log.Fatalf("Failed to store memory: %v", err)
		}

	default:
		text := strings.Join(flag.Args(), " ")
		if text == "" {
			log.Fatal("Usage: recall-query [flags] <query text>")
		}
		if err := runQuery(ctx, coordinator, text); err != nil {
			log.Fatalf("Query failed: %v", err)
		}
	}
}

func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.StorageEngine == "postgres" {
		return postgres.Open(cfg.Storage.PostgresDSN, postgres.Options{})
	}
	return sqlite.Open(cfg.Storage.DataPath)
}

func rememberText(ctx context.Context, coordinator *engine.Coordinator) error {
	text := *remember

	// Resolve mentions first so the memory links to canonical entities.
	result, err := coordinator.ProcessQuery(ctx, engine.QueryInput{
		UserID:    *userID,
		Text:      text,
		SessionID: *sessionID,
	})
	if err != nil {
		return err
	}

	memory := engine.NewMemory(*userID, *sessionID, text, result.ResolvedEntities)
	if err := coordinator.Remember(ctx, memory); err != nil {
		return err
	}

	log.Printf("Stored memory %s with %d linked entities", memory.ID, len(memory.EntityIDs))
	return nil
}

func runQuery(ctx context.Context, coordinator *engine.Coordinator, text string) error {
	input := engine.QueryInput{
		UserID:    *userID,
		Text:      text,
		SessionID: *sessionID,
	}
	if *recentTurns != "" {
		input.RecentTurns = strings.Split(*recentTurns, "|")
	}
	if *recentIDs != "" {
		input.RecentEntityIDs = strings.Split(*recentIDs, ",")
	}

	result, err := coordinator.ProcessQuery(ctx, input)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
