// Package storage provides composable storage interfaces for the Recall
// memory layer.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. The core treats every
// implementation as externally synchronized: it relies on the backend's
// transaction guarantees and performs no locking of its own.
package storage

import (
	"context"

	"github.com/scrypster/recall/pkg/types"
)

// EntityStore provides lookup and upsert operations over canonical entities
// and per-user aliases. It is the read surface of cascade stages 1-3 and the
// write surface of the cascade's cost-amortization side effects.
type EntityStore interface {
	// FindCanonicalByName looks up an entity by its normalized canonical name.
	// Returns ErrNotFound when no entity matches.
	FindCanonicalByName(ctx context.Context, normalizedName string) (*types.Entity, error)

	// GetEntity retrieves an entity by ID.
	// Returns ErrNotFound if the entity doesn't exist.
	GetEntity(ctx context.Context, id string) (*types.Entity, error)

	// FindAlias looks up a previously stored (user, mention) mapping and the
	// entity it points at. Returns ErrNotFound when no alias exists.
	FindAlias(ctx context.Context, userID, normalizedMention string) (*types.Alias, *types.Entity, error)

	// FuzzySearch returns entities whose normalized names are similar to the
	// given name, ordered by similarity descending. Only matches with
	// similarity >= threshold are returned. An empty result is not an error.
	FuzzySearch(ctx context.Context, name string, threshold float64, limit int) ([]FuzzyMatch, error)

	// UpsertEntity creates or updates an entity keyed on
	// (type, normalized_name). Concurrent requests bootstrapping the same
	// novel entity must converge on a single canonical row; the returned
	// entity carries the winning ID.
	UpsertEntity(ctx context.Context, entity *types.Entity) (*types.Entity, error)

	// UpsertAlias creates or updates an alias keyed on
	// (user_id, normalized_mention). A plain insert would race under
	// concurrent resolution of the same novel mention.
	UpsertAlias(ctx context.Context, alias *types.Alias) error
}

// MemoryStore provides memory persistence and the raw vector pre-filter.
type MemoryStore interface {
	// Store creates or updates a memory (upsert semantics on ID).
	Store(ctx context.Context, memory *types.Memory) error

	// Get retrieves a memory by ID.
	// Returns ErrNotFound if the memory doesn't exist.
	Get(ctx context.Context, id string) (*types.Memory, error)

	// VectorSearch returns up to k memories ordered by raw embedding
	// similarity descending. This is a coarse pre-filter, not the final
	// ranking. An empty result is a valid non-error outcome.
	VectorSearch(ctx context.Context, embedding []float32, k int) ([]VectorMatch, error)

	// MarkSuperseded flags a memory as the loser of a reconciliation: sets
	// the forward superseded_by pointer, multiplies importance by the decay
	// penalty, and records the flag time. The memory is never deleted.
	// Returns ErrNotFound if the memory doesn't exist.
	MarkSuperseded(ctx context.Context, id, supersededByID string, decayPenalty float64) error

	// IncrementAccessCount atomically increments access_count and updates
	// last_accessed_at for the given memory ID. Returns ErrNotFound if the
	// memory does not exist.
	IncrementAccessCount(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}

// DomainStore is the read-only accessor over the external structured
// database used by the bootstrap stage and conflict reconciliation.
type DomainStore interface {
	// FindDomainRecord looks up a domain row whose normalized name matches.
	// Returns ErrNotFound when the domain database has no such row.
	FindDomainRecord(ctx context.Context, normalizedName string) (*DomainRecord, error)

	// QueryDomainFacts returns the structured facts recorded for an entity.
	// An empty result is not an error.
	QueryDomainFacts(ctx context.Context, entityType, externalID string) ([]types.DomainFact, error)
}

// Store composes the full persistence surface of one backend.
type Store interface {
	EntityStore
	MemoryStore
	DomainStore
}
