// Package sqlite implements the Recall storage interfaces on SQLite using
// the pure-Go modernc.org/sqlite driver.
//
// Embeddings are serialized as little-endian float32 BLOBs and similarity is
// computed in Go, since modernc.org/sqlite ships no vector or trigram
// extension. This keeps the default backend dependency-free at runtime; the
// Postgres backend pushes both down into the database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Ensure *Store implements the full storage surface at compile time.
var _ storage.Store = (*Store)(nil)

// Store implements storage.EntityStore, storage.MemoryStore, and
// storage.DomainStore on a single SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
// Use ":memory:" for an ephemeral database in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent requests.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.applySchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for test seeding.
func (s *Store) DB() *sql.DB {
	return s.db
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS entities (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	normalized_name     TEXT NOT NULL,
	type                TEXT NOT NULL,
	description         TEXT NOT NULL DEFAULT '',
	aliases             TEXT NOT NULL DEFAULT '[]',
	domain_key          TEXT NOT NULL DEFAULT '',
	embedding           BLOB,
	embedding_model     TEXT NOT NULL DEFAULT '',
	embedding_dimension INTEGER NOT NULL DEFAULT 0,
	memory_count        INTEGER NOT NULL DEFAULT 0,
	first_seen          TIMESTAMP,
	last_seen           TIMESTAMP,
	created_at          TIMESTAMP NOT NULL,
	updated_at          TIMESTAMP NOT NULL,
	UNIQUE (type, normalized_name)
);

CREATE INDEX IF NOT EXISTS idx_entities_normalized_name ON entities(normalized_name);

CREATE TABLE IF NOT EXISTS aliases (
	user_id            TEXT NOT NULL,
	mention            TEXT NOT NULL,
	normalized_mention TEXT NOT NULL,
	entity_id          TEXT NOT NULL,
	confirmations      INTEGER NOT NULL DEFAULT 0,
	created_at         TIMESTAMP NOT NULL,
	updated_at         TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, normalized_mention)
);

CREATE TABLE IF NOT EXISTS memories (
	id                  TEXT PRIMARY KEY,
	content             TEXT NOT NULL,
	user_id             TEXT NOT NULL DEFAULT '',
	session_id          TEXT NOT NULL DEFAULT '',
	memory_type         TEXT NOT NULL DEFAULT 'semantic',
	source              TEXT NOT NULL DEFAULT 'memory',
	entity_ids          TEXT NOT NULL DEFAULT '[]',
	embedding           BLOB,
	embedding_model     TEXT NOT NULL DEFAULT '',
	embedding_dimension INTEGER NOT NULL DEFAULT 0,
	importance          REAL NOT NULL DEFAULT 0.5,
	confidence          REAL NOT NULL DEFAULT 0.5,
	access_count        INTEGER NOT NULL DEFAULT 0,
	created_at          TIMESTAMP NOT NULL,
	updated_at          TIMESTAMP NOT NULL,
	last_accessed_at    TIMESTAMP,
	superseded_by_id    TEXT NOT NULL DEFAULT '',
	decay_flagged_at    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS domain_records (
	external_id     TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	normalized_name TEXT NOT NULL,
	entity_type     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_domain_records_normalized_name ON domain_records(normalized_name);

CREATE TABLE IF NOT EXISTS domain_facts (
	external_id TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	topic       TEXT NOT NULL,
	value       TEXT NOT NULL,
	observed_at TIMESTAMP NOT NULL,
	PRIMARY KEY (external_id, topic)
);
`

// applySchema creates all tables and indexes if they do not exist yet.
func (s *Store) applySchema() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// EntityStore
// ---------------------------------------------------------------------------

const entitySelectColumns = `
	id, name, normalized_name, type, description, aliases, domain_key,
	embedding, embedding_model, embedding_dimension,
	memory_count, first_seen, last_seen, created_at, updated_at
`

// FindCanonicalByName looks up an entity by normalized canonical name.
func (s *Store) FindCanonicalByName(ctx context.Context, normalizedName string) (*types.Entity, error) {
	if normalizedName == "" {
		return nil, fmt.Errorf("%w: normalized name is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+entitySelectColumns+` FROM entities WHERE normalized_name = ? ORDER BY id LIMIT 1`,
		normalizedName)

	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: find canonical by name: %w", err)
	}

	return entity, nil
}

// GetEntity retrieves an entity by ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+entitySelectColumns+` FROM entities WHERE id = ?`, id)

	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: get entity: %w", err)
	}

	return entity, nil
}

// FindAlias looks up a (user, mention) mapping and its target entity.
func (s *Store) FindAlias(ctx context.Context, userID, normalizedMention string) (*types.Alias, *types.Entity, error) {
	if userID == "" || normalizedMention == "" {
		return nil, nil, fmt.Errorf("%w: user ID and mention are required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, mention, normalized_mention, entity_id, confirmations, created_at, updated_at
		FROM aliases
		WHERE user_id = ? AND normalized_mention = ?
	`, userID, normalizedMention)

	var alias types.Alias
	err := row.Scan(&alias.UserID, &alias.Mention, &alias.NormalizedMention,
		&alias.EntityID, &alias.Confirmations, &alias.CreatedAt, &alias.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, storage.ErrNotFound
		}
		return nil, nil, fmt.Errorf("sqlite: find alias: %w", err)
	}

	entity, err := s.GetEntity(ctx, alias.EntityID)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: alias target %s: %w", alias.EntityID, err)
	}

	return &alias, entity, nil
}

// FuzzySearch scans canonical names and ranks them by trigram similarity
// computed in Go. Results are ordered by score descending, entity ID
// ascending for equal scores, so ranking is deterministic.
func (s *Store) FuzzySearch(ctx context.Context, name string, threshold float64, limit int) ([]storage.FuzzyMatch, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+entitySelectColumns+` FROM entities`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: fuzzy search query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	query := trigramSet(name)
	var matches []storage.FuzzyMatch
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: fuzzy search scan: %w", err)
		}
		score := trigramSimilarity(query, trigramSet(entity.NormalizedName))
		if score >= threshold {
			matches = append(matches, storage.FuzzyMatch{Entity: *entity, Score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: fuzzy search rows: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Entity.ID < matches[j].Entity.ID
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}

	return matches, nil
}

// UpsertEntity inserts or updates an entity keyed on (type, normalized_name).
// Two concurrent bootstraps of the same novel entity converge on one row; the
// returned entity carries the winning ID.
func (s *Store) UpsertEntity(ctx context.Context, entity *types.Entity) (*types.Entity, error) {
	if entity.NormalizedName == "" || entity.Type == "" {
		return nil, fmt.Errorf("%w: entity type and normalized name are required", storage.ErrInvalidInput)
	}

	if entity.ID == "" {
		entity.ID = fmt.Sprintf("ent:%s:%s", entity.Type, uuid.NewString())
	}

	now := time.Now().UTC()
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = now
	}
	if entity.FirstSeen.IsZero() {
		entity.FirstSeen = now
	}
	entity.UpdatedAt = now
	entity.LastSeen = now

	aliasesJSON, err := json.Marshal(entity.Aliases)
	if err != nil {
		return nil, fmt.Errorf("sqlite: marshal aliases: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (
			id, name, normalized_name, type, description, aliases, domain_key,
			embedding, embedding_model, embedding_dimension,
			memory_count, first_seen, last_seen, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(type, normalized_name) DO UPDATE SET
			name        = excluded.name,
			description = CASE WHEN excluded.description != '' THEN excluded.description ELSE entities.description END,
			domain_key  = CASE WHEN excluded.domain_key != '' THEN excluded.domain_key ELSE entities.domain_key END,
			last_seen   = excluded.last_seen,
			updated_at  = excluded.updated_at
	`,
		entity.ID, entity.Name, entity.NormalizedName, entity.Type,
		entity.Description, string(aliasesJSON), entity.DomainKey,
		serializeEmbedding(entity.Embedding), entity.EmbeddingModel, entity.EmbeddingDimension,
		entity.MemoryCount, entity.FirstSeen, entity.LastSeen, entity.CreatedAt, entity.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: upsert entity: %w", err)
	}

	// Re-read so a lost insert race still returns the canonical row.
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entitySelectColumns+` FROM entities WHERE type = ? AND normalized_name = ?`,
		entity.Type, entity.NormalizedName)
	stored, err := scanEntity(row)
	if err != nil {
		return nil, fmt.Errorf("sqlite: read back upserted entity: %w", err)
	}

	return stored, nil
}

// UpsertAlias inserts or updates an alias keyed on (user_id, normalized_mention).
func (s *Store) UpsertAlias(ctx context.Context, alias *types.Alias) error {
	if alias.UserID == "" || alias.NormalizedMention == "" || alias.EntityID == "" {
		return fmt.Errorf("%w: user ID, mention, and entity ID are required", storage.ErrInvalidInput)
	}

	now := time.Now().UTC()
	if alias.CreatedAt.IsZero() {
		alias.CreatedAt = now
	}
	alias.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO aliases (user_id, mention, normalized_mention, entity_id, confirmations, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, normalized_mention) DO UPDATE SET
			entity_id     = excluded.entity_id,
			confirmations = CASE WHEN aliases.entity_id = excluded.entity_id
				THEN MAX(aliases.confirmations, excluded.confirmations)
				ELSE excluded.confirmations END,
			updated_at    = excluded.updated_at
	`, alias.UserID, alias.Mention, alias.NormalizedMention, alias.EntityID,
		alias.Confirmations, alias.CreatedAt, alias.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: upsert alias: %w", err)
	}

	return nil
}

// ---------------------------------------------------------------------------
// MemoryStore
// ---------------------------------------------------------------------------

const memorySelectColumns = `
	id, content, user_id, session_id, memory_type, source, entity_ids,
	embedding, embedding_model, embedding_dimension,
	importance, confidence, access_count,
	created_at, updated_at, last_accessed_at, superseded_by_id, decay_flagged_at
`

// Store creates or updates a memory (upsert semantics on ID).
func (s *Store) Store(ctx context.Context, memory *types.Memory) error {
	if memory.Content == "" {
		return fmt.Errorf("%w: memory content is required", storage.ErrInvalidInput)
	}

	if memory.ID == "" {
		memory.ID = "mem:" + uuid.NewString()
	}
	now := time.Now().UTC()
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = now
	}
	memory.UpdatedAt = now
	if memory.Type == "" {
		memory.Type = types.MemoryTypeSemantic
	}
	if memory.Source == "" {
		memory.Source = types.SourceMemory
	}

	entityIDsJSON, err := json.Marshal(memory.EntityIDs)
	if err != nil {
		return fmt.Errorf("sqlite: marshal entity ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (
			id, content, user_id, session_id, memory_type, source, entity_ids,
			embedding, embedding_model, embedding_dimension,
			importance, confidence, access_count,
			created_at, updated_at, last_accessed_at, superseded_by_id, decay_flagged_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content             = excluded.content,
			entity_ids          = excluded.entity_ids,
			embedding           = excluded.embedding,
			embedding_model     = excluded.embedding_model,
			embedding_dimension = excluded.embedding_dimension,
			importance          = excluded.importance,
			confidence          = excluded.confidence,
			updated_at          = excluded.updated_at
	`,
		memory.ID, memory.Content, memory.UserID, memory.SessionID,
		string(memory.Type), string(memory.Source), string(entityIDsJSON),
		serializeEmbedding(memory.Embedding), memory.EmbeddingModel, memory.EmbeddingDimension,
		memory.Importance, memory.Confidence, memory.AccessCount,
		memory.CreatedAt, memory.UpdatedAt, memory.LastAccessedAt,
		memory.SupersededByID, memory.DecayFlaggedAt)
	if err != nil {
		return fmt.Errorf("sqlite: store memory: %w", err)
	}

	return nil
}

// Get retrieves a memory by ID.
func (s *Store) Get(ctx context.Context, id string) (*types.Memory, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+memorySelectColumns+` FROM memories WHERE id = ?`, id)

	memory, err := scanMemory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: get memory: %w", err)
	}

	return memory, nil
}

// VectorSearch computes cosine similarity in Go over all stored embeddings
// and returns the top k matches, ordered by similarity descending with a
// stable memory-ID tie-break.
func (s *Store) VectorSearch(ctx context.Context, embedding []float32, k int) ([]storage.VectorMatch, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: query embedding is required", storage.ErrInvalidInput)
	}
	if k <= 0 {
		k = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memorySelectColumns+` FROM memories WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: vector search query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []storage.VectorMatch
	for rows.Next() {
		memory, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: vector search scan: %w", err)
		}
		if len(memory.Embedding) != len(embedding) {
			continue // different model/dimension, not comparable
		}
		matches = append(matches, storage.VectorMatch{
			Memory:     *memory,
			Similarity: cosineSimilarity(embedding, memory.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: vector search rows: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Memory.ID < matches[j].Memory.ID
	})

	if len(matches) > k {
		matches = matches[:k]
	}

	return matches, nil
}

// MarkSuperseded flags the losing memory of a reconciliation for accelerated
// decay. The row is updated in place but never deleted: the forward pointer
// preserves the evolution chain for audit.
func (s *Store) MarkSuperseded(ctx context.Context, id, supersededByID string, decayPenalty float64) error {
	if id == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}
	if decayPenalty <= 0 || decayPenalty > 1 {
		return fmt.Errorf("%w: decay penalty %.4f outside (0,1]", storage.ErrInvalidInput, decayPenalty)
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE memories
		SET superseded_by_id = ?,
		    importance       = importance * ?,
		    decay_flagged_at = ?,
		    updated_at       = ?
		WHERE id = ?
	`, supersededByID, decayPenalty, now, now, id)
	if err != nil {
		return fmt.Errorf("sqlite: mark superseded: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: mark superseded rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// IncrementAccessCount atomically bumps access_count and last_accessed_at.
func (s *Store) IncrementAccessCount(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE memories
		SET access_count = access_count + 1, last_accessed_at = ?
		WHERE id = ?
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: increment access count: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: increment access count rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// ---------------------------------------------------------------------------
// DomainStore
// ---------------------------------------------------------------------------

// FindDomainRecord looks up a domain database row by normalized name.
func (s *Store) FindDomainRecord(ctx context.Context, normalizedName string) (*storage.DomainRecord, error) {
	if normalizedName == "" {
		return nil, fmt.Errorf("%w: normalized name is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT external_id, name, normalized_name, entity_type
		FROM domain_records
		WHERE normalized_name = ?
		LIMIT 1
	`, normalizedName)

	var record storage.DomainRecord
	err := row.Scan(&record.ExternalID, &record.Name, &record.NormalizedName, &record.EntityType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: find domain record: %w", err)
	}

	return &record, nil
}

// QueryDomainFacts returns the structured facts recorded for a domain row.
func (s *Store) QueryDomainFacts(ctx context.Context, entityType, externalID string) ([]types.DomainFact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id, entity_type, topic, value, observed_at
		FROM domain_facts
		WHERE entity_type = ? AND external_id = ?
		ORDER BY topic
	`, entityType, externalID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query domain facts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var facts []types.DomainFact
	for rows.Next() {
		var fact types.DomainFact
		if err := rows.Scan(&fact.EntityID, &fact.EntityType, &fact.Topic, &fact.Value, &fact.ObservedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan domain fact: %w", err)
		}
		facts = append(facts, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: domain fact rows: %w", err)
	}

	return facts, nil
}

// SeedDomainRecord inserts or replaces a domain database row. Intended for
// tests and local setups where the domain database is colocated.
func (s *Store) SeedDomainRecord(ctx context.Context, record storage.DomainRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO domain_records (external_id, name, normalized_name, entity_type)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			name            = excluded.name,
			normalized_name = excluded.normalized_name,
			entity_type     = excluded.entity_type
	`, record.ExternalID, record.Name, record.NormalizedName, record.EntityType)
	if err != nil {
		return fmt.Errorf("sqlite: seed domain record: %w", err)
	}
	return nil
}

// SeedDomainFact inserts or replaces a domain fact row.
func (s *Store) SeedDomainFact(ctx context.Context, fact types.DomainFact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO domain_facts (external_id, entity_type, topic, value, observed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(external_id, topic) DO UPDATE SET
			value       = excluded.value,
			observed_at = excluded.observed_at
	`, fact.EntityID, fact.EntityType, fact.Topic, fact.Value, fact.ObservedAt)
	if err != nil {
		return fmt.Errorf("sqlite: seed domain fact: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Row scanning and embedding serialization
// ---------------------------------------------------------------------------

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*types.Entity, error) {
	var entity types.Entity
	var aliasesJSON string
	var embeddingBlob []byte
	var firstSeen, lastSeen sql.NullTime

	err := row.Scan(
		&entity.ID, &entity.Name, &entity.NormalizedName, &entity.Type,
		&entity.Description, &aliasesJSON, &entity.DomainKey,
		&embeddingBlob, &entity.EmbeddingModel, &entity.EmbeddingDimension,
		&entity.MemoryCount, &firstSeen, &lastSeen, &entity.CreatedAt, &entity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if aliasesJSON != "" && aliasesJSON != "[]" {
		if err := json.Unmarshal([]byte(aliasesJSON), &entity.Aliases); err != nil {
			return nil, fmt.Errorf("unmarshal aliases: %w", err)
		}
	}
	entity.Embedding = deserializeEmbedding(embeddingBlob)
	if firstSeen.Valid {
		entity.FirstSeen = firstSeen.Time
	}
	if lastSeen.Valid {
		entity.LastSeen = lastSeen.Time
	}

	return &entity, nil
}

func scanMemory(row rowScanner) (*types.Memory, error) {
	var memory types.Memory
	var entityIDsJSON, memoryType, source string
	var embeddingBlob []byte
	var lastAccessedAt, decayFlaggedAt sql.NullTime

	err := row.Scan(
		&memory.ID, &memory.Content, &memory.UserID, &memory.SessionID,
		&memoryType, &source, &entityIDsJSON,
		&embeddingBlob, &memory.EmbeddingModel, &memory.EmbeddingDimension,
		&memory.Importance, &memory.Confidence, &memory.AccessCount,
		&memory.CreatedAt, &memory.UpdatedAt, &lastAccessedAt,
		&memory.SupersededByID, &decayFlaggedAt,
	)
	if err != nil {
		return nil, err
	}

	memory.Type = types.MemoryType(memoryType)
	memory.Source = types.FactSource(source)
	if entityIDsJSON != "" && entityIDsJSON != "[]" {
		if err := json.Unmarshal([]byte(entityIDsJSON), &memory.EntityIDs); err != nil {
			return nil, fmt.Errorf("unmarshal entity ids: %w", err)
		}
	}
	memory.Embedding = deserializeEmbedding(embeddingBlob)
	if lastAccessedAt.Valid {
		t := lastAccessedAt.Time
		memory.LastAccessedAt = &t
	}
	if decayFlaggedAt.Valid {
		t := decayFlaggedAt.Time
		memory.DecayFlaggedAt = &t
	}

	return &memory, nil
}

// serializeEmbedding converts a float32 slice to a little-endian BLOB.
// Returns nil for an empty embedding so the column stays NULL.
func serializeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeEmbedding converts a little-endian BLOB back to a float32 slice.
func deserializeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	embedding := make([]float32, len(buf)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return embedding
}

// cosineSimilarity computes the cosine of the angle between two vectors of
// equal length. Zero vectors yield 0.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
