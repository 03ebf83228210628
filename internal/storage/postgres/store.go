// Package postgres implements the Recall storage interfaces on PostgreSQL.
//
// Fuzzy name search is pushed down into pg_trgm's similarity() and vector
// search into pgvector's cosine distance operator, so both scale past the
// in-process scans the SQLite backend performs.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Ensure *Store implements the full storage surface at compile time.
var _ storage.Store = (*Store)(nil)

// Store implements storage.EntityStore, storage.MemoryStore, and
// storage.DomainStore on PostgreSQL.
type Store struct {
	db *sql.DB

	// pgvectorAvailable records whether the vector extension installed;
	// without it VectorSearch returns an empty result rather than failing.
	pgvectorAvailable bool

	// embeddingDim is the declared dimension of the embedding columns.
	embeddingDim int
}

// Options configures the Postgres store.
type Options struct {
	// EmbeddingDim is the dimension of stored embeddings (default: 768).
	EmbeddingDim int
}

// Open connects to Postgres and applies the schema. Extensions (vector,
// pg_trgm) are created when the role has permission; vector search degrades
// gracefully when pgvector is unavailable.
func Open(dsn string, opts Options) (*Store, error) {
	if opts.EmbeddingDim <= 0 {
		opts.EmbeddingDim = 768
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{db: db, embeddingDim: opts.EmbeddingDim}
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

// applySchema creates extensions, tables, and indexes.
func (s *Store) applySchema() error {
	// pg_trgm backs FuzzySearch; it ships with contrib and is required.
	if _, err := s.db.Exec(`CREATE EXTENSION IF NOT EXISTS pg_trgm`); err != nil {
		return fmt.Errorf("postgres: create pg_trgm extension: %w", err)
	}

	// pgvector is optional: without it we keep embeddings as bytea and
	// VectorSearch returns no candidates.
	if _, err := s.db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`); err == nil {
		s.pgvectorAvailable = true
	}

	embeddingColumn := "embedding bytea"
	if s.pgvectorAvailable {
		embeddingColumn = fmt.Sprintf("embedding vector(%d)", s.embeddingDim)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			id                  TEXT PRIMARY KEY,
			name                TEXT NOT NULL,
			normalized_name     TEXT NOT NULL,
			type                TEXT NOT NULL,
			description         TEXT NOT NULL DEFAULT '',
			aliases             JSONB NOT NULL DEFAULT '[]',
			domain_key          TEXT NOT NULL DEFAULT '',
			embedding_model     TEXT NOT NULL DEFAULT '',
			embedding_dimension INTEGER NOT NULL DEFAULT 0,
			memory_count        INTEGER NOT NULL DEFAULT 0,
			first_seen          TIMESTAMPTZ,
			last_seen           TIMESTAMPTZ,
			created_at          TIMESTAMPTZ NOT NULL,
			updated_at          TIMESTAMPTZ NOT NULL,
			UNIQUE (type, normalized_name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_normalized_name ON entities (normalized_name)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_name_trgm ON entities USING gin (normalized_name gin_trgm_ops)`,
		`CREATE TABLE IF NOT EXISTS aliases (
			user_id            TEXT NOT NULL,
			mention            TEXT NOT NULL,
			normalized_mention TEXT NOT NULL,
			entity_id          TEXT NOT NULL,
			confirmations      INTEGER NOT NULL DEFAULT 0,
			created_at         TIMESTAMPTZ NOT NULL,
			updated_at         TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, normalized_mention)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memories (
			id                  TEXT PRIMARY KEY,
			content             TEXT NOT NULL,
			user_id             TEXT NOT NULL DEFAULT '',
			session_id          TEXT NOT NULL DEFAULT '',
			memory_type         TEXT NOT NULL DEFAULT 'semantic',
			source              TEXT NOT NULL DEFAULT 'memory',
			entity_ids          JSONB NOT NULL DEFAULT '[]',
			%s,
			embedding_model     TEXT NOT NULL DEFAULT '',
			embedding_dimension INTEGER NOT NULL DEFAULT 0,
			importance          DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			confidence          DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			access_count        INTEGER NOT NULL DEFAULT 0,
			created_at          TIMESTAMPTZ NOT NULL,
			updated_at          TIMESTAMPTZ NOT NULL,
			last_accessed_at    TIMESTAMPTZ,
			superseded_by_id    TEXT NOT NULL DEFAULT '',
			decay_flagged_at    TIMESTAMPTZ
		)`, embeddingColumn),
		`CREATE TABLE IF NOT EXISTS domain_records (
			external_id     TEXT PRIMARY KEY,
			name            TEXT NOT NULL,
			normalized_name TEXT NOT NULL,
			entity_type     TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_domain_records_normalized_name ON domain_records (normalized_name)`,
		`CREATE TABLE IF NOT EXISTS domain_facts (
			external_id TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			topic       TEXT NOT NULL,
			value       TEXT NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (external_id, topic)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("postgres: apply schema: %w", err)
		}
	}

	if s.pgvectorAvailable {
		// ivfflat needs rows to be useful but creating it up front is harmless.
		_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_memories_embedding_cosine
			ON memories USING ivfflat (embedding vector_cosine_ops)`)
	}

	return nil
}

// ---------------------------------------------------------------------------
// EntityStore
// ---------------------------------------------------------------------------

const entitySelectColumns = `
	id, name, normalized_name, type, description, aliases, domain_key,
	embedding_model, embedding_dimension,
	memory_count, first_seen, last_seen, created_at, updated_at
`

// FindCanonicalByName looks up an entity by normalized canonical name.
func (s *Store) FindCanonicalByName(ctx context.Context, normalizedName string) (*types.Entity, error) {
	if normalizedName == "" {
		return nil, fmt.Errorf("%w: normalized name is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+entitySelectColumns+` FROM entities WHERE normalized_name = $1 ORDER BY id LIMIT 1`,
		normalizedName)

	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: find canonical by name: %w", err)
	}

	return entity, nil
}

// GetEntity retrieves an entity by ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+entitySelectColumns+` FROM entities WHERE id = $1`, id)

	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get entity: %w", err)
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
		WHERE user_id = $1 AND normalized_mention = $2
	`, userID, normalizedMention)

	var alias types.Alias
	err := row.Scan(&alias.UserID, &alias.Mention, &alias.NormalizedMention,
		&alias.EntityID, &alias.Confirmations, &alias.CreatedAt, &alias.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, storage.ErrNotFound
		}
		return nil, nil, fmt.Errorf("postgres: find alias: %w", err)
	}

	entity, err := s.GetEntity(ctx, alias.EntityID)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: alias target %s: %w", alias.EntityID, err)
	}

	return &alias, entity, nil
}

// FuzzySearch ranks canonical names by pg_trgm similarity. Ordering is by
// similarity descending then entity ID ascending so ranking is deterministic.
func (s *Store) FuzzySearch(ctx context.Context, name string, threshold float64, limit int) ([]storage.FuzzyMatch, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entitySelectColumns+`, similarity(normalized_name, $1) AS score
		FROM entities
		WHERE similarity(normalized_name, $1) >= $2
		ORDER BY score DESC, id ASC
		LIMIT $3
	`, name, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: fuzzy search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []storage.FuzzyMatch
	for rows.Next() {
		var entity types.Entity
		var aliasesJSON []byte
		var firstSeen, lastSeen sql.NullTime
		var score float64

		err := rows.Scan(
			&entity.ID, &entity.Name, &entity.NormalizedName, &entity.Type,
			&entity.Description, &aliasesJSON, &entity.DomainKey,
			&entity.EmbeddingModel, &entity.EmbeddingDimension,
			&entity.MemoryCount, &firstSeen, &lastSeen,
			&entity.CreatedAt, &entity.UpdatedAt, &score,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: fuzzy search scan: %w", err)
		}
		if len(aliasesJSON) > 0 {
			if err := json.Unmarshal(aliasesJSON, &entity.Aliases); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal aliases: %w", err)
			}
		}
		if firstSeen.Valid {
			entity.FirstSeen = firstSeen.Time
		}
		if lastSeen.Valid {
			entity.LastSeen = lastSeen.Time
		}

		matches = append(matches, storage.FuzzyMatch{Entity: entity, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: fuzzy search rows: %w", err)
	}

	return matches, nil
}

// UpsertEntity inserts or updates an entity keyed on (type, normalized_name).
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
		return nil, fmt.Errorf("postgres: marshal aliases: %w", err)
	}
	if entity.Aliases == nil {
		aliasesJSON = []byte("[]")
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO entities (
			id, name, normalized_name, type, description, aliases, domain_key,
			embedding_model, embedding_dimension,
			memory_count, first_seen, last_seen, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (type, normalized_name) DO UPDATE SET
			name        = EXCLUDED.name,
			description = CASE WHEN EXCLUDED.description != '' THEN EXCLUDED.description ELSE entities.description END,
			domain_key  = CASE WHEN EXCLUDED.domain_key != '' THEN EXCLUDED.domain_key ELSE entities.domain_key END,
			last_seen   = EXCLUDED.last_seen,
			updated_at  = EXCLUDED.updated_at
		RETURNING `+entitySelectColumns,
		entity.ID, entity.Name, entity.NormalizedName, entity.Type,
		entity.Description, aliasesJSON, entity.DomainKey,
		entity.EmbeddingModel, entity.EmbeddingDimension,
		entity.MemoryCount, entity.FirstSeen, entity.LastSeen,
		entity.CreatedAt, entity.UpdatedAt)

	stored, err := scanEntity(row)
	if err != nil {
		return nil, fmt.Errorf("postgres: upsert entity: %w", err)
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
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, normalized_mention) DO UPDATE SET
			entity_id     = EXCLUDED.entity_id,
			confirmations = CASE WHEN aliases.entity_id = EXCLUDED.entity_id
				THEN GREATEST(aliases.confirmations, EXCLUDED.confirmations)
				ELSE EXCLUDED.confirmations END,
			updated_at    = EXCLUDED.updated_at
	`, alias.UserID, alias.Mention, alias.NormalizedMention, alias.EntityID,
		alias.Confirmations, alias.CreatedAt, alias.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert alias: %w", err)
	}

	return nil
}

// ---------------------------------------------------------------------------
// MemoryStore
// ---------------------------------------------------------------------------

const memorySelectColumns = `
	id, content, user_id, session_id, memory_type, source, entity_ids,
	embedding_model, embedding_dimension,
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
		return fmt.Errorf("postgres: marshal entity ids: %w", err)
	}
	if memory.EntityIDs == nil {
		entityIDsJSON = []byte("[]")
	}

	var embedding any
	if s.pgvectorAvailable && len(memory.Embedding) > 0 {
		embedding = pgvector.NewVector(memory.Embedding)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (
			id, content, user_id, session_id, memory_type, source, entity_ids,
			embedding, embedding_model, embedding_dimension,
			importance, confidence, access_count,
			created_at, updated_at, last_accessed_at, superseded_by_id, decay_flagged_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			content             = EXCLUDED.content,
			entity_ids          = EXCLUDED.entity_ids,
			embedding           = EXCLUDED.embedding,
			embedding_model     = EXCLUDED.embedding_model,
			embedding_dimension = EXCLUDED.embedding_dimension,
			importance          = EXCLUDED.importance,
			confidence          = EXCLUDED.confidence,
			updated_at          = EXCLUDED.updated_at
	`,
		memory.ID, memory.Content, memory.UserID, memory.SessionID,
		string(memory.Type), string(memory.Source), entityIDsJSON,
		embedding, memory.EmbeddingModel, memory.EmbeddingDimension,
		memory.Importance, memory.Confidence, memory.AccessCount,
		memory.CreatedAt, memory.UpdatedAt, memory.LastAccessedAt,
		memory.SupersededByID, memory.DecayFlaggedAt)
	if err != nil {
		return fmt.Errorf("postgres: store memory: %w", err)
	}

	return nil
}

// Get retrieves a memory by ID, embedding included.
func (s *Store) Get(ctx context.Context, id string) (*types.Memory, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+memorySelectColumns+`, embedding FROM memories WHERE id = $1`, id)

	var memory types.Memory
	var err error
	if s.pgvectorAvailable {
		var vec pgvector.Vector
		var vecValid bool
		err = scanMemoryFields(row, &memory, &nullableVector{vector: &vec, valid: &vecValid})
		if err == nil && vecValid {
			memory.Embedding = vec.Slice()
		}
	} else {
		var ignored []byte
		err = scanMemoryFields(row, &memory, &ignored)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get memory: %w", err)
	}

	return &memory, nil
}

// nullableVector scans a possibly-NULL pgvector column.
type nullableVector struct {
	vector *pgvector.Vector
	valid  *bool
}

func (n *nullableVector) Scan(src any) error {
	if src == nil {
		*n.valid = false
		return nil
	}
	*n.valid = true
	return n.vector.Scan(src)
}

// VectorSearch orders memories by pgvector cosine distance and reports
// similarity as 1 - distance. Without pgvector it returns no candidates,
// which callers treat as an empty (non-error) result.
func (s *Store) VectorSearch(ctx context.Context, embedding []float32, k int) ([]storage.VectorMatch, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: query embedding is required", storage.ErrInvalidInput)
	}
	if k <= 0 {
		k = 100
	}
	if !s.pgvectorAvailable {
		return nil, nil
	}

	vec := pgvector.NewVector(embedding)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memorySelectColumns+`, 1 - (embedding <=> $1) AS similarity
		FROM memories
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1, id ASC
		LIMIT $2
	`, vec, k)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []storage.VectorMatch
	for rows.Next() {
		match, err := scanVectorMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: vector search scan: %w", err)
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: vector search rows: %w", err)
	}

	return matches, nil
}

// MarkSuperseded flags the losing memory of a reconciliation for accelerated
// decay without deleting it.
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
		SET superseded_by_id = $1,
		    importance       = importance * $2,
		    decay_flagged_at = $3,
		    updated_at       = $3
		WHERE id = $4
	`, supersededByID, decayPenalty, now, id)
	if err != nil {
		return fmt.Errorf("postgres: mark superseded: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: mark superseded rows affected: %w", err)
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
		SET access_count = access_count + 1, last_accessed_at = $1
		WHERE id = $2
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("postgres: increment access count: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: increment access count rows affected: %w", err)
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
		WHERE normalized_name = $1
		LIMIT 1
	`, normalizedName)

	var record storage.DomainRecord
	err := row.Scan(&record.ExternalID, &record.Name, &record.NormalizedName, &record.EntityType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: find domain record: %w", err)
	}

	return &record, nil
}

// QueryDomainFacts returns the structured facts recorded for a domain row.
func (s *Store) QueryDomainFacts(ctx context.Context, entityType, externalID string) ([]types.DomainFact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id, entity_type, topic, value, observed_at
		FROM domain_facts
		WHERE entity_type = $1 AND external_id = $2
		ORDER BY topic
	`, entityType, externalID)
	if err != nil {
		return nil, fmt.Errorf("postgres: query domain facts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var facts []types.DomainFact
	for rows.Next() {
		var fact types.DomainFact
		if err := rows.Scan(&fact.EntityID, &fact.EntityType, &fact.Topic, &fact.Value, &fact.ObservedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan domain fact: %w", err)
		}
		facts = append(facts, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: domain fact rows: %w", err)
	}

	return facts, nil
}

// ---------------------------------------------------------------------------
// Row scanning
// ---------------------------------------------------------------------------

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*types.Entity, error) {
	var entity types.Entity
	var aliasesJSON []byte
	var firstSeen, lastSeen sql.NullTime

	err := row.Scan(
		&entity.ID, &entity.Name, &entity.NormalizedName, &entity.Type,
		&entity.Description, &aliasesJSON, &entity.DomainKey,
		&entity.EmbeddingModel, &entity.EmbeddingDimension,
		&entity.MemoryCount, &firstSeen, &lastSeen,
		&entity.CreatedAt, &entity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(aliasesJSON) > 0 {
		if err := json.Unmarshal(aliasesJSON, &entity.Aliases); err != nil {
			return nil, fmt.Errorf("unmarshal aliases: %w", err)
		}
	}
	if firstSeen.Valid {
		entity.FirstSeen = firstSeen.Time
	}
	if lastSeen.Valid {
		entity.LastSeen = lastSeen.Time
	}

	return &entity, nil
}

func scanMemoryFields(row rowScanner, memory *types.Memory, extra ...any) error {
	var entityIDsJSON []byte
	var memoryType, source string
	var lastAccessedAt, decayFlaggedAt sql.NullTime

	dest := []any{
		&memory.ID, &memory.Content, &memory.UserID, &memory.SessionID,
		&memoryType, &source, &entityIDsJSON,
		&memory.EmbeddingModel, &memory.EmbeddingDimension,
		&memory.Importance, &memory.Confidence, &memory.AccessCount,
		&memory.CreatedAt, &memory.UpdatedAt, &lastAccessedAt,
		&memory.SupersededByID, &decayFlaggedAt,
	}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		return err
	}

	memory.Type = types.MemoryType(memoryType)
	memory.Source = types.FactSource(source)
	if len(entityIDsJSON) > 0 {
		if err := json.Unmarshal(entityIDsJSON, &memory.EntityIDs); err != nil {
			return fmt.Errorf("unmarshal entity ids: %w", err)
		}
	}
	if lastAccessedAt.Valid {
		t := lastAccessedAt.Time
		memory.LastAccessedAt = &t
	}
	if decayFlaggedAt.Valid {
		t := decayFlaggedAt.Time
		memory.DecayFlaggedAt = &t
	}

	return nil
}

func scanVectorMatch(row rowScanner) (storage.VectorMatch, error) {
	var match storage.VectorMatch
	if err := scanMemoryFields(row, &match.Memory, &match.Similarity); err != nil {
		return match, err
	}
	return match, nil
}

// pqErrorCode extracts the Postgres error code, for callers that want to
// branch on constraint violations.
func pqErrorCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
