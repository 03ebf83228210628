package types

import "time"

// MemoryType classifies the nature of a memory.
type MemoryType string

const (
	// MemoryTypeSemantic holds durable facts ("Kai Media prefers invoicing monthly").
	MemoryTypeSemantic MemoryType = "semantic"

	// MemoryTypeEpisodic holds events tied to a point in time.
	MemoryTypeEpisodic MemoryType = "episodic"

	// MemoryTypeProcedural holds how-to knowledge mined from repeated behavior.
	MemoryTypeProcedural MemoryType = "procedural"
)

// ValidMemoryTypes is a slice of all valid memory types for validation.
var ValidMemoryTypes = []MemoryType{
	MemoryTypeSemantic,
	MemoryTypeEpisodic,
	MemoryTypeProcedural,
}

// IsValidMemoryType checks if the given memory type is valid.
func IsValidMemoryType(memoryType MemoryType) bool {
	for _, validType := range ValidMemoryTypes {
		if validType == memoryType {
			return true
		}
	}
	return false
}

// FactSource identifies where an observation's authority derives from.
type FactSource string

const (
	// SourceMemory marks contextual truth: facts from conversational memory,
	// carrying calibrated sub-1.0 confidence.
	SourceMemory FactSource = "memory"

	// SourceDomainDB marks correspondence truth: facts read from the external
	// structured database, always trusted over conversational memory.
	SourceDomainDB FactSource = "domain_db"
)

// Memory represents a single stored memory unit.
type Memory struct {
	// Core identification fields
	ID        string     `json:"id"`      // Unique identifier (format: mem:uuid)
	Content   string     `json:"content"` // Raw memory content
	UserID    string     `json:"user_id"`
	SessionID string     `json:"session_id,omitempty"` // Session in which the memory was created
	Type      MemoryType `json:"memory_type"`
	Source    FactSource `json:"source"` // memory or domain_db

	// EntityIDs lists the canonical entities this memory mentions.
	EntityIDs []string `json:"entity_ids,omitempty"`

	// Embedding fields
	Embedding          []float32 `json:"embedding,omitempty"`
	EmbeddingModel     string    `json:"embedding_model,omitempty"`
	EmbeddingDimension int       `json:"embedding_dimension,omitempty"`

	// Quality signals
	Importance  float64 `json:"importance"` // Dynamic, decaying score in [0,1]
	Confidence  float64 `json:"confidence"` // Calibrated probability in [0,1]
	AccessCount int     `json:"access_count"`

	// Timestamps
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`

	// Evolution chain: append-only forward pointer set when a newer
	// observation wins reconciliation against this memory. History is never
	// mutated in place and losing memories are never deleted.
	SupersededByID string `json:"superseded_by_id,omitempty"`

	// DecayFlaggedAt records when the memory was flagged for accelerated
	// decay by the reconciler.
	DecayFlaggedAt *time.Time `json:"decay_flagged_at,omitempty"`
}

// Signals holds the independently normalized inputs to relevance scoring.
// Every field is in [0,1]; missing signals default to their neutral value.
type Signals struct {
	// SemanticSimilarity is cosine similarity between query and candidate
	// embeddings, clamped to [0,1].
	SemanticSimilarity float64 `json:"semantic_similarity"`

	// EntityOverlap is the Jaccard similarity of the entity-id sets mentioned
	// by the query and the candidate.
	EntityOverlap float64 `json:"entity_overlap"`

	// Recency decays exponentially with elapsed time since creation/last
	// access. 0 when no timestamp is available.
	Recency float64 `json:"recency"`

	// TemporalCoherence is 1.0 when query and candidate fall in the same
	// logical session or time window, else a smaller constant.
	TemporalCoherence float64 `json:"temporal_coherence"`

	// Importance is the candidate's stored importance value.
	Importance float64 `json:"importance"`
}

// MemoryCandidate is a memory under consideration for retrieval, carrying
// the signal values and derived relevance score for one specific query.
// RelevanceScore is recomputed per query because the recency and temporal
// terms are time-dependent; it is never stored independently of its inputs.
type MemoryCandidate struct {
	MemoryID       string     `json:"memory_id"`
	MemoryType     MemoryType `json:"memory_type"`
	Signals        Signals    `json:"signals"`
	Confidence     float64    `json:"confidence"`
	RelevanceScore float64    `json:"relevance_score"`
}
