package engine

import (
	"time"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/resolver"
	"github.com/scrypster/recall/pkg/types"
)

// QueryInput is one user turn handed to the pipeline.
type QueryInput struct {
	// UserID scopes aliases and memory ownership.
	UserID string `json:"user_id"`

	// Text is the raw user input.
	Text string `json:"text"`

	// SessionID groups turns for the temporal coherence signal.
	SessionID string `json:"session_id,omitempty"`

	// Mentions are pre-extracted entity references. Empty means the whole
	// text is treated as a single mention.
	Mentions []types.Mention `json:"mentions,omitempty"`

	// RecentTurns is the recent conversation, oldest first, consumed by the
	// coreference stage.
	RecentTurns []string `json:"recent_turns,omitempty"`

	// RecentEntityIDs are entities resolved in recent turns; they form the
	// candidate set for pronoun resolution.
	RecentEntityIDs []string `json:"recent_entity_ids,omitempty"`

	// DomainFacts are fresh structured facts to reconcile retrieved memory
	// against. Callers that skip reconciliation leave this empty.
	DomainFacts []types.DomainFact `json:"domain_facts,omitempty"`

	// Now anchors all time-dependent scoring. Zero means time.Now.
	Now time.Time `json:"-"`
}

// MemoryProvenance explains why one memory ranked where it did.
type MemoryProvenance struct {
	MemoryID string        `json:"memory_id"`
	Signals  types.Signals `json:"signals"`
	Score    float64       `json:"score"`
}

// Provenance makes every answer explainable: the exact signal values and the
// weight set that combined them, plus the method behind each resolution.
type Provenance struct {
	Memories []MemoryProvenance                  `json:"memories,omitempty"`
	Weights  config.Weights                      `json:"weights"`
	Methods  map[string]types.ResolutionMethod   `json:"resolution_methods,omitempty"`
}

// NewMemory builds a memory from a user turn and its resolved entities,
// with neutral starting importance. Inference never grants certainty, so
// the starting confidence sits at the inference ceiling, not 1.0.
func NewMemory(userID, sessionID, content string, resolved []types.ResolvedEntity) *types.Memory {
	memory := &types.Memory{
		Content:    content,
		UserID:     userID,
		SessionID:  sessionID,
		Type:       types.MemoryTypeSemantic,
		Source:     types.SourceMemory,
		Importance: 0.5,
		Confidence: types.InferenceConfidenceCeiling,
	}
	for _, entity := range resolved {
		memory.EntityIDs = append(memory.EntityIDs, entity.EntityID)
	}
	return memory
}

// QueryResult is the pipeline's answer for one turn.
type QueryResult struct {
	// ResolvedEntities are the mentions resolved to canonical entities.
	ResolvedEntities []types.ResolvedEntity `json:"resolved_entities,omitempty"`

	// Unresolved lists mention texts every cascade stage declined; they pass
	// through as free text.
	Unresolved []string `json:"unresolved,omitempty"`

	// DisambiguationRequired is true when a mention had near-tied candidates.
	// When set, no retrieval or reconciliation was performed.
	DisambiguationRequired bool `json:"disambiguation_required,omitempty"`

	// Disambiguations carries the ambiguous mentions with their tied
	// candidates so the caller can ask the user.
	Disambiguations []resolver.Resolution `json:"disambiguations,omitempty"`

	// Memories are the ranked retrieval results.
	Memories []types.MemoryCandidate `json:"memories,omitempty"`

	// Conflicts are the reconciliation outcomes for this turn.
	Conflicts []types.ConflictRecord `json:"conflicts,omitempty"`

	// Degraded is true when the deployment has no embedding provider, so
	// retrieval and reconciliation were skipped and the answer carries
	// resolved entities only.
	Degraded bool `json:"degraded,omitempty"`

	// Provenance explains the ranking and resolution decisions.
	Provenance Provenance `json:"provenance"`
}
