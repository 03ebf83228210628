package types

import "time"

// ConflictType categorizes a detected disagreement between two observations.
type ConflictType string

const (
	// ConflictMemoryVsDB is a disagreement between conversational memory and
	// the external structured database.
	ConflictMemoryVsDB ConflictType = "memory_vs_db"

	// ConflictValueMismatch is a disagreement between two memory-sourced
	// observations about the same topic.
	ConflictValueMismatch ConflictType = "value_mismatch"

	// ConflictTemporal is a disagreement best explained by the observations
	// describing different points in time.
	ConflictTemporal ConflictType = "temporal"
)

// ResolutionStrategy names the policy that decided a conflict.
type ResolutionStrategy string

const (
	// StrategyTrustDB: the structured database is correspondence truth and
	// always wins regardless of confidence values.
	StrategyTrustDB ResolutionStrategy = "trust_db"

	// StrategyKeepNewest: the most recently observed fact wins.
	StrategyKeepNewest ResolutionStrategy = "keep_newest"

	// StrategyKeepHighest: the fact with higher confidence wins.
	StrategyKeepHighest ResolutionStrategy = "keep_highest"
)

// ConflictRecord describes one detected and resolved conflict. It is created
// transiently during reconciliation and returned with the response; it is
// never persisted as a standalone entity. The losing memory is flagged for
// accelerated decay, not deleted.
type ConflictRecord struct {
	Type            ConflictType       `json:"conflict_type"`
	SubjectEntityID string             `json:"subject_entity_id"`
	Topic           string             `json:"topic"`
	ExistingValue   string             `json:"existing_value"`
	NewValue        string             `json:"new_value"`
	ExistingConf    float64            `json:"existing_confidence"`
	NewConf         float64            `json:"new_confidence"`
	Strategy        ResolutionStrategy `json:"resolution_strategy"`

	// LosingMemoryID identifies the memory flagged for accelerated decay,
	// when the losing side is a stored memory.
	LosingMemoryID string `json:"losing_memory_id,omitempty"`

	// WinningSource reports which side won (memory or domain_db).
	WinningSource FactSource `json:"winning_source"`
}

// DomainFact is a structured row read from the external domain database,
// supplied to the pipeline for reconciliation against retrieved memory.
type DomainFact struct {
	EntityID   string    `json:"entity_id"`
	EntityType string    `json:"entity_type"`
	Topic      string    `json:"topic"` // Predicate-like topic, e.g. "order_status"
	Value      string    `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}
