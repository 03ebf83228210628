// Package types defines the core data structures for the Recall memory layer:
// canonical entities, resolved mentions, memory candidates, and conflict
// records exchanged between the resolver, retriever, and reconciler.
package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvariantViolation indicates that a confidence or method invariant was
// broken. It is fatal: callers must abort the request rather than clamp the
// offending value.
var ErrInvariantViolation = errors.New("invariant violation")

// InferenceConfidenceCeiling is the maximum confidence the system may assert
// for any fact derived from language inference. Only exact structural matches
// are permitted to reach 1.0.
const InferenceConfidenceCeiling = 0.95

// ResolutionMethod identifies the cascade stage that produced a resolution.
type ResolutionMethod string

const (
	// MethodExact is a case/whitespace-normalized match against canonical names.
	MethodExact ResolutionMethod = "exact"

	// MethodAlias is a hit in the per-user confirmed alias table.
	MethodAlias ResolutionMethod = "alias"

	// MethodFuzzy is a trigram-similarity match against canonical names.
	MethodFuzzy ResolutionMethod = "fuzzy"

	// MethodLLMCoreference is a referent supplied by the LLM collaborator.
	MethodLLMCoreference ResolutionMethod = "llm_coreference"

	// MethodDomainBootstrap is a canonical entity created from a domain
	// database row that matched the mention.
	MethodDomainBootstrap ResolutionMethod = "domain_bootstrap"
)

// ValidResolutionMethods lists all resolution methods for validation.
var ValidResolutionMethods = []ResolutionMethod{
	MethodExact,
	MethodAlias,
	MethodFuzzy,
	MethodLLMCoreference,
	MethodDomainBootstrap,
}

// confidenceBand is the closed-open (or closed-closed) confidence interval a
// resolution method is allowed to grant.
type confidenceBand struct {
	min          float64
	max          float64
	maxExclusive bool
}

// methodBands maps each resolution method to its permitted confidence band.
// exact=1.0, alias∈[0.85,1.0], fuzzy∈[0.6,0.85), llm∈[0.5,0.95],
// domain_bootstrap∈[0.5,0.9].
var methodBands = map[ResolutionMethod]confidenceBand{
	MethodExact:           {min: 1.0, max: 1.0},
	MethodAlias:           {min: 0.85, max: 1.0},
	MethodFuzzy:           {min: 0.6, max: 0.85, maxExclusive: true},
	MethodLLMCoreference:  {min: 0.5, max: InferenceConfidenceCeiling},
	MethodDomainBootstrap: {min: 0.5, max: 0.9},
}

// ConfidenceBand returns the permitted [min, max] confidence for a method.
// The second return value reports whether the upper bound is exclusive.
func ConfidenceBand(method ResolutionMethod) (min, max float64, maxExclusive bool, err error) {
	band, ok := methodBands[method]
	if !ok {
		return 0, 0, false, fmt.Errorf("%w: unknown resolution method %q", ErrInvariantViolation, method)
	}
	return band.min, band.max, band.maxExclusive, nil
}

// Mention is a free-text entity reference inside user input. It is ephemeral:
// created per request and discarded once resolved.
type Mention struct {
	// Text is the raw mention substring.
	Text string `json:"text"`

	// Start is the byte offset of the mention within the input, inclusive.
	Start int `json:"start"`

	// End is the byte offset of the mention within the input, exclusive.
	End int `json:"end"`
}

// ResolvedEntity is the outcome of resolving a single mention. It is
// immutable once produced and owned by the request that created it.
type ResolvedEntity struct {
	// MentionText is the raw mention this resolution answers.
	MentionText string `json:"mention_text"`

	// EntityID is the canonical entity identifier.
	EntityID string `json:"entity_id"`

	// CanonicalName is the canonical display name of the entity.
	CanonicalName string `json:"canonical_name"`

	// EntityType classifies the entity (person, organization, ...).
	EntityType string `json:"entity_type"`

	// Confidence is a calibrated probability in [0,1], constrained to the
	// band of the method that produced it.
	Confidence float64 `json:"confidence"`

	// Method identifies the cascade stage that produced this resolution.
	Method ResolutionMethod `json:"method"`
}

// Validate checks the method/confidence invariants. It returns an error
// wrapping ErrInvariantViolation when the confidence falls outside the band
// granted by the method; values are never clamped.
func (r *ResolvedEntity) Validate() error {
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.4f outside [0,1]", ErrInvariantViolation, r.Confidence)
	}

	min, max, maxExclusive, err := ConfidenceBand(r.Method)
	if err != nil {
		return err
	}

	if r.Confidence < min {
		return fmt.Errorf("%w: method %s requires confidence >= %.2f, got %.4f",
			ErrInvariantViolation, r.Method, min, r.Confidence)
	}
	if maxExclusive {
		if r.Confidence >= max {
			return fmt.Errorf("%w: method %s requires confidence < %.2f, got %.4f",
				ErrInvariantViolation, r.Method, max, r.Confidence)
		}
	} else if r.Confidence > max {
		return fmt.Errorf("%w: method %s requires confidence <= %.2f, got %.4f",
			ErrInvariantViolation, r.Method, max, r.Confidence)
	}

	// Epistemic humility: nothing inferred from language may reach certainty.
	if r.Method != MethodExact && r.Confidence > InferenceConfidenceCeiling {
		return fmt.Errorf("%w: method %s exceeds inference ceiling %.2f with %.4f",
			ErrInvariantViolation, r.Method, InferenceConfidenceCeiling, r.Confidence)
	}

	return nil
}

// Entity represents a canonical business entity.
type Entity struct {
	// Core identification fields
	ID             string    `json:"id"`              // Unique identifier (format: ent:type:uuid)
	Name           string    `json:"name"`            // Canonical display name
	NormalizedName string    `json:"normalized_name"` // Lowercased, whitespace-collapsed name for lookups
	Type           string    `json:"type"`            // Entity type (see EntityType constants)
	Description    string    `json:"description,omitempty"`
	Aliases        []string  `json:"aliases,omitempty"` // Known alternative surface forms
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// DomainKey links a bootstrapped entity to the external structured
	// database row it was created from. Empty for organically created entities.
	DomainKey string `json:"domain_key,omitempty"`

	// Embedding for entity similarity
	Embedding          []float32 `json:"embedding,omitempty"`
	EmbeddingModel     string    `json:"embedding_model,omitempty"`
	EmbeddingDimension int       `json:"embedding_dimension,omitempty"`

	// Statistics and provenance
	MemoryCount int       `json:"memory_count,omitempty"` // Number of memories referencing this entity
	FirstSeen   time.Time `json:"first_seen,omitempty"`
	LastSeen    time.Time `json:"last_seen,omitempty"`
}

// Alias is a previously observed mapping from a user's surface form to a
// canonical entity. Confirmations counts how many times the mapping was
// explicitly confirmed by the caller.
type Alias struct {
	UserID            string    `json:"user_id"`
	Mention           string    `json:"mention"`
	NormalizedMention string    `json:"normalized_mention"`
	EntityID          string    `json:"entity_id"`
	Confirmations     int       `json:"confirmations"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Entity type constants.
const (
	EntityTypePerson       = "person"
	EntityTypeOrganization = "organization"
	EntityTypeCustomer     = "customer"
	EntityTypeProduct      = "product"
	EntityTypeOrder        = "order"
	EntityTypeProject      = "project"
	EntityTypeLocation     = "location"
	EntityTypeConcept      = "concept"
)

// ValidEntityTypes is a slice of all valid entity types for validation.
var ValidEntityTypes = []string{
	EntityTypePerson,
	EntityTypeOrganization,
	EntityTypeCustomer,
	EntityTypeProduct,
	EntityTypeOrder,
	EntityTypeProject,
	EntityTypeLocation,
	EntityTypeConcept,
}

// IsValidEntityType checks if the given entity type is valid.
func IsValidEntityType(entityType string) bool {
	for _, validType := range ValidEntityTypes {
		if validType == entityType {
			return true
		}
	}
	return false
}
