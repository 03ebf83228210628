// Package llm provides the language-model collaborator for the Recall
// pipeline: embeddings for semantic search, coreference resolution for the
// cascade's inference stage, and contradiction judgement for reconciliation.
// It includes strict JSON-only prompt templates and a lenient response parser
// that tolerates the markdown wrapping some models add despite instructions.
package llm

import "context"

// TextGenerator is the interface for LLM text completion.
// All pipeline prompts use single-string completion style (not chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetEmbeddingModel() string
}

// CandidateEntity is a known entity offered to the coreference prompt as a
// possible referent.
type CandidateEntity struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
}

// Coreference is the model's verdict on what a pronoun or definite reference
// points at.
type Coreference struct {
	// Resolved is false when the model declined to pick a referent.
	Resolved bool

	// EntityID is the chosen candidate's ID; empty when not resolved.
	EntityID string

	// Confidence is the model's self-reported probability in [0,1]. Callers
	// enforce band constraints; this package only guarantees the range.
	Confidence float64
}

// CoreferenceResolver resolves pronouns and definite references against a
// candidate set using recent conversation turns as context.
type CoreferenceResolver interface {
	ResolveCoreference(ctx context.Context, mention string, recentTurns []string, candidates []CandidateEntity) (*Coreference, error)
}

// ContradictionJudge decides whether two statements about the same subject
// can both be true.
type ContradictionJudge interface {
	JudgeContradiction(ctx context.Context, existing, proposed string) (bool, error)
}

// Provider is the full collaborator surface a pipeline deployment needs.
type Provider interface {
	EmbeddingGenerator
	CoreferenceResolver
	ContradictionJudge
	HealthCheck(ctx context.Context) error
}
