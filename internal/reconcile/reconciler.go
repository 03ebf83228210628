// Package reconcile detects and resolves conflicts between observations
// that claim to describe the same fact. Detection requires three independent
// conditions to hold at once, so disagreement is only declared when both
// structural evidence and a language-level contradiction judgement agree.
// Losing memories are flagged for accelerated decay, never deleted.
package reconcile

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/retrieval"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Observation is one side of a potential conflict: either a stored memory or
// a fresh fact from the domain database, projected into a common shape.
type Observation struct {
	// Source is where the observation's authority derives from.
	Source types.FactSource

	// MemoryID is set when the observation is a stored memory.
	MemoryID string

	// EntityIDs are the canonical entities the observation is about.
	EntityIDs []string

	// Topic is the predicate-like subject of the claim, e.g. "order_status".
	Topic string

	// Value is the claimed fact as text.
	Value string

	// Confidence is the calibrated probability in [0,1]. Domain database
	// facts carry 1.0 by convention but win on source, not on confidence.
	Confidence float64

	// Embedding is the observation's vector, used for the similarity gate.
	Embedding []float32

	// ObservedAt anchors the keep_newest policy.
	ObservedAt time.Time
}

// FromMemory projects a stored memory into an Observation.
func FromMemory(m *types.Memory) Observation {
	observedAt := m.CreatedAt
	if m.UpdatedAt.After(observedAt) {
		observedAt = m.UpdatedAt
	}
	return Observation{
		Source:     types.SourceMemory,
		MemoryID:   m.ID,
		EntityIDs:  m.EntityIDs,
		Topic:      "",
		Value:      m.Content,
		Confidence: m.Confidence,
		Embedding:  m.Embedding,
		ObservedAt: observedAt,
	}
}

// FromDomainFact projects a domain database fact into an Observation. The
// embedding is supplied by the caller since the domain database stores none.
func FromDomainFact(f types.DomainFact, embedding []float32) Observation {
	return Observation{
		Source:     types.SourceDomainDB,
		EntityIDs:  []string{f.EntityID},
		Topic:      f.Topic,
		Value:      f.Value,
		Confidence: 1.0,
		Embedding:  embedding,
		ObservedAt: f.ObservedAt,
	}
}

// Reconciler detects conflicts between observation pairs and applies the
// resolution policy. All thresholds come from configuration.
type Reconciler struct {
	memories storage.MemoryStore
	judge    llm.ContradictionJudge
	cfg      config.ReconcileConfig
}

// New constructs a Reconciler. The judge may be nil; without it the third
// detection condition can never hold and no conflicts are declared.
func New(memories storage.MemoryStore, judge llm.ContradictionJudge, cfg config.ReconcileConfig) *Reconciler {
	return &Reconciler{memories: memories, judge: judge, cfg: cfg}
}

// Detect decides whether two observations conflict. All three conditions
// must hold: entity overlap at or above the threshold, semantic similarity
// at or above the threshold, and the judge confirming the two statements
// cannot both be true. A judge failure means no conflict: flagging a memory
// on structural evidence alone produces too many false positives.
func (r *Reconciler) Detect(ctx context.Context, existing, proposed Observation) (bool, error) {
	overlap := retrieval.EntityOverlapSignal(existing.EntityIDs, proposed.EntityIDs)
	if overlap < r.cfg.EntityOverlapThreshold {
		return false, nil
	}

	similarity := cosineSimilarity(existing.Embedding, proposed.Embedding)
	if similarity < r.cfg.SimilarityThreshold {
		return false, nil
	}

	if r.judge == nil {
		return false, nil
	}
	contradiction, err := r.judge.JudgeContradiction(ctx, existing.Value, proposed.Value)
	if err != nil && ctx.Err() == nil {
		contradiction, err = r.judge.JudgeContradiction(ctx, existing.Value, proposed.Value)
	}
	if err != nil {
		return false, nil
	}

	return contradiction, nil
}

// Resolve applies the policy priority to a detected conflict and performs
// the side effect on the losing memory. Priority order: trust_db when the
// sources differ, keep_highest when the confidence gap exceeds the
// configured margin, keep_newest otherwise.
func (r *Reconciler) Resolve(ctx context.Context, existing, proposed Observation) (*types.ConflictRecord, error) {
	record := &types.ConflictRecord{
		Type:          conflictType(existing, proposed),
		Topic:         pickTopic(existing, proposed),
		ExistingValue: existing.Value,
		NewValue:      proposed.Value,
		ExistingConf:  existing.Confidence,
		NewConf:       proposed.Confidence,
	}
	if len(existing.EntityIDs) > 0 {
		record.SubjectEntityID = existing.EntityIDs[0]
	}

	var winner, loser Observation
	switch {
	case existing.Source != proposed.Source:
		record.Strategy = types.StrategyTrustDB
		if existing.Source == types.SourceDomainDB {
			winner, loser = existing, proposed
		} else {
			winner, loser = proposed, existing
		}

	case math.Abs(existing.Confidence-proposed.Confidence) > r.cfg.ConfidenceMargin:
		record.Strategy = types.StrategyKeepHighest
		if existing.Confidence > proposed.Confidence {
			winner, loser = existing, proposed
		} else {
			winner, loser = proposed, existing
		}

	default:
		record.Strategy = types.StrategyKeepNewest
		if existing.ObservedAt.After(proposed.ObservedAt) {
			winner, loser = existing, proposed
		} else {
			winner, loser = proposed, existing
		}
	}

	record.WinningSource = winner.Source

	if loser.MemoryID != "" {
		record.LosingMemoryID = loser.MemoryID
		if err := r.memories.MarkSuperseded(ctx, loser.MemoryID, winner.MemoryID, r.cfg.DecayPenalty); err != nil {
			return nil, fmt.Errorf("reconcile: flag losing memory: %w", err)
		}
	}

	return record, nil
}

// Reconcile checks a proposed observation against a set of existing ones and
// resolves every conflict found. Returns the conflict records, which callers
// attach to the response for provenance.
func (r *Reconciler) Reconcile(ctx context.Context, existing []Observation, proposed Observation) ([]types.ConflictRecord, error) {
	var records []types.ConflictRecord
	for _, obs := range existing {
		conflicting, err := r.Detect(ctx, obs, proposed)
		if err != nil {
			return nil, err
		}
		if !conflicting {
			continue
		}

		record, err := r.Resolve(ctx, obs, proposed)
		if err != nil {
			return records, err
		}
		records = append(records, *record)
	}
	return records, nil
}

// conflictType classifies a conflict by the sources involved.
func conflictType(existing, proposed Observation) types.ConflictType {
	if existing.Source != proposed.Source {
		return types.ConflictMemoryVsDB
	}
	return types.ConflictValueMismatch
}

func pickTopic(existing, proposed Observation) string {
	if proposed.Topic != "" {
		return proposed.Topic
	}
	return existing.Topic
}

// cosineSimilarity over float32 vectors; 0 for mismatched or empty inputs.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

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
