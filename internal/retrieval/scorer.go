// Package retrieval ranks memories for a query by combining five normalized
// signals in a weighted linear score. The raw vector search is only a coarse
// pre-filter; the ranked order comes from the full signal combination.
package retrieval

import (
	"fmt"
	"math"
	"time"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/pkg/types"
)

// Scorer computes relevance scores from signal values. Weights are validated
// once at construction; scoring itself is pure and cheap.
type Scorer struct {
	weights config.Weights
}

// NewScorer validates the weights and returns a scorer.
func NewScorer(weights config.Weights) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	return &Scorer{weights: weights}, nil
}

// Weights returns the scorer's weight set, for provenance reporting.
func (s *Scorer) Weights() config.Weights {
	return s.weights
}

// Score combines the signals into a relevance score in [0,1]. Each signal is
// clamped defensively so one out-of-range input cannot push the combined
// score outside the unit interval.
func (s *Scorer) Score(sig types.Signals) float64 {
	return s.weights.SemanticSimilarity*clamp01(sig.SemanticSimilarity) +
		s.weights.EntityOverlap*clamp01(sig.EntityOverlap) +
		s.weights.Recency*clamp01(sig.Recency) +
		s.weights.TemporalCoherence*clamp01(sig.TemporalCoherence) +
		s.weights.Importance*clamp01(sig.Importance)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SemanticSignal maps raw cosine similarity in [-1,1] onto [0,1]. Negative
// similarity carries no useful ranking information here and floors at 0.
func SemanticSignal(cosine float64) float64 {
	return clamp01(cosine)
}

// EntityOverlapSignal is the Jaccard similarity of two entity-id sets.
// A query or memory with no entities scores 0: absence of entity evidence
// is neutral, not supporting.
func EntityOverlapSignal(queryIDs, memoryIDs []string) float64 {
	if len(queryIDs) == 0 || len(memoryIDs) == 0 {
		return 0
	}

	set := make(map[string]struct{}, len(queryIDs))
	for _, id := range queryIDs {
		set[id] = struct{}{}
	}

	intersection := 0
	seen := make(map[string]struct{}, len(memoryIDs))
	for _, id := range memoryIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := set[id]; ok {
			intersection++
		}
	}

	union := len(set) + len(seen) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// RecencySignal decays exponentially with age: a memory exactly halfLifeDays
// old scores 0.5. A zero timestamp scores 0.
func RecencySignal(ts, now time.Time, halfLifeDays float64) float64 {
	if ts.IsZero() || halfLifeDays <= 0 {
		return 0
	}

	age := now.Sub(ts)
	if age <= 0 {
		return 1
	}

	days := age.Hours() / 24
	return math.Exp2(-days / halfLifeDays)
}

// CoherenceSignal is 1.0 when the memory and the query share a session or
// fall within the coherence window of each other, otherwise the floor value.
func CoherenceSignal(memoryTime, queryTime time.Time, memorySession, querySession string, window time.Duration, floor float64) float64 {
	if memorySession != "" && memorySession == querySession {
		return 1
	}
	if !memoryTime.IsZero() && !queryTime.IsZero() {
		gap := queryTime.Sub(memoryTime)
		if gap < 0 {
			gap = -gap
		}
		if gap <= window {
			return 1
		}
	}
	return clamp01(floor)
}
