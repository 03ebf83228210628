package engine

import (
	"math"
	"time"

	"github.com/scrypster/recall/pkg/types"
)

const (
	// decayHalfLifeDays is the number of days for effective importance to
	// halve without any access. At 60 days a memory sits at half its stored
	// importance; at 120 days, a quarter.
	decayHalfLifeDays = 60.0

	// accessBoostStep is the permanent importance boost earned per access.
	accessBoostStep = 0.01

	// maxAccessBoost caps the access boost so a frequently read memory
	// cannot pin itself at full importance forever.
	maxAccessBoost = 0.3
)

// ComputeDecayScore returns a memory's effective importance at a point in
// time: the stored importance decayed exponentially since last access, plus
// a small floor earned through repeated access. Clamped to [0,1].
//
// Reconciliation losers arrive here with importance already multiplied by
// the decay penalty, so superseded facts fade faster without special cases.
func ComputeDecayScore(memory *types.Memory, now time.Time) float64 {
	anchor := memory.CreatedAt
	if memory.LastAccessedAt != nil && memory.LastAccessedAt.After(anchor) {
		anchor = *memory.LastAccessedAt
	}
	if anchor.IsZero() {
		return clamp01(memory.Importance)
	}

	daysSince := now.Sub(anchor).Hours() / 24.0
	if daysSince < 0 {
		daysSince = 0
	}
	decayed := memory.Importance * math.Exp2(-daysSince/decayHalfLifeDays)

	boost := math.Min(float64(memory.AccessCount)*accessBoostStep, maxAccessBoost)

	return clamp01(decayed + boost)
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
