package resolver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// bootstrapConfidence is granted when a mention exactly matches a domain
// database row by normalized name. High because the name match is exact,
// below alias because the user has never confirmed the mapping.
const bootstrapConfidence = 0.85

// resolveExact matches the normalized mention against canonical entity names.
// An exact structural match is the only path to confidence 1.0.
func (r *Resolver) resolveExact(ctx context.Context, _, mentionText, normalized string, _ Hints) (*Resolution, error) {
	entity, err := r.entities.FindCanonicalByName(ctx, normalized)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &Resolution{
		MentionText: mentionText,
		Outcome:     OutcomeResolved,
		Entity: &types.ResolvedEntity{
			MentionText:   mentionText,
			EntityID:      entity.ID,
			CanonicalName: entity.Name,
			EntityType:    entity.Type,
			Confidence:    1.0,
			Method:        types.MethodExact,
		},
	}, nil
}

// resolveAlias looks up the user's confirmed alias table. Confidence starts
// at the configured base and grows with each explicit confirmation, capped
// at 1.0.
func (r *Resolver) resolveAlias(ctx context.Context, userID, mentionText, normalized string, _ Hints) (*Resolution, error) {
	alias, entity, err := r.entities.FindAlias(ctx, userID, normalized)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	confidence := r.cfg.AliasBaseConfidence + float64(alias.Confirmations)*r.cfg.AliasConfirmationStep
	confidence = math.Min(confidence, 1.0)

	return &Resolution{
		MentionText: mentionText,
		Outcome:     OutcomeResolved,
		Entity: &types.ResolvedEntity{
			MentionText:   mentionText,
			EntityID:      entity.ID,
			CanonicalName: entity.Name,
			EntityType:    entity.Type,
			Confidence:    confidence,
			Method:        types.MethodAlias,
		},
	}, nil
}

// resolveFuzzy ranks canonical names by trigram similarity. A clear winner
// resolves and seeds an alias so the next occurrence is a cheap stage-2 hit.
// A winner leading the runner-up by less than the configured margin is
// ambiguous and short-circuits the cascade: the near-tie is evidence that
// guessing would be wrong often enough to erode trust.
func (r *Resolver) resolveFuzzy(ctx context.Context, userID, mentionText, normalized string, _ Hints) (*Resolution, error) {
	matches, err := r.entities.FuzzySearch(ctx, normalized, r.cfg.FuzzyThreshold, 10)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	if len(matches) > 1 && matches[0].Score-matches[1].Score < r.cfg.FuzzyMargin {
		candidates := make([]Candidate, 0, len(matches))
		for _, m := range matches {
			if matches[0].Score-m.Score >= r.cfg.FuzzyMargin {
				break
			}
			candidates = append(candidates, Candidate{
				EntityID: m.Entity.ID,
				Name:     m.Entity.Name,
				Type:     m.Entity.Type,
				Score:    m.Score,
			})
		}
		return &Resolution{
			MentionText: mentionText,
			Outcome:     OutcomeAmbiguous,
			Candidates:  candidates,
		}, nil
	}

	best := matches[0]
	confidence := fuzzyConfidence(best.Score, r.cfg.FuzzyThreshold)

	// Cost amortization: remember the surface form so repeat occurrences
	// skip the fuzzy scan. Alias write failure is not worth failing the
	// resolution over, but a lost write means a repeat scan, so report it.
	alias := &types.Alias{
		UserID:            userID,
		Mention:           mentionText,
		NormalizedMention: normalized,
		EntityID:          best.Entity.ID,
	}
	if err := r.entities.UpsertAlias(ctx, alias); err != nil {
		return nil, fmt.Errorf("seed alias: %w", err)
	}

	return &Resolution{
		MentionText: mentionText,
		Outcome:     OutcomeResolved,
		Entity: &types.ResolvedEntity{
			MentionText:   mentionText,
			EntityID:      best.Entity.ID,
			CanonicalName: best.Entity.Name,
			EntityType:    best.Entity.Type,
			Confidence:    confidence,
			Method:        types.MethodFuzzy,
		},
	}, nil
}

// fuzzyConfidence maps a trigram similarity in [threshold, 1] onto the fuzzy
// band [0.6, 0.85). The upper bound stays exclusive: string shape alone never
// earns alias-grade confidence.
func fuzzyConfidence(score, threshold float64) float64 {
	if threshold >= 1 {
		return 0.6
	}
	scaled := 0.6 + (score-threshold)/(1-threshold)*0.25
	return math.Min(scaled, 0.8499)
}

// resolveCoreference hands pronouns and definite references to the LLM with
// the recent turns and recently resolved entities as the closed candidate
// set. Provider failures and timeouts fall through to the next stage; the
// pipeline never stalls on inference.
func (r *Resolver) resolveCoreference(ctx context.Context, _, mentionText, _ string, hints Hints) (*Resolution, error) {
	if r.coref == nil || len(hints.RecentEntities) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.CoreferenceTimeout)
	defer cancel()

	coref, err := r.coref.ResolveCoreference(ctx, mentionText, hints.RecentTurns, hints.RecentEntities)
	if err != nil && ctx.Err() == nil {
		// One bounded retry inside the stage budget.
		coref, err = r.coref.ResolveCoreference(ctx, mentionText, hints.RecentTurns, hints.RecentEntities)
	}
	if err != nil {
		// Soft failure by contract: degraded inference must not take the
		// deterministic stages down with it.
		return nil, nil
	}
	if !coref.Resolved {
		return nil, nil
	}

	// The ceiling is the most the system may assert for inferred facts; a
	// model reporting below the band floor is telling us it is guessing.
	confidence := math.Min(coref.Confidence, types.InferenceConfidenceCeiling)
	if confidence < 0.5 {
		return nil, nil
	}

	entity, err := r.entities.GetEntity(ctx, coref.EntityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &Resolution{
		MentionText: mentionText,
		Outcome:     OutcomeResolved,
		Entity: &types.ResolvedEntity{
			MentionText:   mentionText,
			EntityID:      entity.ID,
			CanonicalName: entity.Name,
			EntityType:    entity.Type,
			Confidence:    confidence,
			Method:        types.MethodLLMCoreference,
		},
	}, nil
}

// resolveBootstrap consults the external domain database for names the
// memory layer has never seen. A hit creates a canonical entity keyed to the
// domain row and seeds an alias, so the second occurrence resolves at
// stage 1 or 2 without touching the domain database again.
func (r *Resolver) resolveBootstrap(ctx context.Context, userID, mentionText, normalized string, _ Hints) (*Resolution, error) {
	if r.domain == nil {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.BootstrapTimeout)
	defer cancel()

	record, err := r.domain.FindDomainRecord(ctx, normalized)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, err
	}

	entity := &types.Entity{
		ID:             fmt.Sprintf("ent:%s:%s", record.EntityType, uuid.NewString()),
		Name:           record.Name,
		NormalizedName: record.NormalizedName,
		Type:           record.EntityType,
		DomainKey:      record.ExternalID,
	}
	// Upsert converges concurrent bootstraps of the same name on one row;
	// the returned entity carries the winning ID.
	stored, err := r.entities.UpsertEntity(ctx, entity)
	if err != nil {
		return nil, fmt.Errorf("bootstrap entity: %w", err)
	}

	alias := &types.Alias{
		UserID:            userID,
		Mention:           mentionText,
		NormalizedMention: normalized,
		EntityID:          stored.ID,
	}
	if err := r.entities.UpsertAlias(ctx, alias); err != nil {
		return nil, fmt.Errorf("seed alias: %w", err)
	}

	return &Resolution{
		MentionText: mentionText,
		Outcome:     OutcomeResolved,
		Entity: &types.ResolvedEntity{
			MentionText:   mentionText,
			EntityID:      stored.ID,
			CanonicalName: stored.Name,
			EntityType:    stored.Type,
			Confidence:    bootstrapConfidence,
			Method:        types.MethodDomainBootstrap,
		},
	}, nil
}
