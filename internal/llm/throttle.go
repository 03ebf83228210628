package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Throttled decorates a Provider with a token-bucket rate limiter so a burst
// of pipeline requests cannot overwhelm a local inference server.
type Throttled struct {
	provider Provider
	limiter  *rate.Limiter
}

// NewThrottled wraps provider with a limiter of requestsPerSecond and burst.
// Non-positive values disable throttling for that dimension.
func NewThrottled(provider Provider, requestsPerSecond float64, burst int) *Throttled {
	if requestsPerSecond <= 0 {
		requestsPerSecond = float64(rate.Inf)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttled{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// wait blocks until the limiter grants a token or the context expires.
func (t *Throttled) wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit wait: %v", ErrProviderTimeout, err)
	}
	return nil
}

// Embed implements EmbeddingGenerator.
func (t *Throttled) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.provider.Embed(ctx, text)
}

// GetEmbeddingModel implements EmbeddingGenerator.
func (t *Throttled) GetEmbeddingModel() string {
	return t.provider.GetEmbeddingModel()
}

// ResolveCoreference implements CoreferenceResolver.
func (t *Throttled) ResolveCoreference(ctx context.Context, mention string, recentTurns []string, candidates []CandidateEntity) (*Coreference, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.provider.ResolveCoreference(ctx, mention, recentTurns, candidates)
}

// JudgeContradiction implements ContradictionJudge.
func (t *Throttled) JudgeContradiction(ctx context.Context, existing, proposed string) (bool, error) {
	if err := t.wait(ctx); err != nil {
		return false, err
	}
	return t.provider.JudgeContradiction(ctx, existing, proposed)
}

// HealthCheck passes through without consuming a token.
func (t *Throttled) HealthCheck(ctx context.Context) error {
	return t.provider.HealthCheck(ctx)
}

var _ Provider = (*Throttled)(nil)
