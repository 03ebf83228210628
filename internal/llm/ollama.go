package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaClient talks to a local Ollama server for completions and embeddings.
// All calls go through a shared circuit breaker so a struggling inference
// server fails fast instead of stalling every pipeline request.
type OllamaClient struct {
	baseURL        string
	client         *http.Client
	circuitBreaker *CircuitBreaker
	model          string
	embeddingModel string
	timeout        time.Duration
}

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	// BaseURL is the base URL for the Ollama API (default: http://localhost:11434).
	BaseURL string

	// Model is the model used for coreference and contradiction prompts
	// (default: qwen2.5:7b).
	Model string

	// EmbeddingModel is the model used for embeddings (default: nomic-embed-text).
	EmbeddingModel string

	// Timeout is the per-request transport timeout (default: 5s).
	Timeout time.Duration
}

// generateRequest is the request body for /api/generate.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateResponse is the response from /api/generate.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// embedRequest is the request body for /api/embed.
type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embedResponse is the response from /api/embed. The embeddings field is a
// 2D array; we always use the first (and only) embedding.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaClient creates a new Ollama client, filling zero-valued config
// fields with the defaults documented on OllamaConfig.
func NewOllamaClient(config OllamaConfig) *OllamaClient {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Model == "" {
		config.Model = "qwen2.5:7b"
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = "nomic-embed-text"
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}

	return &OllamaClient{
		baseURL:        config.BaseURL,
		client:         &http.Client{Timeout: config.Timeout},
		circuitBreaker: NewCircuitBreaker(CircuitBreakerConfig{}),
		model:          config.Model,
		embeddingModel: config.EmbeddingModel,
		timeout:        config.Timeout,
	}
}

// Complete sends a completion request and returns the raw response text.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (any, error) {
		return c.complete(ctx, prompt)
	})
	if err != nil {
		return "", c.wrapError("complete", err)
	}
	return result.(string), nil
}

func (c *OllamaClient) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var respData generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return respData.Response, nil
}

// Embed generates an embedding for the given text using the embedding model.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (any, error) {
		return c.embed(ctx, text)
	})
	if err != nil {
		return nil, c.wrapError("embed", err)
	}
	return result.([]float32), nil
}

func (c *OllamaClient) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := embedRequest{
		Model: c.embeddingModel,
		Input: text,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var respData embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(respData.Embeddings) == 0 || len(respData.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty embedding vector")
	}

	return respData.Embeddings[0], nil
}

// ResolveCoreference asks the model what a reference points at, constrained
// to the candidate set. An answer naming an entity outside the candidate set
// is a provider error, never a resolution.
func (c *OllamaClient) ResolveCoreference(ctx context.Context, mention string, recentTurns []string, candidates []CandidateEntity) (*Coreference, error) {
	if len(candidates) == 0 {
		return &Coreference{Resolved: false}, nil
	}

	raw, err := c.Complete(ctx, CoreferencePrompt(mention, recentTurns, candidates))
	if err != nil {
		return nil, err
	}

	coref, err := parseCoreference(raw)
	if err != nil {
		return nil, err
	}
	if !coref.Resolved {
		return coref, nil
	}

	for _, candidate := range candidates {
		if candidate.EntityID == coref.EntityID {
			return coref, nil
		}
	}
	return nil, fmt.Errorf("%w: coreference answer %q not in candidate set", ErrProvider, coref.EntityID)
}

// JudgeContradiction asks the model whether two statements can both be true.
func (c *OllamaClient) JudgeContradiction(ctx context.Context, existing, proposed string) (bool, error) {
	raw, err := c.Complete(ctx, ContradictionPrompt(existing, proposed))
	if err != nil {
		return false, err
	}
	return parseContradiction(raw)
}

// HealthCheck verifies that Ollama is reachable via /api/version. It bypasses
// the circuit breaker since it is itself the health probe.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("create health check request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// GetModel returns the configured completion model name.
func (c *OllamaClient) GetModel() string {
	return c.model
}

// GetEmbeddingModel returns the configured embedding model name.
func (c *OllamaClient) GetEmbeddingModel() string {
	return c.embeddingModel
}

// wrapError maps transport failures onto the package sentinels so callers
// can branch with errors.Is without knowing the provider.
func (c *OllamaClient) wrapError(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: ollama %s: %v", ErrProviderTimeout, op, err)
	case errors.Is(err, ErrCircuitOpen):
		return fmt.Errorf("%w: ollama %s: %v", ErrProvider, op, err)
	case errors.Is(err, ErrProvider), errors.Is(err, ErrProviderTimeout):
		return err
	default:
		return fmt.Errorf("%w: ollama %s: %v", ErrProvider, op, err)
	}
}

// Compile-time assertions that OllamaClient satisfies the collaborator surface.
var (
	_ TextGenerator = (*OllamaClient)(nil)
	_ Provider      = (*OllamaClient)(nil)
)
