package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStubOllama returns a client pointed at a stub server whose /api/generate
// answers with the given response text.
func newStubOllama(t *testing.T, generateAnswer string) *OllamaClient {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/generate":
			_ = json.NewEncoder(w).Encode(generateResponse{Response: generateAnswer, Done: true})
		case "/api/embed":
			_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{0.1, 0.2}}})
		case "/api/version":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return NewOllamaClient(OllamaConfig{BaseURL: server.URL})
}

func TestOllamaEmbed(t *testing.T) {
	client := newStubOllama(t, "")

	embedding, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, embedding)
}

func TestOllamaResolveCoreference(t *testing.T) {
	client := newStubOllama(t, `{"entity_id":"ent:customer:a","confidence":0.8}`)
	candidates := []CandidateEntity{{EntityID: "ent:customer:a", Name: "Kai Media", Type: "customer"}}

	coref, err := client.ResolveCoreference(context.Background(), "they", []string{"Kai Media called"}, candidates)
	require.NoError(t, err)
	assert.True(t, coref.Resolved)
	assert.Equal(t, "ent:customer:a", coref.EntityID)
	assert.Equal(t, 0.8, coref.Confidence)
}

func TestOllamaResolveCoreferenceRejectsUnknownEntity(t *testing.T) {
	client := newStubOllama(t, `{"entity_id":"ent:customer:other","confidence":0.9}`)
	candidates := []CandidateEntity{{EntityID: "ent:customer:a", Name: "Kai Media", Type: "customer"}}

	_, err := client.ResolveCoreference(context.Background(), "they", nil, candidates)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProvider)
}

func TestOllamaResolveCoreferenceNoCandidates(t *testing.T) {
	client := newStubOllama(t, `{"entity_id":"ent:x","confidence":0.9}`)

	coref, err := client.ResolveCoreference(context.Background(), "they", nil, nil)
	require.NoError(t, err)
	assert.False(t, coref.Resolved)
}

func TestOllamaJudgeContradiction(t *testing.T) {
	client := newStubOllama(t, "```json\n{\"contradiction\":true}\n```")

	contradiction, err := client.JudgeContradiction(context.Background(), "order is open", "order shipped")
	require.NoError(t, err)
	assert.True(t, contradiction)
}

func TestOllamaServerErrorWrapsSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)
	client := NewOllamaClient(OllamaConfig{BaseURL: server.URL})

	_, err := client.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProvider)
}

func TestOllamaHealthCheck(t *testing.T) {
	client := newStubOllama(t, "")
	assert.NoError(t, client.HealthCheck(context.Background()))
}
