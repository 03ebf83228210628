// Package config provides configuration management for Recall.
// It loads settings from environment variables with the RECALL_ prefix and
// provides sensible defaults for all options. Scoring weights and cascade
// thresholds can additionally be overridden from a YAML tuning file so that
// alternate weight sets are testable without rebuilding.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Recall pipeline.
// It is passed explicitly into component constructors; there is no ambient
// global state.
type Config struct {
	Storage   StorageConfig
	LLM       LLMConfig
	Resolver  ResolverConfig
	Retrieval RetrievalConfig
	Reconcile ReconcileConfig
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine type: sqlite, postgres (default: sqlite)
	DataPath      string // Path to the SQLite database file (default: ./data/recall.db)
	PostgresDSN   string // Postgres connection string when StorageEngine=postgres
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	OllamaURL            string        // Ollama API URL (default: http://localhost:11434)
	OllamaModel          string        // Ollama model for coreference/contradiction (default: qwen2.5:7b)
	OllamaEmbeddingModel string        // Ollama model for embeddings (default: nomic-embed-text)
	RequestTimeout       time.Duration // Per-request transport timeout (default: 5s)
	RequestsPerSecond    float64       // Rate limit applied to provider calls (default: 10)
	Burst                int           // Rate limiter burst size (default: 5)
}

// ResolverConfig tunes the entity resolution cascade.
type ResolverConfig struct {
	// FuzzyThreshold is the minimum trigram similarity for a fuzzy match
	// to be accepted (default: 0.7).
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`

	// FuzzyMargin is the minimum lead the best fuzzy candidate must have
	// over the runner-up; a smaller lead is ambiguous and surfaces a
	// disambiguation request instead of a guess (default: 0.05).
	FuzzyMargin float64 `yaml:"fuzzy_margin"`

	// AliasBaseConfidence is the confidence granted to an unconfirmed alias
	// hit (default: 0.85).
	AliasBaseConfidence float64 `yaml:"alias_base_confidence"`

	// AliasConfirmationStep is added per explicit confirmation, capping at
	// 1.0 (default: 0.01).
	AliasConfirmationStep float64 `yaml:"alias_confirmation_step"`

	// CoreferenceTimeout is the hard per-stage budget for the LLM
	// coreference stage (default: 300ms).
	CoreferenceTimeout time.Duration `yaml:"coreference_timeout"`

	// BootstrapTimeout is the hard per-stage budget for the domain
	// bootstrap stage (default: 300ms).
	BootstrapTimeout time.Duration `yaml:"bootstrap_timeout"`

	// CacheSize bounds the in-process LRU of recent resolutions
	// (default: 1024).
	CacheSize int `yaml:"cache_size"`
}

// Weights is the linear combination applied by the signal scorer.
// The five weights must sum to 1.0.
type Weights struct {
	SemanticSimilarity float64 `yaml:"semantic_similarity"`
	EntityOverlap      float64 `yaml:"entity_overlap"`
	Recency            float64 `yaml:"recency"`
	TemporalCoherence  float64 `yaml:"temporal_coherence"`
	Importance         float64 `yaml:"importance"`
}

// Validate checks that every weight is in [0,1] and the weights sum to 1.0
// within floating point tolerance.
func (w Weights) Validate() error {
	fields := map[string]float64{
		"semantic_similarity": w.SemanticSimilarity,
		"entity_overlap":      w.EntityOverlap,
		"recency":             w.Recency,
		"temporal_coherence":  w.TemporalCoherence,
		"importance":          w.Importance,
	}
	sum := 0.0
	for name, v := range fields {
		if v < 0 || v > 1 {
			return fmt.Errorf("config: weight %s=%.4f outside [0,1]", name, v)
		}
		sum += v
	}
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("config: weights sum to %.6f, want 1.0", sum)
	}
	return nil
}

// RetrievalConfig tunes memory retrieval and scoring.
type RetrievalConfig struct {
	// Weights is the scorer's linear combination (defaults: 0.40, 0.25,
	// 0.20, 0.10, 0.05).
	Weights Weights `yaml:"weights"`

	// PrefilterK is how many candidates the raw vector pre-filter fetches
	// before full scoring (default: 100).
	PrefilterK int `yaml:"prefilter_k"`

	// ResultLimit is the size of the final ranked result list (default: 5).
	ResultLimit int `yaml:"result_limit"`

	// RecencyHalfLifeDays controls the exponential recency decay: a
	// candidate this many days old scores 0.5 on the recency signal
	// (default: 30).
	RecencyHalfLifeDays float64 `yaml:"recency_half_life_days"`

	// CoherenceWindow is the time window within which two timestamps count
	// as temporally coherent when no session id matches (default: 30m).
	CoherenceWindow time.Duration `yaml:"coherence_window"`

	// CoherenceFloor is the temporal coherence value granted outside the
	// window (default: 0.3).
	CoherenceFloor float64 `yaml:"coherence_floor"`
}

// ReconcileConfig tunes conflict detection and resolution.
type ReconcileConfig struct {
	// EntityOverlapThreshold is the minimum Jaccard entity overlap for two
	// observations to be conflict candidates (default: 0.8).
	EntityOverlapThreshold float64 `yaml:"entity_overlap_threshold"`

	// SimilarityThreshold is the minimum semantic similarity for two
	// observations to be about the same topic (default: 0.85).
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// ConfidenceMargin is the confidence gap above which keep_highest
	// applies before keep_newest (default: 0.15).
	ConfidenceMargin float64 `yaml:"confidence_margin"`

	// DecayPenalty multiplies the losing memory's importance when it is
	// flagged for accelerated decay (default: 0.5).
	DecayPenalty float64 `yaml:"decay_penalty"`
}

// DefaultWeights returns the reference weighting from the design document.
func DefaultWeights() Weights {
	return Weights{
		SemanticSimilarity: 0.40,
		EntityOverlap:      0.25,
		Recency:            0.20,
		TemporalCoherence:  0.10,
		Importance:         0.05,
	}
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the RECALL_ prefix.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Storage: StorageConfig{
			StorageEngine: getEnv("RECALL_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("RECALL_DATA_PATH", "./data/recall.db"),
			PostgresDSN:   getEnv("RECALL_POSTGRES_DSN", ""),
		},
		LLM: LLMConfig{
			OllamaURL:            getEnv("RECALL_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:          getEnv("RECALL_OLLAMA_MODEL", "qwen2.5:7b"),
			OllamaEmbeddingModel: getEnv("RECALL_EMBEDDING_MODEL", "nomic-embed-text"),
			RequestTimeout:       getEnvDuration("RECALL_LLM_TIMEOUT", 5*time.Second),
			RequestsPerSecond:    getEnvFloat("RECALL_LLM_RPS", 10),
			Burst:                getEnvInt("RECALL_LLM_BURST", 5),
		},
		Resolver: ResolverConfig{
			FuzzyThreshold:        getEnvFloat("RECALL_FUZZY_THRESHOLD", 0.7),
			FuzzyMargin:           getEnvFloat("RECALL_FUZZY_MARGIN", 0.05),
			AliasBaseConfidence:   getEnvFloat("RECALL_ALIAS_BASE_CONFIDENCE", 0.85),
			AliasConfirmationStep: getEnvFloat("RECALL_ALIAS_CONFIRMATION_STEP", 0.01),
			CoreferenceTimeout:    getEnvDuration("RECALL_COREFERENCE_TIMEOUT", 300*time.Millisecond),
			BootstrapTimeout:      getEnvDuration("RECALL_BOOTSTRAP_TIMEOUT", 300*time.Millisecond),
			CacheSize:             getEnvInt("RECALL_RESOLVER_CACHE_SIZE", 1024),
		},
		Retrieval: RetrievalConfig{
			Weights:             DefaultWeights(),
			PrefilterK:          getEnvInt("RECALL_PREFILTER_K", 100),
			ResultLimit:         getEnvInt("RECALL_RESULT_LIMIT", 5),
			RecencyHalfLifeDays: getEnvFloat("RECALL_RECENCY_HALF_LIFE_DAYS", 30),
			CoherenceWindow:     getEnvDuration("RECALL_COHERENCE_WINDOW", 30*time.Minute),
			CoherenceFloor:      getEnvFloat("RECALL_COHERENCE_FLOOR", 0.3),
		},
		Reconcile: ReconcileConfig{
			EntityOverlapThreshold: getEnvFloat("RECALL_CONFLICT_ENTITY_OVERLAP", 0.8),
			SimilarityThreshold:    getEnvFloat("RECALL_CONFLICT_SIMILARITY", 0.85),
			ConfidenceMargin:       getEnvFloat("RECALL_CONFIDENCE_MARGIN", 0.15),
			DecayPenalty:           getEnvFloat("RECALL_DECAY_PENALTY", 0.5),
		},
	}

	if path := os.Getenv("RECALL_TUNING_FILE"); path != "" {
		if err := cfg.LoadTuningFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Retrieval.Weights.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// tuningFile is the YAML shape of the optional tuning override file. The
// pointers target the live config sections so decoding touches only the
// fields the file actually sets.
type tuningFile struct {
	Resolver  *ResolverConfig  `yaml:"resolver"`
	Retrieval *RetrievalConfig `yaml:"retrieval"`
	Reconcile *ReconcileConfig `yaml:"reconcile"`
}

// LoadTuningFile overrides resolver, retrieval, and reconciliation settings
// from a YAML file. Fields absent from the file keep their current values.
func (c *Config) LoadTuningFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read tuning file %s: %w", path, err)
	}

	tf := tuningFile{
		Resolver:  &c.Resolver,
		Retrieval: &c.Retrieval,
		Reconcile: &c.Reconcile,
	}
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return fmt.Errorf("config: parse tuning file %s: %w", path, err)
	}

	return nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the variable exists but cannot be parsed, the default is used.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. If the variable exists but cannot be parsed, the default is used.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "300ms") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
