// Package config provides configuration management for Engram.
// It loads settings from a YAML file plus environment variables with the
// ENGRAM_ prefix, and provides sensible defaults for all options.
//
// Every lifecycle constant (decay rates, tier thresholds, review intervals)
// is a tunable here, not hard-coded behavior: the functional form of decay
// is fixed in code, the constants are configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/engram/pkg/types"
)

// Config holds all configuration settings for the Engram engine.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Provider  ProviderConfig  `yaml:"provider"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Graph     GraphConfig     `yaml:"graph"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // Storage engine: sqlite, postgres (default: sqlite)
	DataPath    string `yaml:"data_path"`    // Path to data directory for sqlite (default: ./data)
	PostgresDSN string `yaml:"postgres_dsn"` // DSN when engine is postgres
}

// ProviderConfig contains embedding and rerank provider configuration.
type ProviderConfig struct {
	BaseURL        string        `yaml:"base_url"`        // Provider API URL (default: http://localhost:11434)
	EmbeddingModel string        `yaml:"embedding_model"` // Dense embedding model (default: nomic-embed-text)
	RerankModel    string        `yaml:"rerank_model"`    // Cross-encoder rerank model (default: bge-reranker)
	Timeout        time.Duration `yaml:"timeout"`         // Per-call timeout (default: 5s)
	RatePerSecond  float64       `yaml:"rate_per_second"` // Provider call rate limit (default: 20)
	CacheSize      int           `yaml:"cache_size"`      // Query-embedding LRU cache entries (default: 512)
	MaxRetries     int           `yaml:"max_retries"`     // Transient failure retries before degrading (default: 2)
}

// RetrievalConfig contains search fusion and rerank tunables.
type RetrievalConfig struct {
	FusionK        float64 `yaml:"fusion_k"`        // RRF smoothing constant (default: 60)
	CandidateK     int     `yaml:"candidate_k"`     // Per-index candidate fetch size (default: 50)
	RerankTopN     int     `yaml:"rerank_top_n"`    // Fusion candidates passed to reranker (default: 50)
	DefaultLimit   int     `yaml:"default_limit"`   // Result limit when unset (default: 10)
	MaxLimit       int     `yaml:"max_limit"`       // Hard cap on requested limit (default: 100)
	FusionWeight   float64 `yaml:"fusion_weight"`   // Composite blend weight for fusion (default: 0.5)
	RerankWeight   float64 `yaml:"rerank_weight"`   // Composite blend weight for rerank (default: 0.3)
	QualityWeight  float64 `yaml:"quality_weight"`  // Composite blend weight for quality (default: 0.2)
}

// LifecycleConfig contains decay, quality, and tier transition tunables.
type LifecycleConfig struct {
	// DecayRates maps memory type to decay constant λ per hour.
	// The documented relative ordering (errors decay slowest, context
	// fastest) is preserved by the defaults.
	DecayRates map[types.MemoryType]float64 `yaml:"decay_rates"`

	// BaselineImportance maps memory type to the importance score assigned
	// at ingestion before emotional weighting.
	BaselineImportance map[types.MemoryType]float64 `yaml:"baseline_importance"`

	// ReinforcementDelta is added to strength on each access (default: 0.2).
	ReinforcementDelta float64 `yaml:"reinforcement_delta"`

	// PromoteStaging/PromoteSemantic/PromoteProcedural are the quality
	// thresholds for tier promotion (defaults: 0.5, 0.65, 0.8).
	PromoteStaging    float64 `yaml:"promote_staging"`
	PromoteSemantic   float64 `yaml:"promote_semantic"`
	PromoteProcedural float64 `yaml:"promote_procedural"`

	// ArchiveThreshold is the quality score under which a memory becomes an
	// archival candidate (default: 0.2). The quality must stay below it for
	// ArchiveWindow before the memory is archived.
	ArchiveThreshold float64       `yaml:"archive_threshold"`
	ArchiveWindow    time.Duration `yaml:"archive_window"` // default: 336h (2 weeks)

	// PurgeRetention is how long an ARCHIVED memory is kept untouched
	// before hard deletion (default: 2160h / 90 days).
	PurgeRetention time.Duration `yaml:"purge_retention"`

	// ReviewIntervals maps tier to the spaced-repetition review interval.
	ReviewIntervals map[types.Tier]time.Duration `yaml:"review_intervals"`

	// ReplaySampleSize and DreamSampleSize bound the replay passes.
	ReplaySampleSize int `yaml:"replay_sample_size"` // default: 20
	DreamSampleSize  int `yaml:"dream_sample_size"`  // default: 50

	// EmotionalBonus is added to importance when content matches a
	// configured sentiment marker (default: 0.15).
	EmotionalBonus float64 `yaml:"emotional_bonus"`

	// FrustrationMarkers and BreakthroughMarkers are the sentiment terms
	// scanned for emotional weighting.
	FrustrationMarkers  []string `yaml:"frustration_markers"`
	BreakthroughMarkers []string `yaml:"breakthrough_markers"`
}

// GraphConfig contains relationship inference tunables.
type GraphConfig struct {
	// SimilarThreshold is the dense-similarity cutoff for SIMILAR_TO edges
	// (default: 0.92); RelatedThreshold for RELATED edges (default: 0.75).
	SimilarThreshold float64 `yaml:"similar_threshold"`
	RelatedThreshold float64 `yaml:"related_threshold"`

	// FixMatchThreshold is the similarity cutoff for error→solution FIXES
	// inference (default: 0.35 lexical overlap).
	FixMatchThreshold float64 `yaml:"fix_match_threshold"`

	// FollowsWindow is the same-project time window for FOLLOWS edges
	// (default: 2h).
	FollowsWindow time.Duration `yaml:"follows_window"`

	// InferenceBatchSize bounds candidate set size per inference pass
	// (default: 200).
	InferenceBatchSize int `yaml:"inference_batch_size"`
}

// SchedulerConfig contains background job cadences.
type SchedulerConfig struct {
	DecayInterval        time.Duration `yaml:"decay_interval"`        // default: 1h
	QualityInterval      time.Duration `yaml:"quality_interval"`      // default: 6h
	TransitionInterval   time.Duration `yaml:"transition_interval"`   // default: 12h
	InferenceInterval    time.Duration `yaml:"inference_interval"`    // default: 24h
	ReplayInterval       time.Duration `yaml:"replay_interval"`       // default: 24h
	DreamInterval        time.Duration `yaml:"dream_interval"`        // default: 72h
	SpacedRepInterval    time.Duration `yaml:"spaced_rep_interval"`   // default: 24h
	InterferenceInterval time.Duration `yaml:"interference_interval"` // default: 168h (weekly)
	PurgeInterval        time.Duration `yaml:"purge_interval"`        // default: 24h
	MaxJobDuration       time.Duration `yaml:"max_job_duration"`      // default: 10m
	JobRatePerSecond     float64       `yaml:"job_rate_per_second"`   // batch pacing (default: 200)
}

// Default returns a Config with all documented defaults applied.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:   "sqlite",
			DataPath: "./data",
		},
		Provider: ProviderConfig{
			BaseURL:        "http://localhost:11434",
			EmbeddingModel: "nomic-embed-text",
			RerankModel:    "bge-reranker",
			Timeout:        5 * time.Second,
			RatePerSecond:  20,
			CacheSize:      512,
			MaxRetries:     2,
		},
		Retrieval: RetrievalConfig{
			FusionK:       60,
			CandidateK:    50,
			RerankTopN:    50,
			DefaultLimit:  10,
			MaxLimit:      100,
			FusionWeight:  0.5,
			RerankWeight:  0.3,
			QualityWeight: 0.2,
		},
		Lifecycle: LifecycleConfig{
			DecayRates: map[types.MemoryType]float64{
				types.MemoryTypeError:    0.0008,
				types.MemoryTypeDecision: 0.0012,
				types.MemoryTypePattern:  0.0018,
				types.MemoryTypeLearning: 0.0025,
				types.MemoryTypeDocs:     0.0040,
				types.MemoryTypeContext:  0.0058,
			},
			BaselineImportance: map[types.MemoryType]float64{
				types.MemoryTypeError:    0.7,
				types.MemoryTypeDecision: 0.65,
				types.MemoryTypePattern:  0.6,
				types.MemoryTypeLearning: 0.55,
				types.MemoryTypeDocs:     0.4,
				types.MemoryTypeContext:  0.3,
			},
			ReinforcementDelta: 0.2,
			PromoteStaging:     0.5,
			PromoteSemantic:    0.65,
			PromoteProcedural:  0.8,
			ArchiveThreshold:   0.2,
			ArchiveWindow:      336 * time.Hour,
			PurgeRetention:     2160 * time.Hour,
			ReviewIntervals: map[types.Tier]time.Duration{
				types.TierEpisodic:   24 * time.Hour,
				types.TierStaging:    72 * time.Hour,
				types.TierSemantic:   168 * time.Hour,
				types.TierProcedural: 336 * time.Hour,
			},
			ReplaySampleSize: 20,
			DreamSampleSize:  50,
			EmotionalBonus:   0.15,
			FrustrationMarkers: []string{
				"finally", "stuck", "hours", "frustrating", "annoying", "broken again",
			},
			BreakthroughMarkers: []string{
				"breakthrough", "figured out", "root cause", "solved", "aha",
			},
		},
		Graph: GraphConfig{
			SimilarThreshold:   0.92,
			RelatedThreshold:   0.75,
			FixMatchThreshold:  0.35,
			FollowsWindow:      2 * time.Hour,
			InferenceBatchSize: 200,
		},
		Scheduler: SchedulerConfig{
			DecayInterval:        1 * time.Hour,
			QualityInterval:      6 * time.Hour,
			TransitionInterval:   12 * time.Hour,
			InferenceInterval:    24 * time.Hour,
			ReplayInterval:       24 * time.Hour,
			DreamInterval:        72 * time.Hour,
			SpacedRepInterval:    24 * time.Hour,
			InterferenceInterval: 168 * time.Hour,
			PurgeInterval:        24 * time.Hour,
			MaxJobDuration:       10 * time.Minute,
			JobRatePerSecond:     200,
		},
	}
}

// Load reads configuration from the given YAML file (optional) and applies
// ENGRAM_-prefixed environment overrides on top of the defaults.
// An empty path skips the file and uses defaults + environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides maps ENGRAM_* environment variables onto the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ENGRAM_STORAGE_ENGINE"); v != "" {
		cfg.Storage.Engine = v
	}
	if v := os.Getenv("ENGRAM_DATA_PATH"); v != "" {
		cfg.Storage.DataPath = v
	}
	if v := os.Getenv("ENGRAM_POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("ENGRAM_PROVIDER_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("ENGRAM_EMBEDDING_MODEL"); v != "" {
		cfg.Provider.EmbeddingModel = v
	}
	if v := os.Getenv("ENGRAM_RERANK_MODEL"); v != "" {
		cfg.Provider.RerankModel = v
	}
	if v := os.Getenv("ENGRAM_PROVIDER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Provider.Timeout = d
		}
	}
	if v := os.Getenv("ENGRAM_REINFORCEMENT_DELTA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Lifecycle.ReinforcementDelta = f
		}
	}
	if v := os.Getenv("ENGRAM_ARCHIVE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Lifecycle.ArchiveThreshold = f
		}
	}
}

// Validate checks cross-field invariants of the configuration.
func (c *Config) Validate() error {
	if c.Storage.Engine != "sqlite" && c.Storage.Engine != "postgres" {
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}
	if c.Storage.Engine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: postgres engine requires postgres_dsn")
	}
	if c.Retrieval.FusionK <= 0 {
		return fmt.Errorf("config: fusion_k must be > 0, got %v", c.Retrieval.FusionK)
	}
	if c.Lifecycle.ReinforcementDelta <= 0 || c.Lifecycle.ReinforcementDelta > 1 {
		return fmt.Errorf("config: reinforcement_delta must be in (0, 1], got %v", c.Lifecycle.ReinforcementDelta)
	}
	if c.Lifecycle.PromoteStaging >= c.Lifecycle.PromoteSemantic ||
		c.Lifecycle.PromoteSemantic >= c.Lifecycle.PromoteProcedural {
		return fmt.Errorf("config: promotion thresholds must be strictly increasing")
	}
	if c.Lifecycle.ArchiveThreshold >= c.Lifecycle.PromoteStaging {
		return fmt.Errorf("config: archive_threshold must be below promote_staging")
	}
	for _, mt := range types.ValidMemoryTypes {
		if c.Lifecycle.DecayRates[mt] <= 0 {
			return fmt.Errorf("config: missing decay rate for memory type %q", mt)
		}
	}
	if c.Scheduler.MaxJobDuration <= 0 {
		return fmt.Errorf("config: max_job_duration must be > 0")
	}
	return nil
}

// DecayRate returns the decay constant λ (per hour) for the given memory
// type, falling back to the context rate for unknown types.
func (c *LifecycleConfig) DecayRate(mt types.MemoryType) float64 {
	if rate, ok := c.DecayRates[mt]; ok {
		return rate
	}
	return c.DecayRates[types.MemoryTypeContext]
}
