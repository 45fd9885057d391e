package memory

import "time"

// Config holds every tunable of the memory subsystem. There is no package
// level state: the struct is passed into each tier's constructor.
type Config struct {
	// AgentID scopes the durable namespaces. Each agent owns exactly one
	// subsystem instance.
	AgentID string `yaml:"agent_id" json:"agent_id"`

	// Working tier.
	WorkingCapacity int `yaml:"working_capacity" json:"working_capacity"`

	// Short-term tier.
	ShortTermMaxItems  int           `yaml:"short_term_max_items" json:"short_term_max_items"`
	ShortTermTTL       time.Duration `yaml:"short_term_ttl" json:"short_term_ttl"`
	ShortTermDecayRate float64       `yaml:"short_term_decay_rate" json:"short_term_decay_rate"`

	// Durable tier decay rates (per hour since last access).
	EpisodicDecayRate   float64 `yaml:"episodic_decay_rate" json:"episodic_decay_rate"`
	SemanticDecayRate   float64 `yaml:"semantic_decay_rate" json:"semantic_decay_rate"`
	ProceduralDecayRate float64 `yaml:"procedural_decay_rate" json:"procedural_decay_rate"`

	// Episodic tier.
	SignificanceThreshold float64 `yaml:"significance_threshold" json:"significance_threshold"`
	RelatedLinks          int     `yaml:"related_links" json:"related_links"`

	// Semantic tier.
	ConfidenceStep    float64 `yaml:"confidence_step" json:"confidence_step"`
	DefaultConfidence float64 `yaml:"default_confidence" json:"default_confidence"`
	GraphDepth        int     `yaml:"graph_depth" json:"graph_depth"`

	// Consolidation.
	PromotionThreshold    float64       `yaml:"promotion_threshold" json:"promotion_threshold"`
	ExtractionWindow      time.Duration `yaml:"extraction_window" json:"extraction_window"`
	ConsolidationInterval time.Duration `yaml:"consolidation_interval" json:"consolidation_interval"`

	// Decay sweep thresholds. Semantic runs at an elevated threshold since
	// durable knowledge should be harder to lose; procedural is fixed lower.
	// AggressiveBoost is added to every threshold when more than 24h have
	// elapsed since the previous consolidation.
	ShortTermForgetThreshold  float64 `yaml:"short_term_forget_threshold" json:"short_term_forget_threshold"`
	EpisodicForgetThreshold   float64 `yaml:"episodic_forget_threshold" json:"episodic_forget_threshold"`
	SemanticForgetThreshold   float64 `yaml:"semantic_forget_threshold" json:"semantic_forget_threshold"`
	ProceduralForgetThreshold float64 `yaml:"procedural_forget_threshold" json:"procedural_forget_threshold"`
	AggressiveBoost           float64 `yaml:"aggressive_boost" json:"aggressive_boost"`

	// Retrieval bounds for the facade fan-out.
	ShortTermLimit  int `yaml:"short_term_limit" json:"short_term_limit"`
	EpisodicLimit   int `yaml:"episodic_limit" json:"episodic_limit"`
	SemanticLimit   int `yaml:"semantic_limit" json:"semantic_limit"`
	ProceduralLimit int `yaml:"procedural_limit" json:"procedural_limit"`

	// Now is the clock used for timestamps and decay math. Defaults to
	// time.Now; tests inject a fixed clock.
	Now func() time.Time `yaml:"-" json:"-"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WorkingCapacity: 7,

		ShortTermMaxItems:  100,
		ShortTermTTL:       30 * time.Minute,
		ShortTermDecayRate: 0.5,

		EpisodicDecayRate:   0.05,
		SemanticDecayRate:   0.01,
		ProceduralDecayRate: 0.02,

		SignificanceThreshold: 0.6,
		RelatedLinks:          3,

		ConfidenceStep:    0.1,
		DefaultConfidence: 0.5,
		GraphDepth:        2,

		PromotionThreshold:    0.7,
		ExtractionWindow:      7 * 24 * time.Hour,
		ConsolidationInterval: time.Hour,

		ShortTermForgetThreshold:  0.2,
		EpisodicForgetThreshold:   0.25,
		SemanticForgetThreshold:   0.3,
		ProceduralForgetThreshold: 0.2,
		AggressiveBoost:           0.1,

		ShortTermLimit:  5,
		EpisodicLimit:   5,
		SemanticLimit:   5,
		ProceduralLimit: 3,

		Now: time.Now,
	}
}

// clock returns the configured clock, defaulting to time.Now.
func (c Config) clock() func() time.Time {
	if c.Now != nil {
		return c.Now
	}
	return time.Now
}
