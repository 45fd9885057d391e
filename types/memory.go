package types

// MemoryCategory identifies one of the five memory tiers.
type MemoryCategory string

const (
	// MemoryWorking is the fixed-capacity recency ring for the current task.
	MemoryWorking MemoryCategory = "working"

	// MemoryShortTerm is the time-boxed cache of recent experiences.
	MemoryShortTerm MemoryCategory = "short_term"

	// MemoryEpisodic is the durable store of significant experiences.
	MemoryEpisodic MemoryCategory = "episodic"

	// MemorySemantic is the confidence-weighted concept graph.
	MemorySemantic MemoryCategory = "semantic"

	// MemoryProcedural is the skill library keyed by trigger patterns.
	MemoryProcedural MemoryCategory = "procedural"
)

// ExperienceKind tags the payload variant carried by an experience.
type ExperienceKind string

const (
	ExperienceObservation ExperienceKind = "observation"
	ExperienceAction      ExperienceKind = "action"
	ExperienceOutcome     ExperienceKind = "outcome"
	ExperienceKnowledge   ExperienceKind = "knowledge"
	ExperienceSkill       ExperienceKind = "skill"
)

// ExperiencePayload is the tagged payload every memory record carries.
// Kind selects the variant; Knowledge and Skill are populated only for
// their respective kinds. Data holds genuinely open-ended metadata and
// is never probed for well-known fields.
type ExperiencePayload struct {
	Kind         ExperienceKind     `json:"kind"`
	Content      string             `json:"content"`
	Significance float64            `json:"significance"`
	Tags         []string           `json:"tags,omitempty"`
	Emotions     map[string]float64 `json:"emotions,omitempty"`
	Data         map[string]any     `json:"data,omitempty"`

	Knowledge *KnowledgeFact `json:"knowledge,omitempty"`
	Skill     *SkillSample   `json:"skill,omitempty"`
}

// KnowledgeFact describes a concept to merge into semantic memory.
type KnowledgeFact struct {
	ConceptID      string              `json:"concept_id,omitempty"`
	Name           string              `json:"name"`
	Properties     map[string]any      `json:"properties,omitempty"`
	Relationships  map[string][]string `json:"relationships,omitempty"`
	Confidence     float64             `json:"confidence,omitempty"`
	SourceEpisodes []string            `json:"source_episodes,omitempty"`
}

// SkillSample describes one execution of a skill to merge into
// procedural memory. Outcome is the observed success in [0,1].
type SkillSample struct {
	SkillID    string         `json:"skill_id,omitempty"`
	Name       string         `json:"name"`
	Triggers   map[string]any `json:"triggers,omitempty"`
	Actions    []string       `json:"actions,omitempty"`
	Outcome    float64        `json:"outcome"`
	Refinement string         `json:"refinement,omitempty"`
}

// MemoryStats is a read-only snapshot of per-tier record counts.
type MemoryStats struct {
	ByTier map[MemoryCategory]int `json:"by_tier"`
	Total  int                    `json:"total"`
}
