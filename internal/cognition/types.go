package cognition

import (
	"fmt"
	"time"
)

// Recommendation is the closed set of execution routes the engine can
// recommend for a task.
type Recommendation string

const (
	RecommendSkills       Recommendation = "skills"
	RecommendTools        Recommendation = "tools"
	RecommendBoth         Recommendation = "both"
	RecommendSeekGuidance Recommendation = "seek_guidance"
)

// Valid reports whether r is one of the four known recommendations
func (r Recommendation) Valid() bool {
	switch r {
	case RecommendSkills, RecommendTools, RecommendBoth, RecommendSeekGuidance:
		return true
	}
	return false
}

// Archetype classifies a task's self-assessment. Archetypes are the keys
// for long-term statistics; they are derived per decision, never stored
// on the task itself.
type Archetype string

const (
	ArchetypeBrowserHeavy    Archetype = "BROWSER_HEAVY"
	ArchetypeSkillHeavy      Archetype = "SKILL_HEAVY"
	ArchetypeHybrid          Archetype = "HYBRID"
	ArchetypeUncertain       Archetype = "UNCERTAIN"
	ArchetypeRoutine         Archetype = "ROUTINE"
	ArchetypeTimeSensitive   Archetype = "TIME_SENSITIVE"
	ArchetypeFailureRecovery Archetype = "FAILURE_RECOVERY"
)

// Archetypes lists all seven archetypes in classification order
var Archetypes = []Archetype{
	ArchetypeBrowserHeavy,
	ArchetypeSkillHeavy,
	ArchetypeHybrid,
	ArchetypeUncertain,
	ArchetypeRoutine,
	ArchetypeTimeSensitive,
	ArchetypeFailureRecovery,
}

// SelfAssessment is the five-dimensional pre-execution scoring of a task,
// supplied by an external reasoning collaborator. All scores are in [0,1].
type SelfAssessment struct {
	SkillSufficiency  float64        `json:"skill_sufficiency" yaml:"skill_sufficiency"`
	TaskComplexity    float64        `json:"task_complexity" yaml:"task_complexity"`
	RecentSuccessRate float64        `json:"recent_success_rate" yaml:"recent_success_rate"`
	ToolBenefit       float64        `json:"tool_benefit" yaml:"tool_benefit"`
	Confidence        float64        `json:"confidence" yaml:"confidence"`
	Recommendation    Recommendation `json:"recommendation" yaml:"recommendation"`
}

// Validate rejects assessments with out-of-range scores or an unknown
// suggested recommendation
func (a SelfAssessment) Validate() error {
	scores := map[string]float64{
		"skill_sufficiency":   a.SkillSufficiency,
		"task_complexity":     a.TaskComplexity,
		"recent_success_rate": a.RecentSuccessRate,
		"tool_benefit":        a.ToolBenefit,
		"confidence":          a.Confidence,
	}
	for name, v := range scores {
		if v < 0 || v > 1 {
			return fmt.Errorf("assessment score %s out of range [0,1]: %v", name, v)
		}
	}
	if !a.Recommendation.Valid() {
		return fmt.Errorf("invalid suggested recommendation: %q", a.Recommendation)
	}
	return nil
}

// TaskContext describes the task a decision is requested for
type TaskContext struct {
	ID              string
	Description     string
	AvailableSkills []string
	Personality     *PersonalityBias
}

// ExecutionOutcome reports how a previously decided task actually went
type ExecutionOutcome struct {
	Success    bool
	DurationMs float64
	Error      string
}

// Decision is the engine's output for one task
type Decision struct {
	TaskID         string         `json:"task_id"`
	Assessment     SelfAssessment `json:"assessment"`
	Archetype      Archetype      `json:"archetype"`
	Recommendation Recommendation `json:"recommendation"`
	Score          float64        `json:"score"`
	Reason         string         `json:"reason"`
}

// ArchetypeStats carries the long-term rolling statistics for one
// archetype. SuccessRate and AvgDurationMs are exponential moving
// averages seeded with domain priors.
type ArchetypeStats struct {
	Count               int64
	SuccessRate         float64
	AvgDurationMs       float64
	ConsecutiveFailures int
}

// historyEntry correlates a decision with its later outcome inside the
// short-term ring buffer
type historyEntry struct {
	TaskID      string
	Assessment  SelfAssessment
	Archetype   Archetype
	Decision    *Decision
	Outcome     *ExecutionOutcome
	Personality *PersonalityBias
	Timestamp   time.Time
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
