package cognition

import (
	"fmt"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"
)

// LabeledExample is a task assessment with its known archetype, used to
// calibrate and sanity-check the classifier.
type LabeledExample struct {
	ID          string         `yaml:"id" json:"id"`
	Description string         `yaml:"description" json:"description"`
	Assessment  SelfAssessment `yaml:"assessment" json:"assessment"`
	Archetype   Archetype      `yaml:"archetype" json:"archetype"`
}

// SeedExamples returns the built-in labeled dataset covering all seven
// archetypes
func SeedExamples() []LabeledExample {
	return []LabeledExample{
		{
			ID:          "ex_001",
			Description: "Dynamic dashboard login with 2FA and redirects",
			Assessment:  SelfAssessment{0.39, 0.91, 0.58, 0.94, 0.64, RecommendTools},
			Archetype:   ArchetypeBrowserHeavy,
		},
		{
			ID:          "ex_002",
			Description: "Multi-step form submission with validation errors",
			Assessment:  SelfAssessment{0.47, 0.84, 0.61, 0.89, 0.69, RecommendTools},
			Archetype:   ArchetypeBrowserHeavy,
		},
		{
			ID:          "ex_003",
			Description: "PDF parsing and summarization for a report",
			Assessment:  SelfAssessment{0.92, 0.55, 0.88, 0.27, 0.91, RecommendSkills},
			Archetype:   ArchetypeSkillHeavy,
		},
		{
			ID:          "ex_004",
			Description: "Data cleanup and normalization for CSV export",
			Assessment:  SelfAssessment{0.89, 0.33, 0.93, 0.22, 0.90, RecommendSkills},
			Archetype:   ArchetypeRoutine,
		},
		{
			ID:          "ex_005",
			Description: "Multi-file dependency mapping in a codebase",
			Assessment:  SelfAssessment{0.73, 0.83, 0.69, 0.74, 0.74, RecommendBoth},
			Archetype:   ArchetypeHybrid,
		},
		{
			ID:          "ex_006",
			Description: "Research then automate browser actions based on findings",
			Assessment:  SelfAssessment{0.71, 0.81, 0.67, 0.74, 0.73, RecommendBoth},
			Archetype:   ArchetypeHybrid,
		},
		{
			ID:          "ex_007",
			Description: "Unknown API integration with unclear docs",
			Assessment:  SelfAssessment{0.31, 0.93, 0.46, 0.54, 0.37, RecommendSeekGuidance},
			Archetype:   ArchetypeUncertain,
		},
		{
			ID:          "ex_008",
			Description: "Ambiguous user instructions for a complex workflow",
			Assessment:  SelfAssessment{0.42, 0.77, 0.51, 0.48, 0.38, RecommendSeekGuidance},
			Archetype:   ArchetypeUncertain,
		},
		{
			ID:          "ex_009",
			Description: "Urgent browser automation under time pressure",
			Assessment:  SelfAssessment{0.53, 0.82, 0.63, 0.74, 0.70, RecommendTools},
			Archetype:   ArchetypeTimeSensitive,
		},
		{
			ID:          "ex_010",
			Description: "Recent failures detected in similar scraping tasks",
			Assessment:  SelfAssessment{0.57, 0.81, 0.32, 0.74, 0.44, RecommendTools},
			Archetype:   ArchetypeFailureRecovery,
		},
	}
}

// LoadSeedDataset reads labeled examples from a YAML file, falling back
// to the built-in set when path is empty.
func LoadSeedDataset(path string) ([]LabeledExample, error) {
	if path == "" {
		return SeedExamples(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed dataset: %w", err)
	}
	var examples []LabeledExample
	if err := yaml.Unmarshal(data, &examples); err != nil {
		return nil, fmt.Errorf("parse seed dataset: %w", err)
	}
	for _, ex := range examples {
		if err := ex.Assessment.Validate(); err != nil {
			return nil, fmt.Errorf("seed example %s: %w", ex.ID, err)
		}
	}
	return examples, nil
}

// SynthesizeExample jitters a labeled example by about ±0.05 per score,
// keeping its label, to grow the calibration set.
func SynthesizeExample(base LabeledExample, i int, rng *rand.Rand) LabeledExample {
	jitter := func() float64 { return (rng.Float64() - 0.5) * 0.1 }
	a := base.Assessment
	return LabeledExample{
		ID:          fmt.Sprintf("%s_synth_%d", base.ID, i),
		Description: base.Description,
		Assessment: SelfAssessment{
			SkillSufficiency:  clamp01(a.SkillSufficiency + jitter()),
			TaskComplexity:    clamp01(a.TaskComplexity + jitter()),
			RecentSuccessRate: clamp01(a.RecentSuccessRate + jitter()),
			ToolBenefit:       clamp01(a.ToolBenefit + jitter()),
			Confidence:        clamp01(a.Confidence + jitter()),
			Recommendation:    a.Recommendation,
		},
		Archetype: base.Archetype,
	}
}

// BuildSyntheticTrainingSet expands each seed with perSeed jittered
// variants
func BuildSyntheticTrainingSet(seeds []LabeledExample, perSeed int, rng *rand.Rand) []LabeledExample {
	out := make([]LabeledExample, 0, len(seeds)*(perSeed+1))
	for _, seed := range seeds {
		out = append(out, seed)
		for i := 0; i < perSeed; i++ {
			out = append(out, SynthesizeExample(seed, i, rng))
		}
	}
	return out
}
