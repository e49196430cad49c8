package cognition

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/floguru/antigravity/go/cognition/internal/metrics"
)

// DecisionThresholds are the four tunable cut-points converting a numeric
// score into a discrete recommendation. One process-wide active set.
type DecisionThresholds struct {
	SkillConfidence float64
	ToolNecessity   float64
	GuidanceRisk    float64
	HybridBalance   float64
}

// DefaultThresholds returns the boot-time threshold seed
func DefaultThresholds() DecisionThresholds {
	return DecisionThresholds{
		SkillConfidence: 0.8,
		ToolNecessity:   0.7,
		GuidanceRisk:    0.5,
		HybridBalance:   0.6,
	}
}

// PersonalityBias shifts threshold calibration per agent. The bias only
// affects the computed delta; it is never persisted per agent.
type PersonalityBias struct {
	RiskTolerance   float64 // 0 = fully cautious, 1 = fully risk-taking
	Cautiousness    float64 // 0 = reckless, 1 = ultra-cautious
	Experimentalism float64 // 0 = never try new tools, 1 = loves experiments
}

// ConfidenceSource exposes the fleet-wide skill trust data the cognition
// engine consults. Implemented by the meta-learning store.
type ConfidenceSource interface {
	GetConfidenceMatrix(ctx context.Context, skillNames []string) (map[string]float64, error)
	GetQuarantinedSkills(ctx context.Context) (map[string]struct{}, error)
}

// ThresholdOptimizer self-calibrates the decision thresholds from
// archetype outcomes and the global confidence matrix.
type ThresholdOptimizer struct {
	mu         sync.RWMutex
	thresholds DecisionThresholds

	confidence      ConfidenceSource
	state           StateStore
	referenceSkills []string
	randFn          func() float64
	logger          *zap.Logger
}

// NewThresholdOptimizer creates an optimizer seeded with the given
// thresholds. confidence may be nil; global calibration is then skipped.
// state may be nil; calibrated thresholds then live only in memory.
func NewThresholdOptimizer(seed DecisionThresholds, confidence ConfidenceSource, state StateStore, referenceSkills []string, logger *zap.Logger) *ThresholdOptimizer {
	o := &ThresholdOptimizer{
		thresholds:      seed,
		confidence:      confidence,
		state:           state,
		referenceSkills: referenceSkills,
		randFn:          rand.Float64,
		logger:          logger,
	}
	o.publishGauges()
	return o
}

// Thresholds returns a copy of the active threshold set
func (o *ThresholdOptimizer) Thresholds() DecisionThresholds {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.thresholds
}

// Reset replaces the active thresholds, e.g. on operator config reload.
// The reset set is persisted so it survives the next restart.
func (o *ThresholdOptimizer) Reset(t DecisionThresholds) {
	o.mu.Lock()
	o.thresholds = t
	o.mu.Unlock()
	o.persist(context.Background())
	o.publishGauges()
}

// AdjustThresholds recalibrates from an archetype stats snapshot, the
// global confidence matrix and an optional personality bias.
func (o *ThresholdOptimizer) AdjustThresholds(ctx context.Context, stats map[Archetype]ArchetypeStats, personality *PersonalityBias) {
	o.mu.Lock()
	o.applyLocalAdjustments(stats)
	o.mu.Unlock()

	o.applyGlobalAdjustment(ctx, personality)
	o.persist(ctx)

	metrics.ThresholdRecalibrations.Inc()
	o.publishGauges()
}

// persist writes the active thresholds behind the in-memory copy; a
// failed write only costs the calibration carried across a restart
func (o *ThresholdOptimizer) persist(ctx context.Context) {
	if o.state == nil {
		return
	}
	if err := o.state.SaveThresholds(ctx, o.Thresholds()); err != nil {
		o.logger.Warn("Threshold persist failed, keeping in-memory copy", zap.Error(err))
	}
}

func (o *ThresholdOptimizer) applyLocalAdjustments(stats map[Archetype]ArchetypeStats) {
	// Skill-heavy work failing: demand more evidence before trusting skills
	if s, ok := stats[ArchetypeSkillHeavy]; ok && s.SuccessRate < 0.7 {
		o.thresholds.SkillConfidence = math.Min(0.95, o.thresholds.SkillConfidence+0.05)
		o.logger.Info("Optimizer raised skill-confidence threshold",
			zap.Float64("skill_confidence", o.thresholds.SkillConfidence))
	}

	// Browser-heavy work consistently succeeding: reach for tools sooner
	if s, ok := stats[ArchetypeBrowserHeavy]; ok && s.SuccessRate > 0.9 {
		o.thresholds.ToolNecessity = math.Max(0.4, o.thresholds.ToolNecessity-0.05)
		o.logger.Info("Optimizer lowered tool-necessity threshold",
			zap.Float64("tool_necessity", o.thresholds.ToolNecessity))
	}

	// Failure recovery keeps failing: escalate to guidance earlier
	if s, ok := stats[ArchetypeFailureRecovery]; ok && s.SuccessRate < 0.5 {
		o.thresholds.GuidanceRisk = math.Min(0.8, o.thresholds.GuidanceRisk+0.1)
		o.logger.Info("Optimizer raised guidance-risk threshold",
			zap.Float64("guidance_risk", o.thresholds.GuidanceRisk))
	}
}

func (o *ThresholdOptimizer) applyGlobalAdjustment(ctx context.Context, personality *PersonalityBias) {
	if o.confidence == nil || len(o.referenceSkills) == 0 {
		return
	}

	matrix, err := o.confidence.GetConfidenceMatrix(ctx, o.referenceSkills)
	if err != nil || len(matrix) == 0 {
		if err != nil {
			o.logger.Warn("Optimizer could not fetch global confidence matrix", zap.Error(err))
		}
		return
	}

	var sum float64
	for _, score := range matrix {
		sum += score
	}
	avgGlobal := sum / float64(len(matrix))

	var biasShift float64
	if personality != nil {
		// Cautiousness pushes the threshold up, risk tolerance down.
		// Experimentalism dampens the stochastic nudge.
		biasShift = (personality.Cautiousness - personality.RiskTolerance) * 0.15
		biasShift += o.randFn() * 0.05 * (1 - personality.Experimentalism)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if avgGlobal < 60 {
		// Fleet is unstable: pull the skill threshold toward 0.9
		shift := (0.9 - o.thresholds.SkillConfidence) * 0.5
		if biasShift > 0 {
			shift += biasShift
		}
		o.thresholds.SkillConfidence = clampThreshold(o.thresholds.SkillConfidence + shift)
	} else if avgGlobal > 90 {
		// Fleet is stellar: relax toward 0.7, personality permitting
		shift := (o.thresholds.SkillConfidence - 0.7) * 0.3
		o.thresholds.SkillConfidence = clampThreshold(o.thresholds.SkillConfidence - shift + biasShift)
	}
}

func (o *ThresholdOptimizer) publishGauges() {
	t := o.Thresholds()
	metrics.ThresholdValue.WithLabelValues("skill_confidence").Set(t.SkillConfidence)
	metrics.ThresholdValue.WithLabelValues("tool_necessity").Set(t.ToolNecessity)
	metrics.ThresholdValue.WithLabelValues("guidance_risk").Set(t.GuidanceRisk)
	metrics.ThresholdValue.WithLabelValues("hybrid_balance").Set(t.HybridBalance)
}

func clampThreshold(v float64) float64 {
	return math.Min(0.95, math.Max(0.1, v))
}
