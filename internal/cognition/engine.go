package cognition

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/floguru/antigravity/go/cognition/internal/metrics"
)

// EngineConfig holds decision engine tunables
type EngineConfig struct {
	// HistorySize bounds the short-term decision ring buffer
	HistorySize int
	// RecalibrateEvery triggers threshold recalibration after this many
	// outcomes per archetype
	RecalibrateEvery int
}

// DefaultEngineConfig returns the standard engine tunables
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{HistorySize: 10, RecalibrateEvery: 5}
}

// Engine is the cognitive decision policy. It classifies a task's
// self-assessment into an archetype, scores it, routes it through the
// active thresholds and deterministic override rules, and learns from
// reported outcomes.
type Engine struct {
	cfg        EngineConfig
	stats      *StatsTable
	optimizer  *ThresholdOptimizer
	confidence ConfidenceSource
	state      StateStore
	logger     *zap.Logger

	mu      sync.Mutex
	history []*historyEntry
}

// NewEngine creates a decision engine. confidence may be nil, in which
// case quarantine filtering and the global confidence adjustment are
// skipped. state may be nil; archetype statistics then live only in
// memory.
func NewEngine(cfg EngineConfig, optimizer *ThresholdOptimizer, confidence ConfidenceSource, state StateStore, logger *zap.Logger) *Engine {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 10
	}
	if cfg.RecalibrateEvery <= 0 {
		cfg.RecalibrateEvery = 5
	}
	return &Engine{
		cfg:        cfg,
		stats:      NewStatsTable(),
		optimizer:  optimizer,
		confidence: confidence,
		state:      state,
		logger:     logger,
	}
}

// RestoreState replaces the seeded archetype priors with statistics
// persisted by an earlier run. No-op without a state store or persisted
// rows.
func (e *Engine) RestoreState(ctx context.Context) error {
	if e.state == nil {
		return nil
	}
	saved, err := e.state.LoadArchetypeStats(ctx)
	if err != nil {
		return err
	}
	if len(saved) > 0 {
		e.stats.Restore(saved)
		e.logger.Info("Archetype statistics restored", zap.Int("archetypes", len(saved)))
	}
	return nil
}

// Stats exposes the archetype statistics table
func (e *Engine) Stats() *StatsTable {
	return e.stats
}

// Decide produces a decision for the task. durationVariance is the
// relative duration drift observed for similar recent tasks (0 when
// unknown).
func (e *Engine) Decide(ctx context.Context, task TaskContext, assessment SelfAssessment, durationVariance float64) (*Decision, error) {
	if err := assessment.Validate(); err != nil {
		return nil, fmt.Errorf("invalid self-assessment: %w", err)
	}

	taskID := task.ID
	if taskID == "" {
		taskID = uuid.New().String()
	}

	adjusted := e.applyGlobalAdjustment(ctx, task, assessment)

	archetype := Classify(adjusted)
	score := Score(adjusted)

	rec, rule := e.baseRecommendation(score)
	rec, rule = applyOverrides(adjusted, rec, rule)
	rec, rule = e.refineForArchetype(archetype, rec, rule, durationVariance)

	if rule == "" {
		rule = "Base Policy"
	}

	decision := &Decision{
		TaskID:         taskID,
		Assessment:     adjusted,
		Archetype:      archetype,
		Recommendation: rec,
		Score:          math.Round(score*100) / 100,
		Reason:         fmt.Sprintf("Score: %.2f | Rule: %s", score, rule),
	}

	e.remember(&historyEntry{
		TaskID:      taskID,
		Assessment:  adjusted,
		Archetype:   archetype,
		Decision:    decision,
		Personality: task.Personality,
		Timestamp:   time.Now(),
	})

	metrics.DecisionsTotal.WithLabelValues(string(archetype), string(rec)).Inc()
	metrics.DecisionScore.Observe(decision.Score)

	e.logger.Debug("Decision produced",
		zap.String("task_id", taskID),
		zap.String("archetype", string(archetype)),
		zap.String("recommendation", string(rec)),
		zap.Float64("score", decision.Score),
		zap.String("rule", rule),
	)

	return decision, nil
}

// applyGlobalAdjustment filters quarantined skills out of the task's
// allow-list and scales the agent-local scores by the fleet's confidence
// in the remaining skills. Storage trouble degrades to no adjustment.
func (e *Engine) applyGlobalAdjustment(ctx context.Context, task TaskContext, a SelfAssessment) SelfAssessment {
	multiplier := 1.0

	if e.confidence != nil && len(task.AvailableSkills) > 0 {
		skills := task.AvailableSkills

		quarantined, err := e.confidence.GetQuarantinedSkills(ctx)
		if err != nil {
			e.logger.Warn("Quarantine lookup failed, using full skill list", zap.Error(err))
		} else if len(quarantined) > 0 {
			filtered := make([]string, 0, len(skills))
			var blocked []string
			for _, s := range skills {
				if _, bad := quarantined[s]; bad {
					blocked = append(blocked, s)
					continue
				}
				filtered = append(filtered, s)
			}
			if len(blocked) > 0 {
				e.logger.Warn("Quarantine blocked unstable skills",
					zap.Strings("blocked", blocked))
			}
			skills = filtered
		}

		if len(skills) > 0 {
			matrix, err := e.confidence.GetConfidenceMatrix(ctx, skills)
			if err != nil {
				e.logger.Warn("Confidence matrix lookup failed, skipping global adjustment", zap.Error(err))
			} else if len(matrix) > 0 {
				var sum float64
				for _, score := range matrix {
					sum += score
				}
				avg := sum / float64(len(matrix))
				// Map the 0-100 fleet score onto a 0.8-1.2 multiplier
				multiplier = 0.8 + (avg/100)*0.4
			}
		}
	}

	return SelfAssessment{
		SkillSufficiency:  clamp01(a.SkillSufficiency * multiplier),
		TaskComplexity:    clamp01(a.TaskComplexity),
		RecentSuccessRate: clamp01(a.RecentSuccessRate * multiplier),
		ToolBenefit:       clamp01(a.ToolBenefit),
		Confidence:        clamp01(a.Confidence),
		Recommendation:    a.Recommendation,
	}
}

// baseRecommendation converts the score into a route using the active
// thresholds
func (e *Engine) baseRecommendation(score float64) (Recommendation, string) {
	t := e.optimizer.Thresholds()
	switch {
	case score >= t.SkillConfidence:
		return RecommendSkills, ""
	case score >= t.HybridBalance:
		return RecommendBoth, ""
	case score >= t.ToolNecessity:
		return RecommendTools, ""
	default:
		return RecommendSeekGuidance, ""
	}
}

// applyOverrides enforces the deterministic behavior rules. Evaluated in
// order, first match wins.
func applyOverrides(a SelfAssessment, rec Recommendation, rule string) (Recommendation, string) {
	switch {
	case a.Confidence < 0.4:
		return RecommendSeekGuidance, "Low Confidence"
	case a.TaskComplexity > 0.8 && a.ToolBenefit > 0.5:
		return RecommendTools, "Complexity Requires Tools"
	case a.TaskComplexity < 0.4 && a.SkillSufficiency > 0.5:
		return RecommendSkills, "Simple Task"
	case a.SkillSufficiency > 0.6 && a.ToolBenefit > 0.6:
		return RecommendBoth, "Balanced Strengths"
	default:
		return rec, rule
	}
}

// refineForArchetype applies long-term pattern refinement. The
// consecutive-failure lockout overrides every other rule.
func (e *Engine) refineForArchetype(archetype Archetype, rec Recommendation, rule string, durationVariance float64) (Recommendation, string) {
	s := e.stats.Get(archetype)

	refined, refinedRule := rec, rule
	switch {
	case s.SuccessRate < 0.6 && rec == RecommendSkills:
		refined, refinedRule = RecommendBoth, "Low Archetype Success"
	case durationVariance > 0.2 && rec != RecommendTools:
		if rec == RecommendSkills {
			refined, refinedRule = RecommendBoth, "Duration Spike"
		} else if rec == RecommendBoth {
			refined, refinedRule = RecommendTools, "Duration Spike"
		}
	case s.SuccessRate > 0.9 && rec == RecommendBoth:
		refined, refinedRule = RecommendSkills, "High Success Rate"
	}

	// Hard lockout: three consecutive failures always escalate
	if s.ConsecutiveFailures >= 3 && refined != RecommendSeekGuidance {
		return RecommendSeekGuidance, "Consecutive Failures"
	}

	return refined, refinedRule
}

// remember pushes the entry into the bounded short-term history,
// evicting the oldest beyond capacity
func (e *Engine) remember(entry *historyEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, entry)
	if len(e.history) > e.cfg.HistorySize {
		e.history = e.history[len(e.history)-e.cfg.HistorySize:]
	}
}

// RecordOutcome correlates an execution outcome with a prior decision.
// Unknown task ids are counted and dropped; the learning signal is lost
// but the caller is never failed.
func (e *Engine) RecordOutcome(ctx context.Context, taskID string, outcome ExecutionOutcome) {
	e.mu.Lock()
	var entry *historyEntry
	for i := len(e.history) - 1; i >= 0; i-- {
		if e.history[i].TaskID == taskID {
			entry = e.history[i]
			break
		}
	}
	if entry != nil {
		entry.Outcome = &outcome
	}
	e.mu.Unlock()

	if entry == nil {
		metrics.OutcomesDropped.Inc()
		e.logger.Warn("Outcome for unknown task dropped, stats not updated",
			zap.String("task_id", taskID))
		return
	}

	updated := e.stats.Update(entry.Archetype, outcome)

	if e.state != nil {
		if err := e.state.SaveArchetypeStats(ctx, entry.Archetype, updated); err != nil {
			e.logger.Warn("Archetype stats persist failed, keeping in-memory copy",
				zap.String("archetype", string(entry.Archetype)),
				zap.Error(err))
		}
	}

	status := "failure"
	if outcome.Success {
		status = "success"
	}
	metrics.OutcomesRecorded.WithLabelValues(string(entry.Archetype), status).Inc()

	// Dynamic calibration once enough outcomes have accumulated. The
	// personality bias of the task that triggered recalibration shapes it.
	if updated.Count%int64(e.cfg.RecalibrateEvery) == 0 {
		e.optimizer.AdjustThresholds(ctx, e.stats.Snapshot(), entry.Personality)
	}
}

// RecentDecisions returns a copy of the short-term decision history,
// newest last
func (e *Engine) RecentDecisions() []Decision {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Decision, 0, len(e.history))
	for _, h := range e.history {
		out = append(out, *h.Decision)
	}
	return out
}
