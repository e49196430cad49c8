package cognition

import "sync"

// Classify maps a self-assessment onto one of the seven archetypes.
// Deterministic decision tree, evaluated top to bottom, first match wins.
func Classify(a SelfAssessment) Archetype {
	switch {
	case a.Confidence < 0.4 && a.TaskComplexity > 0.75:
		return ArchetypeUncertain
	case a.RecentSuccessRate < 0.5 && a.TaskComplexity > 0.7:
		return ArchetypeFailureRecovery
	case a.ToolBenefit > 0.75 && a.TaskComplexity > 0.7:
		return ArchetypeBrowserHeavy
	case a.SkillSufficiency > 0.8 && a.TaskComplexity < 0.5:
		return ArchetypeRoutine
	case a.SkillSufficiency > 0.75 && a.ToolBenefit < 0.5:
		return ArchetypeSkillHeavy
	case a.SkillSufficiency > 0.6 && a.ToolBenefit > 0.6:
		return ArchetypeHybrid
	default:
		return ArchetypeTimeSensitive
	}
}

// Score computes the weighted decision score in [0,1]. Complexity and
// tool benefit are inverted: the higher they are, the weaker the case
// for a pure-skills route.
func Score(a SelfAssessment) float64 {
	return a.SkillSufficiency*0.30 +
		(1-a.TaskComplexity)*0.25 +
		a.RecentSuccessRate*0.15 +
		(1-a.ToolBenefit)*0.25 +
		a.Confidence*0.05
}

// statsAlpha is the smoothing factor for the rolling archetype averages
const statsAlpha = 0.1

// StatsTable holds per-archetype rolling statistics, seeded with domain
// priors so a cold engine still behaves sensibly.
type StatsTable struct {
	mu    sync.RWMutex
	stats map[Archetype]*ArchetypeStats
}

// NewStatsTable creates a stats table seeded with the archetype priors
func NewStatsTable() *StatsTable {
	return &StatsTable{
		stats: map[Archetype]*ArchetypeStats{
			ArchetypeBrowserHeavy:    {SuccessRate: 0.80, AvgDurationMs: 1000},
			ArchetypeSkillHeavy:      {SuccessRate: 0.80, AvgDurationMs: 1000},
			ArchetypeHybrid:          {SuccessRate: 0.80, AvgDurationMs: 1000},
			ArchetypeUncertain:       {SuccessRate: 0.60, AvgDurationMs: 1000},
			ArchetypeRoutine:         {SuccessRate: 0.90, AvgDurationMs: 800},
			ArchetypeTimeSensitive:   {SuccessRate: 0.75, AvgDurationMs: 900},
			ArchetypeFailureRecovery: {SuccessRate: 0.50, AvgDurationMs: 1200},
		},
	}
}

// Restore overwrites the seeded priors with statistics persisted by an
// earlier run. Unknown archetypes are ignored.
func (t *StatsTable) Restore(saved map[Archetype]ArchetypeStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range saved {
		if _, ok := t.stats[k]; ok {
			restored := v
			t.stats[k] = &restored
		}
	}
}

// Update merges an execution outcome into the archetype's rolling stats
// and returns the updated snapshot.
func (t *StatsTable) Update(archetype Archetype, outcome ExecutionOutcome) ArchetypeStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.stats[archetype]
	s.Count++

	success := 0.0
	if outcome.Success {
		success = 1.0
	}
	s.SuccessRate = (1-statsAlpha)*s.SuccessRate + statsAlpha*success
	s.AvgDurationMs = (1-statsAlpha)*s.AvgDurationMs + statsAlpha*outcome.DurationMs

	if outcome.Success {
		s.ConsecutiveFailures = 0
	} else {
		s.ConsecutiveFailures++
	}

	return *s
}

// Get returns the current stats for one archetype
func (t *StatsTable) Get(archetype Archetype) ArchetypeStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return *t.stats[archetype]
}

// Snapshot returns a copy of the whole table for threshold calibration
func (t *StatsTable) Snapshot() map[Archetype]ArchetypeStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[Archetype]ArchetypeStats, len(t.stats))
	for k, v := range t.stats {
		out[k] = *v
	}
	return out
}
