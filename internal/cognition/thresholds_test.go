package cognition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAdjustThresholdsLocalRules(t *testing.T) {
	tests := []struct {
		name  string
		stats map[Archetype]ArchetypeStats
		check func(t *testing.T, got DecisionThresholds)
	}{
		{
			name:  "skill heavy failing raises skill confidence",
			stats: map[Archetype]ArchetypeStats{ArchetypeSkillHeavy: {SuccessRate: 0.6}},
			check: func(t *testing.T, got DecisionThresholds) {
				assert.InDelta(t, 0.85, got.SkillConfidence, 1e-9)
			},
		},
		{
			name:  "browser heavy succeeding lowers tool necessity",
			stats: map[Archetype]ArchetypeStats{ArchetypeBrowserHeavy: {SuccessRate: 0.95}},
			check: func(t *testing.T, got DecisionThresholds) {
				assert.InDelta(t, 0.65, got.ToolNecessity, 1e-9)
			},
		},
		{
			name:  "failure recovery failing raises guidance risk",
			stats: map[Archetype]ArchetypeStats{ArchetypeFailureRecovery: {SuccessRate: 0.4}},
			check: func(t *testing.T, got DecisionThresholds) {
				assert.InDelta(t, 0.6, got.GuidanceRisk, 1e-9)
			},
		},
		{
			name: "healthy archetypes leave thresholds alone",
			stats: map[Archetype]ArchetypeStats{
				ArchetypeSkillHeavy:      {SuccessRate: 0.85},
				ArchetypeBrowserHeavy:    {SuccessRate: 0.85},
				ArchetypeFailureRecovery: {SuccessRate: 0.55},
			},
			check: func(t *testing.T, got DecisionThresholds) {
				assert.Equal(t, DefaultThresholds(), got)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewThresholdOptimizer(DefaultThresholds(), nil, nil, nil, zap.NewNop())
			o.AdjustThresholds(context.Background(), tt.stats, nil)
			tt.check(t, o.Thresholds())
		})
	}
}

func TestAdjustThresholdsLocalCaps(t *testing.T) {
	o := NewThresholdOptimizer(DecisionThresholds{
		SkillConfidence: 0.94,
		ToolNecessity:   0.41,
		GuidanceRisk:    0.78,
		HybridBalance:   0.6,
	}, nil, nil, nil, zap.NewNop())

	stats := map[Archetype]ArchetypeStats{
		ArchetypeSkillHeavy:      {SuccessRate: 0.1},
		ArchetypeBrowserHeavy:    {SuccessRate: 0.99},
		ArchetypeFailureRecovery: {SuccessRate: 0.1},
	}
	for i := 0; i < 5; i++ {
		o.AdjustThresholds(context.Background(), stats, nil)
	}

	got := o.Thresholds()
	assert.InDelta(t, 0.95, got.SkillConfidence, 1e-9)
	assert.InDelta(t, 0.4, got.ToolNecessity, 1e-9)
	assert.InDelta(t, 0.8, got.GuidanceRisk, 1e-9)
}

func TestAdjustThresholdsUnstableFleet(t *testing.T) {
	source := &stubConfidence{matrix: map[string]float64{"nav": 50, "forms": 50}}
	o := NewThresholdOptimizer(DefaultThresholds(), source, nil, []string{"nav", "forms"}, zap.NewNop())
	o.randFn = func() float64 { return 0 }

	o.AdjustThresholds(context.Background(), nil, nil)

	// Average 50 pulls the skill threshold halfway toward 0.9
	assert.InDelta(t, 0.85, o.Thresholds().SkillConfidence, 1e-9)
}

func TestAdjustThresholdsStellarFleet(t *testing.T) {
	source := &stubConfidence{matrix: map[string]float64{"nav": 95, "forms": 95}}
	o := NewThresholdOptimizer(DefaultThresholds(), source, nil, []string{"nav", "forms"}, zap.NewNop())
	o.randFn = func() float64 { return 0 }

	o.AdjustThresholds(context.Background(), nil, nil)

	// Average 95 relaxes the skill threshold 30% of the way toward 0.7
	assert.InDelta(t, 0.77, o.Thresholds().SkillConfidence, 1e-9)
}

func TestAdjustThresholdsMidRangeFleetNoShift(t *testing.T) {
	source := &stubConfidence{matrix: map[string]float64{"nav": 75}}
	o := NewThresholdOptimizer(DefaultThresholds(), source, nil, []string{"nav"}, zap.NewNop())
	o.randFn = func() float64 { return 0 }

	o.AdjustThresholds(context.Background(), nil, nil)
	assert.Equal(t, DefaultThresholds(), o.Thresholds())
}

func TestAdjustThresholdsPersonalityBias(t *testing.T) {
	t.Run("cautious agent pushes further up on unstable fleet", func(t *testing.T) {
		source := &stubConfidence{matrix: map[string]float64{"nav": 50}}
		o := NewThresholdOptimizer(DefaultThresholds(), source, nil, []string{"nav"}, zap.NewNop())
		o.randFn = func() float64 { return 0 }

		o.AdjustThresholds(context.Background(), nil, &PersonalityBias{
			Cautiousness:    1,
			Experimentalism: 1,
		})

		// 0.05 base shift plus the full 0.15 caution bias, clamped
		assert.InDelta(t, 0.95, o.Thresholds().SkillConfidence, 1e-9)
	})

	t.Run("risk taker relaxes further on stellar fleet", func(t *testing.T) {
		source := &stubConfidence{matrix: map[string]float64{"nav": 95}}
		o := NewThresholdOptimizer(DefaultThresholds(), source, nil, []string{"nav"}, zap.NewNop())
		o.randFn = func() float64 { return 0 }

		o.AdjustThresholds(context.Background(), nil, &PersonalityBias{
			RiskTolerance:   1,
			Experimentalism: 1,
		})

		assert.InDelta(t, 0.62, o.Thresholds().SkillConfidence, 1e-9)
	})

	t.Run("experimentalism dampens the stochastic nudge", func(t *testing.T) {
		source := &stubConfidence{matrix: map[string]float64{"nav": 95}}
		o := NewThresholdOptimizer(DefaultThresholds(), source, nil, []string{"nav"}, zap.NewNop())
		o.randFn = func() float64 { return 1 }

		o.AdjustThresholds(context.Background(), nil, &PersonalityBias{
			RiskTolerance:   1,
			Experimentalism: 1,
		})

		// Full experimentalism cancels the random term entirely
		assert.InDelta(t, 0.62, o.Thresholds().SkillConfidence, 1e-9)
	})
}

func TestAdjustThresholdsStorageErrorIgnored(t *testing.T) {
	source := &stubConfidence{matrixErr: assert.AnError}
	o := NewThresholdOptimizer(DefaultThresholds(), source, nil, []string{"nav"}, zap.NewNop())

	o.AdjustThresholds(context.Background(), nil, nil)
	assert.Equal(t, DefaultThresholds(), o.Thresholds())
}

func TestAdjustThresholdsPersisted(t *testing.T) {
	state := &stubState{}
	o := NewThresholdOptimizer(DefaultThresholds(), nil, state, nil, zap.NewNop())

	o.AdjustThresholds(context.Background(),
		map[Archetype]ArchetypeStats{ArchetypeSkillHeavy: {SuccessRate: 0.6}}, nil)

	require.NotNil(t, state.thresholds)
	assert.InDelta(t, 0.85, state.thresholds.SkillConfidence, 1e-9)
}

func TestAdjustThresholdsPersistFailureKeepsMemory(t *testing.T) {
	state := &stubState{saveErr: assert.AnError}
	o := NewThresholdOptimizer(DefaultThresholds(), nil, state, nil, zap.NewNop())

	o.AdjustThresholds(context.Background(),
		map[Archetype]ArchetypeStats{ArchetypeSkillHeavy: {SuccessRate: 0.6}}, nil)

	assert.InDelta(t, 0.85, o.Thresholds().SkillConfidence, 1e-9)
}

func TestResetPersisted(t *testing.T) {
	state := &stubState{}
	o := NewThresholdOptimizer(DefaultThresholds(), nil, state, nil, zap.NewNop())

	o.Reset(DecisionThresholds{SkillConfidence: 0.75, ToolNecessity: 0.7, GuidanceRisk: 0.5, HybridBalance: 0.6})

	require.NotNil(t, state.thresholds)
	assert.InDelta(t, 0.75, state.thresholds.SkillConfidence, 1e-9)
}

func TestReset(t *testing.T) {
	o := NewThresholdOptimizer(DefaultThresholds(), nil, nil, nil, zap.NewNop())
	o.AdjustThresholds(context.Background(),
		map[Archetype]ArchetypeStats{ArchetypeSkillHeavy: {SuccessRate: 0.1}}, nil)
	assert.NotEqual(t, DefaultThresholds(), o.Thresholds())

	o.Reset(DefaultThresholds())
	assert.Equal(t, DefaultThresholds(), o.Thresholds())
}
