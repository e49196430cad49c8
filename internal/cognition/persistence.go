package cognition

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/floguru/antigravity/go/cognition/internal/circuitbreaker"
)

// StateStore persists the learning state that must survive restarts:
// the per-archetype rolling statistics and the active threshold set.
type StateStore interface {
	LoadArchetypeStats(ctx context.Context) (map[Archetype]ArchetypeStats, error)
	SaveArchetypeStats(ctx context.Context, archetype Archetype, stats ArchetypeStats) error
	LoadThresholds(ctx context.Context) (*DecisionThresholds, error)
	SaveThresholds(ctx context.Context, t DecisionThresholds) error
}

// PostgresStateStore keeps the archetype_stats rows and the
// decision_thresholds singleton in Postgres. Writes are write-behind:
// the in-memory copy stays authoritative, a failed write only costs the
// state carried across the next restart.
type PostgresStateStore struct {
	db *circuitbreaker.DatabaseWrapper
}

// NewPostgresStateStore creates a state store on the shared database
// wrapper
func NewPostgresStateStore(dbw *circuitbreaker.DatabaseWrapper) *PostgresStateStore {
	return &PostgresStateStore{db: dbw}
}

type archetypeStatsRow struct {
	Archetype           string  `db:"archetype"`
	Count               int64   `db:"count"`
	SuccessRate         float64 `db:"success_rate"`
	AvgDurationMs       float64 `db:"avg_duration_ms"`
	ConsecutiveFailures int     `db:"consecutive_failures"`
}

// LoadArchetypeStats returns every persisted archetype row. An empty map
// means a cold start on the seeded priors.
func (s *PostgresStateStore) LoadArchetypeStats(ctx context.Context) (map[Archetype]ArchetypeStats, error) {
	var rows []archetypeStatsRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT archetype, count, success_rate, avg_duration_ms, consecutive_failures
		FROM archetype_stats`); err != nil {
		return nil, fmt.Errorf("load archetype stats: %w", err)
	}

	out := make(map[Archetype]ArchetypeStats, len(rows))
	for _, r := range rows {
		out[Archetype(r.Archetype)] = ArchetypeStats{
			Count:               r.Count,
			SuccessRate:         r.SuccessRate,
			AvgDurationMs:       r.AvgDurationMs,
			ConsecutiveFailures: r.ConsecutiveFailures,
		}
	}
	return out, nil
}

// SaveArchetypeStats upserts one archetype's rolling statistics
func (s *PostgresStateStore) SaveArchetypeStats(ctx context.Context, archetype Archetype, stats ArchetypeStats) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO archetype_stats
			(archetype, count, success_rate, avg_duration_ms, consecutive_failures, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (archetype) DO UPDATE SET
			count = EXCLUDED.count,
			success_rate = EXCLUDED.success_rate,
			avg_duration_ms = EXCLUDED.avg_duration_ms,
			consecutive_failures = EXCLUDED.consecutive_failures,
			updated_at = NOW()`,
		string(archetype), stats.Count, stats.SuccessRate, stats.AvgDurationMs, stats.ConsecutiveFailures,
	); err != nil {
		return fmt.Errorf("save archetype stats: %w", err)
	}
	return nil
}

type thresholdsRow struct {
	SkillConfidence float64 `db:"skill_confidence"`
	ToolNecessity   float64 `db:"tool_necessity"`
	GuidanceRisk    float64 `db:"guidance_risk"`
	HybridBalance   float64 `db:"hybrid_balance"`
}

// LoadThresholds returns the persisted threshold singleton, or nil
// without error when no calibration has ever been persisted.
func (s *PostgresStateStore) LoadThresholds(ctx context.Context) (*DecisionThresholds, error) {
	var row thresholdsRow
	err := s.db.GetContext(ctx, &row, `
		SELECT skill_confidence, tool_necessity, guidance_risk, hybrid_balance
		FROM decision_thresholds
		WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load thresholds: %w", err)
	}
	return &DecisionThresholds{
		SkillConfidence: row.SkillConfidence,
		ToolNecessity:   row.ToolNecessity,
		GuidanceRisk:    row.GuidanceRisk,
		HybridBalance:   row.HybridBalance,
	}, nil
}

// SaveThresholds upserts the threshold singleton
func (s *PostgresStateStore) SaveThresholds(ctx context.Context, t DecisionThresholds) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO decision_thresholds
			(id, skill_confidence, tool_necessity, guidance_risk, hybrid_balance, updated_at)
		VALUES (1, $1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			skill_confidence = EXCLUDED.skill_confidence,
			tool_necessity = EXCLUDED.tool_necessity,
			guidance_risk = EXCLUDED.guidance_risk,
			hybrid_balance = EXCLUDED.hybrid_balance,
			updated_at = NOW()`,
		t.SkillConfidence, t.ToolNecessity, t.GuidanceRisk, t.HybridBalance,
	); err != nil {
		return fmt.Errorf("save thresholds: %w", err)
	}
	return nil
}
