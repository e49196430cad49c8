package metalearning

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/floguru/antigravity/go/cognition/internal/metrics"
)

// RecomputeGlobalMatrix aggregates success rate and latency per skill
// across all recorded metrics, writes a fresh matrix version, flags
// quarantined skills, and broadcasts the new version to other
// instances. Triggered calls are throttled; the periodic job always
// runs. The decision path is never blocked: the new cache is built on
// the side and swapped in at the end.
func (s *Store) RecomputeGlobalMatrix(ctx context.Context) error {
	if !s.recomputeLimiter.Allow() {
		s.logger.Debug("Matrix recompute throttled")
		return nil
	}

	start := time.Now()
	defer func() {
		metrics.MatrixRecomputeDuration.Observe(time.Since(start).Seconds())
	}()

	var rows []struct {
		SkillName   string  `db:"skill_name"`
		Samples     int64   `db:"samples"`
		SuccessRate float64 `db:"success_rate"`
		AvgLatency  float64 `db:"avg_latency"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT skill_name,
		       COUNT(*) AS samples,
		       AVG(CASE WHEN success_count > 0 THEN 1.0 ELSE 0.0 END) AS success_rate,
		       COALESCE(AVG(avg_duration_ms), 0) AS avg_latency
		FROM skill_performance_metrics
		GROUP BY skill_name`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("aggregate skill metrics: %w", err)
	}

	version := time.Now().UnixMilli()
	newCache := make(map[string]float64, len(rows))
	newQuarantine := make(map[string]struct{})

	for _, row := range rows {
		quarantined := row.SuccessRate < quarantineThreshold
		confidence := row.SuccessRate * 100

		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO global_confidence_matrix (skill_id, confidence, avg_latency_ms, matrix_version, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (skill_id) DO UPDATE SET
				confidence = EXCLUDED.confidence,
				avg_latency_ms = EXCLUDED.avg_latency_ms,
				matrix_version = EXCLUDED.matrix_version,
				updated_at = NOW()`,
			row.SkillName, confidence, int(math.Round(row.AvgLatency)), version,
		); err != nil {
			return fmt.Errorf("upsert matrix row for %s: %w", row.SkillName, err)
		}

		if _, err := s.db.ExecContext(ctx, `
			UPDATE skill_performance_metrics SET
				is_quarantined = $2,
				quarantine_since = CASE
					WHEN $2 AND quarantine_since IS NULL THEN NOW()
					WHEN NOT $2 THEN NULL
					ELSE quarantine_since
				END,
				last_global_success_rate = $3
			WHERE skill_name = $1`,
			row.SkillName, quarantined, row.SuccessRate,
		); err != nil {
			return fmt.Errorf("update quarantine for %s: %w", row.SkillName, err)
		}

		newCache[row.SkillName] = confidence
		if quarantined {
			newQuarantine[row.SkillName] = struct{}{}
		}
	}

	// Swap the freshly computed view in without holding any lock during
	// the storage writes above
	s.mu.Lock()
	s.matrixCache = newCache
	s.quarantined = newQuarantine
	s.quarantineLoaded = true
	s.matrixVersion = version
	s.mu.Unlock()

	metrics.MatrixVersion.Set(float64(version))
	metrics.QuarantinedSkills.Set(float64(len(newQuarantine)))

	s.broadcastVersion(ctx, version)

	s.logger.Info("Global confidence matrix recomputed",
		zap.Int64("version", version),
		zap.Int("skills", len(newCache)),
		zap.Int("quarantined", len(newQuarantine)),
	)
	return nil
}

// broadcastVersion notifies other instances so they can invalidate
// their local caches
func (s *Store) broadcastVersion(ctx context.Context, version int64) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Publish(ctx, MatrixChannel, strconv.FormatInt(version, 10)).Err(); err != nil {
		s.logger.Warn("Matrix version broadcast failed", zap.Error(err))
	}
}

// subscribeInvalidations listens for version bumps published by other
// instances and refreshes the local cache when a foreign version shows
// up.
func (s *Store) subscribeInvalidations(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, MatrixChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			version, err := strconv.ParseInt(msg.Payload, 10, 64)
			if err != nil {
				s.logger.Warn("Ignoring malformed matrix version broadcast",
					zap.String("payload", msg.Payload))
				continue
			}
			if version == s.MatrixVersion() {
				continue // our own broadcast
			}
			s.logger.Info("Matrix version bump received, refreshing local cache",
				zap.Int64("version", version))
			if err := s.refreshLocalCache(ctx); err != nil {
				s.logger.Warn("Cache refresh after version bump failed", zap.Error(err))
			}
		}
	}
}

// RunRecomputeLoop periodically recomputes the global matrix until the
// context is cancelled or the store is closed.
func (s *Store) RunRecomputeLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RecomputeGlobalMatrix(ctx); err != nil {
				s.logger.Error("Matrix recompute failed", zap.Error(err))
			}
		}
	}
}
