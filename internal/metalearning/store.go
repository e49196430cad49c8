package metalearning

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/floguru/antigravity/go/cognition/internal/circuitbreaker"
	"github.com/floguru/antigravity/go/cognition/internal/metrics"
)

// MatrixChannel is the pub/sub channel carrying matrix version bumps to
// other instances
const MatrixChannel = "antigravity:matrix_updated"

// emaAlpha smooths the per-skill rolling duration average
const emaAlpha = 0.1

// quarantineThreshold is the aggregate success rate below which a skill
// is quarantined fleet-wide
const quarantineThreshold = 0.3

// ExperienceReport is one skill invocation result reported by an agent
type ExperienceReport struct {
	SkillName  string
	Domain     string // empty means domain-less
	Success    bool
	DurationMs float64
}

// Config holds meta-learning store tunables
type Config struct {
	// RefreshInterval drives the periodic local cache refresh
	RefreshInterval time.Duration
	// RecomputeMinGap throttles triggered matrix recomputations
	RecomputeMinGap time.Duration
}

// Store aggregates per-skill success statistics across the fleet,
// derives the global confidence matrix and maintains the quarantine set.
// It keeps an in-process cache warmed from storage and an in-memory
// fallback score per skill so lookups degrade gracefully when storage is
// unavailable.
type Store struct {
	db     *circuitbreaker.DatabaseWrapper
	redis  *redis.Client
	logger *zap.Logger

	mu               sync.RWMutex
	matrixCache      map[string]float64
	matrixVersion    int64
	quarantined      map[string]struct{}
	quarantineLoaded bool
	fallback         map[string]float64

	recomputeLimiter *rate.Limiter
	refreshInterval  time.Duration
	stopCh           chan struct{}
	stopOnce         sync.Once
}

// NewStore creates a confidence store. redisClient may be nil; version
// broadcasts are then skipped.
func NewStore(dbw *circuitbreaker.DatabaseWrapper, redisClient *redis.Client, cfg Config, logger *zap.Logger) *Store {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Minute
	}
	if cfg.RecomputeMinGap <= 0 {
		cfg.RecomputeMinGap = time.Minute
	}
	return &Store{
		db:               dbw,
		redis:            redisClient,
		logger:           logger,
		matrixCache:      make(map[string]float64),
		quarantined:      make(map[string]struct{}),
		fallback:         make(map[string]float64),
		recomputeLimiter: rate.NewLimiter(rate.Every(cfg.RecomputeMinGap), 1),
		refreshInterval:  cfg.RefreshInterval,
		stopCh:           make(chan struct{}),
	}
}

// Start warms the local cache and launches the periodic refresh loop and
// the pub/sub invalidation listener.
func (s *Store) Start(ctx context.Context) {
	if err := s.refreshLocalCache(ctx); err != nil {
		s.logger.Warn("Initial confidence cache refresh failed", zap.Error(err))
	}
	go s.refreshLoop(ctx)
	if s.redis != nil {
		go s.subscribeInvalidations(ctx)
	}
}

// Close stops the background loops
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// RecordExperience upserts the per-skill rolling statistics for one
// skill invocation. Counters are incremented atomically in SQL so
// concurrent reports never lose updates. Storage failure is logged and
// absorbed; the in-memory fallback score always applies.
func (s *Store) RecordExperience(ctx context.Context, report ExperienceReport) {
	// In-memory fallback first so the store stays useful without storage
	s.mu.Lock()
	score, ok := s.fallback[report.SkillName]
	if !ok {
		score = 50
	}
	if report.Success {
		score += 2
	} else {
		score -= 5
	}
	s.fallback[report.SkillName] = clampScore(score)
	s.mu.Unlock()

	successInc := 0
	if report.Success {
		successInc = 1
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE skill_performance_metrics SET
			success_count = success_count + $3,
			total_count = total_count + 1,
			avg_duration_ms = (1 - $5::float8) * avg_duration_ms + $5::float8 * $4,
			confidence_score = LEAST(100, GREATEST(0, ROUND(
				(success_count + $3)::numeric / (total_count + 1) * 100 * 0.8
				+ LEAST(20, (total_count + 1) * 2)))),
			last_used_at = NOW(),
			updated_at = NOW()
		WHERE skill_name = $1 AND domain IS NOT DISTINCT FROM $2`,
		report.SkillName, domainArg(report.Domain), successInc, report.DurationMs, emaAlpha,
	)
	if err != nil {
		metrics.ExperienceReports.WithLabelValues("storage_error").Inc()
		s.logger.Error("Failed to record experience",
			zap.String("skill", report.SkillName),
			zap.Error(err))
		return
	}

	if rows, _ := res.RowsAffected(); rows == 0 {
		// First report for this skill/domain pair
		initialConfidence := 50
		if report.Success {
			initialConfidence = 85
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO skill_performance_metrics
				(skill_name, domain, success_count, total_count, avg_duration_ms, confidence_score)
			VALUES ($1, $2, $3, 1, $4, $5)
			ON CONFLICT (skill_name, domain) DO NOTHING`,
			report.SkillName, domainArg(report.Domain), successInc, report.DurationMs, initialConfidence,
		)
		if err != nil {
			metrics.ExperienceReports.WithLabelValues("storage_error").Inc()
			s.logger.Error("Failed to insert experience",
				zap.String("skill", report.SkillName),
				zap.Error(err))
			return
		}
	}

	metrics.ExperienceReports.WithLabelValues("recorded").Inc()
}

// GetConfidenceMatrix returns the 0-100 fleet confidence score for each
// requested skill. Cached entries are served locally; misses are fetched
// from storage and warm the cache; storage failure falls back to the
// in-memory session scores.
func (s *Store) GetConfidenceMatrix(ctx context.Context, skillNames []string) (map[string]float64, error) {
	matrix := make(map[string]float64, len(skillNames))
	if len(skillNames) == 0 {
		return matrix, nil
	}

	var missing []string
	s.mu.RLock()
	for _, name := range skillNames {
		if score, ok := s.matrixCache[name]; ok {
			matrix[name] = score
		} else {
			missing = append(missing, name)
		}
	}
	s.mu.RUnlock()

	metrics.ConfidenceCacheHits.Add(float64(len(skillNames) - len(missing)))
	if len(missing) == 0 {
		return matrix, nil
	}
	metrics.ConfidenceCacheMisses.Add(float64(len(missing)))

	var rows []struct {
		SkillName  string  `db:"skill_name"`
		Confidence float64 `db:"confidence_score"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT skill_name, MAX(confidence_score) AS confidence_score
		FROM skill_performance_metrics
		WHERE skill_name = ANY($1)
		GROUP BY skill_name`,
		pq.Array(missing),
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		// Storage unavailable: serve the in-memory session fallback
		metrics.ConfidenceFallbacks.Inc()
		s.logger.Warn("Storage unavailable, using in-memory fallback scores",
			zap.Strings("skills", missing),
			zap.Error(err))
		s.mu.RLock()
		for _, name := range missing {
			if score, ok := s.fallback[name]; ok {
				matrix[name] = score
			} else {
				matrix[name] = 50
			}
		}
		s.mu.RUnlock()
		return matrix, nil
	}

	s.mu.Lock()
	for _, row := range rows {
		matrix[row.SkillName] = row.Confidence
		s.matrixCache[row.SkillName] = row.Confidence
	}
	s.mu.Unlock()

	return matrix, nil
}

// GetQuarantinedSkills returns the set of skills currently quarantined
// fleet-wide, lazily populated from storage once and then served from
// memory.
func (s *Store) GetQuarantinedSkills(ctx context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	loaded := s.quarantineLoaded
	s.mu.RUnlock()

	if !loaded {
		var names []string
		err := s.db.SelectContext(ctx, &names, `
			SELECT DISTINCT skill_name FROM skill_performance_metrics
			WHERE is_quarantined = TRUE`)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Quarantine set load failed", zap.Error(err))
		} else {
			s.mu.Lock()
			for _, name := range names {
				s.quarantined[name] = struct{}{}
			}
			s.quarantineLoaded = true
			metrics.QuarantinedSkills.Set(float64(len(s.quarantined)))
			s.mu.Unlock()
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.quarantined))
	for name := range s.quarantined {
		out[name] = struct{}{}
	}
	return out, nil
}

// MatrixVersion returns the matrix version this instance currently holds
func (s *Store) MatrixVersion() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matrixVersion
}

func (s *Store) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.refreshLocalCache(ctx); err != nil {
				s.logger.Warn("Confidence cache refresh failed", zap.Error(err))
			}
		}
	}
}

// refreshLocalCache rebuilds the matrix cache and quarantine set from
// storage, then swaps them in atomically.
func (s *Store) refreshLocalCache(ctx context.Context) error {
	var matrixRows []struct {
		SkillID       string  `db:"skill_id"`
		Confidence    float64 `db:"confidence"`
		MatrixVersion int64   `db:"matrix_version"`
	}
	if err := s.db.SelectContext(ctx, &matrixRows, `
		SELECT skill_id, confidence, matrix_version
		FROM global_confidence_matrix`); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	var quarantinedNames []string
	if err := s.db.SelectContext(ctx, &quarantinedNames, `
		SELECT DISTINCT skill_name FROM skill_performance_metrics
		WHERE is_quarantined = TRUE`); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	newCache := make(map[string]float64, len(matrixRows))
	var version int64
	for _, row := range matrixRows {
		newCache[row.SkillID] = row.Confidence
		if row.MatrixVersion > version {
			version = row.MatrixVersion
		}
	}
	newQuarantine := make(map[string]struct{}, len(quarantinedNames))
	for _, name := range quarantinedNames {
		newQuarantine[name] = struct{}{}
	}

	s.mu.Lock()
	s.matrixCache = newCache
	s.quarantined = newQuarantine
	s.quarantineLoaded = true
	if version > 0 {
		s.matrixVersion = version
	}
	s.mu.Unlock()

	metrics.QuarantinedSkills.Set(float64(len(newQuarantine)))
	if version > 0 {
		metrics.MatrixVersion.Set(float64(version))
	}
	return nil
}

func domainArg(domain string) sql.NullString {
	if domain == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: domain, Valid: true}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
