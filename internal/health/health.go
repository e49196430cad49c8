package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/floguru/antigravity/go/cognition/internal/circuitbreaker"
)

// CheckStatus represents the result of a health check
type CheckStatus string

const (
	StatusHealthy   CheckStatus = "healthy"
	StatusDegraded  CheckStatus = "degraded"
	StatusUnhealthy CheckStatus = "unhealthy"
)

// CheckResult contains the result of one component check
type CheckResult struct {
	Component string      `json:"component"`
	Status    CheckStatus `json:"status"`
	Message   string      `json:"message,omitempty"`
	Error     string      `json:"error,omitempty"`
	LatencyMs int64       `json:"latency_ms"`
	Critical  bool        `json:"critical"`
}

// Checker defines a single component health check
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
	IsCritical() bool
}

// Manager runs registered checks and serves HTTP probes
type Manager struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	logger   *zap.Logger
}

// NewManager creates a health manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		checkers: make(map[string]Checker),
		logger:   logger,
	}
}

// Register adds a health check
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[c.Name()] = c
}

// Check runs all registered checks
func (m *Manager) Check(ctx context.Context) (CheckStatus, map[string]CheckResult) {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	overall := StatusHealthy
	results := make(map[string]CheckResult, len(checkers))
	for _, c := range checkers {
		res := c.Check(ctx)
		results[c.Name()] = res
		switch res.Status {
		case StatusUnhealthy:
			if c.IsCritical() {
				overall = StatusUnhealthy
			} else if overall == StatusHealthy {
				overall = StatusDegraded
			}
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}
	return overall, results
}

// Handler serves the health endpoint with per-component detail
func (m *Manager) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		overall, results := m.Check(ctx)

		w.Header().Set("Content-Type", "application/json")
		if overall == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     overall,
			"components": results,
		})
	}
}

// DatabaseChecker checks Postgres connectivity through the breaker
type DatabaseChecker struct {
	db *circuitbreaker.DatabaseWrapper
}

// NewDatabaseChecker creates a database health checker
func NewDatabaseChecker(db *circuitbreaker.DatabaseWrapper) *DatabaseChecker {
	return &DatabaseChecker{db: db}
}

func (d *DatabaseChecker) Name() string     { return "database" }
func (d *DatabaseChecker) IsCritical() bool { return true }

func (d *DatabaseChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: "database", Critical: true}

	if d.db.IsCircuitBreakerOpen() {
		result.Status = StatusUnhealthy
		result.Error = "circuit breaker open"
		result.LatencyMs = time.Since(start).Milliseconds()
		return result
	}

	err := d.db.PingContext(ctx)
	result.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		return result
	}
	result.Status = StatusHealthy
	return result
}

// RedisChecker checks Redis connectivity. Redis only carries cache
// invalidation broadcasts, so it is non-critical.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a redis health checker
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (r *RedisChecker) Name() string     { return "redis" }
func (r *RedisChecker) IsCritical() bool { return false }

func (r *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: "redis"}

	err := r.client.Ping(ctx).Err()
	result.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		return result
	}
	if result.LatencyMs > 100 {
		result.Status = StatusDegraded
		result.Message = "responding with high latency"
		return result
	}
	result.Status = StatusHealthy
	return result
}
