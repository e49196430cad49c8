package healing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/floguru/antigravity/go/cognition/internal/circuitbreaker"
)

// minConsultConfidence is the cutoff below which cached solutions are
// not trusted for reuse
const minConsultConfidence = 70

// maxCandidates caps how many cached solutions one consult returns
const maxCandidates = 5

// Solution is one cached fix keyed by error signature. Confidence grows
// on reuse success and shrinks on reuse failure.
type Solution struct {
	ID              string          `db:"id"`
	ErrorSignature  string          `db:"error_signature"`
	SolutionType    string          `db:"solution_type"`
	Solution        json.RawMessage `db:"solution"`
	ContextTags     json.RawMessage `db:"context_tags"`
	ConfidenceScore int             `db:"confidence_score"`
	SuccessCount    int64           `db:"success_count"`
	TotalCount      int64           `db:"total_count"`
	CreatedByGuruID sql.NullString  `db:"created_by_guru_id"`
	LastUsedAt      time.Time       `db:"last_used_at"`
}

// SynthesizedFix is the best candidate picked from the cache
type SynthesizedFix struct {
	Solution   json.RawMessage
	Confidence int
	SolutionID string
}

// Cache is the persistent error-to-fix cache
type Cache struct {
	db     *circuitbreaker.DatabaseWrapper
	logger *zap.Logger
}

// NewCache creates a healing cache over the shared database handle
func NewCache(dbw *circuitbreaker.DatabaseWrapper, logger *zap.Logger) *Cache {
	return &Cache{db: dbw, logger: logger}
}

// Consult looks up cached solutions for an exact signature match above
// the confidence cutoff, highest confidence first. No fuzzy fallback:
// the context fields are captured for future loose matching but an
// empty exact match yields an empty result.
func (c *Cache) Consult(ctx context.Context, fp ErrorFingerprint) ([]Solution, error) {
	var solutions []Solution
	err := c.db.SelectContext(ctx, &solutions, `
		SELECT id, error_signature, solution_type, solution, context_tags,
		       confidence_score, success_count, total_count, created_by_guru_id, last_used_at
		FROM automation_solutions
		WHERE error_signature = $1 AND confidence_score > $2
		ORDER BY confidence_score DESC
		LIMIT $3`,
		fp.Signature, minConsultConfidence, maxCandidates,
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("consult healing cache: %w", err)
	}
	return solutions, nil
}

// Synthesize picks the best candidate, weighting confidence by the
// observed reuse success rate. High-confidence cached solutions are
// trusted as-is.
func Synthesize(candidates []Solution) (*SynthesizedFix, bool) {
	if len(candidates) == 0 {
		return nil, false
	}

	best := candidates[0]
	bestScore := weightedScore(best)
	for _, cand := range candidates[1:] {
		if score := weightedScore(cand); score > bestScore {
			best, bestScore = cand, score
		}
	}

	return &SynthesizedFix{
		Solution:   best.Solution,
		Confidence: best.ConfidenceScore,
		SolutionID: best.ID,
	}, true
}

func weightedScore(s Solution) float64 {
	total := s.TotalCount
	if total == 0 {
		total = 1
	}
	return float64(s.ConfidenceScore) * float64(s.SuccessCount) / float64(total)
}

// insert records a newly generated solution with tentative confidence
func (c *Cache) insert(ctx context.Context, fp ErrorFingerprint, fix *GeneratedFix, guruID string, confidence int) error {
	payload, err := json.Marshal(fix)
	if err != nil {
		return fmt.Errorf("marshal solution: %w", err)
	}
	tags, err := json.Marshal(fp.Context)
	if err != nil {
		return fmt.Errorf("marshal context tags: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO automation_solutions
			(error_signature, solution_type, solution, context_tags, confidence_score,
			 success_count, total_count, created_by_guru_id)
		VALUES ($1, $2, $3, $4, $5, 0, 0, $6)`,
		fp.Signature, fix.Type, payload, tags, confidence, guruID,
	)
	if err != nil {
		return fmt.Errorf("insert solution: %w", err)
	}
	return nil
}
