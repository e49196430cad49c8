package healing

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/floguru/antigravity/go/cognition/internal/circuitbreaker"
	"github.com/floguru/antigravity/go/cognition/internal/metrics"
)

// Strategy names how a healing result was produced
type Strategy string

const (
	StrategyMatrixBased Strategy = "MATRIX_BASED"
	StrategyAIGenerated Strategy = "AI_GENERATED"
)

// Outcome is the result of attempting a fix
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
	OutcomePartial Outcome = "PARTIAL"
)

// Valid reports whether o is one of the three recorded outcomes.
// Outcomes become event-log rows and metric labels, so the set is
// closed.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailed, OutcomePartial:
		return true
	}
	return false
}

// Supported fix shapes produced by the fix-generation collaborator
const (
	FixTypeSelector     = "SELECTOR_FIX"
	FixTypeWaitStrategy = "WAIT_STRATEGY"
	FixTypeToolRetry    = "TOOL_RETRY"
)

// newSolutionConfidence is the tentative starting confidence for a
// freshly generated fix; one recorded success pushes it above the
// consult cutoff's comfort zone, repeated failures sink it below.
const newSolutionConfidence = 80

// GeneratedFix is a fix proposed by the generation collaborator
type GeneratedFix struct {
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Description string          `json:"description,omitempty"`
}

// Valid reports whether the fix carries the minimal required schema
func (f *GeneratedFix) Valid() bool {
	return f != nil && f.Type != "" && len(f.Payload) > 0
}

// FixGenerator is the collaborator asked for a new fix when the cache
// has nothing. Implementations typically call an LLM with
// BuildFixPrompt.
type FixGenerator interface {
	GenerateFix(ctx context.Context, hctx HealingContext) (*GeneratedFix, error)
}

// HealingResult is the orchestrator's answer for one failure
type HealingResult struct {
	Strategy    Strategy        `json:"strategy"`
	Fix         json.RawMessage `json:"fix,omitempty"`
	Confidence  int             `json:"confidence"`
	Fingerprint string          `json:"fingerprint"`
}

// Orchestrator decides how to heal a failed automation step: cached
// solutions first, collaborator-generated fixes as fallback.
type Orchestrator struct {
	cache     *Cache
	db        *circuitbreaker.DatabaseWrapper
	generator FixGenerator
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrchestrator creates a healing orchestrator. generator may be nil;
// the fallback path then yields no fix.
func NewOrchestrator(cache *Cache, dbw *circuitbreaker.DatabaseWrapper, generator FixGenerator, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cache:     cache,
		db:        dbw,
		generator: generator,
		logger:    logger,
		now:       time.Now,
	}
}

// OrchestrateHealing fingerprints the failure, consults the cache, and
// falls back to generating a fresh fix. Errors on either path degrade
// to "no fix"; the caller is never failed.
func (o *Orchestrator) OrchestrateHealing(ctx context.Context, hctx HealingContext) HealingResult {
	fp := Fingerprint(hctx, o.now())

	candidates, err := o.cache.Consult(ctx, fp)
	if err != nil {
		o.logger.Warn("Healing cache consult failed, falling back to generation",
			zap.String("signature", fp.Signature),
			zap.Error(err))
		candidates = nil
	}

	if fix, ok := Synthesize(candidates); ok {
		metrics.HealingCacheHits.Inc()
		metrics.HealingAttempts.WithLabelValues(string(StrategyMatrixBased)).Inc()
		o.logger.Info("Healing from cached solution",
			zap.String("signature", fp.Signature),
			zap.String("solution_id", fix.SolutionID),
			zap.Int("confidence", fix.Confidence))
		return HealingResult{
			Strategy:    StrategyMatrixBased,
			Fix:         fix.Solution,
			Confidence:  fix.Confidence,
			Fingerprint: fp.Signature,
		}
	}
	metrics.HealingCacheMisses.Inc()

	fix := o.generateFix(ctx, hctx)
	result := HealingResult{
		Strategy:    StrategyAIGenerated,
		Fingerprint: fp.Signature,
	}

	if fix != nil {
		if err := o.cache.insert(ctx, fp, fix, hctx.GuruID, newSolutionConfidence); err != nil {
			o.logger.Error("Failed to persist generated solution",
				zap.String("signature", fp.Signature),
				zap.Error(err))
		}
		payload, _ := json.Marshal(fix)
		result.Fix = payload
		result.Confidence = newSolutionConfidence
	}

	metrics.HealingAttempts.WithLabelValues(string(StrategyAIGenerated)).Inc()
	return result
}

// generateFix asks the collaborator for a fix; failures and malformed
// responses degrade to nil
func (o *Orchestrator) generateFix(ctx context.Context, hctx HealingContext) *GeneratedFix {
	if o.generator == nil {
		return nil
	}
	fix, err := o.generator.GenerateFix(ctx, hctx)
	if err != nil {
		o.logger.Warn("Fix generation failed", zap.Error(err))
		return nil
	}
	if !fix.Valid() {
		o.logger.Warn("Generated fix missing type or payload, discarding")
		return nil
	}
	return fix
}

// RecordHealingEvent appends the attempt to the event log and adjusts
// the matching solution's confidence: +5 capped at 100 on success, -10
// floored at 0 otherwise. Partial outcomes score as failures until the
// scoring model distinguishes them.
func (o *Orchestrator) RecordHealingEvent(ctx context.Context, missionRunID, signature string, attemptedFix *GeneratedFix, outcome Outcome, processingTimeMs int64) error {
	fixType := "UNKNOWN"
	var fixPayload []byte
	if attemptedFix != nil {
		if attemptedFix.Type != "" {
			fixType = attemptedFix.Type
		}
		fixPayload, _ = json.Marshal(attemptedFix)
	}

	if _, err := o.db.ExecContext(ctx, `
		INSERT INTO healing_events
			(mission_run_id, error_signature, attempted_fix, fix_type, outcome, processing_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		missionRunID, signature, fixPayload, fixType, string(outcome), processingTimeMs,
	); err != nil {
		return fmt.Errorf("append healing event: %w", err)
	}
	metrics.HealingEvents.WithLabelValues(string(outcome)).Inc()

	var query string
	if outcome == OutcomeSuccess {
		query = `
			UPDATE automation_solutions SET
				success_count = success_count + 1,
				total_count = total_count + 1,
				confidence_score = LEAST(confidence_score + 5, 100),
				last_used_at = NOW()
			WHERE error_signature = $1`
	} else {
		query = `
			UPDATE automation_solutions SET
				total_count = total_count + 1,
				confidence_score = GREATEST(confidence_score - 10, 0),
				last_used_at = NOW()
			WHERE error_signature = $1`
	}

	res, err := o.db.ExecContext(ctx, query, signature)
	if err != nil {
		return fmt.Errorf("adjust solution confidence: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		metrics.HealingEventsDropped.Inc()
		o.logger.Warn("Healing event for unknown signature, no solution adjusted",
			zap.String("signature", signature))
	}

	return nil
}

// BuildFixPrompt renders the prompt a FixGenerator implementation sends
// to its model
func BuildFixPrompt(hctx HealingContext) string {
	step := "{}"
	if len(hctx.Step) > 0 {
		step = string(hctx.Step)
	}
	browserType := hctx.Browser.BrowserType
	if browserType == "" {
		browserType = "chromium"
	}

	var b strings.Builder
	b.WriteString("ERROR ANALYSIS CONTEXT:\n")
	fmt.Fprintf(&b, "- Error Message: %s\n", hctx.ErrorMessage)
	fmt.Fprintf(&b, "- Domain: %s\n", hctx.Domain)
	fmt.Fprintf(&b, "- Current Step: %s\n", step)
	fmt.Fprintf(&b, "- Browser: %s\n\n", browserType)
	b.WriteString(`The automation failed. Propose a JSON fix.
Supported Fix Types:
1. "SELECTOR_FIX": Provide { "newSelector": "..." }
2. "WAIT_STRATEGY": Provide { "additionalWaitMs": 2000 }
3. "TOOL_RETRY": Provide { "retryParams": { ... } }

Return ONLY valid JSON:
{
  "type": "SELECTOR_FIX",
  "payload": { ... },
  "description": "Brief reasoning"
}`)
	return b.String()
}

var jsonBlockRe = regexp.MustCompile(`(?s)\{.*\}`)

// ParseFixResponse extracts and validates a fix from raw collaborator
// output. Returns nil when no usable fix is present.
func ParseFixResponse(text string) *GeneratedFix {
	match := jsonBlockRe.FindString(text)
	if match == "" {
		return nil
	}
	var fix GeneratedFix
	if err := json.Unmarshal([]byte(match), &fix); err != nil {
		return nil
	}
	if !fix.Valid() {
		return nil
	}
	return &fix
}
