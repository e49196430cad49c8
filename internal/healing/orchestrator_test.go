package healing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// stubGenerator returns a canned fix or error
type stubGenerator struct {
	fix   *GeneratedFix
	err   error
	calls int
}

func (g *stubGenerator) GenerateFix(context.Context, HealingContext) (*GeneratedFix, error) {
	g.calls++
	return g.fix, g.err
}

func newTestOrchestrator(t *testing.T, generator FixGenerator) (*Orchestrator, sqlmock.Sqlmock) {
	t.Helper()
	cache, mock, wrapper := newMockCache(t)
	o := NewOrchestrator(cache, wrapper, generator, zaptest.NewLogger(t))
	o.now = func() time.Time { return time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC) }
	return o, mock
}

func TestOrchestrateHealingCachedSolution(t *testing.T) {
	o, mock := newTestOrchestrator(t, &stubGenerator{})

	mock.ExpectQuery("SELECT id, error_signature, solution_type").
		WillReturnRows(sqlmock.NewRows(solutionColumns()).
			AddRow("sol-1", "sig", "SELECTOR_FIX", []byte(`{"newSelector":"#ok"}`), []byte(`{}`),
				90, 8, 9, nil, time.Now()))

	result := o.OrchestrateHealing(context.Background(), HealingContext{
		ErrorMessage: "element not found",
		Domain:       "shop.example.com",
	})

	assert.Equal(t, StrategyMatrixBased, result.Strategy)
	assert.Equal(t, 90, result.Confidence)
	assert.JSONEq(t, `{"newSelector":"#ok"}`, string(result.Fix))
	assert.NotEmpty(t, result.Fingerprint)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrchestrateHealingGeneratesAndPersists(t *testing.T) {
	generated := &GeneratedFix{
		Type:        FixTypeWaitStrategy,
		Payload:     json.RawMessage(`{"additionalWaitMs":2000}`),
		Description: "slow page load",
	}
	gen := &stubGenerator{fix: generated}
	o, mock := newTestOrchestrator(t, gen)

	mock.ExpectQuery("SELECT id, error_signature, solution_type").
		WillReturnRows(sqlmock.NewRows(solutionColumns()))
	mock.ExpectExec("INSERT INTO automation_solutions").
		WillReturnResult(sqlmock.NewResult(1, 1))

	result := o.OrchestrateHealing(context.Background(), HealingContext{
		ErrorMessage: "timeout waiting for selector",
		GuruID:       "guru-1",
	})

	assert.Equal(t, StrategyAIGenerated, result.Strategy)
	assert.Equal(t, newSolutionConfidence, result.Confidence)
	assert.Equal(t, 1, gen.calls)

	var persisted GeneratedFix
	require.NoError(t, json.Unmarshal(result.Fix, &persisted))
	assert.Equal(t, FixTypeWaitStrategy, persisted.Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrchestrateHealingNoGenerator(t *testing.T) {
	o, mock := newTestOrchestrator(t, nil)

	mock.ExpectQuery("SELECT id, error_signature, solution_type").
		WillReturnRows(sqlmock.NewRows(solutionColumns()))

	result := o.OrchestrateHealing(context.Background(), HealingContext{ErrorMessage: "boom"})
	assert.Equal(t, StrategyAIGenerated, result.Strategy)
	assert.Nil(t, result.Fix)
	assert.Zero(t, result.Confidence)
}

func TestOrchestrateHealingGeneratorFailureDegrades(t *testing.T) {
	o, mock := newTestOrchestrator(t, &stubGenerator{err: errors.New("model unavailable")})

	mock.ExpectQuery("SELECT id, error_signature, solution_type").
		WillReturnRows(sqlmock.NewRows(solutionColumns()))

	result := o.OrchestrateHealing(context.Background(), HealingContext{ErrorMessage: "boom"})
	assert.Equal(t, StrategyAIGenerated, result.Strategy)
	assert.Nil(t, result.Fix)
}

func TestOrchestrateHealingConsultFailureFallsThrough(t *testing.T) {
	gen := &stubGenerator{fix: &GeneratedFix{
		Type:    FixTypeToolRetry,
		Payload: json.RawMessage(`{"retryParams":{}}`),
	}}
	o, mock := newTestOrchestrator(t, gen)

	mock.ExpectQuery("SELECT id, error_signature, solution_type").
		WillReturnError(errors.New("connection refused"))
	// The breaker surfaces the error; generation still proceeds, and the
	// insert is attempted against the same flaky storage.
	mock.ExpectExec("INSERT INTO automation_solutions").
		WillReturnError(errors.New("connection refused"))

	result := o.OrchestrateHealing(context.Background(), HealingContext{ErrorMessage: "boom"})
	assert.Equal(t, StrategyAIGenerated, result.Strategy)
	assert.Equal(t, newSolutionConfidence, result.Confidence, "persist failure does not void the fix")
}

func TestRecordHealingEventSuccess(t *testing.T) {
	o, mock := newTestOrchestrator(t, nil)

	mock.ExpectExec("INSERT INTO healing_events").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE automation_solutions").
		WithArgs("sig-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	fix := &GeneratedFix{Type: FixTypeSelector, Payload: json.RawMessage(`{"newSelector":"#x"}`)}
	err := o.RecordHealingEvent(context.Background(), "run-1", "sig-1", fix, OutcomeSuccess, 420)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordHealingEventFailureAndPartial(t *testing.T) {
	for _, outcome := range []Outcome{OutcomeFailed, OutcomePartial} {
		t.Run(string(outcome), func(t *testing.T) {
			o, mock := newTestOrchestrator(t, nil)

			mock.ExpectExec("INSERT INTO healing_events").
				WillReturnResult(sqlmock.NewResult(1, 1))
			// Partial scores as failure: confidence drops
			mock.ExpectExec("UPDATE automation_solutions").
				WithArgs("sig-2").
				WillReturnResult(sqlmock.NewResult(0, 1))

			err := o.RecordHealingEvent(context.Background(), "run-2", "sig-2", nil, outcome, 900)
			require.NoError(t, err)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRecordHealingEventUnknownSignature(t *testing.T) {
	o, mock := newTestOrchestrator(t, nil)

	mock.ExpectExec("INSERT INTO healing_events").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE automation_solutions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	// The event is still appended; the missing solution is counted, not
	// surfaced as an error.
	err := o.RecordHealingEvent(context.Background(), "run-3", "unknown-sig", nil, OutcomeSuccess, 100)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordHealingEventAppendFailure(t *testing.T) {
	o, mock := newTestOrchestrator(t, nil)

	mock.ExpectExec("INSERT INTO healing_events").
		WillReturnError(errors.New("connection refused"))

	err := o.RecordHealingEvent(context.Background(), "run-4", "sig-4", nil, OutcomeSuccess, 100)
	assert.Error(t, err)
}

func TestGeneratedFixValid(t *testing.T) {
	assert.False(t, (*GeneratedFix)(nil).Valid())
	assert.False(t, (&GeneratedFix{Type: FixTypeSelector}).Valid())
	assert.False(t, (&GeneratedFix{Payload: json.RawMessage(`{}`)}).Valid())
	assert.True(t, (&GeneratedFix{Type: FixTypeSelector, Payload: json.RawMessage(`{}`)}).Valid())
}

func TestOutcomeValid(t *testing.T) {
	assert.True(t, OutcomeSuccess.Valid())
	assert.True(t, OutcomeFailed.Valid())
	assert.True(t, OutcomePartial.Valid())
	assert.False(t, Outcome("MOSTLY_WORKED").Valid())
	assert.False(t, Outcome("").Valid())
}

func TestParseFixResponse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want *GeneratedFix
	}{
		{
			name: "clean json",
			text: `{"type":"SELECTOR_FIX","payload":{"newSelector":"#btn"},"description":"retry"}`,
			want: &GeneratedFix{Type: FixTypeSelector, Payload: json.RawMessage(`{"newSelector":"#btn"}`), Description: "retry"},
		},
		{
			name: "json wrapped in prose",
			text: "Here is the fix:\n```json\n{\"type\":\"WAIT_STRATEGY\",\"payload\":{\"additionalWaitMs\":2000}}\n```\nGood luck!",
			want: &GeneratedFix{Type: FixTypeWaitStrategy, Payload: json.RawMessage(`{"additionalWaitMs":2000}`)},
		},
		{name: "no json at all", text: "sorry, cannot help", want: nil},
		{name: "malformed json", text: `{"type": "SELECTOR_FIX",`, want: nil},
		{name: "missing payload", text: `{"type":"SELECTOR_FIX"}`, want: nil},
		{name: "empty", text: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseFixResponse(tt.text)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want.Type, got.Type)
			assert.JSONEq(t, string(tt.want.Payload), string(got.Payload))
			assert.Equal(t, tt.want.Description, got.Description)
		})
	}
}

func TestBuildFixPrompt(t *testing.T) {
	prompt := BuildFixPrompt(HealingContext{
		ErrorMessage: "element not found: #pay",
		Domain:       "shop.example.com",
		Step:         json.RawMessage(`{"action":"click"}`),
	})

	assert.Contains(t, prompt, "element not found: #pay")
	assert.Contains(t, prompt, "shop.example.com")
	assert.Contains(t, prompt, `{"action":"click"}`)
	assert.Contains(t, prompt, "chromium", "browser defaults when unset")
	assert.Contains(t, prompt, FixTypeSelector)
	assert.Contains(t, prompt, FixTypeWaitStrategy)
	assert.Contains(t, prompt, FixTypeToolRetry)
}
