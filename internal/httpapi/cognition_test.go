package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/floguru/antigravity/go/cognition/internal/circuitbreaker"
	"github.com/floguru/antigravity/go/cognition/internal/cognition"
	"github.com/floguru/antigravity/go/cognition/internal/healing"
	"github.com/floguru/antigravity/go/cognition/internal/metalearning"
)

func newTestServer(t *testing.T) (*httptest.Server, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := zaptest.NewLogger(t)
	wrapper := circuitbreaker.NewDatabaseWrapper(sqlx.NewDb(mockDB, "sqlmock"), logger)

	store := metalearning.NewStore(wrapper, nil, metalearning.Config{
		RefreshInterval: time.Hour,
		RecomputeMinGap: time.Millisecond,
	}, logger)
	t.Cleanup(store.Close)

	optimizer := cognition.NewThresholdOptimizer(cognition.DefaultThresholds(), nil, nil, nil, logger)
	engine := cognition.NewEngine(cognition.DefaultEngineConfig(), optimizer, nil, nil, logger)

	cache := healing.NewCache(wrapper, logger)
	healer := healing.NewOrchestrator(cache, wrapper, nil, logger)

	mux := http.NewServeMux()
	NewCognitionHandler(engine, store, healer, logger).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, mock
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestDecideEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/decide", `{
		"task_id": "task-1",
		"assessment": {
			"skill_sufficiency": 0.9,
			"task_complexity": 0.2,
			"recent_success_rate": 0.9,
			"tool_benefit": 0.1,
			"confidence": 0.9,
			"recommendation": "skills"
		}
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decision cognition.Decision
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decision))
	assert.Equal(t, "task-1", decision.TaskID)
	assert.Equal(t, cognition.ArchetypeRoutine, decision.Archetype)
	assert.Equal(t, cognition.RecommendSkills, decision.Recommendation)
}

func TestDecideEndpointRejectsBadAssessment(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/decide", `{
		"assessment": {"skill_sufficiency": 2.0, "recommendation": "skills"}
	}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDecideEndpointMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/decide")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestOutcomeAndDecisionsEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	postJSON(t, srv.URL+"/api/v1/decide", `{
		"task_id": "task-2",
		"assessment": {
			"skill_sufficiency": 0.9,
			"task_complexity": 0.2,
			"recent_success_rate": 0.9,
			"tool_benefit": 0.1,
			"confidence": 0.9,
			"recommendation": "skills"
		}
	}`)

	resp := postJSON(t, srv.URL+"/api/v1/outcome", `{"task_id":"task-2","success":true,"duration_ms":350}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	listResp, err := http.Get(srv.URL + "/api/v1/decisions")
	require.NoError(t, err)
	defer listResp.Body.Close()
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var payload struct {
		Decisions []cognition.Decision `json:"decisions"`
	}
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&payload))
	require.Len(t, payload.Decisions, 1)
	assert.Equal(t, "task-2", payload.Decisions[0].TaskID)
}

func TestExperienceEndpoint(t *testing.T) {
	srv, mock := newTestServer(t)

	mock.ExpectExec("UPDATE skill_performance_metrics").
		WillReturnResult(sqlmock.NewResult(0, 1))

	resp := postJSON(t, srv.URL+"/api/v1/experience",
		`{"skill_name":"web_navigation","domain":"shop.example.com","success":true,"duration_ms":250}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealEndpoint(t *testing.T) {
	srv, mock := newTestServer(t)

	mock.ExpectQuery("SELECT id, error_signature, solution_type").
		WillReturnRows(sqlmock.NewRows([]string{"id", "error_signature", "solution_type", "solution",
			"context_tags", "confidence_score", "success_count", "total_count", "created_by_guru_id",
			"last_used_at"}).
			AddRow("sol-1", "sig", "SELECTOR_FIX", []byte(`{"newSelector":"#ok"}`), []byte(`{}`),
				88, 5, 6, nil, time.Now()))

	resp := postJSON(t, srv.URL+"/api/v1/heal",
		`{"error_message":"element not found","domain":"shop.example.com"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result healing.HealingResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, healing.StrategyMatrixBased, result.Strategy)
	assert.Equal(t, 88, result.Confidence)
	assert.NotEmpty(t, result.Fingerprint)
}

func TestHealOutcomeEndpoint(t *testing.T) {
	srv, mock := newTestServer(t)

	mock.ExpectExec("INSERT INTO healing_events").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE automation_solutions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	resp := postJSON(t, srv.URL+"/api/v1/heal/outcome",
		`{"mission_run_id":"run-1","signature":"sig","outcome":"SUCCESS","processing_time_ms":400}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealOutcomeEndpointRejectsUnknownOutcome(t *testing.T) {
	srv, mock := newTestServer(t)

	// Nothing reaches storage; the outcome set is closed
	resp := postJSON(t, srv.URL+"/api/v1/heal/outcome",
		`{"mission_run_id":"run-1","signature":"sig","outcome":"MOSTLY_WORKED","processing_time_ms":400}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}
