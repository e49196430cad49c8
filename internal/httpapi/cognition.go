package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/floguru/antigravity/go/cognition/internal/cognition"
	"github.com/floguru/antigravity/go/cognition/internal/healing"
	"github.com/floguru/antigravity/go/cognition/internal/metalearning"
)

// CognitionHandler exposes the decision engine, confidence store and
// healing orchestrator over HTTP for the agent runtime.
type CognitionHandler struct {
	engine *cognition.Engine
	store  *metalearning.Store
	healer *healing.Orchestrator
	logger *zap.Logger
}

func NewCognitionHandler(engine *cognition.Engine, store *metalearning.Store, healer *healing.Orchestrator, logger *zap.Logger) *CognitionHandler {
	return &CognitionHandler{engine: engine, store: store, healer: healer, logger: logger}
}

func (h *CognitionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/decide", h.handleDecide)
	mux.HandleFunc("/api/v1/outcome", h.handleOutcome)
	mux.HandleFunc("/api/v1/experience", h.handleExperience)
	mux.HandleFunc("/api/v1/heal", h.handleHeal)
	mux.HandleFunc("/api/v1/heal/outcome", h.handleHealOutcome)
	mux.HandleFunc("/api/v1/decisions", h.handleDecisions)
	mux.HandleFunc("/api/v1/matrix/recompute", h.handleRecompute)
}

type decideRequest struct {
	TaskID           string                     `json:"task_id,omitempty"`
	Description      string                     `json:"description,omitempty"`
	AvailableSkills  []string                   `json:"available_skills,omitempty"`
	Assessment       cognition.SelfAssessment   `json:"assessment"`
	DurationVariance float64                    `json:"duration_variance,omitempty"`
	Personality      *cognition.PersonalityBias `json:"personality,omitempty"`
}

func (h *CognitionHandler) handleDecide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}

	task := cognition.TaskContext{
		ID:              req.TaskID,
		Description:     req.Description,
		AvailableSkills: req.AvailableSkills,
		Personality:     req.Personality,
	}
	decision, err := h.engine.Decide(r.Context(), task, req.Assessment, req.DurationVariance)
	if err != nil {
		h.logger.Warn("Decide rejected", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

type outcomeRequest struct {
	TaskID     string  `json:"task_id"`
	Success    bool    `json:"success"`
	DurationMs float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

func (h *CognitionHandler) handleOutcome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TaskID == "" {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}

	h.engine.RecordOutcome(r.Context(), req.TaskID, cognition.ExecutionOutcome{
		Success:    req.Success,
		DurationMs: req.DurationMs,
		Error:      req.Error,
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
}

type experienceRequest struct {
	SkillName  string  `json:"skill_name"`
	Domain     string  `json:"domain,omitempty"`
	Success    bool    `json:"success"`
	DurationMs float64 `json:"duration_ms"`
}

func (h *CognitionHandler) handleExperience(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req experienceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SkillName == "" {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}

	h.store.RecordExperience(r.Context(), metalearning.ExperienceReport{
		SkillName:  req.SkillName,
		Domain:     req.Domain,
		Success:    req.Success,
		DurationMs: req.DurationMs,
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
}

type healRequest struct {
	ErrorMessage  string                 `json:"error_message"`
	ErrorStack    string                 `json:"error_stack,omitempty"`
	Step          json.RawMessage        `json:"step,omitempty"`
	Browser       healing.BrowserContext `json:"browser"`
	UserProfileID string                 `json:"user_profile_id,omitempty"`
	Domain        string                 `json:"domain,omitempty"`
	MissionRunID  string                 `json:"mission_run_id,omitempty"`
	GuruID        string                 `json:"guru_id,omitempty"`
}

func (h *CognitionHandler) handleHeal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req healRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ErrorMessage == "" {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}

	result := h.healer.OrchestrateHealing(r.Context(), healing.HealingContext{
		ErrorMessage:  req.ErrorMessage,
		ErrorStack:    req.ErrorStack,
		Step:          req.Step,
		Browser:       req.Browser,
		UserProfileID: req.UserProfileID,
		Domain:        req.Domain,
		MissionRunID:  req.MissionRunID,
		GuruID:        req.GuruID,
	})
	writeJSON(w, http.StatusOK, result)
}

type healOutcomeRequest struct {
	MissionRunID     string                `json:"mission_run_id"`
	Signature        string                `json:"signature"`
	AttemptedFix     *healing.GeneratedFix `json:"attempted_fix,omitempty"`
	Outcome          healing.Outcome       `json:"outcome"`
	ProcessingTimeMs int64                 `json:"processing_time_ms"`
}

func (h *CognitionHandler) handleHealOutcome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req healOutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Signature == "" {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	if !req.Outcome.Valid() {
		http.Error(w, `{"error":"unknown outcome"}`, http.StatusBadRequest)
		return
	}

	if err := h.healer.RecordHealingEvent(r.Context(), req.MissionRunID, req.Signature, req.AttemptedFix, req.Outcome, req.ProcessingTimeMs); err != nil {
		h.logger.Error("Healing event record failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "record failed"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
}

func (h *CognitionHandler) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"decisions": h.engine.RecentDecisions(),
		"stats":     h.engine.Stats().Snapshot(),
	})
}

// handleRecompute triggers a matrix recomputation; throttled internally
func (h *CognitionHandler) handleRecompute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()
	if err := h.store.RecomputeGlobalMatrix(r.Context()); err != nil {
		h.logger.Error("Matrix recompute failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "recompute failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"matrix_version": h.store.MatrixVersion(),
		"took_ms":        time.Since(start).Milliseconds(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
