package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/jobs"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/ternarybob/vigil/internal/services/operations"
	"github.com/ternarybob/vigil/internal/sessions"
)

// OperationsHandler exposes start/poll for background operations of the caller's session
type OperationsHandler struct {
	operations *operations.Service
	logger     arbor.ILogger
}

func NewOperationsHandler(operationsService *operations.Service, logger arbor.ILogger) *OperationsHandler {
	return &OperationsHandler{
		operations: operationsService,
		logger:     logger,
	}
}

// LogLine is one progress chunk as sent to the browser
type LogLine struct {
	Seq    uint64              `json:"seq"`
	Text   string              `json:"text"`
	Format models.ReportFormat `json:"format,omitempty"`
}

// PollEnvelope is the JSON shape of every poll response
type PollEnvelope struct {
	Key     string            `json:"key"`
	JobID   string            `json:"job_id,omitempty"`
	Found   bool              `json:"found"`
	Running bool              `json:"running"`
	Done    bool              `json:"done"`
	OK      bool              `json:"ok"`
	Log     []LogLine         `json:"log"`
	Cursor  uint64            `json:"cursor"`
	Error   string            `json:"error,omitempty"`
	Stage   *models.StageInfo `json:"stage,omitempty"`
	Result  interface{}       `json:"result,omitempty"`
}

// NewPollEnvelope flattens a poll result into its wire form
func NewPollEnvelope(result jobs.PollResult) PollEnvelope {
	switch r := result.(type) {
	case jobs.PollNotFound:
		return PollEnvelope{Key: r.Key, Log: []LogLine{}}

	case jobs.PollProgress:
		stage := r.Stage
		return PollEnvelope{
			Key:     r.Key,
			JobID:   r.JobID,
			Found:   true,
			Running: true,
			Log:     logLines(r.Chunks),
			Cursor:  r.Cursor,
			Stage:   &stage,
		}

	case jobs.PollDone:
		stage := r.Stage
		env := PollEnvelope{
			Key:    r.Key,
			JobID:  r.JobID,
			Found:  true,
			Done:   true,
			OK:     r.Outcome.OK(),
			Log:    logLines(r.Chunks),
			Cursor: r.Cursor,
			Stage:  &stage,
			Result: r.Outcome.Result,
		}
		if r.Outcome.Err != nil {
			env.Error = r.Outcome.Err.Error()
			var jobErr *jobs.JobError
			if errors.As(r.Outcome.Err, &jobErr) {
				env.Stage = &models.StageInfo{Index: jobErr.Stage, Name: jobErr.StageName}
			}
		}
		return env
	}
	panic(fmt.Sprintf("unhandled poll result %T", result))
}

func logLines(chunks []models.ProgressChunk) []LogLine {
	lines := make([]LogLine, 0, len(chunks))
	for _, c := range chunks {
		lines = append(lines, LogLine{Seq: c.Seq, Text: c.Text, Format: c.Format})
	}
	return lines
}

func pollURL(key, jobID string) string {
	return "/api/operations/poll?key=" + url.QueryEscape(key) + "&job_id=" + url.QueryEscape(jobID)
}

func sessionOrError(w http.ResponseWriter, r *http.Request) (*sessions.Session, bool) {
	s, ok := sessions.FromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusInternalServerError, "No session")
		return nil, false
	}
	return s, true
}

// StartHandler handles POST /api/operations/{kind} with body {"target": "..."}
func (h *OperationsHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	s, ok := sessionOrError(w, r)
	if !ok {
		return
	}

	kind, err := operations.ParseKind(strings.TrimPrefix(r.URL.Path, "/api/operations/"))
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	var req operations.StartRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.start(w, s, kind, req)
}

func (h *OperationsHandler) start(w http.ResponseWriter, s *sessions.Session, kind operations.Kind, req operations.StartRequest) {
	handle, err := h.operations.Start(s.Registry, s.ID, kind, req)
	switch {
	case err == nil:
		WriteStarted(w, handle.Key(), handle.Job().ID())

	case errors.Is(err, jobs.ErrAlreadyRunning):
		WriteJSON(w, http.StatusConflict, map[string]string{
			"status": "running",
			"error":  err.Error(),
			"key":    handle.Key(),
			"job_id": handle.Job().ID(),
			"poll":   pollURL(handle.Key(), handle.Job().ID()),
		})

	case errors.Is(err, jobs.ErrSessionLimit):
		WriteError(w, http.StatusTooManyRequests, err.Error())

	case errors.Is(err, operations.ErrInvalidRequest), errors.Is(err, operations.ErrUnknownKind):
		WriteError(w, http.StatusBadRequest, err.Error())

	default:
		h.logger.Error().Err(err).Str("kind", string(kind)).Str("session_id", s.ID).Msg("Failed to start operation")
		WriteError(w, http.StatusInternalServerError, "Failed to start operation")
	}
}

// PollHandler handles GET /api/operations/poll?key=...&cursor=N[&job_id=...]
func (h *OperationsHandler) PollHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	s, ok := sessionOrError(w, r)
	if !ok {
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		WriteError(w, http.StatusBadRequest, "key is required")
		return
	}
	cursor, err := parseCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.operations.PollKey(s.Registry, key, r.URL.Query().Get("job_id"), cursor)
	h.writePoll(w, result, err)
}

func (h *OperationsHandler) writePoll(w http.ResponseWriter, result jobs.PollResult, err error) {
	if err != nil {
		if errors.Is(err, jobs.ErrInvalidState) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		WriteError(w, http.StatusInternalServerError, "Poll failed")
		return
	}
	WriteJSON(w, http.StatusOK, NewPollEnvelope(result))
}

// ListHandler handles GET /api/operations
func (h *OperationsHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	s, ok := sessionOrError(w, r)
	if !ok {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"operations": s.Registry.List(),
		"running":    s.Registry.Running(),
	})
}

// StepHandler handles GET /api/operations/step?action=start|poll&kind=...&target=...&cursor=N[&job_id=...]
func (h *OperationsHandler) StepHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	s, ok := sessionOrError(w, r)
	if !ok {
		return
	}

	step, err := operations.ParseStep(r.URL.Query())
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch st := step.(type) {
	case operations.StepStart:
		h.start(w, s, st.Kind, operations.StartRequest{Target: st.Target})
	case operations.StepPoll:
		result, err := h.operations.Poll(s.Registry, st.Kind, st.Target, st.JobID, st.Cursor)
		h.writePoll(w, result, err)
	default:
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("unsupported step %T", step))
	}
}

func parseCursor(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	cursor, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor %q", raw)
	}
	return cursor, nil
}
