// Package agenthandler serves the device side of camera actions.
package agenthandler

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/zanzhit/securecam/internal/agent/recorder"
	"github.com/zanzhit/securecam/internal/http-server/handlers"
	"github.com/zanzhit/securecam/internal/lib/api/response"
	"github.com/zanzhit/securecam/internal/lib/sl"
	agentclient "github.com/zanzhit/securecam/internal/services/cameras/agent"
)

type AgentHandler struct {
	log             *slog.Logger
	recorder        Recorder
	motion          Motion
	defaultDuration time.Duration
	maxDuration     time.Duration
}

type Recorder interface {
	Record(d time.Duration) (recorder.Recording, error)
	Stop(id string) error
	Running() []string
}

type Motion interface {
	Enable(d time.Duration)
	Disable(d time.Duration)
	Enabled() bool
	Until() time.Time
}

type Status struct {
	Motion     bool       `json:"motion_detection"`
	Until      *time.Time `json:"until,omitempty"`
	Recordings []string   `json:"recordings"`
}

func New(log *slog.Logger, recorder Recorder, motion Motion, defaultDuration, maxDuration time.Duration) *AgentHandler {
	return &AgentHandler{
		log:             log,
		recorder:        recorder,
		motion:          motion,
		defaultDuration: defaultDuration,
		maxDuration:     maxDuration,
	}
}

// KeyRequired rejects requests that do not carry the camera's shared key.
func KeyRequired(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(agentclient.KeyHeader)
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				handlers.Error(w, r, http.StatusUnauthorized, response.Error("invalid camera key", middleware.GetReqID(r.Context())))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (h *AgentHandler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (h *AgentHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := Status{
		Motion:     h.motion.Enabled(),
		Recordings: h.recorder.Running(),
	}
	if until := h.motion.Until(); !until.IsZero() {
		status.Until = &until
	}

	render.JSON(w, r, status)
}

// Record starts a recording of time_s seconds, or the default duration when
// time_s is missing or 0.
func (h *AgentHandler) Record(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.agent.Record"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	d, ok := h.duration(w, r)
	if !ok {
		return
	}
	if d == 0 {
		d = h.defaultDuration
	}
	if h.maxDuration > 0 && d > h.maxDuration {
		handlers.Error(w, r, http.StatusBadRequest, response.Error("time_s exceeds the maximum of "+h.maxDuration.String(), middleware.GetReqID(r.Context())))

		return
	}

	rec, err := h.recorder.Record(d)
	if err != nil {
		log.Error("failed to start recording", sl.Err(err))

		handlers.Error(w, r, http.StatusInternalServerError, response.Error("failed to start recording", middleware.GetReqID(r.Context())))

		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, rec)
}

// Stop kills a running recording. The partial file is not uploaded.
func (h *AgentHandler) Stop(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.agent.Stop"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	err := h.recorder.Stop(chi.URLParam(r, "id"))
	if errors.Is(err, recorder.ErrRecordingNotFound) {
		handlers.Error(w, r, http.StatusNotFound, response.Error("recording not found", middleware.GetReqID(r.Context())))

		return
	}
	if err != nil {
		log.Error("failed to stop recording", sl.Err(err))

		handlers.Error(w, r, http.StatusInternalServerError, response.Error("failed to stop recording", middleware.GetReqID(r.Context())))

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Enable turns motion detection on, for time_s seconds when given.
func (h *AgentHandler) Enable(w http.ResponseWriter, r *http.Request) {
	d, ok := h.duration(w, r)
	if !ok {
		return
	}

	h.motion.Enable(d)

	h.log.Info("motion detection enabled", slog.Duration("for", d))

	h.Status(w, r)
}

// Disable turns motion detection off, for time_s seconds when given.
func (h *AgentHandler) Disable(w http.ResponseWriter, r *http.Request) {
	d, ok := h.duration(w, r)
	if !ok {
		return
	}

	h.motion.Disable(d)

	h.log.Info("motion detection disabled", slog.Duration("for", d))

	h.Status(w, r)
}

func (h *AgentHandler) duration(w http.ResponseWriter, r *http.Request) (time.Duration, bool) {
	s := r.URL.Query().Get("time_s")
	if s == "" {
		return 0, true
	}

	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		handlers.Error(w, r, http.StatusBadRequest, response.Error("time_s must be a non-negative integer", middleware.GetReqID(r.Context())))

		return 0, false
	}

	return time.Duration(n) * time.Second, true
}
