package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goodtune/apextrack/internal/usage"
	"github.com/rs/zerolog"
)

// SessionsHandler handles usage session API requests.
type SessionsHandler struct {
	tracker *usage.Tracker
	logger  zerolog.Logger
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(tracker *usage.Tracker, logger zerolog.Logger) *SessionsHandler {
	return &SessionsHandler{
		tracker: tracker,
		logger:  logger.With().Str("handler", "sessions").Logger(),
	}
}

// Routes mounts the session endpoints.
func (h *SessionsHandler) Routes(r chi.Router) {
	r.Post("/manual", h.CreateManual)
	r.Post("/start", h.Start)
	r.Get("/active", h.ListActive)
	r.Get("/active/{assetId}", h.ActiveForAsset)
	r.Get("/asset/{assetId}", h.History)
	r.Get("/asset/{assetId}/total", h.Total)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Post("/stop", h.Stop)
		r.Post("/pause", h.Pause)
		r.Post("/resume", h.Resume)
		r.Post("/cancel", h.Cancel)
	})
}

// CreateManual records a completed session after the fact.
func (h *SessionsHandler) CreateManual(w http.ResponseWriter, r *http.Request) {
	var req usage.ManualRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	session, err := h.tracker.CreateManual(r.Context(), req)
	if err != nil {
		writeTrackerError(w, h.logger, err, "Failed to create manual session")
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// Start opens a timed session.
func (h *SessionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req usage.StartRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	session, err := h.tracker.Start(r.Context(), req)
	if err != nil {
		writeTrackerError(w, h.logger, err, "Failed to start session")
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// Stop completes a live session.
func (h *SessionsHandler) Stop(w http.ResponseWriter, r *http.Request) {
	var req usage.StopRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	session, err := h.tracker.Stop(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeTrackerError(w, h.logger, err, "Failed to stop session")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Pause suspends an active session.
func (h *SessionsHandler) Pause(w http.ResponseWriter, r *http.Request) {
	session, err := h.tracker.Pause(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeTrackerError(w, h.logger, err, "Failed to pause session")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Resume continues a paused session.
func (h *SessionsHandler) Resume(w http.ResponseWriter, r *http.Request) {
	session, err := h.tracker.Resume(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeTrackerError(w, h.logger, err, "Failed to resume session")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Cancel abandons a live session immediately.
func (h *SessionsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	session, err := h.tracker.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeTrackerError(w, h.logger, err, "Failed to cancel session")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// ListActive returns all active and paused sessions.
func (h *SessionsHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.tracker.ListActive(r.Context())
	if err != nil {
		writeTrackerError(w, h.logger, err, "Failed to retrieve sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// ActiveForAsset returns the asset's live session.
func (h *SessionsHandler) ActiveForAsset(w http.ResponseWriter, r *http.Request) {
	session, err := h.tracker.ActiveForAsset(r.Context(), chi.URLParam(r, "assetId"))
	if err != nil {
		writeTrackerError(w, h.logger, err, "Failed to retrieve active session")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// History returns an asset's sessions newest first.
func (h *SessionsHandler) History(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.tracker.History(r.Context(), chi.URLParam(r, "assetId"))
	if err != nil {
		writeTrackerError(w, h.logger, err, "Failed to retrieve sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// Total recomputes and returns an asset's usage hours.
func (h *SessionsHandler) Total(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetId")

	total, err := h.tracker.RecomputeTotal(r.Context(), assetID)
	if err != nil {
		writeTrackerError(w, h.logger, err, "Failed to compute usage total")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"asset_id":    assetID,
		"total_hours": total,
	})
}

// Get returns a session by ID.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.tracker.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeTrackerError(w, h.logger, err, "Failed to retrieve session")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Update corrects a terminal session.
func (h *SessionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req usage.UpdateRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	session, err := h.tracker.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeTrackerError(w, h.logger, err, "Failed to update session")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Delete removes a session; ?force=true also removes a live one.
func (h *SessionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid force parameter")
			return
		}
		force = parsed
	}

	if err := h.tracker.Delete(r.Context(), chi.URLParam(r, "id"), force); err != nil {
		writeTrackerError(w, h.logger, err, "Failed to delete session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
