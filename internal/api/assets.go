package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goodtune/apextrack/internal/storage"
	"github.com/goodtune/apextrack/internal/usage"
	"github.com/rs/zerolog"
)

// AssetsHandler serves the asset registry.
type AssetsHandler struct {
	tracker *usage.Tracker
	logger  zerolog.Logger
}

// NewAssetsHandler creates a new assets handler.
func NewAssetsHandler(tracker *usage.Tracker, logger zerolog.Logger) *AssetsHandler {
	return &AssetsHandler{
		tracker: tracker,
		logger:  logger.With().Str("handler", "assets").Logger(),
	}
}

// Routes mounts the asset endpoints.
func (h *AssetsHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Put)
}

// List returns all assets.
func (h *AssetsHandler) List(w http.ResponseWriter, r *http.Request) {
	assets, err := h.tracker.Assets(r.Context())
	if err != nil {
		writeTrackerError(w, h.logger, err, "Failed to retrieve assets")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"assets": assets,
		"count":  len(assets),
	})
}

// Get returns a specific asset by ID.
func (h *AssetsHandler) Get(w http.ResponseWriter, r *http.Request) {
	asset, err := h.tracker.Asset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeTrackerError(w, h.logger, err, "Failed to retrieve asset")
		return
	}

	writeJSON(w, http.StatusOK, asset)
}

// Put creates or renames an asset.
func (h *AssetsHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string              `json:"name"`
		Status storage.AssetStatus `json:"status,omitempty"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	asset, err := h.tracker.UpsertAsset(r.Context(), storage.Asset{
		ID:     chi.URLParam(r, "id"),
		Name:   req.Name,
		Status: req.Status,
	})
	if err != nil {
		writeTrackerError(w, h.logger, err, "Failed to save asset")
		return
	}

	writeJSON(w, http.StatusOK, asset)
}
