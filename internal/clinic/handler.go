package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinic-scheduling/internal/scheduling"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

type settingsStore interface {
	Get(ctx context.Context, clinicID string) (*Settings, error)
	Set(ctx context.Context, cfg *Settings) error
}

// Handler provides HTTP endpoints for clinic scheduling settings.
type Handler struct {
	store  settingsStore
	logger *logging.Logger
}

// NewHandler creates a new clinic settings HTTP handler.
func NewHandler(store settingsStore, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes adds the settings routes to a router scoped by {clinicID}.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)
}

// GetSettings returns the scheduling settings for a clinic.
// GET /api/v1/clinics/{clinicID}/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")
	if clinicID == "" {
		http.Error(w, `{"error": "clinic_id required"}`, http.StatusBadRequest)
		return
	}

	cfg, err := h.store.Get(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("failed to get clinic settings", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(cfg); err != nil {
		h.logger.Error("failed to encode clinic settings", "clinic_id", clinicID, "error", err)
	}
}

// UpdateSettingsRequest is a partial update; nil fields are left unchanged.
type UpdateSettingsRequest struct {
	Name                 string `json:"name,omitempty"`
	DefaultBufferMinutes *int   `json:"default_buffer_minutes,omitempty"`
	DefaultPolicy        string `json:"default_policy,omitempty"`
	DispatchLimit        *int   `json:"dispatch_limit,omitempty"`
}

// UpdateSettings creates or updates the settings for a clinic.
// PUT /api/v1/clinics/{clinicID}/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")
	if clinicID == "" {
		http.Error(w, `{"error": "clinic_id required"}`, http.StatusBadRequest)
		return
	}

	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}

	cfg, err := h.store.Get(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("failed to get clinic settings", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	if req.Name != "" {
		cfg.Name = req.Name
	}
	if req.DefaultBufferMinutes != nil {
		cfg.DefaultBufferMinutes = *req.DefaultBufferMinutes
	}
	if req.DefaultPolicy != "" {
		cfg.DefaultPolicy = scheduling.Policy(req.DefaultPolicy)
	}
	if req.DispatchLimit != nil {
		cfg.DispatchLimit = *req.DispatchLimit
	}

	if err := h.store.Set(r.Context(), cfg); err != nil {
		if errors.Is(err, ErrInvalidSettings) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		h.logger.Error("failed to save clinic settings", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "failed to save settings"}`, http.StatusInternalServerError)
		return
	}

	h.logger.Info("clinic settings updated", "clinic_id", clinicID, "policy", cfg.DefaultPolicy, "dispatch_limit", cfg.DispatchLimit)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(cfg); err != nil {
		h.logger.Error("failed to encode clinic settings", "clinic_id", clinicID, "error", err)
	}
}
