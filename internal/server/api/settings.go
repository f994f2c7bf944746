package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/snoezelen/internal/settings"
)

// SettingsService reads and changes the live settings.
type SettingsService interface {
	Settings() *settings.Holder
	UpdateSetting(key string, value json.RawMessage) (settings.Settings, error)
	// UpdateSettings applies every key as one change, or none of them.
	UpdateSettings(values map[string]json.RawMessage) (settings.Settings, error)
}

// SettingsHandler handles /api/settings.
type SettingsHandler struct {
	svc SettingsService
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(svc SettingsService) *SettingsHandler {
	return &SettingsHandler{svc: svc}
}

// ServeHTTP routes requests.
// Expected paths: /api/settings or /api/settings/{key}
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := itemPath(r, "/api/settings")

	if key == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPut:
			h.updateMany(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, key)
	case http.MethodPut:
		h.update(w, r, key)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// list handles GET /api/settings.
func (h *SettingsHandler) list(w http.ResponseWriter, r *http.Request) {
	fields, err := h.svc.Settings().Load().Fields()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode settings")
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

// get handles GET /api/settings/{key}.
func (h *SettingsHandler) get(w http.ResponseWriter, r *http.Request, key string) {
	fields, err := h.svc.Settings().Load().Fields()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode settings")
		return
	}
	value, ok := fields[key]
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown setting")
		return
	}
	writeJSON(w, http.StatusOK, value)
}

// update handles PUT /api/settings/{key}; the body is the new value.
func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request, key string) {
	var value json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	s, err := h.svc.UpdateSetting(key, value)
	if err != nil {
		writeSettingError(w, err)
		return
	}
	h.respond(w, s)
}

// updateMany handles PUT /api/settings with an object of keys. Either every
// key is applied or none is.
func (h *SettingsHandler) updateMany(w http.ResponseWriter, r *http.Request) {
	var req map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if len(req) == 0 {
		writeError(w, http.StatusBadRequest, "At least one setting is required")
		return
	}

	s, err := h.svc.UpdateSettings(req)
	if err != nil {
		writeSettingError(w, err)
		return
	}
	h.respond(w, s)
}

func (h *SettingsHandler) respond(w http.ResponseWriter, s settings.Settings) {
	fields, err := s.Fields()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode settings")
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

func writeSettingError(w http.ResponseWriter, err error) {
	if errors.Is(err, settings.ErrUnknownSetting) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}
