package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ayusman/snoezelen/internal/app"
	"github.com/ayusman/snoezelen/internal/recording"
)

// RecordingService controls keypoint recording.
type RecordingService interface {
	StartRecording(memo string, video bool) (string, error)
	StopRecording() (recording.Session, error)
	SaveRecording(memo string) (app.SaveResult, error)
}

// RecordingHandler handles POST /api/recording/{start,stop,save}.
type RecordingHandler struct {
	svc RecordingService
}

// NewRecordingHandler creates a new RecordingHandler.
func NewRecordingHandler(svc RecordingService) *RecordingHandler {
	return &RecordingHandler{svc: svc}
}

type recordingRequest struct {
	Memo  string `json:"memo"`
	Video bool   `json:"video"`
}

type recordingResponse struct {
	ID       string   `json:"id"`
	Samples  int      `json:"samples"`
	Path     string   `json:"path,omitempty"`
	Warning  string   `json:"warning,omitempty"`
	Archived []string `json:"archived,omitempty"`
}

// ServeHTTP routes requests.
func (h *RecordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// the body is optional
	var req recordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	switch itemPath(r, "/api/recording") {
	case "start":
		id, err := h.svc.StartRecording(req.Memo, req.Video)
		if err != nil {
			writeRecordingError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, recordingResponse{ID: id})

	case "stop":
		sess, err := h.svc.StopRecording()
		if err != nil {
			writeRecordingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, recordingResponse{ID: sess.ID, Samples: len(sess.Samples)})

	case "save":
		res, err := h.svc.SaveRecording(req.Memo)
		if err != nil && !errors.Is(err, recording.ErrEmptyRecording) {
			writeRecordingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, recordingResponse{
			ID:       res.ID,
			Samples:  res.Samples,
			Path:     res.Path,
			Warning:  res.Warning,
			Archived: res.Archived,
		})

	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func writeRecordingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, recording.ErrAlreadyRecording), errors.Is(err, recording.ErrNotRecording):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
