package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"voice-archive/pkg/config"
	"voice-archive/pkg/models"
	"voice-archive/pkg/pipeline"
	"voice-archive/pkg/storage"
)

type Handlers struct {
	pipeline *pipeline.Manager
	archive  storage.Archive
	cfg      *config.Config
	logger   *zap.Logger
	validate *validator.Validate
}

func NewHandlers(p *pipeline.Manager, archive storage.Archive, cfg *config.Config, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		pipeline: p,
		archive:  archive,
		cfg:      cfg,
		logger:   logger,
		validate: validator.New(),
	}
}

// Register wires all routes onto the router.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/api/contributors", h.CreateContributor).Methods("POST")
	r.HandleFunc("/api/contributors", h.ListContributors).Methods("GET")
	r.HandleFunc("/api/contributors/{id}", h.GetContributor).Methods("GET")
	r.HandleFunc("/api/contributors/{id}", h.UpsertContributor).Methods("PUT")

	r.HandleFunc("/api/recordings", h.UploadRecording).Methods("POST")
	r.HandleFunc("/api/recordings", h.ListRecordings).Methods("GET")
	r.HandleFunc("/api/recordings/{id}", h.GetRecording).Methods("GET")
	r.HandleFunc("/api/recordings/{id}", h.UpsertRecording).Methods("PUT")
	r.HandleFunc("/api/recordings/{id}", h.DeleteRecording).Methods("DELETE")
	r.HandleFunc("/api/recordings/{id}/audio", h.GetRecordingAudio).Methods("GET")

	r.HandleFunc("/api/audio/{key}", h.PutAudio).Methods("PUT")
	r.HandleFunc("/api/audio/{key}", h.GetAudio).Methods("GET")

	r.HandleFunc("/api/contact", h.CreateContact).Methods("POST")
	r.HandleFunc("/api/contact", h.ListContacts).Methods("GET")

	r.HandleFunc("/api/themes", h.ListThemes).Methods("GET")
	r.HandleFunc("/api/export", h.ExportArchive).Methods("GET")

	r.HandleFunc("/ws/record", h.RecordSocket)
	r.HandleFunc("/healthz", h.Health).Methods("GET")
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to write response", zap.Error(err))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// requireAdmin checks the admin token. A deployment without a token has the
// administrative surface disabled entirely.
func (h *Handlers) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if h.cfg.AdminToken == "" {
		h.writeError(w, http.StatusForbidden, "administrative API is disabled")
		return false
	}
	token := r.Header.Get("X-API-Key")
	if token == "" {
		token = r.Header.Get("X-Admin-Token")
	}
	if token != h.cfg.AdminToken {
		h.writeError(w, http.StatusUnauthorized, "invalid admin token")
		return false
	}
	return true
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createContributorRequest struct {
	Name     string `json:"contributor_name" validate:"required,max=255"`
	AgeRange string `json:"age_range" validate:"omitempty,max=50"`
	Gender   string `json:"gender" validate:"omitempty,max=50"`
	Location string `json:"location" validate:"omitempty,max=255"`
}

func (h *Handlers) CreateContributor(w http.ResponseWriter, r *http.Request) {
	var req createContributorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c := models.NewContributor(req.Name, req.AgeRange, req.Gender, req.Location)
	if err := h.archive.SaveContributor(r.Context(), c); err != nil {
		h.logger.Error("failed to save contributor", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to save contributor")
		return
	}

	h.logger.Info("contributor created", zap.String("contributor_id", c.ID))
	h.writeJSON(w, http.StatusCreated, c)
}

func (h *Handlers) UpsertContributor(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	var c models.Contributor
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	c.ID = mux.Vars(r)["id"]
	if c.ID == "" || c.Name == "" {
		h.writeError(w, http.StatusBadRequest, "contributor id and name are required")
		return
	}
	if err := h.archive.SaveContributor(r.Context(), &c); err != nil {
		h.logger.Error("failed to save contributor", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to save contributor")
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

func (h *Handlers) ListContributors(w http.ResponseWriter, r *http.Request) {
	contributors, err := h.archive.ListContributors(r.Context())
	if err != nil {
		h.logger.Error("failed to list contributors", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to list contributors")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"contributors": contributors,
		"count":        len(contributors),
	})
}

func (h *Handlers) GetContributor(w http.ResponseWriter, r *http.Request) {
	c, err := h.archive.GetContributor(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "contributor not found")
			return
		}
		h.logger.Error("failed to get contributor", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// UploadRecording accepts a multipart submission: an "audio" file part plus
// the metadata form fields. The recording is queued for processing and
// returned immediately in pending state; clients poll until it is ready.
func (h *Handlers) UploadRecording(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.cfg.Metadata.MaxUploadBytes); err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to parse form")
		return
	}

	meta := models.Metadata{
		ContributorID:    r.FormValue("contributor_id"),
		Transcription:    r.FormValue("transcription"),
		EngTranscription: r.FormValue("eng_transcription"),
		Theme:            r.FormValue("theme"),
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "audio/") {
		h.writeError(w, http.StatusUnsupportedMediaType, "uploaded file is not audio")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to read audio file")
		return
	}

	duration, _ := strconv.Atoi(r.FormValue("duration"))
	payload := &models.Payload{
		Data:            data,
		MimeType:        mimeType,
		DurationSeconds: duration,
		Live:            r.FormValue("live") == "true",
	}

	contributorName := ""
	if meta.ContributorID != "" {
		if c, err := h.archive.GetContributor(r.Context(), meta.ContributorID); err == nil {
			contributorName = c.Name
		}
	}

	rec := models.NewRecording(meta, contributorName, payload)
	sub := &models.Submission{Recording: rec, Payload: payload, Metadata: meta}

	// Snapshot before submitting; the pipeline owns rec once it is queued.
	pending := *rec
	if err := h.pipeline.Submit(r.Context(), sub); err != nil {
		h.logger.Warn("submission rejected", zap.Error(err))
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	h.writeJSON(w, http.StatusAccepted, &pending)
}

func (h *Handlers) UpsertRecording(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	var rec models.Recording
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rec.ID = mux.Vars(r)["id"]
	if rec.ID == "" {
		h.writeError(w, http.StatusBadRequest, "recording id is required")
		return
	}
	if err := h.archive.SaveRecording(r.Context(), &rec); err != nil {
		h.logger.Error("failed to save recording", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to save recording")
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handlers) ListRecordings(w http.ResponseWriter, r *http.Request) {
	filter := models.Filter{
		Query:         r.URL.Query().Get("q"),
		Theme:         r.URL.Query().Get("theme"),
		ContributorID: r.URL.Query().Get("contributor_id"),
		Limit:         50,
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}

	recordings, err := h.archive.ListRecordings(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list recordings", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to list recordings")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"recordings": recordings,
		"count":      len(recordings),
	})
}

func (h *Handlers) GetRecording(w http.ResponseWriter, r *http.Request) {
	rec, err := h.archive.GetRecording(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "recording not found")
			return
		}
		h.logger.Error("failed to get recording", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handlers) DeleteRecording(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	id := mux.Vars(r)["id"]
	if err := h.archive.DeleteRecording(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "recording not found")
			return
		}
		h.logger.Error("failed to delete recording", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to delete recording")
		return
	}
	h.logger.Info("recording deleted", zap.String("recording_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// GetRecordingAudio streams a recording's audio. The clean (normalized)
// variant is served when it exists unless ?variant=raw asks for the
// original upload.
func (h *Handlers) GetRecordingAudio(w http.ResponseWriter, r *http.Request) {
	rec, err := h.archive.GetRecording(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "recording not found")
			return
		}
		h.logger.Error("failed to get recording", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	key := rec.CleanKey
	if key == "" || r.URL.Query().Get("variant") == "raw" {
		key = rec.RawKey
	}
	if key == "" {
		h.writeError(w, http.StatusNotFound, "audio not available yet")
		return
	}

	data, mimeType, err := h.archive.GetAudio(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "audio not found")
			return
		}
		h.logger.Error("failed to get audio", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (h *Handlers) PutAudio(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.Metadata.MaxUploadBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read audio body")
		return
	}
	key := mux.Vars(r)["key"]
	mimeType := r.Header.Get("Content-Type")
	if err := h.archive.SaveAudio(r.Context(), key, data, mimeType); err != nil {
		h.logger.Error("failed to save audio", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to save audio")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) GetAudio(w http.ResponseWriter, r *http.Request) {
	data, mimeType, err := h.archive.GetAudio(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "audio not found")
			return
		}
		h.logger.Error("failed to get audio", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

type contactRequest struct {
	Name    string `json:"name" validate:"required,max=255"`
	Email   string `json:"email" validate:"required,email"`
	Subject string `json:"subject" validate:"omitempty,max=255"`
	Body    string `json:"body" validate:"required,max=10000"`
}

func (h *Handlers) CreateContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg := models.NewContactMessage(req.Name, req.Email, req.Subject, req.Body)
	if err := h.archive.SaveContact(r.Context(), msg); err != nil {
		h.logger.Error("failed to save contact message", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to save message")
		return
	}

	h.logger.Info("contact message received", zap.String("id", msg.ID))
	h.writeJSON(w, http.StatusCreated, msg)
}

func (h *Handlers) ListContacts(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	messages, err := h.archive.ListContacts(r.Context())
	if err != nil {
		h.logger.Error("failed to list contact messages", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
		"count":    len(messages),
	})
}

func (h *Handlers) ListThemes(w http.ResponseWriter, r *http.Request) {
	themes, err := h.archive.ListThemes(r.Context())
	if err != nil {
		h.logger.Error("failed to list themes", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to list themes")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"themes": themes,
		"count":  len(themes),
	})
}

// ExportArchive dumps the archive's metadata for administrative backup.
func (h *Handlers) ExportArchive(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	dump, err := h.archive.Export(r.Context())
	if err != nil {
		h.logger.Error("export failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	h.writeJSON(w, http.StatusOK, dump)
}
