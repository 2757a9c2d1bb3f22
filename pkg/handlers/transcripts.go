package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/agenda-sync/pkg/logging"
	"github.com/ekaya-inc/agenda-sync/pkg/middleware"
	"github.com/ekaya-inc/agenda-sync/pkg/models"
	"github.com/ekaya-inc/agenda-sync/pkg/services"
	"github.com/ekaya-inc/agenda-sync/pkg/transcription"
)

// multipartMemory is the part of an upload held in memory; the rest spills
// to temporary files.
const multipartMemory = 8 << 20

// TranscriptsHandler runs conversations through the pipeline over HTTP.
type TranscriptsHandler struct {
	pipeline        services.PipelineService
	maxUploadBytes  int64
	defaultTimezone string
	language        string
	logger          *zap.Logger
}

// TranscriptsConfig configures a TranscriptsHandler.
type TranscriptsConfig struct {
	MaxUploadBytes  int64
	DefaultTimezone string
	// Language is the transcription hint used when the request gives none.
	Language string
}

// NewTranscriptsHandler creates a TranscriptsHandler.
func NewTranscriptsHandler(pipeline services.PipelineService, cfg TranscriptsConfig, logger *zap.Logger) *TranscriptsHandler {
	return &TranscriptsHandler{
		pipeline:        pipeline,
		maxUploadBytes:  cfg.MaxUploadBytes,
		defaultTimezone: cfg.DefaultTimezone,
		language:        cfg.Language,
		logger:          logger.Named("transcripts"),
	}
}

// RegisterRoutes registers the transcript routes. authenticate wraps each
// route; pass nil to leave them open.
func (h *TranscriptsHandler) RegisterRoutes(mux *http.ServeMux, authenticate func(http.Handler) http.Handler) {
	if authenticate == nil {
		authenticate = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("POST /api/transcripts", authenticate(http.HandlerFunc(h.Upload)))
	mux.Handle("POST /api/transcripts/process", authenticate(http.HandlerFunc(h.Process)))
}

// Upload handles POST /api/transcripts: a multipart form with the recording
// in the "audio" field. Pipeline settings come from form or query values,
// plus "diarize" (default true) and "language".
func (h *TranscriptsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "upload_too_large", "audio exceeds the upload limit")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid_request", "expected a multipart form with an audio file")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("audio")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "missing audio file")
		return
	}
	defer file.Close()

	params, err := queryPipelineParams(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_parameters", err.Error())
		return
	}
	opts, _, err := params.options(h.defaultTimezone)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_parameters", err.Error())
		return
	}

	diarize := true
	if v := strings.TrimSpace(r.FormValue("diarize")); v != "" {
		if diarize, err = parseOptionalBool(v); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_parameters", "diarize must be a boolean")
			return
		}
	}
	language := strings.TrimSpace(r.FormValue("language"))
	if language == "" {
		language = h.language
	}

	topts := transcription.Options{
		Diarize:  diarize,
		Language: language,
		Filename: header.Filename,
	}

	h.logger.Info("Processing uploaded audio",
		zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
		zap.String("filename", header.Filename),
		zap.Int64("size", header.Size),
		zap.Bool("dry_run", opts.DryRun),
	)

	report, err := h.pipeline.ProcessAudio(r.Context(), file, topts, opts)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, report); err != nil {
		h.logger.Error("Failed to encode pipeline report", zap.Error(err))
	}
}

// processRequest is the body of POST /api/transcripts/process.
type processRequest struct {
	Segments  []models.RawSegment `json:"segments"`
	CreatedAt string              `json:"created_at"`
	pipelineParams
}

// Process handles POST /api/transcripts/process: an already transcribed
// conversation as JSON segments.
func (h *TranscriptsHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "request body must be a JSON transcript")
		return
	}
	if len(req.Segments) == 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_parameters", "segments cannot be empty")
		return
	}

	opts, loc, err := req.options(h.defaultTimezone)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_parameters", err.Error())
		return
	}

	tr := &models.Transcript{
		Provider: "api",
		Segments: req.Segments,
		Timezone: req.Timezone,
	}
	if req.CreatedAt != "" {
		if tr.CreatedAt, err = parseTimeIn(req.CreatedAt, loc); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_parameters", "created_at: "+err.Error())
			return
		}
	}

	report, err := h.pipeline.ProcessTranscript(r.Context(), tr, opts)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, report); err != nil {
		h.logger.Error("Failed to encode pipeline report", zap.Error(err))
	}
}

func (h *TranscriptsHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *TranscriptsHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("Pipeline failed",
		zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
		zap.String("error", logging.SanitizeError(err)))
	if werr := WriteServiceError(w, err); werr != nil {
		h.logger.Error("Failed to write error response", zap.Error(werr))
	}
}
