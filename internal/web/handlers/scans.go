package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/photolink/internal/constants"
	"github.com/kozaktomas/photolink/internal/jobs"
	"github.com/kozaktomas/photolink/internal/logging"
	"github.com/kozaktomas/photolink/internal/scan"
	"github.com/kozaktomas/photolink/internal/source"
)

// ScansHandler handles scan job endpoints.
type ScansHandler struct {
	svc    ScanService
	logger *slog.Logger
}

// NewScansHandler creates a new scans handler.
func NewScansHandler(svc ScanService, logger *slog.Logger) *ScansHandler {
	return &ScansHandler{
		svc:    svc,
		logger: logging.NewComponentLogger(logger, "http"),
	}
}

// SubmitResponse is returned when a scan was accepted.
type SubmitResponse struct {
	JobID  string     `json:"job_id"`
	Status jobs.Phase `json:"status"`
}

// BatchResponse is returned when a batch of scans was accepted.
type BatchResponse struct {
	Jobs []SubmitResponse `json:"jobs"`
}

// scanForm holds the fields shared by single and batch submissions.
type scanForm struct {
	sources    []string
	searchText string
	image      []byte
	credential source.Credential
}

// readScanForm parses the multipart form and writes a 400 when it is unusable.
func readScanForm(w http.ResponseWriter, r *http.Request) (scanForm, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return scanForm{}, false
	}

	form := scanForm{
		searchText: r.FormValue("search_text"),
		credential: source.Credential{Token: bearerToken(r)},
	}
	for _, v := range r.Form["source"] {
		if strings.TrimSpace(v) != "" {
			form.sources = append(form.sources, v)
		}
	}

	if file, _, err := r.FormFile("face_image"); err == nil {
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			respondError(w, http.StatusBadRequest, "failed to read face_image")
			return scanForm{}, false
		}
		form.image = data
	} else if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
		respondError(w, http.StatusBadRequest, "failed to read face_image")
		return scanForm{}, false
	}
	return form, true
}

// Submit starts a new scan from a multipart form with the fields "source",
// "face_image" and "search_text". A bearer token is passed to the provider.
func (h *ScansHandler) Submit(w http.ResponseWriter, r *http.Request) {
	form, ok := readScanForm(w, r)
	if !ok {
		return
	}
	if len(form.sources) == 0 {
		respondError(w, http.StatusBadRequest, "source is required")
		return
	}
	if len(form.sources) > 1 {
		respondError(w, http.StatusBadRequest, "only one source per scan, use /scans/batch for several")
		return
	}

	jobID, err := h.svc.Submit(r.Context(), scan.SubmitRequest{
		Source:         form.sources[0],
		ReferenceImage: form.image,
		SearchText:     form.searchText,
		Credential:     form.credential,
	})
	if err != nil {
		h.respondSubmitError(w, err, form.sources)
		return
	}

	respondJSON(w, http.StatusAccepted, SubmitResponse{JobID: jobID, Status: jobs.PhaseQueued})
}

// SubmitBatch starts one scan per "source" field, all with the same criterion.
func (h *ScansHandler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	form, ok := readScanForm(w, r)
	if !ok {
		return
	}

	ids, err := h.svc.SubmitBatch(r.Context(), scan.BatchRequest{
		Sources:        form.sources,
		ReferenceImage: form.image,
		SearchText:     form.searchText,
		Credential:     form.credential,
	})
	if err != nil {
		h.respondSubmitError(w, err, form.sources)
		return
	}

	resp := BatchResponse{Jobs: make([]SubmitResponse, 0, len(ids))}
	for _, id := range ids {
		resp.Jobs = append(resp.Jobs, SubmitResponse{JobID: id, Status: jobs.PhaseQueued})
	}
	respondJSON(w, http.StatusAccepted, resp)
}

func (h *ScansHandler) respondSubmitError(w http.ResponseWriter, err error, sources []string) {
	var verr *scan.ValidationError
	if errors.As(err, &verr) {
		respondError(w, http.StatusBadRequest, verr.Error())
		return
	}
	h.logger.Error("scan submission failed", "sources", sanitizeForLog(strings.Join(sources, " ")), "error", err)
	respondError(w, http.StatusInternalServerError, jobs.SanitizeMessage(err.Error()))
}

// List returns the status of every known scan.
func (h *ScansHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.svc.List())
}

// Get returns the status of one scan.
func (h *ScansHandler) Get(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.Status(chi.URLParam(r, "jobId"))
	if err != nil {
		h.respondJobError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// Events streams scan progress as server-sent events.
func (h *ScansHandler) Events(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	job, err := h.svc.Job(jobID)
	if err != nil {
		h.respondJobError(w, err)
		return
	}
	streamJobEvents(w, r, job, func() jobs.Status {
		status, _ := h.svc.Status(jobID)
		return status
	})
}

// Cancel requests cancellation of a running scan.
func (h *ScansHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if err := h.svc.Cancel(jobID); err != nil {
		h.respondJobError(w, err)
		return
	}
	h.logger.Info("scan cancel requested", "job_id", sanitizeForLog(jobID))
	respondJSON(w, http.StatusAccepted, map[string]bool{"cancelled": true})
}

func (h *ScansHandler) respondJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		respondError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, jobs.ErrJobFinished):
		respondError(w, http.StatusConflict, "job already finished")
	default:
		respondError(w, http.StatusInternalServerError, jobs.SanitizeMessage(err.Error()))
	}
}
