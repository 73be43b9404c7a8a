package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/nijaru/autoclip/errors"
	"github.com/nijaru/autoclip/models"
	"github.com/nijaru/autoclip/services/clips"
	"github.com/nijaru/autoclip/validation"
	"github.com/sirupsen/logrus"
)

// multipartOverhead is allowed on top of the upload limit for form
// boundaries and headers.
const multipartOverhead = 1 << 20

// syncResponseMargin is kept free of the write deadline so a synchronous
// run can still send its result.
const syncResponseMargin = 10 * time.Second

type JobHandler struct {
	service       clips.Service
	validator     *validation.Validator
	maxUploadSize int64
	syncTimeout   time.Duration
	logger        *logrus.Logger
}

// NewJobHandler bounds synchronous runs by writeTimeout, the server's
// response write deadline. Zero leaves them bounded only by the pipeline.
func NewJobHandler(service clips.Service, validator *validation.Validator, maxUploadSize int64, writeTimeout time.Duration, logger *logrus.Logger) *JobHandler {
	syncTimeout := writeTimeout
	if writeTimeout > 2*syncResponseMargin {
		syncTimeout = writeTimeout - syncResponseMargin
	}
	return &JobHandler{
		service:       service,
		validator:     validator,
		maxUploadSize: maxUploadSize,
		syncTimeout:   syncTimeout,
		logger:        logger,
	}
}

// HandleUpload handles POST /upload
func (h *JobHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	const op = "JobHandler.HandleUpload"
	logger := h.logger.WithFields(logrus.Fields{
		"operation":  op,
		"request_id": requestID(r),
	})

	opts := validation.RequestValidationOpts{
		AllowedMethods:   []string{http.MethodPost},
		RequireMultipart: true,
	}
	if h.maxUploadSize > 0 {
		opts.MaxContentLength = h.maxUploadSize + multipartOverhead
		r.Body = http.MaxBytesReader(w, r.Body, opts.MaxContentLength)
	}
	if err := h.validator.ValidateRequest(r, opts); err != nil {
		respondError(w, r, err)
		return
	}

	upload, err := fileUpload(r)
	if err != nil {
		respondError(w, r, errors.InvalidInput(op, err, "No file uploaded"))
		return
	}
	logger = logger.WithField("filename", upload.Filename)

	if r.URL.Query().Get("mode") == "sync" {
		ctx := r.Context()
		if h.syncTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.syncTimeout)
			defer cancel()
		}
		job, err := h.service.Process(ctx, upload)
		if err != nil {
			logger.WithError(err).Error("Synchronous processing failed")
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, models.NewJobResponse(job))
		return
	}

	job, err := h.service.Submit(r.Context(), upload)
	if err != nil {
		logger.WithError(err).Warn("Upload rejected")
		respondError(w, r, err)
		return
	}

	logger.WithFields(logrus.Fields{
		"job_id": job.ID,
		"status": job.Status,
	}).Info("Upload accepted")

	respondJSON(w, r, http.StatusAccepted, models.UploadResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Upload accepted, processing started",
	})
}

// fileUpload streams the "file" part of a multipart body without
// buffering it.
func fileUpload(r *http.Request) (clips.Upload, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return clips.Upload{}, err
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return clips.Upload{}, http.ErrMissingFile
		}
		if err != nil {
			return clips.Upload{}, err
		}
		if part.FormName() == "file" {
			return clips.Upload{Filename: part.FileName(), Size: -1, Body: part}, nil
		}
		part.Close()
	}
}

// HandleGetJob handles GET /api/v1/jobs/{id}
func (h *JobHandler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, models.NewJobResponse(job))
}

// HandleCancelJob handles POST /api/v1/jobs/{id}/cancel
func (h *JobHandler) HandleCancelJob(w http.ResponseWriter, r *http.Request) {
	const op = "JobHandler.HandleCancelJob"

	id := r.PathValue("id")
	if err := h.service.Cancel(r.Context(), id); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"operation": op,
			"job_id":    id,
		}).Warn("Failed to cancel job")
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusAccepted, map[string]string{
		"job_id": id,
		"status": "cancelling",
	})
}
