package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/printflow/printflow/internal/api/middleware"
	"github.com/printflow/printflow/internal/blob"
	"github.com/printflow/printflow/internal/core"
	"github.com/printflow/printflow/internal/db"
)

type UploadBatchRequest struct {
	VendorID string           `json:"vendor_id"`
	Specs    []core.PrintSpec `json:"specs"`
}

type JobView struct {
	*db.PrintJob
	QueuePosition int `json:"queue_position"`
}

type BatchResponse struct {
	BatchID     string    `json:"batch_id"`
	TotalAmount int64     `json:"total_amount"`
	Jobs        []JobView `json:"jobs"`
}

type SubmitPaymentRequest struct {
	BatchID   string `json:"batch_id"`
	JobID     string `json:"job_id"`
	Reference string `json:"reference" binding:"required"`
	Amount    int64  `json:"amount" binding:"required"`
}

type StudentHandler struct {
	engine        *core.Engine
	blobs         blob.Store
	maxUploadSize int64
	maxFiles      int
}

func NewStudentHandler(engine *core.Engine, blobs blob.Store, maxUploadSizeMB, maxFiles int) *StudentHandler {
	return &StudentHandler{
		engine:        engine,
		blobs:         blobs,
		maxUploadSize: int64(maxUploadSizeMB) * 1024 * 1024,
		maxFiles:      maxFiles,
	}
}

// ListVendors lets a student pick a print shop. Availability is included so
// the client can grey out closed vendors.
func (h *StudentHandler) ListVendors(c *gin.Context) {
	vendors, err := db.Vendors.ListVendors(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list vendors"})
		return
	}
	if vendors == nil {
		vendors = []*db.Vendor{}
	}
	c.JSON(http.StatusOK, vendors)
}

// UploadBatch accepts a multipart form with a "payload" JSON field (vendor id
// plus one spec per file, in order) and repeated "files" parts. Every spec is
// validated before the first blob write so a bad file never leaves orphaned
// uploads, and blobs written before a later failure are deleted again.
func (h *StudentHandler) UploadBatch(c *gin.Context) {
	studentID := middleware.UserID(c)

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}

	payloads := form.Value["payload"]
	if len(payloads) != 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "exactly one payload field is required"})
		return
	}

	var req UploadBatchRequest
	if err := json.Unmarshal([]byte(payloads[0]), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload json"})
		return
	}
	if req.VendorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vendor_id is required"})
		return
	}

	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one file is required"})
		return
	}
	if len(fileHeaders) > h.maxFiles {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many files in one batch"})
		return
	}
	if len(fileHeaders) != len(req.Specs) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "one spec per file is required, in file order"})
		return
	}

	// Validate everything up front. No blob is written and no job is created
	// until the whole batch is known to be acceptable.
	for i := range req.Specs {
		req.Specs[i].ApplyDefaults()
		if err := req.Specs[i].Validate(); err != nil {
			writeEngineError(c, err)
			return
		}
	}
	for _, fh := range fileHeaders {
		if fh.Size > h.maxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds the upload size limit"})
			return
		}
	}

	ctx := c.Request.Context()
	uploads := make([]core.FileUpload, 0, len(fileHeaders))
	var storedRefs []string

	cleanup := func() {
		for _, ref := range storedRefs {
			if err := h.blobs.Delete(context.Background(), ref); err != nil {
				log.Printf("[upload] failed to clean up blob %s: %v", ref, err)
			}
		}
	}

	for i, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			cleanup()
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded file"})
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, h.maxUploadSize+1))
		f.Close()
		if err != nil {
			cleanup()
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded file"})
			return
		}
		if int64(len(data)) > h.maxUploadSize {
			cleanup()
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds the upload size limit"})
			return
		}

		contentType := fh.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		ref, err := h.blobs.Put(ctx, data, blob.Metadata{
			FileName:    fh.Filename,
			ContentType: contentType,
			StudentID:   studentID,
		})
		if err != nil {
			cleanup()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
			return
		}
		storedRefs = append(storedRefs, ref)

		uploads = append(uploads, core.FileUpload{
			FileName:    fh.Filename,
			ContentType: contentType,
			FileRef:     ref,
			Spec:        req.Specs[i],
		})
	}

	jobs, err := h.engine.CreateBatch(ctx, studentID, req.VendorID, uploads)
	if err != nil {
		cleanup()
		writeEngineError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.batchResponse(ctx, jobs))
}

func (h *StudentHandler) batchResponse(ctx context.Context, jobs []*db.PrintJob) BatchResponse {
	resp := BatchResponse{Jobs: make([]JobView, 0, len(jobs))}
	for _, job := range jobs {
		resp.BatchID = job.BatchID
		resp.TotalAmount += job.Amount
		resp.Jobs = append(resp.Jobs, h.jobView(ctx, job))
	}
	return resp
}

func (h *StudentHandler) jobView(ctx context.Context, job *db.PrintJob) JobView {
	pos, err := h.engine.QueuePosition(ctx, job.ID)
	if err != nil {
		pos = 0
	}
	return JobView{PrintJob: job, QueuePosition: pos}
}

// ListJobs returns the student's own jobs, optionally filtered by status.
func (h *StudentHandler) ListJobs(c *gin.Context) {
	jobs, err := db.Jobs.ListJobs(c.Request.Context(), db.JobFilter{
		StudentID: middleware.UserID(c),
		Status:    c.Query("status"),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}

	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, h.jobView(c.Request.Context(), job))
	}
	c.JSON(http.StatusOK, views)
}

func (h *StudentHandler) GetJob(c *gin.Context) {
	job, err := db.Jobs.GetJobByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeEngineError(c, core.ErrJobNotFound)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}
	if job.StudentID != middleware.UserID(c) {
		writeEngineError(c, core.ErrNotAuthorized)
		return
	}

	c.JSON(http.StatusOK, h.jobView(c.Request.Context(), job))
}

// LatestJob returns the student's most recent job, for the tracking screen.
func (h *StudentHandler) LatestJob(c *gin.Context) {
	job, err := db.Jobs.GetLatestByStudent(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeEngineError(c, core.ErrJobNotFound)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}

	c.JSON(http.StatusOK, h.jobView(c.Request.Context(), job))
}

// SubmitPayment records a manually entered payment reference for a batch.
// Either batch_id or job_id identifies the batch.
func (h *StudentHandler) SubmitPayment(c *gin.Context) {
	var req SubmitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.BatchID == "" && req.JobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batch_id or job_id is required"})
		return
	}

	ctx := c.Request.Context()
	studentID := middleware.UserID(c)

	if err := h.checkBatchOwnership(ctx, studentID, req.BatchID, req.JobID); err != nil {
		writeEngineError(c, err)
		return
	}

	var jobs []*db.PrintJob
	var err error
	if req.BatchID != "" {
		jobs, err = h.engine.VerifyPayment(ctx, req.BatchID, req.Reference, req.Amount)
	} else {
		jobs, err = h.engine.VerifyPaymentForJob(ctx, req.JobID, req.Reference, req.Amount)
	}
	if err != nil {
		writeEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.batchResponse(ctx, jobs))
}

func (h *StudentHandler) checkBatchOwnership(ctx context.Context, studentID, batchID, jobID string) error {
	if batchID != "" {
		jobs, err := db.Jobs.GetJobsByBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return core.ErrBatchNotFound
		}
		if jobs[0].StudentID != studentID {
			return core.ErrNotAuthorized
		}
		return nil
	}

	job, err := db.Jobs.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrJobNotFound
		}
		return err
	}
	if job.StudentID != studentID {
		return core.ErrNotAuthorized
	}
	return nil
}

// History returns the student's done jobs, newest first.
func (h *StudentHandler) History(c *gin.Context) {
	jobs, err := h.engine.ListHistory(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list history"})
		return
	}
	if jobs == nil {
		jobs = []*db.PrintJob{}
	}
	c.JSON(http.StatusOK, jobs)
}

// ClearHistory deletes the student's done jobs and their stored files.
func (h *StudentHandler) ClearHistory(c *gin.Context) {
	ctx := c.Request.Context()

	jobs, err := h.engine.ClearStudentHistory(ctx, middleware.UserID(c))
	if err != nil {
		writeEngineError(c, err)
		return
	}

	for _, job := range jobs {
		if err := h.blobs.Delete(ctx, job.FileRef); err != nil {
			log.Printf("[history] failed to delete blob %s: %v", job.FileRef, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"deleted": len(jobs)})
}

func (h *StudentHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/vendors", h.ListVendors)
	r.POST("/jobs", h.UploadBatch)
	r.GET("/jobs", h.ListJobs)
	r.GET("/jobs/latest", h.LatestJob)
	r.GET("/jobs/:id", h.GetJob)
	r.POST("/payments/submit", h.SubmitPayment)
	r.GET("/history", h.History)
	r.DELETE("/history", h.ClearHistory)
}
