package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/printflow/printflow/internal/api/middleware"
	"github.com/printflow/printflow/internal/blob"
	"github.com/printflow/printflow/internal/core"
	"github.com/printflow/printflow/internal/db"
)

type UpdateAvailabilityRequest struct {
	IsOpen *bool `json:"is_open" binding:"required"`
}

type VendorHandler struct {
	engine *core.Engine
	blobs  blob.Store
}

func NewVendorHandler(engine *core.Engine, blobs blob.Store) *VendorHandler {
	return &VendorHandler{engine: engine, blobs: blobs}
}

// vendorFor resolves the authenticated user to their vendor record. Every
// vendor route goes through this so ownership checks use the vendor id, not
// the user id.
func (h *VendorHandler) vendorFor(c *gin.Context) (*db.Vendor, bool) {
	vendor, err := db.Vendors.GetVendorByUserID(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusForbidden, gin.H{"error": "no vendor profile for this account"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve vendor"})
		return nil, false
	}
	return vendor, true
}

// ListQueue returns the live queue in FIFO order, positions implied by index.
func (h *VendorHandler) ListQueue(c *gin.Context) {
	vendor, ok := h.vendorFor(c)
	if !ok {
		return
	}

	jobs, err := h.engine.ListLive(c.Request.Context(), vendor.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list queue"})
		return
	}

	views := make([]JobView, 0, len(jobs))
	for i, job := range jobs {
		views = append(views, JobView{PrintJob: job, QueuePosition: i + 1})
	}
	c.JSON(http.StatusOK, views)
}

// ListJobs returns all of the vendor's jobs, optionally filtered by status.
func (h *VendorHandler) ListJobs(c *gin.Context) {
	vendor, ok := h.vendorFor(c)
	if !ok {
		return
	}

	jobs, err := db.Jobs.ListJobs(c.Request.Context(), db.JobFilter{
		VendorID: vendor.ID,
		Status:   c.Query("status"),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}
	if jobs == nil {
		jobs = []*db.PrintJob{}
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *VendorHandler) ApproveJob(c *gin.Context) {
	vendor, ok := h.vendorFor(c)
	if !ok {
		return
	}

	job, err := h.engine.Approve(c.Request.Context(), c.Param("id"), vendor.ID)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	h.audit(c, "job.approved", job.ID, gin.H{"token_number": job.TokenNumber})
	c.JSON(http.StatusOK, job)
}

func (h *VendorHandler) CompleteJob(c *gin.Context) {
	vendor, ok := h.vendorFor(c)
	if !ok {
		return
	}

	job, err := h.engine.Complete(c.Request.Context(), c.Param("id"), vendor.ID)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	h.audit(c, "job.completed", job.ID, gin.H{"token_number": job.TokenNumber})
	c.JSON(http.StatusOK, job)
}

// DownloadJob streams the stored document to the vendor for printing.
func (h *VendorHandler) DownloadJob(c *gin.Context) {
	vendor, ok := h.vendorFor(c)
	if !ok {
		return
	}

	job, err := db.Jobs.GetJobByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeEngineError(c, core.ErrJobNotFound)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}
	if job.VendorID != vendor.ID {
		writeEngineError(c, core.ErrNotAuthorized)
		return
	}

	reader, contentType, err := h.blobs.Get(c.Request.Context(), job.FileRef)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "stored file is unavailable"})
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.FileName))
	c.DataFromReader(http.StatusOK, -1, contentType, reader, nil)
}

// DeleteJob removes a job in any status along with its stored file.
func (h *VendorHandler) DeleteJob(c *gin.Context) {
	vendor, ok := h.vendorFor(c)
	if !ok {
		return
	}

	job, err := h.engine.Delete(c.Request.Context(), c.Param("id"), vendor.ID)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	if err := h.blobs.Delete(c.Request.Context(), job.FileRef); err != nil {
		log.Printf("[vendor] failed to delete blob %s: %v", job.FileRef, err)
	}

	h.audit(c, "job.deleted", job.ID, gin.H{"status": job.Status})
	c.JSON(http.StatusOK, gin.H{"message": "job deleted"})
}

// ClearHistory deletes the vendor's done jobs and their stored files.
func (h *VendorHandler) ClearHistory(c *gin.Context) {
	vendor, ok := h.vendorFor(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	jobs, err := h.engine.ClearVendorHistory(ctx, vendor.ID)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	for _, job := range jobs {
		if err := h.blobs.Delete(ctx, job.FileRef); err != nil {
			log.Printf("[vendor] failed to delete blob %s: %v", job.FileRef, err)
		}
	}

	h.audit(c, "history.cleared", vendor.ID, gin.H{"deleted": len(jobs)})
	c.JSON(http.StatusOK, gin.H{"deleted": len(jobs)})
}

func (h *VendorHandler) GetAvailability(c *gin.Context) {
	vendor, ok := h.vendorFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_open": vendor.IsOpen})
}

// UpdateAvailability flips the upload gate. Jobs already in the queue are
// unaffected; only new uploads are rejected while closed.
func (h *VendorHandler) UpdateAvailability(c *gin.Context) {
	vendor, ok := h.vendorFor(c)
	if !ok {
		return
	}

	var req UpdateAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "is_open is required"})
		return
	}

	if err := h.engine.SetVendorAvailability(c.Request.Context(), vendor.ID, *req.IsOpen); err != nil {
		writeEngineError(c, err)
		return
	}

	h.audit(c, "service.availability_changed", vendor.ID, gin.H{"is_open": *req.IsOpen})
	c.JSON(http.StatusOK, gin.H{"is_open": *req.IsOpen})
}

// audit records a vendor action. Failures are logged, never surfaced.
func (h *VendorHandler) audit(c *gin.Context, action, entityID string, details gin.H) {
	payload, _ := json.Marshal(details)
	entry := &db.AuditLog{
		Action:      action,
		EntityType:  "job",
		EntityID:    entityID,
		DetailsJSON: string(payload),
		IPAddress:   c.ClientIP(),
	}
	if action == "service.availability_changed" || action == "history.cleared" {
		entry.EntityType = "vendor"
	}
	if err := db.Audit.CreateAuditLog(c.Request.Context(), entry); err != nil {
		log.Printf("[audit] failed to record %s: %v", action, err)
	}
}

func (h *VendorHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/queue", h.ListQueue)
	r.GET("/jobs", h.ListJobs)
	r.POST("/jobs/:id/approve", h.ApproveJob)
	r.POST("/jobs/:id/complete", h.CompleteJob)
	r.GET("/jobs/:id/download", h.DownloadJob)
	r.DELETE("/jobs/:id", h.DeleteJob)
	r.DELETE("/history", h.ClearHistory)
	r.GET("/availability", h.GetAvailability)
	r.PUT("/availability", h.UpdateAvailability)
}
