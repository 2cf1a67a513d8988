package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/printflow/printflow/internal/db"
)

type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type AnalyticsResponse struct {
	TotalJobs            int64         `json:"total_jobs"`
	ByStatus             []StatusCount `json:"by_status"`
	Revenue              int64         `json:"revenue"`
	CompletedToday       int64         `json:"completed_today"`
	AvgTurnaroundSeconds float64       `json:"avg_turnaround_seconds"`
}

// AdminHandler serves the vendor dashboard: shop-wide analytics and the
// audit trail.
type AdminHandler struct{}

func NewAdminHandler() *AdminHandler {
	return &AdminHandler{}
}

func (h *AdminHandler) GetAnalytics(c *gin.Context) {
	ctx := c.Request.Context()
	database := db.GetDB()

	var resp AnalyticsResponse

	rows, err := database.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM print_jobs GROUP BY status")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load analytics"})
		return
	}
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			rows.Close()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load analytics"})
			return
		}
		resp.ByStatus = append(resp.ByStatus, sc)
		resp.TotalJobs += sc.Count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load analytics"})
		return
	}

	// Revenue counts only paid jobs; deleted history no longer contributes.
	if err := database.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM print_jobs WHERE payment_verified = 1").Scan(&resp.Revenue); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load analytics"})
		return
	}

	if err := database.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM print_jobs WHERE status = 'done' AND DATE(updated_at) = DATE('now')").Scan(&resp.CompletedToday); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load analytics"})
		return
	}

	if err := database.QueryRowContext(ctx,
		`SELECT COALESCE(AVG((JULIANDAY(updated_at) - JULIANDAY(created_at)) * 86400), 0)
		 FROM print_jobs WHERE status = 'done'`).Scan(&resp.AvgTurnaroundSeconds); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load analytics"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *AdminHandler) ListAuditLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	logs, err := db.Audit.ListAuditLogs(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list audit logs"})
		return
	}
	if logs == nil {
		logs = []*db.AuditLog{}
	}
	c.JSON(http.StatusOK, logs)
}

func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/analytics", h.GetAnalytics)
	r.GET("/audit", h.ListAuditLogs)
}
