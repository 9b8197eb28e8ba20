package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/dealflow/internal/models"
	"gorm.io/gorm"
)

// HealthHandler reports database reachability and record counts.
type HealthHandler struct {
	db *gorm.DB
}

func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// CheckHealth returns the health status of all subsystems.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := http.StatusOK

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
	}
	if dbStatus != "ok" {
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	var leads, investors int64
	if dbStatus == "ok" {
		h.db.WithContext(c.Request.Context()).Model(&models.Lead{}).Count(&leads)
		h.db.WithContext(c.Request.Context()).Model(&models.Investor{}).Count(&investors)
	}

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "dealflow",
		"components": gin.H{
			"database":  dbStatus,
			"leads":     leads,
			"investors": investors,
		},
	})
}
