package handlers

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/dealflow/internal/models"
	"gorm.io/gorm"
)

var startTime = time.Now()

// MetricsHandler exposes gauges in the Prometheus text format.
type MetricsHandler struct {
	db *gorm.DB
}

func NewMetricsHandler(db *gorm.DB) *MetricsHandler {
	return &MetricsHandler{db: db}
}

// GET /metrics
func (h *MetricsHandler) Metrics(c *gin.Context) {
	var b strings.Builder

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	writeGauge(&b, "dealflow_uptime_seconds", "Time since server start in seconds", time.Since(startTime).Seconds())
	writeGauge(&b, "dealflow_goroutines", "Number of active goroutines", float64(runtime.NumGoroutine()))
	writeGauge(&b, "dealflow_memory_alloc_bytes", "Current heap allocation in bytes", float64(m.Alloc))

	if sqlDB, err := h.db.DB(); err == nil {
		stats := sqlDB.Stats()
		writeGauge(&b, "dealflow_db_open_connections", "Number of open DB connections", float64(stats.OpenConnections))
		writeGauge(&b, "dealflow_db_in_use_connections", "Number of in-use DB connections", float64(stats.InUse))
	}

	db := h.db.WithContext(c.Request.Context())
	for _, kind := range []models.EntityKind{models.KindLead, models.KindInvestor} {
		var records, fields, values int64
		db.Model(models.NewRecord(kind)).Count(&records)
		db.Model(&models.FieldDefinition{}).Where("entity_kind = ? AND is_active = ?", kind, true).Count(&fields)
		db.Model(&models.AttributeValue{}).Where("entity_kind = ?", kind).Count(&values)

		writeGauge(&b, fmt.Sprintf("dealflow_%ss_total", kind), fmt.Sprintf("Number of %s records", kind), float64(records))
		writeGauge(&b, fmt.Sprintf("dealflow_%s_fields_active", kind), fmt.Sprintf("Number of active %s field definitions", kind), float64(fields))
		writeGauge(&b, fmt.Sprintf("dealflow_%s_values_total", kind), fmt.Sprintf("Number of stored %s attribute values", kind), float64(values))
	}

	var converted int64
	db.Model(&models.Investor{}).Where("lead_id IS NOT NULL").Count(&converted)
	writeGauge(&b, "dealflow_conversions_total", "Investors promoted from a lead", float64(converted))

	var imports24h int64
	db.Model(&models.ImportLog{}).Where("created_at >= ?", time.Now().Add(-24*time.Hour)).Count(&imports24h)
	writeGauge(&b, "dealflow_import_batches_24h", "Import batches in the last 24 hours", float64(imports24h))

	c.Data(200, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
}

func writeGauge(b *strings.Builder, name, help string, value float64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s gauge\n", name)
	fmt.Fprintf(b, "%s %g\n\n", name, value)
}
