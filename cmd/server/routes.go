package main

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/dealflow/internal/middleware"
	"github.com/huangang/dealflow/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(svc.cfg.CORS.AllowOrigins))

	r.GET("/health", svc.healthHandler.CheckHealth)
	r.GET("/metrics", svc.metricsHandler.Metrics)

	api := r.Group("/api")
	api.Use(middleware.AuthRequired(svc.cfg.JWT.Enabled), middleware.AuditLog())
	{
		// Field registry
		api.GET("/fields/:id", svc.fieldHandler.GetByID)
		api.PUT("/fields/:id", svc.fieldHandler.Update)
		api.DELETE("/fields/:id", svc.fieldHandler.Delete)
		api.GET("/:kind/fields", svc.fieldHandler.List)
		api.POST("/:kind/fields", svc.fieldHandler.Create)
		api.PUT("/:kind/fields/reorder", svc.fieldHandler.Reorder)
		api.GET("/:kind/form-layout", svc.fieldHandler.FormLayout)

		// Form sections
		api.PUT("/sections/:id", svc.sectionHandler.Update)
		api.DELETE("/sections/:id", svc.sectionHandler.Delete)
		api.GET("/:kind/sections", svc.sectionHandler.List)
		api.POST("/:kind/sections", svc.sectionHandler.Create)
		api.PUT("/:kind/sections/reorder", svc.sectionHandler.Reorder)

		// Bulk transfer (rate limited)
		transfer := api.Group("", svc.transferLimiter.Middleware())
		{
			transfer.POST("/:kind/import", svc.importHandler.Import)
			transfer.GET("/:kind/export", svc.importHandler.Export)
		}
		api.GET("/:kind/template", svc.importHandler.Template)
		api.GET("/:kind/import-logs", svc.importHandler.ImportLogs)

		// Dashboard
		api.GET("/dashboard/stats", svc.dashboardHandler.GetStats)

		// System logs
		api.GET("/system-logs", svc.systemLogHandler.List)
		api.GET("/system-logs/modules", svc.systemLogHandler.GetModules)
		api.GET("/system-logs/retention", svc.systemLogHandler.GetRetentionDays)
		api.PUT("/system-logs/retention", svc.systemLogHandler.SetRetentionDays)
		api.POST("/system-logs/cleanup", svc.systemLogHandler.Cleanup)

		// Leads and investors
		api.GET("/:kind", svc.recordHandler.List)
		api.POST("/:kind", svc.recordHandler.Create)
		api.GET("/:kind/:id", svc.recordHandler.GetByID)
		api.PUT("/:kind/:id", svc.recordHandler.Update)
		api.DELETE("/:kind/:id", svc.recordHandler.Delete)
		api.POST("/:kind/:id/convert", svc.recordHandler.Convert)
		api.GET("/:kind/:id/activities", svc.recordHandler.Activities)
		api.POST("/:kind/:id/notes", svc.recordHandler.AddNote)
		api.POST("/:kind/:id/assign", svc.recordHandler.Assign)
		api.GET("/:kind/:id/assignment", svc.recordHandler.Assignment)
		api.GET("/:kind/:id/assignments", svc.recordHandler.AssignmentHistory)
	}
}
