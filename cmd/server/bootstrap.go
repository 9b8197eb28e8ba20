package main

import (
	"github.com/huangang/dealflow/internal/config"
	"github.com/huangang/dealflow/internal/fieldcodec"
	"github.com/huangang/dealflow/internal/handlers"
	"github.com/huangang/dealflow/internal/middleware"
	"github.com/huangang/dealflow/internal/models"
	"github.com/huangang/dealflow/internal/services"
	"github.com/huangang/dealflow/internal/utils"
	"github.com/huangang/dealflow/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// appServices holds the initialized handlers and background workers.
type appServices struct {
	cfg              *config.Config
	logCleanup       *cron.Cron
	transferLimiter  *middleware.RateLimiter
	healthHandler    *handlers.HealthHandler
	dashboardHandler *handlers.DashboardHandler
	metricsHandler   *handlers.MetricsHandler
	fieldHandler     *handlers.FieldHandler
	sectionHandler   *handlers.SectionHandler
	recordHandler    *handlers.RecordHandler
	importHandler    *handlers.ImportHandler
	systemLogHandler *handlers.SystemLogHandler
}

// bootstrap initializes the database, seeds defaults and builds the handlers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database, cfg.Log.Level); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	db := models.GetDB()

	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	if err := models.SeedDefaultData(db); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default data")
	}

	services.InitSystemLogger(db)

	svc := newAppServices(cfg, db)
	svc.logCleanup = services.StartLogCleanupScheduler(db)
	return svc
}

// newAppServices builds the handlers on an open, migrated database.
func newAppServices(cfg *config.Config, db *gorm.DB) *appServices {
	codec := fieldcodec.Codec{StrictChoices: cfg.Fields.StrictChoices}

	return &appServices{
		cfg:              cfg,
		transferLimiter:  middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		healthHandler:    handlers.NewHealthHandler(db),
		dashboardHandler: handlers.NewDashboardHandler(db),
		metricsHandler:   handlers.NewMetricsHandler(db),
		fieldHandler:     handlers.NewFieldHandler(db),
		sectionHandler:   handlers.NewSectionHandler(db),
		recordHandler:    handlers.NewRecordHandler(db, codec, cfg.Promotion),
		importHandler:    handlers.NewImportHandler(db, codec, cfg.Import),
		systemLogHandler: handlers.NewSystemLogHandler(db),
	}
}

// shutdown stops background workers and closes the database.
func (s *appServices) shutdown() {
	<-s.logCleanup.Stop().Done()
	s.transferLimiter.Stop()
	logger.Info().Msg("All schedulers stopped")

	if sqlDB, err := models.GetDB().DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close database")
		}
	}
}
