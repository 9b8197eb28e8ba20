package models

import (
	"errors"
	"fmt"

	"github.com/huangang/dealflow/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open connects to the configured database. TranslateError is enabled so
// unique index violations surface as gorm.ErrDuplicatedKey on every driver.
func Open(cfg *config.DatabaseConfig, logLevel logger.LogLevel) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return db, nil
}

// GormLogLevel maps an application log level onto gorm's SQL logger.
func GormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "info", "warn":
		return logger.Warn
	case "error":
		return logger.Error
	default:
		return logger.Silent
	}
}

func InitDB(cfg *config.DatabaseConfig, logLevel string) error {
	db, err := Open(cfg, GormLogLevel(logLevel))
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Migrate creates or updates every table on db.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Lead{},
		&Investor{},
		&FieldDefinition{},
		&FieldOption{},
		&AttributeValue{},
		&FormSection{},
		&Activity{},
		&Assignment{},
		&ImportLog{},
		&SystemConfig{},
		&SystemLog{},
	)
}

func AutoMigrate() error {
	return Migrate(DB)
}

func GetDB() *gorm.DB {
	return DB
}

// defaultSystemFields are the mirrored system attributes seeded for every kind.
func defaultSystemFields(kind EntityKind) []FieldDefinition {
	statusOptions := []FieldOption{
		{Value: LeadStatusNew, Label: "New"},
		{Value: LeadStatusContacted, Label: "Contacted"},
		{Value: LeadStatusQualified, Label: "Qualified"},
		{Value: LeadStatusWon, Label: "Closed Won"},
		{Value: LeadStatusLost, Label: "Closed Lost"},
	}
	if kind == KindInvestor {
		statusOptions = []FieldOption{
			{Value: "new", Label: "New"},
			{Value: "active", Label: "Active"},
			{Value: "committed", Label: "Committed"},
			{Value: "inactive", Label: "Inactive"},
		}
	}

	return []FieldDefinition{
		{
			Name: SystemFieldSource, Label: "Source", FieldType: FieldTypeSelect, SortOrder: 0,
			Options: []FieldOption{
				{Value: "website", Label: "Website"},
				{Value: "referral", Label: "Referral"},
				{Value: "event", Label: "Event"},
				{Value: "cold_outreach", Label: "Cold Outreach"},
				{Value: "import", Label: "Import"},
			},
		},
		{Name: SystemFieldStatus, Label: "Status", FieldType: FieldTypeSelect, SortOrder: 1, Options: statusOptions},
		{
			Name: SystemFieldPriority, Label: "Priority", FieldType: FieldTypeSelect, SortOrder: 2,
			Options: []FieldOption{
				{Value: "low", Label: "Low"},
				{Value: "medium", Label: "Medium"},
				{Value: "high", Label: "High"},
			},
		},
	}
}

// SeedSystemFields creates the system field definitions for kind when missing.
// Existing definitions are left untouched so administrator edits survive.
func SeedSystemFields(db *gorm.DB, kind EntityKind) (int, error) {
	created := 0
	for _, def := range defaultSystemFields(kind) {
		var existing FieldDefinition
		err := db.Where("entity_kind = ? AND name = ?", kind, def.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return created, err
		}

		def.EntityKind = kind
		def.IsSystem = true
		def.IsActive = true
		def.SectionKey = "pipeline"
		for i := range def.Options {
			def.Options[i].SortOrder = i
			def.Options[i].IsActive = true
		}
		if err := db.Create(&def).Error; err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// SeedDefaultData creates default sections, system fields and settings if not exists
func SeedDefaultData(db *gorm.DB) error {
	for _, kind := range []EntityKind{KindLead, KindInvestor} {
		if _, err := SeedSystemFields(db, kind); err != nil {
			return fmt.Errorf("seeding %s system fields: %w", kind, err)
		}

		sections := []FormSection{
			{EntityKind: kind, Key: "pipeline", Label: "Pipeline", SortOrder: 0, IsActive: true},
			{EntityKind: kind, Key: "details", Label: "Details", SortOrder: 1, IsActive: true},
		}
		for _, s := range sections {
			if err := db.Where("entity_kind = ? AND section_key = ?", s.EntityKind, s.Key).
				FirstOrCreate(&s).Error; err != nil {
				return fmt.Errorf("seeding %s sections: %w", kind, err)
			}
		}
	}

	retention := SystemConfig{Key: "log_retention_days", Value: "30", Type: "int", Group: "system", Label: "System log retention (days)"}
	return db.Where("config_key = ?", retention.Key).FirstOrCreate(&retention).Error
}
