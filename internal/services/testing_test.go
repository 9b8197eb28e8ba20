package services

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/huangang/dealflow/internal/config"
	"github.com/huangang/dealflow/internal/fieldcodec"
	"github.com/huangang/dealflow/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq int64

// newTestDB opens a private in-memory database with the schema and default
// data in place.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:dealflow_test_%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	db, err := models.Open(&config.DatabaseConfig{Driver: "sqlite", DSN: dsn}, gormlogger.Silent)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, models.Migrate(db))
	require.NoError(t, models.SeedDefaultData(db))
	return db
}

func addField(t *testing.T, db *gorm.DB, kind models.EntityKind, req CreateFieldRequest) *models.FieldDefinition {
	t.Helper()
	f, err := NewFieldService(db).CreateField(context.Background(), kind, &req)
	require.NoError(t, err)
	return f
}

func testPromotionConfig() config.PromotionConfig {
	return config.DefaultConfig().Promotion
}

func newRecordService(db *gorm.DB) *RecordService {
	return NewRecordService(db, fieldcodec.Default)
}

func newImportService(db *gorm.DB) *ImportService {
	return NewImportService(db, fieldcodec.Default, config.ImportConfig{MaxRows: 100})
}

// idKey addresses a field in a custom_fields payload.
func idKey(f *models.FieldDefinition) string {
	return strconv.FormatUint(uint64(f.ID), 10)
}
