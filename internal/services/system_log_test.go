package services

import (
	"testing"
	"time"

	"github.com/huangang/dealflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		page, size         int
		wantPage, wantSize int
	}{
		{0, 0, 1, 20},
		{-3, 10, 1, 10},
		{2, 500, 2, 100},
	}

	for _, tt := range tests {
		page, size := normalizePage(tt.page, tt.size)
		if page != tt.wantPage || size != tt.wantSize {
			t.Errorf("normalizePage(%d, %d) = (%d, %d), expected (%d, %d)", tt.page, tt.size, page, size, tt.wantPage, tt.wantSize)
		}
	}
}

func TestSystemLog_WriteListAndCleanup(t *testing.T) {
	db := newTestDB(t)
	InitSystemLogger(db)
	t.Cleanup(func() { InitSystemLogger(nil) })

	LogInfo("import", "import_batch", "imported 2/3 lead rows", actorRef(4), "127.0.0.1", "test", map[string]int{"errors": 1})
	LogError("promotion", "convert_lead", "boom", nil, "", "", nil)

	old := models.SystemLog{Level: "info", Module: "import", Action: "old", Message: "stale", CreatedAt: time.Now().AddDate(0, 0, -40)}
	require.NoError(t, db.Create(&old).Error)

	svc := NewSystemLogService(db)

	list, err := svc.List(&SystemLogListRequest{Module: "import"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), list.Total)
	assert.Equal(t, "imported 2/3 lead rows", list.Items[0].Message)
	require.NotNil(t, list.Items[0].UserID)
	assert.Equal(t, uint(4), *list.Items[0].UserID)
	assert.JSONEq(t, `{"errors":1}`, list.Items[0].Extra)

	modules, err := svc.GetModules()
	require.NoError(t, err)
	assert.Equal(t, []string{"import", "promotion"}, modules)

	assert.Equal(t, 30, svc.GetRetentionDays(), "seeded default")
	require.NoError(t, svc.SetRetentionDays(7))
	assert.Equal(t, 7, svc.GetRetentionDays())

	deleted, err := svc.CleanupOldLogs(svc.GetRetentionDays())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestSystemConfigService(t *testing.T) {
	db := newTestDB(t)
	svc := NewSystemConfigService(db)

	assert.Equal(t, "fallback", svc.GetWithDefault("missing", "fallback"))
	require.NoError(t, svc.Set("import_notice", "hello"))
	require.NoError(t, svc.Set("import_notice", "updated"))

	value, err := svc.Get("import_notice")
	require.NoError(t, err)
	assert.Equal(t, "updated", value)

	group, err := svc.GetByGroup("system")
	require.NoError(t, err)
	require.Len(t, group, 1)
	assert.Equal(t, "log_retention_days", group[0].Key)
}
