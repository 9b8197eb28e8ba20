package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/huangang/dealflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		req       DashboardStatsRequest
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"defaults", DashboardStatsRequest{}, now.AddDate(0, 0, -7), now},
		{"explicit", DashboardStatsRequest{StartDate: "2026-01-01", EndDate: "2026-01-31"},
			time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC)},
		{"invalid falls back", DashboardStatsRequest{StartDate: "yesterday", EndDate: "01/31"}, now.AddDate(0, 0, -7), now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := parseWindow(&tt.req, now)
			assert.True(t, tt.wantStart.Equal(start), "start = %s", start)
			assert.True(t, tt.wantEnd.Equal(end), "end = %s", end)
		})
	}
}

func TestDashboard_GetStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	records := newRecordService(db)

	leadID := createLead(t, records, SaveRecordRequest{FullName: "Ada", Email: "ada@example.com", Source: "referral"})
	createLead(t, records, SaveRecordRequest{FullName: "Bob", Source: "referral"})
	createLead(t, records, SaveRecordRequest{FullName: "Cy", Source: "event", Status: "contacted"})

	_, err := NewPromotionService(db, testPromotionConfig()).ConvertLead(ctx, leadID, &ConvertRequest{Reason: goodReason}, 1)
	require.NoError(t, err)

	result, err := newImportService(db).Import(ctx, models.KindInvestor, strings.NewReader("full_name,email\nDee,dee@example.com\nEve,bad\n"))
	require.NoError(t, err)
	require.Equal(t, 1, result.ErrorCount)

	resp, err := NewDashboardService(db).GetStats(ctx, &DashboardStatsRequest{})
	require.NoError(t, err)

	assert.Equal(t, int64(3), resp.Stats.NewLeads)
	assert.Equal(t, int64(3), resp.Stats.NewInvestors)
	assert.Equal(t, int64(1), resp.Stats.Conversions)
	assert.InDelta(t, 1.0/3.0, resp.Stats.ConversionRate, 1e-9)
	assert.Equal(t, int64(1), resp.Stats.ImportBatches)
	assert.Equal(t, int64(2), resp.Stats.ImportedRows)
	assert.Equal(t, int64(1), resp.Stats.ImportErrors)

	assert.Equal(t, []BucketCount{{Value: "referral", Count: 2}, {Value: "event", Count: 1}}, resp.LeadSources)
	assert.Contains(t, resp.LeadStatus, BucketCount{Value: "closed_won", Count: 1})
	assert.Contains(t, resp.LeadStatus, BucketCount{Value: "contacted", Count: 1})
}
