package services

import (
	"context"
	"time"

	"github.com/huangang/dealflow/internal/models"
	"gorm.io/gorm"
)

// DashboardService aggregates pipeline figures over a date window
type DashboardService struct {
	db *gorm.DB
}

func NewDashboardService(db *gorm.DB) *DashboardService {
	return &DashboardService{db: db}
}

type DashboardStatsRequest struct {
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
}

type DashboardStats struct {
	NewLeads       int64   `json:"new_leads"`
	NewInvestors   int64   `json:"new_investors"`
	Conversions    int64   `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
	ImportBatches  int64   `json:"import_batches"`
	ImportedRows   int64   `json:"imported_rows"`
	ImportErrors   int64   `json:"import_errors"`
}

// BucketCount is the number of records sharing one column value
type BucketCount struct {
	Value string `json:"value" gorm:"column:bucket"`
	Count int64  `json:"count" gorm:"column:total"`
}

type DashboardResponse struct {
	StartDate      string         `json:"start_date"`
	EndDate        string         `json:"end_date"`
	Stats          DashboardStats `json:"stats"`
	LeadStatus     []BucketCount  `json:"lead_status"`
	LeadSources    []BucketCount  `json:"lead_sources"`
	InvestorStatus []BucketCount  `json:"investor_status"`
}

// parseWindow defaults to the last 7 days; an end date covers the whole day.
func parseWindow(req *DashboardStatsRequest, now time.Time) (time.Time, time.Time) {
	startDate := now.AddDate(0, 0, -7)
	if req.StartDate != "" {
		if t, err := time.ParseInLocation("2006-01-02", req.StartDate, now.Location()); err == nil {
			startDate = t
		}
	}

	endDate := now
	if req.EndDate != "" {
		if t, err := time.ParseInLocation("2006-01-02", req.EndDate, now.Location()); err == nil {
			endDate = t.Add(24*time.Hour - time.Second)
		}
	}
	return startDate, endDate
}

// GetStats counts records created in the window. Status and source
// breakdowns cover the whole pipeline, not just the window.
func (s *DashboardService) GetStats(ctx context.Context, req *DashboardStatsRequest) (*DashboardResponse, error) {
	startDate, endDate := parseWindow(req, time.Now())
	db := s.db.WithContext(ctx)
	window := func(model interface{}) *gorm.DB {
		return db.Model(model).Where("created_at BETWEEN ? AND ?", startDate, endDate)
	}

	var stats DashboardStats
	if err := window(&models.Lead{}).Count(&stats.NewLeads).Error; err != nil {
		return nil, err
	}
	if err := window(&models.Investor{}).Count(&stats.NewInvestors).Error; err != nil {
		return nil, err
	}
	if err := window(&models.Investor{}).Where("lead_id IS NOT NULL").Count(&stats.Conversions).Error; err != nil {
		return nil, err
	}
	if stats.NewLeads > 0 {
		stats.ConversionRate = float64(stats.Conversions) / float64(stats.NewLeads)
	}

	var imports struct {
		BatchTotal int64
		RowTotal   int64
		ErrorTotal int64
	}
	err := window(&models.ImportLog{}).
		Select("COUNT(*) AS batch_total, COALESCE(SUM(total_rows), 0) AS row_total, COALESCE(SUM(error_count), 0) AS error_total").
		Scan(&imports).Error
	if err != nil {
		return nil, err
	}
	stats.ImportBatches, stats.ImportedRows, stats.ImportErrors = imports.BatchTotal, imports.RowTotal, imports.ErrorTotal

	resp := &DashboardResponse{
		StartDate: startDate.Format("2006-01-02"),
		EndDate:   endDate.Format("2006-01-02"),
		Stats:     stats,
	}
	if resp.LeadStatus, err = s.countBy(db, &models.Lead{}, "status"); err != nil {
		return nil, err
	}
	if resp.LeadSources, err = s.countBy(db, &models.Lead{}, "source"); err != nil {
		return nil, err
	}
	if resp.InvestorStatus, err = s.countBy(db, &models.Investor{}, "status"); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *DashboardService) countBy(db *gorm.DB, model interface{}, column string) ([]BucketCount, error) {
	buckets := []BucketCount{}
	err := db.Model(model).
		Select(column + " AS bucket, COUNT(*) AS total").
		Group(column).
		Order("total DESC, bucket ASC").
		Scan(&buckets).Error
	return buckets, err
}
