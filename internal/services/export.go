package services

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/huangang/dealflow/internal/models"
	"gorm.io/gorm"
)

const exportBatchSize = 500

// exportColumns returns the active non-system fields that follow the static
// columns in an export header. Fields are headed by label, or by machine name
// when the label is ambiguous.
func (s *ImportService) exportColumns(ctx context.Context, kind models.EntityKind) ([]string, []models.FieldDefinition, error) {
	fields, err := NewFieldService(s.db).ListActiveFields(ctx, kind)
	if err != nil {
		return nil, nil, err
	}
	header := make([]string, 0, len(models.StaticFields)+len(fields))
	for _, sf := range models.StaticFields {
		header = append(header, sf.Name)
	}
	ambiguous := ambiguousLabels(fields)
	dynamic := make([]models.FieldDefinition, 0, len(fields))
	for _, f := range fields {
		if IsSystemField(&f) {
			continue
		}
		if ambiguous[strings.ToLower(strings.TrimSpace(f.Label))] {
			header = append(header, f.Name)
		} else {
			header = append(header, f.Label)
		}
		dynamic = append(dynamic, f)
	}
	return header, dynamic, nil
}

// ExportTemplate writes a header-only file operators can fill in and import.
func (s *ImportService) ExportTemplate(ctx context.Context, kind models.EntityKind, w io.Writer) error {
	header, _, err := s.exportColumns(ctx, kind)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// Export writes every record of kind: static columns by machine name, then one
// column per active custom field named by its label. Multi-choice values are
// joined with the secondary separator. Returns the number of records written.
func (s *ImportService) Export(ctx context.Context, kind models.EntityKind, w io.Writer) (int, error) {
	if !kind.Valid() {
		return 0, ErrInvalidKind
	}
	header, dynamic, err := s.exportColumns(ctx, kind)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return 0, err
	}

	written := 0
	var lastID uint
	for {
		records, err := loadRecordPage(ctx, s.db, kind, lastID, exportBatchSize)
		if err != nil {
			return written, err
		}
		if len(records) == 0 {
			break
		}

		ids := make([]uint, len(records))
		for i, rec := range records {
			ids[i] = rec.ID
		}
		values, err := loadValues(ctx, s.db, kind, ids)
		if err != nil {
			return written, err
		}

		for _, rec := range records {
			row := make([]string, 0, len(header))
			for _, sf := range models.StaticFields {
				row = append(row, rec.Get(sf.Name))
			}
			for i := range dynamic {
				row = append(row, s.codec.Display(&dynamic[i], values[rec.ID][dynamic[i].ID]))
			}
			if err := cw.Write(row); err != nil {
				return written, err
			}
			written++
		}
		lastID = records[len(records)-1].ID
		cw.Flush()
		if err := cw.Error(); err != nil {
			return written, err
		}
	}

	cw.Flush()
	return written, cw.Error()
}

// loadRecordPage reads the next page of records of kind ordered by id.
func loadRecordPage(ctx context.Context, db *gorm.DB, kind models.EntityKind, afterID uint, limit int) ([]*models.RecordBase, error) {
	query := db.WithContext(ctx).Where("id > ?", afterID).Order("id ASC").Limit(limit)
	out := []*models.RecordBase{}
	switch kind {
	case models.KindLead:
		var leads []models.Lead
		if err := query.Find(&leads).Error; err != nil {
			return nil, err
		}
		for i := range leads {
			out = append(out, &leads[i].RecordBase)
		}
	default:
		var investors []models.Investor
		if err := query.Find(&investors).Error; err != nil {
			return nil, err
		}
		for i := range investors {
			out = append(out, &investors[i].RecordBase)
		}
	}
	return out, nil
}

// loadValues returns entity id -> field id -> stored text for ids.
func loadValues(ctx context.Context, db *gorm.DB, kind models.EntityKind, ids []uint) (map[uint]map[uint]string, error) {
	var rows []models.AttributeValue
	if err := db.WithContext(ctx).
		Where("entity_kind = ? AND entity_id IN ?", kind, ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]map[uint]string, len(ids))
	for _, v := range rows {
		if out[v.EntityID] == nil {
			out[v.EntityID] = make(map[uint]string)
		}
		out[v.EntityID][v.FieldID] = v.Value
	}
	return out, nil
}
