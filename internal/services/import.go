package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/huangang/dealflow/internal/config"
	"github.com/huangang/dealflow/internal/fieldcodec"
	"github.com/huangang/dealflow/internal/models"
	"github.com/huangang/dealflow/pkg/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RowError points at one failure in an import file. Row is 1-based with the
// header as row 1.
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ImportResult summarizes a batch. A row with only field-level errors counts
// toward both SuccessCount and ErrorCount; ErrorCount is the number of errors.
type ImportResult struct {
	Success      bool       `json:"success"`
	TotalRows    int        `json:"totalRows"`
	SuccessCount int        `json:"successCount"`
	ErrorCount   int        `json:"errorCount"`
	Errors       []RowError `json:"errors"`
	BatchID      string     `json:"batchId,omitempty"`
}

// ImportMeta describes where a batch came from.
type ImportMeta struct {
	FileName string
	ActorID  uint
}

// ImportService moves leads and investors in and out of comma-separated files.
type ImportService struct {
	db      *gorm.DB
	codec   fieldcodec.Codec
	maxRows int
}

func NewImportService(db *gorm.DB, codec fieldcodec.Codec, cfg config.ImportConfig) *ImportService {
	return &ImportService{db: db, codec: codec, maxRows: cfg.MaxRows}
}

type columnKind int

const (
	columnIgnored columnKind = iota
	columnStatic
	columnDynamic
)

type column struct {
	kind   columnKind
	static string                  // machine name of a native column
	field  *models.FieldDefinition // dynamic column
}

// rowFailure aborts a single row; the row's writes are rolled back.
type rowFailure struct {
	RowError
}

func (f *rowFailure) Error() string { return f.Message }

// Import reads a delimited file into records of kind.
func (s *ImportService) Import(ctx context.Context, kind models.EntityKind, r io.Reader) (*ImportResult, error) {
	return s.ImportBatch(ctx, kind, r, ImportMeta{})
}

// ImportBatch imports r and records the outcome as an ImportLog. Rows are
// processed in file order, each in its own transaction; a failing row never
// stops the batch.
func (s *ImportService) ImportBatch(ctx context.Context, kind models.EntityKind, r io.Reader, meta ImportMeta) (*ImportResult, error) {
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyImport
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	fields, err := NewFieldService(s.db).ListActiveFields(ctx, kind)
	if err != nil {
		return nil, err
	}
	columns := resolveColumns(header, fields)

	type parsedRow struct {
		num   int
		cells []string
		err   error
	}
	var rows []parsedRow
	for num := 2; ; num++ {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return nil, err
			}
		}
		if err == nil && blankRow(cells) {
			continue
		}
		rows = append(rows, parsedRow{num: num, cells: cells, err: err})
		if s.maxRows > 0 && len(rows) > s.maxRows {
			return nil, ErrTooManyRows
		}
	}

	result := &ImportResult{Errors: []RowError{}, BatchID: uuid.NewString()}
	for _, row := range rows {
		result.TotalRows++
		if row.err != nil {
			result.Errors = append(result.Errors, RowError{Row: row.num, Field: "row", Message: row.err.Error()})
			continue
		}

		var fieldErrs []RowError
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			fieldErrs, err = s.importRow(ctx, tx, kind, columns, fields, row.cells, row.num, meta)
			return err
		})

		var failure *rowFailure
		switch {
		case errors.As(err, &failure):
			result.Errors = append(result.Errors, failure.RowError)
		case err != nil:
			result.Errors = append(result.Errors, RowError{Row: row.num, Field: "row", Message: err.Error()})
		default:
			result.SuccessCount++
			result.Errors = append(result.Errors, fieldErrs...)
		}
	}
	result.ErrorCount = len(result.Errors)
	result.Success = result.ErrorCount == 0

	if err := s.writeLog(ctx, kind, meta, result); err != nil {
		logger.Warn().Err(err).Str("batch_id", result.BatchID).Msg("[Import] failed to write import log")
	}
	logger.Info().
		Str("kind", string(kind)).
		Str("batch_id", result.BatchID).
		Int("total", result.TotalRows).
		Int("success", result.SuccessCount).
		Int("errors", result.ErrorCount).
		Msg("[Import] batch finished")
	LogInfo("import", "import_batch", fmt.Sprintf("imported %d/%d %s rows", result.SuccessCount, result.TotalRows, kind),
		actorRef(meta.ActorID), "", "", map[string]interface{}{"batch_id": result.BatchID, "errors": result.ErrorCount})

	return result, nil
}

// resolveColumns maps header cells to static columns (machine name or label)
// or dynamic fields (display label, then machine name). Ambiguous labels only
// resolve by machine name. Unknown headers are ignored, as are repeats of a
// column already mapped.
func resolveColumns(header []string, fields []models.FieldDefinition) []column {
	ambiguous := ambiguousLabels(fields)
	byLabel := make(map[string]*models.FieldDefinition, len(fields))
	byName := make(map[string]*models.FieldDefinition, len(fields))
	for i := range fields {
		if label := strings.ToLower(strings.TrimSpace(fields[i].Label)); !ambiguous[label] {
			byLabel[label] = &fields[i]
		}
		byName[strings.ToLower(fields[i].Name)] = &fields[i]
	}

	seen := make(map[string]bool)
	columns := make([]column, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if sf, ok := models.LookupStaticField(h); ok {
			if !seen["static:"+sf.Name] {
				seen["static:"+sf.Name] = true
				columns[i] = column{kind: columnStatic, static: sf.Name}
			}
			continue
		}
		f := byLabel[key]
		if f == nil {
			f = byName[key]
		}
		if f == nil || seen[fmt.Sprintf("field:%d", f.ID)] {
			continue
		}
		seen[fmt.Sprintf("field:%d", f.ID)] = true
		if IsSystemField(f) {
			if !seen["static:"+f.Name] {
				seen["static:"+f.Name] = true
				columns[i] = column{kind: columnStatic, static: f.Name}
			}
			continue
		}
		columns[i] = column{kind: columnDynamic, field: f}
	}
	return columns
}

func (s *ImportService) importRow(ctx context.Context, tx *gorm.DB, kind models.EntityKind, columns []column,
	fields []models.FieldDefinition, cells []string, rowNum int, meta ImportMeta) ([]RowError, error) {
	var fieldErrs []RowError
	fail := func(field, msg string) error {
		return &rowFailure{RowError{Row: rowNum, Field: field, Message: msg}}
	}

	static := make(map[string]string)
	dynamic := make(map[uint]string)
	for i, col := range columns {
		if i >= len(cells) {
			break
		}
		switch col.kind {
		case columnStatic:
			static[col.static] = strings.TrimSpace(cells[i])
		case columnDynamic:
			dynamic[col.field.ID] = cells[i]
		}
	}

	// Invalid contact cells are reported and dropped; the rest of the row continues.
	for _, f := range []*models.FieldDefinition{emailField, phoneField} {
		out, verr := s.codec.Encode(f, static[f.Name])
		if verr != nil {
			fieldErrs = append(fieldErrs, RowError{Row: rowNum, Field: f.Name, Message: verr.Message})
		}
		static[f.Name] = out
	}

	rec, isNew, err := findByNaturalKey(ctx, tx, kind, static["email"], static["phone"])
	if err != nil {
		return nil, err
	}
	base := rec.Base()
	if isNew {
		if static["full_name"] == "" {
			return nil, fail("full_name", "full_name is required")
		}
		base.Status = models.LeadStatusNew
		base.CreatedBy = meta.ActorID
	}
	for name, value := range static {
		if value != "" {
			base.Set(name, value)
		}
	}

	var conflict *ConflictError
	if err := checkNaturalKeys(tx, kind, base.ID, base.Email, base.Phone); err != nil {
		if errors.As(err, &conflict) {
			return nil, fail(conflict.Field, conflict.Error())
		}
		return nil, err
	}

	if isNew {
		err = tx.Create(rec).Error
	} else {
		err = tx.Save(rec).Error
	}
	if err != nil {
		if err := translateRecordError(err, base); errors.As(err, &conflict) {
			return nil, fail(conflict.Field, conflict.Error())
		}
		return nil, err
	}

	store := NewAttributeStore(tx)
	stored, err := store.ValueMap(ctx, kind, base.ID)
	if err != nil {
		return nil, err
	}

	for i := range fields {
		f := &fields[i]
		if IsSystemField(f) {
			continue
		}
		raw := dynamic[f.ID]
		if strings.TrimSpace(raw) == "" {
			// A blank or missing cell keeps whatever is stored
			if f.IsRequired && stored[f.ID] == "" {
				fieldErrs = append(fieldErrs, RowError{Row: rowNum, Field: f.Label, Message: f.Label + " is required"})
			}
			continue
		}
		out, verr := s.codec.Encode(f, raw)
		if verr != nil {
			fieldErrs = append(fieldErrs, RowError{Row: rowNum, Field: f.Label, Message: verr.Message})
			continue
		}
		if err := store.UpsertValue(ctx, kind, base.ID, f.ID, out); err != nil {
			return nil, err
		}
	}

	if err := store.SyncSystemMirror(ctx, rec); err != nil {
		return nil, err
	}
	if isNew {
		if _, err := NewActivityService(tx).Record(ctx, kind, base.ID, models.ActivityImported, "Imported", nil, meta.ActorID); err != nil {
			return nil, err
		}
	}
	return fieldErrs, nil
}

// findByNaturalKey loads the record matching the row's natural key: email for
// leads; for investors email first, then phone when the email matches no one.
// A fresh record is returned when nothing matches.
func findByNaturalKey(ctx context.Context, tx *gorm.DB, kind models.EntityKind, email, phone string) (models.Record, bool, error) {
	lookups := []struct {
		column string
		value  string
	}{{"email", email}}
	if kind == models.KindInvestor {
		lookups = append(lookups, struct {
			column string
			value  string
		}{"phone", phone})
	}

	for _, l := range lookups {
		if l.value == "" {
			continue
		}
		rec := models.NewRecord(kind)
		err := tx.WithContext(ctx).Where(l.column+" = ?", l.value).First(rec).Error
		if err == nil {
			return rec, false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, err
		}
	}
	return models.NewRecord(kind), true, nil
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func (s *ImportService) writeLog(ctx context.Context, kind models.EntityKind, meta ImportMeta, result *ImportResult) error {
	errs, err := json.Marshal(result.Errors)
	if err != nil {
		return err
	}
	entry := &models.ImportLog{
		BatchID:      result.BatchID,
		EntityKind:   kind,
		FileName:     meta.FileName,
		TotalRows:    result.TotalRows,
		SuccessCount: result.SuccessCount,
		ErrorCount:   result.ErrorCount,
		Errors:       datatypes.JSON(errs),
		CreatedBy:    meta.ActorID,
	}
	return s.db.WithContext(ctx).Create(entry).Error
}

type ImportLogListResponse struct {
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Items    []models.ImportLog `json:"items"`
}

// ListImportLogs returns past batches of kind, newest first. An empty kind lists all.
func (s *ImportService) ListImportLogs(ctx context.Context, kind models.EntityKind, page, pageSize int) (*ImportLogListResponse, error) {
	page, pageSize = normalizePage(page, pageSize)
	query := s.db.WithContext(ctx).Model(&models.ImportLog{})
	if kind != "" {
		query = query.Where("entity_kind = ?", kind)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}
	var items []models.ImportLog
	if err := query.Order("created_at DESC, id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&items).Error; err != nil {
		return nil, err
	}
	return &ImportLogListResponse{Total: total, Page: page, PageSize: pageSize, Items: items}, nil
}
