package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/huangang/dealflow/internal/fieldcodec"
	"github.com/huangang/dealflow/internal/models"
	"github.com/huangang/dealflow/pkg/logger"
	"gorm.io/gorm"
)

// Native columns validated through the codec like any other typed field.
var (
	fullNameField = &models.FieldDefinition{Name: "full_name", Label: "full_name", FieldType: models.FieldTypeText, IsRequired: true}
	emailField    = &models.FieldDefinition{Name: "email", Label: "email", FieldType: models.FieldTypeEmail}
	phoneField    = &models.FieldDefinition{Name: "phone", Label: "phone", FieldType: models.FieldTypePhone}
)

// RecordService creates, edits and reads leads and investors together with
// their custom field values.
type RecordService struct {
	db    *gorm.DB
	codec fieldcodec.Codec
}

func NewRecordService(db *gorm.DB, codec fieldcodec.Codec) *RecordService {
	return &RecordService{db: db, codec: codec}
}

// SaveRecordRequest is a form submission. CustomFields is keyed by field id
// (as a string) or, for system attributes, by machine name. A save fully
// replaces the custom values: active fields absent from the map are cleared.
type SaveRecordRequest struct {
	FullName     string                 `json:"full_name"`
	Email        string                 `json:"email"`
	Phone        string                 `json:"phone"`
	Company      string                 `json:"company"`
	Source       string                 `json:"source"`
	Status       string                 `json:"status"`
	Priority     string                 `json:"priority"`
	Notes        string                 `json:"notes"`
	CustomFields map[string]interface{} `json:"custom_fields"`
}

type ListRecordsRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Search   string `form:"search"`
	Status   string `form:"status"`
	Source   string `form:"source"`
}

type ListRecordsResponse struct {
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Items    interface{} `json:"items"`
}

// RecordDetail is a record with its custom values keyed by machine name.
// Multi-choice values are token lists; everything else is the stored text.
type RecordDetail struct {
	Record       models.Record          `json:"record"`
	CustomFields map[string]interface{} `json:"custom_fields"`
}

// Create validates and stores a new record. Nothing is written when any
// field fails validation.
func (s *RecordService) Create(ctx context.Context, kind models.EntityKind, req *SaveRecordRequest, actorID uint) (*RecordDetail, error) {
	rec := models.NewRecord(kind)
	if rec == nil {
		return nil, ErrInvalidKind
	}
	base := rec.Base()
	base.CreatedBy = actorID
	base.Status = models.LeadStatusNew

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		values, err := s.applyRequest(ctx, tx, rec, req)
		if err != nil {
			return err
		}
		if err := tx.Create(rec).Error; err != nil {
			return translateRecordError(err, base)
		}
		if err := s.writeValues(ctx, tx, rec, values); err != nil {
			return err
		}
		_, err = NewActivityService(tx).Record(ctx, kind, base.ID, models.ActivityCreated, "Created", nil, actorID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Str("kind", string(kind)).Uint("id", base.ID).Msg("[Record] created")
	return s.Get(ctx, kind, base.ID)
}

// Update applies a form submission to an existing record.
func (s *RecordService) Update(ctx context.Context, kind models.EntityKind, id uint, req *SaveRecordRequest) (*RecordDetail, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := findRecord(ctx, tx, kind, id)
		if err != nil {
			return err
		}
		values, err := s.applyRequest(ctx, tx, rec, req)
		if err != nil {
			return err
		}
		if err := tx.Save(rec).Error; err != nil {
			return translateRecordError(err, rec.Base())
		}
		return s.writeValues(ctx, tx, rec, values)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, kind, id)
}

// applyRequest validates req against the active definitions of the record's
// kind, copies the static columns onto rec and returns the encoded custom
// values. It checks natural-key conflicts but writes nothing.
func (s *RecordService) applyRequest(ctx context.Context, tx *gorm.DB, rec models.Record, req *SaveRecordRequest) (map[uint]string, error) {
	fields, err := NewFieldService(tx).ListActiveFields(ctx, rec.Kind())
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]*models.FieldDefinition, len(fields))
	byName := make(map[string]*models.FieldDefinition, len(fields))
	for i := range fields {
		byID[fields[i].ID] = &fields[i]
		byName[fields[i].Name] = &fields[i]
	}

	custom := make(map[uint]string)
	for key, raw := range req.CustomFields {
		var f *models.FieldDefinition
		if id, err := strconv.ParseUint(key, 10, 64); err == nil {
			f = byID[uint(id)]
		} else {
			f = byName[key]
		}
		if f == nil {
			continue
		}
		custom[f.ID] = rawString(raw)
	}

	static := map[string]string{
		"full_name":                strings.TrimSpace(req.FullName),
		"email":                    strings.TrimSpace(req.Email),
		"phone":                    strings.TrimSpace(req.Phone),
		"company":                  strings.TrimSpace(req.Company),
		models.SystemFieldSource:   strings.TrimSpace(req.Source),
		models.SystemFieldStatus:   strings.TrimSpace(req.Status),
		models.SystemFieldPriority: strings.TrimSpace(req.Priority),
		"notes":                    strings.TrimSpace(req.Notes),
	}

	var verrs []fieldcodec.ValidationError
	collect := func(f *models.FieldDefinition, raw string) string {
		out, verr := s.codec.Encode(f, raw)
		if verr != nil {
			verrs = append(verrs, *verr)
		}
		return out
	}

	static["full_name"] = collect(fullNameField, static["full_name"])
	static["email"] = collect(emailField, static["email"])
	static["phone"] = collect(phoneField, static["phone"])

	values := make(map[uint]string)
	for i := range fields {
		f := &fields[i]
		raw, present := custom[f.ID]
		if IsSystemField(f) {
			// The custom payload wins over the static key for system attributes
			if present && strings.TrimSpace(raw) != "" {
				static[f.Name] = strings.TrimSpace(raw)
			}
			continue
		}
		if out := collect(f, raw); out != "" {
			values[f.ID] = out
		}
	}

	if len(verrs) > 0 {
		return nil, &RecordValidationError{Errors: verrs}
	}

	base := rec.Base()
	for name, value := range static {
		if name == models.SystemFieldStatus && value == "" {
			continue
		}
		base.Set(name, value)
	}

	if err := checkNaturalKeys(tx, rec.Kind(), base.ID, base.Email, base.Phone); err != nil {
		return nil, err
	}
	return values, nil
}

// writeValues replaces the custom values of rec, keeping values of inactive
// fields, and refreshes the system mirror from the native columns.
func (s *RecordService) writeValues(ctx context.Context, tx *gorm.DB, rec models.Record, values map[uint]string) error {
	base := rec.Base()
	var hidden []models.AttributeValue
	if err := tx.WithContext(ctx).
		Joins("JOIN field_definitions ON field_definitions.id = custom_field_values.field_id").
		Where("custom_field_values.entity_kind = ? AND custom_field_values.entity_id = ? AND field_definitions.is_active = ?", rec.Kind(), base.ID, false).
		Find(&hidden).Error; err != nil {
		return err
	}
	for _, v := range hidden {
		values[v.FieldID] = v.Value
	}

	store := NewAttributeStore(tx)
	if err := store.ReplaceAllValues(ctx, rec.Kind(), base.ID, values); err != nil {
		return err
	}
	return store.SyncSystemMirror(ctx, rec)
}

// Get returns a record with its custom values.
func (s *RecordService) Get(ctx context.Context, kind models.EntityKind, id uint) (*RecordDetail, error) {
	rec, err := findRecord(ctx, s.db, kind, id)
	if err != nil {
		return nil, err
	}
	values, err := NewAttributeStore(s.db).GetValues(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	custom := make(map[string]interface{}, len(values))
	for _, v := range values {
		if v.Field == nil {
			continue
		}
		if v.Field.FieldType.IsMulti() {
			custom[v.Field.Name] = s.codec.Decode(v.Field, v.Value)
			continue
		}
		custom[v.Field.Name] = v.Value
	}
	return &RecordDetail{Record: rec, CustomFields: custom}, nil
}

func (s *RecordService) List(ctx context.Context, kind models.EntityKind, req *ListRecordsRequest) (*ListRecordsResponse, error) {
	rec := models.NewRecord(kind)
	if rec == nil {
		return nil, ErrInvalidKind
	}
	req.Page, req.PageSize = normalizePage(req.Page, req.PageSize)

	query := s.db.WithContext(ctx).Model(rec)
	if req.Search != "" {
		like := "%" + req.Search + "%"
		query = query.Where("full_name LIKE ? OR email LIKE ? OR phone LIKE ? OR company LIKE ?", like, like, like, like)
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.Source != "" {
		query = query.Where("source = ?", req.Source)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	offset := (req.Page - 1) * req.PageSize
	query = query.Order("created_at DESC, id DESC").Offset(offset).Limit(req.PageSize)

	var items interface{}
	switch kind {
	case models.KindLead:
		var leads []models.Lead
		if err := query.Find(&leads).Error; err != nil {
			return nil, err
		}
		items = leads
	default:
		var investors []models.Investor
		if err := query.Find(&investors).Error; err != nil {
			return nil, err
		}
		items = investors
	}

	return &ListRecordsResponse{Total: total, Page: req.Page, PageSize: req.PageSize, Items: items}, nil
}

// Delete removes a record with its values, assignments and activities.
// Investors promoted from a deleted lead keep existing with lead_id cleared.
func (s *RecordService) Delete(ctx context.Context, kind models.EntityKind, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := findRecord(ctx, tx, kind, id)
		if err != nil {
			return err
		}
		if err := NewAttributeStore(tx).DeleteEntityValues(ctx, kind, id); err != nil {
			return err
		}
		if err := tx.Where("entity_kind = ? AND entity_id = ?", kind, id).Delete(&models.Assignment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("entity_kind = ? AND entity_id = ?", kind, id).Delete(&models.Activity{}).Error; err != nil {
			return err
		}
		if kind == models.KindLead {
			if err := tx.Model(&models.Investor{}).Where("lead_id = ?", id).Update("lead_id", nil).Error; err != nil {
				return err
			}
		}
		return tx.Delete(rec).Error
	})
}

func findRecord(ctx context.Context, db *gorm.DB, kind models.EntityKind, id uint) (models.Record, error) {
	rec := models.NewRecord(kind)
	if rec == nil {
		return nil, ErrInvalidKind
	}
	if err := db.WithContext(ctx).First(rec, id).Error; err != nil {
		return nil, notFound(err, ErrRecordNotFound)
	}
	return rec, nil
}

// findConflict returns the id of another record of kind whose column equals
// value, or 0 when there is none.
func findConflict(db *gorm.DB, kind models.EntityKind, column, value string, excludeID uint) (uint, error) {
	if value == "" {
		return 0, nil
	}
	var ids []uint
	err := db.Model(models.NewRecord(kind)).
		Where(column+" = ? AND id <> ?", value, excludeID).
		Limit(1).Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	return ids[0], nil
}

// checkNaturalKeys reports a *ConflictError when email or phone already
// belongs to another record of kind. Phone is checked first.
func checkNaturalKeys(db *gorm.DB, kind models.EntityKind, selfID uint, email, phone *string) error {
	for _, key := range []struct {
		column string
		value  string
	}{{"phone", models.Deref(phone)}, {"email", models.Deref(email)}} {
		other, err := findConflict(db, kind, key.column, key.value, selfID)
		if err != nil {
			return err
		}
		if other != 0 {
			return &ConflictError{Field: key.column, Value: key.value, ExistingID: other}
		}
	}
	return nil
}

// translateRecordError maps a unique-index violation that slipped past the
// pre-checks to a ConflictError.
func translateRecordError(err error, base *models.RecordBase) error {
	if !isDuplicateKey(err) {
		return err
	}
	field := duplicateKeyField(err)
	return &ConflictError{Field: field, Value: base.Get(field)}
}

// rawString turns a JSON payload value into codec input.
func rawString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []interface{}, []string:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return fmt.Sprint(v)
}
