package services

import (
	"context"
	"regexp"
	"strings"

	"github.com/huangang/dealflow/internal/fieldcodec"
	"github.com/huangang/dealflow/internal/models"
	"gorm.io/gorm"
)

var fieldNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// FieldService is the field registry: the catalog of typed attribute
// definitions and their option lists per entity kind.
type FieldService struct {
	db *gorm.DB
}

func NewFieldService(db *gorm.DB) *FieldService {
	return &FieldService{db: db}
}

// WithTx returns a FieldService bound to tx.
func (s *FieldService) WithTx(tx *gorm.DB) *FieldService {
	return &FieldService{db: tx}
}

type OptionRequest struct {
	Value    string `json:"value" yaml:"value"`
	Label    string `json:"label" binding:"required" yaml:"label"`
	IsActive *bool  `json:"is_active" yaml:"is_active"`
}

type CreateFieldRequest struct {
	Name         string           `json:"name" yaml:"name"`
	Label        string           `json:"label" binding:"required" yaml:"label"`
	FieldType    models.FieldType `json:"field_type" binding:"required" yaml:"field_type"`
	IsRequired   bool             `json:"is_required" yaml:"is_required"`
	IsActive     *bool            `json:"is_active" yaml:"is_active"`
	SectionKey   string           `json:"section_key" yaml:"section_key"`
	SortOrder    *int             `json:"sort_order" yaml:"sort_order"`
	Placeholder  string           `json:"placeholder" yaml:"placeholder"`
	HelpText     string           `json:"help_text" yaml:"help_text"`
	DefaultValue string           `json:"default_value" yaml:"default_value"`
	Options      []OptionRequest  `json:"options" yaml:"options"`
}

// UpdateFieldRequest edits a field. Nil pointers leave the column untouched;
// a non-nil Options replaces the whole option list.
type UpdateFieldRequest struct {
	Name         *string           `json:"name"`
	Label        *string           `json:"label"`
	FieldType    *models.FieldType `json:"field_type"`
	IsRequired   *bool             `json:"is_required"`
	IsActive     *bool             `json:"is_active"`
	SectionKey   *string           `json:"section_key"`
	SortOrder    *int              `json:"sort_order"`
	Placeholder  *string           `json:"placeholder"`
	HelpText     *string           `json:"help_text"`
	DefaultValue *string           `json:"default_value"`
	Options      *[]OptionRequest  `json:"options"`
}

func activeOptions(db *gorm.DB) *gorm.DB {
	return db.Where("is_active = ?", true).Order("sort_order ASC, id ASC")
}

func allOptions(db *gorm.DB) *gorm.DB {
	return db.Order("sort_order ASC, id ASC")
}

// ListActiveFields returns the active definitions of kind in display order,
// each with its active options.
func (s *FieldService) ListActiveFields(ctx context.Context, kind models.EntityKind) ([]models.FieldDefinition, error) {
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}
	var fields []models.FieldDefinition
	err := s.db.WithContext(ctx).
		Preload("Options", activeOptions).
		Where("entity_kind = ? AND is_active = ?", kind, true).
		Order("sort_order ASC, id ASC").
		Find(&fields).Error
	return fields, err
}

// ListFields returns every definition of kind, inactive ones included when asked.
func (s *FieldService) ListFields(ctx context.Context, kind models.EntityKind, includeInactive bool) ([]models.FieldDefinition, error) {
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}
	query := s.db.WithContext(ctx).Preload("Options", allOptions).Where("entity_kind = ?", kind)
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}
	var fields []models.FieldDefinition
	err := query.Order("sort_order ASC, id ASC").Find(&fields).Error
	return fields, err
}

// GetField returns a definition with all of its options
func (s *FieldService) GetField(ctx context.Context, id uint) (*models.FieldDefinition, error) {
	var field models.FieldDefinition
	if err := s.db.WithContext(ctx).Preload("Options", allOptions).First(&field, id).Error; err != nil {
		return nil, notFound(err, ErrFieldNotFound)
	}
	return &field, nil
}

// FindByName returns the definition of kind with the given machine name.
func (s *FieldService) FindByName(ctx context.Context, kind models.EntityKind, name string) (*models.FieldDefinition, error) {
	var field models.FieldDefinition
	err := s.db.WithContext(ctx).Preload("Options", allOptions).
		Where("entity_kind = ? AND name = ?", kind, name).First(&field).Error
	if err != nil {
		return nil, notFound(err, ErrFieldNotFound)
	}
	return &field, nil
}

// CreateField adds a custom definition. Administrators cannot create system fields.
func (s *FieldService) CreateField(ctx context.Context, kind models.EntityKind, req *CreateFieldRequest) (*models.FieldDefinition, error) {
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}
	if !req.FieldType.Valid() {
		return nil, ErrInvalidFieldType
	}

	name := req.Name
	if name == "" {
		name = slugify(req.Label)
	}
	if !fieldNamePattern.MatchString(name) {
		return nil, ErrInvalidFieldName
	}
	if isStaticName(name) {
		return nil, ErrDuplicateFieldName
	}

	options, err := buildOptions(req.FieldType, req.Options)
	if err != nil {
		return nil, err
	}

	label := strings.TrimSpace(req.Label)
	if label == "" {
		label = name
	}

	field := models.FieldDefinition{
		EntityKind:   kind,
		Name:         name,
		Label:        label,
		FieldType:    req.FieldType,
		IsRequired:   req.IsRequired,
		IsActive:     boolOr(req.IsActive, true),
		SectionKey:   req.SectionKey,
		Placeholder:  req.Placeholder,
		HelpText:     req.HelpText,
		DefaultValue: req.DefaultValue,
		Options:      options,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.FieldDefinition{}).
			Where("entity_kind = ? AND name = ?", kind, name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateFieldName
		}
		if err := checkLabel(tx, kind, name, label, 0); err != nil {
			return err
		}

		if req.SortOrder != nil {
			field.SortOrder = *req.SortOrder
		} else {
			var maxOrder int
			if err := tx.Model(&models.FieldDefinition{}).Where("entity_kind = ?", kind).
				Select("COALESCE(MAX(sort_order), -1)").Scan(&maxOrder).Error; err != nil {
				return err
			}
			field.SortOrder = maxOrder + 1
		}

		if err := tx.Create(&field).Error; err != nil {
			if isDuplicateKey(err) {
				return ErrDuplicateFieldName
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &field, nil
}

// UpdateField edits a definition. When Options is supplied the option list is
// replaced wholesale: all existing options are deleted and recreated.
func (s *FieldService) UpdateField(ctx context.Context, id uint, req *UpdateFieldRequest) (*models.FieldDefinition, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var field models.FieldDefinition
		if err := tx.First(&field, id).Error; err != nil {
			return notFound(err, ErrFieldNotFound)
		}

		if field.IsSystem {
			if (req.Name != nil && *req.Name != field.Name) || (req.FieldType != nil && *req.FieldType != field.FieldType) {
				return ErrSystemFieldImmutable
			}
		}

		updates := make(map[string]interface{})

		if req.Name != nil && *req.Name != field.Name {
			if !fieldNamePattern.MatchString(*req.Name) {
				return ErrInvalidFieldName
			}
			if isStaticName(*req.Name) {
				return ErrDuplicateFieldName
			}
			var count int64
			if err := tx.Model(&models.FieldDefinition{}).
				Where("entity_kind = ? AND name = ? AND id <> ?", field.EntityKind, *req.Name, id).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return ErrDuplicateFieldName
			}
			updates["name"] = *req.Name
		}
		fieldType := field.FieldType
		if req.FieldType != nil {
			if !req.FieldType.Valid() {
				return ErrInvalidFieldType
			}
			fieldType = *req.FieldType
			updates["field_type"] = fieldType
		}
		if req.Label != nil {
			if label := strings.TrimSpace(*req.Label); label != "" && label != field.Label {
				name := field.Name
				if req.Name != nil {
					name = *req.Name
				}
				if err := checkLabel(tx, field.EntityKind, name, label, id); err != nil {
					return err
				}
				updates["label"] = label
			}
		}
		if req.IsRequired != nil {
			updates["is_required"] = *req.IsRequired
		}
		if req.IsActive != nil {
			updates["is_active"] = *req.IsActive
		}
		if req.SectionKey != nil {
			updates["section_key"] = *req.SectionKey
		}
		if req.SortOrder != nil {
			updates["sort_order"] = *req.SortOrder
		}
		if req.Placeholder != nil {
			updates["placeholder"] = *req.Placeholder
		}
		if req.HelpText != nil {
			updates["help_text"] = *req.HelpText
		}
		if req.DefaultValue != nil {
			updates["default_value"] = *req.DefaultValue
		}

		if len(updates) > 0 {
			if err := tx.Model(&field).Updates(updates).Error; err != nil {
				return err
			}
		}

		switch {
		case req.Options != nil:
			options, err := buildOptions(fieldType, *req.Options)
			if err != nil {
				return err
			}
			return replaceOptions(tx, id, options)
		case !fieldType.HasOptions():
			// Options are meaningless once a field stops being a choice type
			return tx.Where("field_id = ?", id).Delete(&models.FieldOption{}).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetField(ctx, id)
}

// checkLabel keeps export headers unambiguous: a label is unique within its
// kind (ignoring case) and may not name a static column other than the
// field's own.
func checkLabel(tx *gorm.DB, kind models.EntityKind, name, label string, excludeID uint) error {
	if sf, ok := models.LookupStaticField(label); ok && sf.Name != name {
		return ErrDuplicateFieldLabel
	}
	var count int64
	if err := tx.Model(&models.FieldDefinition{}).
		Where("entity_kind = ? AND LOWER(label) = ? AND id <> ?", kind, strings.ToLower(label), excludeID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateFieldLabel
	}
	return nil
}

// isStaticName reports whether name is a native column. System fields share
// their name with a column but are seeded, never created.
func isStaticName(name string) bool {
	for _, sf := range models.StaticFields {
		if sf.Name == name {
			return true
		}
	}
	return false
}

// ambiguousLabels returns the lower-cased labels that cannot name a single
// column in a delimited file: repeated across fields or equal to a static
// column. Such fields are addressed by machine name instead.
func ambiguousLabels(fields []models.FieldDefinition) map[string]bool {
	counts := make(map[string]int, len(fields))
	for i := range fields {
		counts[strings.ToLower(strings.TrimSpace(fields[i].Label))]++
	}
	out := make(map[string]bool)
	for label, n := range counts {
		if _, static := models.LookupStaticField(label); n > 1 || static || label == "" {
			out[label] = true
		}
	}
	return out
}

func replaceOptions(tx *gorm.DB, fieldID uint, options []models.FieldOption) error {
	if err := tx.Where("field_id = ?", fieldID).Delete(&models.FieldOption{}).Error; err != nil {
		return err
	}
	if len(options) == 0 {
		return nil
	}
	for i := range options {
		options[i].FieldID = fieldID
	}
	return tx.Create(&options).Error
}

// DeleteField removes a custom definition with its options and stored values.
func (s *FieldService) DeleteField(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var field models.FieldDefinition
		if err := tx.First(&field, id).Error; err != nil {
			return notFound(err, ErrFieldNotFound)
		}
		if field.IsSystem {
			return ErrSystemFieldDelete
		}
		if err := tx.Where("field_id = ?", id).Delete(&models.AttributeValue{}).Error; err != nil {
			return err
		}
		if err := tx.Where("field_id = ?", id).Delete(&models.FieldOption{}).Error; err != nil {
			return err
		}
		return tx.Delete(&field).Error
	})
}

// ReorderFields assigns sort positions following the order of ids. Ids that do
// not belong to kind are ignored.
func (s *FieldService) ReorderFields(ctx context.Context, kind models.EntityKind, ids []uint) error {
	if !kind.Valid() {
		return ErrInvalidKind
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, id := range ids {
			if err := tx.Model(&models.FieldDefinition{}).
				Where("id = ? AND entity_kind = ?", id, kind).
				Update("sort_order", i).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func buildOptions(fieldType models.FieldType, reqs []OptionRequest) ([]models.FieldOption, error) {
	if !fieldType.HasOptions() {
		return nil, nil
	}
	seen := make(map[string]bool)
	options := make([]models.FieldOption, 0, len(reqs))
	for i, o := range reqs {
		value := strings.TrimSpace(o.Value)
		if value == "" {
			value = slugify(o.Label)
		}
		if value == "" {
			continue
		}
		if strings.Contains(value, fieldcodec.MultiValueSeparator) {
			return nil, ErrInvalidOptionValue
		}
		if seen[value] {
			return nil, ErrDuplicateOption
		}
		seen[value] = true
		label := strings.TrimSpace(o.Label)
		if label == "" {
			label = value
		}
		options = append(options, models.FieldOption{
			Value:     value,
			Label:     label,
			SortOrder: i,
			IsActive:  boolOr(o.IsActive, true),
		})
	}
	return options, nil
}

// IsSystemField is the filter predicate callers apply before writing EAV rows
// for data that is already written to native columns.
func IsSystemField(f *models.FieldDefinition) bool {
	return f.IsSystem || models.IsSystemFieldName(f.Name)
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// slugify turns a label such as "Ticket Size (USD)" into "ticket_size_usd".
func slugify(label string) string {
	s := slugInvalid.ReplaceAllString(strings.ToLower(strings.TrimSpace(label)), "_")
	s = strings.Trim(s, "_")
	if s != "" && (s[0] >= '0' && s[0] <= '9') {
		s = "f_" + s
	}
	return s
}
