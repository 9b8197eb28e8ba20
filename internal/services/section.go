package services

import (
	"context"
	"strings"

	"github.com/huangang/dealflow/internal/models"
	"gorm.io/gorm"
)

// UngroupedSectionKey collects fields whose section key matches no active section.
const UngroupedSectionKey = "ungrouped"

type SectionService struct {
	db *gorm.DB
}

func NewSectionService(db *gorm.DB) *SectionService {
	return &SectionService{db: db}
}

type SectionRequest struct {
	Key       string `json:"key"`
	Label     string `json:"label" binding:"required"`
	SortOrder *int   `json:"sort_order"`
	IsActive  *bool  `json:"is_active"`
}

func (s *SectionService) List(ctx context.Context, kind models.EntityKind, includeInactive bool) ([]models.FormSection, error) {
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}
	query := s.db.WithContext(ctx).Where("entity_kind = ?", kind)
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}
	var sections []models.FormSection
	err := query.Order("sort_order ASC, id ASC").Find(&sections).Error
	return sections, err
}

func (s *SectionService) Create(ctx context.Context, kind models.EntityKind, req *SectionRequest) (*models.FormSection, error) {
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}
	key := strings.TrimSpace(req.Key)
	if key == "" {
		key = slugify(req.Label)
	}
	if !fieldNamePattern.MatchString(key) || key == UngroupedSectionKey {
		return nil, ErrInvalidFieldName
	}

	section := models.FormSection{
		EntityKind: kind,
		Key:        key,
		Label:      strings.TrimSpace(req.Label),
		IsActive:   boolOr(req.IsActive, true),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.FormSection{}).
			Where("entity_kind = ? AND section_key = ?", kind, key).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateSection
		}
		if req.SortOrder != nil {
			section.SortOrder = *req.SortOrder
		} else {
			var maxOrder int
			if err := tx.Model(&models.FormSection{}).Where("entity_kind = ?", kind).
				Select("COALESCE(MAX(sort_order), -1)").Scan(&maxOrder).Error; err != nil {
				return err
			}
			section.SortOrder = maxOrder + 1
		}
		return tx.Create(&section).Error
	})
	if err != nil {
		return nil, err
	}
	return &section, nil
}

// Update edits label, order and visibility. The key is immutable because
// field definitions reference it.
func (s *SectionService) Update(ctx context.Context, id uint, req *SectionRequest) (*models.FormSection, error) {
	var section models.FormSection
	if err := s.db.WithContext(ctx).First(&section, id).Error; err != nil {
		return nil, notFound(err, ErrSectionNotFound)
	}
	updates := make(map[string]interface{})
	if label := strings.TrimSpace(req.Label); label != "" {
		updates["label"] = label
	}
	if req.SortOrder != nil {
		updates["sort_order"] = *req.SortOrder
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&section).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	if err := s.db.WithContext(ctx).First(&section, id).Error; err != nil {
		return nil, err
	}
	return &section, nil
}

// Delete removes a section; its fields fall back to the ungrouped bucket.
func (s *SectionService) Delete(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.FormSection{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSectionNotFound
	}
	return nil
}

func (s *SectionService) Reorder(ctx context.Context, kind models.EntityKind, ids []uint) error {
	if !kind.Valid() {
		return ErrInvalidKind
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, id := range ids {
			if err := tx.Model(&models.FormSection{}).
				Where("id = ? AND entity_kind = ?", id, kind).
				Update("sort_order", i).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// LayoutSection is one rendered group of a form
type LayoutSection struct {
	Key    string                   `json:"key"`
	Label  string                   `json:"label"`
	Fields []models.FieldDefinition `json:"fields"`
}

// GetFormLayout groups the active fields of kind by their section, in section
// order. Fields without a known active section are appended under "ungrouped".
func (s *SectionService) GetFormLayout(ctx context.Context, kind models.EntityKind) ([]LayoutSection, error) {
	sections, err := s.List(ctx, kind, false)
	if err != nil {
		return nil, err
	}
	fields, err := NewFieldService(s.db).ListActiveFields(ctx, kind)
	if err != nil {
		return nil, err
	}

	layout := make([]LayoutSection, 0, len(sections)+1)
	index := make(map[string]int, len(sections))
	for _, sec := range sections {
		index[sec.Key] = len(layout)
		layout = append(layout, LayoutSection{Key: sec.Key, Label: sec.Label, Fields: []models.FieldDefinition{}})
	}

	var ungrouped []models.FieldDefinition
	for _, f := range fields {
		if i, ok := index[f.SectionKey]; ok {
			layout[i].Fields = append(layout[i].Fields, f)
			continue
		}
		ungrouped = append(ungrouped, f)
	}
	if len(ungrouped) > 0 {
		layout = append(layout, LayoutSection{Key: UngroupedSectionKey, Label: "Other", Fields: ungrouped})
	}
	return layout, nil
}
