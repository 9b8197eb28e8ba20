package services

import (
	"context"
	"strings"

	"github.com/huangang/dealflow/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AttributeStore persists custom field values: one row per (entity, field),
// enforced by the idx_value_entity_field unique index and upsert writes.
type AttributeStore struct {
	db *gorm.DB
}

func NewAttributeStore(db *gorm.DB) *AttributeStore {
	return &AttributeStore{db: db}
}

// WithTx returns a store whose writes join tx.
func (s *AttributeStore) WithTx(tx *gorm.DB) *AttributeStore {
	return &AttributeStore{db: tx}
}

// GetValues returns every stored value of an entity with its field definition joined.
func (s *AttributeStore) GetValues(ctx context.Context, kind models.EntityKind, entityID uint) ([]models.AttributeValue, error) {
	var values []models.AttributeValue
	err := s.db.WithContext(ctx).
		Preload("Field").
		Preload("Field.Options", allOptions).
		Where("entity_kind = ? AND entity_id = ?", kind, entityID).
		Order("field_id ASC").
		Find(&values).Error
	return values, err
}

// ValueMap returns the stored values of an entity keyed by field id.
func (s *AttributeStore) ValueMap(ctx context.Context, kind models.EntityKind, entityID uint) (map[uint]string, error) {
	var values []models.AttributeValue
	if err := s.db.WithContext(ctx).
		Where("entity_kind = ? AND entity_id = ?", kind, entityID).
		Find(&values).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]string, len(values))
	for _, v := range values {
		out[v.FieldID] = v.Value
	}
	return out, nil
}

// UpsertValue creates or overwrites the (entity, field) row. Blank values are
// "no value" and are never stored.
func (s *AttributeStore) UpsertValue(ctx context.Context, kind models.EntityKind, entityID, fieldID uint, value string) error {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	row := models.AttributeValue{
		EntityKind: kind,
		EntityID:   entityID,
		FieldID:    fieldID,
		Value:      value,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entity_id"}, {Name: "field_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

// DeleteValue removes one (entity, field) row if present.
func (s *AttributeStore) DeleteValue(ctx context.Context, kind models.EntityKind, entityID, fieldID uint) error {
	return s.db.WithContext(ctx).
		Where("entity_kind = ? AND entity_id = ? AND field_id = ?", kind, entityID, fieldID).
		Delete(&models.AttributeValue{}).Error
}

// ReplaceAllValues deletes every row of the entity then inserts the non-blank
// survivors of values, inside one transaction so a failed insert cannot leave
// the entity stripped of its values.
func (s *AttributeStore) ReplaceAllValues(ctx context.Context, kind models.EntityKind, entityID uint, values map[uint]string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("entity_kind = ? AND entity_id = ?", kind, entityID).
			Delete(&models.AttributeValue{}).Error; err != nil {
			return err
		}

		rows := make([]models.AttributeValue, 0, len(values))
		for fieldID, value := range values {
			if strings.TrimSpace(value) == "" {
				continue
			}
			rows = append(rows, models.AttributeValue{
				EntityKind: kind,
				EntityID:   entityID,
				FieldID:    fieldID,
				Value:      value,
			})
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// DeleteEntityValues removes every value of an entity.
func (s *AttributeStore) DeleteEntityValues(ctx context.Context, kind models.EntityKind, entityID uint) error {
	return s.db.WithContext(ctx).
		Where("entity_kind = ? AND entity_id = ?", kind, entityID).
		Delete(&models.AttributeValue{}).Error
}

// SyncSystemMirror refreshes the EAV mirror rows of the system attributes
// (source, status, priority) from the record's native columns. The native
// column is the source of truth; a blank column removes the mirror row.
func (s *AttributeStore) SyncSystemMirror(ctx context.Context, rec models.Record) error {
	var defs []models.FieldDefinition
	if err := s.db.WithContext(ctx).
		Where("entity_kind = ? AND name IN ?", rec.Kind(), models.SystemFieldNames).
		Find(&defs).Error; err != nil {
		return err
	}

	base := rec.Base()
	for i := range defs {
		value := base.Get(defs[i].Name)
		var err error
		if strings.TrimSpace(value) == "" {
			err = s.DeleteValue(ctx, rec.Kind(), base.ID, defs[i].ID)
		} else {
			err = s.UpsertValue(ctx, rec.Kind(), base.ID, defs[i].ID, value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
