package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/huangang/dealflow/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActivityService appends and lists timeline entries of leads and investors.
type ActivityService struct {
	db *gorm.DB
}

func NewActivityService(db *gorm.DB) *ActivityService {
	return &ActivityService{db: db}
}

func (s *ActivityService) WithTx(tx *gorm.DB) *ActivityService {
	return &ActivityService{db: tx}
}

// Record appends an activity. metadata, when non-nil, is stored as JSON.
func (s *ActivityService) Record(ctx context.Context, kind models.EntityKind, entityID uint, activityType, title string, metadata interface{}, actorID uint) (*models.Activity, error) {
	activity := &models.Activity{
		EntityKind: kind,
		EntityID:   entityID,
		Type:       activityType,
		Title:      title,
		CreatedBy:  actorID,
	}
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return nil, err
		}
		activity.Metadata = datatypes.JSON(b)
	}
	if err := s.db.WithContext(ctx).Create(activity).Error; err != nil {
		return nil, err
	}
	return activity, nil
}

type AddNoteRequest struct {
	Title       string `json:"title"`
	Description string `json:"description" binding:"required"`
}

// AddNote records a free-text note against an existing record.
func (s *ActivityService) AddNote(ctx context.Context, kind models.EntityKind, entityID uint, req *AddNoteRequest, actorID uint) (*models.Activity, error) {
	if err := ensureRecord(ctx, s.db, kind, entityID); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Note"
	}
	activity := &models.Activity{
		EntityKind:  kind,
		EntityID:    entityID,
		Type:        models.ActivityNote,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		CreatedBy:   actorID,
	}
	if err := s.db.WithContext(ctx).Create(activity).Error; err != nil {
		return nil, err
	}
	return activity, nil
}

// List returns the timeline of a record, newest first.
func (s *ActivityService) List(ctx context.Context, kind models.EntityKind, entityID uint) ([]models.Activity, error) {
	var activities []models.Activity
	err := s.db.WithContext(ctx).
		Where("entity_kind = ? AND entity_id = ?", kind, entityID).
		Order("created_at DESC, id DESC").
		Find(&activities).Error
	return activities, err
}

// ensureRecord returns ErrRecordNotFound unless a record of kind with id exists.
func ensureRecord(ctx context.Context, db *gorm.DB, kind models.EntityKind, id uint) error {
	rec := models.NewRecord(kind)
	if rec == nil {
		return ErrInvalidKind
	}
	var count int64
	if err := db.WithContext(ctx).Model(rec).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrRecordNotFound
	}
	return nil
}
