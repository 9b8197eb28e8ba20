package services

import (
	"context"
	"errors"
	"time"

	"github.com/huangang/dealflow/internal/models"
	"gorm.io/gorm"
)

var ErrNoAssignment = errors.New("record has no active assignment")

// AssignmentService tracks which user owns a lead or investor. At most one
// assignment per record is active.
type AssignmentService struct {
	db *gorm.DB
}

func NewAssignmentService(db *gorm.DB) *AssignmentService {
	return &AssignmentService{db: db}
}

func (s *AssignmentService) WithTx(tx *gorm.DB) *AssignmentService {
	return &AssignmentService{db: tx}
}

type AssignRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// Assign makes userID the owner of the record, deactivating the previous assignment.
func (s *AssignmentService) Assign(ctx context.Context, kind models.EntityKind, entityID, userID, actorID uint) (*models.Assignment, error) {
	var assignment *models.Assignment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureRecord(ctx, tx, kind, entityID); err != nil {
			return err
		}
		var err error
		assignment, err = s.WithTx(tx).assign(ctx, kind, entityID, userID, actorID)
		if err != nil {
			return err
		}
		_, err = NewActivityService(tx).Record(ctx, kind, entityID, models.ActivityAssigned, "Assigned",
			map[string]interface{}{"user_id": userID}, actorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

func (s *AssignmentService) assign(ctx context.Context, kind models.EntityKind, entityID, userID, actorID uint) (*models.Assignment, error) {
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Assignment{}).
		Where("entity_kind = ? AND entity_id = ? AND is_active = ?", kind, entityID, true).
		Update("is_active", false).Error; err != nil {
		return nil, err
	}
	assignment := &models.Assignment{
		EntityKind: kind,
		EntityID:   entityID,
		UserID:     userID,
		AssignedBy: actorID,
		IsActive:   true,
		AssignedAt: time.Now(),
	}
	if err := db.Create(assignment).Error; err != nil {
		return nil, err
	}
	return assignment, nil
}

// Active returns the active assignment of a record or ErrNoAssignment.
func (s *AssignmentService) Active(ctx context.Context, kind models.EntityKind, entityID uint) (*models.Assignment, error) {
	var assignment models.Assignment
	err := s.db.WithContext(ctx).
		Where("entity_kind = ? AND entity_id = ? AND is_active = ?", kind, entityID, true).
		Order("assigned_at DESC, id DESC").
		First(&assignment).Error
	if err != nil {
		return nil, notFound(err, ErrNoAssignment)
	}
	return &assignment, nil
}

// Copy gives the target record the same owner as the source's active
// assignment. It is a no-op when the source is unassigned.
func (s *AssignmentService) Copy(ctx context.Context, fromKind models.EntityKind, fromID uint, toKind models.EntityKind, toID, actorID uint) (bool, error) {
	current, err := s.Active(ctx, fromKind, fromID)
	if errors.Is(err, ErrNoAssignment) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := s.assign(ctx, toKind, toID, current.UserID, actorID); err != nil {
		return false, err
	}
	return true, nil
}

// History lists every assignment of a record, newest first.
func (s *AssignmentService) History(ctx context.Context, kind models.EntityKind, entityID uint) ([]models.Assignment, error) {
	var items []models.Assignment
	err := s.db.WithContext(ctx).
		Where("entity_kind = ? AND entity_id = ?", kind, entityID).
		Order("assigned_at DESC, id DESC").
		Find(&items).Error
	return items, err
}
