package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/huangang/dealflow/internal/config"
	"github.com/huangang/dealflow/internal/models"
	"github.com/huangang/dealflow/pkg/logger"
	"gorm.io/gorm"
)

// Promotion failure reasons
const (
	ReasonTooShort         = "reason_too_short"
	ReasonAlreadyConverted = "already_converted"
	ReasonPhoneConflict    = "phone_conflict"
	ReasonEmailConflict    = "email_conflict"
	ReasonNotFound         = "not_found"
)

// PromotionError is a precondition failure. Nothing is written when it is returned.
type PromotionError struct {
	Reason     string `json:"reason"`
	Message    string `json:"message"`
	InvestorID uint   `json:"investor_id,omitempty"`
}

func (e *PromotionError) Error() string { return e.Message }

type ConvertRequest struct {
	Reason string `json:"reason"`
}

// ConvertResult reports the new investor and how custom values carried over.
// DroppedFields lists lead fields with values that have no investor field of
// the same machine name.
type ConvertResult struct {
	InvestorID    uint     `json:"investor_id"`
	CopiedFields  []string `json:"copied_fields"`
	DroppedFields []string `json:"dropped_fields"`
}

// PromotionService converts qualified leads into investors.
type PromotionService struct {
	db  *gorm.DB
	cfg config.PromotionConfig
}

func NewPromotionService(db *gorm.DB, cfg config.PromotionConfig) *PromotionService {
	return &PromotionService{db: db, cfg: cfg}
}

// ConvertLead creates an investor from a lead in one transaction: preconditions
// are checked first, then the investor, its custom values, assignment and
// activities are written and the lead is marked won.
func (s *PromotionService) ConvertLead(ctx context.Context, leadID uint, req *ConvertRequest, actorID uint) (*ConvertResult, error) {
	reason := strings.TrimSpace(req.Reason)
	if len([]rune(reason)) < s.cfg.MinReasonLength {
		return nil, &PromotionError{
			Reason:  ReasonTooShort,
			Message: fmt.Sprintf("a conversion reason of at least %d characters is required", s.cfg.MinReasonLength),
		}
	}

	var result *ConvertResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.convert(ctx, tx, leadID, reason, actorID)
		return err
	})
	if err != nil {
		var perr *PromotionError
		if errors.As(err, &perr) {
			logger.Info().Uint("lead_id", leadID).Str("reason", perr.Reason).Msg("[Promotion] conversion rejected")
		}
		return nil, err
	}

	if len(result.DroppedFields) > 0 {
		logger.Warn().
			Uint("lead_id", leadID).
			Uint("investor_id", result.InvestorID).
			Strs("dropped_fields", result.DroppedFields).
			Msg("[Promotion] lead fields without a matching investor field were not copied")
	}
	logger.Info().Uint("lead_id", leadID).Uint("investor_id", result.InvestorID).Msg("[Promotion] lead converted")
	LogInfo("promotion", "convert_lead", fmt.Sprintf("lead %d converted to investor %d", leadID, result.InvestorID),
		actorRef(actorID), "", "", result)
	return result, nil
}

func (s *PromotionService) convert(ctx context.Context, tx *gorm.DB, leadID uint, reason string, actorID uint) (*ConvertResult, error) {
	var lead models.Lead
	if err := tx.WithContext(ctx).First(&lead, leadID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &PromotionError{Reason: ReasonNotFound, Message: "lead not found"}
		}
		return nil, err
	}

	var existing []uint
	if err := tx.Model(&models.Investor{}).Where("lead_id = ?", leadID).Limit(1).Pluck("id", &existing).Error; err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, &PromotionError{
			Reason:     ReasonAlreadyConverted,
			Message:    "this lead has already been converted to an investor",
			InvestorID: existing[0],
		}
	}

	if id, err := findConflict(tx, models.KindInvestor, "phone", models.Deref(lead.Phone), 0); err != nil {
		return nil, err
	} else if id != 0 {
		return nil, &PromotionError{
			Reason:     ReasonPhoneConflict,
			Message:    fmt.Sprintf("an investor with phone %s already exists", models.Deref(lead.Phone)),
			InvestorID: id,
		}
	}
	if id, err := findConflict(tx, models.KindInvestor, "email", models.Deref(lead.Email), 0); err != nil {
		return nil, err
	} else if id != 0 {
		return nil, &PromotionError{
			Reason:     ReasonEmailConflict,
			Message:    fmt.Sprintf("an investor with email %s already exists", models.Deref(lead.Email)),
			InvestorID: id,
		}
	}

	priority := lead.Priority
	if priority == "" {
		priority = s.cfg.DefaultPriority
	}
	investor := models.Investor{
		RecordBase: models.RecordBase{
			FullName:  lead.FullName,
			Email:     lead.Email,
			Phone:     lead.Phone,
			Company:   lead.Company,
			Source:    lead.Source,
			Status:    s.cfg.InitialStatus,
			Priority:  priority,
			CreatedBy: actorID,
		},
		LeadID: &lead.ID,
	}
	if err := tx.Create(&investor).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, &PromotionError{Reason: duplicateKeyField(err) + "_conflict", Message: "an investor with the same contact details already exists"}
		}
		return nil, err
	}

	result := &ConvertResult{InvestorID: investor.ID, CopiedFields: []string{}, DroppedFields: []string{}}
	if err := s.copyValues(ctx, tx, lead.ID, investor.ID, result); err != nil {
		return nil, err
	}

	store := NewAttributeStore(tx)
	if _, err := NewAssignmentService(tx).Copy(ctx, models.KindLead, lead.ID, models.KindInvestor, investor.ID, actorID); err != nil {
		return nil, err
	}

	activities := NewActivityService(tx)
	meta := map[string]interface{}{"lead_id": lead.ID, "investor_id": investor.ID, "reason": reason}
	if _, err := activities.Record(ctx, models.KindInvestor, investor.ID, models.ActivityConverted, "Converted from lead", meta, actorID); err != nil {
		return nil, err
	}
	if _, err := activities.Record(ctx, models.KindLead, lead.ID, models.ActivityConverted, "Converted to investor", meta, actorID); err != nil {
		return nil, err
	}

	if err := tx.Model(&lead).Update("status", s.cfg.WonStatus).Error; err != nil {
		return nil, err
	}
	lead.Status = s.cfg.WonStatus

	if err := store.SyncSystemMirror(ctx, &lead); err != nil {
		return nil, err
	}
	if err := store.SyncSystemMirror(ctx, &investor); err != nil {
		return nil, err
	}
	return result, nil
}

// copyValues maps the lead's non-system values onto investor fields with the
// same machine name. Stored text is copied as is, without re-validation.
func (s *PromotionService) copyValues(ctx context.Context, tx *gorm.DB, leadID, investorID uint, result *ConvertResult) error {
	store := NewAttributeStore(tx)
	values, err := store.GetValues(ctx, models.KindLead, leadID)
	if err != nil {
		return err
	}

	var targets []models.FieldDefinition
	if err := tx.WithContext(ctx).Where("entity_kind = ?", models.KindInvestor).Find(&targets).Error; err != nil {
		return err
	}
	byName := make(map[string]*models.FieldDefinition, len(targets))
	for i := range targets {
		byName[targets[i].Name] = &targets[i]
	}

	for _, v := range values {
		if v.Field == nil || IsSystemField(v.Field) || strings.TrimSpace(v.Value) == "" {
			continue
		}
		target := byName[v.Field.Name]
		if target == nil || IsSystemField(target) {
			result.DroppedFields = append(result.DroppedFields, v.Field.Name)
			continue
		}
		if err := store.UpsertValue(ctx, models.KindInvestor, investorID, target.ID, v.Value); err != nil {
			return err
		}
		result.CopiedFields = append(result.CopiedFields, v.Field.Name)
	}
	return nil
}
