package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/dealflow/internal/models"
	"github.com/huangang/dealflow/internal/services"
	"github.com/huangang/dealflow/pkg/response"
)

// kindSegments maps the :kind route segment to an entity kind.
var kindSegments = map[string]models.EntityKind{
	"leads":     models.KindLead,
	"lead":      models.KindLead,
	"investors": models.KindInvestor,
	"investor":  models.KindInvestor,
}

// bindKind resolves the :kind path parameter, answering 404 for unknown kinds.
func bindKind(c *gin.Context) (models.EntityKind, bool) {
	kind, ok := kindSegments[strings.ToLower(c.Param("kind"))]
	if !ok {
		response.NotFound(c, "unknown record kind "+strconv.Quote(c.Param("kind")))
		return "", false
	}
	return kind, true
}

// bindID parses the :id path parameter.
func bindID(c *gin.Context, what string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+what+" id")
		return 0, false
	}
	return uint(id), true
}

type reorderRequest struct {
	IDs []uint `json:"ids" binding:"required"`
}

// respondError writes err using the status and reason matching its type.
func respondError(c *gin.Context, err error) {
	response.Error(c, toAppError(err))
}

func toAppError(err error) error {
	var (
		validationErr *services.RecordValidationError
		conflictErr   *services.ConflictError
		promotionErr  *services.PromotionError
		tooLargeErr   *http.MaxBytesError
	)

	switch {
	case errors.As(err, &validationErr):
		return response.NewUnprocessable(validationErr.Error()).
			WithReason("validation_failed").
			WithDetails(gin.H{"errors": validationErr.Errors})
	case errors.As(err, &conflictErr):
		return response.NewConflict(conflictErr.Error()).
			WithReason(conflictErr.Field + "_conflict").
			WithDetails(gin.H{"field": conflictErr.Field, "existing_id": conflictErr.ExistingID})
	case errors.As(err, &promotionErr):
		return promotionAppError(promotionErr)
	case errors.As(err, &tooLargeErr):
		return response.NewBadRequest("the uploaded file is too large").WithReason("file_too_large")
	case errors.Is(err, services.ErrRecordNotFound),
		errors.Is(err, services.ErrFieldNotFound),
		errors.Is(err, services.ErrSectionNotFound),
		errors.Is(err, services.ErrNoAssignment):
		return response.NewNotFound(err.Error())
	case errors.Is(err, services.ErrDuplicateFieldName),
		errors.Is(err, services.ErrDuplicateFieldLabel),
		errors.Is(err, services.ErrDuplicateSection):
		return response.NewConflict(err.Error())
	case errors.Is(err, services.ErrInvalidKind),
		errors.Is(err, services.ErrInvalidFieldName),
		errors.Is(err, services.ErrInvalidFieldType),
		errors.Is(err, services.ErrDuplicateOption),
		errors.Is(err, services.ErrInvalidOptionValue),
		errors.Is(err, services.ErrSystemFieldDelete),
		errors.Is(err, services.ErrSystemFieldImmutable),
		errors.Is(err, services.ErrEmptyImport),
		errors.Is(err, services.ErrTooManyRows):
		return response.NewBadRequest(err.Error())
	}
	return err
}

func promotionAppError(err *services.PromotionError) *response.AppError {
	var appErr *response.AppError
	switch err.Reason {
	case services.ReasonNotFound:
		appErr = response.NewNotFound(err.Message)
	case services.ReasonTooShort:
		appErr = response.NewUnprocessable(err.Message)
	default:
		appErr = response.NewConflict(err.Message)
	}
	appErr = appErr.WithReason(err.Reason)
	if err.InvestorID != 0 {
		appErr = appErr.WithDetails(gin.H{"investor_id": err.InvestorID})
	}
	return appErr
}
