package handlers

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/huangang/dealflow/internal/config"
	"github.com/huangang/dealflow/internal/fieldcodec"
	"github.com/huangang/dealflow/internal/middleware"
	"github.com/huangang/dealflow/internal/models"
	"github.com/huangang/dealflow/internal/services"
	"github.com/huangang/dealflow/pkg/response"
	"gorm.io/gorm"
)

// RecordHandler serves leads and investors under /api/:kind
type RecordHandler struct {
	recordService     *services.RecordService
	activityService   *services.ActivityService
	assignmentService *services.AssignmentService
	promotionService  *services.PromotionService
}

func NewRecordHandler(db *gorm.DB, codec fieldcodec.Codec, promotion config.PromotionConfig) *RecordHandler {
	return &RecordHandler{
		recordService:     services.NewRecordService(db, codec),
		activityService:   services.NewActivityService(db),
		assignmentService: services.NewAssignmentService(db),
		promotionService:  services.NewPromotionService(db, promotion),
	}
}

// List returns paginated records
// GET /api/:kind
func (h *RecordHandler) List(c *gin.Context) {
	kind, ok := bindKind(c)
	if !ok {
		return
	}

	var req services.ListRecordsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.recordService.List(c.Request.Context(), kind, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, resp)
}

// GetByID returns a record with its custom values
// GET /api/:kind/:id
func (h *RecordHandler) GetByID(c *gin.Context) {
	kind, ok := bindKind(c)
	if !ok {
		return
	}
	id, ok := bindID(c, "record")
	if !ok {
		return
	}

	detail, err := h.recordService.Get(c.Request.Context(), kind, id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, detail)
}

// Create saves a new record from a form submission
// POST /api/:kind
func (h *RecordHandler) Create(c *gin.Context) {
	kind, ok := bindKind(c)
	if !ok {
		return
	}

	var req services.SaveRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	detail, err := h.recordService.Create(c.Request.Context(), kind, &req, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, detail)
}

// Update replaces a record's fields and custom values
// PUT /api/:kind/:id
func (h *RecordHandler) Update(c *gin.Context) {
	kind, ok := bindKind(c)
	if !ok {
		return
	}
	id, ok := bindID(c, "record")
	if !ok {
		return
	}

	var req services.SaveRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	detail, err := h.recordService.Update(c.Request.Context(), kind, id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, detail)
}

// DELETE /api/:kind/:id
func (h *RecordHandler) Delete(c *gin.Context) {
	kind, ok := bindKind(c)
	if !ok {
		return
	}
	id, ok := bindID(c, "record")
	if !ok {
		return
	}

	if err := h.recordService.Delete(c.Request.Context(), kind, id); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "record deleted"})
}

// Convert promotes a lead to an investor
// POST /api/:kind/:id/convert
func (h *RecordHandler) Convert(c *gin.Context) {
	kind, ok := bindKind(c)
	if !ok {
		return
	}
	if kind != models.KindLead {
		response.Error(c, response.NewBadRequest("only leads can be converted").WithReason("invalid_kind"))
		return
	}
	id, ok := bindID(c, "lead")
	if !ok {
		return
	}

	// An empty body is a missing reason, reported as reason_too_short
	var req services.ConvertRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.promotionService.ConvertLead(c.Request.Context(), id, &req, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, result)
}

// Activities returns the record timeline, newest first
// GET /api/:kind/:id/activities
func (h *RecordHandler) Activities(c *gin.Context) {
	kind, ok := bindKind(c)
	if !ok {
		return
	}
	id, ok := bindID(c, "record")
	if !ok {
		return
	}

	activities, err := h.activityService.List(c.Request.Context(), kind, id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, activities)
}

// AddNote appends a note to the record timeline
// POST /api/:kind/:id/notes
func (h *RecordHandler) AddNote(c *gin.Context) {
	kind, ok := bindKind(c)
	if !ok {
		return
	}
	id, ok := bindID(c, "record")
	if !ok {
		return
	}

	var req services.AddNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	activity, err := h.activityService.AddNote(c.Request.Context(), kind, id, &req, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, activity)
}

// Assign hands the record to a user, closing any previous assignment
// POST /api/:kind/:id/assign
func (h *RecordHandler) Assign(c *gin.Context) {
	kind, ok := bindKind(c)
	if !ok {
		return
	}
	id, ok := bindID(c, "record")
	if !ok {
		return
	}

	var req services.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	assignment, err := h.assignmentService.Assign(c.Request.Context(), kind, id, req.UserID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, assignment)
}

// Assignment returns the active assignment
// GET /api/:kind/:id/assignment
func (h *RecordHandler) Assignment(c *gin.Context) {
	kind, ok := bindKind(c)
	if !ok {
		return
	}
	id, ok := bindID(c, "record")
	if !ok {
		return
	}

	assignment, err := h.assignmentService.Active(c.Request.Context(), kind, id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, assignment)
}

// AssignmentHistory returns every assignment of the record, newest first
// GET /api/:kind/:id/assignments
func (h *RecordHandler) AssignmentHistory(c *gin.Context) {
	kind, ok := bindKind(c)
	if !ok {
		return
	}
	id, ok := bindID(c, "record")
	if !ok {
		return
	}

	history, err := h.assignmentService.History(c.Request.Context(), kind, id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, history)
}
