package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/dealflow/internal/services"
	"github.com/huangang/dealflow/pkg/response"
	"gorm.io/gorm"
)

type FieldHandler struct {
	fieldService   *services.FieldService
	sectionService *services.SectionService
}

func NewFieldHandler(db *gorm.DB) *FieldHandler {
	return &FieldHandler{
		fieldService:   services.NewFieldService(db),
		sectionService: services.NewSectionService(db),
	}
}

// List returns the field definitions of a kind
// GET /api/:kind/fields?include_inactive=true
func (h *FieldHandler) List(c *gin.Context) {
	kind, ok := bindKind(c)
	if !ok {
		return
	}

	fields, err := h.fieldService.ListFields(c.Request.Context(), kind, c.Query("include_inactive") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, fields)
}

// Create adds a custom field
// POST /api/:kind/fields
func (h *FieldHandler) Create(c *gin.Context) {
	kind, ok := bindKind(c)
	if !ok {
		return
	}

	var req services.CreateFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	field, err := h.fieldService.CreateField(c.Request.Context(), kind, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, field)
}

// Reorder sets the display order of a kind's fields
// PUT /api/:kind/fields/reorder
func (h *FieldHandler) Reorder(c *gin.Context) {
	kind, ok := bindKind(c)
	if !ok {
		return
	}

	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.fieldService.ReorderFields(c.Request.Context(), kind, req.IDs); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "fields reordered"})
}

// FormLayout returns active fields grouped by form section
// GET /api/:kind/form-layout
func (h *FieldHandler) FormLayout(c *gin.Context) {
	kind, ok := bindKind(c)
	if !ok {
		return
	}

	layout, err := h.sectionService.GetFormLayout(c.Request.Context(), kind)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, layout)
}

// GetByID returns a field with all of its options
// GET /api/fields/:id
func (h *FieldHandler) GetByID(c *gin.Context) {
	id, ok := bindID(c, "field")
	if !ok {
		return
	}

	field, err := h.fieldService.GetField(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, field)
}

// Update edits a field
// PUT /api/fields/:id
func (h *FieldHandler) Update(c *gin.Context) {
	id, ok := bindID(c, "field")
	if !ok {
		return
	}

	var req services.UpdateFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	field, err := h.fieldService.UpdateField(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, field)
}

// Delete removes a custom field and its stored values
// DELETE /api/fields/:id
func (h *FieldHandler) Delete(c *gin.Context) {
	id, ok := bindID(c, "field")
	if !ok {
		return
	}

	if err := h.fieldService.DeleteField(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "field deleted"})
}
