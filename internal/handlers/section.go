package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/dealflow/internal/services"
	"github.com/huangang/dealflow/pkg/response"
	"gorm.io/gorm"
)

type SectionHandler struct {
	sectionService *services.SectionService
}

func NewSectionHandler(db *gorm.DB) *SectionHandler {
	return &SectionHandler{sectionService: services.NewSectionService(db)}
}

// List returns form sections of a kind
// GET /api/:kind/sections?include_inactive=true
func (h *SectionHandler) List(c *gin.Context) {
	kind, ok := bindKind(c)
	if !ok {
		return
	}

	sections, err := h.sectionService.List(c.Request.Context(), kind, c.Query("include_inactive") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, sections)
}

// POST /api/:kind/sections
func (h *SectionHandler) Create(c *gin.Context) {
	kind, ok := bindKind(c)
	if !ok {
		return
	}

	var req services.SectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	section, err := h.sectionService.Create(c.Request.Context(), kind, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, section)
}

// PUT /api/:kind/sections/reorder
func (h *SectionHandler) Reorder(c *gin.Context) {
	kind, ok := bindKind(c)
	if !ok {
		return
	}

	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.sectionService.Reorder(c.Request.Context(), kind, req.IDs); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "sections reordered"})
}

// PUT /api/sections/:id
func (h *SectionHandler) Update(c *gin.Context) {
	id, ok := bindID(c, "section")
	if !ok {
		return
	}

	var req services.SectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	section, err := h.sectionService.Update(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, section)
}

// DELETE /api/sections/:id
func (h *SectionHandler) Delete(c *gin.Context) {
	id, ok := bindID(c, "section")
	if !ok {
		return
	}

	if err := h.sectionService.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "section deleted"})
}
