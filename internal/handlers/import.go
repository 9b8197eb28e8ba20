package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/dealflow/internal/config"
	"github.com/huangang/dealflow/internal/fieldcodec"
	"github.com/huangang/dealflow/internal/middleware"
	"github.com/huangang/dealflow/internal/services"
	"github.com/huangang/dealflow/pkg/logger"
	"github.com/huangang/dealflow/pkg/response"
	"gorm.io/gorm"
)

const csvContentType = "text/csv; charset=utf-8"

// ImportHandler serves delimited bulk import and export
type ImportHandler struct {
	importService *services.ImportService
	maxBytes      int64
}

func NewImportHandler(db *gorm.DB, codec fieldcodec.Codec, cfg config.ImportConfig) *ImportHandler {
	return &ImportHandler{
		importService: services.NewImportService(db, codec, cfg),
		maxBytes:      int64(cfg.MaxFileSizeMB) << 20,
	}
}

// Import loads a delimited file, either as multipart field "file" or as the
// raw request body. Row failures are reported in the result, not as an HTTP error.
// POST /api/:kind/import
func (h *ImportHandler) Import(c *gin.Context) {
	kind, ok := bindKind(c)
	if !ok {
		return
	}
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}

	var (
		body     io.Reader
		fileName string
	)
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		fh, err := c.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondError(c, err)
				return
			}
			response.BadRequest(c, "multipart field \"file\" is required")
			return
		}
		f, err := fh.Open()
		if err != nil {
			response.ServerError(c, err.Error())
			return
		}
		defer f.Close()
		body, fileName = f, fh.Filename
	} else {
		body, fileName = c.Request.Body, c.Query("file_name")
	}

	result, err := h.importService.ImportBatch(c.Request.Context(), kind, body, services.ImportMeta{
		FileName: fileName,
		ActorID:  middleware.GetUserID(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, result)
}

// Export streams every record of the kind as CSV
// GET /api/:kind/export
func (h *ImportHandler) Export(c *gin.Context) {
	kind, ok := bindKind(c)
	if !ok {
		return
	}

	setAttachment(c, fmt.Sprintf("%ss-%s.csv", kind, time.Now().Format("20060102")))
	count, err := h.importService.Export(c.Request.Context(), kind, c.Writer)
	if err != nil {
		logger.Error().Err(err).Str("kind", string(kind)).Int("written", count).Msg("[Export] export failed")
		if !c.Writer.Written() {
			clearAttachment(c)
			respondError(c, err)
		}
		return
	}
	logger.Info().Str("kind", string(kind)).Int("records", count).Msg("[Export] export finished")
}

// Template returns a header-only CSV matching the export layout
// GET /api/:kind/template
func (h *ImportHandler) Template(c *gin.Context) {
	kind, ok := bindKind(c)
	if !ok {
		return
	}

	setAttachment(c, fmt.Sprintf("%ss-template.csv", kind))
	if err := h.importService.ExportTemplate(c.Request.Context(), kind, c.Writer); err != nil && !c.Writer.Written() {
		clearAttachment(c)
		respondError(c, err)
	}
}

// ImportLogs lists past import batches
// GET /api/:kind/import-logs
func (h *ImportHandler) ImportLogs(c *gin.Context) {
	kind, ok := bindKind(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	resp, err := h.importService.ListImportLogs(c.Request.Context(), kind, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, resp)
}

func setAttachment(c *gin.Context, fileName string) {
	c.Header("Content-Type", csvContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	c.Status(http.StatusOK)
}

func clearAttachment(c *gin.Context) {
	c.Header("Content-Type", "")
	c.Header("Content-Disposition", "")
}
