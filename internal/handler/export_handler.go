package handler

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mailextract/internal/pkg/response"
	"github.com/xxxsen/mailextract/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ExportHandler struct {
	export *service.ExportService
}

func NewExportHandler(export *service.ExportService) *ExportHandler {
	return &ExportHandler{export: export}
}

func (h *ExportHandler) Export(c *gin.Context) {
	content, err := h.export.ExportXLSX(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	fileName := fmt.Sprintf("emails-%s.xlsx", time.Now().Format("20060102-150405"))
	response.Attachment(c, fileName, xlsxContentType, content)
}
