package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mailextract/internal/pkg/response"
	"github.com/xxxsen/mailextract/internal/service"
)

type ExtractionHandler struct {
	extraction *service.ExtractionService
}

func NewExtractionHandler(extraction *service.ExtractionService) *ExtractionHandler {
	return &ExtractionHandler{extraction: extraction}
}

type projectRequest struct {
	Project string `json:"project"`
}

type transformRequest struct {
	TransformID string `json:"transform_id"`
	Project     string `json:"project"`
}

type uploadStatusResponse struct {
	RequestID string      `json:"request_id,omitempty"`
	Statuses  interface{} `json:"statuses"`
}

func (h *ExtractionHandler) Upload(c *gin.Context) {
	var req projectRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	res, err := h.extraction.UploadAssets(c.Request.Context(), req.Project)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *ExtractionHandler) UploadStatus(c *gin.Context) {
	requestID := c.Query("request_id")
	assetIDs := splitList(c.QueryArray("asset_ids"))
	statuses, err := h.extraction.CheckUploadStatus(c.Request.Context(), requestID, assetIDs)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, uploadStatusResponse{RequestID: requestID, Statuses: statuses})
}

func (h *ExtractionHandler) Transform(c *gin.Context) {
	var req projectRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	job, err := h.extraction.InitiateTransformation(c.Request.Context(), req.Project)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, job)
}

func (h *ExtractionHandler) TransformStatus(c *gin.Context) {
	var req transformRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	job, err := h.extraction.CheckTransformationStatus(c.Request.Context(), req.TransformID, req.Project)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, job)
}

func (h *ExtractionHandler) TransformResults(c *gin.Context) {
	var req transformRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	report, err := h.extraction.FetchAndMergeResults(c.Request.Context(), req.TransformID, req.Project)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, report)
}
