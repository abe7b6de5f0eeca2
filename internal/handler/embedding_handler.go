package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mailextract/internal/pkg/response"
	"github.com/xxxsen/mailextract/internal/service"
)

type EmbeddingHandler struct {
	embeddings *service.EmbeddingService
	search     *service.SearchService
}

func NewEmbeddingHandler(embeddings *service.EmbeddingService, search *service.SearchService) *EmbeddingHandler {
	return &EmbeddingHandler{embeddings: embeddings, search: search}
}

type embedRequest struct {
	Mode string `json:"mode"`
}

type searchResponse struct {
	Items interface{} `json:"items"`
}

func (h *EmbeddingHandler) Embed(c *gin.Context) {
	var req embedRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Mode == "" {
		req.Mode = c.Query("mode")
	}
	report, err := h.embeddings.GenerateAll(c.Request.Context(), req.Mode)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, report)
}

func (h *EmbeddingHandler) Search(c *gin.Context) {
	var req service.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	hits, err := h.search.Search(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, searchResponse{Items: hits})
}

func (h *EmbeddingHandler) Column(c *gin.Context) {
	col, err := h.embeddings.VerifyDimension(c.Request.Context())
	if err != nil && col == nil {
		handleError(c, err)
		return
	}
	response.Success(c, col)
}
