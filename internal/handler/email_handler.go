package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mailextract/internal/model"
	"github.com/xxxsen/mailextract/internal/pkg/response"
	"github.com/xxxsen/mailextract/internal/service"
)

type EmailHandler struct {
	emails *service.EmailService
}

func NewEmailHandler(emails *service.EmailService) *EmailHandler {
	return &EmailHandler{emails: emails}
}

type listEmailsResponse struct {
	Items []model.EmailExtraction `json:"items"`
	Total int64                   `json:"total"`
}

func (h *EmailHandler) Create(c *gin.Context) {
	var req model.EmailExtraction
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	rec, err := h.emails.Save(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, rec)
}

func (h *EmailHandler) List(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		badRequest(c, "invalid limit")
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		badRequest(c, "invalid offset")
		return
	}
	items, total, err := h.emails.List(c.Request.Context(), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, listEmailsResponse{Items: items, Total: total})
}

func (h *EmailHandler) Get(c *gin.Context) {
	rec, err := h.emails.Get(c.Request.Context(), c.Param("ext_file_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	rec.Embedding = nil
	response.Success(c, rec)
}
