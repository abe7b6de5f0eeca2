package handler

import (
	"mime/multipart"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mailextract/internal/pkg/errcode"
	"github.com/xxxsen/mailextract/internal/pkg/response"
	"github.com/xxxsen/mailextract/internal/source"
)

// FileHandler stores raw email files into the document source so the next
// upload run picks them up.
type FileHandler struct {
	docs     source.Source
	maxBytes int64
}

type savedFilesResponse struct {
	Files []string `json:"files"`
}

func NewFileHandler(docs source.Source, maxBytes int64) *FileHandler {
	return &FileHandler{docs: docs, maxBytes: maxBytes}
}

func (h *FileHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, "multipart form is required")
		return
	}
	files := append(form.File["files"], form.File["file"]...)
	if len(files) == 0 {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, "file is required")
		return
	}
	for _, fh := range files {
		if h.maxBytes > 0 && fh.Size > h.maxBytes {
			response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, "file exceeds "+formatUploadLimit(h.maxBytes))
			return
		}
		if err := source.ValidName(path.Base(fh.Filename)); err != nil {
			response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, "invalid file name")
			return
		}
	}
	saved := make([]string, 0, len(files))
	for _, fh := range files {
		name := path.Base(fh.Filename)
		if err := h.save(c, fh, name); err != nil {
			logutil.GetLogger(c.Request.Context()).Error("save email file failed", zap.String("name", name), zap.Error(err))
			response.Error(c, http.StatusInternalServerError, errcode.ErrUploadFailed, "failed to store file")
			return
		}
		saved = append(saved, name)
	}
	response.Success(c, savedFilesResponse{Files: saved})
}

func (h *FileHandler) save(c *gin.Context, fh *multipart.FileHeader, name string) error {
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	return h.docs.Save(c.Request.Context(), name, f, fh.Size)
}
