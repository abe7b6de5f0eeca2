package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mailextract/internal/middleware"
)

type RouterDeps struct {
	Emails     *EmailHandler
	Extraction *ExtractionHandler
	Embeddings *EmbeddingHandler
	Export     *ExportHandler
	Files      *FileHandler
	JWTSecret  []byte
	// RateLimit is the minimum gap between two provider-spending calls of
	// one client on one route.
	RateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	emails := api.Group("/emails")
	emails.Use(middleware.JWTAuth(deps.JWTSecret))

	emails.POST("", deps.Emails.Create)
	emails.GET("", deps.Emails.List)
	emails.GET("/embedding-column", deps.Embeddings.Column)
	emails.GET("/export", deps.Export.Export)
	emails.POST("/files", deps.Files.Upload)
	emails.POST("/search", deps.Embeddings.Search)
	emails.GET("/upload/status", deps.Extraction.UploadStatus)
	emails.POST("/transform/status", deps.Extraction.TransformStatus)
	emails.POST("/transform/results", deps.Extraction.TransformResults)

	limited := emails.Group("")
	limited.Use(middleware.RateLimit(deps.RateLimit))
	limited.PUT("/upload", deps.Extraction.Upload)
	limited.POST("/transform", deps.Extraction.Transform)
	limited.POST("/embed", deps.Embeddings.Embed)

	emails.GET("/:ext_file_id", deps.Emails.Get)
}
