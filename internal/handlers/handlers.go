package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/spark-ai/internal/logging"
	"github.com/example/spark-ai/internal/usecase"
)

const (
	ServiceName    = "Meesho Spark AI Service"
	ServiceVersion = "1.0.0"

	uploadField = "file"
	// multipartOverhead covers boundaries and part headers around the file.
	multipartOverhead = 1 << 20
)

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc *usecase.SparkUseCase) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": ServiceName,
			"version": ServiceVersion,
			"status":  "running",
			"stats":   uc.Stats(),
		})
	})

	router.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status":    "healthy",
			"timestamp": float64(time.Now().UnixNano()) / float64(time.Second),
			"stats":     uc.Stats(),
		}
		if state, ok := uc.BackendStatus(c.Request.Context()); ok {
			body["backend"] = state
		}
		c.JSON(http.StatusOK, body)
	})

	router.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "data": uc.Stats()})
	})

	uploads := router.Group("/", limitBody(uc.MaxUploadSize()+multipartOverhead))
	uploads.POST("/process-image", func(c *gin.Context) {
		upload, ok := formUpload(c, uc)
		if !ok {
			return
		}
		result, err := uc.ProcessImage(c.Request.Context(), upload)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
	})

	uploads.POST("/enhance-image", func(c *gin.Context) {
		upload, ok := formUpload(c, uc)
		if !ok {
			return
		}
		result, err := uc.EnhanceImage(c.Request.Context(), upload)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
	})

	uploads.POST("/generate-content", func(c *gin.Context) {
		upload, ok := formUpload(c, uc)
		if !ok {
			return
		}
		content, err := uc.GenerateContent(c.Request.Context(), upload)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": content})
	})

	router.GET("/status/:id", func(c *gin.Context) {
		status, err := uc.GetResult(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": status})
	})
}

func limitBody(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

func formUpload(c *gin.Context, uc *usecase.SparkUseCase) (usecase.Upload, bool) {
	file, err := c.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, uc.UploadTooLarge())
			return usecase.Upload{}, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "file is required"})
		return usecase.Upload{}, false
	}

	return usecase.Upload{
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Size:        file.Size,
		Open: func() (io.ReadCloser, error) {
			return file.Open()
		},
	}, true
}

func writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	status := http.StatusInternalServerError
	message := logging.Cause(err).Error()
	switch {
	case errors.Is(err, usecase.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, usecase.ErrNotFound):
		status = http.StatusNotFound
		message = "result not found"
	}
	c.JSON(status, gin.H{"success": false, "error": message})
}
