package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gopherai-docqa/internal/app"
	"gopherai-docqa/internal/extract"
	"gopherai-docqa/internal/rag"
	"gopherai-docqa/internal/transport/http/response"
)

type DocQAHandler struct {
	service        *app.DocQAService
	maxUploadBytes int64
	logger         *slog.Logger
}

type ChatRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Query     string `json:"query" binding:"required"`
	Model     string `json:"model" binding:"max=128"`
}

func NewDocQAHandler(service *app.DocQAService, maxUploadBytes int64, logger *slog.Logger) *DocQAHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocQAHandler{service: service, maxUploadBytes: maxUploadBytes, logger: logger}
}

func (h *DocQAHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if h.maxUploadBytes > 0 && file.Size > h.maxUploadBytes {
		h.fail(c, "upload", app.ErrFileTooLarge)
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	result, err := h.service.Upload(c.Request.Context(), app.UploadInput{
		Filename: file.Filename,
		TypeTag:  c.PostForm("type"),
		Body:     f,
	})
	if err != nil {
		h.fail(c, "upload", err)
		return
	}
	response.OK(c, result)
}

func (h *DocQAHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.service.Chat(c.Request.Context(), app.ChatInput{
		SessionID: req.SessionID,
		Query:     req.Query,
		Model:     req.Model,
	})
	if err != nil {
		h.fail(c, "chat", err)
		return
	}
	response.OK(c, result)
}

func (h *DocQAHandler) History(c *gin.Context) {
	turns, err := h.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "history", err)
		return
	}
	response.OK(c, gin.H{"session_id": c.Param("id"), "turns": turns})
}

func (h *DocQAHandler) Transcript(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	entries, err := h.service.Transcript(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.fail(c, "transcript", err)
		return
	}
	response.OK(c, entries)
}

func (h *DocQAHandler) DeleteSession(c *gin.Context) {
	if err := h.service.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "delete session", err)
		return
	}
	response.OK(c, gin.H{"deleted_session_id": c.Param("id")})
}

// fail maps service errors to the response envelope. Causes of server-side
// failures are logged, never returned.
func (h *DocQAHandler) fail(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, extract.ErrUnsupportedType):
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedType, "unsupported file type, upload a PDF, DOCX or Markdown file")
	case errors.Is(err, app.ErrFileTooLarge):
		response.Error(c, http.StatusBadRequest, response.CodeFileTooLarge, h.tooLargeMessage())
	case errors.Is(err, app.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, "session not found, upload a document first")
	case errors.Is(err, app.ErrTimeout):
		h.logger.Warn(op+" timed out", "path", c.FullPath())
		response.Error(c, http.StatusGatewayTimeout, response.CodeTimeout, "request timed out")
	case errors.Is(err, app.ErrAuditDisabled):
		response.Error(c, http.StatusNotImplemented, response.CodeAuditDisabled, err.Error())
	case errors.Is(err, rag.ErrEmptyDocument):
		response.Error(c, http.StatusInternalServerError, response.CodeEmptyDocument, "document contains no extractable text")
	default:
		h.logger.Error(op+" failed", "path", c.FullPath(), "error", err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, op+" failed")
	}
}

func (h *DocQAHandler) tooLargeMessage() string {
	if h.maxUploadBytes <= 0 {
		return "file too large"
	}
	return fmt.Sprintf("file too large (max %dMB)", h.maxUploadBytes>>20)
}
