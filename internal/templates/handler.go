package templates

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"docflow/approval-engine/internal/approval"
)

type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/templates", h.CreateTemplate)
	r.GET("/templates", h.ListTemplates)
	r.GET("/templates/:id", h.GetTemplate)
	r.DELETE("/templates/:id", h.DeactivateTemplate)
}

func (h *Handler) CreateTemplate(c *gin.Context) {
	var template RouteTemplate
	if err := c.ShouldBindJSON(&template); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.CreateTemplate(c.Request.Context(), &template); err != nil {
		switch {
		case errors.Is(err, ErrNoSteps), errors.Is(err, ErrOutOfOrder), errors.Is(err, ErrMissingOneOf):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			h.logger.Error("create template failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create template"})
		}
		return
	}
	c.JSON(http.StatusCreated, template)
}

func (h *Handler) ListTemplates(c *gin.Context) {
	var documentType *string
	if v := c.Query("document_type"); v != "" {
		documentType = &v
	}

	templates, err := h.service.ListTemplates(c.Request.Context(), documentType)
	if err != nil {
		h.logger.Error("list templates failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list templates"})
		return
	}
	c.JSON(http.StatusOK, templates)
}

func (h *Handler) GetTemplate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template id"})
		return
	}

	template, err := h.service.GetTemplate(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get template failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load template"})
		return
	}
	if template == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
		return
	}
	c.JSON(http.StatusOK, template)
}

func (h *Handler) DeactivateTemplate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template id"})
		return
	}

	if err := h.service.DeactivateTemplate(c.Request.Context(), id); err != nil {
		var notFound *approval.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("deactivate template failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to deactivate template"})
		return
	}
	c.Status(http.StatusNoContent)
}
