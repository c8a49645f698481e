package directory

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"docflow/approval-engine/internal/approval"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/delegations", h.CreateDelegation)
	r.GET("/users/:userId/delegations", h.ListDelegations)
	r.DELETE("/delegations/:id", h.RevokeDelegation)
}

func (h *Handler) CreateDelegation(c *gin.Context) {
	var payload Delegation
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.CreateDelegation(c.Request.Context(), &payload); err != nil {
		switch {
		case errors.Is(err, ErrSelfDelegation), errors.Is(err, ErrInvalidWindow), errors.Is(err, ErrUnknownDelegate):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, payload)
}

func (h *Handler) ListDelegations(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	delegations, err := h.service.ListDelegations(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, delegations)
}

func (h *Handler) RevokeDelegation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delegation id"})
		return
	}

	if err := h.service.RevokeDelegation(c.Request.Context(), id); err != nil {
		var notFound *approval.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}
