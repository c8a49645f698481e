package approval

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler exposes the engine over HTTP
type Handler struct {
	engine *Engine
	logger *zap.Logger
}

func NewHandler(engine *Engine, logger *zap.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// RegisterRoutes registers approval workflow routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	workflows := router.Group("/workflows")
	{
		workflows.POST("", h.startWorkflow)
		workflows.GET("/:lineId", h.getState)
		workflows.GET("/:lineId/progress", h.getProgress)
	}

	router.POST("/steps/:stepId/actions", h.act)
	router.POST("/documents/:documentId/resubmit", h.resubmit)
	router.GET("/delegations/resolve", h.resolve)
}

// StartWorkflowRequest carries a new line and its steps
type StartWorkflowRequest struct {
	Line  ApprovalLine   `json:"line" binding:"required"`
	Steps []ApprovalStep `json:"steps" binding:"required"`
}

// startWorkflow handles POST /api/v1/workflows
func (h *Handler) startWorkflow(c *gin.Context) {
	var req StartWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, err := h.engine.Start(c.Request.Context(), req.Line, req.Steps)
	if err != nil {
		h.respondError(c, err, "start workflow")
		return
	}
	c.JSON(http.StatusCreated, state)
}

// act handles POST /api/v1/steps/:stepId/actions
func (h *Handler) act(c *gin.Context) {
	stepID, err := uuid.Parse(c.Param("stepId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid step id"})
		return
	}

	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.StepID = stepID
	if req.At.IsZero() {
		req.At = time.Now()
	}

	state, err := h.engine.Act(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err, "apply action")
		return
	}
	c.JSON(http.StatusOK, state)
}

// resubmit handles POST /api/v1/documents/:documentId/resubmit
func (h *Handler) resubmit(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("documentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return
	}

	var req StartWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, err := h.engine.Resubmit(c.Request.Context(), documentID, req.Line, req.Steps)
	if err != nil {
		h.respondError(c, err, "resubmit workflow")
		return
	}
	c.JSON(http.StatusCreated, state)
}

// getState handles GET /api/v1/workflows/:lineId
func (h *Handler) getState(c *gin.Context) {
	lineID, err := uuid.Parse(c.Param("lineId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid line id"})
		return
	}

	state, err := h.engine.State(c.Request.Context(), lineID)
	if err != nil {
		h.respondError(c, err, "load workflow state")
		return
	}
	c.JSON(http.StatusOK, state)
}

// getProgress handles GET /api/v1/workflows/:lineId/progress
func (h *Handler) getProgress(c *gin.Context) {
	lineID, err := uuid.Parse(c.Param("lineId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid line id"})
		return
	}

	state, err := h.engine.State(c.Request.Context(), lineID)
	if err != nil {
		h.respondError(c, err, "load workflow state")
		return
	}
	c.JSON(http.StatusOK, Project(state, time.Now()))
}

// resolve handles GET /api/v1/delegations/resolve?user_id=...&at=...
func (h *Handler) resolve(c *gin.Context) {
	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}
	at := time.Now()
	if raw := c.Query("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "at must be RFC3339"})
			return
		}
		at = parsed
	}

	effective, chain, err := h.engine.Resolve(c.Request.Context(), userID, at)
	if err != nil {
		h.respondError(c, err, "resolve delegation")
		return
	}
	c.JSON(http.StatusOK, gin.H{"effective_user_id": effective, "chain": chain})
}

// respondError maps the typed error taxonomy to HTTP statuses. Expected
// user-facing conditions stay distinguishable from infrastructure failures.
func (h *Handler) respondError(c *gin.Context, err error, op string) {
	var (
		structural    *StructuralError
		notFound      *NotFoundError
		notActionable *NotActionableError
		notAuthorized *NotAuthorizedError
		cycle         *DelegationCycleError
		depth         *DelegationDepthError
		contention    *ConcurrencyError
		persistence   *PersistenceError
	)

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &notActionable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &notAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.As(err, &structural), errors.As(err, &cycle), errors.As(err, &depth):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.As(err, &contention):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.As(err, &persistence):
		h.logger.Error("store failure", zap.String("op", op), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persistence failure"})
	default:
		h.logger.Error("unexpected failure", zap.String("op", op), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
