package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/adrecon/backend/internal/domain/workflow"
	"github.com/adrecon/backend/internal/interfaces/http/dto"
)

// ExecutionService is the execution control surface the handlers drive
type ExecutionService interface {
	TriggerManual(ctx context.Context, tenantID, workflowID uuid.UUID) (*workflow.Execution, error)
	Cancel(ctx context.Context, tenantID, executionID uuid.UUID) (*workflow.Execution, error)
	Execution(ctx context.Context, tenantID, executionID uuid.UUID) (*workflow.Execution, error)
	Progress(ctx context.Context, tenantID, executionID uuid.UUID) (*workflow.ProgressSnapshot, error)
}

// ExecutionHandler handles workflow execution endpoints
type ExecutionHandler struct {
	BaseHandler
	service ExecutionService
}

// NewExecutionHandler creates a new ExecutionHandler
func NewExecutionHandler(service ExecutionService) *ExecutionHandler {
	return &ExecutionHandler{service: service}
}

// Trigger starts a manual execution of a workflow.
// POST /workflows/:id/executions
func (h *ExecutionHandler) Trigger(c *gin.Context) {
	workflowID, ok := pathID(c)
	if !ok {
		h.BadRequest(c, "Invalid workflow ID format")
		return
	}

	exec, err := h.service.TriggerManual(c.Request.Context(), tenantID(c), workflowID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, dto.ToExecutionResponse(exec))
}

// Cancel requests cancellation of a pending or running execution.
// POST /executions/:id/cancel
func (h *ExecutionHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		h.BadRequest(c, "Invalid execution ID format")
		return
	}

	exec, err := h.service.Cancel(c.Request.Context(), tenantID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToExecutionResponse(exec))
}

// Get returns an execution.
// GET /executions/:id
func (h *ExecutionHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		h.BadRequest(c, "Invalid execution ID format")
		return
	}

	exec, err := h.service.Execution(c.Request.Context(), tenantID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToExecutionResponse(exec))
}

// Progress returns the live progress of an execution.
// GET /executions/:id/progress
func (h *ExecutionHandler) Progress(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		h.BadRequest(c, "Invalid execution ID format")
		return
	}

	snap, err := h.service.Progress(c.Request.Context(), tenantID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToProgressResponse(snap))
}
