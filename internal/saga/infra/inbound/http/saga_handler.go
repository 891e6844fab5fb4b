package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	sagaApp "github.com/davicafu/sagalab/internal/saga/application"
	sagaDomain "github.com/davicafu/sagalab/internal/saga/domain"
)

// SagaHandler encapsula los endpoints HTTP relacionados con el orquestador
type SagaHandler struct {
	orchestrator *sagaApp.Orchestrator
}

// NewSagaHandler crea un nuevo SagaHandler
func NewSagaHandler(orchestrator *sagaApp.Orchestrator) *SagaHandler {
	return &SagaHandler{orchestrator: orchestrator}
}

// ---------------- Handlers ----------------

// StartSaga endpoint POST /sagas/:id/start
func (h *SagaHandler) StartSaga(c *gin.Context) {
	sagaID := c.Param("id")

	var req struct {
		Context map[string]interface{} `json:"context"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	instanceID, err := h.orchestrator.StartSaga(c.Request.Context(), sagaID, sagaDomain.Context(req.Context))
	if err != nil {
		if errors.Is(err, sagaDomain.ErrUnknownSaga) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"instance_id": instanceID})
}

// GetSagaStatus endpoint GET /sagas/instances/:id
func (h *SagaHandler) GetSagaStatus(c *gin.Context) {
	instanceID := c.Param("id")

	instance, err := h.orchestrator.GetSagaStatus(instanceID)
	if err != nil {
		if errors.Is(err, sagaDomain.ErrInstanceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "saga instance not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, instance)
}

// CompensateSaga endpoint POST /sagas/instances/:id/compensate
func (h *SagaHandler) CompensateSaga(c *gin.Context) {
	instanceID := c.Param("id")

	err := h.orchestrator.CompensateSaga(c.Request.Context(), instanceID)
	if err != nil {
		switch {
		case errors.Is(err, sagaDomain.ErrInstanceNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "saga instance not found"})
		case errors.Is(err, sagaDomain.ErrNotCompensatable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "compensated"})
}
