package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/dmejia/cobranza-api/internal/models"
	"github.com/dmejia/cobranza-api/internal/services"
)

// SyncHandler exposes the offline replay queue: inspecting queued actions,
// forcing a drain, and clearing abandoned garbage.
type SyncHandler struct {
	syncService *services.SyncService
}

func NewSyncHandler(syncService *services.SyncService) *SyncHandler {
	return &SyncHandler{syncService: syncService}
}

// @Summary List Queued Actions
// @Description List offline actions waiting for replay, oldest first
// @Tags Sync
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /sync/queue [get]
func (h *SyncHandler) Index(c *gin.Context) {
	actions, err := h.syncService.QueueEntries(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	responses := make([]models.OfflineActionResponse, 0, len(actions))
	for _, a := range actions {
		responses = append(responses, a.ToResponse())
	}

	c.JSON(http.StatusOK, gin.H{"queue": responses, "count": len(responses)})
}

// @Summary Process Queue
// @Description Replay all queued offline actions against current state
// @Tags Sync
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /sync/process [post]
func (h *SyncHandler) Process(c *gin.Context) {
	if err := h.syncService.ProcessQueue(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cola procesada"})
}

// @Summary Clear Queue
// @Description Remove every queued offline action without replaying it
// @Tags Sync
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /sync/queue [delete]
func (h *SyncHandler) Clear(c *gin.Context) {
	if err := h.syncService.ClearQueue(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cola vaciada"})
}
