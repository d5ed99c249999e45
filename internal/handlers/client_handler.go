package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/dmejia/cobranza-api/internal/models"
	"github.com/dmejia/cobranza-api/internal/services"
)

// ClientHandler serves the per-client views the collection dashboard is
// built on. Clients are addressed by their identity document, which is how
// installments arrive from the import side.
type ClientHandler struct {
	paymentService *services.PaymentService
}

func NewClientHandler(paymentService *services.PaymentService) *ClientHandler {
	return &ClientHandler{paymentService: paymentService}
}

// @Summary Client Balance
// @Description Get the derived balance per sale for a client
// @Tags Clients
// @Accept json
// @Produce json
// @Param document path string true "Client document"
// @Success 200 {object} services.ClientBalance
// @Security BearerAuth
// @Router /clients/{document}/balance [get]
func (h *ClientHandler) Balance(c *gin.Context) {
	document := c.Param("document")
	balance, err := h.paymentService.GetClientBalance(c.Request.Context(), document)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error al calcular el balance"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

// @Summary Client Installments
// @Description List a client's installments grouped by sale order
// @Tags Clients
// @Accept json
// @Produce json
// @Param document path string true "Client document"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /clients/{document}/installments [get]
func (h *ClientHandler) Installments(c *gin.Context) {
	document := c.Param("document")
	installments, err := h.paymentService.ListClientInstallments(c.Request.Context(), document)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error al obtener cuotas"})
		return
	}

	now := time.Now()
	responses := make([]models.InstallmentResponse, 0, len(installments))
	for _, inst := range installments {
		responses = append(responses, inst.ToResponse(now))
	}
	c.JSON(http.StatusOK, gin.H{"installments": responses})
}

// @Summary Client Payment History
// @Description List a client's payment records, newest first
// @Tags Clients
// @Accept json
// @Produce json
// @Param document path string true "Client document"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /clients/{document}/payments [get]
func (h *ClientHandler) Payments(c *gin.Context) {
	document := c.Param("document")
	records, err := h.paymentService.FindRecordsByClient(c.Request.Context(), document)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error al obtener pagos"})
		return
	}

	responses := make([]models.PaymentRecordResponse, 0, len(records))
	for _, r := range records {
		responses = append(responses, r.ToResponse())
	}
	c.JSON(http.StatusOK, gin.H{"payments": responses})
}
