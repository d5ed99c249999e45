package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/dmejia/cobranza-api/internal/middleware"
	"github.com/dmejia/cobranza-api/internal/models"
	"github.com/dmejia/cobranza-api/internal/repository"
	"github.com/dmejia/cobranza-api/internal/services"
	"github.com/dmejia/cobranza-api/internal/storage"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
	storage        *storage.LocalStorage
}

func NewPaymentHandler(paymentService *services.PaymentService, storage *storage.LocalStorage) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		storage:        storage,
	}
}

// @Summary List Installments
// @Description Get a paginated list of installments
// @Tags Installments
// @Accept json
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param search_term query string false "Search by client name or document"
// @Param status query string false "Filter by status"
// @Param sale_number query string false "Filter by sale"
// @Param overdue query bool false "Only overdue installments"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /installments [get]
func (h *PaymentHandler) Installments(c *gin.Context) {
	query := repository.NewListQuery()
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	query.Search = c.Query("search_term")
	query.Filters["status"] = c.Query("status")
	query.Filters["sale_number"] = c.Query("sale_number")
	query.Filters["overdue"] = c.Query("overdue")

	installments, total, err := h.paymentService.ListInstallments(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	responses := make([]models.InstallmentResponse, 0, len(installments))
	for _, inst := range installments {
		responses = append(responses, inst.ToResponse(now))
	}

	c.JSON(http.StatusOK, gin.H{
		"installments": responses,
		"pagination": gin.H{
			"page":        query.Page,
			"per_page":    query.PerPage,
			"total":       total,
			"total_pages": (total + int64(query.PerPage) - 1) / int64(query.PerPage),
		},
	})
}

type PreviewRequest struct {
	Amount          float64            `json:"amount" binding:"required"`
	Mode            string             `json:"mode"`
	ManualOverrides map[string]float64 `json:"manual_overrides,omitempty"`
}

// @Summary Preview Distribution
// @Description Compute how a payment would distribute across a client's sales without applying it
// @Tags Payments
// @Accept json
// @Produce json
// @Param document path string true "Client document"
// @Param request body PreviewRequest true "Payment Data"
// @Success 200 {object} services.DistributionResult
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /clients/{document}/distribution/preview [post]
func (h *PaymentHandler) Preview(c *gin.Context) {
	document := c.Param("document")
	var req PreviewRequest
	if err := BindNestedOrFlat(c, "payment", &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Datos de pago inválidos"})
		return
	}
	if req.Mode == "" {
		req.Mode = services.DistributionModeAuto
	}

	result, err := h.paymentService.PreviewDistribution(c.Request.Context(), document, req.Amount, req.Mode, req.ManualOverrides)
	if err != nil {
		h.distributionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"distribution": result})
}

// @Summary Confirm Distribution
// @Description Apply a confirmed payment distribution, or queue it when entered offline
// @Tags Payments
// @Accept json
// @Produce json
// @Param document path string true "Client document"
// @Param request body services.DistributionRequest true "Distribution Data"
// @Success 200 {object} services.ConfirmResult
// @Failure 400 {object} map[string]string
// @Failure 409 {object} services.ConfirmResult
// @Security BearerAuth
// @Router /clients/{document}/distribution [post]
func (h *PaymentHandler) Distribute(c *gin.Context) {
	document := c.Param("document")
	var req services.DistributionRequest
	if err := BindNestedOrFlat(c, "payment", &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Datos de pago inválidos"})
		return
	}
	if req.Mode == "" {
		req.Mode = services.DistributionModeAuto
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = models.PaymentMethodCash
	}

	collectorID := middleware.GetUserID(c)
	result, err := h.paymentService.ConfirmDistribution(c.Request.Context(), document, collectorID, req)
	if err != nil {
		h.distributionError(c, err)
		return
	}

	if result.NeedsConfirmation {
		// Totals do not match the entered amount; the collector must confirm
		c.JSON(http.StatusConflict, result)
		return
	}

	if result.Queued != nil {
		c.JSON(http.StatusAccepted, result)
		return
	}

	c.JSON(http.StatusOK, result)
}

// distributionError maps domain sentinels to HTTP status codes
func (h *PaymentHandler) distributionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrEmptySaleSet),
		errors.Is(err, services.ErrUnknownSale),
		errors.Is(err, services.ErrInvalidOverride):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// @Summary List Payment Records
// @Description Get a paginated list of payment records
// @Tags Payments
// @Accept json
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param client_document query string false "Filter by client"
// @Param collector_id query int false "Filter by collector"
// @Param payment_method query string false "Filter by method"
// @Param start_date query string false "From date (YYYY-MM-DD)"
// @Param end_date query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /payments [get]
func (h *PaymentHandler) Index(c *gin.Context) {
	query := repository.NewListQuery()
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	query.Search = c.Query("search_term")
	query.Filters["client_document"] = c.Query("client_document")
	query.Filters["collector_id"] = c.Query("collector_id")
	query.Filters["payment_method"] = c.Query("payment_method")
	query.Filters["start_date"] = c.Query("start_date")
	query.Filters["end_date"] = c.Query("end_date")

	// Collectors only see their own records
	if !middleware.IsManager(c) {
		query.Filters["collector_id"] = strconv.FormatUint(uint64(middleware.GetUserID(c)), 10)
	}

	records, total, err := h.paymentService.ListRecords(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	responses := make([]models.PaymentRecordResponse, 0, len(records))
	for _, r := range records {
		responses = append(responses, r.ToResponse())
	}

	c.JSON(http.StatusOK, gin.H{
		"payments": responses,
		"pagination": gin.H{
			"page":        query.Page,
			"per_page":    query.PerPage,
			"total":       total,
			"total_pages": (total + int64(query.PerPage) - 1) / int64(query.PerPage),
		},
	})
}

// @Summary Get Payment Record
// @Description Get a payment record by ID
// @Tags Payments
// @Accept json
// @Produce json
// @Param payment_id path int true "Payment ID"
// @Success 200 {object} models.PaymentRecordResponse
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /payments/{payment_id} [get]
func (h *PaymentHandler) Show(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("payment_id"), 10, 32)
	record, err := h.paymentService.FindRecordByID(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Pago no encontrado"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": record.ToResponse()})
}

// @Summary Upload Receipt
// @Description Upload payment receipt image/pdf
// @Tags Payments
// @Accept multipart/form-data
// @Produce json
// @Param payment_id path int true "Payment ID"
// @Param receipt formData file true "Receipt File"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /payments/{payment_id}/receipt [post]
func (h *PaymentHandler) UploadReceipt(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("payment_id"), 10, 32)

	record, err := h.paymentService.FindRecordByID(c.Request.Context(), uint(id))
	if err != nil || record.ID == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Pago no encontrado"})
		return
	}

	// Only the collector who registered the payment or a manager may attach
	if !middleware.IsManager(c) && record.CollectorID != middleware.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "No tienes permiso para subir comprobante a este pago"})
		return
	}

	file, header, err := c.Request.FormFile("receipt")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Archivo requerido"})
		return
	}
	defer file.Close()

	if c.Request.ContentLength > 0 && c.Request.ContentLength > storage.MaxFileSize() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Archivo demasiado grande"})
		return
	}

	if !storage.IsValidContentType(header.Header.Get("Content-Type")) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Tipo de archivo inválido"})
		return
	}

	if _, err := h.paymentService.UploadReceipt(c.Request.Context(), uint(id), file, header); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error al guardar archivo"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Comprobante subido exitosamente"})
}

// @Summary Download Receipt
// @Description Download payment receipt
// @Tags Payments
// @Produce application/octet-stream
// @Param payment_id path int true "Payment ID"
// @Success 200 {file} file "receipt"
// @Security BearerAuth
// @Router /payments/{payment_id}/receipt [get]
func (h *PaymentHandler) DownloadReceipt(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("payment_id"), 10, 32)

	path, err := h.paymentService.ReceiptPath(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Comprobante no encontrado"})
		return
	}

	fullPath, err := h.storage.SafeFullPath(path)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Comprobante no encontrado"})
		return
	}

	c.File(fullPath)
}
