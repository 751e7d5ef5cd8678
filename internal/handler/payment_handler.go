package handler

import (
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/coachdesk/academy-api/internal/service"
	appErrors "github.com/coachdesk/academy-api/pkg/errors"
	"github.com/coachdesk/academy-api/pkg/response"
)

// PaymentHandler exposes the public payment intake and admin review
// endpoints.
type PaymentHandler struct {
	payments *service.PaymentService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Initialize godoc
// @Summary Submit a payment intent with a receipt upload
// @Tags Payments
// @Accept mpfd
// @Produce json
// @Param name formData string true "Payer name"
// @Param email formData string true "Payer email"
// @Param amount formData number true "Amount"
// @Param receipt formData file true "Receipt file"
// @Success 201 {object} response.Envelope
// @Router /payments [post]
func (h *PaymentHandler) Initialize(c *gin.Context) {
	amount, err := strconv.ParseFloat(c.PostForm("amount"), 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "amount must be numeric"))
		return
	}
	req := service.InitializePaymentRequest{
		Name:   c.PostForm("name"),
		Email:  c.PostForm("email"),
		Amount: amount,
	}

	fileHeader, err := c.FormFile("receipt")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "receipt file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read receipt"))
		return
	}
	defer file.Close()

	result, err := h.payments.Initialize(c.Request.Context(), req, fileHeader.Filename, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

type confirmPaymentRequest struct {
	Reference string `json:"reference" binding:"required"`
	GatewayID string `json:"gateway_id" binding:"required"`
}

// Confirm godoc
// @Summary Confirm a pending payment
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body confirmPaymentRequest true "Confirmation payload"
// @Success 200 {object} response.Envelope
// @Router /payments/confirm [post]
func (h *PaymentHandler) Confirm(c *gin.Context) {
	var req confirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	payment, err := h.payments.Confirm(c.Request.Context(), req.Reference, req.GatewayID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// List godoc
// @Summary List payments
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /payments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	page, size := pageParams(c)
	payments, pagination, err := h.payments.List(c.Request.Context(), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, pagination)
}

// Get godoc
// @Summary Get payment detail
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Router /payments/{id} [get]
func (h *PaymentHandler) Get(c *gin.Context) {
	payment, err := h.payments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// ReceiptLink godoc
// @Summary Issue a signed receipt download link
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Router /payments/{id}/receipt-link [get]
func (h *PaymentHandler) ReceiptLink(c *gin.Context) {
	link, err := h.payments.ReceiptLink(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// DownloadReceipt godoc
// @Summary Download a receipt via a signed link
// @Tags Payments
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /payments/receipts/download [get]
func (h *PaymentHandler) DownloadReceipt(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	path, err := h.payments.OpenReceipt(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.FileAttachment(path, "receipt"+filepath.Ext(path))
}
