package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/coachdesk/academy-api/internal/dto"
	"github.com/coachdesk/academy-api/internal/models"
	"github.com/coachdesk/academy-api/pkg/config"
	appErrors "github.com/coachdesk/academy-api/pkg/errors"
	"github.com/coachdesk/academy-api/pkg/storage"
)

type paymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	FindByReference(ctx context.Context, reference string) (*models.Payment, error)
	Confirm(ctx context.Context, id, gatewayID string) error
	List(ctx context.Context, page, pageSize int) ([]models.Payment, int, error)
}

// PaymentService records one-off payment intents with their uploaded
// receipt and hands out expiring download links.
type PaymentService struct {
	payments  paymentRepository
	storage   *storage.LocalStorage
	signer    *storage.SignedURLSigner
	cfg       config.PaymentsConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPaymentService constructs the payment service.
func NewPaymentService(payments paymentRepository, store *storage.LocalStorage, signer *storage.SignedURLSigner, cfg config.PaymentsConfig, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{payments: payments, storage: store, signer: signer, cfg: cfg, validator: validate, logger: logger}
}

// InitializePaymentRequest describes the public intake form payload.
type InitializePaymentRequest struct {
	Name   string  `json:"name" validate:"required,min=2"`
	Email  string  `json:"email" validate:"required,email"`
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

// Initialize records a payment intent and stores the uploaded receipt
// under a reference-derived path.
func (s *PaymentService) Initialize(ctx context.Context, req InitializePaymentRequest, receiptName string, receipt io.Reader) (*dto.PaymentInitResponse, error) {
	if !s.cfg.Enabled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "payment intake is disabled")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	if receipt == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "receipt file is required")
	}

	reference, err := newPaymentReference()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate reference")
	}

	ext := strings.ToLower(filepath.Ext(receiptName))
	if ext == "" {
		ext = ".pgn"
	}
	relPath := filepath.Join(reference, "receipt"+ext)
	// Read one byte past the cap so an oversized upload is detected instead
	// of being stored truncated.
	written, err := s.storage.SaveStream(relPath, io.LimitReader(receipt, s.cfg.MaxFileSizeBytes+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store receipt")
	}
	if written > s.cfg.MaxFileSizeBytes {
		if removeErr := s.storage.Delete(relPath); removeErr != nil {
			s.logger.Warn("oversized receipt cleanup failed", zap.String("path", relPath), zap.Error(removeErr))
		}
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("receipt exceeds the maximum size of %d bytes", s.cfg.MaxFileSizeBytes))
	}

	payment := &models.Payment{
		Reference:   reference,
		Name:        strings.TrimSpace(req.Name),
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		Amount:      req.Amount,
		ReceiptPath: relPath,
		Status:      models.PaymentStatusPending,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		if removeErr := s.storage.Delete(relPath); removeErr != nil {
			s.logger.Warn("orphaned receipt cleanup failed", zap.String("path", relPath), zap.Error(removeErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}

	return &dto.PaymentInitResponse{
		PaymentID: payment.ID,
		Reference: payment.Reference,
		Name:      payment.Name,
		Email:     payment.Email,
		Amount:    payment.Amount,
	}, nil
}

// Confirm marks a pending payment completed.
func (s *PaymentService) Confirm(ctx context.Context, reference, gatewayID string) (*models.Payment, error) {
	payment, err := s.payments.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if payment.Status == models.PaymentStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "payment already confirmed")
	}
	if err := s.payments.Confirm(ctx, payment.ID, gatewayID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to confirm payment")
	}
	return s.payments.FindByID(ctx, payment.ID)
}

// Get returns one payment by id.
func (s *PaymentService) Get(ctx context.Context, id string) (*models.Payment, error) {
	payment, err := s.payments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	return payment, nil
}

// List returns payments newest first.
func (s *PaymentService) List(ctx context.Context, page, pageSize int) ([]models.Payment, *models.Pagination, error) {
	payments, total, err := s.payments.List(ctx, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	return payments, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// ReceiptLink issues a signed, expiring download link for a payment's
// stored receipt.
func (s *PaymentService) ReceiptLink(ctx context.Context, id string) (*dto.ReceiptLink, error) {
	payment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(payment.ID, payment.ReceiptPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign receipt link")
	}
	return &dto.ReceiptLink{
		URL:       "/api/v1/payments/receipts/download?token=" + token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// OpenReceipt resolves a signed token back to the stored receipt file.
func (s *PaymentService) OpenReceipt(token string) (string, error) {
	paymentID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired receipt link")
	}
	if paymentID == "" || relPath == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid receipt link")
	}
	return s.storage.Path(relPath), nil
}

func newPaymentReference() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("PAY-%d-%s", time.Now().UnixMilli(), hex.EncodeToString(buf)), nil
}
