package service

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coachdesk/academy-api/internal/models"
	"github.com/coachdesk/academy-api/pkg/config"
	appErrors "github.com/coachdesk/academy-api/pkg/errors"
	"github.com/coachdesk/academy-api/pkg/storage"
)

type fakePaymentRepo struct {
	payments map[string]*models.Payment
	nextID   int
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: make(map[string]*models.Payment)}
}

func (f *fakePaymentRepo) Create(_ context.Context, payment *models.Payment) error {
	f.nextID++
	payment.ID = fmt.Sprintf("pay-%d", f.nextID)
	f.payments[payment.ID] = payment
	return nil
}

func (f *fakePaymentRepo) FindByID(_ context.Context, id string) (*models.Payment, error) {
	payment, ok := f.payments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return payment, nil
}

func (f *fakePaymentRepo) FindByReference(_ context.Context, reference string) (*models.Payment, error) {
	for _, payment := range f.payments {
		if payment.Reference == reference {
			return payment, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakePaymentRepo) Confirm(_ context.Context, id, gatewayID string) error {
	payment, ok := f.payments[id]
	if !ok {
		return sql.ErrNoRows
	}
	payment.Status = models.PaymentStatusCompleted
	payment.GatewayID = &gatewayID
	return nil
}

func (f *fakePaymentRepo) List(_ context.Context, _, _ int) ([]models.Payment, int, error) {
	var out []models.Payment
	for _, payment := range f.payments {
		out = append(out, *payment)
	}
	return out, len(out), nil
}

func newPaymentService(t *testing.T, maxBytes int64) (*PaymentService, *fakePaymentRepo, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	repo := newFakePaymentRepo()
	cfg := config.PaymentsConfig{Enabled: true, MaxFileSizeBytes: maxBytes}
	return NewPaymentService(repo, store, signer, cfg, nil, zap.NewNop()), repo, store
}

func validPaymentRequest() InitializePaymentRequest {
	return InitializePaymentRequest{Name: "Ada Parent", Email: "ada@example.com", Amount: 2500}
}

func TestInitializePaymentStoresReceipt(t *testing.T) {
	svc, repo, store := newPaymentService(t, 64)

	receipt := bytes.NewReader([]byte("receipt-contents"))
	result, err := svc.Initialize(context.Background(), validPaymentRequest(), "game.pgn", receipt)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.Reference, "PAY-"))

	stored := repo.payments[result.PaymentID]
	require.NotNil(t, stored)
	data, err := os.ReadFile(store.Path(stored.ReceiptPath))
	require.NoError(t, err)
	assert.Equal(t, "receipt-contents", string(data))
}

func TestInitializePaymentRejectsOversizedReceipt(t *testing.T) {
	svc, repo, store := newPaymentService(t, 16)

	receipt := bytes.NewReader(bytes.Repeat([]byte("x"), 1024))
	_, err := svc.Initialize(context.Background(), validPaymentRequest(), "game.pgn", receipt)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "maximum size")

	// Nothing recorded and no truncated file left behind.
	assert.Empty(t, repo.payments)
	entries, err := os.ReadDir(store.Path(""))
	require.NoError(t, err)
	for _, entry := range entries {
		sub, err := os.ReadDir(store.Path(entry.Name()))
		require.NoError(t, err)
		assert.Empty(t, sub)
	}
}

func TestInitializePaymentAcceptsExactCap(t *testing.T) {
	svc, _, _ := newPaymentService(t, 16)

	receipt := bytes.NewReader(bytes.Repeat([]byte("x"), 16))
	_, err := svc.Initialize(context.Background(), validPaymentRequest(), "game.pgn", receipt)
	require.NoError(t, err)
}

func TestInitializePaymentDisabled(t *testing.T) {
	svc, _, _ := newPaymentService(t, 64)
	svc.cfg.Enabled = false

	_, err := svc.Initialize(context.Background(), validPaymentRequest(), "game.pgn", bytes.NewReader([]byte("x")))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestConfirmPaymentAlreadyCompleted(t *testing.T) {
	svc, repo, _ := newPaymentService(t, 64)

	result, err := svc.Initialize(context.Background(), validPaymentRequest(), "game.pgn", bytes.NewReader([]byte("x")))
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), result.Reference, "gw-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, repo.payments[result.PaymentID].Status)

	_, err = svc.Confirm(context.Background(), result.Reference, "gw-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
