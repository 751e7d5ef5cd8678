package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coachdesk/academy-api/internal/models"
	appErrors "github.com/coachdesk/academy-api/pkg/errors"
)

// fakeCoachRegistry wraps the ledger's coach store so the export service
// can resolve display names through a full CoachService.
type fakeCoachRegistry struct {
	*fakeLedger
}

func (f *fakeCoachRegistry) List(_ context.Context, _ models.CoachFilter) ([]models.Coach, int, error) {
	return nil, 0, nil
}

func (f *fakeCoachRegistry) FindByUserID(_ context.Context, _ string) (*models.Coach, error) {
	return nil, errNoRows()
}

func (f *fakeCoachRegistry) Create(_ context.Context, _ *models.Coach) error { return nil }

func (f *fakeCoachRegistry) Update(_ context.Context, _ *models.Coach) error { return nil }

func (f *fakeCoachRegistry) SetHourlyRate(_ context.Context, _ string, _ float64) error {
	return nil
}

func (f *fakeCoachRegistry) Count(_ context.Context) (int, error) { return 0, nil }

func (f *fakeCoachRegistry) Deactivate(_ context.Context, _ string) error { return nil }

func (f *fakeCoachRegistry) NextCode(_ context.Context) (string, error) { return "COA0001", nil }

func newExportService(ledger *fakeLedger) *ExportService {
	settlements := newSettlementService(ledger)
	coaches := NewCoachService(&fakeCoachRegistry{fakeLedger: ledger}, nil, nil, zap.NewNop())
	return NewExportService(settlements, coaches, zap.NewNop())
}

func settleOneCoach(t *testing.T, ledger *fakeLedger) {
	t.Helper()
	ledger.addCoach("coach-1", 1500, 1500)
	ledger.addPresent("att-1", "coach-1", day(2026, time.March, 3), 60)
	_, err := newSettlementService(ledger).PaySettlement(context.Background(), "coach-1")
	require.NoError(t, err)
}

func TestExportSettlementsCSV(t *testing.T) {
	ledger := newFakeLedger()
	settleOneCoach(t, ledger)
	svc := newExportService(ledger)

	result, err := svc.Settlements(context.Background(), models.SettlementFilter{}, ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.Contains(t, result.Filename, ".csv")

	body := string(result.Data)
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Coach,Month,Year,Amount,Status,Payment Date,Sessions Paid", strings.TrimSpace(lines[0]))
	assert.Contains(t, lines[1], "Coach coach-1")
	assert.Contains(t, lines[1], "1500.00")
	assert.Contains(t, lines[1], string(models.SettlementStatusPaid))
	assert.Contains(t, lines[1], ",1")
}

func TestExportSettlementsPDF(t *testing.T) {
	ledger := newFakeLedger()
	settleOneCoach(t, ledger)
	svc := newExportService(ledger)

	result, err := svc.Settlements(context.Background(), models.SettlementFilter{}, ExportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.Contains(t, result.Filename, ".pdf")
	assert.True(t, strings.HasPrefix(string(result.Data), "%PDF"))
}

func TestExportSettlementsUnknownFormat(t *testing.T) {
	svc := newExportService(newFakeLedger())

	_, err := svc.Settlements(context.Background(), models.SettlementFilter{}, ExportFormat("xlsx"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportSettlementsEmptyLedger(t *testing.T) {
	svc := newExportService(newFakeLedger())

	result, err := svc.Settlements(context.Background(), models.SettlementFilter{}, ExportFormatCSV)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(result.Data)), "\n")
	assert.Len(t, lines, 1)
}
