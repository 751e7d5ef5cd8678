package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coachdesk/academy-api/internal/models"
	appErrors "github.com/coachdesk/academy-api/pkg/errors"
	"github.com/coachdesk/academy-api/pkg/export"
)

// ExportFormat selects the rendered output type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult carries rendered bytes together with transport metadata.
type ExportResult struct {
	ContentType string
	Filename    string
	Data        []byte
}

// ExportService renders settlement ledgers as downloadable files.
type ExportService struct {
	settlements *SettlementService
	coaches     *CoachService
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	logger      *zap.Logger
}

// NewExportService constructs the export service.
func NewExportService(settlements *SettlementService, coaches *CoachService, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		settlements: settlements,
		coaches:     coaches,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		logger:      logger,
	}
}

// Settlements renders the settlement ledger matching the filter.
func (s *ExportService) Settlements(ctx context.Context, filter models.SettlementFilter, format ExportFormat) (*ExportResult, error) {
	filter.Page = 1
	filter.PageSize = 200
	settlements, _, err := s.settlements.ListSettlements(ctx, filter)
	if err != nil {
		return nil, err
	}

	names := map[string]string{}
	for _, st := range settlements {
		if _, ok := names[st.CoachID]; ok {
			continue
		}
		coach, err := s.coaches.Get(ctx, st.CoachID)
		if err != nil {
			names[st.CoachID] = st.CoachID
			continue
		}
		names[st.CoachID] = coach.FullName
	}

	data := export.Dataset{
		Headers: []string{"Coach", "Month", "Year", "Amount", "Status", "Payment Date", "Sessions Paid"},
	}
	for _, st := range settlements {
		paymentDate := ""
		if st.PaymentDate != nil {
			paymentDate = st.PaymentDate.UTC().Format("2006-01-02")
		}
		data.Rows = append(data.Rows, map[string]string{
			"Coach":         names[st.CoachID],
			"Month":         strconv.Itoa(st.Month),
			"Year":          strconv.Itoa(st.Year),
			"Amount":        fmt.Sprintf("%.2f", Round2(st.Amount)),
			"Status":        string(st.Status),
			"Payment Date":  paymentDate,
			"Sessions Paid": strconv.Itoa(len(st.PaidSessions)),
		})
	}

	stamp := time.Now().UTC().Format("20060102")
	switch format {
	case ExportFormatCSV:
		rendered, err := s.csv.Render(data)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{
			ContentType: "text/csv",
			Filename:    fmt.Sprintf("settlements-%s.csv", stamp),
			Data:        rendered,
		}, nil
	case ExportFormatPDF:
		rendered, err := s.pdf.Render(data, "Salary Settlements")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{
			ContentType: "application/pdf",
			Filename:    fmt.Sprintf("settlements-%s.pdf", stamp),
			Data:        rendered,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf, got "+strings.ToLower(string(format)))
	}
}
