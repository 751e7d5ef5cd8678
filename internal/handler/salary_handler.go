package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coachdesk/academy-api/internal/models"
	"github.com/coachdesk/academy-api/internal/service"
	appErrors "github.com/coachdesk/academy-api/pkg/errors"
	"github.com/coachdesk/academy-api/pkg/response"
)

// SalaryHandler exposes settlement and payroll reporting endpoints.
type SalaryHandler struct {
	settlements *service.SettlementService
	exports     *service.ExportService
}

// NewSalaryHandler constructs SalaryHandler.
func NewSalaryHandler(settlements *service.SettlementService, exports *service.ExportService) *SalaryHandler {
	return &SalaryHandler{settlements: settlements, exports: exports}
}

// Pay godoc
// @Summary Pay a coach's outstanding salary
// @Description Disburses the outstanding balance against the exact unpaid sessions it covers.
// @Tags Salary
// @Produce json
// @Security BearerAuth
// @Param coachId path string true "Coach ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope "No outstanding salary to pay"
// @Router /salary/{coachId}/pay [post]
func (h *SalaryHandler) Pay(c *gin.Context) {
	settlement, err := h.settlements.PaySettlement(c.Request.Context(), c.Param("coachId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if settlement == nil {
		response.JSON(c, http.StatusOK, gin.H{"message": "no unpaid sessions to settle"}, nil)
		return
	}
	response.JSON(c, http.StatusOK, settlement, nil)
}

// PayAll godoc
// @Summary Pay every coach with an outstanding balance
// @Tags Salary
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /salary/pay-all [post]
func (h *SalaryHandler) PayAll(c *gin.Context) {
	result, err := h.settlements.PayAllOutstanding(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Report godoc
// @Summary Monthly salary report for a coach
// @Tags Salary
// @Produce json
// @Security BearerAuth
// @Param coachId path string true "Coach ID"
// @Param month query int false "Month (1-12), defaults to current"
// @Param year query int false "Year, defaults to current"
// @Success 200 {object} response.Envelope
// @Router /salary/{coachId}/report [get]
func (h *SalaryHandler) Report(c *gin.Context) {
	now := time.Now().UTC()
	month, err := strconv.Atoi(c.DefaultQuery("month", strconv.Itoa(int(now.Month()))))
	if err != nil || month < 1 || month > 12 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "month must be between 1 and 12"))
		return
	}
	year, err := strconv.Atoi(c.DefaultQuery("year", strconv.Itoa(now.Year())))
	if err != nil || year < 2000 || year > 2100 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "year is out of range"))
		return
	}

	report, err := h.settlements.SalaryReport(c.Request.Context(), c.Param("coachId"), month, year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// PendingTotal godoc
// @Summary Academy-wide outstanding salary total
// @Tags Salary
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /salary/pending-total [get]
func (h *SalaryHandler) PendingTotal(c *gin.Context) {
	total, err := h.settlements.TotalPendingSalary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, total, nil)
}

// AccrueMonthly godoc
// @Summary Run monthly salary accrual for all active coaches
// @Tags Salary
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /salary/accrue [post]
func (h *SalaryHandler) AccrueMonthly(c *gin.Context) {
	accrued, err := h.settlements.AccrueMonthly(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"accrued": accrued}, nil)
}

// ListSettlements godoc
// @Summary List salary settlements
// @Tags Salary
// @Produce json
// @Security BearerAuth
// @Param coachId query string false "Filter by coach"
// @Param status query string false "Filter by status (pending|paid)"
// @Param month query int false "Filter by month"
// @Param year query int false "Filter by year"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /salary/settlements [get]
func (h *SalaryHandler) ListSettlements(c *gin.Context) {
	filter, err := settlementFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	settlements, pagination, err := h.settlements.ListSettlements(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settlements, pagination)
}

// ExportSettlements godoc
// @Summary Export salary settlements as CSV or PDF
// @Tags Salary
// @Produce octet-stream
// @Security BearerAuth
// @Param format query string true "Export format (csv|pdf)"
// @Param coachId query string false "Filter by coach"
// @Param status query string false "Filter by status (pending|paid)"
// @Param month query int false "Filter by month"
// @Param year query int false "Filter by year"
// @Success 200 {file} binary
// @Router /salary/settlements/export [get]
func (h *SalaryHandler) ExportSettlements(c *gin.Context) {
	filter, err := settlementFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.exports.Settlements(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

func settlementFilterFromQuery(c *gin.Context) (models.SettlementFilter, error) {
	var filter models.SettlementFilter
	filter.CoachID = c.Query("coachId")
	if status := c.Query("status"); status != "" {
		parsed := models.SettlementStatus(status)
		if !parsed.Valid() {
			return filter, appErrors.Clone(appErrors.ErrValidation, "status must be pending or paid")
		}
		filter.Status = &parsed
	}
	if month := c.Query("month"); month != "" {
		parsed, err := strconv.Atoi(month)
		if err != nil || parsed < 1 || parsed > 12 {
			return filter, appErrors.Clone(appErrors.ErrValidation, "month must be between 1 and 12")
		}
		filter.Month = parsed
	}
	if year := c.Query("year"); year != "" {
		parsed, err := strconv.Atoi(year)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "year must be numeric")
		}
		filter.Year = parsed
	}
	filter.Page, filter.PageSize = pageParams(c)
	return filter, nil
}
