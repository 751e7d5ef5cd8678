package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coachdesk/academy-api/internal/models"
	"github.com/coachdesk/academy-api/internal/service"
	appErrors "github.com/coachdesk/academy-api/pkg/errors"
	"github.com/coachdesk/academy-api/pkg/response"
)

// AttendanceHandler exposes attendance intake and history endpoints.
type AttendanceHandler struct {
	attendance *service.AttendanceService
	coaches    *service.CoachService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService, coaches *service.CoachService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance, coaches: coaches}
}

// Mark godoc
// @Summary Mark attendance for a student
// @Description Coaches mark their own students; the coach id is resolved from the token. Admins may supply coach_id explicitly.
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.MarkAttendanceRequest true "Attendance payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Attendance already marked for this student on this date"
// @Router /attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req service.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	claims := claimsFromContext(c)
	if claims != nil && claims.Role == models.RoleCoach {
		coach, err := h.coaches.GetByUserID(c.Request.Context(), claims.UserID)
		if err != nil {
			response.Error(c, err)
			return
		}
		req.CoachID = coach.ID
	}

	record, err := h.attendance.Mark(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// StudentHistory godoc
// @Summary List a student's attendance history
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance/students/{studentId} [get]
func (h *AttendanceHandler) StudentHistory(c *gin.Context) {
	req := service.ListAttendanceRequest{StudentID: c.Param("studentId")}
	req.Page, req.PageSize = pageParams(c)

	if from := c.Query("from"); from != "" {
		parsed, err := time.Parse("2006-01-02", from)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from must use YYYY-MM-DD format"))
			return
		}
		req.DateFrom = &parsed
	}
	if to := c.Query("to"); to != "" {
		parsed, err := time.Parse("2006-01-02", to)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "to must use YYYY-MM-DD format"))
			return
		}
		req.DateTo = &parsed
	}

	records, pagination, err := h.attendance.ListForStudent(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}
