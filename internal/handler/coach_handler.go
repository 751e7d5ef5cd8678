package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/coachdesk/academy-api/internal/models"
	"github.com/coachdesk/academy-api/internal/service"
	appErrors "github.com/coachdesk/academy-api/pkg/errors"
	"github.com/coachdesk/academy-api/pkg/response"
)

// CoachHandler exposes coach registry endpoints.
type CoachHandler struct {
	coaches *service.CoachService
}

// NewCoachHandler constructs CoachHandler.
func NewCoachHandler(coaches *service.CoachService) *CoachHandler {
	return &CoachHandler{coaches: coaches}
}

// List godoc
// @Summary List coaches
// @Tags Coaches
// @Produce json
// @Security BearerAuth
// @Param search query string false "Search by name, email or code"
// @Param active query bool false "Filter by active state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /coaches [get]
func (h *CoachHandler) List(c *gin.Context) {
	var filter models.CoachFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Active = boolQuery(c, "active")
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	coaches, pagination, err := h.coaches.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, coaches, pagination)
}

// Get godoc
// @Summary Get coach detail
// @Tags Coaches
// @Produce json
// @Security BearerAuth
// @Param id path string true "Coach ID"
// @Success 200 {object} response.Envelope
// @Router /coaches/{id} [get]
func (h *CoachHandler) Get(c *gin.Context) {
	coach, err := h.coaches.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, coach, nil)
}

// Count godoc
// @Summary Count registered coaches
// @Tags Coaches
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /coaches/count [get]
func (h *CoachHandler) Count(c *gin.Context) {
	count, err := h.coaches.Count(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"count": count}, nil)
}

// Outstanding godoc
// @Summary Get a coach's outstanding salary balance
// @Tags Coaches
// @Produce json
// @Security BearerAuth
// @Param id path string true "Coach ID"
// @Success 200 {object} response.Envelope
// @Router /coaches/{id}/outstanding [get]
func (h *CoachHandler) Outstanding(c *gin.Context) {
	coach, err := h.coaches.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"coach_id":           coach.ID,
		"outstanding_salary": coach.OutstandingSalary,
	}, nil)
}

// Create godoc
// @Summary Register a coach profile
// @Tags Coaches
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateCoachRequest true "Coach payload"
// @Success 201 {object} response.Envelope
// @Router /coaches [post]
func (h *CoachHandler) Create(c *gin.Context) {
	var req service.CreateCoachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	coach, err := h.coaches.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, coach)
}

// Update godoc
// @Summary Update a coach profile
// @Tags Coaches
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Coach ID"
// @Param payload body service.UpdateCoachRequest true "Coach payload"
// @Success 200 {object} response.Envelope
// @Router /coaches/{id} [put]
func (h *CoachHandler) Update(c *gin.Context) {
	var req service.UpdateCoachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	coach, err := h.coaches.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, coach, nil)
}

type setHourlyRateRequest struct {
	HourlyRate float64 `json:"hourly_rate" binding:"required,gte=0"`
}

// SetHourlyRate godoc
// @Summary Update a coach's hourly rate
// @Description The new rate applies to future settlements only; paid settlements keep their recorded amounts.
// @Tags Coaches
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Coach ID"
// @Param payload body setHourlyRateRequest true "Rate payload"
// @Success 200 {object} response.Envelope
// @Router /coaches/{id}/hourly-rate [put]
func (h *CoachHandler) SetHourlyRate(c *gin.Context) {
	var req setHourlyRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	coach, err := h.coaches.SetHourlyRate(c.Request.Context(), c.Param("id"), req.HourlyRate)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, coach, nil)
}

// Deactivate godoc
// @Summary Deactivate a coach
// @Tags Coaches
// @Security BearerAuth
// @Param id path string true "Coach ID"
// @Success 204
// @Router /coaches/{id} [delete]
func (h *CoachHandler) Deactivate(c *gin.Context) {
	if err := h.coaches.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
