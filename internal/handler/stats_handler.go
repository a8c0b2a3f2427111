package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-portal-api/internal/service"
	"github.com/noah-isme/campus-portal-api/pkg/response"
)

// StatsHandler exposes aggregate statistics endpoints.
type StatsHandler struct {
	stats *service.StatsService
}

// NewStatsHandler constructs StatsHandler.
func NewStatsHandler(stats *service.StatsService) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// StudentGradeStats godoc
// @Summary Grade summary for one student
// @Tags Statistics
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /stats/students/{studentId}/grades [get]
func (h *StatsHandler) StudentGradeStats(c *gin.Context) {
	stats, err := h.stats.StudentGradeStats(c.Request.Context(), actorFromContext(c), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// EnrollmentStatistics godoc
// @Summary Enrollment aggregates by status and course
// @Tags Statistics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /stats/enrollments [get]
func (h *StatsHandler) EnrollmentStatistics(c *gin.Context) {
	stats, err := h.stats.EnrollmentStatistics(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// UserStatistics godoc
// @Summary User aggregates by role and department
// @Tags Statistics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /stats/users [get]
func (h *StatsHandler) UserStatistics(c *gin.Context) {
	stats, err := h.stats.UserStatistics(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
