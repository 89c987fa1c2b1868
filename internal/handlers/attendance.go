package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/circuit/internal/dto"
	"github.com/yukikurage/circuit/internal/models"
	"github.com/yukikurage/circuit/internal/services"
	"github.com/yukikurage/circuit/internal/utils"
)

// AttendanceHandler serves the daily attendance ledger.
type AttendanceHandler struct {
	attendanceService *services.AttendanceService
}

func NewAttendanceHandler(attendanceService *services.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendanceService: attendanceService}
}

// MarkAttendance records the caller as present today.
func (h *AttendanceHandler) MarkAttendance(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	type MarkAttendanceRequest struct {
		WorkMode models.WorkMode `json:"work_mode" binding:"required,oneof=office wfh"`
	}

	var req MarkAttendanceRequest
	if !bindJSON(c, &req) {
		return
	}

	record, err := h.attendanceService.MarkAttendance(c.Request.Context(), caller, req.WorkMode)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

func (h *AttendanceHandler) TodayAttendance(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	record, err := h.attendanceService.TodayAttendance(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// DecideAttendance approves or rejects a pending record.
func (h *AttendanceHandler) DecideAttendance(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	type DecideAttendanceRequest struct {
		Action services.AttendanceAction `json:"action" binding:"required,oneof=approve reject"`
	}

	var req DecideAttendanceRequest
	if !bindJSON(c, &req) {
		return
	}

	record, err := h.attendanceService.DecideAttendance(c.Request.Context(), caller, c.Param("id"), req.Action)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// QueryAttendance returns the attendance report scoped to the caller's role.
func (h *AttendanceHandler) QueryAttendance(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	type QueryAttendanceQuery struct {
		UserID         *uint64                  `form:"user_id"`
		From           string                   `form:"from" binding:"omitempty,datetime=2006-01-02"`
		To             string                   `form:"to" binding:"omitempty,datetime=2006-01-02"`
		Status         *models.AttendanceStatus `form:"status" binding:"omitempty,oneof=present absent pending"`
		ApprovalStatus *models.ApprovalStatus   `form:"approval_status" binding:"omitempty,oneof=pending approved rejected"`
	}

	var query QueryAttendanceQuery
	if !bindQuery(c, &query) {
		return
	}
	params := utils.GetPaginationParams(c)

	records, total, err := h.attendanceService.QueryAttendance(c.Request.Context(), caller, services.QueryAttendanceInput{
		UserID:         query.UserID,
		From:           query.From,
		To:             query.To,
		Status:         query.Status,
		ApprovalStatus: query.ApprovalStatus,
		Page:           params.Page,
		PageSize:       params.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToAttendanceListResponse(records, params.Page, params.Limit, total))
}
