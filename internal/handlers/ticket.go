package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/circuit/internal/middleware"
	"github.com/yukikurage/circuit/internal/models"
	"github.com/yukikurage/circuit/internal/services"
)

// TicketHandler serves the tickets nested under a task.
type TicketHandler struct {
	ticketService *services.TicketService
}

func NewTicketHandler(ticketService *services.TicketService) *TicketHandler {
	return &TicketHandler{ticketService: ticketService}
}

func (h *TicketHandler) CreateTicket(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	taskID, _ := middleware.GetTaskID(c)

	type CreateTicketRequest struct {
		IssueTitle   string              `json:"issue_title" binding:"required,notblank,max=255"`
		Description  string              `json:"description"`
		AssignedToID *uint64             `json:"assigned_to_id"`
		Priority     models.Priority     `json:"priority" binding:"omitempty,oneof=low medium high urgent"`
		Status       models.TicketStatus `json:"status" binding:"omitempty,oneof=open in-progress resolved"`
		StartDate    *time.Time          `json:"start_date"`
		DueDate      *time.Time          `json:"due_date"`
		Tag          models.TicketTag    `json:"tag" binding:"omitempty,oneof=bug development other"`
	}

	var req CreateTicketRequest
	if !bindJSON(c, &req) {
		return
	}

	ticket, err := h.ticketService.CreateTicket(c.Request.Context(), caller, taskID, services.CreateTicketInput{
		IssueTitle:   req.IssueTitle,
		Description:  req.Description,
		AssignedToID: req.AssignedToID,
		Priority:     req.Priority,
		Status:       req.Status,
		StartDate:    req.StartDate,
		DueDate:      req.DueDate,
		Tag:          req.Tag,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ticket)
}

func (h *TicketHandler) ListTickets(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	taskID, _ := middleware.GetTaskID(c)

	type ListTicketsQuery struct {
		Status *models.TicketStatus `form:"status" binding:"omitempty,oneof=open in-progress resolved"`
	}

	var query ListTicketsQuery
	if !bindQuery(c, &query) {
		return
	}

	tickets, err := h.ticketService.ListTickets(c.Request.Context(), caller, taskID, query.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}

	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}

func (h *TicketHandler) GetTicket(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	taskID, _ := middleware.GetTaskID(c)
	ticketID, ok := paramID(c, "ticket_id")
	if !ok {
		return
	}

	ticket, err := h.ticketService.GetTicket(c.Request.Context(), caller, taskID, ticketID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ticket)
}

// UpdateTicket patches a ticket. Explicit nulls clear the assignee and the dates.
func (h *TicketHandler) UpdateTicket(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	taskID, _ := middleware.GetTaskID(c)
	ticketID, ok := paramID(c, "ticket_id")
	if !ok {
		return
	}

	type UpdateTicketRequest struct {
		IssueTitle   *string              `json:"issue_title" binding:"omitempty,notblank,max=255"`
		Description  *string              `json:"description"`
		AssignedToID optional[uint64]     `json:"assigned_to_id"`
		Priority     *models.Priority     `json:"priority" binding:"omitempty,oneof=low medium high urgent"`
		Status       *models.TicketStatus `json:"status" binding:"omitempty,oneof=open in-progress resolved"`
		StartDate    optional[time.Time]  `json:"start_date"`
		DueDate      optional[time.Time]  `json:"due_date"`
		Tag          *models.TicketTag    `json:"tag" binding:"omitempty,oneof=bug development other"`
		Resolution   *string              `json:"resolution"`
	}

	var req UpdateTicketRequest
	if !bindJSON(c, &req) {
		return
	}

	ticket, err := h.ticketService.UpdateTicket(c.Request.Context(), caller, taskID, ticketID, services.UpdateTicketInput{
		IssueTitle:     req.IssueTitle,
		Description:    req.Description,
		AssignedToID:   req.AssignedToID.ptr(),
		ClearAssignee:  req.AssignedToID.cleared(),
		Priority:       req.Priority,
		Status:         req.Status,
		StartDate:      req.StartDate.ptr(),
		ClearStartDate: req.StartDate.cleared(),
		DueDate:        req.DueDate.ptr(),
		ClearDueDate:   req.DueDate.cleared(),
		Tag:            req.Tag,
		Resolution:     req.Resolution,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ticket)
}

func (h *TicketHandler) DeleteTicket(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	taskID, _ := middleware.GetTaskID(c)
	ticketID, ok := paramID(c, "ticket_id")
	if !ok {
		return
	}

	if err := h.ticketService.DeleteTicket(c.Request.Context(), caller, taskID, ticketID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *TicketHandler) AddComment(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	taskID, _ := middleware.GetTaskID(c)
	ticketID, ok := paramID(c, "ticket_id")
	if !ok {
		return
	}

	type AddCommentRequest struct {
		Content string `json:"content" binding:"required,notblank"`
	}

	var req AddCommentRequest
	if !bindJSON(c, &req) {
		return
	}

	comment, err := h.ticketService.AddComment(c.Request.Context(), caller, taskID, ticketID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, comment)
}
