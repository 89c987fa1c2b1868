package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yukikurage/circuit/internal/models"
	"github.com/yukikurage/circuit/internal/notify"
	"github.com/yukikurage/circuit/internal/repository"
	"gorm.io/gorm"
)

var ErrTicketNotFound = errors.New("ticket not found")

// TicketService manages the tickets owned by a task. Tickets are always addressed
// through their task, so a ticket id from another task is not found.
type TicketService struct {
	ticketRepo  repository.TicketRepository
	taskRepo    repository.TaskRepository
	projectRepo repository.ProjectRepository
	dispatcher  *notify.Dispatcher
}

func NewTicketService(
	ticketRepo repository.TicketRepository,
	taskRepo repository.TaskRepository,
	projectRepo repository.ProjectRepository,
	dispatcher *notify.Dispatcher,
) *TicketService {
	return &TicketService{
		ticketRepo:  ticketRepo,
		taskRepo:    taskRepo,
		projectRepo: projectRepo,
		dispatcher:  dispatcher,
	}
}

type CreateTicketInput struct {
	IssueTitle   string
	Description  string
	AssignedToID *uint64
	Priority     models.Priority
	Status       models.TicketStatus
	StartDate    *time.Time
	DueDate      *time.Time
	Tag          models.TicketTag
}

type UpdateTicketInput struct {
	IssueTitle     *string
	Description    *string
	AssignedToID   *uint64
	ClearAssignee  bool
	Priority       *models.Priority
	Status         *models.TicketStatus
	StartDate      *time.Time
	ClearStartDate bool
	DueDate        *time.Time
	ClearDueDate   bool
	Tag            *models.TicketTag
	Resolution     *string
}

// CreateTicket opens a ticket on a task. Managers and admins only.
func (s *TicketService) CreateTicket(ctx context.Context, caller Caller, taskID uint64, input CreateTicketInput) (*models.Ticket, error) {
	if !caller.IsStaff() {
		return nil, ErrForbidden
	}
	task, err := s.loadTask(ctx, caller, taskID)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.IssueTitle)
	if title == "" {
		return nil, invalid("issue_title", "issue title is required")
	}

	ticket := &models.Ticket{
		TaskID:       task.ID,
		IssueTitle:   title,
		Description:  strings.TrimSpace(input.Description),
		AssignedToID: input.AssignedToID,
		Priority:     input.Priority,
		Status:       input.Status,
		StartDate:    input.StartDate,
		DueDate:      input.DueDate,
		Tag:          input.Tag,
		CreatedByID:  caller.ID,
	}
	if ticket.Priority == "" {
		ticket.Priority = models.PriorityMedium
	}
	if ticket.Status == "" {
		ticket.Status = models.TicketOpen
	}
	if ticket.Tag == "" {
		ticket.Tag = models.TagOther
	}
	if err := s.validate(ctx, task, ticket); err != nil {
		return nil, err
	}

	if err := s.ticketRepo.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}

	s.notify(ctx, caller, notify.KindTicketCreated, task, ticket)

	return ticket, nil
}

// ListTickets returns the tickets of a task to staff and to the task's assignees.
func (s *TicketService) ListTickets(ctx context.Context, caller Caller, taskID uint64, status *models.TicketStatus) ([]models.Ticket, error) {
	if _, err := s.loadTask(ctx, caller, taskID); err != nil {
		return nil, err
	}

	tickets, err := s.ticketRepo.ListByTask(ctx, taskID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

// GetTicket returns one ticket with its comments.
func (s *TicketService) GetTicket(ctx context.Context, caller Caller, taskID, ticketID uint64) (*models.Ticket, error) {
	if _, err := s.loadTask(ctx, caller, taskID); err != nil {
		return nil, err
	}
	return s.find(ctx, taskID, ticketID)
}

// UpdateTicket applies a partial update. Managers and admins only.
func (s *TicketService) UpdateTicket(ctx context.Context, caller Caller, taskID, ticketID uint64, input UpdateTicketInput) (*models.Ticket, error) {
	if !caller.IsStaff() {
		return nil, ErrForbidden
	}
	task, err := s.loadTask(ctx, caller, taskID)
	if err != nil {
		return nil, err
	}
	ticket, err := s.find(ctx, taskID, ticketID)
	if err != nil {
		return nil, err
	}

	if input.IssueTitle != nil {
		title := strings.TrimSpace(*input.IssueTitle)
		if title == "" {
			return nil, invalid("issue_title", "issue title cannot be empty")
		}
		ticket.IssueTitle = title
	}
	if input.Description != nil {
		ticket.Description = strings.TrimSpace(*input.Description)
	}
	if input.ClearAssignee {
		ticket.AssignedToID = nil
	} else if input.AssignedToID != nil {
		ticket.AssignedToID = input.AssignedToID
	}
	if input.Priority != nil {
		ticket.Priority = *input.Priority
	}
	if input.Status != nil {
		ticket.Status = *input.Status
	}
	if input.ClearStartDate {
		ticket.StartDate = nil
	} else if input.StartDate != nil {
		ticket.StartDate = input.StartDate
	}
	if input.ClearDueDate {
		ticket.DueDate = nil
	} else if input.DueDate != nil {
		ticket.DueDate = input.DueDate
	}
	if input.Tag != nil {
		ticket.Tag = *input.Tag
	}
	if input.Resolution != nil {
		ticket.Resolution = strings.TrimSpace(*input.Resolution)
	}
	if err := s.validate(ctx, task, ticket); err != nil {
		return nil, err
	}

	if err := s.ticketRepo.Update(ctx, ticket); err != nil {
		return nil, fmt.Errorf("failed to update ticket: %w", err)
	}
	return s.find(ctx, taskID, ticketID)
}

// DeleteTicket removes a ticket and its comments. Managers and admins only.
func (s *TicketService) DeleteTicket(ctx context.Context, caller Caller, taskID, ticketID uint64) error {
	if !caller.IsStaff() {
		return ErrForbidden
	}
	if _, err := s.loadTask(ctx, caller, taskID); err != nil {
		return err
	}

	if err := s.ticketRepo.Delete(ctx, taskID, ticketID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTicketNotFound
		}
		return fmt.Errorf("failed to delete ticket: %w", err)
	}
	return nil
}

// AddComment appends a comment. Anyone who can see the task can comment.
func (s *TicketService) AddComment(ctx context.Context, caller Caller, taskID, ticketID uint64, content string) (*models.TicketComment, error) {
	task, err := s.loadTask(ctx, caller, taskID)
	if err != nil {
		return nil, err
	}
	ticket, err := s.find(ctx, taskID, ticketID)
	if err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, invalid("content", "comment cannot be empty")
	}

	comment := &models.TicketComment{
		TicketID: ticket.ID,
		Content:  content,
		AuthorID: caller.ID,
	}
	if err := s.ticketRepo.AddComment(ctx, comment); err != nil {
		return nil, fmt.Errorf("failed to add comment: %w", err)
	}

	s.notify(ctx, caller, notify.KindTicketCommented, task, ticket)

	return comment, nil
}

func (s *TicketService) loadTask(ctx context.Context, caller Caller, taskID uint64) (*models.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID, "Assignees")
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	if !canSeeTask(caller, task) {
		return nil, ErrForbidden
	}
	return task, nil
}

func (s *TicketService) find(ctx context.Context, taskID, ticketID uint64) (*models.Ticket, error) {
	ticket, err := s.ticketRepo.FindByID(ctx, taskID, ticketID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to find ticket: %w", err)
	}
	return ticket, nil
}

func (s *TicketService) validate(ctx context.Context, task *models.Task, ticket *models.Ticket) error {
	if !ticket.Priority.Valid() {
		return invalid("priority", "unknown priority %q", ticket.Priority)
	}
	if !ticket.Status.Valid() {
		return invalid("status", "unknown status %q", ticket.Status)
	}
	if !ticket.Tag.Valid() {
		return invalid("tag", "unknown tag %q", ticket.Tag)
	}
	if err := validateTaskDates(ticket.StartDate, ticket.DueDate); err != nil {
		return err
	}
	if ticket.AssignedToID != nil {
		count, err := s.projectRepo.CountParticipants(ctx, task.ProjectID, []uint64{*ticket.AssignedToID})
		if err != nil {
			return fmt.Errorf("failed to verify ticket assignee: %w", err)
		}
		if count == 0 {
			return invalid("assigned_to_id", "assignee must be a participant of the project")
		}
	}
	return nil
}

// notify tells the task's assignees and the ticket's assignee and author.
func (s *TicketService) notify(ctx context.Context, caller Caller, kind notify.Kind, task *models.Task, ticket *models.Ticket) {
	recipients := assigneeIDs(task)
	if ticket.AssignedToID != nil {
		recipients = append(recipients, *ticket.AssignedToID)
	}
	recipients = append(recipients, ticket.CreatedByID)

	refs := taskRefs(task)
	refs["ticket_id"] = fmt.Sprint(ticket.ID)

	s.dispatcher.Dispatch(ctx, notify.Notification{
		Kind:         kind,
		ActorID:      caller.ID,
		RecipientIDs: recipients,
		Data: map[string]any{
			"Actor":      caller.DisplayName(),
			"Title":      task.Title,
			"IssueTitle": ticket.IssueTitle,
		},
		Refs: refs,
	})
}
