package repository

import (
	"context"
	"errors"
	"time"

	"github.com/yukikurage/circuit/internal/database"
	"github.com/yukikurage/circuit/internal/models"
	"github.com/yukikurage/circuit/internal/utils"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned by the ledger repositories when no document matches.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique index rejects a write.
	ErrDuplicate = errors.New("duplicate record")
	// ErrStateChanged is returned when a conditional update matched nothing.
	ErrStateChanged = errors.New("record state changed")
	// ErrMissingUsers is returned when a roster references user ids that do not exist.
	ErrMissingUsers = errors.New("one or more users do not exist")
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	// Create creates a new user
	Create(ctx context.Context, user *models.User) error

	// FindByID finds a user by ID
	FindByID(ctx context.Context, id uint64) (*models.User, error)

	// FindByEmail finds a user by normalized email
	FindByEmail(ctx context.Context, email string) (*models.User, error)

	// FindByIDs returns the users with the given IDs, in no particular order
	FindByIDs(ctx context.Context, ids []uint64) ([]models.User, error)

	// List retrieves users with filtering and pagination
	List(ctx context.Context, filter UserFilter) ([]models.User, int64, error)

	// Update saves a user's columns
	Update(ctx context.Context, user *models.User) error

	// Delete hard deletes a user with their push tokens and task assignments
	Delete(ctx context.Context, id uint64) error

	// IsParticipant reports whether the user is on any project roster
	IsParticipant(ctx context.Context, userID uint64) (bool, error)

	// SavePushToken registers or re-assigns a device token
	SavePushToken(ctx context.Context, token *models.PushToken) error

	// DeletePushToken removes a device token owned by the user
	DeletePushToken(ctx context.Context, userID uint64, token string) error

	// ListPushTokens returns the tokens of the given users
	ListPushTokens(ctx context.Context, userIDs []uint64) ([]models.PushToken, error)
}

// UserFilter holds filtering options for listing users
type UserFilter struct {
	Role     *models.UserRole
	State    *models.ProfileState
	Search   string
	Page     int
	PageSize int
}

// ProjectRepository defines the interface for project data access
type ProjectRepository interface {
	// Create creates a project with its roster in one transaction
	Create(ctx context.Context, project *models.Project) error

	// FindByID finds a project by ID with its ordered roster
	FindByID(ctx context.Context, id uint64) (*models.Project, error)

	// FindByName finds a project by its unique name
	FindByName(ctx context.Context, name string) (*models.Project, error)

	// List retrieves projects with filtering and pagination
	List(ctx context.Context, filter ProjectFilter) ([]models.Project, int64, error)

	// Update saves the project columns and, when replaceRoster is set, replaces the roster
	// in the same transaction
	Update(ctx context.Context, project *models.Project, replaceRoster bool) error

	// Delete deletes a project and everything it owns
	Delete(ctx context.Context, id uint64) error

	// CountParticipants counts how many of userIDs are on the project roster
	CountParticipants(ctx context.Context, projectID uint64, userIDs []uint64) (int64, error)

	// ListManagedUserIDs returns the users on rosters of projects managed by managerID
	ListManagedUserIDs(ctx context.Context, managerID uint64) ([]uint64, error)
}

// ProjectFilter holds filtering options for listing projects
type ProjectFilter struct {
	ParticipantID *uint64
	State         *models.ProjectState
	Page          int
	PageSize      int
}

// TaskRepository defines the interface for task data access
type TaskRepository interface {
	// Create creates a task with its checklist, assignees and dependencies
	Create(ctx context.Context, task *models.Task) error

	// FindByID finds a task by ID with optional preloading
	FindByID(ctx context.Context, id uint64, preload ...string) (*models.Task, error)

	// List retrieves tasks with filtering and pagination
	List(ctx context.Context, filter TaskFilter) ([]models.Task, int64, error)

	// Update saves task columns and the child collections selected by opts
	Update(ctx context.Context, task *models.Task, opts TaskUpdateOptions) error

	// Delete deletes a task and its owned rows, re-parenting direct subtasks
	Delete(ctx context.Context, id uint64) error

	// AncestorIDs walks the parent chain upwards starting at id (inclusive)
	AncestorIDs(ctx context.Context, id uint64) ([]uint64, error)

	// SetAssigneeState updates one assignee's progress state
	SetAssigneeState(ctx context.Context, taskID, userID uint64, state models.AssigneeState) error

	// AddAttachment appends an attachment record
	AddAttachment(ctx context.Context, attachment *models.Attachment) error

	// AddActivity appends an activity log entry
	AddActivity(ctx context.Context, entry *models.ActivityEntry) error
}

// TaskUpdateOptions selects which child collections Update rewrites
type TaskUpdateOptions struct {
	Checklist    bool
	Assignees    bool
	Dependencies bool
}

// TaskFilter holds filtering options for listing tasks
type TaskFilter struct {
	ProjectIDs     []uint64
	Status         *models.TaskStatus
	Priority       *models.Priority
	AssignedUserID *uint64
	ParentTaskID   *uint64
	RootOnly       bool
	DueDateFrom    *time.Time
	DueDateTo      *time.Time
	SortByDueDate  bool
	Page           int
	PageSize       int
}

// TicketRepository defines the interface for ticket data access. Tickets are
// always addressed through their owning task.
type TicketRepository interface {
	// Create creates a ticket
	Create(ctx context.Context, ticket *models.Ticket) error

	// FindByID finds a ticket of the task, with its comments
	FindByID(ctx context.Context, taskID, ticketID uint64) (*models.Ticket, error)

	// ListByTask lists the tickets of a task
	ListByTask(ctx context.Context, taskID uint64, status *models.TicketStatus) ([]models.Ticket, error)

	// Update saves ticket columns
	Update(ctx context.Context, ticket *models.Ticket) error

	// Delete deletes a ticket of the task with its comments
	Delete(ctx context.Context, taskID, ticketID uint64) error

	// AddComment appends a comment
	AddComment(ctx context.Context, comment *models.TicketComment) error
}

// AttendanceRepository is implemented by the relational store and by the document store.
// Both return ErrNotFound, ErrDuplicate and ErrStateChanged.
type AttendanceRepository interface {
	// Create inserts a record; ErrDuplicate when (user, date) already exists
	Create(ctx context.Context, record *models.AttendanceRecord) error

	// FindByID finds a record by ID
	FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error)

	// FindByUserAndDate finds the record of a user for a day
	FindByUserAndDate(ctx context.Context, userID uint64, date string) (*models.AttendanceRecord, error)

	// Decide moves a pending record to approved or rejected; ErrStateChanged when it is no longer pending
	Decide(ctx context.Context, id string, decision models.ApprovalStatus, approverID uint64, at time.Time) error

	// List retrieves records with filtering and pagination, newest day first
	List(ctx context.Context, filter AttendanceFilter) ([]models.AttendanceRecord, int64, error)
}

// AttendanceFilter holds filtering options for listing attendance.
// A nil UserIDs means every user; an empty non-nil slice matches nothing.
type AttendanceFilter struct {
	UserIDs        []uint64
	From           string
	To             string
	Status         *models.AttendanceStatus
	ApprovalStatus *models.ApprovalStatus
	Page           int
	PageSize       int
}

// FeedRepository is implemented by the relational store and by the document store.
type FeedRepository interface {
	// Append inserts an entry with its recipients
	Append(ctx context.Context, entry *models.FeedEntry) error

	// FindByID finds an entry by ID
	FindByID(ctx context.Context, id string) (*models.FeedEntry, error)

	// List retrieves entries with filtering and pagination, newest first
	List(ctx context.Context, filter FeedFilter) ([]models.FeedEntry, int64, error)

	// MarkRead sets the recipient's state to read; ErrNotFound when email is not a recipient
	MarkRead(ctx context.Context, entryID, email string) error

	// DeleteByProject removes the whole log of a deleted project
	DeleteByProject(ctx context.Context, projectID uint64) error
}

// FeedFilter holds filtering options for listing feed entries
type FeedFilter struct {
	ProjectID      uint64
	Kind           *models.FeedKind
	RecipientEmail string
	UnreadOnly     bool
	Page           int
	PageSize       int
}

// pageScope paginates a list query; a zero page or page size returns everything.
func pageScope(page, pageSize int) func(db *gorm.DB) *gorm.DB {
	if page < 1 || pageSize < 1 {
		return func(db *gorm.DB) *gorm.DB { return db }
	}
	return database.Paginate(utils.PaginationParams{
		Page:   page,
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	})
}
