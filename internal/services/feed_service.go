package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/yukikurage/circuit/internal/models"
	"github.com/yukikurage/circuit/internal/notify"
	"github.com/yukikurage/circuit/internal/repository"
	"gorm.io/gorm"
)

var (
	ErrFeedEntryNotFound = errors.New("feed entry not found")
	ErrNotRecipient      = errors.New("you are not a recipient of this entry")
)

const feedPreviewLength = 140

// FeedService keeps the append-only project log of updates and announcements.
type FeedService struct {
	feedRepo    repository.FeedRepository
	projectRepo repository.ProjectRepository
	dispatcher  *notify.Dispatcher
	now         func() time.Time
}

func NewFeedService(feedRepo repository.FeedRepository, projectRepo repository.ProjectRepository, dispatcher *notify.Dispatcher) *FeedService {
	return &FeedService{
		feedRepo:    feedRepo,
		projectRepo: projectRepo,
		dispatcher:  dispatcher,
		now:         time.Now,
	}
}

// PostInput is a new entry. Empty Recipients addresses every other participant.
type PostInput struct {
	Kind       models.FeedKind
	Message    string
	FileURL    string
	Recipients []string
}

type ListFeedInput struct {
	Kind       *models.FeedKind
	Inbox      bool
	UnreadOnly bool
	Page       int
	PageSize   int
}

// Post appends an entry to the project's log. Participants post updates; announcements
// come from managers and admins.
func (s *FeedService) Post(ctx context.Context, caller Caller, projectID uint64, input PostInput) (*models.FeedEntry, error) {
	project, err := s.projectFor(ctx, caller, projectID)
	if err != nil {
		return nil, err
	}

	switch input.Kind {
	case models.FeedUpdate:
	case models.FeedAnnouncement:
		if !caller.IsStaff() {
			return nil, ErrForbidden
		}
	default:
		return nil, invalid("kind", "kind must be update or announcement")
	}

	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, invalid("message", "message is required")
	}

	byEmail := make(map[string]uint64, len(project.Participants))
	for _, p := range project.Participants {
		byEmail[models.NormalizeEmail(p.User.Email)] = p.UserID
	}

	emails := make([]string, 0, len(input.Recipients))
	if len(input.Recipients) == 0 {
		for _, p := range project.Participants {
			if p.UserID != caller.ID && p.User.Email != "" {
				emails = append(emails, models.NormalizeEmail(p.User.Email))
			}
		}
	} else {
		seen := make(map[string]struct{}, len(input.Recipients))
		for _, raw := range input.Recipients {
			email := models.NormalizeEmail(raw)
			if _, ok := byEmail[email]; !ok {
				return nil, invalid("recipients", "%s is not a participant of the project", raw)
			}
			if _, dup := seen[email]; dup {
				continue
			}
			seen[email] = struct{}{}
			emails = append(emails, email)
		}
	}
	if len(emails) == 0 {
		return nil, invalid("recipients", "the entry has no recipients")
	}

	entry := &models.FeedEntry{
		ID:         uuid.NewString(),
		ProjectID:  project.ID,
		Kind:       input.Kind,
		FromEmail:  caller.Email,
		Date:       s.now(),
		Message:    message,
		FileURL:    strings.TrimSpace(input.FileURL),
		Recipients: make([]models.FeedRecipient, len(emails)),
	}
	recipientIDs := make([]uint64, len(emails))
	for i, email := range emails {
		entry.Recipients[i] = models.FeedRecipient{EntryID: entry.ID, Email: email, State: models.RecipientUnread}
		recipientIDs[i] = byEmail[email]
	}

	if err := s.feedRepo.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append feed entry: %w", err)
	}

	kind := notify.KindProjectUpdate
	if entry.Kind == models.FeedAnnouncement {
		kind = notify.KindAnnouncement
	}
	s.dispatcher.Dispatch(ctx, notify.Notification{
		Kind:         kind,
		ActorID:      caller.ID,
		RecipientIDs: recipientIDs,
		Data: map[string]any{
			"Actor":   caller.DisplayName(),
			"Project": project.ProjectName,
			"Message": preview(message),
		},
		Refs: map[string]string{"project_id": fmt.Sprint(project.ID), "entry_id": entry.ID},
	})

	return entry, nil
}

// List returns the project's log. Inbox and UnreadOnly narrow it to entries addressed
// to the caller.
func (s *FeedService) List(ctx context.Context, caller Caller, projectID uint64, input ListFeedInput) ([]models.FeedEntry, int64, error) {
	if _, err := s.projectFor(ctx, caller, projectID); err != nil {
		return nil, 0, err
	}

	filter := repository.FeedFilter{
		ProjectID:  projectID,
		Kind:       input.Kind,
		UnreadOnly: input.UnreadOnly,
		Page:       input.Page,
		PageSize:   input.PageSize,
	}
	if input.Inbox || input.UnreadOnly {
		filter.RecipientEmail = models.NormalizeEmail(caller.Email)
	}

	entries, total, err := s.feedRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list feed: %w", err)
	}
	return entries, total, nil
}

// MarkRead flips the caller's own read state. Other recipients are untouched.
func (s *FeedService) MarkRead(ctx context.Context, caller Caller, entryID string) (*models.FeedEntry, error) {
	entry, err := s.find(ctx, entryID)
	if err != nil {
		return nil, err
	}
	email := models.NormalizeEmail(caller.Email)
	if _, ok := entry.RecipientState(email); !ok {
		return nil, ErrNotRecipient
	}

	if err := s.feedRepo.MarkRead(ctx, entryID, email); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotRecipient
		}
		return nil, fmt.Errorf("failed to mark entry read: %w", err)
	}
	return s.find(ctx, entryID)
}

func (s *FeedService) find(ctx context.Context, entryID string) (*models.FeedEntry, error) {
	entry, err := s.feedRepo.FindByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrFeedEntryNotFound
		}
		return nil, fmt.Errorf("failed to find feed entry: %w", err)
	}
	return entry, nil
}

// projectFor loads the project and requires staff or a roster position.
func (s *FeedService) projectFor(ctx context.Context, caller Caller, projectID uint64) (*models.Project, error) {
	project, err := s.projectRepo.FindByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to find project: %w", err)
	}
	if !caller.IsStaff() && !project.HasParticipant(caller.ID) {
		return nil, ErrForbidden
	}
	return project, nil
}

func preview(message string) string {
	if utf8.RuneCountInString(message) <= feedPreviewLength {
		return message
	}
	runes := []rune(message)
	return string(runes[:feedPreviewLength]) + "…"
}
