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
	"github.com/yukikurage/circuit/internal/validation"
	"gorm.io/gorm"
)

var (
	ErrProjectNotFound     = errors.New("project not found")
	ErrProjectNameTaken    = errors.New("project name already exists")
	ErrAlreadyParticipant  = errors.New("user is already a participant of this project")
	ErrParticipantNotFound = errors.New("participant not found")
)

// ProjectService provides business logic for projects and their rosters.
type ProjectService struct {
	projectRepo repository.ProjectRepository
	feedRepo    repository.FeedRepository
	dispatcher  *notify.Dispatcher
	now         func() time.Time
}

// NewProjectService creates a new ProjectService.
func NewProjectService(projectRepo repository.ProjectRepository, feedRepo repository.FeedRepository, dispatcher *notify.Dispatcher) *ProjectService {
	return &ProjectService{
		projectRepo: projectRepo,
		feedRepo:    feedRepo,
		dispatcher:  dispatcher,
		now:         time.Now,
	}
}

// ParticipantInput is one submitted roster entry.
type ParticipantInput struct {
	UserID         uint64
	RoleInProject  string
	Responsibility models.Responsibility
}

// CreateProjectInput represents parameters to create a new project.
type CreateProjectInput struct {
	ProjectName   string
	ProjectState  models.ProjectState
	ProjectDomain string
	StartDate     time.Time
	EndDate       *time.Time
	Participants  []ParticipantInput
}

// UpdateProjectInput is a partial update. A nil Participants keeps the roster; a
// non-nil one replaces it entirely.
type UpdateProjectInput struct {
	ProjectName   *string
	ProjectState  *models.ProjectState
	ProjectDomain *string
	StartDate     *time.Time
	EndDate       *time.Time
	ClearEndDate  bool
	Participants  []ParticipantInput
}

// ListProjectsInput represents filters for listing projects
type ListProjectsInput struct {
	State    *models.ProjectState
	Page     int
	PageSize int
}

// CreateProject validates the roster and stores the project with it.
func (s *ProjectService) CreateProject(ctx context.Context, caller Caller, input CreateProjectInput) (*models.Project, error) {
	if !caller.IsStaff() {
		return nil, ErrForbidden
	}

	name := strings.TrimSpace(input.ProjectName)
	if err := validateProjectName(name); err != nil {
		return nil, err
	}

	state := input.ProjectState
	if state == "" {
		state = models.ProjectOngoing
	}
	if !state.Valid() {
		return nil, invalid("project_state", "unknown project state %q", state)
	}
	if input.StartDate.IsZero() {
		return nil, invalid("start_date", "start date is required")
	}
	if err := validateProjectDates(input.StartDate, input.EndDate); err != nil {
		return nil, err
	}

	participants, managerID, err := s.buildRoster(input.Participants, nil)
	if err != nil {
		return nil, err
	}

	if err := s.ensureNameFree(ctx, name, 0); err != nil {
		return nil, err
	}

	project := &models.Project{
		ProjectName:   name,
		ProjectState:  state,
		ProjectDomain: strings.TrimSpace(input.ProjectDomain),
		StartDate:     input.StartDate,
		EndDate:       input.EndDate,
		ManagerID:     managerID,
		Participants:  participants,
	}

	if err := s.projectRepo.Create(ctx, project); err != nil {
		return nil, s.translateWriteError(err)
	}

	s.notifyJoined(ctx, caller, project, participants)

	return s.find(ctx, project.ID)
}

// GetProject returns a project with its roster. Members must be on the roster.
func (s *ProjectService) GetProject(ctx context.Context, caller Caller, id uint64) (*models.Project, error) {
	project, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsStaff() && !project.HasParticipant(caller.ID) {
		return nil, ErrForbidden
	}
	return project, nil
}

// ListProjects returns every project to staff and the caller's projects to members.
func (s *ProjectService) ListProjects(ctx context.Context, caller Caller, input ListProjectsInput) ([]models.Project, int64, error) {
	filter := repository.ProjectFilter{
		State:    input.State,
		Page:     input.Page,
		PageSize: input.PageSize,
	}
	if !caller.IsStaff() {
		filter.ParticipantID = &caller.ID
	}

	projects, total, err := s.projectRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, total, nil
}

// UpdateProject applies a partial update. Admins may update any project, managers only
// the projects they manage. A roster failure leaves the project untouched.
func (s *ProjectService) UpdateProject(ctx context.Context, caller Caller, id uint64, input UpdateProjectInput) (*models.Project, error) {
	project, err := s.findForWrite(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	if input.ProjectName != nil {
		name := strings.TrimSpace(*input.ProjectName)
		if err := validateProjectName(name); err != nil {
			return nil, err
		}
		if name != project.ProjectName {
			if err := s.ensureNameFree(ctx, name, project.ID); err != nil {
				return nil, err
			}
		}
		project.ProjectName = name
	}
	if input.ProjectState != nil {
		if !input.ProjectState.Valid() {
			return nil, invalid("project_state", "unknown project state %q", *input.ProjectState)
		}
		project.ProjectState = *input.ProjectState
	}
	if input.ProjectDomain != nil {
		project.ProjectDomain = strings.TrimSpace(*input.ProjectDomain)
	}
	if input.StartDate != nil {
		project.StartDate = *input.StartDate
	}
	if input.ClearEndDate {
		project.EndDate = nil
	} else if input.EndDate != nil {
		project.EndDate = input.EndDate
	}
	if err := validateProjectDates(project.StartDate, project.EndDate); err != nil {
		return nil, err
	}

	replaceRoster := input.Participants != nil
	var added []models.Participant
	if replaceRoster {
		participants, managerID, err := s.buildRoster(input.Participants, project.Participants)
		if err != nil {
			return nil, err
		}
		added = newcomers(project.Participants, participants)
		project.Participants = participants
		project.ManagerID = managerID
	}

	if err := s.projectRepo.Update(ctx, project, replaceRoster); err != nil {
		return nil, s.translateWriteError(err)
	}

	s.notifyJoined(ctx, caller, project, added)

	return s.find(ctx, project.ID)
}

// AddParticipant appends one entry and saves the full roster through the validated replace.
func (s *ProjectService) AddParticipant(ctx context.Context, caller Caller, projectID uint64, input ParticipantInput) (*models.Project, error) {
	project, err := s.findForWrite(ctx, caller, projectID)
	if err != nil {
		return nil, err
	}
	if project.HasParticipant(input.UserID) {
		return nil, ErrAlreadyParticipant
	}

	roster := rosterInputs(project.Participants)
	roster = append(roster, input)

	return s.UpdateProject(ctx, caller, projectID, UpdateProjectInput{Participants: roster})
}

// RemoveParticipant drops one entry and saves the full roster through the validated replace,
// so removing the only project-manager is rejected.
func (s *ProjectService) RemoveParticipant(ctx context.Context, caller Caller, projectID, userID uint64) (*models.Project, error) {
	project, err := s.findForWrite(ctx, caller, projectID)
	if err != nil {
		return nil, err
	}
	if !project.HasParticipant(userID) {
		return nil, ErrParticipantNotFound
	}

	roster := make([]ParticipantInput, 0, len(project.Participants))
	for _, p := range rosterInputs(project.Participants) {
		if p.UserID != userID {
			roster = append(roster, p)
		}
	}

	return s.UpdateProject(ctx, caller, projectID, UpdateProjectInput{Participants: roster})
}

// DeleteProject removes a project with its tasks and feed. Admin only.
func (s *ProjectService) DeleteProject(ctx context.Context, caller Caller, id uint64) error {
	if !caller.IsAdmin() {
		return ErrForbidden
	}

	if err := s.projectRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProjectNotFound
		}
		return fmt.Errorf("failed to delete project: %w", err)
	}

	if s.feedRepo != nil {
		if err := s.feedRepo.DeleteByProject(ctx, id); err != nil {
			return fmt.Errorf("failed to delete project feed: %w", err)
		}
	}

	return nil
}

func (s *ProjectService) find(ctx context.Context, id uint64) (*models.Project, error) {
	project, err := s.projectRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to find project: %w", err)
	}
	return project, nil
}

func (s *ProjectService) findForWrite(ctx context.Context, caller Caller, id uint64) (*models.Project, error) {
	if !caller.IsStaff() {
		return nil, ErrForbidden
	}
	project, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && project.ManagerID != caller.ID {
		return nil, ErrForbidden
	}
	return project, nil
}

func (s *ProjectService) ensureNameFree(ctx context.Context, name string, selfID uint64) error {
	existing, err := s.projectRepo.FindByName(ctx, name)
	if err == nil {
		if existing.ID != selfID {
			return ErrProjectNameTaken
		}
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check project name: %w", err)
	}
	return nil
}

func (s *ProjectService) translateWriteError(err error) error {
	switch {
	case errors.Is(err, repository.ErrMissingUsers):
		return invalid("participants", "one or more participants do not exist")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrProjectNameTaken
	default:
		return fmt.Errorf("failed to save project: %w", err)
	}
}

// buildRoster checks the roster invariant: exactly one project-manager, at least one
// project-member, nobody twice. JoinedAt is kept for users already on the previous roster.
func (s *ProjectService) buildRoster(input []ParticipantInput, previous []models.Participant) ([]models.Participant, uint64, error) {
	joined := make(map[uint64]time.Time, len(previous))
	for _, p := range previous {
		joined[p.UserID] = p.JoinedAt
	}

	now := s.now()
	seen := make(map[uint64]struct{}, len(input))
	participants := make([]models.Participant, 0, len(input))
	var managerID uint64
	managers, members := 0, 0

	for _, p := range input {
		if p.UserID == 0 {
			return nil, 0, invalid("participants", "user_id is required")
		}
		if _, dup := seen[p.UserID]; dup {
			return nil, 0, invalid("participants", "user %d appears more than once", p.UserID)
		}
		seen[p.UserID] = struct{}{}

		switch p.Responsibility {
		case models.ResponsibilityManager:
			managers++
			managerID = p.UserID
		case models.ResponsibilityMember:
			members++
		default:
			return nil, 0, invalid("participants", "unknown responsibility %q", p.Responsibility)
		}

		joinedAt, ok := joined[p.UserID]
		if !ok {
			joinedAt = now
		}
		participants = append(participants, models.Participant{
			UserID:         p.UserID,
			RoleInProject:  strings.TrimSpace(p.RoleInProject),
			Responsibility: p.Responsibility,
			JoinedAt:       joinedAt,
		})
	}

	if managers != 1 {
		return nil, 0, invalid("participants", "exactly one project-manager is required")
	}
	if members < 1 {
		return nil, 0, invalid("participants", "at least one project-member is required")
	}

	return participants, managerID, nil
}

func (s *ProjectService) notifyJoined(ctx context.Context, caller Caller, project *models.Project, participants []models.Participant) {
	for _, p := range participants {
		s.dispatcher.Dispatch(ctx, notify.Notification{
			Kind:         notify.KindProjectJoined,
			ActorID:      caller.ID,
			RecipientIDs: []uint64{p.UserID},
			Data: map[string]any{
				"Actor":          caller.DisplayName(),
				"Project":        project.ProjectName,
				"Responsibility": string(p.Responsibility),
			},
			Refs: map[string]string{"project_id": fmt.Sprint(project.ID)},
		})
	}
}

func validateProjectName(name string) error {
	if name == "" {
		return invalid("project_name", "project name is required")
	}
	if !validation.ValidProjectName(name) {
		return invalid("project_name", "project name may only contain letters, digits, dashes and underscores")
	}
	return nil
}

func validateProjectDates(start time.Time, end *time.Time) error {
	if end != nil && end.Before(start) {
		return invalid("end_date", "end date must not be before start date")
	}
	return nil
}

func rosterInputs(participants []models.Participant) []ParticipantInput {
	roster := make([]ParticipantInput, len(participants))
	for i, p := range participants {
		roster[i] = ParticipantInput{
			UserID:         p.UserID,
			RoleInProject:  p.RoleInProject,
			Responsibility: p.Responsibility,
		}
	}
	return roster
}

func newcomers(previous, next []models.Participant) []models.Participant {
	existing := make(map[uint64]struct{}, len(previous))
	for _, p := range previous {
		existing[p.UserID] = struct{}{}
	}
	var added []models.Participant
	for _, p := range next {
		if _, ok := existing[p.UserID]; !ok {
			added = append(added, p)
		}
	}
	return added
}
