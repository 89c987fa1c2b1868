package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/yukikurage/circuit/internal/database"
	"github.com/yukikurage/circuit/internal/logger"
	"github.com/yukikurage/circuit/internal/models"
	"github.com/yukikurage/circuit/internal/notify"
	"github.com/yukikurage/circuit/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ServiceTestSuite runs the services against an in-memory database with a live
// notification hub.
type ServiceTestSuite struct {
	suite.Suite
	db  *gorm.DB
	ctx context.Context
	now time.Time

	hub        *notify.StreamHub
	dispatcher *notify.Dispatcher

	auth       *AuthService
	users      *UserService
	projects   *ProjectService
	tasks      *TaskService
	tickets    *TicketService
	attendance *AttendanceService
	feed       *FeedService

	admin   Caller
	manager Caller
	alice   Caller
	bob     Caller
	carol   Caller
	alpha   *models.Project
}

func (s *ServiceTestSuite) SetupTest() {
	var err error

	s.db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	s.Require().NoError(err)
	sqlDB, err := s.db.DB()
	s.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1)
	s.Require().NoError(s.db.AutoMigrate(database.Models()...))

	s.ctx = context.Background()
	s.now = time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }

	userRepo := repository.NewUserRepository(s.db)
	projectRepo := repository.NewProjectRepository(s.db)
	taskRepo := repository.NewTaskRepository(s.db)
	feedRepo := repository.NewFeedRepository(s.db)

	catalog, err := notify.NewCatalog("en")
	s.Require().NoError(err)
	s.hub = notify.NewStreamHub(8)
	s.dispatcher = notify.NewDispatcher(userRepo, catalog, logger.New(log.New(io.Discard, "", 0), "", "test"), time.Second, s.hub)

	tokens := NewTokenService("test-secret", time.Hour)
	tokens.now = clock
	s.auth = NewAuthService(userRepo, tokens)
	s.users = NewUserService(userRepo)
	s.projects = NewProjectService(projectRepo, feedRepo, s.dispatcher)
	s.projects.now = clock
	s.tasks = NewTaskService(taskRepo, projectRepo, nil, NewUploadService(nil, 0, 0), s.dispatcher)
	s.tasks.now = clock
	s.tickets = NewTicketService(repository.NewTicketRepository(s.db), taskRepo, projectRepo, s.dispatcher)
	s.attendance = NewAttendanceService(repository.NewAttendanceRepository(s.db), projectRepo, s.dispatcher)
	s.attendance.now = clock
	s.feed = NewFeedService(feedRepo, projectRepo, s.dispatcher)
	s.feed.now = clock

	s.admin = s.createUser("admin@example.com", models.RoleAdmin)
	s.manager = s.createUser("manager@example.com", models.RoleManager)
	s.alice = s.createUser("alice@example.com", models.RoleMember)
	s.bob = s.createUser("bob@example.com", models.RoleMember)
	s.carol = s.createUser("carol@example.com", models.RoleMember)

	s.alpha, err = s.projects.CreateProject(s.ctx, s.admin, CreateProjectInput{
		ProjectName: "alpha",
		StartDate:   s.now,
		Participants: []ParticipantInput{
			{UserID: s.manager.ID, Responsibility: models.ResponsibilityManager, RoleInProject: "lead"},
			{UserID: s.alice.ID, Responsibility: models.ResponsibilityMember},
			{UserID: s.bob.ID, Responsibility: models.ResponsibilityMember},
		},
	})
	s.Require().NoError(err)
	s.dispatcher.Wait()
}

func (s *ServiceTestSuite) TearDownTest() {
	s.dispatcher.Wait()
	s.hub.Close()
	sqlDB, err := s.db.DB()
	s.Require().NoError(err)
	sqlDB.Close()
}

func (s *ServiceTestSuite) createUser(email string, role models.UserRole) Caller {
	hash, err := hashPassword("supersecret")
	s.Require().NoError(err)
	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         email,
		Role:         role,
		ProfileState: models.ProfileActive,
	}
	s.Require().NoError(s.db.Create(user).Error)
	return CallerFromUser(user)
}

func (s *ServiceTestSuite) createTask(title string, assignees ...uint64) *models.Task {
	task, err := s.tasks.CreateTask(s.ctx, s.manager, CreateTaskInput{
		Title:       title,
		Description: "description",
		ProjectID:   s.alpha.ID,
		Assignees:   assignees,
	})
	s.Require().NoError(err)
	return task
}

func (s *ServiceTestSuite) TestAuth_TokenRoundTrip() {
	user, err := s.auth.Login(s.ctx, LoginInput{Email: " ALICE@example.com", Password: "supersecret"})
	s.Require().NoError(err)

	token, expiresAt, err := s.auth.IssueToken(user)
	s.Require().NoError(err)
	s.Equal(s.now.Add(time.Hour).Unix(), expiresAt)

	userID, err := s.auth.ParseToken(token)
	s.Require().NoError(err)
	s.Equal(s.alice.ID, userID)

	_, err = s.auth.ParseToken(token + "x")
	s.ErrorIs(err, ErrInvalidToken)

	s.now = s.now.Add(2 * time.Hour)
	_, err = s.auth.ParseToken(token)
	s.ErrorIs(err, ErrInvalidToken)
}

func (s *ServiceTestSuite) TestAuth_ResolveCallerRefusesInactive() {
	caller, err := s.auth.ResolveCaller(s.ctx, s.bob.ID)
	s.Require().NoError(err)
	s.Equal(models.RoleMember, caller.Role)

	// The role is always re-read, so a promotion takes effect on the next request.
	s.Require().NoError(s.db.Model(&models.User{}).Where("id = ?", s.bob.ID).Update("role", models.RoleManager).Error)
	caller, err = s.auth.ResolveCaller(s.ctx, s.bob.ID)
	s.Require().NoError(err)
	s.Equal(models.RoleManager, caller.Role)

	s.Require().NoError(s.db.Model(&models.User{}).Where("id = ?", s.bob.ID).Update("profile_state", models.ProfileInactive).Error)
	_, err = s.auth.ResolveCaller(s.ctx, s.bob.ID)
	s.ErrorIs(err, ErrAccountInactive)

	_, err = s.auth.ResolveCaller(s.ctx, 9999)
	s.ErrorIs(err, ErrUserNotFound)
}

func (s *ServiceTestSuite) TestUsers_AdminRules() {
	created, temporary, err := s.users.Create(s.ctx, s.admin, CreateUserInput{Email: "dave@example.com", Name: "Dave"})
	s.Require().NoError(err)
	s.NotEmpty(temporary)
	s.Equal(models.RoleMember, created.Role)

	_, err = s.auth.Login(s.ctx, LoginInput{Email: "dave@example.com", Password: temporary})
	s.NoError(err)

	_, _, err = s.users.Create(s.ctx, s.manager, CreateUserInput{Email: "eve@example.com"})
	s.ErrorIs(err, ErrForbidden)

	_, _, err = s.users.Create(s.ctx, s.admin, CreateUserInput{Email: "DAVE@example.com", Password: "supersecret"})
	s.ErrorIs(err, ErrEmailTaken)

	s.ErrorIs(s.users.Delete(s.ctx, s.admin, s.admin.ID), ErrCannotDeleteSelf)
	s.ErrorIs(s.users.Delete(s.ctx, s.admin, s.alice.ID), ErrUserInUse)
	s.ErrorIs(s.users.Delete(s.ctx, s.manager, created.ID), ErrForbidden)
	s.NoError(s.users.Delete(s.ctx, s.admin, created.ID))
	s.ErrorIs(s.users.Delete(s.ctx, s.admin, created.ID), ErrUserNotFound)

	_, err = s.users.Get(s.ctx, s.alice, s.bob.ID)
	s.ErrorIs(err, ErrForbidden)
	_, _, err = s.users.List(s.ctx, s.alice, ListUsersInput{Page: 1, PageSize: 20})
	s.ErrorIs(err, ErrForbidden)
}

func (s *ServiceTestSuite) TestProjects_RosterFailureLeavesProjectUnchanged() {
	domain := "payments"
	_, err := s.projects.UpdateProject(s.ctx, s.manager, s.alpha.ID, UpdateProjectInput{
		ProjectDomain: &domain,
		Participants: []ParticipantInput{
			{UserID: s.manager.ID, Responsibility: models.ResponsibilityManager},
			{UserID: s.alice.ID, Responsibility: models.ResponsibilityManager},
			{UserID: s.bob.ID, Responsibility: models.ResponsibilityMember},
		},
	})
	s.ErrorIs(err, ErrInvalidInput)

	project, err := s.projects.GetProject(s.ctx, s.admin, s.alpha.ID)
	s.Require().NoError(err)
	s.Empty(project.ProjectDomain)
	s.Require().Len(project.Participants, 3)
	s.Equal(s.manager.ID, project.ManagerID)

	// A roster listing an unknown user is rejected by the store and nothing changes either.
	_, err = s.projects.UpdateProject(s.ctx, s.manager, s.alpha.ID, UpdateProjectInput{
		Participants: []ParticipantInput{
			{UserID: s.manager.ID, Responsibility: models.ResponsibilityManager},
			{UserID: 9999, Responsibility: models.ResponsibilityMember},
		},
	})
	s.ErrorIs(err, ErrInvalidInput)

	project, err = s.projects.GetProject(s.ctx, s.admin, s.alpha.ID)
	s.Require().NoError(err)
	s.Len(project.Participants, 3)
}

func (s *ServiceTestSuite) TestProjects_HandoverKeepsJoinDate() {
	joined := s.alpha.Participants[1].JoinedAt
	s.now = s.now.Add(48 * time.Hour)

	project, err := s.projects.UpdateProject(s.ctx, s.admin, s.alpha.ID, UpdateProjectInput{
		Participants: []ParticipantInput{
			{UserID: s.alice.ID, Responsibility: models.ResponsibilityManager},
			{UserID: s.bob.ID, Responsibility: models.ResponsibilityMember},
			{UserID: s.carol.ID, Responsibility: models.ResponsibilityMember},
		},
	})
	s.Require().NoError(err)
	s.Equal(s.alice.ID, project.ManagerID)
	s.Require().Len(project.Participants, 3)
	s.Equal(s.alice.ID, project.Participants[0].UserID)
	s.True(project.Participants[0].JoinedAt.Equal(joined))
	s.True(project.Participants[2].JoinedAt.Equal(s.now))
}

func (s *ServiceTestSuite) TestTasks_AssignmentNotifiesAssigneesOnly() {
	aliceEvents, stopAlice := s.hub.Subscribe(s.alice.ID)
	defer stopAlice()
	managerEvents, stopManager := s.hub.Subscribe(s.manager.ID)
	defer stopManager()

	task := s.createTask("Write the release notes", s.alice.ID, s.manager.ID)
	s.dispatcher.Wait()

	select {
	case ev := <-aliceEvents:
		s.Equal(notify.KindTaskAssigned, ev.Kind)
		s.Contains(ev.Body, "Write the release notes")
		s.Equal(fmt.Sprint(task.ID), ev.Refs["task_id"])
	default:
		s.Fail("alice was not notified")
	}
	select {
	case ev := <-managerEvents:
		s.Failf("actor was notified", "got %s", ev.Kind)
	default:
	}
}

func (s *ServiceTestSuite) TestTasks_ChecklistDrivesProgress() {
	task, err := s.tasks.CreateTask(s.ctx, s.manager, CreateTaskInput{
		Title:       "Checklist",
		Description: "three steps",
		ProjectID:   s.alpha.ID,
		Assignees:   []uint64{s.alice.ID},
		Checklist:   []ChecklistInput{{Item: "a"}, {Item: "b"}, {Item: "c"}},
	})
	s.Require().NoError(err)
	s.Equal(0, task.Progress)

	task, err = s.tasks.ToggleChecklistItem(s.ctx, s.alice, task.ID, 1)
	s.Require().NoError(err)
	s.Equal(33, task.Progress)
	s.Require().NotNil(task.Checklist[1].CompletedAt)
	s.True(task.Checklist[1].CompletedAt.Equal(s.now))

	task, err = s.tasks.ToggleChecklistItem(s.ctx, s.alice, task.ID, 0)
	s.Require().NoError(err)
	s.Equal(67, task.Progress)

	// Resubmitting the checklist keeps completion records of untouched items.
	items := make([]ChecklistInput, 0, len(task.Checklist))
	for _, item := range task.Checklist {
		items = append(items, ChecklistInput{ID: item.ID, Item: item.Item, IsCompleted: item.IsCompleted})
	}
	items[2].IsCompleted = true
	task, err = s.tasks.UpdateTask(s.ctx, s.manager, task.ID, UpdateTaskInput{Checklist: items})
	s.Require().NoError(err)
	s.Equal(100, task.Progress)
	s.Require().NotNil(task.Checklist[0].CompletedByID)
	s.Equal(s.alice.ID, *task.Checklist[0].CompletedByID)
	s.Equal(s.manager.ID, *task.Checklist[2].CompletedByID)

	// Clearing the checklist leaves the last explicit progress alone.
	progress := 40
	task, err = s.tasks.UpdateTask(s.ctx, s.manager, task.ID, UpdateTaskInput{Checklist: []ChecklistInput{}, Progress: &progress})
	s.Require().NoError(err)
	s.Equal(40, task.Progress)
}

func (s *ServiceTestSuite) TestTasks_ParentRules() {
	root := s.createTask("Root", s.alice.ID)
	rootID := root.ID
	child, err := s.tasks.CreateTask(s.ctx, s.manager, CreateTaskInput{
		Title: "Child", Description: "d", ProjectID: s.alpha.ID, Assignees: []uint64{s.alice.ID}, ParentTaskID: &rootID,
	})
	s.Require().NoError(err)
	childID := child.ID
	grandchild, err := s.tasks.CreateTask(s.ctx, s.manager, CreateTaskInput{
		Title: "Grandchild", Description: "d", ProjectID: s.alpha.ID, Assignees: []uint64{s.alice.ID}, ParentTaskID: &childID,
	})
	s.Require().NoError(err)

	grandchildID := grandchild.ID
	_, err = s.tasks.UpdateTask(s.ctx, s.manager, root.ID, UpdateTaskInput{ParentTaskID: &grandchildID})
	s.ErrorIs(err, ErrTaskCycle)

	_, err = s.tasks.UpdateTask(s.ctx, s.manager, root.ID, UpdateTaskInput{ParentTaskID: &rootID})
	s.ErrorIs(err, ErrTaskCycle)

	// A task with subtasks stays in its project.
	beta, err := s.projects.CreateProject(s.ctx, s.admin, CreateProjectInput{
		ProjectName: "beta",
		StartDate:   s.now,
		Participants: []ParticipantInput{
			{UserID: s.manager.ID, Responsibility: models.ResponsibilityManager},
			{UserID: s.alice.ID, Responsibility: models.ResponsibilityMember},
		},
	})
	s.Require().NoError(err)
	_, err = s.tasks.UpdateTask(s.ctx, s.manager, root.ID, UpdateTaskInput{ProjectID: &beta.ID})
	s.ErrorIs(err, ErrInvalidInput)

	// Deleting the middle task hands its subtasks to the grandparent.
	s.Require().NoError(s.tasks.DeleteTask(s.ctx, s.admin, child.ID))
	moved, err := s.tasks.GetTask(s.ctx, s.manager, grandchild.ID)
	s.Require().NoError(err)
	s.Require().NotNil(moved.ParentTaskID)
	s.Equal(root.ID, *moved.ParentTaskID)

	s.ErrorIs(s.tasks.DeleteTask(s.ctx, s.manager, root.ID), ErrForbidden)
	s.ErrorIs(s.tasks.DeleteTask(s.ctx, s.admin, child.ID), ErrTaskNotFound)
}

func (s *ServiceTestSuite) TestTasks_MemberScope() {
	mine := s.createTask("Mine", s.alice.ID)
	theirs := s.createTask("Theirs", s.bob.ID)

	tasks, total, err := s.tasks.ListTasks(s.ctx, s.alice, ListTasksInput{Page: 1, PageSize: 20})
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Require().Len(tasks, 1)
	s.Equal(mine.ID, tasks[0].ID)

	_, err = s.tasks.GetTask(s.ctx, s.alice, theirs.ID)
	s.ErrorIs(err, ErrForbidden)

	title := "Renamed"
	_, err = s.tasks.UpdateTask(s.ctx, s.alice, theirs.ID, UpdateTaskInput{Title: &title})
	s.ErrorIs(err, ErrForbidden)

	updated, err := s.tasks.UpdateTask(s.ctx, s.alice, mine.ID, UpdateTaskInput{Title: &title})
	s.Require().NoError(err)
	s.Equal("Renamed", updated.Title)
	s.Len(updated.ActivityLog, 2)

	_, err = s.tasks.UpdateAssigneeState(s.ctx, s.alice, theirs.ID, models.AssigneeCompleted)
	s.ErrorIs(err, ErrNotAssignee)

	_, err = s.tasks.CreateTask(s.ctx, s.manager, CreateTaskInput{
		Title: "Outsider", Description: "d", ProjectID: s.alpha.ID, Assignees: []uint64{s.carol.ID},
	})
	s.ErrorIs(err, ErrInvalidInput)
}

func (s *ServiceTestSuite) TestTasks_DueTodayFilter() {
	today := s.now.Add(3 * time.Hour)
	tomorrow := s.now.Add(24 * time.Hour)
	for title, due := range map[string]time.Time{"today": today, "tomorrow": tomorrow} {
		due := due
		_, err := s.tasks.CreateTask(s.ctx, s.manager, CreateTaskInput{
			Title: title, Description: "d", ProjectID: s.alpha.ID, Assignees: []uint64{s.alice.ID}, DueDate: &due,
		})
		s.Require().NoError(err)
	}

	tasks, _, err := s.tasks.ListTasks(s.ctx, s.manager, ListTasksInput{DueToday: true, Page: 1, PageSize: 20})
	s.Require().NoError(err)
	s.Require().Len(tasks, 1)
	s.Equal("today", tasks[0].Title)
}

func (s *ServiceTestSuite) TestTickets_ScopedToTask() {
	task := s.createTask("With tickets", s.alice.ID)
	other := s.createTask("Other", s.alice.ID)

	_, err := s.tickets.CreateTicket(s.ctx, s.alice, task.ID, CreateTicketInput{IssueTitle: "Bug"})
	s.ErrorIs(err, ErrForbidden)

	ticket, err := s.tickets.CreateTicket(s.ctx, s.manager, task.ID, CreateTicketInput{IssueTitle: "Bug", Tag: models.TagBug})
	s.Require().NoError(err)
	s.Equal(models.TicketOpen, ticket.Status)
	s.Equal(models.PriorityMedium, ticket.Priority)

	_, err = s.tickets.GetTicket(s.ctx, s.manager, other.ID, ticket.ID)
	s.ErrorIs(err, ErrTicketNotFound)

	comment, err := s.tickets.AddComment(s.ctx, s.alice, task.ID, ticket.ID, "  reproduced  ")
	s.Require().NoError(err)
	s.Equal("reproduced", comment.Content)

	_, err = s.tickets.AddComment(s.ctx, s.bob, task.ID, ticket.ID, "me too")
	s.ErrorIs(err, ErrForbidden)

	resolved := models.TicketResolved
	updated, err := s.tickets.UpdateTicket(s.ctx, s.manager, task.ID, ticket.ID, UpdateTicketInput{Status: &resolved})
	s.Require().NoError(err)
	s.Equal(models.TicketResolved, updated.Status)
	s.Len(updated.Comments, 1)

	s.NoError(s.tickets.DeleteTicket(s.ctx, s.manager, task.ID, ticket.ID))
	s.ErrorIs(s.tickets.DeleteTicket(s.ctx, s.manager, task.ID, ticket.ID), ErrTicketNotFound)
}

func (s *ServiceTestSuite) TestAttendance_OncePerDay() {
	record, err := s.attendance.MarkAttendance(s.ctx, s.alice, models.WorkModeOffice)
	s.Require().NoError(err)
	s.Equal("2024-05-06", record.Date)
	s.Equal(models.ApprovalPending, record.ApprovalStatus)

	_, err = s.attendance.MarkAttendance(s.ctx, s.alice, models.WorkModeWFH)
	s.ErrorIs(err, ErrAttendanceExists)

	_, err = s.attendance.MarkAttendance(s.ctx, s.alice, models.WorkMode("beach"))
	s.ErrorIs(err, ErrInvalidInput)

	s.now = s.now.Add(24 * time.Hour)
	next, err := s.attendance.MarkAttendance(s.ctx, s.alice, models.WorkModeWFH)
	s.Require().NoError(err)
	s.Equal("2024-05-07", next.Date)

	today, err := s.attendance.TodayAttendance(s.ctx, s.alice)
	s.Require().NoError(err)
	s.Equal(next.ID, today.ID)
}

func (s *ServiceTestSuite) TestAttendance_DecisionRules() {
	aliceRecord, err := s.attendance.MarkAttendance(s.ctx, s.alice, models.WorkModeOffice)
	s.Require().NoError(err)
	carolRecord, err := s.attendance.MarkAttendance(s.ctx, s.carol, models.WorkModeOffice)
	s.Require().NoError(err)
	managerRecord, err := s.attendance.MarkAttendance(s.ctx, s.manager, models.WorkModeOffice)
	s.Require().NoError(err)

	events, stop := s.hub.Subscribe(s.alice.ID)
	defer stop()

	_, err = s.attendance.DecideAttendance(s.ctx, s.bob, aliceRecord.ID, ActionApprove)
	s.ErrorIs(err, ErrForbidden)
	_, err = s.attendance.DecideAttendance(s.ctx, s.manager, carolRecord.ID, ActionApprove)
	s.ErrorIs(err, ErrForbidden)
	_, err = s.attendance.DecideAttendance(s.ctx, s.manager, managerRecord.ID, ActionApprove)
	s.ErrorIs(err, ErrForbidden)
	_, err = s.attendance.DecideAttendance(s.ctx, s.manager, "missing", ActionApprove)
	s.ErrorIs(err, ErrAttendanceNotFound)

	decided, err := s.attendance.DecideAttendance(s.ctx, s.manager, aliceRecord.ID, ActionReject)
	s.Require().NoError(err)
	s.Equal(models.ApprovalRejected, decided.ApprovalStatus)
	s.Require().NotNil(decided.DecidedAt)

	_, err = s.attendance.DecideAttendance(s.ctx, s.admin, aliceRecord.ID, ActionApprove)
	s.ErrorIs(err, ErrAttendanceDecided)

	s.dispatcher.Wait()
	select {
	case ev := <-events:
		s.Equal(notify.KindAttendanceDecided, ev.Kind)
	default:
		s.Fail("alice was not notified of the decision")
	}

	// Admins decide for anyone, including managers.
	_, err = s.attendance.DecideAttendance(s.ctx, s.admin, managerRecord.ID, ActionApprove)
	s.NoError(err)
}

func (s *ServiceTestSuite) TestAttendance_QueryScope() {
	for _, c := range []Caller{s.alice, s.bob, s.carol, s.manager} {
		_, err := s.attendance.MarkAttendance(s.ctx, c, models.WorkModeOffice)
		s.Require().NoError(err)
	}

	query := func(c Caller, input QueryAttendanceInput) int64 {
		input.Page, input.PageSize = 1, 50
		_, total, err := s.attendance.QueryAttendance(s.ctx, c, input)
		s.Require().NoError(err)
		return total
	}

	s.Equal(int64(4), query(s.admin, QueryAttendanceInput{}))
	s.Equal(int64(3), query(s.manager, QueryAttendanceInput{}))
	s.Equal(int64(1), query(s.alice, QueryAttendanceInput{UserID: &s.bob.ID}))
	s.Equal(int64(0), query(s.admin, QueryAttendanceInput{From: "2024-05-07"}))

	_, _, err := s.attendance.QueryAttendance(s.ctx, s.manager, QueryAttendanceInput{UserID: &s.carol.ID, Page: 1, PageSize: 50})
	s.ErrorIs(err, ErrForbidden)

	_, _, err = s.attendance.QueryAttendance(s.ctx, s.admin, QueryAttendanceInput{From: "2024-05-07", To: "2024-05-01"})
	s.ErrorIs(err, ErrInvalidInput)
}

func (s *ServiceTestSuite) TestFeed_DefaultRecipientsAndReadState() {
	entry, err := s.feed.Post(s.ctx, s.alice, s.alpha.ID, PostInput{Kind: models.FeedUpdate, Message: "Deployed to staging"})
	s.Require().NoError(err)
	s.Require().Len(entry.Recipients, 2)
	s.Equal(s.alice.Email, entry.FromEmail)

	_, err = s.feed.Post(s.ctx, s.carol, s.alpha.ID, PostInput{Kind: models.FeedUpdate, Message: "hi"})
	s.ErrorIs(err, ErrForbidden)

	_, err = s.feed.Post(s.ctx, s.manager, s.alpha.ID, PostInput{
		Kind: models.FeedAnnouncement, Message: "hi", Recipients: []string{s.carol.Email},
	})
	s.ErrorIs(err, ErrInvalidInput)

	read, err := s.feed.MarkRead(s.ctx, s.bob, entry.ID)
	s.Require().NoError(err)
	state, ok := read.RecipientState(s.bob.Email)
	s.True(ok)
	s.Equal(models.RecipientRead, state)
	state, _ = read.RecipientState(s.manager.Email)
	s.Equal(models.RecipientUnread, state)

	_, err = s.feed.MarkRead(s.ctx, s.alice, entry.ID)
	s.ErrorIs(err, ErrNotRecipient)

	entries, _, err := s.feed.List(s.ctx, s.manager, s.alpha.ID, ListFeedInput{UnreadOnly: true, Page: 1, PageSize: 20})
	s.Require().NoError(err)
	s.Len(entries, 1)
	entries, _, err = s.feed.List(s.ctx, s.bob, s.alpha.ID, ListFeedInput{UnreadOnly: true, Page: 1, PageSize: 20})
	s.Require().NoError(err)
	s.Empty(entries)

	// Deleting the project clears its feed.
	s.Require().NoError(s.projects.DeleteProject(s.ctx, s.admin, s.alpha.ID))
	_, err = s.feed.MarkRead(s.ctx, s.manager, entry.ID)
	s.ErrorIs(err, ErrFeedEntryNotFound)
}

func (s *ServiceTestSuite) count(model any, query string, args ...any) int64 {
	var n int64
	s.Require().NoError(s.db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func (s *ServiceTestSuite) TestTasks_DeleteRemovesOwnedRowsAndLiftsSubtasks() {
	root := s.createTask("Root", s.alice.ID)
	rootID := root.ID
	middle, err := s.tasks.CreateTask(s.ctx, s.manager, CreateTaskInput{
		Title: "Middle", Description: "d", ProjectID: s.alpha.ID, Assignees: []uint64{s.alice.ID, s.bob.ID},
		ParentTaskID: &rootID, Checklist: []ChecklistInput{{Item: "a"}, {Item: "b"}},
	})
	s.Require().NoError(err)
	middleID := middle.ID
	leaf, err := s.tasks.CreateTask(s.ctx, s.manager, CreateTaskInput{
		Title: "Leaf", Description: "d", ProjectID: s.alpha.ID, Assignees: []uint64{s.alice.ID}, ParentTaskID: &middleID,
	})
	s.Require().NoError(err)

	sibling := s.createTask("Sibling", s.bob.ID)
	_, err = s.tasks.UpdateTask(s.ctx, s.manager, sibling.ID, UpdateTaskInput{
		Dependencies: []DependencyInput{{DependsOnID: middle.ID, Type: models.DependencyBlockedBy}},
	})
	s.Require().NoError(err)

	doomed, err := s.tickets.CreateTicket(s.ctx, s.manager, middle.ID, CreateTicketInput{IssueTitle: "Flaky"})
	s.Require().NoError(err)
	_, err = s.tickets.AddComment(s.ctx, s.alice, middle.ID, doomed.ID, "seen it twice")
	s.Require().NoError(err)
	kept, err := s.tickets.CreateTicket(s.ctx, s.manager, sibling.ID, CreateTicketInput{IssueTitle: "Other"})
	s.Require().NoError(err)
	_, err = s.tickets.AddComment(s.ctx, s.bob, sibling.ID, kept.ID, "still here")
	s.Require().NoError(err)

	s.Require().NoError(s.tasks.DeleteTask(s.ctx, s.admin, middle.ID))

	s.Zero(s.count(&models.Task{}, "id = ?", middle.ID))
	s.Zero(s.count(&models.Ticket{}, "task_id = ?", middle.ID))
	s.Zero(s.count(&models.TicketComment{}, "ticket_id = ?", doomed.ID))
	s.Zero(s.count(&models.ChecklistItem{}, "task_id = ?", middle.ID))
	s.Zero(s.count(&models.TaskAssignee{}, "task_id = ?", middle.ID))
	s.Zero(s.count(&models.ActivityEntry{}, "task_id = ?", middle.ID))
	s.Zero(s.count(&models.TaskDependency{}, "depends_on_id = ?", middle.ID))

	lifted, err := s.tasks.GetTask(s.ctx, s.manager, leaf.ID)
	s.Require().NoError(err)
	s.Require().NotNil(lifted.ParentTaskID)
	s.Equal(root.ID, *lifted.ParentTaskID)

	other, err := s.tickets.GetTicket(s.ctx, s.manager, sibling.ID, kept.ID)
	s.Require().NoError(err)
	s.Len(other.Comments, 1)
	s.Equal(int64(1), s.count(&models.TicketComment{}, "1 = 1"))
}

func (s *ServiceTestSuite) TestProjects_DeleteRemovesTasksAndTheirRows() {
	task := s.createTask("Doomed", s.alice.ID)
	ticket, err := s.tickets.CreateTicket(s.ctx, s.manager, task.ID, CreateTicketInput{IssueTitle: "Bug"})
	s.Require().NoError(err)
	_, err = s.tickets.AddComment(s.ctx, s.manager, task.ID, ticket.ID, "note")
	s.Require().NoError(err)

	beta, err := s.projects.CreateProject(s.ctx, s.admin, CreateProjectInput{
		ProjectName: "beta",
		StartDate:   s.now,
		Participants: []ParticipantInput{
			{UserID: s.manager.ID, Responsibility: models.ResponsibilityManager},
			{UserID: s.carol.ID, Responsibility: models.ResponsibilityMember},
		},
	})
	s.Require().NoError(err)
	survivor, err := s.tasks.CreateTask(s.ctx, s.manager, CreateTaskInput{
		Title: "Survivor", Description: "d", ProjectID: beta.ID, Assignees: []uint64{s.carol.ID},
	})
	s.Require().NoError(err)

	s.ErrorIs(s.projects.DeleteProject(s.ctx, s.manager, s.alpha.ID), ErrForbidden)
	s.Require().NoError(s.projects.DeleteProject(s.ctx, s.admin, s.alpha.ID))

	_, err = s.projects.GetProject(s.ctx, s.admin, s.alpha.ID)
	s.ErrorIs(err, ErrProjectNotFound)
	s.Zero(s.count(&models.Task{}, "project_id = ?", s.alpha.ID))
	s.Zero(s.count(&models.Participant{}, "project_id = ?", s.alpha.ID))
	s.Zero(s.count(&models.Ticket{}, "task_id = ?", task.ID))
	s.Zero(s.count(&models.TicketComment{}, "ticket_id = ?", ticket.ID))
	s.Zero(s.count(&models.TaskAssignee{}, "task_id = ?", task.ID))

	_, err = s.tasks.GetTask(s.ctx, s.manager, survivor.ID)
	s.NoError(err)
	s.ErrorIs(s.projects.DeleteProject(s.ctx, s.admin, s.alpha.ID), ErrProjectNotFound)
}

func (s *ServiceTestSuite) TestAuth_PasswordLengthBounds() {
	_, err := s.auth.Signup(s.ctx, SignupInput{Email: "long@example.com", Name: "Long", Password: strings.Repeat("a", 80)})
	s.ErrorIs(err, ErrInvalidInput)

	// The bound is in bytes: 40 two-byte runes are over it.
	_, err = s.auth.Signup(s.ctx, SignupInput{Email: "long@example.com", Name: "Long", Password: strings.Repeat("é", 40)})
	s.ErrorIs(err, ErrInvalidInput)

	_, err = s.auth.Signup(s.ctx, SignupInput{Email: "long@example.com", Name: "Long", Password: strings.Repeat("a", 72)})
	s.NoError(err)

	s.ErrorIs(s.auth.ChangePassword(s.ctx, s.alice, "supersecret", strings.Repeat("b", 73)), ErrInvalidInput)
	s.ErrorIs(s.auth.ChangePassword(s.ctx, s.alice, "supersecret", "short"), ErrPasswordTooShort)

	_, _, err = s.users.Create(s.ctx, s.admin, CreateUserInput{Email: "dave@example.com", Password: strings.Repeat("c", 100)})
	s.ErrorIs(err, ErrInvalidInput)
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}
