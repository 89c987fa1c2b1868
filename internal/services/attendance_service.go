package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/yukikurage/circuit/internal/constants"
	"github.com/yukikurage/circuit/internal/models"
	"github.com/yukikurage/circuit/internal/notify"
	"github.com/yukikurage/circuit/internal/repository"
)

var (
	ErrAttendanceExists   = errors.New("attendance already marked for today")
	ErrAttendanceNotFound = errors.New("attendance record not found")
	ErrAttendanceDecided  = errors.New("attendance record has already been decided")
)

// AttendanceAction is the approver's decision.
type AttendanceAction string

const (
	ActionApprove AttendanceAction = "approve"
	ActionReject  AttendanceAction = "reject"
)

// AttendanceService runs the daily attendance ledger and its approval workflow.
type AttendanceService struct {
	attendanceRepo repository.AttendanceRepository
	projectRepo    repository.ProjectRepository
	dispatcher     *notify.Dispatcher
	now            func() time.Time
}

func NewAttendanceService(attendanceRepo repository.AttendanceRepository, projectRepo repository.ProjectRepository, dispatcher *notify.Dispatcher) *AttendanceService {
	return &AttendanceService{
		attendanceRepo: attendanceRepo,
		projectRepo:    projectRepo,
		dispatcher:     dispatcher,
		now:            time.Now,
	}
}

// QueryAttendanceInput represents filters for the attendance report
type QueryAttendanceInput struct {
	UserID         *uint64
	From           string
	To             string
	Status         *models.AttendanceStatus
	ApprovalStatus *models.ApprovalStatus
	Page           int
	PageSize       int
}

// MarkAttendance records the caller as present today. The (user, date) unique index
// is authoritative; the lookup only gives the common case a clean answer.
func (s *AttendanceService) MarkAttendance(ctx context.Context, caller Caller, workMode models.WorkMode) (*models.AttendanceRecord, error) {
	if !workMode.Valid() {
		return nil, invalid("work_mode", "work mode must be office or wfh")
	}

	now := s.now()
	today := now.Format(constants.DateLayout)

	if _, err := s.attendanceRepo.FindByUserAndDate(ctx, caller.ID, today); err == nil {
		return nil, ErrAttendanceExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check attendance: %w", err)
	}

	record := &models.AttendanceRecord{
		ID:             uuid.NewString(),
		UserID:         caller.ID,
		Date:           today,
		Status:         models.AttendancePresent,
		WorkMode:       workMode,
		ApprovalStatus: models.ApprovalPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.attendanceRepo.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAttendanceExists
		}
		return nil, fmt.Errorf("failed to mark attendance: %w", err)
	}

	return record, nil
}

// TodayAttendance returns the caller's record for today.
func (s *AttendanceService) TodayAttendance(ctx context.Context, caller Caller) (*models.AttendanceRecord, error) {
	record, err := s.attendanceRepo.FindByUserAndDate(ctx, caller.ID, s.now().Format(constants.DateLayout))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAttendanceNotFound
		}
		return nil, fmt.Errorf("failed to find attendance: %w", err)
	}
	return record, nil
}

// DecideAttendance approves or rejects a pending record. Managers may only decide for
// users on the rosters they manage, and nobody decides their own record.
func (s *AttendanceService) DecideAttendance(ctx context.Context, caller Caller, recordID string, action AttendanceAction) (*models.AttendanceRecord, error) {
	if !caller.IsStaff() {
		return nil, ErrForbidden
	}

	var decision models.ApprovalStatus
	switch action {
	case ActionApprove:
		decision = models.ApprovalApproved
	case ActionReject:
		decision = models.ApprovalRejected
	default:
		return nil, invalid("action", "action must be approve or reject")
	}

	record, err := s.find(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.UserID == caller.ID {
		return nil, ErrForbidden
	}
	if !caller.IsAdmin() {
		managed, err := s.projectRepo.ListManagedUserIDs(ctx, caller.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve managed users: %w", err)
		}
		if !slices.Contains(managed, record.UserID) {
			return nil, ErrForbidden
		}
	}
	if record.ApprovalStatus != models.ApprovalPending {
		return nil, ErrAttendanceDecided
	}

	if err := s.attendanceRepo.Decide(ctx, record.ID, decision, caller.ID, s.now()); err != nil {
		switch {
		case errors.Is(err, repository.ErrStateChanged):
			return nil, ErrAttendanceDecided
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrAttendanceNotFound
		}
		return nil, fmt.Errorf("failed to decide attendance: %w", err)
	}

	decided, err := s.find(ctx, record.ID)
	if err != nil {
		return nil, err
	}

	s.dispatcher.Dispatch(ctx, notify.Notification{
		Kind:         notify.KindAttendanceDecided,
		ActorID:      caller.ID,
		RecipientIDs: []uint64{decided.UserID},
		Data: map[string]any{
			"Actor":    caller.DisplayName(),
			"Date":     decided.Date,
			"Decision": string(decision),
		},
		Refs: map[string]string{"attendance_id": decided.ID},
	})

	return decided, nil
}

// QueryAttendance is the role-scoped report: members see their own records, managers the
// users on rosters they manage plus themselves, admins everyone.
func (s *AttendanceService) QueryAttendance(ctx context.Context, caller Caller, input QueryAttendanceInput) ([]models.AttendanceRecord, int64, error) {
	if err := validateDateRange(input.From, input.To); err != nil {
		return nil, 0, err
	}

	filter := repository.AttendanceFilter{
		From:           input.From,
		To:             input.To,
		Status:         input.Status,
		ApprovalStatus: input.ApprovalStatus,
		Page:           input.Page,
		PageSize:       input.PageSize,
	}

	switch {
	case caller.IsAdmin():
		if input.UserID != nil {
			filter.UserIDs = []uint64{*input.UserID}
		}
	case caller.IsStaff():
		managed, err := s.projectRepo.ListManagedUserIDs(ctx, caller.ID)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to resolve managed users: %w", err)
		}
		scope := append(managed, caller.ID)
		if input.UserID != nil {
			if !slices.Contains(scope, *input.UserID) {
				return nil, 0, ErrForbidden
			}
			scope = []uint64{*input.UserID}
		}
		filter.UserIDs = uniqueUint64(scope)
	default:
		filter.UserIDs = []uint64{caller.ID}
	}

	records, total, err := s.attendanceRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query attendance: %w", err)
	}
	return records, total, nil
}

func (s *AttendanceService) find(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	record, err := s.attendanceRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAttendanceNotFound
		}
		return nil, fmt.Errorf("failed to find attendance: %w", err)
	}
	return record, nil
}

func validateDateRange(from, to string) error {
	var fromDate, toDate time.Time
	var err error
	if from != "" {
		if fromDate, err = time.Parse(constants.DateLayout, from); err != nil {
			return invalid("from", "must be a date in YYYY-MM-DD format")
		}
	}
	if to != "" {
		if toDate, err = time.Parse(constants.DateLayout, to); err != nil {
			return invalid("to", "must be a date in YYYY-MM-DD format")
		}
	}
	if from != "" && to != "" && toDate.Before(fromDate) {
		return invalid("to", "must not be before from")
	}
	return nil
}
