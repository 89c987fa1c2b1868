package models

import "time"

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendancePending AttendanceStatus = "pending"
)

type WorkMode string

const (
	WorkModeOffice WorkMode = "office"
	WorkModeWFH    WorkMode = "wfh"
)

func (m WorkMode) Valid() bool {
	return m == WorkModeOffice || m == WorkModeWFH
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// AttendanceRecord is one ledger entry per user per day. It is stored either in the
// relational database or in MongoDB, so the id is a UUID string.
type AttendanceRecord struct {
	ID             string           `gorm:"primarykey;type:varchar(36)" bson:"_id" json:"id"`
	UserID         uint64           `gorm:"not null;uniqueIndex:idx_attendance_user_date" bson:"user_id" json:"user_id"`
	Date           string           `gorm:"type:varchar(10);not null;uniqueIndex:idx_attendance_user_date;index" bson:"date" json:"date"` // YYYY-MM-DD
	Status         AttendanceStatus `gorm:"type:varchar(20);not null" bson:"status" json:"status"`
	WorkMode       WorkMode         `gorm:"type:varchar(20);not null" bson:"work_mode" json:"work_mode"`
	ApprovalStatus ApprovalStatus   `gorm:"type:varchar(20);not null;default:'pending'" bson:"approval_status" json:"approval_status"`
	ApprovedByID   *uint64          `bson:"approved_by,omitempty" json:"approved_by_id"`
	DecidedAt      *time.Time       `bson:"decided_at,omitempty" json:"decided_at"`
	CreatedAt      time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `bson:"updated_at" json:"updated_at"`
}

func (AttendanceRecord) TableName() string {
	return "attendance_records"
}
