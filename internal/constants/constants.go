package constants

import "time"

// Session and context keys
const (
	SessionCookieName = "circuit_session"
	ContextKeyUserID  = "user_id"
	ContextKeyCaller  = "caller"
	ContextKeyTask    = "task"
	ContextKeyProject = "project"
)

// Authentication
const (
	MinPasswordLength       = 8
	MaxPasswordLength       = 72 // bcrypt input limit, in bytes
	TemporaryPasswordLength = 12
	BearerPrefix            = "Bearer "
	DefaultTokenTTL         = 7 * 24 * time.Hour
)

// Pagination
const (
	MinPageSize     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AI task generation
const (
	MaxAIGeneratedTasks = 20
)

// DateLayout is the day-granularity format used by the attendance ledger.
const DateLayout = time.DateOnly
