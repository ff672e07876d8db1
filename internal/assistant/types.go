// Package assistant implements the conversational assistant orchestrator:
// context aggregation, prompt compilation, the session state machine,
// suggestion generation and response formatting.
package assistant

import (
	"errors"
	"time"

	"github.com/ashureev/mutuelle-assistant/internal/domain"
)

// State is the lifecycle position of a Manager.
type State string

// Session states.
const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateSending      State = "sending"
	StateError        State = "error"
)

var (
	// ErrNoIdentity is returned when the context has no user.
	ErrNoIdentity = errors.New("user identity unavailable")
	// ErrBusy is returned when an initialization or a send is already in flight.
	ErrBusy = errors.New("assistant is busy")
	// ErrNotReady is returned when sending before the session is open.
	ErrNotReady = errors.New("assistant is not ready")
	// ErrEmptyMessage is returned when sending blank text.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNotIdle is returned when initializing from any state but idle.
	ErrNotIdle = errors.New("assistant is not idle")
	// ErrClosed is returned once the manager has been closed.
	ErrClosed = errors.New("assistant is closed")
)

// ChatMessage is one entry of the conversation. It is never mutated after creation.
type ChatMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	IsUser    bool      `json:"is_user"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatContext is a point-in-time view of every data source. A nil slot is absent.
type ChatContext struct {
	UserInfo      *domain.User          `json:"user_info,omitempty"`
	MemberData    *domain.MemberRecord  `json:"member_data,omitempty"`
	DashboardData *domain.Dashboard     `json:"dashboard_data,omitempty"`
	SessionData   *domain.MutualSession `json:"session_data,omitempty"`
	ExerciseData  *domain.Exercise      `json:"exercise_data,omitempty"`
	ConfigData    *domain.MutualConfig  `json:"config_data,omitempty"`
}

// HasIdentity reports whether the context can be compiled.
func (c ChatContext) HasIdentity() bool {
	return c.UserInfo != nil
}

// Role returns the user's role, or the empty role without identity.
func (c ChatContext) Role() domain.Role {
	if c.UserInfo == nil {
		return ""
	}
	return c.UserInfo.Role
}

// Snapshot is what the chat UI renders.
type Snapshot struct {
	Messages      []ChatMessage `json:"messages"`
	Suggestions   []string      `json:"suggestions"`
	State         State         `json:"state"`
	IsLoading     bool          `json:"is_loading"`
	IsInitialized bool          `json:"is_initialized"`
	Error         string        `json:"error,omitempty"`
	HasError      bool          `json:"has_error"`
}
