// Package callsession owns the agent-initiated call lifecycle: launching the
// call, bridging the agent to the donor, and reconciling the carrier's status
// and recording callbacks into one authoritative row per call.
package callsession

import (
	"time"

	"github.com/google/uuid"
)

// Session status values.
const (
	StatusInitiating = "initiating"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Conversation stage values. Terminal stages are sticky: a late non-terminal
// callback never moves a session back to pending.
const (
	StagePending       = "pending"
	StageContactMade   = "contact_made"
	StageAttemptFailed = "attempt_failed"
)

// Outcome classifications for failed attempts.
const (
	OutcomeBusySignal          = "busy_signal"
	OutcomeNoAnswer            = "no_answer"
	OutcomeDroppedBeforeTalk   = "call_dropped_before_talk"
	OutcomeCallFailedTechnical = "call_failed_technical"
	OutcomeCarrierError        = "twilio_error"
)

// Session is the authoritative row for one agent-involved call. CallSID is
// empty until the carrier accepts the call; before that, callbacks are matched
// by the internal ID carried in every callback URL.
type Session struct {
	ID              uuid.UUID
	CallSID         string
	DonorID         int64
	AgentID         int64
	AgentPhone      string
	DonorPhone      string
	Status          string
	Stage           string
	Outcome         string
	LegStatus       string
	DurationSeconds *int
	ErrorCode       string
	ErrorMessage    string
	RecordingURL    string
	Source          string
	StartedAt       *time.Time
	EndedAt         *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
