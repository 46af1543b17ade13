package callsession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrSessionNotFound is returned when neither the call SID nor the internal
// session id matches a row.
var ErrSessionNotFound = errors.New("callsession: session not found")

// Querier is the subset of pgxpool.Pool the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists call sessions and the denormalized call log.
type Store struct {
	pool Querier
}

// NewStore wraps the given pool.
func NewStore(pool Querier) *Store {
	return &Store{pool: pool}
}

// Create inserts a new session in initiating state.
func (s *Store) Create(ctx context.Context, sess *Session) error {
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	if sess.Status == "" {
		sess.Status = StatusInitiating
	}
	if sess.Stage == "" {
		sess.Stage = StagePending
	}
	query := `
		INSERT INTO call_sessions (id, donor_id, agent_id, agent_phone, donor_phone, status, conversation_stage, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.pool.Exec(ctx, query,
		sess.ID, sess.DonorID, sess.AgentID, sess.AgentPhone, sess.DonorPhone, sess.Status, sess.Stage, sess.Source)
	if err != nil {
		return fmt.Errorf("callsession: create: %w", err)
	}
	return nil
}

// Get loads a session by internal id, for portal polling.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	query := `
		SELECT id, COALESCE(call_sid, ''), donor_id, agent_id, agent_phone, donor_phone,
			status, conversation_stage, COALESCE(outcome, ''), COALESCE(leg_status, ''),
			duration_seconds, COALESCE(error_code, ''), COALESCE(error_message, ''),
			COALESCE(recording_url, ''), COALESCE(source, ''),
			started_at, ended_at, created_at, updated_at
		FROM call_sessions
		WHERE id = $1
	`
	var sess Session
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&sess.ID, &sess.CallSID, &sess.DonorID, &sess.AgentID, &sess.AgentPhone, &sess.DonorPhone,
		&sess.Status, &sess.Stage, &sess.Outcome, &sess.LegStatus,
		&sess.DurationSeconds, &sess.ErrorCode, &sess.ErrorMessage,
		&sess.RecordingURL, &sess.Source,
		&sess.StartedAt, &sess.EndedAt, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("callsession: get: %w", err)
	}
	return &sess, nil
}

// MarkLaunched binds the carrier-assigned call SID and moves the session to
// in_progress.
func (s *Store) MarkLaunched(ctx context.Context, id uuid.UUID, callSID string) error {
	query := `
		UPDATE call_sessions
		SET call_sid = $2, status = $3, started_at = COALESCE(started_at, now()), updated_at = now()
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query, id, callSID, StatusInProgress)
	if err != nil {
		return fmt.Errorf("callsession: mark launched: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// MarkLaunchFailed records a carrier rejection before any call existed.
func (s *Store) MarkLaunchFailed(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE call_sessions
		SET status = $2, outcome = $3, conversation_stage = $4,
			error_message = $5, ended_at = COALESCE(ended_at, now()), updated_at = now()
		WHERE id = $1
	`
	_, err := s.pool.Exec(ctx, query, id, StatusFailed, OutcomeCarrierError, StageAttemptFailed, message)
	if err != nil {
		return fmt.Errorf("callsession: mark launch failed: %w", err)
	}
	return nil
}

// StatusUpdate is one reconciled callback expressed as field-level sets. Empty
// strings and nil pointers leave the stored value untouched, so delivering the
// same update twice is safe.
type StatusUpdate struct {
	SessionID       uuid.UUID
	CallSID         string
	Source          string
	LegStatus       string
	Status          string
	Stage           string
	Outcome         string
	DurationSeconds *int
	ErrorCode       string
	ErrorMessage    string
	EndedAt         *time.Time
}

// ApplyStatusUpdate writes one reconciled callback. Matching precedence: the
// external call SID when a row already carries it, else the internal session
// id from the callback URL. The fallback path also backfills the SID, which
// covers callbacks racing ahead of the launcher's own write.
func (s *Store) ApplyStatusUpdate(ctx context.Context, upd StatusUpdate) error {
	const set = `
		SET call_sid = COALESCE(NULLIF($2, ''), call_sid),
			source = COALESCE(NULLIF($3, ''), source),
			leg_status = COALESCE(NULLIF($4, ''), leg_status),
			status = CASE
				WHEN status IN ('completed', 'failed') AND $5 = 'in_progress' THEN status
				ELSE COALESCE(NULLIF($5, ''), status)
			END,
			conversation_stage = CASE
				WHEN conversation_stage IN ('contact_made', 'attempt_failed') AND $6 = 'pending' THEN conversation_stage
				ELSE COALESCE(NULLIF($6, ''), conversation_stage)
			END,
			outcome = COALESCE(NULLIF($7, ''), outcome),
			duration_seconds = COALESCE($8, duration_seconds),
			error_code = COALESCE(error_code, NULLIF($9, '')),
			error_message = COALESCE(error_message, NULLIF($10, '')),
			ended_at = COALESCE(ended_at, $11),
			updated_at = now()
	`
	args := []any{
		nil, // placeholder for the WHERE argument
		upd.CallSID, upd.Source, upd.LegStatus, upd.Status, upd.Stage,
		upd.Outcome, upd.DurationSeconds, upd.ErrorCode, upd.ErrorMessage, upd.EndedAt,
	}

	if upd.CallSID != "" {
		args[0] = upd.CallSID
		tag, err := s.pool.Exec(ctx, "UPDATE call_sessions "+set+" WHERE call_sid = $1", args...)
		if err != nil {
			return fmt.Errorf("callsession: status update by sid: %w", err)
		}
		if tag.RowsAffected() > 0 {
			return nil
		}
	}

	if upd.SessionID == uuid.Nil {
		return ErrSessionNotFound
	}
	args[0] = upd.SessionID
	tag, err := s.pool.Exec(ctx, "UPDATE call_sessions "+set+" WHERE id = $1", args...)
	if err != nil {
		return fmt.Errorf("callsession: status update by session id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// AttachRecording stores the playable recording URL. The (sid, id) pair is
// tried first; the id-only fallback backfills the SID when the recording
// callback beats the status callback that would have bound it.
func (s *Store) AttachRecording(ctx context.Context, sessionID uuid.UUID, callSID, recordingURL string) error {
	query := `
		UPDATE call_sessions
		SET recording_url = $3, updated_at = now()
		WHERE call_sid = $2 AND id = $1
	`
	tag, err := s.pool.Exec(ctx, query, sessionID, callSID, recordingURL)
	if err != nil {
		return fmt.Errorf("callsession: attach recording: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	fallback := `
		UPDATE call_sessions
		SET recording_url = $3, call_sid = COALESCE(call_sid, NULLIF($2, '')), updated_at = now()
		WHERE id = $1
	`
	tag, err = s.pool.Exec(ctx, fallback, sessionID, callSID, recordingURL)
	if err != nil {
		return fmt.Errorf("callsession: attach recording fallback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// CallLogEntry is the denormalized per-call row written alongside every
// session update, keyed by call SID.
type CallLogEntry struct {
	CallSID         string
	SessionID       uuid.UUID
	DonorID         int64
	Direction       string
	Status          string
	DurationSeconds *int
	RecordingURL    string
}

// UpsertCallLog writes the denormalized row. Duplicate callbacks for the same
// SID update in place rather than inserting twice.
func (s *Store) UpsertCallLog(ctx context.Context, entry CallLogEntry) error {
	if entry.CallSID == "" {
		return errors.New("callsession: call log requires call sid")
	}
	if entry.Direction == "" {
		entry.Direction = "outbound"
	}
	query := `
		INSERT INTO call_logs (call_sid, session_id, donor_id, direction, status, duration_seconds, recording_url)
		VALUES ($1, $2, NULLIF($3, 0), $4, NULLIF($5, ''), $6, NULLIF($7, ''))
		ON CONFLICT (call_sid) DO UPDATE SET
			session_id = COALESCE(EXCLUDED.session_id, call_logs.session_id),
			donor_id = COALESCE(EXCLUDED.donor_id, call_logs.donor_id),
			status = COALESCE(EXCLUDED.status, call_logs.status),
			duration_seconds = COALESCE(EXCLUDED.duration_seconds, call_logs.duration_seconds),
			recording_url = COALESCE(EXCLUDED.recording_url, call_logs.recording_url),
			updated_at = now()
	`
	var sessionID any
	if entry.SessionID != uuid.Nil {
		sessionID = entry.SessionID
	}
	_, err := s.pool.Exec(ctx, query,
		entry.CallSID, sessionID, entry.DonorID, entry.Direction, entry.Status, entry.DurationSeconds, entry.RecordingURL)
	if err != nil {
		return fmt.Errorf("callsession: upsert call log: %w", err)
	}
	return nil
}
