package callsession

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewStore(mock)
}

func TestCreateDefaults(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectExec("INSERT INTO call_sessions").
		WithArgs(pgxmock.AnyArg(), int64(42), int64(7), "+447000000001", "+447911000111", StatusInitiating, StagePending, "agent_dialer").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	sess := &Session{
		DonorID:    42,
		AgentID:    7,
		AgentPhone: "+447000000001",
		DonorPhone: "+447911000111",
		Source:     "agent_dialer",
	}
	require.NoError(t, store.Create(context.Background(), sess))
	assert.NotEqual(t, uuid.Nil, sess.ID)
}

func TestApplyStatusUpdateMatchesBySID(t *testing.T) {
	mock, store := newMockStore(t)
	endedAt := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	dur := 47

	mock.ExpectExec("UPDATE call_sessions").
		WithArgs("CA123", "CA123", "agent_dialer", "completed", StatusCompleted, StageContactMade,
			"", &dur, "", "", &endedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.ApplyStatusUpdate(context.Background(), StatusUpdate{
		SessionID:       uuid.New(),
		CallSID:         "CA123",
		Source:          "agent_dialer",
		LegStatus:       "completed",
		Status:          StatusCompleted,
		Stage:           StageContactMade,
		DurationSeconds: &dur,
		EndedAt:         &endedAt,
	})
	require.NoError(t, err)
}

func TestApplyStatusUpdateFallsBackToSessionID(t *testing.T) {
	mock, store := newMockStore(t)
	sessionID := uuid.New()

	// SID match touches no rows: the launcher has not bound the SID yet.
	mock.ExpectExec("UPDATE call_sessions").
		WithArgs("CA123", "CA123", "agent_dialer", "ringing", "", "", "", nil, "", "", nil).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	// Fallback by internal id backfills the SID.
	mock.ExpectExec("UPDATE call_sessions").
		WithArgs(sessionID, "CA123", "agent_dialer", "ringing", "", "", "", nil, "", "", nil).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.ApplyStatusUpdate(context.Background(), StatusUpdate{
		SessionID: sessionID,
		CallSID:   "CA123",
		Source:    "agent_dialer",
		LegStatus: "ringing",
	})
	require.NoError(t, err)
}

func TestApplyStatusUpdateNoMatch(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectExec("UPDATE call_sessions").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.ApplyStatusUpdate(context.Background(), StatusUpdate{CallSID: "CA404"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAttachRecordingFallbackBackfillsSID(t *testing.T) {
	mock, store := newMockStore(t)
	sessionID := uuid.New()

	mock.ExpectExec("UPDATE call_sessions").
		WithArgs(sessionID, "CA123", "https://api.example/rec/RE1.mp3").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("UPDATE call_sessions").
		WithArgs(sessionID, "CA123", "https://api.example/rec/RE1.mp3").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.AttachRecording(context.Background(), sessionID, "CA123", "https://api.example/rec/RE1.mp3")
	require.NoError(t, err)
}

func TestUpsertCallLogRequiresSID(t *testing.T) {
	_, store := newMockStore(t)
	err := store.UpsertCallLog(context.Background(), CallLogEntry{})
	assert.Error(t, err)
}

func TestUpsertCallLog(t *testing.T) {
	mock, store := newMockStore(t)
	sessionID := uuid.New()
	dur := 30

	mock.ExpectExec("INSERT INTO call_logs").
		WithArgs("CA123", sessionID, int64(42), "outbound", "completed", &dur, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.UpsertCallLog(context.Background(), CallLogEntry{
		CallSID:         "CA123",
		SessionID:       sessionID,
		DonorID:         42,
		Status:          "completed",
		DurationSeconds: &dur,
	})
	require.NoError(t, err)
}

func TestMarkLaunched(t *testing.T) {
	mock, store := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE call_sessions").
		WithArgs(id, "CA555", StatusInProgress).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.MarkLaunched(context.Background(), id, "CA555"))
}

func TestMarkLaunchFailed(t *testing.T) {
	mock, store := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE call_sessions").
		WithArgs(id, StatusFailed, OutcomeCarrierError, StageAttemptFailed, "Invalid 'To' Phone Number").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.MarkLaunchFailed(context.Background(), id, "Invalid 'To' Phone Number"))
}
