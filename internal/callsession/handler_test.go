package callsession

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donorlink/callops/internal/donors"
)

func portalRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/calls", h.InitiateCall)
	r.Get("/api/calls/{sessionID}", h.PollStatus)
	return r
}

func TestInitiateCallValidation(t *testing.T) {
	_, store := newMockStore(t)
	launcher := NewLauncher(store, &fakeDonorReader{err: donors.ErrNotFound}, &fakeCallCreator{}, NewURLBuilder("https://x"), "+44", false, nil)
	router := portalRouter(NewHandler(launcher, store, nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/calls", strings.NewReader(`{"agent_id":0}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/calls",
		strings.NewReader(`{"agent_id":1,"donor_id":9,"agent_phone":"07000000001"}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
}

func TestInitiateCallSuccess(t *testing.T) {
	mock, store := newMockStore(t)
	donorReader := &fakeDonorReader{donor: &donors.Donor{ID: 42, Name: "Grace", Phone: "07911000111"}}
	launcher := NewLauncher(store, donorReader, &fakeCallCreator{sid: "CA9"}, NewURLBuilder("https://callops.example"), "+44", false, nil)
	router := portalRouter(NewHandler(launcher, store, nil))

	mock.ExpectExec("INSERT INTO call_sessions").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE call_sessions").WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/calls",
		strings.NewReader(`{"agent_id":7,"donor_id":42,"agent_phone":"07000000001"}`)))

	require.Equal(t, http.StatusCreated, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "CA9", body["call_sid"])
	pollURL, ok := body["poll_url"].(string)
	require.True(t, ok)
	assert.Contains(t, pollURL, "/api/calls/")
}

func TestPollStatus(t *testing.T) {
	mock, store := newMockStore(t)
	router := portalRouter(NewHandler(nil, store, nil))
	sessionID := uuid.New()
	now := time.Now()
	dur := 47

	mock.ExpectQuery("SELECT id").
		WithArgs(sessionID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "call_sid", "donor_id", "agent_id", "agent_phone", "donor_phone",
			"status", "conversation_stage", "outcome", "leg_status",
			"duration_seconds", "error_code", "error_message",
			"recording_url", "source", "started_at", "ended_at", "created_at", "updated_at",
		}).AddRow(
			sessionID, "CA9", int64(42), int64(7), "+447000000001", "+447911000111",
			StatusCompleted, StageContactMade, "", "completed",
			&dur, "", "",
			"https://x/RE1.mp3", "agent_dialer", &now, &now, now, now,
		))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/calls/"+sessionID.String(), nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body sessionStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, StageContactMade, body.Stage)
	require.NotNil(t, body.DurationSeconds)
	assert.Equal(t, 47, *body.DurationSeconds)
	assert.Empty(t, body.Outcome)
}

func TestPollStatusNotFound(t *testing.T) {
	mock, store := newMockStore(t)
	router := portalRouter(NewHandler(nil, store, nil))
	sessionID := uuid.New()

	mock.ExpectQuery("SELECT id").
		WithArgs(sessionID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/calls/"+sessionID.String(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/calls/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
