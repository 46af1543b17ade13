package callsession

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/donorlink/callops/internal/observability/metrics"
	"github.com/donorlink/callops/internal/twiml"
	"github.com/donorlink/callops/internal/webhooklog"
	"github.com/donorlink/callops/pkg/logging"
)

var reconcilerTracer = otel.Tracer("callops.internal.callsession.reconciler")

type auditLog interface {
	Append(ctx context.Context, category, callSID, payload string) (uuid.UUID, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
}

// Reconciler consumes lifecycle and recording callbacks and folds them into
// the session row. Every write is an idempotent field-level set, so duplicate
// and out-of-order deliveries converge on the same final state.
type Reconciler struct {
	sessions *Store
	audit    auditLog
	metrics  *metrics.VoiceMetrics
	logger   *logging.Logger
}

// NewReconciler wires a reconciler.
func NewReconciler(sessions *Store, audit auditLog, m *metrics.VoiceMetrics, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{sessions: sessions, audit: audit, metrics: m, logger: logger}
}

// HandleStatus processes one lifecycle callback for either leg.
func (rc *Reconciler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := reconcilerTracer.Start(r.Context(), "callsession.status_callback")
	defer span.End()

	if err := r.ParseForm(); err != nil {
		rc.logger.Error("failed to parse status callback form", "error", err)
		rc.metrics.ObserveCallback(webhooklog.CategoryStatus, "bad_request")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	cb := parseStatusCallback(r)
	sessionID := sessionIDFromQuery(r)
	span.SetAttributes(
		attribute.String("callops.call_sid", cb.CallSID),
		attribute.String("callops.session_id", sessionID.String()),
		attribute.String("callops.call_status", cb.CallStatus),
		attribute.Bool("callops.has_dial_leg", cb.HasDialLeg),
	)

	// Audit first; never let audit failures block reconciliation.
	auditID := rc.appendAudit(ctx, webhooklog.CategoryStatus, cb.CallSID, r.PostForm)

	cls := Classify(cb)
	upd := StatusUpdate{
		SessionID:       sessionID,
		CallSID:         cb.CallSID,
		Source:          "agent_dialer",
		LegStatus:       cls.LegStatus,
		Status:          cls.Status,
		Stage:           cls.Stage,
		Outcome:         cls.Outcome,
		DurationSeconds: cls.DurationSeconds,
		ErrorCode:       cls.ErrorCode,
		ErrorMessage:    cls.ErrorMessage,
	}
	if cls.Terminal {
		endedAt := cb.ReceivedAt
		upd.EndedAt = &endedAt
	}

	if err := rc.sessions.ApplyStatusUpdate(ctx, upd); err != nil {
		span.RecordError(err)
		rc.logger.Error("status reconciliation failed",
			"error", err, "call_sid", cb.CallSID, "session_id", sessionID)
		rc.metrics.ObserveCallback(webhooklog.CategoryStatus, "error")
		http.Error(w, "Failed to update session", http.StatusInternalServerError)
		return
	}

	if cb.CallSID != "" {
		if err := rc.sessions.UpsertCallLog(ctx, CallLogEntry{
			CallSID:         cb.CallSID,
			SessionID:       sessionID,
			Status:          cls.LegStatus,
			DurationSeconds: cls.DurationSeconds,
		}); err != nil {
			rc.logger.Warn("call log upsert failed", "error", err, "call_sid", cb.CallSID)
		}
	}

	rc.markAudited(ctx, auditID)
	if cls.Terminal {
		rc.metrics.ObserveOutcome(cls.Outcome)
	}
	rc.metrics.ObserveCallback(webhooklog.CategoryStatus, "ok")
	rc.metrics.ObserveLatency(webhooklog.CategoryStatus, time.Since(start).Seconds())

	twiml.New().Write(w)
}

// HandleRecording processes the recording-ready callback.
func (rc *Reconciler) HandleRecording(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := reconcilerTracer.Start(r.Context(), "callsession.recording_callback")
	defer span.End()

	if err := r.ParseForm(); err != nil {
		rc.logger.Error("failed to parse recording callback form", "error", err)
		rc.metrics.ObserveCallback(webhooklog.CategoryRecording, "bad_request")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	callSID := r.PostFormValue("CallSid")
	recordingURL := NormalizeRecordingURL(r.PostFormValue("RecordingUrl"))
	sessionID := sessionIDFromQuery(r)
	span.SetAttributes(
		attribute.String("callops.call_sid", callSID),
		attribute.String("callops.session_id", sessionID.String()),
	)

	auditID := rc.appendAudit(ctx, webhooklog.CategoryRecording, callSID, r.PostForm)

	if recordingURL == "" {
		rc.logger.Warn("recording callback without url", "call_sid", callSID)
		rc.metrics.ObserveCallback(webhooklog.CategoryRecording, "bad_request")
		twiml.New().Write(w)
		return
	}

	if err := rc.sessions.AttachRecording(ctx, sessionID, callSID, recordingURL); err != nil {
		span.RecordError(err)
		rc.logger.Error("recording reconciliation failed",
			"error", err, "call_sid", callSID, "session_id", sessionID)
		rc.metrics.ObserveCallback(webhooklog.CategoryRecording, "error")
		http.Error(w, "Failed to attach recording", http.StatusInternalServerError)
		return
	}

	if callSID != "" {
		if err := rc.sessions.UpsertCallLog(ctx, CallLogEntry{
			CallSID:      callSID,
			SessionID:    sessionID,
			RecordingURL: recordingURL,
		}); err != nil {
			rc.logger.Warn("call log upsert failed", "error", err, "call_sid", callSID)
		}
	}

	rc.markAudited(ctx, auditID)
	rc.metrics.ObserveCallback(webhooklog.CategoryRecording, "ok")
	rc.metrics.ObserveLatency(webhooklog.CategoryRecording, time.Since(start).Seconds())

	twiml.New().Write(w)
}

func (rc *Reconciler) appendAudit(ctx context.Context, category, callSID string, form map[string][]string) uuid.UUID {
	if rc.audit == nil {
		return uuid.Nil
	}
	payload, err := json.Marshal(form)
	if err != nil {
		payload = []byte("{}")
	}
	id, err := rc.audit.Append(ctx, category, callSID, string(payload))
	if err != nil {
		rc.logger.Warn("webhook audit append failed", "error", err, "category", category, "call_sid", callSID)
		return uuid.Nil
	}
	return id
}

func (rc *Reconciler) markAudited(ctx context.Context, id uuid.UUID) {
	if rc.audit == nil || id == uuid.Nil {
		return
	}
	if err := rc.audit.MarkProcessed(ctx, id); err != nil {
		rc.logger.Warn("webhook audit mark processed failed", "error", err, "entry_id", id)
	}
}

func parseStatusCallback(r *http.Request) Callback {
	cb := Callback{
		CallSID:      r.PostFormValue("CallSid"),
		CallStatus:   r.PostFormValue("CallStatus"),
		ErrorCode:    r.PostFormValue("ErrorCode"),
		ErrorMessage: r.PostFormValue("ErrorMessage"),
		ReceivedAt:   time.Now().UTC(),
	}
	cb.CallDuration = parseOptionalInt(r.PostFormValue("CallDuration"))

	if dialStatus := r.PostFormValue("DialCallStatus"); dialStatus != "" {
		cb.HasDialLeg = true
		cb.DialCallStatus = dialStatus
		cb.DialCallSID = r.PostFormValue("DialCallSid")
		cb.DialCallDuration = parseOptionalInt(r.PostFormValue("DialCallDuration"))
	}
	return cb
}

func parseOptionalInt(value string) *int {
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil
	}
	return &n
}

func sessionIDFromQuery(r *http.Request) uuid.UUID {
	id, err := uuid.Parse(r.URL.Query().Get("session"))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// NormalizeRecordingURL rewrites the carrier's resource URL into a directly
// playable media URL.
func NormalizeRecordingURL(raw string) string {
	if raw == "" {
		return ""
	}
	if hasMediaExtension(raw) {
		return raw
	}
	return raw + ".mp3"
}

func hasMediaExtension(raw string) bool {
	for _, ext := range []string{".mp3", ".wav"} {
		if len(raw) >= len(ext) && raw[len(raw)-len(ext):] == ext {
			return true
		}
	}
	return false
}
