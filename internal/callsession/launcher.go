package callsession

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/donorlink/callops/internal/carrier"
	"github.com/donorlink/callops/internal/donors"
	"github.com/donorlink/callops/internal/phone"
	"github.com/donorlink/callops/pkg/logging"
)

var launcherTracer = otel.Tracer("callops.internal.callsession.launcher")

// ErrInvalidDonor is returned when the donor does not exist or has no phone
// number to dial.
var ErrInvalidDonor = errors.New("callsession: donor missing or has no phone number")

type donorReader interface {
	GetByID(ctx context.Context, id int64) (*donors.Donor, error)
	BumpDialAttempts(ctx context.Context, donorID int64) error
}

type callCreator interface {
	CreateCall(ctx context.Context, req carrier.CallRequest) (string, error)
}

// LaunchRequest is one click-to-call from the staff portal.
type LaunchRequest struct {
	AgentID    int64
	DonorID    int64
	AgentPhone string
}

// LaunchResult is handed back to the portal for polling.
type LaunchResult struct {
	SessionID string `json:"session_id"`
	CallSID   string `json:"call_sid"`
	PollURL   string `json:"poll_url"`
}

// Launcher places agent-first outbound calls.
type Launcher struct {
	sessions *Store
	donors   donorReader
	carrier  callCreator
	urls     *URLBuilder
	callerID string
	record   bool
	logger   *logging.Logger
}

// NewLauncher wires a launcher.
func NewLauncher(sessions *Store, donorRepo donorReader, client callCreator, urls *URLBuilder, callerID string, record bool, logger *logging.Logger) *Launcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Launcher{
		sessions: sessions,
		donors:   donorRepo,
		carrier:  client,
		urls:     urls,
		callerID: callerID,
		record:   record,
		logger:   logger,
	}
}

// Launch validates the donor, creates the session row, and asks the carrier to
// ring the agent. The bridge webhook dials the donor once the agent answers.
func (l *Launcher) Launch(ctx context.Context, req LaunchRequest) (*LaunchResult, error) {
	ctx, span := launcherTracer.Start(ctx, "callsession.launch")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("callops.donor_id", req.DonorID),
		attribute.Int64("callops.agent_id", req.AgentID),
	)

	agentPhone := phone.NormalizeUK(req.AgentPhone)
	if agentPhone == "" {
		return nil, fmt.Errorf("%w: agent callback phone required", ErrInvalidDonor)
	}

	donor, err := l.donors.GetByID(ctx, req.DonorID)
	if err != nil {
		if errors.Is(err, donors.ErrNotFound) {
			return nil, ErrInvalidDonor
		}
		return nil, fmt.Errorf("callsession: donor lookup: %w", err)
	}
	donorPhone := phone.NormalizeUK(donor.Phone)
	if donorPhone == "" {
		return nil, ErrInvalidDonor
	}

	sess := &Session{
		DonorID:    req.DonorID,
		AgentID:    req.AgentID,
		AgentPhone: agentPhone,
		DonorPhone: donorPhone,
		Source:     "agent_dialer",
	}
	if err := l.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("callops.session_id", sess.ID.String()))

	callSID, err := l.carrier.CreateCall(ctx, carrier.CallRequest{
		To:             agentPhone,
		From:           l.callerID,
		VoiceURL:       l.urls.Bridge(sess.ID, donorPhone, donor.Name),
		StatusCallback: l.urls.Status(sess.ID),
		Record:         l.record,
	})
	if err != nil {
		span.RecordError(err)
		message := err.Error()
		var apiErr *carrier.Error
		if errors.As(err, &apiErr) {
			message = apiErr.Message
		}
		if markErr := l.sessions.MarkLaunchFailed(ctx, sess.ID, message); markErr != nil {
			l.logger.Error("failed to mark launch failure", "error", markErr, "session_id", sess.ID)
		}
		return nil, fmt.Errorf("callsession: carrier rejected launch: %w", err)
	}

	if err := l.sessions.MarkLaunched(ctx, sess.ID, callSID); err != nil {
		return nil, err
	}

	// Best-effort attempt counter on the dialing queue.
	if err := l.donors.BumpDialAttempts(ctx, req.DonorID); err != nil {
		l.logger.Warn("dial queue attempt bump failed", "error", err, "donor_id", req.DonorID)
	}

	l.logger.Info("outbound call launched",
		"session_id", sess.ID, "call_sid", callSID, "donor_id", req.DonorID, "agent_id", req.AgentID)

	return &LaunchResult{
		SessionID: sess.ID.String(),
		CallSID:   callSID,
		PollURL:   l.urls.Poll(sess.ID),
	}, nil
}
