package callsession

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/donorlink/callops/internal/phone"
	"github.com/donorlink/callops/internal/twiml"
	"github.com/donorlink/callops/pkg/logging"
)

// BridgeResponder answers the "agent picked up" webhook with markup that dials
// the donor leg. It is a pure request-to-markup function; the donor phone and
// name come from the URL the launcher built, never from the database.
type BridgeResponder struct {
	urls     *URLBuilder
	callerID string
	record   bool
	logger   *logging.Logger
}

// NewBridgeResponder wires a responder.
func NewBridgeResponder(urls *URLBuilder, callerID string, record bool, logger *logging.Logger) *BridgeResponder {
	if logger == nil {
		logger = logging.Default()
	}
	return &BridgeResponder{urls: urls, callerID: callerID, record: record, logger: logger}
}

// Handle returns the dial markup for the donor leg.
func (b *BridgeResponder) Handle(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	sessionID, err := uuid.Parse(query.Get("session"))
	if err != nil {
		b.logger.Warn("bridge webhook missing session id", "error", err)
		twiml.VoiceError().Write(w)
		return
	}

	donorPhone := phone.NormalizeUK(query.Get("donor_phone"))
	if donorPhone == "" {
		b.logger.Warn("bridge webhook missing donor phone", "session_id", sessionID)
		twiml.VoiceError().Write(w)
		return
	}

	greeting := "Connecting you now."
	if first := phone.FirstName(query.Get("donor_name")); first != "" {
		greeting = "Connecting you to " + first + "."
	}

	dial := twiml.Dial{
		CallerID: b.callerID,
		Timeout:  30,
		Number: twiml.Number{
			StatusCallback:       b.urls.Status(sessionID),
			StatusCallbackEvent:  "initiated ringing answered completed",
			StatusCallbackMethod: "POST",
			Value:                donorPhone,
		},
	}
	if b.record {
		dial.Record = "record-from-answer-dual"
		dial.RecordingStatusCallback = b.urls.Recording(sessionID)
		dial.RecordingStatusCallbackMethod = "POST"
	}

	twiml.New().Say(greeting).Dial(dial).Write(w)
}
