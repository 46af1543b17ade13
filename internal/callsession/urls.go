package callsession

import (
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Webhook paths for the outbound-call flow. The router must mount handlers at
// the same paths.
const (
	PathBridge    = "/webhooks/voice/outbound/bridge"
	PathStatus    = "/webhooks/voice/outbound/status"
	PathRecording = "/webhooks/voice/outbound/recording"
)

// URLBuilder produces the absolute callback URLs handed to the carrier. Every
// URL carries the internal session id so callbacks can be matched before the
// call SID is known.
type URLBuilder struct {
	base string
}

// NewURLBuilder trims the public base URL for joining.
func NewURLBuilder(publicBaseURL string) *URLBuilder {
	return &URLBuilder{base: strings.TrimRight(publicBaseURL, "/")}
}

func (b *URLBuilder) build(path string, params url.Values) string {
	return b.base + path + "?" + params.Encode()
}

// Bridge returns the voice URL fetched when the agent answers. Donor phone and
// name travel in the URL so the responder never re-queries the database.
func (b *URLBuilder) Bridge(sessionID uuid.UUID, donorPhone, donorName string) string {
	params := url.Values{}
	params.Set("session", sessionID.String())
	params.Set("donor_phone", donorPhone)
	params.Set("donor_name", donorName)
	return b.build(PathBridge, params)
}

// Status returns the lifecycle status-callback URL for both legs.
func (b *URLBuilder) Status(sessionID uuid.UUID) string {
	params := url.Values{}
	params.Set("session", sessionID.String())
	return b.build(PathStatus, params)
}

// Recording returns the recording-ready callback URL.
func (b *URLBuilder) Recording(sessionID uuid.UUID) string {
	params := url.Values{}
	params.Set("session", sessionID.String())
	return b.build(PathRecording, params)
}

// Poll returns the staff-portal polling URL for a session.
func (b *URLBuilder) Poll(sessionID uuid.UUID) string {
	return b.base + "/api/calls/" + sessionID.String()
}
