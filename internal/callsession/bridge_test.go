package callsession

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func bridgeRequest(t *testing.T, params url.Values) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, PathBridge+"?"+params.Encode(), nil)
	w := httptest.NewRecorder()
	responder := NewBridgeResponder(NewURLBuilder("https://callops.example"), "+447000000000", true, nil)
	responder.Handle(w, r)
	return w
}

func TestBridgeDialsDonorLeg(t *testing.T) {
	sessionID := uuid.New()
	params := url.Values{}
	params.Set("session", sessionID.String())
	params.Set("donor_phone", "07911000111")
	params.Set("donor_name", "Grace Adeyemi")

	w := bridgeRequest(t, params)
	body := w.Body.String()

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/xml; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, body, "<Say>Connecting you to Grace.</Say>")
	assert.Contains(t, body, ">+447911000111</Number>")
	assert.Contains(t, body, "statusCallback=")
	assert.Contains(t, body, "session="+sessionID.String())
	assert.Contains(t, body, `record="record-from-answer-dual"`)
	assert.Contains(t, body, "recordingStatusCallback=")
}

func TestBridgeWithoutNameUsesGenericLine(t *testing.T) {
	params := url.Values{}
	params.Set("session", uuid.NewString())
	params.Set("donor_phone", "07911000111")

	w := bridgeRequest(t, params)
	assert.Contains(t, w.Body.String(), "<Say>Connecting you now.</Say>")
}

func TestBridgeMissingSessionStillRendersMarkup(t *testing.T) {
	w := bridgeRequest(t, url.Values{})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "technical difficulties")
	assert.Contains(t, w.Body.String(), "<Hangup>")
}

func TestBridgeMissingDonorPhoneStillRendersMarkup(t *testing.T) {
	params := url.Values{}
	params.Set("session", uuid.NewString())

	w := bridgeRequest(t, params)
	assert.Contains(t, w.Body.String(), "technical difficulties")
}
