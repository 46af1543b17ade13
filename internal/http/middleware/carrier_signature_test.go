package middleware

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func signForm(authToken, webhookURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	payload := webhookURL
	for _, k := range keys {
		for _, v := range form[k] {
			payload += k + v
		}
	}
	h := hmac.New(sha1.New, []byte(authToken))
	h.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func signedRequest(authToken string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "https://ops.example.org/webhooks/voice/inbound", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if authToken != "" {
		req.Header.Set("X-Twilio-Signature", signForm(authToken, "https://ops.example.org/webhooks/voice/inbound", form))
	}
	return req
}

func TestCarrierSignatureAcceptsSignedRequest(t *testing.T) {
	called := false
	handler := CarrierSignature("token", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	form := url.Values{"CallSid": {"CA100"}, "From": {"+447911000111"}}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest("token", form))

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCarrierSignatureRejectsBadSignature(t *testing.T) {
	handler := CarrierSignature("token", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	form := url.Values{"CallSid": {"CA100"}}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest("wrong-token", form))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCarrierSignatureRejectsMissingHeader(t *testing.T) {
	handler := CarrierSignature("token", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest("", url.Values{"CallSid": {"CA100"}}))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCarrierSignatureDisabledWithoutToken(t *testing.T) {
	called := false
	handler := CarrierSignature("", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest("", url.Values{}))
	assert.True(t, called)
}
