package carrier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donorlink/callops/pkg/logging"
)

func TestCreateCallSuccess(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"CA999","status":"queued"}`))
	}))
	defer srv.Close()

	client := NewClient("AC123", "token", logging.Default()).WithBaseURL(srv.URL)
	sid, err := client.CreateCall(context.Background(), CallRequest{
		To:             "+447700900123",
		From:           "+447000000000",
		VoiceURL:       "https://callops.example/webhooks/voice/outbound/bridge?session=abc",
		StatusCallback: "https://callops.example/webhooks/voice/outbound/status?session=abc",
		Record:         true,
	})
	require.NoError(t, err)
	assert.Equal(t, "CA999", sid)

	assert.Equal(t, "+447700900123", got.Get("To"))
	assert.Equal(t, "true", got.Get("Record"))
	assert.Equal(t, []string{"initiated", "ringing", "answered", "completed"}, got["StatusCallbackEvent"])
}

func TestCreateCallRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`))
	}))
	defer srv.Close()

	client := NewClient("AC123", "token", nil).WithBaseURL(srv.URL)
	_, err := client.CreateCall(context.Background(), CallRequest{
		To:       "+1",
		From:     "+447000000000",
		VoiceURL: "https://callops.example/bridge",
	})
	require.Error(t, err)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 21211, apiErr.Code)
	assert.Contains(t, apiErr.Message, "Invalid 'To' Phone Number")
}

func TestCreateCallValidation(t *testing.T) {
	client := NewClient("AC123", "token", nil)
	_, err := client.CreateCall(context.Background(), CallRequest{To: "+44", From: "+44"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "voice url required")
}

func TestValidateSignature(t *testing.T) {
	authToken := "secret-token"
	webhookURL := "https://callops.example/webhooks/voice/inbound"
	form := url.Values{}
	form.Set("CallSid", "CA123")
	form.Set("From", "+447911000111")

	payload := buildSignaturePayload(webhookURL, form)
	signature := computeSignature(payload, authToken)

	r := httptest.NewRequest(http.MethodPost, webhookURL, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("X-Twilio-Signature", signature)
	assert.True(t, ValidateSignature(r, authToken, webhookURL))

	r2 := httptest.NewRequest(http.MethodPost, webhookURL, strings.NewReader(form.Encode()))
	r2.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r2.Header.Set("X-Twilio-Signature", "bogus")
	assert.False(t, ValidateSignature(r2, authToken, webhookURL))
}

func TestAbsoluteURLForwardedHeaders(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/webhooks/voice/inbound?foo=bar", nil)
	r.Host = "internal:8080"
	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "callops.example")
	assert.Equal(t, "https://callops.example/webhooks/voice/inbound?foo=bar", AbsoluteURL(r))
}
