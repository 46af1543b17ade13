package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donorlink/callops/pkg/logging"
)

func captureLogger() (*logging.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return &logging.Logger{Logger: slog.New(slog.NewJSONHandler(buf, nil))}, buf
}

func TestRequestLoggerRecordsStatusAndCallSID(t *testing.T) {
	logger, buf := captureLogger()
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.WriteHeader(http.StatusForbidden)
	}))

	form := strings.NewReader("CallSid=CA500&CallStatus=completed")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice/outbound/status", form)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	logs := buf.String()
	assert.Contains(t, logs, `"msg":"request started"`)
	assert.Contains(t, logs, `"status":403`)
	assert.Contains(t, logs, `"call_sid":"CA500"`)
}

func TestRequestLoggerDefaultsToOKWithoutExplicitHeader(t *testing.T) {
	logger, buf := captureLogger()
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	logs := buf.String()
	assert.Contains(t, logs, `"status":200`)
	assert.NotContains(t, logs, "call_sid", "non-webhook requests carry no call identifier")
}
