package httptransport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLogRequestsRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	handler := LogRequests(zerolog.New(&buf), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/users/u1/reconcile", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	require.Equal(t, "warn", entry["level"])
	require.Equal(t, "/v1/users/u1/reconcile", entry["path"])
	require.InDelta(t, 503, entry["status"], 0)
}

func TestNewServerAppliesConfig(t *testing.T) {
	srv := NewServer(ServerConfig{Address: ":0", ReadTimeout: 1, WriteTimeout: 2, IdleTimeout: 3}, http.NotFoundHandler())
	require.Equal(t, ":0", srv.Addr)
	require.EqualValues(t, 2, srv.WriteTimeout)
}
