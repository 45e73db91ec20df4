package ticketing_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatdesk/chatdesk/internal/config"
	"github.com/chatdesk/chatdesk/internal/ticketing"
)

func testConfig(baseURL string) config.TicketingConfig {
	return config.TicketingConfig{
		InstanceURL:    baseURL,
		Username:       "api_user",
		Password:       "secret",
		RequestTimeout: 5 * time.Second,
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
		RateLimit:      1000,
		RateBurst:      1000,
	}
}

func newTestClient(t *testing.T, handler http.Handler) (*ticketing.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := ticketing.NewClient(testConfig(srv.URL), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return client, srv
}

func TestCreateIncident_SendsCorrelationID(t *testing.T) {
	t.Parallel()

	var received map[string]string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/now/table/incident", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "api_user", user)
		assert.Equal(t, "secret", pass)

		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]string{"sys_id": "sys-1", "number": "INC0000001"},
		})
	}))

	ticket, err := client.CreateIncident(context.Background(), ticketing.CreatePayload{
		Title:         "VPN keeps dropping",
		Description:   "drops hourly",
		Priority:      "3",
		CorrelationID: "msg-1",
		CallerName:    "Jane Doe",
	})
	require.NoError(t, err)
	assert.Equal(t, "INC0000001", ticket.Number)
	assert.Equal(t, "msg-1", received["correlation_id"])
	assert.Equal(t, "VPN keeps dropping", received["short_description"])
}

func TestCreateIncident_RequiresCorrelationID(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made without a correlation ID")
	}))

	_, err := client.CreateIncident(context.Background(), ticketing.CreatePayload{Title: "x"})
	require.Error(t, err)
}

func TestCreateIncident_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]string{"sys_id": "sys-1", "number": "INC0000001"},
		})
	}))

	ticket, err := client.CreateIncident(context.Background(), ticketing.CreatePayload{
		Title:         "x",
		CorrelationID: "msg-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "INC0000001", ticket.Number)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCreateIncident_DoesNotRetryPermissionFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.CreateIncident(context.Background(), ticketing.CreatePayload{
		Title:         "x",
		CorrelationID: "msg-1",
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx responses must not be retried")
}

func TestFindByCorrelation(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("sysparm_query")
		if query == "correlation_id=msg-1" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"result": []map[string]string{{"sys_id": "sys-1", "number": "INC0000001"}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": []map[string]string{}})
	}))

	ticket, err := client.FindByCorrelation(context.Background(), "msg-1")
	require.NoError(t, err)
	require.NotNil(t, ticket)
	assert.Equal(t, "INC0000001", ticket.Number)

	ticket, err = client.FindByCorrelation(context.Background(), "msg-2")
	require.NoError(t, err)
	assert.Nil(t, ticket, "no match must return nil, not an error")
}

func TestListRecent_BoundsQuery(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("sysparm_limit"))
		assert.Contains(t, r.URL.Query().Get("sysparm_query"), "sys_created_on>")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]string{
				{"sys_id": "sys-1", "number": "INC0000001"},
				{"sys_id": "sys-2", "number": "INC0000002"},
			},
		})
	}))

	tickets, err := client.ListRecent(context.Background(), 24*time.Hour, 5)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
}
