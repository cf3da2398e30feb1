package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/petrakis/factorlab/internal/config"
	"github.com/petrakis/factorlab/internal/events"
)

func newTestServer(t *testing.T) (*Server, *events.Bus) {
	t.Helper()

	bus := events.NewBus(zerolog.Nop())
	srv := New(Config{
		Log: zerolog.Nop(),
		Config: &config.Config{
			DataDir: t.TempDir(),
			Port:    0,
			DevMode: true,
		},
		Bus: bus,
	})
	return srv, bus
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

// The event stream holds connections open indefinitely, so it must not run
// under the request timeout that bounds the rest of the API. Walk the routing
// tree and run each route's middleware chain against a recording handler to
// observe whether a deadline reaches the endpoint.
func TestEventStreamSkipsRequestTimeout(t *testing.T) {
	srv, _ := newTestServer(t)

	hasDeadline := make(map[string]bool)
	err := chi.Walk(srv.router, func(method, route string, _ http.Handler, mws ...func(http.Handler) http.Handler) error {
		if route != "/api/events/ws" && route != "/api/system/status" {
			return nil
		}

		var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok := r.Context().Deadline()
			hasDeadline[route] = ok
		})
		for i := len(mws) - 1; i >= 0; i-- {
			h = mws[i](h)
		}
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, route, nil))
		return nil
	})
	require.NoError(t, err)

	require.Contains(t, hasDeadline, "/api/events/ws")
	require.Contains(t, hasDeadline, "/api/system/status")
	assert.False(t, hasDeadline["/api/events/ws"], "event stream request context must not carry a deadline")
	assert.True(t, hasDeadline["/api/system/status"], "API requests should be bounded by the timeout middleware")
}

func TestEventStreamDeliversBusEvents(t *testing.T) {
	srv, bus := newTestServer(t)

	ts := httptest.NewServer(srv.router)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The handler subscribes after the handshake completes; wait for the
	// subscription before publishing.
	require.Eventually(t, func() bool {
		return bus.SubscriberCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	bus.Publish(events.EngineRegistered, map[string]string{"name": "momentum"})

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var event events.Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, events.EngineRegistered, event.Type)
	assert.NotEmpty(t, event.ID)
}
