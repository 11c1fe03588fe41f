package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ncastellanos/vecino/internal/alerting"
	"github.com/ncastellanos/vecino/internal/realtime"
)

func TestWebsocketURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"http://127.0.0.1:8000", "ws://127.0.0.1:8000/ws"},
		{"https://vecino.example.com", "wss://vecino.example.com/ws"},
		{"https://vecino.example.com/", "wss://vecino.example.com/ws"},
		{"ws://127.0.0.1:8000", "ws://127.0.0.1:8000/ws"},
		{"wss://vecino.example.com", "wss://vecino.example.com/ws"},
	}
	for _, tc := range cases {
		got, err := websocketURL(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestWebsocketURLRejectsInvalid(t *testing.T) {
	_, err := websocketURL("")
	require.Error(t, err)

	_, err = websocketURL("ftp://example.com")
	require.Error(t, err)
}

type recordingStore struct {
	mu       sync.Mutex
	acked    []string
	resolved []string
}

func (s *recordingStore) Acknowledge(_ context.Context, alertID, recipientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked = append(s.acked, alertID+"/"+recipientID)
	return nil
}

func (s *recordingStore) Resolve(_ context.Context, alertID, resolvedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved = append(s.resolved, alertID+"/"+resolvedBy)
	return nil
}

// startClient spins up a hub-backed test server plus a connected Client for
// the given user and blocks until the session is registered.
func startClient(t *testing.T, hub *realtime.Hub, userID string, onIncoming func(realtime.Event)) *Client {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/ws") {
			http.NotFound(w, r)
			return
		}
		hub.Serve(r.Header.Get("X-Test-User"), w, r)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		ServerURL:  server.URL,
		OnIncoming: onIncoming,
	})
	require.NoError(t, err)
	client.header.Set("X-Test-User", userID)

	connected := make(chan struct{}, 1)
	client.cfg.OnConnect = func() {
		select {
		case connected <- struct{}{}:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go client.Run(ctx)
	t.Cleanup(client.Close)

	select {
	case <-connected:
	case <-time.After(3 * time.Second):
		t.Fatal("client did not connect in time")
	}
	return client
}

func TestClientSubmitAlertReportsPresence(t *testing.T) {
	store := &recordingStore{}
	hub := realtime.NewHub(nil)
	hub.SetHandler(realtime.NewGateway(hub, store))

	incoming := make(chan realtime.Event, 1)
	startClient(t, hub, "resident-2", func(event realtime.Event) {
		incoming <- event
	})
	sender := startClient(t, hub, "resident-1", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	delivery, err := sender.SubmitAlert(ctx, alerting.Alert{
		OriginatorID:   "resident-1",
		OriginatorName: "Ana",
		Location:       "Block C",
		RecipientIDs:   []string{"resident-2", "resident-9"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, delivery.Notified)
	require.Equal(t, 1, delivery.Offline)
	require.Equal(t, 2, delivery.TotalTargets)

	select {
	case event := <-incoming:
		require.Equal(t, realtime.EventAlertIncoming, event.Event)
		data, ok := event.Data.(map[string]any)
		require.True(t, ok)
		require.Equal(t, "resident-1", data["originator_id"])
		require.Equal(t, "Block C", data["location"])
	case <-time.After(3 * time.Second):
		t.Fatal("recipient never received the alert push")
	}
}

func TestClientSubmitAlertNoRecipients(t *testing.T) {
	hub := realtime.NewHub(nil)
	hub.SetHandler(realtime.NewGateway(hub, &recordingStore{}))

	sender := startClient(t, hub, "resident-1", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// Only the originator is named, so the fan-out has nobody to reach.
	_, err := sender.SubmitAlert(ctx, alerting.Alert{
		OriginatorID: "resident-1",
		RecipientIDs: []string{"resident-1"},
	})
	require.Error(t, err)
}

func TestClientAcknowledgeAndResolve(t *testing.T) {
	store := &recordingStore{}
	hub := realtime.NewHub(nil)
	hub.SetHandler(realtime.NewGateway(hub, store))

	client := startClient(t, hub, "resident-2", nil)

	require.NoError(t, client.Acknowledge("alert-1"))
	require.NoError(t, client.Resolve("alert-1"))

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.acked) == 1 && len(store.resolved) == 1
	}, 3*time.Second, 20*time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Equal(t, []string{"alert-1/resident-2"}, store.acked)
	require.Equal(t, []string{"alert-1/resident-2"}, store.resolved)
}

func TestClientSubmitWithoutConnection(t *testing.T) {
	client, err := NewClient(ClientConfig{ServerURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err = client.SubmitAlert(ctx, alerting.Alert{RecipientIDs: []string{"resident-2"}})
	require.Error(t, err)
}
