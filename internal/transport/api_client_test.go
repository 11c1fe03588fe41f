package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ncastellanos/vecino/internal/alerting"
)

func apiTestServer(t *testing.T, handler http.HandlerFunc) *APIClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewAPIClient(server.URL, "panel-token")
	require.NoError(t, err)
	return client
}

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func TestAPIClientPersistAlert(t *testing.T) {
	var got createAlertRequest
	client := apiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/alerts", r.URL.Path)
		require.Equal(t, "Bearer panel-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeEnvelope(w, http.StatusCreated, map[string]string{"id": "alert-42"})
	})

	id, err := client.PersistAlert(context.Background(), alerting.Alert{
		Location:     "Block C, Apt 12",
		Description:  "Help needed",
		RecipientIDs: []string{"resident-2", "resident-3"},
		HasVideo:     true,
	})
	require.NoError(t, err)
	require.Equal(t, "alert-42", id)
	require.Equal(t, "Block C, Apt 12", got.Location)
	require.Equal(t, []string{"resident-2", "resident-3"}, got.RecipientIDs)
	require.True(t, got.HasVideo)
}

func TestAPIClientPersistAlertServerError(t *testing.T) {
	client := apiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   map[string]string{"code": "NO_RECIPIENTS", "message": "no recipients to notify"},
		})
	})

	_, err := client.PersistAlert(context.Background(), alerting.Alert{RecipientIDs: []string{"x"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no recipients to notify")
}

func TestAPIClientEnrolledActiveIDs(t *testing.T) {
	client := apiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/residents/roster", r.URL.Path)
		writeEnvelope(w, http.StatusOK, []map[string]string{
			{"id": "resident-2"},
			{"id": "resident-3"},
		})
	})

	ids, err := client.EnrolledActiveIDs(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"resident-2", "resident-3"}, ids)
}

func TestAPIClientMeAndSettings(t *testing.T) {
	client := apiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/residents/me":
			writeEnvelope(w, http.StatusOK, map[string]string{"id": "resident-1", "name": "Ana", "email": "ana@example.com"})
		case "/api/settings/panic":
			writeEnvelope(w, http.StatusOK, map[string]any{
				"notify_all":             true,
				"hold_time_seconds":      5,
				"alert_duration_minutes": 60,
			})
		default:
			http.NotFound(w, r)
		}
	})

	me, err := client.Me(context.Background())
	require.NoError(t, err)
	require.Equal(t, "resident-1", me.ID)
	require.Equal(t, "Ana", me.Name)

	settings, err := client.Settings(context.Background())
	require.NoError(t, err)
	require.True(t, settings.NotifyAll)
	require.Equal(t, 5, settings.HoldTimeSeconds)
	require.Equal(t, 60, settings.AlertDurationMinutes)
}

func TestAPIClientLifecycleCalls(t *testing.T) {
	var paths []string
	client := apiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		writeEnvelope(w, http.StatusOK, nil)
	})

	require.NoError(t, client.AcknowledgeAlert(context.Background(), "alert-1"))
	require.NoError(t, client.ResolveAlert(context.Background(), "alert-1"))
	require.Equal(t, []string{
		"POST /api/alerts/alert-1/ack",
		"POST /api/alerts/alert-1/resolve",
	}, paths)
}
