package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ncastellanos/vecino/internal/alerting"
)

const apiRequestTimeout = 15 * time.Second

// APIClient talks to the portal's REST surface. It is the durable alert
// channel and the roster source for panel agents.
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPIClient constructs an APIClient.
func NewAPIClient(serverURL, accessToken string) (*APIClient, error) {
	serverURL = strings.TrimRight(strings.TrimSpace(serverURL), "/")
	if serverURL == "" {
		return nil, fmt.Errorf("transport: server url is required")
	}
	return &APIClient{
		baseURL: serverURL,
		token:   accessToken,
		http:    &http.Client{Timeout: apiRequestTimeout},
	}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type createAlertRequest struct {
	Location        string   `json:"location"`
	GPSLatitude     *float64 `json:"gps_latitude,omitempty"`
	GPSLongitude    *float64 `json:"gps_longitude,omitempty"`
	Description     string   `json:"description"`
	RecipientIDs    []string `json:"recipient_ids"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	ExtremeMode     bool     `json:"extreme_mode,omitempty"`
	HasVideo        bool     `json:"has_video,omitempty"`
	ActivatedFrom   string   `json:"activated_from,omitempty"`
}

// PersistAlert stores the alert as the record of truth and returns its ID.
// Implements alerting.DurableChannel.
func (c *APIClient) PersistAlert(ctx context.Context, alert alerting.Alert) (string, error) {
	req := createAlertRequest{
		Location:        alert.Location,
		GPSLatitude:     alert.GPSLatitude,
		GPSLongitude:    alert.GPSLongitude,
		Description:     alert.Description,
		RecipientIDs:    alert.RecipientIDs,
		DurationMinutes: alert.DurationMinutes,
		ExtremeMode:     alert.ExtremeMode,
		HasVideo:        alert.HasVideo,
		ActivatedFrom:   alert.ActivatedFrom,
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/alerts", req, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("transport: server returned alert without id")
	}
	return created.ID, nil
}

// EnrolledActiveIDs fetches the current panic roster. Implements
// alerting.Roster.
func (c *APIClient) EnrolledActiveIDs(ctx context.Context) ([]string, error) {
	var entries []struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/residents/roster", nil, &entries); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.ID != "" {
			ids = append(ids, entry.ID)
		}
	}
	return ids, nil
}

// Identity is the authenticated resident profile behind the access token.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Me returns the profile of the token holder.
func (c *APIClient) Me(ctx context.Context) (Identity, error) {
	var identity Identity
	if err := c.do(ctx, http.MethodGet, "/api/residents/me", nil, &identity); err != nil {
		return Identity{}, err
	}
	return identity, nil
}

// PanicSettings mirrors the server-side panic configuration payload.
type PanicSettings struct {
	EmergencyContacts    []string `json:"emergency_contacts"`
	NotifyAll            bool     `json:"notify_all"`
	HoldTimeSeconds      int      `json:"hold_time_seconds"`
	ExtremeModeEnabled   bool     `json:"extreme_mode_enabled"`
	AutoRecordVideo      bool     `json:"auto_record_video"`
	ShareGPSLocation     bool     `json:"share_gps_location"`
	AlertDurationMinutes int      `json:"alert_duration_minutes"`
	CustomMessage        string   `json:"custom_message"`
}

// Settings fetches the token holder's panic configuration.
func (c *APIClient) Settings(ctx context.Context) (PanicSettings, error) {
	var settings PanicSettings
	if err := c.do(ctx, http.MethodGet, "/api/settings/panic", nil, &settings); err != nil {
		return PanicSettings{}, err
	}
	return settings, nil
}

// ResolveAlert stands an alert down over the durable channel.
func (c *APIClient) ResolveAlert(ctx context.Context, alertID string) error {
	path := fmt.Sprintf("/api/alerts/%s/resolve", alertID)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// AcknowledgeAlert records that this user saw the alert.
func (c *APIClient) AcknowledgeAlert(ctx context.Context, alertID string) error {
	path := fmt.Sprintf("/api/alerts/%s/ack", alertID)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("transport: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("transport: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("transport: read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("transport: %s %s: status %d: %w", method, path, resp.StatusCode, err)
	}
	if !env.Success {
		message := "request failed"
		if env.Error != nil && env.Error.Message != "" {
			message = env.Error.Message
		}
		return fmt.Errorf("transport: %s %s: status %d: %s", method, path, resp.StatusCode, message)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("transport: decode response: %w", err)
		}
	}
	return nil
}
