package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/ncastellanos/vecino/internal/auth"
	"github.com/ncastellanos/vecino/internal/database/testutil"
	"github.com/ncastellanos/vecino/internal/middleware"
	"github.com/ncastellanos/vecino/internal/models"
	"github.com/ncastellanos/vecino/internal/services"
)

type alertTestEnv struct {
	router *gin.Engine
	db     *gorm.DB
	jwt    *iauth.JWTService
}

func newAlertTestEnv(t *testing.T) *alertTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret", Issuer: "vecino"})
	require.NoError(t, err)

	alertHandler, err := NewAlertHandler(db, nil)
	require.NoError(t, err)
	settingsHandler, err := NewSettingsHandler(db)
	require.NoError(t, err)
	residentHandler, err := NewResidentHandler(db, nil)
	require.NoError(t, err)

	r := gin.New()
	api := r.Group("/api", middleware.Auth(jwtSvc))
	api.POST("/alerts", alertHandler.Create)
	api.GET("/alerts", alertHandler.List)
	api.GET("/alerts/:id", alertHandler.Get)
	api.POST("/alerts/:id/ack", alertHandler.Acknowledge)
	api.POST("/alerts/:id/resolve", alertHandler.Resolve)
	api.GET("/settings/panic", settingsHandler.Get)
	api.PATCH("/settings/panic", settingsHandler.Update)
	api.GET("/residents/roster", residentHandler.Roster)
	api.POST("/residents", residentHandler.Create)

	return &alertTestEnv{router: r, db: db, jwt: jwtSvc}
}

// seedResident inserts a roster member with a fixed ID so tokens can reference
// them directly.
func (env *alertTestEnv) seedResident(t *testing.T, id, name string) {
	t.Helper()
	resident := models.Resident{
		Name:          name,
		Email:         id + "@example.com",
		IsActive:      true,
		PanicEnrolled: true,
	}
	resident.ID = id
	require.NoError(t, env.db.Create(&resident).Error)
}

func (env *alertTestEnv) token(t *testing.T, userID, name string) string {
	t.Helper()
	token, err := env.jwt.GenerateAccessToken(userID, name, userID+"@example.com")
	require.NoError(t, err)
	return token
}

func (env *alertTestEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.True(t, env.Success, rec.Body.String())

	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestCreateAlertExplicitRecipients(t *testing.T) {
	env := newAlertTestEnv(t)
	env.seedResident(t, "resident-1", "Ana")
	env.seedResident(t, "resident-2", "Luis")
	env.seedResident(t, "resident-3", "Marta")

	rec := env.do(t, http.MethodPost, "/api/alerts", env.token(t, "resident-1", "Ana"), map[string]any{
		"location":      "Block C, Apt 12",
		"description":   "Need help",
		"recipient_ids": []string{"resident-2", "resident-3", "resident-2", "resident-1"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	dto := decodeData[services.AlertDTO](t, rec)
	require.Equal(t, "resident-1", dto.OriginatorID)
	require.Equal(t, "Ana", dto.OriginatorName)
	require.Equal(t, models.AlertStatusActive, dto.Status)
	require.ElementsMatch(t, []string{"resident-2", "resident-3"}, dto.NotifiedUserIDs)
	require.Equal(t, 60, dto.DurationMinutes)
}

func TestCreateAlertNotifyAllUsesRoster(t *testing.T) {
	env := newAlertTestEnv(t)
	env.seedResident(t, "resident-1", "Ana")
	env.seedResident(t, "resident-2", "Luis")
	env.seedResident(t, "resident-3", "Marta")

	// resident-3 opted out of the roster.
	require.NoError(t, env.db.Model(&models.Resident{}).
		Where("id = ?", "resident-3").
		Update("panic_enrolled", false).Error)

	rec := env.do(t, http.MethodPost, "/api/alerts", env.token(t, "resident-1", "Ana"), map[string]any{
		"location":   "Block C",
		"notify_all": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	dto := decodeData[services.AlertDTO](t, rec)
	require.Equal(t, []string{"resident-2"}, dto.NotifiedUserIDs)
}

func TestCreateAlertNoRecipients(t *testing.T) {
	env := newAlertTestEnv(t)
	env.seedResident(t, "resident-1", "Ana")

	// Notify-all with nobody else enrolled leaves an empty recipient set.
	rec := env.do(t, http.MethodPost, "/api/alerts", env.token(t, "resident-1", "Ana"), map[string]any{
		"notify_all": true,
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateAlertFallsBackToStoredSettings(t *testing.T) {
	env := newAlertTestEnv(t)
	env.seedResident(t, "resident-1", "Ana")
	env.seedResident(t, "resident-2", "Luis")

	// Configure emergency contacts and a custom message ahead of time.
	token := env.token(t, "resident-1", "Ana")
	rec := env.do(t, http.MethodPatch, "/api/settings/panic", token, map[string]any{
		"notify_all":         false,
		"emergency_contacts": []string{"resident-2"},
		"custom_message":     "I need assistance",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/alerts", token, map[string]any{})
	require.Equal(t, http.StatusCreated, rec.Code)

	dto := decodeData[services.AlertDTO](t, rec)
	require.Equal(t, []string{"resident-2"}, dto.NotifiedUserIDs)
	require.Equal(t, "I need assistance", dto.Description)
}

func TestGetAlertVisibility(t *testing.T) {
	env := newAlertTestEnv(t)
	env.seedResident(t, "resident-1", "Ana")
	env.seedResident(t, "resident-2", "Luis")
	env.seedResident(t, "resident-3", "Marta")

	rec := env.do(t, http.MethodPost, "/api/alerts", env.token(t, "resident-1", "Ana"), map[string]any{
		"recipient_ids": []string{"resident-2"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	alert := decodeData[services.AlertDTO](t, rec)

	// Originator and recipient may read it.
	rec = env.do(t, http.MethodGet, "/api/alerts/"+alert.ID, env.token(t, "resident-1", "Ana"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/alerts/"+alert.ID, env.token(t, "resident-2", "Luis"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// A bystander may not.
	rec = env.do(t, http.MethodGet, "/api/alerts/"+alert.ID, env.token(t, "resident-3", "Marta"), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAcknowledgeAlertOverHTTP(t *testing.T) {
	env := newAlertTestEnv(t)
	env.seedResident(t, "resident-1", "Ana")
	env.seedResident(t, "resident-2", "Luis")
	env.seedResident(t, "resident-3", "Marta")

	rec := env.do(t, http.MethodPost, "/api/alerts", env.token(t, "resident-1", "Ana"), map[string]any{
		"recipient_ids": []string{"resident-2"},
	})
	alert := decodeData[services.AlertDTO](t, rec)

	// The notified recipient acknowledges; a repeat is a no-op.
	rec = env.do(t, http.MethodPost, "/api/alerts/"+alert.ID+"/ack", env.token(t, "resident-2", "Luis"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/alerts/"+alert.ID+"/ack", env.token(t, "resident-2", "Luis"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	dto := decodeData[services.AlertDTO](t, rec)
	require.Equal(t, []string{"resident-2"}, dto.AcknowledgedBy)

	// A stranger cannot acknowledge.
	rec = env.do(t, http.MethodPost, "/api/alerts/"+alert.ID+"/ack", env.token(t, "resident-3", "Marta"), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestResolveAlertOverHTTP(t *testing.T) {
	env := newAlertTestEnv(t)
	env.seedResident(t, "resident-1", "Ana")
	env.seedResident(t, "resident-2", "Luis")

	rec := env.do(t, http.MethodPost, "/api/alerts", env.token(t, "resident-1", "Ana"), map[string]any{
		"recipient_ids": []string{"resident-2"},
	})
	alert := decodeData[services.AlertDTO](t, rec)

	rec = env.do(t, http.MethodPost, "/api/alerts/"+alert.ID+"/resolve", env.token(t, "resident-2", "Luis"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	dto := decodeData[services.AlertDTO](t, rec)
	require.Equal(t, models.AlertStatusResolved, dto.Status)
	require.Equal(t, "resident-2", dto.ResolvedBy)

	// Resolving again keeps the original resolver.
	rec = env.do(t, http.MethodPost, "/api/alerts/"+alert.ID+"/resolve", env.token(t, "resident-1", "Ana"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dto = decodeData[services.AlertDTO](t, rec)
	require.Equal(t, "resident-2", dto.ResolvedBy)
}

func TestListAlertsForUser(t *testing.T) {
	env := newAlertTestEnv(t)
	env.seedResident(t, "resident-1", "Ana")
	env.seedResident(t, "resident-2", "Luis")
	env.seedResident(t, "resident-3", "Marta")

	rec := env.do(t, http.MethodPost, "/api/alerts", env.token(t, "resident-1", "Ana"), map[string]any{
		"recipient_ids": []string{"resident-2"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/alerts", env.token(t, "resident-2", "Luis"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeData[[]services.AlertDTO](t, rec), 1)

	rec = env.do(t, http.MethodGet, "/api/alerts", env.token(t, "resident-3", "Marta"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decodeData[[]services.AlertDTO](t, rec))
}

func TestAlertsRequireAuth(t *testing.T) {
	env := newAlertTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/alerts", "", map[string]any{})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRosterEndpoint(t *testing.T) {
	env := newAlertTestEnv(t)
	env.seedResident(t, "resident-1", "Ana")
	env.seedResident(t, "resident-2", "Luis")

	require.NoError(t, env.db.Model(&models.Resident{}).
		Where("id = ?", "resident-2").
		Update("is_active", false).Error)

	rec := env.do(t, http.MethodGet, "/api/residents/roster", env.token(t, "resident-1", "Ana"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	entries := decodeData[[]services.ResidentDTO](t, rec)
	require.Len(t, entries, 1)
	require.Equal(t, "resident-1", entries[0].ID)
}
