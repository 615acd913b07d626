package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/sems-monitoring/internal/account"
	"github.com/example/sems-monitoring/internal/device"
	"github.com/example/sems-monitoring/internal/flow"
	"github.com/example/sems-monitoring/internal/message"
	"github.com/example/sems-monitoring/internal/notify"
	"github.com/example/sems-monitoring/internal/store"
)

type captureTransport struct {
	sent []notify.Mail
}

func (c *captureTransport) Name() string { return "SendGrid" }

func (c *captureTransport) Send(_ context.Context, _ string, m notify.Mail) error {
	c.sent = append(c.sent, m)
	return nil
}

type harness struct {
	handler   http.Handler
	transport *captureTransport
	tokens    *account.Tokens
	devices   *store.MemoryStore
}

func newHarness(t *testing.T, burst int) *harness {
	t.Helper()
	devices := store.NewMemoryStore(store.Snapshot{
		"09171111111": {
			"Name": "Jane Cruz", "Address": "Quezon City", "Contact Number": "09171111111",
			"Email": "jane@example.com", "status": "activated:", "tampering": "true:",
			"OUTAGE": "false:", "payment": "true:", "Price": 12.5, "kwhr": 100.0,
		},
		"09172222222": {
			"Name": "Juan Reyes", "Address": "Makati", "Contact Number": "09172222222",
			"status": "deactivated:", "OUTAGE": "true:", "kwh": 20.0,
		},
	})
	accounts := account.NewService(store.NewMemoryStore(nil))
	require.NoError(t, accounts.EnsureAdmin(context.Background(), "admin-pass"))

	tokens, err := account.NewTokens("test-secret-0123456789", time.Hour)
	require.NoError(t, err)

	catalog := message.DefaultCatalog()
	backend, err := message.NewTemplateBackend(catalog)
	require.NoError(t, err)

	tr := &captureTransport{}
	dispatcher := notify.NewDispatcher(tr, notify.MailConfig{APIKey: "SG.k", FromAddress: "alerts@sems.example"}, nil, zerolog.Nop())

	srv := NewServer(Options{
		Devices:       device.NewRegistry(devices),
		Accounts:      accounts,
		Tokens:        tokens,
		Engine:        message.NewEngine(backend, catalog, zerolog.Nop()),
		Flows:         flow.NewRegistry(dispatcher, time.Hour),
		StatementBase: "https://example.com",
		GenerateRPS:   0.001,
		GenerateBurst: burst,
		Logger:        zerolog.Nop(),
	})
	srv.now = func() time.Time { return time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC) }

	return &harness{handler: srv.Router(), transport: tr, tokens: tokens, devices: devices}
}

func (h *harness) token(t *testing.T, role string) string {
	t.Helper()
	email := "staff@example.com"
	if role == account.RoleAdmin {
		email = "admin"
	}
	tok, err := h.tokens.Issue(account.User{Email: email, Role: role})
	require.NoError(t, err)
	return tok
}

func (h *harness) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func TestSignUpThenSignIn(t *testing.T) {
	h := newHarness(t, 5)

	rec, body := h.do(t, http.MethodPost, "/v1/auth/signup", "", map[string]string{"email": "new@example.com", "password": "secret1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, body["token"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec, body = h.do(t, http.MethodPost, "/v1/auth/signup", "", map[string]string{"email": "new@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Account with this email already exists.", body["message"])

	rec, _ = h.do(t, http.MethodPost, "/v1/auth/signin", "", map[string]string{"email": "NEW@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = h.do(t, http.MethodPost, "/v1/auth/signin", "", map[string]string{"email": "admin", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Incorrect admin password.", body["message"])
}

func TestListDevicesWithSummary(t *testing.T) {
	h := newHarness(t, 5)

	rec, _ := h.do(t, http.MethodGet, "/v1/devices", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := h.do(t, http.MethodGet, "/v1/devices?filter=Deactivated", h.token(t, account.RoleUser), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	devices := body["devices"].([]any)
	require.Len(t, devices, 1)
	assert.Equal(t, "Juan Reyes", devices[0].(map[string]any)["name"])

	summary := body["summary"].(map[string]any)
	assert.EqualValues(t, 2, summary["total"])
	assert.EqualValues(t, 1, summary["tampered"])
	assert.Equal(t, "Makati", summary["mostOutageLocation"])

	rec, _ = h.do(t, http.MethodGet, "/v1/devices?filter=Broken", h.token(t, account.RoleUser), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.do(t, http.MethodGet, "/v1/devices/unknown", h.token(t, account.RoleUser), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOwnerManagementRequiresAdmin(t *testing.T) {
	h := newHarness(t, 5)
	owner := map[string]any{
		"name": "Rosa Lim", "email": "rosa@example.com", "address": "Pasig",
		"contactNumber": "09175555555", "paymentStatus": "Pending", "status": "Activated", "price": 11.0,
	}

	rec, _ := h.do(t, http.MethodPost, "/v1/owners", h.token(t, account.RoleUser), owner)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := h.token(t, account.RoleAdmin)
	rec, body := h.do(t, http.MethodPost, "/v1/owners", admin, owner)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "09175555555", body["id"])

	stored, ok, err := h.devices.Get(context.Background(), "09175555555")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "false:", stored["payment"])

	owner["name"] = ""
	rec, body = h.do(t, http.MethodPut, "/v1/owners/09175555555", admin, owner)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Name is required.", body["message"])

	owner["name"] = "Rosa Lim"
	rec, _ = h.do(t, http.MethodPut, "/v1/owners/09179999999", admin, owner)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = h.do(t, http.MethodDelete, "/v1/owners/09175555555", admin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAlertGenerateThenSend(t *testing.T) {
	h := newHarness(t, 5)
	tok := h.token(t, account.RoleUser)

	rec, body := h.do(t, http.MethodPost, "/v1/devices/09171111111/alerts/send", tok, map[string]string{"recipient": "jane@example.com", "channel": "Email"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Please generate a message first.", body["message"])

	rec, body = h.do(t, http.MethodPost, "/v1/devices/09171111111/alerts/generate", tok, map[string]string{"alertType": "Tampering", "channel": "Email"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "URGENT: Security Alert from SEMS Monitoring", body["subject"])
	assert.Equal(t, "jane@example.com", body["recipient"])
	assert.NotContains(t, body["body"], "09171111111")

	rec, body = h.do(t, http.MethodPost, "/v1/devices/09171111111/alerts/send", tok, map[string]string{"recipient": "jane@example.com", "channel": "Email"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Notification successfully sent to jane@example.com via Email.", body["message"])
	require.Len(t, h.transport.sent, 1)
	assert.True(t, strings.HasPrefix(h.transport.sent[0].HTML, "<p>"))

	_, body = h.do(t, http.MethodPost, "/v1/devices/09171111111/alerts/send", tok, map[string]string{"recipient": "jane@example.com", "channel": "Email"})
	assert.Equal(t, "Please generate a message first.", body["message"])
}

func TestAlertGenerateValidation(t *testing.T) {
	h := newHarness(t, 5)
	tok := h.token(t, account.RoleUser)

	rec, _ := h.do(t, http.MethodPost, "/v1/devices/09171111111/alerts/generate", tok, map[string]string{"alertType": "Outage-Scheduled", "channel": "SMS"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.do(t, http.MethodPost, "/v1/devices/09171111111/alerts/generate", tok, map[string]string{"alertType": "Tampering", "channel": "Fax"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := h.do(t, http.MethodPost, "/v1/devices/09171111111/alerts/generate", tok, map[string]string{
		"alertType": "Outage-Scheduled", "channel": "SMS", "outageDetails": "Feb 3, 9AM-1PM",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(body["body"].(string), "SEMS Monitoring URGENT Alert:"))
	assert.Equal(t, "09171111111", body["recipient"])
}

func TestBillingGenerateThenSMSSend(t *testing.T) {
	h := newHarness(t, 5)
	tok := h.token(t, account.RoleUser)

	rec, body := h.do(t, http.MethodPost, "/v1/devices/09171111111/billing/generate", tok, map[string]string{"channel": "Email"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Your Monthly Electricity Bill is Ready", body["subject"])
	assert.Equal(t, "Amount Due: ₱1250.00\nDue Date: 3/2/2024\nUsage: 100.00 kWh", body["body"])

	_, body = h.do(t, http.MethodPost, "/v1/devices/09171111111/billing/send", tok, map[string]string{"recipient": "09171111111", "channel": "SMS"})
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "This message was generated for Email. Please generate it again for SMS.", body["message"])

	rec, body = h.do(t, http.MethodPost, "/v1/devices/09171111111/billing/generate", tok, map[string]string{"channel": "SMS"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello and good day! Your bill of ₱1250.00 is due on 3/2/2024.", body["body"])

	_, body = h.do(t, http.MethodPost, "/v1/devices/09171111111/billing/send", tok, map[string]string{"recipient": "09171111111", "channel": "SMS"})
	assert.Equal(t, "SMS notifications are not currently supported.", body["message"])
	assert.Empty(t, h.transport.sent)
}

func TestSMSDraftIsNeverEmailed(t *testing.T) {
	h := newHarness(t, 5)
	tok := h.token(t, account.RoleUser)

	rec, _ := h.do(t, http.MethodPost, "/v1/devices/09171111111/billing/generate", tok, map[string]string{"channel": "SMS"})
	require.Equal(t, http.StatusOK, rec.Code)

	_, body := h.do(t, http.MethodPost, "/v1/devices/09171111111/billing/send", tok, map[string]string{"recipient": "jane@example.com", "channel": "Email"})
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "This message was generated for SMS. Please generate it again for Email.", body["message"])
	assert.Empty(t, h.transport.sent)
}

func TestGenerationIsRateLimited(t *testing.T) {
	h := newHarness(t, 1)
	tok := h.token(t, account.RoleUser)
	req := map[string]string{"channel": "Email"}

	rec, _ := h.do(t, http.MethodPost, "/v1/devices/09171111111/billing/generate", tok, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = h.do(t, http.MethodPost, "/v1/devices/09171111111/billing/generate", tok, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestLimitersDropIdleBuckets(t *testing.T) {
	l := newLimiters(0.001, 1)
	now := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("jane@example.com"))
	assert.False(t, l.allow("jane@example.com"))
	assert.True(t, l.allow("juan@example.com"))
	assert.Equal(t, 2, l.len())

	now = now.Add(time.Hour)
	assert.True(t, l.allow("jane@example.com"), "an evicted bucket starts full")
	assert.Equal(t, 1, l.len())
}
