package httpapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyops/settlebook/internal/auth"
	"github.com/tallyops/settlebook/internal/ledger"
	"github.com/tallyops/settlebook/internal/store/filestore"
	"github.com/tallyops/settlebook/internal/transport/httpapi"
	"github.com/tallyops/settlebook/internal/transport/httpapi/handler"
	"github.com/tallyops/settlebook/internal/transport/httpapi/middleware"
	"github.com/tallyops/settlebook/pkg/logger"
)

const (
	ownerID int64 = 1000
	adminID int64 = 42
)

type testAPI struct {
	router http.Handler
	store  ledger.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store, err := filestore.Open(t.TempDir())
	require.NoError(t, err)

	log := logger.NewWithFormat("test", "", io.Discard)
	svc := ledger.NewService(store, log, time.Second)
	policy := auth.NewPolicy(store, ownerID, log)
	tokens := auth.NewTokenService("test-secret")

	require.NoError(t, policy.GrantAdmin(t.Context(), ownerID, &ledger.Admin{UserID: adminID, Username: "alice"}))

	router := httpapi.NewRouter(httpapi.Config{
		Logger:           log,
		AllowedOrigins:   []string{"*"},
		LedgerHandler:    handler.NewLedgerHandler(svc, nil, time.UTC, log),
		ConfigHandler:    handler.NewConfigHandler(svc, log),
		AdminHandler:     handler.NewAdminHandler(policy, log),
		AuthHandler:      handler.NewAuthHandler(tokens, log),
		DashboardHandler: handler.NewDashboardHandler(svc, nil, time.UTC, log),
		HealthHandler:    handler.NewHealthHandler(nil),
		OperatorAuth:     middleware.OperatorAuth(policy),
		DashboardAuth:    middleware.DashboardAuth(tokens),
	})

	return &testAPI{router: router, store: store}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, operatorID int64) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if operatorID != 0 {
		req.Header.Set(middleware.OperatorIDHeader, strconv.FormatInt(operatorID, 10))
		req.Header.Set(middleware.OperatorNameHeader, "alice")
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func configureChat(t *testing.T, a *testAPI, chatID string) {
	t.Helper()

	rec := a.do(t, http.MethodPatch, "/api/v1/chats/"+chatID+"/config", map[string]string{
		"deposit_rate":    "0.20",
		"deposit_fx":      "153",
		"withdrawal_rate": "0.02",
		"withdrawal_fx":   "137",
	}, adminID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/health", nil, 0)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/health/ready", nil, 0)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOperatorAuth(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/v1/chats/1/summary", nil, 0)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/chats/1/summary", nil, 555)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/chats/1/summary", nil, adminID)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The owner needs no admin entry.
	rec = a.do(t, http.MethodGet, "/api/v1/chats/1/summary", nil, ownerID)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecordDeposit_EndToEnd(t *testing.T) {
	a := newTestAPI(t)
	configureChat(t, a, "1")

	rec := a.do(t, http.MethodPost, "/api/v1/chats/1/transactions", map[string]string{
		"kind":   "deposit",
		"amount": "10000",
	}, adminID)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	view := decode[handler.RecordView](t, rec)
	assert.Equal(t, "deposit", view.Kind)
	assert.Equal(t, "52.28", view.ConvertedAmount)
	assert.Equal(t, "general", view.Tag)
	assert.NotZero(t, view.ID)

	rec = a.do(t, http.MethodGet, "/api/v1/chats/1/summary", nil, adminID)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[handler.SummaryView](t, rec)
	assert.Equal(t, "52.28", summary.ShouldSend)
	assert.Len(t, summary.Deposits, 1)
}

func TestRecord_UnconfiguredChat(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/v1/chats/9/transactions", map[string]string{
		"kind":   "deposit",
		"amount": "100",
	}, adminID)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decode[handler.ErrorResponse](t, rec)
	assert.Equal(t, "NOT_CONFIGURED", body.Code)
}

func TestUndoFlow(t *testing.T) {
	a := newTestAPI(t)
	configureChat(t, a, "1")

	rec := a.do(t, http.MethodPost, "/api/v1/chats/1/transactions", map[string]string{
		"kind":   "withdrawal",
		"amount": "5000",
	}, adminID)
	require.Equal(t, http.StatusCreated, rec.Code)
	view := decode[handler.RecordView](t, rec)

	idPath := "/api/v1/transactions/" + strconv.FormatInt(view.ID, 10) + "/ref"
	rec = a.do(t, http.MethodPut, idPath, map[string]string{"ref": "msg-7"}, adminID)
	require.Equal(t, http.StatusOK, rec.Code)

	// Re-attaching the same ref is fine, a different one conflicts.
	rec = a.do(t, http.MethodPut, idPath, map[string]string{"ref": "msg-7"}, adminID)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(t, http.MethodPut, idPath, map[string]string{"ref": "msg-8"}, adminID)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodDelete, "/api/v1/transactions/ref/msg-7", nil, adminID)
	require.Equal(t, http.StatusOK, rec.Code)
	removed := decode[handler.RecordView](t, rec)
	assert.Equal(t, view.ID, removed.ID)

	// Second undo of the same reference finds nothing.
	rec = a.do(t, http.MethodDelete, "/api/v1/transactions/ref/msg-7", nil, adminID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDisbursementPair(t *testing.T) {
	a := newTestAPI(t)

	for _, amount := range []string{"35.04", "-35.04"} {
		rec := a.do(t, http.MethodPost, "/api/v1/chats/1/transactions", map[string]string{
			"kind":   "disbursement",
			"amount": amount,
		}, adminID)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := a.do(t, http.MethodGet, "/api/v1/chats/1/summary?full=1", nil, adminID)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[handler.SummaryView](t, rec)
	assert.Equal(t, "0.00", summary.Sent)
	assert.Len(t, summary.Disbursements, 2)
}

func TestSummaryClipping(t *testing.T) {
	a := newTestAPI(t)
	configureChat(t, a, "1")

	for i := 0; i < ledger.TopN+3; i++ {
		rec := a.do(t, http.MethodPost, "/api/v1/chats/1/transactions", map[string]string{
			"kind":   "deposit",
			"amount": "100",
		}, adminID)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := a.do(t, http.MethodGet, "/api/v1/chats/1/summary", nil, adminID)
	condensed := decode[handler.SummaryView](t, rec)
	assert.Len(t, condensed.Deposits, ledger.TopN)

	rec = a.do(t, http.MethodGet, "/api/v1/chats/1/summary?full=1", nil, adminID)
	full := decode[handler.SummaryView](t, rec)
	assert.Len(t, full.Deposits, ledger.TopN+3)
	assert.Equal(t, condensed.ShouldSend, full.ShouldSend)
}

func TestResetPeriod(t *testing.T) {
	a := newTestAPI(t)
	configureChat(t, a, "1")

	rec := a.do(t, http.MethodPost, "/api/v1/chats/1/transactions", map[string]string{
		"kind":   "deposit",
		"amount": "10000",
	}, adminID)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/v1/chats/1/reset", nil, adminID)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[ledger.ResetStats](t, rec)
	assert.Equal(t, 1, stats.Deposit.Count)

	rec = a.do(t, http.MethodGet, "/api/v1/chats/1/summary", nil, adminID)
	summary := decode[handler.SummaryView](t, rec)
	assert.Equal(t, "0.00", summary.ShouldSend)
}

func TestAdminManagement(t *testing.T) {
	a := newTestAPI(t)

	// Only the owner may grant.
	rec := a.do(t, http.MethodPost, "/api/v1/admins", map[string]any{"user_id": 777}, adminID)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/v1/admins", map[string]any{"user_id": 777, "username": "carol"}, ownerID)
	require.Equal(t, http.StatusCreated, rec.Code)

	// The new admin can now issue commands.
	rec = a.do(t, http.MethodGet, "/api/v1/chats/1/summary", nil, 777)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodDelete, "/api/v1/admins/777", nil, ownerID)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/chats/1/summary", nil, 777)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDashboardFlow(t *testing.T) {
	a := newTestAPI(t)
	configureChat(t, a, "1")

	rec := a.do(t, http.MethodPost, "/api/v1/chats/1/transactions", map[string]string{
		"kind":   "deposit",
		"amount": "10000",
	}, adminID)
	require.Equal(t, http.StatusCreated, rec.Code)

	// No token, no dashboard.
	rec = a.do(t, http.MethodGet, "/api/v1/dashboard/summary", nil, 0)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/v1/auth/token", map[string]any{"chat_id": 1, "user_id": 42}, adminID)
	require.Equal(t, http.StatusCreated, rec.Code)
	issued := decode[handler.IssueTokenResponse](t, rec)
	require.NotEmpty(t, issued.Token)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/summary", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	summary := decode[handler.SummaryView](t, w)
	assert.Equal(t, int64(1), summary.ChatID)
	assert.Equal(t, "52.28", summary.ShouldSend)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/records", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var records struct {
		ChatID  int64                `json:"chat_id"`
		Records []handler.RecordView `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records.Records, 1)
	assert.Equal(t, "10000", records.Records[0].RawAmount)
	assert.NotEmpty(t, records.Records[0].Time)
}
