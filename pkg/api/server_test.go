package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/finance/pkg/httputil"
	"github.com/platinummonkey/finance/pkg/models"
	"github.com/platinummonkey/finance/pkg/observability"
)

// mockService records the last call and answers through its function fields
type mockService struct {
	calls []string

	registerFn   func(id, provider, plan string) error
	userFn       func(op, id, provider string) error
	changePlanFn func(id, provider, plan string) error
	updateFn     func(id, provider string, state map[string]string) error
	getStateFn   func(id, provider, property string) (string, error)
	authorizedFn func(id, provider, operation string) (bool, error)
	planFn       func(op, name string, options map[string]string) error
	optionsFn    func(name string) (map[string]string, error)
	reloadFn     func() error
}

func (m *mockService) call(format string, args ...any) {
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
}

func (m *mockService) RegisterUser(ctx context.Context, id, provider, planName string) error {
	m.call("register %s %s %s", provider, id, planName)
	if m.registerFn != nil {
		return m.registerFn(id, provider, planName)
	}
	return nil
}

func (m *mockService) user(op, id, provider string) error {
	m.call("%s %s %s", op, provider, id)
	if m.userFn != nil {
		return m.userFn(op, id, provider)
	}
	return nil
}

func (m *mockService) UnregisterUser(ctx context.Context, id, provider string) error {
	return m.user("unregister", id, provider)
}

func (m *mockService) RemoveUser(ctx context.Context, id, provider string) error {
	return m.user("remove", id, provider)
}

func (m *mockService) PurgeUser(ctx context.Context, id, provider string) error {
	return m.user("purge", id, provider)
}

func (m *mockService) ChangePlan(ctx context.Context, id, provider, newPlanName string) error {
	m.call("change %s %s %s", provider, id, newPlanName)
	if m.changePlanFn != nil {
		return m.changePlanFn(id, provider, newPlanName)
	}
	return nil
}

func (m *mockService) UpdateFinanceState(ctx context.Context, id, provider string, state map[string]string) error {
	m.call("update %s %s", provider, id)
	if m.updateFn != nil {
		return m.updateFn(id, provider, state)
	}
	return nil
}

func (m *mockService) GetFinanceState(id, provider, property string) (string, error) {
	m.call("state %s %s %s", provider, id, property)
	if m.getStateFn != nil {
		return m.getStateFn(id, provider, property)
	}
	return "", nil
}

func (m *mockService) IsAuthorized(ctx context.Context, id, provider, operation string) (bool, error) {
	m.call("authorized %s %s %s", provider, id, operation)
	if m.authorizedFn != nil {
		return m.authorizedFn(id, provider, operation)
	}
	return true, nil
}

func (m *mockService) plan(op, name string, options map[string]string) error {
	m.call("%s plan %s", op, name)
	if m.planFn != nil {
		return m.planFn(op, name, options)
	}
	return nil
}

func (m *mockService) CreatePlan(ctx context.Context, kind, name string, options map[string]string) error {
	return m.plan("create "+kind, name, options)
}

func (m *mockService) GetPlanOptions(name string) (map[string]string, error) {
	m.call("get plan %s", name)
	if m.optionsFn != nil {
		return m.optionsFn(name)
	}
	return map[string]string{}, nil
}

func (m *mockService) UpdatePlanOptions(ctx context.Context, name string, options map[string]string) error {
	return m.plan("update", name, options)
}

func (m *mockService) RemovePlan(ctx context.Context, name string) error {
	return m.plan("remove", name, nil)
}

func (m *mockService) PlanNames() []string {
	return []string{"default", "gold"}
}

func (m *mockService) Reload(ctx context.Context) error {
	m.call("reload")
	if m.reloadFn != nil {
		return m.reloadFn()
	}
	return nil
}

func newTestServer(service Service) *Server {
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewServer(service, logger, nil)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_UserRoutes(t *testing.T) {
	service := &mockService{}
	server := newTestServer(service)

	tests := []struct {
		method string
		path   string
		body   string
		status int
		call   string
	}{
		{http.MethodPost, "/fs/users", `{"id":"alice","provider":"idp","plan":"gold"}`, http.StatusCreated, "register idp alice gold"},
		{http.MethodDelete, "/fs/users/idp/alice", "", http.StatusNoContent, "unregister idp alice"},
		{http.MethodDelete, "/fs/users/idp/alice/record", "", http.StatusNoContent, "remove idp alice"},
		{http.MethodDelete, "/fs/users/idp/alice/purge", "", http.StatusNoContent, "purge idp alice"},
		{http.MethodPut, "/fs/users/idp/alice/plan", `{"plan":"silver"}`, http.StatusNoContent, "change idp alice silver"},
		{http.MethodPut, "/fs/users/idp/alice/state", `{"PROPERTY_TYPE":"CREDITS","CREDITS_TO_ADD":"5"}`, http.StatusNoContent, "update idp alice"},
		{http.MethodGet, "/fs/users/idp/alice/state/USER_CREDITS", "", http.StatusOK, "state idp alice USER_CREDITS"},
		{http.MethodGet, "/fs/users/idp/alice/authorized/create", "", http.StatusOK, "authorized idp alice create"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			service.calls = nil
			rec := do(t, server, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, []string{tt.call}, service.calls)
		})
	}
}

func TestServer_RegisterUserValidation(t *testing.T) {
	service := &mockService{}
	server := newTestServer(service)

	rec := do(t, server, http.MethodPost, "/fs/users", `{"id":"alice","provider":"idp"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "plan is required")

	rec = do(t, server, http.MethodPost, "/fs/users", `{"id":"alice","provider":"idp","plan":"gold","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, server, http.MethodPut, "/fs/users/idp/alice/plan", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, service.calls)
}

func TestServer_FinanceStateAndAuthorization(t *testing.T) {
	var updated map[string]string
	service := &mockService{
		updateFn: func(id, provider string, state map[string]string) error {
			updated = state
			return nil
		},
		getStateFn: func(id, provider, property string) (string, error) {
			return "12.5", nil
		},
		authorizedFn: func(id, provider, operation string) (bool, error) {
			return false, nil
		},
	}
	server := newTestServer(service)

	rec := do(t, server, http.MethodPut, "/fs/users/idp/alice/state", `{"PROPERTY_TYPE":"INVOICE","inv-1":"PAID"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, map[string]string{models.PropertyType: models.PropertyTypeInvoice, "inv-1": "PAID"}, updated)

	rec = do(t, server, http.MethodGet, "/fs/users/idp/alice/state/USER_CREDITS", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var state FinanceStateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&state))
	assert.Equal(t, FinanceStateResponse{Property: "USER_CREDITS", Value: "12.5"}, state)

	rec = do(t, server, http.MethodGet, "/fs/users/idp/alice/authorized/create", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var authorized AuthorizedResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&authorized))
	assert.Equal(t, AuthorizedResponse{Operation: "create", Authorized: false}, authorized)
}

func TestServer_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unknown user", fmt.Errorf("%w: user idp/alice", models.ErrNotFound), http.StatusNotFound},
		{"unpaid invoices", models.ErrUserHasNotPaid, http.StatusPaymentRequired},
		{"already subscribed", models.ErrUserAlreadyExists, http.StatusConflict},
		{"cloud does not support it", models.ErrNotImplemented, http.StatusNotImplemented},
		{"orchestrator down", models.ErrUnavailable, http.StatusBadGateway},
		{"billing failed", models.ErrInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &mockService{
				userFn: func(op, id, provider string) error { return tt.err },
			}
			rec := do(t, newTestServer(service).Handler(), http.MethodDelete, "/fs/users/idp/alice", "")

			assert.Equal(t, tt.status, rec.Code)
			var body httputil.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.err.Error(), body.Error)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

func TestServer_PlanRoutes(t *testing.T) {
	var created map[string]string
	service := &mockService{
		planFn: func(op, name string, options map[string]string) error {
			if name == "missing" {
				return fmt.Errorf("%w: plan %s", models.ErrNotFound, name)
			}
			if op == "remove" && name == "default" {
				return fmt.Errorf("%w: plan default has registered users", models.ErrInvalidParameter)
			}
			created = options
			return nil
		},
		optionsFn: func(name string) (map[string]string, error) {
			return map[string]string{"billing_interval": "3600000"}, nil
		},
	}
	server := newTestServer(service)

	rec := do(t, server, http.MethodPost, "/fs/plans", `{"name":"gold","kind":"postpaid","options":{"billing_interval":"60000"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, map[string]string{"billing_interval": "60000"}, created)

	rec = do(t, server, http.MethodPost, "/fs/plans", `{"name":"gold"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, server, http.MethodGet, "/fs/plans", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list PlansResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Equal(t, []string{"default", "gold"}, list.Plans)

	rec = do(t, server, http.MethodGet, "/fs/plans/gold", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var plan PlanResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&plan))
	assert.Equal(t, "3600000", plan.Options["billing_interval"])

	rec = do(t, server, http.MethodPut, "/fs/plans/missing", `{"options":{}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, server, http.MethodDelete, "/fs/plans/default", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, server, http.MethodDelete, "/fs/plans/gold", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServer_Reload(t *testing.T) {
	service := &mockService{}
	server := newTestServer(service)

	rec := do(t, server, http.MethodPost, "/fs/reload", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	service.reloadFn = func() error {
		return fmt.Errorf("%w: failed to load configuration", models.ErrInvalidParameter)
	}
	rec = do(t, server, http.MethodPost, "/fs/reload", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"reload", "reload"}, service.calls)
}

func TestServer_NotFound(t *testing.T) {
	server := newTestServer(&mockService{})

	rec := do(t, server, http.MethodGet, "/nonexistent", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no such route")
}

func TestServer_Handler(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)

	service := &mockService{
		userFn: func(op, id, provider string) error { panic("boom") },
	}
	handler := NewServer(service, logger, metrics).Handler()

	t.Run("recovers panics", func(t *testing.T) {
		rec := do(t, handler, http.MethodDelete, "/fs/users/idp/alice", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("rejects non JSON bodies", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/fs/users", bytes.NewBufferString("id=alice"))
		req.Header.Set("Content-Type", "text/plain")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("labels metrics with the route template", func(t *testing.T) {
		rec := do(t, handler, http.MethodGet, "/fs/plans", "")
		require.Equal(t, http.StatusOK, rec.Code)

		count := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/fs/plans", "200"))
		assert.Equal(t, float64(1), count)
	})
}
