package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/agentdesk/internal/agent"
	"github.com/hitoshi/agentdesk/internal/metrics"
	"github.com/hitoshi/agentdesk/internal/middleware"
	"github.com/hitoshi/agentdesk/internal/model"
	"github.com/hitoshi/agentdesk/internal/webui"
)

// --- モック定義 ---

type mockSessionResolver struct {
	resolveFn func(tokenString string) (string, error)
}

func (m *mockSessionResolver) Resolve(tokenString string) (string, error) {
	if m.resolveFn != nil {
		return m.resolveFn(tokenString)
	}
	return "", errors.New("invalid token")
}

type mockHealthChecker struct {
	pingErr error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.pingErr
}

// newTestRouter は全依存をモックで構成したルーターを返す。
func newTestRouter(t *testing.T, resolver middleware.TokenResolver, authSvc AuthServiceInterface, agentSvc AgentServiceInterface) http.Handler {
	t.Helper()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		SessionResolver:   resolver,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		CSRFConfig:        middleware.CSRFConfig{},
		Logger:            slog.Default(),

		HealthChecker: &mockHealthChecker{},
		Metrics:       collector,
		Gatherer:      registry,

		AuthService: authSvc,
		AuthConfig: AuthHandlerConfig{
			BaseURL:       "http://localhost:8080",
			SessionMaxAge: 86400,
		},

		AgentService: agentSvc,

		Pages: webui.NewPageHandler(agentSvc, authSvc),
	})
}

func validSessionResolver() *mockSessionResolver {
	return &mockSessionResolver{
		resolveFn: func(token string) (string, error) {
			if token == "valid-token" {
				return "user-1", nil
			}
			return "", errors.New("invalid token")
		},
	}
}

// --- 公開ルートのテスト ---

func TestRouter_HealthEndpoint(t *testing.T) {
	router := newTestRouter(t, &mockSessionResolver{}, &mockAuthService{}, &mockAgentService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, &mockSessionResolver{}, &mockAuthService{}, &mockAgentService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_PublicPages_NoAuthRequired(t *testing.T) {
	router := newTestRouter(t, &mockSessionResolver{}, &mockAuthService{}, &mockAgentService{})

	for _, path := range []string{"/", "/login", "/signup"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		if w.Code != http.StatusOK {
			t.Errorf("GET %s: status = %d, want %d", path, w.Code, http.StatusOK)
		}
	}
}

func TestRouter_CSRFTokenEndpoint(t *testing.T) {
	router := newTestRouter(t, &mockSessionResolver{}, &mockAuthService{}, &mockAgentService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "token") {
		t.Error("expected token in response body")
	}
}

// --- CSRF保護のテスト ---

func TestRouter_SignupWithoutCSRFToken_Forbidden(t *testing.T) {
	called := false
	authSvc := &mockAuthService{
		signupFn: func(ctx context.Context, name, email, password string) (*model.User, error) {
			called = true
			return &model.User{ID: "user-1"}, nil
		},
	}
	router := newTestRouter(t, &mockSessionResolver{}, authSvc, &mockAgentService{})

	body := `{"name":"田中太郎","email":"tanaka@example.com","password":"password123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader(body))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if called {
		t.Error("signup must not execute without CSRF token")
	}
}

func TestRouter_SignupWithCSRFToken_Succeeds(t *testing.T) {
	authSvc := &mockAuthService{
		signupFn: func(ctx context.Context, name, email, password string) (*model.User, error) {
			return &model.User{ID: "user-1", Name: name, Email: email}, nil
		},
	}
	router := newTestRouter(t, &mockSessionResolver{}, authSvc, &mockAgentService{})

	body := `{"name":"田中太郎","email":"tanaka@example.com","password":"password123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader(body))
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "token-abc"})
	req.Header.Set("X-CSRF-Token", "token-abc")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d\nbody: %s", w.Code, http.StatusCreated, w.Body.String())
	}
}

// --- 保護APIルートのテスト ---

func TestRouter_ProtectedAPI_NoSession_Returns401(t *testing.T) {
	listCalled := false
	agentSvc := &mockAgentService{
		listByOwnerFn: func(ctx context.Context, userID string) ([]*model.Agent, error) {
			listCalled = true
			return nil, nil
		},
	}
	router := newTestRouter(t, &mockSessionResolver{}, &mockAuthService{}, agentSvc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/agents", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	// 認証判定がハンドラー実行より先に行われること
	if listCalled {
		t.Error("service must not be called for unauthenticated request")
	}
}

func TestRouter_ProtectedAPI_ValidSession_Succeeds(t *testing.T) {
	agentSvc := &mockAgentService{
		listByOwnerFn: func(ctx context.Context, userID string) ([]*model.Agent, error) {
			if userID != "user-1" {
				t.Errorf("userID = %q, want %q", userID, "user-1")
			}
			return []*model.Agent{{ID: "a-1", UserID: userID, Name: "受注確認"}}, nil
		},
	}
	router := newTestRouter(t, validSessionResolver(), &mockAuthService{}, agentSvc)

	req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "valid-token"})
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d\nbody: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestRouter_CreateAgent_RequiresSessionAndCSRF(t *testing.T) {
	createCalled := false
	agentSvc := &mockAgentService{
		createFn: func(ctx context.Context, userID string, input agent.CreateInput) (*model.Agent, error) {
			createCalled = true
			return &model.Agent{ID: "a-1", UserID: userID, Name: input.Name, Type: input.Type}, nil
		},
	}
	router := newTestRouter(t, validSessionResolver(), &mockAuthService{}, agentSvc)

	body := `{"name":"受注確認","prompt":"確認する","type":"email"}`

	// セッションのみ（CSRFなし）は403
	req := httptest.NewRequest(http.MethodPost, "/api/agents", strings.NewReader(body))
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "valid-token"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("without CSRF: status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if createCalled {
		t.Error("create must not execute without CSRF token")
	}

	// セッション + CSRFで201
	req = httptest.NewRequest(http.MethodPost, "/api/agents", strings.NewReader(body))
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "valid-token"})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "token-abc"})
	req.Header.Set("X-CSRF-Token", "token-abc")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("with CSRF: status = %d, want %d\nbody: %s", w.Code, http.StatusCreated, w.Body.String())
	}
}

// --- 保護ページルートのテスト ---

func TestRouter_ProtectedPages_NoSession_RedirectToLogin(t *testing.T) {
	router := newTestRouter(t, &mockSessionResolver{}, &mockAuthService{}, &mockAgentService{})

	for _, path := range []string{"/dashboard", "/agents", "/agents/new"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		if w.Code != http.StatusTemporaryRedirect {
			t.Errorf("GET %s: status = %d, want %d", path, w.Code, http.StatusTemporaryRedirect)
			continue
		}
		if location := w.Header().Get("Location"); location != "/login" {
			t.Errorf("GET %s: Location = %q, want %q", path, location, "/login")
		}
	}
}

func TestRouter_Dashboard_ValidSession_RendersPage(t *testing.T) {
	authSvc := &mockAuthService{
		currentUserFn: func(ctx context.Context, userID string) (*model.User, error) {
			return &model.User{ID: userID, Name: "田中太郎", Email: "tanaka@example.com"}, nil
		},
	}
	router := newTestRouter(t, validSessionResolver(), authSvc, &mockAgentService{})

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "valid-token"})
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "田中太郎") {
		t.Error("expected user name in dashboard page")
	}
}

// --- ログアウトのテスト ---

func TestRouter_Logout_ClearsCookie(t *testing.T) {
	router := newTestRouter(t, &mockSessionResolver{}, &mockAuthService{}, &mockAgentService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "token-abc"})
	req.Header.Set("X-CSRF-Token", "token-abc")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTemporaryRedirect)
	}
}

// --- セキュリティヘッダーのテスト ---

func TestRouter_SecurityHeadersApplied(t *testing.T) {
	router := newTestRouter(t, &mockSessionResolver{}, &mockAuthService{}, &mockAgentService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", got, "nosniff")
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want %q", got, "DENY")
	}
}
