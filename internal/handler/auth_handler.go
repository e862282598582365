// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/agentdesk/internal/middleware"
	"github.com/hitoshi/agentdesk/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// Signup は新規ユーザーを登録する。
	Signup(ctx context.Context, name, email, password string) (*model.User, error)
	// Login は資格情報を検証し、成功時にセッショントークンとIdentityを返す。
	// 認証失敗時は("", nil, nil)を返す。
	Login(ctx context.Context, email, password string) (string, *model.Identity, error)
	// CurrentUser は認証済みユーザーIDから現在のユーザーを取得する。
	CurrentUser(ctx context.Context, userID string) (*model.User, error)
}

// AuthMetricsRecorder は認証ハンドラーが記録するメトリクスのインターフェース。
type AuthMetricsRecorder interface {
	RecordLoginSuccess()
	RecordLoginFailure()
	RecordSignup()
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler は資格情報認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
	metrics AuthMetricsRecorder
}

// NewAuthHandler はAuthHandlerを生成する。
// metricsはnilを許容する（テスト用）。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, metrics AuthMetricsRecorder) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
		metrics: metrics,
	}
}

// signupRequest はサインアップリクエストのボディ。
type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// signupResponse はサインアップ成功レスポンス。
// パスワードおよびそのハッシュは含めない。
type signupResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// identityResponse は認証済みユーザー情報のAPIレスポンス。
type identityResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Signup は新規ユーザーを登録する。
// POST /api/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	user, err := h.service.Signup(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordSignup()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(signupResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	})
}

// Login は資格情報を検証し、セッションCookieを設定する。
// POST /api/auth/login
// 「ユーザー不存在」と「パスワード不一致」は同一のレスポンスを返す。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	token, identity, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		slog.Error("login failed", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
		return
	}
	if identity == nil {
		if h.metrics != nil {
			h.metrics.RecordLoginFailure()
		}
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewLoginFailedError())
		return
	}

	if h.metrics != nil {
		h.metrics.RecordLoginSuccess()
	}

	// セッショントークンをHTTP Only Cookieに設定
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(identityResponse{
		ID:        identity.ID,
		Name:      identity.Name,
		Email:     identity.Email,
		AvatarURL: identity.AvatarURL,
	})
}

// Logout はセッションCookieをクリアする。
// POST /auth/logout
// トークンはステートレスなため、Cookieの破棄のみを行う
// （発行済みトークンは自然期限まで有効のまま残る）。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// Me は現在のログインユーザー情報を返す。
// GET /api/auth/me （セッションミドルウェアの内側に配置する）
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, err := h.service.CurrentUser(r.Context(), userID)
	if err != nil {
		slog.Error("failed to get current user", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(identityResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
	})
}
