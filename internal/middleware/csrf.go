package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
)

const (
	// csrfCookieName はCSRFトークンを保持するCookieの名前。
	// ログイン・サインアップ・エージェント作成の各フォームがfetch送信前に
	// JavaScriptで読み取るため、HttpOnlyではない。
	csrfCookieName = "csrf_token"

	// csrfHeaderName はフォームのfetch送信が付与するリクエストヘッダー名。
	csrfHeaderName = "X-CSRF-Token"

	// csrfTokenTTLSeconds はCSRFトークンCookieの有効期間（24時間）。
	// セッションのデフォルト有効期間と揃えている。
	csrfTokenTTLSeconds = 86400
)

// CSRFConfig はCSRFミドルウェアの設定。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
}

// NewCSRFMiddleware はダブルサブミットCookie方式のCSRF対策ミドルウェアを返す。
// ルーター全体に適用する前提で、読み取りメソッド（GET, HEAD, OPTIONS）では
// 検証せずトークンCookieを発行する。これにより公開ページ（ログイン・
// サインアップ）の初回表示時点でトークンが揃い、最初のPOSTから検証が通る。
// 状態変更メソッドはCookie値とヘッダー値の一致を必須とし、不一致は403で拒否する。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isReadOnlyMethod(r.Method) {
				issueCSRFCookieIfAbsent(w, r, config)
				next.ServeHTTP(w, r)
				return
			}

			if reason, ok := validateCSRFToken(r); !ok {
				slog.Warn("CSRF validation failed: "+reason,
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				http.Error(w, "CSRF token validation failed", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NewCSRFTokenHandler はGET /api/csrf-token のハンドラーを返す。
// 既存のトークンCookieがあればその値を、なければ新規発行した値をJSONで返す。
// Cookieを読まないクライアント（APIを直接叩くツールなど）のための取得口。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string

		cookie, err := r.Cookie(csrfCookieName)
		if err == nil && cookie.Value != "" {
			token = cookie.Value
		} else {
			token, err = generateCSRFToken()
			if err != nil {
				slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			writeCSRFCookie(w, config, token)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"token": token,
		})
	})
}

// validateCSRFToken はCookie値とヘッダー値の一致を検証する。
// 不一致・欠落の場合はログ向けの理由とfalseを返す。
func validateCSRFToken(r *http.Request) (string, bool) {
	cookieToken, err := r.Cookie(csrfCookieName)
	if err != nil || cookieToken.Value == "" {
		return "missing cookie token", false
	}

	headerToken := r.Header.Get(csrfHeaderName)
	if headerToken == "" {
		return "missing header token", false
	}

	if subtle.ConstantTimeCompare([]byte(cookieToken.Value), []byte(headerToken)) != 1 {
		return "token mismatch", false
	}

	return "", true
}

// isReadOnlyMethod は状態を変更しないHTTPメソッドかどうかを判定する。
func isReadOnlyMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// issueCSRFCookieIfAbsent はトークンCookie未所持のリクエストに新規発行する。
// 既に所持している場合は再発行せず、フォーム表示をまたいでトークンを保つ。
func issueCSRFCookieIfAbsent(w http.ResponseWriter, r *http.Request, config CSRFConfig) {
	if _, err := r.Cookie(csrfCookieName); err == nil {
		return
	}

	token, err := generateCSRFToken()
	if err != nil {
		slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
		return
	}

	writeCSRFCookie(w, config, token)
}

// writeCSRFCookie はトークンCookieをレスポンスに設定する。
func writeCSRFCookie(w http.ResponseWriter, config CSRFConfig, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   csrfTokenTTLSeconds,
		HttpOnly: false, // フォームのスクリプトが読み取る
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateCSRFToken は暗号論的乱数から64文字の16進トークンを生成する。
func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
