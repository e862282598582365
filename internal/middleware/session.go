// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "session_token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// resolvedUserContextKey は解決済みユーザーIDの書き戻し用ホルダーを格納するキー。
var resolvedUserContextKey = contextKey("resolved_user_holder")

// resolvedUserHolder はセッションミドルウェアで解決したユーザーIDを
// 外側のロギングミドルウェアへ伝えるためのホルダー。
// コンテキスト値は下流にしか流れないため、ポインタ経由で書き戻す。
type resolvedUserHolder struct {
	userID string
}

// contextWithResolvedUserHolder はホルダーをコンテキストに載せて返す。
// ロギングミドルウェアがハンドラー実行前に呼び出す。
func contextWithResolvedUserHolder(ctx context.Context) (context.Context, *resolvedUserHolder) {
	holder := &resolvedUserHolder{}
	return context.WithValue(ctx, resolvedUserContextKey, holder), holder
}

// recordResolvedUserID はコンテキスト上のホルダーに解決済みユーザーIDを書き込む。
// ホルダーが存在しない場合（ロギングミドルウェア外のリクエスト）は何もしない。
func recordResolvedUserID(ctx context.Context, userID string) {
	if holder, ok := ctx.Value(resolvedUserContextKey).(*resolvedUserHolder); ok {
		holder.userID = userID
	}
}

// TokenResolver はセッショントークンの解決に必要なインターフェース。
// auth.TokenIssuerの部分集合として定義する。
type TokenResolver interface {
	Resolve(tokenString string) (string, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッショントークンを読み取り、
// 検証するミドルウェアを返す。APIルート用。
// 認証済みユーザーIDをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返し、後続ハンドラーは実行しない。
func NewSessionMiddleware(resolver TokenResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := resolveSession(r, resolver)
			if !ok {
				WriteUnauthorizedResponse(w)
				return
			}

			recordResolvedUserID(r.Context(), userID)
			ctx := context.WithValue(r.Context(), userIDContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewPageGuardMiddleware は保護ページ用のセッション検証ミドルウェアを返す。
// 未認証リクエストはloginPathへリダイレクトし、元のリクエストは処理しない。
// 認証判定はハンドラー実行より必ず先に行われる。
// このミドルウェアを通さないパスは公開ページとしてそのまま到達可能となる。
func NewPageGuardMiddleware(resolver TokenResolver, loginPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := resolveSession(r, resolver)
			if !ok {
				http.Redirect(w, r, loginPath, http.StatusTemporaryRedirect)
				return
			}

			recordResolvedUserID(r.Context(), userID)
			ctx := context.WithValue(r.Context(), userIDContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolveSession はCookieからトークンを取り出して検証する。
// 有効な場合はユーザーIDとtrueを返す。
func resolveSession(r *http.Request, resolver TokenResolver) (string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	userID, err := resolver.Resolve(cookie.Value)
	if err != nil || userID == "" {
		return "", false
	}

	return userID, true
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
