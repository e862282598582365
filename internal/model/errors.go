// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, conflict, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation     = "VALIDATION_FAILED"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeEmailConflict  = "EMAIL_ALREADY_EXISTS"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeLoginFailed    = "LOGIN_FAILED"
	ErrCodeAgentNotFound  = "AGENT_NOT_FOUND"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// NewValidationError は入力値検証エラーを生成する。
// messageには最初に検出した検証エラーのメッセージを設定する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewEmailConflictError はメールアドレス重複エラーを生成する。
func NewEmailConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailConflict,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "conflict",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewUnauthorizedError は認証必須エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewLoginFailedError はログイン失敗エラーを生成する。
// ユーザー不存在とパスワード不一致を区別できる情報は含めない。
func NewLoginFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeLoginFailed,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewAgentNotFoundError はエージェント未検出エラーを生成する。
func NewAgentNotFoundError(agentID string) *APIError {
	return &APIError{
		Code:     ErrCodeAgentNotFound,
		Message:  fmt.Sprintf("指定されたエージェントが見つかりません: %s", agentID),
		Category: "validation",
		Action:   "エージェントIDを確認してください。",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
