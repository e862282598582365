// Package security はアプリケーションのセキュリティ機能を提供する。
//
// PromptSanitizerService はユーザーが入力するエージェント名・プロンプトを
// サニタイズし、保存値にHTMLが混入することを防ぐ。
// bluemondayライブラリのStrictPolicyで全タグを除去する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// PromptSanitizerService はプロンプトテキストのサニタイズ機能のインターフェースを定義する。
// エージェント作成時、名前・プロンプト・ルート詳細の保存前に使用される。
type PromptSanitizerService interface {
	// Sanitize は入力テキストから全てのHTMLタグを除去し、前後の空白を削る。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// promptSanitizer はPromptSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type promptSanitizer struct {
	policy *bluemonday.Policy
}

// NewPromptSanitizer はPromptSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyを使用し、タグを一切許可しない。
// プロンプトは表示時にもhtml/templateでエスケープされるため、
// ここでのサニタイズは保存値を純粋なテキストに保つための防御層となる。
func NewPromptSanitizer() *promptSanitizer {
	return &promptSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力テキストから全てのHTMLタグを除去し、前後の空白を削る。
func (s *promptSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}

// compile-time interface check
var _ PromptSanitizerService = (*promptSanitizer)(nil)
