// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/agentdesk/internal/model"
)

// ErrDuplicateEmail はメールアドレスの一意制約違反を表す。
// 呼び出し側はerrors.Isで判定し、409 Conflictに変換する。
var ErrDuplicateEmail = errors.New("email already exists")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail は小文字正規化済みメールアドレスでユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	// メールアドレスが重複している場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error
}

// AgentRepository はエージェントデータの永続化インターフェース。
type AgentRepository interface {
	// CreateWithRouteDetails はエージェントと配下の全ルート詳細を
	// 同一トランザクションで作成する。部分的な作成結果は観測されない。
	CreateWithRouteDetails(ctx context.Context, agent *model.Agent) error

	// FindByID は指定IDのエージェントをルート詳細付きで取得する。
	// 見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Agent, error)

	// ListByOwner は指定ユーザーのエージェント一覧を名前昇順で返す。
	// 永続化層の失敗はそのままエラーとして返す（空リストに丸めない）。
	ListByOwner(ctx context.Context, userID string) ([]*model.Agent, error)
}
