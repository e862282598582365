package model

import "time"

// AgentType はエージェントの用途タグを表す。
// 自由形式のタグであり、UI上は "email" / "phone" を使用する。
type AgentType string

const (
	// AgentTypeEmail はメール自動応答エージェントを示す。
	AgentTypeEmail AgentType = "email"
	// AgentTypePhone は電話自動応答エージェントを示す。
	AgentTypePhone AgentType = "phone"
)

// Agent はユーザーが定義する自動応答エージェントを表す。
// メインプロンプトと、配下のルート詳細（作成順）を保持する。
type Agent struct {
	ID           string
	UserID       string
	Name         string
	Prompt       string
	Type         AgentType
	RouteDetails []RouteDetail
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RouteDetail はエージェント配下のサブルールを表す。
// ルートパターンと、そのルート専用のプロンプトを対応付ける。
// 親エージェントの作成トランザクション内でのみ作成され、単独では存在しない。
type RouteDetail struct {
	ID        string
	AgentID   string
	Route     string
	Prompt    string
	Position  int // 送信された順序を保持する
	CreatedAt time.Time
}
