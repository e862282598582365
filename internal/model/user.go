// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashにはbcryptハッシュのみを格納し、平文パスワードは保持しない。
type User struct {
	ID           string
	Name         string
	Email        string // 小文字に正規化して保存する
	PasswordHash string
	AvatarURL    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity は認証サブシステムが外部に公開する最小限のユーザー情報。
// パスワードハッシュは含まない。
type Identity struct {
	ID        string
	Name      string
	Email     string
	AvatarURL string
}

// Identity はUserからIdentityを生成する。
func (u *User) Identity() *Identity {
	return &Identity{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
	}
}
