package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash は存在しないユーザーに対するタイミング攻撃対策用のダミーハッシュ。
// ユーザー未検出時にもbcrypt比較を1回実行し、応答時間を一定に保つ。
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// PasswordHasher はbcryptによるパスワードのハッシュ化と検証を提供する。
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher はPasswordHasherを生成する。
// costが有効範囲外の場合はbcrypt.DefaultCostを使用する。
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash は平文パスワードのbcryptハッシュを生成する。
func (h *PasswordHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify はパスワードがハッシュと一致するかを検証する。
func (h *PasswordHasher) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// VerifyDummy はダミーハッシュとの比較を実行する。
// ユーザー未検出・ハッシュ未設定の場合でも比較時間を一定に保つために呼び出す。
func (h *PasswordHasher) VerifyDummy(password string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
}
