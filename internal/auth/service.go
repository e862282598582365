// Package auth は資格情報認証、セッショントークンの発行・解決を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/agentdesk/internal/model"
	"github.com/hitoshi/agentdesk/internal/repository"
)

// emailPattern はメールアドレス形式の簡易検証パターン。
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// サインアップ検証の境界値
const (
	minNameLength     = 2
	minPasswordLength = 8
)

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	hasher   *PasswordHasher
	tokens   TokenIssuer
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, hasher *PasswordHasher, tokens TokenIssuer) *Service {
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
		tokens:   tokens,
	}
}

// Signup は新規ユーザーを登録する。
// 検証失敗時は最初に検出したエラーのメッセージを持つValidationErrorを、
// メールアドレス重複時はConflictErrorを返す。
// 保存するのはパスワードの一方向ハッシュのみで、平文は保持しない。
func (s *Service) Signup(ctx context.Context, name, email, password string) (*model.User, error) {
	if err := validateSignup(name, email, password); err != nil {
		return nil, err
	}

	email = strings.ToLower(strings.TrimSpace(email))

	// 事前チェック。最終的な一意性はDBの一意制約が保証する。
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailConflictError()
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if err == repository.ErrDuplicateEmail {
			return nil, model.NewEmailConflictError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user signed up",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return user, nil
}

// VerifyCredentials はメールアドレスとパスワードを検証し、
// 成功時は最小限のIdentityを返す。失敗時は(nil, nil)を返し、
// 「ユーザー不存在」と「パスワード不一致」を呼び出し側から区別できないようにする。
// 未検出時にもダミーのbcrypt比較を実行し、応答時間の差を作らない。
func (s *Service) VerifyCredentials(ctx context.Context, email, password string) (*model.Identity, error) {
	if email == "" || password == "" {
		return nil, nil
	}

	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || user.PasswordHash == "" {
		s.hasher.VerifyDummy(password)
		return nil, nil
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		return nil, nil
	}

	return user.Identity(), nil
}

// Login は資格情報を検証し、成功時にセッショントークンとIdentityを返す。
// 認証失敗時は(""、nil、nil)を返す。トークンの発行はログイン成功時の1回のみ。
func (s *Service) Login(ctx context.Context, email, password string) (string, *model.Identity, error) {
	identity, err := s.VerifyCredentials(ctx, email, password)
	if err != nil {
		return "", nil, err
	}
	if identity == nil {
		return "", nil, nil
	}

	token, err := s.tokens.Issue(identity.ID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", identity.ID))

	return token, identity, nil
}

// CurrentUser は認証済みユーザーIDから現在のユーザーを取得する。
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found")
	}

	return user, nil
}

// validateSignup はサインアップ入力を検証し、最初に検出したエラーを返す。
func validateSignup(name, email, password string) error {
	if utf8.RuneCountInString(name) < minNameLength {
		return model.NewValidationError("名前は2文字以上で入力してください。")
	}
	if !emailPattern.MatchString(email) {
		return model.NewValidationError("メールアドレスの形式が正しくありません。")
	}
	if len(password) < minPasswordLength {
		return model.NewValidationError("パスワードは8文字以上で入力してください。")
	}
	return nil
}
