package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/agentdesk/internal/model"
	"github.com/hitoshi/agentdesk/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn    func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
	createFn      func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

type mockTokenIssuer struct {
	issueFn   func(userID string) (string, error)
	resolveFn func(tokenString string) (string, error)
}

func (m *mockTokenIssuer) Issue(userID string) (string, error) {
	if m.issueFn != nil {
		return m.issueFn(userID)
	}
	return "test-token", nil
}

func (m *mockTokenIssuer) Resolve(tokenString string) (string, error) {
	if m.resolveFn != nil {
		return m.resolveFn(tokenString)
	}
	return "", nil
}

func newTestService(repo *mockUserRepo, tokens *mockTokenIssuer) *Service {
	// テストではコスト最小のbcryptを使用して高速化する
	return NewService(repo, NewPasswordHasher(4), tokens)
}

// --- Signupのテスト ---

func TestSignup_Success(t *testing.T) {
	var created *model.User
	repo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			created = user
			return nil
		},
	}
	svc := newTestService(repo, &mockTokenIssuer{})

	user, err := svc.Signup(context.Background(), "田中太郎", "Tanaka@Example.com", "password123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if user.ID == "" {
		t.Error("expected generated user ID")
	}
	if user.Name != "田中太郎" {
		t.Errorf("Name = %q, want %q", user.Name, "田中太郎")
	}
	// メールアドレスは小文字に正規化されること
	if user.Email != "tanaka@example.com" {
		t.Errorf("Email = %q, want %q", user.Email, "tanaka@example.com")
	}
	if created == nil {
		t.Fatal("expected Create to be called")
	}
	if created.PasswordHash == "" {
		t.Error("expected password hash to be stored")
	}
	// 平文パスワードがそのまま保存されていないこと
	if created.PasswordHash == "password123" {
		t.Error("password must not be stored in plain text")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestSignup_NameTooShort(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockTokenIssuer{})

	_, err := svc.Signup(context.Background(), "a", "test@example.com", "password123")
	assertValidationError(t, err)
}

func TestSignup_MultibyteNameCountsRunes(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockTokenIssuer{})

	// 2文字のマルチバイト名は有効（バイト数ではなく文字数で判定）
	user, err := svc.Signup(context.Background(), "太郎", "taro@example.com", "password123")
	if err != nil {
		t.Fatalf("expected no error for 2-rune name, got %v", err)
	}
	if user == nil {
		t.Fatal("expected non-nil user")
	}
}

func TestSignup_InvalidEmail(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockTokenIssuer{})

	for _, email := range []string{"", "not-an-email", "a@b", "a b@example.com", "@example.com"} {
		_, err := svc.Signup(context.Background(), "田中太郎", email, "password123")
		if err == nil {
			t.Errorf("expected validation error for email %q", email)
			continue
		}
		assertValidationError(t, err)
	}
}

func TestSignup_PasswordTooShort(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockTokenIssuer{})

	_, err := svc.Signup(context.Background(), "田中太郎", "test@example.com", "short")
	assertValidationError(t, err)
}

func TestSignup_DuplicateEmail_Precheck(t *testing.T) {
	repo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "existing-user", Email: email}, nil
		},
	}
	svc := newTestService(repo, &mockTokenIssuer{})

	_, err := svc.Signup(context.Background(), "田中太郎", "taken@example.com", "password123")
	assertConflictError(t, err)
}

func TestSignup_DuplicateEmail_RaceOnInsert(t *testing.T) {
	// 事前チェックをすり抜けた場合もDBの一意制約違反をConflictに変換すること
	repo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			return repository.ErrDuplicateEmail
		},
	}
	svc := newTestService(repo, &mockTokenIssuer{})

	_, err := svc.Signup(context.Background(), "田中太郎", "taken@example.com", "password123")
	assertConflictError(t, err)
}

func TestSignup_RepoError_Propagates(t *testing.T) {
	repo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := newTestService(repo, &mockTokenIssuer{})

	_, err := svc.Signup(context.Background(), "田中太郎", "test@example.com", "password123")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("infrastructure error should not be an APIError, got %v", apiErr)
	}
}

// --- VerifyCredentialsのテスト ---

func TestVerifyCredentials_Success(t *testing.T) {
	hasher := NewPasswordHasher(4)
	hash, err := hasher.Hash("correct-password")
	if err != nil {
		t.Fatalf("failed to hash: %v", err)
	}

	repo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{
				ID:           "user-1",
				Name:         "田中太郎",
				Email:        email,
				PasswordHash: hash,
			}, nil
		},
	}
	svc := NewService(repo, hasher, &mockTokenIssuer{})

	identity, err := svc.VerifyCredentials(context.Background(), "tanaka@example.com", "correct-password")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if identity == nil {
		t.Fatal("expected identity for valid credentials")
	}
	if identity.ID != "user-1" {
		t.Errorf("ID = %q, want %q", identity.ID, "user-1")
	}
}

func TestVerifyCredentials_WrongPassword(t *testing.T) {
	hasher := NewPasswordHasher(4)
	hash, _ := hasher.Hash("correct-password")

	repo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: email, PasswordHash: hash}, nil
		},
	}
	svc := NewService(repo, hasher, &mockTokenIssuer{})

	identity, err := svc.VerifyCredentials(context.Background(), "tanaka@example.com", "wrong-password")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if identity != nil {
		t.Error("expected nil identity for wrong password")
	}
}

func TestVerifyCredentials_UnknownUser_IndistinguishableFromWrongPassword(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockTokenIssuer{})

	identity, err := svc.VerifyCredentials(context.Background(), "unknown@example.com", "any-password")
	// ユーザー不存在でもエラーにせず、パスワード不一致と同じ(nil, nil)を返すこと
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if identity != nil {
		t.Error("expected nil identity for unknown user")
	}
}

func TestVerifyCredentials_EmptyInput(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockTokenIssuer{})

	for _, tc := range []struct{ email, password string }{
		{"", "password123"},
		{"test@example.com", ""},
		{"", ""},
	} {
		identity, err := svc.VerifyCredentials(context.Background(), tc.email, tc.password)
		if err != nil {
			t.Errorf("expected no error for empty input, got %v", err)
		}
		if identity != nil {
			t.Error("expected nil identity for empty input")
		}
	}
}

func TestVerifyCredentials_EmailCaseInsensitive(t *testing.T) {
	hasher := NewPasswordHasher(4)
	hash, _ := hasher.Hash("password123")

	var queriedEmail string
	repo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			queriedEmail = email
			return &model.User{ID: "user-1", Email: email, PasswordHash: hash}, nil
		},
	}
	svc := NewService(repo, hasher, &mockTokenIssuer{})

	identity, err := svc.VerifyCredentials(context.Background(), "Tanaka@Example.COM", "password123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if identity == nil {
		t.Fatal("expected identity")
	}
	if queriedEmail != "tanaka@example.com" {
		t.Errorf("queried email = %q, want lowercase", queriedEmail)
	}
}

// --- Loginのテスト ---

func TestLogin_Success_IssuesToken(t *testing.T) {
	hasher := NewPasswordHasher(4)
	hash, _ := hasher.Hash("password123")

	repo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Name: "田中太郎", Email: email, PasswordHash: hash}, nil
		},
	}
	var issuedFor string
	tokens := &mockTokenIssuer{
		issueFn: func(userID string) (string, error) {
			issuedFor = userID
			return "signed-token", nil
		},
	}
	svc := NewService(repo, hasher, tokens)

	token, identity, err := svc.Login(context.Background(), "tanaka@example.com", "password123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if token != "signed-token" {
		t.Errorf("token = %q, want %q", token, "signed-token")
	}
	if identity == nil || identity.ID != "user-1" {
		t.Errorf("identity = %+v, want user-1", identity)
	}
	if issuedFor != "user-1" {
		t.Errorf("token issued for %q, want %q", issuedFor, "user-1")
	}
}

func TestLogin_Failure_DoesNotIssueToken(t *testing.T) {
	issued := false
	tokens := &mockTokenIssuer{
		issueFn: func(userID string) (string, error) {
			issued = true
			return "token", nil
		},
	}
	svc := newTestService(&mockUserRepo{}, tokens)

	token, identity, err := svc.Login(context.Background(), "unknown@example.com", "password123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if token != "" || identity != nil {
		t.Error("expected empty result for failed login")
	}
	if issued {
		t.Error("token must not be issued on failed login")
	}
}

// --- CurrentUserのテスト ---

func TestCurrentUser_Success(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Name: "田中太郎"}, nil
		},
	}
	svc := newTestService(repo, &mockTokenIssuer{})

	user, err := svc.CurrentUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("ID = %q, want %q", user.ID, "user-1")
	}
}

func TestCurrentUser_NotFound(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockTokenIssuer{})

	_, err := svc.CurrentUser(context.Background(), "missing-user")
	if err == nil {
		t.Fatal("expected error for missing user")
	}
}

func TestCurrentUser_EmptyID(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockTokenIssuer{})

	_, err := svc.CurrentUser(context.Background(), "")
	if err == nil {
		t.Fatal("expected error for empty user ID")
	}
}

// --- ヘルパー ---

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeValidation {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeValidation)
	}
}

func assertConflictError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected conflict error, got nil")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeEmailConflict {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeEmailConflict)
	}
}
