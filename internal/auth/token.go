package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// トークン関連エラー
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// TokenIssuer はセッショントークンの発行と解決のインターフェース。
type TokenIssuer interface {
	// Issue は指定ユーザーIDを埋め込んだセッショントークンを発行する。
	Issue(userID string) (string, error)
	// Resolve はトークンを検証し、埋め込まれたユーザーIDを取り出す。
	Resolve(tokenString string) (string, error)
}

// JWTIssuer はHS256署名のステートレスJWTによるTokenIssuer実装。
// トークン自体が真実の源であり、サーバー側セッションストアを持たない。
// そのため自然期限前の失効はサポートしない（設計上の制約）。
type JWTIssuer struct {
	secret []byte
	maxAge time.Duration
}

// NewJWTIssuer はJWTIssuerを生成する。
// secretは環境変数由来の署名鍵、maxAgeはトークンの有効期間を指定する。
func NewJWTIssuer(secret []byte, maxAge time.Duration) *JWTIssuer {
	return &JWTIssuer{secret: secret, maxAge: maxAge}
}

// Issue はユーザーIDをsubクレームに埋め込んだJWTを発行する。
func (i *JWTIssuer) Issue(userID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(i.maxAge).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Resolve はトークンを検証し、subクレームからユーザーIDを取り出す。
// 有効期間内であれば発行時のユーザーIDがそのまま返る。
func (i *JWTIssuer) Resolve(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// 署名方式がHS256であることを検証
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return sub, nil
}

// compile-time interface check
var _ TokenIssuer = (*JWTIssuer)(nil)
