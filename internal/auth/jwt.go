// Package auth выдаёт и проверяет JWT токены административного API.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "plot-service"

var (
	ErrWeakSecret   = errors.New("auth: секрет должен быть не короче 32 байт")
	ErrInvalidToken = errors.New("auth: недействительный токен")
)

// Claims represents JWT claims
type Claims struct {
	PlayerID uuid.UUID `json:"player_id"`
	IsAdmin  bool      `json:"is_admin"`
	jwt.RegisteredClaims
}

// Issuer подписывает и проверяет токены секретом HS256.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer принимает секрет в base64. ttl <= 0 означает 24 часа.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	decoded, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("auth: секрет не в base64: %w", err)
	}
	if len(decoded) < 32 {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: decoded, ttl: ttl}, nil
}

// Issue creates a token for the given player
func (i *Issuer) Issue(player uuid.UUID, admin bool) (string, error) {
	now := time.Now()
	claims := &Claims{
		PlayerID: player,
		IsAdmin:  admin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   player.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Validate checks token validity and returns its claims
func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, jwt.WithIssuer(issuer))

	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// GenerateSecureSecret generates a new secure secret key
func GenerateSecureSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(b)
}
