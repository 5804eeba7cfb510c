// token.go — токены присоединения remote.
//
// Host сам выпускает и сам проверяет токены (HS256, общий секрет),
// внешнего издателя нет. Токен встраивается в ссылку присоединения и
// предъявляется при апгрейде WebSocket-соединения.
package peer

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenIssuer  = "fotosort"
	tokenSubject = "peer-join"
)

// TokenIssuer выпускает и проверяет токены присоединения.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer создаёт издателя с указанным секретом и сроком
// жизни токена.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Issue выпускает новый токен присоединения.
func (t *TokenIssuer) Issue() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   tokenSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		ID:        uuid.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return signed, nil
}

// Verify проверяет подпись, срок жизни и предмет токена.
func (t *TokenIssuer) Verify(tokenString string) error {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithSubject(tokenSubject),
	)
	if err != nil {
		return fmt.Errorf("невалидный токен присоединения: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("невалидный токен присоединения")
	}
	return nil
}
