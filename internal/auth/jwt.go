package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const TokenExp = time.Hour * 24

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	Login string `json:"login"`
	Admin bool   `json:"admin"`
	jwt.RegisteredClaims
}

func GenerateToken(login string, admin bool, secret string) (string, error) {
	claims := &Claims{
		Login: login,
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TokenExp)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
