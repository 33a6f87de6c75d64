package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims 登录用户携带 UserID，访客携带 GuestID
type Claims struct {
	UserID  int64  `json:"user_id"`
	GuestID string `json:"guest_id,omitempty"`
	jwt.RegisteredClaims
}

// IsGuest 是否访客令牌
func (c *Claims) IsGuest() bool {
	return c.GuestID != ""
}

func GenerateToken(userID int64, secret string, expireHours int) (string, error) {
	return sign(Claims{UserID: userID}, secret, expireHours)
}

// GenerateGuestToken 为访客会话签发令牌
func GenerateGuestToken(guestID, secret string, expireHours int) (string, error) {
	return sign(Claims{GuestID: guestID}, secret, expireHours)
}

func sign(claims Claims, secret string, expireHours int) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expireHours) * time.Hour)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
