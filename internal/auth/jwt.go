package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"bazaar/leadhub/internal/models"
	"bazaar/leadhub/internal/utils"
)

var ErrInvalidToken = errors.New("invalid access token")

// Claims is the access token payload issued by the account service: {id, role}.
type Claims struct {
	UserID string          `json:"id"`
	Role   models.UserRole `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) ID() (utils.SixID, error) {
	return utils.ParseSixID(c.UserID)
}

// GenerateJWT signs an access token. Production tokens come from the account
// service; this is for tooling and tests sharing JWT_SECRET.
func GenerateJWT(userID utils.SixID, role models.UserRole, secretKey string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID.String(),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// ValidateJWT checks the HMAC signature and expiry and returns the claims.
// Every failure wraps ErrInvalidToken.
func ValidateJWT(tokenString string, secretKey string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return []byte(secretKey), nil },
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing id claim", ErrInvalidToken)
	}
	return claims, nil
}
