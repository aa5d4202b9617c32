package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/leadhub/internal/models"
	"bazaar/leadhub/internal/utils"
)

func TestGenerateAndValidateJWT(t *testing.T) {
	id := utils.NewSixID()
	token, err := GenerateJWT(id, models.RoleVendor, "secret", time.Minute)
	require.NoError(t, err)

	claims, err := ValidateJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, models.RoleVendor, claims.Role)
	parsed, err := claims.ID()
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestValidateJWT_Rejects(t *testing.T) {
	id := utils.NewSixID()
	token, err := GenerateJWT(id, models.RoleUser, "secret", time.Minute)
	require.NoError(t, err)
	_, err = ValidateJWT(token, "other-secret")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := GenerateJWT(id, models.RoleUser, "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateJWT(expired, "secret")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ValidateJWT("not-a-token", "secret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateJWT_AccountServicePayload(t *testing.T) {
	id := utils.NewSixID()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":   id.String(),
		"role": "individual",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	claims, err := ValidateJWT(signed, "secret")
	require.NoError(t, err)
	assert.Equal(t, models.RoleIndividual, claims.Role)
	assert.Equal(t, id.String(), claims.UserID)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": id.String()}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = ValidateJWT(noExpiry, "secret")
	assert.ErrorIs(t, err, ErrInvalidToken)

	noID, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = ValidateJWT(noID, "secret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
