package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	m := NewManager(TokenConfig{Secret: []byte("s3cret")})
	userID := uuid.New()

	token, err := m.Generate(userID, "ada")
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "ada", claims.DisplayName)
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	token, err := NewManager(TokenConfig{Secret: []byte("one")}).Generate(uuid.New(), "ada")
	require.NoError(t, err)

	_, err = NewManager(TokenConfig{Secret: []byte("two")}).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	token, err := NewManager(TokenConfig{Secret: []byte("s"), Issuer: "elsewhere"}).Generate(uuid.New(), "ada")
	require.NoError(t, err)

	_, err = NewManager(TokenConfig{Secret: []byte("s")}).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateExpired(t *testing.T) {
	m := NewManager(TokenConfig{Secret: []byte("s"), TTL: -time.Minute})
	token, err := m.Generate(uuid.New(), "ada")
	require.NoError(t, err)

	_, err = m.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateGarbage(t *testing.T) {
	_, err := NewManager(TokenConfig{Secret: []byte("s")}).Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
