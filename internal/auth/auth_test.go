package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubedrop/backend/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	token, err := svc.GenerateToken("alice")
	require.NoError(t, err)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.PlayerID)
}

func TestVerifyRejectsBadToken(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	_, err := svc.Verify("not-a-token")
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewService("secret-a", time.Hour).GenerateToken("alice")
	require.NoError(t, err)

	_, err = NewService("secret-b", time.Hour).Verify(token)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc := NewService("test-secret", -time.Minute)

	token, err := svc.GenerateToken("alice")
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	assert.True(t, CheckPassword("hunter2", hash))
	assert.False(t, CheckPassword("hunter3", hash))
}
