package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/askdb/askdb/internal/errors"
)

func testManager() *Manager {
	return NewManager(Config{
		JWTSecret: "test-secret",
		JWTExpiry: time.Hour,
	})
}

func TestCreateUserAndAuthenticate(t *testing.T) {
	m := testManager()

	user, err := m.CreateUser("alice", "s3cret", []string{"admin"})
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.NotEqual(t, "s3cret", user.PasswordHash)

	token, authed, err := m.Authenticate("alice", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, user.ID, authed.ID)

	_, _, err = m.Authenticate("alice", "wrong")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidCredentials))

	_, _, err = m.Authenticate("nobody", "s3cret")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidCredentials))
}

func TestCreateUserDuplicate(t *testing.T) {
	m := testManager()

	_, err := m.CreateUser("alice", "pw", nil)
	require.NoError(t, err)

	_, err = m.CreateUser("alice", "pw", nil)
	assert.Error(t, err)
}

func TestJWTRoundTrip(t *testing.T) {
	m := testManager()

	user, err := m.CreateUser("bob", "pw", []string{"viewer"})
	require.NoError(t, err)

	token, err := m.CreateJWTToken(user)
	require.NoError(t, err)

	claims, err := m.ValidateJWTToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "bob", claims.Username)
	assert.Equal(t, []string{"viewer"}, claims.Roles)
	assert.Equal(t, "askdb", claims.Issuer)
}

func TestJWTRejectedForInactiveUser(t *testing.T) {
	m := testManager()

	user, err := m.CreateUser("bob", "pw", nil)
	require.NoError(t, err)

	token, err := m.CreateJWTToken(user)
	require.NoError(t, err)

	user.Active = false
	_, err = m.ValidateJWTToken(token)
	assert.Error(t, err)
}

func TestJWTWrongSecret(t *testing.T) {
	m := testManager()
	other := NewManager(Config{JWTSecret: "different-secret", JWTExpiry: time.Hour})

	user, err := m.CreateUser("bob", "pw", nil)
	require.NoError(t, err)

	token, err := m.CreateJWTToken(user)
	require.NoError(t, err)

	_, err = other.ValidateJWTToken(token)
	assert.Error(t, err)
}

func TestAPIKeyLifecycle(t *testing.T) {
	m := testManager()

	user, err := m.CreateUser("carol", "pw", nil)
	require.NoError(t, err)

	apiKey, err := m.CreateAPIKey(user.ID, "ci", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, apiKey.Key, "adb_")
	assert.NotEqual(t, apiKey.Key, apiKey.HashedKey)

	validated, err := m.ValidateAPIKey(apiKey.Key)
	require.NoError(t, err)
	assert.Equal(t, user.ID, validated.ID)

	_, err = m.ValidateAPIKey("adb_bogus")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidCredentials))

	require.NoError(t, m.RevokeAPIKey(apiKey.ID))
	_, err = m.ValidateAPIKey(apiKey.Key)
	assert.Error(t, err)
}

func TestAPIKeyExpiry(t *testing.T) {
	m := testManager()

	user, err := m.CreateUser("dave", "pw", nil)
	require.NoError(t, err)

	apiKey, err := m.CreateAPIKey(user.ID, "short", -time.Minute)
	require.NoError(t, err)

	_, err = m.ValidateAPIKey(apiKey.Key)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidCredentials))
}

func TestCreateAPIKeyUnknownUser(t *testing.T) {
	m := testManager()
	_, err := m.CreateAPIKey("missing-user", "ci", time.Hour)
	assert.Error(t, err)
}
