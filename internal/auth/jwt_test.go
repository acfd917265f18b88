package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestGenerateAndParse(t *testing.T) {
	m := NewManager(testSecret, "parley", time.Hour)
	userID := uuid.New()

	token, exp, err := m.Generate(userID, "ada@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "parley", claims.Issuer)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	m := NewManager(testSecret, "parley", -time.Minute)

	token, _, err := m.Generate(uuid.New(), "ada@example.com")
	require.NoError(t, err)

	_, err = m.Parse(token)
	assert.Error(t, err)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	issuer := NewManager(testSecret, "parley", time.Hour)
	verifier := NewManager("another-secret-another-secret-00", "parley", time.Hour)

	token, _, err := issuer.Generate(uuid.New(), "ada@example.com")
	require.NoError(t, err)

	_, err = verifier.Parse(token)
	assert.Error(t, err)
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	issuer := NewManager(testSecret, "someone-else", time.Hour)
	verifier := NewManager(testSecret, "parley", time.Hour)

	token, _, err := issuer.Generate(uuid.New(), "ada@example.com")
	require.NoError(t, err)

	_, err = verifier.Parse(token)
	assert.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	m := NewManager(testSecret, "parley", time.Hour)

	_, err := m.Parse("not-a-token")
	assert.Error(t, err)
}
