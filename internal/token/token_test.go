package token_test

import (
	"testing"
	"time"

	"github.com/connectly/connectly-client/internal/token"
	"github.com/connectly/connectly-client/internal/token/tokentest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	raw := tokentest.Mint(t, 13, exp)

	claims, err := token.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "13", claims.SubjectID)
	assert.True(t, exp.Equal(claims.ExpiresAt))
}

func TestParseMalformed(t *testing.T) {
	_, err := token.Parse("not-a-token")
	require.ErrorIs(t, err, token.ErrMalformed)
}

func TestExpiresAtMillis(t *testing.T) {
	exp := time.Unix(1_900_000_000, 0)
	ms, ok := token.ExpiresAtMillis(tokentest.Mint(t, 1, exp))
	require.True(t, ok)
	assert.Equal(t, int64(1_900_000_000_000), ms)

	_, ok = token.ExpiresAtMillis("garbage")
	assert.False(t, ok)
}
