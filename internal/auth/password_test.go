package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adminory/adminory/internal/auth"
)

func TestPasswordHasherArgon2(t *testing.T) {
	h := auth.NewPasswordHasher(cheapArgon2)
	encoded, err := h.Hash("s3cret-pass")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=1024,t=1,p=1$"))

	ok, err := h.Verify("s3cret-pass", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("other", encoded)
	require.NoError(t, err)
	assert.False(t, ok)

	again, err := h.Hash("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, encoded, again, "salt is random")
}

func TestPasswordHasherMalformed(t *testing.T) {
	h := auth.NewPasswordHasher(cheapArgon2)
	_, err := h.Verify("x", "$argon2id$broken")
	require.Error(t, err)
	_, err = h.Verify("x", "plaintext")
	require.Error(t, err)
}
