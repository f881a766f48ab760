package password

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	// Keep tests fast
	Cost = bcrypt.MinCost
}

func TestHashAndVerify(t *testing.T) {
	h, err := Hash("hunter2")
	require.NoError(t, err)

	assert.NotEqual(t, "hunter2", h, "plaintext must never be stored")
	assert.True(t, Verify(h, "hunter2"))
	assert.False(t, Verify(h, "hunter3"))
	assert.False(t, IsLegacy(h))

	again, err := Hash("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, h, again, "hashes must be salted")
}

func TestHashEmpty(t *testing.T) {
	_, err := Hash("")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestLegacySHA256(t *testing.T) {
	sum := sha256.Sum256([]byte("1234"))
	legacy := hex.EncodeToString(sum[:])

	assert.True(t, Verify(legacy, "1234"))
	assert.False(t, Verify(legacy, "12345"))
	assert.True(t, IsLegacy(legacy))
}

func TestVerifyGarbage(t *testing.T) {
	assert.False(t, Verify("not-a-hash", "anything"))
	assert.False(t, IsLegacy("not-a-hash"))
}
