package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptState_PassthroughWithoutKey(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "")

	content := []byte(`{"version":1}`)
	out, err := EncryptState(content)
	require.NoError(t, err)
	assert.Equal(t, content, out)
	assert.False(t, IsEncrypted(out))
}

func TestEncryptState_RoundTrip(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "correct horse battery staple")

	content := []byte(`{"version":1,"serial":3}`)
	encrypted, err := EncryptState(content)
	require.NoError(t, err)
	assert.True(t, IsEncrypted(encrypted))
	assert.NotContains(t, string(encrypted), "serial")

	decrypted, err := DecryptState(encrypted)
	require.NoError(t, err)
	assert.Equal(t, content, decrypted)
}

func TestDecryptState_MissingKey(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "some key")
	encrypted, err := EncryptState([]byte(`{}`))
	require.NoError(t, err)

	t.Setenv(EncryptionKeyEnvVar, "")
	_, err = DecryptState(encrypted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), EncryptionKeyEnvVar)
}

func TestDecryptState_WrongKey(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "key one")
	encrypted, err := EncryptState([]byte(`{}`))
	require.NoError(t, err)

	t.Setenv(EncryptionKeyEnvVar, "key two")
	_, err = DecryptState(encrypted)
	require.Error(t, err)
}

func TestManager_EncryptedRoundTrip(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "state encryption key")

	statePath := filepath.Join(t.TempDir(), "state.json")
	mgr := NewManager(statePath)
	ctx := context.Background()

	s := NewState()
	s.Outputs = map[string]any{"password": "hunter2"}
	require.NoError(t, mgr.Write(ctx, s))

	// The file on disk never contains the plaintext.
	raw, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.True(t, IsEncrypted(raw))
	assert.NotContains(t, string(raw), "hunter2")

	got, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got.Outputs["password"])
}
