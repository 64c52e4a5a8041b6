package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackdock-io/stackdock/internal/ir"
)

func TestManager_ReadMissingFile(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "state.json"))

	s, err := mgr.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Version)
	assert.Equal(t, 0, s.Serial)
	assert.NotEmpty(t, s.Lineage)
	assert.Empty(t, s.Resources)
}

func TestManager_RoundTrip(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), ".stackdock", "state.json")
	mgr := NewManager(statePath)
	ctx := context.Background()

	s := NewState()
	s.Serial = 7
	s.Resources = []*ir.ResourceState{
		{
			Type:         "docker_container",
			Name:         "web",
			Provider:     "docker",
			Inputs:       map[string]any{"image": "nginx:1.27"},
			Outputs:      map[string]any{"id": "abc123"},
			Dependencies: []string{"docker_network.app"},
		},
	}
	s.Outputs = map[string]any{"url": "http://localhost"}

	require.NoError(t, mgr.Write(ctx, s))

	got, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.Lineage, got.Lineage)
	assert.Equal(t, 7, got.Serial)
	require.Len(t, got.Resources, 1)
	assert.Equal(t, "docker_container.web", got.Resources[0].Address())
	assert.Equal(t, "abc123", got.Resources[0].Outputs["id"])
	assert.Equal(t, []string{"docker_network.app"}, got.Resources[0].Dependencies)
	assert.Equal(t, "http://localhost", got.Outputs["url"])
}

func TestManager_WriteIsAtomic(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	mgr := NewManager(statePath)
	ctx := context.Background()

	require.NoError(t, mgr.Write(ctx, NewState()))

	// No leftover temp file after a successful write.
	_, err := os.Stat(statePath + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestManager_Lock(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	mgr := NewManager(statePath)

	require.NoError(t, mgr.Lock())

	// A second lock attempt fails with a LockError naming the holder.
	err := mgr.Lock()
	require.Error(t, err)

	var le *LockError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.Holder, "pid=")

	require.NoError(t, mgr.Unlock())
	require.NoError(t, mgr.Lock())
	require.NoError(t, mgr.Unlock())
}

func TestManager_UnlockWithoutLock(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "state.json"))
	assert.NoError(t, mgr.Unlock())
}
