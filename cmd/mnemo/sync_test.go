package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemoapp/mnemo/internal/storage"
	"github.com/mnemoapp/mnemo/internal/testutil"
)

func TestNewSyncCommand(t *testing.T) {
	cmd := newSyncCommand()

	assert.Equal(t, "sync", cmd.Use)
	assert.Equal(t, "Drain the offline queue against the backend once", cmd.Short)
	assert.NotNil(t, cmd.RunE)
}

func TestNewSyncCommand_RunE_InvalidConfig(t *testing.T) {
	cfgPath := setupBrokenConfigFile(t)
	setConfigFile(t, cfgPath)

	cmd := newSyncCommand()
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "configuration")
}

func TestNewSyncCommand_RunE_EmptyQueue(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := testutil.SetupTestConfig(t, tmpDir)
	setConfigFile(t, cfgPath)

	cmd := newSyncCommand()
	cmd.SetArgs([]string{})
	assert.NoError(t, cmd.Execute())
}

func TestNewSyncCommand_RunE_BackendUnreachable(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := testutil.SetupTestConfig(t, tmpDir)
	setConfigFile(t, cfgPath)
	// Port 1 is never listening, so the drain fails fast with a network
	// error instead of waiting out a timeout.
	t.Setenv("MNEMO_API_BASE_URL", "http://127.0.0.1:1")

	opID := seedQueueSnapshot(t, tmpDir)

	cmd := newSyncCommand()
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	// The failed attempt must survive in the persisted queue with its
	// retry accounting updated.
	db, err := storage.Open(filepath.Join(tmpDir, "data", "mnemo.db"))
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	snap, err := storage.NewStore(db).LoadQueueSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Operations, 1)
	assert.Equal(t, opID, snap.Operations[0].ID)
	assert.Equal(t, 1, snap.Operations[0].RetryCount)
	assert.NotEmpty(t, snap.Operations[0].LastError)
}
