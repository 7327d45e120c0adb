package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemoapp/mnemo/internal/queue"
	"github.com/mnemoapp/mnemo/internal/storage"
	"github.com/mnemoapp/mnemo/internal/testutil"
)

// seedQueueSnapshot persists a one-operation queue into the test database and
// returns the operation id.
func seedQueueSnapshot(t *testing.T, tmpDir string) string {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(filepath.Join(tmpDir, "data", "mnemo.db"))
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	store := storage.NewStore(db)
	require.NoError(t, store.Init(ctx))

	q := queue.New(queue.DefaultConfig())
	opID := q.Enqueue(queue.Operation{
		Payload: queue.AnswerPayload{
			QuestionID: 101,
			IsCorrect:  true,
			AnsweredAt: time.Now(),
			UpdatedAt:  time.Now(),
		},
		Priority: queue.PriorityHigh,
	})
	snap, err := q.Snapshot()
	require.NoError(t, err)
	require.NoError(t, store.SaveQueueSnapshot(ctx, snap))
	return opID
}

func TestNewQueueCommand(t *testing.T) {
	cmd := newQueueCommand()

	assert.Equal(t, "queue", cmd.Use)
	assert.True(t, cmd.HasSubCommands())
}

func TestNewQueueHealthCommand(t *testing.T) {
	cmd := newQueueHealthCommand()

	assert.Equal(t, "health", cmd.Use)
	assert.NotNil(t, cmd.RunE)

	flag := cmd.Flags().Lookup("remediate")
	assert.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestNewQueueClearOldCommand(t *testing.T) {
	cmd := newQueueClearOldCommand()

	assert.Equal(t, "clear-old", cmd.Use)
	assert.NotNil(t, cmd.RunE)

	flag := cmd.Flags().Lookup("age")
	assert.NotNil(t, flag)
	assert.Equal(t, "24h0m0s", flag.DefValue)
}

func TestNewQueueListCommand_RunE_InvalidConfig(t *testing.T) {
	cfgPath := setupBrokenConfigFile(t)
	setConfigFile(t, cfgPath)

	cmd := newQueueListCommand()
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "configuration")
}

func TestNewQueueListCommand_RunE(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := testutil.SetupTestConfig(t, tmpDir)
	setConfigFile(t, cfgPath)
	seedQueueSnapshot(t, tmpDir)

	cmd := newQueueListCommand()
	cmd.SetArgs([]string{})
	assert.NoError(t, cmd.Execute())
}

func TestNewQueueHealthCommand_RunE(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := testutil.SetupTestConfig(t, tmpDir)
	setConfigFile(t, cfgPath)

	cmd := newQueueHealthCommand()
	cmd.SetArgs([]string{})
	assert.NoError(t, cmd.Execute())
}

func TestNewQueueRetryCommand_RunE(t *testing.T) {
	tests := []struct {
		name    string
		seed    bool
		useSeed bool
		wantErr string
	}{
		{
			name:    "reschedules a pending operation",
			seed:    true,
			useSeed: true,
		},
		{
			name:    "unknown operation",
			wantErr: "is not in the queue",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			cfgPath := testutil.SetupTestConfig(t, tmpDir)
			setConfigFile(t, cfgPath)

			opID := "00000000-0000-0000-0000-000000000000"
			if tt.seed {
				seeded := seedQueueSnapshot(t, tmpDir)
				if tt.useSeed {
					opID = seeded
				}
			}

			cmd := newQueueRetryCommand()
			cmd.SetArgs([]string{opID})
			err := cmd.Execute()
			if tt.wantErr != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewQueueCancelCommand_RunE(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := testutil.SetupTestConfig(t, tmpDir)
	setConfigFile(t, cfgPath)
	opID := seedQueueSnapshot(t, tmpDir)

	cmd := newQueueCancelCommand()
	cmd.SetArgs([]string{opID})
	require.NoError(t, cmd.Execute())

	// The cancelled operation must be gone from the persisted state.
	db, err := storage.Open(filepath.Join(tmpDir, "data", "mnemo.db"))
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	snap, err := storage.NewStore(db).LoadQueueSnapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Operations)
}

func TestNewQueueClearFailedCommand_RunE(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := testutil.SetupTestConfig(t, tmpDir)
	setConfigFile(t, cfgPath)

	cmd := newQueueClearFailedCommand()
	cmd.SetArgs([]string{})
	assert.NoError(t, cmd.Execute())
}

func TestNewQueueExportImportCommands_RunE(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := testutil.SetupTestConfig(t, tmpDir)
	setConfigFile(t, cfgPath)
	opID := seedQueueSnapshot(t, tmpDir)

	exportPath := filepath.Join(tmpDir, "queue.json")
	exportCmd := newQueueExportCommand()
	exportCmd.SetArgs([]string{exportPath})
	require.NoError(t, exportCmd.Execute())

	raw, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	var snap queue.QueueSnapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	require.Len(t, snap.Operations, 1)
	assert.Equal(t, opID, snap.Operations[0].ID)

	// Importing the export into the same queue collides on the id.
	importCmd := newQueueImportCommand()
	importCmd.SetArgs([]string{exportPath})
	err = importCmd.Execute()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id")

	// After cancelling the original, the import goes through.
	cancelCmd := newQueueCancelCommand()
	cancelCmd.SetArgs([]string{opID})
	require.NoError(t, cancelCmd.Execute())

	importCmd = newQueueImportCommand()
	importCmd.SetArgs([]string{exportPath})
	require.NoError(t, importCmd.Execute())
}
