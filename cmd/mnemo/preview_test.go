package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemoapp/mnemo/internal/testutil"
)

func TestNewPreviewCommand(t *testing.T) {
	cmd := newPreviewCommand()

	assert.Equal(t, "preview <deck file> <card id>", cmd.Use)
	assert.NotNil(t, cmd.RunE)
}

func TestNewPreviewCommand_RunE_InvalidConfig(t *testing.T) {
	cfgPath := setupBrokenConfigFile(t)
	setConfigFile(t, cfgPath)

	cmd := newPreviewCommand()
	cmd.SetArgs([]string{"deck.yml", "101"})
	err := cmd.Execute()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "configuration")
}

func TestNewPreviewCommand_RunE_UnknownCard(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := testutil.SetupTestConfig(t, tmpDir)
	setConfigFile(t, cfgPath)
	deckPath := testutil.CreateDeckFile(t, filepath.Join(tmpDir, "decks"), "deck.yml")

	cmd := newPreviewCommand()
	cmd.SetArgs([]string{deckPath, "999"})
	err := cmd.Execute()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not in deck")
}

func TestNewPreviewCommand_RunE_WritesPreview(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := testutil.SetupTestConfig(t, tmpDir)
	setConfigFile(t, cfgPath)
	deckPath := testutil.CreateDeckFile(t, filepath.Join(tmpDir, "decks"), "deck.yml")

	var output bytes.Buffer
	cmd := newPreviewCommand()
	cmd.SetOut(&output)
	cmd.SetArgs([]string{deckPath, "101"})
	require.NoError(t, cmd.Execute())

	got := output.String()
	assert.Contains(t, got, "What is the capital of France?")
	assert.Contains(t, got, "again")
	assert.Contains(t, got, "good")
	assert.Contains(t, got, "easy")
}
