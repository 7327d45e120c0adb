// Package testutil provides shared test helpers for creating config files and deck fixtures.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mnemoapp/mnemo/internal/deck"
)

// SetupTestConfig creates a minimal config file and all required directories for testing.
// Returns the path to the generated config file.
func SetupTestConfig(t *testing.T, tmpDir string) string {
	t.Helper()

	dirs := []string{"data", "reports", "decks"}
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, d), 0755))
	}

	// The api section stays last so SetupTestConfigWithToken can extend it.
	configContent := fmt.Sprintf(`storage:
  path: %s
  reports_directory: %s
server:
  addr: 127.0.0.1:0
api:
  base_url: http://localhost:8080
`,
		filepath.Join(tmpDir, "data", "mnemo.db"),
		filepath.Join(tmpDir, "reports"),
	)

	cfgPath := filepath.Join(tmpDir, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(configContent), 0644))
	return cfgPath
}

// SetupTestConfigWithToken creates a config file with a fake API token for tests
// that exercise authenticated sync paths.
func SetupTestConfigWithToken(t *testing.T, tmpDir string) string {
	t.Helper()
	cfgPath := SetupTestConfig(t, tmpDir)

	content, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	content = append(content, []byte("  token: fake-token-for-testing\n")...)
	require.NoError(t, os.WriteFile(cfgPath, content, 0644))
	return cfgPath
}

// DeckOption configures optional fields when creating a deck file fixture.
type DeckOption func(*deckConfig)

type deckConfig struct {
	name  string
	items []deck.Item
}

// WithDeckName sets the name written into the deck fixture.
func WithDeckName(name string) DeckOption {
	return func(cfg *deckConfig) {
		cfg.name = name
	}
}

// WithDeckItems replaces the default items written into the deck fixture.
func WithDeckItems(items ...deck.Item) DeckOption {
	return func(cfg *deckConfig) {
		cfg.items = items
	}
}

// CreateDeckFile creates a deck YAML file under dir and returns its path.
// By default the deck holds two items whose ids are backend question ids.
func CreateDeckFile(t *testing.T, dir, filename string, opts ...DeckOption) string {
	t.Helper()

	cfg := deckConfig{
		name: "Test Deck",
		items: []deck.Item{
			{ID: "101", Front: "What is the capital of France?", Back: "Paris", Topic: "geography"},
			{ID: "102", Front: "What is 6 times 7?", Back: "42", Topic: "arithmetic"},
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	out, err := yaml.Marshal(deck.Deck{Name: cfg.name, Items: cfg.items})
	require.NoError(t, err)

	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, out, 0644))
	return path
}
