package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfigTree(t *testing.T) {
	tree := defaultConfigTree()

	scanium, ok := tree["scanium"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "https://api.scanium.io/v1", scanium["base_url"])
	assert.Equal(t, false, scanium["mock"])

	poll, ok := tree["poll"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 2, poll["interval_secs"])
	assert.Equal(t, 30, poll["max_attempts"])

	// The tree must round-trip through YAML.
	out, err := yaml.Marshal(tree)
	require.NoError(t, err)
	assert.Contains(t, string(out), "interval_secs: 2")
}
