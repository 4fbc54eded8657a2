package bots

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBot(t *testing.T) {
	t.Run("marker substring", func(t *testing.T) {
		c := NewClassifier("", "")
		assert.True(t, c.IsBot("dependabot[bot]"))
		assert.False(t, c.IsBot("humbedooh"))
	})

	t.Run("custom marker", func(t *testing.T) {
		c := NewClassifier("-robot", "")
		assert.True(t, c.IsBot("deploy-robot"))
		assert.False(t, c.IsBot("dependabot[bot]"))
	})

	t.Run("known-bots list", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bots.txt")
		require.NoError(t, os.WriteFile(path, []byte("# infra bots\n\nasfgit\njenkins\n"), 0644))

		c := NewClassifier("", path)
		assert.True(t, c.IsBot("asfgit"))
		assert.True(t, c.IsBot("jenkins"))
		assert.False(t, c.IsBot("# infra bots"))
		assert.False(t, c.IsBot("alice"))
	})

	t.Run("missing list file is an empty list", func(t *testing.T) {
		c := NewClassifier("", filepath.Join(t.TempDir(), "nope.txt"))
		assert.False(t, c.IsBot("asfgit"))
		assert.True(t, c.IsBot("asfgit[bot]"))
	})

	t.Run("list edits apply without restart", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bots.txt")
		require.NoError(t, os.WriteFile(path, []byte("asfgit\n"), 0644))

		c := NewClassifier("", path)
		assert.False(t, c.IsBot("newbot"))

		require.NoError(t, os.WriteFile(path, []byte("asfgit\nnewbot\n"), 0644))
		assert.True(t, c.IsBot("newbot"))
	})

	t.Run("empty actor is never a bot", func(t *testing.T) {
		c := NewClassifier("", "")
		assert.False(t, c.IsBot(""))
	})
}

func TestStrip(t *testing.T) {
	c := NewClassifier("", "")
	assert.Equal(t, "dependabot", c.Strip("dependabot[bot]"))
	assert.Equal(t, "alice", c.Strip("alice"))
}
