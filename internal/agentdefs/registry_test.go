package agentdefs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltins(t *testing.T) {
	t.Run("should provide the built-in agent types", func(t *testing.T) {
		registry := NewRegistry("", zerolog.Nop())

		for _, name := range []string{"explore", "plan", "general"} {
			spec, ok := registry.Lookup(name)
			require.True(t, ok, name)
			assert.Equal(t, name, spec.Name)
			assert.NotEmpty(t, spec.Instructions)
		}
	})

	t.Run("should restrict explore to read-only tools", func(t *testing.T) {
		registry := NewRegistry("", zerolog.Nop())
		spec, ok := registry.Lookup("explore")
		require.True(t, ok)
		assert.ElementsMatch(t, []string{"read_file", "glob", "grep"}, spec.AllowTools)
	})

	t.Run("should mark plan as a planning agent", func(t *testing.T) {
		registry := NewRegistry("", zerolog.Nop())
		spec, ok := registry.Lookup("plan")
		require.True(t, ok)
		assert.True(t, spec.Plan)
	})

	t.Run("should not let plan delegate or run commands", func(t *testing.T) {
		registry := NewRegistry("", zerolog.Nop())
		spec, ok := registry.Lookup("plan")
		require.True(t, ok)
		assert.NotContains(t, spec.AllowTools, "spawn_agent")
		assert.NotContains(t, spec.AllowTools, "exec")
		assert.Contains(t, spec.AllowTools, "write_file")
	})
}

func TestLoad(t *testing.T) {
	t.Run("should load custom definitions that shadow builtins", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "explore.yaml"), []byte(
			"name: explore\ninstructions: Custom exploration prompt.\nallow_tools: [read_file]\n",
		), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "reviewer.yaml"), []byte(
			"name: reviewer\ndescription: Reviews diffs\ninstructions: Review the changes.\n",
		), 0644))

		registry := NewRegistry(dir, zerolog.Nop())
		require.NoError(t, registry.Load())

		spec, ok := registry.Lookup("explore")
		require.True(t, ok)
		assert.Equal(t, "Custom exploration prompt.", spec.Instructions)
		assert.Equal(t, []string{"read_file"}, spec.AllowTools)

		_, ok = registry.Lookup("reviewer")
		assert.True(t, ok)
	})

	t.Run("should skip invalid files and keep loading", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [nope"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "noname.yaml"), []byte("instructions: x\n"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "good.yaml"), []byte(
			"name: good\ninstructions: Do good things.\n",
		), 0644))

		registry := NewRegistry(dir, zerolog.Nop())
		require.NoError(t, registry.Load())

		_, ok := registry.Lookup("good")
		assert.True(t, ok)
		_, ok = registry.Lookup("noname")
		assert.False(t, ok)
	})

	t.Run("should tolerate a missing directory", func(t *testing.T) {
		registry := NewRegistry(filepath.Join(t.TempDir(), "missing"), zerolog.Nop())
		assert.NoError(t, registry.Load())
	})

	t.Run("should list sorted unique names", func(t *testing.T) {
		registry := NewRegistry("", zerolog.Nop())
		names := registry.Names()
		assert.Equal(t, []string{"explore", "general", "plan"}, names)
	})
}

func TestWatcher(t *testing.T) {
	t.Run("should pick up a new definition", func(t *testing.T) {
		dir := t.TempDir()
		registry := NewRegistry(dir, zerolog.Nop())
		require.NoError(t, registry.Load())

		watcher, err := NewWatcher(registry, zerolog.Nop())
		require.NoError(t, err)
		require.NoError(t, watcher.Start())
		defer watcher.Stop()

		require.NoError(t, os.WriteFile(filepath.Join(dir, "fresh.yaml"), []byte(
			"name: fresh\ninstructions: Newly added.\n",
		), 0644))

		require.Eventually(t, func() bool {
			_, ok := registry.Lookup("fresh")
			return ok
		}, 3*time.Second, 50*time.Millisecond)
	})

	t.Run("should require a definitions directory", func(t *testing.T) {
		registry := NewRegistry("", zerolog.Nop())
		_, err := NewWatcher(registry, zerolog.Nop())
		assert.Error(t, err)
	})
}
