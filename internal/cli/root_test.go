package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCommand(t *testing.T) {
	root := GetRootCmd()

	assert.Equal(t, "coda", root.Use)
	assert.Equal(t, version, root.Version)

	t.Run("registers subcommands", func(t *testing.T) {
		names := map[string]bool{}
		for _, c := range root.Commands() {
			names[c.Name()] = true
		}
		for _, want := range []string{"chat", "run", "agents", "tasks", "config"} {
			assert.True(t, names[want], "missing subcommand %s", want)
		}
	})

	t.Run("has global flags", func(t *testing.T) {
		assert.NotNil(t, root.PersistentFlags().Lookup("config"))
		assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))
	})
}

func TestGetVersion(t *testing.T) {
	assert.Equal(t, "0.1.0", GetVersion())
}
