package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/systmms/keyrotate/cmd/keyrotate/commands"
)

func TestRootCommand_Subcommands(t *testing.T) {
	t.Parallel()

	root := newRootCommand(commands.NewState())

	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.ElementsMatch(t, []string{"run", "rotate", "status", "init", "lambda"}, names)

	for _, flag := range []string{"config", "debug", "no-color", "log-format"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
	assert.Contains(t, root.Version, "commit:")
}
