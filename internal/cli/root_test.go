package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{
		"compare", "import", "status", "reset",
		"delete", "fix-dates", "attributes", "plans", "migrate",
	} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestCompareRequiresTags(t *testing.T) {
	cmd := newCompareCmd()
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "tags")
}
