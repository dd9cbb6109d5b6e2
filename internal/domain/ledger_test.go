package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImportStatusCanTransition(t *testing.T) {
	cases := []struct {
		from, to ImportStatus
		ok       bool
	}{
		{ImportPending, ImportImporting, true},
		{ImportPending, ImportImported, false},
		{ImportPending, ImportFailed, false},
		{ImportImporting, ImportImported, true},
		{ImportImporting, ImportFailed, true},
		{ImportImporting, ImportPending, true}, // stale-run recovery
		{ImportFailed, ImportPending, true},    // operator reset
		{ImportFailed, ImportImported, false},
		{ImportImported, ImportFailed, true}, // rollback
		{ImportImported, ImportPending, false},
		{ImportImported, ImportImporting, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, c.from.CanTransition(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestImportStatusIsTerminal(t *testing.T) {
	assert.False(t, ImportPending.IsTerminal())
	assert.False(t, ImportImporting.IsTerminal())
	assert.True(t, ImportImported.IsTerminal())
	assert.True(t, ImportFailed.IsTerminal())
}
