package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialIDs(t *testing.T) {
	gen := NewSequentialIDs("")
	assert.Equal(t, "sync-1", gen.Generate())
	assert.Equal(t, "sync-2", gen.Generate())

	named := NewSequentialIDs("s")
	assert.Equal(t, "s-1", named.Generate())
}
