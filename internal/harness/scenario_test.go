package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validScenario = `
name: valid
description: "A valid scenario"
wallets: [alice]
setup:
  - invoke: Stream.create
    args: { stream: town, kind: space, as: alice }
flow:
  - invoke: Miniblock.make
    args: { stream: town, force: true }
    expect:
      case: Success
      result: { miniblock_num: 1 }
assertions:
  - type: final_state
    stream: town
    expect: { miniblock_num: 1 }
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "valid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validScenario), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "valid", s.Name)
	assert.Equal(t, []string{"alice"}, s.Wallets)
	require.Len(t, s.Setup, 1)
	require.Len(t, s.Flow, 1)
	assert.Equal(t, true, s.Flow[0].Args["force"])
	assert.Equal(t, 1, s.Flow[0].Expect.Result["miniblock_num"])
	assert.Equal(t, AssertFinalState, s.Assertions[0].Type)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read scenario")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", `
description: d
wallets: [a]
flow: [{invoke: Miniblock.make, args: {stream: s}}]
assertions: [{type: trace_count, action: Miniblock.make, count: 1}]
`, "name is required"},
		{"missing wallets", `
name: n
description: d
flow: [{invoke: Miniblock.make, args: {stream: s}}]
assertions: [{type: trace_count, action: Miniblock.make, count: 1}]
`, "wallets list is required"},
		{"duplicate wallet", `
name: n
description: d
wallets: [a, a]
flow: [{invoke: Miniblock.make, args: {stream: s}}]
assertions: [{type: trace_count, action: Miniblock.make, count: 1}]
`, "duplicate wallet"},
		{"unknown action", `
name: n
description: d
wallets: [a]
flow: [{invoke: Cart.addItem, args: {}}]
assertions: [{type: trace_count, action: Cart.addItem, count: 1}]
`, "unknown action"},
		{"missing args", `
name: n
description: d
wallets: [a]
flow: [{invoke: Miniblock.make}]
assertions: [{type: trace_count, action: Miniblock.make, count: 1}]
`, "args is required"},
		{"expect without case", `
name: n
description: d
wallets: [a]
flow: [{invoke: Miniblock.make, args: {stream: s}, expect: {result: {sealed: true}}}]
assertions: [{type: trace_count, action: Miniblock.make, count: 1}]
`, "case is required"},
		{"final_state without stream", `
name: n
description: d
wallets: [a]
flow: [{invoke: Miniblock.make, args: {stream: s}}]
assertions: [{type: final_state, expect: {members: []}}]
`, "stream is required"},
		{"negative count", `
name: n
description: d
wallets: [a]
flow: [{invoke: Miniblock.make, args: {stream: s}}]
assertions: [{type: trace_count, action: Miniblock.make, count: -1}]
`, "count must be non-negative"},
		{"unknown field", `
name: n
description: d
wallets: [a]
flow: [{invoke: Miniblock.make, args: {stream: s}}]
assertion: [{type: trace_count, action: Miniblock.make, count: 1}]
`, "parse scenario"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	paths, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yml"), filepath.Join(dir, "b.yaml")}, paths)
}

func TestLoadExampleScenarios(t *testing.T) {
	paths, err := Discover("testdata/scenarios")
	require.NoError(t, err)
	for _, path := range paths {
		_, err := LoadScenario(path)
		assert.NoError(t, err, path)
	}
}
