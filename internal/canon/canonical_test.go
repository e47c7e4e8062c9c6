package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int", -100, "-100"},
		{"max uint64", uint64(18446744073709551615), "18446744073709551615"},
		{"bool", true, "true"},
		{"null", nil, "null"},
		{"empty array", []int{}, "[]"},
		{"empty object", map[string]int{}, "{}"},
		{"html not escaped", "<a&b>", `"<a&b>"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalSortsStructAndMapKeys(t *testing.T) {
	type inner struct {
		Zebra int `json:"zebra"`
		Alpha int `json:"alpha"`
	}
	v := struct {
		Z inner          `json:"z"`
		M map[string]int `json:"m"`
	}{
		Z: inner{Zebra: 1, Alpha: 2},
		M: map[string]int{"b": 1, "a": 2},
	}

	result, err := Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"m":{"a":2,"b":1},"z":{"alpha":2,"zebra":1}}`, string(result))
}

func TestMarshalUTF16Ordering(t *testing.T) {
	obj := map[string]int{
		"\uE000":     1,
		"\U00010000": 2,
	}

	result, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalRejectsFloats(t *testing.T) {
	_, err := Marshal(map[string]float64{"x": 1.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestMarshalNFC(t *testing.T) {
	// "e" + combining acute normalizes to a single code point.
	result, err := Marshal("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(result))
}

func TestMarshalLineSeparators(t *testing.T) {
	result, err := Marshal("a\u2028b")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(result))

	result, err = Marshal(`a\u2028b`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(result))
}

func TestHashWithDomainSeparates(t *testing.T) {
	data := []byte("payload")
	a := HashWithDomain(DomainEvent, data)
	b := HashWithDomain(DomainSnapshot, data)
	assert.Len(t, a, HashLength)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, HashWithDomain(DomainEvent, data))
}

func TestHashValueDeterministic(t *testing.T) {
	m1 := map[string]int{"a": 1, "b": 2, "c": 3}
	m2 := map[string]int{"c": 3, "b": 2, "a": 1}
	assert.Equal(t, MustHashValue(DomainSnapshot, m1), MustHashValue(DomainSnapshot, m2))
}
