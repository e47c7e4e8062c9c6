package snapshot

import (
	"bytes"
	"slices"

	"github.com/roach88/streamcore/internal/protocol"
)

// Sorted vectors keep replicated lists in byte-lexicographic key order so
// that independently folded snapshots encode identically. Find is a binary
// search; Insert and Remove splice in place.

func searchSorted[T any](s []T, key []byte, keyOf func(T) []byte) (int, bool) {
	return slices.BinarySearchFunc(s, key, func(e T, k []byte) int {
		return bytes.Compare(keyOf(e), k)
	})
}

// FindSorted returns the element whose key equals key.
func FindSorted[T any](s []T, key []byte, keyOf func(T) []byte) (T, bool) {
	i, ok := searchSorted(s, key, keyOf)
	if !ok {
		var zero T
		return zero, false
	}
	return s[i], true
}

// InsertSorted inserts elem at its sorted position. An element with the same
// key is replaced, never duplicated.
func InsertSorted[T any](s []T, elem T, keyOf func(T) []byte) []T {
	i, ok := searchSorted(s, keyOf(elem), keyOf)
	if ok {
		s[i] = elem
		return s
	}
	return slices.Insert(s, i, elem)
}

// RemoveSorted deletes the element with key. It reports whether one was
// found.
func RemoveSorted[T any](s []T, key []byte, keyOf func(T) []byte) ([]T, bool) {
	i, ok := searchSorted(s, key, keyOf)
	if !ok {
		return s, false
	}
	return slices.Delete(s, i, i+1), true
}

// removeCommon returns the elements of x that are not in y. Both inputs are
// sorted; the walk is a single ordered merge.
func removeCommon(x, y []string) []string {
	if !slices.IsSorted(x) {
		x = slices.Sorted(slices.Values(x))
	}
	if !slices.IsSorted(y) {
		y = slices.Sorted(slices.Values(y))
	}
	result := make([]string, 0, len(x))
	i, j := 0, 0
	for i < len(x) && j < len(y) {
		switch {
		case x[i] < y[j]:
			result = append(result, x[i])
			i++
		case x[i] > y[j]:
			j++
		default:
			i++
			j++
		}
	}
	return append(result, x[i:]...)
}

func memberKey(m *protocol.Member) []byte                { return m.UserAddress }
func channelKey(c *protocol.SpaceChannelMetadata) []byte { return c.ChannelID }
func membershipKey(m *protocol.UserMembership) []byte    { return m.StreamID }
func fullyReadKey(m *protocol.FullyReadMarkers) []byte   { return m.ChannelStreamID }
func userBlocksKey(b *protocol.UserBlocks) []byte        { return b.UserID }
