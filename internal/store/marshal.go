package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/streamcore/internal/canon"
	"github.com/roach88/streamcore/internal/protocol"
)

// marshalMiniblock converts a miniblock to canonical JSON TEXT for storage.
func marshalMiniblock(mb *protocol.Miniblock) (string, error) {
	data, err := canon.Marshal(mb)
	if err != nil {
		return "", fmt.Errorf("marshal miniblock %d: %w", mb.Num(), err)
	}
	return string(data), nil
}

// unmarshalMiniblock parses stored JSON TEXT.
func unmarshalMiniblock(data string) (*protocol.Miniblock, error) {
	var mb protocol.Miniblock
	if err := json.Unmarshal([]byte(data), &mb); err != nil {
		return nil, fmt.Errorf("unmarshal miniblock: %w", err)
	}
	return &mb, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
