package snapshot

import (
	"errors"

	"github.com/roach88/streamcore/internal/protocol"
)

// Programmer-error class. These are returned, never swallowed.
var (
	// ErrNoEvents is returned when a genesis snapshot is built from nothing.
	ErrNoEvents = errors.New("no events")

	// ErrNotInception is returned when the first genesis event is not an
	// inception.
	ErrNotInception = errors.New("first event is not an inception")

	// ErrUnknownPayloadVariant is returned for events whose payload carries
	// no recognizable content.
	ErrUnknownPayloadVariant = protocol.ErrUnknownPayloadVariant

	// ErrWrongContent is returned when an event's kind does not match the
	// snapshot it is applied to.
	ErrWrongContent = errors.New("event kind does not match snapshot content")
)

// ErrChannelNotFound is returned by channel setting toggles that name a
// channel the space does not have yet. It is recoverable: the caller may
// retry once the create event lands.
var ErrChannelNotFound = errors.New("channel not found")
