package stream

import (
	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
)

// Chain returns listeners that call each of ls in order.
func Chain(ls ...Listeners) Listeners {
	return Listeners{
		OnEvent: func(id streamid.ID, ev *TimelineEvent) {
			for _, l := range ls {
				if l.OnEvent != nil {
					l.OnEvent(id, ev)
				}
			}
		},
		OnMemberJoined: func(id streamid.ID, user protocol.Bytes) {
			for _, l := range ls {
				if l.OnMemberJoined != nil {
					l.OnMemberJoined(id, user)
				}
			}
		},
		OnMemberLeft: func(id streamid.ID, user protocol.Bytes) {
			for _, l := range ls {
				if l.OnMemberLeft != nil {
					l.OnMemberLeft(id, user)
				}
			}
		},
		OnKeySolicitation: func(id streamid.ID, sender protocol.Bytes, sol *protocol.KeySolicitation, ephemeral bool) {
			for _, l := range ls {
				if l.OnKeySolicitation != nil {
					l.OnKeySolicitation(id, sender, sol, ephemeral)
				}
			}
		},
		OnKeyFulfillment: func(id streamid.ID, ful *protocol.KeyFulfillment, ephemeral bool) {
			for _, l := range ls {
				if l.OnKeyFulfillment != nil {
					l.OnKeyFulfillment(id, ful, ephemeral)
				}
			}
		},
	}
}
