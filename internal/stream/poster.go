package stream

import (
	"context"
	"time"

	"github.com/roach88/streamcore/internal/protocol"
)

// Poster signs events on top of a view's cookie and submits them.
type Poster struct {
	svc    protocol.StreamService
	signer protocol.Signer
	now    func() int64
}

// PosterOption configures a Poster.
type PosterOption func(*Poster)

// WithPosterClock sets the creation timestamp source, in milliseconds.
func WithPosterClock(now func() int64) PosterOption {
	return func(p *Poster) { p.now = now }
}

// NewPoster creates a Poster that signs as signer.
func NewPoster(svc protocol.StreamService, signer protocol.Signer, opts ...PosterOption) *Poster {
	p := &Poster{
		svc:    svc,
		signer: signer,
		now:    func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Address returns the signer's address.
func (p *Poster) Address() protocol.Bytes { return p.signer.Address() }

// Post adds content to v's stream. The event references the last
// miniblock the view knows of.
func (p *Poster) Post(ctx context.Context, v *View, content protocol.Content, ephemeral bool) (*protocol.ParsedEvent, error) {
	cookie := v.Cookie()
	if cookie == nil {
		return nil, protocol.NewError(protocol.CodeUnavailable, "stream %s not initialized", v.ID())
	}
	ev := protocol.MakeEvent(p.signer, content, cookie.PrevMiniblockHash, p.now())
	ev.Ephemeral = ephemeral
	pe, err := protocol.MakeParsedEvent(p.signer, ev)
	if err != nil {
		return nil, err
	}
	if err := p.svc.AddEvent(ctx, v.ID().Bytes(), pe.Envelope); err != nil {
		return nil, err
	}
	return pe, nil
}
