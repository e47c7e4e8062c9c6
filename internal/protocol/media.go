package protocol

// Media limits applied when no configuration overrides them.
const (
	DefaultMaxChunkSize  = 1_200_000
	DefaultMaxChunkCount = 50
)

// MediaInception creates a media stream with a declared number of chunks.
type MediaInception struct {
	StreamID           Bytes          `json:"streamId"`
	ChannelID          Bytes          `json:"channelId,omitempty"`
	SpaceID            Bytes          `json:"spaceId,omitempty"`
	UserID             Bytes          `json:"userId,omitempty"`
	ChunkCount         int32          `json:"chunkCount"`
	PerChunkEncryption bool           `json:"perChunkEncryption,omitempty"`
	Settings           StreamSettings `json:"settings"`
}

// MediaChunk carries one chunk of a media upload.
type MediaChunk struct {
	Data       Bytes `json:"data"`
	ChunkIndex int32 `json:"chunkIndex"`
	IV         Bytes `json:"iv,omitempty"`
}

func (*MediaInception) Kind() Kind { return KindMedia }
func (*MediaChunk) Kind() Kind     { return KindMedia }

func (*MediaInception) Case() string { return "inception" }
func (*MediaChunk) Case() string     { return "chunk" }

func (c *MediaInception) Accept(v Visitor) error { return v.VisitMediaInception(c) }
func (c *MediaChunk) Accept(v Visitor) error     { return v.VisitMediaChunk(c) }

func (*MediaInception) content() {}
func (*MediaChunk) content()     {}

func (c *MediaInception) InceptionStreamID() Bytes { return c.StreamID }

// MediaLimits bounds media uploads.
type MediaLimits struct {
	MaxChunkSize  int
	MaxChunkCount int
}

// DefaultMediaLimits returns the built-in limits.
func DefaultMediaLimits() MediaLimits {
	return MediaLimits{MaxChunkSize: DefaultMaxChunkSize, MaxChunkCount: DefaultMaxChunkCount}
}

// ValidateInception checks the declared chunk count.
func (l MediaLimits) ValidateInception(inc *MediaInception) error {
	if inc.ChunkCount <= 0 || (l.MaxChunkCount > 0 && int(inc.ChunkCount) > l.MaxChunkCount) {
		return NewError(CodeBadEvent, "chunk count %d out of range (max %d)", inc.ChunkCount, l.MaxChunkCount)
	}
	return nil
}

// ValidateChunk checks a chunk against the stream's declared bounds.
func (l MediaLimits) ValidateChunk(inc *MediaInception, chunk *MediaChunk) error {
	if chunk.ChunkIndex < 0 || chunk.ChunkIndex >= inc.ChunkCount {
		return NewError(CodeBadEvent, "chunk index %d out of range [0, %d)", chunk.ChunkIndex, inc.ChunkCount)
	}
	if l.MaxChunkSize > 0 && len(chunk.Data) > l.MaxChunkSize {
		return NewError(CodeBadEvent, "chunk size %d exceeds max %d", len(chunk.Data), l.MaxChunkSize)
	}
	return nil
}
