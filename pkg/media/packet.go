// Package media defines the data model shared by the encoder driver, the audio
// reader and the container multiplexer.
package media

import "fmt"

// TrackKind identifies the media type of a track or packet.
type TrackKind int

const (
	KindVideo TrackKind = iota
	KindAudio
)

// String returns the track kind name.
func (k TrackKind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// PacketFlags describe a packet.
type PacketFlags uint8

const (
	// FlagKeyframe marks a self-contained sample.
	FlagKeyframe PacketFlags = 1 << iota
	// FlagEndOfStream marks the last packet of a stream.
	FlagEndOfStream
	// FlagCodecConfig marks the format sentinel; it carries Format and no payload.
	FlagCodecConfig
)

// Has reports whether all bits of f are set.
func (p PacketFlags) Has(f PacketFlags) bool {
	return p&f == f
}

// Packet is one encoded sample.
//
// Data aliases a buffer owned by the producer. It is valid only until the
// consumer requests the next packet from the same producer; a consumer that
// needs it longer must copy it.
type Packet struct {
	Kind TrackKind

	// Data is the payload. Offset and Size locate it in the producer's buffer.
	Data   []byte
	Offset int
	Size   int

	// PTS is the presentation timestamp in microseconds, relative to stream start.
	PTS int64
	// Duration in microseconds; zero when unknown.
	Duration int64

	Flags PacketFlags

	// Format is set on codec-config sentinels only: *VideoFormat or *AudioFormat.
	Format any
}

// IsKeyframe reports whether the packet is a sync sample.
func (p *Packet) IsKeyframe() bool {
	return p.Flags.Has(FlagKeyframe)
}

// IsCodecConfig reports whether the packet is a format sentinel.
func (p *Packet) IsCodecConfig() bool {
	return p.Flags.Has(FlagCodecConfig)
}

// SetPayload points the packet at buf[off:off+size].
func (p *Packet) SetPayload(buf []byte, off, size int) {
	p.Data = buf[off : off+size]
	p.Offset = off
	p.Size = size
}
