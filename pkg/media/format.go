package media

import "github.com/Eyevinn/mp4ff/mp4"

// Codec names an encoded media format.
type Codec string

const (
	CodecAVC  Codec = "avc"
	CodecHEVC Codec = "hevc"
	CodecAV1  Codec = "av1"
	CodecAAC  Codec = "aac"
)

// VideoFormat is the negotiated output format of a video encoder.
type VideoFormat struct {
	Codec  Codec
	Width  int
	Height int

	// FrameDuration is the constant frame duration in microseconds.
	FrameDuration int64

	// H.264/H.265 parameter sets, without start codes.
	VPS [][]byte
	SPS [][]byte
	PPS [][]byte

	// SequenceHeader is the AV1 sequence header OBU.
	SequenceHeader []byte
}

// AudioFormat describes an audio track taken from a source container.
type AudioFormat struct {
	Codec      Codec
	SampleRate int
	Channels   int

	// Timescale of the source track; used unchanged for the output track.
	Timescale uint32

	// DecoderConfig is the codec-specific configuration, for AAC the AudioSpecificConfig.
	DecoderConfig []byte

	// SampleEntry is the source sample description box, copied verbatim when set.
	SampleEntry mp4.Box
}

// Track is a stream registered with a multiplexer.
type Track struct {
	Kind TrackKind
	// Format is *VideoFormat for video and *AudioFormat for audio.
	Format any
	// Index is assigned by the multiplexer.
	Index int
}
