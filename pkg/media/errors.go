package media

import (
	"context"
	"errors"
)

var (
	// ErrUnsupportedCodec is returned when a codec identifier is unknown or has no encoder on this platform.
	ErrUnsupportedCodec = errors.New("media: unsupported codec")

	// ErrCodecConfig is returned when the encoder rejects the requested parameters.
	ErrCodecConfig = errors.New("media: codec configuration rejected")

	// ErrEncoderFault is returned when the encoder fails after it has been configured.
	ErrEncoderFault = errors.New("media: encoder fault")

	// ErrNoAudioTrack is returned when an audio source contains no audio track.
	ErrNoAudioTrack = errors.New("media: no audio track")

	// ErrUnreadableSource is returned when an audio source cannot be parsed.
	ErrUnreadableSource = errors.New("media: unreadable source")

	// ErrNoTracksRegistered is returned when a muxer is started without tracks.
	ErrNoTracksRegistered = errors.New("media: no tracks registered")

	// ErrTracksFrozen is returned when a track is registered after the muxer has started.
	ErrTracksFrozen = errors.New("media: track set is frozen")

	// ErrUnknownTrack is returned when a packet targets a track index that was never registered.
	ErrUnknownTrack = errors.New("media: unknown track")

	// ErrNotStarted is returned when a packet is written before the muxer has started.
	ErrNotStarted = errors.New("media: muxer not started")

	// ErrTimestampOrdering is returned when a packet's timestamp goes backwards within a track.
	ErrTimestampOrdering = errors.New("media: timestamp ordering violation")

	// ErrWrite is returned when the output storage failed.
	ErrWrite = errors.New("media: write error")

	// ErrInvalidState is returned when an operation is not permitted in the current state.
	ErrInvalidState = errors.New("media: invalid state")

	// ErrFrameOrdinal is returned when a frame is not the next expected one.
	ErrFrameOrdinal = errors.New("media: unexpected frame ordinal")

	// ErrInvalidPacket is returned for packets a muxer cannot store, such as codec-config sentinels.
	ErrInvalidPacket = errors.New("media: invalid packet")
)

// Kind groups errors by how a caller is expected to react.
type Kind string

const (
	// KindNone means no error.
	KindNone Kind = ""
	// KindConfig errors happen before any output exists; retrying with other parameters is safe.
	KindConfig Kind = "config"
	// KindRuntime errors abort the job; partial output is invalid.
	KindRuntime Kind = "runtime"
	// KindContract errors indicate a pipeline-assembly bug.
	KindContract Kind = "contract"
)

// KindOf classifies err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrUnsupportedCodec),
		errors.Is(err, ErrCodecConfig),
		errors.Is(err, ErrNoAudioTrack),
		errors.Is(err, ErrUnreadableSource):
		return KindConfig
	case errors.Is(err, ErrNoTracksRegistered),
		errors.Is(err, ErrTracksFrozen),
		errors.Is(err, ErrUnknownTrack),
		errors.Is(err, ErrNotStarted),
		errors.Is(err, ErrTimestampOrdering),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrFrameOrdinal),
		errors.Is(err, ErrInvalidPacket):
		return KindContract
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindRuntime
	default:
		return KindRuntime
	}
}
