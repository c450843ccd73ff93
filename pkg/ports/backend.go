package ports

import (
	"context"
	"io"

	"github.com/user/framemux/pkg/media"
)

// EncoderConfig selects and configures one backend encoder.
type EncoderConfig struct {
	Encoder  string // backend encoder name, e.g. "libx264" or "h264_nvenc"
	Codec    media.Codec
	Hardware bool
	Width    int
	Height   int
	FPS      float64
	BitRate  int // bits per second
	GOPSize  int // frames between keyframes; 1 makes every frame a keyframe
}

// CodecBackend starts encoder sessions.
type CodecBackend interface {
	// Start launches an encoder. Errors returned here are configuration errors.
	Start(ctx context.Context, cfg EncoderConfig) (EncoderSession, error)
}

// EncoderSession is one running encoder. Input takes packed RGBA frames of
// Width*Height*4 bytes; output is the codec's elementary stream (Annex-B for
// H.264/H.265, low-overhead OBUs for AV1).
//
// Write and CloseInput are called from one goroutine, Read from another.
type EncoderSession interface {
	io.Writer
	io.Reader

	// CloseInput signals end of input.
	CloseInput() error

	// Wait waits for the encoder to exit after its output reached EOF.
	Wait() error

	// Kill stops the encoder immediately.
	Kill() error
}

// EncoderLister reports which backend encoders exist on this platform.
type EncoderLister interface {
	Encoders(ctx context.Context) (map[string]bool, error)
}
