package ffmpegenc

import "errors"

var (
	// ErrFFmpegNotFound is returned when no ffmpeg binary can be located.
	ErrFFmpegNotFound = errors.New("ffmpegenc: ffmpeg not found")

	// ErrUnknownEncoder is returned when an encoder name has no argument mapping.
	ErrUnknownEncoder = errors.New("ffmpegenc: unknown encoder")

	// ErrProcessFailed is returned when ffmpeg exits with a non-zero status.
	ErrProcessFailed = errors.New("ffmpegenc: ffmpeg process failed")
)
