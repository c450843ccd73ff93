package media

import (
	"fmt"
	"image"
	"math"
)

// EncodingProfile is the immutable description of one encoding job.
type EncodingProfile struct {
	Codec                 string
	Width                 int
	Height                int
	FPS                   float64
	BitRate               int // bits per second
	IFrameIntervalSeconds int // 0 makes every frame a keyframe
	OutputPath            string
	AudioSourcePath       string // optional
	FramesPerImage        int    // each image is held for this many frames; 0 means 1
}

// Validate checks the profile invariants.
func (p EncodingProfile) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("%w: invalid size %dx%d", ErrCodecConfig, p.Width, p.Height)
	}
	if p.Width%2 != 0 || p.Height%2 != 0 {
		return fmt.Errorf("%w: size %dx%d must be even", ErrCodecConfig, p.Width, p.Height)
	}
	if p.FPS <= 0 || math.IsNaN(p.FPS) || math.IsInf(p.FPS, 0) {
		return fmt.Errorf("%w: invalid frame rate %v", ErrCodecConfig, p.FPS)
	}
	if p.BitRate <= 0 {
		return fmt.Errorf("%w: invalid bit rate %d", ErrCodecConfig, p.BitRate)
	}
	if p.IFrameIntervalSeconds < 0 {
		return fmt.Errorf("%w: invalid I-frame interval %d", ErrCodecConfig, p.IFrameIntervalSeconds)
	}
	if p.FramesPerImage < 0 {
		return fmt.Errorf("%w: invalid frames per image %d", ErrCodecConfig, p.FramesPerImage)
	}
	if p.OutputPath == "" {
		return fmt.Errorf("%w: output path is empty", ErrCodecConfig)
	}
	return nil
}

// RepeatCount returns how many frames each image occupies.
func (p EncodingProfile) RepeatCount() int {
	if p.FramesPerImage <= 0 {
		return 1
	}
	return p.FramesPerImage
}

// Frame is one still image and its position in the frame sequence.
type Frame struct {
	Ordinal int64
	Image   image.Image
}

// FrameDuration returns the constant frame duration in microseconds for fps.
func FrameDuration(fps float64) int64 {
	return int64(math.Round(1e6 / fps))
}

// FramePTS returns the presentation timestamp in microseconds of the frame at ordinal.
func FramePTS(ordinal int64, fps float64) int64 {
	return ordinal * FrameDuration(fps)
}
