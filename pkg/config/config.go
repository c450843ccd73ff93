// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"image/color"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/framemux/pkg/adapters/ffmpegenc"
	"github.com/user/framemux/pkg/media"
	"github.com/user/framemux/pkg/pipeline"
	"github.com/user/framemux/pkg/ports"
	"github.com/user/framemux/pkg/profile"
)

// Config represents a job file.
type Config struct {
	// Input/Output
	Images     []string `yaml:"images"`
	OutputPath string   `yaml:"output"`
	Audio      string   `yaml:"audio"`
	AudioMode  string   `yaml:"audio_mode"`

	// Encoding
	Codec          string  `yaml:"codec"`
	Width          int     `yaml:"width"`
	Height         int     `yaml:"height"`
	FPS            float64 `yaml:"fps"`
	Bitrate        int     `yaml:"bitrate"`
	IFrameInterval int     `yaml:"iframe_interval"`
	FramesPerImage int     `yaml:"frames_per_image"`

	// Backend
	FFmpegPath     string `yaml:"ffmpeg_path"`
	AllowHardware  bool   `yaml:"allow_hardware"`
	VerifyHardware bool   `yaml:"verify_hardware"`
	BufferCount    int    `yaml:"buffer_count"`

	Timeout time.Duration `yaml:"timeout"`

	// Demo frames
	Palette []string `yaml:"palette"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		Codec:          "avc",
		Width:          320,
		Height:         240,
		FPS:            15,
		Bitrate:        2_000_000,
		IFrameInterval: 0,
		FramesPerImage: 1,
		AudioMode:      string(pipeline.AudioSequential),
		AllowHardware:  true,
		VerifyHardware: true,
		BufferCount:    profile.DefaultBufferCount,
	}
}

// LoadFromFile loads configuration from a YAML file. Keys missing from the
// file keep their default values.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Profile returns the encoding profile described by c.
func (c Config) Profile() media.EncodingProfile {
	return media.EncodingProfile{
		Codec:                 c.Codec,
		Width:                 c.Width,
		Height:                c.Height,
		FPS:                   c.FPS,
		BitRate:               c.Bitrate,
		IFrameIntervalSeconds: c.IFrameInterval,
		OutputPath:            c.OutputPath,
		AudioSourcePath:       c.Audio,
		FramesPerImage:        c.FramesPerImage,
	}
}

// ProfileOptions returns the encoder selection options. Hardware encoders
// are only selected when they are verified, since ffmpeg lists them whether
// or not the device is present.
func (c Config) ProfileOptions() profile.Options {
	return profile.Options{
		AllowHardware: c.AllowHardware && c.VerifyHardware,
		BufferCount:   c.BufferCount,
	}
}

// BackendOptions returns the ffmpeg backend options.
func (c Config) BackendOptions(log ports.Logger) ffmpegenc.Options {
	return ffmpegenc.Options{
		FFmpegPath:     c.FFmpegPath,
		VerifyHardware: c.AllowHardware && c.VerifyHardware,
		Logger:         log,
	}
}

// ToJob builds a pipeline job over frames.
func (c Config) ToJob(frames ports.FrameSource) (pipeline.Job, error) {
	mode, err := pipeline.ParseAudioMode(c.AudioMode)
	if err != nil {
		return pipeline.Job{}, err
	}
	job := pipeline.NewJob(c.Profile(), frames)
	job.AudioMode = mode
	job.Timeout = c.Timeout
	return job, nil
}

// PaletteColors parses Palette; nil when it is empty.
func (c Config) PaletteColors() []color.Color {
	if len(c.Palette) == 0 {
		return nil
	}
	colors := make([]color.Color, len(c.Palette))
	for i, hex := range c.Palette {
		colors[i] = ParseColor(hex)
	}
	return colors
}

// ParseColor parses a hex color string to color.Color.
func ParseColor(hex string) color.Color {
	if len(hex) == 0 {
		return color.Black
	}

	if hex[0] == '#' {
		hex = hex[1:]
	}

	if len(hex) != 6 {
		return color.Black
	}

	return color.RGBA{
		R: hexValue(hex[0])<<4 | hexValue(hex[1]),
		G: hexValue(hex[2])<<4 | hexValue(hex[3]),
		B: hexValue(hex[4])<<4 | hexValue(hex[5]),
		A: 255,
	}
}

func hexValue(c byte) uint8 {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}
