// Package profile maps a requested codec and encoding parameters onto a
// concrete backend encoder.
//
// For each codec the candidates are tried in order, hardware encoders first:
//  1. videotoolbox, nvenc, qsv, amf
//  2. the software encoder (libx264, libx265, libsvtav1, libaom-av1)
//
// The first candidate listed by the platform wins.
package profile

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/user/framemux/pkg/media"
	"github.com/user/framemux/pkg/ports"
)

// DefaultBufferCount is the number of encoder input slots.
const DefaultBufferCount = 4

// EncoderParameters is the resolved configuration of one video encoder.
type EncoderParameters struct {
	Codec       media.Codec
	MIME        string
	EncoderName string
	Hardware    bool

	Width   int
	Height  int
	FPS     float64
	BitRate int

	// IFrameInterval in seconds; 0 makes every frame a keyframe.
	IFrameInterval int
	// GOPSize in frames, derived from IFrameInterval and FPS.
	GOPSize int

	BufferCount int
}

// FrameDuration returns the constant frame duration in microseconds.
func (p EncoderParameters) FrameDuration() int64 {
	return media.FrameDuration(p.FPS)
}

// EncoderConfig converts p into a backend configuration.
func (p EncoderParameters) EncoderConfig() ports.EncoderConfig {
	return ports.EncoderConfig{
		Encoder:  p.EncoderName,
		Codec:    p.Codec,
		Hardware: p.Hardware,
		Width:    p.Width,
		Height:   p.Height,
		FPS:      p.FPS,
		BitRate:  p.BitRate,
		GOPSize:  p.GOPSize,
	}
}

// CodecInfo describes one supported codec and the encoder that would serve it.
type CodecInfo struct {
	Codec     media.Codec
	MIME      string
	Encoder   string // empty when unavailable
	Hardware  bool
	Available bool
}

// Options configures encoder selection.
type Options struct {
	// AllowHardware enables hardware encoders. When false only software
	// encoders are considered. Set it only with a lister that reports the
	// hardware encoders that actually run, such as an ffmpeg backend with
	// hardware verification.
	AllowHardware bool
	// BufferCount overrides DefaultBufferCount when positive.
	BufferCount int
}

// Profile resolves codec identifiers against the encoders of a platform.
type Profile struct {
	lister ports.EncoderLister
	opts   Options
}

// New creates a Profile.
func New(lister ports.EncoderLister, opts Options) *Profile {
	return &Profile{lister: lister, opts: opts}
}

type codecEntry struct {
	codec      media.Codec
	mime       string
	candidates []string
}

var codecs = []codecEntry{
	{
		codec:      media.CodecAVC,
		mime:       "video/avc",
		candidates: []string{"h264_videotoolbox", "h264_nvenc", "h264_qsv", "h264_amf", "libx264"},
	},
	{
		codec:      media.CodecHEVC,
		mime:       "video/hevc",
		candidates: []string{"hevc_videotoolbox", "hevc_nvenc", "hevc_qsv", "hevc_amf", "libx265"},
	},
	{
		codec:      media.CodecAV1,
		mime:       "video/av01",
		candidates: []string{"av1_nvenc", "av1_qsv", "av1_amf", "libsvtav1", "libaom-av1"},
	},
}

var aliases = map[string]media.Codec{
	"avc":        media.CodecAVC,
	"h264":       media.CodecAVC,
	"h.264":      media.CodecAVC,
	"video/avc":  media.CodecAVC,
	"hevc":       media.CodecHEVC,
	"h265":       media.CodecHEVC,
	"h.265":      media.CodecHEVC,
	"video/hevc": media.CodecHEVC,
	"av1":        media.CodecAV1,
	"video/av01": media.CodecAV1,
}

// ParseCodec maps a codec identifier onto a codec.
func ParseCodec(id string) (media.Codec, error) {
	c, ok := aliases[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return "", fmt.Errorf("%w: %q", media.ErrUnsupportedCodec, id)
	}
	return c, nil
}

func lookup(c media.Codec) codecEntry {
	for _, e := range codecs {
		if e.codec == c {
			return e
		}
	}
	return codecEntry{}
}

// Resolve selects an encoder for codecID and fills in the derived parameters.
func (p *Profile) Resolve(ctx context.Context, codecID string, width, height int, fps float64, bitRate int) (EncoderParameters, error) {
	return p.ResolveWithInterval(ctx, codecID, width, height, fps, bitRate, 0)
}

// ResolveWithInterval is Resolve with an explicit keyframe interval in seconds.
func (p *Profile) ResolveWithInterval(ctx context.Context, codecID string, width, height int, fps float64, bitRate, iFrameInterval int) (EncoderParameters, error) {
	codec, err := ParseCodec(codecID)
	if err != nil {
		return EncoderParameters{}, err
	}
	if width <= 0 || height <= 0 || fps <= 0 || bitRate <= 0 || iFrameInterval < 0 {
		return EncoderParameters{}, fmt.Errorf("%w: %dx%d @ %v fps, %d bps", media.ErrCodecConfig, width, height, fps, bitRate)
	}

	encoder, err := p.selectEncoder(ctx, codec)
	if err != nil {
		return EncoderParameters{}, err
	}

	bufferCount := p.opts.BufferCount
	if bufferCount <= 0 {
		bufferCount = DefaultBufferCount
	}

	return EncoderParameters{
		Codec:          codec,
		MIME:           lookup(codec).mime,
		EncoderName:    encoder,
		Hardware:       IsHardware(encoder),
		Width:          width,
		Height:         height,
		FPS:            fps,
		BitRate:        bitRate,
		IFrameInterval: iFrameInterval,
		GOPSize:        GOPSize(fps, iFrameInterval),
		BufferCount:    bufferCount,
	}, nil
}

// IsEncoderAvailable reports whether some encoder for codecID exists.
func (p *Profile) IsEncoderAvailable(ctx context.Context, codecID string) bool {
	codec, err := ParseCodec(codecID)
	if err != nil {
		return false
	}
	_, err = p.selectEncoder(ctx, codec)
	return err == nil
}

// Available lists every supported codec with the encoder that would be chosen.
func (p *Profile) Available(ctx context.Context) ([]CodecInfo, error) {
	listed, err := p.lister.Encoders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list encoders: %w", err)
	}

	infos := make([]CodecInfo, 0, len(codecs))
	for _, e := range codecs {
		info := CodecInfo{Codec: e.codec, MIME: e.mime}
		if name, ok := p.pick(e, listed); ok {
			info.Encoder = name
			info.Hardware = IsHardware(name)
			info.Available = true
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (p *Profile) selectEncoder(ctx context.Context, codec media.Codec) (string, error) {
	listed, err := p.lister.Encoders(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", media.ErrUnsupportedCodec, codec, err)
	}
	name, ok := p.pick(lookup(codec), listed)
	if !ok {
		return "", fmt.Errorf("%w: no encoder for %s", media.ErrUnsupportedCodec, codec)
	}
	return name, nil
}

func (p *Profile) pick(e codecEntry, listed map[string]bool) (string, bool) {
	for _, name := range e.candidates {
		if !p.opts.AllowHardware && IsHardware(name) {
			continue
		}
		if listed[name] {
			return name, true
		}
	}
	return "", false
}

// GOPSize converts a keyframe interval in seconds into frames.
func GOPSize(fps float64, iFrameInterval int) int {
	if iFrameInterval <= 0 {
		return 1
	}
	gop := int(math.Round(fps * float64(iFrameInterval)))
	if gop < 1 {
		return 1
	}
	return gop
}

var hardwareSuffixes = []string{"_videotoolbox", "_nvenc", "_qsv", "_amf", "_vaapi", "_mf"}

// IsHardware reports whether encoder is a hardware encoder.
func IsHardware(encoder string) bool {
	for _, suffix := range hardwareSuffixes {
		if strings.HasSuffix(encoder, suffix) {
			return true
		}
	}
	return false
}
