package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/user/framemux/pkg/media"
	"github.com/user/framemux/pkg/mocks"
)

func TestParseCodec(t *testing.T) {
	tests := map[string]media.Codec{
		"avc":        media.CodecAVC,
		"H264":       media.CodecAVC,
		"video/avc":  media.CodecAVC,
		"hevc":       media.CodecHEVC,
		"h265":       media.CodecHEVC,
		"video/hevc": media.CodecHEVC,
		"AV1":        media.CodecAV1,
		"video/av01": media.CodecAV1,
	}
	for id, want := range tests {
		got, err := ParseCodec(id)
		if err != nil || got != want {
			t.Errorf("ParseCodec(%q) = %s, %v; want %s", id, got, err, want)
		}
	}

	if _, err := ParseCodec("vp9"); !errors.Is(err, media.ErrUnsupportedCodec) {
		t.Errorf("expected ErrUnsupportedCodec, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	p := New(&mocks.CodecBackend{}, Options{})

	params, err := p.Resolve(context.Background(), "video/avc", 320, 240, 1, 1_500_000)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if params.Codec != media.CodecAVC || params.EncoderName != "libx264" || params.Hardware {
		t.Errorf("unexpected encoder: %+v", params)
	}
	if params.MIME != "video/avc" {
		t.Errorf("MIME = %s", params.MIME)
	}
	if params.GOPSize != 1 || params.IFrameInterval != 0 {
		t.Errorf("expected every frame to be a keyframe, got GOP %d", params.GOPSize)
	}
	if params.BufferCount != DefaultBufferCount {
		t.Errorf("BufferCount = %d", params.BufferCount)
	}
	if params.FrameDuration() != 1_000_000 {
		t.Errorf("FrameDuration = %d", params.FrameDuration())
	}
}

func TestResolve_HardwarePreference(t *testing.T) {
	backend := &mocks.CodecBackend{Listed: map[string]bool{
		"libx264":    true,
		"h264_nvenc": true,
		"h264_qsv":   true,
	}}

	params, err := New(backend, Options{AllowHardware: true}).Resolve(context.Background(), "h264", 320, 240, 15, 2_000_000)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if params.EncoderName != "h264_nvenc" || !params.Hardware {
		t.Errorf("expected h264_nvenc, got %s", params.EncoderName)
	}

	params, err = New(backend, Options{AllowHardware: false}).Resolve(context.Background(), "h264", 320, 240, 15, 2_000_000)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if params.EncoderName != "libx264" {
		t.Errorf("expected libx264 without hardware, got %s", params.EncoderName)
	}
}

func TestResolve_Unavailable(t *testing.T) {
	backend := &mocks.CodecBackend{Listed: map[string]bool{"libx264": true}}
	p := New(backend, Options{AllowHardware: true})

	_, err := p.Resolve(context.Background(), "hevc", 320, 240, 1, 1_000_000)
	if !errors.Is(err, media.ErrUnsupportedCodec) {
		t.Errorf("expected ErrUnsupportedCodec, got %v", err)
	}
	if p.IsEncoderAvailable(context.Background(), "hevc") {
		t.Error("hevc should be unavailable")
	}
	if !p.IsEncoderAvailable(context.Background(), "avc") {
		t.Error("avc should be available")
	}
	if p.IsEncoderAvailable(context.Background(), "mpeg2") {
		t.Error("unknown codec should be unavailable")
	}
}

func TestResolve_ListError(t *testing.T) {
	backend := &mocks.CodecBackend{
		EncodersFunc: func(ctx context.Context) (map[string]bool, error) {
			return nil, errors.New("ffmpeg not found")
		},
	}
	_, err := New(backend, Options{}).Resolve(context.Background(), "avc", 320, 240, 1, 1_000_000)
	if !errors.Is(err, media.ErrUnsupportedCodec) {
		t.Errorf("expected ErrUnsupportedCodec, got %v", err)
	}
}

func TestResolve_InvalidParameters(t *testing.T) {
	p := New(&mocks.CodecBackend{}, Options{})
	_, err := p.Resolve(context.Background(), "avc", 0, 240, 1, 1_000_000)
	if !errors.Is(err, media.ErrCodecConfig) {
		t.Errorf("expected ErrCodecConfig, got %v", err)
	}
}

func TestResolveWithInterval(t *testing.T) {
	p := New(&mocks.CodecBackend{}, Options{BufferCount: 8})
	params, err := p.ResolveWithInterval(context.Background(), "av1", 320, 240, 15, 2_000_000, 2)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if params.GOPSize != 30 {
		t.Errorf("GOPSize = %d, want 30", params.GOPSize)
	}
	if params.BufferCount != 8 {
		t.Errorf("BufferCount = %d, want 8", params.BufferCount)
	}
	if params.EncoderName != "libsvtav1" {
		t.Errorf("EncoderName = %s", params.EncoderName)
	}

	cfg := params.EncoderConfig()
	if cfg.Encoder != "libsvtav1" || cfg.GOPSize != 30 || cfg.Codec != media.CodecAV1 {
		t.Errorf("unexpected backend config: %+v", cfg)
	}
}

func TestAvailable(t *testing.T) {
	backend := &mocks.CodecBackend{Listed: map[string]bool{"libx264": true, "hevc_videotoolbox": true}}
	infos, err := New(backend, Options{AllowHardware: true}).Available(context.Background())
	if err != nil {
		t.Fatalf("Available failed: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("expected 3 codecs, got %d", len(infos))
	}
	if !infos[0].Available || infos[0].Encoder != "libx264" {
		t.Errorf("avc: %+v", infos[0])
	}
	if !infos[1].Available || !infos[1].Hardware {
		t.Errorf("hevc: %+v", infos[1])
	}
	if infos[2].Available {
		t.Errorf("av1: %+v", infos[2])
	}
}

func TestGOPSize(t *testing.T) {
	tests := []struct {
		fps      float64
		interval int
		want     int
	}{
		{1, 0, 1},
		{15, 1, 15},
		{29.97, 2, 60},
		{0.2, 1, 1},
	}
	for _, tt := range tests {
		if got := GOPSize(tt.fps, tt.interval); got != tt.want {
			t.Errorf("GOPSize(%v, %d) = %d, want %d", tt.fps, tt.interval, got, tt.want)
		}
	}
}

func TestIsHardware(t *testing.T) {
	tests := map[string]bool{
		"h264_videotoolbox": true,
		"hevc_nvenc":        true,
		"av1_qsv":           true,
		"h264_amf":          true,
		"h264_vaapi":        true,
		"h264_mf":           true,
		"libx264":           false,
		"libaom-av1":        false,
		"libsvtav1":         false,
	}
	for name, want := range tests {
		if got := IsHardware(name); got != want {
			t.Errorf("IsHardware(%s) = %v, want %v", name, got, want)
		}
	}
}
