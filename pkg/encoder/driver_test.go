package encoder

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/user/framemux/pkg/adapters/logger"
	"github.com/user/framemux/pkg/media"
	"github.com/user/framemux/pkg/mocks"
	"github.com/user/framemux/pkg/ports"
	"github.com/user/framemux/pkg/profile"
)

func testParams(codec media.Codec) profile.EncoderParameters {
	return profile.EncoderParameters{
		Codec:       codec,
		EncoderName: "libx264",
		Width:       16,
		Height:      8,
		FPS:         1,
		BitRate:     1_500_000,
		GOPSize:     1,
		BufferCount: 2,
	}
}

func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 20), B: 128, A: 255})
		}
	}
	return img
}

type drained struct {
	format  *media.VideoFormat
	packets []media.Packet
	err     error
}

// runDriver submits count frames from one goroutine while draining on the caller.
func runDriver(t *testing.T, d *Driver, count int) drained {
	t.Helper()
	ctx := context.Background()

	submitErr := make(chan error, 1)
	go func() {
		for i := 0; i < count; i++ {
			if err := d.SubmitFrame(ctx, media.Frame{Ordinal: int64(i), Image: createTestImage(16, 8)}); err != nil {
				submitErr <- err
				return
			}
		}
		submitErr <- d.SignalEndOfInput()
	}()

	var out drained
	for pkt, err := range d.Drain() {
		if err != nil {
			out.err = err
			break
		}
		if pkt.IsCodecConfig() {
			out.format = pkt.Format.(*media.VideoFormat)
			continue
		}
		p := *pkt
		p.Data = append([]byte(nil), pkt.Data...)
		out.packets = append(out.packets, p)
	}
	if err := <-submitErr; err != nil && out.err == nil {
		out.err = err
	}
	return out
}

func TestDriver_EncodeH264(t *testing.T) {
	backend := &mocks.CodecBackend{}
	d := New(backend, logger.NewNoop())
	defer d.Release()

	if err := d.Configure(context.Background(), testParams(media.CodecAVC)); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if d.State() != StateConfigured {
		t.Errorf("expected configured, got %s", d.State())
	}

	out := runDriver(t, d, 10)
	if out.err != nil {
		t.Fatalf("unexpected error: %v", out.err)
	}

	if out.format == nil {
		t.Fatal("expected codec-config packet")
	}
	if out.format.Width != 16 || out.format.Height != 8 || out.format.FrameDuration != 1_000_000 {
		t.Errorf("unexpected format: %+v", out.format)
	}
	if !bytes.Equal(out.format.SPS[0], mocks.H264SPS) || !bytes.Equal(out.format.PPS[0], mocks.H264PPS) {
		t.Error("unexpected parameter sets")
	}

	if len(out.packets) != 10 {
		t.Fatalf("expected 10 packets, got %d", len(out.packets))
	}
	for i, p := range out.packets {
		if p.PTS != int64(i)*1_000_000 {
			t.Errorf("packet %d: pts = %d", i, p.PTS)
		}
		if !p.IsKeyframe() {
			t.Errorf("packet %d: expected keyframe with GOP 1", i)
		}
		if p.Size != len(p.Data) || p.Size == 0 {
			t.Errorf("packet %d: size %d, data %d", i, p.Size, len(p.Data))
		}
		eos := p.Flags.Has(media.FlagEndOfStream)
		if eos != (i == 9) {
			t.Errorf("packet %d: end of stream = %v", i, eos)
		}
	}

	if d.State() != StateDone {
		t.Errorf("expected done, got %s", d.State())
	}
	if got := backend.Sessions[0].FrameCount(); got != 10 {
		t.Errorf("backend received %d frames, want 10", got)
	}
}

func TestDriver_Timestamps(t *testing.T) {
	tests := []struct {
		fps  float64
		want []int64
	}{
		{25, []int64{0, 40_000, 80_000}},
		{30, []int64{0, 33_333, 66_666}},
	}

	for _, tt := range tests {
		d := New(&mocks.CodecBackend{}, logger.NewNoop())
		params := testParams(media.CodecAVC)
		params.FPS = tt.fps
		if err := d.Configure(context.Background(), params); err != nil {
			t.Fatalf("Configure failed: %v", err)
		}

		out := runDriver(t, d, 3)
		if out.err != nil {
			t.Fatalf("unexpected error: %v", out.err)
		}
		for i, p := range out.packets {
			if p.PTS != tt.want[i] {
				t.Errorf("fps %v packet %d: pts = %d, want %d", tt.fps, i, p.PTS, tt.want[i])
			}
		}
		d.Release()
	}
}

func TestDriver_GOPKeyframes(t *testing.T) {
	d := New(&mocks.CodecBackend{}, logger.NewNoop())
	defer d.Release()

	params := testParams(media.CodecHEVC)
	params.GOPSize = 3
	if err := d.Configure(context.Background(), params); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	out := runDriver(t, d, 7)
	if out.err != nil {
		t.Fatalf("unexpected error: %v", out.err)
	}
	for i, p := range out.packets {
		if want := i%3 == 0; p.IsKeyframe() != want {
			t.Errorf("packet %d: keyframe = %v, want %v", i, p.IsKeyframe(), want)
		}
	}
	if len(out.format.VPS) != 1 {
		t.Error("expected VPS in HEVC format")
	}
}

func TestDriver_AV1(t *testing.T) {
	d := New(&mocks.CodecBackend{}, logger.NewNoop())
	defer d.Release()

	if err := d.Configure(context.Background(), testParams(media.CodecAV1)); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	out := runDriver(t, d, 2)
	if out.err != nil {
		t.Fatalf("unexpected error: %v", out.err)
	}
	if !bytes.Equal(out.format.SequenceHeader, mocks.AV1SequenceHeader) {
		t.Errorf("sequence header = %x", out.format.SequenceHeader)
	}
	if len(out.packets) != 2 {
		t.Errorf("expected 2 packets, got %d", len(out.packets))
	}
}

func TestDriver_WrongOrdinal(t *testing.T) {
	d := New(&mocks.CodecBackend{}, logger.NewNoop())
	defer d.Release()
	ctx := context.Background()

	if err := d.Configure(ctx, testParams(media.CodecAVC)); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	err := d.SubmitFrame(ctx, media.Frame{Ordinal: 1, Image: createTestImage(16, 8)})
	if !errors.Is(err, media.ErrFrameOrdinal) {
		t.Fatalf("expected ErrFrameOrdinal, got %v", err)
	}

	if err := d.SubmitFrame(ctx, media.Frame{Ordinal: 0, Image: createTestImage(16, 8)}); err != nil {
		t.Fatalf("SubmitFrame failed: %v", err)
	}
	err = d.SubmitFrame(ctx, media.Frame{Ordinal: 0, Image: createTestImage(16, 8)})
	if !errors.Is(err, media.ErrFrameOrdinal) {
		t.Errorf("expected ErrFrameOrdinal for duplicate frame, got %v", err)
	}
}

func TestDriver_InvalidState(t *testing.T) {
	ctx := context.Background()
	d := New(&mocks.CodecBackend{}, logger.NewNoop())
	defer d.Release()

	err := d.SubmitFrame(ctx, media.Frame{Ordinal: 0})
	if !errors.Is(err, media.ErrInvalidState) {
		t.Errorf("SubmitFrame before Configure: expected ErrInvalidState, got %v", err)
	}
	if err := d.SignalEndOfInput(); !errors.Is(err, media.ErrInvalidState) {
		t.Errorf("SignalEndOfInput before Configure: expected ErrInvalidState, got %v", err)
	}

	if err := d.Configure(ctx, testParams(media.CodecAVC)); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if err := d.Configure(ctx, testParams(media.CodecAVC)); !errors.Is(err, media.ErrInvalidState) {
		t.Errorf("second Configure: expected ErrInvalidState, got %v", err)
	}
	if err := d.SignalEndOfInput(); !errors.Is(err, media.ErrInvalidState) {
		t.Errorf("SignalEndOfInput without frames: expected ErrInvalidState, got %v", err)
	}

	out := runDriver(t, d, 1)
	if out.err != nil {
		t.Fatalf("unexpected error: %v", out.err)
	}

	err = d.SubmitFrame(ctx, media.Frame{Ordinal: 1})
	if !errors.Is(err, media.ErrInvalidState) {
		t.Errorf("SubmitFrame after end of input: expected ErrInvalidState, got %v", err)
	}

	for _, err := range d.Drain() {
		if !errors.Is(err, media.ErrInvalidState) {
			t.Errorf("second Drain: expected ErrInvalidState, got %v", err)
		}
	}
}

func TestDriver_ConfigureError(t *testing.T) {
	backend := &mocks.CodecBackend{
		StartFunc: func(ctx context.Context, cfg ports.EncoderConfig) (ports.EncoderSession, error) {
			return nil, errors.New("unknown encoder")
		},
	}
	d := New(backend, logger.NewNoop())

	err := d.Configure(context.Background(), testParams(media.CodecAVC))
	if !errors.Is(err, media.ErrCodecConfig) {
		t.Errorf("expected ErrCodecConfig, got %v", err)
	}
	if d.State() != StateFailed {
		t.Errorf("expected failed, got %s", d.State())
	}
	if err := d.Release(); err != nil {
		t.Errorf("Release failed: %v", err)
	}
}

func TestDriver_BackendExitError(t *testing.T) {
	backend := &mocks.CodecBackend{WaitErr: errors.New("exit status 1")}
	d := New(backend, logger.NewNoop())
	defer d.Release()

	if err := d.Configure(context.Background(), testParams(media.CodecAVC)); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	out := runDriver(t, d, 3)

	if !errors.Is(out.err, media.ErrEncoderFault) {
		t.Fatalf("expected ErrEncoderFault, got %v", out.err)
	}
	// The last packet is withheld until the backend exited cleanly.
	for _, p := range out.packets {
		if p.Flags.Has(media.FlagEndOfStream) {
			t.Error("unexpected end-of-stream packet")
		}
	}
	if d.State() != StateFailed {
		t.Errorf("expected failed, got %s", d.State())
	}
}

func TestDriver_RejectedParameters(t *testing.T) {
	// The backend starts, encodes nothing and exits with an error.
	backend := &mocks.CodecBackend{
		EncodeFunc: func(cfg ports.EncoderConfig, ordinal int, frame []byte) []byte {
			return nil
		},
		WaitErr: errors.New("Error while opening encoder"),
	}
	d := New(backend, logger.NewNoop())
	defer d.Release()

	if err := d.Configure(context.Background(), testParams(media.CodecAVC)); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	out := runDriver(t, d, 3)

	if !errors.Is(out.err, media.ErrCodecConfig) {
		t.Fatalf("expected ErrCodecConfig, got %v", out.err)
	}
	if errors.Is(out.err, media.ErrEncoderFault) {
		t.Errorf("rejection should not be an encoder fault: %v", out.err)
	}
	if out.format != nil || len(out.packets) != 0 {
		t.Errorf("expected no output, got format %v and %d packets", out.format, len(out.packets))
	}
	if d.State() != StateFailed {
		t.Errorf("expected failed, got %s", d.State())
	}
}

func TestDriver_DroppedFrames(t *testing.T) {
	backend := &mocks.CodecBackend{
		EncodeFunc: func(cfg ports.EncoderConfig, ordinal int, frame []byte) []byte {
			if ordinal == 1 {
				return nil
			}
			return mocks.H264AccessUnit(ordinal, true)
		},
	}
	d := New(backend, logger.NewNoop())
	defer d.Release()

	if err := d.Configure(context.Background(), testParams(media.CodecAVC)); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	out := runDriver(t, d, 3)
	if !errors.Is(out.err, media.ErrEncoderFault) {
		t.Errorf("expected ErrEncoderFault, got %v", out.err)
	}
}

func TestDriver_SubmitHonorsContext(t *testing.T) {
	d := New(&mocks.CodecBackend{}, logger.NewNoop())
	defer d.Release()

	params := testParams(media.CodecAVC)
	params.BufferCount = 1
	if err := d.Configure(context.Background(), params); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Hold the only input buffer so the submit has to wait.
	buf := <-d.free
	defer func() { d.free <- buf }()

	err := d.SubmitFrame(ctx, media.Frame{Ordinal: 0, Image: createTestImage(16, 8)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDriver_ReleaseIdempotent(t *testing.T) {
	backend := &mocks.CodecBackend{}
	d := New(backend, logger.NewNoop())

	if err := d.Configure(context.Background(), testParams(media.CodecAVC)); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if err := d.SubmitFrame(context.Background(), media.Frame{Ordinal: 0, Image: createTestImage(16, 8)}); err != nil {
		t.Fatalf("SubmitFrame failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		for _, err := range d.Drain() {
			if err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	if err := d.Release(); err != nil {
		t.Errorf("Release failed: %v", err)
	}
	if err := d.Release(); err != nil {
		t.Errorf("second Release failed: %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected drain to fail after release")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("drain did not stop after release")
	}
	if backend.Sessions[0].KillCalls == 0 {
		t.Error("expected backend to be killed")
	}
}

func TestDriver_ScalesImages(t *testing.T) {
	d := New(&mocks.CodecBackend{}, logger.NewNoop())
	d.params = testParams(media.CodecAVC)

	buf := make([]byte, 16*8*4)
	src := image.NewRGBA(image.Rect(0, 0, 32, 16))
	for i := range src.Pix {
		src.Pix[i] = 200
	}
	d.render(buf, src)

	for i, b := range buf {
		if b != 200 {
			t.Fatalf("byte %d = %d, want 200", i, b)
		}
	}

	d.render(buf, nil)
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %d after nil image, want 0", i, b)
		}
	}
}

func BenchmarkDriver_Encode(b *testing.B) {
	img := createTestImage(16, 8)
	for i := 0; i < b.N; i++ {
		d := New(&mocks.CodecBackend{}, logger.NewNoop())
		d.Configure(context.Background(), testParams(media.CodecAVC))
		go func() {
			for j := 0; j < 30; j++ {
				d.SubmitFrame(context.Background(), media.Frame{Ordinal: int64(j), Image: img})
			}
			d.SignalEndOfInput()
		}()
		for range d.Drain() {
		}
		d.Release()
	}
}
