package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/user/framemux/pkg/adapters/logger"
	"github.com/user/framemux/pkg/media"
	"github.com/user/framemux/pkg/mocks"
	"github.com/user/framemux/pkg/ports"
	"github.com/user/framemux/pkg/probe"
	"github.com/user/framemux/pkg/profile"
)

const outPath = "/out/video.mp4"

func testProfile() media.EncodingProfile {
	return media.EncodingProfile{
		Codec:      "avc",
		Width:      320,
		Height:     240,
		FPS:        1,
		BitRate:    1_500_000,
		OutputPath: outPath,
	}
}

func newRunner(backend *mocks.CodecBackend, fs *mocks.FileSystem) *Runner {
	return New(backend, backend, fs, logger.NewNoop(), profile.Options{AllowHardware: true})
}

// adtsStream returns n AAC-LC frames at 48 kHz stereo in ADTS framing.
func adtsStream(n int) []byte {
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		payload := []byte{0x21, 0x10, byte(i), 0x04}
		l := 7 + len(payload)
		buf.Write([]byte{0xFF, 0xF1, 0x4C, 0x80 | byte(l>>11)&0x03, byte(l >> 3), byte(l&0x07)<<5 | 0x1F, 0xFC})
		buf.Write(payload)
	}
	return buf.Bytes()
}

func probeOutput(t *testing.T, fs *mocks.FileSystem) *probe.Info {
	t.Helper()
	data, ok := fs.GetFile(outPath)
	if !ok {
		t.Fatal("output file not found")
	}
	info, err := probe.Reader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("probe output: %v", err)
	}
	return info
}

func TestRunner_VideoOnly(t *testing.T) {
	backend := &mocks.CodecBackend{}
	fs := mocks.NewFileSystem()
	r := newRunner(backend, fs)

	job := NewJob(testProfile(), mocks.NewFrameSource(10, 320, 240))
	c := r.Run(context.Background(), job)

	if !c.OK() {
		t.Fatalf("Run failed: %v", c.Err)
	}
	if c.JobID != job.ID {
		t.Errorf("JobID = %v, want %v", c.JobID, job.ID)
	}
	if c.VideoSamples != 10 {
		t.Errorf("VideoSamples = %d, want 10", c.VideoSamples)
	}
	if c.AudioSamples != 0 {
		t.Errorf("AudioSamples = %d, want 0", c.AudioSamples)
	}
	if c.Duration < 9*time.Second {
		t.Errorf("Duration = %v, want at least 9s", c.Duration)
	}
	if c.Encoder != "libx264" {
		t.Errorf("Encoder = %q, want libx264", c.Encoder)
	}
	if c.FileSize == 0 {
		t.Error("FileSize = 0")
	}

	info := probeOutput(t, fs)
	if len(info.Tracks) != 1 {
		t.Fatalf("got %d tracks, want 1", len(info.Tracks))
	}
	v := info.VideoTrack()
	if v == nil || v.SampleCount != 10 {
		t.Fatalf("video track = %+v, want 10 samples", v)
	}
	if v.Codec != "avc" {
		t.Errorf("codec = %q, want avc", v.Codec)
	}

	if len(backend.StartCalls) != 1 {
		t.Fatalf("backend started %d times", len(backend.StartCalls))
	}
	cfg := backend.StartCalls[0]
	if cfg.Width != 320 || cfg.Height != 240 || cfg.BitRate != 1_500_000 {
		t.Errorf("encoder config = %+v", cfg)
	}
}

func TestRunner_FramesPerImage(t *testing.T) {
	backend := &mocks.CodecBackend{}
	fs := mocks.NewFileSystem()
	r := newRunner(backend, fs)

	p := testProfile()
	p.FPS = 15
	p.FramesPerImage = 3
	frames := mocks.NewFrameSource(4, 320, 240)
	c := r.Run(context.Background(), NewJob(p, frames))
	if !c.OK() {
		t.Fatalf("Run failed: %v", c.Err)
	}
	if c.VideoSamples != 12 {
		t.Errorf("VideoSamples = %d, want 12", c.VideoSamples)
	}
	if got := backend.Sessions[0].FrameCount(); got != 12 {
		t.Errorf("encoder received %d frames, want 12", got)
	}
	if len(frames.FrameCalls) != 4 {
		t.Errorf("read %d images, want 4", len(frames.FrameCalls))
	}
}

func TestRunner_WithAudio(t *testing.T) {
	for _, mode := range []AudioMode{AudioSequential, AudioInterleaved} {
		t.Run(string(mode), func(t *testing.T) {
			backend := &mocks.CodecBackend{}
			fs := mocks.NewFileSystem()
			fs.AddFile("/in/audio.aac", adtsStream(100))
			r := newRunner(backend, fs)

			p := testProfile()
			p.AudioSourcePath = "/in/audio.aac"
			job := NewJob(p, mocks.NewFrameSource(3, 320, 240))
			job.AudioMode = mode

			c := r.Run(context.Background(), job)
			if !c.OK() {
				t.Fatalf("Run failed: %v", c.Err)
			}
			if c.AudioSamples != 100 {
				t.Errorf("AudioSamples = %d, want 100", c.AudioSamples)
			}

			info := probeOutput(t, fs)
			a := info.AudioTrack()
			if a == nil {
				t.Fatal("no audio track")
			}
			if a.SampleCount != 100 {
				t.Errorf("audio samples = %d, want 100", a.SampleCount)
			}
			// 100 frames of 1024 samples at 48 kHz
			want := time.Duration(100*1024) * time.Second / 48000
			if a.Duration != want {
				t.Errorf("audio duration = %v, want %v", a.Duration, want)
			}
			if a.Timescale != 48000 {
				t.Errorf("audio timescale = %d, want 48000", a.Timescale)
			}
		})
	}
}

type trackedFile struct {
	*bytes.Reader
	closes int
}

func (f *trackedFile) Close() error {
	f.closes++
	return nil
}

func TestRunner_AudioReadFromOpenFile(t *testing.T) {
	backend := &mocks.CodecBackend{}
	fs := mocks.NewFileSystem()
	file := &trackedFile{Reader: bytes.NewReader(adtsStream(20))}
	fs.OpenFunc = func(path string) (io.ReadSeekCloser, error) { return file, nil }
	fs.ReadFileFunc = func(path string) ([]byte, error) {
		t.Errorf("ReadFile(%s) called", path)
		return nil, errors.New("unexpected")
	}
	r := newRunner(backend, fs)

	p := testProfile()
	p.AudioSourcePath = "/in/audio.aac"
	c := r.Run(context.Background(), NewJob(p, mocks.NewFrameSource(2, 320, 240)))
	if !c.OK() {
		t.Fatalf("Run failed: %v", c.Err)
	}
	if c.AudioSamples != 20 {
		t.Errorf("AudioSamples = %d, want 20", c.AudioSamples)
	}
	if len(fs.OpenCalls) != 1 || fs.OpenCalls[0] != "/in/audio.aac" {
		t.Errorf("OpenCalls = %v", fs.OpenCalls)
	}
	if file.closes != 1 {
		t.Errorf("audio file closed %d times, want 1", file.closes)
	}
}

func TestRunner_UnsupportedCodec(t *testing.T) {
	backend := &mocks.CodecBackend{Listed: map[string]bool{"libx264": true}}
	fs := mocks.NewFileSystem()
	r := newRunner(backend, fs)

	p := testProfile()
	p.Codec = "hevc"
	c := r.Run(context.Background(), NewJob(p, mocks.NewFrameSource(2, 320, 240)))

	if !errors.Is(c.Err, media.ErrUnsupportedCodec) {
		t.Fatalf("err = %v, want ErrUnsupportedCodec", c.Err)
	}
	if c.Kind != media.KindConfig {
		t.Errorf("Kind = %q, want config", c.Kind)
	}
	if len(fs.CreateCalls) != 0 {
		t.Errorf("output created: %v", fs.CreateCalls)
	}
	if len(backend.StartCalls) != 0 {
		t.Error("backend started")
	}
}

func TestRunner_ConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Job)
		wantErr error
	}{
		{"odd width", func(j *Job) { j.Profile.Width = 321 }, media.ErrCodecConfig},
		{"zero fps", func(j *Job) { j.Profile.FPS = 0 }, media.ErrCodecConfig},
		{"no frames", func(j *Job) { j.Frames = mocks.NewFrameSource(0, 320, 240) }, media.ErrCodecConfig},
		{"bad audio mode", func(j *Job) { j.AudioMode = "later" }, media.ErrCodecConfig},
		{"missing audio", func(j *Job) { j.Profile.AudioSourcePath = "/in/missing.m4a" }, media.ErrUnreadableSource},
		{"unknown codec", func(j *Job) { j.Profile.Codec = "vp8" }, media.ErrUnsupportedCodec},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &mocks.CodecBackend{}
			fs := mocks.NewFileSystem()
			r := newRunner(backend, fs)

			job := NewJob(testProfile(), mocks.NewFrameSource(2, 320, 240))
			tt.modify(&job)
			c := r.Run(context.Background(), job)

			if !errors.Is(c.Err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", c.Err, tt.wantErr)
			}
			if c.Kind != media.KindConfig {
				t.Errorf("Kind = %q, want config", c.Kind)
			}
			if len(fs.CreateCalls) != 0 {
				t.Errorf("output created: %v", fs.CreateCalls)
			}
		})
	}
}

func TestRunner_AudioWithoutTrack(t *testing.T) {
	backend := &mocks.CodecBackend{}
	fs := mocks.NewFileSystem()
	fs.AddFile("/in/notes.txt", []byte("these are not audio samples"))
	r := newRunner(backend, fs)

	p := testProfile()
	p.AudioSourcePath = "/in/notes.txt"
	c := r.Run(context.Background(), NewJob(p, mocks.NewFrameSource(2, 320, 240)))
	if !errors.Is(c.Err, media.ErrUnreadableSource) {
		t.Fatalf("err = %v, want ErrUnreadableSource", c.Err)
	}
	if len(backend.StartCalls) != 0 {
		t.Error("backend started")
	}
}

func TestRunner_EncoderFailureRemovesOutput(t *testing.T) {
	backend := &mocks.CodecBackend{WaitErr: errors.New("exit status 1")}
	fs := mocks.NewFileSystem()
	r := newRunner(backend, fs)

	c := r.Run(context.Background(), NewJob(testProfile(), mocks.NewFrameSource(5, 320, 240)))
	if !errors.Is(c.Err, media.ErrEncoderFault) {
		t.Fatalf("err = %v, want ErrEncoderFault", c.Err)
	}
	if c.Kind != media.KindRuntime {
		t.Errorf("Kind = %q, want runtime", c.Kind)
	}
	if _, ok := fs.GetFile(outPath); ok {
		t.Error("partial output was not removed")
	}
	if len(fs.RemoveCalls) != 1 || fs.RemoveCalls[0] != outPath {
		t.Errorf("RemoveCalls = %v", fs.RemoveCalls)
	}
}

func TestRunner_RejectedParametersAreConfigErrors(t *testing.T) {
	backend := &mocks.CodecBackend{
		EncodeFunc: func(cfg ports.EncoderConfig, ordinal int, frame []byte) []byte {
			return nil
		},
		WaitErr: errors.New("Error while opening encoder"),
	}
	fs := mocks.NewFileSystem()
	r := newRunner(backend, fs)

	c := r.Run(context.Background(), NewJob(testProfile(), mocks.NewFrameSource(5, 320, 240)))
	if !errors.Is(c.Err, media.ErrCodecConfig) {
		t.Fatalf("err = %v, want ErrCodecConfig", c.Err)
	}
	if c.Kind != media.KindConfig {
		t.Errorf("Kind = %q, want config", c.Kind)
	}
	if len(fs.CreateCalls) != 0 {
		t.Errorf("output file created: %v", fs.CreateCalls)
	}
}

func TestRunner_FrameSourceError(t *testing.T) {
	backend := &mocks.CodecBackend{}
	fs := mocks.NewFileSystem()
	r := newRunner(backend, fs)

	frames := mocks.NewFrameSource(8, 320, 240)
	frames.FrameFunc = func(i int) (image.Image, error) {
		if i == 5 {
			return nil, errors.New("decode failed")
		}
		return image.NewRGBA(image.Rect(0, 0, 320, 240)), nil
	}

	c := r.Run(context.Background(), NewJob(testProfile(), frames))
	if c.Err == nil || !strings.Contains(c.Err.Error(), "decode failed") {
		t.Fatalf("err = %v, want frame source error", c.Err)
	}
	if _, ok := fs.GetFile(outPath); ok {
		t.Error("partial output was not removed")
	}
}

func TestRunner_Timeout(t *testing.T) {
	backend := &mocks.CodecBackend{}
	fs := mocks.NewFileSystem()
	r := newRunner(backend, fs)

	frames := mocks.NewFrameSource(10, 320, 240)
	frames.FrameFunc = func(i int) (image.Image, error) {
		time.Sleep(30 * time.Millisecond)
		return image.NewRGBA(image.Rect(0, 0, 320, 240)), nil
	}
	job := NewJob(testProfile(), frames)
	job.Timeout = 50 * time.Millisecond

	c := r.Run(context.Background(), job)
	if !errors.Is(c.Err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", c.Err)
	}
	if !errors.Is(c.Err, media.ErrEncoderFault) {
		t.Errorf("err = %v, want ErrEncoderFault", c.Err)
	}
	if _, ok := fs.GetFile(outPath); ok {
		t.Error("partial output was not removed")
	}
}

func TestRunner_Start(t *testing.T) {
	backend := &mocks.CodecBackend{}
	fs := mocks.NewFileSystem()
	r := newRunner(backend, fs)

	done := make(chan Completion, 2)
	job := NewJob(testProfile(), mocks.NewFrameSource(3, 320, 240))
	r.Start(context.Background(), job, func(c Completion) { done <- c })

	select {
	case c := <-done:
		if !c.OK() {
			t.Fatalf("job failed: %v", c.Err)
		}
		if c.VideoSamples != 3 {
			t.Errorf("VideoSamples = %d, want 3", c.VideoSamples)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("no completion")
	}

	select {
	case <-done:
		t.Error("completion delivered twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRunner_Execute(t *testing.T) {
	r := newRunner(&mocks.CodecBackend{}, mocks.NewFileSystem())

	var stage Stage[Job, Completion] = r
	p := testProfile()
	p.Codec = "h266"
	_, err := stage.Execute(context.Background(), NewJob(p, mocks.NewFrameSource(1, 320, 240)))
	if !errors.Is(err, media.ErrUnsupportedCodec) {
		t.Errorf("err = %v, want ErrUnsupportedCodec", err)
	}
}

func TestParseAudioMode(t *testing.T) {
	tests := []struct {
		in      string
		want    AudioMode
		wantErr bool
	}{
		{"", AudioSequential, false},
		{"sequential", AudioSequential, false},
		{"interleaved", AudioInterleaved, false},
		{"random", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAudioMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAudioMode(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseAudioMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
