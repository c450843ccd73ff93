// Package ffmpegenc runs an ffmpeg process as a video encoder backend: packed
// RGBA frames are written to its stdin and the encoded elementary stream is
// read from its stdout.
package ffmpegenc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/user/framemux/pkg/ports"
	"github.com/user/framemux/pkg/profile"
)

// Options configures the backend.
type Options struct {
	// FFmpegPath is an optional custom path to the ffmpeg binary.
	FFmpegPath string
	// VerifyHardware runs a one-frame test encode for each listed hardware
	// encoder and reports only those that work.
	VerifyHardware bool
	Logger         ports.Logger
}

// Backend implements ports.CodecBackend and ports.EncoderLister.
type Backend struct {
	opts Options
	log  ports.Logger
}

// New creates a Backend.
func New(opts Options) *Backend {
	b := &Backend{opts: opts}
	if opts.Logger != nil {
		b.log = opts.Logger.WithComponent("ffmpeg")
	}
	return b
}

// Start launches ffmpeg for cfg.
func (b *Backend) Start(ctx context.Context, cfg ports.EncoderConfig) (ports.EncoderSession, error) {
	path, err := FindFFmpeg(b.opts.FFmpegPath)
	if err != nil {
		return nil, err
	}

	args, err := buildArgs(cfg)
	if err != nil {
		return nil, err
	}
	b.debug("Starting %s: %v", cfg.Encoder, args)

	cmd := exec.CommandContext(ctx, path, args...)
	s := &session{cmd: cmd}
	cmd.Stderr = &s.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	s.stdin = stdin
	s.stdout = stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	return s, nil
}

// Encoders lists the video encoders of the ffmpeg build.
func (b *Backend) Encoders(ctx context.Context) (map[string]bool, error) {
	path, err := FindFFmpeg(b.opts.FFmpegPath)
	if err != nil {
		return nil, err
	}

	out, err := exec.CommandContext(ctx, path, "-hide_banner", "-encoders").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list encoders: %w", err)
	}
	encoders := parseEncoders(string(out))

	if b.opts.VerifyHardware {
		b.dropUnusable(encoders, func(name string) error {
			return b.testEncode(ctx, path, name)
		})
	}
	return encoders, nil
}

// dropUnusable removes the hardware encoders for which test fails. ffmpeg
// lists the hardware encoders it was built with whether or not the device
// exists.
func (b *Backend) dropUnusable(encoders map[string]bool, test func(name string) error) {
	for name := range encoders {
		if !profile.IsHardware(name) {
			continue
		}
		if err := test(name); err != nil {
			b.debug("Hardware encoder %s unusable: %v", name, err)
			delete(encoders, name)
		}
	}
}

// testEncode encodes one synthetic frame with encoder and discards the result.
func (b *Backend) testEncode(ctx context.Context, path, encoder string) error {
	cmd := exec.CommandContext(ctx, path,
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-f", "lavfi", "-i", "color=c=black:s=256x256:d=0.1",
		"-frames:v", "1", "-c:v", encoder, "-f", "null", "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s", err, lastLine(stderr.Bytes()))
	}
	return nil
}

func (b *Backend) debug(msg string, args ...interface{}) {
	if b.log != nil {
		b.log.Debug(msg, args...)
	}
}

var (
	_ ports.CodecBackend  = (*Backend)(nil)
	_ ports.EncoderLister = (*Backend)(nil)
)

// session is one running ffmpeg process.
type session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr bytes.Buffer

	mu       sync.Mutex
	waitOnce sync.Once
	waitErr  error
	closed   bool
}

func (s *session) Write(p []byte) (int, error) {
	return s.stdin.Write(p)
}

func (s *session) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *session) CloseInput() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.stdin.Close()
}

func (s *session) Wait() error {
	s.waitOnce.Do(func() {
		if err := s.cmd.Wait(); err != nil {
			s.waitErr = fmt.Errorf("%w: %v: %s", ErrProcessFailed, err, lastLine(s.stderr.Bytes()))
		}
	})
	return s.waitErr
}

func (s *session) Kill() error {
	if s.cmd.Process == nil {
		return nil
	}
	// Kill fails with os.ErrProcessDone once the process has been waited for.
	_ = s.cmd.Process.Kill()
	s.CloseInput()
	s.Wait()
	return nil
}

// lastLine returns the last non-empty line of ffmpeg's stderr.
func lastLine(b []byte) string {
	lines := bytes.Split(bytes.TrimSpace(b), []byte("\n"))
	if len(lines) == 0 {
		return ""
	}
	return string(bytes.TrimSpace(lines[len(lines)-1]))
}
