package mocks

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/user/framemux/pkg/media"
	"github.com/user/framemux/pkg/ports"
)

// CodecBackend is a mock implementation of ports.CodecBackend and
// ports.EncoderLister. Sessions turn each complete input frame into one
// synthetic access unit of the configured codec.
type CodecBackend struct {
	StartFunc    func(ctx context.Context, cfg ports.EncoderConfig) (ports.EncoderSession, error)
	EncodeFunc   func(cfg ports.EncoderConfig, ordinal int, frame []byte) []byte
	EncodersFunc func(ctx context.Context) (map[string]bool, error)

	// Listed is returned by Encoders when EncodersFunc is nil.
	Listed map[string]bool
	// WaitErr is returned by the Wait method of every session.
	WaitErr error

	mu sync.Mutex
	// Recorded calls for verification
	StartCalls    []ports.EncoderConfig
	Sessions      []*EncoderSession
	EncodersCalls int
}

func (m *CodecBackend) Start(ctx context.Context, cfg ports.EncoderConfig) (ports.EncoderSession, error) {
	m.mu.Lock()
	m.StartCalls = append(m.StartCalls, cfg)
	m.mu.Unlock()
	if m.StartFunc != nil {
		return m.StartFunc(ctx, cfg)
	}

	encode := m.EncodeFunc
	if encode == nil {
		encode = DefaultEncode
	}
	s := NewEncoderSession(cfg, encode)
	s.WaitErr = m.WaitErr
	m.mu.Lock()
	m.Sessions = append(m.Sessions, s)
	m.mu.Unlock()
	return s, nil
}

func (m *CodecBackend) Encoders(ctx context.Context) (map[string]bool, error) {
	m.mu.Lock()
	m.EncodersCalls++
	m.mu.Unlock()
	if m.EncodersFunc != nil {
		return m.EncodersFunc(ctx)
	}
	if m.Listed != nil {
		return m.Listed, nil
	}
	return map[string]bool{"libx264": true, "libx265": true, "libsvtav1": true}, nil
}

var (
	_ ports.CodecBackend  = (*CodecBackend)(nil)
	_ ports.EncoderLister = (*CodecBackend)(nil)
)

// DefaultEncode produces one access unit per frame; a keyframe starts every
// GOP.
func DefaultEncode(cfg ports.EncoderConfig, ordinal int, frame []byte) []byte {
	gop := cfg.GOPSize
	if gop < 1 {
		gop = 1
	}
	key := ordinal%gop == 0
	switch cfg.Codec {
	case media.CodecHEVC:
		return HEVCAccessUnit(ordinal, key)
	case media.CodecAV1:
		return AV1TemporalUnit(ordinal, key)
	default:
		return H264AccessUnit(ordinal, key)
	}
}

// EncoderSession is an in-memory ports.EncoderSession.
type EncoderSession struct {
	cfg    ports.EncoderConfig
	encode func(cfg ports.EncoderConfig, ordinal int, frame []byte) []byte

	mu          sync.Mutex
	cond        *sync.Cond
	pending     []byte
	out         bytes.Buffer
	inputClosed bool
	killed      bool

	// Frames counts the complete frames received.
	Frames int
	// WriteErr fails writes once Frames reaches FailAtFrame.
	WriteErr    error
	FailAtFrame int
	WaitErr     error
	KillCalls   int
}

// NewEncoderSession creates a session for cfg.
func NewEncoderSession(cfg ports.EncoderConfig, encode func(cfg ports.EncoderConfig, ordinal int, frame []byte) []byte) *EncoderSession {
	s := &EncoderSession{cfg: cfg, encode: encode}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *EncoderSession) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.killed || s.inputClosed {
		return 0, io.ErrClosedPipe
	}
	if s.WriteErr != nil && s.Frames >= s.FailAtFrame {
		return 0, s.WriteErr
	}

	frameSize := s.cfg.Width * s.cfg.Height * 4
	s.pending = append(s.pending, p...)
	for frameSize > 0 && len(s.pending) >= frameSize {
		s.out.Write(s.encode(s.cfg, s.Frames, s.pending[:frameSize]))
		s.pending = s.pending[frameSize:]
		s.Frames++
	}
	s.cond.Broadcast()
	return len(p), nil
}

func (s *EncoderSession) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.out.Len() == 0 && !s.inputClosed && !s.killed {
		s.cond.Wait()
	}
	if s.killed {
		return 0, io.ErrClosedPipe
	}
	if s.out.Len() == 0 {
		return 0, io.EOF
	}
	return s.out.Read(p)
}

func (s *EncoderSession) CloseInput() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputClosed = true
	s.cond.Broadcast()
	return nil
}

func (s *EncoderSession) Wait() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.WaitErr
}

func (s *EncoderSession) Kill() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.KillCalls++
	s.killed = true
	s.cond.Broadcast()
	return nil
}

// FrameCount returns the number of complete frames received.
func (s *EncoderSession) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Frames
}

var _ ports.EncoderSession = (*EncoderSession)(nil)
