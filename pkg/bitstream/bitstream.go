// Package bitstream splits encoder elementary streams into access units and
// extracts the codec configuration needed by an MP4 sample entry.
//
// H.264 and H.265 are read as Annex-B byte streams and returned in the
// length-prefixed form MP4 samples use, with parameter sets and access unit
// delimiters removed. AV1 is read as a low-overhead OBU stream and returned
// one temporal unit per access unit, without temporal delimiters.
package bitstream

import (
	"errors"
	"fmt"
	"io"

	"github.com/user/framemux/pkg/media"
)

// ErrMalformed is returned for streams that cannot be split.
var ErrMalformed = errors.New("bitstream: malformed stream")

const readChunk = 64 * 1024

// AccessUnit is one coded picture in MP4 sample format. Data is valid until
// the next call to Next.
type AccessUnit struct {
	Data     []byte
	Keyframe bool
}

// Config holds out-of-band codec configuration.
type Config struct {
	VPS            [][]byte
	SPS            [][]byte
	PPS            [][]byte
	SequenceHeader []byte
}

// Ready reports whether c is complete for codec.
func (c Config) Ready(codec media.Codec) bool {
	switch codec {
	case media.CodecAVC:
		return len(c.SPS) > 0 && len(c.PPS) > 0
	case media.CodecHEVC:
		return len(c.VPS) > 0 && len(c.SPS) > 0 && len(c.PPS) > 0
	case media.CodecAV1:
		return len(c.SequenceHeader) > 0
	default:
		return false
	}
}

// Splitter reads access units from an elementary stream.
type Splitter interface {
	// Next returns the next access unit, or io.EOF at the end of the stream.
	Next() (AccessUnit, error)

	// Config returns the configuration seen so far.
	Config() Config
}

// NewSplitter returns a Splitter for codec reading from r.
func NewSplitter(codec media.Codec, r io.Reader) (Splitter, error) {
	switch codec {
	case media.CodecAVC, media.CodecHEVC:
		return newAnnexBSplitter(codec, r), nil
	case media.CodecAV1:
		return newOBUSplitter(r), nil
	default:
		return nil, fmt.Errorf("%w: %s", media.ErrUnsupportedCodec, codec)
	}
}

// reader is a growable read buffer over an io.Reader.
type reader struct {
	r   io.Reader
	buf []byte
	pos int // start of unconsumed data
	eof bool
}

// fill reads more data, compacting consumed bytes first. It returns false
// once the underlying reader is exhausted.
func (b *reader) fill() (bool, error) {
	if b.eof {
		return false, nil
	}
	if b.pos > 0 {
		n := copy(b.buf, b.buf[b.pos:])
		b.buf = b.buf[:n]
		b.pos = 0
	}
	if cap(b.buf)-len(b.buf) < readChunk {
		grown := make([]byte, len(b.buf), 2*cap(b.buf)+readChunk)
		copy(grown, b.buf)
		b.buf = grown
	}
	n, err := b.r.Read(b.buf[len(b.buf):cap(b.buf)])
	b.buf = b.buf[:len(b.buf)+n]
	if err == io.EOF {
		b.eof = true
		return n > 0, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// unread returns the unconsumed bytes.
func (b *reader) unread() []byte {
	return b.buf[b.pos:]
}

func cloneBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}
