// Package audio reads an audio track from an existing media file so it can be
// copied into a new container without re-encoding.
//
// MP4, M4A and MOV files (progressive or fragmented) are read with mp4ff.
// Raw AAC in ADTS framing is read with mediacommon.
package audio

import (
	"bytes"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/user/framemux/pkg/media"
)

// sample locates one source sample. Progressive MP4 samples are read from
// the source on demand; fragmented MP4 and ADTS samples are held in data.
type sample struct {
	offset int64
	size   uint32
	data   []byte
	time   uint64 // decode time in timescale ticks
	dur    uint32
}

// Reader yields the samples of one audio track.
type Reader struct {
	src     io.ReadSeeker
	closer  io.Closer
	format  *media.AudioFormat
	samples []sample
	started bool
	buf     []byte
}

// Open opens path and reads the format of its first audio track.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", media.ErrUnreadableSource, path, err)
	}
	return NewFileReader(f)
}

// NewFileReader is like NewReader but takes ownership of f, which is closed
// by Close or when reading the format fails.
func NewFileReader(f io.ReadSeekCloser) (*Reader, error) {
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader reads the format of the first audio track in rs. The caller
// keeps ownership of rs.
func NewReader(rs io.ReadSeeker) (*Reader, error) {
	head := make([]byte, 12)
	n, err := io.ReadFull(rs, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("%w: read header: %w", media.ErrUnreadableSource, err)
	}
	head = head[:n]
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seek: %w", media.ErrUnreadableSource, err)
	}

	r := &Reader{src: rs}
	switch {
	case isMP4(head):
		err = r.readMP4()
	case isADTS(head) || bytes.HasPrefix(head, []byte("ID3")):
		err = r.readADTS()
	default:
		err = fmt.Errorf("%w: unrecognized container", media.ErrUnreadableSource)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func isMP4(head []byte) bool {
	if len(head) < 8 {
		return false
	}
	switch string(head[4:8]) {
	case "ftyp", "styp", "moov", "mdat", "free", "skip", "wide":
		return true
	}
	return false
}

func isADTS(head []byte) bool {
	return len(head) >= 2 && head[0] == 0xFF && head[1]&0xF6 == 0xF0
}

// Format returns the audio format of the track.
func (r *Reader) Format() *media.AudioFormat {
	return r.format
}

// SampleCount returns the number of samples in the track.
func (r *Reader) SampleCount() int {
	return len(r.samples)
}

// Packets returns the track's samples in decode order. Timestamps start at
// zero and are in microseconds. A yielded packet's Data is only valid until
// the next iteration. Packets can be called once.
func (r *Reader) Packets() iter.Seq2[*media.Packet, error] {
	if r.started {
		return func(yield func(*media.Packet, error) bool) {
			yield(nil, fmt.Errorf("%w: audio packets already read", media.ErrInvalidState))
		}
	}
	r.started = true

	return func(yield func(*media.Packet, error) bool) {
		if len(r.samples) == 0 {
			return
		}
		base := r.samples[0].time
		timescale := uint64(r.format.Timescale)
		pkt := &media.Packet{Kind: media.KindAudio}

		for i := range r.samples {
			s := &r.samples[i]
			data, err := r.read(s)
			if err != nil {
				yield(nil, err)
				return
			}
			pkt.SetPayload(data, 0, len(data))
			pkt.PTS = toMicros(s.time-base, timescale)
			pkt.Duration = toMicros(uint64(s.dur), timescale)
			pkt.Flags = 0
			if i == len(r.samples)-1 {
				pkt.Flags = media.FlagEndOfStream
			}
			if !yield(pkt, nil) {
				return
			}
		}
	}
}

func (r *Reader) read(s *sample) ([]byte, error) {
	if s.data != nil {
		return s.data, nil
	}
	if cap(r.buf) < int(s.size) {
		r.buf = make([]byte, s.size)
	}
	buf := r.buf[:s.size]
	if _, err := r.src.Seek(s.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seek to sample: %w", media.ErrUnreadableSource, err)
	}
	if _, err := io.ReadFull(r.src, buf); err != nil {
		return nil, fmt.Errorf("%w: read sample: %w", media.ErrUnreadableSource, err)
	}
	return buf, nil
}

// Close closes the file opened by Open.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	c := r.closer
	r.closer = nil
	return c.Close()
}

// toMicros converts timescale ticks to microseconds, rounding to nearest.
func toMicros(ticks, timescale uint64) int64 {
	return int64((ticks*1_000_000 + timescale/2) / timescale)
}
