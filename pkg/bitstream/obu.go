package bitstream

import (
	"fmt"
	"io"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/av1"
)

const (
	obuHasSizeField = 0x02
	obuHasExtension = 0x04
)

type obuSplitter struct {
	in  reader
	cfg Config

	tu       []byte // temporal unit being collected, without delimiters
	keyframe bool
	out      []byte
}

func newOBUSplitter(r io.Reader) *obuSplitter {
	return &obuSplitter{in: reader{r: r}}
}

func (s *obuSplitter) Config() Config {
	return s.cfg
}

func (s *obuSplitter) Next() (AccessUnit, error) {
	for {
		obu, err := s.nextOBU()
		if err == io.EOF {
			if len(s.tu) == 0 {
				return AccessUnit{}, io.EOF
			}
			return s.emit(), nil
		}
		if err != nil {
			return AccessUnit{}, err
		}

		switch obuType(obu) {
		case av1.OBUTypeTemporalDelimiter:
			if len(s.tu) > 0 {
				return s.emit(), nil
			}
		case av1.OBUTypeSequenceHeader:
			if s.cfg.SequenceHeader == nil {
				s.cfg.SequenceHeader = cloneBytes(obu)
			}
			s.keyframe = true
			s.tu = append(s.tu, obu...)
		case obuTypePadding:
		default:
			s.tu = append(s.tu, obu...)
		}
	}
}

const obuTypePadding av1.OBUType = 15

func obuType(obu []byte) av1.OBUType {
	return av1.OBUType((obu[0] >> 3) & 0x0F)
}

// emit hands out the collected temporal unit and starts a new one.
func (s *obuSplitter) emit() AccessUnit {
	s.out = append(s.out[:0], s.tu...)
	au := AccessUnit{Data: s.out, Keyframe: s.keyframe}
	s.tu = s.tu[:0]
	s.keyframe = false
	return au
}

// nextOBU returns the next complete OBU including header and size field.
// The returned slice aliases the read buffer until the next call.
func (s *obuSplitter) nextOBU() ([]byte, error) {
	for {
		data := s.in.unread()
		if n, ok, err := obuLength(data); err != nil {
			return nil, err
		} else if ok {
			obu := data[:n]
			s.in.pos += n
			return obu, nil
		}

		more, err := s.in.fill()
		if err != nil {
			return nil, err
		}
		if !more {
			if len(s.in.unread()) > 0 {
				return nil, fmt.Errorf("%w: truncated OBU", ErrMalformed)
			}
			return nil, io.EOF
		}
	}
}

// obuLength returns the total length of the OBU at the start of data, or
// ok=false if data does not yet hold all of it.
func obuLength(data []byte) (n int, ok bool, err error) {
	if len(data) == 0 {
		return 0, false, nil
	}
	header := data[0]
	if header&0x80 != 0 {
		return 0, false, fmt.Errorf("%w: forbidden bit set", ErrMalformed)
	}
	if header&obuHasSizeField == 0 {
		return 0, false, fmt.Errorf("%w: OBU without size field", ErrMalformed)
	}

	offset := 1
	if header&obuHasExtension != 0 {
		offset++
	}
	size, sizeLen, complete := readLeb128(data[min(offset, len(data)):])
	if !complete {
		return 0, false, nil
	}
	total := offset + sizeLen + int(size)
	if total > len(data) {
		return 0, false, nil
	}
	return total, true, nil
}

// readLeb128 decodes an unsigned LEB128 value.
func readLeb128(data []byte) (value uint64, n int, complete bool) {
	for i := 0; i < 8; i++ {
		if i >= len(data) {
			return 0, 0, false
		}
		b := data[i]
		value |= uint64(b&0x7F) << (i * 7)
		if b&0x80 == 0 {
			return value, i + 1, true
		}
	}
	return value, 8, true
}

// SequenceHeaderInfo holds the fields of an AV1 sequence header that the
// av1C box repeats.
type SequenceHeaderInfo struct {
	Profile uint8
	Level   uint8
	Tier    uint8
}

// ParseSequenceHeader reads the leading fields of a sequence header OBU.
// A level that cannot be determined defaults to 4.0.
func ParseSequenceHeader(obu []byte) (SequenceHeaderInfo, error) {
	info := SequenceHeaderInfo{Level: 8}
	if len(obu) < 2 || obuType(obu) != av1.OBUTypeSequenceHeader {
		return info, fmt.Errorf("%w: not a sequence header", ErrMalformed)
	}

	var sh av1.SequenceHeader
	if err := sh.Unmarshal(obu); err != nil {
		return info, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	offset := 1
	if obu[0]&obuHasExtension != 0 {
		offset++
	}
	_, sizeLen, _ := readLeb128(obu[offset:])
	br := bitReader{data: obu[offset+sizeLen:]}

	info.Profile = uint8(br.bits(3))
	br.bits(1) // still_picture
	reduced := br.bits(1) == 1
	if reduced {
		info.Level = uint8(br.bits(5))
		return info, br.err
	}

	timingInfo := br.bits(1) == 1
	if timingInfo {
		// Timing and decoder model info shift the operating points by a
		// variable amount; keep the default level.
		return info, br.err
	}
	br.bits(1)  // initial_display_delay_present_flag
	br.bits(5)  // operating_points_cnt_minus_1
	br.bits(12) // operating_point_idc[0]
	info.Level = uint8(br.bits(5))
	if info.Level > 7 {
		info.Tier = uint8(br.bits(1))
	}
	return info, br.err
}

type bitReader struct {
	data []byte
	pos  int
	err  error
}

func (r *bitReader) bits(n int) uint32 {
	var v uint32
	for i := 0; i < n; i++ {
		if r.pos/8 >= len(r.data) {
			r.err = fmt.Errorf("%w: short sequence header", ErrMalformed)
			return 0
		}
		bit := (r.data[r.pos/8] >> (7 - r.pos%8)) & 1
		v = v<<1 | uint32(bit)
		r.pos++
	}
	return v
}
