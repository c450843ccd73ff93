package bitstream

import (
	"bytes"
	"fmt"
	"io"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"

	"github.com/user/framemux/pkg/media"
)

var startCode = []byte{0, 0, 1}

type annexBSplitter struct {
	codec media.Codec
	in    reader
	cfg   Config

	started bool     // first start code consumed
	nalus   [][]byte // NAL units of the access unit being collected
	hasVCL  bool
	held    []byte // NAL unit that begins the next access unit
}

func newAnnexBSplitter(codec media.Codec, r io.Reader) *annexBSplitter {
	return &annexBSplitter{codec: codec, in: reader{r: r}}
}

func (s *annexBSplitter) Config() Config {
	return s.cfg
}

func (s *annexBSplitter) Next() (AccessUnit, error) {
	s.nalus = s.nalus[:0]
	s.hasVCL = false
	if s.held != nil {
		s.add(s.held)
		s.held = nil
	}

	for {
		nalu, err := s.nextNALU()
		if err == io.EOF {
			if !s.hasVCL {
				return AccessUnit{}, io.EOF
			}
			return s.emit()
		}
		if err != nil {
			return AccessUnit{}, err
		}
		if len(nalu) == 0 {
			continue
		}

		if s.hasVCL && s.startsAccessUnit(nalu) {
			s.held = nalu
			return s.emit()
		}
		s.add(nalu)
	}
}

// nextNALU returns a copy of the next NAL unit without its start code.
func (s *annexBSplitter) nextNALU() ([]byte, error) {
	for !s.started {
		data := s.in.unread()
		if i := bytes.Index(data, startCode); i >= 0 {
			s.in.pos += i + len(startCode)
			s.started = true
			break
		}
		// Keep the last two bytes; they may begin a start code.
		if len(data) > 2 {
			s.in.pos += len(data) - 2
		}
		more, err := s.in.fill()
		if err != nil {
			return nil, err
		}
		if !more {
			return nil, io.EOF
		}
	}

	searched := 0
	for {
		data := s.in.unread()
		if i := bytes.Index(data[searched:], startCode); i >= 0 {
			end := searched + i
			nalu := cloneBytes(bytes.TrimRight(data[:end], "\x00"))
			s.in.pos += end + len(startCode)
			return nalu, nil
		}
		if len(data) > 2 {
			searched = len(data) - 2
		}
		more, err := s.in.fill()
		if err != nil {
			return nil, err
		}
		if !more {
			if len(data) == 0 {
				return nil, io.EOF
			}
			nalu := cloneBytes(data)
			s.in.pos += len(data)
			s.started = false
			return nalu, nil
		}
	}
}

// startsAccessUnit reports whether nalu begins a new access unit, given that
// the current one already holds a picture.
func (s *annexBSplitter) startsAccessUnit(nalu []byte) bool {
	if s.codec == media.CodecHEVC {
		if len(nalu) < 3 {
			return false
		}
		typ := h265.NALUType((nalu[0] >> 1) & 0x3F)
		switch {
		case typ < 32:
			// first_slice_segment_in_pic_flag
			return nalu[2]&0x80 != 0
		case typ == h265.NALUType_AUD_NUT,
			typ == h265.NALUType_VPS_NUT,
			typ == h265.NALUType_SPS_NUT,
			typ == h265.NALUType_PPS_NUT,
			typ == h265.NALUType_PREFIX_SEI_NUT,
			typ >= 41 && typ <= 44,
			typ >= 48 && typ <= 55:
			return true
		}
		return false
	}

	if len(nalu) < 2 {
		return false
	}
	typ := h264.NALUType(nalu[0] & 0x1F)
	switch typ {
	case h264.NALUTypeNonIDR, h264.NALUTypeIDR:
		// first_mb_in_slice == 0 is coded as a single 1 bit.
		return nalu[1]&0x80 != 0
	case h264.NALUTypeAccessUnitDelimiter,
		h264.NALUTypeSPS,
		h264.NALUTypePPS,
		h264.NALUTypeSEI:
		return true
	}
	return typ >= 14 && typ <= 18
}

// add appends nalu to the current access unit, diverting parameter sets and
// delimiters.
func (s *annexBSplitter) add(nalu []byte) {
	if s.codec == media.CodecHEVC {
		switch h265.NALUType((nalu[0] >> 1) & 0x3F) {
		case h265.NALUType_AUD_NUT:
			return
		case h265.NALUType_VPS_NUT:
			s.cfg.VPS = keepFirst(s.cfg.VPS, nalu)
			return
		case h265.NALUType_SPS_NUT:
			s.cfg.SPS = keepFirst(s.cfg.SPS, nalu)
			return
		case h265.NALUType_PPS_NUT:
			s.cfg.PPS = keepFirst(s.cfg.PPS, nalu)
			return
		}
		if (nalu[0]>>1)&0x3F < 32 {
			s.hasVCL = true
		}
		s.nalus = append(s.nalus, nalu)
		return
	}

	switch h264.NALUType(nalu[0] & 0x1F) {
	case h264.NALUTypeAccessUnitDelimiter:
		return
	case h264.NALUTypeSPS:
		s.cfg.SPS = keepFirst(s.cfg.SPS, nalu)
		return
	case h264.NALUTypePPS:
		s.cfg.PPS = keepFirst(s.cfg.PPS, nalu)
		return
	case h264.NALUTypeNonIDR, h264.NALUTypeIDR:
		s.hasVCL = true
	}
	s.nalus = append(s.nalus, nalu)
}

func (s *annexBSplitter) emit() (AccessUnit, error) {
	var keyframe bool
	if s.codec == media.CodecHEVC {
		keyframe = h265.IsRandomAccess(s.nalus)
	} else {
		keyframe = h264.IsRandomAccess(s.nalus)
	}

	data, err := h264.AVCC(s.nalus).Marshal()
	if err != nil {
		return AccessUnit{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return AccessUnit{Data: data, Keyframe: keyframe}, nil
}

// keepFirst records nalu as the only member of set. A changed parameter set
// cannot be represented in one sample entry, so the first one stays.
func keepFirst(set [][]byte, nalu []byte) [][]byte {
	if len(set) > 0 {
		return set
	}
	return append(set, nalu)
}
