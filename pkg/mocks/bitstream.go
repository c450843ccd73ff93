package mocks

// Parameter sets of a 640x480 baseline H.264 stream.
var (
	H264SPS = []byte{0x67, 0x42, 0xc0, 0x1e, 0xd9, 0x00, 0x50, 0x1e, 0xd8, 0x08, 0x00, 0x00, 0x03, 0x00, 0x08, 0x00, 0x00, 0x03, 0x00, 0x3c, 0x8f, 0x16, 0x2d, 0x96}
	H264PPS = []byte{0x68, 0xce, 0x06, 0xe2}
)

// Synthetic H.265 parameter sets; only the NAL headers are meaningful.
var (
	HEVCVPS = []byte{0x40, 0x01, 0x0c, 0x01, 0xff, 0xff}
	HEVCSPS = []byte{0x42, 0x01, 0x01, 0x01, 0x60}
	HEVCPPS = []byte{0x44, 0x01, 0xc1, 0x72}
)

// AV1SequenceHeader is a synthetic sequence header OBU.
var AV1SequenceHeader = []byte{0x0a, 0x05, 0x00, 0x00, 0x00, 0x24, 0xc4}

var startCode = []byte{0, 0, 0, 1}

// H264AccessUnit returns an Annex-B access unit with a delimiter. Keyframes
// carry SPS and PPS before an IDR slice.
func H264AccessUnit(ordinal int, keyframe bool) []byte {
	au := annexB(nil, []byte{0x09, 0xf0})
	if keyframe {
		au = annexB(au, H264SPS)
		au = annexB(au, H264PPS)
		return annexB(au, []byte{0x65, 0x88, 0x84, payloadByte(ordinal), 0x3f})
	}
	return annexB(au, []byte{0x41, 0x9a, 0x02, payloadByte(ordinal), 0x7f})
}

// HEVCAccessUnit returns an Annex-B access unit with a delimiter. Keyframes
// carry VPS, SPS and PPS before an IDR_W_RADL slice.
func HEVCAccessUnit(ordinal int, keyframe bool) []byte {
	au := annexB(nil, []byte{0x46, 0x01, 0x50})
	if keyframe {
		au = annexB(au, HEVCVPS)
		au = annexB(au, HEVCSPS)
		au = annexB(au, HEVCPPS)
		return annexB(au, []byte{0x26, 0x01, 0xaf, payloadByte(ordinal)})
	}
	return annexB(au, []byte{0x02, 0x01, 0xd0, payloadByte(ordinal)})
}

// AV1TemporalUnit returns a temporal delimiter followed by a frame OBU.
// Keyframes carry the sequence header.
func AV1TemporalUnit(ordinal int, keyframe bool) []byte {
	tu := []byte{0x12, 0x00}
	if keyframe {
		tu = append(tu, AV1SequenceHeader...)
	}
	return append(tu, 0x32, 0x03, 0x10, payloadByte(ordinal), 0x30)
}

func annexB(dst, nalu []byte) []byte {
	dst = append(dst, startCode...)
	return append(dst, nalu...)
}

// payloadByte encodes ordinal without ever producing a zero byte.
func payloadByte(ordinal int) byte {
	return byte(ordinal%127) + 1
}
