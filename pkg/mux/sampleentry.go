package mux

import (
	"fmt"

	"github.com/Eyevinn/mp4ff/av1"
	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/framemux/pkg/bitstream"
	"github.com/user/framemux/pkg/media"
)

// videoSampleEntry builds the stsd child for a video format.
func videoSampleEntry(f *media.VideoFormat) (mp4.Box, error) {
	w, h := uint16(f.Width), uint16(f.Height)

	switch f.Codec {
	case media.CodecAVC:
		if len(f.SPS) == 0 || len(f.PPS) == 0 {
			return nil, fmt.Errorf("%w: avc track without SPS/PPS", media.ErrCodecConfig)
		}
		avcC, err := mp4.CreateAvcC(f.SPS, f.PPS, true)
		if err != nil {
			return nil, fmt.Errorf("%w: create avcC: %w", media.ErrCodecConfig, err)
		}
		return mp4.CreateVisualSampleEntryBox("avc1", w, h, avcC), nil

	case media.CodecHEVC:
		if len(f.VPS) == 0 || len(f.SPS) == 0 || len(f.PPS) == 0 {
			return nil, fmt.Errorf("%w: hevc track without VPS/SPS/PPS", media.ErrCodecConfig)
		}
		hvcC, err := mp4.CreateHvcC(f.VPS, f.SPS, f.PPS, true, true, true, true)
		if err != nil {
			return nil, fmt.Errorf("%w: create hvcC: %w", media.ErrCodecConfig, err)
		}
		return mp4.CreateVisualSampleEntryBox("hvc1", w, h, hvcC), nil

	case media.CodecAV1:
		if len(f.SequenceHeader) == 0 {
			return nil, fmt.Errorf("%w: av1 track without sequence header", media.ErrCodecConfig)
		}
		return mp4.CreateVisualSampleEntryBox("av01", w, h, av1ConfigRecord(f.SequenceHeader)), nil

	default:
		return nil, fmt.Errorf("%w: video codec %q", media.ErrUnsupportedCodec, f.Codec)
	}
}

// av1ConfigRecord builds an av1C box for 8-bit 4:2:0 content. Profile, level
// and tier come from the sequence header when it can be parsed.
func av1ConfigRecord(seqHdr []byte) *mp4.Av1CBox {
	info, _ := bitstream.ParseSequenceHeader(seqHdr)
	return &mp4.Av1CBox{
		CodecConfRec: av1.CodecConfRec{
			Version:              1,
			SeqProfile:           info.Profile,
			SeqLevelIdx0:         info.Level,
			SeqTier0:             info.Tier,
			HighBitdepth:         0,
			TwelveBit:            0,
			MonoChrome:           0,
			ChromaSubsamplingX:   1,
			ChromaSubsamplingY:   1,
			ChromaSamplePosition: 0,
			ConfigOBUs:           seqHdr,
		},
	}
}

// audioSampleEntry returns the source sample entry when present, otherwise
// builds an mp4a entry from the AAC decoder configuration.
func audioSampleEntry(f *media.AudioFormat) (mp4.Box, error) {
	if f.SampleEntry != nil {
		return f.SampleEntry, nil
	}
	if f.Codec != media.CodecAAC {
		return nil, fmt.Errorf("%w: audio codec %q without sample entry", media.ErrUnsupportedCodec, f.Codec)
	}
	if len(f.DecoderConfig) == 0 {
		return nil, fmt.Errorf("%w: aac track without AudioSpecificConfig", media.ErrCodecConfig)
	}
	esds := mp4.CreateEsdsBox(f.DecoderConfig)
	return mp4.CreateAudioSampleEntryBox("mp4a", uint16(f.Channels), 16, uint16(f.SampleRate), esds), nil
}

// brand returns the compatible brand for a track's codec.
func brand(t *track) string {
	if v, ok := t.Format.(*media.VideoFormat); ok {
		switch v.Codec {
		case media.CodecHEVC:
			return "hvc1"
		case media.CodecAV1:
			return "av01"
		default:
			return "avc1"
		}
	}
	return ""
}
