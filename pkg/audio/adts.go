package audio

import (
	"fmt"
	"io"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"

	"github.com/user/framemux/pkg/media"
)

// samplesPerFrame is the number of PCM samples in one AAC frame.
const samplesPerFrame = 1024

func (r *Reader) readADTS() error {
	data, err := io.ReadAll(r.src)
	if err != nil {
		return fmt.Errorf("%w: read: %w", media.ErrUnreadableSource, err)
	}
	data = skipID3(data)
	if len(data) == 0 {
		return media.ErrNoAudioTrack
	}

	var pkts mpeg4audio.ADTSPackets
	if err := pkts.Unmarshal(data); err != nil {
		return fmt.Errorf("%w: adts: %w", media.ErrUnreadableSource, err)
	}
	if len(pkts) == 0 {
		return media.ErrNoAudioTrack
	}

	first := pkts[0]
	conf := mpeg4audio.AudioSpecificConfig{
		Type:         first.Type,
		SampleRate:   first.SampleRate,
		ChannelCount: first.ChannelCount,
	}
	asc, err := conf.Marshal()
	if err != nil {
		return fmt.Errorf("%w: audio specific config: %w", media.ErrUnreadableSource, err)
	}

	r.format = &media.AudioFormat{
		Codec:         media.CodecAAC,
		SampleRate:    first.SampleRate,
		Channels:      first.ChannelCount,
		Timescale:     uint32(first.SampleRate),
		DecoderConfig: asc,
	}
	r.samples = make([]sample, len(pkts))
	for i, p := range pkts {
		r.samples[i] = sample{
			size: uint32(len(p.AU)),
			data: p.AU,
			time: uint64(i) * samplesPerFrame,
			dur:  samplesPerFrame,
		}
	}
	return nil
}

// skipID3 strips leading ID3v2 tags.
func skipID3(data []byte) []byte {
	for len(data) >= 10 && string(data[:3]) == "ID3" {
		size := int(data[6]&0x7f)<<21 | int(data[7]&0x7f)<<14 | int(data[8]&0x7f)<<7 | int(data[9]&0x7f)
		end := 10 + size
		if data[5]&0x10 != 0 {
			end += 10 // footer
		}
		if end > len(data) {
			return nil
		}
		data = data[end:]
	}
	return data
}
