// Package probe inspects finished MP4 files.
package probe

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/framemux/pkg/media"
)

// Track describes one track of an MP4 file.
type Track struct {
	ID          uint32
	Kind        media.TrackKind
	Codec       string
	Timescale   uint32
	SampleCount int
	SyncSamples int
	Duration    time.Duration
	Width       int
	Height      int
	SampleRate  int
	Channels    int
}

// Info describes an MP4 file.
type Info struct {
	Fragmented bool
	Brands     []string
	Duration   time.Duration
	Tracks     []Track
}

// VideoTrack returns the first video track, or nil.
func (i *Info) VideoTrack() *Track {
	return i.track(media.KindVideo)
}

// AudioTrack returns the first audio track, or nil.
func (i *Info) AudioTrack() *Track {
	return i.track(media.KindAudio)
}

func (i *Info) track(kind media.TrackKind) *Track {
	for n := range i.Tracks {
		if i.Tracks[n].Kind == kind {
			return &i.Tracks[n]
		}
	}
	return nil
}

// File inspects the MP4 file at path.
func File(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return Reader(f)
}

// Reader inspects an MP4 file read from r.
func Reader(r io.ReadSeeker) (*Info, error) {
	mp4File, err := mp4.DecodeFile(r)
	if err != nil {
		return nil, fmt.Errorf("decode mp4: %w", err)
	}

	info := &Info{Fragmented: mp4File.IsFragmented()}
	if mp4File.Ftyp != nil {
		info.Brands = append([]string{mp4File.Ftyp.MajorBrand()}, mp4File.Ftyp.CompatibleBrands()...)
	}

	moov := mp4File.Moov
	if info.Fragmented && mp4File.Init != nil {
		moov = mp4File.Init.Moov
	}
	if moov == nil {
		return nil, fmt.Errorf("no moov box")
	}

	for _, trak := range moov.Traks {
		t, ok := describeTrack(trak)
		if !ok {
			continue
		}
		if info.Fragmented {
			countFragmentSamples(mp4File, &t)
		}
		if t.Duration > info.Duration {
			info.Duration = t.Duration
		}
		info.Tracks = append(info.Tracks, t)
	}
	if moov.Mvhd != nil && moov.Mvhd.Timescale > 0 && !info.Fragmented {
		d := ticksToDuration(moov.Mvhd.Duration, moov.Mvhd.Timescale)
		if d > info.Duration {
			info.Duration = d
		}
	}
	return info, nil
}

// describeTrack reads a video or audio track; other handlers are skipped.
func describeTrack(trak *mp4.TrakBox) (Track, bool) {
	if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Mdhd == nil {
		return Track{}, false
	}

	t := Track{
		ID:        trak.Tkhd.TrackID,
		Timescale: trak.Mdia.Mdhd.Timescale,
	}
	switch trak.Mdia.Hdlr.HandlerType {
	case "vide":
		t.Kind = media.KindVideo
	case "soun":
		t.Kind = media.KindAudio
	default:
		return Track{}, false
	}
	if t.Timescale > 0 {
		t.Duration = ticksToDuration(trak.Mdia.Mdhd.Duration, t.Timescale)
	}

	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil {
		return t, true
	}
	stbl := trak.Mdia.Minf.Stbl

	if stbl.Stsd != nil && len(stbl.Stsd.Children) > 0 {
		child := stbl.Stsd.Children[0]
		t.Codec = codecName(child.Type())
		switch e := child.(type) {
		case *mp4.VisualSampleEntryBox:
			t.Width = int(e.Width)
			t.Height = int(e.Height)
		case *mp4.AudioSampleEntryBox:
			t.SampleRate = int(e.SampleRate)
			t.Channels = int(e.ChannelCount)
		}
	}
	if stbl.Stsz != nil {
		t.SampleCount = int(stbl.Stsz.SampleNumber)
	}
	if stbl.Stss != nil {
		t.SyncSamples = len(stbl.Stss.SampleNumber)
	} else if t.Kind == media.KindVideo {
		t.SyncSamples = t.SampleCount
	}
	return t, true
}

// countFragmentSamples adds the samples of t found in movie fragments.
func countFragmentSamples(f *mp4.File, t *Track) {
	trex := &mp4.TrexBox{TrackID: t.ID}
	if f.Init != nil && f.Init.Moov.Mvex != nil {
		for _, x := range f.Init.Moov.Mvex.Trexs {
			if x.TrackID == t.ID {
				trex = x
				break
			}
		}
	}

	var ticks uint64
	for _, seg := range f.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			for _, traf := range frag.Moof.Trafs {
				if traf.Tfhd.TrackID != t.ID {
					continue
				}
				samples, err := frag.GetFullSamples(trex)
				if err != nil {
					continue
				}
				for _, s := range samples {
					t.SampleCount++
					if s.Flags == mp4.SyncSampleFlags {
						t.SyncSamples++
					}
					ticks += uint64(s.Dur)
				}
			}
		}
	}
	if t.Timescale > 0 {
		t.Duration = ticksToDuration(ticks, t.Timescale)
	}
}

func codecName(entry string) string {
	switch entry {
	case "avc1", "avc3":
		return string(media.CodecAVC)
	case "hvc1", "hev1":
		return string(media.CodecHEVC)
	case "av01":
		return string(media.CodecAV1)
	case "mp4a":
		return string(media.CodecAAC)
	default:
		return entry
	}
}

func ticksToDuration(ticks uint64, timescale uint32) time.Duration {
	sec := ticks / uint64(timescale)
	rem := ticks % uint64(timescale)
	return time.Duration(sec)*time.Second + time.Duration(rem*uint64(time.Second)/uint64(timescale))
}
