package audio

import (
	"fmt"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/framemux/pkg/media"
)

func (r *Reader) readMP4() error {
	f, err := mp4.DecodeFile(r.src, mp4.WithDecodeMode(mp4.DecModeLazyMdat))
	if err != nil {
		return fmt.Errorf("%w: decode mp4: %w", media.ErrUnreadableSource, err)
	}

	if f.IsFragmented() {
		if f.Init == nil || f.Init.Moov == nil {
			return fmt.Errorf("%w: fragmented file without init segment", media.ErrUnreadableSource)
		}
		trak := findSoundTrack(f.Init.Moov)
		if trak == nil {
			return media.ErrNoAudioTrack
		}
		if err := r.setFormat(trak); err != nil {
			return err
		}
		return r.readFragments(f, trak.Tkhd.TrackID)
	}

	if f.Moov == nil {
		return fmt.Errorf("%w: no moov box", media.ErrUnreadableSource)
	}
	trak := findSoundTrack(f.Moov)
	if trak == nil {
		return media.ErrNoAudioTrack
	}
	if err := r.setFormat(trak); err != nil {
		return err
	}
	return r.readSampleTable(trak.Mdia.Minf.Stbl)
}

func findSoundTrack(moov *mp4.MoovBox) *mp4.TrakBox {
	for _, trak := range moov.Traks {
		if trak.Mdia != nil && trak.Mdia.Hdlr != nil && trak.Mdia.Hdlr.HandlerType == "soun" {
			return trak
		}
	}
	return nil
}

// setFormat takes the format from the track's first sample entry.
func (r *Reader) setFormat(trak *mp4.TrakBox) error {
	if trak.Mdia.Mdhd == nil || trak.Mdia.Mdhd.Timescale == 0 {
		return fmt.Errorf("%w: audio track without timescale", media.ErrUnreadableSource)
	}
	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil ||
		len(trak.Mdia.Minf.Stbl.Stsd.Children) == 0 {
		return fmt.Errorf("%w: audio track without sample description", media.ErrUnreadableSource)
	}

	entry := trak.Mdia.Minf.Stbl.Stsd.Children[0]
	format := &media.AudioFormat{
		Codec:       media.Codec(entry.Type()),
		Timescale:   trak.Mdia.Mdhd.Timescale,
		SampleRate:  int(trak.Mdia.Mdhd.Timescale),
		SampleEntry: entry,
	}
	if ase, ok := entry.(*mp4.AudioSampleEntryBox); ok {
		format.Channels = int(ase.ChannelCount)
		if ase.SampleRate != 0 {
			format.SampleRate = int(ase.SampleRate)
		}
	}
	if entry.Type() == "mp4a" {
		format.Codec = media.CodecAAC
	}
	r.format = format
	return nil
}

// readSampleTable builds the sample list of a progressive track.
func (r *Reader) readSampleTable(stbl *mp4.StblBox) error {
	if stbl.Stsz == nil || stbl.Stsc == nil || stbl.Stts == nil {
		return fmt.Errorf("%w: incomplete sample table", media.ErrUnreadableSource)
	}

	count := stbl.Stsz.SampleNumber
	r.samples = make([]sample, 0, count)
	for nr := uint32(1); nr <= count; nr++ {
		chunkNr, firstInChunk, err := stbl.Stsc.ChunkNrFromSampleNr(int(nr))
		if err != nil {
			return fmt.Errorf("%w: sample %d: %w", media.ErrUnreadableSource, nr, err)
		}

		var offset uint64
		switch {
		case stbl.Stco != nil:
			offset, err = stbl.Stco.GetOffset(chunkNr)
			if err != nil {
				return fmt.Errorf("%w: chunk %d: %w", media.ErrUnreadableSource, chunkNr, err)
			}
		case stbl.Co64 != nil:
			if chunkNr < 1 || chunkNr > len(stbl.Co64.ChunkOffset) {
				return fmt.Errorf("%w: chunk %d out of range", media.ErrUnreadableSource, chunkNr)
			}
			offset = stbl.Co64.ChunkOffset[chunkNr-1]
		default:
			return fmt.Errorf("%w: no chunk offsets", media.ErrUnreadableSource)
		}
		for s := uint32(firstInChunk); s < nr; s++ {
			offset += uint64(stbl.Stsz.GetSampleSize(int(s)))
		}

		decodeTime, dur := stbl.Stts.GetDecodeTime(nr)
		r.samples = append(r.samples, sample{
			offset: int64(offset),
			size:   stbl.Stsz.GetSampleSize(int(nr)),
			time:   decodeTime,
			dur:    dur,
		})
	}
	return nil
}

// readFragments collects the samples of trackID from every fragment. Sample
// data stays in the source and is read on demand.
func (r *Reader) readFragments(f *mp4.File, trackID uint32) error {
	trex := &mp4.TrexBox{TrackID: trackID}
	if f.Init.Moov.Mvex != nil {
		for _, t := range f.Init.Moov.Mvex.Trexs {
			if t.TrackID == trackID {
				trex = t
				break
			}
		}
	}

	for _, seg := range f.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil || frag.Mdat == nil {
				continue
			}
			for _, traf := range frag.Moof.Trafs {
				if traf.Tfhd.TrackID != trackID {
					continue
				}
				var time uint64
				if traf.Tfdt != nil {
					time = traf.Tfdt.BaseMediaDecodeTime()
				}
				for _, trun := range traf.Truns {
					trun.AddSampleDefaultValues(traf.Tfhd, trex)
					offset := fragmentDataOffset(frag, traf.Tfhd, trun)
					for _, s := range trun.GetSamples() {
						r.samples = append(r.samples, sample{
							offset: offset,
							size:   s.Size,
							time:   time,
							dur:    s.Dur,
						})
						offset += int64(s.Size)
						time += uint64(s.Dur)
					}
				}
			}
		}
	}
	return nil
}

// fragmentDataOffset returns the file position of the first sample of trun.
func fragmentDataOffset(frag *mp4.Fragment, tfhd *mp4.TfhdBox, trun *mp4.TrunBox) int64 {
	base := frag.Moof.StartPos
	if tfhd.HasBaseDataOffset() {
		base = tfhd.BaseDataOffset
	}
	if !trun.HasDataOffset() {
		return int64(frag.Mdat.PayloadAbsoluteOffset())
	}
	return int64(base) + int64(trun.DataOffset)
}
