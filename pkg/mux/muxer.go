// Package mux writes progressive MP4 files.
//
// Sample data is appended to a single mdat box as packets arrive, one chunk
// per sample. The moov box, with the complete sample tables, is written at
// the end by Finalize, after the mdat size has been patched in place.
package mux

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/framemux/pkg/media"
	"github.com/user/framemux/pkg/ports"
)

// VideoTimescale is the timescale of video tracks: microseconds.
const VideoTimescale = 1_000_000

// movieTimescale is the mvhd timescale.
const movieTimescale = 1000

// mdatHeaderSize is the size of an mdat header with a 64-bit largesize.
const mdatHeaderSize = 16

// defaultAudioSampleDuration is used for a single-sample AAC track without
// duration information.
const defaultAudioSampleDuration = 1024

// State is the lifecycle state of a Muxer.
type State int

const (
	StateUnopened State = iota
	StateOpen
	StateStarted
	StateFinalized
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpen:
		return "open"
	case StateStarted:
		return "started"
	case StateFinalized:
		return "finalized"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Muxer is a single-use MP4 writer. It is not safe for concurrent use.
type Muxer struct {
	fs   ports.FileSystem
	path string
	log  ports.Logger

	state     State
	file      ports.OutputFile
	tracks    []*track
	offset    int64 // bytes written so far
	mdatStart int64
	err       error // sticky storage failure
}

type track struct {
	media.Track
	timescale uint32
	entry     mp4.Box

	sizes   []uint32
	offsets []uint64
	times   []int64 // decode times in timescale ticks
	sync    []uint32

	lastPTS      int64
	lastDuration int64 // µs, from the last packet
	bytes        int64
}

// New creates a Muxer for path. No file is created until the first track is
// registered.
func New(fs ports.FileSystem, path string, logger ports.Logger) *Muxer {
	return &Muxer{
		fs:   fs,
		path: path,
		log:  logger.WithComponent("mux"),
	}
}

// State returns the current state.
func (m *Muxer) State() State {
	return m.state
}

// Path returns the output path.
func (m *Muxer) Path() string {
	return m.path
}

// RegisterTrack adds a track and returns its index. The first call creates
// the output file.
func (m *Muxer) RegisterTrack(t media.Track) (int, error) {
	switch m.state {
	case StateStarted, StateFinalized:
		return -1, fmt.Errorf("%w: register %s track after start", media.ErrTracksFrozen, t.Kind)
	case StateReleased:
		return -1, fmt.Errorf("%w: register track on released muxer", media.ErrInvalidState)
	}

	tr := &track{Track: t}
	switch t.Kind {
	case media.KindVideo:
		f, ok := t.Format.(*media.VideoFormat)
		if !ok || f == nil {
			return -1, fmt.Errorf("%w: video track without video format", media.ErrCodecConfig)
		}
		entry, err := videoSampleEntry(f)
		if err != nil {
			return -1, err
		}
		tr.entry = entry
		tr.timescale = VideoTimescale
	case media.KindAudio:
		f, ok := t.Format.(*media.AudioFormat)
		if !ok || f == nil {
			return -1, fmt.Errorf("%w: audio track without audio format", media.ErrCodecConfig)
		}
		entry, err := audioSampleEntry(f)
		if err != nil {
			return -1, err
		}
		tr.entry = entry
		tr.timescale = f.Timescale
		if tr.timescale == 0 {
			tr.timescale = uint32(f.SampleRate)
		}
		if tr.timescale == 0 {
			return -1, fmt.Errorf("%w: audio track without timescale", media.ErrCodecConfig)
		}
	default:
		return -1, fmt.Errorf("%w: track kind %s", media.ErrUnsupportedCodec, t.Kind)
	}

	if m.state == StateUnopened {
		file, err := m.fs.Create(m.path)
		if err != nil {
			return -1, fmt.Errorf("%w: create %s: %w", media.ErrWrite, m.path, err)
		}
		m.file = file
		m.state = StateOpen
	}

	tr.Index = len(m.tracks)
	m.tracks = append(m.tracks, tr)
	m.log.Debug("Registered %s track %d (timescale %d)", t.Kind, tr.Index, tr.timescale)
	return tr.Index, nil
}

// Start writes the file header. The track set is frozen afterwards.
func (m *Muxer) Start() error {
	switch m.state {
	case StateUnopened:
		return media.ErrNoTracksRegistered
	case StateOpen:
	default:
		return fmt.Errorf("%w: start in state %s", media.ErrInvalidState, m.state)
	}

	brands := []string{"isom", "iso2"}
	for _, t := range m.tracks {
		if b := brand(t); b != "" {
			brands = append(brands, b)
		}
	}
	brands = append(brands, "mp41")

	ftyp := mp4.NewFtyp("isom", 0x200, brands)
	if err := ftyp.Encode(m); err != nil {
		return m.storageError(fmt.Errorf("write ftyp: %w", err))
	}

	m.mdatStart = m.offset
	header := make([]byte, mdatHeaderSize)
	binary.BigEndian.PutUint32(header[0:4], 1) // size in largesize
	copy(header[4:8], "mdat")
	if _, err := m.Write(header); err != nil {
		return m.storageError(fmt.Errorf("write mdat header: %w", err))
	}

	m.state = StateStarted
	m.log.Debug("Started: %d tracks, mdat at offset %d", len(m.tracks), m.mdatStart)
	return nil
}

// WritePacket appends pkt's payload as one sample of track index. The
// payload is not retained.
func (m *Muxer) WritePacket(index int, pkt *media.Packet) error {
	switch m.state {
	case StateUnopened, StateOpen:
		return media.ErrNotStarted
	case StateStarted:
	default:
		return fmt.Errorf("%w: write in state %s", media.ErrInvalidState, m.state)
	}
	if m.err != nil {
		return m.err
	}
	if index < 0 || index >= len(m.tracks) {
		return fmt.Errorf("%w: %d", media.ErrUnknownTrack, index)
	}
	t := m.tracks[index]

	if pkt.IsCodecConfig() {
		return fmt.Errorf("%w: codec-config packet on track %d", media.ErrInvalidPacket, index)
	}
	if pkt.Kind != t.Kind {
		return fmt.Errorf("%w: %s packet on %s track %d", media.ErrInvalidPacket, pkt.Kind, t.Kind, index)
	}
	if len(pkt.Data) == 0 {
		return fmt.Errorf("%w: empty payload on track %d", media.ErrInvalidPacket, index)
	}
	if pkt.PTS < 0 || (len(t.times) > 0 && pkt.PTS < t.lastPTS) {
		return fmt.Errorf("%w: track %d pts %d after %d", media.ErrTimestampOrdering, index, pkt.PTS, t.lastPTS)
	}

	offset := m.offset
	if _, err := m.Write(pkt.Data); err != nil {
		return m.storageError(fmt.Errorf("write sample: %w", err))
	}

	t.sizes = append(t.sizes, uint32(len(pkt.Data)))
	t.offsets = append(t.offsets, uint64(offset))
	t.times = append(t.times, toTicks(pkt.PTS, t.timescale))
	if t.Kind == media.KindVideo && pkt.IsKeyframe() {
		t.sync = append(t.sync, uint32(len(t.sizes)))
	}
	t.lastPTS = pkt.PTS
	t.lastDuration = pkt.Duration
	t.bytes += int64(len(pkt.Data))
	return nil
}

// Write appends p to the output file and advances the write offset.
func (m *Muxer) Write(p []byte) (int, error) {
	n, err := m.file.Write(p)
	m.offset += int64(n)
	return n, err
}

// Finalize patches the mdat size, writes the moov box and closes the file.
func (m *Muxer) Finalize() error {
	switch m.state {
	case StateUnopened, StateOpen:
		return media.ErrNotStarted
	case StateStarted:
	default:
		return fmt.Errorf("%w: finalize in state %s", media.ErrInvalidState, m.state)
	}
	if m.err != nil {
		return m.err
	}

	mdatSize := make([]byte, 8)
	binary.BigEndian.PutUint64(mdatSize, uint64(m.offset-m.mdatStart))
	if _, err := m.file.WriteAt(mdatSize, m.mdatStart+8); err != nil {
		return m.storageError(fmt.Errorf("patch mdat size: %w", err))
	}

	moov, err := m.buildMoov()
	if err != nil {
		return err
	}
	if err := moov.Encode(m); err != nil {
		return m.storageError(fmt.Errorf("write moov: %w", err))
	}
	if err := m.file.Sync(); err != nil {
		return m.storageError(fmt.Errorf("sync: %w", err))
	}
	file := m.file
	m.file = nil
	if err := file.Close(); err != nil {
		return m.storageError(fmt.Errorf("close: %w", err))
	}

	m.state = StateFinalized
	m.log.Debug("Finalized %s: %d tracks, %s", m.path, len(m.tracks), humanize.Bytes(uint64(m.offset)))
	return nil
}

// buildMoov assembles the movie box from the collected sample tables.
func (m *Muxer) buildMoov() (*mp4.MoovBox, error) {
	init := mp4.CreateEmptyInit()
	init.Moov.Mvhd.Timescale = movieTimescale

	var movieDuration uint64
	for _, t := range m.tracks {
		mediaType := "video"
		if t.Kind == media.KindAudio {
			mediaType = "audio"
		}
		init.AddEmptyTrack(t.timescale, mediaType, "und")
		trak := init.Moov.Traks[len(init.Moov.Traks)-1]

		if v, ok := t.Format.(*media.VideoFormat); ok {
			trak.Tkhd.Width = mp4.Fixed32(v.Width << 16)
			trak.Tkhd.Height = mp4.Fixed32(v.Height << 16)
		}

		stbl := trak.Mdia.Minf.Stbl
		stbl.Stsd.AddChild(t.entry)

		durations := t.sampleDurations()
		var mediaDuration uint64
		for _, d := range durations {
			mediaDuration += uint64(d)
		}
		for _, d := range durations {
			n := len(stbl.Stts.SampleCount)
			if n > 0 && stbl.Stts.SampleTimeDelta[n-1] == d {
				stbl.Stts.SampleCount[n-1]++
				continue
			}
			stbl.Stts.SampleCount = append(stbl.Stts.SampleCount, 1)
			stbl.Stts.SampleTimeDelta = append(stbl.Stts.SampleTimeDelta, d)
		}

		stbl.Stsz.SampleNumber = uint32(len(t.sizes))
		stbl.Stsz.SampleSize = t.sizes

		if len(t.sizes) > 0 {
			if err := stbl.Stsc.AddEntry(1, 1, 1); err != nil {
				return nil, fmt.Errorf("stsc: %w", err)
			}
		}
		setChunkOffsets(stbl, t.offsets)

		if t.Kind == media.KindVideo {
			stbl.AddChild(&mp4.StssBox{SampleNumber: t.sync})
		}

		trak.Mdia.Mdhd.Duration = mediaDuration
		trackDuration := scale(mediaDuration, t.timescale, movieTimescale)
		trak.Tkhd.Duration = trackDuration
		if trackDuration > movieDuration {
			movieDuration = trackDuration
		}
	}
	init.Moov.Mvhd.Duration = movieDuration

	// A progressive file has no movie extends box.
	children := init.Moov.Children[:0]
	for _, c := range init.Moov.Children {
		if c.Type() != "mvex" {
			children = append(children, c)
		}
	}
	init.Moov.Children = children
	init.Moov.Mvex = nil

	return init.Moov, nil
}

// setChunkOffsets fills stco, switching to co64 when an offset exceeds 32 bits.
func setChunkOffsets(stbl *mp4.StblBox, offsets []uint64) {
	large := false
	for _, o := range offsets {
		if o > 0xFFFFFFFF {
			large = true
			break
		}
	}
	if !large {
		stbl.Stco.ChunkOffset = make([]uint32, len(offsets))
		for i, o := range offsets {
			stbl.Stco.ChunkOffset[i] = uint32(o)
		}
		return
	}

	children := stbl.Children[:0]
	for _, c := range stbl.Children {
		if c.Type() != "stco" {
			children = append(children, c)
		}
	}
	stbl.Children = children
	stbl.Stco = nil
	stbl.AddChild(&mp4.Co64Box{ChunkOffset: offsets})
}

// sampleDurations derives per-sample durations in ticks from decode-time
// deltas. The last sample uses the packet duration when known, else the
// previous delta, else the track default.
func (t *track) sampleDurations() []uint32 {
	n := len(t.times)
	durations := make([]uint32, n)
	for i := 0; i+1 < n; i++ {
		durations[i] = uint32(t.times[i+1] - t.times[i])
	}
	if n == 0 {
		return durations
	}

	switch {
	case t.lastDuration > 0:
		durations[n-1] = uint32(toTicks(t.lastDuration, t.timescale))
	case n > 1:
		durations[n-1] = durations[n-2]
	default:
		durations[n-1] = t.defaultDuration()
	}
	return durations
}

func (t *track) defaultDuration() uint32 {
	if v, ok := t.Format.(*media.VideoFormat); ok && v.FrameDuration > 0 {
		return uint32(toTicks(v.FrameDuration, t.timescale))
	}
	if t.Kind == media.KindAudio {
		return defaultAudioSampleDuration
	}
	return 0
}

// Release closes the file if it is still open. It is safe to call more than
// once and from any state. The file itself is left in place.
func (m *Muxer) Release() error {
	if m.state == StateReleased {
		return nil
	}
	m.state = StateReleased
	if m.file == nil {
		return nil
	}
	file := m.file
	m.file = nil
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", media.ErrWrite, m.path, err)
	}
	return nil
}

// storageError records err as the sticky storage failure.
func (m *Muxer) storageError(err error) error {
	if m.err == nil {
		m.err = fmt.Errorf("%w: %w", media.ErrWrite, err)
		m.log.Debug("Storage failure: %v", err)
	}
	return m.err
}

// TrackSummary describes one written track.
type TrackSummary struct {
	Kind     media.TrackKind
	Samples  int
	Bytes    int64
	Duration time.Duration
}

// Summary describes the written file.
type Summary struct {
	Tracks []TrackSummary
	Size   int64
}

// Summary returns per-track sample counts and durations.
func (m *Muxer) Summary() Summary {
	s := Summary{Size: m.offset}
	for _, t := range m.tracks {
		var ticks uint64
		for _, d := range t.sampleDurations() {
			ticks += uint64(d)
		}
		s.Tracks = append(s.Tracks, TrackSummary{
			Kind:     t.Kind,
			Samples:  len(t.sizes),
			Bytes:    t.bytes,
			Duration: time.Duration(scale(ticks, t.timescale, 1_000_000)) * time.Microsecond,
		})
	}
	return s
}

// toTicks converts microseconds to timescale ticks, rounding to nearest.
func toTicks(us int64, timescale uint32) int64 {
	return (us*int64(timescale) + 500_000) / 1_000_000
}

// scale converts a duration between timescales, rounding to nearest.
func scale(v uint64, from, to uint32) uint64 {
	return (v*uint64(to) + uint64(from)/2) / uint64(from)
}
