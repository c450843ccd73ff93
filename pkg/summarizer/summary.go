package summarizer

import (
	"time"

	"github.com/user/framemux/pkg/pipeline"
	"github.com/user/framemux/pkg/probe"
)

// Summary contains all data collected for one encoding job.
type Summary struct {
	// Metadata
	GeneratedAt time.Time

	// Job outcome
	Job JobInfo

	// Encoding settings
	Settings Settings

	// Output file details, filled from a probe of the written file
	File   FileInfo
	Tracks []TrackInfo
}

// JobInfo contains the outcome of a job.
type JobInfo struct {
	ID      string
	Output  string
	Encoder string
	Elapsed time.Duration
	Error   string // empty on success
}

// Settings contains the job configuration.
type Settings struct {
	Codec          string
	Width          int
	Height         int
	FPS            float64
	BitRate        int
	IFrameInterval int // seconds, 0 = every frame
	FramesPerImage int
	Images         int
	AudioSource    string
	AudioMode      string
}

// FileInfo contains information about the output file.
type FileInfo struct {
	Size     int64
	Duration time.Duration
	Brands   []string
}

// TrackInfo contains information about one output track.
type TrackInfo struct {
	ID          uint32
	Kind        string
	Codec       string
	Samples     int
	SyncSamples int
	Duration    time.Duration
	Width       int
	Height      int
	SampleRate  int
	Channels    int
}

// NewSummary creates a new Summary with the current timestamp.
func NewSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Now(),
	}
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		summary: NewSummary(),
	}
}

// WithJob sets the settings of job.
func (b *Builder) WithJob(job pipeline.Job) *Builder {
	p := job.Profile
	b.summary.Job.ID = job.ID.String()
	b.summary.Job.Output = p.OutputPath
	b.summary.Settings = Settings{
		Codec:          p.Codec,
		Width:          p.Width,
		Height:         p.Height,
		FPS:            p.FPS,
		BitRate:        p.BitRate,
		IFrameInterval: p.IFrameIntervalSeconds,
		FramesPerImage: p.RepeatCount(),
		AudioSource:    p.AudioSourcePath,
		AudioMode:      string(job.AudioMode),
	}
	if job.Frames != nil {
		b.summary.Settings.Images = job.Frames.Len()
	}
	return b
}

// WithCompletion sets the job outcome.
func (b *Builder) WithCompletion(c pipeline.Completion) *Builder {
	b.summary.Job.ID = c.JobID.String()
	b.summary.Job.Output = c.OutputPath
	b.summary.Job.Encoder = c.Encoder
	b.summary.Job.Elapsed = c.Elapsed
	if c.Err != nil {
		b.summary.Job.Error = c.Err.Error()
	}
	b.summary.File.Size = c.FileSize
	b.summary.File.Duration = c.Duration
	return b
}

// WithProbe sets the output file details.
func (b *Builder) WithProbe(info *probe.Info) *Builder {
	if info == nil {
		return b
	}
	b.summary.File.Brands = info.Brands
	if info.Duration > 0 {
		b.summary.File.Duration = info.Duration
	}
	b.summary.Tracks = b.summary.Tracks[:0]
	for _, t := range info.Tracks {
		b.summary.Tracks = append(b.summary.Tracks, TrackInfo{
			ID:          t.ID,
			Kind:        t.Kind.String(),
			Codec:       t.Codec,
			Samples:     t.SampleCount,
			SyncSamples: t.SyncSamples,
			Duration:    t.Duration,
			Width:       t.Width,
			Height:      t.Height,
			SampleRate:  t.SampleRate,
			Channels:    t.Channels,
		})
	}
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}
