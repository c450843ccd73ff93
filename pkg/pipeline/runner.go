package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"

	"github.com/user/framemux/pkg/audio"
	"github.com/user/framemux/pkg/encoder"
	"github.com/user/framemux/pkg/media"
	"github.com/user/framemux/pkg/mux"
	"github.com/user/framemux/pkg/ports"
	"github.com/user/framemux/pkg/profile"
)

// Runner executes jobs. A Runner may run several jobs concurrently; each job
// has its own encoder and muxer.
type Runner struct {
	backend ports.CodecBackend
	profile *profile.Profile
	fs      ports.FileSystem
	logger  ports.Logger
}

// New creates a Runner. lister is queried for available encoders.
func New(backend ports.CodecBackend, lister ports.EncoderLister, fs ports.FileSystem, logger ports.Logger, opts profile.Options) *Runner {
	return &Runner{
		backend: backend,
		profile: profile.New(lister, opts),
		fs:      fs,
		logger:  logger,
	}
}

var _ Stage[Job, Completion] = (*Runner)(nil)

// Execute runs job and returns its completion together with its error.
func (r *Runner) Execute(ctx context.Context, job Job) (Completion, error) {
	c := r.Run(ctx, job)
	return c, c.Err
}

// Start runs job on a new goroutine and calls notify exactly once with the
// result.
func (r *Runner) Start(ctx context.Context, job Job, notify func(Completion)) {
	go func() {
		notify(r.Run(ctx, job))
	}()
}

// Run executes job on the calling goroutine. On failure the partial output
// file is removed.
func (r *Runner) Run(ctx context.Context, job Job) Completion {
	start := time.Now()
	log := r.logger.WithComponent("pipeline")

	c := Completion{JobID: job.ID, OutputPath: job.Profile.OutputPath}
	res, err := r.run(ctx, job, log)
	c.Elapsed = time.Since(start)
	if err != nil {
		c.Err = err
		c.Kind = media.KindOf(err)
		log.Error("Job %s failed: %v", job.ID, err)
		return c
	}

	c.Encoder = res.encoder
	c.FileSize = res.summary.Size
	for _, t := range res.summary.Tracks {
		switch t.Kind {
		case media.KindVideo:
			c.VideoSamples = t.Samples
		case media.KindAudio:
			c.AudioSamples = t.Samples
		}
		if t.Duration > c.Duration {
			c.Duration = t.Duration
		}
	}
	log.Info("Wrote %s: %d video samples, %d audio samples, %s in %s",
		c.OutputPath, c.VideoSamples, c.AudioSamples, humanize.Bytes(uint64(c.FileSize)), c.Elapsed.Round(time.Millisecond))
	return c
}

type result struct {
	encoder string
	summary mux.Summary
}

// run holds one job's resources. Everything that can fail for configuration
// reasons happens before the output file is created.
func (r *Runner) run(ctx context.Context, job Job, log ports.Logger) (result, error) {
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	p := job.Profile
	if err := p.Validate(); err != nil {
		return result{}, err
	}
	if job.Frames == nil || job.Frames.Len() == 0 {
		return result{}, fmt.Errorf("%w: no frames", media.ErrCodecConfig)
	}
	mode := job.AudioMode
	if mode == "" {
		mode = AudioSequential
	}
	if mode != AudioSequential && mode != AudioInterleaved {
		return result{}, fmt.Errorf("%w: unknown audio mode %q", media.ErrCodecConfig, mode)
	}

	params, err := r.profile.ResolveWithInterval(ctx, p.Codec, p.Width, p.Height, p.FPS, p.BitRate, p.IFrameIntervalSeconds)
	if err != nil {
		return result{}, err
	}

	var src *audio.Reader
	if p.AudioSourcePath != "" {
		src, err = r.openAudio(p.AudioSourcePath)
		if err != nil {
			return result{}, err
		}
		defer src.Close()
		f := src.Format()
		log.Debug("Audio source %s: %s, %d Hz, %d channels, %d samples",
			p.AudioSourcePath, f.Codec, f.SampleRate, f.Channels, src.SampleCount())
	}

	log.Info("Encoding %d images as %s with %s (%dx%d, %v fps, %d bps)",
		job.Frames.Len(), params.Codec, params.EncoderName, params.Width, params.Height, params.FPS, params.BitRate)

	driver := encoder.New(r.backend, r.logger)
	muxer := mux.New(r.fs, p.OutputPath, r.logger)

	// The encoder is released on cancellation so that a blocked drain
	// returns.
	stopWatch := context.AfterFunc(ctx, func() { driver.Release() })
	defer stopWatch()

	if err := driver.Configure(ctx, params); err != nil {
		r.abort(log, driver, muxer, p.OutputPath)
		return result{}, err
	}

	subCtx, cancelSub := context.WithCancel(ctx)
	defer cancelSub()
	var submitFailed atomic.Bool
	submitErr := make(chan error, 1)
	go func() {
		err := submit(subCtx, driver, job.Frames, p.RepeatCount())
		if err != nil && subCtx.Err() == nil {
			submitFailed.Store(true)
			driver.Release()
		}
		submitErr <- err
	}()

	w := &writer{muxer: muxer, mode: mode, log: log}
	err = w.write(driver.Drain(), src)
	if err != nil {
		cancelSub()
		driver.Release()
	}
	// A rejected configuration outranks the write failures it causes.
	if serr := <-submitErr; serr != nil && (err == nil || submitFailed.Load() && !errors.Is(err, media.ErrCodecConfig)) {
		err = serr
	}
	if err == nil {
		err = muxer.Finalize()
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", media.ErrEncoderFault, ctxErr)
		}
		r.abort(log, driver, muxer, p.OutputPath)
		return result{}, err
	}

	if err := driver.Release(); err != nil {
		log.Warn("Failed to release encoder: %v", err)
	}
	if err := muxer.Release(); err != nil {
		log.Warn("Failed to release muxer: %v", err)
	}
	return result{encoder: params.EncoderName, summary: muxer.Summary()}, nil
}

// openAudio opens an audio source through the file system port. Samples are
// read from the file as they are muxed.
func (r *Runner) openAudio(path string) (*audio.Reader, error) {
	f, err := r.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", media.ErrUnreadableSource, path, err)
	}
	src, err := audio.NewFileReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return src, nil
}

// abort releases the job's resources and removes the partial output.
// Cleanup failures are logged, never returned.
func (r *Runner) abort(log ports.Logger, driver *encoder.Driver, muxer *mux.Muxer, path string) {
	created := muxer.State() != mux.StateUnopened

	var errs *multierror.Error
	if err := driver.Release(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("release encoder: %w", err))
	}
	if err := muxer.Release(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("release muxer: %w", err))
	}
	if created {
		if err := r.fs.Remove(path); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("remove %s: %w", path, err))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		log.Warn("Cleanup failed: %v", err)
	}
}

// submit feeds every image repeat times, then signals end of input.
func submit(ctx context.Context, driver *encoder.Driver, frames ports.FrameSource, repeat int) error {
	var ordinal int64
	for i := 0; i < frames.Len(); i++ {
		img, err := frames.Frame(i)
		if err != nil {
			return fmt.Errorf("read image %d: %w", i, err)
		}
		for k := 0; k < repeat; k++ {
			if err := driver.SubmitFrame(ctx, media.Frame{Ordinal: ordinal, Image: img}); err != nil {
				return err
			}
			ordinal++
		}
	}
	return driver.SignalEndOfInput()
}

// writer is the single writer of one muxer.
type writer struct {
	muxer *mux.Muxer
	mode  AudioMode
	log   ports.Logger

	video   int
	audio   int
	started bool

	next    func() (*media.Packet, error, bool)
	pending *media.Packet
}

func (w *writer) write(packets iter.Seq2[*media.Packet, error], src *audio.Reader) error {
	w.video, w.audio = -1, -1
	if src != nil {
		next, stop := iter.Pull2(src.Packets())
		defer stop()
		w.next = next
	}

	for pkt, err := range packets {
		if err != nil {
			return err
		}
		if pkt.IsCodecConfig() {
			if err := w.open(pkt, src); err != nil {
				return err
			}
			continue
		}
		if !w.started {
			return fmt.Errorf("%w: video packet before codec config", media.ErrInvalidPacket)
		}
		if w.mode == AudioInterleaved {
			if err := w.writeAudio(pkt.PTS); err != nil {
				return err
			}
		}
		if err := w.muxer.WritePacket(w.video, pkt); err != nil {
			return err
		}
	}
	if !w.started {
		return fmt.Errorf("%w: encoder produced no output", media.ErrEncoderFault)
	}
	return w.writeAudio(-1)
}

// open registers the tracks once the video format is known and starts the
// muxer.
func (w *writer) open(pkt *media.Packet, src *audio.Reader) error {
	if w.started {
		return fmt.Errorf("%w: repeated codec config", media.ErrInvalidPacket)
	}
	idx, err := w.muxer.RegisterTrack(media.Track{Kind: media.KindVideo, Format: pkt.Format})
	if err != nil {
		return err
	}
	w.video = idx
	tracks := 1
	if src != nil {
		idx, err := w.muxer.RegisterTrack(media.Track{Kind: media.KindAudio, Format: src.Format()})
		if err != nil {
			return err
		}
		w.audio = idx
		tracks++
	}
	if err := w.muxer.Start(); err != nil {
		return err
	}
	w.started = true
	w.log.Debug("Muxer started with %d tracks", tracks)
	return nil
}

// writeAudio writes audio packets with PTS up to limit; a negative limit
// writes all remaining packets.
func (w *writer) writeAudio(limit int64) error {
	if w.next == nil {
		return nil
	}
	for {
		if w.pending == nil {
			pkt, err, ok := w.next()
			if !ok {
				w.next = nil
				return nil
			}
			if err != nil {
				return err
			}
			w.pending = pkt
		}
		if limit >= 0 && w.pending.PTS > limit {
			return nil
		}
		if err := w.muxer.WritePacket(w.audio, w.pending); err != nil {
			return err
		}
		w.pending = nil
	}
}
