// Package encoder drives a video encoder backend: frames are submitted one
// at a time into a small pool of reusable input buffers, and encoded packets
// are drained lazily with presentation timestamps computed from frame
// ordinals.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"iter"
	"sync"

	"golang.org/x/image/draw"

	"github.com/user/framemux/pkg/bitstream"
	"github.com/user/framemux/pkg/media"
	"github.com/user/framemux/pkg/ports"
	"github.com/user/framemux/pkg/profile"
)

var errDrainAbandoned = errors.New("encoder: drain abandoned by consumer")

// Driver is a single-use video encoder session.
//
// SubmitFrame and SignalEndOfInput are called from one goroutine; Drain may
// be consumed from another. Release may be called from any goroutine.
type Driver struct {
	backend ports.CodecBackend
	log     ports.Logger

	mu          sync.Mutex
	configured  bool
	submitted   int64 // frames handed to the feeder
	inputClosed bool
	draining    bool
	drainUsed   bool
	done        bool
	released    bool
	err         error

	params        profile.EncoderParameters
	frameDuration int64
	session       ports.EncoderSession
	splitter      bitstream.Splitter

	free       chan []byte
	queue      chan []byte
	feederDone chan struct{}
	failed     chan struct{}
	failOnce   sync.Once
}

// New creates an idle Driver.
func New(backend ports.CodecBackend, logger ports.Logger) *Driver {
	return &Driver{
		backend: backend,
		log:     logger.WithComponent("encoder"),
		failed:  make(chan struct{}),
	}
}

// State returns the current state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stateLocked()
}

func (d *Driver) stateLocked() State {
	switch {
	case d.err != nil:
		return StateFailed
	case d.done:
		return StateDone
	case d.inputClosed && d.draining:
		return StateDraining
	case d.inputClosed:
		return StateEndOfStreamSignaled
	case d.submitted > 0 || d.draining:
		return StateRunning
	case d.configured:
		return StateConfigured
	default:
		return StateIdle
	}
}

// Err returns the error that moved the driver to StateFailed.
func (d *Driver) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Configure starts the backend encoder. A backend that refuses the
// parameters only after starting is reported by Drain as ErrCodecConfig.
func (d *Driver) Configure(ctx context.Context, params profile.EncoderParameters) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if st := d.stateLocked(); st != StateIdle || d.released {
		return fmt.Errorf("%w: configure in state %s", media.ErrInvalidState, st)
	}
	if params.BufferCount <= 0 {
		params.BufferCount = profile.DefaultBufferCount
	}

	session, err := d.backend.Start(ctx, params.EncoderConfig())
	if err != nil {
		d.failLocked(err)
		return fmt.Errorf("%w: %s: %w", media.ErrCodecConfig, params.EncoderName, err)
	}
	splitter, err := bitstream.NewSplitter(params.Codec, session)
	if err != nil {
		session.Kill()
		d.failLocked(err)
		return fmt.Errorf("%w: %w", media.ErrCodecConfig, err)
	}

	d.params = params
	d.frameDuration = params.FrameDuration()
	d.session = session
	d.splitter = splitter

	frameSize := params.Width * params.Height * 4
	d.free = make(chan []byte, params.BufferCount)
	d.queue = make(chan []byte, params.BufferCount)
	for i := 0; i < params.BufferCount; i++ {
		d.free <- make([]byte, frameSize)
	}
	d.feederDone = make(chan struct{})
	go d.feed(session)

	d.configured = true
	d.log.Debug("Configured %s (%s) %dx%d @ %v fps, %d bps, GOP %d",
		params.EncoderName, params.Codec, params.Width, params.Height, params.FPS, params.BitRate, params.GOPSize)
	return nil
}

// SubmitFrame renders frame into a free input buffer and queues it for the
// encoder. It blocks until a buffer is free.
func (d *Driver) SubmitFrame(ctx context.Context, frame media.Frame) error {
	d.mu.Lock()
	st := d.stateLocked()
	if (st != StateConfigured && st != StateRunning) || d.released {
		d.mu.Unlock()
		return fmt.Errorf("%w: submit frame in state %s", media.ErrInvalidState, st)
	}
	if frame.Ordinal != d.submitted {
		expected := d.submitted
		d.mu.Unlock()
		return fmt.Errorf("%w: got %d, expected %d", media.ErrFrameOrdinal, frame.Ordinal, expected)
	}
	d.mu.Unlock()

	var buf []byte
	select {
	case buf = <-d.free:
	case <-d.failed:
		return d.failure()
	case <-ctx.Done():
		return fmt.Errorf("submit frame %d: %w", frame.Ordinal, ctx.Err())
	}

	d.render(buf, frame.Image)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		d.free <- buf
		return fault(d.err)
	}
	if d.inputClosed || d.released {
		d.free <- buf
		return fmt.Errorf("%w: encoder stopped while submitting frame %d", media.ErrInvalidState, frame.Ordinal)
	}
	d.queue <- buf
	d.submitted++
	return nil
}

// render scales img into buf as packed RGBA.
func (d *Driver) render(buf []byte, img image.Image) {
	w, h := d.params.Width, d.params.Height
	dst := &image.RGBA{Pix: buf, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}
	if img == nil {
		clear(buf)
		return
	}

	b := img.Bounds()
	if src, ok := img.(*image.RGBA); ok && b.Dx() == w && b.Dy() == h {
		for y := 0; y < h; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(buf[y*w*4:(y+1)*w*4], src.Pix[off:off+w*4])
		}
		return
	}
	if b.Dx() == w && b.Dy() == h {
		draw.Draw(dst, dst.Rect, img, b.Min, draw.Src)
		return
	}
	draw.BiLinear.Scale(dst, dst.Rect, img, b, draw.Src, nil)
}

// SignalEndOfInput closes the encoder input once the queued frames are written.
func (d *Driver) SignalEndOfInput() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if st := d.stateLocked(); st != StateRunning || d.inputClosed || d.released {
		return fmt.Errorf("%w: end of input in state %s", media.ErrInvalidState, st)
	}
	d.inputClosed = true
	close(d.queue)
	d.log.Debug("End of input after %d frames", d.submitted)
	return nil
}

// feed writes queued buffers to the backend and returns them to the pool.
func (d *Driver) feed(session ports.EncoderSession) {
	defer close(d.feederDone)

	var writeErr error
	for buf := range d.queue {
		if writeErr == nil {
			if _, err := session.Write(buf); err != nil {
				writeErr = err
				d.fail(fmt.Errorf("write frame: %w", err))
			}
		}
		d.free <- buf
	}
	if err := session.CloseInput(); err != nil && writeErr == nil {
		d.fail(fmt.Errorf("close input: %w", err))
	}
}

// Drain returns the encoded packets. The first element is a codec-config
// packet carrying the negotiated *media.VideoFormat; every following packet
// is one access unit with PTS = outputOrdinal * frameDuration. The last
// packet carries media.FlagEndOfStream and is only yielded after the backend
// exited cleanly.
//
// Packet data is valid until the next iteration step. The sequence can be
// consumed once.
func (d *Driver) Drain() iter.Seq2[*media.Packet, error] {
	return func(yield func(*media.Packet, error) bool) {
		d.mu.Lock()
		if !d.configured || d.drainUsed || d.released {
			st := d.stateLocked()
			d.mu.Unlock()
			yield(nil, fmt.Errorf("%w: drain in state %s", media.ErrInvalidState, st))
			return
		}
		if d.err != nil {
			err := d.err
			d.mu.Unlock()
			yield(nil, fault(err))
			return
		}
		d.drainUsed = true
		d.draining = true
		d.mu.Unlock()

		if err := d.drain(yield); err != nil {
			d.fail(err)
			if !errors.Is(err, errDrainAbandoned) {
				yield(nil, fault(err))
			}
		}
	}
}

func (d *Driver) drain(yield func(*media.Packet, error) bool) error {
	var (
		ordinal    int64
		formatSent bool
		held       *media.Packet
		bufs       [2][]byte
		cur        int
	)

	for {
		au, err := d.splitter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read encoder output: %w", err)
		}

		if !formatSent {
			format, err := d.format()
			if err != nil {
				return err
			}
			sentinel := &media.Packet{Kind: media.KindVideo, Flags: media.FlagCodecConfig, Format: format}
			if !yield(sentinel, nil) {
				return errDrainAbandoned
			}
			formatSent = true
		}

		if held != nil {
			if !yield(held, nil) {
				return errDrainAbandoned
			}
		}

		// Two alternating buffers keep the held packet valid while the
		// next access unit is read.
		bufs[cur] = append(bufs[cur][:0], au.Data...)
		pkt := &media.Packet{
			Kind:     media.KindVideo,
			PTS:      ordinal * d.frameDuration,
			Duration: d.frameDuration,
		}
		pkt.SetPayload(bufs[cur], 0, len(au.Data))
		if au.Keyframe {
			pkt.Flags |= media.FlagKeyframe
		}
		d.log.Debug("Access unit %d: %d bytes, pts %d, keyframe %v", ordinal, len(au.Data), pkt.PTS, au.Keyframe)

		held = pkt
		cur ^= 1
		ordinal++
	}

	if err := d.session.Wait(); err != nil {
		d.mu.Lock()
		released := d.released
		d.mu.Unlock()
		if ordinal == 0 && !released {
			// The encoder exited without output: it rejected its parameters.
			return fmt.Errorf("%w: %s: %w", media.ErrCodecConfig, d.params.EncoderName, err)
		}
		return err
	}

	d.mu.Lock()
	inputClosed := d.inputClosed
	d.mu.Unlock()
	if !inputClosed {
		return fmt.Errorf("encoder exited before end of input")
	}
	<-d.feederDone

	d.mu.Lock()
	submitted, failure := d.submitted, d.err
	d.mu.Unlock()
	if failure != nil {
		return failure
	}
	if ordinal != submitted {
		return fmt.Errorf("encoder produced %d access units for %d frames", ordinal, submitted)
	}

	if held != nil {
		held.Flags |= media.FlagEndOfStream
		if !yield(held, nil) {
			return errDrainAbandoned
		}
	}

	d.mu.Lock()
	d.done = true
	d.draining = false
	d.mu.Unlock()
	d.log.Debug("Drained %d access units", ordinal)
	return nil
}

// format builds the output format from the configuration seen in the stream.
func (d *Driver) format() (*media.VideoFormat, error) {
	cfg := d.splitter.Config()
	if !cfg.Ready(d.params.Codec) {
		return nil, fmt.Errorf("%s stream has no codec configuration before its first access unit", d.params.Codec)
	}
	return &media.VideoFormat{
		Codec:          d.params.Codec,
		Width:          d.params.Width,
		Height:         d.params.Height,
		FrameDuration:  d.frameDuration,
		VPS:            cfg.VPS,
		SPS:            cfg.SPS,
		PPS:            cfg.PPS,
		SequenceHeader: cfg.SequenceHeader,
	}, nil
}

// Release stops the backend and waits for the feeder. It is safe to call
// more than once and from any state.
func (d *Driver) Release() error {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return nil
	}
	d.released = true
	session := d.session
	done := d.done
	if d.configured && !d.inputClosed {
		d.inputClosed = true
		close(d.queue)
	}
	d.mu.Unlock()

	d.failOnce.Do(func() { close(d.failed) })

	var err error
	if session != nil && !done {
		err = session.Kill()
	}
	if d.feederDone != nil {
		<-d.feederDone
	}
	return err
}

func (d *Driver) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failLocked(err)
}

func (d *Driver) failLocked(err error) {
	if d.err == nil {
		d.err = err
		d.draining = false
		d.log.Debug("Failed: %v", err)
	}
	d.failOnce.Do(func() { close(d.failed) })
}

func (d *Driver) failure() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return fault(d.err)
	}
	return fmt.Errorf("%w: encoder released", media.ErrInvalidState)
}

func fault(err error) error {
	if errors.Is(err, media.ErrEncoderFault) || errors.Is(err, media.ErrInvalidState) || errors.Is(err, media.ErrCodecConfig) {
		return err
	}
	return fmt.Errorf("%w: %w", media.ErrEncoderFault, err)
}
