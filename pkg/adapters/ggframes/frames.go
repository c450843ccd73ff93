// Package ggframes provides a frame source of generated frames drawn with the
// gg library. Each frame is a solid background with an optional label and a
// progress bar.
package ggframes

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"

	"github.com/user/framemux/pkg/ports"
)

// DefaultPalette is cycled through for frame backgrounds.
var DefaultPalette = []color.Color{
	color.RGBA{R: 0xd3, G: 0x2f, B: 0x2f, A: 0xff},
	color.RGBA{R: 0x38, G: 0x8e, B: 0x3c, A: 0xff},
	color.RGBA{R: 0x19, G: 0x76, B: 0xd2, A: 0xff},
	color.RGBA{R: 0xfb, G: 0xc0, B: 0x2d, A: 0xff},
	color.RGBA{R: 0x7b, G: 0x1f, B: 0xa2, A: 0xff},
}

// Options configures generated frames.
type Options struct {
	Width  int
	Height int
	Count  int
	// Palette overrides DefaultPalette.
	Palette []color.Color
	// Label draws "i/count" in the middle of each frame.
	Label bool
	// Progress draws a bar along the bottom edge.
	Progress bool
}

// Source implements ports.FrameSource.
type Source struct {
	opts Options
}

// New creates a Source.
func New(opts Options) (*Source, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", opts.Width, opts.Height)
	}
	if opts.Count < 0 {
		return nil, fmt.Errorf("invalid frame count %d", opts.Count)
	}
	if len(opts.Palette) == 0 {
		opts.Palette = DefaultPalette
	}
	return &Source{opts: opts}, nil
}

// Len returns the number of frames.
func (s *Source) Len() int {
	return s.opts.Count
}

// Frame draws frame i.
func (s *Source) Frame(i int) (image.Image, error) {
	if i < 0 || i >= s.opts.Count {
		return nil, fmt.Errorf("frame %d out of range [0, %d)", i, s.opts.Count)
	}
	w, h := float64(s.opts.Width), float64(s.opts.Height)

	dc := gg.NewContext(s.opts.Width, s.opts.Height)
	dc.SetColor(s.opts.Palette[i%len(s.opts.Palette)])
	dc.Clear()

	if s.opts.Progress {
		barHeight := h / 16
		dc.SetRGBA(0, 0, 0, 0.35)
		dc.DrawRectangle(0, h-barHeight, w, barHeight)
		dc.Fill()
		dc.SetRGB(1, 1, 1)
		dc.DrawRectangle(0, h-barHeight, w*float64(i+1)/float64(s.opts.Count), barHeight)
		dc.Fill()
	}

	if s.opts.Label {
		dc.SetRGB(1, 1, 1)
		dc.DrawStringAnchored(fmt.Sprintf("%d/%d", i+1, s.opts.Count), w/2, h/2, 0.5, 0.5)
	}

	return dc.Image(), nil
}

// Ensure Source implements ports.FrameSource
var _ ports.FrameSource = (*Source)(nil)
