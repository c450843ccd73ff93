package mocks

import (
	"fmt"
	"image"
	"image/color"

	"github.com/user/framemux/pkg/ports"
)

// FrameSource is a mock implementation of ports.FrameSource.
type FrameSource struct {
	Count     int
	Width     int
	Height    int
	FrameFunc func(i int) (image.Image, error)

	// Recorded calls for verification
	FrameCalls []int
}

// NewFrameSource returns count solid frames of the given size.
func NewFrameSource(count, width, height int) *FrameSource {
	return &FrameSource{Count: count, Width: width, Height: height}
}

func (m *FrameSource) Len() int {
	return m.Count
}

func (m *FrameSource) Frame(i int) (image.Image, error) {
	m.FrameCalls = append(m.FrameCalls, i)
	if m.FrameFunc != nil {
		return m.FrameFunc(i)
	}
	if i < 0 || i >= m.Count {
		return nil, fmt.Errorf("frame %d out of range", i)
	}
	img := image.NewRGBA(image.Rect(0, 0, m.Width, m.Height))
	c := color.RGBA{R: uint8(i * 40), G: 128, B: 255 - uint8(i*40), A: 255}
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img, nil
}

var _ ports.FrameSource = (*FrameSource)(nil)
