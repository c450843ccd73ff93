package ports

import "image"

// FrameSource provides the still images of a job in presentation order.
type FrameSource interface {
	// Len returns the number of images.
	Len() int

	// Frame returns image i, 0 <= i < Len().
	Frame(i int) (image.Image, error)
}
