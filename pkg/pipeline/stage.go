// Package pipeline runs encoding jobs: it resolves the encoder, drives it
// frame by frame and writes the encoded video, together with an optional
// audio track, into one MP4 file.
package pipeline

import (
	"context"
)

// Stage is one step of a job that turns an input into an output.
type Stage[In, Out any] interface {
	Execute(ctx context.Context, input In) (Out, error)
}
