package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/user/framemux/pkg/media"
	"github.com/user/framemux/pkg/ports"
)

// AudioMode selects when audio packets are written relative to video.
type AudioMode string

const (
	// AudioSequential writes all audio after the last video packet.
	AudioSequential AudioMode = "sequential"
	// AudioInterleaved writes audio packets whose PTS is not after the next
	// video packet before that video packet.
	AudioInterleaved AudioMode = "interleaved"
)

// ParseAudioMode parses s; the empty string means AudioSequential.
func ParseAudioMode(s string) (AudioMode, error) {
	switch AudioMode(s) {
	case "", AudioSequential:
		return AudioSequential, nil
	case AudioInterleaved:
		return AudioInterleaved, nil
	default:
		return "", fmt.Errorf("unknown audio mode %q", s)
	}
}

// Job is one image-sequence-to-MP4 conversion.
type Job struct {
	ID        uuid.UUID
	Profile   media.EncodingProfile
	Frames    ports.FrameSource
	AudioMode AudioMode
	// Timeout bounds the whole job; zero means no limit.
	Timeout time.Duration
}

// NewJob creates a job with a fresh ID and sequential audio.
func NewJob(profile media.EncodingProfile, frames ports.FrameSource) Job {
	return Job{
		ID:        uuid.New(),
		Profile:   profile,
		Frames:    frames,
		AudioMode: AudioSequential,
	}
}

// Completion reports the outcome of a job. Err is nil on success.
type Completion struct {
	JobID      uuid.UUID
	OutputPath string
	Err        error
	Kind       media.Kind

	VideoSamples int
	AudioSamples int
	Duration     time.Duration
	FileSize     int64
	Encoder      string
	Elapsed      time.Duration
}

// OK reports whether the job succeeded.
func (c Completion) OK() bool {
	return c.Err == nil
}
