package ffmpegenc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/user/framemux/pkg/media"
	"github.com/user/framemux/pkg/ports"
	"github.com/user/framemux/pkg/profile"
)

// buildArgs returns the ffmpeg command line for cfg. Input is packed RGBA on
// stdin, output an elementary stream on stdout.
func buildArgs(cfg ports.EncoderConfig) ([]string, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("invalid frame rate %v", cfg.FPS)
	}

	gop := cfg.GOPSize
	if gop < 1 {
		gop = 1
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-framerate", strconv.FormatFloat(cfg.FPS, 'f', -1, 64),
		"-i", "pipe:0",
		"-an",
		"-c:v", cfg.Encoder,
		"-pix_fmt", "yuv420p",
		"-g", strconv.Itoa(gop),
	}
	if cfg.BitRate > 0 {
		args = append(args, "-b:v", strconv.Itoa(cfg.BitRate))
	}

	extra, err := encoderArgs(cfg.Encoder, gop)
	if err != nil {
		return nil, err
	}
	args = append(args, extra...)

	out, err := outputArgs(cfg.Codec)
	if err != nil {
		return nil, err
	}
	return append(args, out...), nil
}

// encoderArgs returns per-encoder tuning. B-frames are always disabled so
// that decode order equals presentation order.
func encoderArgs(encoder string, gop int) ([]string, error) {
	switch {
	case encoder == "libx264":
		return []string{"-preset", "fast", "-bf", "0", "-keyint_min", strconv.Itoa(gop), "-sc_threshold", "0"}, nil
	case encoder == "libx265":
		return []string{"-preset", "fast", "-bf", "0", "-x265-params", "log-level=error:scenecut=0:keyint=" + strconv.Itoa(gop)}, nil
	case encoder == "libsvtav1":
		return []string{"-preset", "10"}, nil
	case encoder == "libaom-av1":
		return []string{"-cpu-used", "8", "-row-mt", "1", "-lag-in-frames", "0"}, nil
	case profile.IsHardware(encoder):
		return []string{"-bf", "0"}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEncoder, encoder)
	}
}

// outputArgs selects the elementary stream format. H.264 and H.265 get
// access unit delimiters so the reader can split access units without
// parsing slice headers.
func outputArgs(codec media.Codec) ([]string, error) {
	switch codec {
	case media.CodecAVC:
		return []string{"-bsf:v", "h264_metadata=aud=insert", "-f", "h264", "pipe:1"}, nil
	case media.CodecHEVC:
		return []string{"-bsf:v", "hevc_metadata=aud=insert", "-f", "hevc", "pipe:1"}, nil
	case media.CodecAV1:
		return []string{"-f", "obu", "pipe:1"}, nil
	default:
		return nil, fmt.Errorf("%w: codec %q", ErrUnknownEncoder, codec)
	}
}

// parseEncoders parses the output of "ffmpeg -encoders" into the set of
// video encoder names.
func parseEncoders(out string) map[string]bool {
	encoders := make(map[string]bool)
	inList := false
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !inList {
			if strings.HasPrefix(line, "---") {
				inList = true
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.HasPrefix(fields[0], "V") {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders
}
