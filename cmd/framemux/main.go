// Package main provides the CLI entry point for framemux.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"github.com/ideamans/go-l10n"

	"github.com/user/framemux/pkg/adapters/ffmpegenc"
	"github.com/user/framemux/pkg/adapters/ggframes"
	"github.com/user/framemux/pkg/adapters/imagefiles"
	"github.com/user/framemux/pkg/adapters/logger"
	"github.com/user/framemux/pkg/adapters/osfilesystem"
	"github.com/user/framemux/pkg/config"
	"github.com/user/framemux/pkg/pipeline"
	"github.com/user/framemux/pkg/ports"
	"github.com/user/framemux/pkg/probe"
	"github.com/user/framemux/pkg/profile"
	"github.com/user/framemux/pkg/summarizer"
)

// CLI defines the command-line interface with subcommands.
type CLI struct {
	Encode  EncodeCmd  `cmd:"" help:"Encode a sequence of images as an MP4 video."`
	Demo    DemoCmd    `cmd:"" help:"Encode generated frames as an MP4 video."`
	Codecs  CodecsCmd  `cmd:"" help:"List supported codecs and the encoders that serve them."`
	Probe   ProbeCmd   `cmd:"" help:"Show the tracks of an MP4 file."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// LogFlags are shared by every command that runs a job.
type LogFlags struct {
	LogLevel string `short:"l" default:"info" enum:"debug,info,warn,error" help:"Log level (debug, info, warn, error)."`
	Quiet    bool   `short:"Q" help:"Suppress all log output."`
}

func (f LogFlags) logger() ports.Logger {
	if f.Quiet {
		return logger.NewNoop()
	}
	return logger.NewConsole(ports.ParseLogLevel(f.LogLevel))
}

// EncodingFlags override values of the configuration file.
type EncodingFlags struct {
	Output         string         `short:"o" help:"Output MP4 file path."`
	Config         string         `short:"c" type:"existingfile" help:"YAML job file."`
	Codec          *string        `help:"Video codec (avc, hevc, av1)."`
	Width          *int           `short:"W" help:"Output video width (default: 320)."`
	Height         *int           `short:"H" help:"Output video height (default: 240)."`
	FPS            *float64       `help:"Frames per second (default: 15)."`
	Bitrate        *int           `short:"b" help:"Video bit rate in bits per second."`
	IFrameInterval *int           `name:"iframe-interval" help:"Seconds between keyframes (0 = every frame)."`
	FramesPerImage *int           `short:"n" help:"Number of frames each image is shown for."`
	Audio          *string        `short:"a" type:"existingfile" help:"MP4, M4A or ADTS file to copy the audio track from."`
	Interleave     bool           `help:"Interleave audio with video instead of appending it."`
	Timeout        *time.Duration `help:"Abort the job after this duration."`
	FFmpegPath     string         `name:"ffmpeg-path" help:"Path to ffmpeg (falls back to FFMPEG_PATH env, then PATH)."`
	NoHardware     bool           `help:"Use software encoders only."`
	Summary        string         `short:"s" help:"Output execution summary to file (Markdown format)."`
}

// load builds the configuration from the job file and the flags.
func (f EncodingFlags) load() (config.Config, error) {
	cfg := config.Defaults()
	if f.Config != "" {
		var err error
		if cfg, err = config.LoadFromFile(f.Config); err != nil {
			return cfg, err
		}
	}

	if f.Output != "" {
		cfg.OutputPath = f.Output
	}
	if f.Codec != nil {
		cfg.Codec = *f.Codec
	}
	if f.Width != nil {
		cfg.Width = *f.Width
	}
	if f.Height != nil {
		cfg.Height = *f.Height
	}
	if f.FPS != nil {
		cfg.FPS = *f.FPS
	}
	if f.Bitrate != nil {
		cfg.Bitrate = *f.Bitrate
	}
	if f.IFrameInterval != nil {
		cfg.IFrameInterval = *f.IFrameInterval
	}
	if f.FramesPerImage != nil {
		cfg.FramesPerImage = *f.FramesPerImage
	}
	if f.Audio != nil {
		cfg.Audio = *f.Audio
	}
	if f.Interleave {
		cfg.AudioMode = string(pipeline.AudioInterleaved)
	}
	if f.Timeout != nil {
		cfg.Timeout = *f.Timeout
	}
	if f.FFmpegPath != "" {
		cfg.FFmpegPath = f.FFmpegPath
	}
	if f.NoHardware {
		cfg.AllowHardware = false
	}

	if cfg.OutputPath == "" {
		return cfg, fmt.Errorf("%s", l10n.T("Output path is required"))
	}
	return cfg, nil
}

// EncodeCmd defines the encode subcommand.
type EncodeCmd struct {
	Images []string `arg:"" optional:"" help:"Image files or directories, in order."`

	EncodingFlags `embed:""`
	LogFlags      `embed:""`
}

// DemoCmd defines the demo subcommand.
type DemoCmd struct {
	Count    int      `default:"10" help:"Number of frames to generate."`
	Palette  []string `help:"Background colors (hex, e.g., #1976d2)."`
	NoLabel  bool     `help:"Do not draw the frame number."`
	Progress bool     `help:"Draw a progress bar."`

	EncodingFlags `embed:""`
	LogFlags      `embed:""`
}

// CodecsCmd defines the codecs subcommand.
type CodecsCmd struct {
	FFmpegPath string `name:"ffmpeg-path" help:"Path to ffmpeg (falls back to FFMPEG_PATH env, then PATH)."`
	NoHardware bool   `help:"Use software encoders only."`
}

// ProbeCmd defines the probe subcommand.
type ProbeCmd struct {
	Path string `arg:"" type:"existingfile" help:"MP4 file to inspect."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

var version = "dev"

func main() {
	cli := CLI{}

	ctx := kong.Parse(&cli,
		kong.Name("framemux"),
		kong.Description(l10n.T("Encode image sequences into MP4 videos with an optional audio track.")),
		kong.UsageOnError(),
	)

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

// Run executes the encode command.
func (cmd *EncodeCmd) Run() error {
	cfg, err := cmd.load()
	if err != nil {
		return err
	}

	args := cmd.Images
	if len(args) == 0 {
		args = cfg.Images
	}
	paths, err := imagefiles.Expand(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("%s", l10n.T("No input images"))
	}

	fs := osfilesystem.New()
	return run(cfg, imagefiles.New(fs, paths), cmd.Summary, cmd.logger())
}

// Run executes the demo command.
func (cmd *DemoCmd) Run() error {
	cfg, err := cmd.load()
	if err != nil {
		return err
	}
	if len(cmd.Palette) > 0 {
		cfg.Palette = cmd.Palette
	}

	frames, err := ggframes.New(ggframes.Options{
		Width:    cfg.Width,
		Height:   cfg.Height,
		Count:    cmd.Count,
		Palette:  cfg.PaletteColors(),
		Label:    !cmd.NoLabel,
		Progress: cmd.Progress,
	})
	if err != nil {
		return err
	}

	return run(cfg, frames, cmd.Summary, cmd.logger())
}

// run encodes frames with the job described by cfg and writes a summary to
// summaryPath when it is set.
func run(cfg config.Config, frames ports.FrameSource, summaryPath string, log ports.Logger) error {
	job, err := cfg.ToJob(frames)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			log.Warn("Interrupted, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	backend := ffmpegenc.New(cfg.BackendOptions(log))
	fs := osfilesystem.New()
	runner := pipeline.New(backend, backend, fs, log, cfg.ProfileOptions())

	completion := runner.Run(ctx, job)

	if summaryPath != "" {
		writeSummary(fs, summaryPath, job, completion, log)
	}

	if !completion.OK() {
		return completion.Err
	}
	return nil
}

func writeSummary(fs ports.FileSystem, path string, job pipeline.Job, c pipeline.Completion, log ports.Logger) {
	b := summarizer.NewBuilder().WithJob(job).WithCompletion(c)
	if c.OK() {
		info, err := probe.File(c.OutputPath)
		if err != nil {
			log.Warn("Failed to probe %s: %v", c.OutputPath, err)
		}
		b.WithProbe(info)
	}

	w := summarizer.NewWriter(fs, summarizer.NewMarkdownFormatter(summarizer.WithVersion(version)))
	if err := w.Write(path, b.Build()); err != nil {
		log.Warn("Failed to write summary: %s", err)
		return
	}
	log.Info("Summary saved to %s", path)
}

// Run executes the codecs command.
func (cmd *CodecsCmd) Run() error {
	// Hardware encoders are listed only after a test encode succeeded.
	backend := ffmpegenc.New(ffmpegenc.Options{
		FFmpegPath:     cmd.FFmpegPath,
		VerifyHardware: !cmd.NoHardware,
	})
	p := profile.New(backend, profile.Options{AllowHardware: !cmd.NoHardware})

	infos, err := p.Available(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("%-6s %-12s %s\n", l10n.T("Codec"), l10n.T("MIME"), l10n.T("Encoder"))
	for _, info := range infos {
		encoder := l10n.T("unavailable")
		if info.Available {
			encoder = info.Encoder
			if info.Hardware {
				encoder += " (" + l10n.T("hardware") + ")"
			}
		}
		fmt.Printf("%-6s %-12s %s\n", info.Codec, info.MIME, encoder)
	}
	return nil
}

// Run executes the probe command.
func (cmd *ProbeCmd) Run() error {
	info, err := probe.File(cmd.Path)
	if err != nil {
		return err
	}
	st, err := os.Stat(cmd.Path)
	if err != nil {
		return err
	}

	layout := l10n.T("progressive")
	if info.Fragmented {
		layout = l10n.T("fragmented")
	}
	fmt.Println(l10n.F("%s: %s, %s, brands %s", cmd.Path, humanize.Bytes(uint64(st.Size())), layout, strings.Join(info.Brands, ",")))
	fmt.Println(l10n.F("Duration: %s", info.Duration))

	for _, t := range info.Tracks {
		switch {
		case t.Width > 0:
			fmt.Println(l10n.F("Track %d: %s %s %dx%d, %d samples (%d sync), %s",
				t.ID, t.Kind, t.Codec, t.Width, t.Height, t.SampleCount, t.SyncSamples, t.Duration))
		case t.SampleRate > 0:
			fmt.Println(l10n.F("Track %d: %s %s %d Hz %d ch, %d samples, %s",
				t.ID, t.Kind, t.Codec, t.SampleRate, t.Channels, t.SampleCount, t.Duration))
		default:
			fmt.Println(l10n.F("Track %d: %s %s, %d samples, %s",
				t.ID, t.Kind, t.Codec, t.SampleCount, t.Duration))
		}
	}
	return nil
}

// Run executes the version command.
func (cmd *VersionCmd) Run() error {
	fmt.Println(l10n.F("framemux version %s", version))
	return nil
}
