package summarizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ideamans/go-l10n"
)

// MarkdownFormatter renders a Summary as a Markdown document.
type MarkdownFormatter struct {
	translate func(string) string
	version   string
}

// MarkdownOption configures a MarkdownFormatter.
type MarkdownOption func(*MarkdownFormatter)

// WithTranslator replaces the default l10n translation of labels.
func WithTranslator(t func(string) string) MarkdownOption {
	return func(f *MarkdownFormatter) {
		f.translate = t
	}
}

// WithVersion adds the program version to the footer.
func WithVersion(v string) MarkdownOption {
	return func(f *MarkdownFormatter) {
		f.version = v
	}
}

// NewMarkdownFormatter creates a MarkdownFormatter.
func NewMarkdownFormatter(opts ...MarkdownOption) *MarkdownFormatter {
	f := &MarkdownFormatter{translate: l10n.T}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format implements Formatter.
func (f *MarkdownFormatter) Format(s *Summary) string {
	t := f.translate
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", t("Encoding Summary"))
	fmt.Fprintf(&b, "%s: %s\n\n", t("Generated"), s.GeneratedAt.Format(time.RFC3339))

	// Results
	fmt.Fprintf(&b, "## %s\n\n", t("Results"))
	f.tableHeader(&b)
	row(&b, t("Output"), s.Job.Output)
	if s.Job.Error != "" {
		row(&b, t("Status"), t("Failed")+": "+s.Job.Error)
	} else {
		row(&b, t("Status"), t("Succeeded"))
	}
	if s.Job.Encoder != "" {
		row(&b, t("Encoder"), s.Job.Encoder)
	}
	row(&b, t("Elapsed"), s.Job.Elapsed.Round(time.Millisecond).String())
	if s.Job.Error == "" {
		row(&b, t("File Size"), humanize.Bytes(uint64(s.File.Size)))
		row(&b, t("Video Duration"), s.File.Duration.String())
		if len(s.File.Brands) > 0 {
			row(&b, t("Brands"), strings.Join(s.File.Brands, ", "))
		}
	}
	row(&b, t("Job ID"), s.Job.ID)
	b.WriteString("\n")

	// Settings
	st := s.Settings
	fmt.Fprintf(&b, "## %s\n\n", t("Settings"))
	f.tableHeader(&b)
	row(&b, t("Codec"), st.Codec)
	row(&b, t("Frame Size"), fmt.Sprintf("%dx%d", st.Width, st.Height))
	row(&b, t("Frame Rate"), fmt.Sprintf("%v fps", st.FPS))
	row(&b, t("Bit Rate"), humanize.SI(float64(st.BitRate), "bps"))
	if st.IFrameInterval == 0 {
		row(&b, t("Keyframe Interval"), t("Every frame"))
	} else {
		row(&b, t("Keyframe Interval"), fmt.Sprintf("%ds", st.IFrameInterval))
	}
	row(&b, t("Images"), fmt.Sprintf("%d", st.Images))
	row(&b, t("Frames per Image"), fmt.Sprintf("%d", st.FramesPerImage))
	if st.AudioSource == "" {
		row(&b, t("Audio Source"), t("None"))
	} else {
		row(&b, t("Audio Source"), st.AudioSource)
		row(&b, t("Audio Mode"), st.AudioMode)
	}
	b.WriteString("\n")

	// Tracks
	if len(s.Tracks) > 0 {
		fmt.Fprintf(&b, "## %s\n\n", t("Tracks"))
		fmt.Fprintf(&b, "| # | %s | %s | %s | %s | %s |\n", t("Kind"), t("Codec"), t("Samples"), t("Duration"), t("Details"))
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, tr := range s.Tracks {
			fmt.Fprintf(&b, "| %d | %s | %s | %d | %s | %s |\n",
				tr.ID, tr.Kind, tr.Codec, tr.Samples, tr.Duration, f.details(tr))
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n")
	if f.version != "" {
		fmt.Fprintf(&b, "%s framemux %s\n", t("Generated by"), f.version)
	} else {
		fmt.Fprintf(&b, "%s framemux\n", t("Generated by"))
	}

	return b.String()
}

func (f *MarkdownFormatter) tableHeader(b *strings.Builder) {
	fmt.Fprintf(b, "| %s | %s |\n", f.translate("Item"), f.translate("Value"))
	b.WriteString("|---|---|\n")
}

func (f *MarkdownFormatter) details(tr TrackInfo) string {
	switch {
	case tr.Width > 0:
		return fmt.Sprintf("%dx%d, %d %s", tr.Width, tr.Height, tr.SyncSamples, f.translate("keyframes"))
	case tr.SampleRate > 0:
		return fmt.Sprintf("%d Hz, %d ch", tr.SampleRate, tr.Channels)
	default:
		return ""
	}
}

func row(b *strings.Builder, item, value string) {
	fmt.Fprintf(b, "| %s | %s |\n", item, value)
}

var _ Formatter = (*MarkdownFormatter)(nil)
