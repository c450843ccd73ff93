package summarizer

import (
	"errors"
	"strings"
	"testing"

	"github.com/user/framemux/pkg/mocks"
	"github.com/user/framemux/pkg/ports"
)

func TestWriter_Write(t *testing.T) {
	fs := mocks.NewFileSystem()
	w := NewWriter(fs, FormatFunc(func(s *Summary) string {
		return "summary of " + s.Job.Output
	}))

	summary := NewSummary()
	summary.Job.Output = "out.mp4"

	if err := w.Write("reports/out.md", summary); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, ok := fs.GetFile("reports/out.md")
	if !ok {
		t.Fatal("summary file not created")
	}
	if string(data) != "summary of out.mp4" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestWriter_CreateError(t *testing.T) {
	fs := mocks.NewFileSystem()
	fs.CreateFunc = func(path string) (ports.OutputFile, error) {
		return nil, errors.New("read-only")
	}
	w := NewWriter(fs, NewMarkdownFormatter())

	err := w.Write("out.md", NewSummary())
	if err == nil || !strings.Contains(err.Error(), "read-only") {
		t.Errorf("expected create error, got %v", err)
	}
}
