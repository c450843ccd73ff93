// Package imagefiles provides a frame source over image files. PNG, JPEG,
// GIF, BMP, TIFF and WebP are supported; files are decoded when their frame
// is requested.
package imagefiles

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/user/framemux/pkg/ports"
)

var extensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsImage reports whether path has a supported image extension.
func IsImage(path string) bool {
	return extensions[strings.ToLower(filepath.Ext(path))]
}

// Source implements ports.FrameSource over a list of image files.
type Source struct {
	fs    ports.FileSystem
	paths []string
}

// New creates a Source reading paths through fs.
func New(fs ports.FileSystem, paths []string) *Source {
	return &Source{fs: fs, paths: paths}
}

// Len returns the number of images.
func (s *Source) Len() int {
	return len(s.paths)
}

// Paths returns the image paths in frame order.
func (s *Source) Paths() []string {
	return s.paths
}

// Frame decodes image i.
func (s *Source) Frame(i int) (image.Image, error) {
	if i < 0 || i >= len(s.paths) {
		return nil, fmt.Errorf("image %d out of range [0, %d)", i, len(s.paths))
	}
	data, err := s.fs.ReadFile(s.paths[i])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.paths[i], err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.paths[i], err)
	}
	return img, nil
}

// Size returns the dimensions of the first image.
func (s *Source) Size() (width, height int, err error) {
	if len(s.paths) == 0 {
		return 0, 0, fmt.Errorf("no images")
	}
	data, err := s.fs.ReadFile(s.paths[0])
	if err != nil {
		return 0, 0, fmt.Errorf("read %s: %w", s.paths[0], err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("decode %s: %w", s.paths[0], err)
	}
	return cfg.Width, cfg.Height, nil
}

// Expand replaces each directory in args with the image files it contains,
// sorted by name. Files are kept in the given order.
func Expand(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && IsImage(e.Name()) {
				found = append(found, filepath.Join(arg, e.Name()))
			}
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	return paths, nil
}

// Ensure Source implements ports.FrameSource
var _ ports.FrameSource = (*Source)(nil)
