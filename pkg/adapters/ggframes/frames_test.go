package ggframes

import (
	"image/color"
	"testing"
)

func TestSource_Frames(t *testing.T) {
	s, err := New(Options{Width: 64, Height: 48, Count: 3})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Len())
	}

	for i := 0; i < 3; i++ {
		img, err := s.Frame(i)
		if err != nil {
			t.Fatalf("Frame(%d) failed: %v", i, err)
		}
		b := img.Bounds()
		if b.Dx() != 64 || b.Dy() != 48 {
			t.Errorf("Frame(%d) size = %dx%d, want 64x48", i, b.Dx(), b.Dy())
		}
		want := color.RGBAModel.Convert(DefaultPalette[i]).(color.RGBA)
		got := color.RGBAModel.Convert(img.At(1, 1)).(color.RGBA)
		if got != want {
			t.Errorf("Frame(%d) background = %v, want %v", i, got, want)
		}
	}

	if _, err := s.Frame(3); err == nil {
		t.Error("expected error for out-of-range frame")
	}
}

func TestSource_LabelAndProgress(t *testing.T) {
	s, err := New(Options{
		Width:    64,
		Height:   64,
		Count:    2,
		Palette:  []color.Color{color.Black},
		Label:    true,
		Progress: true,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	img, err := s.Frame(0)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}

	// The bar covers the left half of the bottom rows on frame 1 of 2.
	if r, _, _, _ := img.At(2, 62).RGBA(); r != 0xffff {
		t.Errorf("progress bar pixel red = %#x, want 0xffff", r)
	}
	if r, _, _, _ := img.At(60, 62).RGBA(); r == 0xffff {
		t.Error("progress bar extends past its fraction")
	}

	lit := 0
	for y := 20; y < 44; y++ {
		for x := 8; x < 56; x++ {
			if r, _, _, _ := img.At(x, y).RGBA(); r > 0x8000 {
				lit++
			}
		}
	}
	if lit == 0 {
		t.Error("expected label pixels in the middle of the frame")
	}
}

func TestNew_Invalid(t *testing.T) {
	if _, err := New(Options{Width: 0, Height: 10, Count: 1}); err == nil {
		t.Error("expected error for zero width")
	}
	if _, err := New(Options{Width: 10, Height: 10, Count: -1}); err == nil {
		t.Error("expected error for negative count")
	}
}
