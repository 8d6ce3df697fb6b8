package transform

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
)

// writeTestJPEG writes a gradient JPEG of the given size and returns its path.
func writeTestJPEG(t *testing.T, dir string, width, height int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}

	path := filepath.Join(dir, "input.jpg")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create test image: %v", err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return path
}

func TestRungDimensions(t *testing.T) {
	tests := []struct {
		name       string
		origW      int
		origH      int
		edge       int
		wantWidth  int
		wantHeight int
	}{
		{name: "landscape 4:3 at 360", origW: 4000, origH: 3000, edge: 360, wantWidth: 480, wantHeight: 360},
		{name: "landscape 4:3 at 180", origW: 4000, origH: 3000, edge: 180, wantWidth: 240, wantHeight: 180},
		{name: "landscape 4:3 at 1080", origW: 4000, origH: 3000, edge: 1080, wantWidth: 1440, wantHeight: 1080},
		{name: "portrait keeps width at edge", origW: 3000, origH: 4000, edge: 360, wantWidth: 360, wantHeight: 480},
		{name: "square", origW: 2000, origH: 2000, edge: 720, wantWidth: 720, wantHeight: 720},
		{name: "wide panorama", origW: 8000, origH: 2000, edge: 360, wantWidth: 1440, wantHeight: 360},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := rungDimensions(tt.origW, tt.origH, tt.edge)
			if w != tt.wantWidth || h != tt.wantHeight {
				t.Errorf("rungDimensions(%d, %d, %d) = (%d, %d), want (%d, %d)",
					tt.origW, tt.origH, tt.edge, w, h, tt.wantWidth, tt.wantHeight)
			}
		})
	}
}

func TestImageTransformer_Transform(t *testing.T) {
	dir := t.TempDir()
	input := writeTestJPEG(t, dir, 1600, 1200)

	outDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatal(err)
	}

	tr := NewImageTransformer(nil)
	outputs, meta, err := tr.Transform(context.Background(), input, outDir)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	if meta.Width != 1600 || meta.Height != 1200 {
		t.Errorf("metadata = %dx%d, want 1600x1200", meta.Width, meta.Height)
	}

	byQuality := make(map[string]Output, len(outputs))
	for _, out := range outputs {
		byQuality[out.Quality] = out
		if out.ByteSize <= 0 {
			t.Errorf("output %s has no bytes on disk", out.Quality)
		}
		if _, err := os.Stat(out.LocalPath); err != nil {
			t.Errorf("output %s missing from disk: %v", out.Quality, err)
		}
	}

	thumb, ok := byQuality["thumbnail"]
	if !ok {
		t.Fatal("no thumbnail generated")
	}
	if thumb.Width != 256 || thumb.Height != 256 {
		t.Errorf("thumbnail = %dx%d, want 256x256", thumb.Width, thumb.Height)
	}
	if thumb.Kind != KindThumbnail {
		t.Errorf("thumbnail kind = %q", thumb.Kind)
	}

	for _, want := range []struct {
		quality string
		width   int
		height  int
	}{
		{"180p", 240, 180},
		{"360p", 480, 360},
		{"720p", 960, 720},
		{"1080p", 1440, 1080},
	} {
		out, ok := byQuality[want.quality]
		if !ok {
			t.Errorf("missing %s variant", want.quality)
			continue
		}
		if out.Width != want.width || out.Height != want.height {
			t.Errorf("%s = %dx%d, want %dx%d",
				want.quality, out.Width, out.Height, want.width, want.height)
		}
		if out.Kind != KindResolutionVariant {
			t.Errorf("%s kind = %q", want.quality, out.Kind)
		}
	}
}

func TestImageTransformer_NoUpscale(t *testing.T) {
	dir := t.TempDir()
	input := writeTestJPEG(t, dir, 400, 300)

	tr := NewImageTransformer(nil)
	outputs, _, err := tr.Transform(context.Background(), input, dir)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	// 360p would be 480x360, larger than the 400x300 source; only the
	// thumbnail and the 180p rung may appear
	for _, out := range outputs {
		if out.Kind == KindThumbnail {
			continue
		}
		if out.Width >= 400 || out.Height >= 300 {
			t.Errorf("upscaled variant generated: %s %dx%d", out.Quality, out.Width, out.Height)
		}
	}
}

func TestImageTransformer_CorruptInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.jpg")
	if err := os.WriteFile(path, []byte("not an image at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := NewImageTransformer(nil)
	_, _, err := tr.Transform(context.Background(), path, dir)
	if err == nil {
		t.Fatal("Transform() succeeded on garbage input")
	}
}

func TestImageTransformer_Probe(t *testing.T) {
	dir := t.TempDir()
	input := writeTestJPEG(t, dir, 800, 600)

	tr := NewImageTransformer(nil)
	meta, err := tr.Probe(input)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if meta.Width != 800 || meta.Height != 600 {
		t.Errorf("Probe() = %dx%d, want 800x600", meta.Width, meta.Height)
	}
	if meta.Format != "jpeg" {
		t.Errorf("Probe() format = %q, want jpeg", meta.Format)
	}
}
