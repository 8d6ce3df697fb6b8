package transform

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/pixelforge/media-worker/internal/logger"
)

// ImageRung is one quality level of the image resolution ladder. Edge is
// both the target width and the minimum height ("square-min" ladder): the
// height is derived from the aspect ratio, and if it comes out below Edge
// the width is recomputed from the height instead.
type ImageRung struct {
	Label string
	Edge  int
}

// DefaultImageLadder is ordered smallest to largest.
var DefaultImageLadder = []ImageRung{
	{Label: "180p", Edge: 180},
	{Label: "360p", Edge: 360},
	{Label: "720p", Edge: 720},
	{Label: "1080p", Edge: 1080},
}

type ImageConfig struct {
	ThumbnailSize int
	JPEGQuality   int
	Ladder        []ImageRung
}

func DefaultImageConfig() *ImageConfig {
	return &ImageConfig{
		ThumbnailSize: 256,
		JPEGQuality:   85,
		Ladder:        DefaultImageLadder,
	}
}

// ImageTransformer derives a square thumbnail and a resolution ladder from
// a local image file.
type ImageTransformer struct {
	config *ImageConfig
}

func NewImageTransformer(cfg *ImageConfig) *ImageTransformer {
	if cfg == nil {
		cfg = DefaultImageConfig()
	}
	return &ImageTransformer{config: cfg}
}

// Probe decodes just the image header.
func (t *ImageTransformer) Probe(path string) (*ImageMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedFile, err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedFile, err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedFile, err)
	}

	return &ImageMetadata{
		Width:    cfg.Width,
		Height:   cfg.Height,
		Format:   format,
		FileSize: fi.Size(),
	}, nil
}

// Transform produces the thumbnail and every ladder variant strictly smaller
// than the original in both axes. EXIF orientation is baked into pixel data
// before any resize. A failed ladder rung is logged and skipped; the result
// is only an error when nothing at all was generated.
func (t *ImageTransformer) Transform(ctx context.Context, inputPath, outDir string) ([]Output, *ImageMetadata, error) {
	log := logger.FromContext(ctx)

	img, err := imaging.Open(inputPath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorruptedFile, err)
	}

	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	meta := &ImageMetadata{Width: origW, Height: origH}
	if fi, err := os.Stat(inputPath); err == nil {
		meta.FileSize = fi.Size()
	}

	var outputs []Output

	if out, err := t.thumbnail(img, outDir); err != nil {
		log.Warn("thumbnail generation failed", "error", err)
	} else {
		outputs = append(outputs, *out)
	}

	for _, rung := range t.config.Ladder {
		tw, th := rungDimensions(origW, origH, rung.Edge)
		if tw >= origW || th >= origH {
			log.Debug("skipping upscale rung", "quality", rung.Label,
				"target_width", tw, "target_height", th)
			continue
		}

		out, err := t.variant(img, outDir, rung.Label, tw, th)
		if err != nil {
			log.Warn("variant generation failed", "quality", rung.Label, "error", err)
			continue
		}
		outputs = append(outputs, *out)
	}

	if len(outputs) == 0 {
		return nil, meta, ErrNoOutputs
	}
	return outputs, meta, nil
}

func (t *ImageTransformer) thumbnail(img image.Image, outDir string) (*Output, error) {
	size := t.config.ThumbnailSize
	thumb := imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)

	path := filepath.Join(outDir, "thumb.jpg")
	if err := imaging.Save(thumb, path, imaging.JPEGQuality(t.config.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}

	return newOutput(KindThumbnail, "thumbnail", size, size, path)
}

func (t *ImageTransformer) variant(img image.Image, outDir, label string, width, height int) (*Output, error) {
	resized := imaging.Resize(img, width, height, imaging.Lanczos)

	path := filepath.Join(outDir, label+".jpg")
	if err := imaging.Save(resized, path, imaging.JPEGQuality(t.config.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}

	return newOutput(KindResolutionVariant, label, width, height, path)
}

// rungDimensions computes the variant size for one ladder rung: height from
// the aspect ratio, recomputing width from height when the height would fall
// under the rung's minimum.
func rungDimensions(origW, origH, edge int) (int, int) {
	aspect := float64(origW) / float64(origH)
	tw := edge
	th := int(math.Round(float64(tw) / aspect))
	if th < edge {
		th = edge
		tw = int(math.Round(float64(th) * aspect))
	}
	return tw, th
}

func newOutput(kind OutputKind, quality string, width, height int, path string) (*Output, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	return &Output{
		Kind:      kind,
		Quality:   quality,
		Width:     width,
		Height:    height,
		LocalPath: path,
		ByteSize:  fi.Size(),
		MimeType:  "image/jpeg",
	}, nil
}
