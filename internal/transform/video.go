package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pixelforge/media-worker/internal/logger"
)

// Orientation classes select which resolution ladder a video gets, so
// portrait footage is never letterboxed into a landscape frame.
type Orientation string

const (
	OrientationLandscape Orientation = "landscape"
	OrientationPortrait  Orientation = "portrait"
	OrientationSquare    Orientation = "square"
)

// VideoRung is one target resolution with its fixed encode policy.
type VideoRung struct {
	Label        string
	Width        int
	Height       int
	VideoBitrate string
	AudioBitrate string
}

var (
	landscapeLadder = []VideoRung{
		{Label: "360p", Width: 640, Height: 360, VideoBitrate: "800k", AudioBitrate: "64k"},
		{Label: "480p", Width: 854, Height: 480, VideoBitrate: "1500k", AudioBitrate: "96k"},
		{Label: "720p", Width: 1280, Height: 720, VideoBitrate: "3000k", AudioBitrate: "128k"},
		{Label: "1080p", Width: 1920, Height: 1080, VideoBitrate: "5000k", AudioBitrate: "192k"},
	}
	portraitLadder = []VideoRung{
		{Label: "360p", Width: 360, Height: 640, VideoBitrate: "800k", AudioBitrate: "64k"},
		{Label: "480p", Width: 480, Height: 854, VideoBitrate: "1500k", AudioBitrate: "96k"},
		{Label: "720p", Width: 720, Height: 1280, VideoBitrate: "3000k", AudioBitrate: "128k"},
		{Label: "1080p", Width: 1080, Height: 1920, VideoBitrate: "5000k", AudioBitrate: "192k"},
	}
	squareLadder = []VideoRung{
		{Label: "360p", Width: 360, Height: 360, VideoBitrate: "800k", AudioBitrate: "64k"},
		{Label: "480p", Width: 480, Height: 480, VideoBitrate: "1500k", AudioBitrate: "96k"},
		{Label: "720p", Width: 720, Height: 720, VideoBitrate: "3000k", AudioBitrate: "128k"},
		{Label: "1080p", Width: 1080, Height: 1080, VideoBitrate: "5000k", AudioBitrate: "192k"},
	}
)

type VideoConfig struct {
	FFmpegPath  string
	FFprobePath string

	Preset string
	CRF    int

	// ThumbnailInterval is the cadence for frame extraction in seconds.
	ThumbnailInterval float64
	ThumbnailBox      int
}

func DefaultVideoConfig() *VideoConfig {
	return &VideoConfig{
		FFmpegPath:        "ffmpeg",
		FFprobePath:       "ffprobe",
		Preset:            "medium",
		CRF:               23,
		ThumbnailInterval: 15,
		ThumbnailBox:      480,
	}
}

// VideoTransformer derives thumbnails, a normalized original and a
// letterboxed resolution ladder from a local video file via ffmpeg.
type VideoTransformer struct {
	config *VideoConfig
}

func NewVideoTransformer(cfg *VideoConfig) (*VideoTransformer, error) {
	if cfg == nil {
		cfg = DefaultVideoConfig()
	}
	if _, err := exec.LookPath(cfg.FFmpegPath); err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	if _, err := exec.LookPath(cfg.FFprobePath); err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return &VideoTransformer{config: cfg}, nil
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
		BitRate  string `json:"bit_rate"`
		Name     string `json:"format_name"`
	} `json:"format"`
}

// Probe runs ffprobe against a local file. A file with no video stream is
// an ErrNoVideoStream, which is fatal to the job.
func (t *VideoTransformer) Probe(ctx context.Context, path string) (*VideoMetadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, t.config.FFprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	meta := &VideoMetadata{}
	if probe.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			meta.Duration = d
		}
	}
	if probe.Format.Size != "" {
		if s, err := strconv.ParseInt(probe.Format.Size, 10, 64); err == nil {
			meta.FileSize = s
		}
	}
	if probe.Format.BitRate != "" {
		if b, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil {
			meta.Bitrate = b
		}
	}
	meta.Container = strings.Split(probe.Format.Name, ",")[0]

	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			meta.VideoCodec = stream.CodecName
			meta.Width = stream.Width
			meta.Height = stream.Height
			if parts := strings.Split(stream.RFrameRate, "/"); len(parts) == 2 {
				num, _ := strconv.ParseFloat(parts[0], 64)
				den, _ := strconv.ParseFloat(parts[1], 64)
				if den > 0 {
					meta.FrameRate = num / den
				}
			}
		case "audio":
			meta.AudioCodec = stream.CodecName
			meta.HasAudio = true
		}
	}

	if meta.VideoCodec == "" || meta.Width == 0 || meta.Height == 0 {
		return nil, ErrNoVideoStream
	}
	return meta, nil
}

// Transform runs the four video steps: thumbnails at a fixed cadence,
// container normalization, and a letterboxed variant for each ladder rung
// smaller than the source. Thumbnail and rung failures are logged and
// skipped; a normalization failure fails the job.
func (t *VideoTransformer) Transform(ctx context.Context, inputPath, outDir string, meta *VideoMetadata) ([]Output, error) {
	log := logger.FromContext(ctx)

	var outputs []Output

	for i, ts := range ThumbnailTimestamps(meta.Duration, t.config.ThumbnailInterval) {
		out, err := t.extractThumbnail(ctx, inputPath, outDir, i, ts)
		if err != nil {
			log.Warn("video thumbnail extraction failed",
				"index", i, "timestamp", ts, "error", err)
			continue
		}
		outputs = append(outputs, *out)
	}

	original, err := t.normalizeOriginal(ctx, inputPath, outDir, meta)
	if err != nil {
		return nil, fmt.Errorf("normalize original: %w", err)
	}
	outputs = append(outputs, *original)

	for _, rung := range LadderFor(ClassifyOrientation(meta.Width, meta.Height)) {
		if rung.Width >= meta.Width || rung.Height >= meta.Height {
			continue
		}
		out, err := t.encodeVariant(ctx, inputPath, outDir, rung, meta)
		if err != nil {
			log.Warn("video variant encode failed", "quality", rung.Label, "error", err)
			continue
		}
		outputs = append(outputs, *out)
	}

	return outputs, nil
}

// ClassifyOrientation buckets a video by width/height ratio: above 1.1 is
// landscape, below 0.9 portrait, in between square.
func ClassifyOrientation(width, height int) Orientation {
	if height == 0 {
		return OrientationLandscape
	}
	ratio := float64(width) / float64(height)
	switch {
	case ratio > 1.1:
		return OrientationLandscape
	case ratio < 0.9:
		return OrientationPortrait
	default:
		return OrientationSquare
	}
}

func LadderFor(o Orientation) []VideoRung {
	switch o {
	case OrientationPortrait:
		return portraitLadder
	case OrientationSquare:
		return squareLadder
	default:
		return landscapeLadder
	}
}

// ThumbnailTimestamps returns one timestamp per interval of duration, with a
// minimum of one frame taken mid-video for clips shorter than the interval.
func ThumbnailTimestamps(duration, interval float64) []float64 {
	if duration <= 0 {
		return []float64{0}
	}
	if interval <= 0 {
		interval = 15
	}
	if duration < interval {
		return []float64{duration / 2}
	}
	count := int(math.Floor(duration / interval))
	out := make([]float64, 0, count)
	for i := 1; i <= count; i++ {
		out = append(out, float64(i)*interval)
	}
	return out
}

func (t *VideoTransformer) extractThumbnail(ctx context.Context, inputPath, outDir string, index int, timestamp float64) (*Output, error) {
	path := filepath.Join(outDir, fmt.Sprintf("thumb_%03d.jpg", index))
	box := t.config.ThumbnailBox

	args := []string{
		"-ss", fmt.Sprintf("%.2f", timestamp),
		"-i", inputPath,
		"-vframes", "1",
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", box, box),
		"-q:v", "2",
		"-y",
		path,
	}
	if err := t.runFFmpeg(ctx, args); err != nil {
		return nil, err
	}

	w, h := jpegDimensions(path)
	return newOutput(KindThumbnail, fmt.Sprintf("thumbnail-%d", index), w, h, path)
}

// normalizeOriginal produces the canonical mp4 rendition of the source:
// a stream copy when the container is already mp4, a full transcode
// otherwise.
func (t *VideoTransformer) normalizeOriginal(ctx context.Context, inputPath, outDir string, meta *VideoMetadata) (*Output, error) {
	path := filepath.Join(outDir, "original.mp4")

	var args []string
	if strings.EqualFold(filepath.Ext(inputPath), ".mp4") {
		args = []string{
			"-i", inputPath,
			"-c", "copy",
			"-movflags", "+faststart",
			"-y",
			path,
		}
	} else {
		args = []string{
			"-i", inputPath,
			"-c:v", "libx264",
			"-preset", t.config.Preset,
			"-crf", strconv.Itoa(t.config.CRF),
		}
		args = append(args, audioArgs(meta, "")...)
		args = append(args, "-movflags", "+faststart", "-y", path)
	}

	if err := t.runFFmpeg(ctx, args); err != nil {
		return nil, err
	}

	out, err := newOutput(KindResolutionVariant, "original", meta.Width, meta.Height, path)
	if err != nil {
		return nil, err
	}
	out.MimeType = "video/mp4"
	return out, nil
}

func (t *VideoTransformer) encodeVariant(ctx context.Context, inputPath, outDir string, rung VideoRung, meta *VideoMetadata) (*Output, error) {
	path := filepath.Join(outDir, rung.Label+".mp4")

	args := []string{"-i", inputPath}
	args = append(args, VariantFilterArgs(rung)...)
	args = append(args,
		"-c:v", "libx264",
		"-preset", t.config.Preset,
		"-b:v", rung.VideoBitrate,
	)
	args = append(args, audioArgs(meta, rung.AudioBitrate)...)
	args = append(args, "-movflags", "+faststart", "-y", path)

	if err := t.runFFmpeg(ctx, args); err != nil {
		return nil, err
	}

	out, err := newOutput(KindResolutionVariant, rung.Label, rung.Width, rung.Height, path)
	if err != nil {
		return nil, err
	}
	out.MimeType = "video/mp4"
	return out, nil
}

// VariantFilterArgs builds the scale-then-pad filter that letterboxes the
// source into the rung's exact dimensions without distortion.
func VariantFilterArgs(rung VideoRung) []string {
	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black",
		rung.Width, rung.Height, rung.Width, rung.Height,
	)
	return []string{"-vf", filter}
}

func audioArgs(meta *VideoMetadata, bitrate string) []string {
	if !meta.HasAudio {
		return []string{"-an"}
	}
	if bitrate == "" {
		bitrate = "128k"
	}
	return []string{"-c:a", "aac", "-b:a", bitrate}
}

func (t *VideoTransformer) runFFmpeg(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, t.config.FFmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: ffmpeg: %v, output: %s", ErrEncodeFailed, err, truncate(string(output), 512))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func jpegDimensions(path string) (int, int) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
