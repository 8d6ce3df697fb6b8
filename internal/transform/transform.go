package transform

import "errors"

var (
	ErrNoOutputs     = errors.New("transform: no outputs generated")
	ErrNoVideoStream = errors.New("transform: no video stream found")
	ErrCorruptedFile = errors.New("transform: file appears corrupted")
	ErrEncodeFailed  = errors.New("transform: encoding failed")
)

// OutputKind distinguishes the derived artifact types.
type OutputKind string

const (
	KindThumbnail         OutputKind = "THUMBNAIL"
	KindResolutionVariant OutputKind = "RESOLUTION_VARIANT"
)

// Output is one derived artifact produced by a transformer. LocalPath is
// ephemeral and owned by the worker process; DestinationKey is assigned by
// the pipeline before upload.
type Output struct {
	Kind           OutputKind
	Quality        string
	Width          int
	Height         int
	LocalPath      string
	DestinationKey string
	ByteSize       int64
	MimeType       string
}

// ImageMetadata is the minimal probe result for an image input.
type ImageMetadata struct {
	Width    int
	Height   int
	Format   string
	FileSize int64
}

// VideoMetadata is the ffprobe result for a video input.
type VideoMetadata struct {
	Duration   float64
	Width      int
	Height     int
	Bitrate    int64
	VideoCodec string
	AudioCodec string
	FrameRate  float64
	Container  string
	HasAudio   bool
	FileSize   int64
}
