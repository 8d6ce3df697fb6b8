package validate

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrFileTooLarge   = errors.New("validate: file exceeds size limit")
	ErrDisallowedType = errors.New("validate: content type not allowed")
	ErrUnreadable     = errors.New("validate: file could not be read")
)

// Class is the broad media classification a sniffed file falls into.
type Class string

const (
	ClassImage Class = "image"
	ClassVideo Class = "video"
	ClassOther Class = "other"
)

// Validator sniffs true content types off disk and enforces the configured
// allow-lists. Declared MIME types from upstream are never trusted.
type Validator struct {
	allowedImages map[string]bool
	allowedVideos map[string]bool
}

func New(allowedImageTypes, allowedVideoTypes []string) *Validator {
	v := &Validator{
		allowedImages: make(map[string]bool, len(allowedImageTypes)),
		allowedVideos: make(map[string]bool, len(allowedVideoTypes)),
	}
	for _, t := range allowedImageTypes {
		v.allowedImages[t] = true
	}
	for _, t := range allowedVideoTypes {
		v.allowedVideos[t] = true
	}
	return v
}

// Sniff returns the detected content type of a local file.
func (v *Validator) Sniff(path string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	// strip any parameters, e.g. "; charset=utf-8"
	return strings.Split(mtype.String(), ";")[0], nil
}

// Classify sniffs a file and maps it to a media class. Files whose detected
// type is not in the corresponding allow-list come back as ClassOther.
func (v *Validator) Classify(path string) (Class, string, error) {
	contentType, err := v.Sniff(path)
	if err != nil {
		return ClassOther, "", err
	}
	switch {
	case v.allowedImages[contentType]:
		return ClassImage, contentType, nil
	case v.allowedVideos[contentType]:
		return ClassVideo, contentType, nil
	default:
		return ClassOther, contentType, nil
	}
}

// CheckSize enforces a byte ceiling on a local file. A zero or negative
// limit means unlimited.
func (v *Validator) CheckSize(path string, limit int64) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if limit > 0 && fi.Size() > limit {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, fi.Size(), limit)
	}
	return nil
}

// Check validates a file against a size ceiling and an explicit allow-list.
// Returns the detected content type on success.
func (v *Validator) Check(path string, limit int64, allowed []string) (string, error) {
	if err := v.CheckSize(path, limit); err != nil {
		return "", err
	}
	contentType, err := v.Sniff(path)
	if err != nil {
		return "", err
	}
	for _, t := range allowed {
		if t == contentType {
			return contentType, nil
		}
	}
	return contentType, fmt.Errorf("%w: %s", ErrDisallowedType, contentType)
}
