package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeProcessRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    *ProcessRequest
		wantErr bool
	}{
		{
			name: "canonical snake_case",
			body: `{
				"media_id": "m-1",
				"user_id": "u-1",
				"media_class": "IMAGE",
				"source_key": "uploads/m-1.jpg",
				"original_filename": "holiday.jpg",
				"mime_type": "image/jpeg"
			}`,
			want: &ProcessRequest{
				MediaID:          "m-1",
				UserID:           "u-1",
				MediaClass:       "IMAGE",
				SourceKey:        "uploads/m-1.jpg",
				OriginalFilename: "holiday.jpg",
				MimeType:         "image/jpeg",
			},
		},
		{
			name: "legacy camelCase",
			body: `{
				"mediaId": "m-2",
				"userId": "u-2",
				"mediaClass": "VIDEO",
				"sourceKey": "uploads/m-2.mov",
				"originalFilename": "clip.mov",
				"mimeType": "video/quicktime"
			}`,
			want: &ProcessRequest{
				MediaID:          "m-2",
				UserID:           "u-2",
				MediaClass:       "VIDEO",
				SourceKey:        "uploads/m-2.mov",
				OriginalFilename: "clip.mov",
				MimeType:         "video/quicktime",
			},
		},
		{
			name:    "not json",
			body:    `request please`,
			wantErr: true,
		},
		{
			name:    "missing media id",
			body:    `{"source_key": "uploads/x.jpg"}`,
			wantErr: true,
		},
		{
			name:    "missing source key",
			body:    `{"media_id": "m-3"}`,
			wantErr: true,
		},
		{
			name:    "empty object",
			body:    `{}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeProcessRequest([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.MediaID, got.MediaID)
			assert.Equal(t, tt.want.UserID, got.UserID)
			assert.Equal(t, tt.want.MediaClass, got.MediaClass)
			assert.Equal(t, tt.want.SourceKey, got.SourceKey)
			assert.Equal(t, tt.want.OriginalFilename, got.OriginalFilename)
			assert.Equal(t, tt.want.MimeType, got.MimeType)
		})
	}
}
