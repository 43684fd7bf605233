package storage

import (
	"mime/multipart"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPhotoKey(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	assert.Equal(t, "voting-photos/u1-1700000000123.png", PhotoKey("u1", at, ".png"))
}

func TestValidatePhotoType(t *testing.T) {
	tests := []struct {
		contentType, filename string
		want                  bool
	}{
		{"image/jpeg", "a.bin", true},
		{"", "me.WEBP", true},
		{"image/gif", "a.gif", false},
		{"video/mp4", "clip.mp4", false},
		{"", "noext", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidatePhotoType(tt.contentType, tt.filename), "%s %s", tt.contentType, tt.filename)
	}
}

func TestPhotoExtension(t *testing.T) {
	assert.Equal(t, ".jpeg", PhotoExtension("image/png", "x.jpeg"))
	assert.Equal(t, ".png", PhotoExtension("image/png", "blob"))
	assert.Equal(t, ".jpg", PhotoExtension("", "blob"))
}

func TestCheckPhoto(t *testing.T) {
	fh := &multipart.FileHeader{Filename: "me.png", Size: 1024, Header: textproto.MIMEHeader{}}
	assert.NoError(t, CheckPhoto(fh))

	fh.Size = MaxPhotoSize + 1
	assert.ErrorIs(t, CheckPhoto(fh), ErrPhotoTooLarge)

	fh = &multipart.FileHeader{Filename: "me.gif", Size: 10, Header: textproto.MIMEHeader{"Content-Type": {"image/gif"}}}
	assert.ErrorIs(t, CheckPhoto(fh), ErrPhotoType)
}
