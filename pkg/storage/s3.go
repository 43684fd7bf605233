package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

const (
	// MaxPhotoSize is the maximum allowed size of a session or profile photo (5MB).
	MaxPhotoSize = 5 * 1024 * 1024
	// FolderPhotos is the S3 prefix for voting photos.
	FolderPhotos = "voting-photos"
)

// Allowed photo MIME types and extensions.
var (
	AllowedPhotoTypes = map[string]string{
		"image/jpeg": ".jpg",
		"image/jpg":  ".jpg",
		"image/png":  ".png",
		"image/webp": ".webp",
	}
	AllowedPhotoExtensions = map[string]string{
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".webp": "image/webp",
	}
)

var (
	ErrPhotoTooLarge = errors.New("photo exceeds 5MB")
	ErrPhotoType     = errors.New("photo must be jpeg, png or webp")
)

// CheckPhoto validates an uploaded photo's size and type before it is streamed to S3.
func CheckPhoto(fh *multipart.FileHeader) error {
	if fh.Size > MaxPhotoSize {
		return ErrPhotoTooLarge
	}
	if !ValidatePhotoType(fh.Header.Get("Content-Type"), fh.Filename) {
		return ErrPhotoType
	}
	return nil
}

// S3Config holds S3 client configuration.
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	PhotosBucket    string
}

// S3 uploads and removes photo objects.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 client using credentials from config or .env (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY).
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	accessKey := cfg.AccessKeyID
	secretKey := cfg.SecretAccessKey
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
		logger.Info("S3 client using static credentials", zap.String("region", cfg.Region), zap.String("photos_bucket", cfg.PhotosBucket))
	} else {
		logger.Warn("S3 client using default credential chain (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY not set)")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &S3{
		client:   client,
		uploader: manager.NewUploader(client),
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// ValidatePhotoType returns true if the content type or the extension is an allowed photo type.
func ValidatePhotoType(contentType, filename string) bool {
	if contentType != "" {
		if _, ok := AllowedPhotoTypes[strings.ToLower(contentType)]; ok {
			return true
		}
	}
	if ext := strings.ToLower(path.Ext(filename)); ext != "" {
		if _, ok := AllowedPhotoExtensions[ext]; ok {
			return true
		}
	}
	return false
}

// PhotoExtension picks the object extension, preferring the filename's and falling back to the content type's.
func PhotoExtension(contentType, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if _, ok := AllowedPhotoExtensions[ext]; ok {
		return ext
	}
	if e, ok := AllowedPhotoTypes[strings.ToLower(contentType)]; ok {
		return e
	}
	return ".jpg"
}

// ContentTypeForFilename returns the MIME type for a photo filename extension.
func ContentTypeForFilename(filename string) string {
	if ct, ok := AllowedPhotoExtensions[strings.ToLower(path.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// PhotoKey returns the object key voting-photos/{user_id}-{unix_ms}{ext}.
func PhotoKey(userID string, at time.Time, ext string) string {
	return path.Join(FolderPhotos, fmt.Sprintf("%s-%d%s", userID, at.UnixMilli(), ext))
}

// PublicObjectURL returns the unsigned URL of an object in a public bucket.
func (s *S3) PublicObjectURL(bucket, key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, s.cfg.Region, key)
}

// Upload streams a reader to S3 and returns the object's public URL.
// Set publicRead so voters can load the photo by direct URL.
func (s *S3) Upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64, publicRead bool) (string, error) {
	var contentLengthPtr *int64
	if contentLength > 0 {
		contentLengthPtr = &contentLength
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: contentLengthPtr,
		CacheControl:  aws.String("max-age=3600"),
	}
	if publicRead {
		input.ACL = types.ObjectCannedACLPublicRead
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	s.logger.Debug("photo uploaded", zap.String("key", key), zap.Int64("size", contentLength))
	return s.PublicObjectURL(bucket, key), nil
}

// Photo is an uploaded photo object.
type Photo struct {
	Key string
	URL string
}

// UploadPhoto stores a photo in the photos bucket under PhotoKey.
func (s *S3) UploadPhoto(ctx context.Context, userID, contentType, filename string, body io.Reader, size int64) (Photo, error) {
	if s.cfg.PhotosBucket == "" {
		return Photo{}, errors.New("photos bucket not configured")
	}
	key := PhotoKey(userID, time.Now(), PhotoExtension(contentType, filename))
	if contentType == "" {
		contentType = ContentTypeForFilename(filename)
	}
	url, err := s.Upload(ctx, s.cfg.PhotosBucket, key, contentType, body, size, true)
	if err != nil {
		return Photo{}, err
	}
	return Photo{Key: key, URL: url}, nil
}

// DeletePhoto removes a photo from the photos bucket.
func (s *S3) DeletePhoto(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.PhotosBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
