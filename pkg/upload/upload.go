package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"kptnexport/pkg/config"
	"kptnexport/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	// ErrNoBucket is returned when an S3 uploader is built without a bucket
	ErrNoBucket = errors.New("upload bucket is not configured")

	// ErrInvalidName is returned for object names that leave the prefix
	ErrInvalidName = errors.New("invalid object name")
)

// Uploader copies a local file to remote storage and returns its location.
// name is the slash-separated object name below the configured prefix, so
// documents and the images they link keep their relative layout.
type Uploader interface {
	Upload(ctx context.Context, file, name string) (string, error)
}

// PutObjectAPI is the part of the S3 client the uploader needs
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader puts files into a bucket under a key prefix
type S3Uploader struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger logger.Logger
}

// NewS3Uploader wraps an existing S3 client
func NewS3Uploader(client PutObjectAPI, bucket, prefix string, log logger.Logger) (*S3Uploader, error) {
	if bucket == "" {
		return nil, ErrNoBucket
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &S3Uploader{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: log,
	}, nil
}

// NewFromConfig loads AWS credentials from the environment or shared config
// and builds an uploader for cfg.
func NewFromConfig(ctx context.Context, cfg config.UploadConfig, log logger.Logger) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewS3Uploader(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Prefix, log)
}

// Key is the object key name is stored under
func (u *S3Uploader) Key(name string) (string, error) {
	clean := path.Clean(filepath.ToSlash(name))
	if clean == "." || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if u.prefix == "" {
		return clean, nil
	}
	return path.Join(u.prefix, clean), nil
}

// Upload puts file into the bucket as name and returns its s3:// location
func (u *S3Uploader) Upload(ctx context.Context, file, name string) (string, error) {
	key, err := u.Key(name)
	if err != nil {
		return "", err
	}

	f, err := os.Open(file)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(ContentType(file)),
	})
	if err != nil {
		u.logger.ErrorWithFields("upload failed", map[string]interface{}{
			"file":   file,
			"bucket": u.bucket,
			"key":    key,
			"error":  err.Error(),
		})
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	location := fmt.Sprintf("s3://%s/%s", u.bucket, key)
	u.logger.DebugWithFields("uploaded", map[string]interface{}{
		"file":     file,
		"location": location,
	})
	return location, nil
}

// ContentType picks the MIME type for a rendered file
func ContentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".pdf":
		return "application/pdf"
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".json":
		return "application/json"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
