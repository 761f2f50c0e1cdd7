package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"storeprice/logger"
)

// PutAPI is the subset of the S3 client the uploader needs.
type PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader publishes row files into the feed bucket.
type S3Uploader struct {
	client  PutAPI
	bucket  string
	prefix  string
	version string
	log     *logger.Log
}

func NewS3Uploader(client PutAPI, bucket, prefix, version string) *S3Uploader {
	return &S3Uploader{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		version: version,
		log:     logger.GetLogger(),
	}
}

// Key builds a date partitioned object key under the feed prefix.
func (u *S3Uploader) Key(now time.Time, ext string) string {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	now = now.UTC()
	filename := fmt.Sprintf("rows_%s_%s%s", now.Format("20060102150405"), uuid.NewString()[:8], ext)
	return path.Join(u.prefix, fmt.Sprintf("date=%s", now.Format("2006-01-02")), filename)
}

// Upload stores data under key.
func (u *S3Uploader) Upload(ctx context.Context, key string, data []byte) error {
	log := u.log.WithComponent("s3_uploader").WithFields(logger.Fields{
		"operation": "upload",
		"bucket":    u.bucket,
		"key":       key,
		"data_size": len(data),
	})
	start := time.Now()

	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(key)),
		Metadata: map[string]string{
			"storeprice-version": u.version,
		},
	}
	if _, err := u.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", u.bucket, err)
	}

	logger.LogPerformanceEntry(log, "s3_uploader", "upload", time.Since(start), nil)
	return nil
}

func contentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	case ".js":
		return "text/javascript"
	default:
		return "application/octet-stream"
	}
}
