package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/awsclient"
)

// S3Uploader stores the snapshot JSON in a bucket under
// <prefix>/<domain>/<yyyy-mm-dd>/<snapshot id>.json.
type S3Uploader struct {
	client awsclient.S3Client
	bucket string
	prefix string
}

// NewS3Uploader returns an uploader writing to bucket.
func NewS3Uploader(client awsclient.S3Client, bucket, prefix string) *S3Uploader {
	return &S3Uploader{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (u *S3Uploader) Name() string { return "s3" }

// Key returns the object key for snap.
func (u *S3Uploader) Key(snap *models.Snapshot) string {
	domain := snap.Domain
	if domain == "" {
		domain = "unknown"
	}
	day := "undated"
	if snap.GeneratedAt.Known() {
		day = snap.GeneratedAt.UTC().Format(time.DateOnly)
	}
	return path.Join(u.prefix, strings.ToLower(domain), day, snap.SnapshotID+".json")
}

func (u *S3Uploader) Export(ctx context.Context, snap *models.Snapshot) error {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, snap); err != nil {
		return err
	}
	key := u.Key(snap)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", u.bucket, key, err)
	}
	return nil
}
