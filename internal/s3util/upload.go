// Package s3util holds the S3 helpers shared by the CLI and the deploy Lambda.
package s3util

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// ProjectTag is attached to every object this module uploads, for cost allocation.
const ProjectTag = "fbedge"

// PutObjectAPI uploads objects.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// PresignAPI signs GET requests.
type PresignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

var (
	_ PutObjectAPI = (*s3.Client)(nil)
	_ PresignAPI   = (*s3.PresignClient)(nil)
)

// Tagging encodes tags as the URL query string S3 expects, with the
// project tag always included.
func Tagging(tags map[string]string) string {
	v := url.Values{}
	v.Set("Project", ProjectTag)
	for k, val := range tags {
		v.Set(k, val)
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = url.QueryEscape(k) + "=" + url.QueryEscape(v.Get(k))
	}
	return strings.Join(parts, "&")
}

// UploadFile uploads a local file to bucket/key with the given tags.
func UploadFile(ctx context.Context, client PutObjectAPI, bucket, key, localPath, contentType string, tags map[string]string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}

	log.Debug().
		Str("bucket", bucket).
		Str("key", key).
		Int64("bytes", info.Size()).
		Msg("Uploading to S3")

	tagging := Tagging(tags)
	size := info.Size()
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &bucket,
		Key:           &key,
		Body:          f,
		ContentLength: &size,
		ContentType:   &contentType,
		Tagging:       &tagging,
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject %s/%s: %w", bucket, key, err)
	}

	log.Info().Str("bucket", bucket).Str("key", key).Int64("bytes", size).Msg("Uploaded to S3")
	return nil
}

// GeneratePresignedURL creates a pre-signed GET URL for an S3 object.
func GeneratePresignedURL(ctx context.Context, presignClient PresignAPI, bucket, key string, expiry time.Duration) (string, error) {
	result, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket, Key: &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign GetObject: %w", err)
	}
	return result.URL, nil
}
