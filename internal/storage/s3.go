package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"

	"github.com/local/docverify/internal/apperr"
	"github.com/local/docverify/internal/config"
)

// Client fetches source documents from an S3v4-compatible object store.
type Client struct {
	s3         *s3.Client
	downloader *manager.Downloader
	bucket     string
}

// FileMetadata describes a fetched object.
type FileMetadata struct {
	Key          string `json:"key"`
	OriginalName string `json:"original_name"`
	ContentType  string `json:"content_type"`
	ETag         string `json:"etag"`
	Size         int64  `json:"size"`
}

// New creates the object-store client. A custom endpoint switches the client
// to path-style addressing (MinIO and friends); TLSSkipVerify is for dev
// environments with self-signed certificates. Region must be non-empty for
// the v4 signature even when the server ignores it.
func New(ctx context.Context, cfg config.S3Config) (*Client, error) {
	opts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	if cfg.TLSSkipVerify {
		opts = append(opts, awscfg.WithHTTPClient(&http.Client{
			Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
		}))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{
		s3:         cli,
		downloader: manager.NewDownloader(cli),
		bucket:     cfg.Bucket,
	}, nil
}

// FetchToFile streams the object at key into destPath and returns its
// metadata. Payloads are never buffered whole in memory.
func (c *Client) FetchToFile(ctx context.Context, key, destPath string) (*FileMetadata, error) {
	head, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify(key, err)
	}

	meta := &FileMetadata{Key: key}
	if head.ContentLength != nil {
		meta.Size = *head.ContentLength
	}
	if head.ContentType != nil {
		meta.ContentType = *head.ContentType
	}
	if head.ETag != nil {
		meta.ETag = strings.Trim(*head.ETag, `"`)
	}
	// upstream stores the user-visible filename in x-amz-meta-name
	if name, ok := head.Metadata["name"]; ok {
		meta.OriginalName = name
	} else if name, ok := head.Metadata["Name"]; ok {
		meta.OriginalName = name
	}

	f, err := os.Create(destPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeFileSaveFailed, "create local file", false, err)
	}
	defer f.Close()

	n, err := c.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		os.Remove(destPath)
		return nil, classify(key, err)
	}
	meta.Size = n

	log.Debug().Str("key", key).Int64("size", n).Str("dest", destPath).Msg("fetched object from S3")
	return meta, nil
}

// HealthCheck verifies the bucket is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string { return c.bucket }

func classify(key string, err error) *apperr.Error {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return apperr.Client(apperr.CodeResourceNotFound, fmt.Sprintf("object %q not found", key)).WithCause(err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return apperr.Client(apperr.CodeResourceNotFound, fmt.Sprintf("object %q not found", key)).WithCause(err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "Forbidden":
			return apperr.Wrap(apperr.CodeS3Error, "object store rejected credentials", false, err)
		}
	}

	// transport errors, timeouts and 5xx responses are worth retrying
	return apperr.Wrap(apperr.CodeS3Error, fmt.Sprintf("fetch object %q", key), true, err)
}
