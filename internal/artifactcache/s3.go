package artifactcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/vk/buildgridgo/internal/rulekey"
)

// S3Config configures the object-store tier.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Mode      Mode
}

// S3Cache is a cache tier backed by any S3-compatible object store. One
// object per fingerprint, holding the same zip payload as the HTTP tier.
type S3Cache struct {
	client *minio.Client
	bucket string
	mode   Mode
}

// NewS3Cache creates the object-store tier.
func NewS3Cache(cfg S3Config) (*S3Cache, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey), ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Cache{client: client, bucket: bucket, mode: cfg.Mode}, nil
}

// Name implements Cache.
func (c *S3Cache) Name() string { return "s3" }

// Mode implements Cache.
func (c *S3Cache) Mode() Mode { return c.mode }

func objectName(key rulekey.Fingerprint) string {
	return "artifacts/" + key.String() + ".zip"
}

// Fetch implements Cache.
func (c *S3Cache) Fetch(ctx context.Context, key rulekey.Fingerprint, destDir string) (FetchResult, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, objectName(key), minio.GetObjectOptions{})
	if err != nil {
		observeFetch(c.Name(), Error)
		return FetchResult{Outcome: Error}, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer obj.Close()

	payload, err := io.ReadAll(obj)
	if err != nil {
		// Missing keys only surface on first read.
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			observeFetch(c.Name(), Miss)
			return FetchResult{Outcome: Miss}, nil
		}
		observeFetch(c.Name(), Error)
		return FetchResult{Outcome: Error}, fmt.Errorf("s3 read %s: %w", key, err)
	}

	files, err := unpackPayload(payload, destDir)
	if err != nil {
		observeFetch(c.Name(), Error)
		return FetchResult{Outcome: Error}, err
	}
	observeFetch(c.Name(), Hit)
	return FetchResult{Outcome: Hit, Files: files}, nil
}

// Store implements Cache.
func (c *S3Cache) Store(ctx context.Context, key rulekey.Fingerprint, root string, files []string) error {
	if c.mode == ReadOnly {
		observeStore(c.Name(), "rejected")
		return ErrReadOnly
	}
	payload, err := packPayload(root, files)
	if err != nil {
		observeStore(c.Name(), "error")
		return err
	}
	_, err = c.client.PutObject(ctx, c.bucket, objectName(key),
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/zip"})
	if err != nil {
		observeStore(c.Name(), "error")
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	observeStore(c.Name(), "ok")
	return nil
}
