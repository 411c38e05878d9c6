package s3

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	domainuser "socialnet/internal/domain/user"
)

// Client wraps a MinIO/S3 client holding profile pictures.
type Client struct {
	bucket        string
	publicBaseURL string
	client        *minio.Client
	logger        *slog.Logger
}

// NewClient configures a client using the provided endpoint and credentials.
func NewClient(endpoint string, useSSL bool, accessKey, secretKey, bucket, publicBaseURL string, logger *slog.Logger) (*Client, error) {
	cleanEndpoint := strings.TrimSpace(endpoint)
	if cleanEndpoint == "" {
		return nil, errors.New("s3: endpoint is required")
	}
	if bucket = strings.TrimSpace(bucket); bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	minioClient, err := minio.New(parseEndpoint(cleanEndpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(accessKey), strings.TrimSpace(secretKey), ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}

	base := strings.TrimSpace(publicBaseURL)
	if base == "" {
		base = cleanEndpoint
	}
	if !strings.Contains(base, "://") {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		base = scheme + "://" + base
	}

	return &Client{
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(base, "/"),
		client:        minioClient,
		logger:        logger,
	}, nil
}

// Ping reports whether the avatar bucket is reachable.
func (c *Client) Ping(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("s3: check bucket: %w", err)
	}
	if !exists {
		return fmt.Errorf("s3: bucket %s does not exist", c.bucket)
	}
	return nil
}

// ObjectURL returns the public URL of an object in the avatar bucket.
func (c *Client) ObjectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", c.publicBaseURL, c.bucket, strings.TrimLeft(strings.TrimSpace(key), "/"))
}

// AvatarDirectory decorates a user directory, turning stored avatar object
// keys into public URLs. References that already are URLs pass through.
type AvatarDirectory struct {
	Next    domainuser.Directory
	Objects interface{ ObjectURL(key string) string }
}

func (d AvatarDirectory) ResolveDisplay(ctx context.Context, id domainuser.ID) (domainuser.Profile, error) {
	if d.Next == nil {
		return domainuser.Profile{}, domainuser.ErrNotFound
	}
	p, err := d.Next.ResolveDisplay(ctx, id)
	if err != nil {
		return p, err
	}
	ref := strings.TrimSpace(p.AvatarRef)
	if ref == "" || d.Objects == nil || isAbsoluteURL(ref) {
		return p, nil
	}
	p.AvatarRef = d.Objects.ObjectURL(ref)
	return p, nil
}

func isAbsoluteURL(ref string) bool {
	parsed, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https" || parsed.Scheme == "data"
}

func parseEndpoint(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return endpoint
}

var _ domainuser.Directory = AvatarDirectory{}
