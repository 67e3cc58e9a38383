package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/url"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/xid"

	"github.com/sakif/contacts-api/internal/config"
)

// AvatarSize is the bounding box, in pixels, every stored avatar fits in.
const AvatarSize = 256

// MinIO stores images in an S3-compatible bucket.
//
// Uploaded images are decoded, scaled down to fit AvatarSize x AvatarSize and
// re-encoded as JPEG before they are stored, so the bucket never holds the
// raw client bytes (and whatever metadata came with them).
type MinIO struct {
	client    *minio.Client
	bucket    string
	publicURL *url.URL
}

// NewMinIO creates the client. It does not contact the server; call
// EnsureBucket for that.
func NewMinIO(cfg config.MinIOConfig) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: creating minio client: %w", err)
	}

	base := cfg.PublicURL
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint
	}
	publicURL, err := url.Parse(strings.TrimSuffix(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("storage: parsing public url %q: %w", base, err)
	}

	return &MinIO{client: client, bucket: cfg.Bucket, publicURL: publicURL}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *MinIO) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("storage: checking bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("storage: creating bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Upload normalizes the image and writes it to key.
// contentType is the client's claim and is not trusted; the stored object is
// always image/jpeg.
func (s *MinIO) Upload(ctx context.Context, key string, r io.Reader, _ string) (string, error) {
	data, err := normalizeImage(r, AvatarSize)
	if err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  "image/jpeg",
		CacheControl: "public, max-age=31536000",
	})
	if err != nil {
		return "", fmt.Errorf("storage: uploading %s: %w", key, err)
	}

	return s.objectURL(key, xid.New().String()), nil
}

// objectURL builds <public url>/<bucket>/<key>?v=<version>. The key is
// overwritten on every upload, so the version parameter is what makes
// browsers and CDNs fetch the new image.
func (s *MinIO) objectURL(key, version string) string {
	u := *s.publicURL
	u.Path = u.Path + "/" + s.bucket + "/" + key
	u.RawQuery = url.Values{"v": {version}}.Encode()
	return u.String()
}

func normalizeImage(r io.Reader, size int) ([]byte, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	// Fit never upscales.
	resized := imaging.Fit(img, size, size, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("storage: encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
