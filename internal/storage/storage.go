// Package storage hosts user images.
//
// The service layer only sees the Uploader interface. MinIO implements it for
// real deployments; Disabled stands in when no object store is configured.
package storage

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrInvalidImage means the upload could not be decoded as an image.
	ErrInvalidImage = errors.New("invalid image")
	// ErrDisabled is returned by Disabled.Upload.
	ErrDisabled = errors.New("image uploads are not configured")
)

// Uploader stores an image under key, replacing any previous object with the
// same key, and returns a URL that serves it.
type Uploader interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
}

// Disabled is the Uploader used when no object store is configured.
type Disabled struct{}

func (Disabled) Upload(context.Context, string, io.Reader, string) (string, error) {
	return "", ErrDisabled
}
