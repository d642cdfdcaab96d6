// Package blobstore describes the remote object store receipts are
// uploaded to.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"
)

var (
	ErrExists      = errors.New("object already exists")
	ErrNotFound    = errors.New("object not found")
	ErrInvalidPath = errors.New("invalid object path")
)

type Store interface {
	List(ctx context.Context, dir string) ([]Object, error)
	PublicURL(path string) string
	SignUpload(ctx context.Context, path, contentType string, ttl time.Duration) (*SignedURL, error)
	SignDownload(ctx context.Context, path string, ttl time.Duration) (*SignedURL, error)
}

// Object is an entry directly under a listed directory. Name is relative
// to that directory.
type Object struct {
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SignedURL is a short-lived URL that grants one operation on one object.
type SignedURL struct {
	URL       string      `json:"url"`
	Method    string      `json:"method"`
	Header    http.Header `json:"header,omitempty"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// CleanPath normalizes an object path and rejects paths that escape the
// store root.
func CleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}

	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}

	return cleaned, nil
}

// Owner returns the user id a path belongs to: its first segment.
func Owner(p string) string {
	owner, _, _ := strings.Cut(p, "/")
	return owner
}
