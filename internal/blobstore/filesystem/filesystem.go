// Package filesystem is a blob store rooted in a local directory. Objects
// are served by the API under /files/ behind HMAC signed URLs, the same
// shape of access S3 presigning gives.
package filesystem

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zenfi/core/internal/blobstore"
)

const FilesPrefix = "/files/"

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrExpired          = errors.New("signed url expired")
)

func New(root, baseURL string, secret []byte) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("must set filesystem root")
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("must set signing secret")
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create root: %w", err)
	}

	return &Store{
		root:    root,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		secret:  secret,
		now:     time.Now,
	}, nil
}

type Store struct {
	root    string
	baseURL string
	secret  []byte
	now     func() time.Time
}

func (s *Store) Put(ctx context.Context, path string, data []byte, contentType string, overwrite bool) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}

	if !overwrite {
		if _, err := os.Stat(full); err == nil {
			return blobstore.ErrExists
		}
	}

	return s.write(full, data)
}

func (s *Store) Read(ctx context.Context, path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, blobstore.ErrNotFound
	}

	return b, err
}

func (s *Store) List(ctx context.Context, dir string) ([]blobstore.Object, error) {
	full, err := s.resolve(strings.TrimSuffix(dir, "/"))
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	var objects []blobstore.Object
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		objects = append(objects, blobstore.Object{
			Name:      e.Name(),
			UpdatedAt: info.ModTime().UTC(),
		})
	}

	return objects, nil
}

// PublicURL is the stable locator of an object. Fetching it still
// requires a signature from SignDownload.
func (s *Store) PublicURL(path string) string {
	return s.baseURL + FilesPrefix + (&url.URL{Path: path}).EscapedPath()
}

func (s *Store) SignUpload(ctx context.Context, path, contentType string, ttl time.Duration) (*blobstore.SignedURL, error) {
	if _, err := s.resolve(path); err != nil {
		return nil, err
	}

	signed := s.sign(http.MethodPut, path, ttl)
	if contentType != "" {
		signed.Header = http.Header{"Content-Type": []string{contentType}}
	}

	return signed, nil
}

func (s *Store) SignDownload(ctx context.Context, path string, ttl time.Duration) (*blobstore.SignedURL, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(full); errors.Is(err, os.ErrNotExist) {
		return nil, blobstore.ErrNotFound
	}

	return s.sign(http.MethodGet, path, ttl), nil
}

// Verify checks the query of a signed URL against the method and path it
// is being used for.
func (s *Store) Verify(method, path string, query url.Values) error {
	expires, err := strconv.ParseInt(query.Get("expires"), 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}

	sig, err := hex.DecodeString(query.Get("signature"))
	if err != nil {
		return ErrInvalidSignature
	}

	if !hmac.Equal(sig, s.mac(method, path, expires)) {
		return ErrInvalidSignature
	}

	if s.now().Unix() > expires {
		return ErrExpired
	}

	return nil
}

func (s *Store) sign(method, path string, ttl time.Duration) *blobstore.SignedURL {
	expiresAt := s.now().Add(ttl)
	expires := expiresAt.Unix()

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", hex.EncodeToString(s.mac(method, path, expires)))

	return &blobstore.SignedURL{
		URL:       s.PublicURL(path) + "?" + q.Encode(),
		Method:    method,
		ExpiresAt: expiresAt,
	}
}

func (s *Store) mac(method, path string, expires int64) []byte {
	h := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(h, "%s\n%s\n%d", method, path, expires)
	return h.Sum(nil)
}

func (s *Store) resolve(path string) (string, error) {
	cleaned, err := blobstore.CleanPath(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

func (s *Store) write(path string, data []byte) error {
	dir := filepath.Dir(path)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
	}

	return os.WriteFile(path, data, 0644)
}
