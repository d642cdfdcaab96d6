package s3

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/zenfi/core/internal/blobstore"
)

// New returns an S3 backed store. Credentials and region come from the
// default AWS chain. publicBase is the CDN or bucket URL receipt locators
// are built from; empty means the virtual-hosted bucket URL.
func New(ctx context.Context, bucket, publicBase string) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("must set s3 bucket")
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	if publicBase == "" {
		publicBase = fmt.Sprintf("https://%s.s3.amazonaws.com", bucket)
	}

	client := awss3.NewFromConfig(cfg)

	return &Store{
		client:     client,
		presign:    awss3.NewPresignClient(client),
		bucket:     bucket,
		publicBase: strings.TrimSuffix(publicBase, "/"),
	}, nil
}

type Store struct {
	client     *awss3.Client
	presign    *awss3.PresignClient
	bucket     string
	publicBase string
}

func (s *Store) List(ctx context.Context, dir string) ([]blobstore.Object, error) {
	prefix := strings.TrimSuffix(dir, "/") + "/"

	p := awss3.NewListObjectsV2Paginator(s.client, &awss3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var objects []blobstore.Object
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3.ListObjectsV2: %w", err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, blobstore.Object{
				Name:      strings.TrimPrefix(aws.ToString(obj.Key), prefix),
				UpdatedAt: aws.ToTime(obj.LastModified),
			})
		}
	}

	return objects, nil
}

func (s *Store) PublicURL(path string) string {
	return s.publicBase + "/" + (&url.URL{Path: path}).EscapedPath()
}

func (s *Store) SignUpload(ctx context.Context, path, contentType string, ttl time.Duration) (*blobstore.SignedURL, error) {
	req, err := s.presign.PresignPutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(path),
		ContentType: aws.String(contentType),
	}, awss3.WithPresignExpires(ttl))
	if err != nil {
		return nil, fmt.Errorf("s3.PresignPutObject: %w", err)
	}

	return &blobstore.SignedURL{
		URL:       req.URL,
		Method:    req.Method,
		Header:    req.SignedHeader,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

func (s *Store) SignDownload(ctx context.Context, path string, ttl time.Duration) (*blobstore.SignedURL, error) {
	exists, err := s.exists(ctx, path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, blobstore.ErrNotFound
	}

	req, err := s.presign.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	}, awss3.WithPresignExpires(ttl))
	if err != nil {
		return nil, fmt.Errorf("s3.PresignGetObject: %w", err)
	}

	return &blobstore.SignedURL{
		URL:       req.URL,
		Method:    req.Method,
		Header:    req.SignedHeader,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

func (s *Store) exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err == nil {
		return true, nil
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}

	return false, fmt.Errorf("s3.HeadObject: %w", err)
}
