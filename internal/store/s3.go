package store

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dmaes/prometheus-shelly-exporter/internal/errors"
)

// S3Backend persists the document as one object in an S3-compatible bucket.
// Uploads and downloads go through a uniquely named local temporary file so
// a failed transfer never leaves a half-written object or local artifact at
// a canonical path; the object-store PUT itself is atomic.
type S3Backend struct {
	client *minio.Client
	bucket string
	key    string
}

// S3Options configures an S3 backend. URL must include the scheme; Verify
// is empty for default TLS verification, "false" to disable it, or a path
// to a custom CA bundle.
type S3Options struct {
	URL       string
	Bucket    string
	Key       string
	KeyID     string
	SecretKey string
	Verify    string
}

// NewS3Backend creates a backend for opts.Key in opts.Bucket.
func NewS3Backend(opts S3Options) (*S3Backend, error) {
	endpoint, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing S3 URL: %w", err)
	}

	clientOpts := &minio.Options{
		Creds:  credentials.NewStaticV4(opts.KeyID, opts.SecretKey, ""),
		Secure: endpoint.Scheme == "https",
	}
	if transport, err := buildTransport(opts.Verify); err != nil {
		return nil, err
	} else if transport != nil {
		clientOpts.Transport = transport
	}

	client, err := minio.New(endpoint.Host, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("creating S3 client: %w", err)
	}

	return &S3Backend{client: client, bucket: opts.Bucket, key: opts.Key}, nil
}

func buildTransport(verify string) (*http.Transport, error) {
	switch {
	case verify == "":
		return nil, nil
	case strings.EqualFold(verify, "false"):
		return &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}, nil // #nosec G402 -- explicit operator opt-out
	default:
		pem, err := os.ReadFile(verify)
		if err != nil {
			return nil, fmt.Errorf("reading CA bundle %s: %w", verify, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", verify)
		}
		return &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool}}, nil
	}
}

func (s *S3Backend) Name() string {
	return "s3"
}

func (s *S3Backend) ReadBytes(ctx context.Context) ([]byte, error) {
	tmp, err := tempObjectPath()
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp)

	if err := s.client.FGetObject(ctx, s.bucket, s.key, tmp, minio.GetObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, errors.ErrNotFound
		}
		return nil, fmt.Errorf("downloading s3://%s/%s: %w", s.bucket, s.key, err)
	}

	data, err := os.ReadFile(tmp)
	if err != nil {
		return nil, fmt.Errorf("reading downloaded object: %w", err)
	}
	return data, nil
}

func (s *S3Backend) WriteBytes(ctx context.Context, data []byte) error {
	tmp, err := tempObjectPath()
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing temporary object: %w", err)
	}
	if _, err := s.client.FPutObject(ctx, s.bucket, s.key, tmp, minio.PutObjectOptions{}); err != nil {
		return fmt.Errorf("uploading s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

// tempObjectPath returns a temporary file path with a random suffix,
// verified not to exist, so concurrent exporter processes cannot clobber
// each other's in-flight transfers.
func tempObjectPath() (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		suffix := make([]byte, 4)
		if _, err := rand.Read(suffix); err != nil {
			return "", fmt.Errorf("generating temporary object name: %w", err)
		}
		path := filepath.Join(os.TempDir(), ".shelly-metrics-"+hex.EncodeToString(suffix)+".tmp")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
	}
	return "", fmt.Errorf("could not find a free temporary object name")
}
