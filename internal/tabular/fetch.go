package tabular

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrUnsupportedLocator is returned for locators no fetcher handles.
var ErrUnsupportedLocator = errors.New("unsupported source locator")

// Object is an opened source file.
type Object struct {
	Body        io.ReadCloser
	Size        int64 // -1 when unknown
	ContentType string
}

// Fetcher opens a source locator for reading.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (*Object, error)
}

// FetcherConfig configures the transports behind Mux.
type FetcherConfig struct {
	HTTPTimeout time.Duration

	// S3 settings; S3 locators are rejected when Endpoint is empty.
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool

	// AllowLocalFiles enables file:// and bare path locators.
	AllowLocalFiles bool
}

// Mux dispatches a locator to the fetcher registered for its scheme.
type Mux struct {
	schemes map[string]Fetcher
}

// NewMux builds the default fetchers from cfg.
func NewMux(cfg FetcherConfig) (*Mux, error) {
	m := &Mux{schemes: make(map[string]Fetcher)}

	h := &HTTPFetcher{Client: &http.Client{Timeout: cfg.HTTPTimeout}}
	m.Handle("http", h)
	m.Handle("https", h)

	if cfg.S3Endpoint != "" {
		s3, err := NewS3Fetcher(cfg)
		if err != nil {
			return nil, err
		}
		m.Handle("s3", s3)
	}
	if cfg.AllowLocalFiles {
		m.Handle("file", FileFetcher{})
	}
	return m, nil
}

// Handle registers f for a URL scheme.
func (m *Mux) Handle(scheme string, f Fetcher) {
	m.schemes[strings.ToLower(scheme)] = f
}

// Fetch implements Fetcher.
func (m *Mux) Fetch(ctx context.Context, locator string) (*Object, error) {
	scheme := "file"
	if u, err := url.Parse(locator); err == nil && len(u.Scheme) > 1 {
		scheme = strings.ToLower(u.Scheme)
	}
	f, ok := m.schemes[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLocator, locator)
	}
	return f.Fetch(ctx, locator)
}

// HTTPFetcher downloads http(s) locators.
type HTTPFetcher struct {
	Client *http.Client
}

// Fetch implements Fetcher.
func (h *HTTPFetcher) Fetch(ctx context.Context, locator string) (*Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", redact(locator), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("get %s: unexpected status %s", redact(locator), resp.Status)
	}
	return &Object{
		Body:        resp.Body,
		Size:        resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// S3Fetcher reads s3://bucket/key locators from an S3-compatible endpoint.
type S3Fetcher struct {
	client *minio.Client
}

// NewS3Fetcher creates a minio client for the configured endpoint.
func NewS3Fetcher(cfg FetcherConfig) (*S3Fetcher, error) {
	endpoint := cfg.S3Endpoint
	useSSL := cfg.S3UseSSL
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			useSSL = true
		}
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: useSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &S3Fetcher{client: client}, nil
}

// Fetch implements Fetcher.
func (s *S3Fetcher) Fetch(ctx context.Context, locator string) (*Object, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return nil, fmt.Errorf("parse s3 locator: %w", err)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("%w: s3 locator needs bucket and key: %q", ErrUnsupportedLocator, locator)
	}

	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get s3 object %s/%s: %w", bucket, key, err)
	}
	// GetObject is lazy; Stat surfaces missing objects and auth failures.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, fmt.Errorf("stat s3 object %s/%s: %w", bucket, key, err)
	}
	return &Object{Body: obj, Size: info.Size, ContentType: info.ContentType}, nil
}

// FileFetcher opens local paths and file:// locators.
type FileFetcher struct{}

// Fetch implements Fetcher.
func (FileFetcher) Fetch(_ context.Context, locator string) (*Object, error) {
	p := locator
	if strings.HasPrefix(p, "file://") {
		u, err := url.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("parse file locator: %w", err)
		}
		p = u.Path
	}
	f, err := os.Open(filepath.Clean(p))
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat source: %w", err)
	}
	return &Object{Body: f, Size: st.Size()}, nil
}

// redact strips query strings, which often carry signed tokens.
func redact(locator string) string {
	if i := strings.IndexByte(locator, '?'); i >= 0 {
		return locator[:i] + "?..."
	}
	return locator
}
