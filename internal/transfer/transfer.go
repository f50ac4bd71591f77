// Package transfer moves recording bytes from a provider download URL into
// object storage through a scoped local temp file.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// DefaultContentType is used when the provider does not send one.
const DefaultContentType = "video/mp4"

// Destination is a storage location that can receive staged files.
type Destination interface {
	Name() string
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
}

// DownloadError is returned when a source asset cannot be fetched.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// UploadError is returned when publishing fails. The destination state is unknown.
type UploadError struct {
	Bucket string
	Key    string
	Err    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload s3://%s/%s: %v", e.Bucket, e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// StagedFile is a downloaded asset on local disk. Cleanup must be called once done.
type StagedFile struct {
	Path        string
	Size        int64
	ContentType string
	dir         string
}

// Cleanup removes the staged file and its scoped directory. Safe to call more than once.
func (s *StagedFile) Cleanup() error {
	if s == nil || s.dir == "" {
		return nil
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove staged file: %w", err)
	}
	return nil
}

// Transfer stages provider downloads and publishes them to storage.
type Transfer struct {
	client  *http.Client
	tempDir string
	logger  *zap.Logger
}

// New creates a Transfer. An empty tempDir uses os.TempDir.
func New(client *http.Client, tempDir string, logger *zap.Logger) *Transfer {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Hour}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transfer{client: client, tempDir: tempDir, logger: logger}
}

// FetchAndStage downloads rawURL into a fresh temp directory. On any failure
// nothing is left on disk and a *DownloadError is returned.
func (t *Transfer) FetchAndStage(ctx context.Context, rawURL string) (staged *StagedFile, err error) {
	display := redactURL(rawURL)

	dir, err := os.MkdirTemp(t.tempDir, "recording-*")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer func() {
		if err != nil {
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				t.logger.Warn("staging cleanup failed", zap.String("dir", dir), zap.Error(rmErr))
			}
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &DownloadError{URL: display, Err: scrubURL(err, display)}
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &DownloadError{URL: display, Err: scrubURL(err, display)}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &DownloadError{URL: display, StatusCode: resp.StatusCode}
	}

	path := filepath.Join(dir, "source.mp4")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create staged file: %w", err)
	}
	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		return nil, &DownloadError{URL: display, Err: scrubURL(copyErr, display)}
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close staged file: %w", closeErr)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = DefaultContentType
	}
	t.logger.Debug("staged download", zap.String("path", path), zap.Int64("size", n))
	return &StagedFile{Path: path, Size: n, ContentType: contentType, dir: dir}, nil
}

// Publish uploads a staged file to dest under key. Any storage failure is an *UploadError.
func (t *Transfer) Publish(ctx context.Context, staged *StagedFile, dest Destination, key string) error {
	if staged == nil {
		return errors.New("publish: nil staged file")
	}
	f, err := os.Open(staged.Path)
	if err != nil {
		return fmt.Errorf("open staged file: %w", err)
	}
	defer f.Close()

	if err := dest.Put(ctx, key, staged.ContentType, f, staged.Size); err != nil {
		return &UploadError{Bucket: dest.Name(), Key: key, Err: err}
	}
	t.logger.Info("published recording",
		zap.String("bucket", dest.Name()),
		zap.String("key", key),
		zap.Int64("size", staged.Size),
	)
	return nil
}

// Exists reports whether key is already present in dest.
func (t *Transfer) Exists(ctx context.Context, dest Destination, key string) (bool, error) {
	ok, err := dest.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check s3://%s/%s: %w", dest.Name(), key, err)
	}
	return ok, nil
}

// redactURL drops the query string, which carries the provider access token.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	return u.String()
}

// scrubURL replaces the URL carried by a *url.Error in err's chain, which
// net/http fills with the full request URL including the access token.
func scrubURL(err error, display string) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = display
	}
	return err
}
