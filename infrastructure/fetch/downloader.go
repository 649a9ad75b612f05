// Package fetch downloads model archives over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/helixml/modelprep/internal/config"
)

// ChunkSize is the number of bytes copied per write.
const ChunkSize = 8192

// ErrHTTPStatus is wrapped by errors for non-2xx responses.
var ErrHTTPStatus = errors.New("unexpected http status")

// ProgressFunc receives the bytes written so far and the expected total,
// which is -1 when the server does not send a Content-Length.
type ProgressFunc func(written, total int64)

// Auth decorates outgoing requests with credentials.
type Auth interface {
	Apply(req *http.Request)
}

// BasicAuth authenticates with a user name and key, as the Kaggle API expects.
type BasicAuth struct {
	Username string
	Password string
}

// Apply implements Auth.
func (a BasicAuth) Apply(req *http.Request) {
	req.SetBasicAuth(a.Username, a.Password)
}

// BearerToken authenticates with an access token.
type BearerToken string

// Apply implements Auth.
func (t BearerToken) Apply(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+string(t))
}

// Options tune a single download.
type Options struct {
	Auth     Auth
	Progress ProgressFunc
}

// Downloader streams HTTP resources to disk with retries.
type Downloader struct {
	client *http.Client
	cfg    config.DownloadConfig
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewDownloader creates a Downloader. A nil client uses http.DefaultClient.
func NewDownloader(client *http.Client, cfg config.DownloadConfig) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{client: client, cfg: cfg, sleep: sleepContext}
}

// Download fetches url into dest and returns the number of bytes written.
// The body is streamed into a temporary file next to dest which is renamed
// into place only once complete, so dest never holds a partial download.
func (d *Downloader) Download(ctx context.Context, url, dest string, opts Options) (int64, error) {
	if d.cfg.Timeout() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout())
		defer cancel()
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}

	attempts := max(d.cfg.MaxRetries(), 1)
	delay := d.cfg.InitialDelay()

	var err error
	for i := range attempts {
		if i > 0 {
			if sleepErr := d.sleep(ctx, delay); sleepErr != nil {
				return 0, fmt.Errorf("download %s: %w (last error: %v)", url, sleepErr, err)
			}
			delay = time.Duration(float64(delay) * d.cfg.BackoffFactor())
		}

		var n int64
		n, err = d.tryDownload(ctx, url, dest, opts)
		if err == nil {
			return n, nil
		}
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return 0, err
}

func (d *Downloader) tryDownload(ctx context.Context, url, dest string, opts Options) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, permanent{fmt.Errorf("build request: %w", err)}
	}
	if opts.Auth != nil {
		opts.Auth.Apply(req)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("%w: HTTP %d for %s", ErrHTTPStatus, resp.StatusCode, url)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
			resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
			return 0, permanent{statusErr}
		}
		return 0, statusErr
	}

	return writeAtomic(dest, resp.Body, resp.ContentLength, opts.Progress)
}

func writeAtomic(dest string, body io.Reader, total int64, progress ProgressFunc) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".part-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	w := &progressWriter{w: tmp, total: total, progress: progress}
	n, err := io.CopyBuffer(w, body, make([]byte, ChunkSize))
	if err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("write %s: %w", dest, err)
	}
	if total >= 0 && n != total {
		_ = tmp.Close()
		return 0, fmt.Errorf("write %s: short body: got %d of %d bytes", dest, n, total)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", dest, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return 0, fmt.Errorf("rename into %s: %w", dest, err)
	}
	return n, nil
}

type progressWriter struct {
	w        io.Writer
	written  int64
	total    int64
	progress ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if p.progress != nil {
		p.progress(p.written, p.total)
	}
	return n, err
}

// permanent marks errors that retrying cannot fix.
type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

func retryable(err error) bool {
	var p permanent
	return !errors.As(err, &p)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
