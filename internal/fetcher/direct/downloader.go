// Package direct downloads files over plain HTTP, streaming bodies to disk.
package direct

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JakeFAU/docprobe/internal/probe"
)

const (
	defaultMinExistingBytes = 1000
	defaultHeaderTimeout    = 30 * time.Second
	defaultIdleTimeout      = 2 * time.Minute
	acceptVideo             = "video/mp4,video/*,*/*"
	bytesPerMB              = 1024 * 1024
)

// Config controls where files land and which ones are skipped.
type Config struct {
	OutputDir string
	// MaxSizeMB skips files larger than this; zero disables the check.
	MaxSizeMB int64
	// MinExistingBytes is the size above which a local file counts as
	// already downloaded. Smaller files are assumed to be failed HTML saves.
	MinExistingBytes int64
	UserAgent        string
	Cookie           string
	// HeaderTimeout bounds the wait for response headers.
	HeaderTimeout time.Duration
	// IdleTimeout aborts a download when no bytes arrive for this long.
	// The window restarts on every read, so large bodies are not capped.
	IdleTimeout time.Duration
}

// Waiter gates requests per host.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Downloader implements probe.Executor by fetching item.URL into OutputDir.
type Downloader struct {
	cfg     Config
	client  *http.Client
	limiter Waiter
}

// New validates cfg, creates the output directory, and returns a Downloader.
// A nil client gets a transport tuned for large streaming bodies.
func New(cfg Config, client *http.Client, limiter Waiter) (*Downloader, error) {
	if strings.TrimSpace(cfg.OutputDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if cfg.MinExistingBytes <= 0 {
		cfg.MinExistingBytes = defaultMinExistingBytes
	}
	if cfg.HeaderTimeout <= 0 {
		cfg.HeaderTimeout = defaultHeaderTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if client == nil {
		client = &http.Client{Transport: newHTTPTransport(cfg.HeaderTimeout)}
	}
	return &Downloader{cfg: cfg, client: client, limiter: limiter}, nil
}

// Execute downloads one file and classifies the result.
func (d *Downloader) Execute(ctx context.Context, item probe.WorkItem) probe.Outcome {
	name := filepath.Base(item.ID)
	if name != item.ID || name == "." || name == string(filepath.Separator) {
		return probe.Failed(item, fmt.Errorf("invalid filename %q", item.ID))
	}
	dest := filepath.Join(d.cfg.OutputDir, name)

	if info, err := os.Stat(dest); err == nil && info.Size() > d.cfg.MinExistingBytes {
		return probe.Skipped(item, probe.ReasonAlreadyExists, info.Size())
	}
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, item.URL); err != nil {
			return probe.Failed(item, err)
		}
	}

	reqCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	idle := time.AfterFunc(d.cfg.IdleTimeout, func() { cancel(errIdle) })
	defer idle.Stop()

	resp, err := d.get(reqCtx, item.URL)
	if err != nil {
		return probe.Failed(item, d.stalled(reqCtx, err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return probe.Failed(item, fmt.Errorf("HTTP %d", resp.StatusCode))
	}
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return probe.Failed(item, probe.ErrSessionNotEstablished)
	}
	if d.tooLarge(resp.ContentLength) {
		return probe.Skipped(item, d.sizeReason(resp.ContentLength), resp.ContentLength)
	}

	written, err := d.save(&idleReader{r: resp.Body, timer: idle, window: d.cfg.IdleTimeout}, dest)
	if errors.Is(err, errTooLarge) {
		return probe.Skipped(item, d.sizeReason(written), written)
	}
	if err != nil {
		return probe.Failed(item, d.stalled(reqCtx, err))
	}
	return probe.Found(item, written, contentType)
}

func (d *Downloader) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", acceptVideo)
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}
	if d.cfg.Cookie != "" {
		req.Header.Set("Cookie", d.cfg.Cookie)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request: %w", err)
	}
	return resp, nil
}

var (
	errTooLarge = errors.New("body exceeds size limit")
	errIdle     = errors.New("download stalled")
)

// stalled replaces err with the idle error when the idle timer cancelled ctx.
func (d *Downloader) stalled(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), errIdle) {
		return fmt.Errorf("%w: no data for %s", errIdle, d.cfg.IdleTimeout)
	}
	return err
}

// idleReader pushes the idle deadline forward whenever a read makes progress.
type idleReader struct {
	r      io.Reader
	timer  *time.Timer
	window time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.window)
	}
	return n, err
}

func (d *Downloader) maxBytes() int64 {
	return d.cfg.MaxSizeMB * bytesPerMB
}

func (d *Downloader) tooLarge(n int64) bool {
	return d.cfg.MaxSizeMB > 0 && n > d.maxBytes()
}

func (d *Downloader) sizeReason(n int64) string {
	return fmt.Sprintf("%s (%s > %dMB)", probe.ReasonSizeTooLarge, probe.FormatBytes(n), d.cfg.MaxSizeMB)
}

// save streams body into a temporary file next to dest and renames it into
// place once complete.
func (d *Downloader) save(body io.Reader, dest string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	src := body
	if d.cfg.MaxSizeMB > 0 {
		src = io.LimitReader(body, d.maxBytes()+1)
	}
	written, err := io.Copy(tmp, src)
	if err != nil {
		cleanup()
		return written, fmt.Errorf("write body: %w", err)
	}
	if d.tooLarge(written) {
		cleanup()
		return written, errTooLarge
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return written, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return written, fmt.Errorf("move into place: %w", err)
	}
	return written, nil
}

func newHTTPTransport(headerTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		DisableCompression:    true,
	}
}
