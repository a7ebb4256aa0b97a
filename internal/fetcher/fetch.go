// Package fetcher downloads provider feeds to local temporary files so the
// decoder can stream them without holding the document in memory.
package fetcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
)

const (
	defaultTimeout    = 5 * time.Minute
	defaultBackoff    = 2 * time.Second
	maxBackoff        = time.Minute
	tempFilePattern   = "epgvault-*.xml"
	maxErrorBodyBytes = 512
)

// FetchError is returned when a feed could not be downloaded after all attempts.
type FetchError struct {
	URL        string
	Attempts   int
	StatusCode int // last HTTP status, 0 for transport errors
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Options configure a Client. Zero values fall back to defaults.
type Options struct {
	UserAgent string
	Timeout   time.Duration // per attempt
	Retries   int           // additional attempts after the first
	Backoff   time.Duration // first retry delay, doubling
	TempDir   string
}

// Client fetches feeds over HTTP with a per-attempt timeout and bounded retries.
type Client struct {
	http *http.Client
	opts Options
	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a Client from opts.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	return &Client{
		http:  &http.Client{},
		opts:  opts,
		sleep: sleepCtx,
	}
}

// Download is a fetched feed stored in a temporary file. Callers must Remove it.
type Download struct {
	Path string
	Size int64
}

// Open returns a reader over the feed body, transparently gunzipping it.
func (d *Download) Open() (io.ReadCloser, error) {
	f, err := os.Open(d.Path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)
	magic, _ := br.Peek(2)
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return &gzipFile{Reader: zr, f: f}, nil
	}
	return &bufferedFile{Reader: br, f: f}, nil
}

// Remove deletes the temporary file.
func (d *Download) Remove() error {
	return os.Remove(d.Path)
}

type bufferedFile struct {
	*bufio.Reader
	f *os.File
}

func (b *bufferedFile) Close() error { return b.f.Close() }

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	zerr := g.Reader.Close()
	if err := g.f.Close(); err != nil {
		return err
	}
	return zerr
}

// Fetch downloads url into a temporary file, retrying transport errors, 5xx and 429
// responses with exponential backoff. Other 4xx responses fail immediately.
func (c *Client) Fetch(ctx context.Context, url string) (*Download, error) {
	bo := newBackoff(c.opts.Backoff, maxBackoff)
	attempts := c.opts.Retries + 1
	var lastErr error
	var lastStatus int
	for attempt := 1; attempt <= attempts; attempt++ {
		dl, status, err := c.fetchOnce(ctx, url)
		if err == nil {
			log.Printf("fetch %s: %s downloaded (attempt %d)", url, humanize.Bytes(uint64(dl.Size)), attempt)
			return dl, nil
		}
		lastErr, lastStatus = err, status
		if !retryable(status, err) || attempt == attempts || ctx.Err() != nil {
			return nil, &FetchError{URL: url, Attempts: attempt, StatusCode: lastStatus, Err: lastErr}
		}
		delay := bo.Next()
		log.Printf("fetch %s: attempt %d/%d failed: %v; retrying in %s", url, attempt, attempts, err, delay)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, &FetchError{URL: url, Attempts: attempt, StatusCode: lastStatus, Err: err}
		}
	}
	return nil, &FetchError{URL: url, Attempts: attempts, StatusCode: lastStatus, Err: lastErr}
}

func (c *Client) fetchOnce(ctx context.Context, url string) (*Download, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("NewRequest: %w", err)
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("Do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	f, err := os.CreateTemp(c.opts.TempDir, tempFilePattern)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("CreateTemp: %w", err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return nil, resp.StatusCode, fmt.Errorf("download body: %w", err)
	}
	return &Download{Path: f.Name(), Size: n}, resp.StatusCode, nil
}

func retryable(status int, err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch {
	case status == 0:
		return true
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return true
	case status >= 500:
		return true
	case status == http.StatusOK:
		// body copy failed mid-stream
		return true
	default:
		return false
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
