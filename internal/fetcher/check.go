package fetcher

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
)

// sniffBytes is how much of the body Check inspects.
const sniffBytes = 1024

// CheckResult describes a single reachability check of a feed URL.
type CheckResult struct {
	StatusCode  int
	ContentType string
	IsXMLTV     bool
	Latency     time.Duration
}

// OK reports whether the feed answered 200 with something that looks like XMLTV.
func (r *CheckResult) OK() bool {
	return r.StatusCode == http.StatusOK && r.IsXMLTV
}

// Check issues one GET against url without retries and sniffs the start of
// the body, gunzipping it when needed. Transport failures return an error;
// HTTP error statuses are reported in the result.
func (c *Client) Check(ctx context.Context, url string) (*CheckResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("NewRequest: %w", err)
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	began := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Do: %w", err)
	}
	defer resp.Body.Close()

	res := &CheckResult{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Latency:     time.Since(began),
	}
	if resp.StatusCode != http.StatusOK {
		return res, nil
	}
	head, err := sniff(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	res.IsXMLTV = looksLikeXMLTV(head)
	return res, nil
}

func sniff(body io.Reader) ([]byte, error) {
	br := bufio.NewReaderSize(body, sniffBytes)
	magic, _ := br.Peek(2)
	var r io.Reader = br
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	head, err := io.ReadAll(io.LimitReader(r, sniffBytes))
	if err == io.ErrUnexpectedEOF && len(head) > 0 {
		// truncated gzip stream, the header is still usable
		err = nil
	}
	return head, err
}

func looksLikeXMLTV(head []byte) bool {
	return bytes.Contains(head, []byte("<tv")) || bytes.Contains(head, []byte("<!DOCTYPE tv"))
}
