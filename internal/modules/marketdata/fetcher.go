package marketdata

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const userAgent = "frontier/1.0 (+https://github.com/aristath/frontier)"

// maxDownloadBytes bounds a single price file.
const maxDownloadBytes = 32 << 20

// Fetcher downloads and parses price files. Remote responses are cached on
// disk for the calendar day so repeated refreshes do not hit the origin.
type Fetcher struct {
	client *http.Client
	log    zerolog.Logger
}

// NewFetcher creates a fetcher. An empty cacheDir disables the disk cache.
func NewFetcher(cacheDir string, timeout time.Duration, log zerolog.Logger) *Fetcher {
	log = log.With().Str("component", "price_fetcher").Logger()

	var transport http.RoundTripper = http.DefaultTransport
	if cacheDir != "" {
		transport = &diskCache{base: transport, dir: cacheDir, log: log}
	}

	return &Fetcher{
		client: &http.Client{Timeout: timeout, Transport: transport},
		log:    log,
	}
}

// Fetch loads a price table from an http(s) URL or a local path.
func (f *Fetcher) Fetch(ctx context.Context, source string) (PriceTable, error) {
	body, err := f.open(ctx, source)
	if err != nil {
		return PriceTable{}, err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxDownloadBytes))
	if err != nil {
		return PriceTable{}, fmt.Errorf("failed to read %s: %w", source, err)
	}
	if len(data) == 0 {
		return PriceTable{}, fmt.Errorf("%s: %w", source, ErrEmptyFile)
	}

	var table PriceTable
	switch sourceExt(source) {
	case ".csv", ".txt":
		table, err = ParseCSV(bytes.NewReader(data))
	default:
		table, err = ParseXLSX(bytes.NewReader(data))
	}
	if err != nil {
		return PriceTable{}, fmt.Errorf("failed to parse %s: %w", source, err)
	}

	f.log.Debug().
		Str("source", source).
		Int("rows", table.Len()).
		Int("columns", len(table.Columns)).
		Msg("Fetched price table")

	return table, nil
}

func (f *Fetcher) open(ctx context.Context, source string) (io.ReadCloser, error) {
	if !isRemote(source) {
		file, err := os.Open(strings.TrimPrefix(source, "file://"))
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", source, err)
		}
		return file, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", source, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", source, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("cannot GET %s: %s", source, resp.Status)
	}
	return resp.Body, nil
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func sourceExt(source string) string {
	if isRemote(source) {
		if u, err := url.Parse(source); err == nil {
			return strings.ToLower(path.Ext(u.Path))
		}
	}
	return strings.ToLower(filepath.Ext(source))
}

// diskCache is an http.RoundTripper that stores successful GET responses
// under a key that changes every day.
type diskCache struct {
	base http.RoundTripper
	dir  string
	log  zerolog.Logger
}

func (c *diskCache) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return c.base.RoundTrip(req)
	}

	key := cacheKey(time.Now(), req)
	if cached, err := c.get(key, req); err == nil {
		c.log.Debug().Str("url", req.URL.String()).Msg("Download cache hit")
		return cached, nil
	}

	resp, err := c.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	c.log.Info().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Msg("Downloaded")
	if resp.StatusCode >= 300 {
		return resp, nil
	}

	if err := c.put(key, resp); err != nil {
		c.log.Warn().Err(err).Msg("Download cache write failed (ignored)")
	}
	return resp, nil
}

func cacheKey(now time.Time, req *http.Request) string {
	key := fmt.Sprintf("%s %s %s", now.Format("2006-01-02"), req.Method, req.URL.String())
	return fmt.Sprintf("%x", sha1.Sum([]byte(key)))
}

func (c *diskCache) get(key string, req *http.Request) (*http.Response, error) {
	content, err := os.ReadFile(filepath.Join(c.dir, key))
	if err != nil {
		return nil, err
	}
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(content)), req)
}

// put dumps the response; DumpResponse leaves resp.Body readable.
func (c *diskCache) put(key string, resp *http.Response) error {
	content, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.dir, key), content, 0644)
}

// Prune removes cache entries older than maxAge.
func (c *diskCache) Prune(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || e.IsDir() || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// PruneCache drops downloaded files older than maxAge. No-op without a disk cache.
func (f *Fetcher) PruneCache(maxAge time.Duration) (int, error) {
	dc, ok := f.client.Transport.(*diskCache)
	if !ok {
		return 0, nil
	}
	return dc.Prune(maxAge)
}
