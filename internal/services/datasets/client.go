package datasets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"refbuild/internal/services"
)

const defaultHTTPTimeout = 10 * time.Minute

// Client fetches per-accession genome archives from a datasets-style
// download endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithUserAgent overrides the User-Agent header sent with requests.
func WithUserAgent(agent string) Option {
	return func(c *Client) {
		if strings.TrimSpace(agent) != "" {
			c.userAgent = strings.TrimSpace(agent)
		}
	}
}

// NewClient constructs a client for the given endpoint base URL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  "refbuild/1.0",
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// ArchiveURL returns the download URL for an accession.
func (c *Client) ArchiveURL(accession string) string {
	return fmt.Sprintf("%s/genome/accession/%s/download?include_annotation_type=GENOME_FASTA",
		c.baseURL, url.PathEscape(accession))
}

// FetchArchive downloads the accession's archive to destPath. The payload is
// streamed to a temp file in the destination directory and renamed into
// place only after the full body has been read, so an interrupted transfer
// never leaves a plausible-looking archive behind. A 2xx response with an
// empty body is a failure: the temp file is removed and an error returned.
func (c *Client) FetchArchive(ctx context.Context, accession, destPath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ArchiveURL(accession), nil)
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, "datasets", "build request", accession, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/zip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "datasets", "fetch archive", accession, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 512)
		return 0, services.Wrap(services.ErrTransient, "datasets", "fetch archive",
			fmt.Sprintf("%s: endpoint returned %s", accession, resp.Status), nil)
	}

	dir := filepath.Dir(destPath)
	tmp, err := os.CreateTemp(dir, filepath.Base(destPath)+".part*")
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "datasets", "create temp file", accession, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	written, err := io.Copy(tmp, resp.Body)
	if err != nil {
		cleanup()
		return 0, services.Wrap(services.ErrTransient, "datasets", "stream archive", accession, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, services.Wrap(services.ErrTransient, "datasets", "flush archive", accession, err)
	}

	if written == 0 {
		_ = os.Remove(tmpPath)
		return 0, services.Wrap(services.ErrTransient, "datasets", "fetch archive",
			fmt.Sprintf("%s: endpoint returned an empty payload", accession), nil)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return 0, services.Wrap(services.ErrTransient, "datasets", "finalize archive", accession, err)
	}
	return written, nil
}
