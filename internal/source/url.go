package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"reelshare/internal/models"
)

// ErrInvalidURL reports a URL that cannot be fetched at all.
var ErrInvalidURL = errors.New("invalid url")

const userAgent = "reelshare/1.0"

// URLDownloader builds sources that stream a remote file over HTTP.
type URLDownloader struct {
	client *http.Client
}

func NewURLDownloader(client *http.Client) *URLDownloader {
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return errors.New("stopped after 10 redirects")
				}
				return nil
			},
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 15 * time.Second,
			},
		}
	}
	return &URLDownloader{client: client}
}

// Source validates rawURL and returns a source for it. Nothing is fetched yet.
func (d *URLDownloader) Source(rawURL string) (*RemoteURL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return &RemoteURL{client: d.client, url: u}, nil
}

// RemoteURL is a file reachable with a plain GET.
type RemoteURL struct {
	client *http.Client
	url    *url.URL
}

func (r *RemoteURL) Kind() models.SourceKind { return models.SourceURL }

func (r *RemoteURL) Ref() string { return r.url.String() }

// FileName is the last path segment of the URL.
func (r *RemoteURL) FileName() string {
	base := path.Base(r.url.Path)
	if base == "." || base == "/" || base == "" {
		return "download"
	}
	return SanitizeFileName(base)
}

func (r *RemoteURL) Fetch(ctx context.Context, w io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return resp.Header.Get("Content-Type"), nil
}
