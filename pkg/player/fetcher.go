package player

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const defaultUserAgent = "fuaim/1.0"

// HTTPFetcher fetches audio resources over HTTP, resolving relative
// manifest paths against a base URL.
type HTTPFetcher struct {
	BaseURL   string
	Origin    string // origin the assets are expected to be served for
	UserAgent string
	Client    *http.Client
}

// NewHTTPFetcher creates a fetcher for assets under baseURL.
func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL:   baseURL,
		UserAgent: defaultUserAgent,
		Client:    &http.Client{},
	}
}

// Fetch retrieves the resource at path. Non-2xx responses are returned
// as *HTTPError with cross-origin information attached.
func (f *HTTPFetcher) Fetch(ctx context.Context, path string) (io.ReadCloser, error) {
	target, err := f.resolveURL(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve asset url %q: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	ua := f.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "audio/*, */*")
	if f.Origin != "" {
		req.Header.Set("Origin", f.Origin)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		crossOrigin := f.crossOriginRejected(req, resp)
		resp.Body.Close()
		return nil, &HTTPError{Status: resp.StatusCode, URL: target, CrossOrigin: crossOrigin}
	}

	return resp.Body, nil
}

func (f *HTTPFetcher) resolveURL(path string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, nil
	}
	base, err := url.Parse(f.BaseURL)
	if err != nil {
		return "", err
	}
	rel, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(rel).String(), nil
}

// crossOriginRejected reports whether the response looks like a
// cross-origin refusal: the request went to a different host than the
// configured origin and the response allow-origin header does not cover
// the origin.
func (f *HTTPFetcher) crossOriginRejected(req *http.Request, resp *http.Response) bool {
	if f.Origin == "" {
		return false
	}
	origin, err := url.Parse(f.Origin)
	if err != nil {
		return false
	}
	if req.URL.Host == origin.Host {
		return false
	}
	allow := resp.Header.Get("Access-Control-Allow-Origin")
	return allow != "*" && allow != f.Origin
}

// FileFetcher serves audio resources from a local directory. Missing
// files surface as fs.ErrNotExist, which classifies as NOT_FOUND.
type FileFetcher struct {
	Root string
}

func (f *FileFetcher) Fetch(_ context.Context, path string) (io.ReadCloser, error) {
	full := filepath.Join(f.Root, filepath.FromSlash(path))
	file, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", full, err)
	}
	return file, nil
}
