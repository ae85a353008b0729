// Package fetch performs single, unparsed network fetches for source adapters.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultUserAgent = "jokemachine/1.0"
	defaultMaxBody   = 16 << 20
)

// RawFetch is the unparsed result of one network round trip.
type RawFetch struct {
	URL             string
	Body            []byte
	ContentType     string
	Charset         string
	ContentEncoding string
	LastModified    string
	RetrievedAt     time.Time
}

// Error is returned for any failed fetch. StatusCode is zero when no HTTP
// response was received.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Reached reports whether the request got as far as the remote server.
func (e *Error) Reached() bool { return e.StatusCode != 0 }

// Options configures a Fetcher.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	// MaxRequestsPerSecond caps all requests made through the Fetcher. Zero
	// disables the cap.
	MaxRequestsPerSecond float64
	// MaxBodyBytes bounds the response body. Larger bodies fail the fetch.
	// Zero means 16 MiB.
	MaxBodyBytes int64
}

// Fetcher performs single GET requests. It never retries.
type Fetcher struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
	maxBody   int64
	now       func() time.Time
}

// New creates a Fetcher.
func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBody
	}
	f := &Fetcher{
		client:    &http.Client{Timeout: opts.Timeout},
		userAgent: opts.UserAgent,
		maxBody:   opts.MaxBodyBytes,
		now:       time.Now,
	}
	if opts.MaxRequestsPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.MaxRequestsPerSecond), 1)
	}
	return f
}

// Fetch retrieves rawURL. Non-2xx responses are returned as *Error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*RawFetch, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &Error{URL: rawURL, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{URL: rawURL, StatusCode: resp.StatusCode, Err: errors.New("unexpected status")}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, &Error{URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > f.maxBody {
		return nil, &Error{URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("body exceeds %d bytes", f.maxBody)}
	}

	raw := &RawFetch{
		URL:             rawURL,
		Body:            body,
		ContentEncoding: resp.Header.Get("Content-Encoding"),
		LastModified:    resp.Header.Get("Last-Modified"),
		RetrievedAt:     f.now().UTC(),
	}
	raw.ContentType, raw.Charset = splitContentType(resp.Header.Get("Content-Type"))
	return raw, nil
}

func splitContentType(header string) (string, string) {
	if header == "" {
		return "", ""
	}
	mediaType, params, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.TrimSpace(strings.Split(header, ";")[0]), ""
	}
	return mediaType, strings.ToLower(params["charset"])
}
