package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"

	"go-style-scout/pkg/validation"
)

// ErrImageTooLarge is returned when a remote image exceeds the size limit.
var ErrImageTooLarge = errors.New("image exceeds size limit")

// ErrHostNotAllowed is returned when a fetch or one of its redirects targets
// a host the fetcher may not reach.
var ErrHostNotAllowed = errors.New("image host not allowed")

// ImageFetcher downloads raw image bytes. Decoding is left to the caller.
type ImageFetcher interface {
	FetchImage(ctx context.Context, imageURL string) ([]byte, error)
}

// HTTPImageFetcher implements ImageFetcher with bounded retries
type HTTPImageFetcher struct {
	client   *http.Client
	maxBytes int64
	backoff  time.Duration
}

// FetcherOption customizes an HTTPImageFetcher.
type FetcherOption func(*fetcherOptions)

type fetcherOptions struct {
	allowPrivate  bool
	checkRedirect func(target string) error
}

// WithPrivateNetworks lets the fetcher dial loopback, private and link-local
// addresses.
func WithPrivateNetworks(allow bool) FetcherOption {
	return func(o *fetcherOptions) { o.allowPrivate = allow }
}

// WithRedirectValidator runs check against every redirect target.
func WithRedirectValidator(check func(target string) error) FetcherOption {
	return func(o *fetcherOptions) { o.checkRedirect = check }
}

// NewHTTPImageFetcher creates an HTTP image fetcher. Bodies larger than
// maxBytes are rejected. Connections to non-public addresses are refused
// after DNS resolution unless WithPrivateNetworks(true) is given.
func NewHTTPImageFetcher(timeout time.Duration, maxBytes int64, opts ...FetcherOption) *HTTPImageFetcher {
	var o fetcherOptions
	for _, opt := range opts {
		opt(&o)
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if !o.allowPrivate {
		dialer.Control = publicOnly
	}

	// Connection pooling tuned for single image downloads
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
	}

	return &HTTPImageFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,

			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				if o.checkRedirect != nil {
					if err := o.checkRedirect(req.URL.String()); err != nil {
						return fmt.Errorf("%w: redirect to %s: %v", ErrHostNotAllowed, req.URL.Host, err)
					}
				}
				return nil
			},
		},
		maxBytes: maxBytes,
		backoff:  time.Second,
	}
}

func (h *HTTPImageFetcher) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	var lastErr error

	// Retry logic (3 attempts) - only retry on transient errors
	for attempt := 0; attempt < 3; attempt++ {
		data, retryable, err := h.fetchOnce(ctx, imageURL)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retryable {
			break
		}

		if attempt < 2 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("failed to fetch image: %w", ctx.Err())
			case <-time.After(time.Duration(attempt+1) * h.backoff):
			}
		}
	}

	return nil, fmt.Errorf("failed to fetch image after 3 attempts: %w", lastErr)
}

// fetchOnce performs one GET. The bool reports whether a failure is worth
// retrying.
func (h *HTTPImageFetcher) fetchOnce(ctx context.Context, imageURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, */*")
	req.Header.Set("User-Agent", "Go-Style-Scout/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		// A cancelled caller or a refused host is not a transient failure.
		return nil, ctx.Err() == nil && !errors.Is(err, ErrHostNotAllowed), err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, false, fmt.Errorf("client error: status code %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	if resp.ContentLength > h.maxBytes {
		return nil, false, ErrImageTooLarge
	}
	data, err := readLimited(resp.Body, h.maxBytes)
	if err != nil {
		return nil, !errors.Is(err, ErrImageTooLarge), err
	}
	return data, false, nil
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrImageTooLarge
	}
	return data, nil
}

// publicOnly is a net.Dialer Control hook. It sees the resolved address, so
// DNS names pointing at internal ranges are refused too.
func publicOnly(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, address)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil || !validation.IsPublicAddr(addr) {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
	}
	return nil
}
