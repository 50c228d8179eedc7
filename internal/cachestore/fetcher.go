package cachestore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/citizenbirds/birdlist/internal/errors"
	"github.com/citizenbirds/birdlist/internal/httpclient"
)

// maxResponseSize caps the bytes read from one upstream response.
const maxResponseSize = 32 << 20

// HTTPFetcher fetches requests with the shared HTTP client.
type HTTPFetcher struct {
	client *httpclient.Client
}

// NewHTTPFetcher returns a Fetcher backed by client.
func NewHTTPFetcher(client *httpclient.Client) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

// Fetch performs a GET and returns the body of a 2xx response.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	host := hostOf(req.URL)

	resp, err := f.client.Get(ctx, req.URL, req.Header)
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryNetwork).
			Context("host", host).
			NetworkContext(req.URL, 0).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to read response body: %w", err)).
			Component(componentName).
			Category(errors.CategoryNetwork).
			Context("host", host).
			Build()
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, errors.Newf("upstream returned %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)).
			Component(componentName).
			Category(categoryForStatus(resp.StatusCode)).
			Context("host", host).
			Context("status_code", resp.StatusCode).
			Build()
	}
	return body, nil
}

func categoryForStatus(code int) errors.ErrorCategory {
	switch code {
	case http.StatusNotFound:
		return errors.CategoryNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.CategoryConfiguration
	case http.StatusTooManyRequests:
		return errors.CategoryLimit
	default:
		return errors.CategoryNetwork
	}
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
