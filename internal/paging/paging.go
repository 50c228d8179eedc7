// Package paging accumulates page-numbered JSON listings into one
// ordered sequence, one sequential request per page.
package paging

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/citizenbirds/birdlist/internal/cachestore"
	"github.com/citizenbirds/birdlist/internal/errors"
)

const (
	DefaultStartPage = 1
	DefaultMaxPages  = 500
)

// Getter returns the JSON payload for a request. *cachestore.Store satisfies it.
type Getter interface {
	Get(ctx context.Context, req cachestore.Request) (json.RawMessage, error)
}

// PageRequest builds the request for a page number.
type PageRequest func(page int) cachestore.Request

// Decoder extracts the items of one page and the page size the server
// reported. A perPage of 0 means the response did not say.
type Decoder[T any] func(raw json.RawMessage) (items []T, perPage int, err error)

// Option configures a Fetcher.
type Option func(*options)

type options struct {
	startPage int
	pageSize  int
	maxPages  int
}

// WithStartPage sets the first page number requested.
func WithStartPage(page int) Option {
	return func(o *options) { o.startPage = page }
}

// WithPageSize sets the page size used when responses carry none.
func WithPageSize(size int) Option {
	return func(o *options) { o.pageSize = size }
}

// WithMaxPages bounds the number of pages one iteration may request.
func WithMaxPages(n int) Option {
	return func(o *options) { o.maxPages = n }
}

// Fetcher walks a paginated listing.
type Fetcher[T any] struct {
	getter Getter
	req    PageRequest
	decode Decoder[T]
	opts   options

	requests int
}

// New creates a Fetcher. It performs no I/O until iterated.
func New[T any](getter Getter, req PageRequest, decode Decoder[T], opts ...Option) *Fetcher[T] {
	o := options{startPage: DefaultStartPage, maxPages: DefaultMaxPages}
	for _, opt := range opts {
		opt(&o)
	}
	return &Fetcher[T]{getter: getter, req: req, decode: decode, opts: o}
}

// Pages yields each page in order. A page shorter than the page size is
// the last one. An error is yielded once and ends the sequence. Every call
// starts again from the first page.
func (f *Fetcher[T]) Pages(ctx context.Context) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		f.requests = 0
		for page := f.opts.startPage; ; page++ {
			if f.requests >= f.opts.maxPages {
				yield(nil, errors.Newf("pagination stopped after %d pages", f.requests).
					Component("paging").
					Category(errors.CategoryLimit).
					Context("max_pages", f.opts.maxPages).
					Build())
				return
			}
			if err := ctx.Err(); err != nil {
				yield(nil, errors.New(err).
					Component("paging").
					Category(errors.CategoryCancellation).
					Build())
				return
			}

			req := f.req(page)
			f.requests++
			raw, err := f.getter.Get(ctx, req)
			if err != nil {
				yield(nil, err)
				return
			}
			items, perPage, err := f.decode(raw)
			if err != nil {
				yield(nil, errors.New(err).
					Component("paging").
					Category(errors.CategoryFileParsing).
					Context("page", page).
					Build())
				return
			}

			if perPage <= 0 {
				perPage = f.opts.pageSize
			}
			if !yield(items, nil) {
				return
			}
			if len(items) == 0 || len(items) < perPage {
				return
			}
		}
	}
}

// All accumulates every page into one slice in page order.
func (f *Fetcher[T]) All(ctx context.Context) ([]T, error) {
	var all []T
	for items, err := range f.Pages(ctx) {
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}
	return all, nil
}

// Requests returns the number of pages requested by the latest iteration.
func (f *Fetcher[T]) Requests() int {
	return f.requests
}
