// Package metadata is the typed catalog client: movies, TV shows and people,
// fetched through the request dispatcher and decoded into Go structs.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sall0568/cinescope-client/pkg/cache"
	"github.com/sall0568/cinescope-client/pkg/client"
	"github.com/sall0568/cinescope-client/pkg/pagination"
)

// DefaultLanguage is sent with every localized request.
const DefaultLanguage = "fr-FR"

var (
	// ErrDecode is returned when an upstream body does not match the expected shape.
	ErrDecode = errors.New("decode response")

	// ErrInvalidArgument is returned before any request for unusable input.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Requester issues dispatched requests. *client.Dispatcher implements it.
type Requester interface {
	Request(ctx context.Context, endpoint string, params cache.Params, opts ...client.RequestOption) (json.RawMessage, error)
}

// Options configures the client.
type Options struct {
	// Language of localized fields. Empty means DefaultLanguage.
	Language string

	// Pagination configures multi-page list fetches.
	Pagination pagination.Config
}

// Client groups the catalog services.
type Client struct {
	requester  Requester
	language   string
	pagination pagination.Config

	Movies *MoviesService
	TV     *TVService
	People *PeopleService
}

// New creates a catalog client on top of r.
func New(r Requester, opts Options) *Client {
	if opts.Language == "" {
		opts.Language = DefaultLanguage
	}

	c := &Client{
		requester:  r,
		language:   opts.Language,
		pagination: opts.Pagination,
	}
	c.Movies = &MoviesService{c: c}
	c.TV = &TVService{c: c}
	c.People = &PeopleService{c: c}
	return c
}

// Language returns the language sent with localized requests.
func (c *Client) Language() string {
	return c.language
}

// localized returns params with the client language added.
func (c *Client) localized(params cache.Params) cache.Params {
	return params.With(cache.Params{"language": c.language})
}

// get fetches endpoint and decodes it into T.
func get[T any](ctx context.Context, c *Client, endpoint string, params cache.Params) (*T, error) {
	body, err := c.requester.Request(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, endpoint, err)
	}
	return &out, nil
}

// allPages fetches up to maxPages pages of a list endpoint and concatenates
// the results in page order. Partial failures return what was fetched
// together with the error.
func allPages[T any](ctx context.Context, c *Client, endpoint string, params cache.Params, maxPages int) ([]T, error) {
	fetcher := pagination.PageFetcherFunc(func(ctx context.Context, page int) (json.RawMessage, int, error) {
		body, err := c.requester.Request(ctx, endpoint, params.With(cache.Params{"page": page}))
		if err != nil {
			return nil, 0, err
		}
		var meta struct {
			TotalPages int `json:"total_pages"`
		}
		if err := json.Unmarshal(body, &meta); err != nil {
			return nil, 0, fmt.Errorf("%w: %s: %v", ErrDecode, endpoint, err)
		}
		return body, meta.TotalPages, nil
	})

	pages, fetchErr := pagination.NewBatchFetcher(fetcher, c.pagination).FetchAllPages(ctx, maxPages)
	if pages == nil {
		return nil, fetchErr
	}

	numbers := make([]int, 0, len(pages))
	for n := range pages {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	var out []T
	for _, n := range numbers {
		var page Page[T]
		if err := json.Unmarshal(pages[n], &page); err != nil {
			return out, fmt.Errorf("%w: %s page %d: %v", ErrDecode, endpoint, n, err)
		}
		out = append(out, page.Results...)
	}
	return out, fetchErr
}

func checkID(kind string, id int) error {
	if id <= 0 {
		return fmt.Errorf("%w: %s id must be positive (got %d)", ErrInvalidArgument, kind, id)
	}
	return nil
}

func checkQuery(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("%w: empty search query", ErrInvalidArgument)
	}
	return query, nil
}

func pageOrFirst(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
