package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel page fetches
	MaxConcurrency int
	// Timeout per page fetch
	Timeout time.Duration
	// MaxPages is the hard upper bound on pages fetched in one batch
	MaxPages int
}

// DefaultConfig returns the default configuration.
// TMDB-style list endpoints never serve past page 500.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
		MaxPages:       500,
	}
}

// PageFetcher fetches a single page and reports the total page count.
type PageFetcher interface {
	FetchPage(ctx context.Context, page int) (data json.RawMessage, totalPages int, err error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, page int) (json.RawMessage, int, error)

// FetchPage calls f.
func (f PageFetcherFunc) FetchPage(ctx context.Context, page int) (json.RawMessage, int, error) {
	return f(ctx, page)
}

// PageResult represents the result of fetching a single page
type PageResult struct {
	PageNumber int
	Data       json.RawMessage
	Error      error
}

// PageError is the error of one failed page.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// BatchFetcher handles parallel fetching of multiple pages
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(fetcher PageFetcher, config Config) *BatchFetcher {
	defaults := DefaultConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxPages <= 0 {
		config.MaxPages = defaults.MaxPages
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAllPages fetches page 1, then pages 2..min(totalPages, limit) in
// parallel. A non-positive limit means Config.MaxPages.
//
// Returns map of pageNumber -> data for successful pages. If any page after
// the first fails, the partial map is returned with an error joining one
// *PageError per failed page.
func (bf *BatchFetcher) FetchAllPages(ctx context.Context, limit int) (map[int]json.RawMessage, error) {
	start := time.Now()

	firstCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	first, totalPages, err := bf.fetcher.FetchPage(firstCtx, 1)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch first page: %w", err)
	}

	last := totalPages
	if limit <= 0 || limit > bf.config.MaxPages {
		limit = bf.config.MaxPages
	}
	if last > limit {
		last = limit
	}

	if last <= 1 {
		return map[int]json.RawMessage{1: first}, nil
	}

	pages := make([]int, 0, last-1)
	for p := 2; p <= last; p++ {
		pages = append(pages, p)
	}

	rest, err := bf.FetchPages(ctx, pages)
	rest[1] = first

	log.Info().
		Int("pages", len(rest)).
		Int("total", totalPages).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return rest, err
}

// FetchPages fetches the given pages in parallel. The returned map is never
// nil; failed pages are reported in the joined error.
func (bf *BatchFetcher) FetchPages(ctx context.Context, pages []int) (map[int]json.RawMessage, error) {
	p := pool.NewWithResults[PageResult]().
		WithMaxGoroutines(bf.config.MaxConcurrency).
		WithContext(ctx)

	for _, page := range pages {
		page := page
		p.Go(func(ctx context.Context) (PageResult, error) {
			if err := ctx.Err(); err != nil {
				return PageResult{PageNumber: page, Error: err}, nil
			}

			pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
			defer cancel()

			data, _, err := bf.fetcher.FetchPage(pageCtx, page)
			return PageResult{PageNumber: page, Data: data, Error: err}, nil
		})
	}

	// Tasks never return an error, page failures travel in PageResult.
	collected, _ := p.Wait()

	sort.Slice(collected, func(i, j int) bool {
		return collected[i].PageNumber < collected[j].PageNumber
	})

	results := make(map[int]json.RawMessage, len(collected))
	var errs []error
	for _, r := range collected {
		if r.Error != nil {
			log.Warn().Err(r.Error).Int("page", r.PageNumber).Msg("Page fetch failed")
			errs = append(errs, &PageError{Page: r.PageNumber, Err: r.Error})
			continue
		}
		results[r.PageNumber] = r.Data
	}

	if len(errs) > 0 {
		return results, fmt.Errorf("partial data: %d/%d pages: %w", len(results), len(pages), errors.Join(errs...))
	}
	return results, nil
}
