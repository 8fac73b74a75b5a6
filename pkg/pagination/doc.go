// Package pagination provides bounded parallel fetching of paginated catalog
// lists (now playing, popular, search results).
//
// List endpoints report total_pages in every page body. The batch fetcher
// fetches the first page to learn the page count, then fetches the remaining
// pages with a bounded worker pool. When the pages go through a Dispatcher
// with a Throttle, the burst reaches the upstream as a steady trickle.
//
// Example usage:
//
//	fetcher := pagination.NewBatchFetcher(pagination.PageFetcherFunc(fetchPage), pagination.DefaultConfig())
//	pages, err := fetcher.FetchAllPages(ctx, 5)
//
// The batch fetcher:
//   - Fetches the first page to determine total pages
//   - Caps the page count at the caller's limit and at Config.MaxPages
//   - Runs the remaining pages on a sourcegraph/conc pool
//   - Returns partial results together with a joined error of failed pages
package pagination
