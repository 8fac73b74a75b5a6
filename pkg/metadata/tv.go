package metadata

import (
	"context"
	"fmt"

	"github.com/sall0568/cinescope-client/pkg/cache"
)

// TVService fetches TV series data.
type TVService struct {
	c *Client
}

// Search searches TV series by name.
func (s *TVService) Search(ctx context.Context, query string, page int) (*Page[TVShow], error) {
	query, err := checkQuery(query)
	if err != nil {
		return nil, err
	}
	return get[Page[TVShow]](ctx, s.c, "/tmdb/search/tv",
		s.c.localized(cache.Params{"query": query, "page": pageOrFirst(page)}))
}

// Popular lists popular TV series.
func (s *TVService) Popular(ctx context.Context, page int) (*Page[TVShow], error) {
	return get[Page[TVShow]](ctx, s.c, "/tmdb/tv/popular",
		s.c.localized(cache.Params{"page": pageOrFirst(page)}))
}

// PopularAll fetches up to maxPages pages of popular TV series.
func (s *TVService) PopularAll(ctx context.Context, maxPages int) ([]TVShow, error) {
	return allPages[TVShow](ctx, s.c, "/tmdb/tv/popular", s.c.localized(nil), maxPages)
}

// Details returns a TV series.
func (s *TVService) Details(ctx context.Context, id int) (*TVShow, error) {
	if err := checkID("tv", id); err != nil {
		return nil, err
	}
	return get[TVShow](ctx, s.c, fmt.Sprintf("/tmdb/tv/%d", id), s.c.localized(nil))
}

// Credits returns a series' cast and crew.
func (s *TVService) Credits(ctx context.Context, id int) (*Credits, error) {
	if err := checkID("tv", id); err != nil {
		return nil, err
	}
	return get[Credits](ctx, s.c, fmt.Sprintf("/tmdb/tv/%d/credits", id), s.c.localized(nil))
}

// Videos returns a series' trailers and clips.
func (s *TVService) Videos(ctx context.Context, id int) (*Videos, error) {
	if err := checkID("tv", id); err != nil {
		return nil, err
	}
	return get[Videos](ctx, s.c, fmt.Sprintf("/tmdb/tv/%d/videos", id), s.c.localized(nil))
}

// Similar lists series similar to id.
func (s *TVService) Similar(ctx context.Context, id int) (*Page[TVShow], error) {
	if err := checkID("tv", id); err != nil {
		return nil, err
	}
	return get[Page[TVShow]](ctx, s.c, fmt.Sprintf("/tmdb/tv/%d/similar", id), s.c.localized(nil))
}

// WatchProviders lists where a series can be watched. Not localized.
func (s *TVService) WatchProviders(ctx context.Context, id int) (*WatchProviders, error) {
	if err := checkID("tv", id); err != nil {
		return nil, err
	}
	return get[WatchProviders](ctx, s.c, fmt.Sprintf("/tmdb/tv/%d/watch/providers", id), nil)
}

// Season returns one season of a series with its episodes.
// Season 0 holds specials and is valid.
func (s *TVService) Season(ctx context.Context, tvID, seasonNumber int) (*Season, error) {
	if err := checkID("tv", tvID); err != nil {
		return nil, err
	}
	if seasonNumber < 0 {
		return nil, fmt.Errorf("%w: season number must be >= 0 (got %d)", ErrInvalidArgument, seasonNumber)
	}
	return get[Season](ctx, s.c, fmt.Sprintf("/tmdb/tv/%d/season/%d", tvID, seasonNumber), s.c.localized(nil))
}
