package metadata

import (
	"context"
	"fmt"

	"github.com/sall0568/cinescope-client/pkg/cache"
)

// MoviesService fetches movie data.
type MoviesService struct {
	c *Client
}

// Search searches movies by title.
func (s *MoviesService) Search(ctx context.Context, query string, page int) (*Page[Movie], error) {
	query, err := checkQuery(query)
	if err != nil {
		return nil, err
	}
	return get[Page[Movie]](ctx, s.c, "/tmdb/search/movie",
		s.c.localized(cache.Params{"query": query, "page": pageOrFirst(page)}))
}

// NowPlaying lists movies currently in theatres.
func (s *MoviesService) NowPlaying(ctx context.Context, page int) (*Page[Movie], error) {
	return get[Page[Movie]](ctx, s.c, "/tmdb/movie/now_playing",
		s.c.localized(cache.Params{"page": pageOrFirst(page)}))
}

// NowPlayingAll fetches up to maxPages pages of now playing movies.
func (s *MoviesService) NowPlayingAll(ctx context.Context, maxPages int) ([]Movie, error) {
	return allPages[Movie](ctx, s.c, "/tmdb/movie/now_playing", s.c.localized(nil), maxPages)
}

// Details returns a movie.
func (s *MoviesService) Details(ctx context.Context, id int) (*Movie, error) {
	if err := checkID("movie", id); err != nil {
		return nil, err
	}
	return get[Movie](ctx, s.c, fmt.Sprintf("/tmdb/movie/%d", id), s.c.localized(nil))
}

// Credits returns a movie's cast and crew.
func (s *MoviesService) Credits(ctx context.Context, id int) (*Credits, error) {
	if err := checkID("movie", id); err != nil {
		return nil, err
	}
	return get[Credits](ctx, s.c, fmt.Sprintf("/tmdb/movie/%d/credits", id), s.c.localized(nil))
}

// Videos returns a movie's trailers and clips.
func (s *MoviesService) Videos(ctx context.Context, id int) (*Videos, error) {
	if err := checkID("movie", id); err != nil {
		return nil, err
	}
	return get[Videos](ctx, s.c, fmt.Sprintf("/tmdb/movie/%d/videos", id), s.c.localized(nil))
}

// Similar lists movies similar to id.
func (s *MoviesService) Similar(ctx context.Context, id int) (*Page[Movie], error) {
	if err := checkID("movie", id); err != nil {
		return nil, err
	}
	return get[Page[Movie]](ctx, s.c, fmt.Sprintf("/tmdb/movie/%d/similar", id), s.c.localized(nil))
}

// WatchProviders lists where a movie can be watched. Not localized.
func (s *MoviesService) WatchProviders(ctx context.Context, id int) (*WatchProviders, error) {
	if err := checkID("movie", id); err != nil {
		return nil, err
	}
	return get[WatchProviders](ctx, s.c, fmt.Sprintf("/tmdb/movie/%d/watch/providers", id), nil)
}

// Reviews lists user reviews of a movie.
func (s *MoviesService) Reviews(ctx context.Context, id int) (*Page[Review], error) {
	if err := checkID("movie", id); err != nil {
		return nil, err
	}
	return get[Page[Review]](ctx, s.c, fmt.Sprintf("/tmdb/movie/%d/reviews", id), s.c.localized(nil))
}
