package metadata

import (
	"context"
	"fmt"
)

// PeopleService fetches cast and crew profiles.
type PeopleService struct {
	c *Client
}

// Details returns a person's profile.
func (s *PeopleService) Details(ctx context.Context, id int) (*Person, error) {
	if err := checkID("person", id); err != nil {
		return nil, err
	}
	return get[Person](ctx, s.c, fmt.Sprintf("/tmdb/person/%d", id), s.c.localized(nil))
}

// MovieCredits returns a person's filmography.
func (s *PeopleService) MovieCredits(ctx context.Context, id int) (*MovieCredits, error) {
	if err := checkID("person", id); err != nil {
		return nil, err
	}
	return get[MovieCredits](ctx, s.c, fmt.Sprintf("/tmdb/person/%d/movie_credits", id), s.c.localized(nil))
}
