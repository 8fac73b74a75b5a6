package metadata

// Page is one page of a paginated list.
type Page[T any] struct {
	Page         int `json:"page"`
	Results      []T `json:"results"`
	TotalPages   int `json:"total_pages"`
	TotalResults int `json:"total_results"`
}

// Genre is a movie or TV genre.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Movie is a movie as returned by lists and details.
// Details-only fields are zero in list results.
type Movie struct {
	ID               int     `json:"id"`
	Title            string  `json:"title"`
	OriginalTitle    string  `json:"original_title"`
	Overview         string  `json:"overview"`
	ReleaseDate      string  `json:"release_date"`
	PosterPath       string  `json:"poster_path"`
	BackdropPath     string  `json:"backdrop_path"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	Popularity       float64 `json:"popularity"`
	Adult            bool    `json:"adult"`
	GenreIDs         []int   `json:"genre_ids,omitempty"`
	Genres           []Genre `json:"genres,omitempty"`
	Runtime          int     `json:"runtime,omitempty"`
	Tagline          string  `json:"tagline,omitempty"`
	Status           string  `json:"status,omitempty"`
	OriginalLanguage string  `json:"original_language"`
}

// TVShow is a TV series as returned by lists and details.
type TVShow struct {
	ID               int             `json:"id"`
	Name             string          `json:"name"`
	OriginalName     string          `json:"original_name"`
	Overview         string          `json:"overview"`
	FirstAirDate     string          `json:"first_air_date"`
	LastAirDate      string          `json:"last_air_date,omitempty"`
	PosterPath       string          `json:"poster_path"`
	BackdropPath     string          `json:"backdrop_path"`
	VoteAverage      float64         `json:"vote_average"`
	VoteCount        int             `json:"vote_count"`
	Popularity       float64         `json:"popularity"`
	GenreIDs         []int           `json:"genre_ids,omitempty"`
	Genres           []Genre         `json:"genres,omitempty"`
	NumberOfSeasons  int             `json:"number_of_seasons,omitempty"`
	NumberOfEpisodes int             `json:"number_of_episodes,omitempty"`
	Seasons          []SeasonSummary `json:"seasons,omitempty"`
	Status           string          `json:"status,omitempty"`
	OriginalLanguage string          `json:"original_language"`
}

// SeasonSummary is a season as listed in TV details.
type SeasonSummary struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	SeasonNumber int    `json:"season_number"`
	EpisodeCount int    `json:"episode_count"`
	AirDate      string `json:"air_date"`
	PosterPath   string `json:"poster_path"`
}

// Season is a full season with its episodes.
type Season struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Overview     string    `json:"overview"`
	SeasonNumber int       `json:"season_number"`
	AirDate      string    `json:"air_date"`
	PosterPath   string    `json:"poster_path"`
	Episodes     []Episode `json:"episodes"`
}

// Episode is a single TV episode.
type Episode struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	Overview      string  `json:"overview"`
	EpisodeNumber int     `json:"episode_number"`
	SeasonNumber  int     `json:"season_number"`
	AirDate       string  `json:"air_date"`
	Runtime       int     `json:"runtime"`
	StillPath     string  `json:"still_path"`
	VoteAverage   float64 `json:"vote_average"`
}

// CastMember is one credited actor.
type CastMember struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Character   string `json:"character"`
	ProfilePath string `json:"profile_path"`
	Order       int    `json:"order"`
}

// CrewMember is one credited crew member.
type CrewMember struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Job         string `json:"job"`
	Department  string `json:"department"`
	ProfilePath string `json:"profile_path"`
}

// Credits lists cast and crew of a movie or TV show.
type Credits struct {
	ID   int          `json:"id"`
	Cast []CastMember `json:"cast"`
	Crew []CrewMember `json:"crew"`
}

// Directors returns the crew members whose job is Director.
func (c *Credits) Directors() []CrewMember {
	var out []CrewMember
	for _, m := range c.Crew {
		if m.Job == "Director" {
			out = append(out, m)
		}
	}
	return out
}

// Video is a trailer, teaser or clip.
type Video struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	Name     string `json:"name"`
	Site     string `json:"site"`
	Type     string `json:"type"`
	Official bool   `json:"official"`
}

// Videos lists the videos of a movie or TV show.
type Videos struct {
	ID      int     `json:"id"`
	Results []Video `json:"results"`
}

// Trailer returns the first YouTube trailer, preferring official ones.
func (v *Videos) Trailer() (Video, bool) {
	var fallback *Video
	for i := range v.Results {
		video := v.Results[i]
		if video.Site != "YouTube" || video.Type != "Trailer" {
			continue
		}
		if video.Official {
			return video, true
		}
		if fallback == nil {
			fallback = &v.Results[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return Video{}, false
}

// Provider is a streaming, rental or purchase provider.
type Provider struct {
	ProviderID      int    `json:"provider_id"`
	ProviderName    string `json:"provider_name"`
	LogoPath        string `json:"logo_path"`
	DisplayPriority int    `json:"display_priority"`
}

// CountryProviders lists the providers of one country.
type CountryProviders struct {
	Link     string     `json:"link"`
	Flatrate []Provider `json:"flatrate,omitempty"`
	Rent     []Provider `json:"rent,omitempty"`
	Buy      []Provider `json:"buy,omitempty"`
}

// WatchProviders maps ISO 3166-1 country codes to providers.
type WatchProviders struct {
	ID      int                         `json:"id"`
	Results map[string]CountryProviders `json:"results"`
}

// Country returns the providers for a country code such as "FR".
func (w *WatchProviders) Country(code string) (CountryProviders, bool) {
	p, ok := w.Results[code]
	return p, ok
}

// Review is a user review.
type Review struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	URL       string `json:"url"`
}

// Person is a cast or crew member's profile.
type Person struct {
	ID                 int     `json:"id"`
	Name               string  `json:"name"`
	Biography          string  `json:"biography"`
	Birthday           string  `json:"birthday"`
	Deathday           string  `json:"deathday"`
	PlaceOfBirth       string  `json:"place_of_birth"`
	ProfilePath        string  `json:"profile_path"`
	KnownForDepartment string  `json:"known_for_department"`
	Popularity         float64 `json:"popularity"`
}

// MovieRole is a movie in a person's filmography.
type MovieRole struct {
	Movie
	Character string `json:"character,omitempty"`
	Job       string `json:"job,omitempty"`
}

// MovieCredits is a person's filmography.
type MovieCredits struct {
	ID   int         `json:"id"`
	Cast []MovieRole `json:"cast"`
	Crew []MovieRole `json:"crew"`
}
