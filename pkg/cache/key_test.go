package cache

import (
	"net/url"
	"testing"
)

func TestSignature(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		params   Params
		want     string
	}{
		{
			name:     "no params",
			endpoint: "/tmdb/movie/550",
			want:     "/tmdb/movie/550?",
		},
		{
			name:     "empty params",
			endpoint: "/tmdb/tv/popular",
			params:   Params{},
			want:     "/tmdb/tv/popular?",
		},
		{
			name:     "single param",
			endpoint: "/tmdb/movie/550",
			params:   Params{"language": "fr-FR"},
			want:     "/tmdb/movie/550?language=fr-FR",
		},
		{
			name:     "multiple params sorted",
			endpoint: "/tmdb/search/movie",
			params:   Params{"query": "dune", "page": 2, "language": "fr-FR"},
			want:     "/tmdb/search/movie?language=fr-FR&page=2&query=dune",
		},
		{
			name:     "boolean value",
			endpoint: "/tmdb/search/movie",
			params:   Params{"include_adult": false, "query": "a"},
			want:     "/tmdb/search/movie?include_adult=false&query=a",
		},
		{
			name:     "float value",
			endpoint: "/tmdb/discover/movie",
			params:   Params{"vote_average.gte": 7.5},
			want:     "/tmdb/discover/movie?vote_average.gte=7.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Signature(tt.endpoint, tt.params); got != tt.want {
				t.Errorf("Signature() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSignature_OrderIndependent(t *testing.T) {
	a := Signature("movie/search", Params{"query": "a", "page": 1})
	b := Signature("movie/search", Params{"page": 1, "query": "a"})

	if a != b {
		t.Errorf("signatures differ: %q vs %q", a, b)
	}
}

func TestSignature_VerbatimStringification(t *testing.T) {
	// Numeric and string forms collide; normalizing them is the caller's job.
	numeric := Signature("movie/search", Params{"page": 1})
	text := Signature("movie/search", Params{"page": "1"})

	if numeric != text {
		t.Errorf("expected verbatim stringification to collide, got %q and %q", numeric, text)
	}
}

// TestSignature_Determinism ensures same input always produces same key
func TestSignature_Determinism(t *testing.T) {
	params := Params{"z": "last", "a": "first", "m": 13, "b": true}

	first := Signature("/tmdb/tv/1399", params)
	for i := 0; i < 50; i++ {
		if got := Signature("/tmdb/tv/1399", params); got != first {
			t.Fatalf("iteration %d: %q, want %q (not deterministic)", i, got, first)
		}
	}
}

func TestKey_String(t *testing.T) {
	key := Key{Endpoint: "/tmdb/tv/1399/season/1", Params: Params{"language": "fr-FR"}}

	if got, want := key.String(), "/tmdb/tv/1399/season/1?language=fr-FR"; got != want {
		t.Errorf("Key.String() = %q, want %q", got, want)
	}
}

func TestParams_Values(t *testing.T) {
	got := Params{"query": "alien", "page": 3, "adult": true}.Values()

	want := url.Values{"query": {"alien"}, "page": {"3"}, "adult": {"true"}}
	if got.Encode() != want.Encode() {
		t.Errorf("Values() = %q, want %q", got.Encode(), want.Encode())
	}
}

func TestParams_With(t *testing.T) {
	base := Params{"language": "fr-FR", "page": 1}
	merged := base.With(Params{"page": 2, "query": "x"})

	if merged["page"] != 2 || merged["query"] != "x" || merged["language"] != "fr-FR" {
		t.Errorf("With() = %v", merged)
	}
	if base["page"] != 1 {
		t.Error("With() must not mutate the receiver")
	}
}
