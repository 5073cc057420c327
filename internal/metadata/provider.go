package metadata

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/brightloom/reelvault/internal/models"
)

// Provider is the P1 external collaborator the MetadataEnrich worker calls
// through the budget governor's rate limiter.
type Provider interface {
	Name() string
	Search(mediaType models.LibraryKind, query string, year *int) ([]Candidate, error)
}

// TMDBProvider queries TMDB's search endpoints, grounded in the teacher's
// scraper_tmdb.go HTTP client shape (10s timeout, query-string builder,
// year fallback retry) but rewritten to produce ranker Candidates.
type TMDBProvider struct {
	apiKey string
	client *http.Client
}

func NewTMDBProvider(apiKey string) *TMDBProvider {
	return &TMDBProvider{apiKey: apiKey, client: &http.Client{Timeout: 10 * time.Second}}
}

func (p *TMDBProvider) Name() string { return "tmdb" }

type tmdbSearchResponse struct {
	Results []tmdbResult `json:"results"`
}

type tmdbResult struct {
	ID            int     `json:"id"`
	Title         string  `json:"title"`
	Name          string  `json:"name"`
	OriginalTitle string  `json:"original_title"`
	OriginalName  string  `json:"original_name"`
	Overview      string  `json:"overview"`
	PosterPath    string  `json:"poster_path"`
	BackdropPath  string  `json:"backdrop_path"`
	ReleaseDate   string  `json:"release_date"`
	FirstAirDate  string  `json:"first_air_date"`
	VoteAverage   float64 `json:"vote_average"`
	VoteCount     int     `json:"vote_count"`
	Popularity    float64 `json:"popularity"`
}

func (p *TMDBProvider) Search(mediaType models.LibraryKind, query string, year *int) ([]Candidate, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("tmdb: api key not configured")
	}
	candidates, err := p.search(mediaType, query, year)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 && year != nil {
		return p.search(mediaType, query, nil)
	}
	return candidates, nil
}

func (p *TMDBProvider) search(mediaType models.LibraryKind, query string, year *int) ([]Candidate, error) {
	searchType := "movie"
	if mediaType == models.LibrarySeries {
		searchType = "tv"
	}

	values := url.Values{}
	values.Set("api_key", p.apiKey)
	values.Set("query", query)
	if year != nil {
		if searchType == "tv" {
			values.Set("first_air_date_year", strconv.Itoa(*year))
		} else {
			values.Set("year", strconv.Itoa(*year))
		}
	}

	reqURL := fmt.Sprintf("https://api.themoviedb.org/3/search/%s?%s", searchType, values.Encode())
	resp, err := p.client.Get(reqURL)
	if err != nil {
		return nil, fmt.Errorf("tmdb search: %w", err)
	}
	defer resp.Body.Close()

	var decoded tmdbSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("tmdb decode: %w", err)
	}

	out := make([]Candidate, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		out = append(out, toCandidate(r))
	}
	return out, nil
}

func toCandidate(r tmdbResult) Candidate {
	title := r.Title
	if title == "" {
		title = r.Name
	}
	origTitle := r.OriginalTitle
	if origTitle == "" {
		origTitle = r.OriginalName
	}
	dateStr := r.ReleaseDate
	if dateStr == "" {
		dateStr = r.FirstAirDate
	}
	var year *int
	if len(dateStr) >= 4 {
		if y, err := strconv.Atoi(dateStr[:4]); err == nil {
			year = &y
		}
	}
	return Candidate{
		ID:            strconv.Itoa(r.ID),
		Title:         title,
		OriginalTitle: origTitle,
		Year:          year,
		PosterPath:    r.PosterPath,
		BackdropPath:  r.BackdropPath,
		VoteAverage:   r.VoteAverage,
		VoteCount:     r.VoteCount,
		Popularity:    r.Popularity,
	}
}

// ToExternalMetadata builds the catalog-facing ExternalMetadata record from
// a winning candidate.
func ToExternalMetadata(provider string, c Candidate) models.ExternalMetadata {
	return models.ExternalMetadata{
		Provider:      provider,
		CandidateID:   c.ID,
		Title:         c.Title,
		OriginalTitle: c.OriginalTitle,
		PosterPath:    c.PosterPath,
		BackdropPath:  c.BackdropPath,
		Year:          c.Year,
		VoteAverage:   c.VoteAverage,
		VoteCount:     c.VoteCount,
		Popularity:    c.Popularity,
	}
}
