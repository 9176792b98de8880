// Package models contains TMDB (The Movie Database) data structures
package models

// TMDBSearchResult represents a search result from TMDB
type TMDBSearchResult struct {
	Page         int         `json:"page"`
	TotalResults int         `json:"total_results"`
	TotalPages   int         `json:"total_pages"`
	Results      []TMDBMedia `json:"results"`
}

// TMDBMedia represents a movie or TV show in search results
type TMDBMedia struct {
	ID           int     `json:"id"`
	MediaType    string  `json:"media_type"` // "movie", "tv" or "person"
	Title        string  `json:"title"`      // For movies
	Name         string  `json:"name"`       // For TV shows
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	Popularity   float64 `json:"popularity"`
}

// GetDisplayTitle returns the appropriate title for the media
func (m *TMDBMedia) GetDisplayTitle() string {
	if m.Title != "" {
		return m.Title
	}
	return m.Name
}

// GetReleaseYear returns the release year
func (m *TMDBMedia) GetReleaseYear() string {
	date := m.ReleaseDate
	if date == "" {
		date = m.FirstAirDate
	}
	if len(date) >= 4 {
		return date[:4]
	}
	return ""
}

// TMDBExternalIDs holds the cross references TMDB keeps for a title
type TMDBExternalIDs struct {
	IMDBID string `json:"imdb_id"`
}
