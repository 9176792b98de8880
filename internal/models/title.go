package models

// TitleCandidate is a ranked record from the title-resolution service
type TitleCandidate struct {
	Title  string `json:"title"`
	IMDBID string `json:"imdb_id"`
	Year   string `json:"year,omitempty"`
	URL    string `json:"url"`
	Type   string `json:"type"` // "movie" or "tv"
}

// Suggestion is an autocomplete match
type Suggestion struct {
	Title  string `json:"title"`
	Year   string `json:"year"`
	Type   string `json:"type"`
	TMDBID int    `json:"tmdb_id"`
}
