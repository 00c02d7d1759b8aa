package domain

import (
	"strconv"
	"strings"
)

// SearchSource represents the source for searching tracks.
type SearchSource string

const (
	// SourceYouTube searches YouTube.
	SourceYouTube SearchSource = "ytsearch"
	// SourceYouTubeMusic searches YouTube Music.
	SourceYouTubeMusic SearchSource = "ytmsearch"
	// SourceSoundCloud searches SoundCloud.
	SourceSoundCloud SearchSource = "scsearch"
	// SourceDirect indicates a direct URL (no search prefix).
	SourceDirect SearchSource = ""
)

// DefaultSearchLimit is the number of candidates a text search asks for.
const DefaultSearchLimit = 5

// SearchQuery represents a query for searching tracks.
type SearchQuery struct {
	Query  string       // The search term or URL
	Source SearchSource // The search source
	IsURL  bool         // Whether the query is a direct URL
	Limit  int          // Number of search results, ignored for URLs
}

// NewSearchQuery creates a SearchQuery from user input.
// If the input is a URL, it returns a direct query.
// Otherwise, it uses YouTube search as the default.
func NewSearchQuery(input string) *SearchQuery {
	return NewSearchQueryWithSource(input, SourceYouTube)
}

// NewSearchQueryWithSource creates a SearchQuery with a specific source.
func NewSearchQueryWithSource(input string, source SearchSource) *SearchQuery {
	input = strings.TrimSpace(input)

	if isURL(input) {
		return &SearchQuery{
			Query:  input,
			Source: SourceDirect,
			IsURL:  true,
		}
	}

	return &SearchQuery{
		Query:  input,
		Source: source,
		IsURL:  false,
		Limit:  DefaultSearchLimit,
	}
}

// WithLimit returns a copy of the query asking for n search results.
func (q SearchQuery) WithLimit(n int) *SearchQuery {
	if n > 0 {
		q.Limit = n
	}
	return &q
}

// LavalinkQuery returns the query string formatted for Lavalink.
func (q *SearchQuery) LavalinkQuery() string {
	if q.IsURL {
		return q.Query
	}
	return string(q.Source) + ":" + q.Query
}

// YtdlpQuery returns the query string formatted for yt-dlp, e.g. "ytsearch5:foo".
// yt-dlp has no YouTube Music search key, so it falls back to YouTube.
func (q *SearchQuery) YtdlpQuery() string {
	if q.IsURL {
		return q.Query
	}

	source := q.Source
	if source == SourceYouTubeMusic || source == SourceDirect {
		source = SourceYouTube
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	return string(source) + strconv.Itoa(limit) + ":" + q.Query
}

// IsValid returns true if the query is not empty.
func (q *SearchQuery) IsValid() bool {
	return q.Query != ""
}

// isURL checks if the input looks like a URL.
func isURL(input string) bool {
	return strings.HasPrefix(input, "http://") ||
		strings.HasPrefix(input, "https://") ||
		strings.HasPrefix(input, "www.")
}
