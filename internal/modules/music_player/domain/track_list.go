package domain

// TrackListType represents the type of track list.
type TrackListType int

const (
	TrackListTypeTrack TrackListType = iota
	TrackListTypePlaylist
	TrackListTypeSearch
)

// TrackList is the ordered result of a single resolution call.
// Playlist tracks keep the order the playlist author gave them.
type TrackList struct {
	Type   TrackListType
	Name   string // Playlist name, empty otherwise
	URL    string
	Tracks []Track
}

// IsPlaylist reports whether the list came from a playlist.
func (l TrackList) IsPlaylist() bool {
	return l.Type == TrackListTypePlaylist
}

// Selection returns the tracks that should be enqueued for this list:
// the whole playlist, or only the best match of a search.
func (l TrackList) Selection() []Track {
	if len(l.Tracks) == 0 {
		return nil
	}
	if l.Type == TrackListTypeSearch {
		return l.Tracks[:1]
	}
	return l.Tracks
}
