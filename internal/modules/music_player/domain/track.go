package domain

import (
	"strconv"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
)

// TrackID uniquely identifies one queued occurrence of a track.
type TrackID string

// NewTrackID returns a fresh random TrackID.
func NewTrackID() TrackID {
	return TrackID(uuid.NewString())
}

// Track is an immutable description of a playable audio track.
// Opening the audio is the resolver's job; Locator is the handle it needs.
type Track struct {
	ID            TrackID
	Locator       string // Backend handle: Lavalink encoded track or media page URL
	Title         string
	Artist        string
	Duration      time.Duration // Zero when unknown
	URI           string
	ArtworkURL    string
	SourceName    string // e.g., "youtube", "soundcloud"
	IsStream      bool
	RequesterID   snowflake.ID // Discord user who added the track
	RequesterName string       // Display name of the requester
	EnqueuedAt    time.Time
}

// Source returns the parsed TrackSource for this track.
func (t Track) Source() TrackSource {
	return ParseTrackSource(t.SourceName)
}

// IsValid returns true if the track has the minimum required fields.
func (t Track) IsValid() bool {
	return t.Locator != "" && t.Title != ""
}

// Requested returns a copy of the track stamped with a new ID and its requester.
func (t Track) Requested(requesterID snowflake.ID, requesterName string, at time.Time) Track {
	t.ID = NewTrackID()
	t.RequesterID = requesterID
	t.RequesterName = requesterName
	t.EnqueuedAt = at.UTC()
	return t
}

// FormattedDuration returns the duration as a human-readable string (mm:ss or hh:mm:ss).
func (t Track) FormattedDuration() string {
	if t.IsStream {
		return "LIVE"
	}
	if t.Duration <= 0 {
		return "--:--"
	}

	totalSeconds := int(t.Duration.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return pad(hours) + ":" + pad(minutes) + ":" + pad(seconds)
	}
	return pad(minutes) + ":" + pad(seconds)
}

func pad(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
