package ports

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// NowPlayingInfo contains information for the "Now Playing" notification.
type NowPlayingInfo struct {
	Title              string
	Artist             string
	Duration           string
	URI                string
	ArtworkURL         string
	SourceName         string // e.g., "youtube", "soundcloud"
	IsStream           bool
	QueueMode          string
	PendingCount       int
	RequesterID        snowflake.ID
	RequesterName      string
	RequesterAvatarURL string
	EnqueuedAt         time.Time
}

// TrackFailedInfo contains information for the failed-track notification.
type TrackFailedInfo struct {
	Title  string
	URI    string
	Reason string
}
