package domain

import (
	"github.com/disgoorg/snowflake/v2"
)

// Event is any value published on the event bus.
// Subscribers are keyed by the concrete type.
type Event any

// TrackEnqueuedEvent is published when tracks are added to the queue.
type TrackEnqueuedEvent struct {
	GuildID  snowflake.ID
	Tracks   []Track
	Position int  // 1-based position of the first track in the pending list
	WasIdle  bool // true if nothing was playing when the tracks were added
}

// PlaybackStartedEvent is published when a track's stream has been handed to the voice sink.
type PlaybackStartedEvent struct {
	GuildID               snowflake.ID
	Track                 Track
	NotificationChannelID snowflake.ID
}

// PlaybackFinishedEvent is published when the current track stops being current,
// whether it completed, failed, was skipped or the player stopped.
// This signals that the "Now Playing" message should be deleted.
type PlaybackFinishedEvent struct {
	GuildID               snowflake.ID
	Track                 Track
	NotificationChannelID snowflake.ID
}

// TrackFailedEvent is published when a track could not be opened or streamed.
// The track has already been dropped from the queue.
type TrackFailedEvent struct {
	GuildID               snowflake.ID
	Track                 Track
	NotificationChannelID snowflake.ID
	Err                   error
}

// QueueExhaustedEvent is published when the player goes idle because nothing is pending.
type QueueExhaustedEvent struct {
	GuildID               snowflake.ID
	NotificationChannelID snowflake.ID
}
