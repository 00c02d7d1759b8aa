package domain

import "github.com/disgoorg/snowflake/v2"

// NowPlayingMessage stores where a "Now Playing" message was posted.
// Both values are needed for deletion since the message may be in a different channel
// than the current notification channel if the user switched channels while playing.
type NowPlayingMessage struct {
	ChannelID snowflake.ID
	MessageID snowflake.ID
	TrackID   TrackID
}
