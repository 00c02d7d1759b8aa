package domain

// PlaybackState is the lifecycle state of a guild's player.
type PlaybackState int

const (
	// PlaybackIdle means there is no current track.
	PlaybackIdle PlaybackState = iota
	// PlaybackStreaming means the current track is being opened or played.
	PlaybackStreaming
	// PlaybackPaused means the current track is held by the voice sink.
	PlaybackPaused
	// PlaybackStopping means a skip is waiting for the in-flight stream task
	// to acknowledge cancellation.
	PlaybackStopping
)

// String returns a human-readable representation of the state.
func (s PlaybackState) String() string {
	switch s {
	case PlaybackIdle:
		return "idle"
	case PlaybackStreaming:
		return "streaming"
	case PlaybackPaused:
		return "paused"
	case PlaybackStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// IsActive reports whether the player has playback work in progress.
func (s PlaybackState) IsActive() bool {
	return s != PlaybackIdle
}
