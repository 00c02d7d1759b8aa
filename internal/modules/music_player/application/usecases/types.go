package usecases

import (
	"github.com/sglre6355/voxbot/internal/modules/music_player/domain"
)

// Re-export domain types for presentation layer use.
// This allows presentation to depend only on usecases without importing domain directly.

// Track is an alias for domain.Track.
type Track = domain.Track

// TrackID is an alias for domain.TrackID.
type TrackID = domain.TrackID

// QueueMode is an alias for domain.QueueMode.
type QueueMode = domain.QueueMode

// PlaybackState is an alias for domain.PlaybackState.
type PlaybackState = domain.PlaybackState

// Queue modes, re-exported for command choices.
const (
	QueueModeNormal  = domain.QueueModeNormal
	QueueModeLoop    = domain.QueueModeLoop
	QueueModeShuffle = domain.QueueModeShuffle
)
