package ports

import (
	"context"
	"io"

	"github.com/sglre6355/voxbot/internal/modules/music_player/domain"
)

// AudioStream is an opened track. Its content is opaque to the player and
// only meaningful to the VoiceSink of the same backend.
type AudioStream = io.Closer

// TrackResolver turns user input into tracks and tracks into audio.
type TrackResolver interface {
	// Resolve searches for tracks using the given query or URL.
	// Failures wrap domain.ErrResolution or domain.ErrTimeout.
	Resolve(ctx context.Context, query *domain.SearchQuery) (*domain.TrackList, error)

	// Open starts the audio stream for a resolved track. ctx bounds only the
	// opening; the returned stream lives until it is closed.
	// Failures wrap domain.ErrStreamOpen or domain.ErrTimeout.
	Open(ctx context.Context, track domain.Track) (AudioStream, error)
}
