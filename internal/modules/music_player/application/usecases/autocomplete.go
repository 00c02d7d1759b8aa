package usecases

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/voxbot/internal/modules/music_player/domain"
)

// GetQueueTracksInput contains the input for the GetQueueTracks use case.
type GetQueueTracksInput struct {
	GuildID snowflake.ID
}

// GetQueueTracksOutput contains the output for the GetQueueTracks use case.
type GetQueueTracksOutput struct {
	Tracks []domain.Track // Pending tracks; index i is queue position i+1
}

// AutocompleteService handles autocomplete-related operations.
type AutocompleteService struct {
	players     PlayerRegistry
	trackLoader *TrackLoaderService
}

// NewAutocompleteService creates a new AutocompleteService.
func NewAutocompleteService(
	players PlayerRegistry,
	trackLoader *TrackLoaderService,
) *AutocompleteService {
	return &AutocompleteService{
		players:     players,
		trackLoader: trackLoader,
	}
}

// GetQueueTracks returns the pending tracks for autocomplete suggestions.
func (s *AutocompleteService) GetQueueTracks(
	ctx context.Context,
	input GetQueueTracksInput,
) *GetQueueTracksOutput {
	p, ok := s.players.Get(input.GuildID)
	if !ok {
		return &GetQueueTracksOutput{}
	}

	status, err := p.Snapshot(ctx)
	if err != nil {
		return &GetQueueTracksOutput{}
	}

	return &GetQueueTracksOutput{Tracks: status.Queue.Pending}
}

// SearchTracks searches for tracks matching the query.
// This is a pass-through to TrackLoaderService.SearchTracks.
func (s *AutocompleteService) SearchTracks(
	ctx context.Context,
	input SearchTracksInput,
) (*SearchTracksOutput, error) {
	if s.trackLoader == nil {
		return &SearchTracksOutput{}, nil
	}
	return s.trackLoader.SearchTracks(ctx, input)
}
