package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/voxbot/internal/modules/music_player/domain"
)

// PauseInput contains the input for the Pause use case.
type PauseInput struct {
	GuildID snowflake.ID
}

// ResumeInput contains the input for the Resume use case.
type ResumeInput struct {
	GuildID snowflake.ID
}

// SkipInput contains the input for the Skip use case.
type SkipInput struct {
	GuildID snowflake.ID
	Count   int // Tracks to skip including the current one (values below 1 mean 1)
}

// SkipOutput contains the result of the Skip use case.
type SkipOutput struct {
	SkippedTrack  domain.Track
	DroppedTracks int
	NextTrack     *domain.Track // nil if the queue ran out or the next track is still loading
}

// StopInput contains the input for the Stop use case.
type StopInput struct {
	GuildID    snowflake.ID
	ClearQueue bool
}

// StopOutput contains the result of the Stop use case.
type StopOutput struct {
	Stopped bool // false if nothing was playing
}

// SetModeInput contains the input for the SetMode use case.
type SetModeInput struct {
	GuildID snowflake.ID
	Mode    string // "normal", "loop", "shuffle"
}

// SetModeOutput contains the result of the SetMode use case.
type SetModeOutput struct {
	Mode domain.QueueMode
}

// NowPlayingInput contains the input for the NowPlaying use case.
type NowPlayingInput struct {
	GuildID snowflake.ID
}

// NowPlayingOutput contains the result of the NowPlaying use case.
type NowPlayingOutput struct {
	Track        domain.Track
	State        domain.PlaybackState
	Mode         domain.QueueMode
	PendingCount int
}

// PlaybackService handles playback operations.
type PlaybackService struct {
	players PlayerRegistry
}

// NewPlaybackService creates a new PlaybackService.
func NewPlaybackService(players PlayerRegistry) *PlaybackService {
	return &PlaybackService{players: players}
}

// Pause pauses the current playback.
func (s *PlaybackService) Pause(ctx context.Context, input PauseInput) error {
	p, err := connectedPlayer(s.players, input.GuildID)
	if err != nil {
		return err
	}

	applied, err := p.Pause(ctx)
	if errors.Is(err, domain.ErrTrackChanging) {
		return ErrTrackChanging
	}
	if errors.Is(err, domain.ErrInvalidStateTransition) {
		return ErrAlreadyPaused
	}
	if err != nil {
		return err
	}
	if !applied {
		return ErrNotPlaying
	}
	return nil
}

// Resume resumes the paused playback.
func (s *PlaybackService) Resume(ctx context.Context, input ResumeInput) error {
	p, err := connectedPlayer(s.players, input.GuildID)
	if err != nil {
		return err
	}

	applied, err := p.Resume(ctx)
	if errors.Is(err, domain.ErrTrackChanging) {
		return ErrTrackChanging
	}
	if errors.Is(err, domain.ErrInvalidStateTransition) {
		return ErrNotPaused
	}
	if err != nil {
		return err
	}
	if !applied {
		return ErrNotPlaying
	}
	return nil
}

// Skip skips the current track, plus Count-1 pending tracks, and plays the
// next one. In loop mode the skipped track goes back to the end of the queue.
func (s *PlaybackService) Skip(ctx context.Context, input SkipInput) (*SkipOutput, error) {
	p, err := connectedPlayer(s.players, input.GuildID)
	if err != nil {
		return nil, err
	}

	result, err := p.Skip(ctx, input.Count)
	if errors.Is(err, domain.ErrNothingPlaying) {
		return nil, ErrNotPlaying
	}
	if err != nil {
		return nil, err
	}

	return &SkipOutput{
		SkippedTrack:  result.Skipped,
		DroppedTracks: result.Dropped,
		NextTrack:     result.NowPlaying,
	}, nil
}

// Stop stops playback, optionally clearing the queue. Stopping while nothing
// plays succeeds.
func (s *PlaybackService) Stop(ctx context.Context, input StopInput) (*StopOutput, error) {
	p, err := connectedPlayer(s.players, input.GuildID)
	if err != nil {
		return nil, err
	}

	stopped, err := p.Stop(ctx, input.ClearQueue)
	if err != nil {
		return nil, err
	}
	return &StopOutput{Stopped: stopped}, nil
}

// SetMode sets the queue mode for the guild's player.
func (s *PlaybackService) SetMode(ctx context.Context, input SetModeInput) (*SetModeOutput, error) {
	mode, err := domain.ParseQueueMode(input.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMode, err)
	}

	p, err := connectedPlayer(s.players, input.GuildID)
	if err != nil {
		return nil, err
	}

	if err := p.SetMode(ctx, mode); err != nil {
		return nil, err
	}
	return &SetModeOutput{Mode: mode}, nil
}

// NowPlaying returns the current track with the player's state.
func (s *PlaybackService) NowPlaying(
	ctx context.Context,
	input NowPlayingInput,
) (*NowPlayingOutput, error) {
	p, err := connectedPlayer(s.players, input.GuildID)
	if err != nil {
		return nil, err
	}

	status, err := p.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if status.Queue.Current == nil {
		return nil, ErrNotPlaying
	}

	return &NowPlayingOutput{
		Track:        *status.Queue.Current,
		State:        status.State,
		Mode:         status.Queue.Mode,
		PendingCount: len(status.Queue.Pending),
	}, nil
}
