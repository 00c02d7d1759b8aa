package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/voxbot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/voxbot/internal/modules/music_player/domain"
)

// DefaultResolveTimeout bounds a single resolution call.
const DefaultResolveTimeout = 15 * time.Second

// LoadTracksInput contains the input for the LoadTracks use case.
type LoadTracksInput struct {
	GuildID       snowflake.ID
	Query         string
	RequesterID   snowflake.ID
	RequesterName string // Optional: looked up when empty
}

// LoadTracksOutput contains the result of the LoadTracks use case.
type LoadTracksOutput struct {
	Tracks       []domain.Track
	IsPlaylist   bool
	PlaylistName string
}

// TrackLoaderService handles track loading operations.
type TrackLoaderService struct {
	trackResolver  ports.TrackResolver
	userInfo       ports.UserInfoProvider
	resolveTimeout time.Duration
	searchLimit    int
	now            func() time.Time
}

// TrackLoaderOption configures a TrackLoaderService.
type TrackLoaderOption func(*TrackLoaderService)

// WithUserInfo sets the provider used to fill in requester names.
func WithUserInfo(userInfo ports.UserInfoProvider) TrackLoaderOption {
	return func(s *TrackLoaderService) {
		s.userInfo = userInfo
	}
}

// WithResolveTimeout bounds each resolution call.
func WithResolveTimeout(timeout time.Duration) TrackLoaderOption {
	return func(s *TrackLoaderService) {
		if timeout > 0 {
			s.resolveTimeout = timeout
		}
	}
}

// WithSearchLimit sets how many results a text search asks for.
func WithSearchLimit(limit int) TrackLoaderOption {
	return func(s *TrackLoaderService) {
		if limit > 0 {
			s.searchLimit = limit
		}
	}
}

// NewTrackLoaderService creates a new TrackLoaderService.
func NewTrackLoaderService(
	trackResolver ports.TrackResolver,
	opts ...TrackLoaderOption,
) *TrackLoaderService {
	s := &TrackLoaderService{
		trackResolver:  trackResolver,
		resolveTimeout: DefaultResolveTimeout,
		searchLimit:    domain.DefaultSearchLimit,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadTracks resolves the query and returns the tracks to enqueue, stamped
// with the requester. A text search yields its best match only; a playlist
// yields every entry in order.
func (s *TrackLoaderService) LoadTracks(
	ctx context.Context,
	input LoadTracksInput,
) (*LoadTracksOutput, error) {
	query := domain.NewSearchQuery(input.Query)
	if !query.IsValid() {
		return nil, ErrNoResults
	}

	list, err := s.resolve(ctx, query.WithLimit(s.searchLimit))
	if err != nil {
		return nil, err
	}

	selection := list.Selection()
	if len(selection) == 0 {
		return nil, ErrNoResults
	}

	requesterName := input.RequesterName
	if requesterName == "" {
		requesterName = s.lookupName(input.GuildID, input.RequesterID)
	}

	now := s.now()
	tracks := make([]domain.Track, 0, len(selection))
	for _, track := range selection {
		if !track.IsValid() {
			slog.Debug("skipped unplayable search result", "title", track.Title, "uri", track.URI)
			continue
		}
		tracks = append(tracks, track.Requested(input.RequesterID, requesterName, now))
	}
	if len(tracks) == 0 {
		return nil, ErrNoResults
	}

	return &LoadTracksOutput{
		Tracks:       tracks,
		IsPlaylist:   list.IsPlaylist(),
		PlaylistName: list.Name,
	}, nil
}

// SearchTracksInput contains the input for the SearchTracks use case.
type SearchTracksInput struct {
	Query string
	Limit int
}

// SearchTracksOutput contains the result of the SearchTracks use case.
type SearchTracksOutput struct {
	IsPlaylist   bool
	PlaylistName string
	PlaylistURL  string // Original URL for "add all" option
	TrackCount   int    // Total tracks in the result
	Tracks       []domain.Track
}

// SearchTracks searches for tracks matching the query, for autocomplete.
// Resolution failures yield an empty result.
func (s *TrackLoaderService) SearchTracks(
	ctx context.Context,
	input SearchTracksInput,
) (*SearchTracksOutput, error) {
	query := domain.NewSearchQuery(input.Query)
	if !query.IsValid() {
		return &SearchTracksOutput{}, nil
	}

	list, err := s.resolve(ctx, query.WithLimit(s.searchLimit))
	if errors.Is(err, domain.ErrResolution) {
		return &SearchTracksOutput{}, nil
	}
	if err != nil {
		return nil, err
	}

	tracks := list.Tracks
	if input.Limit > 0 && len(tracks) > input.Limit {
		tracks = tracks[:input.Limit]
	}

	output := &SearchTracksOutput{
		IsPlaylist:   list.IsPlaylist(),
		PlaylistName: list.Name,
		TrackCount:   len(list.Tracks),
		Tracks:       tracks,
	}
	if output.IsPlaylist {
		output.PlaylistURL = list.URL
		if output.PlaylistURL == "" {
			output.PlaylistURL = query.Query
		}
	}
	return output, nil
}

func (s *TrackLoaderService) resolve(
	ctx context.Context,
	query *domain.SearchQuery,
) (*domain.TrackList, error) {
	ctx, cancel := context.WithTimeout(ctx, s.resolveTimeout)
	defer cancel()

	list, err := s.trackResolver.Resolve(ctx, query)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
			return nil, fmt.Errorf("%w: resolving %q: %w", domain.ErrTimeout, query.Query, err)
		}
		return nil, err
	}
	if list == nil {
		return &domain.TrackList{}, nil
	}
	return list, nil
}

func (s *TrackLoaderService) lookupName(guildID, userID snowflake.ID) string {
	if s.userInfo == nil || userID == 0 {
		return ""
	}

	info, err := s.userInfo.GetUserInfo(guildID, userID)
	if err != nil {
		slog.Debug("failed to look up requester", "guild", guildID, "user", userID, "error", err)
		return ""
	}
	return info.DisplayName
}
