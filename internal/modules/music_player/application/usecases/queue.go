package usecases

import (
	"context"
	"errors"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/voxbot/internal/modules/music_player/domain"
)

const DefaultPageSize = 10

// QueueAddInput contains the input for the QueueAdd use case.
type QueueAddInput struct {
	GuildID snowflake.ID
	Tracks  []domain.Track
}

// QueueAddOutput contains the result of the QueueAdd use case.
type QueueAddOutput struct {
	Position    int // 1-indexed queue position of the first track (0 = now playing)
	QueueLength int
	Started     bool
	NowPlaying  *domain.Track
}

// QueueListInput contains the input for the QueueList use case.
type QueueListInput struct {
	GuildID  snowflake.ID
	Page     int // 1-indexed page number
	PageSize int // Items per page (optional, defaults to 10)
}

// QueueListOutput contains the result of the QueueList use case.
type QueueListOutput struct {
	CurrentTrack *domain.Track
	Tracks       []domain.Track
	Mode         domain.QueueMode
	State        domain.PlaybackState
	StartIndex   int // 1-indexed queue position of Tracks[0]
	TotalTracks  int
	CurrentPage  int
	TotalPages   int
}

// QueueRemoveInput contains the input for the QueueRemove use case.
type QueueRemoveInput struct {
	GuildID  snowflake.ID
	Position int // 1-indexed position among pending tracks
}

// QueueRemoveOutput contains the result of the QueueRemove use case.
type QueueRemoveOutput struct {
	RemovedTrack domain.Track
}

// QueueClearInput contains the input for the QueueClear use case.
type QueueClearInput struct {
	GuildID snowflake.ID
}

// QueueClearOutput contains the result of the QueueClear use case.
type QueueClearOutput struct {
	ClearedCount int
}

// QueueFindInput contains the input for the QueueFind use case.
type QueueFindInput struct {
	GuildID snowflake.ID
	Query   string
}

// QueueFindMatch is a pending track matching a QueueFind query.
type QueueFindMatch struct {
	Position int // 1-indexed
	Track    domain.Track
}

// QueueFindOutput contains the result of the QueueFind use case.
type QueueFindOutput struct {
	Matches []QueueFindMatch
}

// QueueService handles queue operations.
type QueueService struct {
	players PlayerRegistry
}

// NewQueueService creates a new QueueService.
func NewQueueService(players PlayerRegistry) *QueueService {
	return &QueueService{players: players}
}

// Add appends tracks to the queue. Playback starts if the player was idle.
func (q *QueueService) Add(ctx context.Context, input QueueAddInput) (*QueueAddOutput, error) {
	p, err := connectedPlayer(q.players, input.GuildID)
	if err != nil {
		return nil, err
	}

	result, err := p.Submit(ctx, input.Tracks...)
	if err != nil {
		return nil, err
	}

	return &QueueAddOutput{
		Position:    result.Position,
		QueueLength: result.QueueLength,
		Started:     result.Started,
		NowPlaying:  result.NowPlaying,
	}, nil
}

// List returns the current queue with pagination.
func (q *QueueService) List(ctx context.Context, input QueueListInput) (*QueueListOutput, error) {
	p, err := connectedPlayer(q.players, input.GuildID)
	if err != nil {
		return nil, err
	}

	status, err := p.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	// Validate and set defaults
	pageSize := input.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	page := input.Page
	if page <= 0 {
		page = 1
	}

	// Pagination applies to pending tracks only
	pending := status.Queue.Pending
	totalTracks := len(pending)
	totalPages := (totalTracks + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}

	// Clamp page to valid range
	if page > totalPages {
		page = totalPages
	}

	// Calculate slice bounds
	start := (page - 1) * pageSize
	end := min(start+pageSize, totalTracks)

	var pageTracks []domain.Track
	if start < totalTracks {
		pageTracks = pending[start:end]
	}

	return &QueueListOutput{
		CurrentTrack: status.Queue.Current,
		Tracks:       pageTracks,
		Mode:         status.Queue.Mode,
		State:        status.State,
		StartIndex:   start + 1,
		TotalTracks:  totalTracks,
		CurrentPage:  page,
		TotalPages:   totalPages,
	}, nil
}

// Remove removes a pending track at the given 1-indexed position.
// The current track is not part of the pending list; use Skip for it.
func (q *QueueService) Remove(ctx context.Context, input QueueRemoveInput) (*QueueRemoveOutput, error) {
	p, err := connectedPlayer(q.players, input.GuildID)
	if err != nil {
		return nil, err
	}

	if input.Position < 1 {
		return nil, ErrInvalidPosition
	}

	track, err := p.RemoveAt(ctx, input.Position-1)
	if errors.Is(err, domain.ErrIndexOutOfRange) {
		if status, snapErr := p.Snapshot(ctx); snapErr == nil && len(status.Queue.Pending) == 0 {
			return nil, ErrQueueEmpty
		}
		return nil, ErrInvalidPosition
	}
	if err != nil {
		return nil, err
	}

	return &QueueRemoveOutput{RemovedTrack: track}, nil
}

// Clear clears all pending tracks. The current track keeps playing.
func (q *QueueService) Clear(ctx context.Context, input QueueClearInput) (*QueueClearOutput, error) {
	p, err := connectedPlayer(q.players, input.GuildID)
	if err != nil {
		return nil, err
	}

	count, err := p.ClearQueue(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrQueueEmpty
	}

	return &QueueClearOutput{ClearedCount: count}, nil
}

// Find returns pending tracks whose title contains the query, ignoring case.
func (q *QueueService) Find(ctx context.Context, input QueueFindInput) (*QueueFindOutput, error) {
	p, err := connectedPlayer(q.players, input.GuildID)
	if err != nil {
		return nil, err
	}

	matches, err := p.Find(ctx, input.Query)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrNoResults
	}

	output := &QueueFindOutput{Matches: make([]QueueFindMatch, len(matches))}
	for i, m := range matches {
		output.Matches[i] = QueueFindMatch{Position: m.Index + 1, Track: m.Track}
	}
	return output, nil
}
