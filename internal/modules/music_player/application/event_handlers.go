package application

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/voxbot/internal/modules/music_player/application/player"
	"github.com/sglre6355/voxbot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/voxbot/internal/modules/music_player/domain"
)

// PlayerLookup finds a guild's player.
type PlayerLookup interface {
	Get(guildID snowflake.ID) (*player.Player, bool)
}

// NotificationEventHandler handles events related to Discord notifications.
// It keeps at most one "Now Playing" message per guild, replacing it when
// the next track starts and deleting it when the track finishes.
type NotificationEventHandler struct {
	players          PlayerLookup
	subscriber       ports.EventSubscriber
	notifier         ports.NotificationSender
	userInfoProvider ports.UserInfoProvider

	mu         sync.Mutex
	nowPlaying map[snowflake.ID]domain.NowPlayingMessage
}

// NewNotificationEventHandler creates a new NotificationEventHandler.
func NewNotificationEventHandler(
	players PlayerLookup,
	subscriber ports.EventSubscriber,
	notifier ports.NotificationSender,
	userInfoProvider ports.UserInfoProvider,
) *NotificationEventHandler {
	return &NotificationEventHandler{
		players:          players,
		subscriber:       subscriber,
		notifier:         notifier,
		userInfoProvider: userInfoProvider,
		nowPlaying:       make(map[snowflake.ID]domain.NowPlayingMessage),
	}
}

// Start registers event handlers with the subscriber.
func (h *NotificationEventHandler) Start() error {
	err := h.subscriber.Subscribe(
		reflect.TypeFor[domain.PlaybackStartedEvent](),
		func(ctx context.Context, e domain.Event) {
			h.handlePlaybackStarted(ctx, e.(domain.PlaybackStartedEvent))
		},
	)
	if err != nil {
		return err
	}

	err = h.subscriber.Subscribe(
		reflect.TypeFor[domain.PlaybackFinishedEvent](),
		func(ctx context.Context, e domain.Event) {
			h.handlePlaybackFinished(ctx, e.(domain.PlaybackFinishedEvent))
		},
	)
	if err != nil {
		return err
	}

	err = h.subscriber.Subscribe(
		reflect.TypeFor[domain.TrackFailedEvent](),
		func(ctx context.Context, e domain.Event) {
			h.handleTrackFailed(ctx, e.(domain.TrackFailedEvent))
		},
	)
	if err != nil {
		return err
	}

	slog.Debug("notification event handlers properly registered")

	return nil
}

func (h *NotificationEventHandler) handlePlaybackStarted(
	ctx context.Context,
	event domain.PlaybackStartedEvent,
) {
	h.deleteNowPlaying(event.GuildID, "")

	if event.NotificationChannelID == 0 {
		slog.Debug("skipping now playing notification, no channel", "guild", event.GuildID)
		return
	}

	info := h.nowPlayingInfo(ctx, event.GuildID, event.Track)

	messageID, err := h.notifier.SendNowPlaying(event.NotificationChannelID, info)
	if err != nil {
		slog.Error(
			"failed to send now playing notification",
			"guild", event.GuildID,
			"track", event.Track.Title,
			"error", err,
		)
		return
	}

	h.mu.Lock()
	h.nowPlaying[event.GuildID] = domain.NowPlayingMessage{
		ChannelID: event.NotificationChannelID,
		MessageID: messageID,
		TrackID:   event.Track.ID,
	}
	h.mu.Unlock()
}

func (h *NotificationEventHandler) handlePlaybackFinished(
	_ context.Context,
	event domain.PlaybackFinishedEvent,
) {
	h.deleteNowPlaying(event.GuildID, event.Track.ID)
}

func (h *NotificationEventHandler) handleTrackFailed(
	_ context.Context,
	event domain.TrackFailedEvent,
) {
	if event.NotificationChannelID == 0 {
		return
	}

	err := h.notifier.SendTrackFailed(event.NotificationChannelID, &ports.TrackFailedInfo{
		Title:  event.Track.Title,
		URI:    event.Track.URI,
		Reason: failureReason(event.Err),
	})
	if err != nil {
		slog.Warn(
			"failed to send track failed notification",
			"guild", event.GuildID,
			"track", event.Track.Title,
			"error", err,
		)
	}
}

// deleteNowPlaying removes the guild's "Now Playing" message. A non-empty
// trackID limits the deletion to the message announcing that track.
func (h *NotificationEventHandler) deleteNowPlaying(guildID snowflake.ID, trackID domain.TrackID) {
	h.mu.Lock()
	message, ok := h.nowPlaying[guildID]
	if ok && trackID != "" && message.TrackID != trackID {
		ok = false
	}
	if ok {
		delete(h.nowPlaying, guildID)
	}
	h.mu.Unlock()

	if !ok {
		return
	}

	if err := h.notifier.DeleteMessage(message.ChannelID, message.MessageID); err != nil {
		slog.Warn(
			"failed to delete now playing message",
			"guild", guildID,
			"message", message.MessageID,
			"error", err,
		)
	}
}

func (h *NotificationEventHandler) nowPlayingInfo(
	ctx context.Context,
	guildID snowflake.ID,
	track domain.Track,
) *ports.NowPlayingInfo {
	info := &ports.NowPlayingInfo{
		Title:         track.Title,
		Artist:        track.Artist,
		Duration:      track.FormattedDuration(),
		URI:           track.URI,
		ArtworkURL:    track.ArtworkURL,
		SourceName:    track.SourceName,
		IsStream:      track.IsStream,
		QueueMode:     domain.QueueModeNormal.String(),
		RequesterID:   track.RequesterID,
		RequesterName: track.RequesterName,
		EnqueuedAt:    track.EnqueuedAt,
	}

	if p, ok := h.players.Get(guildID); ok {
		if status, err := p.Snapshot(ctx); err == nil {
			info.QueueMode = status.Queue.Mode.String()
			info.PendingCount = len(status.Queue.Pending)
		}
	}

	if h.userInfoProvider != nil && track.RequesterID != 0 {
		userInfo, err := h.userInfoProvider.GetUserInfo(guildID, track.RequesterID)
		if err != nil {
			slog.Debug("failed to fetch requester info", "guild", guildID, "error", err)
		} else {
			info.RequesterAvatarURL = userInfo.AvatarURL
			if info.RequesterName == "" {
				info.RequesterName = userInfo.DisplayName
			}
		}
	}

	return info
}

// failureReason turns a pipeline error into a short user-facing reason.
func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrTimeout):
		return "timed out while loading"
	case errors.Is(err, domain.ErrResolution):
		return "could not be resolved"
	case errors.Is(err, domain.ErrStreamOpen):
		return "could not open the audio stream"
	default:
		return "playback failed"
	}
}
