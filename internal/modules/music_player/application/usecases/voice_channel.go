package usecases

import (
	"context"
	"log/slog"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/voxbot/internal/modules/music_player/application/ports"
)

// JoinInput contains the input for the Join use case.
type JoinInput struct {
	GuildID               snowflake.ID
	UserID                snowflake.ID
	NotificationChannelID snowflake.ID
	VoiceChannelID        snowflake.ID // Optional: specific channel to join (0 means use user's channel)
}

// JoinOutput contains the result of the Join use case.
type JoinOutput struct {
	VoiceChannelID snowflake.ID
	AlreadyJoined  bool
}

// LeaveInput contains the input for the Leave use case.
type LeaveInput struct {
	GuildID snowflake.ID
}

// BotVoiceStateChangeInput contains the input for handling bot voice state changes.
type BotVoiceStateChangeInput struct {
	GuildID      snowflake.ID
	NewChannelID *snowflake.ID // nil means disconnected
}

// VoiceChannelService handles voice channel operations.
type VoiceChannelService struct {
	players         PlayerRegistry
	voiceConnection ports.VoiceConnection
	voiceState      ports.VoiceStateProvider
}

// NewVoiceChannelService creates a new VoiceChannelService.
func NewVoiceChannelService(
	players PlayerRegistry,
	voiceConnection ports.VoiceConnection,
	voiceState ports.VoiceStateProvider,
) *VoiceChannelService {
	return &VoiceChannelService{
		players:         players,
		voiceConnection: voiceConnection,
		voiceState:      voiceState,
	}
}

// Join joins the bot to a voice channel and attaches the guild's player to it.
// Moving to another channel keeps the queue.
func (v *VoiceChannelService) Join(ctx context.Context, input JoinInput) (*JoinOutput, error) {
	if v.voiceConnection == nil || v.voiceState == nil {
		return nil, ErrVoiceUnavailable
	}

	// Determine which channel to join
	voiceChannelID := input.VoiceChannelID
	if voiceChannelID == 0 {
		userChannel, err := v.voiceState.GetUserVoiceChannel(input.GuildID, input.UserID)
		if err != nil {
			return nil, err
		}
		if userChannel == nil {
			return nil, ErrUserNotInVoice
		}
		voiceChannelID = *userChannel
	}

	p := v.players.GetOrCreate(input.GuildID)

	status, err := p.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	// Already connected to the same channel - just update notification channel
	if status.Connected && status.VoiceChannelID == voiceChannelID {
		if err := p.SetNotificationChannel(ctx, input.NotificationChannelID); err != nil {
			return nil, err
		}
		return &JoinOutput{VoiceChannelID: voiceChannelID, AlreadyJoined: true}, nil
	}

	sink, err := v.voiceConnection.JoinChannel(ctx, input.GuildID, voiceChannelID)
	if err != nil {
		return nil, err
	}

	if err := p.SetNotificationChannel(ctx, input.NotificationChannelID); err != nil {
		return nil, err
	}
	if err := p.Attach(ctx, sink, voiceChannelID); err != nil {
		return nil, err
	}

	slog.Info("joined voice channel", "guild", input.GuildID, "channel", voiceChannelID)

	return &JoinOutput{VoiceChannelID: voiceChannelID}, nil
}

// Leave leaves the voice channel and discards the guild's player.
func (v *VoiceChannelService) Leave(ctx context.Context, input LeaveInput) error {
	removed, err := v.players.Remove(ctx, input.GuildID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotConnected
	}

	slog.Info("left voice channel", "guild", input.GuildID)

	return nil
}

// HandleBotVoiceStateChange handles external voice state changes (bot moved or disconnected).
// This should be called when the bot's voice state changes due to external factors
// (e.g., being moved by a user or disconnected by Discord).
func (v *VoiceChannelService) HandleBotVoiceStateChange(
	ctx context.Context,
	input BotVoiceStateChangeInput,
) error {
	p, ok := v.players.Get(input.GuildID)
	if !ok {
		// No player exists, nothing to do
		return nil
	}

	if input.NewChannelID == nil {
		// Bot was disconnected from voice
		_, err := v.players.Remove(ctx, input.GuildID)
		return err
	}

	return p.SetVoiceChannel(ctx, *input.NewChannelID)
}
