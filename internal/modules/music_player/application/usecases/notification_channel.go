package usecases

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
)

// NotificationChannelService handles updating the notification channel for a guild's player.
type NotificationChannelService struct {
	players PlayerRegistry
}

// NewNotificationChannelService creates a new NotificationChannelService.
func NewNotificationChannelService(players PlayerRegistry) *NotificationChannelService {
	return &NotificationChannelService{players: players}
}

// SetNotificationChannelInput contains the input for the Set use case.
type SetNotificationChannelInput struct {
	GuildID   snowflake.ID
	ChannelID snowflake.ID
}

// Set updates the notification channel for the guild's player.
func (n *NotificationChannelService) Set(
	ctx context.Context,
	input SetNotificationChannelInput,
) error {
	p, err := connectedPlayer(n.players, input.GuildID)
	if err != nil {
		return err
	}

	return p.SetNotificationChannel(ctx, input.ChannelID)
}
