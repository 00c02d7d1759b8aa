package ports

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
)

// VoiceConnection defines the interface for voice channel connection operations.
type VoiceConnection interface {
	// JoinChannel connects the bot to the specified voice channel and returns
	// the sink playing into it. Joining again moves the bot.
	JoinChannel(ctx context.Context, guildID, channelID snowflake.ID) (VoiceSink, error)

	// LeaveChannel disconnects the bot from the voice channel.
	LeaveChannel(ctx context.Context, guildID snowflake.ID) error
}
