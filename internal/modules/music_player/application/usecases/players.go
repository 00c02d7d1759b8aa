package usecases

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/voxbot/internal/modules/music_player/application/player"
)

// PlayerRegistry is the part of player.Manager the use cases rely on.
type PlayerRegistry interface {
	GetOrCreate(guildID snowflake.ID) *player.Player
	Get(guildID snowflake.ID) (*player.Player, bool)
	Remove(ctx context.Context, guildID snowflake.ID) (bool, error)
}

var _ PlayerRegistry = (*player.Manager)(nil)

// connectedPlayer returns the guild's player, or ErrNotConnected if there is none.
func connectedPlayer(players PlayerRegistry, guildID snowflake.ID) (*player.Player, error) {
	p, ok := players.Get(guildID)
	if !ok {
		return nil, ErrNotConnected
	}
	return p, nil
}
