package ports

import "github.com/sglre6355/voxbot/internal/modules/music_player/domain"

// EventPublisher defines the interface for publishing events asynchronously.
// Publish never blocks the caller.
type EventPublisher interface {
	Publish(event domain.Event) error
}
