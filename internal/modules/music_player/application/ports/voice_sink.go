package ports

import "context"

// VoiceSink plays audio streams into one guild's voice session.
//
// For every Play call exactly one of onComplete or onError is invoked,
// unless Stop is called first, in which case neither is. Callbacks may
// run on any goroutine and must not block.
type VoiceSink interface {
	// Play starts feeding stream to the voice channel and takes ownership of it.
	Play(ctx context.Context, stream AudioStream, onComplete func(), onError func(error)) error

	// Pause holds the current stream.
	Pause(ctx context.Context) error

	// Resume continues a held stream.
	Resume(ctx context.Context) error

	// Stop ends the current stream. It is idempotent.
	Stop(ctx context.Context) error
}
