package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrResolution indicates a query could not be resolved into tracks.
	ErrResolution = errors.New("failed to resolve track")
	// ErrStreamOpen indicates a resolved track could not be opened for streaming.
	ErrStreamOpen = errors.New("failed to open audio stream")
	// ErrTimeout indicates resolution or stream opening exceeded its deadline.
	ErrTimeout = errors.New("timed out")
	// ErrIndexOutOfRange indicates a queue position outside the pending tracks.
	ErrIndexOutOfRange = errors.New("queue index out of range")
	// ErrNotConnected indicates the bot has no voice session in the guild.
	ErrNotConnected = errors.New("not connected to a voice channel")
	// ErrInvalidStateTransition indicates a command not allowed in the player's state.
	ErrInvalidStateTransition = errors.New("invalid player state transition")
	// ErrQueueFull indicates the queue cannot take more tracks.
	ErrQueueFull = errors.New("queue is full")
	// ErrPlayerClosed indicates the player has been shut down.
	ErrPlayerClosed = errors.New("player is closed")
)

// ErrNothingPlaying indicates a command that needs a current track found none.
var ErrNothingPlaying = fmt.Errorf("%w: nothing is playing", ErrInvalidStateTransition)

// ErrTrackChanging indicates a command arrived while a skipped track is being
// torn down and the next one has not started yet.
var ErrTrackChanging = fmt.Errorf("%w: track is changing", ErrInvalidStateTransition)
