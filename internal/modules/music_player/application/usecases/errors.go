package usecases

import (
	"errors"

	"github.com/sglre6355/voxbot/internal/modules/music_player/domain"
)

// Errors returned by the music player use cases.
var (
	// ErrNotConnected is returned when an operation requires the bot to be in a voice channel.
	ErrNotConnected = domain.ErrNotConnected

	// ErrUserNotInVoice is returned when the user is not in a voice channel.
	ErrUserNotInVoice = errors.New("you must be in a voice channel")

	// ErrNotPlaying is returned when no track is currently playing.
	ErrNotPlaying = errors.New("nothing is currently playing")

	// ErrAlreadyPaused is returned when trying to pause while already paused.
	ErrAlreadyPaused = errors.New("playback is already paused")

	// ErrNotPaused is returned when trying to resume while not paused.
	ErrNotPaused = errors.New("playback is not paused")

	// ErrTrackChanging is returned when pause or resume arrives between tracks.
	ErrTrackChanging = errors.New("track is changing")

	// ErrNoResults is returned when a search yields no results.
	ErrNoResults = errors.New("no results found")

	// ErrQueueEmpty is returned when the queue has no pending tracks.
	ErrQueueEmpty = errors.New("the queue is empty")

	// ErrInvalidPosition is returned when an invalid queue position is specified.
	ErrInvalidPosition = errors.New("invalid queue position")

	// ErrInvalidMode is returned for an unknown queue mode name.
	ErrInvalidMode = errors.New("invalid queue mode")

	// ErrVoiceUnavailable is returned when no audio backend is configured.
	ErrVoiceUnavailable = errors.New("voice playback is unavailable")
)
