package usecases

import (
	"context"
	"errors"
	"testing"

	"github.com/sglre6355/voxbot/internal/modules/music_player/domain"
)

func TestPlaybackService_NotConnected(t *testing.T) {
	env := newTestEnv(t)
	service := NewPlaybackService(env.players)
	ctx := context.Background()

	if err := service.Pause(ctx, PauseInput{GuildID: testGuildID}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("pause: expected ErrNotConnected, got %v", err)
	}
	if err := service.Resume(ctx, ResumeInput{GuildID: testGuildID}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("resume: expected ErrNotConnected, got %v", err)
	}
	if _, err := service.Skip(ctx, SkipInput{GuildID: testGuildID}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("skip: expected ErrNotConnected, got %v", err)
	}
	if _, err := service.Stop(ctx, StopInput{GuildID: testGuildID}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("stop: expected ErrNotConnected, got %v", err)
	}
	if _, err := service.NowPlaying(ctx, NowPlayingInput{GuildID: testGuildID}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("now playing: expected ErrNotConnected, got %v", err)
	}
}

func TestPlaybackService_PauseResume(t *testing.T) {
	tests := []struct {
		name       string
		tracks     []string
		pauseFirst bool
		action     string
		wantErr    error
	}{
		{name: "pause playing", tracks: []string{"a"}, action: "pause"},
		{name: "pause idle", action: "pause", wantErr: ErrNotPlaying},
		{name: "pause paused", tracks: []string{"a"}, pauseFirst: true, action: "pause", wantErr: ErrAlreadyPaused},
		{name: "resume paused", tracks: []string{"a"}, pauseFirst: true, action: "resume"},
		{name: "resume playing", tracks: []string{"a"}, action: "resume", wantErr: ErrNotPaused},
		{name: "resume idle", action: "resume", wantErr: ErrNotPlaying},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.connectWithTracks(t, tt.tracks...)
			service := NewPlaybackService(env.players)
			ctx := context.Background()

			if tt.pauseFirst {
				if err := service.Pause(ctx, PauseInput{GuildID: testGuildID}); err != nil {
					t.Fatalf("setup pause failed: %v", err)
				}
			}

			var err error
			switch tt.action {
			case "pause":
				err = service.Pause(ctx, PauseInput{GuildID: testGuildID})
			case "resume":
				err = service.Resume(ctx, ResumeInput{GuildID: testGuildID})
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPlaybackService_PauseResumeBetweenTracks(t *testing.T) {
	env := newTestEnv(t)
	release := make(chan struct{})
	defer close(release)
	env.resolver.openFunc = func(ctx context.Context, track domain.Track) error {
		if track.ID != "a" {
			return nil
		}
		<-release
		return ctx.Err()
	}

	p := env.connect(t)
	service := NewPlaybackService(env.players)
	ctx := context.Background()

	if _, err := p.Submit(ctx, mockTracks("a", "b")...); err != nil {
		t.Fatalf("failed to submit: %v", err)
	}
	if _, err := service.Skip(ctx, SkipInput{GuildID: testGuildID, Count: 1}); err != nil {
		t.Fatalf("unexpected skip error: %v", err)
	}

	if err := service.Pause(ctx, PauseInput{GuildID: testGuildID}); !errors.Is(err, ErrTrackChanging) {
		t.Errorf("pause: expected ErrTrackChanging, got %v", err)
	}
	if err := service.Resume(ctx, ResumeInput{GuildID: testGuildID}); !errors.Is(err, ErrTrackChanging) {
		t.Errorf("resume: expected ErrTrackChanging, got %v", err)
	}
}

func TestPlaybackService_Skip(t *testing.T) {
	env := newTestEnv(t)
	env.connectWithTracks(t, "a", "b", "c", "d")
	service := NewPlaybackService(env.players)

	output, err := service.Skip(context.Background(), SkipInput{GuildID: testGuildID, Count: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output.SkippedTrack.ID != "a" {
		t.Errorf("expected skipped a, got %s", output.SkippedTrack.ID)
	}
	if output.DroppedTracks != 1 {
		t.Errorf("expected 1 dropped track, got %d", output.DroppedTracks)
	}
	if output.NextTrack == nil || output.NextTrack.ID != "c" {
		t.Errorf("expected next track c, got %v", output.NextTrack)
	}
}

func TestPlaybackService_SkipIdle(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	service := NewPlaybackService(env.players)

	_, err := service.Skip(context.Background(), SkipInput{GuildID: testGuildID})
	if !errors.Is(err, ErrNotPlaying) {
		t.Errorf("expected ErrNotPlaying, got %v", err)
	}
}

func TestPlaybackService_Stop(t *testing.T) {
	tests := []struct {
		name        string
		tracks      []string
		clearQueue  bool
		wantStopped bool
		wantPending int
	}{
		{name: "stop keeps queue", tracks: []string{"a", "b"}, wantStopped: true, wantPending: 1},
		{name: "stop clears queue", tracks: []string{"a", "b"}, clearQueue: true, wantStopped: true},
		{name: "stop idle", wantStopped: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			p := env.connectWithTracks(t, tt.tracks...)
			service := NewPlaybackService(env.players)

			output, err := service.Stop(context.Background(), StopInput{
				GuildID:    testGuildID,
				ClearQueue: tt.clearQueue,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if output.Stopped != tt.wantStopped {
				t.Errorf("expected stopped %v, got %v", tt.wantStopped, output.Stopped)
			}
			status, _ := p.Snapshot(context.Background())
			if status.State != domain.PlaybackIdle {
				t.Errorf("expected idle, got %s", status.State)
			}
			if len(status.Queue.Pending) != tt.wantPending {
				t.Errorf("expected %d pending, got %d", tt.wantPending, len(status.Queue.Pending))
			}
		})
	}
}

func TestPlaybackService_SetMode(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		wantMode domain.QueueMode
		wantErr  error
	}{
		{name: "loop", mode: "loop", wantMode: domain.QueueModeLoop},
		{name: "shuffle", mode: "shuffle", wantMode: domain.QueueModeShuffle},
		{name: "normal", mode: "normal", wantMode: domain.QueueModeNormal},
		{name: "unknown", mode: "repeat-one", wantErr: ErrInvalidMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			p := env.connect(t)
			service := NewPlaybackService(env.players)

			output, err := service.SetMode(context.Background(), SetModeInput{
				GuildID: testGuildID,
				Mode:    tt.mode,
			})

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if output.Mode != tt.wantMode {
				t.Errorf("expected mode %s, got %s", tt.wantMode, output.Mode)
			}
			status, _ := p.Snapshot(context.Background())
			if status.Queue.Mode != tt.wantMode {
				t.Errorf("expected player mode %s, got %s", tt.wantMode, status.Queue.Mode)
			}
		})
	}
}

func TestPlaybackService_NowPlaying(t *testing.T) {
	env := newTestEnv(t)
	env.connectWithTracks(t, "a", "b", "c")
	service := NewPlaybackService(env.players)

	output, err := service.NowPlaying(context.Background(), NowPlayingInput{GuildID: testGuildID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output.Track.ID != "a" {
		t.Errorf("expected track a, got %s", output.Track.ID)
	}
	if output.PendingCount != 2 {
		t.Errorf("expected 2 pending, got %d", output.PendingCount)
	}
	if output.State != domain.PlaybackStreaming {
		t.Errorf("expected streaming, got %s", output.State)
	}
}

func TestPlaybackService_NowPlayingIdle(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	service := NewPlaybackService(env.players)

	_, err := service.NowPlaying(context.Background(), NowPlayingInput{GuildID: testGuildID})
	if !errors.Is(err, ErrNotPlaying) {
		t.Errorf("expected ErrNotPlaying, got %v", err)
	}
}
