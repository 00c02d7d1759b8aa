package infrastructure

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/voxbot/internal/modules/music_player/domain"
)

func lavalinkTrack(encoded, title string) lavalink.Track {
	uri := "https://www.youtube.com/watch?v=" + encoded
	return lavalink.Track{
		Encoded: encoded,
		Info: lavalink.TrackInfo{
			Identifier: encoded,
			Title:      title,
			Author:     "Artist",
			Length:     lavalink.Duration(215000),
			URI:        &uri,
			SourceName: "youtube",
		},
	}
}

func TestConvertLoadResult(t *testing.T) {
	urlQuery := domain.NewSearchQuery("https://www.youtube.com/playlist?list=abc")
	textQuery := domain.NewSearchQuery("never gonna give you up")

	tests := []struct {
		name       string
		result     *lavalink.LoadResult
		query      *domain.SearchQuery
		wantType   domain.TrackListType
		wantName   string
		wantTitles []string
		wantErr    error
	}{
		{
			name:       "single track",
			result:     &lavalink.LoadResult{LoadType: lavalink.LoadTypeTrack, Data: lavalinkTrack("a", "A")},
			query:      urlQuery,
			wantType:   domain.TrackListTypeTrack,
			wantTitles: []string{"A"},
		},
		{
			name: "playlist keeps order",
			result: &lavalink.LoadResult{LoadType: lavalink.LoadTypePlaylist, Data: lavalink.Playlist{
				Info:   lavalink.PlaylistInfo{Name: "Mix", SelectedTrack: -1},
				Tracks: []lavalink.Track{lavalinkTrack("a", "A"), lavalinkTrack("b", "B"), lavalinkTrack("c", "C")},
			}},
			query:      urlQuery,
			wantType:   domain.TrackListTypePlaylist,
			wantName:   "Mix",
			wantTitles: []string{"A", "B", "C"},
		},
		{
			name: "search",
			result: &lavalink.LoadResult{LoadType: lavalink.LoadTypeSearch, Data: lavalink.Search{
				lavalinkTrack("a", "A"), lavalinkTrack("b", "B"),
			}},
			query:      textQuery,
			wantType:   domain.TrackListTypeSearch,
			wantTitles: []string{"A", "B"},
		},
		{
			name:     "empty search",
			result:   &lavalink.LoadResult{LoadType: lavalink.LoadTypeEmpty, Data: lavalink.Empty{}},
			query:    textQuery,
			wantType: domain.TrackListTypeSearch,
		},
		{
			name: "exception",
			result: &lavalink.LoadResult{LoadType: lavalink.LoadTypeError, Data: lavalink.Exception{
				Message: "This video is unavailable",
			}},
			query:   urlQuery,
			wantErr: domain.ErrResolution,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := convertLoadResult(tt.result, tt.query)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if list.Type != tt.wantType {
				t.Errorf("expected type %v, got %v", tt.wantType, list.Type)
			}
			if list.Name != tt.wantName {
				t.Errorf("expected name %q, got %q", tt.wantName, list.Name)
			}
			if len(list.Tracks) != len(tt.wantTitles) {
				t.Fatalf("expected %d tracks, got %d", len(tt.wantTitles), len(list.Tracks))
			}
			for i, title := range tt.wantTitles {
				if list.Tracks[i].Title != title {
					t.Errorf("track %d: expected %q, got %q", i, title, list.Tracks[i].Title)
				}
			}
		})
	}
}

func TestConvertTrack(t *testing.T) {
	track := convertTrack(lavalinkTrack("QAAA", "Song"))

	if track.Locator != "QAAA" {
		t.Errorf("expected locator QAAA, got %q", track.Locator)
	}
	if track.Duration != 215*time.Second {
		t.Errorf("expected 3m35s, got %v", track.Duration)
	}
	if track.URI != "https://www.youtube.com/watch?v=QAAA" {
		t.Errorf("unexpected URI %q", track.URI)
	}
	if track.ArtworkURL != "" {
		t.Errorf("expected empty artwork, got %q", track.ArtworkURL)
	}
	if track.ID != "" {
		t.Errorf("expected no ID before enqueue, got %q", track.ID)
	}
}

func TestReadEncoded(t *testing.T) {
	got, err := readEncoded(newEncodedTrackStream("QAAA"))
	if err != nil || got != "QAAA" {
		t.Errorf("expected QAAA, got %q (%v)", got, err)
	}

	got, err = readEncoded(io.NopCloser(strings.NewReader("QBBB")))
	if err != nil || got != "QBBB" {
		t.Errorf("expected QBBB, got %q (%v)", got, err)
	}
}

type playbackRecorder struct {
	completed int
	errs      []error
}

func (r *playbackRecorder) playback(encoded string) *lavalinkPlayback {
	return &lavalinkPlayback{
		encoded:    encoded,
		onComplete: func() { r.completed++ },
		onError:    func(err error) { r.errs = append(r.errs, err) },
	}
}

func TestLavalinkAdapter_HandleTrackEnd(t *testing.T) {
	guildID := snowflake.ID(1)

	tests := []struct {
		name          string
		encoded       string
		reason        lavalink.TrackEndReason
		wantCompleted int
		wantErrs      int
	}{
		{name: "finished", encoded: "cur", reason: lavalink.TrackEndReasonFinished, wantCompleted: 1},
		{name: "load failed", encoded: "cur", reason: lavalink.TrackEndReasonLoadFailed, wantErrs: 1},
		{name: "stopped", encoded: "cur", reason: lavalink.TrackEndReasonStopped},
		{name: "replaced", encoded: "cur", reason: lavalink.TrackEndReasonReplaced},
		{name: "stale track", encoded: "old", reason: lavalink.TrackEndReasonFinished},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newLavalinkAdapter(nil, snowflake.ID(99))
			rec := &playbackRecorder{}
			adapter.setPlayback(guildID, rec.playback("cur"))

			adapter.handleTrackEnd(guildID, tt.encoded, tt.reason)

			if rec.completed != tt.wantCompleted {
				t.Errorf("expected %d completions, got %d", tt.wantCompleted, rec.completed)
			}
			if len(rec.errs) != tt.wantErrs {
				t.Errorf("expected %d errors, got %d", tt.wantErrs, len(rec.errs))
			}
		})
	}
}

func TestLavalinkAdapter_SingleTerminalCallback(t *testing.T) {
	guildID := snowflake.ID(1)
	adapter := newLavalinkAdapter(nil, snowflake.ID(99))
	rec := &playbackRecorder{}
	adapter.setPlayback(guildID, rec.playback("cur"))

	adapter.finishPlayback(guildID, "cur", errors.New("boom"))
	adapter.handleTrackEnd(guildID, "cur", lavalink.TrackEndReasonLoadFailed)
	adapter.handleTrackEnd(guildID, "cur", lavalink.TrackEndReasonFinished)

	if len(rec.errs) != 1 || rec.completed != 0 {
		t.Errorf("expected exactly one error callback, got %d errors and %d completions",
			len(rec.errs), rec.completed)
	}
}

func TestLavalinkAdapter_TakePlaybackClearsCallbacks(t *testing.T) {
	guildID := snowflake.ID(1)
	adapter := newLavalinkAdapter(nil, snowflake.ID(99))
	rec := &playbackRecorder{}
	adapter.setPlayback(guildID, rec.playback("cur"))

	if adapter.takePlayback(guildID, "") == nil {
		t.Fatal("expected a registered playback")
	}
	adapter.handleTrackEnd(guildID, "cur", lavalink.TrackEndReasonFinished)

	if rec.completed != 0 {
		t.Errorf("expected no callback after stop, got %d", rec.completed)
	}
}

func TestVoiceCredentials(t *testing.T) {
	channelID := snowflake.ID(5)

	t.Run("state then server", func(t *testing.T) {
		v := &voiceCredentials{}
		if _, ok := v.withState(&channelID, "session"); ok {
			t.Fatal("expected incomplete after state only")
		}
		u, ok := v.withServer("token", "endpoint")
		if !ok {
			t.Fatal("expected complete after both halves")
		}
		if *u.channelID != channelID || u.sessionID != "session" || u.token != "token" || u.endpoint != "endpoint" {
			t.Errorf("unexpected update %+v", u)
		}
	})

	t.Run("server then state", func(t *testing.T) {
		v := &voiceCredentials{}
		if _, ok := v.withServer("token", "endpoint"); ok {
			t.Fatal("expected incomplete after server only")
		}
		if _, ok := v.withState(&channelID, "session"); !ok {
			t.Fatal("expected complete after both halves")
		}
	})

	t.Run("reset after completion", func(t *testing.T) {
		v := &voiceCredentials{}
		v.withState(&channelID, "session")
		v.withServer("token", "endpoint")
		if _, ok := v.withServer("token2", "endpoint2"); ok {
			t.Error("expected buffer to reset after forwarding")
		}
	})
}

func TestVoiceHandshake(t *testing.T) {
	h := newVoiceHandshake()
	h.mark(true)

	select {
	case <-h.ready:
		t.Fatal("expected handshake to wait for the server update")
	default:
	}

	h.mark(false)
	h.mark(false)

	select {
	case <-h.ready:
	default:
		t.Error("expected handshake to be ready")
	}
}
