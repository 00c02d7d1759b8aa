package player

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/voxbot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/voxbot/internal/modules/music_player/domain"
)

const testGuildID = snowflake.ID(1)

// fakeStream is an AudioStream that records Close.
type fakeStream struct {
	io.Reader
	track  domain.Track
	closed atomic.Bool
}

func (s *fakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

// openFunc overrides how a single track is opened.
type openFunc func(ctx context.Context, track domain.Track) (ports.AudioStream, error)

// fakeResolver opens tracks instantly unless an override is registered for the track ID.
type fakeResolver struct {
	mu        sync.Mutex
	overrides map[domain.TrackID]openFunc
	opens     map[domain.TrackID]int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		overrides: make(map[domain.TrackID]openFunc),
		opens:     make(map[domain.TrackID]int),
	}
}

func (r *fakeResolver) on(id domain.TrackID, fn openFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[id] = fn
}

func (r *fakeResolver) openCount(id domain.TrackID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opens[id]
}

func (r *fakeResolver) Resolve(
	_ context.Context,
	query *domain.SearchQuery,
) (*domain.TrackList, error) {
	return &domain.TrackList{
		Type:   domain.TrackListTypeTrack,
		Tracks: []domain.Track{{Title: query.Query, Locator: query.Query}},
	}, nil
}

func (r *fakeResolver) Open(ctx context.Context, track domain.Track) (ports.AudioStream, error) {
	r.mu.Lock()
	r.opens[track.ID]++
	fn := r.overrides[track.ID]
	r.mu.Unlock()

	if fn != nil {
		return fn(ctx, track)
	}
	return &fakeStream{Reader: strings.NewReader(string(track.ID)), track: track}, nil
}

// playCall records one VoiceSink.Play invocation.
type playCall struct {
	stream     ports.AudioStream
	onComplete func()
	onError    func(error)
}

// fakeSink records every call made to it.
type fakeSink struct {
	mu      sync.Mutex
	plays   []playCall
	pauses  int
	resumes int
	stops   int
	playErr error
}

func (s *fakeSink) Play(
	_ context.Context,
	stream ports.AudioStream,
	onComplete func(),
	onError func(error),
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playErr != nil {
		return s.playErr
	}
	s.plays = append(s.plays, playCall{stream: stream, onComplete: onComplete, onError: onError})
	return nil
}

func (s *fakeSink) Pause(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauses++
	return nil
}

func (s *fakeSink) Resume(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumes++
	return nil
}

func (s *fakeSink) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *fakeSink) playCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.plays)
}

func (s *fakeSink) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

func (s *fakeSink) lastPlay() playCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays[len(s.plays)-1]
}

// fakePublisher collects published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *fakePublisher) Publish(event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) failed() []domain.TrackFailedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var result []domain.TrackFailedEvent
	for _, e := range p.events {
		if failed, ok := e.(domain.TrackFailedEvent); ok {
			result = append(result, failed)
		}
	}
	return result
}

// fakeVoice is a VoiceConnection handing out a fixed sink.
type fakeVoice struct {
	mu     sync.Mutex
	sink   ports.VoiceSink
	leaves []snowflake.ID

	// When set, LeaveChannel reports on leaving and blocks until unblock is closed.
	leaving chan snowflake.ID
	unblock chan struct{}
}

func (v *fakeVoice) JoinChannel(context.Context, snowflake.ID, snowflake.ID) (ports.VoiceSink, error) {
	return v.sink, nil
}

func (v *fakeVoice) LeaveChannel(_ context.Context, guildID snowflake.ID) error {
	if v.leaving != nil {
		select {
		case v.leaving <- guildID:
		default:
		}
		<-v.unblock
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.leaves = append(v.leaves, guildID)
	return nil
}

func (v *fakeVoice) leaveCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.leaves)
}

func track(id string) domain.Track {
	return domain.Track{ID: domain.TrackID(id), Title: "Song " + id, Locator: "enc-" + id}
}

func tracks(ids ...string) []domain.Track {
	result := make([]domain.Track, len(ids))
	for i, id := range ids {
		result[i] = track(id)
	}
	return result
}

// testHarness bundles a player with its fakes.
type testHarness struct {
	player    *Player
	resolver  *fakeResolver
	sink      *fakeSink
	publisher *fakePublisher
}

func newHarness(t *testing.T, opts ...func(*Config)) *testHarness {
	t.Helper()

	h := &testHarness{
		resolver:  newFakeResolver(),
		sink:      &fakeSink{},
		publisher: &fakePublisher{},
	}
	cfg := Config{
		GuildID:   testGuildID,
		Resolver:  h.resolver,
		Publisher: h.publisher,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	h.player = New(cfg)
	t.Cleanup(func() {
		_ = h.player.Close(context.Background())
	})

	if err := h.player.Attach(context.Background(), h.sink, snowflake.ID(100)); err != nil {
		t.Fatalf("failed to attach sink: %v", err)
	}
	return h
}

func (h *testHarness) status(t *testing.T) Status {
	t.Helper()
	status, err := h.player.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("failed to snapshot: %v", err)
	}
	return status
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// waitForPlaying waits until the player is streaming id with its stream handed to the sink.
func (h *testHarness) waitForPlaying(t *testing.T, id string, plays int) {
	t.Helper()
	waitFor(t, "track "+id+" to play", func() bool {
		status := h.status(t)
		return status.State == domain.PlaybackStreaming &&
			status.Queue.Current != nil &&
			status.Queue.Current.ID == domain.TrackID(id) &&
			h.sink.playCount() == plays
	})
}

var errBoom = errors.New("boom")
