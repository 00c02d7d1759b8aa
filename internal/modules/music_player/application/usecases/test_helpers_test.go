package usecases

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/voxbot/internal/modules/music_player/application/player"
	"github.com/sglre6355/voxbot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/voxbot/internal/modules/music_player/domain"
)

func mockTrack(id string) domain.Track {
	return domain.Track{
		ID:          domain.TrackID(id),
		Locator:     "encoded-" + id,
		Title:       "Track " + id,
		Artist:      "Artist",
		Duration:    3 * time.Minute,
		RequesterID: snowflake.ID(123),
	}
}

func mockTracks(ids ...string) []domain.Track {
	tracks := make([]domain.Track, len(ids))
	for i, id := range ids {
		tracks[i] = mockTrack(id)
	}
	return tracks
}

type mockTrackResolver struct {
	mu          sync.Mutex
	resolveErr  error
	result      *domain.TrackList
	lastQuery   *domain.SearchQuery
	resolveFunc func(ctx context.Context) error
	openFunc    func(ctx context.Context, track domain.Track) error
}

func (m *mockTrackResolver) Resolve(
	ctx context.Context,
	query *domain.SearchQuery,
) (*domain.TrackList, error) {
	m.mu.Lock()
	m.lastQuery = query
	m.mu.Unlock()

	if m.resolveFunc != nil {
		if err := m.resolveFunc(ctx); err != nil {
			return nil, err
		}
	}
	if m.resolveErr != nil {
		return nil, m.resolveErr
	}
	return m.result, nil
}

func (m *mockTrackResolver) Open(ctx context.Context, track domain.Track) (ports.AudioStream, error) {
	if m.openFunc != nil {
		if err := m.openFunc(ctx, track); err != nil {
			return nil, err
		}
	}
	return io.NopCloser(strings.NewReader(track.Locator)), nil
}

type mockVoiceSink struct {
	mu     sync.Mutex
	plays  int
	pauses int
	stops  int
}

func (m *mockVoiceSink) Play(context.Context, ports.AudioStream, func(), func(error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plays++
	return nil
}

func (m *mockVoiceSink) Pause(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauses++
	return nil
}

func (m *mockVoiceSink) Resume(context.Context) error {
	return nil
}

func (m *mockVoiceSink) Stop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	return nil
}

func (m *mockVoiceSink) playCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plays
}

type mockVoiceConnection struct {
	mu       sync.Mutex
	sink     *mockVoiceSink
	joinErr  error
	leaveErr error
	joins    []snowflake.ID // channel IDs
	leaves   int
}

func (m *mockVoiceConnection) JoinChannel(
	_ context.Context,
	_, channelID snowflake.ID,
) (ports.VoiceSink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.joinErr != nil {
		return nil, m.joinErr
	}
	m.joins = append(m.joins, channelID)
	return m.sink, nil
}

func (m *mockVoiceConnection) LeaveChannel(_ context.Context, _ snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaves++
	return m.leaveErr
}

func (m *mockVoiceConnection) joinCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.joins)
}

func (m *mockVoiceConnection) leaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaves
}

type mockVoiceStateProvider struct {
	channels map[snowflake.ID]snowflake.ID // userID -> channelID
	err      error
}

func (m *mockVoiceStateProvider) GetUserVoiceChannel(
	_, userID snowflake.ID,
) (*snowflake.ID, error) {
	if m.err != nil {
		return nil, m.err
	}
	channelID, ok := m.channels[userID]
	if !ok {
		return nil, nil
	}
	return &channelID, nil
}

type mockUserInfoProvider struct {
	names map[snowflake.ID]string
	err   error
}

func (m *mockUserInfoProvider) GetUserInfo(_, userID snowflake.ID) (*ports.UserInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &ports.UserInfo{DisplayName: m.names[userID]}, nil
}

// testEnv wires the use cases to a real player.Manager over mocks.
type testEnv struct {
	players    *player.Manager
	resolver   *mockTrackResolver
	sink       *mockVoiceSink
	connection *mockVoiceConnection
	voiceState *mockVoiceStateProvider
}

const (
	testGuildID        = snowflake.ID(1)
	testUserID         = snowflake.ID(2)
	testTextChannelID  = snowflake.ID(3)
	testVoiceChannelID = snowflake.ID(4)
)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		resolver:   &mockTrackResolver{},
		sink:       &mockVoiceSink{},
		voiceState: &mockVoiceStateProvider{channels: make(map[snowflake.ID]snowflake.ID)},
	}
	env.connection = &mockVoiceConnection{sink: env.sink}
	env.players = player.NewManager(player.ManagerConfig{
		Resolver: env.resolver,
		Voice:    env.connection,
	})
	t.Cleanup(func() {
		env.players.Shutdown(context.Background())
	})
	return env
}

// connect creates the guild's player attached to the mock sink.
func (e *testEnv) connect(t *testing.T) *player.Player {
	t.Helper()

	p := e.players.GetOrCreate(testGuildID)
	if err := p.Attach(context.Background(), e.sink, testVoiceChannelID); err != nil {
		t.Fatalf("failed to attach: %v", err)
	}
	return p
}

// connectWithTracks connects and submits tracks, waiting for the first to play.
func (e *testEnv) connectWithTracks(t *testing.T, ids ...string) *player.Player {
	t.Helper()

	p := e.connect(t)
	if len(ids) == 0 {
		return p
	}
	if _, err := p.Submit(context.Background(), mockTracks(ids...)...); err != nil {
		t.Fatalf("failed to submit: %v", err)
	}
	waitFor(t, "first track to play", func() bool { return e.sink.playCount() >= 1 })
	return p
}

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
