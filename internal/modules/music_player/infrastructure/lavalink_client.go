package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/disgolink/v3/disgolink"
	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/voxbot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/voxbot/internal/modules/music_player/domain"
)

// voiceConnectionTimeout is the maximum time to wait for voice connection to be established.
const voiceConnectionTimeout = 10 * time.Second

// LavalinkConfig contains Lavalink connection configuration.
type LavalinkConfig struct {
	NodeName string
	Address  string
	Password string
	Secure   bool
}

// lavalinkPlayback holds the callbacks of the track a guild's player is on.
type lavalinkPlayback struct {
	encoded    string
	onComplete func()
	onError    func(error)
}

// LavalinkAdapter wraps DisGoLink to implement the resolver and voice ports.
type LavalinkAdapter struct {
	link    disgolink.Client
	session *discordgo.Session
	botID   snowflake.ID

	voiceMu    sync.Mutex
	voice      map[snowflake.ID]*voiceCredentials
	handshakes map[snowflake.ID]*voiceHandshake

	playbackMu sync.Mutex
	playbacks  map[snowflake.ID]*lavalinkPlayback
}

var (
	_ ports.TrackResolver   = (*LavalinkAdapter)(nil)
	_ ports.VoiceConnection = (*LavalinkAdapter)(nil)
	_ ports.VoiceSink       = (*lavalinkSink)(nil)
)

func newLavalinkAdapter(session *discordgo.Session, botID snowflake.ID) *LavalinkAdapter {
	return &LavalinkAdapter{
		session:    session,
		botID:      botID,
		voice:      make(map[snowflake.ID]*voiceCredentials),
		handshakes: make(map[snowflake.ID]*voiceHandshake),
		playbacks:  make(map[snowflake.ID]*lavalinkPlayback),
	}
}

// NewLavalinkAdapter connects to the configured Lavalink node.
func NewLavalinkAdapter(
	ctx context.Context,
	session *discordgo.Session,
	config LavalinkConfig,
) (*LavalinkAdapter, error) {
	botID, err := snowflake.Parse(session.State.User.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bot ID: %w", err)
	}

	adapter := newLavalinkAdapter(session, botID)
	adapter.link = disgolink.New(botID,
		disgolink.WithListenerFunc(adapter.onTrackStart),
		disgolink.WithListenerFunc(adapter.onTrackEnd),
		disgolink.WithListenerFunc(adapter.onTrackException),
		disgolink.WithListenerFunc(adapter.onTrackStuck),
	)

	name := config.NodeName
	if name == "" {
		name = "main"
	}
	node, err := adapter.link.AddNode(ctx, disgolink.NodeConfig{
		Name:     name,
		Address:  config.Address,
		Password: config.Password,
		Secure:   config.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add Lavalink node: %w", err)
	}

	slog.Info("connected to Lavalink", "node", node.Config().Name, "address", config.Address)

	return adapter, nil
}

// Close disconnects from every Lavalink node.
func (c *LavalinkAdapter) Close() {
	if c.link != nil {
		c.link.Close()
	}
}

// JoinChannel connects to a voice channel.
// It waits for both VoiceStateUpdate and VoiceServerUpdate events before returning.
func (c *LavalinkAdapter) JoinChannel(
	ctx context.Context,
	guildID, channelID snowflake.ID,
) (ports.VoiceSink, error) {
	h := newVoiceHandshake()

	c.voiceMu.Lock()
	c.handshakes[guildID] = h
	c.voiceMu.Unlock()

	defer func() {
		c.voiceMu.Lock()
		if c.handshakes[guildID] == h {
			delete(c.handshakes, guildID)
		}
		c.voiceMu.Unlock()
	}()

	err := c.session.ChannelVoiceJoinManual(guildID.String(), channelID.String(), false, true)
	if err != nil {
		return nil, fmt.Errorf("failed to join voice channel: %w", err)
	}

	select {
	case <-h.ready:
		return &lavalinkSink{adapter: c, guildID: guildID}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled while waiting for voice connection: %w", ctx.Err())
	case <-time.After(voiceConnectionTimeout):
		return nil, fmt.Errorf("timeout waiting for voice connection")
	}
}

// LeaveChannel disconnects from the voice channel.
func (c *LavalinkAdapter) LeaveChannel(ctx context.Context, guildID snowflake.ID) error {
	c.takePlayback(guildID, "")

	if player := c.link.ExistingPlayer(guildID); player != nil {
		if err := player.Destroy(ctx); err != nil {
			slog.Warn("failed to destroy player", "guild", guildID, "error", err)
		}
	}

	err := c.session.ChannelVoiceJoinManual(guildID.String(), "", false, false)
	if err != nil {
		return fmt.Errorf("failed to leave voice channel: %w", err)
	}
	return nil
}

// Resolve loads tracks for the query from the best available node.
func (c *LavalinkAdapter) Resolve(
	ctx context.Context,
	query *domain.SearchQuery,
) (*domain.TrackList, error) {
	node := c.link.BestNode()
	if node == nil {
		return nil, fmt.Errorf("%w: no available Lavalink node", domain.ErrResolution)
	}

	result, err := node.LoadTracks(ctx, query.LavalinkQuery())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", domain.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrResolution, err)
	}

	return convertLoadResult(result, query)
}

// Open hands out the encoded track. The audio itself is fetched by the node
// once the sink plays it.
func (c *LavalinkAdapter) Open(ctx context.Context, track domain.Track) (ports.AudioStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	if track.Locator == "" {
		return nil, fmt.Errorf("%w: track %q has no encoded data", domain.ErrStreamOpen, track.Title)
	}
	if c.link != nil && c.link.BestNode() == nil {
		return nil, fmt.Errorf("%w: no available Lavalink node", domain.ErrStreamOpen)
	}
	return newEncodedTrackStream(track.Locator), nil
}

// convertLoadResult converts a Lavalink load result into a track list.
func convertLoadResult(
	result *lavalink.LoadResult,
	query *domain.SearchQuery,
) (*domain.TrackList, error) {
	switch data := result.Data.(type) {
	case lavalink.Track:
		return &domain.TrackList{
			Type:   domain.TrackListTypeTrack,
			URL:    urlOf(query),
			Tracks: []domain.Track{convertTrack(data)},
		}, nil

	case lavalink.Playlist:
		return &domain.TrackList{
			Type:   domain.TrackListTypePlaylist,
			Name:   data.Info.Name,
			URL:    urlOf(query),
			Tracks: convertTracks(data.Tracks),
		}, nil

	case lavalink.Search:
		return &domain.TrackList{
			Type:   domain.TrackListTypeSearch,
			Tracks: convertTracks(data),
		}, nil

	case lavalink.Empty:
		listType := domain.TrackListTypeSearch
		if query.IsURL {
			listType = domain.TrackListTypeTrack
		}
		return &domain.TrackList{Type: listType, URL: urlOf(query)}, nil

	case lavalink.Exception:
		return nil, fmt.Errorf("%w: %s", domain.ErrResolution, data.Message)

	default:
		return nil, fmt.Errorf("%w: unexpected load type %q", domain.ErrResolution, result.LoadType)
	}
}

func urlOf(query *domain.SearchQuery) string {
	if query.IsURL {
		return query.Query
	}
	return ""
}

func convertTracks(tracks []lavalink.Track) []domain.Track {
	out := make([]domain.Track, len(tracks))
	for i, track := range tracks {
		out[i] = convertTrack(track)
	}
	return out
}

// convertTrack converts a Lavalink track to a domain track.
// The Lavalink identifier is dropped; queue entries get their own ID.
func convertTrack(track lavalink.Track) domain.Track {
	info := track.Info
	return domain.Track{
		Locator:    track.Encoded,
		Title:      info.Title,
		Artist:     info.Author,
		Duration:   time.Duration(info.Length) * time.Millisecond,
		URI:        derefString(info.URI),
		ArtworkURL: derefString(info.ArtworkURL),
		SourceName: info.SourceName,
		IsStream:   info.IsStream,
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// encodedTrackStream carries a Lavalink encoded track from Open to Play.
type encodedTrackStream struct {
	*strings.Reader
	encoded string
}

func newEncodedTrackStream(encoded string) *encodedTrackStream {
	return &encodedTrackStream{Reader: strings.NewReader(encoded), encoded: encoded}
}

func (s *encodedTrackStream) Close() error { return nil }

func readEncoded(stream ports.AudioStream) (string, error) {
	defer stream.Close()

	if s, ok := stream.(*encodedTrackStream); ok {
		return s.encoded, nil
	}
	r, ok := stream.(io.Reader)
	if !ok {
		return "", fmt.Errorf("unsupported audio stream %T", stream)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// setPlayback registers the callbacks for the guild's new track, replacing
// any previous ones.
func (c *LavalinkAdapter) setPlayback(guildID snowflake.ID, pb *lavalinkPlayback) {
	c.playbackMu.Lock()
	defer c.playbackMu.Unlock()
	c.playbacks[guildID] = pb
}

// takePlayback removes and returns the guild's playback. A non-empty
// encoded must match the registered track, so events for an old track
// cannot end a newer one.
func (c *LavalinkAdapter) takePlayback(guildID snowflake.ID, encoded string) *lavalinkPlayback {
	c.playbackMu.Lock()
	defer c.playbackMu.Unlock()

	pb, ok := c.playbacks[guildID]
	if !ok {
		return nil
	}
	if encoded != "" && pb.encoded != encoded {
		return nil
	}
	delete(c.playbacks, guildID)
	return pb
}

func (c *LavalinkAdapter) finishPlayback(guildID snowflake.ID, encoded string, err error) {
	pb := c.takePlayback(guildID, encoded)
	if pb == nil {
		return
	}
	if err != nil {
		pb.onError(err)
		return
	}
	pb.onComplete()
}

func (c *LavalinkAdapter) onTrackStart(player disgolink.Player, event lavalink.TrackStartEvent) {
	slog.Debug("track started", "guild", player.GuildID(), "track", event.Track.Info.Title)
}

func (c *LavalinkAdapter) onTrackEnd(player disgolink.Player, event lavalink.TrackEndEvent) {
	slog.Debug("track ended", "guild", player.GuildID(), "reason", event.Reason)
	c.handleTrackEnd(player.GuildID(), event.Track.Encoded, event.Reason)
}

// handleTrackEnd reports natural ends and load failures. Stops and
// replacements were requested by the sink and report nothing.
func (c *LavalinkAdapter) handleTrackEnd(
	guildID snowflake.ID,
	encoded string,
	reason lavalink.TrackEndReason,
) {
	switch reason {
	case lavalink.TrackEndReasonFinished:
		c.finishPlayback(guildID, encoded, nil)
	case lavalink.TrackEndReasonLoadFailed:
		c.finishPlayback(guildID, encoded, fmt.Errorf("%w: lavalink failed to load the track", domain.ErrStreamOpen))
	case lavalink.TrackEndReasonStopped, lavalink.TrackEndReasonReplaced, lavalink.TrackEndReasonCleanup:
	}
}

func (c *LavalinkAdapter) onTrackException(
	player disgolink.Player,
	event lavalink.TrackExceptionEvent,
) {
	slog.Warn("track exception", "guild", player.GuildID(), "error", event.Exception.Message)
	c.finishPlayback(player.GuildID(), event.Track.Encoded,
		fmt.Errorf("playback failed: %s", event.Exception.Message))
}

func (c *LavalinkAdapter) onTrackStuck(player disgolink.Player, event lavalink.TrackStuckEvent) {
	slog.Warn("track stuck", "guild", player.GuildID(), "threshold", event.Threshold)
	c.finishPlayback(player.GuildID(), event.Track.Encoded,
		fmt.Errorf("playback stuck for %s", time.Duration(event.Threshold)*time.Millisecond))
}

// lavalinkSink drives one guild's Lavalink player.
type lavalinkSink struct {
	adapter *LavalinkAdapter
	guildID snowflake.ID
}

// Play starts the encoded track carried by stream.
func (s *lavalinkSink) Play(
	ctx context.Context,
	stream ports.AudioStream,
	onComplete func(),
	onError func(error),
) error {
	encoded, err := readEncoded(stream)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStreamOpen, err)
	}

	s.adapter.setPlayback(s.guildID, &lavalinkPlayback{
		encoded:    encoded,
		onComplete: onComplete,
		onError:    onError,
	})

	player := s.adapter.link.Player(s.guildID)
	// Use WithEncodedTrack to avoid userData:null issue
	if err := player.Update(ctx, lavalink.WithEncodedTrack(encoded), lavalink.WithPaused(false)); err != nil {
		s.adapter.takePlayback(s.guildID, encoded)
		return fmt.Errorf("failed to play track: %w", err)
	}
	return nil
}

// Pause pauses the current playback.
func (s *lavalinkSink) Pause(ctx context.Context) error {
	if err := s.adapter.link.Player(s.guildID).Update(ctx, lavalink.WithPaused(true)); err != nil {
		return fmt.Errorf("failed to pause playback: %w", err)
	}
	return nil
}

// Resume resumes the current playback.
func (s *lavalinkSink) Resume(ctx context.Context) error {
	if err := s.adapter.link.Player(s.guildID).Update(ctx, lavalink.WithPaused(false)); err != nil {
		return fmt.Errorf("failed to resume playback: %w", err)
	}
	return nil
}

// Stop ends the current playback without reporting it.
func (s *lavalinkSink) Stop(ctx context.Context) error {
	if s.adapter.takePlayback(s.guildID, "") == nil {
		return nil
	}
	if err := s.adapter.link.Player(s.guildID).Update(ctx, lavalink.WithNullTrack()); err != nil {
		return fmt.Errorf("failed to stop playback: %w", err)
	}
	return nil
}
