package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/voxbot/internal/modules/music_player/application/ports"
)

// DiscordVoice connects to voice channels through the gateway session and
// sends Opus frames directly.
type DiscordVoice struct {
	session *discordgo.Session

	mu    sync.Mutex
	sinks map[snowflake.ID]*discordSink
}

var (
	_ ports.VoiceConnection = (*DiscordVoice)(nil)
	_ ports.VoiceSink       = (*discordSink)(nil)
)

// NewDiscordVoice creates a new DiscordVoice.
func NewDiscordVoice(session *discordgo.Session) *DiscordVoice {
	return &DiscordVoice{
		session: session,
		sinks:   make(map[snowflake.ID]*discordSink),
	}
}

// JoinChannel connects to a voice channel, or moves an existing connection.
func (d *DiscordVoice) JoinChannel(
	ctx context.Context,
	guildID, channelID snowflake.ID,
) (ports.VoiceSink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vc, err := d.session.ChannelVoiceJoin(guildID.String(), channelID.String(), false, true)
	if err != nil {
		return nil, fmt.Errorf("failed to join voice channel: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	sink, ok := d.sinks[guildID]
	if !ok {
		sink = &discordSink{guildID: guildID}
		d.sinks[guildID] = sink
	}
	sink.setConnection(vc)
	return sink, nil
}

// LeaveChannel stops playback and disconnects from the voice channel.
func (d *DiscordVoice) LeaveChannel(ctx context.Context, guildID snowflake.ID) error {
	d.mu.Lock()
	sink := d.sinks[guildID]
	delete(d.sinks, guildID)
	d.mu.Unlock()

	if sink == nil {
		return nil
	}
	_ = sink.Stop(ctx)

	vc := sink.connection()
	if vc == nil {
		return nil
	}
	if err := vc.Disconnect(); err != nil {
		return fmt.Errorf("failed to leave voice channel: %w", err)
	}
	return nil
}

// discordSink feeds opus packets of one stream at a time to a voice connection.
type discordSink struct {
	guildID snowflake.ID

	mu      sync.Mutex
	vc      *discordgo.VoiceConnection
	current *sendSession
}

func (s *discordSink) setConnection(vc *discordgo.VoiceConnection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vc = vc
}

func (s *discordSink) connection() *discordgo.VoiceConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vc
}

// Play stops any running stream and starts sending the new one.
func (s *discordSink) Play(
	_ context.Context,
	stream ports.AudioStream,
	onComplete func(),
	onError func(error),
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	source, ok := stream.(opusPacketSource)
	if !ok {
		_ = stream.Close()
		return fmt.Errorf("unsupported audio stream %T", stream)
	}
	if s.vc == nil {
		_ = stream.Close()
		return errors.New("voice connection is not ready")
	}
	if s.current != nil {
		s.current.stop()
	}

	session := newSendSession(stream, source, onComplete, onError)
	s.current = session
	go session.run(s.guildID, s.vc.OpusSend, s.vc.Speaking)
	return nil
}

// Pause holds the running stream.
func (s *discordSink) Pause(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.current.setPaused(true)
	}
	return nil
}

// Resume continues a held stream.
func (s *discordSink) Resume(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.current.setPaused(false)
	}
	return nil
}

// Stop ends the running stream without reporting it.
func (s *discordSink) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.current.stop()
		s.current = nil
	}
	return nil
}

// sendSession is one Play call: a send loop and its pause and stop state.
type sendSession struct {
	stream     ports.AudioStream
	source     opusPacketSource
	onComplete func()
	onError    func(error)

	mu       sync.Mutex
	stopped  bool
	finished bool
	paused   bool
	wake     chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

func newSendSession(
	stream ports.AudioStream,
	source opusPacketSource,
	onComplete func(),
	onError func(error),
) *sendSession {
	return &sendSession{
		stream:     stream,
		source:     source,
		onComplete: onComplete,
		onError:    onError,
		wake:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (ss *sendSession) closeStream() {
	ss.closeOnce.Do(func() { ss.stream.Close() })
}

func (ss *sendSession) stop() {
	ss.mu.Lock()
	if ss.stopped {
		ss.mu.Unlock()
		return
	}
	ss.stopped = true
	close(ss.done)
	ss.mu.Unlock()

	ss.closeStream()
}

func (ss *sendSession) setPaused(paused bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.paused == paused {
		return
	}
	ss.paused = paused
	if !paused {
		close(ss.wake)
		ss.wake = make(chan struct{})
	}
}

// waitWhilePaused blocks while paused and reports false once stopped.
func (ss *sendSession) waitWhilePaused() bool {
	for {
		ss.mu.Lock()
		if ss.stopped {
			ss.mu.Unlock()
			return false
		}
		if !ss.paused {
			ss.mu.Unlock()
			return true
		}
		wake := ss.wake
		ss.mu.Unlock()

		select {
		case <-wake:
		case <-ss.done:
			return false
		}
	}
}

// finish reports the outcome unless the session was stopped first.
func (ss *sendSession) finish(err error) {
	ss.mu.Lock()
	if ss.stopped || ss.finished {
		ss.mu.Unlock()
		return
	}
	ss.finished = true
	ss.mu.Unlock()

	if err != nil {
		ss.onError(err)
		return
	}
	ss.onComplete()
}

func (ss *sendSession) run(guildID snowflake.ID, out chan<- []byte, speaking func(bool) error) {
	defer ss.closeStream()

	if err := speaking(true); err != nil {
		slog.Debug("failed to set speaking", "guild", guildID, "error", err)
	}
	defer func() {
		if err := speaking(false); err != nil {
			slog.Debug("failed to clear speaking", "guild", guildID, "error", err)
		}
	}()

	for {
		if !ss.waitWhilePaused() {
			return
		}

		packet, err := ss.source.NextOpusPacket()
		if errors.Is(err, io.EOF) {
			ss.finish(nil)
			return
		}
		if err != nil {
			ss.finish(fmt.Errorf("audio stream broke: %w", err))
			return
		}

		select {
		case out <- packet:
		case <-ss.done:
			return
		}
	}
}
