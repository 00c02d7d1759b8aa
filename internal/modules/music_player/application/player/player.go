// Package player drives playback for one guild at a time.
//
// A Player owns a domain.Queue and serializes every command and every stream
// signal through a single goroutine. Stream work (opening, sink callbacks)
// happens elsewhere and reports back as messages tagged with the generation
// that started it; messages from an older generation are discarded.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/voxbot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/voxbot/internal/modules/music_player/domain"
)

// Default timeouts.
const (
	DefaultOpenTimeout = 15 * time.Second
	DefaultCallTimeout = 10 * time.Second
)

// Config configures a Player.
type Config struct {
	GuildID   snowflake.ID
	Resolver  ports.TrackResolver
	Publisher ports.EventPublisher // Optional

	// OpenTimeout bounds TrackResolver.Open. Exceeding it fails the track
	// with domain.ErrTimeout.
	OpenTimeout time.Duration

	// CallTimeout bounds sink calls the player makes on its own behalf.
	CallTimeout time.Duration

	// MaxQueueSize caps pending tracks. Zero means unlimited.
	MaxQueueSize int

	// Rand drives shuffle picks. Nil uses the global source.
	Rand *rand.Rand
}

type signalKind int

const (
	signalOpened signalKind = iota
	signalCancelled
	signalCompleted
	signalFailed
)

func (k signalKind) String() string {
	switch k {
	case signalOpened:
		return "opened"
	case signalCancelled:
		return "cancelled"
	case signalCompleted:
		return "completed"
	case signalFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// streamSignal is a report from stream work back to the player loop.
type streamSignal struct {
	gen    uint64
	kind   signalKind
	stream ports.AudioStream // Set for signalOpened
	err    error             // Set for signalFailed
}

// streamTask is the stream work for one generation.
type streamTask struct {
	gen     uint64
	track   domain.Track
	cancel  context.CancelFunc
	playing bool // Stream has been handed to the sink
}

// Player is the per-guild playback state machine.
type Player struct {
	guildID      snowflake.ID
	resolver     ports.TrackResolver
	publisher    ports.EventPublisher
	openTimeout  time.Duration
	callTimeout  time.Duration
	maxQueueSize int

	queue   *domain.Queue
	inbox   chan func()
	signals chan streamSignal
	done    chan struct{}

	// Owned by the loop goroutine.
	state                 domain.PlaybackState
	generation            uint64
	task                  *streamTask
	ackGen                uint64 // Generation whose signal ends PlaybackStopping
	sink                  ports.VoiceSink
	voiceChannelID        snowflake.ID
	notificationChannelID snowflake.ID
	idleSince             time.Time
	closed                bool
}

// New creates a Player and starts its loop.
func New(cfg Config) *Player {
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}

	queue := domain.NewQueue()
	if cfg.Rand != nil {
		queue = domain.NewQueueWithRand(cfg.Rand)
	}

	p := &Player{
		guildID:      cfg.GuildID,
		resolver:     cfg.Resolver,
		publisher:    cfg.Publisher,
		openTimeout:  cfg.OpenTimeout,
		callTimeout:  cfg.CallTimeout,
		maxQueueSize: cfg.MaxQueueSize,
		queue:        queue,
		inbox:        make(chan func()),
		signals:      make(chan streamSignal),
		done:         make(chan struct{}),
		state:        domain.PlaybackIdle,
		idleSince:    time.Now(),
	}

	go p.run()

	return p
}

// GuildID returns the guild this player belongs to.
func (p *Player) GuildID() snowflake.ID {
	return p.guildID
}

// Done is closed once the player has shut down.
func (p *Player) Done() <-chan struct{} {
	return p.done
}

func (p *Player) run() {
	defer close(p.done)

	for !p.closed {
		select {
		case cmd := <-p.inbox:
			cmd()
		case sig := <-p.signals:
			p.handleSignal(sig)
		}
	}
}

// exec runs fn on the loop goroutine and waits for it to finish.
func (p *Player) exec(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	cmd := func() {
		defer close(finished)
		fn()
	}

	select {
	case p.inbox <- cmd:
	case <-p.done:
		return domain.ErrPlayerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	<-finished
	return nil
}

// deliver hands a signal to the loop. An opened stream that can no longer be
// delivered is closed.
func (p *Player) deliver(sig streamSignal) {
	select {
	case p.signals <- sig:
	case <-p.done:
		if sig.stream != nil {
			_ = sig.stream.Close()
		}
	}
}

func (p *Player) loopContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), p.callTimeout)
}

// SubmitResult describes the outcome of Submit.
type SubmitResult struct {
	Position    int  // 1-based pending position of the first submitted track, 0 if it started
	QueueLength int  // Pending tracks after the submit
	Started     bool // Playback started because the player was idle
	NowPlaying  *domain.Track
}

// Submit appends tracks to the queue in order and starts playback if the
// player is idle.
func (p *Player) Submit(ctx context.Context, tracks ...domain.Track) (SubmitResult, error) {
	if len(tracks) == 0 {
		return SubmitResult{}, fmt.Errorf("%w: no tracks to submit", domain.ErrResolution)
	}

	var result SubmitResult
	var err error
	execErr := p.exec(ctx, func() {
		if p.sink == nil {
			err = domain.ErrNotConnected
			return
		}

		pending := p.queue.Len()
		if p.maxQueueSize > 0 && pending+len(tracks) > p.maxQueueSize {
			err = fmt.Errorf("%w: %d of %d slots used", domain.ErrQueueFull, pending, p.maxQueueSize)
			return
		}

		result.Position = pending + 1
		p.queue.Enqueue(tracks...)
		wasIdle := p.state == domain.PlaybackIdle

		p.publish(domain.TrackEnqueuedEvent{
			GuildID:  p.guildID,
			Tracks:   tracks,
			Position: result.Position,
			WasIdle:  wasIdle,
		})

		if wasIdle {
			p.advance()
			if current, ok := p.queue.Current(); ok {
				result.Started = true
				result.NowPlaying = &current
				if current.ID == tracks[0].ID {
					result.Position = 0
				}
			}
		}
		result.QueueLength = p.queue.Len()
	})
	if execErr != nil {
		return SubmitResult{}, execErr
	}
	return result, err
}

// SkipResult describes the outcome of Skip.
type SkipResult struct {
	Skipped    domain.Track
	Dropped    int // Pending tracks passed over in addition to Skipped; loop mode keeps them queued
	NowPlaying *domain.Track
}

// Skip stops the current track and passes over count-1 pending tracks, then
// advances. While a skipped track is still being torn down, count starts at
// the track that would play next. A count below 1 is treated as 1.
func (p *Player) Skip(ctx context.Context, count int) (SkipResult, error) {
	count = max(count, 1)

	var result SkipResult
	var err error
	execErr := p.exec(ctx, func() {
		switch p.state {
		case domain.PlaybackIdle:
			err = domain.ErrNothingPlaying
			return

		case domain.PlaybackStopping:
			if p.queue.Len() == 0 {
				err = domain.ErrNothingPlaying
				return
			}
			if skipped := p.queue.SkipPending(count); len(skipped) > 0 {
				result.Skipped = skipped[0]
				result.Dropped = len(skipped) - 1
			}
			return

		case domain.PlaybackStreaming, domain.PlaybackPaused:
			result.Skipped, _ = p.queue.Current()

			awaitAck := p.stopTask(ctx)
			p.queue.RequeueCurrentIfLoop()
			result.Dropped = len(p.queue.SkipPending(count - 1))
			p.publishFinished(result.Skipped)

			if awaitAck != 0 {
				p.queue.ClearCurrent()
				p.state = domain.PlaybackStopping
				p.ackGen = awaitAck
				return
			}
			p.advance()
			if current, ok := p.queue.Current(); ok && p.state.IsActive() {
				result.NowPlaying = &current
			}
		}
	})
	if execErr != nil {
		return SkipResult{}, execErr
	}

	if err == nil {
		slog.Debug("skipped track",
			"guild", p.guildID,
			"track", result.Skipped.Title,
			"dropped", result.Dropped,
		)
	}
	return result, err
}

// stopTask ends the active stream task and bumps the generation.
// Returns the task's generation if it was still opening, in which case its
// single terminal signal must be awaited; 0 otherwise.
func (p *Player) stopTask(ctx context.Context) uint64 {
	task := p.task
	p.task = nil
	p.generation++

	if task == nil {
		return 0
	}

	task.cancel()
	if task.playing {
		if err := p.sink.Stop(ctx); err != nil {
			slog.Warn("failed to stop voice sink", "guild", p.guildID, "error", err)
		}
		return 0
	}
	return task.gen
}

// Stop cancels the active stream and makes the player idle. When clear is
// true the pending tracks are dropped too. Stopping an idle player succeeds
// without doing anything. Returns whether a track was stopped.
func (p *Player) Stop(ctx context.Context, clear bool) (bool, error) {
	var stopped bool
	err := p.exec(ctx, func() {
		if clear {
			p.queue.Clear()
		}
		if p.state == domain.PlaybackIdle {
			return
		}

		var current domain.Track
		var ok bool
		if p.task != nil {
			current, ok = p.task.track, true
		} else {
			current, ok = p.queue.Current()
		}

		p.stopTask(ctx)
		if ok {
			p.publishFinished(current)
		}
		p.goIdle()
		stopped = true
	})
	return stopped, err
}

// Pause holds the current stream. With no current track it does nothing and
// returns false.
func (p *Player) Pause(ctx context.Context) (bool, error) {
	var applied bool
	var err error
	execErr := p.exec(ctx, func() {
		switch p.state {
		case domain.PlaybackIdle:
			return
		case domain.PlaybackStopping:
			err = domain.ErrTrackChanging
			return
		case domain.PlaybackPaused:
			err = fmt.Errorf("%w: cannot pause while %s", domain.ErrInvalidStateTransition, p.state)
			return
		case domain.PlaybackStreaming:
			if p.task != nil && p.task.playing {
				if err = p.sink.Pause(ctx); err != nil {
					return
				}
			}
			p.state = domain.PlaybackPaused
			applied = true
		}
	})
	if execErr != nil {
		return false, execErr
	}
	return applied, err
}

// Resume continues a paused stream. With no current track it does nothing
// and returns false.
func (p *Player) Resume(ctx context.Context) (bool, error) {
	var applied bool
	var err error
	execErr := p.exec(ctx, func() {
		switch p.state {
		case domain.PlaybackIdle:
			return
		case domain.PlaybackStopping:
			err = domain.ErrTrackChanging
			return
		case domain.PlaybackStreaming:
			err = fmt.Errorf("%w: cannot resume while %s", domain.ErrInvalidStateTransition, p.state)
			return
		case domain.PlaybackPaused:
			if p.task != nil && p.task.playing {
				if err = p.sink.Resume(ctx); err != nil {
					return
				}
			}
			p.state = domain.PlaybackStreaming
			applied = true
		}
	})
	if execErr != nil {
		return false, execErr
	}
	return applied, err
}

// SetMode changes the queue mode for subsequent track selections.
func (p *Player) SetMode(ctx context.Context, mode domain.QueueMode) error {
	return p.exec(ctx, func() {
		p.queue.SetMode(mode)
	})
}

// RemoveAt removes the pending track at the 0-based index.
func (p *Player) RemoveAt(ctx context.Context, index int) (domain.Track, error) {
	var track domain.Track
	var err error
	execErr := p.exec(ctx, func() {
		track, err = p.queue.RemoveAt(index)
	})
	if execErr != nil {
		return domain.Track{}, execErr
	}
	return track, err
}

// ClearQueue drops every pending track and returns how many were dropped.
// The current track keeps playing.
func (p *Player) ClearQueue(ctx context.Context) (int, error) {
	var n int
	err := p.exec(ctx, func() {
		n = p.queue.Clear()
	})
	return n, err
}

// Find returns pending tracks whose title contains query.
func (p *Player) Find(ctx context.Context, query string) ([]domain.QueueMatch, error) {
	var matches []domain.QueueMatch
	err := p.exec(ctx, func() {
		matches = p.queue.Find(query)
	})
	return matches, err
}

// Current returns the track selected for playback, if any.
func (p *Player) Current(ctx context.Context) (*domain.Track, error) {
	var current *domain.Track
	err := p.exec(ctx, func() {
		if !p.state.IsActive() {
			return
		}
		if track, ok := p.queue.Current(); ok {
			current = &track
		}
	})
	return current, err
}

// Status is a read-only view of the player.
type Status struct {
	State                 domain.PlaybackState
	Generation            uint64
	Queue                 domain.QueueSnapshot
	VoiceChannelID        snowflake.ID
	NotificationChannelID snowflake.ID
	Connected             bool
}

// Snapshot returns a consistent view of the player and its queue.
func (p *Player) Snapshot(ctx context.Context) (Status, error) {
	var status Status
	err := p.exec(ctx, func() {
		status = Status{
			State:                 p.state,
			Generation:            p.generation,
			Queue:                 p.queue.Snapshot(),
			VoiceChannelID:        p.voiceChannelID,
			NotificationChannelID: p.notificationChannelID,
			Connected:             p.sink != nil,
		}
		if !p.state.IsActive() {
			status.Queue.Current = nil
		}
	})
	return status, err
}

// Attach connects the player to a voice sink. Attaching a different sink
// while a track is active restarts that track on the new sink.
func (p *Player) Attach(ctx context.Context, sink ports.VoiceSink, voiceChannelID snowflake.ID) error {
	return p.exec(ctx, func() {
		previous := p.sink
		p.voiceChannelID = voiceChannelID
		if previous == sink {
			return
		}

		var restart *domain.Track
		if p.state.IsActive() && p.task != nil {
			track := p.task.track
			restart = &track
			p.stopTask(ctx)
		}
		p.sink = sink

		switch {
		case restart != nil:
			p.startStream(*restart)
		case p.state == domain.PlaybackIdle && p.queue.Len() > 0:
			p.advance()
		}
	})
}

// Detach stops playback and forgets the voice sink, keeping the queue.
func (p *Player) Detach(ctx context.Context) error {
	return p.exec(ctx, func() {
		if p.state.IsActive() {
			current, _ := p.queue.Current()
			p.stopTask(ctx)
			p.publishFinished(current)
			p.goIdle()
		}
		p.sink = nil
		p.voiceChannelID = 0
	})
}

// SetVoiceChannel records that the voice session moved to another channel
// without replacing the sink.
func (p *Player) SetVoiceChannel(ctx context.Context, voiceChannelID snowflake.ID) error {
	return p.exec(ctx, func() {
		if p.sink != nil {
			p.voiceChannelID = voiceChannelID
		}
	})
}

// SetNotificationChannel sets the text channel events refer to.
func (p *Player) SetNotificationChannel(ctx context.Context, channelID snowflake.ID) error {
	return p.exec(ctx, func() {
		p.notificationChannelID = channelID
	})
}

// CloseIfIdle shuts the player down if it has been idle with an empty queue
// for at least timeout. Returns whether it closed.
func (p *Player) CloseIfIdle(ctx context.Context, now time.Time, timeout time.Duration) bool {
	var closed bool
	err := p.exec(ctx, func() {
		if p.state != domain.PlaybackIdle || p.queue.Len() > 0 {
			return
		}
		if now.Sub(p.idleSince) < timeout {
			return
		}
		p.shutdown(ctx)
		closed = true
	})
	return err == nil && closed
}

// Close stops playback and shuts the player down. It is safe to call more than once.
func (p *Player) Close(ctx context.Context) error {
	err := p.exec(ctx, func() {
		p.shutdown(ctx)
	})
	if errors.Is(err, domain.ErrPlayerClosed) {
		return nil
	}
	if err != nil {
		return err
	}
	<-p.done
	return nil
}

func (p *Player) shutdown(ctx context.Context) {
	if p.state.IsActive() {
		current, ok := p.queue.Current()
		p.stopTask(ctx)
		if ok {
			p.publishFinished(current)
		}
		p.goIdle()
	}
	p.sink = nil
	p.closed = true
}

// handleSignal processes a report from stream work.
func (p *Player) handleSignal(sig streamSignal) {
	if p.state == domain.PlaybackStopping && sig.gen == p.ackGen {
		if sig.stream != nil {
			_ = sig.stream.Close()
		}
		p.ackGen = 0
		p.advance()
		return
	}

	if p.task == nil || sig.gen != p.generation || sig.gen != p.task.gen {
		if sig.stream != nil {
			_ = sig.stream.Close()
		}
		slog.Debug("discarded stale stream signal",
			"guild", p.guildID,
			"signal", sig.kind.String(),
			"signal_generation", sig.gen,
			"generation", p.generation,
		)
		return
	}

	switch sig.kind {
	case signalOpened:
		p.play(sig.stream)

	case signalCompleted:
		track := p.task.track
		p.task = nil
		p.publishFinished(track)
		p.queue.RequeueCurrentIfLoop()
		p.advance()

	case signalFailed:
		p.fail(sig.err)

	case signalCancelled:
		// Only stale tasks are ever cancelled.
		slog.Warn("received cancellation for current stream", "guild", p.guildID, "generation", sig.gen)
		p.fail(context.Canceled)
	}
}

// play hands an opened stream to the sink.
func (p *Player) play(stream ports.AudioStream) {
	ctx, cancel := p.loopContext()
	defer cancel()

	gen := p.task.gen
	onComplete := func() {
		go p.deliver(streamSignal{gen: gen, kind: signalCompleted})
	}
	onError := func(err error) {
		go p.deliver(streamSignal{gen: gen, kind: signalFailed, err: err})
	}

	if err := p.sink.Play(ctx, stream, onComplete, onError); err != nil {
		_ = stream.Close()
		p.fail(fmt.Errorf("%w: %w", domain.ErrStreamOpen, err))
		return
	}
	p.task.playing = true

	if p.state == domain.PlaybackPaused {
		if err := p.sink.Pause(ctx); err != nil {
			slog.Warn("failed to pause newly started stream", "guild", p.guildID, "error", err)
			p.state = domain.PlaybackStreaming
		}
	}

	p.publish(domain.PlaybackStartedEvent{
		GuildID:               p.guildID,
		Track:                 p.task.track,
		NotificationChannelID: p.notificationChannelID,
	})
}

// fail drops the current track and advances. The track is not retried and
// is not re-queued even in loop mode.
func (p *Player) fail(err error) {
	track := p.task.track
	if p.task.playing {
		ctx, cancel := p.loopContext()
		if stopErr := p.sink.Stop(ctx); stopErr != nil {
			slog.Warn("failed to stop voice sink after failure", "guild", p.guildID, "error", stopErr)
		}
		cancel()
	}
	p.task.cancel()
	p.task = nil

	slog.Warn("failed to play track",
		"guild", p.guildID,
		"track", track.Title,
		"error", err,
	)

	p.publish(domain.TrackFailedEvent{
		GuildID:               p.guildID,
		Track:                 track,
		NotificationChannelID: p.notificationChannelID,
		Err:                   err,
	})
	p.publishFinished(track)
	p.queue.ClearCurrent()
	p.advance()
}

// advance starts the next track or goes idle.
func (p *Player) advance() {
	if p.sink == nil {
		p.goIdle()
		return
	}

	track, ok := p.queue.Next()
	if !ok {
		p.goIdle()
		p.publish(domain.QueueExhaustedEvent{
			GuildID:               p.guildID,
			NotificationChannelID: p.notificationChannelID,
		})
		return
	}

	p.startStream(track)
}

// startStream begins opening track under a new generation.
func (p *Player) startStream(track domain.Track) {
	p.generation++
	gen := p.generation

	taskCtx, cancel := context.WithCancel(context.Background())
	p.task = &streamTask{gen: gen, track: track, cancel: cancel}
	p.state = domain.PlaybackStreaming

	slog.Debug("opening track", "guild", p.guildID, "track", track.Title, "generation", gen)

	go p.open(taskCtx, gen, track)
}

// open runs outside the loop and reports exactly one signal.
func (p *Player) open(taskCtx context.Context, gen uint64, track domain.Track) {
	openCtx, cancel := context.WithTimeout(taskCtx, p.openTimeout)
	defer cancel()

	stream, err := p.resolver.Open(openCtx, track)
	switch {
	case err == nil:
		p.deliver(streamSignal{gen: gen, kind: signalOpened, stream: stream})
	case taskCtx.Err() != nil:
		if stream != nil {
			_ = stream.Close()
		}
		p.deliver(streamSignal{gen: gen, kind: signalCancelled})
	case errors.Is(openCtx.Err(), context.DeadlineExceeded) || errors.Is(err, domain.ErrTimeout):
		p.deliver(streamSignal{gen: gen, kind: signalFailed, err: wrapTimeout(err)})
	default:
		p.deliver(streamSignal{gen: gen, kind: signalFailed, err: wrapStreamOpen(err)})
	}
}

func wrapTimeout(err error) error {
	if errors.Is(err, domain.ErrTimeout) {
		return err
	}
	return fmt.Errorf("%w: opening stream: %w", domain.ErrTimeout, err)
}

func wrapStreamOpen(err error) error {
	if errors.Is(err, domain.ErrStreamOpen) || errors.Is(err, domain.ErrResolution) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStreamOpen, err)
}

func (p *Player) goIdle() {
	p.task = nil
	p.ackGen = 0
	p.state = domain.PlaybackIdle
	p.idleSince = time.Now()
	p.queue.ClearCurrent()
}

func (p *Player) publishFinished(track domain.Track) {
	p.publish(domain.PlaybackFinishedEvent{
		GuildID:               p.guildID,
		Track:                 track,
		NotificationChannelID: p.notificationChannelID,
	})
}

func (p *Player) publish(event domain.Event) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(event); err != nil {
		slog.Warn("failed to publish event", "guild", p.guildID, "event", fmt.Sprintf("%T", event), "error", err)
	}
}
