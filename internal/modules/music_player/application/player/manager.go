package player

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/voxbot/internal/modules/music_player/application/ports"
)

// Manager defaults.
const (
	DefaultIdleTimeout   = 5 * time.Minute
	DefaultSweepInterval = 30 * time.Second
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Resolver  ports.TrackResolver
	Voice     ports.VoiceConnection
	Publisher ports.EventPublisher // Optional

	OpenTimeout  time.Duration
	MaxQueueSize int

	// IdleTimeout is how long a player may sit idle with an empty queue
	// before it is evicted and its voice session released.
	IdleTimeout   time.Duration
	SweepInterval time.Duration

	// NewPlayer overrides player construction, mainly for tests.
	NewPlayer func(guildID snowflake.ID) *Player
}

// Manager maps guilds to their players. It is the single entry point for
// reaching a guild's Player.
type Manager struct {
	cfg ManagerConfig

	mu      sync.Mutex
	players map[snowflake.ID]*Player
	// Guilds whose voice session is being released. Closed when done.
	leaving map[snowflake.ID]chan struct{}

	stopSweep chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewManager creates a Manager. Call Start to enable idle eviction.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	return &Manager{
		cfg:       cfg,
		players:   make(map[snowflake.ID]*Player),
		leaving:   make(map[snowflake.ID]chan struct{}),
		stopSweep: make(chan struct{}),
	}
}

// GetOrCreate returns the guild's player, creating it on first use. While the
// guild's previous player is still leaving voice, it waits for that to finish
// so a new session is never torn down by the old one.
func (m *Manager) GetOrCreate(guildID snowflake.ID) *Player {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		done, ok := m.leaving[guildID]
		if !ok {
			break
		}
		m.mu.Unlock()
		<-done
		m.mu.Lock()
	}

	if p, ok := m.players[guildID]; ok && !isClosed(p) {
		return p
	}

	p := m.newPlayer(guildID)
	m.players[guildID] = p
	slog.Debug("created player", "guild", guildID)
	return p
}

// detach removes p from the map and marks the guild as leaving. It reports
// false, changing nothing, when the guild's entry is no longer p. The caller
// must call release once the voice session is gone.
func (m *Manager) detach(guildID snowflake.ID, p *Player) (release func(), ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.players[guildID] != p {
		return nil, false
	}
	delete(m.players, guildID)

	done := make(chan struct{})
	m.leaving[guildID] = done
	return func() {
		m.mu.Lock()
		delete(m.leaving, guildID)
		m.mu.Unlock()
		close(done)
	}, true
}

// Get returns the guild's player if one exists.
func (m *Manager) Get(guildID snowflake.ID) (*Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.players[guildID]
	if !ok || isClosed(p) {
		return nil, false
	}
	return p, true
}

// Remove closes the guild's player and leaves its voice channel.
// Returns false, without error, when the guild has no player.
func (m *Manager) Remove(ctx context.Context, guildID snowflake.ID) (bool, error) {
	m.mu.Lock()
	p, ok := m.players[guildID]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}

	release, ok := m.detach(guildID, p)
	if !ok {
		return false, nil
	}
	defer release()

	if err := p.Close(ctx); err != nil {
		slog.Warn("failed to close player", "guild", guildID, "error", err)
	}
	if m.cfg.Voice != nil {
		if err := m.cfg.Voice.LeaveChannel(ctx, guildID); err != nil {
			return true, err
		}
	}

	slog.Debug("removed player", "guild", guildID)
	return true, nil
}

// Len returns the number of live players.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.players)
}

// Start launches the idle sweeper.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		go m.sweepLoop()
	})
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopSweep:
			return
		case now := <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SweepInterval)
			if n := m.Sweep(ctx, now); n > 0 {
				slog.Info("evicted idle players", "count", n)
			}
			cancel()
		}
	}
}

// Sweep evicts every player that has been idle with an empty queue for at
// least IdleTimeout as of now. Returns the number evicted.
func (m *Manager) Sweep(ctx context.Context, now time.Time) int {
	m.mu.Lock()
	candidates := make(map[snowflake.ID]*Player, len(m.players))
	for guildID, p := range m.players {
		candidates[guildID] = p
	}
	m.mu.Unlock()

	evicted := 0
	for guildID, p := range candidates {
		if !p.CloseIfIdle(ctx, now, m.cfg.IdleTimeout) {
			continue
		}

		// A replaced entry owns the voice session now.
		release, ok := m.detach(guildID, p)
		if !ok {
			continue
		}
		if m.cfg.Voice != nil {
			if err := m.cfg.Voice.LeaveChannel(ctx, guildID); err != nil {
				slog.Warn("failed to leave voice channel for idle player", "guild", guildID, "error", err)
			}
		}
		release()
		evicted++
	}
	return evicted
}

// Shutdown stops the sweeper and removes every player.
func (m *Manager) Shutdown(ctx context.Context) {
	m.stopOnce.Do(func() {
		close(m.stopSweep)
	})

	m.mu.Lock()
	guildIDs := make([]snowflake.ID, 0, len(m.players))
	for guildID := range m.players {
		guildIDs = append(guildIDs, guildID)
	}
	m.mu.Unlock()

	for _, guildID := range guildIDs {
		if _, err := m.Remove(ctx, guildID); err != nil {
			slog.Warn("failed to remove player during shutdown", "guild", guildID, "error", err)
		}
	}
}

func (m *Manager) newPlayer(guildID snowflake.ID) *Player {
	if m.cfg.NewPlayer != nil {
		return m.cfg.NewPlayer(guildID)
	}
	return New(Config{
		GuildID:      guildID,
		Resolver:     m.cfg.Resolver,
		Publisher:    m.cfg.Publisher,
		OpenTimeout:  m.cfg.OpenTimeout,
		MaxQueueSize: m.cfg.MaxQueueSize,
	})
}

func isClosed(p *Player) bool {
	select {
	case <-p.Done():
		return true
	default:
		return false
	}
}
