package music_player

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/caarlos0/env/v11"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/voxbot/internal/bot"
	"github.com/sglre6355/voxbot/internal/modules/music_player/application"
	"github.com/sglre6355/voxbot/internal/modules/music_player/application/player"
	"github.com/sglre6355/voxbot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/voxbot/internal/modules/music_player/application/usecases"
	"github.com/sglre6355/voxbot/internal/modules/music_player/infrastructure"
	"github.com/sglre6355/voxbot/internal/modules/music_player/presentation/discord"
)

// shutdownTimeout bounds how long leaving every voice channel may take.
const shutdownTimeout = 10 * time.Second

func init() {
	bot.Register(&MusicPlayerModule{})
}

// Compile-time interface checks.
var _ bot.ConfigurableModule = (*MusicPlayerModule)(nil)

// MusicPlayerModule provides music playback commands.
type MusicPlayerModule struct {
	config          *Config
	commandHandlers *discord.CommandHandlers
	autocomplete    *discord.AutocompleteHandler
	eventHandlers   *discord.EventHandlers

	// Set only for the lavalink backend.
	lavalinkAdapter *infrastructure.LavalinkAdapter

	players             *player.Manager
	eventBus            *infrastructure.ChannelEventBus
	notificationHandler *application.NotificationEventHandler
}

// Name returns the module name.
func (m *MusicPlayerModule) Name() string {
	return "music_player"
}

// Commands returns the slash commands for this module.
func (m *MusicPlayerModule) Commands() []*discordgo.ApplicationCommand {
	return discord.Commands()
}

// CommandHandlers returns the command handlers for this module.
func (m *MusicPlayerModule) CommandHandlers() map[string]bot.InteractionHandler {
	return map[string]bot.InteractionHandler{
		"join":    m.commandHandlers.HandleJoin,
		"leave":   m.commandHandlers.HandleLeave,
		"play":    m.commandHandlers.HandlePlay,
		"skip":    m.commandHandlers.HandleSkip,
		"pause":   m.commandHandlers.HandlePause,
		"resume":  m.commandHandlers.HandleResume,
		"stop":    m.commandHandlers.HandleStop,
		"current": m.commandHandlers.HandleCurrent,
		"mode":    m.commandHandlers.HandleMode,
		"clear":   m.commandHandlers.HandleClear,
		"queue":   m.commandHandlers.HandleQueue,
	}
}

// EventHandlers returns the event handlers for this module.
func (m *MusicPlayerModule) EventHandlers() []bot.EventHandler {
	return []bot.EventHandler{
		func(s *discordgo.Session, event *discordgo.VoiceServerUpdate) {
			m.handleVoiceServerUpdate(s, event)
		},
		func(s *discordgo.Session, event *discordgo.VoiceStateUpdate) {
			m.handleVoiceStateUpdate(s, event)
		},
		func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			m.handleInteractionCreate(s, i)
		},
	}
}

// LoadConfig loads module-specific configuration from environment variables.
func (m *MusicPlayerModule) LoadConfig() error {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.config = cfg
	return nil
}

// Init initializes the module.
func (m *MusicPlayerModule) Init(deps bot.ModuleDependencies) error {
	if m.config == nil {
		if err := m.LoadConfig(); err != nil {
			return err
		}
	}

	// Check if session is available
	if deps.Session == nil {
		slog.Warn("music_player module initialized without session, playback disabled")
		m.initWithoutSession()
		return nil
	}

	return m.initWithSession(deps)
}

// initWithoutSession wires the command surface over a player manager with no
// audio backend. Every command reports that the bot is not connected.
func (m *MusicPlayerModule) initWithoutSession() {
	m.players = player.NewManager(player.ManagerConfig{MaxQueueSize: m.config.MaxQueueSize})
	m.wireServices(nil, nil, nil, snowflake.ID(0))
}

func (m *MusicPlayerModule) initWithSession(deps bot.ModuleDependencies) error {
	resolver, voice, err := m.newBackend(deps.Session)
	if err != nil {
		return err
	}

	m.eventBus = infrastructure.NewChannelEventBus(infrastructure.DefaultEventBufferSize)

	m.players = player.NewManager(player.ManagerConfig{
		Resolver:      resolver,
		Voice:         voice,
		Publisher:     m.eventBus,
		OpenTimeout:   m.config.ResolveTimeout,
		MaxQueueSize:  m.config.MaxQueueSize,
		IdleTimeout:   m.config.IdleTimeout,
		SweepInterval: m.config.IdleSweepInterval,
	})
	m.players.Start()

	userInfo := infrastructure.NewDiscordUserInfoProvider(deps.Session)
	notifier := infrastructure.NewNotifier(deps.Session)

	m.notificationHandler = application.NewNotificationEventHandler(
		m.players,
		m.eventBus,
		notifier,
		userInfo,
	)
	if err := m.notificationHandler.Start(); err != nil {
		return err
	}

	botID, err := snowflake.Parse(deps.Session.State.User.ID)
	if err != nil {
		return err
	}

	trackLoader := usecases.NewTrackLoaderService(
		resolver,
		usecases.WithUserInfo(userInfo),
		usecases.WithResolveTimeout(m.config.ResolveTimeout),
		usecases.WithSearchLimit(m.config.SearchResults),
	)
	m.wireServices(
		trackLoader,
		voice,
		infrastructure.NewVoiceStateProvider(deps.Session),
		botID,
	)

	slog.Info("music_player module initialized",
		"backend", m.config.Backend,
		"max_queue_size", m.config.MaxQueueSize,
		"idle_timeout", m.config.IdleTimeout,
	)

	return nil
}

// newBackend builds the track resolver and voice connection for the
// configured backend.
func (m *MusicPlayerModule) newBackend(
	session *discordgo.Session,
) (ports.TrackResolver, ports.VoiceConnection, error) {
	switch m.config.Backend {
	case BackendLavalink:
		ctx, cancel := context.WithTimeout(context.Background(), m.config.ResolveTimeout)
		defer cancel()

		adapter, err := infrastructure.NewLavalinkAdapter(ctx, session, infrastructure.LavalinkConfig{
			NodeName: m.config.LavalinkNodeName,
			Address:  m.config.LavalinkAddress,
			Password: m.config.LavalinkPassword,
			Secure:   m.config.LavalinkSecure,
		})
		if err != nil {
			return nil, nil, err
		}
		m.lavalinkAdapter = adapter
		return adapter, adapter, nil

	case BackendDirect:
		resolver := infrastructure.NewYtdlpResolver(infrastructure.YtdlpConfig{
			Proxy:   m.config.YtdlpProxy,
			BitRate: m.config.OpusBitRate,
			Rate:    m.config.YtdlpRate,
			Burst:   m.config.YtdlpBurst,
		})
		return resolver, infrastructure.NewDiscordVoice(session), nil

	default:
		return nil, nil, fmt.Errorf("unknown music backend %q", m.config.Backend)
	}
}

func (m *MusicPlayerModule) wireServices(
	trackLoader *usecases.TrackLoaderService,
	voice ports.VoiceConnection,
	voiceState ports.VoiceStateProvider,
	botID snowflake.ID,
) {
	if trackLoader == nil {
		trackLoader = usecases.NewTrackLoaderService(nil)
	}

	voiceChannel := usecases.NewVoiceChannelService(m.players, voice, voiceState)
	playback := usecases.NewPlaybackService(m.players)
	queue := usecases.NewQueueService(m.players)
	notificationChannel := usecases.NewNotificationChannelService(m.players)

	m.commandHandlers = discord.NewCommandHandlers(
		voiceChannel,
		playback,
		queue,
		trackLoader,
		notificationChannel,
	)
	m.autocomplete = discord.NewAutocompleteHandler(
		usecases.NewAutocompleteService(m.players, trackLoader),
	)
	m.eventHandlers = discord.NewEventHandlers(botID, voiceChannel)
}

// Shutdown cleans up module resources.
func (m *MusicPlayerModule) Shutdown() error {
	// Leave voice first so the final playback events still reach the bus
	if m.players != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		m.players.Shutdown(ctx)
		cancel()
	}

	if m.eventBus != nil {
		m.eventBus.Close()
	}

	if m.lavalinkAdapter != nil {
		m.lavalinkAdapter.Close()
	}

	return nil
}

// Event handlers.

func (m *MusicPlayerModule) handleVoiceServerUpdate(
	_ *discordgo.Session,
	event *discordgo.VoiceServerUpdate,
) {
	if m.lavalinkAdapter != nil {
		m.lavalinkAdapter.OnVoiceServerUpdate(event)
	}
}

func (m *MusicPlayerModule) handleVoiceStateUpdate(
	s *discordgo.Session,
	event *discordgo.VoiceStateUpdate,
) {
	if m.lavalinkAdapter != nil {
		m.lavalinkAdapter.OnVoiceStateUpdate(event)
	}
	if m.eventHandlers != nil {
		m.eventHandlers.HandleVoiceStateUpdate(s, event)
	}
}

func (m *MusicPlayerModule) handleInteractionCreate(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	if i.Type != discordgo.InteractionApplicationCommandAutocomplete {
		return
	}

	data := i.ApplicationCommandData()

	switch data.Name {
	case "play":
		m.autocomplete.HandlePlay(s, i)
	case "queue":
		if len(data.Options) > 0 && data.Options[0].Name == "remove" {
			m.autocomplete.HandleQueueRemove(s, i)
		}
	}
}
