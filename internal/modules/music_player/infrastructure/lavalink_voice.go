package infrastructure

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
)

// voiceHandshake is closed once both halves of a voice join have arrived.
type voiceHandshake struct {
	mu        sync.Mutex
	gotState  bool
	gotServer bool
	once      sync.Once
	ready     chan struct{}
}

func newVoiceHandshake() *voiceHandshake {
	return &voiceHandshake{ready: make(chan struct{})}
}

func (h *voiceHandshake) mark(isState bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if isState {
		h.gotState = true
	} else {
		h.gotServer = true
	}
	if h.gotState && h.gotServer {
		h.once.Do(func() { close(h.ready) })
	}
}

// voiceCredentials collects the session and server parts of a voice
// connection so Lavalink always receives them together and in order.
// Forwarding a half makes Lavalink reject the player with a partial state.
type voiceCredentials struct {
	mu sync.Mutex

	hasState  bool
	channelID *snowflake.ID
	sessionID string

	hasServer bool
	token     string
	endpoint  string
}

type voiceUpdate struct {
	channelID *snowflake.ID
	sessionID string
	token     string
	endpoint  string
}

// withState stores the session half. It returns the complete update and
// resets when the server half is already present.
func (v *voiceCredentials) withState(channelID *snowflake.ID, sessionID string) (voiceUpdate, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.hasState = true
	v.channelID = channelID
	v.sessionID = sessionID
	return v.takeLocked()
}

// withServer stores the server half, see withState.
func (v *voiceCredentials) withServer(token, endpoint string) (voiceUpdate, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.hasServer = true
	v.token = token
	v.endpoint = endpoint
	return v.takeLocked()
}

func (v *voiceCredentials) takeLocked() (voiceUpdate, bool) {
	if !v.hasState || !v.hasServer {
		return voiceUpdate{}, false
	}
	u := voiceUpdate{
		channelID: v.channelID,
		sessionID: v.sessionID,
		token:     v.token,
		endpoint:  v.endpoint,
	}
	*v = voiceCredentials{}
	return u, true
}

// OnVoiceServerUpdate forwards Discord voice server updates to Lavalink.
// It must be registered as a session handler.
func (c *LavalinkAdapter) OnVoiceServerUpdate(event *discordgo.VoiceServerUpdate) {
	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		slog.Error("failed to parse guild ID in voice server update", "error", err)
		return
	}

	if u, ok := c.credentials(guildID).withServer(event.Token, event.Endpoint); ok {
		c.forwardVoiceUpdate(guildID, u)
	}
	c.markHandshake(guildID, false)
}

// OnVoiceStateUpdate forwards the bot's own voice state updates to Lavalink.
// It must be registered as a session handler.
func (c *LavalinkAdapter) OnVoiceStateUpdate(event *discordgo.VoiceStateUpdate) {
	if event.UserID != c.botID.String() {
		return
	}

	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		slog.Error("failed to parse guild ID in voice state update", "error", err)
		return
	}

	if event.ChannelID == "" {
		c.link.OnVoiceStateUpdate(context.Background(), guildID, nil, event.SessionID)
		c.dropCredentials(guildID)
		return
	}

	channelID, err := snowflake.Parse(event.ChannelID)
	if err != nil {
		slog.Error("failed to parse channel ID in voice state update", "error", err)
		return
	}

	if u, ok := c.credentials(guildID).withState(&channelID, event.SessionID); ok {
		c.forwardVoiceUpdate(guildID, u)
	}
	c.markHandshake(guildID, true)
}

func (c *LavalinkAdapter) credentials(guildID snowflake.ID) *voiceCredentials {
	c.voiceMu.Lock()
	defer c.voiceMu.Unlock()

	v, ok := c.voice[guildID]
	if !ok {
		v = &voiceCredentials{}
		c.voice[guildID] = v
	}
	return v
}

func (c *LavalinkAdapter) dropCredentials(guildID snowflake.ID) {
	c.voiceMu.Lock()
	defer c.voiceMu.Unlock()
	delete(c.voice, guildID)
}

func (c *LavalinkAdapter) markHandshake(guildID snowflake.ID, isState bool) {
	c.voiceMu.Lock()
	h := c.handshakes[guildID]
	c.voiceMu.Unlock()

	if h != nil {
		h.mark(isState)
	}
}

func (c *LavalinkAdapter) forwardVoiceUpdate(guildID snowflake.ID, u voiceUpdate) {
	slog.Debug("forwarding voice update to lavalink",
		"guild", guildID,
		"channel", u.channelID,
		"hasSessionID", u.sessionID != "",
	)

	c.link.OnVoiceStateUpdate(context.Background(), guildID, u.channelID, u.sessionID)
	c.link.OnVoiceServerUpdate(context.Background(), guildID, u.token, u.endpoint)
}
