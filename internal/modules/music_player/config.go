package music_player

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Audio backends.
const (
	BackendLavalink = "lavalink"
	BackendDirect   = "direct"
)

// Config holds the music player module configuration.
type Config struct {
	// Backend selects who fetches and streams audio: a Lavalink node, or
	// yt-dlp and an in-process libav transcoder.
	Backend string `env:"MUSIC_BACKEND" envDefault:"lavalink"`

	LavalinkNodeName string `env:"LAVALINK_NODE_NAME" envDefault:"default"`
	LavalinkAddress  string `env:"LAVALINK_ADDRESS"`
	LavalinkPassword string `env:"LAVALINK_PASSWORD"`
	LavalinkSecure   bool   `env:"LAVALINK_SECURE"`

	YtdlpProxy  string  `env:"YTDLP_PROXY"`
	YtdlpRate   float64 `env:"YTDLP_RATE" envDefault:"2"`
	YtdlpBurst  int     `env:"YTDLP_BURST" envDefault:"4"`
	OpusBitRate int     `env:"OPUS_BITRATE" envDefault:"96000"`

	ResolveTimeout    time.Duration `env:"RESOLVE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"5m"`
	IdleSweepInterval time.Duration `env:"IDLE_SWEEP_INTERVAL" envDefault:"30s"`
	MaxQueueSize      int           `env:"MAX_QUEUE_SIZE" envDefault:"256"`
	SearchResults     int           `env:"SEARCH_RESULTS" envDefault:"5"`
}

// Validate checks fields that depend on each other.
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))

	switch c.Backend {
	case BackendLavalink:
		if c.LavalinkAddress == "" {
			return errors.New("LAVALINK_ADDRESS is required for the lavalink backend")
		}
		if c.LavalinkPassword == "" {
			return errors.New("LAVALINK_PASSWORD is required for the lavalink backend")
		}
	case BackendDirect:
	default:
		return fmt.Errorf("unknown music backend %q", c.Backend)
	}

	if c.ResolveTimeout <= 0 {
		return fmt.Errorf("RESOLVE_TIMEOUT must be positive, got %s", c.ResolveTimeout)
	}
	if c.OpusBitRate < 0 {
		return fmt.Errorf("OPUS_BITRATE must not be negative, got %d", c.OpusBitRate)
	}
	if c.MaxQueueSize < 0 {
		return fmt.Errorf("MAX_QUEUE_SIZE must not be negative, got %d", c.MaxQueueSize)
	}
	return nil
}
