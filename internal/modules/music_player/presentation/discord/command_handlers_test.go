package discord

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sglre6355/voxbot/internal/bot"
	"github.com/sglre6355/voxbot/internal/modules/music_player/application/player"
	"github.com/sglre6355/voxbot/internal/modules/music_player/application/usecases"
	"github.com/sglre6355/voxbot/internal/modules/music_player/domain"
)

func commandInteraction(
	name string,
	options ...*discordgo.ApplicationCommandInteractionDataOption,
) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:      discordgo.InteractionApplicationCommand,
			GuildID:   "1",
			ChannelID: "3",
			Member: &discordgo.Member{
				User: &discordgo.User{ID: "2", Username: "alice"},
			},
			Data: discordgo.ApplicationCommandInteractionData{
				Name:    name,
				Options: options,
			},
		},
	}
}

func newTestHandlers() *CommandHandlers {
	players := player.NewManager(player.ManagerConfig{})
	return NewCommandHandlers(
		usecases.NewVoiceChannelService(players, nil, nil),
		usecases.NewPlaybackService(players),
		usecases.NewQueueService(players),
		usecases.NewTrackLoaderService(nil),
		usecases.NewNotificationChannelService(players),
	)
}

func embedOf(t *testing.T, r *bot.MockResponder) *discordgo.MessageEmbed {
	t.Helper()
	if r.LastResponse == nil || r.LastResponse.Data == nil || len(r.LastResponse.Data.Embeds) == 0 {
		t.Fatal("expected an embed response")
	}
	return r.LastResponse.Data.Embeds[0]
}

func TestCommandHandlers_NotConnected(t *testing.T) {
	h := newTestHandlers()

	tests := []struct {
		name    string
		handler bot.InteractionHandler
		i       *discordgo.InteractionCreate
	}{
		{"pause", h.HandlePause, commandInteraction("pause")},
		{"resume", h.HandleResume, commandInteraction("resume")},
		{"skip", h.HandleSkip, commandInteraction("skip")},
		{"stop", h.HandleStop, commandInteraction("stop")},
		{"current", h.HandleCurrent, commandInteraction("current")},
		{"leave", h.HandleLeave, commandInteraction("leave")},
		{"clear", h.HandleClear, commandInteraction("clear")},
		{"queue list", h.HandleQueue, commandInteraction("queue",
			&discordgo.ApplicationCommandInteractionDataOption{
				Name: "list",
				Type: discordgo.ApplicationCommandOptionSubCommand,
			})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &bot.MockResponder{}
			if err := tt.handler(nil, tt.i, r); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			embed := embedOf(t, r)
			if embed.Color != colorError {
				t.Errorf("expected error color, got %#x", embed.Color)
			}
			if embed.Description != "I'm not connected to a voice channel." {
				t.Errorf("unexpected description %q", embed.Description)
			}
		})
	}
}

func TestCommandHandlers_PlayWithoutBackend(t *testing.T) {
	h := newTestHandlers()
	r := &bot.MockResponder{}

	i := commandInteraction("play", &discordgo.ApplicationCommandInteractionDataOption{
		Name:  "query",
		Type:  discordgo.ApplicationCommandOptionString,
		Value: "lofi",
	})
	if err := h.HandlePlay(nil, i, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !r.Deferred {
		t.Error("expected the response to be deferred")
	}
	if r.LastEdit == nil || r.LastEdit.Embeds == nil || len(*r.LastEdit.Embeds) == 0 {
		t.Fatal("expected an edited embed")
	}
	if got := (*r.LastEdit.Embeds)[0].Description; got != "Voice playback is not available right now." {
		t.Errorf("unexpected description %q", got)
	}
}

func TestCommandHandlers_InvalidMode(t *testing.T) {
	h := newTestHandlers()
	r := &bot.MockResponder{}

	i := commandInteraction("mode", &discordgo.ApplicationCommandInteractionDataOption{
		Name:  "mode",
		Type:  discordgo.ApplicationCommandOptionString,
		Value: "repeat-one",
	})
	if err := h.HandleMode(nil, i, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := embedOf(t, r).Description; got != "Unknown queue mode." {
		t.Errorf("expected unknown mode message, got %q", got)
	}
}

func TestCommandHandlers_QueueUnknownSubcommand(t *testing.T) {
	h := newTestHandlers()
	r := &bot.MockResponder{}

	i := commandInteraction("queue", &discordgo.ApplicationCommandInteractionDataOption{
		Name: "restart",
		Type: discordgo.ApplicationCommandOptionSubCommand,
	})
	if err := h.HandleQueue(nil, i, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := embedOf(t, r).Description; got != "Unknown subcommand" {
		t.Errorf("expected unknown subcommand, got %q", got)
	}
}

func TestParseInteraction(t *testing.T) {
	ids, problem := parseInteraction(commandInteraction("play"))
	if problem != "" {
		t.Fatalf("unexpected problem %q", problem)
	}
	if ids.guildID != 1 || ids.userID != 2 || ids.channelID != 3 {
		t.Errorf("unexpected ids %+v", ids)
	}

	dm := commandInteraction("play")
	dm.Member = nil
	if _, problem := parseInteraction(dm); problem == "" {
		t.Error("expected a problem without a guild member")
	}

	badGuild := commandInteraction("play")
	badGuild.GuildID = ""
	if _, problem := parseInteraction(badGuild); problem != "Invalid guild" {
		t.Errorf("expected invalid guild, got %q", problem)
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{usecases.ErrUserNotInVoice, "You must be in a voice channel."},
		{usecases.ErrAlreadyPaused, "Playback is already paused."},
		{usecases.ErrTrackChanging, "The track is changing, try again in a moment."},
		{usecases.ErrInvalidPosition, "There is no track at that position."},
		{fmt.Errorf("add: %w", domain.ErrQueueFull), "The queue is full."},
		{fmt.Errorf("%w: slow", domain.ErrTimeout), "Timed out while looking up the track."},
		{fmt.Errorf("%w: gone", domain.ErrResolution), "Could not load that track."},
		{errors.New("socket closed"), "Something went wrong."},
	}

	for _, tt := range tests {
		if got := userMessage(tt.err); got != tt.want {
			t.Errorf("userMessage(%v): expected %q, got %q", tt.err, tt.want, got)
		}
	}
}

func TestDescribeAdded(t *testing.T) {
	track := domain.Track{Title: "Song", URI: "https://example.com/song"}

	tests := []struct {
		name   string
		loaded *usecases.LoadTracksOutput
		added  *usecases.QueueAddOutput
		want   string
	}{
		{
			name:   "started",
			loaded: &usecases.LoadTracksOutput{Tracks: []domain.Track{track}},
			added:  &usecases.QueueAddOutput{Started: true},
			want:   "Now playing [Song](https://example.com/song).",
		},
		{
			name:   "queued",
			loaded: &usecases.LoadTracksOutput{Tracks: []domain.Track{track}},
			added:  &usecases.QueueAddOutput{Position: 3},
			want:   "Added [Song](https://example.com/song) to the queue at position 3.",
		},
		{
			name: "playlist",
			loaded: &usecases.LoadTracksOutput{
				Tracks:       []domain.Track{track, track},
				IsPlaylist:   true,
				PlaylistName: "Mix",
			},
			added: &usecases.QueueAddOutput{Position: 1},
			want:  "Added **2 tracks** from playlist **Mix** to the queue.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeAdded(tt.loaded, tt.added); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestQueueEmbed(t *testing.T) {
	current := domain.Track{Title: "Now", Artist: "A"}
	output := &usecases.QueueListOutput{
		CurrentTrack: &current,
		Tracks: []domain.Track{
			{Title: "Eleven", URI: "https://example.com/11"},
			{Title: "Twelve"},
		},
		Mode:        domain.QueueModeShuffle,
		State:       domain.PlaybackPaused,
		StartIndex:  11,
		TotalTracks: 12,
		CurrentPage: 2,
		TotalPages:  2,
	}

	embed := queueEmbed(output)

	if embed.Title != "Queue \U0001F500" {
		t.Errorf("expected shuffle title, got %q", embed.Title)
	}
	for _, want := range []string{
		"### Paused",
		"**Now** - A",
		"11\\. [Eleven](https://example.com/11) - Unknown",
		"12\\. **Twelve** - Unknown",
	} {
		if !strings.Contains(embed.Description, want) {
			t.Errorf("expected description to contain %q, got:\n%s", want, embed.Description)
		}
	}
	if embed.Footer.Text != "Page 2/2 · 12 upcoming" {
		t.Errorf("unexpected footer %q", embed.Footer.Text)
	}
}

func TestQueueEmbed_Empty(t *testing.T) {
	embed := queueEmbed(&usecases.QueueListOutput{CurrentPage: 1, TotalPages: 1})
	if embed.Description != "Queue is empty." {
		t.Errorf("expected empty queue message, got %q", embed.Description)
	}
}

func TestFindEmbed_CapsResults(t *testing.T) {
	matches := make([]usecases.QueueFindMatch, maxFindResults+3)
	for i := range matches {
		matches[i] = usecases.QueueFindMatch{Position: i + 1, Track: domain.Track{Title: "Song"}}
	}

	embed := findEmbed("song", matches)

	if got := strings.Count(embed.Description, "**Song**"); got != maxFindResults {
		t.Errorf("expected %d listed matches, got %d", maxFindResults, got)
	}
	if !strings.Contains(embed.Description, "and 3 more") {
		t.Errorf("expected overflow note, got:\n%s", embed.Description)
	}
}

func TestCurrentEmbed(t *testing.T) {
	embed := currentEmbed(&usecases.NowPlayingOutput{
		Track: domain.Track{
			Title:       "Song",
			Duration:    90 * time.Second,
			SourceName:  "youtube",
			RequesterID: 2,
		},
		State:        domain.PlaybackStreaming,
		Mode:         domain.QueueModeLoop,
		PendingCount: 4,
	})

	if embed.Title != "Now Playing" {
		t.Errorf("expected Now Playing, got %q", embed.Title)
	}
	values := map[string]string{}
	for _, f := range embed.Fields {
		values[f.Name] = f.Value
	}
	if values["Duration"] != "01:30" {
		t.Errorf("expected 01:30, got %q", values["Duration"])
	}
	if values["Mode"] != "loop" {
		t.Errorf("expected loop, got %q", values["Mode"])
	}
	if values["Up Next"] != "4 in queue" {
		t.Errorf("expected 4 in queue, got %q", values["Up Next"])
	}
	if values["Requested by"] != "<@2>" {
		t.Errorf("expected requester mention, got %q", values["Requested by"])
	}
}

func TestMemberName(t *testing.T) {
	tests := []struct {
		name   string
		member *discordgo.Member
		want   string
	}{
		{"nil", nil, ""},
		{"nick", &discordgo.Member{Nick: "Nick", User: &discordgo.User{Username: "user"}}, "Nick"},
		{"global", &discordgo.Member{User: &discordgo.User{GlobalName: "Global", Username: "user"}}, "Global"},
		{"username", &discordgo.Member{User: &discordgo.User{Username: "user"}}, "user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := memberName(tt.member); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
