package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/voxbot/internal/modules/music_player/application/usecases"
)

// maxChoices is Discord's limit on autocomplete choices.
const maxChoices = 25

// AutocompleteHandler handles autocomplete requests.
type AutocompleteHandler struct {
	autocomplete *usecases.AutocompleteService
}

// NewAutocompleteHandler creates a new AutocompleteHandler.
func NewAutocompleteHandler(autocomplete *usecases.AutocompleteService) *AutocompleteHandler {
	return &AutocompleteHandler{autocomplete: autocomplete}
}

// HandlePlay handles autocomplete for play command.
func (h *AutocompleteHandler) HandlePlay(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	var query string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "query" && opt.Focused {
			query = opt.StringValue()
			break
		}
	}

	// Don't search for very short queries
	if len([]rune(strings.TrimSpace(query))) < 2 {
		respondChoices(s, i, nil)
		return
	}

	output, err := h.autocomplete.SearchTracks(ctx, usecases.SearchTracksInput{
		Query: query,
		Limit: maxChoices - 1,
	})
	if err != nil {
		slog.Debug("autocomplete search failed", "query", query, "error", err)
		respondChoices(s, i, nil)
		return
	}

	respondChoices(s, i, playChoices(output))
}

func playChoices(output *usecases.SearchTracksOutput) []*discordgo.ApplicationCommandOptionChoice {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(output.Tracks)+1)

	if output.IsPlaylist {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name: truncate(
				fmt.Sprintf("📋 %s (%d tracks)", output.PlaylistName, output.TrackCount),
				100,
			),
			Value: output.PlaylistURL,
		})
	}
	for idx, track := range output.Tracks {
		// Choice values are limited to 100 characters; longer URIs cannot be offered.
		if track.URI == "" || len(track.URI) > 100 {
			continue
		}
		var name string
		if output.IsPlaylist {
			name = fmt.Sprintf("🎵 %d. %s - %s", idx+1, track.Title, track.Artist)
		} else {
			name = fmt.Sprintf("🎵 %s - %s", track.Title, track.Artist)
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  truncate(name, 100),
			Value: track.URI,
		})
	}
	return choices
}

// HandleQueueRemove handles autocomplete for queue remove command.
func (h *AutocompleteHandler) HandleQueueRemove(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		slog.Warn("failed to parse guild ID in autocomplete", "error", err, "guildID", i.GuildID)
		return
	}

	output := h.autocomplete.GetQueueTracks(ctx, usecases.GetQueueTracksInput{GuildID: guildID})
	respondChoices(s, i, positionChoices(output.Tracks, focusedValue(i)))
}

// positionChoices lists queue positions whose number or title matches filter.
func positionChoices(
	tracks []usecases.Track,
	filter string,
) []*discordgo.ApplicationCommandOptionChoice {
	filter = strings.ToLower(strings.TrimSpace(filter))

	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, maxChoices)
	for idx, track := range tracks {
		pos := idx + 1
		if filter != "" &&
			!strings.HasPrefix(strconv.Itoa(pos), filter) &&
			!strings.Contains(strings.ToLower(track.Title), filter) {
			continue
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  fmt.Sprintf("%d. %s", pos, truncate(track.Title, 90)),
			Value: pos,
		})
		if len(choices) == maxChoices {
			break
		}
	}
	return choices
}

// focusedValue returns the text typed into the focused option of a subcommand.
func focusedValue(i *discordgo.InteractionCreate) string {
	for _, opt := range i.ApplicationCommandData().Options {
		for _, sub := range opt.Options {
			if sub.Focused {
				return fmt.Sprint(sub.Value)
			}
		}
	}
	return ""
}

func respondChoices(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	choices []*discordgo.ApplicationCommandOptionChoice,
) {
	if choices == nil {
		choices = []*discordgo.ApplicationCommandOptionChoice{}
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{
			Choices: choices,
		},
	})
	if err != nil {
		slog.Debug("failed to send autocomplete choices", "error", err)
	}
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
