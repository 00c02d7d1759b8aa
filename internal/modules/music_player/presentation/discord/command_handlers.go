package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/voxbot/internal/bot"
	"github.com/sglre6355/voxbot/internal/modules/music_player/application/usecases"
	"github.com/sglre6355/voxbot/internal/modules/music_player/domain"
)

// Embed colors.
const (
	colorSuccess = 0x08c404
	colorError   = 0xE74C3C
)

// maxFindResults caps the matches listed by /queue find.
const maxFindResults = 10

// CommandHandlers holds all the command handlers.
type CommandHandlers struct {
	voiceChannel        *usecases.VoiceChannelService
	playback            *usecases.PlaybackService
	queue               *usecases.QueueService
	trackLoader         *usecases.TrackLoaderService
	notificationChannel *usecases.NotificationChannelService
}

// NewCommandHandlers creates new CommandHandlers.
func NewCommandHandlers(
	voiceChannel *usecases.VoiceChannelService,
	playback *usecases.PlaybackService,
	queue *usecases.QueueService,
	trackLoader *usecases.TrackLoaderService,
	notificationChannel *usecases.NotificationChannelService,
) *CommandHandlers {
	return &CommandHandlers{
		voiceChannel:        voiceChannel,
		playback:            playback,
		queue:               queue,
		trackLoader:         trackLoader,
		notificationChannel: notificationChannel,
	}
}

// interactionIDs holds the identifiers every command needs.
type interactionIDs struct {
	guildID   snowflake.ID
	channelID snowflake.ID
	userID    snowflake.ID
}

// parseInteraction returns the identifiers, or a message for the user
// when one is missing.
func parseInteraction(i *discordgo.InteractionCreate) (interactionIDs, string) {
	var ids interactionIDs
	var err error

	if ids.guildID, err = snowflake.Parse(i.GuildID); err != nil {
		return ids, "Invalid guild"
	}
	if ids.channelID, err = snowflake.Parse(i.ChannelID); err != nil {
		return ids, "Invalid notification channel"
	}
	if i.Member == nil || i.Member.User == nil {
		return ids, "This command can only be used in a server"
	}
	if ids.userID, err = snowflake.Parse(i.Member.User.ID); err != nil {
		return ids, "Invalid user"
	}
	return ids, ""
}

// touchNotificationChannel points notifications at the channel the
// command came from. Best effort: a missing player is fine.
func (h *CommandHandlers) touchNotificationChannel(ctx context.Context, ids interactionIDs) {
	_ = h.notificationChannel.Set(ctx, usecases.SetNotificationChannelInput{
		GuildID:   ids.guildID,
		ChannelID: ids.channelID,
	})
}

// HandleJoin handles the /join command.
func (h *CommandHandlers) HandleJoin(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	ids, problem := parseInteraction(i)
	if problem != "" {
		return respondError(r, problem)
	}

	var voiceChannelID snowflake.ID
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "channel" {
			id, err := snowflake.Parse(opt.ChannelValue(s).ID)
			if err != nil {
				return respondError(r, "Invalid voice channel")
			}
			voiceChannelID = id
		}
	}

	output, err := h.voiceChannel.Join(ctx, usecases.JoinInput{
		GuildID:               ids.guildID,
		UserID:                ids.userID,
		NotificationChannelID: ids.channelID,
		VoiceChannelID:        voiceChannelID,
	})
	if err != nil {
		return respondError(r, userMessage(err))
	}

	if output.AlreadyJoined {
		return respondSuccess(r, fmt.Sprintf("Already connected to <#%d>.", output.VoiceChannelID))
	}
	return respondSuccess(r, fmt.Sprintf("Connected to <#%d>.", output.VoiceChannelID))
}

// HandleLeave handles the /leave command.
func (h *CommandHandlers) HandleLeave(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	if err := h.voiceChannel.Leave(ctx, usecases.LeaveInput{GuildID: guildID}); err != nil {
		return respondError(r, userMessage(err))
	}

	return respondSuccess(r, "Disconnected.")
}

// HandlePlay handles the /play command.
// Resolution can outlast Discord's response window, so the reply is deferred.
func (h *CommandHandlers) HandlePlay(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	ids, problem := parseInteraction(i)
	if problem != "" {
		return respondError(r, problem)
	}

	var query string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "query" {
			query = opt.StringValue()
		}
	}

	if err := r.Defer(); err != nil {
		return err
	}

	// Join the caller's channel, or just refresh the notification channel.
	if _, err := h.voiceChannel.Join(ctx, usecases.JoinInput{
		GuildID:               ids.guildID,
		UserID:                ids.userID,
		NotificationChannelID: ids.channelID,
	}); err != nil {
		return editError(r, userMessage(err))
	}

	loaded, err := h.trackLoader.LoadTracks(ctx, usecases.LoadTracksInput{
		GuildID:       ids.guildID,
		Query:         query,
		RequesterID:   ids.userID,
		RequesterName: memberName(i.Member),
	})
	if err != nil {
		return editError(r, userMessage(err))
	}

	added, err := h.queue.Add(ctx, usecases.QueueAddInput{
		GuildID: ids.guildID,
		Tracks:  loaded.Tracks,
	})
	if err != nil {
		return editError(r, userMessage(err))
	}

	return editSuccess(r, describeAdded(loaded, added))
}

func describeAdded(loaded *usecases.LoadTracksOutput, added *usecases.QueueAddOutput) string {
	if loaded.IsPlaylist {
		return fmt.Sprintf(
			"Added **%d tracks** from playlist **%s** to the queue.",
			len(loaded.Tracks),
			loaded.PlaylistName,
		)
	}

	track := loaded.Tracks[0]
	if added.Started {
		return fmt.Sprintf("Now playing %s.", trackLink(track))
	}
	return fmt.Sprintf("Added %s to the queue at position %d.", trackLink(track), added.Position)
}

// HandleSkip handles the /skip command.
func (h *CommandHandlers) HandleSkip(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	ids, problem := parseInteraction(i)
	if problem != "" {
		return respondError(r, problem)
	}
	h.touchNotificationChannel(ctx, ids)

	count := 1
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "songs" {
			count = int(opt.IntValue())
		}
	}

	output, err := h.playback.Skip(ctx, usecases.SkipInput{GuildID: ids.guildID, Count: count})
	if err != nil {
		return respondError(r, userMessage(err))
	}

	// The "Now Playing" message for the next track comes from the notification handler.
	description := fmt.Sprintf("Skipped %s.", trackLink(output.SkippedTrack))
	if output.DroppedTracks > 0 {
		description = fmt.Sprintf(
			"Skipped %s and %d more.",
			trackLink(output.SkippedTrack),
			output.DroppedTracks,
		)
	}
	return respondSuccess(r, description)
}

// HandlePause handles the /pause command.
func (h *CommandHandlers) HandlePause(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	ids, problem := parseInteraction(i)
	if problem != "" {
		return respondError(r, problem)
	}
	h.touchNotificationChannel(ctx, ids)

	if err := h.playback.Pause(ctx, usecases.PauseInput{GuildID: ids.guildID}); err != nil {
		return respondError(r, userMessage(err))
	}

	return respondSuccess(r, "Paused playback.")
}

// HandleResume handles the /resume command.
func (h *CommandHandlers) HandleResume(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	ids, problem := parseInteraction(i)
	if problem != "" {
		return respondError(r, problem)
	}
	h.touchNotificationChannel(ctx, ids)

	if err := h.playback.Resume(ctx, usecases.ResumeInput{GuildID: ids.guildID}); err != nil {
		return respondError(r, userMessage(err))
	}

	return respondSuccess(r, "Resumed playback.")
}

// HandleStop handles the /stop command.
func (h *CommandHandlers) HandleStop(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	ids, problem := parseInteraction(i)
	if problem != "" {
		return respondError(r, problem)
	}
	h.touchNotificationChannel(ctx, ids)

	keepQueue := false
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "keep_queue" {
			keepQueue = opt.BoolValue()
		}
	}

	output, err := h.playback.Stop(ctx, usecases.StopInput{
		GuildID:    ids.guildID,
		ClearQueue: !keepQueue,
	})
	if err != nil {
		return respondError(r, userMessage(err))
	}

	if !output.Stopped {
		return respondSuccess(r, "Nothing was playing.")
	}
	return respondSuccess(r, "Stopped playback.")
}

// HandleCurrent handles the /current command.
func (h *CommandHandlers) HandleCurrent(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	ids, problem := parseInteraction(i)
	if problem != "" {
		return respondError(r, problem)
	}
	h.touchNotificationChannel(ctx, ids)

	output, err := h.playback.NowPlaying(ctx, usecases.NowPlayingInput{GuildID: ids.guildID})
	if err != nil {
		return respondError(r, userMessage(err))
	}

	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{currentEmbed(output)},
		},
	})
}

func currentEmbed(output *usecases.NowPlayingOutput) *discordgo.MessageEmbed {
	title := "Now Playing"
	if output.State == domain.PlaybackPaused {
		title = "Paused"
	}

	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: trackLink(output.Track),
		Color:       output.Track.Source().Color(),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Duration", Value: output.Track.FormattedDuration(), Inline: true},
			{Name: "Mode", Value: output.Mode.String(), Inline: true},
			{Name: "Up Next", Value: fmt.Sprintf("%d in queue", output.PendingCount), Inline: true},
		},
	}
	if output.Track.Artist != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{Name: output.Track.Artist}
	}
	if output.Track.ArtworkURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: output.Track.ArtworkURL}
	}
	if output.Track.RequesterID != 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Requested by",
			Value: fmt.Sprintf("<@%d>", output.Track.RequesterID),
		})
	}
	return embed
}

// HandleMode handles the /mode command.
func (h *CommandHandlers) HandleMode(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	ids, problem := parseInteraction(i)
	if problem != "" {
		return respondError(r, problem)
	}
	h.touchNotificationChannel(ctx, ids)

	var mode string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "mode" {
			mode = opt.StringValue()
		}
	}

	output, err := h.playback.SetMode(ctx, usecases.SetModeInput{GuildID: ids.guildID, Mode: mode})
	if err != nil {
		return respondError(r, userMessage(err))
	}

	return respondSuccess(r, describeMode(output.Mode))
}

func describeMode(mode domain.QueueMode) string {
	switch mode {
	case domain.QueueModeLoop:
		return "Now looping the queue."
	case domain.QueueModeShuffle:
		return "Now shuffling the queue."
	default:
		return "Playing the queue in order."
	}
}

// HandleClear handles the /clear command.
func (h *CommandHandlers) HandleClear(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	return h.handleQueueClear(i, r)
}

// HandleQueue handles the /queue command.
func (h *CommandHandlers) HandleQueue(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	options := i.ApplicationCommandData().Options
	if len(options) == 0 {
		return respondError(r, "Invalid subcommand")
	}

	subCmd := options[0]
	switch subCmd.Name {
	case "list":
		return h.handleQueueList(i, r, subCmd.Options)
	case "remove":
		return h.handleQueueRemove(i, r, subCmd.Options)
	case "clear":
		return h.handleQueueClear(i, r)
	case "find":
		return h.handleQueueFind(i, r, subCmd.Options)
	default:
		return respondError(r, "Unknown subcommand")
	}
}

func (h *CommandHandlers) handleQueueList(
	i *discordgo.InteractionCreate,
	r bot.Responder,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) error {
	ctx := context.Background()

	ids, problem := parseInteraction(i)
	if problem != "" {
		return respondError(r, problem)
	}
	h.touchNotificationChannel(ctx, ids)

	page := 1
	for _, opt := range options {
		if opt.Name == "page" {
			page = int(opt.IntValue())
		}
	}

	output, err := h.queue.List(ctx, usecases.QueueListInput{
		GuildID: ids.guildID,
		Page:    page,
	})
	if err != nil {
		return respondError(r, userMessage(err))
	}

	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{queueEmbed(output)},
		},
	})
}

func queueEmbed(output *usecases.QueueListOutput) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: queueTitle(output.Mode),
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf(
				"Page %d/%d · %d upcoming",
				output.CurrentPage,
				output.TotalPages,
				output.TotalTracks,
			),
		},
	}

	if output.CurrentTrack == nil && output.TotalTracks == 0 {
		embed.Description = "Queue is empty."
		return embed
	}

	var sb strings.Builder
	if output.CurrentTrack != nil {
		if output.State == domain.PlaybackPaused {
			sb.WriteString("### Paused\n")
		} else {
			sb.WriteString("### Now Playing\n")
		}
		fmt.Fprintf(&sb, "%s - %s\n", trackLink(*output.CurrentTrack), artistOf(*output.CurrentTrack))
	}

	if len(output.Tracks) > 0 {
		sb.WriteString("### Up Next\n")
		for idx, track := range output.Tracks {
			writeTrackLine(&sb, output.StartIndex+idx, track)
		}
	}

	embed.Description = sb.String()
	return embed
}

func queueTitle(mode domain.QueueMode) string {
	switch mode {
	case domain.QueueModeLoop:
		return "Queue \U0001F501" // 🔁
	case domain.QueueModeShuffle:
		return "Queue \U0001F500" // 🔀
	default:
		return "Queue"
	}
}

func (h *CommandHandlers) handleQueueRemove(
	i *discordgo.InteractionCreate,
	r bot.Responder,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) error {
	ctx := context.Background()

	ids, problem := parseInteraction(i)
	if problem != "" {
		return respondError(r, problem)
	}
	h.touchNotificationChannel(ctx, ids)

	var position int
	for _, opt := range options {
		if opt.Name == "position" {
			position = int(opt.IntValue())
		}
	}

	output, err := h.queue.Remove(ctx, usecases.QueueRemoveInput{
		GuildID:  ids.guildID,
		Position: position,
	})
	if err != nil {
		return respondError(r, userMessage(err))
	}

	return respondSuccess(r, fmt.Sprintf("Removed %s.", trackLink(output.RemovedTrack)))
}

func (h *CommandHandlers) handleQueueClear(
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	ids, problem := parseInteraction(i)
	if problem != "" {
		return respondError(r, problem)
	}
	h.touchNotificationChannel(ctx, ids)

	output, err := h.queue.Clear(ctx, usecases.QueueClearInput{GuildID: ids.guildID})
	if err != nil {
		return respondError(r, userMessage(err))
	}

	if output.ClearedCount == 1 {
		return respondSuccess(r, "Cleared 1 track from the queue.")
	}
	return respondSuccess(r, fmt.Sprintf("Cleared %d tracks from the queue.", output.ClearedCount))
}

func (h *CommandHandlers) handleQueueFind(
	i *discordgo.InteractionCreate,
	r bot.Responder,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) error {
	ctx := context.Background()

	ids, problem := parseInteraction(i)
	if problem != "" {
		return respondError(r, problem)
	}
	h.touchNotificationChannel(ctx, ids)

	var title string
	for _, opt := range options {
		if opt.Name == "title" {
			title = opt.StringValue()
		}
	}

	output, err := h.queue.Find(ctx, usecases.QueueFindInput{GuildID: ids.guildID, Query: title})
	if err != nil {
		return respondError(r, userMessage(err))
	}

	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{findEmbed(title, output.Matches)},
		},
	})
}

func findEmbed(query string, matches []usecases.QueueFindMatch) *discordgo.MessageEmbed {
	var sb strings.Builder
	for idx, match := range matches {
		if idx == maxFindResults {
			fmt.Fprintf(&sb, "…and %d more\n", len(matches)-maxFindResults)
			break
		}
		writeTrackLine(&sb, match.Position, match.Track)
	}

	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Tracks matching \"%s\"", truncate(query, 80)),
		Description: sb.String(),
		Color:       colorSuccess,
	}
}

// Response helpers.

func respondSuccess(r bot.Responder, description string) error {
	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{
				{
					Description: description,
					Color:       colorSuccess,
				},
			},
		},
	})
}

func respondError(r bot.Responder, message string) error {
	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{
				{
					Title:       "Error",
					Description: message,
					Color:       colorError,
				},
			},
		},
	})
}

func editSuccess(r bot.Responder, description string) error {
	return r.Edit(&discordgo.WebhookEdit{
		Embeds: &[]*discordgo.MessageEmbed{
			{
				Description: description,
				Color:       colorSuccess,
			},
		},
	})
}

func editError(r bot.Responder, message string) error {
	return r.Edit(&discordgo.WebhookEdit{
		Embeds: &[]*discordgo.MessageEmbed{
			{
				Title:       "Error",
				Description: message,
				Color:       colorError,
			},
		},
	})
}

// userMessage turns a use case error into text for the channel.
// Errors without a user-facing meaning are logged and reported generically.
func userMessage(err error) string {
	switch {
	case errors.Is(err, usecases.ErrNotConnected):
		return "I'm not connected to a voice channel."
	case errors.Is(err, usecases.ErrUserNotInVoice):
		return "You must be in a voice channel."
	case errors.Is(err, usecases.ErrNotPlaying):
		return "Nothing is currently playing."
	case errors.Is(err, usecases.ErrAlreadyPaused):
		return "Playback is already paused."
	case errors.Is(err, usecases.ErrNotPaused):
		return "Playback is not paused."
	case errors.Is(err, usecases.ErrTrackChanging):
		return "The track is changing, try again in a moment."
	case errors.Is(err, usecases.ErrNoResults):
		return "No results found."
	case errors.Is(err, usecases.ErrQueueEmpty):
		return "The queue is empty."
	case errors.Is(err, usecases.ErrInvalidPosition):
		return "There is no track at that position."
	case errors.Is(err, usecases.ErrInvalidMode):
		return "Unknown queue mode."
	case errors.Is(err, usecases.ErrVoiceUnavailable):
		return "Voice playback is not available right now."
	case errors.Is(err, domain.ErrQueueFull):
		return "The queue is full."
	case errors.Is(err, domain.ErrTimeout):
		return "Timed out while looking up the track."
	case errors.Is(err, domain.ErrResolution):
		return "Could not load that track."
	default:
		slog.Error("command failed", "error", err)
		return "Something went wrong."
	}
}

func trackLink(track domain.Track) string {
	if track.URI != "" {
		return fmt.Sprintf("[%s](%s)", track.Title, track.URI)
	}
	return fmt.Sprintf("**%s**", track.Title)
}

func artistOf(track domain.Track) string {
	if track.Artist == "" {
		return "Unknown"
	}
	return track.Artist
}

// writeTrackLine writes a single track line to the string builder.
// Escapes period to prevent Discord markdown list formatting.
func writeTrackLine(sb *strings.Builder, displayIndex int, track domain.Track) {
	fmt.Fprintf(sb, "%d\\. %s - %s\n", displayIndex, trackLink(track), artistOf(track))
}

func memberName(m *discordgo.Member) string {
	if m == nil {
		return ""
	}
	if m.Nick != "" {
		return m.Nick
	}
	if m.User == nil {
		return ""
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}
