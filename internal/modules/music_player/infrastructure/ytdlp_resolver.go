package infrastructure

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/sglre6355/voxbot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/voxbot/internal/modules/music_player/domain"
	"golang.org/x/time/rate"
)

// ytdlpPrintTemplate prints one tab separated line per resolved entry.
// Fields yt-dlp cannot fill come out as "NA".
const ytdlpPrintTemplate = "%(webpage_url,url)s\t%(title)s\t%(uploader,channel)s\t%(duration)s" +
	"\t%(playlist_title)s\t%(thumbnail)s\t%(extractor_key)s\t%(is_live)s"

const ytdlpFieldCount = 8

// YtdlpConfig configures the yt-dlp resolver.
type YtdlpConfig struct {
	Proxy string
	// BitRate is the Opus encoder target in bits per second.
	BitRate int
	// Rate is the number of yt-dlp invocations allowed per second.
	Rate  float64
	Burst int
}

// YtdlpResolver resolves queries with yt-dlp and opens tracks as streams of
// Opus frames transcoded with libav.
type YtdlpResolver struct {
	proxy   string
	bitRate int
	limiter *rate.Limiter
}

var _ ports.TrackResolver = (*YtdlpResolver)(nil)

// NewYtdlpResolver creates a new YtdlpResolver.
func NewYtdlpResolver(config YtdlpConfig) *YtdlpResolver {
	limit := rate.Limit(config.Rate)
	if config.Rate <= 0 {
		limit = rate.Inf
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}

	return &YtdlpResolver{
		proxy:   config.Proxy,
		bitRate: config.BitRate,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (r *YtdlpResolver) command() *ytdlp.Command {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig()
	if r.proxy != "" {
		cmd.Proxy(r.proxy)
	}
	return cmd
}

func (r *YtdlpResolver) wait(ctx context.Context, kind error) error {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
		}
		return fmt.Errorf("%w: %w", kind, err)
	}
	return nil
}

// Resolve searches for tracks, or expands a URL into its tracks.
func (r *YtdlpResolver) Resolve(
	ctx context.Context,
	query *domain.SearchQuery,
) (*domain.TrackList, error) {
	if err := r.wait(ctx, domain.ErrResolution); err != nil {
		return nil, err
	}

	cmd := r.command().
		FlatPlaylist().
		Print(ytdlpPrintTemplate)
	if !query.IsURL {
		limit := query.Limit
		if limit <= 0 {
			limit = domain.DefaultSearchLimit
		}
		cmd.PlaylistItems(fmt.Sprintf("1-%d", limit))
	}

	res, err := cmd.Run(ctx, query.YtdlpQuery())
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrResolution, err)
	}

	return parseYtdlpOutput(res.Stdout, query), nil
}

// parseYtdlpOutput turns the printed lines into a track list.
// Lines without a URL or title are skipped.
func parseYtdlpOutput(stdout string, query *domain.SearchQuery) *domain.TrackList {
	list := &domain.TrackList{Type: domain.TrackListTypeSearch}
	if query.IsURL {
		list.Type = domain.TrackListTypeTrack
		list.URL = query.Query
	}

	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		fields := strings.Split(strings.TrimRight(line, "\r"), "\t")
		if len(fields) < ytdlpFieldCount {
			continue
		}
		for i, f := range fields {
			if f == "NA" {
				fields[i] = ""
			}
		}

		track := domain.Track{
			Locator:    fields[0],
			Title:      fields[1],
			Artist:     fields[2],
			Duration:   parseSeconds(fields[3]),
			URI:        fields[0],
			ArtworkURL: fields[5],
			SourceName: strings.ToLower(fields[6]),
			IsStream:   fields[7] == "True",
		}
		if !track.IsValid() {
			continue
		}

		if query.IsURL && fields[4] != "" {
			list.Type = domain.TrackListTypePlaylist
			list.Name = fields[4]
		}
		list.Tracks = append(list.Tracks, track)
	}

	return list
}

func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

// Open starts yt-dlp and transcodes its output to Opus frames in process.
// It returns once the input has been probed so a dead source fails here.
func (r *YtdlpResolver) Open(ctx context.Context, track domain.Track) (ports.AudioStream, error) {
	if err := r.wait(ctx, domain.ErrStreamOpen); err != nil {
		return nil, err
	}

	var stderr bytes.Buffer
	ready := make(chan error, 1)

	stream := startOpusStream(func(procCtx context.Context, emit func([]byte) error) error {
		return r.transcode(procCtx, track.Locator, &stderr, ready, emit)
	})

	select {
	case err := <-ready:
		if err != nil {
			stream.Close()
			return nil, fmt.Errorf("%w: %s", domain.ErrStreamOpen, failureSummary(err, &stderr))
		}
	case <-ctx.Done():
		stream.Close()
		return nil, fmt.Errorf("%w: %w", domain.ErrTimeout, ctx.Err())
	}

	slog.Debug("opened audio stream", "track", track.Title, "uri", track.URI)
	return stream, nil
}

// transcode runs yt-dlp for locator and feeds its stdout through the Opus
// transcoder. The outcome of probing is sent on ready exactly once.
func (r *YtdlpResolver) transcode(
	ctx context.Context,
	locator string,
	stderr *bytes.Buffer,
	ready chan<- error,
	emit func([]byte) error,
) error {
	download := r.command().
		Format("bestaudio/best").
		Output("-").
		NoPart().
		NoPlaylist().
		BuildCommand(ctx, locator)
	download.Stderr = stderr

	out, err := download.StdoutPipe()
	if err != nil {
		ready <- err
		return err
	}
	if err := download.Start(); err != nil {
		ready <- err
		return err
	}

	transcoder := newOpusTranscoder(r.bitRate)
	defer transcoder.Close()

	err = transcoder.Open(out)
	ready <- err
	if err == nil {
		err = transcoder.Transcode(ctx, emit)
	}

	// yt-dlp may still be writing when transcoding stopped early.
	if err != nil {
		_ = download.Process.Kill()
	}
	waitErr := download.Wait()

	if err == nil && waitErr != nil && ctx.Err() == nil {
		return fmt.Errorf("download failed: %s", failureSummary(waitErr, stderr))
	}
	return err
}

// failureSummary prefers yt-dlp's last stderr line over err.
func failureSummary(err error, stderr *bytes.Buffer) string {
	if msg := lastLine(stderr.String()); msg != "" {
		return msg
	}
	return err.Error()
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
