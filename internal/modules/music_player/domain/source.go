package domain

// TrackSource represents the origin platform of a track.
type TrackSource string

const (
	TrackSourceYouTube    TrackSource = "youtube"
	TrackSourceSpotify    TrackSource = "spotify"
	TrackSourceSoundCloud TrackSource = "soundcloud"
	TrackSourceTwitch     TrackSource = "twitch"
	TrackSourceBandcamp   TrackSource = "bandcamp"
	TrackSourceOther      TrackSource = "other"
)

// ParseTrackSource converts a source name string to a TrackSource.
// yt-dlp extractor keys ("Youtube", "Soundcloud") are accepted as well.
func ParseTrackSource(name string) TrackSource {
	switch name {
	case "youtube", "Youtube", "YoutubeTab":
		return TrackSourceYouTube
	case "spotify":
		return TrackSourceSpotify
	case "soundcloud", "Soundcloud":
		return TrackSourceSoundCloud
	case "twitch", "TwitchStream":
		return TrackSourceTwitch
	case "bandcamp", "Bandcamp":
		return TrackSourceBandcamp
	default:
		return TrackSourceOther
	}
}

// Color returns the embed color associated with the source.
func (s TrackSource) Color() int {
	switch s {
	case TrackSourceYouTube:
		return 0xFF0000
	case TrackSourceSpotify:
		return 0x1DB954
	case TrackSourceSoundCloud:
		return 0xFF5500
	case TrackSourceTwitch:
		return 0x9146FF
	case TrackSourceBandcamp:
		return 0x629AA9
	default:
		return 0x08c404
	}
}
