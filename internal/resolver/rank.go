package resolver

import (
	"sort"
	"strings"

	"github.com/famomatic/playflow/internal/innertube"
)

// rankAudioFormats filters adaptive representations down to audio-only ones
// and orders them best-first: bitrate descending, then declared quality tier.
func rankAudioFormats(formats []innertube.Format) []innertube.Format {
	out := make([]innertube.Format, 0, len(formats))
	for _, f := range formats {
		if strings.HasPrefix(f.MimeType, "audio/") {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		bi, bj := effectiveBitrate(out[i]), effectiveBitrate(out[j])
		if bi != bj {
			return bi > bj
		}
		return qualityTier(out[i].AudioQuality) > qualityTier(out[j].AudioQuality)
	})
	return out
}

func effectiveBitrate(f innertube.Format) int {
	if f.AverageBitrate > 0 {
		return f.AverageBitrate
	}
	return f.Bitrate
}

func qualityTier(audioQuality string) int {
	switch audioQuality {
	case "AUDIO_QUALITY_HIGH":
		return 3
	case "AUDIO_QUALITY_MEDIUM":
		return 2
	case "AUDIO_QUALITY_LOW":
		return 1
	default:
		return 0
	}
}
