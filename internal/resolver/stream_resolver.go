package resolver

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/famomatic/playflow/internal/innertube"
	"github.com/famomatic/playflow/internal/log"
	"github.com/famomatic/playflow/internal/metrics"
)

// ProfileResolver resolves one track id through one client profile.
// A (nil, nil) result means the profile had nothing playable.
type ProfileResolver interface {
	Resolve(ctx context.Context, trackID string, profile innertube.ClientProfile) (*StreamInfo, error)
}

// StreamResolver walks the ordered profile list and returns the first
// successful resolution.
type StreamResolver struct {
	registry innertube.Registry
	profiles ProfileResolver
	logger   zerolog.Logger
}

func NewStreamResolver(registry innertube.Registry, profiles ProfileResolver) *StreamResolver {
	return &StreamResolver{
		registry: registry,
		profiles: profiles,
		logger:   log.WithComponent("resolver"),
	}
}

// ResolveStreamURL iterates the configured profile order, skipping any name
// in exclude, and returns the first non-nil StreamInfo. When every profile
// fails it returns an AllClientsFailedError aggregating each failure.
func (s *StreamResolver) ResolveStreamURL(ctx context.Context, trackID string, exclude map[string]struct{}) (*StreamInfo, error) {
	start := time.Now()
	var attempts []AttemptError
	for _, profile := range s.registry.Ordered() {
		if _, skip := exclude[profile.Name]; skip {
			continue
		}
		info, err := s.profiles.Resolve(ctx, trackID, profile)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			metrics.ResolutionAttemptsTotal.WithLabelValues(profile.Name, "error").Inc()
			s.logger.Debug().
				Str("track_id", trackID).
				Str("client", profile.Name).
				Err(err).
				Msg("profile attempt failed")
			attempts = append(attempts, AttemptError{Client: profile.Name, Err: err})
			continue
		}
		if info == nil {
			metrics.ResolutionAttemptsTotal.WithLabelValues(profile.Name, "empty").Inc()
			attempts = append(attempts, AttemptError{Client: profile.Name, Err: ErrNoPlayableStream})
			continue
		}
		metrics.ResolutionAttemptsTotal.WithLabelValues(profile.Name, "success").Inc()
		metrics.ResolutionDurationSeconds.WithLabelValues("success").Observe(time.Since(start).Seconds())
		s.logger.Info().
			Str("track_id", trackID).
			Str("client", profile.Name).
			Bool("segmented", info.IsSegmented).
			Int("bitrate_bps", info.BitrateBps).
			Msg("stream resolved")
		return info, nil
	}
	metrics.ResolutionDurationSeconds.WithLabelValues("failure").Observe(time.Since(start).Seconds())
	return nil, &AllClientsFailedError{TrackID: trackID, Attempts: attempts}
}
