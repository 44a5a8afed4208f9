// Package resolver fetches current live status and VOD data from the
// streaming platforms. Dual-platform fetches run concurrently and both
// legs complete (or individually fail) before composition proceeds.
package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/svglol/dinkdonkbot/internal/domain"
	"github.com/svglol/dinkdonkbot/internal/errors"
	"github.com/svglol/dinkdonkbot/internal/metrics"
)

// Mode selects the synthetic state of a test/preview snapshot.
type Mode string

const (
	ModeLive    Mode = "live"
	ModeOffline Mode = "offline"
)

// StreamStateResolver queries platform clients for live state and VODs.
type StreamStateResolver struct {
	twitch domain.TwitchClient
	kick   domain.KickClient
	clock  clockwork.Clock
}

func New(twitch domain.TwitchClient, kick domain.KickClient, clock clockwork.Clock) *StreamStateResolver {
	return &StreamStateResolver{twitch: twitch, kick: kick, clock: clock}
}

// FetchLive returns the subscription's current live state, nil when the
// channel is offline. Timeouts are owned by the underlying client.
func (r *StreamStateResolver) FetchLive(ctx context.Context, sub *domain.Subscription) (*domain.LiveState, error) {
	var live *domain.LiveState
	var err error

	switch sub.Platform {
	case domain.PlatformTwitch:
		live, err = r.twitch.GetStreamDetails(ctx, sub.Name)
	case domain.PlatformKick:
		live, err = r.kick.GetLiveStream(ctx, sub.Name)
	default:
		return nil, fmt.Errorf("unknown platform %q", sub.Platform)
	}

	if err != nil {
		metrics.PlatformFetchesTotal.WithLabelValues(string(sub.Platform), "live", "error").Inc()
		return nil, errors.UpstreamError(fmt.Sprintf("%s live state fetch failed", sub.Platform), err)
	}
	metrics.PlatformFetchesTotal.WithLabelValues(string(sub.Platform), "live", "success").Inc()
	return live, nil
}

// FetchVOD looks up the replay of an ended session. Twitch matches the
// VOD against the broadcaster and the live session's stream ID; Kick
// selects the nearest VOD at/after the session start. A zero startedAt
// (and empty streamID) selects the most recent replay. Absence of a
// matching VOD is not an error: the result is simply nil.
func (r *StreamStateResolver) FetchVOD(ctx context.Context, sub *domain.Subscription, streamID string, startedAt time.Time) (*domain.VOD, error) {
	var vod *domain.VOD
	var err error

	switch sub.Platform {
	case domain.PlatformTwitch:
		vod, err = r.twitch.GetLatestVod(ctx, sub.BroadcasterID, streamID)
	case domain.PlatformKick:
		vod, err = r.kick.GetLatestVod(ctx, sub.Name, startedAt)
	default:
		return nil, fmt.Errorf("unknown platform %q", sub.Platform)
	}

	if err != nil {
		metrics.PlatformFetchesTotal.WithLabelValues(string(sub.Platform), "vod", "error").Inc()
		return nil, errors.UpstreamError(fmt.Sprintf("%s VOD fetch failed", sub.Platform), err)
	}
	metrics.PlatformFetchesTotal.WithLabelValues(string(sub.Platform), "vod", "success").Inc()
	return vod, nil
}

// ResolveLegs builds both legs of a test/preview snapshot. The Twitch and
// Kick fetches are issued concurrently; a failure on one leg does not
// cancel the other, and both joins complete before this returns. Either
// subscription may be nil, in which case that leg is skipped.
func (r *StreamStateResolver) ResolveLegs(ctx context.Context, twitchSub, kickSub *domain.Subscription, mode Mode) (*domain.StreamLeg, *domain.StreamLeg, error) {
	var twitchLeg, kickLeg *domain.StreamLeg

	// Plain errgroup: no shared cancellation between legs.
	var g errgroup.Group
	if twitchSub != nil {
		g.Go(func() error {
			leg, err := r.resolveLeg(ctx, twitchSub, mode)
			if err != nil {
				return err
			}
			twitchLeg = leg
			return nil
		})
	}
	if kickSub != nil {
		g.Go(func() error {
			leg, err := r.resolveLeg(ctx, kickSub, mode)
			if err != nil {
				return err
			}
			kickLeg = leg
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return twitchLeg, kickLeg, nil
}

// resolveLeg fetches one platform's state in the requested synthetic mode.
func (r *StreamStateResolver) resolveLeg(ctx context.Context, sub *domain.Subscription, mode Mode) (*domain.StreamLeg, error) {
	switch mode {
	case ModeOffline:
		vod, err := r.FetchVOD(ctx, sub, "", time.Time{})
		if err != nil {
			return nil, err
		}
		now := r.clock.Now().UTC()
		leg := &domain.StreamLeg{
			Subscription: sub,
			Online:       false,
			EndedAt:      &now,
			VOD:          vod,
		}
		if vod != nil {
			started := vod.PublishedAt
			leg.StartedAt = &started
		}
		return leg, nil

	default:
		live, err := r.FetchLive(ctx, sub)
		if err != nil {
			return nil, err
		}
		leg := &domain.StreamLeg{
			Subscription: sub,
			Online:       true,
			Live:         live,
		}
		if live != nil && !live.StartedAt.IsZero() {
			started := live.StartedAt.UTC()
			leg.StartedAt = &started
		} else {
			now := r.clock.Now().UTC()
			leg.StartedAt = &now
		}
		return leg, nil
	}
}
