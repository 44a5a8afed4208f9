// Package registry resolves and validates the pairing between Twitch and
// Kick subscriptions for a guild. It is read-only and performs no
// platform or transport calls.
package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/svglol/dinkdonkbot/internal/domain"
	"github.com/svglol/dinkdonkbot/internal/errors"
)

// StreamLinkRegistry resolves subscriptions by name and follows
// multistream links between them.
type StreamLinkRegistry struct {
	subs domain.SubscriptionRepository
}

// Pair is a resolved multistream pair. Either leg may be nil only while
// resolution is in progress; a successful ResolvePair returns both.
type Pair struct {
	Twitch *domain.Subscription
	Kick   *domain.Subscription
}

func New(subs domain.SubscriptionRepository) *StreamLinkRegistry {
	return &StreamLinkRegistry{subs: subs}
}

// ResolveByName finds the guild's subscription whose name matches the
// given name case-insensitively and partially. An exact (case-folded)
// match wins over a partial one.
func (r *StreamLinkRegistry) ResolveByName(ctx context.Context, platform domain.Platform, guildID, name string) (*domain.Subscription, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.ValidationError("streamer name must not be empty")
	}

	matches, err := r.subs.FindByName(ctx, platform, guildID, name)
	if err != nil {
		return nil, errors.InternalError("subscription lookup failed", err).
			WithContext("platform", string(platform)).
			WithContext("name", name)
	}
	if len(matches) == 0 {
		return nil, errors.NotFoundError(fmt.Sprintf("no %s subscription matching %q in this server", platform, name)).
			WithContext("platform", string(platform)).
			WithContext("name", name)
	}

	for i := range matches {
		if strings.EqualFold(matches[i].Name, name) {
			return &matches[i], nil
		}
	}
	return &matches[0], nil
}

// ResolveCounterpart follows the subscription's multistream link to the
// counterpart-platform subscription.
func (r *StreamLinkRegistry) ResolveCounterpart(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	if sub.Link == nil {
		return nil, errors.NotLinkedError(fmt.Sprintf("%q is not linked to a %s subscription", sub.Name, counterpartPlatform(sub.Platform))).
			WithContext("subscription_id", sub.ID.String())
	}

	counterpart, err := r.subs.GetByID(ctx, sub.Link.CounterpartID)
	if err != nil {
		if err == domain.ErrSubscriptionNotFound {
			// Dangling link: the counterpart row is gone but the link record survived.
			return nil, errors.LinkMismatchError(fmt.Sprintf("the link on %q points at a subscription that no longer exists", sub.Name)).
				WithContext("subscription_id", sub.ID.String()).
				WithContext("counterpart_id", sub.Link.CounterpartID.String())
		}
		return nil, errors.InternalError("counterpart lookup failed", err)
	}

	return counterpart, nil
}

// ResolvePair resolves a multistream pair from up to two names.
//
// Both names: each side is resolved independently and the link must be
// mutually symmetric, otherwise LinkMismatch and the operation must not
// proceed to fetch or render. One name: the counterpart is derived from
// the link, absence is NotLinked. Neither: validation error.
func (r *StreamLinkRegistry) ResolvePair(ctx context.Context, guildID, twitchName, kickName string) (*Pair, error) {
	twitchName = strings.TrimSpace(twitchName)
	kickName = strings.TrimSpace(kickName)

	switch {
	case twitchName != "" && kickName != "":
		twitch, err := r.ResolveByName(ctx, domain.PlatformTwitch, guildID, twitchName)
		if err != nil {
			return nil, err
		}
		kick, err := r.ResolveByName(ctx, domain.PlatformKick, guildID, kickName)
		if err != nil {
			return nil, err
		}
		if err := checkSymmetry(twitch, kick); err != nil {
			return nil, err
		}
		return &Pair{Twitch: twitch, Kick: kick}, nil

	case twitchName != "":
		twitch, err := r.ResolveByName(ctx, domain.PlatformTwitch, guildID, twitchName)
		if err != nil {
			return nil, err
		}
		kick, err := r.ResolveCounterpart(ctx, twitch)
		if err != nil {
			return nil, err
		}
		return &Pair{Twitch: twitch, Kick: kick}, nil

	case kickName != "":
		kick, err := r.ResolveByName(ctx, domain.PlatformKick, guildID, kickName)
		if err != nil {
			return nil, err
		}
		twitch, err := r.ResolveCounterpart(ctx, kick)
		if err != nil {
			return nil, err
		}
		return &Pair{Twitch: twitch, Kick: kick}, nil

	default:
		return nil, errors.ValidationError("a twitch or kick streamer name is required")
	}
}

// checkSymmetry enforces the link invariant: A.Link points at B and
// B.Link points back at A. Any asymmetry is a data-integrity fault.
func checkSymmetry(twitch, kick *domain.Subscription) error {
	if twitch.Link == nil || kick.Link == nil {
		missing := twitch
		if twitch.Link != nil {
			missing = kick
		}
		return errors.LinkMismatchError(fmt.Sprintf("%q and %q are not linked to each other", twitch.Name, kick.Name)).
			WithContext("unlinked_subscription_id", missing.ID.String())
	}
	if twitch.Link.CounterpartID != kick.ID || kick.Link.CounterpartID != twitch.ID {
		return errors.LinkMismatchError(fmt.Sprintf("%q and %q are not linked to each other", twitch.Name, kick.Name)).
			WithContext("twitch_subscription_id", twitch.ID.String()).
			WithContext("kick_subscription_id", kick.ID.String())
	}
	return nil
}

func counterpartPlatform(p domain.Platform) domain.Platform {
	if p == domain.PlatformTwitch {
		return domain.PlatformKick
	}
	return domain.PlatformTwitch
}
