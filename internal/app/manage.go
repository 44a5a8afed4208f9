package app

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/svglol/dinkdonkbot/internal/domain"
	apperrors "github.com/svglol/dinkdonkbot/internal/errors"
	"github.com/svglol/dinkdonkbot/internal/registry"
)

// AddArgs are the already-decoded arguments of the add command.
type AddArgs struct {
	Platform        domain.Platform
	GuildID         string
	Name            string
	ChannelID       string
	RoleID          string
	MessageTemplate string
}

// AddSubscription validates the streamer against the platform API,
// stores the subscription and, for the first guild tracking this
// broadcaster, creates the upstream event subscription in the
// background.
func (s *Service) AddSubscription(ctx context.Context, args AddArgs) (*domain.Subscription, error) {
	name := strings.ToLower(strings.TrimSpace(args.Name))
	if name == "" {
		return nil, apperrors.ValidationError("streamer name must not be empty")
	}
	if args.ChannelID == "" {
		return nil, apperrors.ValidationError("alert channel must not be empty")
	}

	existing, err := s.subs.FindByName(ctx, args.Platform, args.GuildID, name)
	if err != nil {
		return nil, apperrors.InternalError("failed to check existing subscriptions", err)
	}
	for i := range existing {
		if strings.EqualFold(existing[i].Name, name) {
			return nil, apperrors.ValidationError("**"+existing[i].DisplayName+"** is already being tracked in this server")
		}
	}

	broadcasterID, displayName, err := s.lookupBroadcaster(ctx, args.Platform, name)
	if err != nil {
		return nil, err
	}

	sub := &domain.Subscription{
		ID:              uuid.New(),
		Platform:        args.Platform,
		GuildID:         args.GuildID,
		BroadcasterID:   broadcasterID,
		Name:            name,
		DisplayName:     displayName,
		ChannelID:       args.ChannelID,
		RoleID:          args.RoleID,
		MessageTemplate: args.MessageTemplate,
		CreatedAt:       s.clock.Now().UTC(),
	}

	references, err := s.subs.CountByBroadcaster(ctx, args.Platform, broadcasterID)
	if err != nil {
		return nil, apperrors.InternalError("failed to count broadcaster references", err)
	}

	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, apperrors.InternalError("failed to store subscription", err)
	}

	if references == 0 {
		platform := args.Platform
		s.tasks.Submit("subscribe", func(ctx context.Context) {
			var err error
			switch platform {
			case domain.PlatformTwitch:
				err = s.twitch.Subscribe(ctx, broadcasterID)
			case domain.PlatformKick:
				var id int
				if id, err = strconv.Atoi(broadcasterID); err == nil {
					err = s.kick.Subscribe(ctx, id)
				}
			}
			if err != nil {
				slog.Error("Upstream subscribe failed",
					"platform", platform, "broadcaster_id", broadcasterID, "error", err)
			}
		})
	}

	return sub, nil
}

// LinkChannels pairs a guild's Twitch subscription with its Kick
// subscription. Both link records are written atomically so the pair is
// symmetric from the start.
func (s *Service) LinkChannels(ctx context.Context, guildID, twitchName, kickName string) (*registry.Pair, error) {
	twitch, err := s.registry.ResolveByName(ctx, domain.PlatformTwitch, guildID, twitchName)
	if err != nil {
		return nil, err
	}
	kick, err := s.registry.ResolveByName(ctx, domain.PlatformKick, guildID, kickName)
	if err != nil {
		return nil, err
	}

	if err := s.subs.CreateLink(ctx, twitch.ID, kick.ID); err != nil {
		return nil, apperrors.InternalError("failed to create multistream link", err)
	}

	twitch.Link = &domain.MultiStreamLink{SubscriptionID: twitch.ID, CounterpartID: kick.ID}
	kick.Link = &domain.MultiStreamLink{SubscriptionID: kick.ID, CounterpartID: twitch.ID}
	return &registry.Pair{Twitch: twitch, Kick: kick}, nil
}

// UnlinkChannels severs a subscription's multistream link on both sides.
// Returns the names of the unlinked pair.
func (s *Service) UnlinkChannels(ctx context.Context, platform domain.Platform, guildID, name string) (string, string, error) {
	sub, err := s.registry.ResolveByName(ctx, platform, guildID, name)
	if err != nil {
		return "", "", err
	}
	counterpart, err := s.registry.ResolveCounterpart(ctx, sub)
	if err != nil {
		return "", "", err
	}

	if err := s.subs.SeverLink(ctx, sub.ID); err != nil {
		return "", "", apperrors.InternalError("failed to sever multistream link", err)
	}
	return sub.DisplayName, counterpart.DisplayName, nil
}

// ListSubscriptions returns the guild's tracked streamer names for a
// platform.
func (s *Service) ListSubscriptions(ctx context.Context, platform domain.Platform, guildID string) ([]string, error) {
	names, err := s.subs.ListNames(ctx, platform, guildID)
	if err != nil {
		return nil, apperrors.InternalError("failed to list subscriptions", err)
	}
	return names, nil
}

func (s *Service) lookupBroadcaster(ctx context.Context, platform domain.Platform, name string) (string, string, error) {
	switch platform {
	case domain.PlatformKick:
		channel, err := s.kick.GetChannel(ctx, name)
		if err != nil {
			return "", "", apperrors.UpstreamError("failed to look up kick channel", err)
		}
		if channel == nil {
			return "", "", apperrors.NotFoundError("**"+name+"** was not found on Kick")
		}
		return strconv.Itoa(channel.BroadcasterID), channel.DisplayName, nil

	default:
		streamer, err := s.twitch.GetStreamerDetails(ctx, name)
		if err != nil {
			return "", "", apperrors.UpstreamError("failed to look up twitch streamer", err)
		}
		if streamer == nil {
			return "", "", apperrors.NotFoundError("**"+name+"** was not found on Twitch")
		}
		return streamer.ID, streamer.DisplayName, nil
	}
}
