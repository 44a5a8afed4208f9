package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/svglol/dinkdonkbot/internal/composer"
	"github.com/svglol/dinkdonkbot/internal/dispatcher"
	"github.com/svglol/dinkdonkbot/internal/domain"
	apperrors "github.com/svglol/dinkdonkbot/internal/errors"
	"github.com/svglol/dinkdonkbot/internal/metrics"
	"github.com/svglol/dinkdonkbot/internal/registry"
	"github.com/svglol/dinkdonkbot/internal/resolver"
)

// Service is the application layer, the only component that references
// multiple domain components. Each trigger is handled as an independent,
// stateless invocation; all durable state lives in the external stores.
type Service struct {
	subs       domain.SubscriptionRepository
	messages   domain.StreamMessageRepository
	registry   *registry.StreamLinkRegistry
	resolver   *resolver.StreamStateResolver
	dispatcher *dispatcher.NotificationDispatcher
	transport  domain.MessageTransport
	twitch     domain.TwitchClient
	kick       domain.KickClient
	clock      clockwork.Clock
	tasks      *TaskRunner

	// flight collapses concurrent go-live handling per subscription so
	// two triggers racing past the open-session check cannot both create
	// a message.
	flight singleflight.Group
}

// NewService creates the application layer service.
func NewService(
	subs domain.SubscriptionRepository,
	messages domain.StreamMessageRepository,
	reg *registry.StreamLinkRegistry,
	res *resolver.StreamStateResolver,
	disp *dispatcher.NotificationDispatcher,
	transport domain.MessageTransport,
	twitch domain.TwitchClient,
	kick domain.KickClient,
	clock clockwork.Clock,
	tasks *TaskRunner,
) *Service {
	return &Service{
		subs:       subs,
		messages:   messages,
		registry:   reg,
		resolver:   res,
		dispatcher: disp,
		transport:  transport,
		twitch:     twitch,
		kick:       kick,
		clock:      clock,
		tasks:      tasks,
	}
}

// Tasks exposes the detached task submission boundary.
func (s *Service) Tasks() *TaskRunner {
	return s.tasks
}

// HandleStreamOnline processes a go-live webhook event. For every guild
// subscription of the broadcaster it fetches current state, composes a
// body and creates (or, for an already-open session, updates) the
// tracked Discord message. Failures are logged per subscription; the
// next webhook event is the retry.
func (s *Service) HandleStreamOnline(ctx context.Context, platform domain.Platform, broadcasterID, streamID string, startedAt time.Time) {
	defer s.observePipeline(s.clock.Now())

	subs, err := s.subs.GetByBroadcaster(ctx, platform, broadcasterID)
	if err != nil {
		slog.Error("Failed to list subscriptions for broadcaster",
			"platform", platform, "broadcaster_id", broadcasterID, "error", err)
		return
	}

	for i := range subs {
		sub := &subs[i]
		if err := s.notifyOnline(ctx, sub, streamID, startedAt); err != nil {
			slog.Error("Online notification failed",
				"platform", platform,
				"broadcaster_id", broadcasterID,
				"guild_id", sub.GuildID,
				"error", err)
		}
	}
}

// notifyOnline serializes go-live handling per subscription ID: the
// open-session check, dispatch and persist run as one unit, and a
// concurrent trigger for the same subscription joins the in-flight call
// instead of issuing a second create.
func (s *Service) notifyOnline(ctx context.Context, sub *domain.Subscription, streamID string, startedAt time.Time) error {
	_, err, _ := s.flight.Do(sub.ID.String(), func() (any, error) {
		return nil, s.dispatchOnline(ctx, sub, streamID, startedAt)
	})
	return err
}

func (s *Service) dispatchOnline(ctx context.Context, sub *domain.Subscription, streamID string, startedAt time.Time) error {
	live, err := s.resolver.FetchLive(ctx, sub)
	if err != nil {
		// Degraded but still announced: the webhook already told us the
		// channel is live.
		slog.Warn("Live state fetch failed, composing from event data only",
			"platform", sub.Platform, "name", sub.Name, "error", err)
		live = nil
	}

	started := startedAt.UTC()
	if started.IsZero() {
		started = s.clock.Now().UTC()
	}
	leg := &domain.StreamLeg{
		Subscription: sub,
		Online:       true,
		StartedAt:    &started,
		Live:         live,
	}
	if live != nil && live.StreamID == "" {
		live.StreamID = streamID
	}

	// A linked counterpart with an open session means this go-live joins
	// the existing combined message instead of creating a second one.
	if sub.Link != nil {
		open, err := s.openCounterpartSession(ctx, sub)
		if err != nil {
			return err
		}
		if open != nil {
			setLeg(open, sub.Platform, leg)
			updated, err := s.dispatcher.Dispatch(ctx, open, composer.Compose(open))
			if err != nil {
				return err
			}
			return s.messages.Update(ctx, updated)
		}
	}

	// Reuse an already-open session for this subscription (duplicate
	// online events refresh the message rather than duplicating it).
	open, err := s.messages.GetOpenBySubscription(ctx, sub.ID)
	if err != nil && !errors.Is(err, domain.ErrStreamMessageNotFound) {
		return err
	}
	if open != nil {
		setLeg(open, sub.Platform, leg)
		updated, err := s.dispatcher.Dispatch(ctx, open, composer.Compose(open))
		if err != nil {
			return err
		}
		return s.messages.Update(ctx, updated)
	}

	msg := &domain.StreamMessage{
		ID:             uuid.NewString(),
		SubscriptionID: sub.ID,
		GuildID:        sub.GuildID,
		ChannelID:      sub.ChannelID,
		CreatedAt:      s.clock.Now().UTC(),
	}
	setLeg(msg, sub.Platform, leg)

	dispatched, err := s.dispatcher.Dispatch(ctx, msg, composer.Compose(msg))
	if err != nil {
		return err
	}
	return s.messages.Create(ctx, dispatched)
}

// HandleStreamOffline processes an offline webhook event: the session's
// leg is marked ended, a VOD is attached when resolvable, and the tracked
// message is updated in place. Fully-ended sessions are archived.
func (s *Service) HandleStreamOffline(ctx context.Context, platform domain.Platform, broadcasterID string) {
	defer s.observePipeline(s.clock.Now())

	subs, err := s.subs.GetByBroadcaster(ctx, platform, broadcasterID)
	if err != nil {
		slog.Error("Failed to list subscriptions for broadcaster",
			"platform", platform, "broadcaster_id", broadcasterID, "error", err)
		return
	}

	for i := range subs {
		sub := &subs[i]
		if err := s.notifyOffline(ctx, sub); err != nil {
			slog.Error("Offline notification failed",
				"platform", platform,
				"broadcaster_id", broadcasterID,
				"guild_id", sub.GuildID,
				"error", err)
		}
	}
}

func (s *Service) notifyOffline(ctx context.Context, sub *domain.Subscription) error {
	open, err := s.messages.GetOpenBySubscription(ctx, sub.ID)
	if err != nil {
		if errors.Is(err, domain.ErrStreamMessageNotFound) {
			// No tracked session: nothing to update.
			return nil
		}
		return err
	}

	leg := getLeg(open, sub.Platform)
	if leg == nil || !leg.Online {
		return nil
	}

	ended := s.clock.Now().UTC()
	leg.Online = false
	leg.EndedAt = &ended

	var streamID string
	var started time.Time
	if leg.Live != nil {
		streamID = leg.Live.StreamID
	}
	if leg.StartedAt != nil {
		started = *leg.StartedAt
	}

	vod, err := s.resolver.FetchVOD(ctx, sub, streamID, started)
	if err != nil {
		// VOD is best-effort; the ended block renders without it.
		slog.Warn("VOD fetch failed", "platform", sub.Platform, "name", sub.Name, "error", err)
	} else {
		leg.VOD = vod
	}

	updated, err := s.dispatcher.Dispatch(ctx, open, composer.Compose(open))
	if err != nil {
		return err
	}
	if err := s.messages.Update(ctx, updated); err != nil {
		return err
	}

	if updated.Ended() {
		return s.messages.Archive(ctx, updated.ID)
	}
	return nil
}

// TestArgs are the already-decoded arguments of the notification test
// command.
type TestArgs struct {
	GuildID          string
	TwitchName       string
	KickName         string
	Mode             resolver.Mode
	Global           bool
	InteractionToken string
}

// TestNotification runs the test/preview flow. The caller has already
// been acknowledged with a deferred response; everything here reports
// back by editing that response. A preview (global=false) never touches
// the store and never dispatches; a broadcast (global=true) performs a
// single one-off create.
func (s *Service) TestNotification(ctx context.Context, args TestArgs) {
	defer s.observePipeline(s.clock.Now())

	pair, err := s.registry.ResolvePair(ctx, args.GuildID, args.TwitchName, args.KickName)
	if err != nil {
		// Resolution failures must not proceed to fetch or render.
		s.replyError(ctx, args.InteractionToken, err)
		return
	}

	twitchLeg, kickLeg, err := s.resolver.ResolveLegs(ctx, pair.Twitch, pair.Kick, args.Mode)
	if err != nil {
		s.replyError(ctx, args.InteractionToken, err)
		return
	}

	msg := &domain.StreamMessage{
		ID:        domain.EphemeralMessageID,
		GuildID:   args.GuildID,
		ChannelID: targetChannel(pair),
		Twitch:    twitchLeg,
		Kick:      kickLeg,
		OneOff:    args.Global,
		CreatedAt: s.clock.Now().UTC(),
	}
	body := composer.Compose(msg)

	if !args.Global {
		// Preview only: the body goes straight back to the invoking user.
		if err := s.transport.UpdateDeferredResponse(ctx, args.InteractionToken, body); err != nil {
			slog.Error("Failed to edit deferred response", "error", err)
		}
		return
	}

	if _, err := s.dispatcher.Dispatch(ctx, msg, body); err != nil {
		s.replyError(ctx, args.InteractionToken, err)
		return
	}

	ack := domain.MessageBody{
		Content: fmt.Sprintf("Test notification sent to <#%s>.", msg.ChannelID),
	}
	if err := s.transport.UpdateDeferredResponse(ctx, args.InteractionToken, ack); err != nil {
		slog.Error("Failed to edit deferred response", "error", err)
	}
}

// RemoveSubscription deletes a subscription, severs any multistream link
// on both sides, and unsubscribes upstream when the last guild reference
// to the broadcaster is removed. Returns the removed subscription's name.
func (s *Service) RemoveSubscription(ctx context.Context, platform domain.Platform, guildID, name string) (string, error) {
	sub, err := s.registry.ResolveByName(ctx, platform, guildID, name)
	if err != nil {
		return "", err
	}

	if sub.Link != nil {
		if err := s.subs.SeverLink(ctx, sub.ID); err != nil {
			return "", apperrors.InternalError("failed to sever multistream link", err)
		}
	}
	if err := s.subs.Delete(ctx, sub.ID); err != nil {
		return "", apperrors.InternalError("failed to delete subscription", err)
	}

	remaining, err := s.subs.CountByBroadcaster(ctx, platform, sub.BroadcasterID)
	if err != nil {
		slog.Error("Failed to count remaining subscriptions",
			"platform", platform, "broadcaster_id", sub.BroadcasterID, "error", err)
		return sub.Name, nil
	}
	if remaining > 0 {
		return sub.Name, nil
	}

	// Last guild reference gone: drop the upstream event subscription in
	// the background. Failure here only costs us stray webhook events.
	broadcasterID := sub.BroadcasterID
	s.tasks.Submit("unsubscribe", func(ctx context.Context) {
		var err error
		switch platform {
		case domain.PlatformTwitch:
			err = s.twitch.Unsubscribe(ctx, broadcasterID)
		case domain.PlatformKick:
			var id int
			if id, err = strconv.Atoi(broadcasterID); err == nil {
				err = s.kick.Unsubscribe(ctx, id)
			}
		}
		if err != nil {
			slog.Error("Upstream unsubscribe failed",
				"platform", platform, "broadcaster_id", broadcasterID, "error", err)
		}
	})

	return sub.Name, nil
}

func (s *Service) observePipeline(start time.Time) {
	metrics.NotificationPipelineDurationSeconds.Observe(s.clock.Since(start).Seconds())
}

// replyError edits the deferred response with a user-visible message:
// the specific one for input/resolution errors, a generic one for
// upstream failures.
func (s *Service) replyError(ctx context.Context, token string, err error) {
	content := "Something went wrong, please try again later."
	if apperrors.IsUserFacing(err) {
		content = apperrors.AsStructuredError(err).Message
	} else {
		slog.Error("Test notification failed", "error", err)
	}
	body := domain.MessageBody{Content: content}
	if err := s.transport.UpdateDeferredResponse(ctx, token, body); err != nil {
		slog.Error("Failed to edit deferred response", "error", err)
	}
}

// openCounterpartSession returns the counterpart subscription's open
// session, or nil when there is none.
func (s *Service) openCounterpartSession(ctx context.Context, sub *domain.Subscription) (*domain.StreamMessage, error) {
	open, err := s.messages.GetOpenBySubscription(ctx, sub.Link.CounterpartID)
	if err != nil {
		if errors.Is(err, domain.ErrStreamMessageNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return open, nil
}

func setLeg(msg *domain.StreamMessage, platform domain.Platform, leg *domain.StreamLeg) {
	if platform == domain.PlatformKick {
		msg.Kick = leg
		return
	}
	msg.Twitch = leg
}

func getLeg(msg *domain.StreamMessage, platform domain.Platform) *domain.StreamLeg {
	if platform == domain.PlatformKick {
		return msg.Kick
	}
	return msg.Twitch
}

// targetChannel picks the channel a combined alert is sent to: the
// Twitch subscription's channel, falling back to the Kick one.
func targetChannel(pair *registry.Pair) string {
	if pair.Twitch != nil {
		return pair.Twitch.ChannelID
	}
	if pair.Kick != nil {
		return pair.Kick.ChannelID
	}
	return ""
}
