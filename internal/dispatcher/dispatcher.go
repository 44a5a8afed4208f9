// Package dispatcher creates or updates the single Discord message
// representing a session.
package dispatcher

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/svglol/dinkdonkbot/internal/domain"
	"github.com/svglol/dinkdonkbot/internal/metrics"
)

// NotificationDispatcher is the sole mechanism keeping "one message per
// session": an absent message ID means create, a present one means an
// in-place update. Concurrent dispatches of the same session record are
// collapsed with singleflight so re-renders cannot interleave; callers
// that may race on the create itself serialize before building the
// record (see the app layer's go-live handling). Transport failures are
// returned to the caller as-is; there is no retry and no backoff.
type NotificationDispatcher struct {
	transport domain.MessageTransport
	group     singleflight.Group
}

func New(transport domain.MessageTransport) *NotificationDispatcher {
	return &NotificationDispatcher{transport: transport}
}

// Dispatch sends the body for the snapshot. On create, the returned
// snapshot carries the new Discord message ID; on update the ID is
// unchanged. One-off broadcasts always create and never record an ID to
// update later.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, msg *domain.StreamMessage, body domain.MessageBody) (*domain.StreamMessage, error) {
	if msg.OneOff {
		return d.createOneOff(ctx, msg, body)
	}

	result, err, _ := d.group.Do(sessionKey(msg), func() (any, error) {
		if msg.MessageID == "" {
			return d.create(ctx, msg, body)
		}
		return d.update(ctx, msg, body)
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.StreamMessage), nil
}

func (d *NotificationDispatcher) create(ctx context.Context, msg *domain.StreamMessage, body domain.MessageBody) (*domain.StreamMessage, error) {
	messageID, err := d.transport.CreateMessage(ctx, msg.ChannelID, body)
	if err != nil {
		metrics.NotificationsDispatchedTotal.WithLabelValues("create", "error").Inc()
		return nil, err
	}
	metrics.NotificationsDispatchedTotal.WithLabelValues("create", "success").Inc()

	out := *msg
	out.MessageID = messageID
	return &out, nil
}

func (d *NotificationDispatcher) update(ctx context.Context, msg *domain.StreamMessage, body domain.MessageBody) (*domain.StreamMessage, error) {
	if err := d.transport.UpdateMessage(ctx, msg.ChannelID, msg.MessageID, body); err != nil {
		metrics.NotificationsDispatchedTotal.WithLabelValues("update", "error").Inc()
		return nil, err
	}
	metrics.NotificationsDispatchedTotal.WithLabelValues("update", "success").Inc()
	return msg, nil
}

// createOneOff performs the explicit create of a one-off broadcast. The
// returned snapshot deliberately keeps an empty message ID: nothing is
// tracked for later updates.
func (d *NotificationDispatcher) createOneOff(ctx context.Context, msg *domain.StreamMessage, body domain.MessageBody) (*domain.StreamMessage, error) {
	if _, err := d.transport.CreateMessage(ctx, msg.ChannelID, body); err != nil {
		metrics.NotificationsDispatchedTotal.WithLabelValues("create", "error").Inc()
		return nil, err
	}
	metrics.NotificationsDispatchedTotal.WithLabelValues("create", "success").Inc()
	return msg, nil
}

// sessionKey serializes dispatches per session. Ephemeral snapshots fall
// back to the target channel, which is as close to a session identity as
// they have.
func sessionKey(msg *domain.StreamMessage) string {
	if msg.Ephemeral() {
		return "ephemeral:" + msg.ChannelID
	}
	return msg.ID
}
