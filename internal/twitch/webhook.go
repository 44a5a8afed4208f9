package twitch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nicklaw5/helix/v2"

	"github.com/svglol/dinkdonkbot/internal/app"
	"github.com/svglol/dinkdonkbot/internal/domain"
	"github.com/svglol/dinkdonkbot/internal/metrics"
)

const (
	messageTypeHeader = "Twitch-Eventsub-Message-Type"

	messageTypeVerification = "webhook_callback_verification"
	messageTypeNotification = "notification"
	messageTypeRevocation   = "revocation"
)

// streamEventService is the subset of the application service the
// webhook handler triggers.
type streamEventService interface {
	HandleStreamOnline(ctx context.Context, platform domain.Platform, broadcasterID, streamID string, startedAt time.Time)
	HandleStreamOffline(ctx context.Context, platform domain.Platform, broadcasterID string)
	Tasks() *app.TaskRunner
}

// WebhookHandler handles Twitch EventSub webhook notifications with HMAC
// signature verification. Notification processing runs detached: Twitch
// is answered immediately and failures are observable only in logs and
// the notification message itself.
type WebhookHandler struct {
	secret  string
	service streamEventService
}

func NewWebhookHandler(secret string, service streamEventService) *WebhookHandler {
	return &WebhookHandler{secret: secret, service: service}
}

type notificationPayload struct {
	Challenge    string                     `json:"challenge"`
	Subscription helix.EventSubSubscription `json:"subscription"`
	Event        json.RawMessage            `json:"event"`
}

// HandleEventSub is the Echo handler for POST /webhooks/twitch.
func (h *WebhookHandler) HandleEventSub(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	if !helix.VerifyEventSubNotification(h.secret, c.Request().Header, string(body)) {
		slog.Warn("Rejected eventsub notification with bad signature")
		return c.NoContent(http.StatusForbidden)
	}

	var payload notificationPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	switch c.Request().Header.Get(messageTypeHeader) {
	case messageTypeVerification:
		return c.String(http.StatusOK, payload.Challenge)

	case messageTypeRevocation:
		slog.Warn("EventSub subscription revoked",
			"type", payload.Subscription.Type,
			"status", payload.Subscription.Status)
		return c.NoContent(http.StatusNoContent)

	case messageTypeNotification:
		h.handleNotification(payload)
		return c.NoContent(http.StatusNoContent)

	default:
		return c.NoContent(http.StatusNoContent)
	}
}

func (h *WebhookHandler) handleNotification(payload notificationPayload) {
	metrics.WebhookEventsTotal.WithLabelValues("twitch", payload.Subscription.Type).Inc()

	switch payload.Subscription.Type {
	case helix.EventSubTypeStreamOnline:
		var event helix.EventSubStreamOnlineEvent
		if err := json.Unmarshal(payload.Event, &event); err != nil {
			slog.Error("Failed to parse stream.online event", "error", err)
			return
		}
		h.service.Tasks().Submit("twitch-online", func(ctx context.Context) {
			h.service.HandleStreamOnline(ctx, domain.PlatformTwitch,
				event.BroadcasterUserID, event.ID, event.StartedAt.Time)
		})

	case helix.EventSubTypeStreamOffline:
		var event helix.EventSubStreamOfflineEvent
		if err := json.Unmarshal(payload.Event, &event); err != nil {
			slog.Error("Failed to parse stream.offline event", "error", err)
			return
		}
		h.service.Tasks().Submit("twitch-offline", func(ctx context.Context) {
			h.service.HandleStreamOffline(ctx, domain.PlatformTwitch, event.BroadcasterUserID)
		})

	default:
		slog.Debug("Ignoring eventsub notification", "type", payload.Subscription.Type)
	}
}
