package kick

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/svglol/dinkdonkbot/internal/app"
	"github.com/svglol/dinkdonkbot/internal/domain"
	"github.com/svglol/dinkdonkbot/internal/metrics"
)

const (
	headerEventType        = "Kick-Event-Type"
	headerMessageID        = "Kick-Event-Message-Id"
	headerMessageTimestamp = "Kick-Event-Message-Timestamp"
	headerSignature        = "Kick-Event-Signature"
)

// streamEventService is the subset of the application service the
// webhook handler triggers.
type streamEventService interface {
	HandleStreamOnline(ctx context.Context, platform domain.Platform, broadcasterID, streamID string, startedAt time.Time)
	HandleStreamOffline(ctx context.Context, platform domain.Platform, broadcasterID string)
	Tasks() *app.TaskRunner
}

// WebhookHandler handles Kick event webhooks. Payloads are verified
// against Kick's published RSA public key before any processing, and
// notification handling runs detached so Kick is answered immediately.
type WebhookHandler struct {
	publicKey *rsa.PublicKey
	service   streamEventService
}

func NewWebhookHandler(publicKeyPEM string, service streamEventService) (*WebhookHandler, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("kick: webhook public key is not valid PEM")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("kick: failed to parse webhook public key: %w", err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("kick: webhook public key is not an RSA key")
	}

	return &WebhookHandler{publicKey: key, service: service}, nil
}

type livestreamStatusEvent struct {
	Broadcaster struct {
		UserID      int    `json:"user_id"`
		Username    string `json:"username"`
		ChannelSlug string `json:"channel_slug"`
	} `json:"broadcaster"`
	IsLive    bool   `json:"is_live"`
	Title     string `json:"title"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at"`
}

// HandleEvent is the Echo handler for POST /webhooks/kick.
func (h *WebhookHandler) HandleEvent(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	header := c.Request().Header
	if !h.verify(header.Get(headerMessageID), header.Get(headerMessageTimestamp), body, header.Get(headerSignature)) {
		slog.Warn("Rejected kick event with bad signature")
		return c.NoContent(http.StatusForbidden)
	}

	eventType := header.Get(headerEventType)
	metrics.WebhookEventsTotal.WithLabelValues("kick", eventType).Inc()

	if eventType != eventLivestreamStatus {
		slog.Debug("Ignoring kick event", "type", eventType)
		return c.NoContent(http.StatusOK)
	}

	var event livestreamStatusEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	h.dispatch(event)
	return c.NoContent(http.StatusOK)
}

// verify checks the RSA-SHA256 signature over "id.timestamp.body".
func (h *WebhookHandler) verify(messageID, timestamp string, body []byte, signature string) bool {
	if messageID == "" || timestamp == "" || signature == "" {
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}

	payload := fmt.Sprintf("%s.%s.%s", messageID, timestamp, body)
	digest := sha256.Sum256([]byte(payload))
	return rsa.VerifyPKCS1v15(h.publicKey, crypto.SHA256, digest[:], sig) == nil
}

func (h *WebhookHandler) dispatch(event livestreamStatusEvent) {
	broadcasterID := strconv.Itoa(event.Broadcaster.UserID)

	if event.IsLive {
		startedAt, _ := time.Parse(time.RFC3339, event.StartedAt)
		h.service.Tasks().Submit("kick-online", func(ctx context.Context) {
			h.service.HandleStreamOnline(ctx, domain.PlatformKick, broadcasterID, "", startedAt)
		})
		return
	}

	h.service.Tasks().Submit("kick-offline", func(ctx context.Context) {
		h.service.HandleStreamOffline(ctx, domain.PlatformKick, broadcasterID)
	})
}
