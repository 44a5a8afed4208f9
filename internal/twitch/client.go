// Package twitch adapts the Helix API to the platform client interface
// and handles EventSub webhook notifications.
package twitch

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nicklaw5/helix/v2"

	"github.com/svglol/dinkdonkbot/internal/domain"
)

const vodLookupWindow = 5

// Client implements domain.TwitchClient on top of Helix with an
// app access token refreshed on expiry.
type Client struct {
	mu          sync.Mutex
	client      *helix.Client
	tokenExpiry time.Time

	callbackURL   string
	webhookSecret string
}

func NewClient(clientID, clientSecret, callbackURL, webhookSecret string) (*Client, error) {
	client, err := helix.NewClient(&helix.Options{
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create helix client: %w", err)
	}

	return &Client{
		client:        client,
		callbackURL:   callbackURL,
		webhookSecret: webhookSecret,
	}, nil
}

// ensureAppToken requests a fresh app access token when the current one
// is missing or about to expire.
func (c *Client) ensureAppToken() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().Before(c.tokenExpiry) {
		return nil
	}

	resp, err := c.client.RequestAppAccessToken(nil)
	if err != nil {
		return fmt.Errorf("failed to request app access token: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code requesting app token: %d", resp.StatusCode)
	}

	c.client.SetAppAccessToken(resp.Data.AccessToken)
	c.tokenExpiry = time.Now().Add(time.Duration(resp.Data.ExpiresIn) * time.Second).Add(-time.Minute)
	return nil
}

func (c *Client) GetStreamerDetails(ctx context.Context, login string) (*domain.TwitchStreamer, error) {
	if err := c.ensureAppToken(); err != nil {
		return nil, err
	}

	resp, err := c.client.GetUsers(&helix.UsersParams{Logins: []string{login}})
	if err != nil {
		return nil, fmt.Errorf("failed to get twitch user: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code getting twitch user: %d, error: %s", resp.StatusCode, resp.ErrorMessage)
	}
	if len(resp.Data.Users) == 0 {
		return nil, nil
	}

	user := resp.Data.Users[0]
	return &domain.TwitchStreamer{
		ID:              user.ID,
		Login:           user.Login,
		DisplayName:     user.DisplayName,
		ProfileImageURL: user.ProfileImageURL,
	}, nil
}

// GetStreamDetails returns nil when the channel is offline.
func (c *Client) GetStreamDetails(ctx context.Context, login string) (*domain.LiveState, error) {
	if err := c.ensureAppToken(); err != nil {
		return nil, err
	}

	resp, err := c.client.GetStreams(&helix.StreamsParams{UserLogins: []string{login}})
	if err != nil {
		return nil, fmt.Errorf("failed to get twitch stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code getting twitch stream: %d, error: %s", resp.StatusCode, resp.ErrorMessage)
	}
	if len(resp.Data.Streams) == 0 {
		return nil, nil
	}

	stream := resp.Data.Streams[0]
	live := &domain.LiveState{
		StreamID:     stream.ID,
		Title:        stream.Title,
		Game:         stream.GameName,
		ViewerCount:  stream.ViewerCount,
		StartedAt:    stream.StartedAt,
		ThumbnailURL: stream.ThumbnailURL,
		StreamerName: stream.UserName,
		URL:          "https://twitch.tv/" + stream.UserLogin,
	}

	// Profile image comes from the user record; best-effort.
	if streamer, err := c.GetStreamerDetails(ctx, login); err == nil && streamer != nil {
		live.ProfileImageURL = streamer.ProfileImageURL
	}

	return live, nil
}

// GetLatestVod returns the broadcaster's archive matching the live
// session's stream ID, or the most recent archive when streamID is
// empty. No matching VOD returns nil without error.
func (c *Client) GetLatestVod(ctx context.Context, broadcasterID, streamID string) (*domain.VOD, error) {
	if err := c.ensureAppToken(); err != nil {
		return nil, err
	}

	resp, err := c.client.GetVideos(&helix.VideosParams{
		UserID: broadcasterID,
		Type:   "archive",
		First:  vodLookupWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get twitch videos: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code getting twitch videos: %d, error: %s", resp.StatusCode, resp.ErrorMessage)
	}
	if len(resp.Data.Videos) == 0 {
		return nil, nil
	}

	for _, video := range resp.Data.Videos {
		if streamID != "" && video.StreamID != streamID {
			continue
		}
		return toVOD(video), nil
	}
	if streamID == "" {
		return toVOD(resp.Data.Videos[0]), nil
	}
	return nil, nil
}

func toVOD(video helix.Video) *domain.VOD {
	published, _ := time.Parse(time.RFC3339, video.CreatedAt)
	return &domain.VOD{
		ID:           video.ID,
		StreamID:     video.StreamID,
		Title:        video.Title,
		URL:          video.URL,
		Duration:     video.Duration,
		ThumbnailURL: video.ThumbnailURL,
		PublishedAt:  published,
	}
}

// Subscribe creates stream.online and stream.offline EventSub
// subscriptions for the broadcaster over the webhook transport.
func (c *Client) Subscribe(ctx context.Context, broadcasterID string) error {
	if c.callbackURL == "" {
		return fmt.Errorf("twitch webhook callback is not configured")
	}
	if err := c.ensureAppToken(); err != nil {
		return err
	}

	for _, subType := range []string{helix.EventSubTypeStreamOnline, helix.EventSubTypeStreamOffline} {
		resp, err := c.client.CreateEventSubSubscription(&helix.EventSubSubscription{
			Type:    subType,
			Version: "1",
			Condition: helix.EventSubCondition{
				BroadcasterUserID: broadcasterID,
			},
			Transport: helix.EventSubTransport{
				Method:   "webhook",
				Callback: c.callbackURL,
				Secret:   c.webhookSecret,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create eventsub subscription: %w", err)
		}
		// 409 means the subscription already exists on Twitch; treat as success.
		if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusConflict {
			return fmt.Errorf("unexpected status code creating eventsub subscription: %d, error: %s", resp.StatusCode, resp.ErrorMessage)
		}
	}
	return nil
}

// Unsubscribe removes all EventSub subscriptions for the broadcaster.
func (c *Client) Unsubscribe(ctx context.Context, broadcasterID string) error {
	if err := c.ensureAppToken(); err != nil {
		return err
	}

	resp, err := c.client.GetEventSubSubscriptions(&helix.EventSubSubscriptionsParams{
		UserID: broadcasterID,
	})
	if err != nil {
		return fmt.Errorf("failed to list eventsub subscriptions: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code listing eventsub subscriptions: %d, error: %s", resp.StatusCode, resp.ErrorMessage)
	}

	for _, sub := range resp.Data.EventSubSubscriptions {
		if sub.Condition.BroadcasterUserID != broadcasterID {
			continue
		}
		delResp, err := c.client.RemoveEventSubSubscription(sub.ID)
		if err != nil {
			return fmt.Errorf("failed to remove eventsub subscription: %w", err)
		}
		if delResp.StatusCode != http.StatusNoContent {
			return fmt.Errorf("unexpected status code removing eventsub subscription: %d", delResp.StatusCode)
		}
	}
	return nil
}
