// Package kick adapts the Kick API to the platform client interface and
// handles Kick event webhooks. Channel, livestream and event
// subscription calls go through the official API; VODs are not covered
// by it, so they are fetched from the site API directly.
package kick

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	kicksdk "github.com/glichtv/kick-sdk"

	"github.com/svglol/dinkdonkbot/internal/domain"
)

const (
	siteAPIBase = "https://kick.com/api/v2"

	eventLivestreamStatus = "livestream.status.updated"
)

// Client implements domain.KickClient.
type Client struct {
	client      *kicksdk.Client
	http        *http.Client
	siteAPI     string
	callbackURL string
}

func NewClient(clientID, clientSecret, callbackURL string) (*Client, error) {
	client := kicksdk.NewClient(
		kicksdk.WithCredentials(kicksdk.Credentials{
			ClientID:     clientID,
			ClientSecret: clientSecret,
		}),
	)

	return &Client{
		client:      client,
		http:        &http.Client{Timeout: 10 * time.Second},
		siteAPI:     siteAPIBase,
		callbackURL: callbackURL,
	}, nil
}

// GetChannel returns channel data for a slug, nil when unknown.
func (c *Client) GetChannel(ctx context.Context, slug string) (*domain.KickChannel, error) {
	resp, err := c.client.Channels().GetBySlugs(ctx, kicksdk.GetChannelsBySlugsInput{
		Slugs: []string{slug},
	})
	if err != nil {
		return nil, fmt.Errorf("kick: failed to get channel: %w", err)
	}
	if len(resp.Payload) == 0 {
		return nil, nil
	}

	channel := resp.Payload[0]
	return &domain.KickChannel{
		BroadcasterID:   channel.BroadcasterUserID,
		Slug:            channel.Slug,
		DisplayName:     channel.Slug,
		ProfileImageURL: channel.BannerPicture,
		Live:            channel.Stream.IsLive,
	}, nil
}

// GetLiveStream returns the channel's current live state, nil when offline.
func (c *Client) GetLiveStream(ctx context.Context, slug string) (*domain.LiveState, error) {
	channel, err := c.GetChannel(ctx, slug)
	if err != nil {
		return nil, err
	}
	if channel == nil {
		return nil, nil
	}

	resp, err := c.client.Livestreams().Get(ctx, kicksdk.GetLivestreamsInput{
		BroadcasterUserIDs: []int{channel.BroadcasterID},
	})
	if err != nil {
		return nil, fmt.Errorf("kick: failed to get livestream: %w", err)
	}
	if len(resp.Payload) == 0 {
		return nil, nil
	}

	stream := resp.Payload[0]
	live := &domain.LiveState{
		StreamID:        strconv.Itoa(stream.ChannelID),
		Title:           stream.StreamTitle,
		Game:            stream.Category.Name,
		ViewerCount:     stream.ViewerCount,
		ThumbnailURL:    stream.Thumbnail,
		StreamerName:    stream.Slug,
		ProfileImageURL: channel.ProfileImageURL,
		URL:             "https://kick.com/" + stream.Slug,
	}
	if started, err := time.Parse(time.RFC3339, stream.StartedAt); err == nil {
		live.StartedAt = started
	}
	return live, nil
}

// siteVideo is the site API's VOD shape.
type siteVideo struct {
	ID           int    `json:"id"`
	LiveStreamID int    `json:"live_stream_id"`
	SessionTitle string `json:"session_title"`
	StartTime    string `json:"start_time"`
	Duration     int64  `json:"duration"` // milliseconds
	Thumbnail    struct {
		Src string `json:"src"`
	} `json:"thumbnail"`
	Video struct {
		UUID string `json:"uuid"`
	} `json:"video"`
}

// GetLatestVod selects the nearest VOD starting at/after startedAt, or
// the most recent one for a zero startedAt. No match returns nil.
func (c *Client) GetLatestVod(ctx context.Context, slug string, startedAt time.Time) (*domain.VOD, error) {
	url := fmt.Sprintf("%s/channels/%s/videos", c.siteAPI, slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("kick: failed to build videos request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kick: failed to fetch videos: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kick: unexpected status code fetching videos: %d", resp.StatusCode)
	}

	var videos []siteVideo
	if err := json.NewDecoder(resp.Body).Decode(&videos); err != nil {
		return nil, fmt.Errorf("kick: failed to decode videos: %w", err)
	}

	// The site API returns videos newest-first; sessions can start a
	// little before the webhook fires, so allow a small slack.
	const slack = 5 * time.Minute
	var best *siteVideo
	var bestStart time.Time
	for i := range videos {
		start, err := time.Parse("2006-01-02 15:04:05", videos[i].StartTime)
		if err != nil {
			continue
		}
		if startedAt.IsZero() {
			best = &videos[i]
			bestStart = start
			break
		}
		if start.Before(startedAt.Add(-slack)) {
			continue
		}
		if best == nil || start.Before(bestStart) {
			best = &videos[i]
			bestStart = start
		}
	}
	if best == nil {
		return nil, nil
	}

	return &domain.VOD{
		ID:           strconv.Itoa(best.ID),
		StreamID:     strconv.Itoa(best.LiveStreamID),
		Title:        best.SessionTitle,
		URL:          fmt.Sprintf("https://kick.com/%s/videos/%s", slug, best.Video.UUID),
		Duration:     formatVodDuration(best.Duration),
		ThumbnailURL: best.Thumbnail.Src,
		PublishedAt:  bestStart,
	}, nil
}

// Subscribe creates a livestream status event subscription over webhook
// transport.
func (c *Client) Subscribe(ctx context.Context, broadcasterID int) error {
	if c.callbackURL == "" {
		return fmt.Errorf("kick: webhook callback is not configured")
	}

	_, err := c.client.Events().Subscribe(ctx, kicksdk.EventsSubscribeInput{
		BroadcasterUserID: broadcasterID,
		Method:            kicksdk.EventsSubscriptionWebhook,
		Events: []kicksdk.EventInput{
			{Name: eventLivestreamStatus, Version: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("kick: failed to subscribe to events: %w", err)
	}
	return nil
}

// Unsubscribe removes the broadcaster's event subscriptions.
func (c *Client) Unsubscribe(ctx context.Context, broadcasterID int) error {
	resp, err := c.client.Events().GetSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("kick: failed to list event subscriptions: %w", err)
	}

	var ids []string
	for _, sub := range resp.Payload {
		if sub.BroadcasterUserID == broadcasterID {
			ids = append(ids, sub.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	if err := c.client.Events().Unsubscribe(ctx, kicksdk.EventsUnsubscribeInput{IDs: ids}); err != nil {
		return fmt.Errorf("kick: failed to unsubscribe from events: %w", err)
	}
	return nil
}

func formatVodDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%dm", h, m)
}
