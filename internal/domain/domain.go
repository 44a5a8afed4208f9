package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
)

// --- Model types ---

// Platform identifies a streaming platform a subscription tracks.
type Platform string

const (
	PlatformTwitch Platform = "twitch"
	PlatformKick   Platform = "kick"
)

// Subscription tracks one broadcaster on one platform for one guild.
// Link is eager-loaded by the repository and nil when the subscription
// has no multistream counterpart.
type Subscription struct {
	ID              uuid.UUID
	Platform        Platform
	GuildID         string
	BroadcasterID   string
	Name            string // Twitch login or Kick slug
	DisplayName     string
	ChannelID       string // Discord channel receiving alerts
	RoleID          string // optional ping role
	MessageTemplate string // optional custom alert text
	Link            *MultiStreamLink
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MultiStreamLink pairs a subscription with its counterpart-platform
// subscription. Each side of a pair owns its own link record; a healthy
// pair is symmetric (A.Link.CounterpartID == B.ID and vice versa).
// Asymmetry is a data-integrity fault and is never silently corrected.
type MultiStreamLink struct {
	SubscriptionID uuid.UUID
	CounterpartID  uuid.UUID
	CreatedAt      time.Time
}

// LiveState is the raw live metadata fetched from a platform.
type LiveState struct {
	StreamID        string    `json:"stream_id"`
	Title           string    `json:"title"`
	Game            string    `json:"game,omitempty"`
	ViewerCount     int       `json:"viewer_count"`
	StartedAt       time.Time `json:"started_at"`
	ThumbnailURL    string    `json:"thumbnail_url,omitempty"`
	StreamerName    string    `json:"streamer_name"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	URL             string    `json:"url"`
}

// VOD is a recorded replay of a finished session.
type VOD struct {
	ID           string    `json:"id"`
	StreamID     string    `json:"stream_id,omitempty"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Duration     string    `json:"duration,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
}

// StreamLeg is one platform's view of a session: the subscription it
// belongs to, the online flag and timestamps, and the raw state payload
// (live metadata while online, VOD reference after the session ends).
type StreamLeg struct {
	Subscription *Subscription
	Online       bool
	StartedAt    *time.Time
	EndedAt      *time.Time
	Live         *LiveState
	VOD          *VOD
}

// EphemeralMessageID marks a StreamMessage constructed for test/preview
// flows. Ephemeral records are never written to durable storage.
const EphemeralMessageID = "ephemeral"

// StreamMessage is the session snapshot: one continuous live session (or
// a synthetic test session) and the single Discord message representing
// it. The same message is edited across the life of a session, never
// duplicated.
type StreamMessage struct {
	ID             string // uuid string, or EphemeralMessageID for previews
	SubscriptionID uuid.UUID
	GuildID        string
	ChannelID      string // Discord target channel
	MessageID      string // Discord message ID, empty until first dispatch
	Twitch         *StreamLeg
	Kick           *StreamLeg
	OneOff         bool // one-off broadcast: always create, never track
	Archived       bool
	CreatedAt      time.Time
}

// Ephemeral reports whether this snapshot is a test/preview construct.
func (m *StreamMessage) Ephemeral() bool {
	return m.ID == EphemeralMessageID
}

// Ended reports whether every leg that was part of this session is offline.
func (m *StreamMessage) Ended() bool {
	if m.Twitch != nil && m.Twitch.Online {
		return false
	}
	if m.Kick != nil && m.Kick.Online {
		return false
	}
	return m.Twitch != nil || m.Kick != nil
}

// MessageBody is the structured payload dispatched to Discord. Clients
// render it literally, so the composer must produce the exact schema.
type MessageBody struct {
	Content    string
	Embeds     []*discordgo.MessageEmbed
	Components []discordgo.MessageComponent
}

// --- Collaborator interfaces ---

// SubscriptionRepository is the keyed lookup/filter service over stored
// subscriptions. FindByName matches case-insensitively and partially,
// scoped to a guild, and eager-loads MultiStreamLink.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *Subscription) error
	CreateLink(ctx context.Context, a, b uuid.UUID) error
	FindByName(ctx context.Context, platform Platform, guildID, namePattern string) ([]Subscription, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	GetByBroadcaster(ctx context.Context, platform Platform, broadcasterID string) ([]Subscription, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SeverLink(ctx context.Context, subscriptionID uuid.UUID) error
	CountByBroadcaster(ctx context.Context, platform Platform, broadcasterID string) (int, error)
	ListNames(ctx context.Context, platform Platform, guildID string) ([]string, error)
}

// StreamMessageRepository persists session snapshots. At most one
// non-archived record with a populated message ID exists per
// subscription at a time.
type StreamMessageRepository interface {
	Create(ctx context.Context, msg *StreamMessage) error
	Update(ctx context.Context, msg *StreamMessage) error
	GetOpenBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*StreamMessage, error)
	Archive(ctx context.Context, id string) error
}

// TwitchStreamer is broadcaster profile data from the Twitch API.
type TwitchStreamer struct {
	ID              string
	Login           string
	DisplayName     string
	ProfileImageURL string
}

// TwitchClient is the Twitch platform collaborator. Lookups that find
// nothing return nil without error; any failure is opaque to the core.
type TwitchClient interface {
	GetStreamerDetails(ctx context.Context, login string) (*TwitchStreamer, error)
	GetStreamDetails(ctx context.Context, login string) (*LiveState, error)
	GetLatestVod(ctx context.Context, broadcasterID, streamID string) (*VOD, error)
	Subscribe(ctx context.Context, broadcasterID string) error
	Unsubscribe(ctx context.Context, broadcasterID string) error
}

// KickChannel is channel data from the Kick API.
type KickChannel struct {
	BroadcasterID   int
	Slug            string
	DisplayName     string
	ProfileImageURL string
	Live            bool
}

// KickClient is the Kick platform collaborator.
type KickClient interface {
	GetChannel(ctx context.Context, slug string) (*KickChannel, error)
	GetLiveStream(ctx context.Context, slug string) (*LiveState, error)
	GetLatestVod(ctx context.Context, slug string, startedAt time.Time) (*VOD, error)
	Subscribe(ctx context.Context, broadcasterID int) error
	Unsubscribe(ctx context.Context, broadcasterID int) error
}

// MessageTransport sends and edits Discord messages. Non-success
// responses surface as failures, never partial successes.
type MessageTransport interface {
	CreateMessage(ctx context.Context, channelID string, body MessageBody) (string, error)
	UpdateMessage(ctx context.Context, channelID, messageID string, body MessageBody) error
	UpdateDeferredResponse(ctx context.Context, interactionToken string, body MessageBody) error
}
