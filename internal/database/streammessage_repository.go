package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/svglol/dinkdonkbot/internal/domain"
)

// legRecord is the persisted form of a StreamLeg. The subscription is
// stored by ID and rehydrated on load.
type legRecord struct {
	SubscriptionID uuid.UUID         `json:"subscription_id"`
	Online         bool              `json:"online"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	EndedAt        *time.Time        `json:"ended_at,omitempty"`
	Live           *domain.LiveState `json:"live,omitempty"`
	VOD            *domain.VOD       `json:"vod,omitempty"`
}

// StreamMessageRepo implements domain.StreamMessageRepository backed by
// PostgreSQL. Ephemeral snapshots are rejected: they must never reach
// durable storage.
type StreamMessageRepo struct {
	pool *pgxpool.Pool
	subs *SubscriptionRepo
}

func NewStreamMessageRepo(pool *pgxpool.Pool, subs *SubscriptionRepo) *StreamMessageRepo {
	return &StreamMessageRepo{pool: pool, subs: subs}
}

func (r *StreamMessageRepo) Create(ctx context.Context, msg *domain.StreamMessage) error {
	if msg.Ephemeral() {
		return fmt.Errorf("refusing to persist ephemeral stream message")
	}

	twitchLeg, err := marshalLeg(msg.Twitch)
	if err != nil {
		return err
	}
	kickLeg, err := marshalLeg(msg.Kick)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO stream_messages (id, subscription_id, guild_id, channel_id, message_id, twitch_leg, kick_leg, archived, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		msg.ID, msg.SubscriptionID, msg.GuildID, msg.ChannelID, msg.MessageID,
		twitchLeg, kickLeg, msg.Archived, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create stream message: %w", err)
	}
	return nil
}

func (r *StreamMessageRepo) Update(ctx context.Context, msg *domain.StreamMessage) error {
	if msg.Ephemeral() {
		return fmt.Errorf("refusing to persist ephemeral stream message")
	}

	twitchLeg, err := marshalLeg(msg.Twitch)
	if err != nil {
		return err
	}
	kickLeg, err := marshalLeg(msg.Kick)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE stream_messages
		SET message_id = $2, twitch_leg = $3, kick_leg = $4, archived = $5
		WHERE id = $1`,
		msg.ID, msg.MessageID, twitchLeg, kickLeg, msg.Archived)
	if err != nil {
		return fmt.Errorf("failed to update stream message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStreamMessageNotFound
	}
	return nil
}

// GetOpenBySubscription returns the subscription's non-archived session.
// Either leg may reference the subscription: a combined multistream
// message is owned by one side but carries both.
func (r *StreamMessageRepo) GetOpenBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*domain.StreamMessage, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, subscription_id, guild_id, channel_id, message_id, twitch_leg, kick_leg, archived, created_at
		FROM stream_messages
		WHERE NOT archived
		  AND (subscription_id = $1
		       OR twitch_leg->>'subscription_id' = $2
		       OR kick_leg->>'subscription_id' = $2)
		ORDER BY created_at DESC
		LIMIT 1`,
		subscriptionID, subscriptionID.String())

	msg, err := r.scanMessage(ctx, row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStreamMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open stream message: %w", err)
	}
	return msg, nil
}

func (r *StreamMessageRepo) Archive(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE stream_messages SET archived = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to archive stream message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStreamMessageNotFound
	}
	return nil
}

func (r *StreamMessageRepo) scanMessage(ctx context.Context, row pgx.Row) (*domain.StreamMessage, error) {
	var msg domain.StreamMessage
	var twitchLeg, kickLeg []byte

	err := row.Scan(&msg.ID, &msg.SubscriptionID, &msg.GuildID, &msg.ChannelID,
		&msg.MessageID, &twitchLeg, &kickLeg, &msg.Archived, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}

	if msg.Twitch, err = r.unmarshalLeg(ctx, twitchLeg); err != nil {
		return nil, err
	}
	if msg.Kick, err = r.unmarshalLeg(ctx, kickLeg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func marshalLeg(leg *domain.StreamLeg) ([]byte, error) {
	if leg == nil {
		return nil, nil
	}
	record := legRecord{
		Online:    leg.Online,
		StartedAt: leg.StartedAt,
		EndedAt:   leg.EndedAt,
		Live:      leg.Live,
		VOD:       leg.VOD,
	}
	if leg.Subscription != nil {
		record.SubscriptionID = leg.Subscription.ID
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream leg: %w", err)
	}
	return data, nil
}

func (r *StreamMessageRepo) unmarshalLeg(ctx context.Context, data []byte) (*domain.StreamLeg, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var record legRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stream leg: %w", err)
	}

	leg := &domain.StreamLeg{
		Online:    record.Online,
		StartedAt: record.StartedAt,
		EndedAt:   record.EndedAt,
		Live:      record.Live,
		VOD:       record.VOD,
	}
	if record.SubscriptionID != uuid.Nil {
		sub, err := r.subs.GetByID(ctx, record.SubscriptionID)
		if err != nil && !errors.Is(err, domain.ErrSubscriptionNotFound) {
			return nil, err
		}
		leg.Subscription = sub
	}
	return leg, nil
}
