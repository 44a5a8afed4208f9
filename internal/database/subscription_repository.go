package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/svglol/dinkdonkbot/internal/domain"
)

// subscriptionColumns must match the Scan order in scanSubscription.
const subscriptionColumns = `s.id, s.platform, s.guild_id, s.broadcaster_id, s.name, s.display_name,
	s.channel_id, s.role_id, s.message_template, s.created_at, s.updated_at,
	l.counterpart_id, l.created_at`

// SubscriptionRepo implements domain.SubscriptionRepository backed by
// PostgreSQL. Multistream links are eager-loaded on every read.
type SubscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *SubscriptionRepo {
	return &SubscriptionRepo{pool: pool}
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	var counterpartID *uuid.UUID
	var linkCreatedAt *time.Time

	err := row.Scan(
		&sub.ID, &sub.Platform, &sub.GuildID, &sub.BroadcasterID, &sub.Name, &sub.DisplayName,
		&sub.ChannelID, &sub.RoleID, &sub.MessageTemplate, &sub.CreatedAt, &sub.UpdatedAt,
		&counterpartID, &linkCreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if counterpartID != nil {
		sub.Link = &domain.MultiStreamLink{
			SubscriptionID: sub.ID,
			CounterpartID:  *counterpartID,
		}
		if linkCreatedAt != nil {
			sub.Link.CreatedAt = *linkCreatedAt
		}
	}
	return &sub, nil
}

// Create inserts a new subscription row.
func (r *SubscriptionRepo) Create(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, platform, guild_id, broadcaster_id, name, display_name,
			channel_id, role_id, message_template, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`

	_, err := r.pool.Exec(ctx, query,
		sub.ID, sub.Platform, sub.GuildID, sub.BroadcasterID, sub.Name, sub.DisplayName,
		sub.ChannelID, sub.RoleID, sub.MessageTemplate, sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// CreateLink writes both sides of a multistream pair in one
// transaction, replacing any link either side already had. Either both
// records land or neither does.
func (r *SubscriptionRepo) CreateLink(ctx context.Context, a, b uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin link transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		DELETE FROM multistream_links
		WHERE subscription_id IN ($1, $2) OR counterpart_id IN ($1, $2)`, a, b)
	if err != nil {
		return fmt.Errorf("failed to clear previous links: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO multistream_links (subscription_id, counterpart_id)
		VALUES ($1, $2), ($2, $1)`, a, b)
	if err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit link transaction: %w", err)
	}
	return nil
}

// FindByName matches case-insensitively and partially within a guild.
func (r *SubscriptionRepo) FindByName(ctx context.Context, platform domain.Platform, guildID, namePattern string) ([]domain.Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM subscriptions s
		LEFT JOIN multistream_links l ON l.subscription_id = s.id
		WHERE s.platform = $1 AND s.guild_id = $2 AND s.name ILIKE $3
		ORDER BY s.name`, subscriptionColumns)

	rows, err := r.pool.Query(ctx, query, platform, guildID, "%"+escapeLike(namePattern)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to find subscriptions by name: %w", err)
	}
	defer rows.Close()

	return collectSubscriptions(rows)
}

func (r *SubscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM subscriptions s
		LEFT JOIN multistream_links l ON l.subscription_id = s.id
		WHERE s.id = $1`, subscriptionColumns)

	sub, err := scanSubscription(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription by ID: %w", err)
	}
	return sub, nil
}

func (r *SubscriptionRepo) GetByBroadcaster(ctx context.Context, platform domain.Platform, broadcasterID string) ([]domain.Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM subscriptions s
		LEFT JOIN multistream_links l ON l.subscription_id = s.id
		WHERE s.platform = $1 AND s.broadcaster_id = $2
		ORDER BY s.guild_id`, subscriptionColumns)

	rows, err := r.pool.Query(ctx, query, platform, broadcasterID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriptions by broadcaster: %w", err)
	}
	defer rows.Close()

	return collectSubscriptions(rows)
}

func (r *SubscriptionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// SeverLink removes the link records on both sides of a pair, orphaning
// any session either side produced.
func (r *SubscriptionRepo) SeverLink(ctx context.Context, subscriptionID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM multistream_links WHERE subscription_id = $1 OR counterpart_id = $1`,
		subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to sever multistream link: %w", err)
	}
	return nil
}

func (r *SubscriptionRepo) CountByBroadcaster(ctx context.Context, platform domain.Platform, broadcasterID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE platform = $1 AND broadcaster_id = $2`,
		platform, broadcasterID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count subscriptions by broadcaster: %w", err)
	}
	return count, nil
}

func (r *SubscriptionRepo) ListNames(ctx context.Context, platform domain.Platform, guildID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT name FROM subscriptions WHERE platform = $1 AND guild_id = $2 ORDER BY name`,
		platform, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscription names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan subscription name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func collectSubscriptions(rows pgx.Rows) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// escapeLike neutralizes ILIKE wildcards in user-supplied patterns.
func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}
