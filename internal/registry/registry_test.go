package registry

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svglol/dinkdonkbot/internal/domain"
	apperrors "github.com/svglol/dinkdonkbot/internal/errors"
)

// --- Mock implementations ---

type mockSubscriptionRepo struct {
	createFn             func(ctx context.Context, sub *domain.Subscription) error
	createLinkFn         func(ctx context.Context, a, b uuid.UUID) error
	findByNameFn         func(ctx context.Context, platform domain.Platform, guildID, namePattern string) ([]domain.Subscription, error)
	getByIDFn            func(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)
	getByBroadcasterFn   func(ctx context.Context, platform domain.Platform, broadcasterID string) ([]domain.Subscription, error)
	deleteFn             func(ctx context.Context, id uuid.UUID) error
	severLinkFn          func(ctx context.Context, subscriptionID uuid.UUID) error
	countByBroadcasterFn func(ctx context.Context, platform domain.Platform, broadcasterID string) (int, error)
	listNamesFn          func(ctx context.Context, platform domain.Platform, guildID string) ([]string, error)
}

func (m *mockSubscriptionRepo) Create(ctx context.Context, sub *domain.Subscription) error {
	if m.createFn != nil {
		return m.createFn(ctx, sub)
	}
	return fmt.Errorf("not implemented")
}

func (m *mockSubscriptionRepo) CreateLink(ctx context.Context, a, b uuid.UUID) error {
	if m.createLinkFn != nil {
		return m.createLinkFn(ctx, a, b)
	}
	return fmt.Errorf("not implemented")
}

func (m *mockSubscriptionRepo) FindByName(ctx context.Context, platform domain.Platform, guildID, namePattern string) ([]domain.Subscription, error) {
	if m.findByNameFn != nil {
		return m.findByNameFn(ctx, platform, guildID, namePattern)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockSubscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockSubscriptionRepo) GetByBroadcaster(ctx context.Context, platform domain.Platform, broadcasterID string) ([]domain.Subscription, error) {
	if m.getByBroadcasterFn != nil {
		return m.getByBroadcasterFn(ctx, platform, broadcasterID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockSubscriptionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return fmt.Errorf("not implemented")
}

func (m *mockSubscriptionRepo) SeverLink(ctx context.Context, subscriptionID uuid.UUID) error {
	if m.severLinkFn != nil {
		return m.severLinkFn(ctx, subscriptionID)
	}
	return fmt.Errorf("not implemented")
}

func (m *mockSubscriptionRepo) CountByBroadcaster(ctx context.Context, platform domain.Platform, broadcasterID string) (int, error) {
	if m.countByBroadcasterFn != nil {
		return m.countByBroadcasterFn(ctx, platform, broadcasterID)
	}
	return 0, fmt.Errorf("not implemented")
}

func (m *mockSubscriptionRepo) ListNames(ctx context.Context, platform domain.Platform, guildID string) ([]string, error) {
	if m.listNamesFn != nil {
		return m.listNamesFn(ctx, platform, guildID)
	}
	return nil, fmt.Errorf("not implemented")
}

// --- Helpers ---

func linkedPair() (domain.Subscription, domain.Subscription) {
	twitch := domain.Subscription{
		ID:       uuid.New(),
		Platform: domain.PlatformTwitch,
		GuildID:  "guild-1",
		Name:     "forsen",
	}
	kick := domain.Subscription{
		ID:       uuid.New(),
		Platform: domain.PlatformKick,
		GuildID:  "guild-1",
		Name:     "forsen",
	}
	twitch.Link = &domain.MultiStreamLink{SubscriptionID: twitch.ID, CounterpartID: kick.ID}
	kick.Link = &domain.MultiStreamLink{SubscriptionID: kick.ID, CounterpartID: twitch.ID}
	return twitch, kick
}

func errorType(t *testing.T, err error) apperrors.ErrorType {
	t.Helper()
	structured := apperrors.AsStructuredError(err)
	require.NotNil(t, structured)
	return structured.Type
}

// --- ResolveByName ---

func TestResolveByName_ExactMatchWinsOverPartial(t *testing.T) {
	partial := domain.Subscription{ID: uuid.New(), Name: "forsenlol"}
	exact := domain.Subscription{ID: uuid.New(), Name: "Forsen"}

	repo := &mockSubscriptionRepo{
		findByNameFn: func(_ context.Context, _ domain.Platform, _, _ string) ([]domain.Subscription, error) {
			return []domain.Subscription{partial, exact}, nil
		},
	}
	reg := New(repo)

	sub, err := reg.ResolveByName(context.Background(), domain.PlatformTwitch, "guild-1", "forsen")
	require.NoError(t, err)
	assert.Equal(t, exact.ID, sub.ID)
}

func TestResolveByName_FallsBackToFirstPartialMatch(t *testing.T) {
	first := domain.Subscription{ID: uuid.New(), Name: "forsenlol"}
	repo := &mockSubscriptionRepo{
		findByNameFn: func(_ context.Context, _ domain.Platform, _, _ string) ([]domain.Subscription, error) {
			return []domain.Subscription{first, {ID: uuid.New(), Name: "forsenE"}}, nil
		},
	}
	reg := New(repo)

	sub, err := reg.ResolveByName(context.Background(), domain.PlatformTwitch, "guild-1", "forsen")
	require.NoError(t, err)
	assert.Equal(t, first.ID, sub.ID)
}

func TestResolveByName_NoMatchIsNotFound(t *testing.T) {
	repo := &mockSubscriptionRepo{
		findByNameFn: func(_ context.Context, _ domain.Platform, _, _ string) ([]domain.Subscription, error) {
			return nil, nil
		},
	}
	reg := New(repo)

	_, err := reg.ResolveByName(context.Background(), domain.PlatformKick, "guild-1", "nobody")
	require.Error(t, err)
	assert.Equal(t, apperrors.TypeNotFound, errorType(t, err))
}

func TestResolveByName_EmptyNameIsValidationError(t *testing.T) {
	reg := New(&mockSubscriptionRepo{})

	_, err := reg.ResolveByName(context.Background(), domain.PlatformTwitch, "guild-1", "   ")
	require.Error(t, err)
	assert.Equal(t, apperrors.TypeValidation, errorType(t, err))
}

// --- ResolveCounterpart ---

func TestResolveCounterpart_NotLinked(t *testing.T) {
	reg := New(&mockSubscriptionRepo{})
	sub := &domain.Subscription{ID: uuid.New(), Platform: domain.PlatformTwitch, Name: "forsen"}

	_, err := reg.ResolveCounterpart(context.Background(), sub)
	require.Error(t, err)
	assert.Equal(t, apperrors.TypeNotLinked, errorType(t, err))
}

func TestResolveCounterpart_DanglingLinkIsMismatch(t *testing.T) {
	repo := &mockSubscriptionRepo{
		getByIDFn: func(_ context.Context, _ uuid.UUID) (*domain.Subscription, error) {
			return nil, domain.ErrSubscriptionNotFound
		},
	}
	reg := New(repo)

	sub := &domain.Subscription{
		ID:       uuid.New(),
		Platform: domain.PlatformTwitch,
		Name:     "forsen",
		Link:     &domain.MultiStreamLink{CounterpartID: uuid.New()},
	}

	_, err := reg.ResolveCounterpart(context.Background(), sub)
	require.Error(t, err)
	assert.Equal(t, apperrors.TypeLinkMismatch, errorType(t, err))
}

func TestResolveCounterpart_FollowsLink(t *testing.T) {
	twitch, kick := linkedPair()
	repo := &mockSubscriptionRepo{
		getByIDFn: func(_ context.Context, id uuid.UUID) (*domain.Subscription, error) {
			require.Equal(t, kick.ID, id)
			return &kick, nil
		},
	}
	reg := New(repo)

	counterpart, err := reg.ResolveCounterpart(context.Background(), &twitch)
	require.NoError(t, err)
	assert.Equal(t, kick.ID, counterpart.ID)
}

// --- ResolvePair ---

func repoForPair(subs ...domain.Subscription) *mockSubscriptionRepo {
	return &mockSubscriptionRepo{
		findByNameFn: func(_ context.Context, platform domain.Platform, _, name string) ([]domain.Subscription, error) {
			var matches []domain.Subscription
			for _, sub := range subs {
				if sub.Platform == platform && sub.Name == name {
					matches = append(matches, sub)
				}
			}
			return matches, nil
		},
		getByIDFn: func(_ context.Context, id uuid.UUID) (*domain.Subscription, error) {
			for i := range subs {
				if subs[i].ID == id {
					return &subs[i], nil
				}
			}
			return nil, domain.ErrSubscriptionNotFound
		},
	}
}

func TestResolvePair_BothNamesSymmetricLink(t *testing.T) {
	twitch, kick := linkedPair()
	reg := New(repoForPair(twitch, kick))

	pair, err := reg.ResolvePair(context.Background(), "guild-1", "forsen", "forsen")
	require.NoError(t, err)
	assert.Equal(t, twitch.ID, pair.Twitch.ID)
	assert.Equal(t, kick.ID, pair.Kick.ID)
}

func TestResolvePair_AsymmetricLinkIsMismatch(t *testing.T) {
	twitch, kick := linkedPair()
	// Kick's link points at a third subscription: symmetry is broken.
	kick.Link.CounterpartID = uuid.New()
	reg := New(repoForPair(twitch, kick))

	_, err := reg.ResolvePair(context.Background(), "guild-1", "forsen", "forsen")
	require.Error(t, err)
	assert.Equal(t, apperrors.TypeLinkMismatch, errorType(t, err))
}

func TestResolvePair_OneSidedLinkIsMismatch(t *testing.T) {
	twitch, kick := linkedPair()
	kick.Link = nil
	reg := New(repoForPair(twitch, kick))

	_, err := reg.ResolvePair(context.Background(), "guild-1", "forsen", "forsen")
	require.Error(t, err)
	assert.Equal(t, apperrors.TypeLinkMismatch, errorType(t, err))
}

func TestResolvePair_SelfReferentialLinkIsMismatch(t *testing.T) {
	twitch, kick := linkedPair()
	twitch.Link.CounterpartID = twitch.ID
	reg := New(repoForPair(twitch, kick))

	_, err := reg.ResolvePair(context.Background(), "guild-1", "forsen", "forsen")
	require.Error(t, err)
	assert.Equal(t, apperrors.TypeLinkMismatch, errorType(t, err))
}

func TestResolvePair_SingleNameDerivesCounterpart(t *testing.T) {
	twitch, kick := linkedPair()
	reg := New(repoForPair(twitch, kick))

	pair, err := reg.ResolvePair(context.Background(), "guild-1", "", "forsen")
	require.NoError(t, err)
	assert.Equal(t, twitch.ID, pair.Twitch.ID)
	assert.Equal(t, kick.ID, pair.Kick.ID)
}

func TestResolvePair_SingleUnlinkedNameIsNotLinked(t *testing.T) {
	solo := domain.Subscription{ID: uuid.New(), Platform: domain.PlatformTwitch, Name: "forsen"}
	reg := New(repoForPair(solo))

	_, err := reg.ResolvePair(context.Background(), "guild-1", "forsen", "")
	require.Error(t, err)
	assert.Equal(t, apperrors.TypeNotLinked, errorType(t, err))
}

func TestResolvePair_NoNamesIsValidationError(t *testing.T) {
	reg := New(&mockSubscriptionRepo{})

	_, err := reg.ResolvePair(context.Background(), "guild-1", "", "  ")
	require.Error(t, err)
	assert.Equal(t, apperrors.TypeValidation, errorType(t, err))
}
