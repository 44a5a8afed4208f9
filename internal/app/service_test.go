package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svglol/dinkdonkbot/internal/dispatcher"
	"github.com/svglol/dinkdonkbot/internal/domain"
	"github.com/svglol/dinkdonkbot/internal/registry"
	"github.com/svglol/dinkdonkbot/internal/resolver"
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

type mockMessageRepo struct {
	mu sync.Mutex

	createFn                func(ctx context.Context, msg *domain.StreamMessage) error
	updateFn                func(ctx context.Context, msg *domain.StreamMessage) error
	getOpenBySubscriptionFn func(ctx context.Context, subscriptionID uuid.UUID) (*domain.StreamMessage, error)
	archiveFn               func(ctx context.Context, id string) error

	created  []*domain.StreamMessage
	updated  []*domain.StreamMessage
	archived []string
}

func (m *mockMessageRepo) Create(ctx context.Context, msg *domain.StreamMessage) error {
	m.mu.Lock()
	m.created = append(m.created, msg)
	m.mu.Unlock()
	if m.createFn != nil {
		return m.createFn(ctx, msg)
	}
	return nil
}

func (m *mockMessageRepo) Update(ctx context.Context, msg *domain.StreamMessage) error {
	m.mu.Lock()
	m.updated = append(m.updated, msg)
	m.mu.Unlock()
	if m.updateFn != nil {
		return m.updateFn(ctx, msg)
	}
	return nil
}

func (m *mockMessageRepo) GetOpenBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*domain.StreamMessage, error) {
	if m.getOpenBySubscriptionFn != nil {
		return m.getOpenBySubscriptionFn(ctx, subscriptionID)
	}
	return nil, domain.ErrStreamMessageNotFound
}

func (m *mockMessageRepo) Archive(ctx context.Context, id string) error {
	m.mu.Lock()
	m.archived = append(m.archived, id)
	m.mu.Unlock()
	if m.archiveFn != nil {
		return m.archiveFn(ctx, id)
	}
	return nil
}

type mockTwitchClient struct {
	getStreamerDetailsFn func(ctx context.Context, login string) (*domain.TwitchStreamer, error)
	getStreamDetailsFn   func(ctx context.Context, login string) (*domain.LiveState, error)
	getLatestVodFn       func(ctx context.Context, broadcasterID, streamID string) (*domain.VOD, error)
	subscribeFn          func(ctx context.Context, broadcasterID string) error
	unsubscribeFn        func(ctx context.Context, broadcasterID string) error
}

func (m *mockTwitchClient) GetStreamerDetails(ctx context.Context, login string) (*domain.TwitchStreamer, error) {
	if m.getStreamerDetailsFn != nil {
		return m.getStreamerDetailsFn(ctx, login)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockTwitchClient) GetStreamDetails(ctx context.Context, login string) (*domain.LiveState, error) {
	if m.getStreamDetailsFn != nil {
		return m.getStreamDetailsFn(ctx, login)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockTwitchClient) GetLatestVod(ctx context.Context, broadcasterID, streamID string) (*domain.VOD, error) {
	if m.getLatestVodFn != nil {
		return m.getLatestVodFn(ctx, broadcasterID, streamID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockTwitchClient) Subscribe(ctx context.Context, broadcasterID string) error {
	if m.subscribeFn != nil {
		return m.subscribeFn(ctx, broadcasterID)
	}
	return nil
}

func (m *mockTwitchClient) Unsubscribe(ctx context.Context, broadcasterID string) error {
	if m.unsubscribeFn != nil {
		return m.unsubscribeFn(ctx, broadcasterID)
	}
	return nil
}

type mockKickClient struct {
	getChannelFn    func(ctx context.Context, slug string) (*domain.KickChannel, error)
	getLiveStreamFn func(ctx context.Context, slug string) (*domain.LiveState, error)
	getLatestVodFn  func(ctx context.Context, slug string, startedAt time.Time) (*domain.VOD, error)
	subscribeFn     func(ctx context.Context, broadcasterID int) error
	unsubscribeFn   func(ctx context.Context, broadcasterID int) error
}

func (m *mockKickClient) GetChannel(ctx context.Context, slug string) (*domain.KickChannel, error) {
	if m.getChannelFn != nil {
		return m.getChannelFn(ctx, slug)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockKickClient) GetLiveStream(ctx context.Context, slug string) (*domain.LiveState, error) {
	if m.getLiveStreamFn != nil {
		return m.getLiveStreamFn(ctx, slug)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockKickClient) GetLatestVod(ctx context.Context, slug string, startedAt time.Time) (*domain.VOD, error) {
	if m.getLatestVodFn != nil {
		return m.getLatestVodFn(ctx, slug, startedAt)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockKickClient) Subscribe(ctx context.Context, broadcasterID int) error {
	if m.subscribeFn != nil {
		return m.subscribeFn(ctx, broadcasterID)
	}
	return nil
}

func (m *mockKickClient) Unsubscribe(ctx context.Context, broadcasterID int) error {
	if m.unsubscribeFn != nil {
		return m.unsubscribeFn(ctx, broadcasterID)
	}
	return nil
}

type mockTransport struct {
	mu sync.Mutex

	createMessageFn          func(ctx context.Context, channelID string, body domain.MessageBody) (string, error)
	updateMessageFn          func(ctx context.Context, channelID, messageID string, body domain.MessageBody) error
	updateDeferredResponseFn func(ctx context.Context, interactionToken string, body domain.MessageBody) error

	creates       []string
	updates       []string
	deferredEdits []domain.MessageBody
}

func (m *mockTransport) CreateMessage(ctx context.Context, channelID string, body domain.MessageBody) (string, error) {
	m.mu.Lock()
	m.creates = append(m.creates, channelID)
	m.mu.Unlock()
	if m.createMessageFn != nil {
		return m.createMessageFn(ctx, channelID, body)
	}
	return "msg-" + fmt.Sprint(len(m.creates)), nil
}

func (m *mockTransport) UpdateMessage(ctx context.Context, channelID, messageID string, body domain.MessageBody) error {
	m.mu.Lock()
	m.updates = append(m.updates, messageID)
	m.mu.Unlock()
	if m.updateMessageFn != nil {
		return m.updateMessageFn(ctx, channelID, messageID, body)
	}
	return nil
}

func (m *mockTransport) UpdateDeferredResponse(ctx context.Context, interactionToken string, body domain.MessageBody) error {
	m.mu.Lock()
	m.deferredEdits = append(m.deferredEdits, body)
	m.mu.Unlock()
	if m.updateDeferredResponseFn != nil {
		return m.updateDeferredResponseFn(ctx, interactionToken, body)
	}
	return nil
}

// --- Fixture ---

type fixture struct {
	subs      *mockSubscriptionRepo
	messages  *mockMessageRepo
	twitch    *mockTwitchClient
	kick      *mockKickClient
	transport *mockTransport
	clock     *clockwork.FakeClock
	tasks     *TaskRunner
	service   *Service
}

func newFixture() *fixture {
	f := &fixture{
		subs:      &mockSubscriptionRepo{},
		messages:  &mockMessageRepo{},
		twitch:    &mockTwitchClient{},
		kick:      &mockKickClient{},
		transport: &mockTransport{},
		clock:     clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)),
		tasks:     NewTaskRunner(),
	}
	f.service = NewService(
		f.subs,
		f.messages,
		registry.New(f.subs),
		resolver.New(f.twitch, f.kick, f.clock),
		dispatcher.New(f.transport),
		f.transport,
		f.twitch,
		f.kick,
		f.clock,
		f.tasks,
	)
	return f
}

func linkedPair() (domain.Subscription, domain.Subscription) {
	twitch := domain.Subscription{
		ID:            uuid.New(),
		Platform:      domain.PlatformTwitch,
		GuildID:       "guild-1",
		BroadcasterID: "111",
		Name:          "forsen",
		DisplayName:   "Forsen",
		ChannelID:     "twitch-alerts",
	}
	kick := domain.Subscription{
		ID:            uuid.New(),
		Platform:      domain.PlatformKick,
		GuildID:       "guild-1",
		BroadcasterID: "222",
		Name:          "forsen",
		DisplayName:   "Forsen",
		ChannelID:     "kick-alerts",
	}
	twitch.Link = &domain.MultiStreamLink{SubscriptionID: twitch.ID, CounterpartID: kick.ID}
	kick.Link = &domain.MultiStreamLink{SubscriptionID: kick.ID, CounterpartID: twitch.ID}
	return twitch, kick
}

func stubFindByName(f *fixture, subs ...domain.Subscription) {
	f.subs.findByNameFn = func(_ context.Context, platform domain.Platform, _, name string) ([]domain.Subscription, error) {
		var matches []domain.Subscription
		for _, sub := range subs {
			if sub.Platform == platform && sub.Name == name {
				matches = append(matches, sub)
			}
		}
		return matches, nil
	}
	f.subs.getByIDFn = func(_ context.Context, id uuid.UUID) (*domain.Subscription, error) {
		for i := range subs {
			if subs[i].ID == id {
				return &subs[i], nil
			}
		}
		return nil, domain.ErrSubscriptionNotFound
	}
}

// --- TestNotification ---

func TestTestNotification_PreviewNeverStoresOrDispatches(t *testing.T) {
	f := newFixture()
	twitch, kick := linkedPair()
	stubFindByName(f, twitch, kick)

	f.twitch.getStreamDetailsFn = func(_ context.Context, _ string) (*domain.LiveState, error) {
		return &domain.LiveState{StreamID: "s-1", Title: "hello", StreamerName: "Forsen"}, nil
	}
	f.kick.getLiveStreamFn = func(_ context.Context, _ string) (*domain.LiveState, error) {
		return &domain.LiveState{StreamID: "s-2", Title: "hello", StreamerName: "Forsen"}, nil
	}

	f.service.TestNotification(context.Background(), TestArgs{
		GuildID:          "guild-1",
		TwitchName:       "forsen",
		Mode:             resolver.ModeLive,
		InteractionToken: "token-1",
	})

	assert.Empty(t, f.messages.created)
	assert.Empty(t, f.transport.creates)
	require.Len(t, f.transport.deferredEdits, 1)
	assert.Len(t, f.transport.deferredEdits[0].Embeds, 2)
}

func TestTestNotification_LinkMismatchStopsBeforeFetch(t *testing.T) {
	f := newFixture()
	twitch, kick := linkedPair()
	kick.Link.CounterpartID = uuid.New()
	stubFindByName(f, twitch, kick)

	fetched := false
	f.twitch.getStreamDetailsFn = func(_ context.Context, _ string) (*domain.LiveState, error) {
		fetched = true
		return nil, nil
	}
	f.kick.getLiveStreamFn = func(_ context.Context, _ string) (*domain.LiveState, error) {
		fetched = true
		return nil, nil
	}

	f.service.TestNotification(context.Background(), TestArgs{
		GuildID:          "guild-1",
		TwitchName:       "forsen",
		KickName:         "forsen",
		Mode:             resolver.ModeLive,
		InteractionToken: "token-1",
	})

	assert.False(t, fetched)
	assert.Empty(t, f.transport.creates)
	require.Len(t, f.transport.deferredEdits, 1)
	assert.Contains(t, f.transport.deferredEdits[0].Content, "not linked")
}

func TestTestNotification_GlobalOfflineBroadcastsOnce(t *testing.T) {
	f := newFixture()
	twitch, kick := linkedPair()
	stubFindByName(f, twitch, kick)

	twitchVodCalled := false
	kickVodCalled := false
	f.twitch.getLatestVodFn = func(_ context.Context, _, _ string) (*domain.VOD, error) {
		twitchVodCalled = true
		return &domain.VOD{ID: "vod-1", URL: "https://twitch.tv/videos/1", PublishedAt: f.clock.Now().Add(-2 * time.Hour)}, nil
	}
	f.kick.getLatestVodFn = func(_ context.Context, _ string, _ time.Time) (*domain.VOD, error) {
		kickVodCalled = true
		return nil, nil // absence renders degraded, not an error
	}

	f.service.TestNotification(context.Background(), TestArgs{
		GuildID:          "guild-1",
		TwitchName:       "forsen",
		KickName:         "forsen",
		Mode:             resolver.ModeOffline,
		Global:           true,
		InteractionToken: "token-1",
	})

	assert.True(t, twitchVodCalled)
	assert.True(t, kickVodCalled)

	// One-off create goes to the Twitch leg's channel, nothing is stored.
	require.Len(t, f.transport.creates, 1)
	assert.Equal(t, "twitch-alerts", f.transport.creates[0])
	assert.Empty(t, f.messages.created)

	require.Len(t, f.transport.deferredEdits, 1)
	assert.Contains(t, f.transport.deferredEdits[0].Content, "<#twitch-alerts>")
}

// --- Webhook flows ---

func TestHandleStreamOnline_CreatesAndPersistsSession(t *testing.T) {
	f := newFixture()
	sub := domain.Subscription{
		ID:            uuid.New(),
		Platform:      domain.PlatformTwitch,
		GuildID:       "guild-1",
		BroadcasterID: "111",
		Name:          "forsen",
		ChannelID:     "twitch-alerts",
	}
	f.subs.getByBroadcasterFn = func(_ context.Context, _ domain.Platform, _ string) ([]domain.Subscription, error) {
		return []domain.Subscription{sub}, nil
	}
	f.twitch.getStreamDetailsFn = func(_ context.Context, _ string) (*domain.LiveState, error) {
		return &domain.LiveState{StreamID: "s-1", Title: "hello"}, nil
	}

	started := f.clock.Now().Add(-time.Minute)
	f.service.HandleStreamOnline(context.Background(), domain.PlatformTwitch, "111", "s-1", started)

	require.Len(t, f.transport.creates, 1)
	require.Len(t, f.messages.created, 1)
	stored := f.messages.created[0]
	assert.NotEmpty(t, stored.MessageID)
	assert.Equal(t, sub.ID, stored.SubscriptionID)
	require.NotNil(t, stored.Twitch)
	assert.True(t, stored.Twitch.Online)
}

func TestHandleStreamOnline_JoinsCounterpartOpenSession(t *testing.T) {
	f := newFixture()
	twitch, kick := linkedPair()
	f.subs.getByBroadcasterFn = func(_ context.Context, _ domain.Platform, _ string) ([]domain.Subscription, error) {
		return []domain.Subscription{kick}, nil
	}
	f.kick.getLiveStreamFn = func(_ context.Context, _ string) (*domain.LiveState, error) {
		return &domain.LiveState{StreamID: "s-2"}, nil
	}

	started := f.clock.Now().Add(-time.Hour)
	open := &domain.StreamMessage{
		ID:             uuid.NewString(),
		SubscriptionID: twitch.ID,
		GuildID:        "guild-1",
		ChannelID:      "twitch-alerts",
		MessageID:      "msg-1",
		Twitch: &domain.StreamLeg{
			Subscription: &twitch,
			Online:       true,
			StartedAt:    &started,
			Live:         &domain.LiveState{StreamID: "s-1"},
		},
	}
	f.messages.getOpenBySubscriptionFn = func(_ context.Context, id uuid.UUID) (*domain.StreamMessage, error) {
		if id == twitch.ID {
			return open, nil
		}
		return nil, domain.ErrStreamMessageNotFound
	}

	f.service.HandleStreamOnline(context.Background(), domain.PlatformKick, "222", "s-2", f.clock.Now())

	// The combined message is edited, no second message appears.
	assert.Empty(t, f.transport.creates)
	require.Len(t, f.transport.updates, 1)
	assert.Equal(t, "msg-1", f.transport.updates[0])
	require.Len(t, f.messages.updated, 1)
	require.NotNil(t, f.messages.updated[0].Kick)
	assert.True(t, f.messages.updated[0].Kick.Online)
}

func TestHandleStreamOnline_ConcurrentTriggersCreateOnce(t *testing.T) {
	f := newFixture()
	sub := domain.Subscription{
		ID:            uuid.New(),
		Platform:      domain.PlatformTwitch,
		GuildID:       "guild-1",
		BroadcasterID: "111",
		Name:          "forsen",
		ChannelID:     "twitch-alerts",
	}
	f.subs.getByBroadcasterFn = func(_ context.Context, _ domain.Platform, _ string) ([]domain.Subscription, error) {
		return []domain.Subscription{sub}, nil
	}
	f.twitch.getStreamDetailsFn = func(_ context.Context, _ string) (*domain.LiveState, error) {
		return &domain.LiveState{StreamID: "s-1", Title: "hello"}, nil
	}
	f.messages.getOpenBySubscriptionFn = func(_ context.Context, id uuid.UUID) (*domain.StreamMessage, error) {
		f.messages.mu.Lock()
		defer f.messages.mu.Unlock()
		for _, msg := range f.messages.created {
			if msg.SubscriptionID == id {
				return msg, nil
			}
		}
		return nil, domain.ErrStreamMessageNotFound
	}

	// The first create is held in flight while the second trigger for the
	// same subscription arrives; both triggers must settle on one message.
	var once sync.Once
	inFlight := make(chan struct{})
	release := make(chan struct{})
	f.transport.createMessageFn = func(_ context.Context, _ string, _ domain.MessageBody) (string, error) {
		once.Do(func() { close(inFlight) })
		<-release
		return "msg-1", nil
	}

	started := f.clock.Now().Add(-time.Minute)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		f.service.HandleStreamOnline(context.Background(), domain.PlatformTwitch, "111", "s-1", started)
	}()
	<-inFlight
	go func() {
		defer wg.Done()
		f.service.HandleStreamOnline(context.Background(), domain.PlatformTwitch, "111", "s-1", started)
	}()
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Len(t, f.transport.creates, 1)
	assert.Len(t, f.messages.created, 1)
}

func TestHandleStreamOffline_AttachesVodAndArchives(t *testing.T) {
	f := newFixture()
	sub := domain.Subscription{
		ID:            uuid.New(),
		Platform:      domain.PlatformTwitch,
		GuildID:       "guild-1",
		BroadcasterID: "111",
		Name:          "forsen",
		ChannelID:     "twitch-alerts",
	}
	f.subs.getByBroadcasterFn = func(_ context.Context, _ domain.Platform, _ string) ([]domain.Subscription, error) {
		return []domain.Subscription{sub}, nil
	}

	started := f.clock.Now().Add(-3 * time.Hour)
	open := &domain.StreamMessage{
		ID:             uuid.NewString(),
		SubscriptionID: sub.ID,
		GuildID:        "guild-1",
		ChannelID:      "twitch-alerts",
		MessageID:      "msg-1",
		Twitch: &domain.StreamLeg{
			Subscription: &sub,
			Online:       true,
			StartedAt:    &started,
			Live:         &domain.LiveState{StreamID: "s-1"},
		},
	}
	f.messages.getOpenBySubscriptionFn = func(_ context.Context, _ uuid.UUID) (*domain.StreamMessage, error) {
		return open, nil
	}
	f.twitch.getLatestVodFn = func(_ context.Context, broadcasterID, streamID string) (*domain.VOD, error) {
		assert.Equal(t, "111", broadcasterID)
		assert.Equal(t, "s-1", streamID)
		return &domain.VOD{ID: "vod-1", URL: "https://twitch.tv/videos/1"}, nil
	}

	f.service.HandleStreamOffline(context.Background(), domain.PlatformTwitch, "111")

	require.Len(t, f.transport.updates, 1)
	require.Len(t, f.messages.updated, 1)
	updated := f.messages.updated[0]
	assert.False(t, updated.Twitch.Online)
	require.NotNil(t, updated.Twitch.EndedAt)
	require.NotNil(t, updated.Twitch.VOD)
	assert.Equal(t, []string{open.ID}, f.messages.archived)
}

func TestHandleStreamOffline_MissingVodStillUpdates(t *testing.T) {
	f := newFixture()
	sub := domain.Subscription{
		ID:            uuid.New(),
		Platform:      domain.PlatformKick,
		GuildID:       "guild-1",
		BroadcasterID: "222",
		Name:          "forsen",
		ChannelID:     "kick-alerts",
	}
	f.subs.getByBroadcasterFn = func(_ context.Context, _ domain.Platform, _ string) ([]domain.Subscription, error) {
		return []domain.Subscription{sub}, nil
	}

	started := f.clock.Now().Add(-time.Hour)
	open := &domain.StreamMessage{
		ID:             uuid.NewString(),
		SubscriptionID: sub.ID,
		ChannelID:      "kick-alerts",
		MessageID:      "msg-1",
		Kick: &domain.StreamLeg{
			Subscription: &sub,
			Online:       true,
			StartedAt:    &started,
		},
	}
	f.messages.getOpenBySubscriptionFn = func(_ context.Context, _ uuid.UUID) (*domain.StreamMessage, error) {
		return open, nil
	}
	f.kick.getLatestVodFn = func(_ context.Context, _ string, _ time.Time) (*domain.VOD, error) {
		return nil, fmt.Errorf("site api down")
	}

	f.service.HandleStreamOffline(context.Background(), domain.PlatformKick, "222")

	// VOD lookup failure degrades the render but the update still happens.
	require.Len(t, f.messages.updated, 1)
	assert.Nil(t, f.messages.updated[0].Kick.VOD)
	assert.False(t, f.messages.updated[0].Kick.Online)
}

// --- Subscription management ---

func TestRemoveSubscription_LastReferenceUnsubscribesUpstream(t *testing.T) {
	f := newFixture()
	sub := domain.Subscription{
		ID:            uuid.New(),
		Platform:      domain.PlatformTwitch,
		GuildID:       "guild-1",
		BroadcasterID: "111",
		Name:          "forsen",
		DisplayName:   "Forsen",
	}
	stubFindByName(f, sub)
	f.subs.deleteFn = func(_ context.Context, id uuid.UUID) error {
		assert.Equal(t, sub.ID, id)
		return nil
	}
	f.subs.countByBroadcasterFn = func(_ context.Context, _ domain.Platform, _ string) (int, error) {
		return 0, nil
	}

	unsubscribed := make(chan string, 1)
	f.twitch.unsubscribeFn = func(_ context.Context, broadcasterID string) error {
		unsubscribed <- broadcasterID
		return nil
	}

	name, err := f.service.RemoveSubscription(context.Background(), domain.PlatformTwitch, "guild-1", "forsen")
	require.NoError(t, err)
	assert.Equal(t, "forsen", name)

	f.tasks.Wait()
	assert.Equal(t, "111", <-unsubscribed)
}

func TestRemoveSubscription_RemainingReferencesKeepUpstream(t *testing.T) {
	f := newFixture()
	sub := domain.Subscription{
		ID:            uuid.New(),
		Platform:      domain.PlatformTwitch,
		GuildID:       "guild-1",
		BroadcasterID: "111",
		Name:          "forsen",
	}
	stubFindByName(f, sub)
	f.subs.deleteFn = func(_ context.Context, _ uuid.UUID) error { return nil }
	f.subs.countByBroadcasterFn = func(_ context.Context, _ domain.Platform, _ string) (int, error) {
		return 2, nil
	}

	unsubscribeCalled := false
	f.twitch.unsubscribeFn = func(_ context.Context, _ string) error {
		unsubscribeCalled = true
		return nil
	}

	_, err := f.service.RemoveSubscription(context.Background(), domain.PlatformTwitch, "guild-1", "forsen")
	require.NoError(t, err)

	f.tasks.Wait()
	assert.False(t, unsubscribeCalled)
}

func TestAddSubscription_FirstReferenceSubscribesUpstream(t *testing.T) {
	f := newFixture()
	f.subs.findByNameFn = func(_ context.Context, _ domain.Platform, _, _ string) ([]domain.Subscription, error) {
		return nil, nil
	}
	f.subs.countByBroadcasterFn = func(_ context.Context, _ domain.Platform, _ string) (int, error) {
		return 0, nil
	}
	f.subs.createFn = func(_ context.Context, _ *domain.Subscription) error { return nil }
	f.twitch.getStreamerDetailsFn = func(_ context.Context, login string) (*domain.TwitchStreamer, error) {
		assert.Equal(t, "forsen", login)
		return &domain.TwitchStreamer{ID: "111", Login: "forsen", DisplayName: "Forsen"}, nil
	}

	subscribed := make(chan string, 1)
	f.twitch.subscribeFn = func(_ context.Context, broadcasterID string) error {
		subscribed <- broadcasterID
		return nil
	}

	sub, err := f.service.AddSubscription(context.Background(), AddArgs{
		Platform:  domain.PlatformTwitch,
		GuildID:   "guild-1",
		Name:      "Forsen",
		ChannelID: "twitch-alerts",
	})
	require.NoError(t, err)
	assert.Equal(t, "forsen", sub.Name)
	assert.Equal(t, "111", sub.BroadcasterID)

	f.tasks.Wait()
	assert.Equal(t, "111", <-subscribed)
}

func TestAddSubscription_DuplicateNameIsRejected(t *testing.T) {
	f := newFixture()
	f.subs.findByNameFn = func(_ context.Context, _ domain.Platform, _, _ string) ([]domain.Subscription, error) {
		return []domain.Subscription{{ID: uuid.New(), Name: "forsen", DisplayName: "Forsen"}}, nil
	}

	_, err := f.service.AddSubscription(context.Background(), AddArgs{
		Platform:  domain.PlatformTwitch,
		GuildID:   "guild-1",
		Name:      "forsen",
		ChannelID: "twitch-alerts",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already being tracked")
}

func TestAddSubscription_UnknownStreamerIsNotFound(t *testing.T) {
	f := newFixture()
	f.subs.findByNameFn = func(_ context.Context, _ domain.Platform, _, _ string) ([]domain.Subscription, error) {
		return nil, nil
	}
	f.kick.getChannelFn = func(_ context.Context, _ string) (*domain.KickChannel, error) {
		return nil, nil
	}

	_, err := f.service.AddSubscription(context.Background(), AddArgs{
		Platform:  domain.PlatformKick,
		GuildID:   "guild-1",
		Name:      "nobody",
		ChannelID: "kick-alerts",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found on Kick")
}
