package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taklaci-self/internal/entity"
	"taklaci-self/internal/pkg/log"
	"taklaci-self/internal/pkg/metrics"
	"taklaci-self/internal/pkg/notify"
	"taklaci-self/internal/pkg/presence"
	"taklaci-self/internal/pkg/xerrors"
	"taklaci-self/internal/repository/interfaces"
	"taklaci-self/internal/repository/memory"
)

// recordedEvent 测试用通知记录
type recordedEvent struct {
	PlayerID string
	Event    string
	Payload  interface{}
}

// recorderNotifier 记录所有推送的通知器
type recorderNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recorderNotifier) Send(_ context.Context, playerID string, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{PlayerID: playerID, Event: event, Payload: payload})
}

func (n *recorderNotifier) eventsFor(playerID, event string) []recordedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var matched []recordedEvent
	for _, e := range n.events {
		if e.PlayerID == playerID && e.Event == event {
			matched = append(matched, e)
		}
	}
	return matched
}

func (n *recorderNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Event == event {
			c++
		}
	}
	return c
}

// flightFixture 放飞服务测试夹具
type flightFixture struct {
	svc      *FlightService
	store    *memory.Store
	birds    interfaces.BirdRepository
	players  interfaces.PlayerRepository
	sessions interfaces.SessionRepository
	notifier *recorderNotifier
	tracker  *presence.MemoryTracker
}

func newFlightFixture(t *testing.T) *flightFixture {
	t.Helper()

	store := memory.NewStore()
	f := &flightFixture{
		store:    store,
		birds:    memory.NewBirdRepository(store),
		players:  memory.NewPlayerRepository(store),
		sessions: memory.NewSessionRepository(store),
		notifier: &recorderNotifier{},
		tracker:  presence.NewMemoryTracker(presence.DefaultTTL),
	}
	f.svc = NewFlightService(
		f.sessions, f.birds, f.players,
		f.notifier, f.tracker,
		metrics.NewAirspaceMetricsWithRegistry("test", prometheus.NewRegistry()),
		log.GetLogger(),
	)
	return f
}

func (f *flightFixture) seedPlayer(t *testing.T, playerID string) *entity.Player {
	t.Helper()
	player := &entity.Player{
		ID: playerID, Username: "u-" + playerID,
		Coins: 100, Level: 1, CoopCapacity: 10, CreatedAt: time.Now(),
	}
	require.NoError(t, f.players.Create(context.Background(), player))
	return player
}

func (f *flightFixture) seedBird(t *testing.T, birdID, ownerID string) *entity.Bird {
	t.Helper()
	bird := &entity.Bird{
		ID: birdID, Name: "bird-" + birdID, OwnerID: ownerID,
		State: entity.BirdStateInCoop, Rarity: entity.RarityCommon,
		Leadership: 50, Loyalty: 50, Speed: 50, GeneticDominance: 50,
		Health: 100, MaxHealth: 100, Stamina: 100, MaxStamina: 100,
		CreatedAt: time.Now(),
	}
	require.NoError(t, f.birds.Create(context.Background(), bird))
	return bird
}

func TestStartFlight(t *testing.T) {
	ctx := context.Background()

	t.Run("正常开始放飞", func(t *testing.T) {
		f := newFlightFixture(t)
		f.seedPlayer(t, "p1")
		f.seedBird(t, "b1", "p1")
		f.seedBird(t, "b2", "p1")

		session, err := f.svc.StartFlight(ctx, &StartFlightRequest{
			PlayerID: "p1", BirdIDs: []string{"b1", "b2"},
			Latitude: 41.0, Longitude: 29.0, DurationMinutes: 30,
		})
		require.NoError(t, err)
		assert.True(t, session.IsActive)
		assert.Len(t, session.BirdIDs, 2)

		bird, err := f.birds.GetByID(ctx, "b1")
		require.NoError(t, err)
		assert.Equal(t, entity.BirdStateFlying, bird.State)

		assert.True(t, f.tracker.IsOnline(ctx, "p1"))
		assert.Len(t, f.notifier.eventsFor("p1", notify.EventFlightStarted), 1)
	})

	t.Run("已有进行中会话时拒绝", func(t *testing.T) {
		f := newFlightFixture(t)
		f.seedPlayer(t, "p1")
		f.seedBird(t, "b1", "p1")
		f.seedBird(t, "b2", "p1")

		_, err := f.svc.StartFlight(ctx, &StartFlightRequest{
			PlayerID: "p1", BirdIDs: []string{"b1"},
			Latitude: 41.0, Longitude: 29.0, DurationMinutes: 30,
		})
		require.NoError(t, err)

		_, err = f.svc.StartFlight(ctx, &StartFlightRequest{
			PlayerID: "p1", BirdIDs: []string{"b2"},
			Latitude: 41.0, Longitude: 29.0, DurationMinutes: 30,
		})
		assert.Equal(t, xerrors.CodeAlreadyFlying, xerrors.CodeOf(err))
	})

	t.Run("空鸽群被拒绝", func(t *testing.T) {
		f := newFlightFixture(t)
		f.seedPlayer(t, "p1")

		_, err := f.svc.StartFlight(ctx, &StartFlightRequest{
			PlayerID: "p1", Latitude: 41.0, Longitude: 29.0, DurationMinutes: 30,
		})
		assert.Equal(t, xerrors.CodeEmptyFlock, xerrors.CodeOf(err))
	})

	t.Run("带别人的鸽子被拒绝", func(t *testing.T) {
		f := newFlightFixture(t)
		f.seedPlayer(t, "p1")
		f.seedBird(t, "b1", "p2")

		_, err := f.svc.StartFlight(ctx, &StartFlightRequest{
			PlayerID: "p1", BirdIDs: []string{"b1"},
			Latitude: 41.0, Longitude: 29.0, DurationMinutes: 30,
		})
		assert.Equal(t, xerrors.CodeBirdWrongOwner, xerrors.CodeOf(err))
	})

	t.Run("体力不足被拒绝", func(t *testing.T) {
		f := newFlightFixture(t)
		f.seedPlayer(t, "p1")
		bird := f.seedBird(t, "b1", "p1")
		bird.Stamina = entity.FlightStaminaThreshold - 1
		require.NoError(t, f.birds.Update(ctx, nil, bird))

		_, err := f.svc.StartFlight(ctx, &StartFlightRequest{
			PlayerID: "p1", BirdIDs: []string{"b1"},
			Latitude: 41.0, Longitude: 29.0, DurationMinutes: 30,
		})
		assert.Equal(t, xerrors.CodeInsufficientStamina, xerrors.CodeOf(err))
	})

	t.Run("生病的鸽子不能放飞", func(t *testing.T) {
		f := newFlightFixture(t)
		f.seedPlayer(t, "p1")
		bird := f.seedBird(t, "b1", "p1")
		bird.State = entity.BirdStateSick
		require.NoError(t, f.birds.Update(ctx, nil, bird))

		_, err := f.svc.StartFlight(ctx, &StartFlightRequest{
			PlayerID: "p1", BirdIDs: []string{"b1"},
			Latitude: 41.0, Longitude: 29.0, DurationMinutes: 30,
		})
		assert.Equal(t, xerrors.CodeBirdNotReady, xerrors.CodeOf(err))
	})

	t.Run("时长越界被拒绝", func(t *testing.T) {
		f := newFlightFixture(t)
		f.seedPlayer(t, "p1")
		f.seedBird(t, "b1", "p1")

		_, err := f.svc.StartFlight(ctx, &StartFlightRequest{
			PlayerID: "p1", BirdIDs: []string{"b1"},
			Latitude: 41.0, Longitude: 29.0, DurationMinutes: MaxFlightDurationMinutes + 1,
		})
		assert.Equal(t, xerrors.CodeInvalidParams, xerrors.CodeOf(err))
	})
}

func TestEndFlight(t *testing.T) {
	ctx := context.Background()

	t.Run("结束后鸽子归巢并扣体力", func(t *testing.T) {
		f := newFlightFixture(t)
		f.seedPlayer(t, "p1")
		f.seedBird(t, "b1", "p1")

		session, err := f.svc.StartFlight(ctx, &StartFlightRequest{
			PlayerID: "p1", BirdIDs: []string{"b1"},
			Latitude: 41.0, Longitude: 29.0, DurationMinutes: 30,
		})
		require.NoError(t, err)

		ended, err := f.svc.EndFlight(ctx, "p1", session.ID)
		require.NoError(t, err)
		assert.False(t, ended.IsActive)
		assert.True(t, ended.EndedAt.Valid)

		bird, err := f.birds.GetByID(ctx, "b1")
		require.NoError(t, err)
		assert.Equal(t, entity.BirdStateInCoop, bird.State)
		assert.Equal(t, 100-entity.FlightStaminaCost, bird.Stamina)

		assert.Len(t, f.notifier.eventsFor("p1", notify.EventFlightEnded), 1)
	})

	t.Run("别人的会话不能结束", func(t *testing.T) {
		f := newFlightFixture(t)
		f.seedPlayer(t, "p1")
		f.seedBird(t, "b1", "p1")

		session, err := f.svc.StartFlight(ctx, &StartFlightRequest{
			PlayerID: "p1", BirdIDs: []string{"b1"},
			Latitude: 41.0, Longitude: 29.0, DurationMinutes: 30,
		})
		require.NoError(t, err)

		_, err = f.svc.EndFlight(ctx, "p2", session.ID)
		assert.Equal(t, xerrors.CodeOperationNotAllowed, xerrors.CodeOf(err))
	})

	t.Run("重复结束被拒绝", func(t *testing.T) {
		f := newFlightFixture(t)
		f.seedPlayer(t, "p1")
		f.seedBird(t, "b1", "p1")

		session, err := f.svc.StartFlight(ctx, &StartFlightRequest{
			PlayerID: "p1", BirdIDs: []string{"b1"},
			Latitude: 41.0, Longitude: 29.0, DurationMinutes: 30,
		})
		require.NoError(t, err)

		_, err = f.svc.EndFlight(ctx, "p1", session.ID)
		require.NoError(t, err)

		_, err = f.svc.EndFlight(ctx, "p1", session.ID)
		assert.Equal(t, xerrors.CodeSessionInactive, xerrors.CodeOf(err))
	})
}

func TestUpdatePosition(t *testing.T) {
	ctx := context.Background()
	f := newFlightFixture(t)
	f.seedPlayer(t, "p1")
	f.seedBird(t, "b1", "p1")

	session, err := f.svc.StartFlight(ctx, &StartFlightRequest{
		PlayerID: "p1", BirdIDs: []string{"b1"},
		Latitude: 41.0, Longitude: 29.0, DurationMinutes: 30,
	})
	require.NoError(t, err)

	updated, err := f.svc.UpdatePosition(ctx, &UpdatePositionRequest{
		PlayerID: "p1", SessionID: session.ID,
		Latitude: 41.01, Longitude: 29.02, Altitude: 150,
	})
	require.NoError(t, err)
	assert.Equal(t, 41.01, updated.Latitude)
	assert.Equal(t, 150.0, updated.Altitude)
	assert.Len(t, f.notifier.eventsFor("p1", notify.EventPositionUpdated), 1)

	_, err = f.svc.EndFlight(ctx, "p1", session.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdatePosition(ctx, &UpdatePositionRequest{
		PlayerID: "p1", SessionID: session.ID,
		Latitude: 41.0, Longitude: 29.0,
	})
	assert.Equal(t, xerrors.CodeSessionInactive, xerrors.CodeOf(err))
}

func TestNearbyFlights(t *testing.T) {
	ctx := context.Background()
	f := newFlightFixture(t)
	f.seedPlayer(t, "p1")
	f.seedPlayer(t, "p2")
	f.seedPlayer(t, "p3")
	f.seedBird(t, "b1", "p1")
	f.seedBird(t, "b2", "p2")
	f.seedBird(t, "b3", "p3")

	own, err := f.svc.StartFlight(ctx, &StartFlightRequest{
		PlayerID: "p1", BirdIDs: []string{"b1"},
		Latitude: 41.0, Longitude: 29.0, DurationMinutes: 30,
	})
	require.NoError(t, err)

	// p2 约 111 米外，p3 远在天边
	_, err = f.svc.StartFlight(ctx, &StartFlightRequest{
		PlayerID: "p2", BirdIDs: []string{"b2"},
		Latitude: 41.001, Longitude: 29.0, DurationMinutes: 30,
	})
	require.NoError(t, err)
	_, err = f.svc.StartFlight(ctx, &StartFlightRequest{
		PlayerID: "p3", BirdIDs: []string{"b3"},
		Latitude: 42.0, Longitude: 30.0, DurationMinutes: 30,
	})
	require.NoError(t, err)

	nearby, err := f.svc.NearbyFlights(ctx, own.ID, 0)
	require.NoError(t, err)
	require.Len(t, nearby, 1)
	assert.Equal(t, "p2", nearby[0].Session.PlayerID)
	assert.InDelta(t, 111, nearby[0].DistanceMeters, 5)
	assert.Greater(t, nearby[0].FlockPower, 0)
}

func TestExpireCompletedFlights(t *testing.T) {
	ctx := context.Background()
	f := newFlightFixture(t)
	f.seedPlayer(t, "p1")
	f.seedBird(t, "b1", "p1")

	session, err := f.svc.StartFlight(ctx, &StartFlightRequest{
		PlayerID: "p1", BirdIDs: []string{"b1"},
		Latitude: 41.0, Longitude: 29.0, DurationMinutes: 10,
	})
	require.NoError(t, err)

	ended, err := f.svc.ExpireCompletedFlights(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, ended)

	ended, err = f.svc.ExpireCompletedFlights(ctx, time.Now().Add(11*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, ended)

	got, err := f.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	bird, err := f.birds.GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, entity.BirdStateInCoop, bird.State)
}

func TestGetPlayerBirds(t *testing.T) {
	ctx := context.Background()
	f := newFlightFixture(t)
	f.seedPlayer(t, "p1")
	f.seedBird(t, "b1", "p1")
	f.seedBird(t, "b2", "p1")
	f.seedPlayer(t, "p2")
	f.seedBird(t, "b3", "p2")

	// 一只在飞，一只在巢，都应返回
	_, err := f.svc.StartFlight(ctx, &StartFlightRequest{
		PlayerID: "p1", BirdIDs: []string{"b1"},
		Latitude: 41.0, Longitude: 29.0, DurationMinutes: 60,
	})
	require.NoError(t, err)

	birds, err := f.svc.GetPlayerBirds(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, birds, 2)
	for _, bird := range birds {
		assert.Equal(t, "p1", bird.OwnerID)
	}

	t.Run("玩家不存在时报错", func(t *testing.T) {
		_, err := f.svc.GetPlayerBirds(ctx, "ghost")
		assert.Equal(t, xerrors.CodePlayerNotFound, xerrors.CodeOf(err))
	})
}

func TestGoOffline(t *testing.T) {
	ctx := context.Background()
	f := newFlightFixture(t)
	f.seedPlayer(t, "p1")
	f.seedBird(t, "b1", "p1")

	session, err := f.svc.StartFlight(ctx, &StartFlightRequest{
		PlayerID: "p1", BirdIDs: []string{"b1"},
		Latitude: 41.0, Longitude: 29.0, DurationMinutes: 60,
	})
	require.NoError(t, err)
	require.True(t, f.tracker.IsOnline(ctx, "p1"))

	require.NoError(t, f.svc.GoOffline(ctx, "p1"))
	assert.False(t, f.tracker.IsOnline(ctx, "p1"))

	// 离线不影响放飞会话
	got, err := f.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}
