package service

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taklaci-self/internal/combat"
	"taklaci-self/internal/entity"
	"taklaci-self/internal/pkg/log"
	"taklaci-self/internal/pkg/metrics"
	"taklaci-self/internal/pkg/notify"
	"taklaci-self/internal/pkg/presence"
	"taklaci-self/internal/pkg/xerrors"
	"taklaci-self/internal/repository/interfaces"
	"taklaci-self/internal/repository/memory"
)

// encounterFixture 遭遇服务测试夹具
type encounterFixture struct {
	svc        *EncounterService
	flights    *FlightService
	birds      interfaces.BirdRepository
	players    interfaces.PlayerRepository
	sessions   interfaces.SessionRepository
	encounters interfaces.EncounterRepository
	notifier   *recorderNotifier
	tracker    *presence.MemoryTracker
}

func newEncounterFixture(t *testing.T, rng *rand.Rand) *encounterFixture {
	t.Helper()

	store := memory.NewStore()
	f := &encounterFixture{
		birds:      memory.NewBirdRepository(store),
		players:    memory.NewPlayerRepository(store),
		sessions:   memory.NewSessionRepository(store),
		encounters: memory.NewEncounterRepository(store),
		notifier:   &recorderNotifier{},
		tracker:    presence.NewMemoryTracker(presence.DefaultTTL),
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	m := metrics.NewAirspaceMetricsWithRegistry("test", prometheus.NewRegistry())
	logger := log.GetLogger()

	f.svc = NewEncounterService(
		f.encounters, f.sessions, f.birds, f.players,
		memory.NewTxManager(), combat.NewCalculatorWithRand(rng),
		f.notifier, f.tracker, m, logger,
	)
	f.flights = NewFlightService(f.sessions, f.birds, f.players, f.notifier, f.tracker, m, logger)
	return f
}

func (f *encounterFixture) seedPlayer(t *testing.T, playerID string, coins int) *entity.Player {
	t.Helper()
	player := &entity.Player{
		ID: playerID, Username: "u-" + playerID,
		Coins: coins, Level: 1, CoopCapacity: 10, CreatedAt: time.Now(),
	}
	require.NoError(t, f.players.Create(context.Background(), player))
	return player
}

func (f *encounterFixture) seedBird(t *testing.T, birdID, ownerID string, loyalty int) *entity.Bird {
	t.Helper()
	bird := &entity.Bird{
		ID: birdID, Name: "bird-" + birdID, OwnerID: ownerID,
		State: entity.BirdStateInCoop, Rarity: entity.RarityCommon,
		Leadership: 50, Loyalty: loyalty, Speed: 50, GeneticDominance: 50,
		Health: 100, MaxHealth: 100, Stamina: 100, MaxStamina: 100,
		CreatedAt: time.Now(),
	}
	require.NoError(t, f.birds.Create(context.Background(), bird))
	return bird
}

// seedFlight 为玩家建档并开始放飞
func (f *encounterFixture) seedFlight(t *testing.T, playerID string, birdIDs []string, lat, lon float64) *entity.FlightSession {
	t.Helper()
	session, err := f.flights.StartFlight(context.Background(), &StartFlightRequest{
		PlayerID: playerID, BirdIDs: birdIDs,
		Latitude: lat, Longitude: lon, DurationMinutes: 60,
	})
	require.NoError(t, err)
	return session
}

func TestCreateEncounter(t *testing.T) {
	ctx := context.Background()
	f := newEncounterFixture(t, nil)
	f.seedPlayer(t, "p1", 100)
	f.seedPlayer(t, "p2", 100)
	f.seedBird(t, "b1", "p1", 50)
	f.seedBird(t, "b2", "p2", 50)

	s1 := f.seedFlight(t, "p1", []string{"b1"}, 41.0, 29.0)
	s2 := f.seedFlight(t, "p2", []string{"b2"}, 41.001, 29.0)

	encounter, err := f.svc.CreateEncounter(ctx, s1, s2)
	require.NoError(t, err)
	assert.Equal(t, entity.EncounterStatePending, encounter.State)
	assert.True(t, encounter.InitiatorWasOnline)
	assert.True(t, encounter.TargetWasOnline)

	t.Run("双方都收到检测通知", func(t *testing.T) {
		for _, playerID := range []string{"p1", "p2"} {
			events := f.notifier.eventsFor(playerID, notify.EventEncounterDetected)
			require.Len(t, events, 1)
			payload := events[0].Payload.(*EncounterDetectedEvent)
			assert.Equal(t, encounter.ID, payload.EncounterID)
			assert.Greater(t, payload.Opponent.Power, 0)
		}
	})

	t.Run("会话遭遇计数增加", func(t *testing.T) {
		got, err := f.sessions.GetByID(ctx, s1.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.EncountersCount)
	})

	t.Run("同一会话对重复创建被拒绝", func(t *testing.T) {
		_, err := f.svc.CreateEncounter(ctx, s2, s1)
		assert.Equal(t, xerrors.CodeEncounterPairActive, xerrors.CodeOf(err))
	})
}

func TestResolveEncounterWinnerTakesLoot(t *testing.T) {
	ctx := context.Background()

	// 与服务内计算器同源的种子，先走一遍掷点推导期望结果
	const seed = 42
	shadow := rand.New(rand.NewSource(seed))
	expectedRoll := shadow.Intn(101)

	f := newEncounterFixture(t, rand.New(rand.NewSource(seed)))
	f.seedPlayer(t, "p1", 1000)
	f.seedPlayer(t, "p2", 1000)
	f.seedBird(t, "b1", "p1", 50)
	f.seedBird(t, "b2", "p1", 50)
	f.seedBird(t, "b3", "p2", 10)
	f.seedBird(t, "b4", "p2", 90)

	s1 := f.seedFlight(t, "p1", []string{"b1", "b2"}, 41.0, 29.0)
	s2 := f.seedFlight(t, "p2", []string{"b3", "b4"}, 41.001, 29.0)

	encounter, err := f.svc.CreateEncounter(ctx, s1, s2)
	require.NoError(t, err)

	// 双方战力对等，预先推导胜方
	initiatorBirds, _ := f.birds.GetByIDs(ctx, s1.BirdIDs)
	targetBirds, _ := f.birds.GetByIDs(ctx, s2.BirdIDs)
	initiatorPower := combat.FlockPower(initiatorBirds)
	targetPower := combat.FlockPower(targetBirds)
	expectedWinner := "p2"
	if float64(expectedRoll) <= float64(initiatorPower)/float64(initiatorPower+targetPower)*100 {
		expectedWinner = "p1"
	}

	resolved, err := f.svc.ResolveEncounter(ctx, encounter.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.EncounterStateResolved, resolved.State)
	assert.Equal(t, expectedWinner, resolved.WinnerPlayerID.String)
	assert.Equal(t, expectedRoll, resolved.RandomRoll)
	assert.Equal(t, initiatorPower, resolved.InitiatorPower)
	assert.Equal(t, targetPower, resolved.TargetPower)

	winnerID := resolved.WinnerPlayerID.String
	loserID := "p1"
	if winnerID == "p1" {
		loserID = "p2"
	}

	t.Run("胜者全额获得奖励金币", func(t *testing.T) {
		winner, err := f.players.GetByID(ctx, winnerID)
		require.NoError(t, err)
		loser, err := f.players.GetByID(ctx, loserID)
		require.NoError(t, err)
		assert.Equal(t, 1000+resolved.CoinsLooted, winner.Coins)
		assert.Equal(t, 1000, loser.Coins)
		assert.GreaterOrEqual(t, resolved.CoinsLooted, 50)
	})

	t.Run("战绩与经验更新", func(t *testing.T) {
		winner, err := f.players.GetByID(ctx, winnerID)
		require.NoError(t, err)
		loser, err := f.players.GetByID(ctx, loserID)
		require.NoError(t, err)
		assert.Equal(t, 1, winner.TotalEncountersWon)
		assert.Equal(t, 1, loser.TotalEncountersLost)
		assert.Greater(t, winner.Experience+winner.Level*100, 100) // 可能已升级
		assert.Greater(t, loser.Experience+loser.Level*100, 100)
	})

	t.Run("被掠夺的鸽子换主归巢", func(t *testing.T) {
		require.Len(t, resolved.LootedBirdIDs, 1)
		bird, err := f.birds.GetByID(ctx, resolved.LootedBirdIDs[0])
		require.NoError(t, err)
		assert.Equal(t, winnerID, bird.OwnerID)
		assert.Equal(t, entity.BirdStateInCoop, bird.State)
	})

	t.Run("双方都收到结算通知", func(t *testing.T) {
		winnerEvents := f.notifier.eventsFor(winnerID, notify.EventEncounterResult)
		require.Len(t, winnerEvents, 1)
		assert.True(t, winnerEvents[0].Payload.(*EncounterResultEvent).Won)

		loserEvents := f.notifier.eventsFor(loserID, notify.EventEncounterResult)
		require.Len(t, loserEvents, 1)
		assert.False(t, loserEvents[0].Payload.(*EncounterResultEvent).Won)
	})
}

func TestResolveEncounterIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newEncounterFixture(t, nil)
	f.seedPlayer(t, "p1", 100)
	f.seedPlayer(t, "p2", 100)
	f.seedBird(t, "b1", "p1", 50)
	f.seedBird(t, "b2", "p2", 50)

	s1 := f.seedFlight(t, "p1", []string{"b1"}, 41.0, 29.0)
	s2 := f.seedFlight(t, "p2", []string{"b2"}, 41.001, 29.0)

	encounter, err := f.svc.CreateEncounter(ctx, s1, s2)
	require.NoError(t, err)

	first, err := f.svc.ResolveEncounter(ctx, encounter.ID)
	require.NoError(t, err)
	notified := f.notifier.count(notify.EventEncounterResult)

	second, err := f.svc.ResolveEncounter(ctx, encounter.ID)
	require.NoError(t, err)
	assert.Equal(t, first.WinnerPlayerID, second.WinnerPlayerID)
	assert.Equal(t, first.CoinsLooted, second.CoinsLooted)
	assert.Equal(t, notified, f.notifier.count(notify.EventEncounterResult))
}

// 并发结算同一遭遇时只有一次掷点生效，双方各收到一条结算通知
func TestResolveEncounterConcurrent(t *testing.T) {
	ctx := context.Background()
	f := newEncounterFixture(t, nil)
	f.seedPlayer(t, "p1", 1000)
	f.seedPlayer(t, "p2", 1000)
	f.seedBird(t, "b1", "p1", 50)
	f.seedBird(t, "b2", "p2", 50)

	s1 := f.seedFlight(t, "p1", []string{"b1"}, 41.0, 29.0)
	s2 := f.seedFlight(t, "p2", []string{"b2"}, 41.001, 29.0)

	encounter, err := f.svc.CreateEncounter(ctx, s1, s2)
	require.NoError(t, err)

	const callers = 4
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ResolveEncounter(ctx, encounter.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	final, err := f.encounters.GetByID(ctx, encounter.ID)
	require.NoError(t, err)
	require.Equal(t, entity.EncounterStateResolved, final.State)

	t.Run("每名玩家只收到一条结算通知", func(t *testing.T) {
		for _, playerID := range []string{"p1", "p2"} {
			events := f.notifier.eventsFor(playerID, notify.EventEncounterResult)
			require.Len(t, events, 1)
			payload := events[0].Payload.(*EncounterResultEvent)
			assert.Equal(t, final.WinnerPlayerID.String, payload.WinnerPlayerID)
		}
	})

	t.Run("奖励只发放一次", func(t *testing.T) {
		winner, err := f.players.GetByID(ctx, final.WinnerPlayerID.String)
		require.NoError(t, err)
		assert.Equal(t, 1000+final.CoinsLooted, winner.Coins)
		assert.Equal(t, 1, winner.TotalEncountersWon)
	})
}

// 败者余额不封顶胜者奖励：零战力对手也至少产出基础奖励
func TestResolveEncounterRewardIgnoresLoserBalance(t *testing.T) {
	ctx := context.Background()
	f := newEncounterFixture(t, nil)
	f.seedPlayer(t, "p1", 1000)
	f.seedPlayer(t, "p2", 10)
	f.seedBird(t, "b1", "p1", 50)

	// 属性全零的鸽子：鸽群战力为 0，p1 必胜
	weak := &entity.Bird{
		ID: "b2", Name: "bird-b2", OwnerID: "p2",
		State: entity.BirdStateInCoop, Rarity: entity.RarityCommon,
		Health: 100, MaxHealth: 100, Stamina: 100, MaxStamina: 100,
		CreatedAt: time.Now(),
	}
	require.NoError(t, f.birds.Create(ctx, weak))

	s1 := f.seedFlight(t, "p1", []string{"b1"}, 41.0, 29.0)
	s2 := f.seedFlight(t, "p2", []string{"b2"}, 41.001, 29.0)

	encounter, err := f.svc.CreateEncounter(ctx, s1, s2)
	require.NoError(t, err)

	resolved, err := f.svc.ResolveEncounter(ctx, encounter.ID)
	require.NoError(t, err)
	require.Equal(t, "p1", resolved.WinnerPlayerID.String)
	assert.Equal(t, 50, resolved.CoinsLooted)

	winner, err := f.players.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1050, winner.Coins)

	loser, err := f.players.GetByID(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, 10, loser.Coins)
}

func TestResolveEncounterCancelsWhenSessionEnded(t *testing.T) {
	ctx := context.Background()
	f := newEncounterFixture(t, nil)
	f.seedPlayer(t, "p1", 100)
	f.seedPlayer(t, "p2", 100)
	f.seedBird(t, "b1", "p1", 50)
	f.seedBird(t, "b2", "p2", 50)

	s1 := f.seedFlight(t, "p1", []string{"b1"}, 41.0, 29.0)
	s2 := f.seedFlight(t, "p2", []string{"b2"}, 41.001, 29.0)

	encounter, err := f.svc.CreateEncounter(ctx, s1, s2)
	require.NoError(t, err)

	_, err = f.flights.EndFlight(ctx, "p2", s2.ID)
	require.NoError(t, err)

	resolved, err := f.svc.ResolveEncounter(ctx, encounter.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.EncounterStateCancelled, resolved.State)
	assert.False(t, resolved.WinnerPlayerID.Valid)

	player, err := f.players.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 100, player.Coins)
}

func TestCancelEncounter(t *testing.T) {
	ctx := context.Background()
	f := newEncounterFixture(t, nil)
	f.seedPlayer(t, "p1", 100)
	f.seedPlayer(t, "p2", 100)
	f.seedBird(t, "b1", "p1", 50)
	f.seedBird(t, "b2", "p2", 50)

	s1 := f.seedFlight(t, "p1", []string{"b1"}, 41.0, 29.0)
	s2 := f.seedFlight(t, "p2", []string{"b2"}, 41.001, 29.0)

	encounter, err := f.svc.CreateEncounter(ctx, s1, s2)
	require.NoError(t, err)

	cancelled, err := f.svc.CancelEncounter(ctx, encounter.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.EncounterStateCancelled, cancelled.State)

	t.Run("已终结的遭遇取消是空操作", func(t *testing.T) {
		again, err := f.svc.CancelEncounter(ctx, encounter.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.EncounterStateCancelled, again.State)
	})

	t.Run("取消后同一会话对可再次遭遇", func(t *testing.T) {
		_, err := f.svc.CreateEncounter(ctx, s1, s2)
		assert.NoError(t, err)
	})
}

func TestResolveTimedOutEncounters(t *testing.T) {
	ctx := context.Background()
	f := newEncounterFixture(t, nil)
	f.seedPlayer(t, "p1", 100)
	f.seedPlayer(t, "p2", 100)
	f.seedBird(t, "b1", "p1", 50)
	f.seedBird(t, "b2", "p2", 50)

	s1 := f.seedFlight(t, "p1", []string{"b1"}, 41.0, 29.0)
	s2 := f.seedFlight(t, "p2", []string{"b2"}, 41.001, 29.0)

	encounter, err := f.svc.CreateEncounter(ctx, s1, s2)
	require.NoError(t, err)

	t.Run("未超时不结算", func(t *testing.T) {
		resolved, err := f.svc.ResolveTimedOutEncounters(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 0, resolved)
	})

	t.Run("超时后自动结算", func(t *testing.T) {
		resolved, err := f.svc.ResolveTimedOutEncounters(ctx, time.Now().Add(EncounterTimeout+time.Second))
		require.NoError(t, err)
		assert.Equal(t, 1, resolved)

		got, err := f.encounters.GetByID(ctx, encounter.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.EncounterStateResolved, got.State)
	})
}

func TestPreviewEncounter(t *testing.T) {
	ctx := context.Background()
	f := newEncounterFixture(t, nil)
	f.seedPlayer(t, "p1", 100)
	f.seedPlayer(t, "p2", 100)
	f.seedBird(t, "b1", "p1", 50)
	f.seedBird(t, "b2", "p2", 50)
	f.seedBird(t, "b3", "p2", 50)

	s1 := f.seedFlight(t, "p1", []string{"b1"}, 41.0, 29.0)
	s2 := f.seedFlight(t, "p2", []string{"b2", "b3"}, 41.001, 29.0)

	encounter, err := f.svc.CreateEncounter(ctx, s1, s2)
	require.NoError(t, err)

	preview, err := f.svc.PreviewEncounter(ctx, encounter.ID)
	require.NoError(t, err)
	assert.Greater(t, preview.TargetPower, preview.InitiatorPower)
	assert.Greater(t, preview.TargetWinChance, preview.InitiatorWinChance)
	assert.InDelta(t, 1.0, preview.InitiatorWinChance+preview.TargetWinChance, 1e-9)

	t.Run("已结算的遭遇不可预览", func(t *testing.T) {
		_, err := f.svc.ResolveEncounter(ctx, encounter.ID)
		require.NoError(t, err)

		_, err = f.svc.PreviewEncounter(ctx, encounter.ID)
		assert.Equal(t, xerrors.CodeEncounterNotPending, xerrors.CodeOf(err))
	})
}

// 假想对局推演不要求存在遭遇
func TestPreviewMatchup(t *testing.T) {
	ctx := context.Background()
	f := newEncounterFixture(t, nil)
	f.seedPlayer(t, "p1", 100)
	f.seedPlayer(t, "p2", 100)
	f.seedBird(t, "b1", "p1", 50)
	f.seedBird(t, "b2", "p2", 50)
	f.seedBird(t, "b3", "p2", 50)

	// 相距远，检测不到，也没有遭遇记录
	s1 := f.seedFlight(t, "p1", []string{"b1"}, 41.0, 29.0)
	s2 := f.seedFlight(t, "p2", []string{"b2", "b3"}, 48.0, 2.0)

	preview, err := f.svc.PreviewMatchup(ctx, s1.ID, s2.ID)
	require.NoError(t, err)
	assert.Empty(t, preview.EncounterID)
	assert.Greater(t, preview.TargetPower, preview.InitiatorPower)
	assert.InDelta(t, 1.0, preview.InitiatorWinChance+preview.TargetWinChance, 1e-9)

	t.Run("不能与自己的会话推演", func(t *testing.T) {
		_, err := f.svc.PreviewMatchup(ctx, s1.ID, s1.ID)
		assert.Equal(t, xerrors.CodeInvalidParams, xerrors.CodeOf(err))
	})

	t.Run("会话不存在时报错", func(t *testing.T) {
		_, err := f.svc.PreviewMatchup(ctx, s1.ID, "ghost")
		assert.Equal(t, xerrors.CodeSessionNotFound, xerrors.CodeOf(err))
	})
}

func TestGetPlayerStats(t *testing.T) {
	ctx := context.Background()
	f := newEncounterFixture(t, nil)
	player := f.seedPlayer(t, "p1", 250)
	player.RecordEncounterWin()
	require.NoError(t, f.players.Update(ctx, nil, player))
	require.NoError(t, f.tracker.MarkOnline(ctx, "p1"))

	stats, err := f.svc.GetPlayerStats(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 250, stats.Coins)
	assert.Equal(t, 1, stats.TotalEncountersWon)
	assert.True(t, stats.Online)

	_, err = f.svc.GetPlayerStats(ctx, "ghost")
	assert.Equal(t, xerrors.CodePlayerNotFound, xerrors.CodeOf(err))
}
