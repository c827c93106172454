package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taklaci-self/internal/entity"
	"taklaci-self/internal/pkg/xerrors"
)

func newTestSession(playerID string, minutes int) *entity.FlightSession {
	return entity.NewFlightSession(playerID, []string{"b-" + playerID}, 41.0, 29.0, minutes)
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewSessionRepository(store)

	session := newTestSession("p1", 30)
	require.NoError(t, repo.Create(ctx, session))

	t.Run("按玩家查进行中会话", func(t *testing.T) {
		got, err := repo.GetActiveByPlayerID(ctx, "p1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, session.ID, got.ID)

		none, err := repo.GetActiveByPlayerID(ctx, "p2")
		require.NoError(t, err)
		assert.Nil(t, none)
	})

	t.Run("读到的是副本", func(t *testing.T) {
		got, err := repo.GetByID(ctx, session.ID)
		require.NoError(t, err)
		got.Latitude = 0

		again, err := repo.GetByID(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, 41.0, again.Latitude)
	})

	t.Run("结束后不再是进行中", func(t *testing.T) {
		session.End(time.Now())
		require.NoError(t, repo.Update(ctx, nil, session))

		got, err := repo.GetActiveByPlayerID(ctx, "p1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestSessionRepositoryGetExpired(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewSessionRepository(store)

	short := newTestSession("p1", 1)
	long := newTestSession("p2", 120)
	require.NoError(t, repo.Create(ctx, short))
	require.NoError(t, repo.Create(ctx, long))

	expired, err := repo.GetExpired(ctx, time.Now().Add(5*time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, short.ID, expired[0].ID)
}

func TestEncounterRepositoryPairDedup(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewEncounterRepository(store)

	s1 := newTestSession("p1", 30)
	s2 := newTestSession("p2", 30)

	first := entity.NewEncounter(s1, s2, true, false)
	require.NoError(t, repo.CreateIfAbsent(ctx, first))

	t.Run("同一会话对重复创建被拒绝", func(t *testing.T) {
		dup := entity.NewEncounter(s1, s2, true, true)
		err := repo.CreateIfAbsent(ctx, dup)
		require.Error(t, err)
		assert.Equal(t, xerrors.CodeEncounterPairActive, xerrors.CodeOf(err))
	})

	t.Run("方向相反仍视为同一对", func(t *testing.T) {
		reversed := entity.NewEncounter(s2, s1, true, true)
		err := repo.CreateIfAbsent(ctx, reversed)
		require.Error(t, err)
		assert.Equal(t, xerrors.CodeEncounterPairActive, xerrors.CodeOf(err))
	})

	t.Run("终结后允许新遭遇", func(t *testing.T) {
		first.Cancel(time.Now())
		require.NoError(t, repo.Update(ctx, nil, first))

		next := entity.NewEncounter(s1, s2, false, false)
		assert.NoError(t, repo.CreateIfAbsent(ctx, next))
	})
}

func TestEncounterRepositoryConcurrentDedup(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewEncounterRepository(store)

	s1 := newTestSession("p1", 30)
	s2 := newTestSession("p2", 30)

	const attempts = 50
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- repo.CreateIfAbsent(ctx, entity.NewEncounter(s1, s2, true, true))
		}()
	}
	wg.Wait()
	close(results)

	created := 0
	for err := range results {
		if err == nil {
			created++
		} else {
			assert.Equal(t, xerrors.CodeEncounterPairActive, xerrors.CodeOf(err))
		}
	}
	assert.Equal(t, 1, created)
}

func TestEncounterRepositoryClaimPending(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewEncounterRepository(store)

	s1 := newTestSession("p1", 30)
	s2 := newTestSession("p2", 30)
	enc := entity.NewEncounter(s1, s2, true, true)
	require.NoError(t, repo.CreateIfAbsent(ctx, enc))

	t.Run("并发抢占只有一方成功", func(t *testing.T) {
		const attempts = 20
		var wg sync.WaitGroup
		results := make(chan bool, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				claimed, err := repo.ClaimPending(ctx, enc.ID)
				require.NoError(t, err)
				results <- claimed
			}()
		}
		wg.Wait()
		close(results)

		claimed := 0
		for ok := range results {
			if ok {
				claimed++
			}
		}
		assert.Equal(t, 1, claimed)

		current, err := repo.GetByID(ctx, enc.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.EncounterStateInProgress, current.State)
	})

	t.Run("不存在的遭遇返回错误", func(t *testing.T) {
		_, err := repo.ClaimPending(ctx, "ghost")
		require.Error(t, err)
		assert.Equal(t, xerrors.CodeEncounterNotFound, xerrors.CodeOf(err))
	})
}

func TestEncounterRepositoryQueries(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewEncounterRepository(store)

	s1 := newTestSession("p1", 30)
	s2 := newTestSession("p2", 30)
	enc := entity.NewEncounter(s1, s2, true, true)
	enc.CreatedAt = time.Now().Add(-time.Minute)
	require.NoError(t, repo.CreateIfAbsent(ctx, enc))

	t.Run("待结算扫描命中超时遭遇", func(t *testing.T) {
		pending, err := repo.GetPendingBefore(ctx, time.Now().Add(-30*time.Second))
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, enc.ID, pending[0].ID)
	})

	t.Run("双方都能查到参与中的遭遇", func(t *testing.T) {
		for _, playerID := range []string{"p1", "p2"} {
			active, err := repo.GetActiveByPlayerID(ctx, playerID)
			require.NoError(t, err)
			assert.Len(t, active, 1)
		}

		active, err := repo.GetActiveByPlayerID(ctx, "p3")
		require.NoError(t, err)
		assert.Empty(t, active)
	})
}

func TestBirdAndPlayerRepository(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	birds := NewBirdRepository(store)
	players := NewPlayerRepository(store)

	bird := &entity.Bird{ID: "b1", Name: "Sultan", OwnerID: "p1", State: entity.BirdStateInCoop,
		Health: 100, MaxHealth: 100, Stamina: 100, MaxStamina: 100, CreatedAt: time.Now()}
	require.NoError(t, birds.Create(ctx, bird))

	t.Run("批量查询跳过缺失ID", func(t *testing.T) {
		got, err := birds.GetByIDs(ctx, []string{"b1", "missing"})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("玩家不存在返回领域错误", func(t *testing.T) {
		_, err := players.GetByID(ctx, "ghost")
		require.Error(t, err)
		assert.Equal(t, xerrors.CodePlayerNotFound, xerrors.CodeOf(err))
	})

	t.Run("更新后可读到新归属", func(t *testing.T) {
		bird.TransferOwnership("p2")
		require.NoError(t, birds.Update(ctx, nil, bird))

		got, err := birds.GetByID(ctx, "b1")
		require.NoError(t, err)
		assert.Equal(t, "p2", got.OwnerID)
	})
}
