// Package memory 提供仓储接口的内存实现，供本地运行与测试使用。
// 所有实现并发安全，读写均做值拷贝以避免调用方与存储共享可变状态。
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aarondl/sqlboiler/v4/boil"

	"taklaci-self/internal/entity"
	"taklaci-self/internal/pkg/xerrors"
	"taklaci-self/internal/repository/interfaces"
)

// Store 内存数据存储，聚合了各仓储共享的数据与锁
type Store struct {
	mu         sync.RWMutex
	birds      map[string]*entity.Bird
	players    map[string]*entity.Player
	sessions   map[string]*entity.FlightSession
	encounters map[string]*entity.Encounter
}

// NewStore 创建空的内存存储
func NewStore() *Store {
	return &Store{
		birds:      make(map[string]*entity.Bird),
		players:    make(map[string]*entity.Player),
		sessions:   make(map[string]*entity.FlightSession),
		encounters: make(map[string]*entity.Encounter),
	}
}

func copyBird(b *entity.Bird) *entity.Bird {
	c := *b
	return &c
}

func copyPlayer(p *entity.Player) *entity.Player {
	c := *p
	return &c
}

func copySession(s *entity.FlightSession) *entity.FlightSession {
	c := *s
	c.BirdIDs = append(c.BirdIDs[:0:0], s.BirdIDs...)
	return &c
}

func copyEncounter(e *entity.Encounter) *entity.Encounter {
	c := *e
	c.LootedBirdIDs = append(c.LootedBirdIDs[:0:0], e.LootedBirdIDs...)
	return &c
}

// ---- BirdRepository ----

type birdRepository struct {
	store *Store
}

// NewBirdRepository 创建内存鸽子仓储
func NewBirdRepository(store *Store) interfaces.BirdRepository {
	return &birdRepository{store: store}
}

func (r *birdRepository) Create(ctx context.Context, bird *entity.Bird) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.birds[bird.ID]; exists {
		return xerrors.NewConflictError("bird", bird.ID)
	}
	r.store.birds[bird.ID] = copyBird(bird)
	return nil
}

func (r *birdRepository) GetByID(ctx context.Context, birdID string) (*entity.Bird, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	bird, ok := r.store.birds[birdID]
	if !ok {
		return nil, xerrors.NewBirdNotFoundError(birdID)
	}
	return copyBird(bird), nil
}

func (r *birdRepository) GetByIDs(ctx context.Context, birdIDs []string) ([]*entity.Bird, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	birds := make([]*entity.Bird, 0, len(birdIDs))
	for _, id := range birdIDs {
		if bird, ok := r.store.birds[id]; ok {
			birds = append(birds, copyBird(bird))
		}
	}
	return birds, nil
}

func (r *birdRepository) GetByOwnerID(ctx context.Context, ownerID string) ([]*entity.Bird, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var birds []*entity.Bird
	for _, bird := range r.store.birds {
		if bird.OwnerID == ownerID {
			birds = append(birds, copyBird(bird))
		}
	}
	sort.Slice(birds, func(i, j int) bool { return birds[i].CreatedAt.Before(birds[j].CreatedAt) })
	return birds, nil
}

func (r *birdRepository) Update(ctx context.Context, execer boil.ContextExecutor, bird *entity.Bird) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.birds[bird.ID]; !ok {
		return xerrors.NewBirdNotFoundError(bird.ID)
	}
	r.store.birds[bird.ID] = copyBird(bird)
	return nil
}

// ---- PlayerRepository ----

type playerRepository struct {
	store *Store
}

// NewPlayerRepository 创建内存玩家仓储
func NewPlayerRepository(store *Store) interfaces.PlayerRepository {
	return &playerRepository{store: store}
}

func (r *playerRepository) Create(ctx context.Context, player *entity.Player) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.players[player.ID]; exists {
		return xerrors.NewConflictError("player", player.ID)
	}
	r.store.players[player.ID] = copyPlayer(player)
	return nil
}

func (r *playerRepository) GetByID(ctx context.Context, playerID string) (*entity.Player, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	player, ok := r.store.players[playerID]
	if !ok {
		return nil, xerrors.NewPlayerNotFoundError(playerID)
	}
	return copyPlayer(player), nil
}

func (r *playerRepository) Update(ctx context.Context, execer boil.ContextExecutor, player *entity.Player) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.players[player.ID]; !ok {
		return xerrors.NewPlayerNotFoundError(player.ID)
	}
	r.store.players[player.ID] = copyPlayer(player)
	return nil
}

// ---- SessionRepository ----

type sessionRepository struct {
	store *Store
}

// NewSessionRepository 创建内存放飞会话仓储
func NewSessionRepository(store *Store) interfaces.SessionRepository {
	return &sessionRepository{store: store}
}

func (r *sessionRepository) Create(ctx context.Context, session *entity.FlightSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.sessions[session.ID]; exists {
		return xerrors.NewConflictError("flight_session", session.ID)
	}
	r.store.sessions[session.ID] = copySession(session)
	return nil
}

func (r *sessionRepository) GetByID(ctx context.Context, sessionID string) (*entity.FlightSession, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	session, ok := r.store.sessions[sessionID]
	if !ok {
		return nil, xerrors.NewSessionNotFoundError(sessionID)
	}
	return copySession(session), nil
}

func (r *sessionRepository) GetActiveByPlayerID(ctx context.Context, playerID string) (*entity.FlightSession, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var latest *entity.FlightSession
	for _, session := range r.store.sessions {
		if session.PlayerID != playerID || !session.IsActive {
			continue
		}
		if latest == nil || session.StartedAt.After(latest.StartedAt) {
			latest = session
		}
	}
	if latest == nil {
		return nil, nil
	}
	return copySession(latest), nil
}

func (r *sessionRepository) GetAllActive(ctx context.Context) ([]*entity.FlightSession, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var sessions []*entity.FlightSession
	for _, session := range r.store.sessions {
		if session.IsActive {
			sessions = append(sessions, copySession(session))
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})
	return sessions, nil
}

func (r *sessionRepository) GetExpired(ctx context.Context, now time.Time) ([]*entity.FlightSession, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var sessions []*entity.FlightSession
	for _, session := range r.store.sessions {
		if session.IsActive && session.IsExpired(now) {
			sessions = append(sessions, copySession(session))
		}
	}
	return sessions, nil
}

func (r *sessionRepository) GetHistoryByPlayerID(ctx context.Context, playerID string, limit int) ([]*entity.FlightSession, error) {
	if limit <= 0 {
		limit = 20
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var sessions []*entity.FlightSession
	for _, session := range r.store.sessions {
		if session.PlayerID == playerID {
			sessions = append(sessions, copySession(session))
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (r *sessionRepository) Update(ctx context.Context, execer boil.ContextExecutor, session *entity.FlightSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.sessions[session.ID]; !ok {
		return xerrors.NewSessionNotFoundError(session.ID)
	}
	r.store.sessions[session.ID] = copySession(session)
	return nil
}

// ---- EncounterRepository ----

type encounterRepository struct {
	store *Store
}

// NewEncounterRepository 创建内存遭遇仓储
func NewEncounterRepository(store *Store) interfaces.EncounterRepository {
	return &encounterRepository{store: store}
}

func (r *encounterRepository) CreateIfAbsent(ctx context.Context, encounter *entity.Encounter) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	// 持锁期间完成查重与写入，与数据库唯一索引等价
	for _, existing := range r.store.encounters {
		if existing.PairKey == encounter.PairKey && !existing.State.IsTerminal() {
			return xerrors.FromCode(xerrors.CodeEncounterPairActive)
		}
	}
	r.store.encounters[encounter.ID] = copyEncounter(encounter)
	return nil
}

func (r *encounterRepository) GetByID(ctx context.Context, encounterID string) (*entity.Encounter, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	encounter, ok := r.store.encounters[encounterID]
	if !ok {
		return nil, xerrors.NewEncounterNotFoundError(encounterID)
	}
	return copyEncounter(encounter), nil
}

func (r *encounterRepository) GetActiveByPairKey(ctx context.Context, pairKey string) (*entity.Encounter, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var latest *entity.Encounter
	for _, encounter := range r.store.encounters {
		if encounter.PairKey != pairKey || encounter.State.IsTerminal() {
			continue
		}
		if latest == nil || encounter.CreatedAt.After(latest.CreatedAt) {
			latest = encounter
		}
	}
	if latest == nil {
		return nil, nil
	}
	return copyEncounter(latest), nil
}

func (r *encounterRepository) ClaimPending(ctx context.Context, encounterID string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	encounter, ok := r.store.encounters[encounterID]
	if !ok {
		return false, xerrors.NewEncounterNotFoundError(encounterID)
	}
	// 持写锁期间比较并置位，与数据库的条件更新等价
	if encounter.State != entity.EncounterStatePending {
		return false, nil
	}
	encounter.SetInProgress()
	return true, nil
}

func (r *encounterRepository) GetPendingBefore(ctx context.Context, cutoff time.Time) ([]*entity.Encounter, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var encounters []*entity.Encounter
	for _, encounter := range r.store.encounters {
		if encounter.State == entity.EncounterStatePending && !encounter.CreatedAt.After(cutoff) {
			encounters = append(encounters, copyEncounter(encounter))
		}
	}
	sort.Slice(encounters, func(i, j int) bool {
		return encounters[i].CreatedAt.Before(encounters[j].CreatedAt)
	})
	return encounters, nil
}

func (r *encounterRepository) GetActiveByPlayerID(ctx context.Context, playerID string) ([]*entity.Encounter, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var encounters []*entity.Encounter
	for _, encounter := range r.store.encounters {
		if encounter.InvolvesPlayer(playerID) && !encounter.State.IsTerminal() {
			encounters = append(encounters, copyEncounter(encounter))
		}
	}
	sort.Slice(encounters, func(i, j int) bool {
		return encounters[i].CreatedAt.After(encounters[j].CreatedAt)
	})
	return encounters, nil
}

func (r *encounterRepository) GetHistoryByPlayerID(ctx context.Context, playerID string, limit int) ([]*entity.Encounter, error) {
	if limit <= 0 {
		limit = 20
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var encounters []*entity.Encounter
	for _, encounter := range r.store.encounters {
		if encounter.InvolvesPlayer(playerID) {
			encounters = append(encounters, copyEncounter(encounter))
		}
	}
	sort.Slice(encounters, func(i, j int) bool {
		return encounters[i].CreatedAt.After(encounters[j].CreatedAt)
	})
	if len(encounters) > limit {
		encounters = encounters[:limit]
	}
	return encounters, nil
}

func (r *encounterRepository) Update(ctx context.Context, execer boil.ContextExecutor, encounter *entity.Encounter) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.encounters[encounter.ID]; !ok {
		return xerrors.NewEncounterNotFoundError(encounter.ID)
	}
	r.store.encounters[encounter.ID] = copyEncounter(encounter)
	return nil
}

// ---- TxManager ----

type txManager struct {
	mu sync.Mutex
}

// NewTxManager 创建内存事务管理器。
// 内存存储没有真正的事务，用互斥锁串行化回调以保持结算的原子观感。
func NewTxManager() interfaces.TxManager {
	return &txManager{}
}

func (m *txManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context, execer boil.ContextExecutor) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, nil)
}
