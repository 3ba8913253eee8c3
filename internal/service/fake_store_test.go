package service

import (
	"context"
	"sync"

	"wager-server/internal/model"
	"wager-server/internal/store"
)

// 内存版 store 实现，用于业务逻辑测试
// Begin 时拷贝一份数据快照，所有写操作落在快照上，Commit 才回写主存
// 以此模拟事务的原子生效/整体回滚语义
// GetGameForUpdate 持有对局级互斥锁直到 Commit/Rollback，模拟行锁串行化；
// 条件推进（JoinGame 等）同时校验已提交状态，与真实的条件 UPDATE 语义一致

type fakeOutboxMsg struct {
	Topic   string
	BizKey  string
	Payload any
}

type fakeStore struct {
	mu sync.Mutex

	users      map[int64]*model.User
	games      map[int64]*model.Game
	ledgers    []model.WalletLedger
	settleLogs map[int64]*model.SettlementLog // game_id -> log
	idemKeys   map[string]string              // key -> ref
	audits     []model.GameAudit
	outbox     []fakeOutboxMsg

	nextGameID int64
	nextUserID int64

	// 对局行锁，GetGameForUpdate 获取，事务结束释放
	gameLocks map[int64]*sync.Mutex

	// 按操作名注入错误，模拟某一步落库失败
	failOn map[string]error
}

var (
	_ store.Store = (*fakeStore)(nil)
	_ store.Tx    = (*fakeTx)(nil)
)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:      map[int64]*model.User{},
		games:      map[int64]*model.Game{},
		settleLogs: map[int64]*model.SettlementLog{},
		idemKeys:   map[string]string{},
		gameLocks:  map[int64]*sync.Mutex{},
		failOn:     map[string]error{},
	}
}

func (f *fakeStore) gameLock(gameID int64) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	lk, ok := f.gameLocks[gameID]
	if !ok {
		lk = &sync.Mutex{}
		f.gameLocks[gameID] = lk
	}
	return lk
}

func (f *fakeStore) addUser(id int64, balance float64) {
	f.users[id] = &model.User{ID: id, Balance: balance, Status: 1}
	if id >= f.nextUserID {
		f.nextUserID = id + 1
	}
}

func (f *fakeStore) addGame(g *model.Game) {
	f.games[g.ID] = g
	if g.ID >= f.nextGameID {
		f.nextGameID = g.ID + 1
	}
}

func (f *fakeStore) balance(id int64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return u.Balance
	}
	return 0
}

func (f *fakeStore) failErr(op string) error {
	return f.failOn[op]
}

func (f *fakeStore) Begin(ctx context.Context) (store.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failErr("Begin"); err != nil {
		return nil, err
	}

	tx := &fakeTx{
		st:         f,
		users:      map[int64]*model.User{},
		games:      map[int64]*model.Game{},
		settleLogs: map[int64]*model.SettlementLog{},
		idemKeys:   map[string]string{},
	}
	for id, u := range f.users {
		cp := *u
		tx.users[id] = &cp
	}
	for id, g := range f.games {
		cp := *g
		tx.games[id] = &cp
	}
	for id, l := range f.settleLogs {
		cp := *l
		tx.settleLogs[id] = &cp
	}
	for k, v := range f.idemKeys {
		tx.idemKeys[k] = v
	}
	tx.ledgers = append(tx.ledgers, f.ledgers...)
	tx.audits = append(tx.audits, f.audits...)
	tx.outbox = append(tx.outbox, f.outbox...)
	tx.nextGameID = f.nextGameID
	tx.nextUserID = f.nextUserID
	return tx, nil
}

func (f *fakeStore) GetGame(ctx context.Context, gameID int64) (*model.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[gameID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (f *fakeStore) ListOpenGames(ctx context.Context, limit uint) ([]model.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit == 0 {
		limit = 50
	}
	var list []model.Game
	for _, g := range f.games {
		if g.Status == 1 {
			list = append(list, *g)
		}
		if uint(len(list)) >= limit {
			break
		}
	}
	return list, nil
}

func (f *fakeStore) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetSettlementLog(ctx context.Context, gameID int64) (*model.SettlementLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.settleLogs[gameID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeStore) ListLedgerByGame(ctx context.Context, gameID int64) ([]model.WalletLedger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []model.WalletLedger
	for _, l := range f.ledgers {
		if l.GameID == gameID {
			list = append(list, l)
		}
	}
	return list, nil
}

type fakeTx struct {
	st *fakeStore

	users      map[int64]*model.User
	games      map[int64]*model.Game
	ledgers    []model.WalletLedger
	settleLogs map[int64]*model.SettlementLog
	idemKeys   map[string]string
	audits     []model.GameAudit
	outbox     []fakeOutboxMsg

	nextGameID int64
	nextUserID int64

	held []*sync.Mutex

	committed bool
}

func (t *fakeTx) releaseLocks() {
	for _, lk := range t.held {
		lk.Unlock()
	}
	t.held = nil
}

func (t *fakeTx) Commit() error {
	if err := t.st.failErr("Commit"); err != nil {
		return err
	}
	t.st.mu.Lock()
	t.st.users = t.users
	t.st.games = t.games
	t.st.ledgers = t.ledgers
	t.st.settleLogs = t.settleLogs
	t.st.idemKeys = t.idemKeys
	t.st.audits = t.audits
	t.st.outbox = t.outbox
	t.st.nextGameID = t.nextGameID
	t.st.nextUserID = t.nextUserID
	t.committed = true
	t.st.mu.Unlock()
	t.releaseLocks()
	return nil
}

// Rollback 丢弃快照并释放行锁（Commit 之后的 Rollback 为空操作，与 sql.Tx 习惯一致）
func (t *fakeTx) Rollback() error {
	t.releaseLocks()
	return nil
}

func (t *fakeTx) InsertGame(ctx context.Context, g *model.Game) error {
	if err := t.st.failErr("InsertGame"); err != nil {
		return err
	}
	if t.nextGameID == 0 {
		t.nextGameID = 1
	}
	g.ID = t.nextGameID
	t.nextGameID++
	g.Status = 1
	cp := *g
	t.games[g.ID] = &cp
	return nil
}

// GetGameForUpdate 先拿对局行锁，再以已提交状态刷新本事务快照
// 与 FOR UPDATE 一致：后到的事务阻塞，解锁后读到的是前者提交的结果
func (t *fakeTx) GetGameForUpdate(ctx context.Context, gameID int64) (*model.Game, error) {
	lk := t.st.gameLock(gameID)
	lk.Lock()
	t.st.mu.Lock()
	live, ok := t.st.games[gameID]
	if ok {
		cp := *live
		t.games[gameID] = &cp
	}
	t.st.mu.Unlock()
	if !ok {
		lk.Unlock()
		return nil, store.ErrNotFound
	}
	t.held = append(t.held, lk)
	cp := *t.games[gameID]
	return &cp, nil
}

// committedGameIs 以已提交状态判定条件推进是否命中，对应 UPDATE ... WHERE status = ?
func (t *fakeTx) committedGameIs(gameID int64, status int8, player2Empty bool) bool {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	g, ok := t.st.games[gameID]
	if !ok || g.Status != status {
		return false
	}
	if player2Empty && g.Player2ID.Valid {
		return false
	}
	return true
}

func (t *fakeTx) JoinGame(ctx context.Context, gameID, player2ID int64) (bool, error) {
	g, ok := t.games[gameID]
	if !ok || g.Status != 1 || g.Player2ID.Valid {
		return false, nil
	}
	if !t.committedGameIs(gameID, 1, true) {
		return false, nil
	}
	g.Player2ID.Int64 = player2ID
	g.Player2ID.Valid = true
	g.Status = 2
	return true, nil
}

func (t *fakeTx) ActivateGame(ctx context.Context, gameID int64) (bool, error) {
	g, ok := t.games[gameID]
	if !ok || g.Status != 1 {
		return false, nil
	}
	if !t.committedGameIs(gameID, 1, false) {
		return false, nil
	}
	g.Status = 2
	return true, nil
}

func (t *fakeTx) MarkGameSettled(ctx context.Context, gameID, winnerID int64, settleNo string) (bool, error) {
	g, ok := t.games[gameID]
	if !ok || g.Status != 2 {
		return false, nil
	}
	if !t.committedGameIs(gameID, 2, false) {
		return false, nil
	}
	g.Status = 3
	g.WinnerID.Int64 = winnerID
	g.WinnerID.Valid = true
	g.SettleNo = settleNo
	return true, nil
}

func (t *fakeTx) InsertUser(ctx context.Context, u *model.User) error {
	if err := t.st.failErr("InsertUser"); err != nil {
		return err
	}
	if t.nextUserID == 0 {
		t.nextUserID = 1
	}
	u.ID = t.nextUserID
	t.nextUserID++
	cp := *u
	t.users[u.ID] = &cp
	return nil
}

func (t *fakeTx) GetUserForUpdate(ctx context.Context, userID int64) (*model.User, error) {
	u, ok := t.users[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (t *fakeTx) UpdateUserBalance(ctx context.Context, userID int64, newBalance float64) error {
	if err := t.st.failErr("UpdateUserBalance"); err != nil {
		return err
	}
	u, ok := t.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.Balance = newBalance
	return nil
}

func (t *fakeTx) InsertLedger(ctx context.Context, l *model.WalletLedger) error {
	if err := t.st.failErr("InsertLedger"); err != nil {
		return err
	}
	t.ledgers = append(t.ledgers, *l)
	return nil
}

func (t *fakeTx) CreateSettlementLog(ctx context.Context, log *model.SettlementLog) error {
	if err := t.st.failErr("CreateSettlementLog"); err != nil {
		return err
	}
	if _, ok := t.settleLogs[log.GameID]; ok {
		return store.ErrDuplicateKey
	}
	cp := *log
	t.settleLogs[log.GameID] = &cp
	return nil
}

func (t *fakeTx) InsertAudit(ctx context.Context, a *model.GameAudit) error {
	if err := t.st.failErr("InsertAudit"); err != nil {
		return err
	}
	t.audits = append(t.audits, *a)
	return nil
}

func (t *fakeTx) CreateOutbox(ctx context.Context, topic, bizKey string, payload any) error {
	if err := t.st.failErr("CreateOutbox"); err != nil {
		return err
	}
	t.outbox = append(t.outbox, fakeOutboxMsg{Topic: topic, BizKey: bizKey, Payload: payload})
	return nil
}

func (t *fakeTx) InsertIdempotencyKey(ctx context.Context, key, purpose, ref string) error {
	if err := t.st.failErr("InsertIdempotencyKey"); err != nil {
		return err
	}
	if _, ok := t.idemKeys[key]; ok {
		return store.ErrDuplicateKey
	}
	t.idemKeys[key] = ref
	return nil
}
