package store

import (
	"context"
	"errors"

	chelper "wager-server/common/helper"
	"wager-server/internal/model"

	mysqlerr "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// mysqlStore 基于 sqlx 的 Store 实现，SQL 细节全部收敛在 model 包
type mysqlStore struct {
	db      *sqlx.DB
	replica *sqlx.DB // 只读从库（可选）
}

// NewMySQLStore 构造 MySQL 存储
func NewMySQLStore(db *sqlx.DB) Store {
	return &mysqlStore{db: db}
}

// NewMySQLStoreWithReplica 读写分离构造
// 快照类读走从库，事务与结算日志读保持主库
func NewMySQLStoreWithReplica(db, replica *sqlx.DB) Store {
	return &mysqlStore{db: db, replica: replica}
}

func (s *mysqlStore) reader() *sqlx.DB {
	if s.replica != nil {
		return s.replica
	}
	return s.db
}

func (s *mysqlStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &mysqlTx{tx: tx}, nil
}

func (s *mysqlStore) GetGame(ctx context.Context, gameID int64) (*model.Game, error) {
	g, err := model.GetGame(ctx, s.reader(), gameID)
	return g, mapErr(err)
}

func (s *mysqlStore) ListOpenGames(ctx context.Context, limit uint) ([]model.Game, error) {
	return model.ListOpenGames(ctx, s.reader(), limit)
}

func (s *mysqlStore) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	u, err := model.GetUserByID(ctx, s.reader(), userID)
	return u, mapErr(err)
}

func (s *mysqlStore) GetSettlementLog(ctx context.Context, gameID int64) (*model.SettlementLog, error) {
	// 幂等重试要读到刚提交的结算日志，固定走主库
	log, err := model.GetSettlementLog(ctx, s.db, gameID)
	return log, mapErr(err)
}

func (s *mysqlStore) ListLedgerByGame(ctx context.Context, gameID int64) ([]model.WalletLedger, error) {
	return model.ListLedgerByGame(ctx, s.db, gameID)
}

type mysqlTx struct {
	tx *sqlx.Tx
}

func (t *mysqlTx) Commit() error   { return t.tx.Commit() }
func (t *mysqlTx) Rollback() error { return t.tx.Rollback() }

func (t *mysqlTx) InsertGame(ctx context.Context, g *model.Game) error {
	return mapErr(g.Insert(ctx, t.tx))
}

func (t *mysqlTx) GetGameForUpdate(ctx context.Context, gameID int64) (*model.Game, error) {
	g, err := model.GetGameForUpdate(ctx, t.tx, gameID)
	return g, mapErr(err)
}

func (t *mysqlTx) JoinGame(ctx context.Context, gameID, player2ID int64) (bool, error) {
	return model.JoinGame(ctx, t.tx, gameID, player2ID)
}

func (t *mysqlTx) ActivateGame(ctx context.Context, gameID int64) (bool, error) {
	return model.ActivateGame(ctx, t.tx, gameID)
}

func (t *mysqlTx) MarkGameSettled(ctx context.Context, gameID, winnerID int64, settleNo string) (bool, error) {
	return model.MarkGameSettled(ctx, t.tx, gameID, winnerID, settleNo)
}

func (t *mysqlTx) InsertUser(ctx context.Context, u *model.User) error {
	return mapErr(u.Insert(ctx, t.tx))
}

func (t *mysqlTx) GetUserForUpdate(ctx context.Context, userID int64) (*model.User, error) {
	u, err := model.GetUserByIDForUpdate(ctx, t.tx, userID)
	return u, mapErr(err)
}

func (t *mysqlTx) UpdateUserBalance(ctx context.Context, userID int64, newBalance float64) error {
	return model.UpdateUserBalance(ctx, t.tx, userID, newBalance)
}

func (t *mysqlTx) InsertLedger(ctx context.Context, l *model.WalletLedger) error {
	return l.Insert(ctx, t.tx)
}

func (t *mysqlTx) CreateSettlementLog(ctx context.Context, log *model.SettlementLog) error {
	return mapErr(model.CreateSettlementLog(ctx, t.tx, log))
}

func (t *mysqlTx) InsertAudit(ctx context.Context, a *model.GameAudit) error {
	return a.Insert(ctx, t.tx)
}

func (t *mysqlTx) CreateOutbox(ctx context.Context, topic, bizKey string, payload any) error {
	return model.CreateOutbox(ctx, t.tx, topic, bizKey, payload)
}

func (t *mysqlTx) InsertIdempotencyKey(ctx context.Context, key, purpose, ref string) error {
	k := &model.IdempotencyKey{IdempotencyKey: key, Purpose: purpose, Ref: ref}
	return mapErr(k.Insert(ctx, t.tx))
}

// mapErr 将驱动层错误映射为存储层统一错误
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if chelper.IsNoRows(err) {
		return ErrNotFound
	}
	// MySQL 错误码 1062: Duplicate entry
	var me *mysqlerr.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return ErrDuplicateKey
	}
	return err
}
