package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"strata/internal/logs"
)

type txKey struct{}

// conn отдаёт открытую InTx транзакцию из контекста либо базовое соединение.
// Все методы хранилищ ходят в БД только через него.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return db.WithContext(ctx)
}

// Tx выполняет fn в транзакции gorm, пробрасывая её вложенным вызовам
// через контекст. Повторный InTx внутри транзакции переиспользует её.
// Transient-ошибки БД (serialization failure, deadlock, обрыв соединения)
// перезапускают транзакцию целиком с экспоненциальной паузой.
type Tx struct{ db *gorm.DB }

func NewTx(db *gorm.DB) *Tx { return &Tx{db: db} }

func (t *Tx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}

	op := func() error {
		err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(context.WithValue(ctx, txKey{}, tx))
		})
		if err != nil && !transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = time.Second
	bo.MaxElapsedTime = 15 * time.Second

	return backoff.RetryNotify(op, backoff.WithContext(bo, ctx), func(err error, d time.Duration) {
		logs.Logger.WithError(err).WithField("retry_in", d).Warn("transaction retry")
	})
}

// transient: коды SQLSTATE, при которых повтор транзакции имеет смысл —
// 40001 serialization_failure, 40P01 deadlock_detected, класс 08 (связь).
func transient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01":
		return true
	}
	return strings.HasPrefix(pgErr.Code, "08")
}
