package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wingtsun-academy/progression-engine/internal/application/uow"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/pkg/logger"
	"github.com/wingtsun-academy/progression-engine/pkg/retry"
)

// UnitOfWork runs each unit in one pgx transaction. Transactions aborted by
// a serialization failure or deadlock are retried from the start.
type UnitOfWork struct {
	conn    *Connection
	loc     *time.Location
	retrier *retry.Retrier
}

// UnitOfWorkOption customizes a UnitOfWork.
type UnitOfWorkOption func(*unitOfWorkOptions)

type unitOfWorkOptions struct {
	maxAttempts int
}

// WithMaxTxAttempts bounds how many times one unit is run when its
// transaction keeps failing transiently. Values below one are ignored.
func WithMaxTxAttempts(n int) UnitOfWorkOption {
	return func(o *unitOfWorkOptions) {
		if n >= 1 {
			o.maxAttempts = n
		}
	}
}

// NewUnitOfWork creates a unit of work. loc is the school time zone DATE
// columns are interpreted in.
func NewUnitOfWork(conn *Connection, loc *time.Location, log *logger.Logger, opts ...UnitOfWorkOption) *UnitOfWork {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Nop()
	}
	var o unitOfWorkOptions
	for _, opt := range opts {
		opt(&o)
	}
	log = log.With(logger.Component("postgres.uow"))
	retryOpts := []retry.Option{
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Debug("retrying transaction",
				logger.Int("attempt", attempt+1),
				logger.Duration("delay", delay),
				logger.Err(err))
		}),
	}
	if o.maxAttempts > 0 {
		retryOpts = append(retryOpts, retry.WithMaxAttempts(o.maxAttempts))
	}
	return &UnitOfWork{
		conn:    conn,
		loc:     loc,
		retrier: retry.TransactionRetrier(IsTransient, retryOpts...),
	}
}

var _ uow.UnitOfWork = (*UnitOfWork)(nil)

// Do runs fn in a read-write transaction.
func (u *UnitOfWork) Do(ctx context.Context, fn uow.Work) error {
	return u.run(ctx, DefaultTxOptions(), fn)
}

// ReadOnly runs fn in a read-only transaction.
func (u *UnitOfWork) ReadOnly(ctx context.Context, fn uow.Work) error {
	return u.run(ctx, ReadOnlyTxOptions(), fn)
}

func (u *UnitOfWork) run(ctx context.Context, opts TxOptions, fn uow.Work) error {
	err := u.retrier.Do(ctx, func(ctx context.Context) error {
		return u.conn.WithTx(ctx, opts, func(tx pgx.Tx) error {
			return fn(ctx, Repositories(tx, u.loc))
		})
	})
	if IsTransient(err) {
		return shared.WrapError("postgres", "UnitOfWork", shared.ErrConcurrentModification,
			"transaction kept conflicting with concurrent writers", err)
	}
	return err
}

// Repositories binds every repository to q.
func Repositories(q Querier, loc *time.Location) uow.Repositories {
	return uow.Repositories{
		Progress:     &ProgressRepository{q: q},
		Requirements: &RequirementRepository{q: q},
		Lessons:      &LessonRepository{q: q, loc: loc},
		Schedules:    &ScheduleRepository{q: q, loc: loc},
		Attendance:   &AttendanceRepository{q: q, loc: loc},
		Students:     &StudentRepository{q: q},
		Seminars:     &SeminarRepository{q: q},
		Audit:        &AuditRepository{q: q},
	}
}
