package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"authgrid.org/internal/rbac"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var _ rbac.Store = (*Store)(nil)

// querier abstracts *sql.DB and *sql.Tx so every repository can run
// either on the shared pool or inside one transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements rbac.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open dials PostgreSQL through the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle; used by tests with sqlmock.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Accounts() rbac.AccountRepository         { return &accountRepo{q: s.db} }
func (s *Store) Claims() rbac.ClaimRepository             { return &claimRepo{q: s.db} }
func (s *Store) Actions() rbac.ActionRepository           { return &actionRepo{q: s.db} }
func (s *Store) ClaimActions() rbac.ClaimActionRepository { return &claimActionRepo{q: s.db} }
func (s *Store) Grants() rbac.GrantRepository             { return &grantRepo{q: s.db} }

// InTransaction runs fn with repositories bound to one transaction,
// committing on nil and rolling back on any error.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context, uow rbac.UnitOfWork) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, txUnitOfWork{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type txUnitOfWork struct {
	tx *sql.Tx
}

func (u txUnitOfWork) Accounts() rbac.AccountRepository         { return &accountRepo{q: u.tx} }
func (u txUnitOfWork) Claims() rbac.ClaimRepository             { return &claimRepo{q: u.tx} }
func (u txUnitOfWork) Actions() rbac.ActionRepository           { return &actionRepo{q: u.tx} }
func (u txUnitOfWork) ClaimActions() rbac.ClaimActionRepository { return &claimActionRepo{q: u.tx} }
func (u txUnitOfWork) Grants() rbac.GrantRepository             { return &grantRepo{q: u.tx} }

// translateErr maps driver errors onto the domain sentinels.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return rbac.ErrConflict
		case pgErrForeignKeyViolation:
			return rbac.ErrNotFound
		}
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

// auditColumns is appended to every entity's select list; the scan side
// is handled by scanAuditInto via nullable locals.
const auditColumns = `active, created_at, updated_at, deleted_at, created_by, coalesce(updated_by,''), coalesce(deleted_by,'')`

type auditScan struct {
	updatedAt sql.NullTime
	deletedAt sql.NullTime
}

func (a *auditScan) apply(dst *rbac.Audit) {
	if a.updatedAt.Valid {
		t := a.updatedAt.Time
		dst.UpdatedAt = &t
	}
	if a.deletedAt.Valid {
		t := a.deletedAt.Time
		dst.DeletedAt = &t
	}
}

// placeholders renders $start..$start+n-1 for variadic in-lists.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}
