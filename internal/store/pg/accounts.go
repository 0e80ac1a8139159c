package pg

import (
	"context"
	"fmt"
	"strings"

	"authgrid.org/internal/rbac"
)

const accountColumns = `id, user_name, password_hash, row_version, ` + auditColumns

type accountRepo struct {
	q querier
}

var _ rbac.AccountRepository = (*accountRepo)(nil)

func scanAccount(rs rowScanner) (rbac.Account, error) {
	var (
		acc rbac.Account
		aud auditScan
	)
	err := rs.Scan(
		&acc.ID, &acc.UserName, &acc.PasswordHash, &acc.RowVersion,
		&acc.Active, &acc.CreatedAt, &aud.updatedAt, &aud.deletedAt,
		&acc.CreatedBy, &acc.UpdatedBy, &acc.DeletedBy,
	)
	if err != nil {
		return rbac.Account{}, translateErr(err)
	}
	aud.apply(&acc.Audit)
	return acc, nil
}

func (r *accountRepo) Create(ctx context.Context, acc *rbac.Account) (rbac.Account, error) {
	row := r.q.QueryRowContext(ctx, `
		insert into accounts (user_name, password_hash, created_by)
		values ($1, $2, $3)
		returning `+accountColumns,
		acc.UserName, acc.PasswordHash, acc.CreatedBy)
	return scanAccount(row)
}

func (r *accountRepo) GetByID(ctx context.Context, id int64) (rbac.Account, error) {
	row := r.q.QueryRowContext(ctx, `
		select `+accountColumns+`
		from accounts
		where id = $1
	`, id)
	return scanAccount(row)
}

func (r *accountRepo) GetByUserName(ctx context.Context, userName string) (rbac.Account, error) {
	row := r.q.QueryRowContext(ctx, `
		select `+accountColumns+`
		from accounts
		where user_name = $1 and deleted_at is null
	`, userName)
	return scanAccount(row)
}

func (r *accountRepo) List(ctx context.Context) ([]rbac.Account, error) {
	return r.list(ctx, `
		select `+accountColumns+`
		from accounts
		order by id
	`)
}

func (r *accountRepo) ListActive(ctx context.Context) ([]rbac.Account, error) {
	return r.list(ctx, `
		select `+accountColumns+`
		from accounts
		where active and deleted_at is null
		order by id
	`)
}

func (r *accountRepo) list(ctx context.Context, query string) ([]rbac.Account, error) {
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var accounts []rbac.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// Update applies profile changes under optimistic concurrency: the row
// must still carry the RowVersion the caller read, otherwise ErrConflict.
func (r *accountRepo) Update(ctx context.Context, id int64, upd rbac.AccountUpdate, by rbac.Actor) (rbac.Account, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.UserName != nil {
		sets = append(sets, fmt.Sprintf("user_name = $%d", idx))
		args = append(args, *upd.UserName)
		idx++
	}
	if upd.Active != nil {
		sets = append(sets, fmt.Sprintf("active = $%d", idx))
		args = append(args, *upd.Active)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, fmt.Sprintf("updated_at = now(), updated_by = $%d, row_version = row_version + 1", idx))
		args = append(args, string(by))
		idx++
		query := fmt.Sprintf(`
			update accounts set %s
			where id = $%d and deleted_at is null and row_version = $%d
		`, strings.Join(sets, ", "), idx, idx+1)
		args = append(args, id, upd.RowVersion)
		res, err := r.q.ExecContext(ctx, query, args...)
		if err != nil {
			return rbac.Account{}, translateErr(err)
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return rbac.Account{}, err
		}
		if aff == 0 {
			// Distinguish a stale version from a missing row.
			var one int
			err := r.q.QueryRowContext(ctx, `select 1 from accounts where id = $1 and deleted_at is null`, id).Scan(&one)
			if err != nil {
				return rbac.Account{}, translateErr(err)
			}
			return rbac.Account{}, rbac.ErrConflict
		}
	}
	return r.GetByID(ctx, id)
}

func (r *accountRepo) UpdatePassword(ctx context.Context, userName, passwordHash string, by rbac.Actor) error {
	res, err := r.q.ExecContext(ctx, `
		update accounts
		set password_hash = $1, updated_at = now(), updated_by = $2, row_version = row_version + 1
		where user_name = $3 and deleted_at is null
	`, passwordHash, string(by), userName)
	if err != nil {
		return translateErr(err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

func (r *accountRepo) UpdateUserName(ctx context.Context, id int64, userName string, by rbac.Actor) (rbac.Account, error) {
	res, err := r.q.ExecContext(ctx, `
		update accounts
		set user_name = $1, updated_at = now(), updated_by = $2, row_version = row_version + 1
		where id = $3 and deleted_at is null
	`, userName, string(by), id)
	if err != nil {
		return rbac.Account{}, translateErr(err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return rbac.Account{}, err
	}
	if aff == 0 {
		return rbac.Account{}, rbac.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *accountRepo) SoftDelete(ctx context.Context, id int64, by rbac.Actor) error {
	res, err := r.q.ExecContext(ctx, `
		update accounts
		set active = false, deleted_at = now(), deleted_by = $1
		where id = $2 and deleted_at is null
	`, string(by), id)
	if err != nil {
		return translateErr(err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

func (r *accountRepo) SoftDeleteByUserNames(ctx context.Context, userNames []string, by rbac.Actor) (int64, error) {
	if len(userNames) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(userNames)+1)
	args = append(args, string(by))
	for _, name := range userNames {
		args = append(args, name)
	}
	res, err := r.q.ExecContext(ctx, `
		update accounts
		set active = false, deleted_at = now(), deleted_by = $1
		where user_name in (`+placeholders(2, len(userNames))+`) and deleted_at is null
	`, args...)
	if err != nil {
		return 0, translateErr(err)
	}
	return res.RowsAffected()
}
