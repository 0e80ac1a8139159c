package pg

import (
	"context"
	"fmt"
	"strings"

	"authgrid.org/internal/rbac"
)

const (
	claimColumns       = `id, type, value, coalesce(description,''), ` + auditColumns
	actionColumns      = `id, name, ` + auditColumns
	claimActionColumns = `id, claim_id, action_id, ` + auditColumns
	grantColumns       = `id, account_id, claim_action_id, ` + auditColumns
)

// Claims ----------------------------------------------------------------

type claimRepo struct {
	q querier
}

var _ rbac.ClaimRepository = (*claimRepo)(nil)

func scanClaim(rs rowScanner) (rbac.Claim, error) {
	var (
		c   rbac.Claim
		aud auditScan
	)
	err := rs.Scan(
		&c.ID, &c.Type, &c.Value, &c.Description,
		&c.Active, &c.CreatedAt, &aud.updatedAt, &aud.deletedAt,
		&c.CreatedBy, &c.UpdatedBy, &c.DeletedBy,
	)
	if err != nil {
		return rbac.Claim{}, translateErr(err)
	}
	aud.apply(&c.Audit)
	return c, nil
}

func (r *claimRepo) Create(ctx context.Context, c *rbac.Claim) (rbac.Claim, error) {
	row := r.q.QueryRowContext(ctx, `
		insert into claims (type, value, description, created_by)
		values ($1, $2, nullif($3,''), $4)
		returning `+claimColumns,
		string(c.Type), c.Value, c.Description, c.CreatedBy)
	return scanClaim(row)
}

func (r *claimRepo) GetByID(ctx context.Context, id int64) (rbac.Claim, error) {
	row := r.q.QueryRowContext(ctx, `
		select `+claimColumns+`
		from claims
		where id = $1
	`, id)
	return scanClaim(row)
}

func (r *claimRepo) List(ctx context.Context) ([]rbac.Claim, error) {
	return r.list(ctx, `
		select `+claimColumns+`
		from claims
		order by id
	`)
}

func (r *claimRepo) ListActive(ctx context.Context) ([]rbac.Claim, error) {
	return r.list(ctx, `
		select `+claimColumns+`
		from claims
		where active and deleted_at is null
		order by id
	`)
}

func (r *claimRepo) list(ctx context.Context, query string) ([]rbac.Claim, error) {
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var claims []rbac.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

func (r *claimRepo) Update(ctx context.Context, id int64, upd rbac.ClaimUpdate, by rbac.Actor) (rbac.Claim, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Type != nil {
		sets = append(sets, fmt.Sprintf("type = $%d", idx))
		args = append(args, string(*upd.Type))
		idx++
	}
	if upd.Value != nil {
		sets = append(sets, fmt.Sprintf("value = $%d", idx))
		args = append(args, *upd.Value)
		idx++
	}
	if upd.Description != nil {
		sets = append(sets, fmt.Sprintf("description = nullif($%d,'')", idx))
		args = append(args, *upd.Description)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, fmt.Sprintf("updated_at = now(), updated_by = $%d", idx))
		args = append(args, string(by))
		idx++
		query := fmt.Sprintf(`update claims set %s where id = $%d and deleted_at is null`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := r.q.ExecContext(ctx, query, args...)
		if err != nil {
			return rbac.Claim{}, translateErr(err)
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return rbac.Claim{}, err
		}
		if aff == 0 {
			return rbac.Claim{}, rbac.ErrNotFound
		}
	}
	return r.GetByID(ctx, id)
}

func (r *claimRepo) SoftDelete(ctx context.Context, id int64, by rbac.Actor) error {
	return softDelete(ctx, r.q, "claims", id, by)
}

// Actions ---------------------------------------------------------------

type actionRepo struct {
	q querier
}

var _ rbac.ActionRepository = (*actionRepo)(nil)

func scanAction(rs rowScanner) (rbac.Action, error) {
	var (
		a   rbac.Action
		aud auditScan
	)
	err := rs.Scan(
		&a.ID, &a.Name,
		&a.Active, &a.CreatedAt, &aud.updatedAt, &aud.deletedAt,
		&a.CreatedBy, &a.UpdatedBy, &a.DeletedBy,
	)
	if err != nil {
		return rbac.Action{}, translateErr(err)
	}
	aud.apply(&a.Audit)
	return a, nil
}

func (r *actionRepo) Create(ctx context.Context, a *rbac.Action) (rbac.Action, error) {
	row := r.q.QueryRowContext(ctx, `
		insert into actions (name, created_by)
		values ($1, $2)
		returning `+actionColumns,
		a.Name, a.CreatedBy)
	return scanAction(row)
}

func (r *actionRepo) GetByID(ctx context.Context, id int64) (rbac.Action, error) {
	row := r.q.QueryRowContext(ctx, `
		select `+actionColumns+`
		from actions
		where id = $1
	`, id)
	return scanAction(row)
}

func (r *actionRepo) List(ctx context.Context) ([]rbac.Action, error) {
	return r.list(ctx, `
		select `+actionColumns+`
		from actions
		order by id
	`)
}

func (r *actionRepo) ListActive(ctx context.Context) ([]rbac.Action, error) {
	return r.list(ctx, `
		select `+actionColumns+`
		from actions
		where active and deleted_at is null
		order by id
	`)
}

func (r *actionRepo) list(ctx context.Context, query string) ([]rbac.Action, error) {
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var actions []rbac.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func (r *actionRepo) Update(ctx context.Context, id int64, upd rbac.ActionUpdate, by rbac.Actor) (rbac.Action, error) {
	if upd.Name == nil {
		return r.GetByID(ctx, id)
	}
	res, err := r.q.ExecContext(ctx, `
		update actions
		set name = $1, updated_at = now(), updated_by = $2
		where id = $3 and deleted_at is null
	`, *upd.Name, string(by), id)
	if err != nil {
		return rbac.Action{}, translateErr(err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return rbac.Action{}, err
	}
	if aff == 0 {
		return rbac.Action{}, rbac.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *actionRepo) SoftDelete(ctx context.Context, id int64, by rbac.Actor) error {
	return softDelete(ctx, r.q, "actions", id, by)
}

// Claim actions ---------------------------------------------------------

type claimActionRepo struct {
	q querier
}

var _ rbac.ClaimActionRepository = (*claimActionRepo)(nil)

func scanClaimAction(rs rowScanner) (rbac.ClaimAction, error) {
	var (
		ca  rbac.ClaimAction
		aud auditScan
	)
	err := rs.Scan(
		&ca.ID, &ca.ClaimID, &ca.ActionID,
		&ca.Active, &ca.CreatedAt, &aud.updatedAt, &aud.deletedAt,
		&ca.CreatedBy, &ca.UpdatedBy, &ca.DeletedBy,
	)
	if err != nil {
		return rbac.ClaimAction{}, translateErr(err)
	}
	aud.apply(&ca.Audit)
	return ca, nil
}

func (r *claimActionRepo) Create(ctx context.Context, ca *rbac.ClaimAction) (rbac.ClaimAction, error) {
	row := r.q.QueryRowContext(ctx, `
		insert into claim_actions (claim_id, action_id, created_by)
		values ($1, $2, $3)
		returning `+claimActionColumns,
		ca.ClaimID, ca.ActionID, ca.CreatedBy)
	return scanClaimAction(row)
}

func (r *claimActionRepo) GetByID(ctx context.Context, id int64) (rbac.ClaimAction, error) {
	row := r.q.QueryRowContext(ctx, `
		select `+claimActionColumns+`
		from claim_actions
		where id = $1
	`, id)
	return scanClaimAction(row)
}

func (r *claimActionRepo) GetByClaimAndAction(ctx context.Context, claimID, actionID int64) (rbac.ClaimAction, error) {
	row := r.q.QueryRowContext(ctx, `
		select `+claimActionColumns+`
		from claim_actions
		where claim_id = $1 and action_id = $2 and deleted_at is null
	`, claimID, actionID)
	return scanClaimAction(row)
}

func (r *claimActionRepo) List(ctx context.Context) ([]rbac.ClaimAction, error) {
	return r.list(ctx, `
		select `+claimActionColumns+`
		from claim_actions
		order by id
	`)
}

func (r *claimActionRepo) ListActive(ctx context.Context) ([]rbac.ClaimAction, error) {
	return r.list(ctx, `
		select `+claimActionColumns+`
		from claim_actions
		where active and deleted_at is null
		order by id
	`)
}

func (r *claimActionRepo) list(ctx context.Context, query string) ([]rbac.ClaimAction, error) {
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var pairs []rbac.ClaimAction
	for rows.Next() {
		ca, err := scanClaimAction(rows)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, ca)
	}
	return pairs, rows.Err()
}

func (r *claimActionRepo) SoftDelete(ctx context.Context, id int64, by rbac.Actor) error {
	return softDelete(ctx, r.q, "claim_actions", id, by)
}

func (r *claimActionRepo) SoftDeleteByClaim(ctx context.Context, claimID int64, by rbac.Actor) ([]int64, error) {
	return r.softDeleteBy(ctx, "claim_id", claimID, by)
}

func (r *claimActionRepo) SoftDeleteByAction(ctx context.Context, actionID int64, by rbac.Actor) ([]int64, error) {
	return r.softDeleteBy(ctx, "action_id", actionID, by)
}

func (r *claimActionRepo) softDeleteBy(ctx context.Context, column string, parentID int64, by rbac.Actor) ([]int64, error) {
	rows, err := r.q.QueryContext(ctx, `
		update claim_actions
		set active = false, deleted_at = now(), deleted_by = $1
		where `+column+` = $2 and deleted_at is null
		returning id
	`, string(by), parentID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Grants ----------------------------------------------------------------

type grantRepo struct {
	q querier
}

var _ rbac.GrantRepository = (*grantRepo)(nil)

func scanGrant(rs rowScanner) (rbac.Grant, error) {
	var (
		g   rbac.Grant
		aud auditScan
	)
	err := rs.Scan(
		&g.ID, &g.AccountID, &g.ClaimActionID,
		&g.Active, &g.CreatedAt, &aud.updatedAt, &aud.deletedAt,
		&g.CreatedBy, &g.UpdatedBy, &g.DeletedBy,
	)
	if err != nil {
		return rbac.Grant{}, translateErr(err)
	}
	aud.apply(&g.Audit)
	return g, nil
}

func (r *grantRepo) Create(ctx context.Context, g *rbac.Grant) (rbac.Grant, error) {
	row := r.q.QueryRowContext(ctx, `
		insert into account_claim_actions (account_id, claim_action_id, created_by)
		values ($1, $2, $3)
		returning `+grantColumns,
		g.AccountID, g.ClaimActionID, g.CreatedBy)
	return scanGrant(row)
}

func (r *grantRepo) GetByID(ctx context.Context, id int64) (rbac.Grant, error) {
	row := r.q.QueryRowContext(ctx, `
		select `+grantColumns+`
		from account_claim_actions
		where id = $1
	`, id)
	return scanGrant(row)
}

// ListByAccount eager-loads the claim-action chain so callers can derive
// permission keys without issuing further queries.
func (r *grantRepo) ListByAccount(ctx context.Context, accountID int64) ([]rbac.Grant, error) {
	rows, err := r.q.QueryContext(ctx, `
		select g.id, g.account_id, g.claim_action_id, g.active, g.created_at, g.created_by,
		       ca.id, ca.claim_id, ca.action_id, ca.active,
		       c.id, c.type, c.value, coalesce(c.description,''), c.active,
		       a.id, a.name, a.active
		from account_claim_actions g
		join claim_actions ca on ca.id = g.claim_action_id
		join claims c on c.id = ca.claim_id
		join actions a on a.id = ca.action_id
		where g.account_id = $1
		  and g.deleted_at is null
		  and ca.deleted_at is null
		  and c.deleted_at is null
		  and a.deleted_at is null
		order by g.id
	`, accountID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var grants []rbac.Grant
	for rows.Next() {
		var (
			g      rbac.Grant
			ca     rbac.ClaimAction
			claim  rbac.Claim
			action rbac.Action
		)
		err := rows.Scan(
			&g.ID, &g.AccountID, &g.ClaimActionID, &g.Active, &g.CreatedAt, &g.CreatedBy,
			&ca.ID, &ca.ClaimID, &ca.ActionID, &ca.Active,
			&claim.ID, &claim.Type, &claim.Value, &claim.Description, &claim.Active,
			&action.ID, &action.Name, &action.Active,
		)
		if err != nil {
			return nil, err
		}
		ca.Claim = &claim
		ca.Action = &action
		g.ClaimAction = &ca
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (r *grantRepo) ListByClaimAction(ctx context.Context, claimActionID int64) ([]rbac.Grant, error) {
	rows, err := r.q.QueryContext(ctx, `
		select `+grantColumns+`
		from account_claim_actions
		where claim_action_id = $1 and deleted_at is null
		order by id
	`, claimActionID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var grants []rbac.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (r *grantRepo) GetByAccountAndClaimAction(ctx context.Context, accountID, claimActionID int64) (rbac.Grant, error) {
	row := r.q.QueryRowContext(ctx, `
		select `+grantColumns+`
		from account_claim_actions
		where account_id = $1 and claim_action_id = $2 and deleted_at is null
	`, accountID, claimActionID)
	return scanGrant(row)
}

func (r *grantRepo) SoftDelete(ctx context.Context, id int64, by rbac.Actor) error {
	return softDelete(ctx, r.q, "account_claim_actions", id, by)
}

func (r *grantRepo) SoftDeleteRange(ctx context.Context, ids []int64, by rbac.Actor) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, string(by))
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := r.q.ExecContext(ctx, `
		update account_claim_actions
		set active = false, deleted_at = now(), deleted_by = $1
		where id in (`+placeholders(2, len(ids))+`) and deleted_at is null
	`, args...)
	if err != nil {
		return 0, translateErr(err)
	}
	return res.RowsAffected()
}

func (r *grantRepo) SoftDeleteByAccount(ctx context.Context, accountID int64, by rbac.Actor) (int64, error) {
	return r.softDeleteBy(ctx, "account_id", accountID, by)
}

func (r *grantRepo) SoftDeleteByClaimAction(ctx context.Context, claimActionID int64, by rbac.Actor) (int64, error) {
	return r.softDeleteBy(ctx, "claim_action_id", claimActionID, by)
}

func (r *grantRepo) softDeleteBy(ctx context.Context, column string, parentID int64, by rbac.Actor) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		update account_claim_actions
		set active = false, deleted_at = now(), deleted_by = $1
		where `+column+` = $2 and deleted_at is null
	`, string(by), parentID)
	if err != nil {
		return 0, translateErr(err)
	}
	return res.RowsAffected()
}

// softDelete marks one row deleted; missing or already-deleted rows
// report ErrNotFound.
func softDelete(ctx context.Context, q querier, table string, id int64, by rbac.Actor) error {
	res, err := q.ExecContext(ctx, `
		update `+table+`
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
