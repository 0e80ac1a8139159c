// Package mem implements the rbac.Store contract in process memory. It
// mirrors the SQL store's soft-delete and uniqueness semantics and backs
// tests and local development, where a PostgreSQL instance is overkill.
package mem

import (
	"context"
	"sort"
	"sync"
	"time"

	"authgrid.org/internal/rbac"
)

// Store keeps every entity in maps guarded by one mutex. Transactions
// are a formality here: the callback runs against the same state, and a
// returned error is surfaced without undoing prior writes.
type Store struct {
	mu           sync.Mutex
	seq          int64
	accounts     map[int64]*rbac.Account
	claims       map[int64]*rbac.Claim
	actions      map[int64]*rbac.Action
	claimActions map[int64]*rbac.ClaimAction
	grants       map[int64]*rbac.Grant
	now          func() time.Time
}

var _ rbac.Store = (*Store)(nil)

// Option configures the store.
type Option func(*Store)

// WithClock overrides the audit timestamp source.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewStore creates an empty in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		accounts:     make(map[int64]*rbac.Account),
		claims:       make(map[int64]*rbac.Claim),
		actions:      make(map[int64]*rbac.Action),
		claimActions: make(map[int64]*rbac.ClaimAction),
		grants:       make(map[int64]*rbac.Grant),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *Store) stamp() time.Time { return s.now().UTC() }

func (s *Store) Accounts() rbac.AccountRepository         { return accountRepo{s} }
func (s *Store) Claims() rbac.ClaimRepository             { return claimRepo{s} }
func (s *Store) Actions() rbac.ActionRepository           { return actionRepo{s} }
func (s *Store) ClaimActions() rbac.ClaimActionRepository { return claimActionRepo{s} }
func (s *Store) Grants() rbac.GrantRepository             { return grantRepo{s} }

func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context, uow rbac.UnitOfWork) error) error {
	return fn(ctx, s)
}

func (s *Store) Ping(context.Context) error { return nil }

func softDelete(a *rbac.Audit, at time.Time, by rbac.Actor) {
	a.Active = false
	a.DeletedAt = &at
	a.DeletedBy = string(by)
}

// Accounts --------------------------------------------------------------

type accountRepo struct{ s *Store }

func (r accountRepo) Create(_ context.Context, acc *rbac.Account) (rbac.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.accounts {
		if existing.UserName == acc.UserName && !existing.Deleted() {
			return rbac.Account{}, rbac.ErrConflict
		}
	}
	stored := *acc
	stored.ID = r.s.nextID()
	stored.RowVersion = 1
	stored.Active = true
	stored.CreatedAt = r.s.stamp()
	r.s.accounts[stored.ID] = &stored
	return stored, nil
}

func (r accountRepo) GetByID(_ context.Context, id int64) (rbac.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	acc, ok := r.s.accounts[id]
	if !ok {
		return rbac.Account{}, rbac.ErrNotFound
	}
	return *acc, nil
}

func (r accountRepo) GetByUserName(_ context.Context, userName string) (rbac.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, acc := range r.s.accounts {
		if acc.UserName == userName && !acc.Deleted() {
			return *acc, nil
		}
	}
	return rbac.Account{}, rbac.ErrNotFound
}

func (r accountRepo) List(_ context.Context) ([]rbac.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]rbac.Account, 0, len(r.s.accounts))
	for _, acc := range r.s.accounts {
		out = append(out, *acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r accountRepo) ListActive(ctx context.Context) ([]rbac.Account, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]rbac.Account, 0, len(all))
	for _, acc := range all {
		if acc.Active && !acc.Deleted() {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (r accountRepo) Update(_ context.Context, id int64, upd rbac.AccountUpdate, by rbac.Actor) (rbac.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	acc, ok := r.s.accounts[id]
	if !ok || acc.Deleted() {
		return rbac.Account{}, rbac.ErrNotFound
	}
	if acc.RowVersion != upd.RowVersion {
		return rbac.Account{}, rbac.ErrConflict
	}
	if upd.UserName != nil {
		acc.UserName = *upd.UserName
	}
	if upd.Active != nil {
		acc.Active = *upd.Active
	}
	acc.RowVersion++
	at := r.s.stamp()
	acc.UpdatedAt = &at
	acc.UpdatedBy = string(by)
	return *acc, nil
}

func (r accountRepo) UpdatePassword(_ context.Context, userName, passwordHash string, by rbac.Actor) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, acc := range r.s.accounts {
		if acc.UserName == userName && !acc.Deleted() {
			acc.PasswordHash = passwordHash
			at := r.s.stamp()
			acc.UpdatedAt = &at
			acc.UpdatedBy = string(by)
			return nil
		}
	}
	return rbac.ErrNotFound
}

func (r accountRepo) UpdateUserName(_ context.Context, id int64, userName string, by rbac.Actor) (rbac.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, acc := range r.s.accounts {
		if acc.ID != id && acc.UserName == userName && !acc.Deleted() {
			return rbac.Account{}, rbac.ErrConflict
		}
	}
	acc, ok := r.s.accounts[id]
	if !ok || acc.Deleted() {
		return rbac.Account{}, rbac.ErrNotFound
	}
	acc.UserName = userName
	acc.RowVersion++
	at := r.s.stamp()
	acc.UpdatedAt = &at
	acc.UpdatedBy = string(by)
	return *acc, nil
}

func (r accountRepo) SoftDelete(_ context.Context, id int64, by rbac.Actor) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	acc, ok := r.s.accounts[id]
	if !ok || acc.Deleted() {
		return rbac.ErrNotFound
	}
	softDelete(&acc.Audit, r.s.stamp(), by)
	return nil
}

func (r accountRepo) SoftDeleteByUserNames(_ context.Context, userNames []string, by rbac.Actor) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, name := range userNames {
		for _, acc := range r.s.accounts {
			if acc.UserName == name && !acc.Deleted() {
				softDelete(&acc.Audit, r.s.stamp(), by)
				n++
			}
		}
	}
	return n, nil
}

// Claims ----------------------------------------------------------------

type claimRepo struct{ s *Store }

func (r claimRepo) Create(_ context.Context, c *rbac.Claim) (rbac.Claim, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored := *c
	stored.ID = r.s.nextID()
	stored.Active = true
	stored.CreatedAt = r.s.stamp()
	r.s.claims[stored.ID] = &stored
	return stored, nil
}

func (r claimRepo) GetByID(_ context.Context, id int64) (rbac.Claim, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.claims[id]
	if !ok {
		return rbac.Claim{}, rbac.ErrNotFound
	}
	return *c, nil
}

func (r claimRepo) List(_ context.Context) ([]rbac.Claim, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]rbac.Claim, 0, len(r.s.claims))
	for _, c := range r.s.claims {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r claimRepo) ListActive(ctx context.Context) ([]rbac.Claim, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]rbac.Claim, 0, len(all))
	for _, c := range all {
		if c.Active && !c.Deleted() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r claimRepo) Update(_ context.Context, id int64, upd rbac.ClaimUpdate, by rbac.Actor) (rbac.Claim, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.claims[id]
	if !ok || c.Deleted() {
		return rbac.Claim{}, rbac.ErrNotFound
	}
	if upd.Type != nil {
		c.Type = *upd.Type
	}
	if upd.Value != nil {
		c.Value = *upd.Value
	}
	if upd.Description != nil {
		c.Description = *upd.Description
	}
	at := r.s.stamp()
	c.UpdatedAt = &at
	c.UpdatedBy = string(by)
	return *c, nil
}

func (r claimRepo) SoftDelete(_ context.Context, id int64, by rbac.Actor) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.claims[id]
	if !ok || c.Deleted() {
		return rbac.ErrNotFound
	}
	softDelete(&c.Audit, r.s.stamp(), by)
	return nil
}

// Actions ---------------------------------------------------------------

type actionRepo struct{ s *Store }

func (r actionRepo) Create(_ context.Context, a *rbac.Action) (rbac.Action, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored := *a
	stored.ID = r.s.nextID()
	stored.Active = true
	stored.CreatedAt = r.s.stamp()
	r.s.actions[stored.ID] = &stored
	return stored, nil
}

func (r actionRepo) GetByID(_ context.Context, id int64) (rbac.Action, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.actions[id]
	if !ok {
		return rbac.Action{}, rbac.ErrNotFound
	}
	return *a, nil
}

func (r actionRepo) List(_ context.Context) ([]rbac.Action, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]rbac.Action, 0, len(r.s.actions))
	for _, a := range r.s.actions {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r actionRepo) ListActive(ctx context.Context) ([]rbac.Action, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]rbac.Action, 0, len(all))
	for _, a := range all {
		if a.Active && !a.Deleted() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r actionRepo) Update(_ context.Context, id int64, upd rbac.ActionUpdate, by rbac.Actor) (rbac.Action, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.actions[id]
	if !ok || a.Deleted() {
		return rbac.Action{}, rbac.ErrNotFound
	}
	if upd.Name != nil {
		a.Name = *upd.Name
	}
	at := r.s.stamp()
	a.UpdatedAt = &at
	a.UpdatedBy = string(by)
	return *a, nil
}

func (r actionRepo) SoftDelete(_ context.Context, id int64, by rbac.Actor) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.actions[id]
	if !ok || a.Deleted() {
		return rbac.ErrNotFound
	}
	softDelete(&a.Audit, r.s.stamp(), by)
	return nil
}

// Claim actions ---------------------------------------------------------

type claimActionRepo struct{ s *Store }

func (r claimActionRepo) Create(_ context.Context, ca *rbac.ClaimAction) (rbac.ClaimAction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.claimActions {
		if existing.ClaimID == ca.ClaimID && existing.ActionID == ca.ActionID && !existing.Deleted() {
			return rbac.ClaimAction{}, rbac.ErrConflict
		}
	}
	if _, ok := r.s.claims[ca.ClaimID]; !ok {
		return rbac.ClaimAction{}, rbac.ErrNotFound
	}
	if _, ok := r.s.actions[ca.ActionID]; !ok {
		return rbac.ClaimAction{}, rbac.ErrNotFound
	}
	stored := *ca
	stored.ID = r.s.nextID()
	stored.Active = true
	stored.CreatedAt = r.s.stamp()
	r.s.claimActions[stored.ID] = &stored
	return stored, nil
}

func (r claimActionRepo) GetByID(_ context.Context, id int64) (rbac.ClaimAction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ca, ok := r.s.claimActions[id]
	if !ok {
		return rbac.ClaimAction{}, rbac.ErrNotFound
	}
	return *ca, nil
}

func (r claimActionRepo) GetByClaimAndAction(_ context.Context, claimID, actionID int64) (rbac.ClaimAction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ca := range r.s.claimActions {
		if ca.ClaimID == claimID && ca.ActionID == actionID && !ca.Deleted() {
			return *ca, nil
		}
	}
	return rbac.ClaimAction{}, rbac.ErrNotFound
}

func (r claimActionRepo) List(_ context.Context) ([]rbac.ClaimAction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]rbac.ClaimAction, 0, len(r.s.claimActions))
	for _, ca := range r.s.claimActions {
		out = append(out, *ca)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r claimActionRepo) ListActive(ctx context.Context) ([]rbac.ClaimAction, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]rbac.ClaimAction, 0, len(all))
	for _, ca := range all {
		if ca.Active && !ca.Deleted() {
			out = append(out, ca)
		}
	}
	return out, nil
}

func (r claimActionRepo) SoftDelete(_ context.Context, id int64, by rbac.Actor) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ca, ok := r.s.claimActions[id]
	if !ok || ca.Deleted() {
		return rbac.ErrNotFound
	}
	softDelete(&ca.Audit, r.s.stamp(), by)
	return nil
}

func (r claimActionRepo) SoftDeleteByClaim(_ context.Context, claimID int64, by rbac.Actor) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var removed []int64
	for _, ca := range r.s.claimActions {
		if ca.ClaimID == claimID && !ca.Deleted() {
			softDelete(&ca.Audit, r.s.stamp(), by)
			removed = append(removed, ca.ID)
		}
	}
	return removed, nil
}

func (r claimActionRepo) SoftDeleteByAction(_ context.Context, actionID int64, by rbac.Actor) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var removed []int64
	for _, ca := range r.s.claimActions {
		if ca.ActionID == actionID && !ca.Deleted() {
			softDelete(&ca.Audit, r.s.stamp(), by)
			removed = append(removed, ca.ID)
		}
	}
	return removed, nil
}

// Grants ----------------------------------------------------------------

type grantRepo struct{ s *Store }

func (r grantRepo) Create(_ context.Context, g *rbac.Grant) (rbac.Grant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.grants {
		if existing.AccountID == g.AccountID && existing.ClaimActionID == g.ClaimActionID && !existing.Deleted() {
			return rbac.Grant{}, rbac.ErrConflict
		}
	}
	if _, ok := r.s.accounts[g.AccountID]; !ok {
		return rbac.Grant{}, rbac.ErrNotFound
	}
	if _, ok := r.s.claimActions[g.ClaimActionID]; !ok {
		return rbac.Grant{}, rbac.ErrNotFound
	}
	stored := *g
	stored.ID = r.s.nextID()
	stored.Active = true
	stored.CreatedAt = r.s.stamp()
	r.s.grants[stored.ID] = &stored
	return stored, nil
}

func (r grantRepo) GetByID(_ context.Context, id int64) (rbac.Grant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.grants[id]
	if !ok {
		return rbac.Grant{}, rbac.ErrNotFound
	}
	return *g, nil
}

func (r grantRepo) ListByAccount(_ context.Context, accountID int64) ([]rbac.Grant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []rbac.Grant
	for _, g := range r.s.grants {
		if g.AccountID != accountID || g.Deleted() {
			continue
		}
		loaded := *g
		if ca, ok := r.s.claimActions[g.ClaimActionID]; ok && !ca.Deleted() {
			pair := *ca
			if c, ok := r.s.claims[ca.ClaimID]; ok && !c.Deleted() {
				claim := *c
				pair.Claim = &claim
			}
			if a, ok := r.s.actions[ca.ActionID]; ok && !a.Deleted() {
				action := *a
				pair.Action = &action
			}
			loaded.ClaimAction = &pair
		}
		out = append(out, loaded)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r grantRepo) ListByClaimAction(_ context.Context, claimActionID int64) ([]rbac.Grant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []rbac.Grant
	for _, g := range r.s.grants {
		if g.ClaimActionID == claimActionID && !g.Deleted() {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r grantRepo) GetByAccountAndClaimAction(_ context.Context, accountID, claimActionID int64) (rbac.Grant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, g := range r.s.grants {
		if g.AccountID == accountID && g.ClaimActionID == claimActionID && !g.Deleted() {
			return *g, nil
		}
	}
	return rbac.Grant{}, rbac.ErrNotFound
}

func (r grantRepo) SoftDelete(_ context.Context, id int64, by rbac.Actor) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.grants[id]
	if !ok || g.Deleted() {
		return rbac.ErrNotFound
	}
	softDelete(&g.Audit, r.s.stamp(), by)
	return nil
}

func (r grantRepo) SoftDeleteRange(_ context.Context, ids []int64, by rbac.Actor) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if g, ok := r.s.grants[id]; ok && !g.Deleted() {
			softDelete(&g.Audit, r.s.stamp(), by)
			n++
		}
	}
	return n, nil
}

func (r grantRepo) SoftDeleteByAccount(_ context.Context, accountID int64, by rbac.Actor) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, g := range r.s.grants {
		if g.AccountID == accountID && !g.Deleted() {
			softDelete(&g.Audit, r.s.stamp(), by)
			n++
		}
	}
	return n, nil
}

func (r grantRepo) SoftDeleteByClaimAction(_ context.Context, claimActionID int64, by rbac.Actor) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, g := range r.s.grants {
		if g.ClaimActionID == claimActionID && !g.Deleted() {
			softDelete(&g.Audit, r.s.stamp(), by)
			n++
		}
	}
	return n, nil
}
