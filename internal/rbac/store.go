package rbac

import "context"

// Actor identifies who performs a mutation; it is stamped into the
// audit columns of the affected rows.
type Actor string

// AccountUpdate mutates account profile fields. Password changes never
// travel through here; see Service.ChangePassword.
type AccountUpdate struct {
	UserName *string
	Active   *bool

	// RowVersion the caller read; the update fails with ErrConflict
	// when the stored row has moved on.
	RowVersion int64
}

// ClaimUpdate mutates claim fields.
type ClaimUpdate struct {
	Type        *ClaimType
	Value       *string
	Description *string
}

// ActionUpdate mutates action fields.
type ActionUpdate struct {
	Name *string
}

// AccountRepository manages account rows.
type AccountRepository interface {
	Create(ctx context.Context, acc *Account) (Account, error)
	GetByID(ctx context.Context, id int64) (Account, error)
	// GetByUserName considers non-deleted rows only.
	GetByUserName(ctx context.Context, userName string) (Account, error)
	List(ctx context.Context) ([]Account, error)
	ListActive(ctx context.Context) ([]Account, error)
	Update(ctx context.Context, id int64, upd AccountUpdate, by Actor) (Account, error)
	UpdatePassword(ctx context.Context, userName, passwordHash string, by Actor) error
	UpdateUserName(ctx context.Context, id int64, userName string, by Actor) (Account, error)
	SoftDelete(ctx context.Context, id int64, by Actor) error
	SoftDeleteByUserNames(ctx context.Context, userNames []string, by Actor) (int64, error)
}

// ClaimRepository manages claim rows.
type ClaimRepository interface {
	Create(ctx context.Context, c *Claim) (Claim, error)
	GetByID(ctx context.Context, id int64) (Claim, error)
	List(ctx context.Context) ([]Claim, error)
	ListActive(ctx context.Context) ([]Claim, error)
	Update(ctx context.Context, id int64, upd ClaimUpdate, by Actor) (Claim, error)
	SoftDelete(ctx context.Context, id int64, by Actor) error
}

// ActionRepository manages action rows.
type ActionRepository interface {
	Create(ctx context.Context, a *Action) (Action, error)
	GetByID(ctx context.Context, id int64) (Action, error)
	List(ctx context.Context) ([]Action, error)
	ListActive(ctx context.Context) ([]Action, error)
	Update(ctx context.Context, id int64, upd ActionUpdate, by Actor) (Action, error)
	SoftDelete(ctx context.Context, id int64, by Actor) error
}

// ClaimActionRepository manages the (claim, action) pair rows.
type ClaimActionRepository interface {
	Create(ctx context.Context, ca *ClaimAction) (ClaimAction, error)
	GetByID(ctx context.Context, id int64) (ClaimAction, error)
	// GetByClaimAndAction resolves the composite key among non-deleted rows.
	GetByClaimAndAction(ctx context.Context, claimID, actionID int64) (ClaimAction, error)
	List(ctx context.Context) ([]ClaimAction, error)
	ListActive(ctx context.Context) ([]ClaimAction, error)
	SoftDelete(ctx context.Context, id int64, by Actor) error
	// SoftDeleteByClaim / SoftDeleteByAction cascade a parent removal to
	// the pairs referencing it. They return the ids of the rows removed
	// so the caller can cascade further.
	SoftDeleteByClaim(ctx context.Context, claimID int64, by Actor) ([]int64, error)
	SoftDeleteByAction(ctx context.Context, actionID int64, by Actor) ([]int64, error)
}

// GrantRepository manages account-to-claim-action grants.
type GrantRepository interface {
	Create(ctx context.Context, g *Grant) (Grant, error)
	GetByID(ctx context.Context, id int64) (Grant, error)
	// ListByAccount eager-loads the ClaimAction with its Claim and Action
	// so the caller can derive permission keys without further queries.
	ListByAccount(ctx context.Context, accountID int64) ([]Grant, error)
	ListByClaimAction(ctx context.Context, claimActionID int64) ([]Grant, error)
	GetByAccountAndClaimAction(ctx context.Context, accountID, claimActionID int64) (Grant, error)
	SoftDelete(ctx context.Context, id int64, by Actor) error
	SoftDeleteRange(ctx context.Context, ids []int64, by Actor) (int64, error)
	SoftDeleteByAccount(ctx context.Context, accountID int64, by Actor) (int64, error)
	SoftDeleteByClaimAction(ctx context.Context, claimActionID int64, by Actor) (int64, error)
}

// UnitOfWork exposes one repository per entity, all bound to the same
// persistence scope.
type UnitOfWork interface {
	Accounts() AccountRepository
	Claims() ClaimRepository
	Actions() ActionRepository
	ClaimActions() ClaimActionRepository
	Grants() GrantRepository
}

// Store is the persistence boundary consumed by the service. Outside a
// transaction the repositories operate on the shared pool; InTransaction
// hands the callback repositories bound to one transaction, commits on
// nil and rolls back on any error.
type Store interface {
	UnitOfWork
	InTransaction(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
	Ping(ctx context.Context) error
}
