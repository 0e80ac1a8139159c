package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	userNameMinLen = 6
	userNameMaxLen = 50
	claimValueMax  = 100
	claimDescMax   = 255
	actionNameMax  = 50
)

// Service provides account authentication, the account and permission
// graph lifecycle, and token issuance. Every write runs inside one store
// transaction.
type Service struct {
	store  Store
	issuer *TokenIssuer
	now    func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithTokenIssuer enables token issuance.
func WithTokenIssuer(issuer *TokenIssuer) ServiceOption {
	return func(s *Service) error {
		s.issuer = issuer
		return nil
	}
}

// NewService constructs a Service over the given store.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	svc := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Authenticate verifies the credentials and returns the matching active
// account. It has no side effects: no mutation, no token issuance.
func (s *Service) Authenticate(ctx context.Context, userName, password string) (Account, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" || password == "" {
		return Account{}, fmt.Errorf("%w: user name and password are required", ErrInvalidInput)
	}
	account, err := s.store.Accounts().GetByUserName(ctx, userName)
	if err != nil {
		return Account{}, err
	}
	if !VerifyPassword(account.PasswordHash, password) {
		return Account{}, ErrUnauthorized
	}
	return account, nil
}

// Login authenticates and issues an access token in one call.
func (s *Service) Login(ctx context.Context, userName, password string) (Token, error) {
	account, err := s.Authenticate(ctx, userName, password)
	if err != nil {
		return Token{}, err
	}
	return s.IssueToken(ctx, account)
}

// IssueToken builds a signed token for the account, embedding the
// permission keys resolved from its active grants.
func (s *Service) IssueToken(ctx context.Context, account Account) (Token, error) {
	if s.issuer == nil {
		return Token{}, errors.New("token issuer is not configured")
	}
	grants, err := s.store.Grants().ListByAccount(ctx, account.ID)
	if err != nil {
		return Token{}, err
	}
	return s.issuer.Issue(account, grants)
}

// VerifyToken validates a previously issued access token.
func (s *Service) VerifyToken(token string) (*TokenClaims, error) {
	if s.issuer == nil {
		return nil, ErrInvalidToken
	}
	return s.issuer.Verify(token)
}

// CreateAccount hashes the plaintext password and persists the account.
// Username uniqueness is enforced by the store; a duplicate surfaces as
// ErrConflict rather than a pre-check race.
func (s *Service) CreateAccount(ctx context.Context, userName, password string, by Actor) (Account, error) {
	userName = strings.TrimSpace(userName)
	if err := validateUserName(userName); err != nil {
		return Account{}, err
	}
	if password == "" {
		return Account{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if err := validateActor(by); err != nil {
		return Account{}, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Account{}, err
	}

	var created Account
	err = s.store.InTransaction(ctx, func(ctx context.Context, uow UnitOfWork) error {
		acc := Account{UserName: userName, PasswordHash: hash}
		acc.CreatedBy = string(by)
		created, err = uow.Accounts().Create(ctx, &acc)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	return created, nil
}

// UpdateAccount applies profile changes. It deliberately has no password
// path: credentials change only through ChangePassword, so a partial
// update can never corrupt the stored hash.
func (s *Service) UpdateAccount(ctx context.Context, id int64, upd AccountUpdate, by Actor) (Account, error) {
	if id <= 0 {
		return Account{}, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	if upd.UserName != nil {
		trimmed := strings.TrimSpace(*upd.UserName)
		if err := validateUserName(trimmed); err != nil {
			return Account{}, err
		}
		upd.UserName = &trimmed
	}
	if err := validateActor(by); err != nil {
		return Account{}, err
	}

	var updated Account
	err := s.store.InTransaction(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		updated, err = uow.Accounts().Update(ctx, id, upd, by)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	return updated, nil
}

// ChangePassword hashes the new plaintext and updates the stored hash of
// the named account. Unknown usernames report ErrNotFound.
func (s *Service) ChangePassword(ctx context.Context, userName, newPassword string, by Actor) error {
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return fmt.Errorf("%w: user name is required", ErrInvalidInput)
	}
	if newPassword == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if err := validateActor(by); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.store.InTransaction(ctx, func(ctx context.Context, uow UnitOfWork) error {
		return uow.Accounts().UpdatePassword(ctx, userName, hash, by)
	})
}

// ChangeUserName renames an account. A name already held by another
// non-deleted account surfaces as ErrConflict.
func (s *Service) ChangeUserName(ctx context.Context, id int64, userName string, by Actor) (Account, error) {
	if id <= 0 {
		return Account{}, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	userName = strings.TrimSpace(userName)
	if err := validateUserName(userName); err != nil {
		return Account{}, err
	}
	if err := validateActor(by); err != nil {
		return Account{}, err
	}

	var updated Account
	err := s.store.InTransaction(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		updated, err = uow.Accounts().UpdateUserName(ctx, id, userName, by)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	return updated, nil
}

// RemoveAccount soft deletes the account and its grants in one transaction.
func (s *Service) RemoveAccount(ctx context.Context, id int64, by Actor) error {
	if id <= 0 {
		return fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	if err := validateActor(by); err != nil {
		return err
	}
	return s.store.InTransaction(ctx, func(ctx context.Context, uow UnitOfWork) error {
		if err := uow.Accounts().SoftDelete(ctx, id, by); err != nil {
			return err
		}
		_, err := uow.Grants().SoftDeleteByAccount(ctx, id, by)
		return err
	})
}

// RemoveAccountsByUserNames soft deletes every named account and its
// grants. Names that match nothing are skipped; the returned count holds
// the number of accounts removed.
func (s *Service) RemoveAccountsByUserNames(ctx context.Context, userNames []string, by Actor) (int64, error) {
	names := make([]string, 0, len(userNames))
	for _, n := range userNames {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return 0, fmt.Errorf("%w: at least one user name is required", ErrInvalidInput)
	}
	if err := validateActor(by); err != nil {
		return 0, err
	}

	var removed int64
	err := s.store.InTransaction(ctx, func(ctx context.Context, uow UnitOfWork) error {
		for _, name := range names {
			acc, err := uow.Accounts().GetByUserName(ctx, name)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := uow.Accounts().SoftDelete(ctx, acc.ID, by); err != nil {
				return err
			}
			if _, err := uow.Grants().SoftDeleteByAccount(ctx, acc.ID, by); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// GetAccount loads an account by id, soft-deleted rows included.
func (s *Service) GetAccount(ctx context.Context, id int64) (Account, error) {
	if id <= 0 {
		return Account{}, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	return s.store.Accounts().GetByID(ctx, id)
}

// GetAccountByUserName loads an account by exact user name among
// non-deleted rows.
func (s *Service) GetAccountByUserName(ctx context.Context, userName string) (Account, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return Account{}, fmt.Errorf("%w: user name is required", ErrInvalidInput)
	}
	return s.store.Accounts().GetByUserName(ctx, userName)
}

// ListAccounts returns every account row, including soft-deleted ones.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	return s.store.Accounts().List(ctx)
}

// ListActiveAccounts returns accounts that are active and not deleted.
func (s *Service) ListActiveAccounts(ctx context.Context) ([]Account, error) {
	return s.store.Accounts().ListActive(ctx)
}

func validateUserName(userName string) error {
	// Bounds are in characters, not bytes, matching the varchar columns.
	if n := utf8.RuneCountInString(userName); n < userNameMinLen || n > userNameMaxLen {
		return fmt.Errorf("%w: user name must be %d-%d characters", ErrInvalidInput, userNameMinLen, userNameMaxLen)
	}
	for _, r := range userName {
		if unicode.IsSpace(r) {
			return fmt.Errorf("%w: user name must not contain whitespace", ErrInvalidInput)
		}
	}
	return nil
}

func validateActor(by Actor) error {
	if strings.TrimSpace(string(by)) == "" {
		return fmt.Errorf("%w: actor is required", ErrInvalidInput)
	}
	return nil
}
