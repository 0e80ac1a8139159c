package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// bootstrapActor stamps rows created during first-run provisioning.
const bootstrapActor Actor = "bootstrap"

// The builtin permission graph. The seed files create the same rows;
// Bootstrap tolerates either order and never duplicates them.
var builtinClaims = []Claim{
	{Type: ClaimTypePermission, Value: "account", Description: "Account administration"},
	{Type: ClaimTypePermission, Value: "claim", Description: "Claim administration"},
	{Type: ClaimTypePermission, Value: "grant", Description: "Grant administration"},
}

var builtinActions = []string{"read", "write", "delete"}

// Bootstrap provisions the first administrator on an empty deployment:
// it creates the account, makes sure the builtin claims, actions and
// claim-action pairs exist, and grants every pair to the new account.
// Once any account exists it refuses with ErrConflict, so it cannot be
// used to escalate a live installation.
func (s *Service) Bootstrap(ctx context.Context, userName, password string) (Account, error) {
	userName = strings.TrimSpace(userName)
	if err := validateUserName(userName); err != nil {
		return Account{}, err
	}
	if password == "" {
		return Account{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Account{}, err
	}

	var admin Account
	err = s.store.InTransaction(ctx, func(ctx context.Context, uow UnitOfWork) error {
		existing, err := uow.Accounts().List(ctx)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return fmt.Errorf("%w: accounts already exist, bootstrap runs on an empty deployment only", ErrConflict)
		}

		acc := Account{UserName: userName, PasswordHash: hash}
		acc.CreatedBy = string(bootstrapActor)
		admin, err = uow.Accounts().Create(ctx, &acc)
		if err != nil {
			return err
		}

		claims, err := ensureBuiltinClaims(ctx, uow)
		if err != nil {
			return err
		}
		actions, err := ensureBuiltinActions(ctx, uow)
		if err != nil {
			return err
		}
		for _, c := range claims {
			for _, a := range actions {
				pair, err := ensureClaimAction(ctx, uow, c.ID, a.ID)
				if err != nil {
					return err
				}
				g := Grant{AccountID: admin.ID, ClaimActionID: pair.ID}
				g.CreatedBy = string(bootstrapActor)
				if _, err := uow.Grants().Create(ctx, &g); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return admin, nil
}

func ensureBuiltinClaims(ctx context.Context, uow UnitOfWork) ([]Claim, error) {
	existing, err := uow.Claims().ListActive(ctx)
	if err != nil {
		return nil, err
	}
	byValue := make(map[string]Claim, len(existing))
	for _, c := range existing {
		byValue[c.Value] = c
	}

	result := make([]Claim, 0, len(builtinClaims))
	for _, want := range builtinClaims {
		if c, ok := byValue[want.Value]; ok {
			result = append(result, c)
			continue
		}
		want.CreatedBy = string(bootstrapActor)
		created, err := uow.Claims().Create(ctx, &want)
		if err != nil {
			return nil, err
		}
		result = append(result, created)
	}
	return result, nil
}

func ensureBuiltinActions(ctx context.Context, uow UnitOfWork) ([]Action, error) {
	existing, err := uow.Actions().ListActive(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Action, len(existing))
	for _, a := range existing {
		byName[a.Name] = a
	}

	result := make([]Action, 0, len(builtinActions))
	for _, name := range builtinActions {
		if a, ok := byName[name]; ok {
			result = append(result, a)
			continue
		}
		a := Action{Name: name}
		a.CreatedBy = string(bootstrapActor)
		created, err := uow.Actions().Create(ctx, &a)
		if err != nil {
			return nil, err
		}
		result = append(result, created)
	}
	return result, nil
}

func ensureClaimAction(ctx context.Context, uow UnitOfWork, claimID, actionID int64) (ClaimAction, error) {
	pair, err := uow.ClaimActions().GetByClaimAndAction(ctx, claimID, actionID)
	if err == nil {
		return pair, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return ClaimAction{}, err
	}
	ca := ClaimAction{ClaimID: claimID, ActionID: actionID}
	ca.CreatedBy = string(bootstrapActor)
	return uow.ClaimActions().Create(ctx, &ca)
}
