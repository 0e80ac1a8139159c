package rbac

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// CreateClaim persists a claim definition.
func (s *Service) CreateClaim(ctx context.Context, claimType ClaimType, value, description string, by Actor) (Claim, error) {
	value = strings.TrimSpace(value)
	if value == "" || utf8.RuneCountInString(value) > claimValueMax {
		return Claim{}, fmt.Errorf("%w: claim value must be 1-%d characters", ErrInvalidInput, claimValueMax)
	}
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > claimDescMax {
		return Claim{}, fmt.Errorf("%w: claim description exceeds %d characters", ErrInvalidInput, claimDescMax)
	}
	if !claimType.Valid() {
		return Claim{}, fmt.Errorf("%w: unsupported claim type %q", ErrInvalidInput, claimType)
	}
	if err := validateActor(by); err != nil {
		return Claim{}, err
	}

	var created Claim
	err := s.store.InTransaction(ctx, func(ctx context.Context, uow UnitOfWork) error {
		c := Claim{Type: claimType, Value: value, Description: description}
		c.CreatedBy = string(by)
		var err error
		created, err = uow.Claims().Create(ctx, &c)
		return err
	})
	if err != nil {
		return Claim{}, err
	}
	return created, nil
}

// GetClaim loads a claim by id.
func (s *Service) GetClaim(ctx context.Context, id int64) (Claim, error) {
	if id <= 0 {
		return Claim{}, fmt.Errorf("%w: claim id is required", ErrInvalidInput)
	}
	return s.store.Claims().GetByID(ctx, id)
}

// ListClaims returns every claim row.
func (s *Service) ListClaims(ctx context.Context) ([]Claim, error) {
	return s.store.Claims().List(ctx)
}

// ListActiveClaims returns claims that are active and not deleted.
func (s *Service) ListActiveClaims(ctx context.Context) ([]Claim, error) {
	return s.store.Claims().ListActive(ctx)
}

// UpdateClaim applies field changes to a claim.
func (s *Service) UpdateClaim(ctx context.Context, id int64, upd ClaimUpdate, by Actor) (Claim, error) {
	if id <= 0 {
		return Claim{}, fmt.Errorf("%w: claim id is required", ErrInvalidInput)
	}
	if upd.Type != nil && !upd.Type.Valid() {
		return Claim{}, fmt.Errorf("%w: unsupported claim type %q", ErrInvalidInput, *upd.Type)
	}
	if upd.Value != nil {
		trimmed := strings.TrimSpace(*upd.Value)
		if trimmed == "" || utf8.RuneCountInString(trimmed) > claimValueMax {
			return Claim{}, fmt.Errorf("%w: claim value must be 1-%d characters", ErrInvalidInput, claimValueMax)
		}
		upd.Value = &trimmed
	}
	if upd.Description != nil {
		trimmed := strings.TrimSpace(*upd.Description)
		if utf8.RuneCountInString(trimmed) > claimDescMax {
			return Claim{}, fmt.Errorf("%w: claim description exceeds %d characters", ErrInvalidInput, claimDescMax)
		}
		upd.Description = &trimmed
	}
	if err := validateActor(by); err != nil {
		return Claim{}, err
	}

	var updated Claim
	err := s.store.InTransaction(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		updated, err = uow.Claims().Update(ctx, id, upd, by)
		return err
	})
	if err != nil {
		return Claim{}, err
	}
	return updated, nil
}

// RemoveClaim soft deletes the claim and cascades to every claim-action
// pair referencing it and transitively to the grants of those pairs, all
// in one transaction.
func (s *Service) RemoveClaim(ctx context.Context, id int64, by Actor) error {
	if id <= 0 {
		return fmt.Errorf("%w: claim id is required", ErrInvalidInput)
	}
	if err := validateActor(by); err != nil {
		return err
	}
	return s.store.InTransaction(ctx, func(ctx context.Context, uow UnitOfWork) error {
		if err := uow.Claims().SoftDelete(ctx, id, by); err != nil {
			return err
		}
		pairIDs, err := uow.ClaimActions().SoftDeleteByClaim(ctx, id, by)
		if err != nil {
			return err
		}
		for _, pairID := range pairIDs {
			if _, err := uow.Grants().SoftDeleteByClaimAction(ctx, pairID, by); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateAction persists an action definition.
func (s *Service) CreateAction(ctx context.Context, name string, by Actor) (Action, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > actionNameMax {
		return Action{}, fmt.Errorf("%w: action name must be 1-%d characters", ErrInvalidInput, actionNameMax)
	}
	if err := validateActor(by); err != nil {
		return Action{}, err
	}

	var created Action
	err := s.store.InTransaction(ctx, func(ctx context.Context, uow UnitOfWork) error {
		a := Action{Name: name}
		a.CreatedBy = string(by)
		var err error
		created, err = uow.Actions().Create(ctx, &a)
		return err
	})
	if err != nil {
		return Action{}, err
	}
	return created, nil
}

// GetAction loads an action by id.
func (s *Service) GetAction(ctx context.Context, id int64) (Action, error) {
	if id <= 0 {
		return Action{}, fmt.Errorf("%w: action id is required", ErrInvalidInput)
	}
	return s.store.Actions().GetByID(ctx, id)
}

// ListActions returns every action row.
func (s *Service) ListActions(ctx context.Context) ([]Action, error) {
	return s.store.Actions().List(ctx)
}

// ListActiveActions returns actions that are active and not deleted.
func (s *Service) ListActiveActions(ctx context.Context) ([]Action, error) {
	return s.store.Actions().ListActive(ctx)
}

// UpdateAction applies field changes to an action.
func (s *Service) UpdateAction(ctx context.Context, id int64, upd ActionUpdate, by Actor) (Action, error) {
	if id <= 0 {
		return Action{}, fmt.Errorf("%w: action id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" || utf8.RuneCountInString(trimmed) > actionNameMax {
			return Action{}, fmt.Errorf("%w: action name must be 1-%d characters", ErrInvalidInput, actionNameMax)
		}
		upd.Name = &trimmed
	}
	if err := validateActor(by); err != nil {
		return Action{}, err
	}

	var updated Action
	err := s.store.InTransaction(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		updated, err = uow.Actions().Update(ctx, id, upd, by)
		return err
	})
	if err != nil {
		return Action{}, err
	}
	return updated, nil
}

// RemoveAction soft deletes the action and cascades exactly like RemoveClaim.
func (s *Service) RemoveAction(ctx context.Context, id int64, by Actor) error {
	if id <= 0 {
		return fmt.Errorf("%w: action id is required", ErrInvalidInput)
	}
	if err := validateActor(by); err != nil {
		return err
	}
	return s.store.InTransaction(ctx, func(ctx context.Context, uow UnitOfWork) error {
		if err := uow.Actions().SoftDelete(ctx, id, by); err != nil {
			return err
		}
		pairIDs, err := uow.ClaimActions().SoftDeleteByAction(ctx, id, by)
		if err != nil {
			return err
		}
		for _, pairID := range pairIDs {
			if _, err := uow.Grants().SoftDeleteByClaimAction(ctx, pairID, by); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateClaimAction pairs a claim with an action. Duplicate pairs are
// rejected by the store's partial unique index and surface as ErrConflict.
func (s *Service) CreateClaimAction(ctx context.Context, claimID, actionID int64, by Actor) (ClaimAction, error) {
	if claimID <= 0 || actionID <= 0 {
		return ClaimAction{}, fmt.Errorf("%w: claim id and action id are required", ErrInvalidInput)
	}
	if err := validateActor(by); err != nil {
		return ClaimAction{}, err
	}

	var created ClaimAction
	err := s.store.InTransaction(ctx, func(ctx context.Context, uow UnitOfWork) error {
		ca := ClaimAction{ClaimID: claimID, ActionID: actionID}
		ca.CreatedBy = string(by)
		var err error
		created, err = uow.ClaimActions().Create(ctx, &ca)
		return err
	})
	if err != nil {
		return ClaimAction{}, err
	}
	return created, nil
}

// GetClaimAction loads a claim-action pair by id.
func (s *Service) GetClaimAction(ctx context.Context, id int64) (ClaimAction, error) {
	if id <= 0 {
		return ClaimAction{}, fmt.Errorf("%w: claim action id is required", ErrInvalidInput)
	}
	return s.store.ClaimActions().GetByID(ctx, id)
}

// GetClaimActionByPair resolves the pair by its composite key.
func (s *Service) GetClaimActionByPair(ctx context.Context, claimID, actionID int64) (ClaimAction, error) {
	if claimID <= 0 || actionID <= 0 {
		return ClaimAction{}, fmt.Errorf("%w: claim id and action id are required", ErrInvalidInput)
	}
	return s.store.ClaimActions().GetByClaimAndAction(ctx, claimID, actionID)
}

// ListClaimActions returns every claim-action row.
func (s *Service) ListClaimActions(ctx context.Context) ([]ClaimAction, error) {
	return s.store.ClaimActions().List(ctx)
}

// RemoveClaimAction soft deletes the pair and its grants.
func (s *Service) RemoveClaimAction(ctx context.Context, id int64, by Actor) error {
	if id <= 0 {
		return fmt.Errorf("%w: claim action id is required", ErrInvalidInput)
	}
	if err := validateActor(by); err != nil {
		return err
	}
	return s.store.InTransaction(ctx, func(ctx context.Context, uow UnitOfWork) error {
		if err := uow.ClaimActions().SoftDelete(ctx, id, by); err != nil {
			return err
		}
		_, err := uow.Grants().SoftDeleteByClaimAction(ctx, id, by)
		return err
	})
}

// GrantPermission assigns a claim-action pair to an account. Duplicate
// grants surface as ErrConflict.
func (s *Service) GrantPermission(ctx context.Context, accountID, claimActionID int64, by Actor) (Grant, error) {
	if accountID <= 0 || claimActionID <= 0 {
		return Grant{}, fmt.Errorf("%w: account id and claim action id are required", ErrInvalidInput)
	}
	if err := validateActor(by); err != nil {
		return Grant{}, err
	}

	var created Grant
	err := s.store.InTransaction(ctx, func(ctx context.Context, uow UnitOfWork) error {
		g := Grant{AccountID: accountID, ClaimActionID: claimActionID}
		g.CreatedBy = string(by)
		var err error
		created, err = uow.Grants().Create(ctx, &g)
		return err
	})
	if err != nil {
		return Grant{}, err
	}
	return created, nil
}

// GrantsForAccount returns the account's active grants with the nested
// claim and action populated.
func (s *Service) GrantsForAccount(ctx context.Context, accountID int64) ([]Grant, error) {
	if accountID <= 0 {
		return nil, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	return s.store.Grants().ListByAccount(ctx, accountID)
}

// GrantsForClaimAction returns the active grants of one claim-action pair.
func (s *Service) GrantsForClaimAction(ctx context.Context, claimActionID int64) ([]Grant, error) {
	if claimActionID <= 0 {
		return nil, fmt.Errorf("%w: claim action id is required", ErrInvalidInput)
	}
	return s.store.Grants().ListByClaimAction(ctx, claimActionID)
}

// GetGrant resolves a grant by the (account, claim action) pair.
func (s *Service) GetGrant(ctx context.Context, accountID, claimActionID int64) (Grant, error) {
	if accountID <= 0 || claimActionID <= 0 {
		return Grant{}, fmt.Errorf("%w: account id and claim action id are required", ErrInvalidInput)
	}
	return s.store.Grants().GetByAccountAndClaimAction(ctx, accountID, claimActionID)
}

// RevokeGrant soft deletes a single grant.
func (s *Service) RevokeGrant(ctx context.Context, id int64, by Actor) error {
	if id <= 0 {
		return fmt.Errorf("%w: grant id is required", ErrInvalidInput)
	}
	if err := validateActor(by); err != nil {
		return err
	}
	return s.store.InTransaction(ctx, func(ctx context.Context, uow UnitOfWork) error {
		return uow.Grants().SoftDelete(ctx, id, by)
	})
}

// RevokeGrants soft deletes a batch of grants in one transaction and
// returns the number of rows affected.
func (s *Service) RevokeGrants(ctx context.Context, ids []int64, by Actor) (int64, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: at least one grant id is required", ErrInvalidInput)
	}
	if err := validateActor(by); err != nil {
		return 0, err
	}
	var removed int64
	err := s.store.InTransaction(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		removed, err = uow.Grants().SoftDeleteRange(ctx, ids, by)
		return err
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// HasPermission reports whether the account holds the "<claim>:<action>"
// permission through an active grant.
func (s *Service) HasPermission(ctx context.Context, accountID int64, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if accountID <= 0 || key == "" {
		return false, fmt.Errorf("%w: account id and permission key are required", ErrInvalidInput)
	}
	grants, err := s.store.Grants().ListByAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	for _, g := range grants {
		if g.PermissionKey() == key {
			return true, nil
		}
	}
	return false, nil
}
