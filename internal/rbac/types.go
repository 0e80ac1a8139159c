package rbac

import "time"

// ClaimType categorizes what a claim expresses.
type ClaimType string

const (
	ClaimTypePermission ClaimType = "permission"
	ClaimTypeRole       ClaimType = "role"
	ClaimTypeCustom     ClaimType = "custom"
)

// Valid reports whether the claim type is one of the known values.
func (t ClaimType) Valid() bool {
	switch t {
	case ClaimTypePermission, ClaimTypeRole, ClaimTypeCustom:
		return true
	}
	return false
}

// Audit carries the lifecycle columns shared by every persisted entity.
// Rows are never physically removed through the normal path: a removal
// flips Active, stamps DeletedAt/DeletedBy and leaves the row in place.
type Audit struct {
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedBy string     `json:"created_by"`
	UpdatedBy string     `json:"updated_by,omitempty"`
	DeletedBy string     `json:"deleted_by,omitempty"`
}

// Deleted reports whether the row has been soft deleted.
func (a Audit) Deleted() bool { return a.DeletedAt != nil }

// Account is a credentialed identity. PasswordHash holds the argon2id
// encoding of the password; plaintext never reaches the store.
type Account struct {
	ID           int64  `json:"id"`
	UserName     string `json:"user_name"`
	PasswordHash string `json:"-"`
	RowVersion   int64  `json:"row_version"`
	Audit
}

// Claim is a named permission, role or custom attribute definition.
type Claim struct {
	ID          int64     `json:"id"`
	Type        ClaimType `json:"type"`
	Value       string    `json:"value"`
	Description string    `json:"description,omitempty"`
	Audit
}

// Action is a named operation a claim can be exercised through.
type Action struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Audit
}

// ClaimAction pairs a claim with an action, forming a composite
// permission ("can <action> <claim>"). One row per (claim, action) pair.
type ClaimAction struct {
	ID       int64 `json:"id"`
	ClaimID  int64 `json:"claim_id"`
	ActionID int64 `json:"action_id"`
	Audit

	// Populated by eager-loading lookups only.
	Claim  *Claim  `json:"claim,omitempty"`
	Action *Action `json:"action,omitempty"`
}

// Grant assigns a ClaimAction to an account. It is the only record that
// gives an account a permission.
type Grant struct {
	ID            int64 `json:"id"`
	AccountID     int64 `json:"account_id"`
	ClaimActionID int64 `json:"claim_action_id"`
	Audit

	ClaimAction *ClaimAction `json:"claim_action,omitempty"`
}

// PermissionKey renders the grant as "<claim value>:<action name>".
// Empty when the grant was loaded without its nested entities.
func (g Grant) PermissionKey() string {
	if g.ClaimAction == nil || g.ClaimAction.Claim == nil || g.ClaimAction.Action == nil {
		return ""
	}
	return g.ClaimAction.Claim.Value + ":" + g.ClaimAction.Action.Name
}

// Token is issued per successful authentication and never persisted.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserName    string    `json:"user_name"`
}
