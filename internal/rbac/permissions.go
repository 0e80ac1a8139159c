package rbac

// Permission keys formed by the seeded claim/action pairs. A key is
// "<claim value>:<action name>"; see Grant.PermissionKey.
const (
	PermAccountRead  = "account:read"
	PermAccountWrite = "account:write"
	PermClaimRead    = "claim:read"
	PermClaimWrite   = "claim:write"
	PermGrantRead    = "grant:read"
	PermGrantWrite   = "grant:write"
)
