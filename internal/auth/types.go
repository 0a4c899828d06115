package auth

// Role represents an authorisation tier.
type Role string

const (
	// RoleViewer can inspect devices and subscribe to events.
	RoleViewer Role = "viewer"

	// RoleOperator can also send codes and run learning sessions.
	RoleOperator Role = "operator"

	// RoleAdmin has full control of the bridge.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of valid roles.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole returns true if r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}
