package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	// RoleOperator reads reports and the failed-outcome queue.
	RoleOperator = "operator"
	// RoleAdmin may also replay failed outcomes.
	RoleAdmin = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsKnownRole(role string) bool {
	switch role {
	case RoleOperator, RoleAdmin:
		return true
	}
	return false
}
