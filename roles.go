package auth

// IsValidRole checks if the role is one of the predefined valid roles
func IsValidRole(r UserRole) bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsValidStatus checks if the status is one of the predefined statuses
func IsValidStatus(s UserStatus) bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusSuspended:
		return true
	default:
		return false
	}
}

// roleHierarchy orders roles by privilege
var roleHierarchy = map[UserRole]int{
	RoleUser:      0,
	RoleModerator: 1,
	RoleAdmin:     2,
}

// RoleAtLeast checks if role meets the minimum required level
func RoleAtLeast(role, minRole UserRole) bool {
	current, ok := roleHierarchy[role]
	if !ok {
		return false
	}
	min, ok := roleHierarchy[minRole]
	if !ok {
		return false
	}
	return current >= min
}

// CanAssignRole reports whether an actor with the given role may assign
// roles at registration or through the admin surface. Only admins can.
func CanAssignRole(actorRole UserRole) bool {
	return actorRole == RoleAdmin
}

// CanManageUsers reports whether the actor may edit other accounts'
// security state.
func CanManageUsers(actorRole UserRole) bool {
	return actorRole == RoleAdmin
}

// HasPermission checks the user's fine-grained permission strings. Admins
// pass every check.
func (u *User) HasPermission(permission string) bool {
	if u == nil {
		return false
	}
	if u.Role == RoleAdmin {
		return true
	}
	for _, p := range u.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, IsValidRole(role)
}
