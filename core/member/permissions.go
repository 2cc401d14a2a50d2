package member

// Operation is a permission-gated action.
type Operation string

const (
	OpEditAttendance Operation = "edit_attendance"
	OpManageRoster   Operation = "manage_roster"
	OpReassignRole   Operation = "reassign_role"
	OpBroadcast      Operation = "broadcast"
	OpCreateBackup   Operation = "create_backup"
	OpViewAnalytics  Operation = "view_analytics"
	OpImpersonate    Operation = "impersonate"
)

// CanPerform evaluates the permission matrix for a single operation.
// actorClass is the actor's own class, targetClass the class the operation
// applies to; either may be nil (unassigned actor, org-wide target).
// Class-scoped rules only pass when both are set and equal.
func CanPerform(role Role, actorClass *int, op Operation, targetClass *int) bool {
	switch op {
	case OpEditAttendance:
		if role >= RoleLeader {
			return true
		}
		return role == RoleTeacher && sameClass(actorClass, targetClass)

	case OpManageRoster:
		if role >= RoleManager {
			return true
		}
		return role == RoleLeader && sameClass(actorClass, targetClass)

	case OpReassignRole, OpBroadcast, OpCreateBackup:
		return role >= RoleManager

	case OpViewAnalytics, OpImpersonate:
		return role >= RoleAdmin
	}
	return false
}

// CanAssignRole reports whether an actor may grant or revoke the target role.
// Managers handle ranks up to Leader; only Admins touch Manager and Admin.
func CanAssignRole(actor, target Role) bool {
	if !target.Valid() {
		return false
	}
	switch {
	case actor >= RoleAdmin:
		return true
	case actor >= RoleManager:
		return target <= RoleLeader
	}
	return false
}

func sameClass(a, b *int) bool {
	return a != nil && b != nil && *a == *b
}
