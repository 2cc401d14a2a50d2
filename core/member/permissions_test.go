package member

import "testing"

func intPtr(i int) *int { return &i }

func TestCanPerform(t *testing.T) {
	clsA, clsB := intPtr(1), intPtr(2)

	tests := []struct {
		name        string
		role        Role
		actorClass  *int
		op          Operation
		targetClass *int
		want        bool
	}{
		// edit attendance
		{name: "student never edits", role: RoleStudent, actorClass: clsA, op: OpEditAttendance, targetClass: clsA, want: false},
		{name: "teacher edits own class", role: RoleTeacher, actorClass: clsA, op: OpEditAttendance, targetClass: clsA, want: true},
		{name: "teacher cannot edit other class", role: RoleTeacher, actorClass: clsA, op: OpEditAttendance, targetClass: clsB, want: false},
		{name: "teacher without class cannot edit", role: RoleTeacher, op: OpEditAttendance, targetClass: clsA, want: false},
		{name: "teacher cannot edit org-wide", role: RoleTeacher, actorClass: clsA, op: OpEditAttendance, want: false},
		{name: "leader edits any class", role: RoleLeader, actorClass: clsA, op: OpEditAttendance, targetClass: clsB, want: true},
		{name: "manager edits any class", role: RoleManager, op: OpEditAttendance, targetClass: clsB, want: true},
		{name: "admin edits any class", role: RoleAdmin, op: OpEditAttendance, targetClass: clsA, want: true},

		// manage roster
		{name: "teacher cannot manage roster", role: RoleTeacher, actorClass: clsA, op: OpManageRoster, targetClass: clsA, want: false},
		{name: "leader manages own roster", role: RoleLeader, actorClass: clsA, op: OpManageRoster, targetClass: clsA, want: true},
		{name: "leader cannot manage other roster", role: RoleLeader, actorClass: clsA, op: OpManageRoster, targetClass: clsB, want: false},
		{name: "manager manages any roster", role: RoleManager, op: OpManageRoster, targetClass: clsB, want: true},

		// org-wide operations
		{name: "leader cannot broadcast", role: RoleLeader, actorClass: clsA, op: OpBroadcast, want: false},
		{name: "manager broadcasts", role: RoleManager, op: OpBroadcast, want: true},
		{name: "manager creates backup", role: RoleManager, op: OpCreateBackup, want: true},
		{name: "manager reassigns roles", role: RoleManager, op: OpReassignRole, want: true},
		{name: "leader cannot reassign roles", role: RoleLeader, actorClass: clsA, op: OpReassignRole, want: false},
		{name: "manager cannot view analytics", role: RoleManager, op: OpViewAnalytics, want: false},
		{name: "admin views analytics", role: RoleAdmin, op: OpViewAnalytics, want: true},
		{name: "manager cannot impersonate", role: RoleManager, op: OpImpersonate, want: false},
		{name: "admin impersonates", role: RoleAdmin, op: OpImpersonate, want: true},

		// unknown operation
		{name: "unknown op denied even for admin", role: RoleAdmin, op: Operation("nuke"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanPerform(tt.role, tt.actorClass, tt.op, tt.targetClass); got != tt.want {
				t.Errorf("CanPerform(%v, %v) = %t, want %t", tt.role, tt.op, got, tt.want)
			}
		})
	}
}

// a permission granted to a rank must be granted to every higher rank in the
// same class situation
func TestCanPerform_monotonic(t *testing.T) {
	cls := intPtr(1)
	ops := []Operation{OpEditAttendance, OpManageRoster, OpReassignRole, OpBroadcast, OpCreateBackup, OpViewAnalytics, OpImpersonate}

	for _, op := range ops {
		for role := RoleStudent; role < RoleAdmin; role++ {
			lower := CanPerform(role, cls, op, cls)
			higher := CanPerform(role+1, cls, op, cls)
			if lower && !higher {
				t.Errorf("%s: rank %d allowed but rank %d denied", op, role, role+1)
			}
		}
	}
}

func TestCanAssignRole(t *testing.T) {
	tests := []struct {
		name          string
		actor, target Role
		want          bool
	}{
		{name: "leader assigns nothing", actor: RoleLeader, target: RoleStudent, want: false},
		{name: "manager assigns student", actor: RoleManager, target: RoleStudent, want: true},
		{name: "manager assigns teacher", actor: RoleManager, target: RoleTeacher, want: true},
		{name: "manager assigns leader", actor: RoleManager, target: RoleLeader, want: true},
		{name: "manager cannot assign manager", actor: RoleManager, target: RoleManager, want: false},
		{name: "manager cannot assign admin", actor: RoleManager, target: RoleAdmin, want: false},
		{name: "admin assigns manager", actor: RoleAdmin, target: RoleManager, want: true},
		{name: "admin assigns admin", actor: RoleAdmin, target: RoleAdmin, want: true},
		{name: "invalid target role", actor: RoleAdmin, target: Role(9), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAssignRole(tt.actor, tt.target); got != tt.want {
				t.Errorf("CanAssignRole(%v, %v) = %t, want %t", tt.actor, tt.target, got, tt.want)
			}
		})
	}
}

func TestRole_String(t *testing.T) {
	if got := RoleLeader.String(); got != "Leader" {
		t.Errorf("String() = %q, want Leader", got)
	}
	if got := Role(42).String(); got != "Unknown" {
		t.Errorf("String() = %q, want Unknown", got)
	}
}
