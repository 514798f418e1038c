package model

type Capability string

const (
	CapRegister       Capability = "register"
	CapMarkAttendance Capability = "mark-attendance"
	CapAddResource    Capability = "add-resource"
	CapViewRoster     Capability = "view-roster"
	CapExportBackup   Capability = "export-backup"
)

// roleCapabilities is the single place role-gated availability is defined.
// View layers ask Can instead of re-deriving role checks.
var roleCapabilities = map[Role]map[Capability]bool{
	RoleStudent: {
		CapRegister:     true,
		CapExportBackup: true,
	},
	RoleProfessor: {
		CapMarkAttendance: true,
		CapAddResource:    true,
		CapViewRoster:     true,
		CapExportBackup:   true,
	},
	RoleAdmin: {
		CapMarkAttendance: true,
		CapAddResource:    true,
		CapViewRoster:     true,
		CapExportBackup:   true,
	},
}

func Can(role Role, capability Capability) bool {
	caps, ok := roleCapabilities[role]
	if !ok {
		return false
	}
	return caps[capability]
}
