package flow

import "github.com/olimtoy/olimtoy/internal/identity"

type Screen int

const (
	RoleSelect Screen = iota
	GuardianProfile
	Verification
	DependentLinkSetup
	PermissionGrant
	DependentDeviceSetup
	GuardianDashboard
	DependentDashboard
)

func (s Screen) String() string {
	switch s {
	case RoleSelect:
		return "role-select"
	case GuardianProfile:
		return "guardian-profile"
	case Verification:
		return "verification"
	case DependentLinkSetup:
		return "dependent-link-setup"
	case PermissionGrant:
		return "permission-grant"
	case DependentDeviceSetup:
		return "dependent-device-setup"
	case GuardianDashboard:
		return "guardian-dashboard"
	case DependentDashboard:
		return "dependent-dashboard"
	}
	return "unknown"
}

func isDashboard(s Screen) bool {
	return s == GuardianDashboard || s == DependentDashboard
}

func dashboardFor(role identity.Role) Screen {
	if role == identity.RoleDependent {
		return DependentDashboard
	}
	return GuardianDashboard
}
