package authz

// Capability is an action on calls that a role may be granted.
type Capability string

const (
	CapViewCalls    Capability = "VIEW_CALLS"
	CapCreateCall   Capability = "CREATE_CALL"
	CapCompleteCall Capability = "COMPLETE_CALL"
	CapDeleteCall   Capability = "DELETE_CALL"
	CapSweepCalls   Capability = "SWEEP_CALLS"
	CapExportCalls  Capability = "EXPORT_CALLS"
)

// Only LOGISTICA may complete or delete calls.
var grants = map[Role][]Capability{
	RoleAdmin:      {CapViewCalls, CapCreateCall, CapSweepCalls, CapExportCalls},
	RoleUser:       {CapViewCalls, CapSweepCalls, CapExportCalls},
	RoleProduccion: {CapViewCalls, CapCreateCall, CapSweepCalls, CapExportCalls},
	RoleLogistica:  {CapViewCalls, CapCreateCall, CapCompleteCall, CapDeleteCall, CapSweepCalls, CapExportCalls},
}

// HasCapability reports whether role is granted c.
func HasCapability(role Role, c Capability) bool {
	for _, granted := range grants[role] {
		if granted == c {
			return true
		}
	}
	return false
}

// AnyHasCapability reports whether any of roles is granted c.
func AnyHasCapability(roles []Role, c Capability) bool {
	for _, r := range roles {
		if HasCapability(r, c) {
			return true
		}
	}
	return false
}
