package auth

// Resource classes gated by the role policy. The policy is a pure decision
// table so it can be exercised without a request in flight; the HTTP layer
// and the chat router both consult it.
type Resource string

const (
	ResourceEnergyData      Resource = "energy_data"
	ResourceAnomalyRead     Resource = "anomaly_read"
	ResourceAnomalyCritical Resource = "anomaly_critical_read"
	ResourceAnomalyManage   Resource = "anomaly_manage"
	ResourceAuditRead       Resource = "audit_read"
	ResourceUserActivity    Resource = "user_activity"
	ResourceUserManagement  Resource = "user_management"
	ResourcePasswordReset   Resource = "password_reset"
)

// adminOnly lists the resource classes reserved to administrators.
var adminOnly = map[Resource]struct{}{
	ResourceAnomalyRead:     {},
	ResourceAnomalyCritical: {},
	ResourceAnomalyManage:   {},
	ResourceAuditRead:       {},
	ResourceUserActivity:    {},
	ResourceUserManagement:  {},
}

// Allow decides whether a role may touch a resource class. An empty role
// means an unauthenticated caller, which is only granted the password
// self-service flow.
func Allow(role string, res Resource) bool {
	if role == "" {
		return res == ResourcePasswordReset
	}
	if role == RoleAdmin {
		return true
	}
	if _, reserved := adminOnly[res]; reserved {
		return false
	}
	return true
}
