package workflow

// Roles known to the workflow
const (
	RoleAdmin      = "admin"
	RoleTechnician = "technician"
)

// Operator is the authenticated user driving a session
type Operator struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// IsAdmin reports whether the operator may use privileged overrides
func (o Operator) IsAdmin() bool {
	return o.Role == RoleAdmin
}
