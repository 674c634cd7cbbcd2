package authz

import "github.com/google/uuid"

// Role is the closed set of user roles. Keeping it a dedicated type forces
// every consumer through the switch below instead of comparing raw strings.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleEmployee, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Actor is the authenticated identity performing an operation. It is always
// passed explicitly; no request-scoped globals.
type Actor struct {
	ID           uuid.UUID
	CompanyID    uuid.UUID
	Role         Role
	CurrencyCode string
}

// ClaimOwnership is the already-resolved relationship between a claim and its
// owning employee. The caller loads it; the policy only decides.
type ClaimOwnership struct {
	CompanyID      uuid.UUID
	EmployeeID     uuid.UUID
	OwnerManagerID *uuid.UUID
}

// CanDecide reports whether actor may approve or reject the claim.
// Admins decide any claim in their company. Managers decide only claims of
// their direct reports. Employees and unknown roles never decide.
func CanDecide(actor Actor, claim ClaimOwnership) bool {
	switch actor.Role {
	case RoleAdmin:
		return actor.CompanyID == claim.CompanyID
	case RoleManager:
		return claim.OwnerManagerID != nil && *claim.OwnerManagerID == actor.ID
	case RoleEmployee:
		return false
	default:
		return false
	}
}
