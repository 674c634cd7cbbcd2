package authz

import (
	"testing"

	"github.com/google/uuid"
)

func TestRole_Valid(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleEmployee, true},
		{RoleManager, true},
		{RoleAdmin, true},
		{Role("superuser"), false},
		{Role(""), false},
	}

	for _, tt := range tests {
		if got := tt.role.Valid(); got != tt.want {
			t.Errorf("Role(%q).Valid() = %v, want %v", tt.role, got, tt.want)
		}
	}
}

func TestCanDecide(t *testing.T) {
	companyA := uuid.New()
	companyB := uuid.New()
	managerID := uuid.New()
	otherManagerID := uuid.New()
	employeeID := uuid.New()

	claim := ClaimOwnership{
		CompanyID:      companyA,
		EmployeeID:     employeeID,
		OwnerManagerID: &managerID,
	}

	tests := []struct {
		name  string
		actor Actor
		claim ClaimOwnership
		want  bool
	}{
		{
			name:  "admin same company",
			actor: Actor{ID: uuid.New(), CompanyID: companyA, Role: RoleAdmin},
			claim: claim,
			want:  true,
		},
		{
			name:  "admin different company",
			actor: Actor{ID: uuid.New(), CompanyID: companyB, Role: RoleAdmin},
			claim: claim,
			want:  false,
		},
		{
			name:  "direct manager",
			actor: Actor{ID: managerID, CompanyID: companyA, Role: RoleManager},
			claim: claim,
			want:  true,
		},
		{
			name:  "manager of someone else",
			actor: Actor{ID: otherManagerID, CompanyID: companyA, Role: RoleManager},
			claim: claim,
			want:  false,
		},
		{
			name:  "manager when owner has no manager",
			actor: Actor{ID: managerID, CompanyID: companyA, Role: RoleManager},
			claim: ClaimOwnership{CompanyID: companyA, EmployeeID: employeeID},
			want:  false,
		},
		{
			name:  "employee never decides, not even own claim",
			actor: Actor{ID: employeeID, CompanyID: companyA, Role: RoleEmployee},
			claim: claim,
			want:  false,
		},
		{
			name:  "unknown role denied",
			actor: Actor{ID: uuid.New(), CompanyID: companyA, Role: Role("auditor")},
			claim: claim,
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanDecide(tt.actor, tt.claim); got != tt.want {
				t.Errorf("CanDecide() = %v, want %v", got, tt.want)
			}
		})
	}
}
