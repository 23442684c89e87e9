package models

import (
	"testing"
)

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		expected bool
	}{
		{"admin role", RoleAdmin, true},
		{"manager role", RoleManager, true},
		{"viewer role", RoleViewer, true},
		{"invalid role", "invalid", false},
		{"empty role", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidRole(tt.role)
			if result != tt.expected {
				t.Errorf("IsValidRole(%s) = %v, want %v", tt.role, result, tt.expected)
			}
		})
	}
}

func TestUser_HasPermission(t *testing.T) {
	admin := &User{Role: RoleAdmin}
	manager := &User{Role: RoleManager}
	viewer := &User{Role: RoleViewer}
	unknown := &User{Role: "driver"}

	tests := []struct {
		name     string
		user     *User
		action   string
		expected bool
	}{
		{"admin can manage users", admin, PermManageUsers, true},
		{"admin can manage entries", admin, PermManageEntries, true},
		{"admin can view ledger", admin, PermViewLedger, true},

		{"manager cannot manage users", manager, PermManageUsers, false},
		{"manager can manage vehicles", manager, PermManageVehicles, true},
		{"manager can manage trips", manager, PermManageTrips, true},
		{"manager can manage entries", manager, PermManageEntries, true},
		{"manager can view ledger", manager, PermViewLedger, true},

		{"viewer can view ledger", viewer, PermViewLedger, true},
		{"viewer cannot manage entries", viewer, PermManageEntries, false},
		{"viewer cannot manage trips", viewer, PermManageTrips, false},

		{"unknown role has no permissions", unknown, PermViewLedger, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.user.HasPermission(tt.action)
			if result != tt.expected {
				t.Errorf("User.HasPermission(%s) = %v, want %v", tt.action, result, tt.expected)
			}
		})
	}
}
