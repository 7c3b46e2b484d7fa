package pdm

import (
	"errors"
	"testing"
)

func TestCanEditMetadata(t *testing.T) {
	meta := FileMetadata{Filename: "1000001-A.part", Author: "alice"}

	tests := []struct {
		name    string
		actor   Actor
		wantErr bool
	}{
		{name: "author may edit", actor: Actor{Name: "alice", Role: RoleUser}},
		{name: "admin may edit", actor: Actor{Name: "bob", Role: RoleAdmin}},
		{name: "supervisor author may edit", actor: Actor{Name: "alice", Role: RoleSupervisor}},
		{name: "supervisor may not edit another's file", actor: Actor{Name: "carol", Role: RoleSupervisor}, wantErr: true},
		{name: "other user may not", actor: Actor{Name: "bob", Role: RoleUser}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := canEditMetadata(tt.actor, meta)
			if (err != nil) != tt.wantErr {
				t.Fatalf("canEditMetadata() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnauthorized) {
				t.Errorf("error = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestCanDeleteFile(t *testing.T) {
	tests := []struct {
		name    string
		actor   Actor
		wantErr bool
	}{
		{name: "user may not delete", actor: Actor{Name: "alice", Role: RoleUser}, wantErr: true},
		{name: "admin may delete", actor: Actor{Name: "bob", Role: RoleAdmin}},
		{name: "supervisor may delete", actor: Actor{Name: "carol", Role: RoleSupervisor}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := canDeleteFile(tt.actor, "a.step")
			if (err != nil) != tt.wantErr {
				t.Errorf("canDeleteFile() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCanForceRelease(t *testing.T) {
	if err := canForceRelease(Actor{Name: "bob", Role: RoleAdmin}, "a.step"); err != nil {
		t.Errorf("canForceRelease(admin) error = %v", err)
	}
	err := canForceRelease(Actor{Name: "alice", Role: RoleUser}, "a.step")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("canForceRelease(user) error = %v, want ErrUnauthorized", err)
	}
}

func TestCanAssignRole(t *testing.T) {
	tests := []struct {
		name    string
		actor   Actor
		current Role
		next    Role
		wantErr bool
	}{
		{
			name:  "supervisor grants admin",
			actor: Actor{Name: "carol", Role: RoleSupervisor}, current: RoleUser, next: RoleAdmin,
		},
		{
			name:  "supervisor grants supervisor",
			actor: Actor{Name: "carol", Role: RoleSupervisor}, current: RoleUser, next: RoleSupervisor,
		},
		{
			name:  "supervisor demotes admin",
			actor: Actor{Name: "carol", Role: RoleSupervisor}, current: RoleAdmin, next: RoleUser,
		},
		{
			name:  "admin moves user between ordinary roles",
			actor: Actor{Name: "bob", Role: RoleAdmin}, current: RoleUser, next: RoleUser,
		},
		{
			name:  "admin may not grant admin",
			actor: Actor{Name: "bob", Role: RoleAdmin}, current: RoleUser, next: RoleAdmin,
			wantErr: true,
		},
		{
			name:  "admin may not grant supervisor",
			actor: Actor{Name: "bob", Role: RoleAdmin}, current: RoleUser, next: RoleSupervisor,
			wantErr: true,
		},
		{
			name:  "admin may not demote an admin",
			actor: Actor{Name: "bob", Role: RoleAdmin}, current: RoleAdmin, next: RoleUser,
			wantErr: true,
		},
		{
			name:  "admin may not touch a supervisor",
			actor: Actor{Name: "bob", Role: RoleAdmin}, current: RoleSupervisor, next: RoleUser,
			wantErr: true,
		},
		{
			name:  "user may not assign roles at all",
			actor: Actor{Name: "alice", Role: RoleUser}, current: RoleUser, next: RoleUser,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := canAssignRole(tt.actor, "target", tt.current, tt.next)
			if (err != nil) != tt.wantErr {
				t.Fatalf("canAssignRole() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnauthorized) {
				t.Errorf("error = %v, want ErrUnauthorized", err)
			}
		})
	}
}
