package pdm

import (
	"encoding/json"
	"testing"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{in: "user", want: RoleUser},
		{in: "admin", want: RoleAdmin},
		{in: "supervisor", want: RoleSupervisor},
		{in: "root", wantErr: true},
		{in: "", wantErr: true},
		{in: "Admin", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRole(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseRole(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRole_AtLeast(t *testing.T) {
	if !RoleSupervisor.AtLeast(RoleAdmin) {
		t.Error("supervisor should satisfy admin")
	}
	if !RoleAdmin.AtLeast(RoleUser) {
		t.Error("admin should satisfy user")
	}
	if RoleUser.AtLeast(RoleAdmin) {
		t.Error("user should not satisfy admin")
	}
}

func TestRole_JSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(map[string]Role{"bob": RoleAdmin})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"bob":"admin"}` {
		t.Errorf("Marshal() = %s, want %s", data, `{"bob":"admin"}`)
	}

	var got map[string]Role
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got["bob"] != RoleAdmin {
		t.Errorf("round-trip role = %v, want RoleAdmin", got["bob"])
	}
}

func TestRole_MarshalInvalid(t *testing.T) {
	if _, err := Role(42).MarshalText(); err == nil {
		t.Error("MarshalText() of invalid role expected error")
	}
}

func TestRoleSet(t *testing.T) {
	t.Run("missing user defaults to RoleUser", func(t *testing.T) {
		if got := (RoleSet{}).RoleOf("alice"); got != RoleUser {
			t.Errorf("RoleOf() = %v, want RoleUser", got)
		}
	})

	t.Run("assign does not mutate the receiver", func(t *testing.T) {
		roles := RoleSet{"alice": RoleAdmin}
		next := roles.Assign("bob", RoleSupervisor)

		if got := next.RoleOf("bob"); got != RoleSupervisor {
			t.Errorf("next.RoleOf(bob) = %v, want RoleSupervisor", got)
		}
		if got := roles.RoleOf("bob"); got != RoleUser {
			t.Errorf("roles.RoleOf(bob) = %v, want RoleUser (unmutated)", got)
		}
		if got := next.RoleOf("alice"); got != RoleAdmin {
			t.Errorf("next.RoleOf(alice) = %v, want RoleAdmin (carried over)", got)
		}
	})
}
