package models

import (
	"strings"
	"testing"
)

func TestRoleValid(t *testing.T) {
	cases := []struct {
		role Role
		want bool
	}{
		{RoleAdmin, true},
		{RoleEmployee, true},
		{Role(""), false},
		{Role("MANAGER"), false},
		{Role("admin"), false}, // roles are upper-case only
	}
	for _, tc := range cases {
		if got := tc.role.Valid(); got != tc.want {
			t.Errorf("Role(%q).Valid() = %v, want %v", tc.role, got, tc.want)
		}
	}
}

func TestNewCodeValue_Length(t *testing.T) {
	code, err := NewCodeValue()
	if err != nil {
		t.Fatalf("NewCodeValue: %v", err)
	}
	if len(code) != CodeLength {
		t.Errorf("len(code) = %d, want %d", len(code), CodeLength)
	}
}

func TestNewCodeValue_Alphabet(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := NewCodeValue()
		if err != nil {
			t.Fatalf("NewCodeValue: %v", err)
		}
		for _, c := range code {
			if !strings.ContainsRune(codeAlphabet, c) {
				t.Fatalf("code %q contains character %q outside the alphabet", code, c)
			}
		}
	}
}

func TestNewCodeValue_NotConstant(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		code, err := NewCodeValue()
		if err != nil {
			t.Fatalf("NewCodeValue: %v", err)
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Error("expected distinct codes across 20 generations")
	}
}
