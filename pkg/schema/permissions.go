package schema

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Permission is one of three variants: all (everyone, including
// unauthenticated), authenticated (any session), or an explicit role list.
// In documents it is written either as the string "all"/"authenticated" or
// as an array of role ids.
type Permission struct {
	All           bool
	Authenticated bool
	Roles         []string
}

// PermitAll is the permission granting access to everyone.
func PermitAll() *Permission { return &Permission{All: true} }

// PermitAuthenticated is the permission granting access to any session.
func PermitAuthenticated() *Permission { return &Permission{Authenticated: true} }

// PermitRoles grants access to the given roles.
func PermitRoles(roles ...string) *Permission { return &Permission{Roles: roles} }

// UnmarshalJSON accepts "all", "authenticated", or a role array.
func (p *Permission) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "all":
			*p = Permission{All: true}
			return nil
		case "authenticated":
			*p = Permission{Authenticated: true}
			return nil
		default:
			return fmt.Errorf("%w: permission %q (want \"all\", \"authenticated\", or a role list)", ErrInvalidFieldConfig, s)
		}
	}
	var roles []string
	if err := json.Unmarshal(data, &roles); err != nil {
		return fmt.Errorf("%w: malformed permission value", ErrInvalidFieldConfig)
	}
	*p = Permission{Roles: roles}
	return nil
}

// MarshalJSON renders the document form of the permission.
func (p Permission) MarshalJSON() ([]byte, error) {
	switch {
	case p.All:
		return json.Marshal("all")
	case p.Authenticated:
		return json.Marshal("authenticated")
	default:
		roles := append([]string(nil), p.Roles...)
		sort.Strings(roles)
		return json.Marshal(roles)
	}
}

// TablePermissions declares per-operation access for a table, optional
// per-field overrides, and an optional inheritance pointer to another
// table's permissions. Inheritance chains must be acyclic; the child's
// explicitly set values shallow-merge over the inherited ones.
type TablePermissions struct {
	Read   *Permission `json:"read,omitempty"`
	Create *Permission `json:"create,omitempty"`
	Update *Permission `json:"update,omitempty"`
	Delete *Permission `json:"delete,omitempty"`

	// Fields maps field name to per-direction overrides. A field with no
	// entry falls back to the table-level permission: Read for reads,
	// Create/Update for writes.
	Fields map[string]*FieldPermission `json:"fields,omitempty"`

	// Inherit names the table whose permissions form the base layer.
	Inherit string `json:"inherit,omitempty"`
}

// FieldPermission overrides table-level permissions for one field, per
// direction. A nil direction keeps the table-level fallback.
type FieldPermission struct {
	Read  *Permission `json:"read,omitempty"`
	Write *Permission `json:"write,omitempty"`
}
