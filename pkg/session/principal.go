package session

import (
	"maps"
	"slices"
	"time"

	"github.com/aussiebroadwan/labsession/pkg/authsdk"
)

// Principal is the authenticated user together with everything they may do.
// A Principal held by the CredentialStore is never modified in place; it is
// replaced as a whole.
type Principal struct {
	ID          string            `json:"id"`
	Username    string            `json:"username"`
	DisplayName string            `json:"display_name,omitempty"`
	Email       string            `json:"email,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Permissions []Grant           `json:"permissions"`
	Roles       []RoleRef         `json:"roles"`
}

// Grant is one capability held by a principal. Temporary grants stop being
// active at ExpiresAt.
type Grant struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Code      string     `json:"code"`
	Temporary bool       `json:"temporary"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// RoleRef names a role assigned to a principal.
type RoleRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Clone returns a deep copy.
func (p Principal) Clone() Principal {
	out := p
	out.Attributes = maps.Clone(p.Attributes)
	out.Roles = slices.Clone(p.Roles)
	if p.Permissions != nil {
		out.Permissions = make([]Grant, len(p.Permissions))
		for i, g := range p.Permissions {
			if g.ExpiresAt != nil {
				t := *g.ExpiresAt
				g.ExpiresAt = &t
			}
			out.Permissions[i] = g
		}
	}
	return out
}

// PrincipalFromResponse converts the wire representation served by the
// profile endpoint.
func PrincipalFromResponse(r *authsdk.PrincipalResponse) Principal {
	p := Principal{
		ID:          r.ID,
		Username:    r.Username,
		DisplayName: r.DisplayName,
		Email:       r.Email,
		Attributes:  maps.Clone(r.Attributes),
		Permissions: make([]Grant, 0, len(r.Permissions)),
		Roles:       make([]RoleRef, 0, len(r.Roles)),
	}
	for _, g := range r.Permissions {
		grant := Grant{ID: g.ID, Name: g.Name, Code: g.Code, Temporary: g.Temporary}
		if g.ExpiresAt != nil {
			t := *g.ExpiresAt
			grant.ExpiresAt = &t
		}
		p.Permissions = append(p.Permissions, grant)
	}
	for _, r := range r.Roles {
		p.Roles = append(p.Roles, RoleRef{ID: r.ID, Name: r.Name})
	}
	return p
}
