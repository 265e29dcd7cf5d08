package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CapabilityRef identifies a capability by exactly one of its keys.
// Construct one with ByID, ByCode or ByName.
type CapabilityRef interface {
	String() string
	capabilityRef()
}

type (
	capabilityID   int64
	capabilityCode string
	capabilityName string
)

// ByID refers to a capability by its numeric identifier.
func ByID(id int64) CapabilityRef { return capabilityID(id) }

// ByCode refers to a capability by its machine code, e.g. "results:approve".
func ByCode(code string) CapabilityRef { return capabilityCode(code) }

// ByName refers to a capability by its human-readable name.
func ByName(name string) CapabilityRef { return capabilityName(name) }

func (c capabilityID) String() string   { return "id:" + strconv.FormatInt(int64(c), 10) }
func (c capabilityCode) String() string { return "code:" + string(c) }
func (c capabilityName) String() string { return "name:" + string(c) }

// ParseCapabilityRef reads the "id:N", "code:X" or "name:X" form produced by
// String. Anything without one of those prefixes is taken as a code.
func ParseCapabilityRef(s string) (CapabilityRef, error) {
	switch {
	case strings.HasPrefix(s, "id:"):
		id, err := strconv.ParseInt(strings.TrimPrefix(s, "id:"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("session: bad capability id %q: %w", s, err)
		}
		return ByID(id), nil
	case strings.HasPrefix(s, "code:"):
		return ByCode(strings.TrimPrefix(s, "code:")), nil
	case strings.HasPrefix(s, "name:"):
		return ByName(strings.TrimPrefix(s, "name:")), nil
	case s == "":
		return nil, fmt.Errorf("session: empty capability reference")
	default:
		return ByCode(s), nil
	}
}

func (capabilityID) capabilityRef()   {}
func (capabilityCode) capabilityRef() {}
func (capabilityName) capabilityRef() {}

func matchCapability(g Grant, ref CapabilityRef) bool {
	switch r := ref.(type) {
	case capabilityID:
		return r != 0 && g.ID == int64(r)
	case capabilityCode:
		return r != "" && g.Code == string(r)
	case capabilityName:
		return r != "" && g.Name == string(r)
	default:
		return false
	}
}

// IsActive reports whether the grant is in force at now. A temporary grant
// with no expiry is malformed and never active.
func (g Grant) IsActive(now time.Time) bool {
	if !g.Temporary {
		return true
	}
	return g.ExpiresAt != nil && now.Before(*g.ExpiresAt)
}

// ExpiresWithin reports whether an active temporary grant lapses within d.
func (g Grant) ExpiresWithin(now time.Time, d time.Duration) bool {
	return g.IsActive(now) && g.Temporary && g.ExpiresAt.Sub(now) <= d
}

// HasCapability reports whether p holds an active grant matching ref at now.
func HasCapability(p *Principal, ref CapabilityRef, now time.Time) bool {
	if p == nil || ref == nil {
		return false
	}
	for _, g := range p.Permissions {
		if matchCapability(g, ref) && g.IsActive(now) {
			return true
		}
	}
	return false
}

// HasAllCapabilities reports whether every ref is held. An empty list is
// satisfied by any principal but never by nil.
func HasAllCapabilities(p *Principal, now time.Time, refs ...CapabilityRef) bool {
	if p == nil {
		return false
	}
	for _, ref := range refs {
		if !HasCapability(p, ref, now) {
			return false
		}
	}
	return true
}

// HasAnyCapability reports whether at least one ref is held.
func HasAnyCapability(p *Principal, now time.Time, refs ...CapabilityRef) bool {
	for _, ref := range refs {
		if HasCapability(p, ref, now) {
			return true
		}
	}
	return false
}

// IsInRole reports whether p has a role with exactly this name.
func IsInRole(p *Principal, roleName string) bool {
	if p == nil || roleName == "" {
		return false
	}
	for _, r := range p.Roles {
		if r.Name == roleName {
			return true
		}
	}
	return false
}

// ActiveGrants returns the grants in force at now.
func ActiveGrants(p *Principal, now time.Time) []Grant {
	if p == nil {
		return nil
	}
	var out []Grant
	for _, g := range p.Permissions {
		if g.IsActive(now) {
			out = append(out, g)
		}
	}
	return out
}
