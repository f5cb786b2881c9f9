package rbac

import (
	"errors"
	"fmt"
	"sort"
)

// Mask is a 64-bit capability bitmask. Bit positions are assigned by the
// Policy at construction time.
type Mask uint64

// Has reports whether the capability bit is set.
func (m Mask) Has(bit int) bool {
	if bit < 0 || bit >= 64 {
		return false
	}
	return m&(1<<uint(bit)) != 0
}

func (m *Mask) set(bit int) {
	if bit >= 0 && bit < 64 {
		*m |= 1 << uint(bit)
	}
}

// Capability names referenced by the default policy.
const (
	CapProjectCreate  = "project:create"
	CapProjectUpdate  = "project:update"
	CapProjectDelete  = "project:delete"
	CapTaskCreate     = "task:create"
	CapTaskUpdate     = "task:update"
	CapTaskAssign     = "task:assign"
	CapUserManage     = "user:manage"
	CapCalendarShare  = "calendar:share"
	CapCalendarManage = "calendar:manage"
)

// Policy is the immutable mapping from role to granted capabilities. It is
// built once at startup and shared process-wide; all reads are lock-free.
type Policy struct {
	bits  map[string]int
	masks map[Role]Mask
}

// NewPolicy assigns a bit to every capability named in grants and builds one
// mask per role. At most 64 distinct capabilities are supported. Granting to
// an invalid role is a construction error, not a silent skip.
func NewPolicy(grants map[Role][]string) (*Policy, error) {
	names := make([]string, 0, 16)
	seen := make(map[string]struct{})
	for role, caps := range grants {
		if !role.Valid() {
			return nil, fmt.Errorf("rbac: grant for invalid role %d", role)
		}
		for _, name := range caps {
			if name == "" {
				return nil, errors.New("rbac: empty capability name")
			}
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}
	if len(names) > 64 {
		return nil, errors.New("rbac: capability limit exceeded")
	}
	// Deterministic bit assignment keeps masks stable across restarts.
	sort.Strings(names)

	p := &Policy{
		bits:  make(map[string]int, len(names)),
		masks: make(map[Role]Mask, len(grants)),
	}
	for i, name := range names {
		p.bits[name] = i
	}
	for role, caps := range grants {
		var mask Mask
		for _, name := range caps {
			mask.set(p.bits[name])
		}
		p.masks[role] = mask
	}
	return p, nil
}

// DefaultPolicy returns the built-in project-management policy: Admin holds
// everything, ProjectManager administers projects and calendars, Developer
// works tasks, Viewer holds no mutating capability.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(map[Role][]string{
		RoleAdmin: {
			CapProjectCreate, CapProjectUpdate, CapProjectDelete,
			CapTaskCreate, CapTaskUpdate, CapTaskAssign,
			CapUserManage, CapCalendarShare, CapCalendarManage,
		},
		RoleProjectManager: {
			CapProjectCreate, CapProjectUpdate,
			CapTaskCreate, CapTaskUpdate, CapTaskAssign,
			CapCalendarShare, CapCalendarManage,
		},
		RoleDeveloper: {
			CapTaskCreate, CapTaskUpdate, CapTaskAssign,
			CapCalendarShare,
		},
		RoleViewer: {},
	})
	if err != nil {
		// The built-in grant table is static; a failure here is a programming
		// error caught by tests.
		panic(err)
	}
	return p
}

// Capabilities returns the sorted capability names granted to role.
func (p *Policy) Capabilities(role Role) []string {
	mask, ok := p.masks[role]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(p.bits))
	for name, bit := range p.bits {
		if mask.Has(bit) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Authorizer evaluates allow/deny decisions against a Policy. It is a pure
// function over immutable state and safe for unsynchronized concurrent use.
type Authorizer struct {
	policy *Policy
}

// NewAuthorizer returns an Authorizer over policy. A nil policy yields an
// authorizer that denies everything.
func NewAuthorizer(policy *Policy) *Authorizer {
	return &Authorizer{policy: policy}
}

// Allow reports whether role holds the named capability. Unknown roles and
// unknown capabilities deny.
func (a *Authorizer) Allow(role Role, capability string) bool {
	if a == nil || a.policy == nil || !role.Valid() {
		return false
	}
	bit, ok := a.policy.bits[capability]
	if !ok {
		return false
	}
	return a.policy.masks[role].Has(bit)
}

// AtLeast reports whether role ranks at or above min in the fixed role order.
func (a *Authorizer) AtLeast(role, min Role) bool {
	if a == nil {
		return false
	}
	return role.AtLeast(min)
}
