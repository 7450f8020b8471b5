package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// BindType is the kind of Roblox entity a bind targets.
type BindType string

const (
	BindTypeGroup    BindType = "group"
	BindTypeAsset    BindType = "asset"
	BindTypeBadge    BindType = "badge"
	BindTypeGamepass BindType = "gamepass"
)

// BindTypes lists every supported bind type in display order.
var BindTypes = []BindType{BindTypeGroup, BindTypeAsset, BindTypeBadge, BindTypeGamepass}

// ErrInvalidBind is returned by Validate.
var ErrInvalidBind = errors.New("invalid bind")

// IsValidBindType checks if the given bind type is supported.
func IsValidBindType(bt BindType) bool {
	return slices.Contains(BindTypes, bt)
}

// GroupCriteria narrows a group bind. At most one of the rank forms is set:
// Roleset (exact rank; negative means "this rank and above"), Min/Max range,
// Guest (not in group) or Everyone (any member). An empty criteria matches
// every rank: members get the guild role named after their roleset.
type GroupCriteria struct {
	Roleset  *int `json:"roleset,omitempty"`
	Min      *int `json:"min,omitempty"`
	Max      *int `json:"max,omitempty"`
	Guest    bool `json:"guest,omitempty"`
	Everyone bool `json:"everyone,omitempty"`
}

// Equal reports whether two criteria are identical, field by field.
func (g *GroupCriteria) Equal(o *GroupCriteria) bool {
	if g == nil || o == nil {
		return g.isZero() && o.isZero()
	}
	return intPtrEqual(g.Roleset, o.Roleset) &&
		intPtrEqual(g.Min, o.Min) &&
		intPtrEqual(g.Max, o.Max) &&
		g.Guest == o.Guest &&
		g.Everyone == o.Everyone
}

func (g *GroupCriteria) isZero() bool {
	return g == nil || (g.Roleset == nil && g.Min == nil && g.Max == nil && !g.Guest && !g.Everyone)
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// BindCriteria identifies what a bind is for.
type BindCriteria struct {
	Type  BindType       `json:"type"`
	ID    int64          `json:"id"`
	Group *GroupCriteria `json:"group,omitempty"`
}

// Equal implements bind identity: exact equality of the full criteria set.
func (c BindCriteria) Equal(o BindCriteria) bool {
	return c.Type == o.Type && c.ID == o.ID && c.Group.Equal(o.Group)
}

// DynamicRoles reports whether the criteria bind an entire group, mapping
// each rank to the role of the same name instead of to fixed roles.
func (c BindCriteria) DynamicRoles() bool {
	return c.Type == BindTypeGroup && c.Group.isZero()
}

// GuildBind maps a Roblox condition to Discord roles to grant or revoke.
type GuildBind struct {
	Roles           []string     `json:"roles"`
	RemoveRoles     []string     `json:"removeRoles"`
	PendingNewRoles []string     `json:"pendingNewRoles,omitempty"`
	Nickname        string       `json:"nickname,omitempty"`
	Criteria        BindCriteria `json:"bind"`
}

// Validate checks structural invariants of a bind.
func (b GuildBind) Validate() error {
	if !IsValidBindType(b.Criteria.Type) {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidBind, b.Criteria.Type)
	}
	if b.Criteria.ID <= 0 {
		return fmt.Errorf("%w: missing entity id", ErrInvalidBind)
	}
	if g := b.Criteria.Group; g != nil {
		if b.Criteria.Type != BindTypeGroup {
			return fmt.Errorf("%w: group criteria on %s bind", ErrInvalidBind, b.Criteria.Type)
		}
		if g.Min != nil && g.Max != nil && *g.Min > *g.Max {
			return fmt.Errorf("%w: min rank %d above max rank %d", ErrInvalidBind, *g.Min, *g.Max)
		}
	}
	if len(b.Roles) == 0 && len(b.RemoveRoles) == 0 && len(b.PendingNewRoles) == 0 && !b.Criteria.DynamicRoles() {
		return fmt.Errorf("%w: no roles", ErrInvalidBind)
	}
	return nil
}

// String renders a one-line human description, e.g.
// "- Rank between 10 and 50 → <@&999>".
func (b GuildBind) String() string {
	var sb strings.Builder
	sb.WriteString("- ")
	sb.WriteString(b.Criteria.Describe())

	var roles []string
	for _, r := range b.Roles {
		roles = append(roles, "<@&"+r+">")
	}
	for _, r := range b.PendingNewRoles {
		roles = append(roles, r+" (new)")
	}
	if len(roles) > 0 {
		sb.WriteString(" → ")
		sb.WriteString(strings.Join(roles, ", "))
	}
	if len(b.RemoveRoles) > 0 {
		var removed []string
		for _, r := range b.RemoveRoles {
			removed = append(removed, "<@&"+r+">")
		}
		sb.WriteString("; removes ")
		sb.WriteString(strings.Join(removed, ", "))
	}
	return sb.String()
}

// Describe renders the condition part of a bind.
func (c BindCriteria) Describe() string {
	g := c.Group
	switch {
	case c.Type != BindTypeGroup:
		return fmt.Sprintf("Owns %s %d", c.Type, c.ID)
	case g.isZero():
		return "All group members, ranks mapped to matching roles"
	case g.Guest:
		return "Users NOT in the group"
	case g.Everyone:
		return "All group members"
	case g.Roleset != nil && *g.Roleset < 0:
		return fmt.Sprintf("Rank %d and above", -*g.Roleset)
	case g.Roleset != nil:
		return fmt.Sprintf("Rank %d", *g.Roleset)
	case g.Min != nil && g.Max != nil:
		return fmt.Sprintf("Rank between %d and %d", *g.Min, *g.Max)
	case g.Min != nil:
		return fmt.Sprintf("Rank %d and above", *g.Min)
	default:
		return fmt.Sprintf("Rank %d and below", *g.Max)
	}
}

// IntPtr returns a pointer to v, for building GroupCriteria literals.
func IntPtr(v int) *int {
	return &v
}
