package prompt

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Component is an interactive element on a page: *Button, *RoleSelect,
// *TextSelect or *TextInput. ComponentID identifies it within the page and is
// stamped into the rendered custom ID.
type Component interface {
	ID() string
	clone() Component
	setDisabled(bool)
}

// Button is a clickable button. Buttons of a page share one row.
type Button struct {
	ComponentID string
	Label       string
	Style       discordgo.ButtonStyle
	Disabled    bool
}

// SelectOption is one choice of a TextSelect.
type SelectOption struct {
	Label       string
	Value       string
	Description string
	Default     bool
}

// TextSelect is a string select menu. It renders on its own row.
type TextSelect struct {
	ComponentID string
	Placeholder string
	MinValues   int
	MaxValues   int
	Options     []SelectOption
	Disabled    bool
}

// RoleSelect lets the user pick guild roles. It renders on its own row.
type RoleSelect struct {
	ComponentID string
	Placeholder string
	MinValues   int
	MaxValues   int
	Disabled    bool
}

// TextInput is a modal text field. It is only valid inside a modal.
type TextInput struct {
	ComponentID string
	Label       string
	Placeholder string
	Value       string
	Style       discordgo.TextInputStyle
	MinLength   int
	MaxLength   int
	Required    bool
}

func (b *Button) ID() string     { return b.ComponentID }
func (s *TextSelect) ID() string { return s.ComponentID }
func (s *RoleSelect) ID() string { return s.ComponentID }
func (t *TextInput) ID() string  { return t.ComponentID }

func (b *Button) clone() Component { c := *b; return &c }
func (s *TextSelect) clone() Component {
	c := *s
	c.Options = append([]SelectOption(nil), s.Options...)
	return &c
}
func (s *RoleSelect) clone() Component { c := *s; return &c }
func (t *TextInput) clone() Component  { c := *t; return &c }

func (b *Button) setDisabled(v bool)     { b.Disabled = v }
func (s *TextSelect) setDisabled(v bool) { s.Disabled = v }
func (s *RoleSelect) setDisabled(v bool) { s.Disabled = v }
func (t *TextInput) setDisabled(bool)    {}

// ComponentPatch changes display fields of a component in place, keeping its
// identity. Nil fields are left untouched.
type ComponentPatch interface {
	apply(Component) error
}

// ButtonPatch patches a *Button.
type ButtonPatch struct {
	Label    *string
	Style    *discordgo.ButtonStyle
	Disabled *bool
}

// SelectPatch patches a *TextSelect or *RoleSelect. Options only applies to
// text selects and replaces the whole list when non-nil.
type SelectPatch struct {
	Placeholder *string
	Disabled    *bool
	Options     []SelectOption
}

// TextInputPatch patches a *TextInput.
type TextInputPatch struct {
	Label       *string
	Placeholder *string
	Value       *string
}

func (p ButtonPatch) apply(c Component) error {
	b, ok := c.(*Button)
	if !ok {
		return fmt.Errorf("button patch applied to %T %q", c, c.ID())
	}
	if p.Label != nil {
		b.Label = *p.Label
	}
	if p.Style != nil {
		b.Style = *p.Style
	}
	if p.Disabled != nil {
		b.Disabled = *p.Disabled
	}
	return nil
}

func (p SelectPatch) apply(c Component) error {
	switch s := c.(type) {
	case *TextSelect:
		if p.Placeholder != nil {
			s.Placeholder = *p.Placeholder
		}
		if p.Disabled != nil {
			s.Disabled = *p.Disabled
		}
		if p.Options != nil {
			s.Options = append([]SelectOption(nil), p.Options...)
		}
	case *RoleSelect:
		if p.Options != nil {
			return fmt.Errorf("role select %q has no options to patch", s.ComponentID)
		}
		if p.Placeholder != nil {
			s.Placeholder = *p.Placeholder
		}
		if p.Disabled != nil {
			s.Disabled = *p.Disabled
		}
	default:
		return fmt.Errorf("select patch applied to %T %q", c, c.ID())
	}
	return nil
}

func (p TextInputPatch) apply(c Component) error {
	t, ok := c.(*TextInput)
	if !ok {
		return fmt.Errorf("text input patch applied to %T %q", c, c.ID())
	}
	if p.Label != nil {
		t.Label = *p.Label
	}
	if p.Placeholder != nil {
		t.Placeholder = *p.Placeholder
	}
	if p.Value != nil {
		t.Value = *p.Value
	}
	return nil
}

// ApplyPatch applies p to c. It fails when the patch does not fit the
// component type.
func ApplyPatch(c Component, p ComponentPatch) error {
	return p.apply(c)
}

// Disable returns a patch that disables a button or select.
func Disable(c Component) ComponentPatch {
	t := true
	switch c.(type) {
	case *Button:
		return ButtonPatch{Disabled: &t}
	default:
		return SelectPatch{Disabled: &t}
	}
}

// Str returns a pointer to s, for building patches.
func Str(s string) *string { return &s }

// Bool returns a pointer to b, for building patches.
func Bool(b bool) *bool { return &b }
