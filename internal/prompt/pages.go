package prompt

import (
	"fmt"

	"github.com/BTreeMap/RoleBridge/internal/customid"
)

// PageKind distinguishes pages with fixed content from computed ones.
type PageKind int

const (
	// Static pages carry content supplied at definition time.
	Static PageKind = iota
	// Programmatic pages compute their content each time they are shown.
	Programmatic
)

func (k PageKind) String() string {
	if k == Programmatic {
		return "programmatic"
	}
	return "static"
}

// Field is one embed field.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// PageContent is what a page shows.
type PageContent struct {
	Title       string
	Description string
	// URL links the embed title.
	URL         string
	Footer      string
	Fields      []Field
	Components  []Component
}

// Clone returns a deep copy, so patches never leak between instances.
func (c PageContent) Clone() PageContent {
	out := c
	out.Fields = append([]Field(nil), c.Fields...)
	out.Components = make([]Component, len(c.Components))
	for i, comp := range c.Components {
		out.Components[i] = comp.clone()
	}
	return out
}

// Component returns the component with the given ID.
func (c PageContent) Component(id string) (Component, bool) {
	for _, comp := range c.Components {
		if comp.ID() == id {
			return comp, true
		}
	}
	return nil, false
}

// PageDefinition is one page of a prompt instance.
type PageDefinition struct {
	ID      string
	Kind    PageKind
	Handler PageFunc
	// Content is nil for programmatic pages until they are evaluated.
	Content *PageContent
	Ordinal int

	// edited marks the page as visually settled for this interaction.
	edited bool
}

// Definition is the stateless template of a prompt: its routing names, the
// custom ID schema and the ordered pages.
type Definition struct {
	Command string
	Name    string
	Schema  customid.Schema
	// FreshData clears any previous session when the prompt starts.
	FreshData bool

	pages []PageDefinition
	index map[string]int
}

// DefinitionOption configures a Definition.
type DefinitionOption func(*Definition)

// KeepData makes Start reuse an existing session instead of clearing it.
func KeepData() DefinitionOption {
	return func(d *Definition) { d.FreshData = false }
}

// NewDefinition starts a prompt definition. Pages are added with Static and
// Programmatic; their ordinals follow registration order.
func NewDefinition(command, name string, schema customid.Schema, opts ...DefinitionOption) *Definition {
	d := &Definition{
		Command:   command,
		Name:      name,
		Schema:    schema,
		FreshData: true,
		index:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Static registers a page with fixed content. handler runs when one of the
// page's components fires and may be nil for display-only pages.
func (d *Definition) Static(id string, content PageContent, handler PageFunc) *Definition {
	c := content.Clone()
	return d.add(PageDefinition{ID: id, Kind: Static, Handler: handler, Content: &c})
}

// Programmatic registers a page whose content handler computes by emitting
// Final.
func (d *Definition) Programmatic(id string, handler PageFunc) *Definition {
	if handler == nil {
		panic(fmt.Sprintf("prompt %s: programmatic page %q needs a handler", d.Name, id))
	}
	return d.add(PageDefinition{ID: id, Kind: Programmatic, Handler: handler})
}

func (d *Definition) add(p PageDefinition) *Definition {
	if _, dup := d.index[p.ID]; dup {
		panic(fmt.Sprintf("prompt %s: duplicate page %q", d.Name, p.ID))
	}
	p.Ordinal = len(d.pages)
	d.index[p.ID] = p.Ordinal
	d.pages = append(d.pages, p)
	return d
}

// Len returns the number of pages.
func (d *Definition) Len() int { return len(d.pages) }

// Ordinal resolves a page ID.
func (d *Definition) Ordinal(id string) (int, error) {
	o, ok := d.index[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s has no page %q", ErrPageNotFound, d.Name, id)
	}
	return o, nil
}

// CollectPages returns a fresh, ordered copy of the pages for one prompt
// instance.
func (d *Definition) CollectPages() []*PageDefinition {
	out := make([]*PageDefinition, len(d.pages))
	for i, p := range d.pages {
		cp := p
		if p.Content != nil {
			c := p.Content.Clone()
			cp.Content = &c
		}
		out[i] = &cp
	}
	return out
}
