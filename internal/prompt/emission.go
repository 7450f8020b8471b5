package prompt

import (
	"context"

	"github.com/BTreeMap/RoleBridge/internal/models"
	"github.com/BTreeMap/RoleBridge/internal/response"
)

// Invocation is what a page handler is called with.
type Invocation struct {
	Interaction *models.Interaction
	// FiredComponent is the component that triggered the call. It is empty
	// when the page is evaluated because the prompt navigated into it.
	FiredComponent string
	Values         []string
	ModalValues    map[string]string
}

// Fired reports whether componentID triggered this invocation.
func (i Invocation) Fired(componentID string) bool {
	return i.FiredComponent != "" && i.FiredComponent == componentID
}

// Action is a response operation performed as soon as it is emitted.
type Action func(ctx context.Context, r *response.Response) error

// Emission is either an immediate Action or the Final content of the page.
type Emission struct {
	action  Action
	content *PageContent
}

// Emit hands an emission to the engine. Immediate actions run at once, in
// emission order, and their error is returned. The first Final wins; later
// ones are ignored.
type Emit func(Emission) error

// PageFunc handles a page. Programmatic pages emit Final to provide their
// content; any page may emit Immediate actions and navigate.
type PageFunc func(ctx context.Context, p *Prompt, inv Invocation, emit Emit) error

// Immediate wraps an action.
func Immediate(a Action) Emission {
	return Emission{action: a}
}

// Final sets the content to render for the page being evaluated.
func Final(c PageContent) Emission {
	return Emission{content: &c}
}

// Defer acknowledges the interaction without changing the page.
func Defer(ephemeral bool) Emission {
	return Immediate(func(ctx context.Context, r *response.Response) error {
		return r.Defer(ctx, ephemeral)
	})
}

// Reply sends msg through the coordinator's Send.
func Reply(msg response.Message) Emission {
	return Immediate(func(ctx context.Context, r *response.Response) error {
		_, err := r.Send(ctx, msg)
		return err
	})
}

// Ephemeral sends a short private message as a new message, leaving a
// pending deferral for the page render.
func Ephemeral(content string) Emission {
	return Immediate(func(ctx context.Context, r *response.Response) error {
		_, err := r.Followup(ctx, response.Message{Content: content, Ephemeral: true})
		return err
	})
}
