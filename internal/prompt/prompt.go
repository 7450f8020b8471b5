// Package prompt drives multi-step interactive prompts.
//
// A prompt is a sequence of pages rendered as an embed with components on a
// single Discord message. Every component carries a custom ID that routes the
// next interaction back to the prompt, page and component that produced it,
// while form data accumulates in a session record between interactions.
//
// Handlers never talk to Discord directly. They emit Immediate actions and a
// Final page content, and call the transition methods on Prompt; the engine
// renders once when the handler returns, so a chain of transitions only ever
// shows its last page.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/RoleBridge/internal/customid"
	"github.com/BTreeMap/RoleBridge/internal/models"
	"github.com/BTreeMap/RoleBridge/internal/response"
	"github.com/BTreeMap/RoleBridge/internal/session"
)

var (
	// ErrPageNotFound is returned when navigating to a page the prompt does not have.
	ErrPageNotFound = errors.New("prompt page not found")
	// ErrUnauthorizedUser is returned when someone other than the owner uses a prompt.
	ErrUnauthorizedUser = errors.New("prompt belongs to another user")
	// ErrComponentLimitExceeded is returned when a page exceeds Discord's layout limits.
	ErrComponentLimitExceeded = errors.New("component limit exceeded")
	// ErrDuplicateComponent is returned when two components on a page share an ID.
	ErrDuplicateComponent = errors.New("duplicate component id")
	// ErrPromptFinished is returned by transitions after Finish.
	ErrPromptFinished = errors.New("prompt already finished")
	// ErrNavigationLoop is returned when programmatic pages keep redirecting.
	ErrNavigationLoop = errors.New("prompt navigation did not settle")
)

// maxHops bounds how many programmatic pages may redirect in a row.
const maxHops = 8

// PageEdit describes an immediate change to the current page.
type PageEdit struct {
	Title       string
	Description string
	Components  map[string]ComponentPatch
}

// Prompt is one live instance of a Definition, built per interaction.
type Prompt struct {
	engine *Engine
	def    *Definition
	resp   *response.Response
	pages  []*PageDefinition
	token  customid.Token
	key    session.Key

	current   int
	navigated bool
	overrides Overrides

	finished        bool
	disableOnFinish bool
	finishRendered  bool
}

func newPrompt(e *Engine, def *Definition, resp *response.Response, tok customid.Token) *Prompt {
	return &Prompt{
		engine:  e,
		def:     def,
		resp:    resp,
		pages:   def.CollectPages(),
		token:   tok,
		current: tok.PageNumber,
		key:     session.Key{Command: def.Command, Prompt: def.Name, UserID: tok.UserID},
	}
}

// Definition returns the prompt's template.
func (p *Prompt) Definition() *Definition { return p.def }

// Response returns the coordinator answering the current interaction.
func (p *Prompt) Response() *response.Response { return p.resp }

// Interaction returns the interaction being handled.
func (p *Prompt) Interaction() *models.Interaction { return p.resp.Interaction() }

// UserID returns the owner of the prompt.
func (p *Prompt) UserID() int64 { return p.token.UserID }

// Key returns the session key of the prompt.
func (p *Prompt) Key() session.Key { return p.key }

// CurrentPage returns the ordinal of the current page.
func (p *Prompt) CurrentPage() int { return p.current }

// CurrentPageID returns the ID of the current page.
func (p *Prompt) CurrentPageID() string { return p.pages[p.current].ID }

// Finished reports whether Finish was called.
func (p *Prompt) Finished() bool { return p.finished }

// Field returns a prompt-specific custom ID field.
func (p *Prompt) Field(name string) (string, bool) {
	return p.token.Get(p.def.Schema, name)
}

// FieldInt returns a prompt-specific integer custom ID field.
func (p *Prompt) FieldInt(name string) (int64, error) {
	return p.token.GetInt(p.def.Schema, name)
}

// Next moves to the following page. The render happens when the handler returns.
func (p *Prompt) Next() error {
	return p.moveTo(p.current + 1)
}

// Previous moves to the preceding page.
func (p *Prompt) Previous() error {
	return p.moveTo(p.current - 1)
}

// GoTo moves to the page with the given ID. Overrides apply to that page's
// next render only.
func (p *Prompt) GoTo(pageID string, ov ...Overrides) error {
	if p.finished {
		return ErrPromptFinished
	}
	o, err := p.def.Ordinal(pageID)
	if err != nil {
		return err
	}
	if err := p.moveTo(o); err != nil {
		return err
	}
	if len(ov) > 0 {
		p.overrides = ov[0]
	}
	return nil
}

func (p *Prompt) moveTo(ordinal int) error {
	if p.finished {
		return ErrPromptFinished
	}
	if ordinal < 0 || ordinal >= len(p.pages) {
		return fmt.Errorf("%w: ordinal %d of %d", ErrPageNotFound, ordinal, len(p.pages))
	}
	slog.Debug("Prompt.moveTo: staged transition", "prompt", p.def.Name, "from", p.current, "to", ordinal)
	p.current = ordinal
	p.navigated = true
	return nil
}

// Ack marks the current page as settled so the engine does not render it.
func (p *Prompt) Ack() {
	p.pages[p.current].edited = true
}

// Finish ends the prompt: the session is cleared and, when disable is set,
// the current page is shown once more with every component disabled. Later
// transitions fail with ErrPromptFinished.
func (p *Prompt) Finish(ctx context.Context, disable bool) error {
	if p.finished {
		return nil
	}
	page := p.pages[p.current]
	page.edited = true
	p.finished = true
	p.navigated = false
	p.disableOnFinish = disable
	if err := p.engine.sessions.Clear(ctx, p.key); err != nil {
		return err
	}
	slog.Debug("Prompt.Finish: prompt finished", "prompt", p.def.Name, "user", p.token.UserID, "page", page.ID)
	if disable && page.Content != nil {
		return p.renderFinished(ctx)
	}
	return nil
}

func (p *Prompt) renderFinished(ctx context.Context) error {
	page := p.pages[p.current]
	if p.finishRendered || !p.disableOnFinish || page.Content == nil || len(page.Content.Components) == 0 {
		return nil
	}
	p.finishRendered = true
	for _, c := range page.Content.Components {
		c.setDisabled(true)
	}
	return p.send(ctx, page)
}

// EditPage re-renders the current page at once with staged overrides and
// component patches. The page counts as edited afterwards.
func (p *Prompt) EditPage(ctx context.Context, edit PageEdit) error {
	page := p.pages[p.current]
	page.edited = true
	if page.Content == nil {
		page.Content = &PageContent{}
	}
	for id, patch := range edit.Components {
		c, ok := page.Content.Component(id)
		if !ok {
			slog.Warn("Prompt.EditPage: unknown component", "prompt", p.def.Name, "page", page.ID, "component", id)
			continue
		}
		if err := ApplyPatch(c, patch); err != nil {
			return err
		}
	}
	if edit.Title != "" {
		p.overrides.Title = edit.Title
	}
	if edit.Description != "" {
		p.overrides.Description = edit.Description
	}
	return p.send(ctx, page)
}

// EditComponents patches components of the current page and re-renders it.
func (p *Prompt) EditComponents(ctx context.Context, patches map[string]ComponentPatch) error {
	return p.EditPage(ctx, PageEdit{Components: patches})
}

// Modal returns an emission opening a modal whose submission routes back to
// the current page as componentID. The page is acknowledged when the modal
// opens, since the modal consumes the initial response.
func (p *Prompt) Modal(componentID, title string, inputs ...*TextInput) Emission {
	return Immediate(func(ctx context.Context, r *response.Response) error {
		customID, err := stamp(p.token, p.def.Schema, p.current, componentID)
		if err != nil {
			return err
		}
		modal, err := RenderModal(customID, title, inputs)
		if err != nil {
			return err
		}
		sent, err := r.SendModal(ctx, modal)
		if err != nil {
			return err
		}
		if sent {
			p.Ack()
		}
		return nil
	})
}

// Data returns the session record, empty if none exists.
func (p *Prompt) Data(ctx context.Context) (session.Data, error) {
	return p.engine.sessions.Load(ctx, p.key, true)
}

// Values returns what a component submitted, if anything.
func (p *Prompt) Values(ctx context.Context, componentID string) (session.ComponentValues, bool, error) {
	data, err := p.Data(ctx)
	if err != nil {
		return session.ComponentValues{}, false, err
	}
	var cv session.ComponentValues
	ok, err := data.Get(componentID, &cv)
	return cv, ok, err
}

// Save merges fields into the session record.
func (p *Prompt) Save(ctx context.Context, fields session.Data) error {
	return p.engine.sessions.Save(ctx, p.key, fields)
}

// SaveField encodes v and saves it under name.
func (p *Prompt) SaveField(ctx context.Context, name string, v interface{}) error {
	d := session.Data{}
	if err := d.Put(name, v); err != nil {
		return err
	}
	return p.Save(ctx, d)
}

// Clear removes the named fields, or the whole session when none are given.
func (p *Prompt) Clear(ctx context.Context, fields ...string) error {
	return p.engine.sessions.Clear(ctx, p.key, fields...)
}

// send renders page and transmits it as the prompt message, then records the
// page in the session.
func (p *Prompt) send(ctx context.Context, page *PageDefinition) error {
	if page.Content == nil {
		return fmt.Errorf("page %q of %s produced no content", page.ID, p.def.Name)
	}
	msg, err := Render(p.token, p.def.Schema, page.Ordinal, *page.Content, p.overrides)
	if err != nil {
		return fmt.Errorf("failed to render page %q of %s: %w", page.ID, p.def.Name, err)
	}
	p.overrides = Overrides{}
	if err := p.resp.SendFirst(ctx, msg, true); err != nil {
		return err
	}
	slog.Debug("Prompt.send: page rendered", "prompt", p.def.Name, "page", page.ID, "ordinal", page.Ordinal, "user", p.token.UserID)
	if p.finished {
		return nil
	}
	return p.SaveField(ctx, session.PageField, page.Ordinal)
}
