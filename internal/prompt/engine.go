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

// User-facing messages for interactions that can no longer be routed.
const (
	RestartMessage      = "This button/menu is no longer valid, please restart the command."
	unauthorizedMessage = "This prompt can only be used by <@%d>."
)

// Engine runs prompts against a session store.
type Engine struct {
	sessions *session.Store
}

// NewEngine creates an Engine.
func NewEngine(sessions *session.Store) *Engine {
	return &Engine{sessions: sessions}
}

// Sessions returns the engine's session store.
func (e *Engine) Sessions() *session.Store { return e.sessions }

// Start shows the first page of def in answer to a slash command. extra holds
// the prompt-specific custom ID fields in schema order.
func (e *Engine) Start(ctx context.Context, def *Definition, resp *response.Response, extra []string) error {
	ix := resp.Interaction()
	tok := customid.Token{
		CommandName: def.Command,
		PromptName:  def.Name,
		UserID:      ix.UserID,
		PageNumber:  0,
		ComponentID: customid.NoComponent,
		Extra:       append([]string(nil), extra...),
	}
	if _, err := customid.Encode(tok, def.Schema); err != nil {
		return fmt.Errorf("invalid start token for %s: %w", def.Name, err)
	}
	if def.Len() == 0 {
		return fmt.Errorf("%w: %s has no pages", ErrPageNotFound, def.Name)
	}

	p := newPrompt(e, def, resp, tok)
	if def.FreshData {
		if err := e.sessions.Clear(ctx, p.key); err != nil {
			return err
		}
	}
	slog.Debug("Engine.Start: starting prompt", "prompt", def.Name, "user", ix.UserID)

	page := p.pages[0]
	if page.Kind == Programmatic {
		return p.run(ctx, Invocation{Interaction: ix}, true)
	}
	return p.send(ctx, page)
}

// EntryPoint handles a component or modal interaction addressed to def.
// Stale and foreign interactions are answered with an ephemeral notice and
// reported as handled.
func (e *Engine) EntryPoint(ctx context.Context, def *Definition, resp *response.Response) error {
	ix := resp.Interaction()
	resp.SetUpdateInPlace(true)

	tok, err := decodeToken(def, ix.CustomID)
	if err != nil {
		slog.Debug("Engine.EntryPoint: unroutable interaction", "prompt", def.Name, "custom_id", ix.CustomID, "error", err)
		return e.restart(ctx, resp)
	}
	if err := checkOwner(tok, ix.UserID); err != nil {
		slog.Debug("Engine.EntryPoint: rejected foreign user", "prompt", def.Name, "error", err)
		return resp.SendFirst(ctx, response.Message{
			Content:   fmt.Sprintf(unauthorizedMessage, tok.UserID),
			Ephemeral: true,
		}, false)
	}

	p := newPrompt(e, def, resp, tok)
	if _, err := e.sessions.Load(ctx, p.key, false); err != nil {
		if errors.Is(err, session.ErrSessionExpired) {
			slog.Debug("Engine.EntryPoint: session expired", "prompt", def.Name, "user", tok.UserID)
			return e.restart(ctx, resp)
		}
		return err
	}

	if err := p.storeSubmission(ctx, ix, tok.ComponentID); err != nil {
		return err
	}

	inv := Invocation{
		Interaction:    ix,
		FiredComponent: tok.ComponentID,
		Values:         ix.Values,
		ModalValues:    ix.ModalValues,
	}
	page := p.pages[p.current]
	if page.Handler != nil {
		if err := p.run(ctx, inv, page.Kind == Programmatic); err != nil {
			return err
		}
	}
	if !resp.Responded() {
		// Nothing was shown; acknowledge so the client stops waiting.
		return resp.Defer(ctx, false)
	}
	return nil
}

func (e *Engine) restart(ctx context.Context, resp *response.Response) error {
	return resp.SendFirst(ctx, response.Message{Content: RestartMessage, Ephemeral: true}, false)
}

func decodeToken(def *Definition, raw string) (customid.Token, error) {
	tok, err := customid.Decode(raw, def.Schema)
	if err != nil {
		return tok, err
	}
	if tok.CommandName != def.Command || tok.PromptName != def.Name {
		return tok, fmt.Errorf("%w: routed to %s:%s", customid.ErrMalformedToken, tok.CommandName, tok.PromptName)
	}
	if tok.PageNumber < 0 || tok.PageNumber >= def.Len() {
		return tok, fmt.Errorf("%w: page %d out of range", customid.ErrMalformedToken, tok.PageNumber)
	}
	return tok, nil
}

// checkOwner reports ErrUnauthorizedUser when user did not start the prompt
// tok belongs to.
func checkOwner(tok customid.Token, user int64) error {
	if user != tok.UserID {
		return fmt.Errorf("%w: owner %d, got %d", ErrUnauthorizedUser, tok.UserID, user)
	}
	return nil
}

// storeSubmission records what the interaction submitted under componentID.
// An empty submission is stored too, so clearing a select drops its old values.
func (p *Prompt) storeSubmission(ctx context.Context, ix *models.Interaction, componentID string) error {
	if !ix.IsComponentLike() {
		return nil
	}
	return p.SaveField(ctx, componentID, session.ComponentValues{Values: ix.Values, Fields: ix.ModalValues})
}

// run invokes the current page's handler and then settles: while the prompt
// keeps navigating, programmatic targets are evaluated without a fired
// component, and only the page it finally rests on is rendered.
func (p *Prompt) run(ctx context.Context, inv Invocation, renderCurrent bool) error {
	page := p.pages[p.current]
	if err := p.invoke(ctx, page, inv); err != nil {
		return err
	}

	for hops := 0; p.navigated && !p.finished; hops++ {
		if hops >= maxHops {
			return fmt.Errorf("%w: %s after %d hops", ErrNavigationLoop, p.def.Name, hops)
		}
		p.navigated = false
		page = p.pages[p.current]
		if page.Kind == Programmatic {
			if err := p.invoke(ctx, page, Invocation{Interaction: inv.Interaction}); err != nil {
				return err
			}
			if p.navigated || p.finished {
				continue
			}
		}
		if page.edited {
			return nil
		}
		return p.send(ctx, page)
	}

	if p.finished {
		return p.renderFinished(ctx)
	}
	if renderCurrent && !page.edited {
		return p.send(ctx, page)
	}
	return nil
}

func (p *Prompt) invoke(ctx context.Context, page *PageDefinition, inv Invocation) error {
	if page.Handler == nil {
		return nil
	}
	gotFinal := false
	emit := func(em Emission) error {
		switch {
		case em.action != nil:
			return em.action(ctx, p.resp)
		case em.content != nil:
			if gotFinal {
				return nil
			}
			gotFinal = true
			c := em.content.Clone()
			page.Content = &c
		}
		return nil
	}
	if err := page.Handler(ctx, p, inv, emit); err != nil {
		return fmt.Errorf("page %q of %s: %w", page.ID, p.def.Name, err)
	}
	return nil
}
