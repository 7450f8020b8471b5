// Package commands routes Discord interactions to slash commands, their
// autocomplete handlers and the prompts they start.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/BTreeMap/RoleBridge/internal/customid"
	"github.com/BTreeMap/RoleBridge/internal/models"
	"github.com/BTreeMap/RoleBridge/internal/prompt"
	"github.com/BTreeMap/RoleBridge/internal/response"
	"github.com/BTreeMap/RoleBridge/internal/store"
	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
)

// ErrorMessage is shown when a handler fails.
const ErrorMessage = "Something went wrong while handling this interaction. Please try again later."

// DefaultHandlerTimeout bounds the handling of one interaction. Interaction
// tokens stay valid for 15 minutes.
const DefaultHandlerTimeout = 2 * time.Minute

// maxChoices is Discord's limit on autocomplete results.
const maxChoices = 25

// Request is what a command handler is called with.
type Request struct {
	Interaction *models.Interaction
	Response    *response.Response
	Trace       string
}

// Command is a slash command with optional autocomplete and subcommands.
// Subcommands are selected through Interaction.Subcommand by Run.
type Command struct {
	Name        string
	Description string
	Options     []*discordgo.ApplicationCommandOption
	// Permissions is the default member permission bitset, 0 for everyone.
	Permissions  int64
	Run          func(ctx context.Context, req *Request) error
	Autocomplete func(ctx context.Context, req *Request) ([]*discordgo.ApplicationCommandOptionChoice, error)
}

// ApplicationCommand returns the registration payload for the command.
func (c *Command) ApplicationCommand() *discordgo.ApplicationCommand {
	ac := &discordgo.ApplicationCommand{
		Name:        c.Name,
		Description: c.Description,
		Options:     c.Options,
	}
	if c.Permissions != 0 {
		perm := c.Permissions
		ac.DefaultMemberPermissions = &perm
	}
	dm := false
	ac.DMPermission = &dm
	return ac
}

// ComponentHandler answers component interactions that belong to no prompt,
// such as page buttons on a plain message.
type ComponentHandler func(ctx context.Context, req *Request) error

// Stats counts handled interactions.
type Stats struct {
	Commands     int64 `json:"commands"`
	Components   int64 `json:"components"`
	ModalSubmits int64 `json:"modal_submits"`
	Autocomplete int64 `json:"autocomplete"`
	Duplicates   int64 `json:"duplicates"`
	Errors       int64 `json:"errors"`
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithDedup drops interactions whose ID was already recorded in repo.
func WithDedup(repo store.DedupRepo) RouterOption {
	return func(r *Router) { r.dedup = repo }
}

// WithHandlerTimeout overrides DefaultHandlerTimeout.
func WithHandlerTimeout(d time.Duration) RouterOption {
	return func(r *Router) { r.timeout = d }
}

// Router dispatches interactions by kind. Commands and autocomplete go by
// command name, components and modal submits by the handler or prompt named
// in their custom ID.
type Router struct {
	engine    *prompt.Engine
	transport response.Transport
	dedup     store.DedupRepo
	timeout   time.Duration

	mu         sync.RWMutex
	commands   map[string]*Command
	prompts    map[string]*prompt.Definition
	components map[string]ComponentHandler

	statsMu sync.Mutex
	stats   Stats
}

// NewRouter creates a Router answering through transport.
func NewRouter(engine *prompt.Engine, transport response.Transport, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		transport:  transport,
		timeout:    DefaultHandlerTimeout,
		commands:   make(map[string]*Command),
		prompts:    make(map[string]*prompt.Definition),
		components: make(map[string]ComponentHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a command, replacing any previous one with the same name.
func (r *Router) Register(cmd *Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd.Name] = cmd
	slog.Debug("Router.Register: registered command", "command", cmd.Name)
}

// RegisterPrompt makes component interactions addressed to def routable.
func (r *Router) RegisterPrompt(def *prompt.Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts[promptKey(def.Command, def.Name)] = def
	slog.Debug("Router.RegisterPrompt: registered prompt", "command", def.Command, "prompt", def.Name, "pages", def.Len())
}

// RegisterComponent routes custom IDs headed command:name to fn. Component
// handlers take precedence over prompts of the same name.
func (r *Router) RegisterComponent(command, name string, fn ComponentHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[promptKey(command, name)] = fn
	slog.Debug("Router.RegisterComponent: registered component handler", "command", command, "name", name)
}

func promptKey(command, name string) string {
	return command + customid.Delimiter + name
}

// ApplicationCommands returns the registration payloads of every command,
// sorted by name.
func (r *Router) ApplicationCommands() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*discordgo.ApplicationCommand, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, c.ApplicationCommand())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stats returns a snapshot of the counters.
func (r *Router) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}

func (r *Router) count(f func(*Stats)) {
	r.statsMu.Lock()
	f(&r.stats)
	r.statsMu.Unlock()
}

// Serve handles interactions from in, each on its own goroutine, until ctx is
// cancelled or in is closed. It waits for in-flight handlers before returning.
func (r *Router) Serve(ctx context.Context, in <-chan *models.Interaction) error {
	slog.Info("Router.Serve: handling interactions")
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		slog.Info("Router.Serve: stopped")
	}()
	for {
		select {
		case ix, ok := <-in:
			if !ok {
				slog.Debug("Router.Serve: interaction channel closed")
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
				defer cancel()
				if err := r.Handle(hctx, ix); err != nil {
					slog.Error("Router.Serve: interaction failed", "interaction_id", ix.ID, "error", err)
				}
			}()
		case <-ctx.Done():
			return nil
		}
	}
}

// Handle processes one interaction. Handler failures are logged and answered
// with an ephemeral error message; the returned error is non-nil only when
// that answer could not be delivered either.
func (r *Router) Handle(ctx context.Context, ix *models.Interaction) error {
	trace := uuid.NewString()
	log := slog.With("trace", trace, "interaction_id", ix.ID, "kind", ix.Kind, "user", ix.UserID)

	if r.dedup != nil {
		fresh, err := r.dedup.RecordInteraction(ctx, ix.ID, strconv.FormatInt(ix.UserID, 10))
		if err != nil {
			log.Warn("Router.Handle: dedup lookup failed, handling anyway", "error", err)
		} else if !fresh {
			r.count(func(s *Stats) { s.Duplicates++ })
			log.Info("Router.Handle: dropped duplicate interaction")
			return nil
		}
	}

	resp := response.New(ix, r.transport)
	req := &Request{Interaction: ix, Response: resp, Trace: trace}

	var err error
	switch ix.Kind {
	case models.InteractionCommand:
		r.count(func(s *Stats) { s.Commands++ })
		err = r.handleCommand(ctx, req)
	case models.InteractionAutocomplete:
		r.count(func(s *Stats) { s.Autocomplete++ })
		err = r.handleAutocomplete(ctx, req)
	case models.InteractionComponent, models.InteractionModalSubmit:
		if ix.Kind == models.InteractionComponent {
			r.count(func(s *Stats) { s.Components++ })
		} else {
			r.count(func(s *Stats) { s.ModalSubmits++ })
		}
		err = r.handlePrompt(ctx, req)
	default:
		err = fmt.Errorf("unsupported interaction kind %q", ix.Kind)
	}

	if r.dedup != nil {
		if markErr := r.dedup.MarkProcessed(ctx, ix.ID); markErr != nil {
			log.Warn("Router.Handle: failed to mark interaction processed", "error", markErr)
		}
	}

	if err == nil {
		log.Debug("Router.Handle: interaction handled", "actions", len(resp.Actions()))
		return nil
	}
	r.count(func(s *Stats) { s.Errors++ })
	log.Error("Router.Handle: handler failed", "command", ix.CommandName, "custom_id", ix.CustomID, "error", err)
	if ix.Kind == models.InteractionAutocomplete {
		return nil
	}
	if sendErr := replyEphemeral(ctx, resp, ErrorMessage); sendErr != nil {
		return fmt.Errorf("failed to report handler error %v: %w", err, sendErr)
	}
	return nil
}

func (r *Router) command(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commands[name]
	return c, ok
}

func (r *Router) handleCommand(ctx context.Context, req *Request) error {
	cmd, ok := r.command(req.Interaction.CommandName)
	if !ok || cmd.Run == nil {
		return fmt.Errorf("unknown command %q", req.Interaction.CommandName)
	}
	return cmd.Run(ctx, req)
}

func (r *Router) handleAutocomplete(ctx context.Context, req *Request) error {
	cmd, ok := r.command(req.Interaction.CommandName)
	if !ok || cmd.Autocomplete == nil {
		return req.Response.Autocomplete(ctx, nil)
	}
	choices, err := cmd.Autocomplete(ctx, req)
	if err != nil {
		// Autocomplete errors are invisible to users; answer with no choices.
		if sendErr := req.Response.Autocomplete(ctx, nil); sendErr != nil {
			return errors.Join(err, sendErr)
		}
		return err
	}
	if len(choices) > maxChoices {
		choices = choices[:maxChoices]
	}
	return req.Response.Autocomplete(ctx, choices)
}

func (r *Router) handlePrompt(ctx context.Context, req *Request) error {
	command, name, ok := customid.PeekHeader(req.Interaction.CustomID)
	var def *prompt.Definition
	var fn ComponentHandler
	if ok {
		r.mu.RLock()
		fn = r.components[promptKey(command, name)]
		def = r.prompts[promptKey(command, name)]
		r.mu.RUnlock()
	}
	if fn != nil {
		return fn(ctx, req)
	}
	if def == nil {
		slog.Debug("Router.handlePrompt: no prompt for custom id", "custom_id", req.Interaction.CustomID)
		return replyEphemeral(ctx, req.Response, prompt.RestartMessage)
	}
	return r.engine.EntryPoint(ctx, def, req.Response)
}

// replyEphemeral sends content privately. A deferred command response is
// completed with it; on components a pending deferral is kept so the prompt
// message is never overwritten.
func replyEphemeral(ctx context.Context, resp *response.Response, content string) error {
	msg := response.Message{Content: content, Ephemeral: true}
	var err error
	if resp.Interaction().Kind == models.InteractionCommand {
		_, err = resp.Send(ctx, msg)
	} else {
		_, err = resp.Followup(ctx, msg)
	}
	return err
}
