package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/BTreeMap/RoleBridge/internal/binds"
	"github.com/BTreeMap/RoleBridge/internal/models"
	"github.com/BTreeMap/RoleBridge/internal/prompt"
	"github.com/BTreeMap/RoleBridge/internal/roblox"
	"github.com/BTreeMap/RoleBridge/internal/session"
	"github.com/BTreeMap/RoleBridge/internal/store"
	"github.com/BTreeMap/RoleBridge/internal/testutil"
	"github.com/bwmarrin/discordgo"
)

const owner int64 = 1001

type fakeGroups struct {
	groups   map[int64]*roblox.Group
	entities map[int64]*roblox.Entity
	err      error
}

func (f *fakeGroups) GetGroup(_ context.Context, id int64) (*roblox.Group, error) {
	if f.err != nil {
		return nil, f.err
	}
	g, ok := f.groups[id]
	if !ok {
		return nil, roblox.ErrNotFound
	}
	return g, nil
}

func (f *fakeGroups) GetEntity(_ context.Context, t models.BindType, id int64) (*roblox.Entity, error) {
	if f.err != nil {
		return nil, f.err
	}
	e, ok := f.entities[id]
	if !ok || e.Type != t {
		return nil, roblox.ErrNotFound
	}
	return e, nil
}

type fakeRoles struct {
	mu       sync.Mutex
	created  []string
	existing []string
}

func (f *fakeRoles) RoleNames(_ context.Context, guildID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append(append([]string(nil), f.existing...), f.created...), nil
}

func (f *fakeRoles) CreateRole(_ context.Context, guildID, name, reason string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, name)
	return fmt.Sprintf("%d", 5000+len(f.created)), nil
}

type env struct {
	t         *testing.T
	store     *store.InMemoryStore
	transport *testutil.RecordingTransport
	router    *Router
	deps      *Deps
	roles     *fakeRoles
}

func testGroup() *roblox.Group {
	return &roblox.Group{
		ID:   12345,
		Name: "Test Group",
		Rolesets: []roblox.Roleset{
			{ID: 1, Name: "Guest", Rank: 0},
			{ID: 2, Name: "Member", Rank: 10},
			{ID: 3, Name: "Admin", Rank: 50},
		},
	}
}

func newEnv(t *testing.T, opts ...RouterOption) *env {
	t.Helper()
	e := &env{t: t, store: store.NewInMemoryStore(), transport: testutil.NewRecordingTransport(), roles: &fakeRoles{}}
	engine := prompt.NewEngine(session.NewStore(e.store))
	e.deps = &Deps{
		Engine: engine,
		Binds:  binds.NewService(e.store),
		Roblox: &fakeGroups{
			groups:   map[int64]*roblox.Group{12345: testGroup()},
			entities: map[int64]*roblox.Entity{555: {Type: models.BindTypeBadge, ID: 555, Name: "Winner"}},
		},
		Roles:  e.roles,
	}
	e.router = NewRouter(engine, e.transport, opts...)
	Register(e.router, e.deps)
	return e
}

func (e *env) handle(ix *models.Interaction) {
	e.t.Helper()
	if err := e.router.Handle(context.Background(), ix); err != nil {
		e.t.Fatalf("Handle failed: %v", err)
	}
}

func TestApplicationCommands(t *testing.T) {
	e := newEnv(t)
	cmds := e.router.ApplicationCommands()
	var names []string
	for _, c := range cmds {
		names = append(names, c.Name)
		if c.DMPermission == nil || *c.DMPermission {
			t.Errorf("%s: expected DM permission false", c.Name)
		}
		if c.DefaultMemberPermissions == nil || *c.DefaultMemberPermissions != manageBindsPermission {
			t.Errorf("%s: unexpected default member permissions", c.Name)
		}
	}
	if got := strings.Join(names, ","); got != "bind,unbind,viewbinds" {
		t.Errorf("commands = %s, want bind,unbind,viewbinds", got)
	}
}

func TestHandleUnknownCustomID(t *testing.T) {
	e := newEnv(t)
	e.handle(testutil.ComponentInteraction(owner, "nope:Missing:1001:0:x"))

	last := e.transport.Last(t)
	if last.Content() != prompt.RestartMessage || !last.Ephemeral() {
		t.Errorf("expected ephemeral restart message, got %q", last.Content())
	}
}

func TestHandleReportsHandlerErrors(t *testing.T) {
	e := newEnv(t)
	e.router.Register(&Command{
		Name: "broken",
		Run: func(ctx context.Context, req *Request) error {
			return errors.New("boom")
		},
	})
	e.handle(testutil.CommandInteraction(owner, "broken", nil))

	last := e.transport.Last(t)
	if last.Content() != ErrorMessage || !last.Ephemeral() {
		t.Errorf("expected ephemeral error message, got %q", last.Content())
	}
	if got := e.router.Stats().Errors; got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
}

func TestHandleDropsDuplicates(t *testing.T) {
	e := newEnv(t, WithDedup(store.NewInMemoryStore()))
	runs := 0
	e.router.Register(&Command{
		Name: "count",
		Run: func(ctx context.Context, req *Request) error {
			runs++
			return req.Response.SendFirst(ctx, responseText("ok"), false)
		},
	})
	ix := testutil.CommandInteraction(owner, "count", nil)
	e.handle(ix)
	e.handle(ix)

	if runs != 1 {
		t.Errorf("handler ran %d times, want 1", runs)
	}
	stats := e.router.Stats()
	if stats.Commands != 1 || stats.Duplicates != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestAutocompleteErrorsAnswerEmpty(t *testing.T) {
	e := newEnv(t)
	e.router.Register(&Command{
		Name: "ac",
		Autocomplete: func(ctx context.Context, req *Request) ([]*discordgo.ApplicationCommandOptionChoice, error) {
			return nil, errors.New("lookup failed")
		},
	})
	e.handle(testutil.AutocompleteInteraction(owner, "ac", "q", "x", nil))

	last := e.transport.Last(t)
	if last.Response == nil || last.Response.Type != discordgo.InteractionApplicationCommandAutocompleteResult {
		t.Fatalf("expected autocomplete result, got %+v", last)
	}
	if n := len(last.Response.Data.Choices); n != 0 {
		t.Errorf("expected no choices, got %d", n)
	}
}

func TestAutocompleteTruncates(t *testing.T) {
	e := newEnv(t)
	e.router.Register(&Command{
		Name: "many",
		Autocomplete: func(ctx context.Context, req *Request) ([]*discordgo.ApplicationCommandOptionChoice, error) {
			var out []*discordgo.ApplicationCommandOptionChoice
			for i := 0; i < 40; i++ {
				out = append(out, &discordgo.ApplicationCommandOptionChoice{Name: fmt.Sprint(i), Value: fmt.Sprint(i)})
			}
			return out, nil
		},
	})
	e.handle(testutil.AutocompleteInteraction(owner, "many", "q", "", nil))

	if n := len(e.transport.Last(t).Response.Data.Choices); n != maxChoices {
		t.Errorf("choices = %d, want %d", n, maxChoices)
	}
}

func TestServeHandlesUntilClosed(t *testing.T) {
	e := newEnv(t)
	var mu sync.Mutex
	seen := 0
	e.router.Register(&Command{
		Name: "ping",
		Run: func(ctx context.Context, req *Request) error {
			mu.Lock()
			seen++
			mu.Unlock()
			return req.Response.SendFirst(ctx, responseText("pong"), false)
		},
	})

	in := make(chan *models.Interaction)
	done := make(chan error, 1)
	go func() { done <- e.router.Serve(context.Background(), in) }()
	for i := 0; i < 3; i++ {
		in <- testutil.CommandInteraction(owner, "ping", nil)
	}
	close(in)
	if err := <-done; err != nil {
		t.Fatalf("Serve returned %v", err)
	}
	if seen != 3 {
		t.Errorf("handled %d interactions, want 3", seen)
	}
}
