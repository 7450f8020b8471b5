package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/RoleBridge/internal/binds"
	"github.com/BTreeMap/RoleBridge/internal/customid"
	"github.com/BTreeMap/RoleBridge/internal/models"
	"github.com/BTreeMap/RoleBridge/internal/prompt"
	"github.com/BTreeMap/RoleBridge/internal/session"
	"github.com/bwmarrin/discordgo"
)

const (
	genericPromptName = "GenericBindPrompt"

	fieldEntityID   = "entity_id"
	fieldEntityType = "entity_type"
	fieldEntityName = "entity_name"
)

var genericSchema = customid.NewSchema(
	customid.Field{Name: fieldEntityID, Kind: customid.KindInt},
	customid.Field{Name: fieldEntityType, Kind: customid.KindString},
)

// genericPrompt binds an asset, badge or gamepass: owning it grants the
// chosen roles.
type genericPrompt struct {
	deps *Deps
}

func newGenericPrompt(deps *Deps) *prompt.Definition {
	g := &genericPrompt{deps: deps}
	return prompt.NewDefinition(bindCommandName, genericPromptName, genericSchema, prompt.KeepData()).
		Programmatic(pageCurrentBinds, g.currentBinds).
		Programmatic(pageRole, g.bindRole)
}

type entityState struct {
	entityType models.BindType
	entityID   int64
	guildID    string
	name       string
	pending    []models.GuildBind
	roles      []string
	// stale is set when the session was left by a prompt for another entity.
	stale bool
}

func (s *entityState) title() string {
	t := string(s.entityType)
	return strings.ToUpper(t[:1]) + t[1:]
}

func (s *entityState) footer() string {
	if s.name != "" {
		return fmt.Sprintf("%s: %s (%d)", s.title(), s.name, s.entityID)
	}
	return fmt.Sprintf("%s: %d", s.title(), s.entityID)
}

func (g *genericPrompt) load(ctx context.Context, p *prompt.Prompt) (*entityState, error) {
	id, err := p.FieldInt(fieldEntityID)
	if err != nil {
		return nil, err
	}
	raw, _ := p.Field(fieldEntityType)
	t := models.BindType(raw)
	if !models.IsValidBindType(t) || t == models.BindTypeGroup {
		return nil, fmt.Errorf("unsupported entity type %q", raw)
	}
	data, err := p.Data(ctx)
	if err != nil {
		return nil, err
	}
	st := &entityState{entityType: t, entityID: id, guildID: p.Interaction().GuildID}

	var storedID int64
	var storedType string
	var role session.ComponentValues
	fields := map[string]interface{}{
		fieldEntityID:    &storedID,
		fieldEntityType:  &storedType,
		fieldEntityName:  &st.name,
		fieldPending:     &st.pending,
		fieldDiscordRole: &role,
	}
	for name, dst := range fields {
		if _, err := data.Get(name, dst); err != nil {
			return nil, fmt.Errorf("bad %s in session: %w", name, err)
		}
	}
	st.roles = role.Values
	st.stale = storedID != 0 && (storedID != id || storedType != raw)
	return st, nil
}

func (g *genericPrompt) currentBinds(ctx context.Context, p *prompt.Prompt, inv prompt.Invocation, emit prompt.Emit) error {
	switch inv.FiredComponent {
	case buttonNewBind:
		return p.Next()
	case buttonPublish:
		return g.publish(ctx, p, emit)
	}

	st, err := g.load(ctx, p)
	if err != nil {
		return err
	}
	if st.stale {
		slog.Debug("genericPrompt.currentBinds: discarding session of another entity", "user", p.UserID(), "type", st.entityType, "id", st.entityID)
		if err := p.Clear(ctx); err != nil {
			return err
		}
		st.pending = nil
		st.name = ""
	}
	if err := p.Clear(ctx, fieldDiscordRole, fieldNewRole); err != nil {
		return err
	}
	if st.name == "" {
		entity, err := g.deps.Roblox.GetEntity(ctx, st.entityType, st.entityID)
		if err != nil {
			slog.Warn("genericPrompt.currentBinds: entity lookup failed", "type", st.entityType, "id", st.entityID, "error", err)
		} else {
			st.name = entity.Name
		}
	}
	save := session.Data{}
	for name, v := range map[string]interface{}{
		fieldEntityID:   st.entityID,
		fieldEntityType: string(st.entityType),
		fieldEntityName: st.name,
	} {
		if err := save.Put(name, v); err != nil {
			return err
		}
	}
	if err := p.Save(ctx, save); err != nil {
		return err
	}

	desc, err := g.deps.Binds.Describe(ctx, st.guildID, binds.Filter{Type: st.entityType, ID: st.entityID})
	if err != nil {
		return err
	}
	return emit(prompt.Final(entityOverview(desc, st)))
}

func entityOverview(desc string, st *entityState) prompt.PageContent {
	title := "New " + st.title() + " Bind"
	if len(st.pending) > 0 {
		title = "[UNSAVED CHANGES] " + title
	}
	if desc == "" {
		desc = "No binds exist. Create one below!"
	}
	fields := bindFields("Current binds", desc, true)
	if len(st.pending) > 0 {
		fields = append(fields, bindFields("Unsaved Binds", describeBinds(st.pending), true)...)
	}
	return prompt.PageContent{
		Title:       title,
		Description: "Here are the current binds for your server. Click the button below to make a new bind.",
		Fields:      fields,
		Footer:      st.footer(),
		Components:  entityButtons(len(st.pending)),
	}
}

func entityButtons(pending int) []prompt.Component {
	return []prompt.Component{
		&prompt.Button{ComponentID: buttonNewBind, Label: "Create a new bind", Disabled: pending >= MaxPendingBinds},
		&prompt.Button{ComponentID: buttonPublish, Label: "Publish", Style: discordgo.SuccessButton, Disabled: pending == 0},
	}
}

func (g *genericPrompt) publish(ctx context.Context, p *prompt.Prompt, emit prompt.Emit) error {
	if err := emit(prompt.Defer(false)); err != nil {
		return err
	}
	st, err := g.load(ctx, p)
	if err != nil {
		return err
	}
	if len(st.pending) == 0 {
		p.Ack()
		return emit(prompt.Ephemeral("There are no unsaved binds to publish."))
	}
	created, err := saveBinds(ctx, g.deps, st.guildID, st.pending)
	if err != nil {
		return err
	}
	slog.Info("genericPrompt.publish: binds published", "guild_id", st.guildID, "type", st.entityType, "id", st.entityID, "created", len(created), "pending", len(st.pending))

	desc, err := g.deps.Binds.Describe(ctx, st.guildID, binds.Filter{Type: st.entityType, ID: st.entityID})
	if err != nil {
		return err
	}
	createdValue := strings.Join(created, "\n")
	if createdValue == "" {
		createdValue = "These binds already existed, nothing changed."
	}
	content := prompt.PageContent{
		Title:       fmt.Sprintf("New %s binds saved.", st.entityType),
		Description: "The binds on this menu were saved to your server. You can edit your binds at any time by running `/bind` again.",
		Fields: append(
			bindFields("Current binds", desc, true),
			bindFields("Created Binds", createdValue, true)...),
		Footer:     st.footer(),
		Components: entityButtons(MaxPendingBinds),
	}
	if err := emit(prompt.Final(content)); err != nil {
		return err
	}
	if err := emit(prompt.Ephemeral(publishedMessage)); err != nil {
		return err
	}
	return p.Finish(ctx, true)
}

// bindRole asks for the roles owners of the entity receive. Picking roles, or
// naming a role to create, stages the bind.
func (g *genericPrompt) bindRole(ctx context.Context, p *prompt.Prompt, inv prompt.Invocation, emit prompt.Emit) error {
	st, err := g.load(ctx, p)
	if err != nil {
		return err
	}
	submitted := inv.Interaction.Kind == models.InteractionModalSubmit

	switch {
	case inv.FiredComponent == "":
		return emit(prompt.Final(prompt.PageContent{
			Title:       "Bind Discord Role",
			Description: fmt.Sprintf("Please select a Discord role to give to users who own this %s. %s", st.entityType, roleHint),
			Footer:      st.footer(),
			Components: []prompt.Component{
				&prompt.RoleSelect{ComponentID: fieldDiscordRole, Placeholder: "Choose a Discord role", MinValues: 1, MaxValues: 5},
				&prompt.Button{ComponentID: fieldNewRole, Label: createRoleLabel},
			},
		}))

	case inv.Fired(fieldNewRole) && !submitted:
		return emit(newRoleModal(p))

	case inv.Fired(fieldNewRole):
		name := strings.TrimSpace(inv.ModalValues[inputRoleName])
		if name == "" {
			p.Ack()
			return emit(prompt.Ephemeral("A role name is required."))
		}
		return stagePending(ctx, p, emit, st.pending, g.bind(st, nil, []string{name}))

	case inv.Fired(fieldDiscordRole):
		if len(st.roles) == 0 {
			p.Ack()
			return nil
		}
		return stagePending(ctx, p, emit, st.pending, g.bind(st, st.roles, nil))
	}
	return nil
}

func (g *genericPrompt) bind(st *entityState, roles, newRoles []string) models.GuildBind {
	b := models.GuildBind{
		Roles:       append([]string{}, roles...),
		RemoveRoles: []string{},
		Criteria:    models.BindCriteria{Type: st.entityType, ID: st.entityID},
	}
	if len(newRoles) > 0 {
		b.PendingNewRoles = newRoles
	}
	return b
}
