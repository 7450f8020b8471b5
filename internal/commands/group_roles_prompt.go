package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/BTreeMap/RoleBridge/internal/binds"
	"github.com/BTreeMap/RoleBridge/internal/models"
	"github.com/BTreeMap/RoleBridge/internal/prompt"
	"github.com/BTreeMap/RoleBridge/internal/roblox"
	"github.com/bwmarrin/discordgo"
)

const (
	groupRolesPromptName = "GroupRolesConfirmationPrompt"
	pageRoleConfirmation = "role_create_confirmation"

	buttonYes    = "yes"
	buttonNo     = "no"
	buttonCancel = "cancel"

	groupRolesReason = "Creating roles for the group's rolesets from /bind command input."
	noChangesMessage = "No changes were made."
)

var roleConfirmationContent = prompt.PageContent{
	Title: "Role Creation Confirmation",
	Description: "Would you like RoleBridge to create Discord roles for each of your group's roles?\n\n" +
		"**Please note, even if you choose 'no', the bind will still be created.**",
	Components: []prompt.Component{
		&prompt.Button{ComponentID: buttonYes, Label: "Yes", Style: discordgo.SuccessButton},
		&prompt.Button{ComponentID: buttonNo, Label: "No", Style: discordgo.DangerButton},
		&prompt.Button{ComponentID: buttonCancel, Label: "Cancel", Style: discordgo.SecondaryButton},
	},
}

// groupRolesPrompt binds a whole group: every member gets the role named after
// their roleset. It optionally creates the roles that are missing first.
type groupRolesPrompt struct {
	deps *Deps
}

func newGroupRolesPrompt(deps *Deps) *prompt.Definition {
	g := &groupRolesPrompt{deps: deps}
	return prompt.NewDefinition(bindCommandName, groupRolesPromptName, groupSchema).
		Static(pageRoleConfirmation, roleConfirmationContent, g.confirm)
}

func (g *groupRolesPrompt) confirm(ctx context.Context, p *prompt.Prompt, inv prompt.Invocation, emit prompt.Emit) error {
	if !inv.Fired(buttonYes) && !inv.Fired(buttonNo) && !inv.Fired(buttonCancel) {
		return nil
	}
	if err := emit(prompt.Defer(false)); err != nil {
		return err
	}
	if inv.Fired(buttonCancel) {
		return g.finish(ctx, p, emit, noChangesMessage)
	}

	groupID, err := p.FieldInt(fieldGroupID)
	if err != nil {
		return err
	}
	guildID := p.Interaction().GuildID
	group, err := g.deps.Roblox.GetGroup(ctx, groupID)
	if err != nil {
		if roblox.IsDown(err) {
			p.Ack()
			return emit(prompt.Ephemeral(robloxDownMessage))
		}
		return fmt.Errorf("failed to fetch group %d: %w", groupID, err)
	}

	if inv.Fired(buttonYes) {
		if err := g.createRolesetRoles(ctx, guildID, group); err != nil {
			return err
		}
	}

	link := fmt.Sprintf("[%s](<%s>)", group.Name, group.URL())
	err = g.deps.Binds.CreateBind(ctx, guildID, models.GuildBind{
		Roles:       []string{},
		RemoveRoles: []string{},
		Criteria:    models.BindCriteria{Type: models.BindTypeGroup, ID: group.ID},
	})
	if errors.Is(err, binds.ErrBindConflict) {
		return g.finish(ctx, p, emit, fmt.Sprintf("You already have a group binding for group %s. No changes were made.", link))
	}
	if err != nil {
		return err
	}
	slog.Info("groupRolesPrompt.confirm: entire group bound", "guild_id", guildID, "group_id", group.ID, "create_roles", inv.Fired(buttonYes))
	return g.finish(ctx, p, emit, fmt.Sprintf(
		"Your group binding for group %s has been saved. When people join your server, they will receive a Discord role that corresponds to their group rank.", link))
}

// createRolesetRoles creates a role for every member roleset, highest rank
// first, unless the guild already has a role of that name.
func (g *groupRolesPrompt) createRolesetRoles(ctx context.Context, guildID string, group *roblox.Group) error {
	existing, err := g.deps.Roles.RoleNames(ctx, guildID)
	if err != nil {
		return err
	}
	created := 0
	for i := len(group.Rolesets) - 1; i >= 0; i-- {
		r := group.Rolesets[i]
		if r.Rank == 0 || slices.Contains(existing, r.Name) {
			continue
		}
		if _, err := g.deps.Roles.CreateRole(ctx, guildID, r.Name, groupRolesReason); err != nil {
			return err
		}
		existing = append(existing, r.Name)
		created++
	}
	slog.Info("groupRolesPrompt.createRolesetRoles: roles created", "guild_id", guildID, "group_id", group.ID, "created", created)
	return nil
}

// finish shows message on the prompt and disables its buttons.
func (g *groupRolesPrompt) finish(ctx context.Context, p *prompt.Prompt, emit prompt.Emit, message string) error {
	content := roleConfirmationContent.Clone()
	content.Description = message
	if err := emit(prompt.Final(content)); err != nil {
		return err
	}
	return p.Finish(ctx, true)
}
