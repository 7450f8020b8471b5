package commands

import (
	"context"

	"github.com/BTreeMap/RoleBridge/internal/binds"
	"github.com/BTreeMap/RoleBridge/internal/models"
	"github.com/BTreeMap/RoleBridge/internal/prompt"
	"github.com/BTreeMap/RoleBridge/internal/roblox"
)

// RobloxLookup looks up the Roblox entities binds refer to. *roblox.Client
// implements it.
type RobloxLookup interface {
	GetGroup(ctx context.Context, groupID int64) (*roblox.Group, error)
	GetEntity(ctx context.Context, t models.BindType, id int64) (*roblox.Entity, error)
}

// RoleManager lists and creates guild roles.
type RoleManager interface {
	// CreateRole creates a role and returns its ID.
	CreateRole(ctx context.Context, guildID, name, reason string) (string, error)
	RoleNames(ctx context.Context, guildID string) ([]string, error)
}

var _ RobloxLookup = (*roblox.Client)(nil)

// Deps are the services the commands use.
type Deps struct {
	Engine *prompt.Engine
	Binds  *binds.Service
	Roblox RobloxLookup
	Roles  RoleManager
}

// Register adds every command, prompt and component handler to r.
func Register(r *Router, deps *Deps) {
	prompts := bindPrompts{
		group:      newGroupPrompt(deps),
		generic:    newGenericPrompt(deps),
		groupRoles: newGroupRolesPrompt(deps),
	}
	for _, def := range []*prompt.Definition{prompts.group, prompts.generic, prompts.groupRoles} {
		r.RegisterPrompt(def)
	}
	r.Register(bindCommand(deps, prompts))
	r.Register(viewBindsCommand(deps))
	r.RegisterComponent(viewBindsCommandName, paginatorName, viewBindsPage(deps))
	r.Register(unbindCommand(deps))
}
