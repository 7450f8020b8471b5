package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/BTreeMap/RoleBridge/internal/binds"
	"github.com/BTreeMap/RoleBridge/internal/models"
	"github.com/BTreeMap/RoleBridge/internal/prompt"
	"github.com/BTreeMap/RoleBridge/internal/response"
	"github.com/BTreeMap/RoleBridge/internal/roblox"
	"github.com/bwmarrin/discordgo"
)

const (
	viewBindsCommandName = "viewbinds"
	unbindCommandName    = "unbind"

	optGroupID  = "group_id"
	optBindMode = "bind_mode"
	optCategory = "category"
	optID       = "id"

	bindModeEntireGroup   = "entire_group"
	bindModeSpecificRoles = "specific_roles"

	viewAllValue = "all"

	robloxDownMessage = "Roblox is currently unavailable. Please try again later."

	manageBindsPermission = discordgo.PermissionManageRoles | discordgo.PermissionManageServer

	embedColor = 0xdb2323
)

// bindPrompts are the prompts /bind starts.
type bindPrompts struct {
	group      *prompt.Definition
	generic    *prompt.Definition
	groupRoles *prompt.Definition
}

func bindCommand(deps *Deps, prompts bindPrompts) *Command {
	options := []*discordgo.ApplicationCommandOption{{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        string(models.BindTypeGroup),
		Description: "Bind a group and its rolesets to Discord roles",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        optGroupID,
				Description: "What is your group ID?",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        optBindMode,
				Description: "How should we merge your group with Discord?",
				Required:    true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "Bind all current and future group roles", Value: bindModeEntireGroup},
					{Name: "Choose specific group roles", Value: bindModeSpecificRoles},
				},
			},
		},
	}}
	for _, t := range entityTypes {
		options = append(options, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        string(t),
			Description: fmt.Sprintf("Bind a %s to Discord roles", t),
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        entityOption(t),
				Description: fmt.Sprintf("What is your %s ID?", t),
				Required:    true,
			}},
		})
	}

	return &Command{
		Name:        bindCommandName,
		Description: "Bind Discord roles to Roblox entities",
		Permissions: manageBindsPermission,
		Options:     options,
		Run: func(ctx context.Context, req *Request) error {
			switch t := models.BindType(req.Interaction.Subcommand); {
			case t == "" || t == models.BindTypeGroup:
				return bindGroup(ctx, deps, prompts, req)
			case slices.Contains(entityTypes, t):
				return bindEntity(ctx, deps, prompts.generic, req, t)
			default:
				return fmt.Errorf("unknown bind subcommand %q", t)
			}
		},
	}
}

// entityTypes are the bind types that are owned rather than joined.
var entityTypes = []models.BindType{models.BindTypeAsset, models.BindTypeBadge, models.BindTypeGamepass}

func entityOption(t models.BindType) string {
	return string(t) + "_id"
}

// entityID reads a positive ID option. When it is missing or invalid the user
// has been told and ok is false.
func entityID(ctx context.Context, req *Request, t models.BindType, option string) (id int64, ok bool, err error) {
	opt, _ := req.Interaction.Option(option)
	id, valid := opt.Int()
	if valid && id > 0 {
		return id, true, nil
	}
	return 0, false, req.Response.SendFirst(ctx, response.Message{
		Content:   invalidIDMessage(t, opt.String()),
		Ephemeral: true,
	}, false)
}

func invalidIDMessage(t models.BindType, id string) string {
	return fmt.Sprintf("The %s ID (%s) you gave is either invalid or does not exist.", t, id)
}

// lookupProblem turns a failed Roblox lookup into the message to show, if
// the failure is one users should hear about.
func lookupProblem(err error, t models.BindType, id int64) (string, bool) {
	switch {
	case errors.Is(err, roblox.ErrNotFound):
		return invalidIDMessage(t, strconv.FormatInt(id, 10)), true
	case roblox.IsDown(err):
		return robloxDownMessage, true
	}
	return "", false
}

func bindGroup(ctx context.Context, deps *Deps, prompts bindPrompts, req *Request) error {
	ix := req.Interaction
	groupID, ok, err := entityID(ctx, req, models.BindTypeGroup, optGroupID)
	if !ok {
		return err
	}
	if err := req.Response.Defer(ctx, false); err != nil {
		return err
	}
	if _, err := deps.Roblox.GetGroup(ctx, groupID); err != nil {
		if msg, ok := lookupProblem(err, models.BindTypeGroup, groupID); ok {
			return req.Response.SendFirst(ctx, response.Message{Content: msg}, false)
		}
		return err
	}

	def := prompts.group
	mode, _ := ix.Option(optBindMode)
	if mode.String() == bindModeEntireGroup {
		def = prompts.groupRoles
	}
	slog.Info("bind: starting group prompt", "trace", req.Trace, "guild_id", ix.GuildID, "group_id", groupID, "prompt", def.Name, "user", ix.UserID)
	return deps.Engine.Start(ctx, def, req.Response, []string{strconv.FormatInt(groupID, 10)})
}

func bindEntity(ctx context.Context, deps *Deps, def *prompt.Definition, req *Request, t models.BindType) error {
	ix := req.Interaction
	id, ok, err := entityID(ctx, req, t, entityOption(t))
	if !ok {
		return err
	}
	if err := req.Response.Defer(ctx, false); err != nil {
		return err
	}
	if _, err := deps.Roblox.GetEntity(ctx, t, id); err != nil {
		if msg, ok := lookupProblem(err, t, id); ok {
			return req.Response.SendFirst(ctx, response.Message{Content: msg}, false)
		}
		return err
	}
	slog.Info("bind: starting entity prompt", "trace", req.Trace, "guild_id", ix.GuildID, "type", t, "id", id, "user", ix.UserID)
	return deps.Engine.Start(ctx, def, req.Response, []string{strconv.FormatInt(id, 10), string(t)})
}

func categoryOption(required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionString,
		Name:         optCategory,
		Description:  "Choose the category of binds",
		Required:     required,
		Autocomplete: true,
	}
}

func idOption(required bool, description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionString,
		Name:         optID,
		Description:  description,
		Required:     required,
		Autocomplete: true,
	}
}

func unbindCommand(deps *Deps) *Command {
	return &Command{
		Name:        unbindCommandName,
		Description: "Remove binds from your server",
		Permissions: manageBindsPermission,
		Options: []*discordgo.ApplicationCommandOption{
			categoryOption(true),
			idOption(true, "Select which ID you want to remove the binds of"),
		},
		Run: func(ctx context.Context, req *Request) error {
			ix := req.Interaction
			f, problem := bindFilter(ix)
			if problem != "" {
				return req.Response.SendFirst(ctx, response.Message{Content: problem, Ephemeral: true}, false)
			}
			if f.Type == "" || f.ID == 0 {
				return req.Response.SendFirst(ctx, response.Message{
					Content:   "Please choose both a category and an ID to remove.",
					Ephemeral: true,
				}, false)
			}
			n, err := deps.Binds.DeleteBinds(ctx, ix.GuildID, f)
			if err != nil {
				return err
			}
			msg := fmt.Sprintf("No %s binds exist for the ID `%d`.", f.Type, f.ID)
			if n > 0 {
				msg = fmt.Sprintf("Removed %d %s bind(s) for the ID `%d`.", n, f.Type, f.ID)
				slog.Info("unbind: binds removed", "trace", req.Trace, "guild_id", ix.GuildID, "type", f.Type, "id", f.ID, "count", n)
			}
			return req.Response.SendFirst(ctx, response.Message{Content: msg, Ephemeral: true}, false)
		},
		Autocomplete: bindAutocomplete(deps, false),
	}
}

// bindFilter reads the category and id options. Empty options and the "all"
// id leave the filter open. A non-empty problem is shown to the user.
func bindFilter(ix *models.Interaction) (binds.Filter, string) {
	var f binds.Filter
	if opt, ok := ix.Option(optCategory); ok && opt.String() != "" {
		t := models.BindType(strings.ToLower(opt.String()))
		if !models.IsValidBindType(t) {
			return f, fmt.Sprintf("`%s` is not a bind category.", opt.String())
		}
		f.Type = t
	}
	if opt, ok := ix.Option(optID); ok && opt.String() != "" && opt.String() != viewAllValue {
		id, ok := opt.Int()
		if !ok {
			return f, fmt.Sprintf("`%s` is not a valid ID.", opt.String())
		}
		f.ID = id
	}
	return f, ""
}

func categoryTitle(t models.BindType) string {
	s := string(t)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:] + " binds"
}

// bindAutocomplete suggests the categories that have binds and, once a
// category is chosen, the IDs bound under it.
func bindAutocomplete(deps *Deps, offerAll bool) func(ctx context.Context, req *Request) ([]*discordgo.ApplicationCommandOptionChoice, error) {
	return func(ctx context.Context, req *Request) ([]*discordgo.ApplicationCommandOptionChoice, error) {
		ix := req.Interaction
		focused, ok := ix.FocusedOption()
		if !ok {
			return nil, nil
		}
		typed := strings.ToLower(strings.TrimSpace(focused.String()))

		switch focused.Name {
		case optCategory:
			cats, err := deps.Binds.Categories(ctx, ix.GuildID)
			if err != nil {
				return nil, err
			}
			var choices []*discordgo.ApplicationCommandOptionChoice
			for _, c := range cats {
				if typed != "" && !strings.HasPrefix(string(c), typed) {
					continue
				}
				choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: string(c), Value: string(c)})
			}
			return choices, nil

		case optID:
			var choices []*discordgo.ApplicationCommandOptionChoice
			if offerAll {
				choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: "View all your bindings", Value: viewAllValue})
			}
			cat, _ := ix.Option(optCategory)
			t := models.BindType(strings.ToLower(cat.String()))
			if !models.IsValidBindType(t) {
				return choices, nil
			}
			ids, err := deps.Binds.EntityIDs(ctx, ix.GuildID, t)
			if err != nil {
				return nil, err
			}
			for _, id := range ids {
				s := strconv.FormatInt(id, 10)
				if typed != "" && !strings.HasPrefix(s, typed) {
					continue
				}
				choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: s, Value: s})
				if len(choices) == maxChoices {
					break
				}
			}
			return choices, nil
		}
		return nil, nil
	}
}
