package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/BTreeMap/RoleBridge/internal/binds"
	"github.com/BTreeMap/RoleBridge/internal/customid"
	"github.com/BTreeMap/RoleBridge/internal/models"
	"github.com/BTreeMap/RoleBridge/internal/prompt"
	"github.com/BTreeMap/RoleBridge/internal/roblox"
	"github.com/BTreeMap/RoleBridge/internal/session"
	"github.com/bwmarrin/discordgo"
)

const (
	bindCommandName = "bind"
	groupPromptName = "GroupPrompt"

	// MaxPendingBinds caps the unsaved binds one group prompt can hold.
	MaxPendingBinds = 5

	pageCurrentBinds  = "current_binds"
	pageCreateBind    = "create_bind"
	pageRankAndRole   = "bind_rank_and_role"
	pageRange         = "bind_range"
	pageRole          = "bind_role"
	pageRemoveUnsaved = "remove_unsaved_bind"

	// Component IDs double as session field names for what they submit.
	fieldPending      = "pending_binds"
	fieldGroupID      = "group_id"
	fieldGroupName    = "group_name"
	fieldCriteria     = "criteria_select"
	fieldDiscordRole  = "discord_role"
	fieldGroupRank    = "group_rank"
	fieldUnbindMenu   = "unbind_menu"
	fieldNewRole      = "new_role"
	fieldModalRoleset = "modal_roleset"

	buttonNewBind    = "new_bind"
	buttonPublish    = "publish"
	buttonDeleteBind = "delete_bind"
	buttonReturn     = "return"

	inputRoleName = "role_name"
	inputRank     = "rank_input"
	inputMinRank  = "min_rank_input"
	inputMaxRank  = "max_rank_input"

	createRoleLabel      = "Create a new role"
	useExistingRoleLabel = "Use an existing role"
	newRoleReason        = "Creating new role from /bind command input."

	bindAddedMessage = "Bind added to your in-progress workflow. Click `Publish` to save your changes."
	publishedMessage = "Your new binds have been saved to your server."
)

var groupSchema = customid.NewSchema(customid.Field{Name: fieldGroupID, Kind: customid.KindInt})

type groupPrompt struct {
	deps *Deps
}

func newGroupPrompt(deps *Deps) *prompt.Definition {
	g := &groupPrompt{deps: deps}
	return prompt.NewDefinition(bindCommandName, groupPromptName, groupSchema, prompt.KeepData()).
		Programmatic(pageCurrentBinds, g.currentBinds).
		Static(pageCreateBind, createBindContent, g.createBind).
		Programmatic(pageRankAndRole, g.bindPage(bindRank)).
		Programmatic(pageRange, g.bindPage(bindRange)).
		Programmatic(pageRole, g.bindPage(bindRole)).
		Programmatic(pageRemoveUnsaved, g.removeUnsaved)
}

// groupState is the session record of a group prompt, decoded.
type groupState struct {
	groupID       int64
	storedGroupID int64
	guildID       string
	groupName     string
	pending       []models.GuildBind
	criteria      string
	roles         []string
	ranks         []string
}

func (s *groupState) footer() string {
	if s.groupName != "" {
		return "Group: " + s.groupName
	}
	return fmt.Sprintf("Group: %d", s.groupID)
}

// pendingRoleName returns the role name typed into the new role modal, if
// that is the current role choice.
func (s *groupState) pendingRoleName() string {
	if len(s.roles) == 0 || isSnowflake(s.roles[0]) {
		return ""
	}
	return s.roles[0]
}

func (g *groupPrompt) load(ctx context.Context, p *prompt.Prompt) (*groupState, error) {
	groupID, err := p.FieldInt(fieldGroupID)
	if err != nil {
		return nil, err
	}
	data, err := p.Data(ctx)
	if err != nil {
		return nil, err
	}
	st := &groupState{groupID: groupID, guildID: p.Interaction().GuildID}

	fields := map[string]interface{}{
		fieldPending:   &st.pending,
		fieldGroupID:   &st.storedGroupID,
		fieldGroupName: &st.groupName,
	}
	for name, dst := range fields {
		if _, err := data.Get(name, dst); err != nil {
			return nil, fmt.Errorf("bad %s in session: %w", name, err)
		}
	}
	values := map[string]*session.ComponentValues{}
	for _, name := range []string{fieldCriteria, fieldDiscordRole, fieldGroupRank} {
		var cv session.ComponentValues
		if _, err := data.Get(name, &cv); err != nil {
			return nil, fmt.Errorf("bad %s in session: %w", name, err)
		}
		values[name] = &cv
	}
	st.criteria = values[fieldCriteria].First()
	st.roles = values[fieldDiscordRole].Values
	st.ranks = values[fieldGroupRank].Values
	return st, nil
}

// currentBinds is the home page: saved binds of the group, unsaved binds, and
// the buttons to add, publish or remove them.
func (g *groupPrompt) currentBinds(ctx context.Context, p *prompt.Prompt, inv prompt.Invocation, emit prompt.Emit) error {
	switch inv.FiredComponent {
	case buttonNewBind:
		return p.Next()
	case buttonPublish:
		return g.publish(ctx, p, emit)
	case buttonDeleteBind:
		return p.GoTo(pageRemoveUnsaved)
	}

	st, err := g.load(ctx, p)
	if err != nil {
		return err
	}
	if st.storedGroupID != 0 && st.storedGroupID != st.groupID {
		// Unsaved binds belong to the group they were made for.
		slog.Debug("groupPrompt.currentBinds: discarding session of another group", "user", p.UserID(), "old_group", st.storedGroupID, "group", st.groupID)
		if err := p.Clear(ctx); err != nil {
			return err
		}
		st.pending = nil
		st.groupName = ""
	}
	if err := p.Clear(ctx, fieldDiscordRole, fieldGroupRank, fieldUnbindMenu, fieldCriteria, fieldNewRole, fieldModalRoleset); err != nil {
		return err
	}

	if st.groupName == "" {
		group, err := g.deps.Roblox.GetGroup(ctx, st.groupID)
		if err != nil {
			slog.Warn("groupPrompt.currentBinds: group lookup failed", "group_id", st.groupID, "error", err)
		} else {
			st.groupName = group.Name
		}
	}
	save := session.Data{}
	if err := save.Put(fieldGroupID, st.groupID); err != nil {
		return err
	}
	if err := save.Put(fieldGroupName, st.groupName); err != nil {
		return err
	}
	if err := p.Save(ctx, save); err != nil {
		return err
	}

	desc, err := g.deps.Binds.Describe(ctx, st.guildID, binds.Filter{Type: models.BindTypeGroup, ID: st.groupID})
	if err != nil {
		return err
	}
	return emit(prompt.Final(overviewContent(desc, st)))
}

func overviewContent(desc string, st *groupState) prompt.PageContent {
	title := "New Group Bind"
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
		Description: "Here are the current binds for your server for that Group. Use the buttons below to make a new bind!",
		URL:         (&roblox.Group{ID: st.groupID}).URL(),
		Fields:      fields,
		Footer:      st.footer(),
		Components:  overviewButtons(len(st.pending)),
	}
}

func overviewButtons(pending int) []prompt.Component {
	return []prompt.Component{
		&prompt.Button{ComponentID: buttonNewBind, Label: "Create a new bind", Disabled: pending >= MaxPendingBinds},
		&prompt.Button{ComponentID: buttonPublish, Label: "Publish", Style: discordgo.SuccessButton, Disabled: pending == 0},
		&prompt.Button{ComponentID: buttonDeleteBind, Label: "Remove an unsaved bind", Style: discordgo.DangerButton, Disabled: pending == 0},
	}
}

// publish saves every unsaved bind, creating the roles that were only named,
// then shows the saved state and ends the prompt.
func (g *groupPrompt) publish(ctx context.Context, p *prompt.Prompt, emit prompt.Emit) error {
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
	slog.Info("groupPrompt.publish: binds published", "guild_id", st.guildID, "group_id", st.groupID, "created", len(created), "pending", len(st.pending))

	desc, err := g.deps.Binds.Describe(ctx, st.guildID, binds.Filter{Type: models.BindTypeGroup, ID: st.groupID})
	if err != nil {
		return err
	}
	createdValue := strings.Join(created, "\n")
	if createdValue == "" {
		createdValue = "These binds already existed, nothing changed."
	}
	if err := emit(prompt.Final(prompt.PageContent{
		Title:       "New group binds saved.",
		Description: "The binds on this menu were saved to your server. You can edit your binds at any time by running `/bind` again.",
		Fields: append(
			bindFields("Current binds", desc, true),
			bindFields("Created Binds", createdValue, true)...),
		Footer:     st.footer(),
		Components: overviewButtons(len(st.pending)),
	})); err != nil {
		return err
	}
	if err := p.EditComponents(ctx, map[string]prompt.ComponentPatch{
		buttonNewBind:    prompt.ButtonPatch{Disabled: prompt.Bool(true)},
		buttonPublish:    prompt.ButtonPatch{Disabled: prompt.Bool(true)},
		buttonDeleteBind: prompt.ButtonPatch{Disabled: prompt.Bool(true)},
	}); err != nil {
		return err
	}
	if err := emit(prompt.Ephemeral(publishedMessage)); err != nil {
		return err
	}
	return p.Finish(ctx, false)
}

var createBindContent = prompt.PageContent{
	Title:       "Make a Group Bind",
	Description: "This menu will guide you through the process of binding a group to your server.\nPlease choose the criteria for this bind.",
	Components: []prompt.Component{
		&prompt.TextSelect{
			ComponentID: fieldCriteria,
			Placeholder: "Select a condition",
			MinValues:   0,
			MaxValues:   1,
			Options: []prompt.SelectOption{
				{Label: "Rank must match exactly...", Value: "exact_match"},
				{Label: "Rank must be greater than or equal to...", Value: "gte"},
				{Label: "Rank must be less than or equal to...", Value: "lte"},
				{Label: "Rank must be between two rolesets...", Value: "range"},
				{Label: "User MUST be a member of this group", Value: "in_group"},
				{Label: "User must NOT be a member of this group", Value: "not_in_group"},
			},
		},
	},
}

func (g *groupPrompt) createBind(_ context.Context, p *prompt.Prompt, inv prompt.Invocation, _ prompt.Emit) error {
	if !inv.Fired(fieldCriteria) || len(inv.Values) == 0 {
		return nil
	}
	switch inv.Values[0] {
	case "exact_match", "gte", "lte":
		return p.GoTo(pageRankAndRole)
	case "range":
		return p.GoTo(pageRange)
	case "in_group", "not_in_group":
		return p.GoTo(pageRole)
	default:
		return fmt.Errorf("unknown bind criteria %q", inv.Values[0])
	}
}

// bindKind selects what a bind page asks for besides the Discord role.
type bindKind int

const (
	bindRank  bindKind = iota // one rank, compared per criteria_select
	bindRange                 // two ranks
	bindRole                  // no rank: guest or everyone
)

func (k bindKind) ranksNeeded() int {
	switch k {
	case bindRank:
		return 1
	case bindRange:
		return 2
	default:
		return 0
	}
}

type pageText struct {
	title       string
	description string
	modalTitle  string
}

const roleHint = "No existing Discord role? No problem, just click `Create new role`."

func (k bindKind) text(criteria string) pageText {
	switch {
	case k == bindRange:
		return pageText{
			title:       "Bind Group Range",
			description: "Please select two group ranks and a corresponding Discord role to give. " + roleHint,
			modalTitle:  "Input group rank range",
		}
	case k == bindRole:
		stem := "group members"
		if criteria == "not_in_group" {
			stem = "users not in the group"
		}
		return pageText{
			title:       "Bind Discord Role",
			description: fmt.Sprintf("Please select a Discord role to give to %s. %s", stem, roleHint),
		}
	case criteria == "gte":
		return pageText{
			title:       "Bind Group Rank And Above",
			description: "Please choose the **lowest rank** for this bind. Everyone with this rank **and above** will be given this role.",
			modalTitle:  "Select a minimum group rank.",
		}
	case criteria == "lte":
		return pageText{
			title: "Bind Group Rank And Below",
			description: "Please choose the **highest** group rank to give for this bind along with a corresponding Discord role to give. " +
				"Everyone with this group rank **and below** will receive that role. " + roleHint,
			modalTitle: "Select a maximum group rank.",
		}
	default:
		return pageText{
			title:       "Bind Group Rank",
			description: "Please select one group rank and a corresponding Discord role to give. " + roleHint,
			modalTitle:  "Select a group rank.",
		}
	}
}

// bindPage builds the handler of a page collecting a Discord role and, for
// rank binds, the ranks. Once both are known the bind joins the unsaved list
// and the prompt returns to current_binds.
func (g *groupPrompt) bindPage(kind bindKind) prompt.PageFunc {
	return func(ctx context.Context, p *prompt.Prompt, inv prompt.Invocation, emit prompt.Emit) error {
		st, err := g.load(ctx, p)
		if err != nil {
			return err
		}
		if st.criteria == "" {
			// The criteria choice expired with a cleared session; ask again.
			return p.GoTo(pageCreateBind)
		}
		var group *roblox.Group
		if kind != bindRole {
			group, err = g.deps.Roblox.GetGroup(ctx, st.groupID)
			if err != nil {
				return fmt.Errorf("failed to fetch group %d: %w", st.groupID, err)
			}
		}
		text := kind.text(st.criteria)
		content := bindContent(kind, text, group, st)
		submitted := inv.Interaction.Kind == models.InteractionModalSubmit

		switch {
		case inv.FiredComponent == "":
			return emit(prompt.Final(content))

		case inv.Fired(fieldModalRoleset) && group == nil:
			// Role-only binds have no rank input.
			p.Ack()
			return nil

		case inv.Fired(fieldNewRole) && !submitted:
			if kind != bindRole && st.pendingRoleName() != "" {
				// Second press switches back to picking an existing role.
				if err := p.Clear(ctx, fieldDiscordRole); err != nil {
					return err
				}
				st.roles = nil
				return emit(prompt.Final(bindContent(kind, text, group, st)))
			}
			return emit(newRoleModal(p))

		case inv.Fired(fieldNewRole):
			name := strings.TrimSpace(inv.ModalValues[inputRoleName])
			if name == "" {
				p.Ack()
				return emit(prompt.Ephemeral("A role name is required."))
			}
			st.roles = []string{name}
			if err := p.SaveField(ctx, fieldDiscordRole, session.ComponentValues{Values: st.roles}); err != nil {
				return err
			}
			if len(st.ranks) < kind.ranksNeeded() {
				if err := emit(prompt.Final(content)); err != nil {
					return err
				}
				if err := p.EditComponents(ctx, map[string]prompt.ComponentPatch{
					fieldDiscordRole: prompt.SelectPatch{Disabled: prompt.Bool(true)},
					fieldNewRole:     prompt.ButtonPatch{Label: prompt.Str(useExistingRoleLabel)},
				}); err != nil {
					return err
				}
				return emit(prompt.Ephemeral(fmt.Sprintf("The Discord role name `%s` has been stored for this bind.", name)))
			}
			return g.addPending(ctx, p, emit, kind, st)

		case inv.Fired(fieldModalRoleset) && !submitted:
			inputs := []*prompt.TextInput{{ComponentID: inputRank, Label: "Rank ID Input", Placeholder: "Type the name or ID of the rank for this bind.", Required: true}}
			if kind == bindRange {
				inputs = []*prompt.TextInput{
					{ComponentID: inputMinRank, Label: "Minimum Rank Input", Placeholder: "Type the name or ID of the rank for this bind.", Required: true},
					{ComponentID: inputMaxRank, Label: "Maximum Rank Input", Placeholder: "Type the name or ID of the rank for this bind.", Required: true},
				}
			}
			return emit(p.Modal(fieldModalRoleset, text.modalTitle, inputs...))

		case inv.Fired(fieldModalRoleset):
			ranks, problem := parseRankInputs(kind, group, inv.ModalValues)
			if problem != "" {
				p.Ack()
				return emit(prompt.Ephemeral(problem))
			}
			st.ranks = ranks
			if err := p.SaveField(ctx, fieldGroupRank, session.ComponentValues{Values: ranks}); err != nil {
				return err
			}
			if len(st.roles) == 0 {
				p.Ack()
				msg := fmt.Sprintf("The rank ID `%s` has been stored for this bind.", ranks[0])
				if kind == bindRange {
					msg = fmt.Sprintf("The rank IDs `%s` and `%s` have been stored for this bind.", ranks[0], ranks[1])
				}
				return emit(prompt.Ephemeral(msg))
			}
			return g.addPending(ctx, p, emit, kind, st)

		case inv.Fired(fieldDiscordRole), inv.Fired(fieldGroupRank):
			if err := emit(prompt.Defer(false)); err != nil {
				return err
			}
			if len(st.roles) > 0 && len(st.ranks) >= kind.ranksNeeded() {
				return g.addPending(ctx, p, emit, kind, st)
			}
			// The menus keep their selection client side; nothing to redraw.
			p.Ack()
		}
		return nil
	}
}

func bindContent(kind bindKind, text pageText, group *roblox.Group, st *groupState) prompt.PageContent {
	roleName := st.pendingRoleName()
	roleSelect := &prompt.RoleSelect{
		ComponentID: fieldDiscordRole,
		Placeholder: "Choose a Discord role",
		MinValues:   1,
		MaxValues:   5,
		Disabled:    roleName != "" && kind != bindRole,
	}
	newRole := &prompt.Button{ComponentID: fieldNewRole, Label: createRoleLabel}
	if roleSelect.Disabled {
		newRole.Label = useExistingRoleLabel
	}

	components := []prompt.Component{roleSelect}
	if kind != bindRole {
		if menu := rankSelect(group, kind); menu != nil {
			components = append(components, menu, newRole)
		} else {
			label := "Select a group rank"
			if kind == bindRange {
				label = "Select group ranks"
			}
			components = append(components, newRole, &prompt.Button{ComponentID: fieldModalRoleset, Label: label})
		}
	} else {
		components = append(components, newRole)
	}
	return prompt.PageContent{
		Title:       text.title,
		Description: text.description,
		Footer:      st.footer(),
		Components:  components,
	}
}

// rankSelect lists the group's member ranks, highest first. The guest rank is
// never offered. Groups with more ranks than a menu can hold get nil and pick
// ranks through a modal instead.
func rankSelect(group *roblox.Group, kind bindKind) *prompt.TextSelect {
	var options []prompt.SelectOption
	for _, r := range group.Rolesets {
		if r.Rank == 0 {
			continue
		}
		options = append(options, prompt.SelectOption{Label: clip(r.String(), maxOptionLabel), Value: strconv.Itoa(r.Rank)})
	}
	if len(options) > prompt.MaxSelectOptions || len(options) < kind.ranksNeeded() {
		return nil
	}
	for i, j := 0, len(options)-1; i < j; i, j = i+1, j-1 {
		options[i], options[j] = options[j], options[i]
	}
	n := kind.ranksNeeded()
	min := 0
	if kind == bindRange {
		min = n
	}
	return &prompt.TextSelect{
		ComponentID: fieldGroupRank,
		Placeholder: "Choose a group rank",
		MinValues:   min,
		MaxValues:   n,
		Options:     options,
	}
}

// parseRankInputs resolves modal input to ranks. A non-empty problem is the
// message to show the user.
func parseRankInputs(kind bindKind, group *roblox.Group, values map[string]string) ([]string, string) {
	if kind != bindRange {
		rank, ok := group.MatchRank(values[inputRank])
		if !ok {
			return nil, "That ID does not match a group rank in your roblox group! Please try again."
		}
		return []string{strconv.Itoa(rank)}, ""
	}
	min, okMin := group.MatchRank(values[inputMinRank])
	max, okMax := group.MatchRank(values[inputMaxRank])
	if !okMin || !okMax {
		return nil, "One of the given IDs does not match a group rank in your roblox group! Please try again."
	}
	if min == max {
		return nil, "Those two group ranks are the same! Please make sure you are inputting two different group ranks."
	}
	return []string{strconv.Itoa(min), strconv.Itoa(max)}, ""
}

func (k bindKind) criteria(st *groupState) (models.GroupCriteria, error) {
	ranks := make([]int, 0, len(st.ranks))
	for _, r := range st.ranks {
		n, err := strconv.Atoi(r)
		if err != nil {
			return models.GroupCriteria{}, fmt.Errorf("bad rank %q: %w", r, err)
		}
		ranks = append(ranks, n)
	}
	switch k {
	case bindRange:
		if len(ranks) < 2 {
			return models.GroupCriteria{}, fmt.Errorf("range needs two ranks, got %d", len(ranks))
		}
		sort.Ints(ranks)
		return models.GroupCriteria{Min: models.IntPtr(ranks[0]), Max: models.IntPtr(ranks[len(ranks)-1])}, nil
	case bindRole:
		if st.criteria == "not_in_group" {
			return models.GroupCriteria{Guest: true}, nil
		}
		return models.GroupCriteria{Everyone: true}, nil
	}
	if len(ranks) == 0 {
		return models.GroupCriteria{}, errors.New("no rank chosen")
	}
	switch st.criteria {
	case "gte":
		// A negative roleset means this rank and above.
		return models.GroupCriteria{Roleset: models.IntPtr(-ranks[0])}, nil
	case "lte":
		return models.GroupCriteria{Min: models.IntPtr(1), Max: models.IntPtr(ranks[0])}, nil
	default:
		return models.GroupCriteria{Roleset: models.IntPtr(ranks[0])}, nil
	}
}

// addPending appends the bind described by st to the unsaved list and heads
// back to current_binds.
func (g *groupPrompt) addPending(ctx context.Context, p *prompt.Prompt, emit prompt.Emit, kind bindKind, st *groupState) error {
	crit, err := kind.criteria(st)
	if err != nil {
		return err
	}
	bind := models.GuildBind{
		Roles:       []string{},
		RemoveRoles: []string{},
		Criteria:    models.BindCriteria{Type: models.BindTypeGroup, ID: st.groupID, Group: &crit},
	}
	if name := st.pendingRoleName(); name != "" {
		bind.PendingNewRoles = []string{name}
	} else {
		bind.Roles = append(bind.Roles, st.roles...)
	}
	return stagePending(ctx, p, emit, st.pending, bind)
}

// stagePending appends bind to the unsaved binds of the session and heads
// back to current_binds, unless MaxPendingBinds are already staged.
func stagePending(ctx context.Context, p *prompt.Prompt, emit prompt.Emit, pending []models.GuildBind, bind models.GuildBind) error {
	if err := emit(prompt.Defer(false)); err != nil {
		return err
	}
	if len(pending) >= MaxPendingBinds {
		p.Ack()
		return emit(prompt.Ephemeral(fmt.Sprintf("You can only have %d unsaved binds at once. Publish or remove some first.", MaxPendingBinds)))
	}
	pending = append(pending, bind)
	if err := p.SaveField(ctx, fieldPending, pending); err != nil {
		return err
	}
	slog.Debug("stagePending: bind staged", "prompt", p.Definition().Name, "user", p.UserID(), "bind", bind.Criteria.Describe(), "pending", len(pending))
	if err := p.GoTo(pageCurrentBinds); err != nil {
		return err
	}
	return emit(prompt.Ephemeral(bindAddedMessage))
}

// saveBinds creates the roles that unsaved binds only name, then saves each
// bind. Binds that already exist unchanged are skipped. It returns the
// descriptions of the binds that were saved.
func saveBinds(ctx context.Context, deps *Deps, guildID string, pending []models.GuildBind) ([]string, error) {
	var created []string
	for _, b := range pending {
		for _, name := range b.PendingNewRoles {
			id, err := deps.Roles.CreateRole(ctx, guildID, name, newRoleReason)
			if err != nil {
				return created, fmt.Errorf("failed to create role %q: %w", name, err)
			}
			b.Roles = append(b.Roles, id)
		}
		b.PendingNewRoles = nil
		if b.Roles == nil {
			b.Roles = []string{}
		}
		if b.RemoveRoles == nil {
			b.RemoveRoles = []string{}
		}
		err := deps.Binds.CreateBind(ctx, guildID, b)
		if errors.Is(err, binds.ErrBindConflict) {
			slog.Info("saveBinds: bind already saved", "guild_id", guildID, "bind", b.Criteria.Describe())
			continue
		}
		if err != nil {
			return created, err
		}
		created = append(created, b.String())
	}
	return created, nil
}

func newRoleModal(p *prompt.Prompt) prompt.Emission {
	return p.Modal(fieldNewRole, "Create a discord role", &prompt.TextInput{
		ComponentID: inputRoleName,
		Label:       "New role name",
		Placeholder: "Type the name of the role to create on submission.",
		Required:    true,
		MaxLength:   100,
	})
}

func (g *groupPrompt) removeUnsaved(ctx context.Context, p *prompt.Prompt, inv prompt.Invocation, emit prompt.Emit) error {
	if inv.Fired(buttonReturn) {
		return p.GoTo(pageCurrentBinds)
	}
	st, err := g.load(ctx, p)
	if err != nil {
		return err
	}
	if !inv.Fired(fieldUnbindMenu) {
		return emit(prompt.Final(removeContent(st.pending)))
	}

	if err := emit(prompt.Defer(false)); err != nil {
		return err
	}
	var picked []int
	for _, v := range inv.Values {
		i, err := strconv.Atoi(v)
		if err == nil && i >= 0 && i < len(st.pending) {
			picked = append(picked, i)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(picked)))
	for n, i := range picked {
		if n > 0 && picked[n-1] == i {
			continue
		}
		st.pending = append(st.pending[:i], st.pending[i+1:]...)
	}
	if err := p.SaveField(ctx, fieldPending, st.pending); err != nil {
		return err
	}
	msg := "No changes have been made."
	if len(picked) > 0 {
		msg = "The binds you have selected have been removed."
	}
	if err := emit(prompt.Final(removeContent(st.pending))); err != nil {
		return err
	}
	return emit(prompt.Ephemeral(msg))
}

func removeContent(pending []models.GuildBind) prompt.PageContent {
	var lines []string
	var options []prompt.SelectOption
	for i, b := range pending {
		desc := strings.TrimPrefix(b.String(), "- ")
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, desc))
		options = append(options, prompt.SelectOption{
			Label: clip(fmt.Sprintf("%d: %s", i+1, b.Criteria.Describe()), maxOptionLabel),
			Value: strconv.Itoa(i),
		})
	}
	var components []prompt.Component
	if len(pending) > 0 {
		components = append(components, &prompt.TextSelect{
			ComponentID: fieldUnbindMenu,
			Placeholder: "Select which binds to remove here...",
			MinValues:   0,
			MaxValues:   len(pending),
			Options:     options,
		})
	}
	components = append(components, &prompt.Button{ComponentID: buttonReturn, Label: "Return", Style: discordgo.SecondaryButton})
	return prompt.PageContent{
		Title:       "Remove an unsaved bind.",
		Description: "Use the selection menu below to remove some of your unsaved binds.\n" + strings.Join(lines, "\n"),
		Components:  components,
	}
}

func describeBinds(list []models.GuildBind) string {
	lines := make([]string, 0, len(list))
	for _, b := range list {
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}

func isSnowflake(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

