package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/BTreeMap/RoleBridge/internal/binds"
	"github.com/BTreeMap/RoleBridge/internal/models"
	"github.com/BTreeMap/RoleBridge/internal/prompt"
	"github.com/BTreeMap/RoleBridge/internal/response"
	"github.com/BTreeMap/RoleBridge/internal/roblox"
	"github.com/BTreeMap/RoleBridge/internal/session"
	"github.com/BTreeMap/RoleBridge/internal/testutil"
	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"
)

func responseText(s string) response.Message {
	return response.Message{Content: s}
}

// groupCustomID addresses a component of the group prompt for group 12345.
func groupCustomID(user int64, page int, component string) string {
	return fmt.Sprintf("bind:GroupPrompt:%d:%d:%s:12345", user, page, component)
}

func (e *env) startBind() {
	e.t.Helper()
	ix := testutil.CommandInteraction(owner, "bind", map[string]interface{}{optGroupID: float64(12345), optBindMode: bindModeSpecificRoles})
	ix.Subcommand = "group"
	e.handle(ix)
}

func (e *env) click(page int, component string, values ...string) {
	e.t.Helper()
	e.handle(testutil.ComponentInteraction(owner, groupCustomID(owner, page, component), values...))
}

func (e *env) submit(page int, component string, fields map[string]string) {
	e.t.Helper()
	e.handle(testutil.ModalInteraction(owner, groupCustomID(owner, page, component), fields))
}

func (e *env) sessionData() (session.Data, error) {
	return e.deps.Engine.Sessions().Load(context.Background(), session.Key{Command: "bind", Prompt: "GroupPrompt", UserID: owner}, false)
}

func (e *env) pending() []models.GuildBind {
	e.t.Helper()
	data, err := e.sessionData()
	if err != nil {
		e.t.Fatalf("Load failed: %v", err)
	}
	var out []models.GuildBind
	if _, err := data.Get(fieldPending, &out); err != nil {
		e.t.Fatalf("bad pending binds: %v", err)
	}
	return out
}

func lastEmbed(t *testing.T, calls []testutil.Call) *discordgo.MessageEmbed {
	t.Helper()
	for i := len(calls) - 1; i >= 0; i-- {
		if embeds := calls[i].Embeds(); len(embeds) > 0 {
			return embeds[0]
		}
	}
	t.Fatalf("no embed in %d calls", len(calls))
	return nil
}

func embedField(embed *discordgo.MessageEmbed, name string) (string, bool) {
	for _, f := range embed.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

func followups(calls []testutil.Call) []string {
	var out []string
	for _, c := range calls {
		if c.Method == "followup" || (c.Response != nil && c.Ephemeral()) {
			out = append(out, c.Content())
		}
	}
	return out
}

func TestBindStartsGroupPrompt(t *testing.T) {
	e := newEnv(t)
	e.startBind()

	calls := e.transport.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected defer and edit, got %d calls", len(calls))
	}
	if calls[0].Response.Type != discordgo.InteractionResponseDeferredChannelMessageWithSource {
		t.Errorf("first call type = %v, want deferred", calls[0].Response.Type)
	}
	embed := lastEmbed(t, calls)
	if embed.Title != "New Group Bind" {
		t.Errorf("title = %q", embed.Title)
	}
	if v, _ := embedField(embed, "Current binds"); v != "No binds exist. Create one below!" {
		t.Errorf("current binds = %q", v)
	}
	if embed.Footer == nil || embed.Footer.Text != "Group: Test Group" {
		t.Errorf("unexpected footer %+v", embed.Footer)
	}
}

func TestBindUnknownGroup(t *testing.T) {
	e := newEnv(t)
	ix := testutil.CommandInteraction(owner, "bind", map[string]interface{}{optGroupID: float64(777)})
	e.handle(ix)

	want := "The group ID (777) you gave is either invalid or does not exist."
	if got := e.transport.Last(t).Content(); got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

func TestGroupPromptRangeBind(t *testing.T) {
	e := newEnv(t)
	e.startBind()
	e.click(0, buttonNewBind)
	e.click(1, fieldCriteria, "range")

	embed := lastEmbed(t, e.transport.Calls())
	if embed.Title != "Bind Group Range" {
		t.Fatalf("title = %q, want Bind Group Range", embed.Title)
	}

	e.click(3, fieldGroupRank, "50", "10")
	if got := e.pending(); len(got) != 0 {
		t.Fatalf("bind staged before a role was chosen: %+v", got)
	}
	e.transport.Reset()
	e.click(3, fieldDiscordRole, "999")

	want := []models.GuildBind{{
		Roles:       []string{"999"},
		RemoveRoles: []string{},
		Criteria: models.BindCriteria{
			Type:  models.BindTypeGroup,
			ID:    12345,
			Group: &models.GroupCriteria{Min: models.IntPtr(10), Max: models.IntPtr(50)},
		},
	}}
	if diff := cmp.Diff(want, e.pending()); diff != "" {
		t.Errorf("pending binds mismatch (-want +got):\n%s", diff)
	}

	calls := e.transport.Calls()
	embed = lastEmbed(t, calls)
	if embed.Title != "[UNSAVED CHANGES] New Group Bind" {
		t.Errorf("title = %q", embed.Title)
	}
	if v, ok := embedField(embed, "Unsaved Binds"); !ok || v != "- Rank between 10 and 50 → <@&999>" {
		t.Errorf("unsaved binds = %q", v)
	}
	if got := followups(calls); len(got) != 1 || got[0] != bindAddedMessage {
		t.Errorf("followups = %q", got)
	}
	data, err := e.sessionData()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if data.Has(fieldGroupRank) || data.Has(fieldDiscordRole) {
		t.Errorf("selections survived the return to current_binds")
	}
}

func TestGroupPromptPublish(t *testing.T) {
	e := newEnv(t)
	e.startBind()
	e.click(0, buttonNewBind)
	e.click(1, fieldCriteria, "gte")
	e.click(2, fieldGroupRank, "10")
	e.click(2, fieldDiscordRole, "777")
	e.transport.Reset()

	e.click(0, buttonPublish)

	got, err := e.deps.Binds.GetBinds(context.Background(), "guild-1", binds.Filter{Type: models.BindTypeGroup, ID: 12345})
	if err != nil {
		t.Fatalf("GetBinds failed: %v", err)
	}
	if len(got) != 1 || *got[0].Criteria.Group.Roleset != -10 {
		t.Fatalf("unexpected saved binds %+v", got)
	}
	calls := e.transport.Calls()
	if embed := lastEmbed(t, calls); embed.Title != "New group binds saved." {
		t.Errorf("title = %q", embed.Title)
	}
	if msgs := followups(calls); len(msgs) != 1 || msgs[0] != publishedMessage {
		t.Errorf("followups = %q", msgs)
	}
	if _, err := e.sessionData(); err == nil {
		t.Errorf("session survived publish")
	}
}

func TestGroupPromptNewRole(t *testing.T) {
	e := newEnv(t)
	e.startBind()
	e.click(0, buttonNewBind)
	e.click(1, fieldCriteria, "in_group")
	e.transport.Reset()

	e.click(4, fieldNewRole)
	last := e.transport.Last(t)
	if last.Response == nil || last.Response.Type != discordgo.InteractionResponseModal {
		t.Fatalf("expected a modal, got %+v", last)
	}
	if want := groupCustomID(owner, 4, fieldNewRole); last.Response.Data.CustomID != want {
		t.Errorf("modal custom ID = %q, want %q", last.Response.Data.CustomID, want)
	}

	e.submit(4, fieldNewRole, map[string]string{inputRoleName: "Members"})
	pending := e.pending()
	if len(pending) != 1 || !cmp.Equal(pending[0].PendingNewRoles, []string{"Members"}) || !pending[0].Criteria.Group.Everyone {
		t.Fatalf("unexpected pending binds %+v", pending)
	}

	e.click(0, buttonPublish)
	if !cmp.Equal(e.roles.created, []string{"Members"}) {
		t.Errorf("created roles = %q", e.roles.created)
	}
	got, err := e.deps.Binds.GetBinds(context.Background(), "guild-1", binds.Filter{})
	if err != nil {
		t.Fatalf("GetBinds failed: %v", err)
	}
	if len(got) != 1 || !cmp.Equal(got[0].Roles, []string{"5001"}) || len(got[0].PendingNewRoles) != 0 {
		t.Errorf("unexpected saved binds %+v", got)
	}
}

func TestGroupPromptModalRankErrors(t *testing.T) {
	e := newEnv(t)
	e.startBind()
	e.click(0, buttonNewBind)
	e.click(1, fieldCriteria, "range")
	e.transport.Reset()

	e.submit(3, fieldModalRoleset, map[string]string{inputMinRank: "Admin", inputMaxRank: "50"})
	want := "Those two group ranks are the same! Please make sure you are inputting two different group ranks."
	if got := e.transport.Last(t).Content(); got != want {
		t.Errorf("content = %q, want %q", got, want)
	}

	e.submit(3, fieldModalRoleset, map[string]string{inputMinRank: "Member", inputMaxRank: "Admin"})
	if got := e.transport.Last(t).Content(); got != "The rank IDs `10` and `50` have been stored for this bind." {
		t.Errorf("content = %q", got)
	}
	e.click(3, fieldDiscordRole, "999")
	pending := e.pending()
	if len(pending) != 1 || *pending[0].Criteria.Group.Min != 10 || *pending[0].Criteria.Group.Max != 50 {
		t.Errorf("unexpected pending binds %+v", pending)
	}
}

func TestGroupPromptRemoveUnsaved(t *testing.T) {
	e := newEnv(t)
	e.startBind()
	for _, role := range []string{"1", "2", "3"} {
		e.click(0, buttonNewBind)
		e.click(1, fieldCriteria, "exact_match")
		e.click(2, fieldGroupRank, "10")
		e.click(2, fieldDiscordRole, role)
	}
	if n := len(e.pending()); n != 3 {
		t.Fatalf("pending = %d, want 3", n)
	}

	e.click(0, buttonDeleteBind)
	if embed := lastEmbed(t, e.transport.Calls()); !strings.HasPrefix(embed.Title, "Remove an unsaved bind") {
		t.Fatalf("title = %q", embed.Title)
	}
	e.transport.Reset()
	e.click(5, fieldUnbindMenu, "0", "2")

	pending := e.pending()
	if len(pending) != 1 || pending[0].Roles[0] != "2" {
		t.Errorf("unexpected pending binds %+v", pending)
	}
	if msgs := followups(e.transport.Calls()); len(msgs) != 1 || msgs[0] != "The binds you have selected have been removed." {
		t.Errorf("followups = %q", msgs)
	}
}

func TestGroupPromptPendingCap(t *testing.T) {
	e := newEnv(t)
	e.startBind()
	for i := 0; i < MaxPendingBinds; i++ {
		e.click(0, buttonNewBind)
		e.click(1, fieldCriteria, "exact_match")
		e.click(2, fieldGroupRank, "10")
		e.click(2, fieldDiscordRole, fmt.Sprint(100+i))
	}

	if embed := lastEmbed(t, e.transport.Calls()); !strings.HasPrefix(embed.Title, "[UNSAVED CHANGES]") {
		t.Errorf("title = %q", embed.Title)
	}
	var newBind *discordgo.Button
	for _, row := range lastComponents(e.transport.Calls()) {
		for _, c := range row.(discordgo.ActionsRow).Components {
			if b, ok := c.(discordgo.Button); ok && b.CustomID == groupCustomID(owner, 0, buttonNewBind) {
				newBind = &b
			}
		}
	}
	if newBind == nil || !newBind.Disabled {
		t.Errorf("new bind button should be disabled at %d pending binds", MaxPendingBinds)
	}
}

func lastComponents(calls []testutil.Call) []discordgo.MessageComponent {
	for i := len(calls) - 1; i >= 0; i-- {
		if c := calls[i].Components(); len(c) > 0 {
			return c
		}
	}
	return nil
}

func TestGroupPromptForeignUser(t *testing.T) {
	e := newEnv(t)
	e.startBind()
	e.transport.Reset()

	e.handle(testutil.ComponentInteraction(2002, groupCustomID(owner, 0, buttonNewBind)))
	last := e.transport.Last(t)
	if !last.Ephemeral() || !strings.Contains(last.Content(), "<@1001>") {
		t.Errorf("expected ephemeral ownership notice, got %q", last.Content())
	}
}

func TestGroupPromptLookupFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   string
	}{
		{name: "roblox down", status: 503, want: robloxDownMessage},
		{name: "server error", status: 500, want: ErrorMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.deps.Roblox = &fakeGroups{err: &roblox.APIError{StatusCode: tt.status}}
			ix := testutil.CommandInteraction(owner, "bind", map[string]interface{}{optGroupID: float64(12345)})
			e.handle(ix)

			if got := e.transport.Last(t).Content(); got != tt.want {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGroupPromptClearedRankIsNotStaged(t *testing.T) {
	e := newEnv(t)
	e.startBind()
	e.click(0, buttonNewBind)
	e.click(1, fieldCriteria, "exact_match")
	e.click(2, fieldGroupRank, "10")
	e.click(2, fieldGroupRank)
	e.click(2, fieldDiscordRole, "999")

	for _, b := range e.pending() {
		if g := b.Criteria.Group; g != nil && g.Roleset != nil && *g.Roleset == 10 {
			t.Fatalf("cleared rank was staged: %+v", b)
		}
	}
	if got := e.pending(); len(got) != 0 {
		t.Errorf("expected nothing staged without a rank, got %+v", got)
	}
}

func TestRankSelectSkipsGuest(t *testing.T) {
	group := &roblox.Group{ID: 1, Rolesets: []roblox.Roleset{{ID: 1, Name: "Guest", Rank: 0}}}
	for i := 1; i <= prompt.MaxSelectOptions; i++ {
		group.Rolesets = append(group.Rolesets, roblox.Roleset{ID: int64(i + 1), Name: fmt.Sprintf("Rank %d", i), Rank: i})
	}

	sel := rankSelect(group, bindRank)
	if sel == nil {
		t.Fatalf("expected a select for %d member ranks", prompt.MaxSelectOptions)
	}
	if len(sel.Options) != prompt.MaxSelectOptions {
		t.Errorf("options = %d, want %d", len(sel.Options), prompt.MaxSelectOptions)
	}
	if sel.Options[0].Value != strconv.Itoa(prompt.MaxSelectOptions) {
		t.Errorf("first option = %q, want highest rank", sel.Options[0].Value)
	}

	group.Rolesets = append(group.Rolesets, roblox.Roleset{ID: 99, Name: "Owner", Rank: 255})
	if rankSelect(group, bindRank) != nil {
		t.Errorf("expected no select past %d member ranks", prompt.MaxSelectOptions)
	}
}

func TestGroupOverviewSplitsLongBindLists(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 40; i++ {
		bind := models.GuildBind{
			Roles:    []string{fmt.Sprintf("%d", 100000000000000000+i), fmt.Sprintf("%d", 200000000000000000+i)},
			Criteria: models.BindCriteria{Type: models.BindTypeGroup, ID: 12345, Group: &models.GroupCriteria{Roleset: models.IntPtr(i + 1)}},
		}
		if err := e.deps.Binds.CreateBind(context.Background(), "guild-1", bind); err != nil {
			t.Fatalf("CreateBind failed: %v", err)
		}
	}
	e.startBind()

	embed := lastEmbed(t, e.transport.Calls())
	if embed.URL != "https://www.roblox.com/groups/12345" {
		t.Errorf("url = %q", embed.URL)
	}
	var lines int
	var continued bool
	for _, f := range embed.Fields {
		if utf8.RuneCountInString(f.Value) > maxFieldValue {
			t.Errorf("field %q is %d runes long", f.Name, utf8.RuneCountInString(f.Value))
		}
		if f.Name == "Current binds"+continuedSuffix {
			continued = true
		}
		if strings.HasPrefix(f.Name, "Current binds") {
			lines += strings.Count(f.Value, "\n") + 1
		}
	}
	if !continued {
		t.Errorf("expected the bind list to continue in a second field")
	}
	if lines != 40 {
		t.Errorf("listed %d binds, want 40", lines)
	}
}
