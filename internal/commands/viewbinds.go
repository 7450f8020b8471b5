package commands

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strconv"

	"github.com/BTreeMap/RoleBridge/internal/binds"
	"github.com/BTreeMap/RoleBridge/internal/customid"
	"github.com/BTreeMap/RoleBridge/internal/models"
	"github.com/BTreeMap/RoleBridge/internal/response"
	"github.com/bwmarrin/discordgo"
)

const (
	paginatorName = "Paginator"

	fieldPageCategory = "category"
	fieldPageID       = "id"

	buttonPrevPage = "prev"
	buttonNextPage = "next"

	bindsPerPage = 5

	noBindsMessage      = "You have no binds for this category. Use `/bind` to make a new bind."
	foreignPagerMessage = "Only <@%d> can turn the pages of these binds."
)

// paginatorSchema carries the filter a /viewbinds page was rendered with. An
// empty category or a zero id leaves that part of the filter open.
var paginatorSchema = customid.NewSchema(
	customid.Field{Name: fieldPageCategory, Kind: customid.KindString},
	customid.Field{Name: fieldPageID, Kind: customid.KindInt},
)

func viewBindsCommand(deps *Deps) *Command {
	return &Command{
		Name:        viewBindsCommandName,
		Description: "View your binds for your server",
		Permissions: manageBindsPermission,
		Options: []*discordgo.ApplicationCommandOption{
			categoryOption(false),
			idOption(false, "Select which ID you want to see the bindings for"),
		},
		Run: func(ctx context.Context, req *Request) error {
			ix := req.Interaction
			f, problem := bindFilter(ix)
			if problem != "" {
				return req.Response.SendFirst(ctx, response.Message{Content: problem, Ephemeral: true}, false)
			}
			list, err := deps.Binds.GetBinds(ctx, ix.GuildID, f)
			if err != nil {
				return err
			}
			msg, err := bindsPage(list, f, ix.UserID, 0)
			if err != nil {
				return err
			}
			msg.Ephemeral = true
			return req.Response.SendFirst(ctx, msg, false)
		},
		Autocomplete: bindAutocomplete(deps, true),
	}
}

// viewBindsPage turns the page of a /viewbinds reply in place.
func viewBindsPage(deps *Deps) ComponentHandler {
	return func(ctx context.Context, req *Request) error {
		ix := req.Interaction
		tok, err := customid.Decode(ix.CustomID, paginatorSchema)
		if err != nil {
			return fmt.Errorf("bad paginator custom id: %w", err)
		}
		if tok.UserID != ix.UserID {
			slog.Debug("viewbinds: page turn by another user", "owner", tok.UserID, "user", ix.UserID)
			return req.Response.SendFirst(ctx, response.Message{
				Content:   fmt.Sprintf(foreignPagerMessage, tok.UserID),
				Ephemeral: true,
			}, false)
		}

		var f binds.Filter
		cat, _ := tok.Get(paginatorSchema, fieldPageCategory)
		f.Type = models.BindType(cat)
		if f.ID, err = tok.GetInt(paginatorSchema, fieldPageID); err != nil {
			return err
		}
		list, err := deps.Binds.GetBinds(ctx, ix.GuildID, f)
		if err != nil {
			return err
		}
		msg, err := bindsPage(list, f, tok.UserID, tok.PageNumber)
		if err != nil {
			return err
		}
		req.Response.SetUpdateInPlace(true)
		return req.Response.SendFirst(ctx, msg, true)
	}
}

// bindsPage renders one page of list, grouped into a field per category. The
// page is clamped to the ones that exist.
func bindsPage(list []models.GuildBind, f binds.Filter, user int64, page int) (response.Message, error) {
	if len(list) == 0 {
		return response.Message{Content: noBindsMessage}, nil
	}
	sorted := append([]models.GuildBind(nil), list...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return slices.Index(models.BindTypes, sorted[i].Criteria.Type) < slices.Index(models.BindTypes, sorted[j].Criteria.Type)
	})

	pages := (len(sorted) + bindsPerPage - 1) / bindsPerPage
	page = max(0, min(page, pages-1))
	shown := sorted[page*bindsPerPage : min(len(sorted), (page+1)*bindsPerPage)]

	embed := &discordgo.MessageEmbed{
		Title:  "Your Binds",
		Color:  embedColor,
		Footer: &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Page %d/%d", page+1, pages)},
	}
	for start := 0; start < len(shown); {
		t := shown[start].Criteria.Type
		var lines []string
		end := start
		for ; end < len(shown) && shown[end].Criteria.Type == t; end++ {
			lines = append(lines, shown[end].String())
		}
		for _, field := range splitField(categoryTitle(t), lines, false, maxBindFields) {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: field.Name, Value: field.Value, Inline: field.Inline})
		}
		start = end
	}

	msg := response.Message{Embeds: []*discordgo.MessageEmbed{embed}}
	if pages == 1 {
		return msg, nil
	}
	prev, err := pageButtonID(f, user, max(page-1, 0), buttonPrevPage)
	if err != nil {
		return msg, err
	}
	next, err := pageButtonID(f, user, min(page+1, pages-1), buttonNextPage)
	if err != nil {
		return msg, err
	}
	msg.Components = []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{CustomID: prev, Label: "◀", Style: discordgo.SecondaryButton, Disabled: page <= 0},
		discordgo.Button{CustomID: next, Label: "▶", Style: discordgo.SecondaryButton, Disabled: page+1 >= pages},
	}}}
	return msg, nil
}

// pageButtonID addresses the button that shows page.
func pageButtonID(f binds.Filter, user int64, page int, component string) (string, error) {
	return customid.Encode(customid.Token{
		CommandName: viewBindsCommandName,
		PromptName:  paginatorName,
		UserID:      user,
		PageNumber:  page,
		ComponentID: component,
		Extra:       []string{string(f.Type), strconv.FormatInt(f.ID, 10)},
	}, paginatorSchema)
}
