package prompt

import (
	"fmt"
	"unicode/utf8"

	"github.com/BTreeMap/RoleBridge/internal/customid"
	"github.com/BTreeMap/RoleBridge/internal/response"
	"github.com/bwmarrin/discordgo"
)

// Discord message limits.
const (
	MaxRows           = 5
	MaxButtonsPerRow  = 5
	MaxSelectOptions  = 25
	MaxSelectValues   = 25
	MaxEmbedFields    = 25
	MaxTitleLength    = 256
	MaxDescriptionLen = 4096

	defaultTitle = "Prompt"
	embedColor   = 0xdb2323
)

// Overrides replace the title or description of the next render only.
type Overrides struct {
	Title       string
	Description string
}

func (o Overrides) empty() bool { return o.Title == "" && o.Description == "" }

// Render builds the message payload for content on the given page. Every
// component gets tok with its own ID stamped in the component field.
func Render(tok customid.Token, schema customid.Schema, page int, content PageContent, ov Overrides) (response.Message, error) {
	title := content.Title
	if title == "" {
		title = defaultTitle
	}
	description := content.Description
	if ov.Title != "" {
		title = ov.Title
	}
	if ov.Description != "" {
		description = ov.Description
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return response.Message{}, fmt.Errorf("%w: title is %d characters", ErrComponentLimitExceeded, utf8.RuneCountInString(title))
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLen {
		return response.Message{}, fmt.Errorf("%w: description is %d characters", ErrComponentLimitExceeded, utf8.RuneCountInString(description))
	}
	if len(content.Fields) > MaxEmbedFields {
		return response.Message{}, fmt.Errorf("%w: %d embed fields", ErrComponentLimitExceeded, len(content.Fields))
	}

	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		URL:         content.URL,
		Color:       embedColor,
	}
	if content.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: content.Footer}
	}
	for _, f := range content.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}

	rows, err := renderComponents(tok, schema, page, content.Components)
	if err != nil {
		return response.Message{}, err
	}
	return response.Message{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: rows,
	}, nil
}

func stamp(tok customid.Token, schema customid.Schema, page int, componentID string) (string, error) {
	tok.PageNumber = page
	tok.ComponentID = componentID
	id, err := customid.Encode(tok, schema)
	if err != nil {
		return "", fmt.Errorf("failed to stamp component %q: %w", componentID, err)
	}
	return id, nil
}

// renderComponents lays out components: each select menu on its own row in
// declared order, then all buttons in one trailing row.
func renderComponents(tok customid.Token, schema customid.Schema, page int, components []Component) ([]discordgo.MessageComponent, error) {
	seen := make(map[string]bool, len(components))
	var rows []discordgo.MessageComponent
	var buttons []discordgo.MessageComponent

	for _, c := range components {
		if seen[c.ID()] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateComponent, c.ID())
		}
		seen[c.ID()] = true

		customID, err := stamp(tok, schema, page, c.ID())
		if err != nil {
			return nil, err
		}

		switch comp := c.(type) {
		case *Button:
			style := comp.Style
			if style == 0 {
				style = discordgo.PrimaryButton
			}
			buttons = append(buttons, discordgo.Button{
				CustomID: customID,
				Label:    comp.Label,
				Style:    style,
				Disabled: comp.Disabled,
			})
		case *TextSelect:
			if len(comp.Options) > MaxSelectOptions {
				return nil, fmt.Errorf("%w: select %q has %d options", ErrComponentLimitExceeded, comp.ComponentID, len(comp.Options))
			}
			if err := checkValues(comp.ComponentID, comp.MinValues, comp.MaxValues); err != nil {
				return nil, err
			}
			menu := discordgo.SelectMenu{
				MenuType:    discordgo.StringSelectMenu,
				CustomID:    customID,
				Placeholder: comp.Placeholder,
				MinValues:   minValues(comp.MinValues),
				MaxValues:   comp.MaxValues,
				Disabled:    comp.Disabled,
			}
			for _, o := range comp.Options {
				menu.Options = append(menu.Options, discordgo.SelectMenuOption{
					Label:       o.Label,
					Value:       o.Value,
					Description: o.Description,
					Default:     o.Default,
				})
			}
			rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{menu}})
		case *RoleSelect:
			if err := checkValues(comp.ComponentID, comp.MinValues, comp.MaxValues); err != nil {
				return nil, err
			}
			rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.SelectMenu{
					MenuType:    discordgo.RoleSelectMenu,
					CustomID:    customID,
					Placeholder: comp.Placeholder,
					MinValues:   minValues(comp.MinValues),
					MaxValues:   comp.MaxValues,
					Disabled:    comp.Disabled,
				},
			}})
		case *TextInput:
			return nil, fmt.Errorf("%w: text input %q outside a modal", ErrComponentLimitExceeded, comp.ComponentID)
		default:
			return nil, fmt.Errorf("unsupported component %T", c)
		}
	}

	if len(buttons) > MaxButtonsPerRow {
		return nil, fmt.Errorf("%w: %d buttons", ErrComponentLimitExceeded, len(buttons))
	}
	if len(buttons) > 0 {
		rows = append(rows, discordgo.ActionsRow{Components: buttons})
	}
	if len(rows) > MaxRows {
		return nil, fmt.Errorf("%w: %d rows", ErrComponentLimitExceeded, len(rows))
	}
	return rows, nil
}

// RenderModal builds a modal whose inputs each take one row.
func RenderModal(customID, title string, inputs []*TextInput) (response.Modal, error) {
	if len(inputs) == 0 || len(inputs) > MaxRows {
		return response.Modal{}, fmt.Errorf("%w: modal needs 1 to %d inputs, got %d", ErrComponentLimitExceeded, MaxRows, len(inputs))
	}
	seen := make(map[string]bool, len(inputs))
	rows := make([]discordgo.MessageComponent, 0, len(inputs))
	for _, in := range inputs {
		if seen[in.ComponentID] {
			return response.Modal{}, fmt.Errorf("%w: %q", ErrDuplicateComponent, in.ComponentID)
		}
		seen[in.ComponentID] = true
		style := in.Style
		if style == 0 {
			style = discordgo.TextInputShort
		}
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID:    in.ComponentID,
				Label:       in.Label,
				Style:       style,
				Placeholder: in.Placeholder,
				Value:       in.Value,
				Required:    in.Required,
				MinLength:   in.MinLength,
				MaxLength:   in.MaxLength,
			},
		}})
	}
	if title == "" {
		title = defaultTitle
	}
	return response.Modal{CustomID: customID, Title: title, Components: rows}, nil
}

func checkValues(id string, min, max int) error {
	if min > MaxSelectValues || max > MaxSelectValues {
		return fmt.Errorf("%w: select %q allows %d-%d values", ErrComponentLimitExceeded, id, min, max)
	}
	if max > 0 && min > max {
		return fmt.Errorf("%w: select %q min %d above max %d", ErrComponentLimitExceeded, id, min, max)
	}
	return nil
}

func minValues(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}
