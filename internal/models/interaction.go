package models

import (
	"strconv"

	"github.com/bwmarrin/discordgo"
)

// InteractionKind identifies what triggered an interaction.
type InteractionKind string

const (
	InteractionCommand      InteractionKind = "command"
	InteractionComponent    InteractionKind = "component"
	InteractionModalSubmit  InteractionKind = "modal_submit"
	InteractionAutocomplete InteractionKind = "autocomplete"
)

// Option is one slash-command argument.
type Option struct {
	Name    string      `json:"name"`
	Value   interface{} `json:"value"`
	Focused bool        `json:"focused,omitempty"`
}

// String returns the option value formatted as a string.
func (o Option) String() string {
	switch v := o.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Int returns the option value as an integer, accepting numeric strings.
func (o Option) Int() (int64, bool) {
	switch v := o.Value.(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// Interaction is a gateway event normalized for the command and prompt layers.
// Raw carries the original discordgo payload for the transport.
type Interaction struct {
	ID          string            `json:"id"`
	Token       string            `json:"-"`
	AppID       string            `json:"app_id"`
	Kind        InteractionKind   `json:"kind"`
	UserID      int64             `json:"user_id"`
	GuildID     string            `json:"guild_id"`
	ChannelID   string            `json:"channel_id"`
	MessageID   string            `json:"message_id,omitempty"`
	CommandName string            `json:"command_name,omitempty"`
	Subcommand  string            `json:"subcommand,omitempty"`
	Options     map[string]Option `json:"options,omitempty"`
	CustomID    string            `json:"custom_id,omitempty"`
	Values      []string          `json:"values,omitempty"`
	ModalValues map[string]string `json:"modal_values,omitempty"`

	Raw *discordgo.Interaction `json:"-"`
}

// Option returns a named command option.
func (i *Interaction) Option(name string) (Option, bool) {
	o, ok := i.Options[name]
	return o, ok
}

// FocusedOption returns the option being autocompleted, if any.
func (i *Interaction) FocusedOption() (Option, bool) {
	for _, o := range i.Options {
		if o.Focused {
			return o, true
		}
	}
	return Option{}, false
}

// IsComponentLike reports whether the interaction originated from a message
// component, directly or through a modal opened by one.
func (i *Interaction) IsComponentLike() bool {
	return i.Kind == InteractionComponent || i.Kind == InteractionModalSubmit
}
