// Package discord wraps the discordgo session for RoleBridge.
//
// It turns gateway interaction events into models.Interaction values, and
// implements the REST calls the response coordinator and commands need.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/BTreeMap/RoleBridge/internal/models"
	"github.com/BTreeMap/RoleBridge/internal/response"
	"github.com/bwmarrin/discordgo"
)

// DefaultBuffer is the default capacity of the interaction channel.
const DefaultBuffer = 64

// ErrNoToken is returned by NewClient without a bot token.
var ErrNoToken = errors.New("discord bot token is required")

// Opts holds configuration options for the Discord client.
type Opts struct {
	Token string
	// GuildID registers commands on one guild instead of globally, which
	// takes effect immediately. Meant for development.
	GuildID string
	Buffer  int
}

// Option defines a configuration option for the Discord client.
type Option func(*Opts)

// WithToken sets the bot token.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithGuildID scopes command registration to one guild.
func WithGuildID(id string) Option {
	return func(o *Opts) { o.GuildID = id }
}

// WithBuffer sets the interaction channel capacity.
func WithBuffer(n int) Option {
	return func(o *Opts) { o.Buffer = n }
}

// Client owns the gateway session.
type Client struct {
	session *discordgo.Session
	guildID string

	interactions chan *models.Interaction
	closeOnce    sync.Once
	done         chan struct{}
}

var _ response.Transport = (*Client)(nil)

// NewClient creates a client. The gateway is not connected until Open.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Buffer: DefaultBuffer}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		return nil, ErrNoToken
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds

	c := &Client{
		session:      s,
		guildID:      cfg.GuildID,
		interactions: make(chan *models.Interaction, cfg.Buffer),
		done:         make(chan struct{}),
	}
	s.AddHandler(c.onInteraction)
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Discord client ready", "user", r.User.Username, "guilds", len(r.Guilds))
	})
	slog.Debug("Discord NewClient created", "guild_scoped", cfg.GuildID != "", "buffer", cfg.Buffer)
	return c, nil
}

// Interactions returns the channel interaction events are delivered on.
func (c *Client) Interactions() <-chan *models.Interaction {
	return c.interactions
}

// Open connects to the gateway.
func (c *Client) Open() error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	slog.Info("Discord gateway connected")
	return nil
}

// Close disconnects from the gateway. Events arriving afterwards are dropped.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	if err := c.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord gateway: %w", err)
	}
	slog.Info("Discord gateway closed")
	return nil
}

// RegisterCommands overwrites the application's commands with cmds.
func (c *Client) RegisterCommands(ctx context.Context, cmds []*discordgo.ApplicationCommand) error {
	if c.session.State == nil || c.session.State.User == nil {
		return errors.New("discord session is not ready")
	}
	appID := c.session.State.User.ID
	out, err := c.session.ApplicationCommandBulkOverwrite(appID, c.guildID, cmds, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	slog.Info("Discord commands registered", "count", len(out), "guild_id", c.guildID)
	return nil
}

func (c *Client) onInteraction(_ *discordgo.Session, ev *discordgo.InteractionCreate) {
	ix, err := ToInteraction(ev.Interaction)
	if err != nil {
		slog.Warn("Discord dropped interaction", "interaction_id", ev.ID, "error", err)
		return
	}
	select {
	case <-c.done:
		slog.Debug("Discord client closed, dropping interaction", "interaction_id", ix.ID)
		return
	default:
	}
	select {
	case c.interactions <- ix:
	default:
		// The router is saturated; Discord expires the interaction after 3s anyway.
		slog.Warn("Discord interaction buffer full, dropping", "interaction_id", ix.ID, "kind", ix.Kind)
	}
}

// ToInteraction normalizes a gateway interaction. Subcommand options are
// flattened into Options.
func ToInteraction(i *discordgo.Interaction) (*models.Interaction, error) {
	if i == nil {
		return nil, errors.New("nil interaction")
	}
	user := i.User
	if i.Member != nil && i.Member.User != nil {
		user = i.Member.User
	}
	if user == nil {
		return nil, errors.New("interaction has no user")
	}
	userID, err := strconv.ParseInt(user.ID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad user id %q: %w", user.ID, err)
	}

	ix := &models.Interaction{
		ID:        i.ID,
		Token:     i.Token,
		AppID:     i.AppID,
		UserID:    userID,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Raw:       i,
	}
	if i.Message != nil {
		ix.MessageID = i.Message.ID
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand, discordgo.InteractionApplicationCommandAutocomplete:
		ix.Kind = models.InteractionCommand
		if i.Type == discordgo.InteractionApplicationCommandAutocomplete {
			ix.Kind = models.InteractionAutocomplete
		}
		data := i.ApplicationCommandData()
		ix.CommandName = data.Name
		ix.Options = map[string]models.Option{}
		opts := data.Options
		if len(opts) == 1 && (opts[0].Type == discordgo.ApplicationCommandOptionSubCommand || opts[0].Type == discordgo.ApplicationCommandOptionSubCommandGroup) {
			ix.Subcommand = opts[0].Name
			opts = opts[0].Options
		}
		for _, o := range opts {
			ix.Options[o.Name] = models.Option{Name: o.Name, Value: o.Value, Focused: o.Focused}
		}
	case discordgo.InteractionMessageComponent:
		ix.Kind = models.InteractionComponent
		data := i.MessageComponentData()
		ix.CustomID = data.CustomID
		ix.Values = data.Values
	case discordgo.InteractionModalSubmit:
		ix.Kind = models.InteractionModalSubmit
		data := i.ModalSubmitData()
		ix.CustomID = data.CustomID
		ix.ModalValues = modalValues(data.Components)
	default:
		return nil, fmt.Errorf("unsupported interaction type %v", i.Type)
	}
	return ix, nil
}

func modalValues(components []discordgo.MessageComponent) map[string]string {
	out := map[string]string{}
	for _, c := range components {
		var inner []discordgo.MessageComponent
		switch row := c.(type) {
		case *discordgo.ActionsRow:
			inner = row.Components
		case discordgo.ActionsRow:
			inner = row.Components
		}
		for _, in := range inner {
			switch t := in.(type) {
			case *discordgo.TextInput:
				out[t.CustomID] = t.Value
			case discordgo.TextInput:
				out[t.CustomID] = t.Value
			}
		}
	}
	return out
}

// raw returns the discordgo payload of ix, rebuilding the fields the webhook
// endpoints need when the interaction did not come from the gateway.
func raw(ix *models.Interaction) *discordgo.Interaction {
	if ix.Raw != nil {
		return ix.Raw
	}
	return &discordgo.Interaction{ID: ix.ID, AppID: ix.AppID, Token: ix.Token}
}

// Respond sends the initial interaction response.
func (c *Client) Respond(ctx context.Context, ix *models.Interaction, resp *discordgo.InteractionResponse) error {
	return c.session.InteractionRespond(raw(ix), resp, discordgo.WithContext(ctx))
}

// EditOriginal edits the original interaction response.
func (c *Client) EditOriginal(ctx context.Context, ix *models.Interaction, edit *discordgo.WebhookEdit) (*discordgo.Message, error) {
	return c.session.InteractionResponseEdit(raw(ix), edit, discordgo.WithContext(ctx))
}

// Followup sends a follow-up message and waits for it to be created.
func (c *Client) Followup(ctx context.Context, ix *models.Interaction, params *discordgo.WebhookParams) (*discordgo.Message, error) {
	return c.session.FollowupMessageCreate(raw(ix), true, params, discordgo.WithContext(ctx))
}

// EditMessage edits a channel message.
func (c *Client) EditMessage(ctx context.Context, edit *discordgo.MessageEdit) (*discordgo.Message, error) {
	return c.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
}

// CreateRole creates a guild role with the default permissions and returns
// its ID. reason is recorded in the audit log.
func (c *Client) CreateRole(ctx context.Context, guildID, name, reason string) (string, error) {
	role, err := c.session.GuildRoleCreate(guildID, &discordgo.RoleParams{Name: name},
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	if err != nil {
		return "", fmt.Errorf("failed to create role %q in guild %s: %w", name, guildID, err)
	}
	slog.Info("Discord role created", "guild_id", guildID, "role_id", role.ID, "name", name)
	return role.ID, nil
}

// RoleNames returns the names of the guild's roles.
func (c *Client) RoleNames(ctx context.Context, guildID string) ([]string, error) {
	roles, err := c.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list roles of guild %s: %w", guildID, err)
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names, nil
}
