// Package response coordinates the replies sent for a single interaction.
//
// Discord accepts exactly one initial response per interaction. Everything
// after it must edit that response or follow up with a new message. A
// Response tracks which of those shapes is still available and degrades each
// call accordingly, so callers never have to reason about the distinction.
package response

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BTreeMap/RoleBridge/internal/models"
	"github.com/bwmarrin/discordgo"
)

// Transport performs the Discord API calls on behalf of a Response.
type Transport interface {
	// Respond sends the initial interaction response.
	Respond(ctx context.Context, ix *models.Interaction, resp *discordgo.InteractionResponse) error
	// EditOriginal edits the message created or targeted by the initial response.
	EditOriginal(ctx context.Context, ix *models.Interaction, edit *discordgo.WebhookEdit) (*discordgo.Message, error)
	// Followup sends an additional message through the interaction webhook.
	Followup(ctx context.Context, ix *models.Interaction, params *discordgo.WebhookParams) (*discordgo.Message, error)
	// EditMessage edits an arbitrary channel message.
	EditMessage(ctx context.Context, edit *discordgo.MessageEdit) (*discordgo.Message, error)
}

// ActionType classifies a transmission recorded by a Response.
type ActionType string

const (
	ActionInitial      ActionType = "initial"
	ActionDeferred     ActionType = "deferred"
	ActionModal        ActionType = "modal"
	ActionAutocomplete ActionType = "autocomplete"
	ActionEditOriginal ActionType = "edit_original"
	ActionEditMessage  ActionType = "edit_message"
	ActionFollowup     ActionType = "followup"
)

// IsInitial reports whether the action consumed the initial response.
func (a ActionType) IsInitial() bool {
	switch a {
	case ActionInitial, ActionDeferred, ActionModal, ActionAutocomplete:
		return true
	default:
		return false
	}
}

// Action records one transmission.
type Action struct {
	Type         ActionType
	ResponseType discordgo.InteractionResponseType
	Ephemeral    bool
}

// Message is the content of a reply. Embeds and components replace the
// target's existing ones on edits; empty slices clear them.
type Message struct {
	Content    string
	Embeds     []*discordgo.MessageEmbed
	Components []discordgo.MessageComponent
	Ephemeral  bool
}

// Modal is a popup form. It can only be sent as an initial response.
type Modal struct {
	CustomID   string
	Title      string
	Components []discordgo.MessageComponent
}

// Response coordinates the replies for one interaction. It is safe for
// concurrent use; calls are serialized.
type Response struct {
	mu        sync.Mutex
	ix        *models.Interaction
	transport Transport

	responded bool
	deferred  bool
	// updateInPlace makes component deferrals acknowledge with an update of
	// the source message instead of a new "thinking" message.
	updateInPlace bool
	// createdMessage is set when a component interaction's initial response
	// created a new message, leaving @original pointing away from the source.
	createdMessage bool

	actions []Action
}

// New creates a Response for ix.
func New(ix *models.Interaction, t Transport) *Response {
	return &Response{ix: ix, transport: t}
}

// Interaction returns the interaction being answered.
func (r *Response) Interaction() *models.Interaction { return r.ix }

// SetUpdateInPlace switches component deferrals to DeferredMessageUpdate.
// Prompts use this so their pages replace the message they live on.
func (r *Response) SetUpdateInPlace(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateInPlace = v
}

// Responded reports whether the initial response has been sent.
func (r *Response) Responded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.responded
}

// Deferred reports whether a deferral is awaiting its edit.
func (r *Response) Deferred() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deferred
}

// Actions returns a copy of the transmissions made so far.
func (r *Response) Actions() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Action(nil), r.actions...)
}

// Defer acknowledges the interaction without content. It is a no-op once
// any initial response was sent.
func (r *Response) Defer(ctx context.Context, ephemeral bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.responded {
		return nil
	}

	typ := discordgo.InteractionResponseDeferredChannelMessageWithSource
	if r.ix.IsComponentLike() && r.updateInPlace {
		typ = discordgo.InteractionResponseDeferredMessageUpdate
	}
	resp := &discordgo.InteractionResponse{Type: typ}
	if ephemeral {
		resp.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	if err := r.transport.Respond(ctx, r.ix, resp); err != nil {
		return fmt.Errorf("failed to defer interaction %s: %w", r.ix.ID, err)
	}
	r.responded = true
	r.deferred = true
	r.createdMessage = r.ix.IsComponentLike() && typ != discordgo.InteractionResponseDeferredMessageUpdate
	r.record(ActionDeferred, typ, ephemeral)
	return nil
}

// SendFirst sends msg as the initial response. If the initial response was
// already used it becomes an edit of the original message when editOriginal
// is set, or a Send otherwise.
func (r *Response) SendFirst(ctx context.Context, msg Message, editOriginal bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.responded {
		if editOriginal {
			_, err := r.editOriginal(ctx, msg)
			return err
		}
		_, err := r.send(ctx, msg)
		return err
	}

	typ := discordgo.InteractionResponseChannelMessageWithSource
	if editOriginal && r.ix.IsComponentLike() && r.ix.MessageID != "" {
		typ = discordgo.InteractionResponseUpdateMessage
	}
	resp := &discordgo.InteractionResponse{Type: typ, Data: responseData(msg)}
	if err := r.transport.Respond(ctx, r.ix, resp); err != nil {
		return fmt.Errorf("failed to respond to interaction %s: %w", r.ix.ID, err)
	}
	r.responded = true
	r.createdMessage = r.ix.IsComponentLike() && typ == discordgo.InteractionResponseChannelMessageWithSource
	r.record(ActionInitial, typ, msg.Ephemeral)
	return nil
}

// Send delivers msg by the only shape still available: the edit of a pending
// deferral, a follow-up, or the initial response. The returned message is nil
// for initial responses, which Discord does not echo.
func (r *Response) Send(ctx context.Context, msg Message) (*discordgo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.send(ctx, msg)
}

func (r *Response) send(ctx context.Context, msg Message) (*discordgo.Message, error) {
	if r.deferred {
		r.deferred = false
		m, err := r.transport.EditOriginal(ctx, r.ix, webhookEdit(msg))
		if err != nil {
			return nil, fmt.Errorf("failed to edit deferred response for %s: %w", r.ix.ID, err)
		}
		r.record(ActionEditOriginal, 0, false)
		return m, nil
	}
	if r.responded {
		params := &discordgo.WebhookParams{
			Content:    msg.Content,
			Embeds:     msg.Embeds,
			Components: msg.Components,
		}
		if msg.Ephemeral {
			params.Flags = discordgo.MessageFlagsEphemeral
		}
		m, err := r.transport.Followup(ctx, r.ix, params)
		if err != nil {
			return nil, fmt.Errorf("failed to send follow-up for %s: %w", r.ix.ID, err)
		}
		r.record(ActionFollowup, 0, msg.Ephemeral)
		return m, nil
	}

	typ := discordgo.InteractionResponseChannelMessageWithSource
	if err := r.transport.Respond(ctx, r.ix, &discordgo.InteractionResponse{Type: typ, Data: responseData(msg)}); err != nil {
		return nil, fmt.Errorf("failed to respond to interaction %s: %w", r.ix.ID, err)
	}
	r.responded = true
	r.createdMessage = r.ix.IsComponentLike()
	r.record(ActionInitial, typ, msg.Ephemeral)
	return nil, nil
}

// Followup sends msg as a new message: the initial response when it is still
// available, else a follow-up. A pending deferral is left for a later edit,
// so notices never overwrite the message being updated.
func (r *Response) Followup(ctx context.Context, msg Message) (*discordgo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.deferred {
		return r.send(ctx, msg)
	}
	r.deferred = false
	m, err := r.send(ctx, msg)
	r.deferred = true
	return m, err
}

// editOriginal edits the message the interaction is about. When the initial
// response of a component interaction created a new message, @original no
// longer refers to the source, so the source message is edited directly.
func (r *Response) editOriginal(ctx context.Context, msg Message) (*discordgo.Message, error) {
	r.deferred = false
	if r.createdMessage && r.ix.ChannelID != "" && r.ix.MessageID != "" {
		edit := discordgo.NewMessageEdit(r.ix.ChannelID, r.ix.MessageID)
		content := msg.Content
		embeds := nonNilEmbeds(msg.Embeds)
		components := nonNilComponents(msg.Components)
		edit.Content = &content
		edit.Embeds = &embeds
		edit.Components = &components
		m, err := r.transport.EditMessage(ctx, edit)
		if err != nil {
			return nil, fmt.Errorf("failed to edit source message %s: %w", r.ix.MessageID, err)
		}
		r.record(ActionEditMessage, 0, false)
		return m, nil
	}
	m, err := r.transport.EditOriginal(ctx, r.ix, webhookEdit(msg))
	if err != nil {
		return nil, fmt.Errorf("failed to edit original response for %s: %w", r.ix.ID, err)
	}
	r.record(ActionEditOriginal, 0, false)
	return m, nil
}

// SendModal opens a modal. It reports false without sending when the
// interaction is itself a modal submission, or when the initial response is
// already spent, since Discord only accepts modals as initial responses.
func (r *Response) SendModal(ctx context.Context, modal Modal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ix.Kind == models.InteractionModalSubmit {
		return false, nil
	}
	if r.responded {
		slog.Warn("Response.SendModal: initial response already sent, modal dropped", "interaction", r.ix.ID, "modal", modal.CustomID)
		return false, nil
	}
	resp := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   modal.CustomID,
			Title:      modal.Title,
			Components: modal.Components,
		},
	}
	if err := r.transport.Respond(ctx, r.ix, resp); err != nil {
		return false, fmt.Errorf("failed to open modal for %s: %w", r.ix.ID, err)
	}
	r.responded = true
	r.record(ActionModal, discordgo.InteractionResponseModal, false)
	return true, nil
}

// Autocomplete answers an autocomplete interaction with choices.
func (r *Response) Autocomplete(ctx context.Context, choices []*discordgo.ApplicationCommandOptionChoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.responded {
		return nil
	}
	resp := &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	}
	if err := r.transport.Respond(ctx, r.ix, resp); err != nil {
		return fmt.Errorf("failed to send autocomplete choices for %s: %w", r.ix.ID, err)
	}
	r.responded = true
	r.record(ActionAutocomplete, discordgo.InteractionApplicationCommandAutocompleteResult, false)
	return nil
}

func (r *Response) record(t ActionType, rt discordgo.InteractionResponseType, ephemeral bool) {
	r.actions = append(r.actions, Action{Type: t, ResponseType: rt, Ephemeral: ephemeral})
	slog.Debug("Response.record: sent", "interaction", r.ix.ID, "action", t, "response_type", rt, "ephemeral", ephemeral)
}

func responseData(msg Message) *discordgo.InteractionResponseData {
	data := &discordgo.InteractionResponseData{
		Content:    msg.Content,
		Embeds:     nonNilEmbeds(msg.Embeds),
		Components: nonNilComponents(msg.Components),
	}
	if msg.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return data
}

// webhookEdit builds an edit of @original. Ephemerality cannot change on
// edits, so msg.Ephemeral is ignored.
func webhookEdit(msg Message) *discordgo.WebhookEdit {
	content := msg.Content
	embeds := nonNilEmbeds(msg.Embeds)
	components := nonNilComponents(msg.Components)
	return &discordgo.WebhookEdit{
		Content:    &content,
		Embeds:     &embeds,
		Components: &components,
	}
}

func nonNilEmbeds(e []*discordgo.MessageEmbed) []*discordgo.MessageEmbed {
	if e == nil {
		return []*discordgo.MessageEmbed{}
	}
	return e
}

func nonNilComponents(c []discordgo.MessageComponent) []discordgo.MessageComponent {
	if c == nil {
		return []discordgo.MessageComponent{}
	}
	return c
}
