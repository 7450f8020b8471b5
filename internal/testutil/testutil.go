// Package testutil provides common test utilities and helpers for RoleBridge tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BTreeMap/RoleBridge/internal/models"
	"github.com/BTreeMap/RoleBridge/internal/session"
	"github.com/bwmarrin/discordgo"
)

// Call is one request captured by RecordingTransport.
type Call struct {
	Method        string
	InteractionID string
	Response      *discordgo.InteractionResponse
	WebhookEdit   *discordgo.WebhookEdit
	WebhookParams *discordgo.WebhookParams
	MessageEdit   *discordgo.MessageEdit
}

// Embeds returns the embeds carried by the call, whatever its shape.
func (c Call) Embeds() []*discordgo.MessageEmbed {
	switch {
	case c.Response != nil && c.Response.Data != nil:
		return c.Response.Data.Embeds
	case c.WebhookEdit != nil && c.WebhookEdit.Embeds != nil:
		return *c.WebhookEdit.Embeds
	case c.WebhookParams != nil:
		return c.WebhookParams.Embeds
	case c.MessageEdit != nil && c.MessageEdit.Embeds != nil:
		return *c.MessageEdit.Embeds
	}
	return nil
}

// Components returns the components carried by the call.
func (c Call) Components() []discordgo.MessageComponent {
	switch {
	case c.Response != nil && c.Response.Data != nil:
		return c.Response.Data.Components
	case c.WebhookEdit != nil && c.WebhookEdit.Components != nil:
		return *c.WebhookEdit.Components
	case c.WebhookParams != nil:
		return c.WebhookParams.Components
	case c.MessageEdit != nil && c.MessageEdit.Components != nil:
		return *c.MessageEdit.Components
	}
	return nil
}

// Content returns the text content carried by the call.
func (c Call) Content() string {
	switch {
	case c.Response != nil && c.Response.Data != nil:
		return c.Response.Data.Content
	case c.WebhookEdit != nil && c.WebhookEdit.Content != nil:
		return *c.WebhookEdit.Content
	case c.WebhookParams != nil:
		return c.WebhookParams.Content
	case c.MessageEdit != nil && c.MessageEdit.Content != nil:
		return *c.MessageEdit.Content
	}
	return ""
}

// Ephemeral reports whether the call was flagged ephemeral.
func (c Call) Ephemeral() bool {
	switch {
	case c.Response != nil && c.Response.Data != nil:
		return c.Response.Data.Flags&discordgo.MessageFlagsEphemeral != 0
	case c.WebhookParams != nil:
		return c.WebhookParams.Flags&discordgo.MessageFlagsEphemeral != 0
	}
	return false
}

// RecordingTransport captures every call a response.Response makes.
// Set Err to make every call fail.
type RecordingTransport struct {
	mu    sync.Mutex
	calls []Call
	Err   error
}

// NewRecordingTransport creates an empty RecordingTransport.
func NewRecordingTransport() *RecordingTransport {
	return &RecordingTransport{}
}

func (t *RecordingTransport) add(c Call) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return t.Err
	}
	t.calls = append(t.calls, c)
	return nil
}

func (t *RecordingTransport) Respond(_ context.Context, ix *models.Interaction, resp *discordgo.InteractionResponse) error {
	return t.add(Call{Method: "respond", InteractionID: ix.ID, Response: resp})
}

func (t *RecordingTransport) EditOriginal(_ context.Context, ix *models.Interaction, edit *discordgo.WebhookEdit) (*discordgo.Message, error) {
	if err := t.add(Call{Method: "edit_original", InteractionID: ix.ID, WebhookEdit: edit}); err != nil {
		return nil, err
	}
	return &discordgo.Message{ID: ix.MessageID, ChannelID: ix.ChannelID}, nil
}

func (t *RecordingTransport) Followup(_ context.Context, ix *models.Interaction, params *discordgo.WebhookParams) (*discordgo.Message, error) {
	if err := t.add(Call{Method: "followup", InteractionID: ix.ID, WebhookParams: params}); err != nil {
		return nil, err
	}
	return &discordgo.Message{ID: "followup-" + ix.ID, ChannelID: ix.ChannelID, Content: params.Content}, nil
}

func (t *RecordingTransport) EditMessage(_ context.Context, edit *discordgo.MessageEdit) (*discordgo.Message, error) {
	if err := t.add(Call{Method: "edit_message", MessageEdit: edit}); err != nil {
		return nil, err
	}
	return &discordgo.Message{ID: edit.ID, ChannelID: edit.Channel}, nil
}

// Calls returns a copy of the captured calls.
func (t *RecordingTransport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}

// Last returns the most recent call, failing the test if there is none.
func (t *RecordingTransport) Last(tb testing.TB) Call {
	tb.Helper()
	calls := t.Calls()
	if len(calls) == 0 {
		tb.Fatal("no calls recorded")
	}
	return calls[len(calls)-1]
}

// CountInitial returns how many initial responses were sent per interaction.
func (t *RecordingTransport) CountInitial() map[string]int {
	counts := make(map[string]int)
	for _, c := range t.Calls() {
		if c.Method == "respond" {
			counts[c.InteractionID]++
		}
	}
	return counts
}

// Reset forgets captured calls.
func (t *RecordingTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = nil
}

// CountingKV wraps a session.KV and counts writes.
type CountingKV struct {
	session.KV
	sets    atomic.Int64
	deletes atomic.Int64
}

// NewCountingKV wraps kv.
func NewCountingKV(kv session.KV) *CountingKV {
	return &CountingKV{KV: kv}
}

func (c *CountingKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.sets.Add(1)
	return c.KV.Set(ctx, key, value, ttl)
}

func (c *CountingKV) Delete(ctx context.Context, key string) error {
	c.deletes.Add(1)
	return c.KV.Delete(ctx, key)
}

// Writes returns the number of Set and Delete calls seen.
func (c *CountingKV) Writes() int64 {
	return c.sets.Load() + c.deletes.Load()
}

var interactionSeq atomic.Int64

func nextInteractionID() string {
	return fmt.Sprintf("ix-%d", interactionSeq.Add(1))
}

// CommandInteraction builds a slash command interaction.
func CommandInteraction(userID int64, command string, options map[string]interface{}) *models.Interaction {
	opts := make(map[string]models.Option, len(options))
	for name, v := range options {
		opts[name] = models.Option{Name: name, Value: v}
	}
	return &models.Interaction{
		ID:          nextInteractionID(),
		Token:       "token",
		AppID:       "app",
		Kind:        models.InteractionCommand,
		UserID:      userID,
		GuildID:     "guild-1",
		ChannelID:   "channel-1",
		CommandName: command,
		Options:     opts,
	}
}

// AutocompleteInteraction builds an autocomplete interaction focused on one option.
func AutocompleteInteraction(userID int64, command, focused string, value interface{}, others map[string]interface{}) *models.Interaction {
	ix := CommandInteraction(userID, command, others)
	ix.Kind = models.InteractionAutocomplete
	ix.Options[focused] = models.Option{Name: focused, Value: value, Focused: true}
	return ix
}

// ComponentInteraction builds a component interaction on the prompt message.
func ComponentInteraction(userID int64, customID string, values ...string) *models.Interaction {
	return &models.Interaction{
		ID:        nextInteractionID(),
		Token:     "token",
		AppID:     "app",
		Kind:      models.InteractionComponent,
		UserID:    userID,
		GuildID:   "guild-1",
		ChannelID: "channel-1",
		MessageID: "message-1",
		CustomID:  customID,
		Values:    values,
	}
}

// ModalInteraction builds a modal submission.
func ModalInteraction(userID int64, customID string, fields map[string]string) *models.Interaction {
	ix := ComponentInteraction(userID, customID)
	ix.Kind = models.InteractionModalSubmit
	ix.ModalValues = fields
	return ix
}

// UserID formats a user ID the way Discord does.
func UserID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}
