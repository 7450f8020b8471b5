package customid

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var groupSchema = NewSchema(Field{Name: "group_id", Kind: KindInt})

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		token  Token
		schema Schema
	}{
		{
			name:  "header only",
			token: Token{CommandName: "viewbinds", PromptName: "Paginator", UserID: 1, PageNumber: 0, ComponentID: NoComponent},
		},
		{
			name:   "with int field",
			token:  Token{CommandName: "bind", PromptName: "GroupPrompt", UserID: 84117866944663552, PageNumber: 3, ComponentID: "discord_role", Extra: []string{"12345"}},
			schema: groupSchema,
		},
		{
			name:  "string and int fields",
			token: Token{CommandName: "bind", PromptName: "GBP", UserID: 7, PageNumber: 1, ComponentID: "publish", Extra: []string{"42", "badge"}},
			schema: NewSchema(
				Field{Name: "entity_id", Kind: KindInt},
				Field{Name: "entity_type", Kind: KindString},
			),
		},
		{
			name:   "empty component",
			token:  Token{CommandName: "bind", PromptName: "GroupPrompt", UserID: 9, PageNumber: 0, ComponentID: "", Extra: []string{"1"}},
			schema: groupSchema,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := Encode(tt.token, tt.schema)
			if err != nil {
				t.Fatalf("Encode: unexpected error: %v", err)
			}
			decoded, err := Decode(encoded, tt.schema)
			if err != nil {
				t.Fatalf("Decode(%q): unexpected error: %v", encoded, err)
			}
			if diff := cmp.Diff(tt.token, decoded); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeFieldOrder(t *testing.T) {
	tok := Token{CommandName: "bind", PromptName: "GroupPrompt", UserID: 5, PageNumber: 2, ComponentID: "new_bind", Extra: []string{"12345"}}
	got, err := Encode(tok, groupSchema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "bind:GroupPrompt:5:2:new_bind:12345"; got != want {
		t.Errorf("Encode = %q, want %q", got, want)
	}
}

func TestPatchIsolation(t *testing.T) {
	tok := Token{CommandName: "bind", PromptName: "GroupPrompt", UserID: 5, PageNumber: 2, ComponentID: NoComponent, Extra: []string{"12345"}}
	encoded, err := Encode(tok, groupSchema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, v := range []string{"criteria_select", "discord_role", "x", ""} {
		patched, err := Patch(encoded, groupSchema, FieldComponentID, v)
		if err != nil {
			t.Fatalf("Patch(%q): unexpected error: %v", v, err)
		}
		got, err := Decode(patched, groupSchema)
		if err != nil {
			t.Fatalf("Decode(%q): unexpected error: %v", patched, err)
		}
		want := tok
		want.ComponentID = v
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("patch %q changed other fields (-want +got):\n%s", v, diff)
		}
	}
}

func TestPatchExtraField(t *testing.T) {
	encoded := "bind:GroupPrompt:5:2:none:12345"
	patched, err := Patch(encoded, groupSchema, "group_id", "999")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patched != "bind:GroupPrompt:5:2:none:999" {
		t.Errorf("Patch = %q", patched)
	}
	if _, err := Patch(encoded, groupSchema, "group_id", "abc"); !errors.Is(err, ErrInvalidField) {
		t.Errorf("expected ErrInvalidField for non-integer group_id, got %v", err)
	}
	if _, err := Patch(encoded, groupSchema, "nope", "1"); !errors.Is(err, ErrInvalidField) {
		t.Errorf("expected ErrInvalidField for unknown field, got %v", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"too few fields", "bind:GroupPrompt:5:2"},
		{"missing extra", "bind:GroupPrompt:5:2:none"},
		{"too many fields", "bind:GroupPrompt:5:2:none:1:2"},
		{"user id not int", "bind:GroupPrompt:abc:2:none:1"},
		{"page not int", "bind:GroupPrompt:5:two:none:1"},
		{"extra not int", "bind:GroupPrompt:5:2:none:group"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw, groupSchema)
			if !errors.Is(err, ErrMalformedToken) {
				t.Errorf("Decode(%q) error = %v, want ErrMalformedToken", tt.raw, err)
			}
		})
	}
}

func TestEncodeRejectsInvalidInput(t *testing.T) {
	base := Token{CommandName: "bind", PromptName: "GroupPrompt", UserID: 5, PageNumber: 0, ComponentID: "none", Extra: []string{"1"}}

	withColon := base
	withColon.ComponentID = "a:b"
	if _, err := Encode(withColon, groupSchema); !errors.Is(err, ErrInvalidField) {
		t.Errorf("expected ErrInvalidField for delimiter in value, got %v", err)
	}

	tooLong := base
	tooLong.ComponentID = strings.Repeat("c", MaxLength)
	if _, err := Encode(tooLong, groupSchema); !errors.Is(err, ErrTooLong) {
		t.Errorf("expected ErrTooLong, got %v", err)
	}

	missing := base
	missing.Extra = nil
	if _, err := Encode(missing, groupSchema); !errors.Is(err, ErrInvalidField) {
		t.Errorf("expected ErrInvalidField for missing extra, got %v", err)
	}
}

func TestTokenGetInt(t *testing.T) {
	tok, err := Decode("bind:GroupPrompt:5:2:none:12345", groupSchema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id, err := tok.GetInt(groupSchema, "group_id")
	if err != nil || id != 12345 {
		t.Errorf("GetInt = %d, %v; want 12345", id, err)
	}
	if _, err := tok.GetInt(groupSchema, "entity_id"); !errors.Is(err, ErrMalformedToken) {
		t.Errorf("expected ErrMalformedToken for absent field, got %v", err)
	}
}

func TestPeekHeader(t *testing.T) {
	cmd, prompt, ok := PeekHeader("bind:GroupPrompt:5:2:none:12345")
	if !ok || cmd != "bind" || prompt != "GroupPrompt" {
		t.Errorf("PeekHeader = %q, %q, %v", cmd, prompt, ok)
	}
	if _, _, ok := PeekHeader("legacy-button"); ok {
		t.Error("PeekHeader should reject ids without a full header")
	}
}
