// Package customid encodes and decodes the routing tokens embedded in every
// interactive component RoleBridge renders.
//
// A token is a ':'-joined positional tuple. The header is always
// command_name:prompt_name:user_id:page_number:component_custom_id, followed by
// any prompt-specific fields declared by a Schema. Discord echoes the token
// back verbatim on the next interaction, which is how a stateless callback
// finds its way back to the right prompt, page and component.
package customid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// Delimiter separates token fields. It is rejected inside field values.
	Delimiter = ":"
	// MaxLength is Discord's limit for a component custom_id.
	MaxLength = 100
	// NoComponent is the component field used before any component fired.
	NoComponent = "none"
)

// Header field names, in encoding order.
const (
	FieldCommandName = "command_name"
	FieldPromptName  = "prompt_name"
	FieldUserID      = "user_id"
	FieldPageNumber  = "page_number"
	FieldComponentID = "component_custom_id"
)

const headerFields = 5

var (
	// ErrMalformedToken is returned when a custom ID does not match its schema.
	ErrMalformedToken = errors.New("malformed custom id")
	// ErrTooLong is returned when an encoded token exceeds MaxLength.
	ErrTooLong = errors.New("custom id exceeds maximum length")
	// ErrInvalidField is returned when a field value cannot be encoded losslessly.
	ErrInvalidField = errors.New("invalid custom id field")
)

// Kind is the value kind of a prompt-specific field.
type Kind int

const (
	KindString Kind = iota
	KindInt
)

// Field declares one prompt-specific field.
type Field struct {
	Name string
	Kind Kind
}

// Schema lists the prompt-specific fields appended after the header.
type Schema struct {
	Extra []Field
}

// NewSchema builds a Schema from field declarations.
func NewSchema(fields ...Field) Schema {
	return Schema{Extra: fields}
}

// Index returns the position of a prompt-specific field, or -1.
func (s Schema) Index(name string) int {
	for i, f := range s.Extra {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Token is a decoded custom ID.
type Token struct {
	CommandName string
	PromptName  string
	UserID      int64
	PageNumber  int
	ComponentID string
	// Extra holds prompt-specific fields in schema order.
	Extra []string
}

// Get returns a prompt-specific field by name.
func (t Token) Get(s Schema, name string) (string, bool) {
	i := s.Index(name)
	if i < 0 || i >= len(t.Extra) {
		return "", false
	}
	return t.Extra[i], true
}

// GetInt returns a prompt-specific integer field by name.
func (t Token) GetInt(s Schema, name string) (int64, error) {
	v, ok := t.Get(s, name)
	if !ok {
		return 0, fmt.Errorf("%w: field %q not present", ErrMalformedToken, name)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: field %q is not an integer", ErrMalformedToken, name)
	}
	return n, nil
}

// Set assigns any field, header or prompt-specific, by name.
func (t *Token) Set(s Schema, name, value string) error {
	switch name {
	case FieldCommandName:
		t.CommandName = value
	case FieldPromptName:
		t.PromptName = value
	case FieldComponentID:
		t.ComponentID = value
	case FieldUserID:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer", ErrInvalidField, name)
		}
		t.UserID = n
	case FieldPageNumber:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer", ErrInvalidField, name)
		}
		t.PageNumber = n
	default:
		i := s.Index(name)
		if i < 0 {
			return fmt.Errorf("%w: unknown field %q", ErrInvalidField, name)
		}
		if s.Extra[i].Kind == KindInt {
			if _, err := strconv.ParseInt(value, 10, 64); err != nil {
				return fmt.Errorf("%w: %s must be an integer", ErrInvalidField, name)
			}
		}
		for len(t.Extra) < len(s.Extra) {
			t.Extra = append(t.Extra, "")
		}
		t.Extra[i] = value
	}
	return nil
}

// Encode serializes a token. It never truncates: tokens over MaxLength and
// values containing the delimiter are rejected.
func Encode(t Token, s Schema) (string, error) {
	if len(t.Extra) != len(s.Extra) {
		return "", fmt.Errorf("%w: expected %d prompt fields, got %d", ErrInvalidField, len(s.Extra), len(t.Extra))
	}
	parts := make([]string, 0, headerFields+len(t.Extra))
	parts = append(parts,
		t.CommandName,
		t.PromptName,
		strconv.FormatInt(t.UserID, 10),
		strconv.Itoa(t.PageNumber),
		t.ComponentID,
	)
	for i, v := range t.Extra {
		if s.Extra[i].Kind == KindInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				return "", fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalidField, s.Extra[i].Name, v)
			}
		}
		parts = append(parts, v)
	}
	for _, p := range parts {
		if strings.Contains(p, Delimiter) {
			return "", fmt.Errorf("%w: value %q contains %q", ErrInvalidField, p, Delimiter)
		}
	}
	encoded := strings.Join(parts, Delimiter)
	if len(encoded) > MaxLength {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLong, len(encoded))
	}
	return encoded, nil
}

// Decode parses a custom ID against a schema.
func Decode(raw string, s Schema) (Token, error) {
	parts := strings.Split(raw, Delimiter)
	if len(parts) != headerFields+len(s.Extra) {
		return Token{}, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedToken, headerFields+len(s.Extra), len(parts))
	}
	userID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Token{}, fmt.Errorf("%w: user id %q", ErrMalformedToken, parts[2])
	}
	page, err := strconv.Atoi(parts[3])
	if err != nil {
		return Token{}, fmt.Errorf("%w: page number %q", ErrMalformedToken, parts[3])
	}
	t := Token{
		CommandName: parts[0],
		PromptName:  parts[1],
		UserID:      userID,
		PageNumber:  page,
		ComponentID: parts[4],
		Extra:       append([]string(nil), parts[headerFields:]...),
	}
	for i, f := range s.Extra {
		if f.Kind != KindInt {
			continue
		}
		if _, err := strconv.ParseInt(t.Extra[i], 10, 64); err != nil {
			return Token{}, fmt.Errorf("%w: %s %q", ErrMalformedToken, f.Name, t.Extra[i])
		}
	}
	return t, nil
}

// Patch rewrites one field of an encoded token, leaving the rest untouched.
func Patch(raw string, s Schema, field, value string) (string, error) {
	t, err := Decode(raw, s)
	if err != nil {
		return "", err
	}
	if err := t.Set(s, field, value); err != nil {
		return "", err
	}
	return Encode(t, s)
}

// PeekHeader reads the command and prompt names without a schema, so a router
// can pick the right prompt definition before a full decode.
func PeekHeader(raw string) (command, prompt string, ok bool) {
	parts := strings.SplitN(raw, Delimiter, headerFields+1)
	if len(parts) < headerFields {
		return "", "", false
	}
	return parts[0], parts[1], true
}
