package commands

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/BTreeMap/RoleBridge/internal/prompt"
)

const (
	maxFieldValue  = 1024
	maxOptionLabel = 100

	// maxBindFields caps how many fields one bind list may take in an embed,
	// keeping the embed under Discord's 6000 character total.
	maxBindFields = 3

	continuedSuffix = " (continued)"
)

// splitField lays lines out over as many fields as their length needs, each
// at most maxFieldValue runes. Past maxFields the rest is counted in a note on
// the last field rather than dropped silently.
func splitField(name string, lines []string, inline bool, maxFields int) []prompt.Field {
	var fields []prompt.Field
	var chunk []string
	size := 0
	flush := func() {
		if len(chunk) == 0 {
			return
		}
		n := name
		if len(fields) > 0 {
			n += continuedSuffix
		}
		fields = append(fields, prompt.Field{Name: n, Value: strings.Join(chunk, "\n"), Inline: inline})
		chunk, size = nil, 0
	}

	for i, line := range lines {
		line = clip(line, maxFieldValue)
		n := utf8.RuneCountInString(line)
		if len(chunk) > 0 && size+1+n > maxFieldValue {
			flush()
		}
		if len(fields) == maxFields {
			return withOverflowNote(fields, len(lines)-i)
		}
		if len(chunk) > 0 {
			size++
		}
		chunk = append(chunk, line)
		size += n
	}
	flush()
	return fields
}

// withOverflowNote ends the last field with a count of the lines that did not
// fit, dropping lines from that field until the note fits too.
func withOverflowNote(fields []prompt.Field, hidden int) []prompt.Field {
	last := &fields[len(fields)-1]
	lines := strings.Split(last.Value, "\n")
	for {
		note := fmt.Sprintf("…and %d more.", hidden)
		value := strings.Join(append(append([]string(nil), lines...), note), "\n")
		if utf8.RuneCountInString(value) <= maxFieldValue || len(lines) == 1 {
			last.Value = clip(value, maxFieldValue)
			return fields
		}
		lines = lines[:len(lines)-1]
		hidden++
	}
}

// bindFields is splitField for a newline-joined bind description.
func bindFields(name, desc string, inline bool) []prompt.Field {
	if desc == "" {
		return nil
	}
	return splitField(name, strings.Split(desc, "\n"), inline, maxBindFields)
}

// clip shortens s to at most n runes, marking the cut with an ellipsis.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
