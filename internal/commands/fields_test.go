package commands

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/BTreeMap/RoleBridge/internal/prompt"
	"github.com/google/go-cmp/cmp"
)

func numberedLines(n, width int) []string {
	lines := make([]string, n)
	for i := range lines {
		prefix := fmt.Sprintf("%03d ", i)
		lines[i] = prefix + strings.Repeat("x", width-len(prefix))
	}
	return lines
}

func TestSplitField(t *testing.T) {
	tests := []struct {
		name       string
		lines      []string
		maxFields  int
		wantNames  []string
		wantHidden string
	}{
		{name: "fits one field", lines: []string{"a", "b"}, maxFields: 3, wantNames: []string{"Binds"}},
		{name: "continues", lines: numberedLines(30, 50), maxFields: 3, wantNames: []string{"Binds", "Binds (continued)"}},
		{name: "overflow noted", lines: numberedLines(100, 50), maxFields: 2, wantNames: []string{"Binds", "Binds (continued)"}, wantHidden: "more."},
		{name: "long line clipped", lines: []string{strings.Repeat("é", 2000)}, maxFields: 3, wantNames: []string{"Binds"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := splitField("Binds", tt.lines, true, tt.maxFields)

			var names []string
			shown := 0
			for _, f := range fields {
				names = append(names, f.Name)
				if n := utf8.RuneCountInString(f.Value); n > maxFieldValue {
					t.Errorf("field %q has %d runes", f.Name, n)
				}
				shown += strings.Count(f.Value, "\n") + 1
			}
			if diff := cmp.Diff(tt.wantNames, names); diff != "" {
				t.Errorf("field names mismatch (-want +got):\n%s", diff)
			}
			last := fields[len(fields)-1].Value
			if tt.wantHidden == "" {
				if shown != len(tt.lines) {
					t.Errorf("shown %d lines, want %d", shown, len(tt.lines))
				}
				return
			}
			if !strings.HasSuffix(last, tt.wantHidden) {
				t.Errorf("last field ends %q, want overflow note", last[len(last)-20:])
			}
			var hidden int
			if _, err := fmt.Sscanf(last[strings.LastIndex(last, "\n")+1:], "…and %d more.", &hidden); err != nil {
				t.Fatalf("bad overflow note: %v", err)
			}
			if shown-1+hidden != len(tt.lines) {
				t.Errorf("shown %d plus hidden %d lines, want %d", shown-1, hidden, len(tt.lines))
			}
		})
	}
}

func TestBindFieldsEmpty(t *testing.T) {
	if got := bindFields("Binds", "", false); got != nil {
		t.Errorf("bindFields(\"\") = %+v, want nil", got)
	}
	want := []prompt.Field{{Name: "Binds", Value: "- one\n- two"}}
	if diff := cmp.Diff(want, bindFields("Binds", "- one\n- two", false)); diff != "" {
		t.Errorf("bindFields mismatch (-want +got):\n%s", diff)
	}
}
