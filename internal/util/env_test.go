package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"yes", false, true},
		{" ON ", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("ROLEBRIDGE_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("ROLEBRIDGE_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 5 * time.Minute},
		{"90s", 90 * time.Second},
		{"10m", 10 * time.Minute},
		{"-1m", 5 * time.Minute},
		{"soon", 5 * time.Minute},
	}
	for _, tt := range tests {
		t.Setenv("ROLEBRIDGE_TEST_DURATION", tt.value)
		if got := ParseDurationEnv("ROLEBRIDGE_TEST_DURATION", 5*time.Minute); got != tt.want {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestFirstEnv(t *testing.T) {
	t.Setenv("ROLEBRIDGE_TEST_A", "")
	t.Setenv("ROLEBRIDGE_TEST_B", "b")
	if got := FirstEnv("ROLEBRIDGE_TEST_A", "ROLEBRIDGE_TEST_B"); got != "b" {
		t.Errorf("FirstEnv = %q, want b", got)
	}
	if got := FirstEnv("ROLEBRIDGE_TEST_A"); got != "" {
		t.Errorf("FirstEnv = %q, want empty", got)
	}
}
