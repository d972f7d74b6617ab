package sanitize

import "testing"

func TestClean(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "Hello world", "Hello world"},
		{"null byte", "a\x00b", "ab"},
		{"tab and newline", "line1\nline2\tend", "line1line2end"},
		{"vertical tab", "soft\vbreak", "softbreak"},
		{"delete", "x\x7Fy", "xy"},
		{"unit separator", "a\x1Fb", "ab"},
		{"only controls", "\x00\x01\x1F\x7F\n\r", ""},
		{"space kept", "  a b  ", "  a b  "},
		{"unicode kept", "Überblick – 日本語", "Überblick – 日本語"},
		{"c1 controls kept", "a\u0085b", "a\u0085b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.input); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"Slide 1: Intro",
		"a\x00\x01b\nc",
		"\x7F\x7F",
		"mixed\tcontent\r\nwith ünïcode",
	}
	for _, in := range inputs {
		once := Clean(in)
		twice := Clean(once)
		if once != twice {
			t.Errorf("Clean not idempotent for %q: %q then %q", in, once, twice)
		}
		if hasControl(once) {
			t.Errorf("Clean(%q) = %q still contains control characters", in, once)
		}
	}
}

func TestCleanInvalidUTF8(t *testing.T) {
	in := "ok\xff\x00end"
	got := Clean(in)
	if hasControl(got) {
		t.Errorf("Clean(%q) = %q still contains control characters", in, got)
	}
}

func TestCleanLines(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"plain", "plain"},
		{"a\x00b", "ab"},
		{"one\ntwo", "one\ntwo"},
		{"o\tne\r\ntw\x07o\n", "one\ntwo\n"},
		{"\n\n", "\n\n"},
	}
	for _, tt := range tests {
		if got := CleanLines(tt.in); got != tt.want {
			t.Errorf("CleanLines(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
