package normalize

import "testing"

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Algebra Basics - Part 2", "Algebra Basics"},
		{"Algebra Basics Part 2", "Algebra Basics"},
		{"Fractions - Item 3", "Fractions"},
		{"Fractions Item 3", "Fractions"},
		{"ALGEBRA - PART 1", "ALGEBRA"},
		{"  Geometry - Part 10  ", "Geometry"},
		{"Plain Title", "Plain Title"},
		{"Partition Theory", "Partition Theory"}, // 不是尾部后缀
		{"Item 5", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanTitle(tt.in); got != tt.want {
			t.Errorf("CleanTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTitleTopic(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Geometry - Item 4", "Geometry"},
		{"Geometry Item 4", "Geometry"},
		{"Geometry - Part 4", ""}, // Part 后缀不反推主题
		{"Plain Title", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := TitleTopic(tt.in); got != tt.want {
			t.Errorf("TitleTopic(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEmail(t *testing.T) {
	if got := Email("  Alice@Example.COM "); got != "alice@example.com" {
		t.Fatalf("Email() = %q", got)
	}
}

func TestParseEventTime(t *testing.T) {
	tests := []string{
		"2026-03-01T10:00:00Z",
		"2026-03-01T10:00:00.123Z",
		"2026-03-01T10:00:00",
		"2026-03-01 10:00:00",
		"March 1, 2026 10:00",
	}
	for _, in := range tests {
		got, err := ParseEventTime(in)
		if err != nil {
			t.Errorf("ParseEventTime(%q) error: %v", in, err)
			continue
		}
		if got.Year() != 2026 || got.Month() != 3 || got.Day() != 1 || got.Hour() != 10 {
			t.Errorf("ParseEventTime(%q) = %v", in, got)
		}
	}
	if _, err := ParseEventTime("not a time"); err == nil {
		t.Error("ParseEventTime must reject unparseable input")
	}
	if _, err := ParseEventTime(""); err == nil {
		t.Error("ParseEventTime must reject empty input")
	}
}
