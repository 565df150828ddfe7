package id

import "testing"

func TestParseValid(t *testing.T) {
	got, err := Parse("0000000000000001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != Id(1) {
		t.Errorf("Parse = %v, want 1", got)
	}
}

func TestParseRoot(t *testing.T) {
	got, err := Parse("0000000000000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsRoot() {
		t.Errorf("expected root id")
	}
	if !Root.IsRoot() {
		t.Errorf("Root constant should be root")
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []string{
		"",
		"abc",
		"ABCDEF0123456789", // uppercase not allowed
		"00000000000000001",
		"000000000000000g",
	}
	for _, s := range tests {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", s)
		}
	}
}

func TestStringRoundtrip(t *testing.T) {
	want := "cafebabedeadbeef"
	got, err := Parse(want)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String() != want {
		t.Errorf("String() = %s, want %s", got.String(), want)
	}
}
