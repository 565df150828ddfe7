package score

import (
	"strconv"
	"testing"
	"time"
)

func mine(s Score, maxTries int) (Score, bool) {
	for n := 0; n < maxTries; n++ {
		suf := strconv.Itoa(n)
		if hasTrailingZeros(s.NextHash(suf), s.Strength) {
			return s.Extend(suf), true
		}
	}
	return s, false
}

func TestZeroValueValid(t *testing.T) {
	s := New(time.Now(), "example.com", 80, "ABCDEFGH@0000000000000001", 1)
	if !s.Valid() {
		t.Errorf("empty-suffix score should always be valid")
	}
	if s.Value() != 0 {
		t.Errorf("Value() = %d, want 0", s.Value())
	}
}

func TestMineLowStrength(t *testing.T) {
	s := New(time.Now(), "example.com", 80, "ABCDEFGH@0000000000000001", 1)
	extended, ok := mine(s, 100000)
	if !ok {
		t.Fatalf("failed to mine a strength-1 suffix within bound")
	}
	if !extended.Valid() {
		t.Errorf("mined score should be valid")
	}
	if extended.Value() != 1 {
		t.Errorf("Value() = %d, want 1", extended.Value())
	}
}

func TestExpired(t *testing.T) {
	s := New(time.Now().Add(-25*time.Hour), "h", 1, "ABCDEFGH@0000000000000001", 6)
	if !s.Expired(time.Now()) {
		t.Errorf("25h-old score should be expired")
	}
	fresh := New(time.Now(), "h", 1, "ABCDEFGH@0000000000000001", 6)
	if fresh.Expired(time.Now()) {
		t.Errorf("fresh score should not be expired")
	}
}

func TestTextRoundtrip(t *testing.T) {
	s := New(time.Date(2018, 6, 26, 0, 32, 43, 0, time.UTC), "example.com", 80, "ABCDEFGH@0000000000000001", 6)
	s = s.Extend("42").Extend("7")
	text := s.Text()
	parsed, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Value() != s.Value() || parsed.Host != s.Host || parsed.Invoice != s.Invoice {
		t.Errorf("roundtrip mismatch: %+v != %+v", parsed, s)
	}
	if parsed.Tail() != s.Tail() {
		t.Errorf("tail hash mismatch after roundtrip")
	}
}

func TestHeaderRoundtrip(t *testing.T) {
	s := New(time.Date(2018, 6, 26, 0, 32, 43, 0, time.UTC), "example.com", 80, "ABCDEFGH@0000000000000001", 6)
	s = s.Extend("99")
	header, err := s.Header()
	if err != nil {
		t.Fatalf("Header: %v", err)
	}
	parsed, err := ParseHeader(header)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if parsed.Strength != s.Strength || parsed.Host != s.Host || parsed.Port != s.Port || parsed.Invoice != s.Invoice {
		t.Errorf("header roundtrip mismatch: %+v != %+v", parsed, s)
	}
	if len(parsed.Suffixes) != 1 || parsed.Suffixes[0] != "99" {
		t.Errorf("header roundtrip lost suffixes: %+v", parsed.Suffixes)
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse("garbage"); err == nil {
		t.Errorf("expected error parsing garbage")
	}
}
