package amount

import "testing"

func TestAddSub(t *testing.T) {
	a, err := Parse("14.99")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Parse("0.01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.String() != "15" {
		t.Errorf("sum = %s, want 15", sum.String())
	}
	diff, err := sum.Sub(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff != a {
		t.Errorf("diff = %v, want %v", diff, a)
	}
}

func TestOverflow(t *testing.T) {
	if _, err := Max.Add(1); err != ErrOverflow {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
	if _, err := (-Max).Sub(1); err != ErrOverflow {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestMulInt64(t *testing.T) {
	a, _ := Parse("2")
	got, err := a.MulInt64(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String() != "6" {
		t.Errorf("got %s, want 6", got.String())
	}
	if _, err := Max.MulInt64(2); err != ErrOverflow {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestParseRoundtrip(t *testing.T) {
	cases := []string{"0", "1", "14.99", "-14.99", "0.00000001", "100"}
	for _, c := range cases {
		a, err := Parse(c)
		if err != nil {
			t.Fatalf("Parse(%s): %v", c, err)
		}
		if a.String() != c {
			// "0.00000001" is below one base unit (1/2^24 ZLD), so its text
			// cannot survive exactly; accept any text that reparses to the same amount.
			b, err := Parse(a.String())
			if err != nil || b != a {
				t.Errorf("roundtrip mismatch for %s: got %s", c, a.String())
			}
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, c := range []string{"", "abc", "1.2.3", "1.", "."} {
		if _, err := Parse(c); err == nil {
			t.Errorf("Parse(%q) expected error", c)
		}
	}
}

func TestSignCmp(t *testing.T) {
	a, _ := Parse("5")
	b, _ := Parse("-5")
	if a.Sign() != 1 || b.Sign() != -1 || Zero.Sign() != 0 {
		t.Errorf("unexpected signs")
	}
	if a.Cmp(b) != 1 || b.Cmp(a) != -1 || a.Cmp(a) != 0 {
		t.Errorf("unexpected Cmp results")
	}
}
