package common

import "testing"

func TestNewPair_OrderIndependent(t *testing.T) {
	tests := []struct {
		name  string
		a, b  string
		wantA string
		wantB string
	}{
		{name: "already ordered", a: "alice@example.com", b: "bob@example.com", wantA: "alice@example.com", wantB: "bob@example.com"},
		{name: "reversed", a: "bob@example.com", b: "alice@example.com", wantA: "alice@example.com", wantB: "bob@example.com"},
		{name: "identical", a: "carol@example.com", b: "carol@example.com", wantA: "carol@example.com", wantB: "carol@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPair(tt.a, tt.b)
			if p.A != tt.wantA || p.B != tt.wantB {
				t.Fatalf("NewPair(%q, %q) = (%q, %q), want (%q, %q)", tt.a, tt.b, p.A, p.B, tt.wantA, tt.wantB)
			}
		})
	}
}

func TestPairKey_Commutative(t *testing.T) {
	fwd := NewPair("alice@example.com", "bob@example.com").Key()
	rev := NewPair("bob@example.com", "alice@example.com").Key()
	if fwd != rev {
		t.Fatalf("keys differ: %q vs %q", fwd, rev)
	}
	if fwd != "alice@example.com|bob@example.com" {
		t.Fatalf("unexpected key: %q", fwd)
	}
}

func TestPairIsSelf(t *testing.T) {
	if !NewPair("a@x.com", "a@x.com").IsSelf() {
		t.Fatal("expected self pair")
	}
	if NewPair("a@x.com", "b@x.com").IsSelf() {
		t.Fatal("expected non-self pair")
	}
}

func TestParsePairKey(t *testing.T) {
	p, ok := ParsePairKey("alice@example.com|bob@example.com")
	if !ok {
		t.Fatal("expected valid key")
	}
	if p.A != "alice@example.com" || p.B != "bob@example.com" {
		t.Fatalf("unexpected pair: %+v", p)
	}

	if _, ok := ParsePairKey("missing-separator"); ok {
		t.Fatal("expected invalid key")
	}
	if _, ok := ParsePairKey("|empty-left"); ok {
		t.Fatal("expected invalid key")
	}
}
