package swap

import "testing"

func TestSplitPair(t *testing.T) {
	base, quote := splitPair("BTC/L-BTC")
	if base != "BTC" || quote != "L-BTC" {
		t.Fatalf("got (%q, %q)", base, quote)
	}

	base, quote = splitPair("BTC")
	if base != "BTC" || quote != "" {
		t.Fatalf("got (%q, %q)", base, quote)
	}
}

func TestNewSwapIDDeterministic(t *testing.T) {
	var hash [32]byte
	copy(hash[:], []byte("01234567890123456789012345678901"))

	id1 := newSwapID(hash)
	id2 := newSwapID(hash)
	if id1 != id2 {
		t.Fatalf("newSwapID is not deterministic: %q vs %q", id1, id2)
	}
	if len(id1) != 16 {
		t.Fatalf("expected 16 hex chars, got %d (%q)", len(id1), id1)
	}
}
