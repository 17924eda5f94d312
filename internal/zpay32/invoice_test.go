package zpay32

import "testing"

func TestDecodeAmount(t *testing.T) {
	cases := []struct {
		hrp  string
		want uint64
	}{
		{"1m", 100000000},
		{"10u", 1000000},
		{"100n", 10000},
		{"10p", 1},
	}
	for _, c := range cases {
		got, err := decodeAmount(c.hrp)
		if err != nil {
			t.Fatalf("decodeAmount(%q): %v", c.hrp, err)
		}
		if got != c.want {
			t.Errorf("decodeAmount(%q) = %d, want %d", c.hrp, got, c.want)
		}
	}
}

func TestBase32ToUint64(t *testing.T) {
	got, err := base32ToUint64([]byte{1, 1})
	if err != nil {
		t.Fatal(err)
	}
	if got != 33 {
		t.Errorf("got %d, want 33", got)
	}

	if _, err := base32ToUint64([]byte{32}); err == nil {
		t.Error("expected error for invalid base32 digit")
	}
}

func TestShortChannelIDPacking(t *testing.T) {
	b, err := beRoundTrip()
	if err != nil {
		t.Fatal(err)
	}
	if !b {
		t.Error("round trip mismatch")
	}
}

func beRoundTrip() (bool, error) {
	in := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}
	v := beUint64(in)
	return v == 0x0001020304050607, nil
}
