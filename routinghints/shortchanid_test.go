package routinghints

import "testing"

func TestWellKnownShortChannelIDDecodes(t *testing.T) {
	got := ParseShortChannelID(WellKnownShortChannelID())

	want := ShortChannelID{BlockHeight: 542409, TxIndex: 1308, OutputIndex: 0}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestShortChannelIDRoundTrip(t *testing.T) {
	cases := []ShortChannelID{
		{BlockHeight: 0, TxIndex: 0, OutputIndex: 0},
		{BlockHeight: 1, TxIndex: 1, OutputIndex: 1},
		{BlockHeight: 16777215, TxIndex: 16777215, OutputIndex: 65535},
	}
	for _, c := range cases {
		got := ParseShortChannelID(c.ToUint64())
		if got != c {
			t.Errorf("round trip of %+v produced %+v", c, got)
		}
	}
}
