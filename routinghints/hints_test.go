package routinghints

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDescriptionHashLengthCheck(t *testing.T) {
	e := New([33]byte{})

	_, err := e.Create(CreateRequest{
		SendingCurrency: "BTC",
		OnchainAmount:   100000,
		DescriptionHash: make([]byte, 31),
	})
	require.ErrorIs(t, err, ErrBadDescriptionHash)

	_, err = e.Create(CreateRequest{
		SendingCurrency: "BTC",
		OnchainAmount:   100000,
		DescriptionHash: make([]byte, 33),
	})
	require.ErrorIs(t, err, ErrBadDescriptionHash)

	_, err = e.Create(CreateRequest{
		SendingCurrency: "BTC",
		OnchainAmount:   100000,
		DescriptionHash: make([]byte, 32),
	})
	require.NoError(t, err)
}

func TestReceivedAmountFormula(t *testing.T) {
	e := New([33]byte{})

	res, err := e.Create(CreateRequest{
		SendingCurrency: "BTC",
		OnchainAmount:   500000,
		ClaimMinerFees:  ClaimMinerFee{"BTC": 150},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(499850), res.ReceivedAmount)
}

func TestBOLT11GetsRoutingHintBOLT12DoesNot(t *testing.T) {
	e := New([33]byte{1, 2, 3})

	res, err := e.Create(CreateRequest{
		SendingCurrency: "BTC",
		OnchainAmount:   100000,
	})
	require.NoError(t, err)
	require.Len(t, res.RoutingHints, 1)
	require.Equal(t, WellKnownShortChannelID(), res.RoutingHints[0].ShortChannelID)

	res, err = e.Create(CreateRequest{
		SendingCurrency: "BTC",
		OnchainAmount:   100000,
		IsBOLT12:        true,
	})
	require.NoError(t, err)
	require.Empty(t, res.RoutingHints)
}
