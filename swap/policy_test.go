package swap

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

func TestAcceptZeroConf(t *testing.T) {
	base := ZeroConfParams{
		PairAllowsZeroConf: true,
		MaxZeroConfAmount:  1_000_000,
		MinFeePerVByte:     1,
		Amount:             500_000,
		FeePerVByte:        2,
	}

	require.True(t, acceptZeroConf(base))

	disallowed := base
	disallowed.PairAllowsZeroConf = false
	require.False(t, acceptZeroConf(disallowed))

	tooBig := base
	tooBig.Amount = 2_000_000
	require.False(t, acceptZeroConf(tooBig))

	rbf := base
	rbf.RBFSignaled = true
	require.False(t, acceptZeroConf(rbf))

	nonStandard := base
	nonStandard.HasNonStandardInputs = true
	require.False(t, acceptZeroConf(nonStandard))

	lowFee := base
	lowFee.FeePerVByte = btcutil.Amount(0)
	require.False(t, acceptZeroConf(lowFee))
}

func TestLockupEligible(t *testing.T) {
	require.True(t, lockupEligible(1_000_000, 1_000_000))
	require.True(t, lockupEligible(1_500_000, 1_000_000))
	require.False(t, lockupEligible(500_000, 1_000_000))
}
