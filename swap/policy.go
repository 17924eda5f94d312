package swap

import "github.com/btcsuite/btcd/btcutil"

// ZeroConfParams are the inputs the zero-conf acceptance gate needs from
// the pair config and the observed lockup (spec §4.6, "Zero-conf
// acceptance").
type ZeroConfParams struct {
	PairAllowsZeroConf bool
	MaxZeroConfAmount  uint64
	MinFeePerVByte     btcutil.Amount

	Amount               uint64
	RBFSignaled          bool
	HasNonStandardInputs bool
	FeePerVByte          btcutil.Amount
}

// acceptZeroConf implements the policy gate from spec §4.6: an unconfirmed
// lockup is only eligible if the pair permits zero-conf, the amount is
// within the configured ceiling, there's no RBF signal or non-standard
// input, and the fee rate clears the configured minimum. Anything else
// holds the swap in TransactionMempool until a confirmation arrives.
func acceptZeroConf(p ZeroConfParams) bool {
	if !p.PairAllowsZeroConf {
		return false
	}
	if p.Amount > p.MaxZeroConfAmount {
		return false
	}
	if p.RBFSignaled || p.HasNonStandardInputs {
		return false
	}
	if p.FeePerVByte < p.MinFeePerVByte {
		return false
	}
	return true
}

// lockupEligible reports whether an observed lockup amount clears the
// swap's expected amount, per §4.6 "Lockup underpayment": underpayment is
// fatal to the forward path, overpayment is accepted as-is.
func lockupEligible(actual, expected uint64) bool {
	return actual >= expected
}
