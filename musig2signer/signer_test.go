package musig2signer

import (
	"testing"

	"github.com/lightninglabs/swapd/swapdb"
	"github.com/stretchr/testify/require"
)

func TestIsRefundEligible(t *testing.T) {
	cases := []struct {
		name             string
		status           swapdb.SwapStatus
		preimageUnset    bool
		noPendingPayment bool
		want             bool
	}{
		{"expired always eligible", swapdb.StatusSwapExpired, false, false, true},
		{"failed to pay always eligible", swapdb.StatusInvoiceFailedToPay, false, false, true},
		{"lockup failed always eligible", swapdb.StatusTransactionLockupFail, false, false, true},
		{"confirmed, unpaid, no pending", swapdb.StatusTransactionConfirmed, true, true, true},
		{"confirmed, unpaid, has pending", swapdb.StatusTransactionConfirmed, true, false, false},
		{"confirmed, already paid", swapdb.StatusTransactionConfirmed, false, true, false},
		{"claimed never eligible", swapdb.StatusTransactionClaimed, true, true, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := isRefundEligible(c.status, c.preimageUnset, c.noPendingPayment)
			require.Equal(t, c.want, got)
		})
	}
}
