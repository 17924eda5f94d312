package swapdb

import "testing"

func TestSubmarineDiagramInvariants(t *testing.T) {
	cases := []struct {
		from, to SwapStatus
		allowed  bool
	}{
		{"", StatusSwapCreated, true},
		{StatusSwapCreated, StatusTransactionMempool, true},
		{StatusTransactionMempool, StatusTransactionConfirmed, true},
		{StatusTransactionConfirmed, StatusTransactionMempool, true}, // reorg
		{StatusTransactionConfirmed, StatusInvoicePaid, true},
		{StatusInvoicePaid, StatusTransactionClaimPend, true},
		{StatusTransactionClaimPend, StatusTransactionClaimed, true},
		{StatusSwapCreated, StatusTransactionLockupFail, true},
		{StatusTransactionLockupFail, StatusTransactionRefunded, true},
		{StatusSwapCreated, StatusTransactionClaimed, false},
		{StatusTransactionClaimed, StatusSwapExpired, false},
		{StatusInvoiceFailedToPay, StatusTransactionClaimed, false},
	}

	for _, c := range cases {
		got := isAllowed(submarinePredecessors, c.from, c.to)
		if got != c.allowed {
			t.Errorf("isAllowed(%s -> %s) = %v, want %v",
				c.from, c.to, got, c.allowed)
		}
	}
}

func TestReverseDiagramInvariants(t *testing.T) {
	cases := []struct {
		from, to SwapStatus
		allowed  bool
	}{
		{"", StatusSwapCreated, true},
		{StatusSwapCreated, StatusInvoiceSet, true},
		{StatusInvoiceSet, StatusTransactionMempool, true},
		{StatusTransactionMempool, StatusTransactionConfirmed, true},
		{StatusTransactionConfirmed, StatusTransactionClaimed, true},
		{StatusInvoiceSet, StatusSwapExpired, true},
		{StatusSwapExpired, StatusTransactionRefunded, true},
		{StatusSwapCreated, StatusTransactionConfirmed, false},
		{StatusTransactionClaimed, StatusSwapExpired, false},
	}

	for _, c := range cases {
		got := isAllowed(reversePredecessors, c.from, c.to)
		if got != c.allowed {
			t.Errorf("isAllowed(%s -> %s) = %v, want %v",
				c.from, c.to, got, c.allowed)
		}
	}
}
