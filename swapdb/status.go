package swapdb

// SwapStatus is the unified status enum shared by submarine, reverse, and
// chain swaps (spec §3). Not every status applies to every swap kind; the
// predecessor sets below are keyed per kind in transitions.go.
type SwapStatus string

const (
	StatusSwapCreated            SwapStatus = "swap.created"
	StatusInvoiceSet             SwapStatus = "invoice.set"
	StatusInvoicePending         SwapStatus = "invoice.pending"
	StatusTransactionMempool     SwapStatus = "transaction.mempool"
	StatusTransactionConfirmed   SwapStatus = "transaction.confirmed"
	StatusInvoicePaid            SwapStatus = "invoice.paid"
	StatusTransactionClaimPend   SwapStatus = "transaction.claim.pending"
	StatusTransactionClaimed     SwapStatus = "transaction.claimed"
	StatusSwapExpired            SwapStatus = "swap.expired"
	StatusInvoiceFailedToPay     SwapStatus = "invoice.failedToPay"
	StatusChannelCreated         SwapStatus = "channel.created"
	StatusMinerFeePaid           SwapStatus = "transaction.minerFeePaid"
	StatusTransactionFailed      SwapStatus = "transaction.failed"
	StatusTransactionRefunded    SwapStatus = "transaction.refunded"
	StatusTransactionLockupFail  SwapStatus = "transaction.lockupFailed"
)

// ChannelCreationStatus tracks the channel-nursery sub-state machine (§4.8).
type ChannelCreationStatus string

const (
	ChannelAttempted ChannelCreationStatus = "attempted"
	ChannelCreated   ChannelCreationStatus = "created"
	ChannelSettled   ChannelCreationStatus = "settled"
	ChannelAbandoned ChannelCreationStatus = "abandoned"
)
