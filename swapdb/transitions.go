package swapdb

// predecessors lists, for each status, the set of statuses a swap may have
// been in immediately before transitioning to it. setStatus (§4.3) rejects
// any transition whose current status is not in the target's predecessor
// set; this is the machine-checked form of the diagrams in spec §4.6/§4.7.
type predecessorSet map[SwapStatus]map[SwapStatus]bool

func toSet(statuses ...SwapStatus) map[SwapStatus]bool {
	m := make(map[SwapStatus]bool, len(statuses))
	for _, s := range statuses {
		m[s] = true
	}
	return m
}

// submarinePredecessors encodes the §4.6 diagram.
var submarinePredecessors = predecessorSet{
	StatusSwapCreated: toSet(),
	StatusTransactionMempool: toSet(
		StatusSwapCreated,
		StatusTransactionConfirmed, // reorg retraction (§4.1, §5)
	),
	StatusTransactionConfirmed: toSet(StatusTransactionMempool),
	StatusTransactionLockupFail: toSet(
		StatusSwapCreated,
		StatusTransactionMempool,
	),
	StatusInvoicePaid: toSet(StatusTransactionConfirmed, StatusTransactionMempool),
	StatusInvoiceFailedToPay: toSet(
		StatusTransactionConfirmed,
		StatusTransactionMempool,
	),
	StatusTransactionClaimPend: toSet(StatusInvoicePaid),
	StatusTransactionClaimed:   toSet(StatusTransactionClaimPend, StatusInvoicePaid),
	StatusSwapExpired: toSet(
		StatusSwapCreated,
		StatusTransactionMempool,
		StatusInvoiceFailedToPay,
	),
	StatusTransactionRefunded: toSet(
		StatusSwapExpired,
		StatusTransactionLockupFail,
		StatusInvoiceFailedToPay,
	),
}

// reversePredecessors encodes the §4.7 diagram.
var reversePredecessors = predecessorSet{
	StatusSwapCreated: toSet(),
	StatusInvoiceSet:  toSet(StatusSwapCreated),
	StatusMinerFeePaid: toSet(StatusInvoiceSet),
	StatusTransactionMempool: toSet(
		StatusInvoiceSet,
		StatusMinerFeePaid,
	),
	StatusTransactionConfirmed: toSet(StatusTransactionMempool),
	StatusTransactionClaimed: toSet(
		StatusTransactionMempool,
		StatusTransactionConfirmed,
	),
	StatusSwapExpired: toSet(
		StatusSwapCreated,
		StatusInvoiceSet,
		StatusMinerFeePaid,
	),
	StatusTransactionRefunded: toSet(StatusSwapExpired),
	StatusTransactionFailed:   toSet(StatusInvoiceSet, StatusMinerFeePaid),
}

// chainSwapPredecessors mirrors the submarine diagram for the user-funded
// leg and the reverse diagram for the service-funded leg; the ChainSwap
// supplement (SPEC_FULL.md) drives both from the same swap record.
var chainSwapPredecessors = predecessorSet{
	StatusSwapCreated: toSet(),
	StatusTransactionMempool: toSet(
		StatusSwapCreated,
		StatusTransactionConfirmed,
	),
	StatusTransactionConfirmed:  toSet(StatusTransactionMempool),
	StatusTransactionLockupFail: toSet(StatusSwapCreated, StatusTransactionMempool),
	StatusTransactionClaimPend:  toSet(StatusTransactionConfirmed, StatusTransactionMempool),
	StatusTransactionClaimed:    toSet(StatusTransactionClaimPend),
	StatusSwapExpired: toSet(
		StatusSwapCreated,
		StatusTransactionMempool,
	),
	StatusTransactionRefunded: toSet(
		StatusSwapExpired,
		StatusTransactionLockupFail,
	),
}

// channelCreationPredecessors encodes the §4.8 sub-states.
var channelCreationPredecessors = map[ChannelCreationStatus]map[ChannelCreationStatus]bool{
	ChannelAttempted: {},
	ChannelCreated:   {ChannelAttempted: true},
	ChannelSettled:   {ChannelCreated: true},
	ChannelAbandoned: {ChannelAttempted: true, ChannelCreated: true},
}

// isAllowed reports whether moving from `from` to `to` is a legal
// transition under the given predecessor table. The zero value of `from`
// (i.e. a brand new record) is only legal for entries with an empty
// predecessor set.
func isAllowed(table predecessorSet, from, to SwapStatus) bool {
	preds, ok := table[to]
	if !ok {
		return false
	}
	if len(preds) == 0 {
		return from == ""
	}
	return preds[from]
}

func isChannelCreationAllowed(from, to ChannelCreationStatus) bool {
	preds, ok := channelCreationPredecessors[to]
	if !ok {
		return false
	}
	if len(preds) == 0 {
		return from == ""
	}
	return preds[from]
}
