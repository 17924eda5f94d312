package chainntnfs

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ChainNotifier represents a trusted source for on-chain mempool and block
// events. swapd's Chain Listener (spec §4.1) is built on top of one: it
// registers confirmation and spend watches per swap lockup address and
// turns the low-level notifications below into the OutputFound/
// OutputRetracted events the state machines consume.
//
// Concrete implementations back onto a node's ZMQ/websocket hooks
// (`rawtx`/`hashblock`, spec §6) for Bitcoin/Liquid, or the equivalent for
// other watched chains.
type ChainNotifier interface {
	// RegisterConfirmationsNtfn registers an intent to be notified once
	// txid reaches numConfs confirmations, and if the original tx is
	// later reorg'd out of the main chain.
	RegisterConfirmationsNtfn(txid *chainhash.Hash, pkScript []byte, numConfs, heightHint uint32) (*ConfirmationEvent, error)

	// RegisterSpendNtfn registers an intent to be notified once the
	// target outpoint is spent by a transaction seen on the network,
	// not only once that spend is confirmed.
	RegisterSpendNtfn(outpoint *wire.OutPoint, pkScript []byte, heightHint uint32) (*SpendEvent, error)

	// RegisterBlockEpochNtfn registers an intent to be notified of each
	// new block connected to the tip of the main chain.
	RegisterBlockEpochNtfn(targetHeight int32) (*BlockEpochEvent, error)

	// Start readies the notifier to accept client registrations.
	Start() error

	// Stop disallows future registrations and closes every pending
	// client's notification channels.
	Stop() error
}

// ConfirmationEvent encapsulates a confirmation notification: the instant
// a txid reaches the targeted number of confirmations, and also the event
// that the original txid is disconnected from the chain by a reorg.
type ConfirmationEvent struct {
	Confirmed chan int32 // MUST be buffered.

	// NegativeConf is sent upon with the depth of the reorg if the
	// transaction is unconfirmed after previously confirming.
	NegativeConf chan int32 // MUST be buffered.
}

// SpendDetail contains details pertaining to a spent output: the outpoint
// that triggered the notification, the spending transaction, and the
// height at which the spend was observed.
type SpendDetail struct {
	SpentOutPoint     *wire.OutPoint
	SpenderTxHash     *chainhash.Hash
	SpendingTx        *wire.MsgTx
	SpenderInputIndex uint32
	SpendingHeight    int32
}

// SpendEvent encapsulates a spentness notification. Spend is sent upon
// once the target outpoint is spent on the network.
type SpendEvent struct {
	Spend chan *SpendDetail // MUST be buffered.
}

// BlockEpoch describes one block connected to the tip of the main chain.
type BlockEpoch struct {
	Height int32
	Hash   *chainhash.Hash
}

// BlockEpochEvent encapsulates an ongoing stream of new-block
// notifications. Epochs is sent upon for each new block.
type BlockEpochEvent struct {
	Epochs chan *BlockEpoch // MUST be buffered.
}
