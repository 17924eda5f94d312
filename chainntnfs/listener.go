package chainntnfs

import (
	"encoding/hex"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/queue"
)

// ChainRPC is the synchronous subset of chain backend queries the listener
// and its callers need (spec §4.1): fetching a verbose raw transaction and
// estimating a conservative fee rate for zero-conf ancestry/fee checks.
type ChainRPC interface {
	GetRawTransactionVerbose(txid *chainhash.Hash) (*wire.MsgTx, int32, bool, error)
	EstimateFeePerVByte(confTarget uint32) (btcutil.Amount, error)
}

// WatchKind distinguishes why a script is being watched: a counterparty
// deposit the owning state machine is still waiting to receive, or the
// service's own broadcast lockup whose confirmation and eventual claim
// spend it needs to track (spec §4.1, §4.7 "Hold invoice first").
type WatchKind int

const (
	WatchDeposit WatchKind = iota
	WatchOwnLockup
)

// OutputFound is emitted for every output matching a watched script, with
// duplicate suppression keyed by (txid, vout, confirmed) (spec §4.1).
type OutputFound struct {
	SwapID    string
	Kind      WatchKind
	TxID      chainhash.Hash
	Vout      uint32
	Amount    btcutil.Amount
	Confirmed bool

	// RBFSignaled and HasNonStandardInputs help the submarine state
	// machine apply the zero-conf policy gate (spec §4.6).
	RBFSignaled          bool
	HasNonStandardInputs bool
	FeePerVByte          btcutil.Amount
}

// ClaimObserved is emitted when a watched outpoint is spent by a
// transaction whose witness reveals a preimage: the claim branch of the
// HTLC script-or-tree spend (spec §3 "HTLC-script-or-tree"), used to
// detect a counterparty claiming one of the service's own onchain lockups
// (spec §4.7 "Preimage release", SPEC_FULL.md ChainSwap supplement).
type ClaimObserved struct {
	SwapID   string
	Preimage []byte
}

// OutputRetracted is emitted when a reorg unconfirms a previously confirmed
// lockup (spec §4.1), so the owning state machine can roll its status back
// from TransactionConfirmed to TransactionMempool.
type OutputRetracted struct {
	SwapID string
	TxID   chainhash.Hash
	Vout   uint32
}

// dedupeKey identifies one (txid, vout, confirmed) observation.
type dedupeKey string

func makeDedupeKey(txid chainhash.Hash, vout uint32, confirmed bool) dedupeKey {
	return dedupeKey(hex.EncodeToString(txid[:]) + ":" +
		string(rune(vout)) + ":" + boolKey(confirmed))
}

func boolKey(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// watchEntry is the swap a watched script belongs to, and why it's being
// watched.
type watchEntry struct {
	swapID string
	kind   WatchKind
}

// Listener maintains the watched-output-script -> swap-id index and
// normalizes inbound mempool/block events into OutputFound/OutputRetracted
// notifications (spec §4.1). It is the Chain Listener component, C1.
type Listener struct {
	rpc ChainRPC

	mu       sync.RWMutex
	watched  map[string]watchEntry    // hex(script) -> swap id/kind
	spends   map[wire.OutPoint]string // outpoint -> swap id
	seen     map[dedupeKey]struct{}

	foundQueue     *queue.ConcurrentQueue
	retractedQueue *queue.ConcurrentQueue
	claimedQueue   *queue.ConcurrentQueue

	quit chan struct{}
}

// NewListener constructs a Listener backed by the given chain RPC client.
func NewListener(rpc ChainRPC) *Listener {
	l := &Listener{
		rpc:            rpc,
		watched:        make(map[string]watchEntry),
		spends:         make(map[wire.OutPoint]string),
		seen:           make(map[dedupeKey]struct{}),
		foundQueue:     queue.NewConcurrentQueue(64),
		retractedQueue: queue.NewConcurrentQueue(64),
		claimedQueue:   queue.NewConcurrentQueue(64),
		quit:           make(chan struct{}),
	}
	l.foundQueue.Start()
	l.retractedQueue.Start()
	l.claimedQueue.Start()
	return l
}

// Stop drains and halts the listener's internal queues.
func (l *Listener) Stop() {
	close(l.quit)
	l.foundQueue.Stop()
	l.retractedQueue.Stop()
	l.claimedQueue.Stop()
}

// Found returns the channel of OutputFound notifications.
func (l *Listener) Found() <-chan interface{} {
	return l.foundQueue.ChanOut()
}

// Retracted returns the channel of OutputRetracted notifications.
func (l *Listener) Retracted() <-chan interface{} {
	return l.retractedQueue.ChanOut()
}

// Claimed returns the channel of ClaimObserved notifications.
func (l *Listener) Claimed() <-chan interface{} {
	return l.claimedQueue.ChanOut()
}

// Watch registers script as belonging to swapID. Future mempool/block
// events touching this script will be normalized and routed to swapID.
func (l *Listener) Watch(swapID string, script []byte, kind WatchKind) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.watched[hex.EncodeToString(script)] = watchEntry{swapID: swapID, kind: kind}
}

// Unwatch removes script from the index, called once a swap resolves.
func (l *Listener) Unwatch(script []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.watched, hex.EncodeToString(script))
}

// WatchSpend arms detection of outpoint being spent, used to observe a
// counterparty claiming one of the service's own onchain lockups (spec
// §4.7 "Preimage release").
func (l *Listener) WatchSpend(swapID string, outpoint wire.OutPoint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.spends[outpoint] = swapID
}

// UnwatchSpend disarms a previously armed spend watch.
func (l *Listener) UnwatchSpend(outpoint wire.OutPoint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.spends, outpoint)
}

func (l *Listener) swapForScript(script []byte) (watchEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.watched[hex.EncodeToString(script)]
	return e, ok
}

func (l *Listener) swapForSpend(outpoint wire.OutPoint) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.spends[outpoint]
	return id, ok
}

// extractPreimage pulls the revealed preimage out of a claim-branch HTLC
// witness: <sig> <preimage> <witnessScript> (spec §3
// "HTLC-script-or-tree").
func extractPreimage(witness wire.TxWitness) ([]byte, bool) {
	if len(witness) != 3 {
		return nil, false
	}
	preimage := witness[1]
	if len(preimage) != 32 {
		return nil, false
	}
	return preimage, true
}

// HandleTx processes one transaction observed in the mempool or a newly
// connected block, emitting an OutputFound for every output that matches a
// watched script. confirmed distinguishes a mempool sighting from a
// block-included one.
func (l *Listener) HandleTx(tx *wire.MsgTx, confirmed bool, rbfSignaled, nonStandardInputs bool, feePerVByte btcutil.Amount) {
	txHash := tx.TxHash()

	for vout, out := range tx.TxOut {
		entry, ok := l.swapForScript(out.PkScript)
		if !ok {
			continue
		}

		key := makeDedupeKey(txHash, uint32(vout), confirmed)
		l.mu.Lock()
		_, dup := l.seen[key]
		if !dup {
			l.seen[key] = struct{}{}
		}
		l.mu.Unlock()
		if dup {
			continue
		}

		log.Debugf("output found for swap %s: %v:%d (confirmed=%v)",
			entry.swapID, txHash, vout, confirmed)

		l.foundQueue.ChanIn() <- &OutputFound{
			SwapID:               entry.swapID,
			Kind:                 entry.kind,
			TxID:                 txHash,
			Vout:                 uint32(vout),
			Amount:               btcutil.Amount(out.Value),
			Confirmed:            confirmed,
			RBFSignaled:          rbfSignaled,
			HasNonStandardInputs: nonStandardInputs,
			FeePerVByte:          feePerVByte,
		}
	}

	for _, in := range tx.TxIn {
		swapID, ok := l.swapForSpend(in.PreviousOutPoint)
		if !ok {
			continue
		}
		preimage, ok := extractPreimage(in.Witness)
		if !ok {
			continue
		}

		log.Infof("claim observed for swap %s spending %v", swapID, in.PreviousOutPoint)

		l.UnwatchSpend(in.PreviousOutPoint)
		l.claimedQueue.ChanIn() <- &ClaimObserved{
			SwapID:   swapID,
			Preimage: preimage,
		}
	}
}

// HandleReorg is called when a previously confirmed transaction's block is
// disconnected from the chain, unconfirming its lockup outputs.
func (l *Listener) HandleReorg(tx *wire.MsgTx) {
	txHash := tx.TxHash()

	for vout, out := range tx.TxOut {
		entry, ok := l.swapForScript(out.PkScript)
		if !ok {
			continue
		}

		confirmedKey := makeDedupeKey(txHash, uint32(vout), true)
		l.mu.Lock()
		delete(l.seen, confirmedKey)
		l.mu.Unlock()

		log.Infof("output retracted for swap %s: %v:%d", entry.swapID, txHash, vout)

		l.retractedQueue.ChanIn() <- &OutputRetracted{
			SwapID: entry.swapID,
			TxID:   txHash,
			Vout:   uint32(vout),
		}
	}
}

// GetRawTransactionVerbose proxies the chain backend query.
func (l *Listener) GetRawTransactionVerbose(txid *chainhash.Hash) (*wire.MsgTx, int32, bool, error) {
	return l.rpc.GetRawTransactionVerbose(txid)
}

// EstimateFeePerVByte proxies the chain backend's fee estimator.
func (l *Listener) EstimateFeePerVByte(confTarget uint32) (btcutil.Amount, error) {
	return l.rpc.EstimateFeePerVByte(confTarget)
}
