package chainrpc

import (
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// listenerHandler matches chainntnfs.Listener.HandleTx's exact signature;
// kept as its own func type so this package doesn't need to import
// chainntnfs just to describe the callback it drives.
type listenerHandler func(tx *wire.MsgTx, confirmed, rbfSignaled, nonStandardInputs bool, feePerVByte btcutil.Amount)

// Poller drives a chainntnfs.Listener off bitcoind-style JSON-RPC polling,
// in lieu of a ZMQ/long-poll push feed (spec §4.1, "Chain Listener"):
// every tick it scans the mempool for new transactions, and walks any new
// blocks since the last tick, detecting reorgs along the way.
type Poller struct {
	client   *Client
	onTx     listenerHandler
	onReorg  func(tx *wire.MsgTx)
	interval time.Duration

	seenMempool map[string]struct{}
	lastHeight  uint32
	lastHash    *chainhash.Hash

	quit chan struct{}
}

// NewPoller constructs a Poller. onTx is called for every newly observed
// mempool or block-confirmed transaction; onReorg is called for every
// transaction unconfirmed by a detected reorg.
func NewPoller(client *Client, interval time.Duration, onTx listenerHandler, onReorg func(tx *wire.MsgTx)) *Poller {
	return &Poller{
		client:      client,
		onTx:        onTx,
		onReorg:     onReorg,
		interval:    interval,
		seenMempool: make(map[string]struct{}),
		quit:        make(chan struct{}),
	}
}

// Start begins polling in its own goroutine.
func (p *Poller) Start() error {
	height, err := p.client.BlockHeight()
	if err != nil {
		return err
	}
	hash, err := p.client.GetBlockHash(height)
	if err != nil {
		return err
	}
	p.lastHeight = height
	p.lastHash = hash

	go p.run()
	return nil
}

// Stop halts the polling goroutine.
func (p *Poller) Stop() {
	close(p.quit)
}

func (p *Poller) run() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.pollMempool()
			p.pollBlocks()

		case <-p.quit:
			return
		}
	}
}

func (p *Poller) pollMempool() {
	txids, err := p.client.GetMempoolTxIDs()
	if err != nil {
		return
	}

	fresh := make(map[string]struct{}, len(txids))
	for _, txid := range txids {
		fresh[txid] = struct{}{}
		if _, ok := p.seenMempool[txid]; ok {
			continue
		}

		hash, err := chainhash.NewHashFromStr(txid)
		if err != nil {
			continue
		}
		tx, _, rbfSignaled, err := p.client.GetRawTransactionVerbose(hash)
		if err != nil {
			continue
		}
		feeRate, _ := p.client.EstimateFeePerVByte(1)
		p.onTx(tx, false, rbfSignaled, hasLegacyInput(tx), feeRate)
	}
	p.seenMempool = fresh
}

func (p *Poller) pollBlocks() {
	height, err := p.client.BlockHeight()
	if err != nil || height <= p.lastHeight {
		return
	}

	for h := p.lastHeight + 1; h <= height; h++ {
		hash, err := p.client.GetBlockHash(h)
		if err != nil {
			return
		}
		txids, prevHash, err := p.client.GetBlockTxIDs(hash)
		if err != nil {
			return
		}

		if p.lastHash != nil && prevHash != p.lastHash.String() {
			// The new block's parent isn't the block we thought was
			// the tip: a reorg happened. Unconfirm everything we'd
			// previously marked confirmed at the old tip height; the
			// owning state machine rolls its own status back.
			if oldTxids, _, err := p.client.GetBlockTxIDs(p.lastHash); err == nil {
				for _, txid := range oldTxids {
					th, err := chainhash.NewHashFromStr(txid)
					if err != nil {
						continue
					}
					tx, _, _, err := p.client.GetRawTransactionVerbose(th)
					if err == nil {
						p.onReorg(tx)
					}
				}
			}
		}

		for _, txid := range txids {
			th, err := chainhash.NewHashFromStr(txid)
			if err != nil {
				continue
			}
			tx, _, rbfSignaled, err := p.client.GetRawTransactionVerbose(th)
			if err != nil {
				continue
			}
			p.onTx(tx, true, rbfSignaled, hasLegacyInput(tx), 0)
		}

		p.lastHash = hash
	}
	p.lastHeight = height
}

// hasLegacyInput reports whether any input of tx carries no witness data;
// the submarine zero-conf gate treats such a lockup as
// non-standard (spec §4.6).
func hasLegacyInput(tx *wire.MsgTx) bool {
	for _, in := range tx.TxIn {
		if len(in.Witness) == 0 {
			return true
		}
	}
	return false
}
