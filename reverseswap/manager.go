// Package reverseswap implements the Reverse State Machine, C7: issue a
// hold invoice on Lightning, lock coins onchain only once that invoice is
// held, and release the preimage once the client claims the lockup.
package reverseswap

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/swapd/chainntnfs"
	"github.com/lightninglabs/swapd/lightning"
	"github.com/lightninglabs/swapd/routinghints"
	"github.com/lightninglabs/swapd/swapdb"
)

// ErrPrepayAmountTooLarge is returned when the requested prepay miner fee
// exceeds the onchain amount being sent (SPEC_FULL.md "Prepay miner fee"
// supplement).
var ErrPrepayAmountTooLarge = errors.New("prepay miner fee exceeds onchain amount")

// OnchainLockup abstracts broadcasting the service's side of the HTLC;
// the daemon wires this to its wallet (spec §4.7, "Hold invoice first").
type OnchainLockup interface {
	BroadcastLockup(ctx context.Context, address string, amount uint64) (txid string, err error)
	BroadcastRefund(ctx context.Context, swapID string) (txid string, err error)
}

// PairSource resolves pair policy, mirroring swap.PairSource.
type PairSource interface {
	Pair(base, quote string) (*swapdb.Pair, error)
}

// CreateRequest mirrors the `POST /swap/reverse` request body (spec §6,
// §4.5).
type CreateRequest struct {
	From               string
	To                 string
	InvoiceAmountSat   uint64
	ClaimPublicKey     *btcec.PublicKey
	ReferralID         string
	PrepayMinerFeeSat  uint64
	CurrentBlockHeight uint32

	// DescriptionHash, RefundAddress and RefundAddressSig feed the
	// Routing-Hints Engine (spec §4.5); all are optional.
	DescriptionHash  []byte
	RefundAddress    string
	RefundAddressSig []byte
}

// CreateResult mirrors the `POST /swap/reverse` response body.
type CreateResult struct {
	ID                 string
	Invoice            string
	PrepayInvoice      string
	LockupAddress      string
	TimeoutBlockHeight uint32
	OnchainAmount      uint64
	BIP21              string
}

// Config groups the Manager's dependencies.
type Config struct {
	Store   *swapdb.DB
	Chain   *chainntnfs.Listener
	Invoice lightning.Client
	Onchain OnchainLockup
	Pairs   PairSource
	Net     *chaincfg.Params
	Hints   *routinghints.Engine

	// ClaimMinerFees is the per-currency miner fee the service expects to
	// pay claiming a reverse swap's onchain HTLC, fed straight through to
	// the Routing-Hints Engine's received-amount formula (spec §4.5).
	ClaimMinerFees routinghints.ClaimMinerFee

	// NewRefundKeyPair mints a fresh service-owned refund key for a new
	// swap.
	NewRefundKeyPair func() (*btcec.PrivateKey, error)
}

// Manager drives the reverse swap lifecycle end to end.
type Manager struct {
	cfg Config

	// pendingPrepay tracks the ephemeral preimage for a swap's prepay
	// invoice until it's settled; it never needs to be durable because
	// the prepay invoice carries no funds-at-risk for the client once
	// accepted, it is simply settled as soon as it is held (§4.7
	// supplement, "Prepay miner fee").
	mu            sync.Mutex
	pendingPrepay map[string][]byte
}

// NewManager constructs a Manager.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:           cfg,
		pendingPrepay: make(map[string][]byte),
	}
}

// CreateSwap issues the hold invoice (and, if requested, the prepay
// invoice), derives the HTLC address, and persists a new reverse swap in
// SwapCreated (spec §4.7, §6).
func (m *Manager) CreateSwap(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	pair, err := m.cfg.Pairs.Pair(req.From, req.To)
	if err != nil {
		return nil, err
	}
	if req.PrepayMinerFeeSat > req.InvoiceAmountSat {
		return nil, ErrPrepayAmountTooLarge
	}

	var preimage [32]byte
	if _, err := rand.Read(preimage[:]); err != nil {
		return nil, err
	}
	preimageHash := sha256.Sum256(preimage[:])

	refundPriv, err := m.cfg.NewRefundKeyPair()
	if err != nil {
		return nil, fmt.Errorf("unable to mint refund key: %w", err)
	}

	timeoutHeight := req.CurrentBlockHeight + uint32(pair.TimeoutDeltas.Reverse)
	onchainAmount := req.InvoiceAmountSat - req.PrepayMinerFeeSat

	script, err := buildSwapScript(preimageHash, req.ClaimPublicKey, refundPriv.PubKey(), timeoutHeight)
	if err != nil {
		return nil, fmt.Errorf("unable to build HTLC script: %w", err)
	}
	lockupAddress, lockupPkScript, err := p2wshAddress(script, m.cfg.Net)
	if err != nil {
		return nil, fmt.Errorf("unable to derive HTLC address: %w", err)
	}

	memo := "reverse swap"
	var routingHints []lightning.RoutingHint
	var bip21 string
	if m.cfg.Hints != nil {
		hints, err := m.cfg.Hints.Create(routinghints.CreateRequest{
			SendingCurrency:  req.From,
			OnchainAmount:    onchainAmount,
			ClaimMinerFees:   m.cfg.ClaimMinerFees,
			DescriptionHash:  req.DescriptionHash,
			RefundAddress:    req.RefundAddress,
			RefundAddressSig: req.RefundAddressSig,
			ClaimPublicKey:   req.ClaimPublicKey,
		})
		if err != nil {
			return nil, err
		}
		if hints.Memo != "" {
			memo = hints.Memo
		}
		routingHints = hints.RoutingHints
		bip21 = hints.BIP21
	}

	invoice, err := m.cfg.Invoice.AddHoldInvoice(ctx, lightning.AddHoldInvoiceRequest{
		PreimageHash:    preimageHash,
		AmountMSat:      req.InvoiceAmountSat * 1000,
		Memo:            memo,
		DescriptionHash: req.DescriptionHash,
		RoutingHints:    routingHints,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to add hold invoice: %w", err)
	}

	s := &swapdb.ReverseSwap{
		ID:                 fmt.Sprintf("%x", preimageHash[:8]),
		Pair:               pair.Base + "/" + pair.Quote,
		ReferralID:         req.ReferralID,
		InvoiceAmount:      req.InvoiceAmountSat,
		OnchainAmount:      onchainAmount,
		Invoice:            invoice,
		PreimageHash:       preimageHash,
		Preimage:           preimage[:],
		ClaimPublicKey:     req.ClaimPublicKey,
		RefundPrivateKey:   refundPriv,
		RefundPublicKey:    refundPriv.PubKey(),
		HTLCScript:         script,
		LockupAddress:      lockupAddress,
		TimeoutBlockHeight: timeoutHeight,
	}

	// The preimage is known to us up front, unlike a submarine swap; it
	// stays unpersisted-as-revealed until the claim actually lands, so a
	// predecessor-set violation can't leak it early. We keep the field
	// populated here purely for the claim-path signature logic in C4,
	// which reads it directly off the record.

	if req.PrepayMinerFeeSat > 0 {
		prepayPreimage := make([]byte, 32)
		if _, err := rand.Read(prepayPreimage); err != nil {
			return nil, err
		}
		prepayHash := sha256.Sum256(prepayPreimage)

		prepayInvoice, err := m.cfg.Invoice.AddHoldInvoice(ctx, lightning.AddHoldInvoiceRequest{
			PreimageHash: prepayHash,
			AmountMSat:   req.PrepayMinerFeeSat * 1000,
			Memo:         "reverse swap prepay",
		})
		if err != nil {
			return nil, fmt.Errorf("unable to add prepay invoice: %w", err)
		}
		s.PrepayInvoice = prepayInvoice

		m.mu.Lock()
		m.pendingPrepay[s.ID] = prepayPreimage
		m.mu.Unlock()
	}

	if err := m.cfg.Store.CreateReverseSwap(s); err != nil {
		return nil, err
	}
	if req.PrepayMinerFeeSat == 0 {
		if err := m.cfg.Store.SetReverseSwapStatus(s.ID, swapdb.StatusInvoiceSet); err != nil {
			return nil, err
		}
	}

	// The service funds this address itself once the hold invoice(s) are
	// held; registering the watch now lets the chain listener hand back
	// the lockup's confirmation and, from its (txid, vout), arm the
	// spend watch that observes the client's eventual claim (spec §4.7
	// "Hold invoice first", "Preimage release").
	if m.cfg.Chain != nil {
		m.cfg.Chain.Watch(s.ID, lockupPkScript, chainntnfs.WatchOwnLockup)
	}

	return &CreateResult{
		ID:                 s.ID,
		Invoice:            invoice,
		PrepayInvoice:      s.PrepayInvoice,
		LockupAddress:      lockupAddress,
		TimeoutBlockHeight: timeoutHeight,
		OnchainAmount:      onchainAmount,
		BIP21:              bip21,
	}, nil
}

// HandleInvoiceAccepted reacts to an invoice.accepted event for either the
// prepay invoice or the main hold invoice (spec §4.7, "Hold invoice
// first").
func (m *Manager) HandleInvoiceAccepted(ctx context.Context, swapID string, preimageHash [32]byte) error {
	m.mu.Lock()
	prepayPreimage, isPrepay := m.pendingPrepay[swapID]
	m.mu.Unlock()

	if isPrepay {
		hash := sha256.Sum256(prepayPreimage)
		if !bytes.Equal(hash[:], preimageHash[:]) {
			return nil
		}
		if err := m.cfg.Invoice.SettleHoldInvoice(ctx, prepayPreimage); err != nil {
			return fmt.Errorf("unable to settle prepay invoice: %w", err)
		}
		m.mu.Lock()
		delete(m.pendingPrepay, swapID)
		m.mu.Unlock()

		if err := m.cfg.Store.SetReverseSwapStatus(swapID, swapdb.StatusMinerFeePaid); err != nil {
			return err
		}
		return m.broadcastLockup(ctx, swapID)
	}

	s, err := m.cfg.Store.FetchReverseSwap(swapID)
	if err != nil {
		return err
	}
	if !bytes.Equal(s.PreimageHash[:], preimageHash[:]) {
		return nil
	}

	if err := m.cfg.Store.SetReverseSwapStatus(swapID, swapdb.StatusInvoiceSet); err != nil &&
		!errors.Is(err, swapdb.ErrIllegalTransition) {
		return err
	}

	if s.PrepayInvoice == "" {
		return m.broadcastLockup(ctx, swapID)
	}
	return nil
}

// broadcastLockup builds the HTLC address and broadcasts the service's
// onchain lockup, only ever called once the relevant hold invoice(s) are
// held (spec §4.7, "Hold invoice first").
func (m *Manager) broadcastLockup(ctx context.Context, swapID string) error {
	s, err := m.cfg.Store.FetchReverseSwap(swapID)
	if err != nil {
		return err
	}

	txid, err := m.cfg.Onchain.BroadcastLockup(ctx, s.LockupAddress, s.OnchainAmount)
	if err != nil {
		return err
	}
	if err := m.cfg.Store.SetReverseSwapLockup(swapID, txid); err != nil {
		return err
	}
	return m.cfg.Store.SetReverseSwapStatus(swapID, swapdb.StatusTransactionMempool)
}

// HandleLockupConfirmed advances a reverse swap from TransactionMempool to
// TransactionConfirmed once the service's own broadcast lockup reaches a
// confirmation (spec §4.7).
func (m *Manager) HandleLockupConfirmed(swapID string) error {
	return m.cfg.Store.SetReverseSwapStatus(swapID, swapdb.StatusTransactionConfirmed)
}

// HandleOutputFound reacts to the chain listener observing the service's
// own lockup output: once it confirms, advance TransactionMempool to
// TransactionConfirmed, then arm spend-detection on the exact outpoint so
// the eventual claim transaction's revealed preimage is caught (spec §4.7,
// "Preimage release").
func (m *Manager) HandleOutputFound(evt *chainntnfs.OutputFound) error {
	if evt.Confirmed {
		if err := m.HandleLockupConfirmed(evt.SwapID); err != nil {
			return err
		}
	}
	if m.cfg.Chain != nil {
		m.cfg.Chain.WatchSpend(evt.SwapID, wire.OutPoint{Hash: evt.TxID, Index: evt.Vout})
	}
	return nil
}

// HandleClaimObserved reacts to a claim transaction revealing the
// preimage, releasing the hold invoice and marking the swap claimed (spec
// §4.7, "Preimage release").
func (m *Manager) HandleClaimObserved(ctx context.Context, swapID string, preimage []byte) error {
	s, err := m.cfg.Store.FetchReverseSwap(swapID)
	if err != nil {
		return err
	}
	hash := sha256.Sum256(preimage)
	if hash != s.PreimageHash {
		return fmt.Errorf("observed preimage does not match reverse swap %s", swapID)
	}

	if err := m.cfg.Store.SetReverseSwapPreimage(swapID, preimage); err != nil {
		return err
	}
	if err := m.cfg.Invoice.SettleHoldInvoice(ctx, preimage); err != nil {
		return fmt.Errorf("unable to settle hold invoice after claim: %w", err)
	}
	return m.cfg.Store.SetReverseSwapStatus(swapID, swapdb.StatusTransactionClaimed)
}

// ExpireSwaps cancels the hold invoice and refunds the onchain lockup (if
// any was broadcast) for every reverse swap past its timeout without a
// claim observed (spec §4.7, "Refund").
func (m *Manager) ExpireSwaps(ctx context.Context, ids []string) error {
	for _, id := range ids {
		s, err := m.cfg.Store.FetchReverseSwap(id)
		if err != nil {
			return err
		}

		if err := m.cfg.Invoice.CancelHoldInvoice(ctx, s.PreimageHash); err != nil {
			return err
		}
		if err := m.cfg.Store.SetReverseSwapStatus(id, swapdb.StatusSwapExpired); err != nil &&
			!errors.Is(err, swapdb.ErrIllegalTransition) {
			return err
		}

		if s.LockupTxID == "" {
			continue
		}
		if _, err := m.cfg.Onchain.BroadcastRefund(ctx, id); err != nil {
			return err
		}
		if err := m.cfg.Store.SetReverseSwapStatus(id, swapdb.StatusTransactionRefunded); err != nil {
			return err
		}
	}
	return nil
}
