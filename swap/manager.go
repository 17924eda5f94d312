// Package swap implements the Submarine State Machine, C6: it accepts an
// onchain deposit against a BOLT11/BOLT12 invoice, pays the invoice once the
// deposit is eligible, and claims the deposit back once the invoice is paid.
package swap

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightninglabs/swapd/chainntnfs"
	"github.com/lightninglabs/swapd/lightning"
	"github.com/lightninglabs/swapd/swapdb"
)

// ErrAmountOutOfRange is returned when a create request's requested amount
// falls outside the pair's configured [min, max] (spec §4.6, implied by
// Pair.MinAmount/MaxAmount).
var ErrAmountOutOfRange = errors.New("requested amount out of pair range")

// Clock abstracts wall-clock reads so tests can control the
// mempool-eviction-grace timer deterministically (spec §4.6, "Failure
// semantics").
type Clock interface {
	Now() time.Time
}

// PairSource resolves the fee policy and limits for a (base, quote) pair
// (spec §3 Pair).
type PairSource interface {
	Pair(base, quote string) (*swapdb.Pair, error)
}

// CreateRequest groups the inputs to creating a submarine swap, mirroring
// the `POST /swap/submarine` request body (spec §6).
type CreateRequest struct {
	From               string
	To                 string
	Invoice            string
	PreimageHash       [32]byte
	InvoiceAmountSat   uint64
	RefundPublicKey    *btcec.PublicKey
	ReferralID         string
	CurrentBlockHeight uint32
}

// CreateResult mirrors the `POST /swap/submarine` response body.
type CreateResult struct {
	ID                 string
	Address            string
	ClaimPublicKey     *btcec.PublicKey
	TimeoutBlockHeight uint32
	ExpectedAmount     uint64
	AcceptZeroConf     bool
}

// ClaimTimeoutWatcher lets the manager arm and disarm the Timeout
// Watcher's cooperative-claim wall-clock fallback without importing the
// timeoutwatcher package directly (spec §4.6 "Claim path").
type ClaimTimeoutWatcher interface {
	StartCooperativeClaimTimeout(swapID string)
	CancelCooperativeClaimTimeout(swapID string)
}

// ClaimBroadcaster performs the script-fallback claim broadcast once the
// cooperative claim window has elapsed without a countersigned spend
// (spec §4.6 "Claim path").
type ClaimBroadcaster interface {
	BroadcastClaim(ctx context.Context, swapID string) (txid string, err error)
}

// Config groups the Manager's dependencies (spec §4.6 plus the ambient
// wiring every component needs: its store, its chain and invoice
// listeners, and the network parameters it quotes addresses on).
type Config struct {
	Store   *swapdb.DB
	Chain   *chainntnfs.Listener
	Invoice lightning.Client
	Pairs   PairSource
	Net     *chaincfg.Params
	Clock   Clock

	// Watcher arms/disarms the cooperative-claim wall-clock fallback
	// once an invoice is paid (spec §4.6 "Claim path"). May be nil in
	// tests that don't exercise the claim path.
	Watcher ClaimTimeoutWatcher

	// Wallet broadcasts the script-spend fallback claim once the
	// cooperative claim window elapses (spec §4.6 "Claim path").
	Wallet ClaimBroadcaster

	// MinFeePerVByte floors the zero-conf fee-rate check (spec §4.6).
	MinFeePerVByte btcutil.Amount

	// MempoolEvictionGrace bounds how long a seen-then-vanished lockup
	// stays in TransactionMempool before being marked
	// TransactionLockupFailed (spec §4.6, "Failure semantics").
	MempoolEvictionGrace time.Duration

	// CooperativeClaimTimeout is how long the manager waits for a
	// client-initiated cooperative claim before falling back to a
	// script-spend claim using the revealed preimage (spec §4.6,
	// "Claim path").
	CooperativeClaimTimeout time.Duration

	// PaymentTimeout bounds the total wall-clock time payInvoice spends
	// retrying a transient payment failure before giving up (spec §4.6,
	// "Invoice payment").
	PaymentTimeout time.Duration

	// MaxPaymentAttempts caps how many times payInvoice will retry a
	// transient payment failure (spec §4.6, "Invoice payment").
	MaxPaymentAttempts int

	// NewClaimKeyPair mints a fresh service-owned claim key for a new
	// swap; the daemon wires this to its wallet's key ring.
	NewClaimKeyPair func() (*btcec.PrivateKey, error)
}

// Manager drives the submarine swap lifecycle end to end.
type Manager struct {
	cfg Config
}

// NewManager constructs a Manager.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// CreateSwap validates req against the resolved pair, mints claim key
// material, derives the HTLC address, and persists a new swap in
// SwapCreated (spec §4.6, §6).
func (m *Manager) CreateSwap(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	pair, err := m.cfg.Pairs.Pair(req.From, req.To)
	if err != nil {
		return nil, err
	}

	if req.InvoiceAmountSat < pair.MinAmount || req.InvoiceAmountSat > pair.MaxAmount {
		return nil, ErrAmountOutOfRange
	}

	claimPriv, err := m.cfg.NewClaimKeyPair()
	if err != nil {
		return nil, fmt.Errorf("unable to mint claim key: %w", err)
	}
	claimPub := claimPriv.PubKey()

	timeoutHeight := req.CurrentBlockHeight + uint32(pair.TimeoutDeltas.Submarine)

	script, err := buildSwapScript(req.PreimageHash, claimPub, req.RefundPublicKey, timeoutHeight)
	if err != nil {
		return nil, fmt.Errorf("unable to build HTLC script: %w", err)
	}
	address, pkScript, err := p2wshAddress(script, m.cfg.Net)
	if err != nil {
		return nil, fmt.Errorf("unable to derive HTLC address: %w", err)
	}

	s := &swapdb.Swap{
		ID:                 newSwapID(req.PreimageHash),
		Pair:               pair.Base + "/" + pair.Quote,
		ReferralID:         req.ReferralID,
		OnchainAmountExp:   req.InvoiceAmountSat,
		Invoice:            req.Invoice,
		PreimageHash:       req.PreimageHash,
		RefundPublicKey:    req.RefundPublicKey,
		ClaimPrivateKey:    claimPriv,
		ClaimPublicKey:     claimPub,
		HTLCScript:         script,
		HTLCAddress:        address,
		TimeoutBlockHeight: timeoutHeight,
		AcceptZeroConf:     pair.AllowZeroConf,
	}

	if err := m.cfg.Store.CreateSwap(s); err != nil {
		return nil, err
	}
	if err := m.cfg.Store.WatchOutput(s.ID, pkScript); err != nil {
		return nil, err
	}
	m.cfg.Chain.Watch(s.ID, pkScript, chainntnfs.WatchDeposit)

	return &CreateResult{
		ID:                 s.ID,
		Address:             address,
		ClaimPublicKey:      claimPub,
		TimeoutBlockHeight:  timeoutHeight,
		ExpectedAmount:      req.InvoiceAmountSat,
		AcceptZeroConf:      pair.AllowZeroConf,
	}, nil
}

// newSwapID derives a stable identifier from the preimage hash; it never
// needs to be unguessable on its own, since the HTLC's security comes from
// the preimage itself, not the id (spec §3).
func newSwapID(preimageHash [32]byte) string {
	return fmt.Sprintf("%x", preimageHash[:8])
}

// HandleOutputFound applies the §4.6 lockup/zero-conf policy to a chain
// event and advances the swap's status accordingly.
func (m *Manager) HandleOutputFound(ctx context.Context, evt *chainntnfs.OutputFound) error {
	s, err := m.cfg.Store.FetchSwap(evt.SwapID)
	if err != nil {
		return err
	}

	pair, err := m.cfg.Pairs.Pair(splitPair(s.Pair))
	if err != nil {
		return err
	}

	amount := uint64(evt.Amount)
	if !lockupEligible(amount, s.OnchainAmountExp) {
		if err := m.cfg.Store.SetSwapLockup(s.ID, evt.TxID.String(), evt.Vout, amount, false); err != nil {
			return err
		}
		return m.cfg.Store.SetSwapStatus(s.ID, swapdb.StatusTransactionLockupFail)
	}

	acceptZC := evt.Confirmed || acceptZeroConf(ZeroConfParams{
		PairAllowsZeroConf:   pair.AllowZeroConf,
		MaxZeroConfAmount:    pair.MaxZeroConfAmount,
		MinFeePerVByte:       m.cfg.MinFeePerVByte,
		Amount:               amount,
		RBFSignaled:          evt.RBFSignaled,
		HasNonStandardInputs: evt.HasNonStandardInputs,
		FeePerVByte:          evt.FeePerVByte,
	})

	if err := m.cfg.Store.SetSwapLockup(s.ID, evt.TxID.String(), evt.Vout, amount, acceptZC); err != nil {
		return err
	}

	if !evt.Confirmed && !acceptZC {
		return m.cfg.Store.SetSwapStatus(s.ID, swapdb.StatusTransactionMempool)
	}

	if err := m.cfg.Store.SetSwapStatus(s.ID, swapdb.StatusTransactionMempool); err != nil &&
		!errors.Is(err, swapdb.ErrIllegalTransition) {
		return err
	}
	if err := m.cfg.Store.SetSwapStatus(s.ID, swapdb.StatusTransactionConfirmed); err != nil {
		return err
	}

	return m.payInvoice(ctx, s.ID)
}

// HandleOutputRetracted rolls a reorg'd lockup back to TransactionMempool
// (spec §4.6, "Failure semantics").
func (m *Manager) HandleOutputRetracted(evt *chainntnfs.OutputRetracted) error {
	return m.cfg.Store.SetSwapStatus(evt.SwapID, swapdb.StatusTransactionMempool)
}

// payInvoice pays the swap's invoice once its lockup is eligible, moving
// the swap to InvoicePaid on success or InvoiceFailedToPay on a terminal
// failure (spec §4.6, "Invoice payment" and "Failure semantics"), then
// starts the claim path.
func (m *Manager) payInvoice(ctx context.Context, swapID string) error {
	s, err := m.cfg.Store.FetchSwap(swapID)
	if err != nil {
		return err
	}

	preimage, err := m.payInvoiceWithRetry(ctx, s.Invoice)
	if err != nil {
		if errors.Is(err, lightning.ErrNoRoute) ||
			errors.Is(err, lightning.ErrInvoiceExpired) ||
			errors.Is(err, lightning.ErrPaymentTerminal) {

			return m.cfg.Store.SetSwapStatus(swapID, swapdb.StatusInvoiceFailedToPay)
		}
		return err
	}

	hash := sha256.Sum256(preimage)
	if hash != s.PreimageHash {
		return fmt.Errorf("payment preimage does not match swap %s hash", swapID)
	}

	if err := m.cfg.Store.SetSwapPreimage(swapID, preimage); err != nil {
		return err
	}
	if err := m.cfg.Store.SetSwapStatus(swapID, swapdb.StatusInvoicePaid); err != nil {
		return err
	}

	return m.startClaim(swapID)
}

// payInvoiceWithRetry retries a transient PayInvoice failure with
// exponential backoff, up to MaxPaymentAttempts or until PaymentTimeout
// has elapsed, whichever comes first; a terminal lightning error (no
// route, expired invoice, terminal payment state) aborts immediately
// without retrying (spec §4.6, "Invoice payment").
func (m *Manager) payInvoiceWithRetry(ctx context.Context, invoice string) ([]byte, error) {
	attempts := m.cfg.MaxPaymentAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var deadline time.Time
	if m.cfg.PaymentTimeout > 0 {
		deadline = m.cfg.Clock.Now().Add(m.cfg.PaymentTimeout)
	}

	backoff := time.Second
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		preimage, err := m.cfg.Invoice.PayInvoice(ctx, lightning.PayInvoiceRequest{
			Invoice: invoice,
		})
		if err == nil {
			return preimage, nil
		}
		lastErr = err

		if errors.Is(err, lightning.ErrNoRoute) ||
			errors.Is(err, lightning.ErrInvoiceExpired) ||
			errors.Is(err, lightning.ErrPaymentTerminal) {
			return nil, err
		}

		if attempt == attempts {
			break
		}
		if !deadline.IsZero() && m.cfg.Clock.Now().Add(backoff).After(deadline) {
			break
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}

	return nil, lastErr
}

// startClaim begins the §4.6 "Claim path": the swap moves to
// TransactionClaimPend and the Timeout Watcher arms its cooperative-claim
// wall-clock fallback. If no cooperative claim lands before the fallback
// fires, HandleCooperativeClaimTimeout broadcasts a script-spend claim
// instead.
func (m *Manager) startClaim(swapID string) error {
	if err := m.cfg.Store.SetSwapStatus(swapID, swapdb.StatusTransactionClaimPend); err != nil {
		return err
	}
	if m.cfg.Watcher != nil {
		m.cfg.Watcher.StartCooperativeClaimTimeout(swapID)
	}
	return nil
}

// FinalizeCooperativeClaim marks swapID claimed once the client's
// cooperative Musig2 key-path spend has been countersigned, and disarms
// the script-fallback timeout (spec §4.6 "Claim path").
func (m *Manager) FinalizeCooperativeClaim(swapID string) error {
	if m.cfg.Watcher != nil {
		m.cfg.Watcher.CancelCooperativeClaimTimeout(swapID)
	}
	return m.cfg.Store.SetSwapStatus(swapID, swapdb.StatusTransactionClaimed)
}

// HandleCooperativeClaimTimeout falls back to a script-spend claim of
// swapID's lockup using the already-revealed preimage, once the
// cooperative claim window has elapsed with no countersigned spend (spec
// §4.6 "Claim path"). It is a no-op if the swap already left
// TransactionClaimPend, since a cooperative claim may have landed in the
// same window this fallback fired.
func (m *Manager) HandleCooperativeClaimTimeout(ctx context.Context, swapID string) error {
	s, err := m.cfg.Store.FetchSwap(swapID)
	if err != nil {
		return err
	}
	if s.Status != swapdb.StatusTransactionClaimPend {
		return nil
	}
	if m.cfg.Wallet == nil {
		return fmt.Errorf("no claim broadcaster configured for swap %s", swapID)
	}

	if _, err := m.cfg.Wallet.BroadcastClaim(ctx, swapID); err != nil {
		return fmt.Errorf("unable to broadcast script-fallback claim for swap %s: %w", swapID, err)
	}
	return m.cfg.Store.SetSwapStatus(swapID, swapdb.StatusTransactionClaimed)
}

// ExpireSwaps transitions every swap whose timeout-block-height has passed
// and which hasn't reached InvoicePaid into SwapExpired (spec §4.6,
// "Timeout"). It is driven by the Timeout Watcher (C10).
func (m *Manager) ExpireSwaps(ids []string) error {
	for _, id := range ids {
		if err := m.cfg.Store.SetSwapStatus(id, swapdb.StatusSwapExpired); err != nil &&
			!errors.Is(err, swapdb.ErrIllegalTransition) {
			return err
		}
	}
	return nil
}

func splitPair(pair string) (string, string) {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '/' {
			return pair[:i], pair[i+1:]
		}
	}
	return pair, ""
}
