// Package chainswap implements the ChainSwap supplement: an onchain-to-
// onchain atomic swap built from two HTLCs sharing one preimage, a user
// lockup and a service lockup, claimed and refunded symmetrically by
// composing the submarine claim path with the reverse refund path.
package chainswap

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/swapd/chainntnfs"
	"github.com/lightninglabs/swapd/swapdb"
)

// PairSource resolves pair policy, mirroring swap.PairSource.
type PairSource interface {
	Pair(base, quote string) (*swapdb.Pair, error)
}

// Onchain abstracts broadcasting the service's side of the swap and
// refunding either leg.
type Onchain interface {
	BroadcastServerLockup(ctx context.Context, address string, amount uint64) (txid string, err error)
	BroadcastRefund(ctx context.Context, swapID string, userLeg bool) (txid string, err error)

	// BroadcastClaim spends the user-funded leg's lockup with the
	// preimage revealed by the user's own claim of the server-funded
	// leg, the script-fallback mirror of the submarine claim path
	// applied to the second HTLC (spec §4.4 "race vs script fallback").
	BroadcastClaim(ctx context.Context, swapID string) (txid string, err error)
}

// ChainWatcher registers a watched output script against a swap id,
// mirroring chainntnfs.Listener.Watch so the user-funded leg's lockup
// generates an OutputFound the same way a submarine swap's does; the
// server-funded leg is watched the same way but tagged WatchOwnLockup so
// server.go can tell the two legs apart on a shared swap id.
type ChainWatcher interface {
	Watch(swapID string, script []byte, kind chainntnfs.WatchKind)
	WatchSpend(swapID string, outpoint wire.OutPoint)
}

// CreateRequest mirrors a hypothetical `POST /swap/chain` request body,
// following the same shape as submarine/reverse creation (spec §6 pattern,
// extended per SPEC_FULL.md's ChainSwap supplement).
type CreateRequest struct {
	From               string
	To                 string
	UserAmount         uint64
	ServerAmount       uint64
	ClaimPublicKey     *btcec.PublicKey
	RefundPublicKey    *btcec.PublicKey
	ReferralID         string
	CurrentBlockHeight uint32
}

// CreateResult groups what a chain-swap creation response needs.
type CreateResult struct {
	ID                  string
	UserLockupAddress   string
	TimeoutBlockHeight  uint32
	ServerAmount        uint64
}

// Config groups the Manager's dependencies.
type Config struct {
	Store   *swapdb.DB
	Chain   ChainWatcher
	Onchain Onchain
	Pairs   PairSource
	Net     *chaincfg.Params

	NewClaimKeyPair func() (*btcec.PrivateKey, error)
}

// Manager drives the chain-swap lifecycle.
type Manager struct {
	cfg Config
}

// NewManager constructs a Manager.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// CreateSwap mints the shared preimage hash and service-owned claim key,
// derives the user-funded HTLC address, and persists a new chain swap in
// SwapCreated.
func (m *Manager) CreateSwap(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	pair, err := m.cfg.Pairs.Pair(req.From, req.To)
	if err != nil {
		return nil, err
	}

	var preimage [32]byte
	if _, err := rand.Read(preimage[:]); err != nil {
		return nil, err
	}
	preimageHash := sha256.Sum256(preimage[:])

	// claimPriv claims the user-funded leg on the service's behalf;
	// serverRefundPriv refunds the service-funded leg if the swap times
	// out before the user claims it. Two distinct HTLCs need two
	// distinct service-owned keys (SPEC_FULL.md ChainSwap supplement).
	claimPriv, err := m.cfg.NewClaimKeyPair()
	if err != nil {
		return nil, fmt.Errorf("unable to mint claim key: %w", err)
	}
	serverRefundPriv, err := m.cfg.NewClaimKeyPair()
	if err != nil {
		return nil, fmt.Errorf("unable to mint server refund key: %w", err)
	}

	timeoutHeight := req.CurrentBlockHeight + uint32(pair.TimeoutDeltas.ChainSwap)

	userScript, err := buildHTLCScript(preimageHash, claimPriv.PubKey(), req.RefundPublicKey, timeoutHeight)
	if err != nil {
		return nil, fmt.Errorf("unable to build user-leg HTLC script: %w", err)
	}
	userAddress, userPkScript, err := p2wshAddress(userScript, m.cfg.Net)
	if err != nil {
		return nil, err
	}

	serverScript, err := buildHTLCScript(preimageHash, req.ClaimPublicKey, serverRefundPriv.PubKey(), timeoutHeight)
	if err != nil {
		return nil, fmt.Errorf("unable to build server-leg HTLC script: %w", err)
	}
	serverAddress, serverPkScript, err := p2wshAddress(serverScript, m.cfg.Net)
	if err != nil {
		return nil, err
	}

	s := &swapdb.ChainSwap{
		ID:                  fmt.Sprintf("%x", preimageHash[:8]),
		Pair:                pair.Base + "/" + pair.Quote,
		ReferralID:          req.ReferralID,
		UserAmount:          req.UserAmount,
		ServerAmount:        req.ServerAmount,
		PreimageHash:        preimageHash,
		ClaimPublicKey:      claimPriv.PubKey(),
		RefundPublicKey:     req.RefundPublicKey,
		UserLockupAddress:   userAddress,
		ServerLockupAddress: serverAddress,
		TimeoutBlockHeight:  timeoutHeight,
	}

	if err := m.cfg.Store.CreateChainSwap(s); err != nil {
		return nil, err
	}

	if err := m.cfg.Store.WatchOutput(s.ID, userPkScript); err != nil {
		return nil, err
	}
	m.cfg.Chain.Watch(s.ID, userPkScript, chainntnfs.WatchDeposit)

	// The server-funded leg's address is already fixed even though
	// nothing is broadcast to it yet; registering the watch now means
	// the listener hands back (txid, vout) for our own broadcast the
	// moment HandleUserLockupEligible sends it, with no second RPC
	// round-trip needed to learn the vout.
	m.cfg.Chain.Watch(s.ID, serverPkScript, chainntnfs.WatchOwnLockup)

	return &CreateResult{
		ID:                 s.ID,
		UserLockupAddress:  userAddress,
		TimeoutBlockHeight: timeoutHeight,
		ServerAmount:       req.ServerAmount,
	}, nil
}

// HandleUserLockupEligible is invoked once the user's lockup is seen; no
// zero-conf policy gate is applied to chain swaps. It broadcasts the
// service's own lockup, the reverse leg's ordering applied to the
// server-funded side.
func (m *Manager) HandleUserLockupEligible(ctx context.Context, swapID string) error {
	s, err := m.cfg.Store.FetchChainSwap(swapID)
	if err != nil {
		return err
	}

	if err := m.cfg.Store.SetChainSwapStatus(swapID, swapdb.StatusTransactionConfirmed); err != nil &&
		!errors.Is(err, swapdb.ErrIllegalTransition) {
		return err
	}

	txid, err := m.cfg.Onchain.BroadcastServerLockup(ctx, s.ServerLockupAddress, s.ServerAmount)
	if err != nil {
		return err
	}
	return m.cfg.Store.SetChainSwapServerLockup(swapID, txid)
}

// HandleServerLockupFound reacts to the chain listener observing the
// service's own broadcast server-leg lockup, and arms spend-detection on
// its exact outpoint so the user's eventual claim of that leg (which
// reveals the shared preimage) is caught.
func (m *Manager) HandleServerLockupFound(evt *chainntnfs.OutputFound) error {
	m.cfg.Chain.WatchSpend(evt.SwapID, wire.OutPoint{Hash: evt.TxID, Index: evt.Vout})
	return nil
}

// HandleClaimObserved reacts to the user claiming the server-funded leg,
// revealing the preimage that lets the service claim the user-funded leg
// in turn: the script-fallback spend of the submarine claim path, applied
// here to the second HTLC (spec §4.4).
func (m *Manager) HandleClaimObserved(ctx context.Context, swapID string, preimage []byte) error {
	s, err := m.cfg.Store.FetchChainSwap(swapID)
	if err != nil {
		return err
	}
	hash := sha256.Sum256(preimage)
	if hash != s.PreimageHash {
		return fmt.Errorf("observed preimage does not match chain swap %s", swapID)
	}

	if err := m.cfg.Store.SetChainSwapPreimage(swapID, preimage); err != nil {
		return err
	}
	if err := m.cfg.Store.SetChainSwapStatus(swapID, swapdb.StatusTransactionClaimPend); err != nil {
		return err
	}

	if _, err := m.cfg.Onchain.BroadcastClaim(ctx, swapID); err != nil {
		return fmt.Errorf("unable to broadcast claim of user-funded leg for chain swap %s: %w", swapID, err)
	}
	return m.cfg.Store.SetChainSwapStatus(swapID, swapdb.StatusTransactionClaimed)
}

// ExpireSwaps refunds both legs of any chain swap past its timeout with no
// preimage observed (composing the reverse leg's refund path across both
// HTLCs).
func (m *Manager) ExpireSwaps(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := m.cfg.Store.SetChainSwapStatus(id, swapdb.StatusSwapExpired); err != nil &&
			!errors.Is(err, swapdb.ErrIllegalTransition) {
			return err
		}

		if _, err := m.cfg.Onchain.BroadcastRefund(ctx, id, true); err != nil {
			return err
		}
		if _, err := m.cfg.Onchain.BroadcastRefund(ctx, id, false); err != nil {
			return err
		}
		if err := m.cfg.Store.SetChainSwapStatus(id, swapdb.StatusTransactionRefunded); err != nil {
			return err
		}
	}
	return nil
}
