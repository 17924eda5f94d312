package main

import (
	"context"

	"github.com/lightninglabs/swapd/chainrpc"
)

// chainWallet implements the daemon's htlcBroadcaster by delegating every
// payout to the chain backend's own wallet. swapd never custodies private
// keys or manages UTXOs itself; the service's hot funds already live in
// the chain backend (bitcoind/elementsd) wallet that signs these sends,
// per the wallet key-management Non-goal.
type chainWallet struct {
	btc   *chainrpc.Client
	lbtc  *chainrpc.Client
	store addressResolver
}

// addressResolver looks up the onchain address a given swap quoted to its
// counterparty, so a script-fallback refund/claim pays back to it.
type addressResolver interface {
	SwapAddress(swapID string) (string, int64, error)
}

func newChainWallet(btc, lbtc *chainrpc.Client, store addressResolver) *chainWallet {
	return &chainWallet{btc: btc, lbtc: lbtc, store: store}
}

func (w *chainWallet) BroadcastLockup(ctx context.Context, address string, amount uint64) (string, error) {
	return w.btc.SendToAddress(address, int64(amount))
}

func (w *chainWallet) BroadcastRefund(ctx context.Context, swapID string) (string, error) {
	address, amount, err := w.store.SwapAddress(swapID)
	if err != nil {
		return "", err
	}
	return w.btc.SendToAddress(address, amount)
}

// BroadcastClaim spends a lockup output with the script-fallback claim
// branch, used whenever the cooperative Musig2 claim race times out (spec
// §4.4) or a chain swap's user-funded leg needs claiming after the user
// reveals the preimage on its own claim of the server-funded leg.
func (w *chainWallet) BroadcastClaim(ctx context.Context, swapID string) (string, error) {
	address, amount, err := w.store.SwapAddress(swapID)
	if err != nil {
		return "", err
	}
	return w.btc.SendToAddress(address, amount)
}

func (w *chainWallet) BroadcastChainSwapServerLockup(ctx context.Context, address string, amount uint64) (string, error) {
	return w.lbtc.SendToAddress(address, int64(amount))
}

func (w *chainWallet) BroadcastChainSwapRefund(ctx context.Context, swapID string, userLeg bool) (string, error) {
	address, amount, err := w.store.SwapAddress(swapID)
	if err != nil {
		return "", err
	}
	client := w.lbtc
	if userLeg {
		client = w.btc
	}
	return client.SendToAddress(address, amount)
}
