package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/lightninglabs/swapd/api"
	"github.com/lightninglabs/swapd/chainntnfs"
	"github.com/lightninglabs/swapd/chainrpc"
	"github.com/lightninglabs/swapd/chainswap"
	"github.com/lightninglabs/swapd/eventbus"
	"github.com/lightninglabs/swapd/lightning"
	"github.com/lightninglabs/swapd/musig2signer"
	"github.com/lightninglabs/swapd/nursery"
	"github.com/lightninglabs/swapd/reverseswap"
	"github.com/lightninglabs/swapd/routinghints"
	"github.com/lightninglabs/swapd/swap"
	"github.com/lightninglabs/swapd/swapdb"
	"github.com/lightninglabs/swapd/timeoutwatcher"
)

// chainBackend is the subset of a single chain's RPC client swapd's
// listener and server need beyond chainntnfs.ChainRPC: broadcasting raw
// transactions and reading the current tip height.
type chainBackend interface {
	chainntnfs.ChainRPC
	BroadcastTx(tx []byte) (txid string, err error)
	BlockHeight() (uint32, error)
}

// htlcBroadcaster is implemented by the daemon's wallet integration; it
// knows how to spend a swap's HTLC output cooperatively or via the
// script's refund/claim branch, for every swap kind.
type htlcBroadcaster interface {
	BroadcastLockup(ctx context.Context, address string, amount uint64) (string, error)
	BroadcastRefund(ctx context.Context, swapID string) (string, error)
	BroadcastChainSwapServerLockup(ctx context.Context, address string, amount uint64) (string, error)
	BroadcastChainSwapRefund(ctx context.Context, swapID string, userLeg bool) (string, error)

	// BroadcastClaim spends a lockup output via its script-fallback
	// claim branch, once the cooperative Musig2 claim race has timed
	// out (spec §4.4, §4.6).
	BroadcastClaim(ctx context.Context, swapID string) (string, error)
}

// server is swapd's top-level daemon: it owns every long-running
// subsystem and is solely responsible for starting and stopping them in
// the right order, mirroring the original daemon's own server type.
type server struct {
	started  int32 // atomic
	shutdown int32 // atomic

	cfg *config

	store *swapdb.DB

	chainRPC  chainBackend
	chain     *chainntnfs.Listener
	poller    *chainrpc.Poller
	lightning lightning.Client

	musig2    *musig2signer.Signer
	submarine *swap.Manager
	reverse   *reverseswap.Manager
	chainswap *chainswap.Manager
	nursery   *nursery.Manager
	bus       *eventbus.Bus
	watcher   *timeoutwatcher.Watcher

	httpServer *http.Server

	wg   sync.WaitGroup
	quit chan struct{}
}

// onchainAdapter bridges the reverse-swap and chain-swap managers' narrow
// Onchain interfaces onto one concrete chain backend plus the wallet's
// HTLC broadcaster.
type onchainAdapter struct {
	claims htlcBroadcaster
}

func (a *onchainAdapter) BroadcastLockup(ctx context.Context, address string, amount uint64) (string, error) {
	return a.claims.BroadcastLockup(ctx, address, amount)
}

func (a *onchainAdapter) BroadcastRefund(ctx context.Context, swapID string) (string, error) {
	return a.claims.BroadcastRefund(ctx, swapID)
}

func (a *onchainAdapter) BroadcastServerLockup(ctx context.Context, address string, amount uint64) (string, error) {
	return a.claims.BroadcastChainSwapServerLockup(ctx, address, amount)
}

func (a *onchainAdapter) BroadcastRefundLeg(ctx context.Context, swapID string, userLeg bool) (string, error) {
	return a.claims.BroadcastChainSwapRefund(ctx, swapID, userLeg)
}

func (a *onchainAdapter) BroadcastClaim(ctx context.Context, swapID string) (string, error) {
	return a.claims.BroadcastClaim(ctx, swapID)
}

// chainSwapOnchainAdapter narrows onchainAdapter down to chainswap.Onchain,
// whose BroadcastRefund signature differs from reverseswap.OnchainLockup's.
type chainSwapOnchainAdapter struct {
	*onchainAdapter
}

func (a *chainSwapOnchainAdapter) BroadcastRefund(ctx context.Context, swapID string, userLeg bool) (string, error) {
	return a.onchainAdapter.BroadcastRefundLeg(ctx, swapID, userLeg)
}

// newServer wires every subsystem together from the loaded config, a
// connected chain backend, a connected Lightning client, and the wallet's
// HTLC broadcaster, mirroring the original daemon's newServer(listenAddrs,
// notifier, bio, wallet, chanDB) constructor shape.
func newServer(cfg *config, netParams *chaincfg.Params, store *swapdb.DB,
	chainRPC chainBackend, lnClient lightning.Client, claims htlcBroadcaster,
	pending musig2signer.PendingPaymentTracker, ourNodeID [33]byte,
	newKeyPair func() (*btcec.PrivateKey, error)) (*server, error) {

	chainListener := chainntnfs.NewListener(chainRPC)
	clk := clock.NewDefaultClock()
	hints := routinghints.New(ourNodeID)

	// bitcoind/elementsd have no push-notification feed in this daemon's
	// stack, so a poller drives the listener's HandleTx/HandleReorg off
	// the RPC client directly (spec §4.1).
	var poller *chainrpc.Poller
	if rpcClient, ok := chainRPC.(*chainrpc.Client); ok {
		poller = chainrpc.NewPoller(rpcClient, 10*time.Second, chainListener.HandleTx, chainListener.HandleReorg)
	}

	// submarineMgr and watcher each need a reference to the other:
	// watcher's CooperativeClaimTimeout handler calls into submarineMgr,
	// while submarineMgr's Config needs watcher to arm/disarm the
	// fallback. Forward-declare submarineMgr so the handler closure
	// below can capture the variable itself rather than its (not yet
	// assigned) value.
	var submarineMgr *swap.Manager

	adapter := &onchainAdapter{claims: claims}

	reverseMgr := reverseswap.NewManager(reverseswap.Config{
		Store:   store,
		Chain:   chainListener,
		Invoice: lnClient,
		Onchain: adapter,
		Pairs:   store,
		Net:     netParams,
		Hints:   hints,
		ClaimMinerFees: routinghints.ClaimMinerFee{
			"BTC":   cfg.RoutingHints.ClaimMinerFeeBTC,
			"L-BTC": cfg.RoutingHints.ClaimMinerFeeLBTC,
		},
		NewRefundKeyPair: newKeyPair,
	})

	chainSwapMgr := chainswap.NewManager(chainswap.Config{
		Store:           store,
		Chain:           chainListener,
		Onchain:         &chainSwapOnchainAdapter{adapter},
		Pairs:           store,
		Net:             netParams,
		NewClaimKeyPair: newKeyPair,
	})

	nurseryMgr := nursery.NewManager(nursery.Config{
		Store:                 store,
		Lightning:             lnClient,
		LocalFundingFeeBuffer: cfg.Nursery.LocalFundingFeeBuffer,
		SatPerVByte:           cfg.Nursery.SatPerVByte,
		BaseRetry:             cfg.Nursery.BaseRetry,
	})

	musig2Signer := musig2signer.New(store, lnClient, pending)
	bus := eventbus.New()

	watcher := timeoutwatcher.New(clk, time.Minute, cfg.CooperativeClaimTimeout, timeoutwatcher.ExpiryHandlers{
		Submarine: func(b timeoutwatcher.Batch) error {
			return submarineMgr.ExpireSwaps(b.SwapIDs)
		},
		Reverse: func(b timeoutwatcher.Batch) error {
			return reverseMgr.ExpireSwaps(context.Background(), b.SwapIDs)
		},
		ChainSwap: func(b timeoutwatcher.Batch) error {
			return chainSwapMgr.ExpireSwaps(context.Background(), b.SwapIDs)
		},
		CooperativeClaimTimeout: func(swapID string) error {
			return submarineMgr.HandleCooperativeClaimTimeout(context.Background(), swapID)
		},
	})

	submarineMgr = swap.NewManager(swap.Config{
		Store:                   store,
		Chain:                   chainListener,
		Invoice:                 lnClient,
		Pairs:                   store,
		Net:                     netParams,
		Clock:                   clk,
		MinFeePerVByte:          1,
		MempoolEvictionGrace:    cfg.Bitcoin.MempoolEvictionGrace,
		CooperativeClaimTimeout: cfg.CooperativeClaimTimeout,
		NewClaimKeyPair:         newKeyPair,
		Watcher:                watcher,
		Wallet:                  claims,
		PaymentTimeout:          cfg.Lightning.PaymentTimeout,
		MaxPaymentAttempts:      cfg.Lightning.MaxPaymentAttempts,
	})

	apiServer := &api.Server{
		Store:     store,
		Submarine: submarineMgr,
		Reverse:   reverseMgr,
		ChainSwap: chainSwapMgr,
		Musig2:    musig2Signer,
		Bus:       bus,
		CurrentHeight: func() (uint32, error) {
			info, err := lnClient.GetInfo(context.Background())
			if err != nil {
				return 0, err
			}
			return info.BlockHeight, nil
		},
	}

	s := &server{
		cfg:       cfg,
		store:     store,
		chainRPC:  chainRPC,
		chain:     chainListener,
		poller:    poller,
		lightning: lnClient,
		musig2:    musig2Signer,
		submarine: submarineMgr,
		reverse:   reverseMgr,
		chainswap: chainSwapMgr,
		nursery:   nurseryMgr,
		bus:       bus,
		watcher:   watcher,
		httpServer: &http.Server{
			Addr:    cfg.RESTListen,
			Handler: apiServer.Router(),
		},
		quit: make(chan struct{}),
	}

	return s, nil
}

// Start launches every subsystem's event-dispatch goroutine, in
// dependency order: the loops that consume chain/Lightning notifications
// first, then the HTTP/WebSocket API last.
func (s *server) Start() error {
	if atomic.AddInt32(&s.started, 1) != 1 {
		return nil
	}

	if s.poller != nil {
		if err := s.poller.Start(); err != nil {
			return fmt.Errorf("unable to start chain poller: %w", err)
		}
	}

	s.wg.Add(1)
	go s.chainEventLoop()

	s.wg.Add(1)
	go s.invoiceEventLoop()

	s.wg.Add(1)
	go s.peerEventLoop()

	s.wg.Add(1)
	go s.channelEventLoop()

	s.wg.Add(1)
	go s.watcherLoop()

	s.wg.Add(1)
	go s.serveHTTP()

	ltndLog.Infof("swapd listening on %s", s.cfg.RESTListen)

	return nil
}

// Stop signals every goroutine to exit and blocks until they've all
// returned, then closes the store.
func (s *server) Stop() error {
	if atomic.AddInt32(&s.shutdown, 1) != 1 {
		return nil
	}

	close(s.quit)
	s.watcher.Stop()
	s.chain.Stop()
	if s.poller != nil {
		s.poller.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}

	s.wg.Wait()

	return s.store.Close()
}

// WaitForShutdown blocks until every subsystem goroutine has exited.
func (s *server) WaitForShutdown() {
	s.wg.Wait()
}

func (s *server) serveHTTP() {
	defer s.wg.Done()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		ltndLog.Errorf("api server exited: %v", err)
	}
}

// chainEventLoop normalizes Found/Retracted notifications onto whichever
// manager owns the swap id: submarine swaps via swap.Manager, chain swaps
// via chainswap.Manager.
func (s *server) chainEventLoop() {
	defer s.wg.Done()

	for {
		select {
		case raw, ok := <-s.chain.Found():
			if !ok {
				return
			}
			s.dispatchOutputFound(raw.(*chainntnfs.OutputFound))

		case raw, ok := <-s.chain.Retracted():
			if !ok {
				return
			}
			evt := raw.(*chainntnfs.OutputRetracted)
			if _, err := s.store.FetchSwap(evt.SwapID); err == nil {
				if err := s.submarine.HandleOutputRetracted(evt); err != nil {
					ltndLog.Errorf("submarine output-retracted handler failed for %s: %v", evt.SwapID, err)
				}
			}

		case raw, ok := <-s.chain.Claimed():
			if !ok {
				return
			}
			s.dispatchClaimObserved(raw.(*chainntnfs.ClaimObserved))

		case <-s.quit:
			return
		}
	}
}

// dispatchOutputFound routes an OutputFound event by its Kind: WatchDeposit
// tags a counterparty-funded lockup (submarine's single leg, or a chain
// swap's user-funded leg); WatchOwnLockup tags the service's own broadcast
// lockup (reverse's single leg, or a chain swap's server-funded leg), which
// needs spend-detection armed to catch the counterparty's eventual claim.
func (s *server) dispatchOutputFound(evt *chainntnfs.OutputFound) {
	ctx := context.Background()

	switch evt.Kind {
	case chainntnfs.WatchOwnLockup:
		if _, err := s.store.FetchReverseSwap(evt.SwapID); err == nil {
			if err := s.reverse.HandleOutputFound(evt); err != nil {
				ltndLog.Errorf("reverse output-found handler failed for %s: %v", evt.SwapID, err)
			}
			return
		}
		if _, err := s.store.FetchChainSwap(evt.SwapID); err == nil {
			if err := s.chainswap.HandleServerLockupFound(evt); err != nil {
				ltndLog.Errorf("chain-swap server-lockup handler failed for %s: %v", evt.SwapID, err)
			}
			return
		}

	default:
		if _, err := s.store.FetchSwap(evt.SwapID); err == nil {
			if err := s.submarine.HandleOutputFound(ctx, evt); err != nil {
				ltndLog.Errorf("submarine output-found handler failed for %s: %v", evt.SwapID, err)
			}
			return
		}
		if _, err := s.store.FetchChainSwap(evt.SwapID); err == nil {
			if err := s.chainswap.HandleUserLockupEligible(ctx, evt.SwapID); err != nil {
				ltndLog.Errorf("chain-swap lockup handler failed for %s: %v", evt.SwapID, err)
			}
			return
		}
	}

	ltndLog.Warnf("output found for unknown swap id %s", evt.SwapID)
}

// dispatchClaimObserved routes a ClaimObserved event (a watched spend
// revealing the preimage) to whichever manager owns the swap id: reverse
// swaps settle their hold invoice, chain swaps broadcast the service's
// claim of the user-funded leg (spec §4.7, §4.4).
func (s *server) dispatchClaimObserved(evt *chainntnfs.ClaimObserved) {
	ctx := context.Background()

	if _, err := s.store.FetchReverseSwap(evt.SwapID); err == nil {
		if err := s.reverse.HandleClaimObserved(ctx, evt.SwapID, evt.Preimage); err != nil {
			ltndLog.Errorf("reverse claim-observed handler failed for %s: %v", evt.SwapID, err)
		}
		return
	}

	if _, err := s.store.FetchChainSwap(evt.SwapID); err == nil {
		if err := s.chainswap.HandleClaimObserved(ctx, evt.SwapID, evt.Preimage); err != nil {
			ltndLog.Errorf("chain-swap claim-observed handler failed for %s: %v", evt.SwapID, err)
		}
		return
	}

	ltndLog.Warnf("claim observed for unknown swap id %s", evt.SwapID)
}

// invoiceEventLoop drives the reverse swap claim path off the Lightning
// backend's invoice subscription (spec §4.7, "Hold invoice first").
func (s *server) invoiceEventLoop() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := s.lightning.SubscribeInvoices(ctx)
	if err != nil {
		ltndLog.Errorf("unable to subscribe to invoice events: %v", err)
		return
	}

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.State == lightning.InvoiceAccepted {
				swapID := fmt.Sprintf("%x", evt.PreimageHash[:8])
				if err := s.reverse.HandleInvoiceAccepted(ctx, swapID, evt.PreimageHash); err != nil {
					ltndLog.Errorf("reverse invoice-accepted handler failed for %s: %v", swapID, err)
				}
			}

		case <-s.quit:
			return
		}
	}
}

// peerEventLoop retries channel-nursery opens once a previously-offline
// peer reconnects (spec §4.8 step 1).
func (s *server) peerEventLoop() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := s.lightning.SubscribePeerEvents(ctx)
	if err != nil {
		ltndLog.Errorf("unable to subscribe to peer events: %v", err)
		return
	}

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.Online {
				if err := s.nursery.RetryOpeningChannels(ctx, nil); err != nil {
					ltndLog.Errorf("nursery retry-opening sweep failed: %v", err)
				}
			}

		case <-s.quit:
			return
		}
	}
}

// channelEventLoop settles a nursery-opened channel's invoice once the
// channel goes active (spec §4.8 step 3).
func (s *server) channelEventLoop() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := s.lightning.SubscribeChannelEvents(ctx)
	if err != nil {
		ltndLog.Errorf("unable to subscribe to channel events: %v", err)
		return
	}

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			if !evt.Active {
				continue
			}
			cc, err := s.store.ChannelCreationByFunding(evt.FundingTxID, evt.FundingVout)
			if err != nil {
				continue
			}
			if err := s.nursery.HandleChannelActive(ctx, cc.SwapID); err != nil {
				ltndLog.Errorf("nursery channel-active handler failed for %s: %v", cc.SwapID, err)
			}

		case <-s.quit:
			return
		}
	}
}

// watcherLoop polls the chain backend's tip height and drives the Timeout
// Watcher's block-height tick (spec §4.10).
func (s *server) watcherLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go s.watcher.Run()

	for {
		select {
		case <-ticker.C:
			height, err := s.chainRPC.BlockHeight()
			if err != nil {
				ltndLog.Errorf("unable to fetch chain height: %v", err)
				continue
			}
			if err := s.watcher.Tick("BTC", height); err != nil {
				ltndLog.Errorf("timeout watcher tick failed: %v", err)
			}

		case <-s.quit:
			return
		}
	}
}
