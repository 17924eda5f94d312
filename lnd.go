package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/btcsuite/btcd/btcec/v2"
	flags "github.com/jessevdk/go-flags"

	"github.com/lightninglabs/swapd/chainrpc"
	"github.com/lightninglabs/swapd/lightning"
	"github.com/lightninglabs/swapd/swapdb"
)

const version = "0.1.0-swapd"

// swapdMain is the true entry point for swapd. Kept separate from main so
// deferred cleanup still runs when a fatal startup error sends us through
// a plain return rather than os.Exit.
func swapdMain() error {
	loadedConfig, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = loadedConfig
	defer backendLog.Flush()

	setLogLevels(cfg.DebugLevel)
	ltndLog.Infof("Version %s", version)

	store, err := swapdb.Open(cfg.DataDir)
	if err != nil {
		ltndLog.Errorf("unable to open swap store: %v", err)
		return err
	}
	defer store.Close()

	netParams, err := chainParams(cfg.Bitcoin.Network)
	if err != nil {
		return err
	}

	btcRPC := chainrpc.New(chainrpc.Config{
		Host: cfg.Bitcoin.RPCHost,
		User: cfg.Bitcoin.RPCUser,
		Pass: cfg.Bitcoin.RPCPass,
	})

	var lbtcRPC *chainrpc.Client
	if cfg.Liquid.Active {
		lbtcRPC = chainrpc.New(chainrpc.Config{
			Host: cfg.Liquid.RPCHost,
			User: cfg.Liquid.RPCUser,
			Pass: cfg.Liquid.RPCPass,
		})
	} else {
		// A chain swap's Liquid leg still needs a client even when the
		// operator only runs a Bitcoin-side deployment; point it at the
		// same backend so SendToAddress calls fail loudly instead of
		// nil-panicking.
		lbtcRPC = btcRPC
	}

	lnClient, err := lightning.NewLNDClient(lightning.LNDConfig{
		Host:         cfg.Lightning.RPCHost,
		TLSPath:      cfg.Lightning.TLSPath,
		MacaroonPath: cfg.Lightning.MacaroonPath,
	})
	if err != nil {
		ltndLog.Errorf("unable to connect to lightning backend: %v", err)
		return err
	}

	info, err := lnClient.GetInfo(context.Background())
	if err != nil {
		ltndLog.Errorf("unable to fetch lightning node info: %v", err)
		return err
	}
	var ourNodeID [33]byte
	pubKeyBytes, err := hex.DecodeString(info.PubKey)
	if err != nil || len(pubKeyBytes) != 33 {
		return fmt.Errorf("lightning backend returned malformed node pubkey %q", info.PubKey)
	}
	copy(ourNodeID[:], pubKeyBytes)

	wallet := newChainWallet(btcRPC, lbtcRPC, store)

	newKeyPair := func() (*btcec.PrivateKey, error) {
		return btcec.NewPrivateKey()
	}

	srv, err := newServer(cfg, netParams, store, btcRPC, lnClient, wallet, lnClient, ourNodeID, newKeyPair)
	if err != nil {
		ltndLog.Errorf("unable to create server: %v", err)
		return err
	}
	if err := srv.Start(); err != nil {
		ltndLog.Errorf("unable to start server: %v", err)
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		ltndLog.Infof("Gracefully shutting down the server...")
		if err := srv.Stop(); err != nil {
			ltndLog.Errorf("error during shutdown: %v", err)
		}
	}()

	srv.WaitForShutdown()
	ltndLog.Info("Shutdown complete")
	return nil
}

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	if err := swapdMain(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
