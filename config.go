package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "swapd.conf"
	defaultDataDirname    = "data"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "swapd.log"
	defaultRPCPort        = 9792
	defaultRESTPort       = 9793

	defaultBaseRetry             = time.Second
	defaultCooperativeClaimWait  = 10 * time.Minute
	defaultMempoolEvictionGrace  = time.Hour
	defaultLocalFundingFeeBuffer = 2_000

	defaultClaimMinerFeeBTC  = 3_000
	defaultClaimMinerFeeLBTC = 500

	defaultMaxPaymentFeeRatio = 0.03
	defaultPaymentTimeout     = 60 * time.Second
	defaultMaxPaymentAttempts = 5
)

var (
	defaultSwapdDir  = btcutilAppDataDir("swapd", false)
	defaultConfigFile = filepath.Join(defaultSwapdDir, defaultConfigFilename)
	defaultDataDir   = filepath.Join(defaultSwapdDir, defaultDataDirname)
	defaultLogDir    = filepath.Join(defaultSwapdDir, defaultLogDirname)
)

// chainConfig groups the onchain backend swapd watches for lockups (spec
// §4.1).
type chainConfig struct {
	Active  bool   `long:"active" description:"whether this chain's listener should be started"`
	Network string `long:"network" description:"mainnet, testnet, regtest, or signet"`

	RPCHost string `long:"rpchost" description:"chain backend RPC host:port"`
	RPCUser string `long:"rpcuser" description:"chain backend RPC username"`
	RPCPass string `long:"rpcpass" description:"chain backend RPC password"`

	MinFeePerVByte       int64 `long:"minfeepervbyte" description:"minimum fee rate, in sat/vbyte, for zero-conf acceptance"`
	MempoolEvictionGrace time.Duration `long:"mempoolevictiongrace" description:"how long a vanished lockup stays in TransactionMempool before being marked failed"`
}

// lightningConfig groups the Lightning backend swapd pays/holds invoices
// against (spec §4.2).
type lightningConfig struct {
	Backend  string `long:"backend" description:"lnd, cln, or eclair"`
	RPCHost  string `long:"rpchost" description:"Lightning backend RPC host:port"`
	TLSPath  string `long:"tlspath" description:"path to the backend's TLS certificate"`
	MacaroonPath string `long:"macaroonpath" description:"path to the backend's macaroon, if applicable"`

	MaxPaymentFeeRatio float64       `long:"maxpaymentfeeratio" description:"maximum acceptable routing fee, as a ratio of the payment amount"`
	PaymentTimeout     time.Duration `long:"paymenttimeout" description:"how long to retry a submarine invoice payment before giving up"`
	MaxPaymentAttempts int           `long:"maxpaymentattempts" description:"maximum submarine invoice payment attempts"`
}

// nurseryConfig groups the Channel Nursery's tunables (spec §4.8).
type nurseryConfig struct {
	LocalFundingFeeBuffer uint64        `long:"localfundingfeebuffer" description:"extra sats added to the invoice amount when sizing a nursery-opened channel"`
	SatPerVByte           uint64        `long:"satpervbyte" description:"fee rate used to open nursery channels"`
	BaseRetry             time.Duration `long:"baseretry" description:"base unit for the nursery's exponential settlement retry schedule"`
}

// routingHintsConfig groups the Routing-Hints Engine's per-currency claim
// miner fee table (spec §4.5).
type routingHintsConfig struct {
	ClaimMinerFeeBTC   uint64 `long:"claimminerfeebtc" description:"sats the service expects to pay claiming a reverse swap's BTC onchain HTLC"`
	ClaimMinerFeeLBTC  uint64 `long:"claimminerfeelbtc" description:"sats the service expects to pay claiming a reverse swap's L-BTC onchain HTLC"`
}

// config is the top-level swapd configuration, parsed from the command
// line and an optional INI file via jessevdk/go-flags, mirroring the
// daemon's original config layout (spec §1, "Non-goals" notwithstanding:
// config/logging remain part of the ambient stack).
type config struct {
	ShowVersion bool `short:"V" long:"version" description:"display version and exit"`

	SwapdDir   string `long:"swapddir" description:"base data directory"`
	ConfigFile string `long:"configfile" description:"path to configuration file"`
	DataDir    string `long:"datadir" description:"directory to store swap state"`

	RPCListen  string `long:"rpclisten" description:"host:port reserved for a control API; the daemon opens no listener on it"`
	RESTListen string `long:"restlisten" description:"host:port for the HTTP/WebSocket API (spec §6, §4.9)"`

	DebugLevel string `long:"debuglevel" description:"logging level: trace, debug, info, warn, error, critical"`
	LogDir     string `long:"logdir" description:"directory to store log files"`

	Bitcoin chainConfig `group:"Bitcoin" namespace:"bitcoin"`
	Liquid  chainConfig `group:"Liquid" namespace:"liquid"`

	Lightning lightningConfig `group:"Lightning" namespace:"lightning"`

	Nursery nurseryConfig `group:"Nursery" namespace:"nursery"`

	RoutingHints routingHintsConfig `group:"RoutingHints" namespace:"routinghints"`

	CooperativeClaimTimeout time.Duration `long:"cooperativeclaimtimeout" description:"wall-clock wait before falling back from a cooperative Musig2 claim to a script-spend claim"`
}

// defaultConfig returns a config pre-populated with swapd's defaults,
// mirroring the daemon's upstream defaultConfig pattern.
func defaultConfig() config {
	return config{
		ConfigFile: defaultConfigFile,
		DataDir:    defaultDataDir,
		LogDir:     defaultLogDir,
		DebugLevel: defaultLogLevel,
		RPCListen:  fmt.Sprintf("localhost:%d", defaultRPCPort),
		RESTListen: fmt.Sprintf("localhost:%d", defaultRESTPort),

		Bitcoin: chainConfig{
			Network:              "mainnet",
			MempoolEvictionGrace: defaultMempoolEvictionGrace,
		},
		Liquid: chainConfig{
			Network:              "mainnet",
			MempoolEvictionGrace: defaultMempoolEvictionGrace,
		},

		Lightning: lightningConfig{
			MaxPaymentFeeRatio: defaultMaxPaymentFeeRatio,
			PaymentTimeout:     defaultPaymentTimeout,
			MaxPaymentAttempts: defaultMaxPaymentAttempts,
		},

		Nursery: nurseryConfig{
			LocalFundingFeeBuffer: defaultLocalFundingFeeBuffer,
			SatPerVByte:           1,
			BaseRetry:             defaultBaseRetry,
		},

		RoutingHints: routingHintsConfig{
			ClaimMinerFeeBTC:  defaultClaimMinerFeeBTC,
			ClaimMinerFeeLBTC: defaultClaimMinerFeeLBTC,
		},

		CooperativeClaimTimeout: defaultCooperativeClaimWait,
	}
}

// loadConfig parses command-line flags over the defaults, then an optional
// config file, then the command line again so flags always win, matching
// the daemon's original two-pass parse.
func loadConfig() (*config, error) {
	cfg := defaultConfig()

	preParser := flags.NewParser(&cfg, flags.Default)
	if _, err := preParser.Parse(); err != nil {
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, err
	}

	if err := flags.NewIniParser(preParser).ParseFile(cfg.ConfigFile); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			return nil, fmt.Errorf("unable to parse config file: %w", err)
		}
	}

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("unable to create data directory: %w", err)
	}
	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}

	return &cfg, nil
}

// chainParams resolves a chainConfig's network name into btcd chain
// parameters.
func chainParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
}

// btcutilAppDataDir mirrors btcutil.AppDataDir without importing the whole
// wallet stack just for a path join; it's the same $HOME/.swapd convention
// lnd uses for its own data directory.
func btcutilAppDataDir(appName string, roaming bool) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "." + appName
	}
	return filepath.Join(home, "."+appName)
}
