package swapdb

import (
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
)

// OrderSide distinguishes which leg of the pair is bought/sold.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Swap is the submarine swap entity (spec §3).
type Swap struct {
	ID                 string
	Pair               string
	OrderSide          OrderSide
	ReferralID         string
	OnchainAmountExp   uint64
	OnchainAmountAct   uint64
	Invoice            string
	PreimageHash       [32]byte
	Preimage           []byte
	RefundPublicKey    *btcec.PublicKey
	ClaimPrivateKey    *btcec.PrivateKey
	ClaimPublicKey     *btcec.PublicKey
	HTLCScript         []byte
	HTLCAddress        string
	TimeoutBlockHeight uint32
	LockupTxID         string
	LockupTxVout       uint32
	AcceptZeroConf     bool
	Status             SwapStatus
	CreatedAt          time.Time

	// ChannelCreation is non-nil when this submarine swap requested
	// "open channel on arrival" (§4.8). Stored by id, never embedded, so
	// Swap <-> ChannelCreation stays a reference, never an owning cycle
	// (SPEC_FULL.md design notes).
	ChannelCreationID string
}

// ReverseSwap is the Lightning->onchain swap entity (spec §3).
type ReverseSwap struct {
	ID                 string
	Pair               string
	OrderSide          OrderSide
	ReferralID         string
	InvoiceAmount      uint64
	OnchainAmount      uint64
	Invoice            string
	PrepayInvoice      string
	PreimageHash       [32]byte
	Preimage           []byte
	ClaimPublicKey     *btcec.PublicKey
	RefundPrivateKey   *btcec.PrivateKey
	RefundPublicKey    *btcec.PublicKey
	HTLCScript         []byte
	LockupAddress      string
	TimeoutBlockHeight uint32
	LockupTxID         string
	Status             SwapStatus
	CreatedAt          time.Time
}

// ChainSwap is the symmetric onchain<->onchain variant (SPEC_FULL.md
// supplement): two HTLCs sharing one preimage, a user lockup and a service
// lockup.
type ChainSwap struct {
	ID                     string
	Pair                   string
	OrderSide              OrderSide
	ReferralID             string
	UserAmount             uint64
	ServerAmount           uint64
	PreimageHash           [32]byte
	Preimage               []byte
	ClaimPublicKey         *btcec.PublicKey
	RefundPublicKey        *btcec.PublicKey
	UserLockupAddress      string
	ServerLockupAddress    string
	UserLockupTxID         string
	ServerLockupTxID       string
	TimeoutBlockHeight     uint32
	Status                 SwapStatus
	CreatedAt              time.Time
}

// ChannelCreation is 1:1 with a submarine Swap (spec §3, §4.8).
type ChannelCreation struct {
	SwapID               string
	NodePublicKey         string
	Private              bool
	InboundLiquidityPct   uint8
	FundingTxID           string
	FundingTxVout         uint32
	Status                ChannelCreationStatus
	RetryCount            int
}

// TimeoutDeltas holds the per-swap-type timeout block deltas for a pair.
type TimeoutDeltas struct {
	Submarine int
	Reverse   int
	ChainSwap int
}

// Pair describes fee policy and limits for a (base, quote) market (spec §3).
type Pair struct {
	Base              string
	Quote             string
	FeePercent        float64
	MinerFeeBase      uint64
	MinAmount         uint64
	MaxAmount         uint64
	MaxZeroConfAmount uint64
	TimeoutDeltas     TimeoutDeltas
	AllowZeroConf     bool
}

// WatchedOutput associates a watched output script with the swap that owns
// it, used by the Chain Listener's output index (§4.1).
type WatchedOutput struct {
	SwapID string
	Script []byte
}

// OutPoint is a (txid, vout) tuple, re-exported here so callers that only
// need persistence-layer semantics don't need to import wire directly.
type OutPoint = wire.OutPoint
