package lightning

import (
	"context"
	"time"
)

// RoutingHint is one BOLT11 r-field entry: a synthetic or real hop a sender
// can use to reach an otherwise-unadvertised channel (spec §4.2, §4.5).
type RoutingHint struct {
	NodeID                    [33]byte
	ShortChannelID            uint64
	FeeBaseMSat               uint32
	FeeProportionalMillionths uint32
	CLTVExpiryDelta           uint16
}

// InvoiceState mirrors the lifecycle of a hold invoice as seen by the
// payee (spec glossary: Hold invoice).
type InvoiceState int

const (
	InvoiceOpen InvoiceState = iota
	InvoiceAccepted
	InvoiceSettled
	InvoiceCancelled
)

// InvoiceEvent is pushed to subscribers of Client.SubscribeInvoices.
type InvoiceEvent struct {
	PreimageHash [32]byte
	State        InvoiceState
}

// PeerEvent and ChannelEvent back the Channel Nursery's connectivity and
// liquidity checks (spec §4.2, §4.8).
type PeerEvent struct {
	PubKey string
	Online bool
}

type ChannelEvent struct {
	PubKey       string
	FundingTxID  string
	FundingVout  uint32
	Active       bool
}

// Client is the Lightning Listener component, C2. It abstracts over a
// concrete node backend (LND, CLN, Eclair, ...) exposing exactly the
// operations the swap engine needs.
type Client interface {
	// AddHoldInvoice creates a hold invoice for preimageHash that stays
	// in the InvoiceAccepted state once paid, until explicitly settled
	// or cancelled (spec §4.2).
	AddHoldInvoice(ctx context.Context, req AddHoldInvoiceRequest) (string, error)

	// SettleHoldInvoice releases a previously accepted hold invoice by
	// revealing its preimage.
	SettleHoldInvoice(ctx context.Context, preimage []byte) error

	// CancelHoldInvoice cancels a hold invoice that was never, or will
	// never be, settled.
	CancelHoldInvoice(ctx context.Context, preimageHash [32]byte) error

	// PayInvoice makes a single attempt to pay a BOLT11 invoice and
	// returns the revealed preimage on success; it does not retry.
	PayInvoice(ctx context.Context, req PayInvoiceRequest) ([]byte, error)

	// PayOffer pays a BOLT12 offer, returning the revealed preimage and
	// the resolved payee identity.
	PayOffer(ctx context.Context, offer string, amountMsat uint64) (preimage []byte, payeeKey [33]byte, err error)

	// SubscribeInvoices streams invoice.accepted / invoice.settled /
	// invoice.cancelled events for invoices created via AddHoldInvoice.
	SubscribeInvoices(ctx context.Context) (<-chan *InvoiceEvent, error)

	// SubscribePeerEvents streams peer.online events.
	SubscribePeerEvents(ctx context.Context) (<-chan *PeerEvent, error)

	// SubscribeChannelEvents streams channel.active events.
	SubscribeChannelEvents(ctx context.Context) (<-chan *ChannelEvent, error)

	// ConnectPeer attempts to connect to pubkey using the given address
	// hints (spec §4.8 step 1).
	ConnectPeer(ctx context.Context, pubkey string, addrHints []string) error

	// OpenChannel opens a channel to pubkey, returning the funding
	// outpoint (spec §4.8 step 2).
	OpenChannel(ctx context.Context, req OpenChannelRequest) (txid string, vout uint32, err error)

	// GetInfo returns the node's own identity pubkey, used by the
	// Routing-Hints Engine to sign BIP21 descriptors where applicable.
	GetInfo(ctx context.Context) (NodeInfo, error)
}

// AddHoldInvoiceRequest groups AddHoldInvoice's parameters (spec §4.2).
type AddHoldInvoiceRequest struct {
	PreimageHash    [32]byte
	AmountMSat      uint64
	Memo            string
	DescriptionHash []byte
	Expiry          time.Duration
	CLTVDelta       uint16
	RoutingHints    []RoutingHint
}

// PayInvoiceRequest groups PayInvoice's parameters (spec §4.2, §4.6).
type PayInvoiceRequest struct {
	Invoice            string
	MaxFeeRatio        float64
	OutgoingChannelID  uint64
	Timeout            time.Duration
	MaxAttempts        int
}

// OpenChannelRequest groups OpenChannel's parameters (spec §4.8 step 2).
type OpenChannelRequest struct {
	PubKey          string
	LocalFundingSat uint64
	Private         bool
	SatPerVByte     uint64
}

// NodeInfo is the subset of getinfo swapd depends on.
type NodeInfo struct {
	PubKey      string
	Alias       string
	BlockHeight uint32
}
