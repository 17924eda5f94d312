package routinghints

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightninglabs/swapd/lightning"
)

var (
	// ErrBadDescriptionHash is returned when a caller-supplied
	// description hash isn't exactly 32 bytes (spec §4.5).
	ErrBadDescriptionHash = errors.New("description hash must be exactly 32 bytes")

	// ErrInvalidAddressSignature is returned when a BIP21 refund address
	// signature fails to verify against the claim public key (spec §4.5,
	// §6).
	ErrInvalidAddressSignature = errors.New("INVALID_ADDRESS_SIGNATURE")
)

// ClaimMinerFee is the per-currency, per-script-version miner fee the
// service expects to pay to claim a reverse swap's onchain HTLC, as used
// in the received-amount formula (spec §4.5).
type ClaimMinerFee map[string]uint64

// CreateRequest groups the inputs the Routing-Hints Engine needs to
// produce a BOLT11 memo, a BIP21 descriptor, and a synthetic routing hint
// for a reverse swap (spec §4.5).
type CreateRequest struct {
	SendingCurrency    string
	OnchainAmount      uint64
	ClaimMinerFees     ClaimMinerFee
	DescriptionHash    []byte
	RefundAddress      string
	RefundAddressSig   []byte
	ClaimPublicKey     *btcec.PublicKey
	IsBOLT12           bool
	BOLT12PayeeKey     *btcec.PublicKey
}

// Result is everything the Routing-Hints Engine derived for one reverse
// swap creation.
type Result struct {
	Memo            string
	ReceivedAmount  uint64
	BIP21           string
	RoutingHints    []lightning.RoutingHint
}

// Engine implements the Routing-Hints Engine, C5.
type Engine struct {
	// OurNodeID is packed as the routing hint's NodeID field; it never
	// needs to correspond to a real advertised node, since the hint's
	// channel is synthetic (spec §4.5), but using our own identity keeps
	// the hint's first hop traceable in the sender's logs.
	OurNodeID [33]byte
}

// New constructs a Routing-Hints Engine.
func New(ourNodeID [33]byte) *Engine {
	return &Engine{OurNodeID: ourNodeID}
}

// Create derives the memo/description, received amount, BIP21 descriptor,
// and routing hint for a reverse swap (spec §4.5).
func (e *Engine) Create(req CreateRequest) (*Result, error) {
	if len(req.DescriptionHash) > 0 && len(req.DescriptionHash) != 32 {
		return nil, ErrBadDescriptionHash
	}

	feeKey := req.SendingCurrency
	claimFee := req.ClaimMinerFees[feeKey]
	if req.OnchainAmount < claimFee {
		return nil, fmt.Errorf("onchain amount %d below claim miner fee %d",
			req.OnchainAmount, claimFee)
	}
	receivedAmount := req.OnchainAmount - claimFee

	result := &Result{
		ReceivedAmount: receivedAmount,
	}

	if req.IsBOLT12 {
		// No routing hint for BOLT12 (spec §4.5); instead the refund
		// address signature is checked against the decoded invoice's
		// payee key.
		if req.RefundAddress != "" {
			if req.BOLT12PayeeKey == nil {
				return nil, ErrInvalidAddressSignature
			}
			if err := verifyAddressSignature(
				req.RefundAddress, req.RefundAddressSig, req.BOLT12PayeeKey,
			); err != nil {
				return nil, ErrInvalidAddressSignature
			}
			result.BIP21 = buildBIP21(req.RefundAddress, receivedAmount)
		}
		return result, nil
	}

	result.RoutingHints = []lightning.RoutingHint{{
		NodeID:                    e.OurNodeID,
		ShortChannelID:            WellKnownShortChannelID(),
		FeeBaseMSat:               0,
		FeeProportionalMillionths: 21,
		CLTVExpiryDelta:           81,
	}}

	if req.RefundAddress != "" && req.ClaimPublicKey != nil {
		if err := verifyAddressSignature(
			req.RefundAddress, req.RefundAddressSig, req.ClaimPublicKey,
		); err != nil {
			return nil, ErrInvalidAddressSignature
		}
		result.BIP21 = buildBIP21(req.RefundAddress, receivedAmount)
	}

	return result, nil
}

// verifyAddressSignature checks a Schnorr signature over
// SHA256("utf-8 bytes of address") against the claim/payee public key
// (spec §4.5).
func verifyAddressSignature(address string, sig []byte, pubKey *btcec.PublicKey) error {
	if len(sig) == 0 {
		return ErrInvalidAddressSignature
	}

	digest := sha256.Sum256([]byte(address))

	parsedSig, err := schnorr.ParseSignature(sig)
	if err != nil {
		return ErrInvalidAddressSignature
	}

	if !parsedSig.Verify(digest[:], pubKey) {
		return ErrInvalidAddressSignature
	}
	return nil
}

// buildBIP21 constructs a `bitcoin:<address>?amount=<btc>` URI (spec
// glossary: BIP21).
func buildBIP21(address string, amountSat uint64) string {
	amountBTC := btcutil.Amount(amountSat).ToBTC()
	return fmt.Sprintf("bitcoin:%s?amount=%.8f", address, amountBTC)
}
