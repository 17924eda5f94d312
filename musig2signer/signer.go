package musig2signer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr/musig2"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/swapd/lightning"
	"github.com/lightninglabs/swapd/swapdb"
)

// ErrNotEligibleForRefund is returned when signSwapRefund's policy gate
// (spec §4.4) is not satisfied.
var ErrNotEligibleForRefund = errors.New("NOT_ELIGIBLE_FOR_REFUND")

// ErrPreimageMismatch is returned when signReverseSwapClaim's preimage does
// not hash to the reverse swap's stored preimage hash.
var ErrPreimageMismatch = errors.New("preimage does not match swap hash")

// ErrInvoiceNotHeld is returned when a reverse swap claim is attempted
// before the invoice reached the accepted (held) state.
var ErrInvoiceNotHeld = errors.New("reverse swap invoice is not held")

// ErrNotEligibleForClaim is returned when signSwapClaim is attempted
// outside the submarine swap's claim window (spec §4.6 "Claim path").
var ErrNotEligibleForClaim = errors.New("NOT_ELIGIBLE_FOR_CLAIM")

// PendingPaymentTracker answers whether the service currently has an
// outgoing Lightning HTLC in flight for a payment hash, used by the
// refund eligibility gate (spec §4.4).
type PendingPaymentTracker interface {
	HasPendingPayment(preimageHash [32]byte) bool
}

// Signer implements the Musig2 Signer component, C4. It is intentionally
// stateless per call: nonces are generated fresh for every session (spec
// §4.4), nothing about an in-progress session is persisted.
type Signer struct {
	store    *swapdb.DB
	invoices lightning.Client
	pending  PendingPaymentTracker
}

// New constructs a Signer.
func New(store *swapdb.DB, invoices lightning.Client, pending PendingPaymentTracker) *Signer {
	return &Signer{store: store, invoices: invoices, pending: pending}
}

// refundEligibleStatuses are the submarine swap statuses from which a
// cooperative refund is always allowed (spec §4.4).
var refundEligibleStatuses = map[swapdb.SwapStatus]bool{
	swapdb.StatusSwapExpired:           true,
	swapdb.StatusInvoiceFailedToPay:    true,
	swapdb.StatusTransactionLockupFail: true,
}

// isRefundEligible implements the §4.4 refund policy gate as a pure
// predicate: either the swap is already in a terminal failure status, or
// the invoice was never paid and the service has no outgoing HTLC still in
// flight for its hash.
func isRefundEligible(status swapdb.SwapStatus, preimageUnset, noPendingPayment bool) bool {
	if refundEligibleStatuses[status] {
		return true
	}
	return preimageUnset && noPendingPayment
}

// SignSwapRefund produces the service's partial signature for a
// cooperative refund of an expired or failed submarine swap (spec §4.4).
//
// Eligibility: the swap's status must be one of {SwapExpired,
// InvoiceFailedToPay, TransactionLockupFailed}, OR the invoice must be
// unpaid with no pending outgoing HTLC for its hash. Any other state fails
// with ErrNotEligibleForRefund.
func (s *Signer) SignSwapRefund(swapID string, clientPubNonce [66]byte, tx *wire.MsgTx, inputIndex int) (servicePubNonce [66]byte, partialSig []byte, err error) {
	swap, err := s.store.FetchSwap(swapID)
	if err != nil {
		return servicePubNonce, nil, err
	}

	eligible := isRefundEligible(
		swap.Status, len(swap.Preimage) == 0,
		!s.pending.HasPendingPayment(swap.PreimageHash),
	)
	if !eligible {
		return servicePubNonce, nil, fmt.Errorf(
			"%w: swap %s in status %s", ErrNotEligibleForRefund,
			swapID, swap.Status,
		)
	}

	return s.signCooperative(swap.ClaimPrivateKey, clientPubNonce, tx, inputIndex)
}

// SignSwapClaim produces the service's partial signature for a
// cooperative key-path claim of a submarine swap's lockup, racing the
// Timeout Watcher's script-fallback claim (spec §4.6 "Claim path").
// Eligibility: the swap must be in TransactionClaimPend, i.e. its invoice
// has already been paid and the claim window is open.
func (s *Signer) SignSwapClaim(swapID string, clientPubNonce [66]byte, tx *wire.MsgTx, inputIndex int) (servicePubNonce [66]byte, partialSig []byte, err error) {
	swap, err := s.store.FetchSwap(swapID)
	if err != nil {
		return servicePubNonce, nil, err
	}

	if swap.Status != swapdb.StatusTransactionClaimPend {
		return servicePubNonce, nil, fmt.Errorf(
			"%w: swap %s in status %s", ErrNotEligibleForClaim,
			swapID, swap.Status,
		)
	}

	return s.signCooperative(swap.ClaimPrivateKey, clientPubNonce, tx, inputIndex)
}

// SignReverseSwapClaim produces the service's partial signature for a
// cooperative onchain claim of a reverse swap, releasing the preimage to
// settle the held invoice as an atomic post-condition of the signature
// being handed back (spec §4.4).
func (s *Signer) SignReverseSwapClaim(ctx context.Context, swapID string, preimage []byte, clientPubNonce [66]byte, tx *wire.MsgTx, inputIndex int) ([]byte, error) {
	swap, err := s.store.FetchReverseSwap(swapID)
	if err != nil {
		return nil, err
	}

	hash := sha256.Sum256(preimage)
	if !bytes.Equal(hash[:], swap.PreimageHash[:]) {
		return nil, ErrPreimageMismatch
	}

	if swap.Status != swapdb.StatusTransactionMempool &&
		swap.Status != swapdb.StatusTransactionConfirmed {

		return nil, fmt.Errorf("%w: reverse swap %s in status %s",
			ErrInvoiceNotHeld, swapID, swap.Status)
	}

	_, partialSig, err := s.signCooperative(
		swap.RefundPrivateKey, clientPubNonce, tx, inputIndex,
	)
	if err != nil {
		return nil, err
	}

	// The Musig2 message commits to the claim transaction's sighash,
	// which spends using `preimage`; releasing this signature is only
	// safe once we've durably recorded the preimage, so the hold
	// invoice settlement below can never race ahead of it.
	if err := s.store.SetReverseSwapPreimage(swapID, preimage); err != nil {
		return nil, err
	}
	if err := s.invoices.SettleHoldInvoice(ctx, preimage); err != nil {
		return nil, fmt.Errorf("unable to settle hold invoice after releasing partial sig: %w", err)
	}

	return partialSig, nil
}

// signCooperative runs a single-round Musig2 session: aggregate the two
// public nonces, commit to the transaction's sighash, and return our half
// of the signature. Session state never outlives this call.
func (s *Signer) signCooperative(servicePriv *btcec.PrivateKey, clientPubNonce [66]byte, tx *wire.MsgTx, inputIndex int) (servicePubNonce [66]byte, partialSig []byte, err error) {
	if servicePriv == nil {
		return servicePubNonce, nil, errors.New("swap has no service-owned key material")
	}

	nonces, err := musig2.GenNonces()
	if err != nil {
		return servicePubNonce, nil, err
	}

	sigHash, err := computeTaprootSigHash(tx, inputIndex)
	if err != nil {
		return servicePubNonce, nil, err
	}

	session, err := musig2.NewSession(
		servicePriv, nonces,
		[][]byte{clientPubNonce[:]},
	)
	if err != nil {
		return servicePubNonce, nil, err
	}

	sig, err := session.Sign(sigHash)
	if err != nil {
		return servicePubNonce, nil, err
	}

	copy(servicePubNonce[:], nonces.PubNonce[:])
	return servicePubNonce, sig.Serialize(), nil
}
