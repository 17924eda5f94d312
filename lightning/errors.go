package lightning

import (
	"errors"
	"strings"
)

var (
	// ErrInvoiceAlreadyPaid signals the payee has already settled this
	// payment hash; the Channel Nursery treats it as settlement success
	// (spec §4.8, "Settlement idempotency").
	ErrInvoiceAlreadyPaid = errors.New("invoice is already paid")

	// ErrNoRoute / ErrInvoiceExpired / ErrPaymentTerminal are the
	// terminal PayInvoice failures that move a submarine swap to
	// InvoiceFailedToPay (spec §4.6 "Failure semantics").
	ErrNoRoute        = errors.New("no route to destination")
	ErrInvoiceExpired = errors.New("invoice has expired")
	ErrPaymentTerminal = errors.New("payment terminally failed")
)

// OpenChannelErrorClass classifies an OpenChannel error string per the
// rules in spec §4.8 step 4, so the Channel Nursery knows whether to retry
// on a linear backoff, reconnect the peer first, or abandon the attempt.
type OpenChannelErrorClass int

const (
	// ClassRetryLinear covers transient "not ready yet" conditions:
	// retry on a linear backoff without treating the attempt as failed.
	ClassRetryLinear OpenChannelErrorClass = iota

	// ClassPeerOffline means the target peer must be reconnected before
	// a single retry.
	ClassPeerOffline

	// ClassTerminal means the error can never succeed by retrying; the
	// caller should mark the ChannelCreation Abandoned.
	ClassTerminal
)

// ClassifyOpenChannelError implements the §4.8 step 4 error-string
// classification the Channel Nursery needs to decide its retry strategy.
func ClassifyOpenChannelError(err error) OpenChannelErrorClass {
	if err == nil {
		return ClassTerminal
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "wallet is fully synced"),
		strings.Contains(msg, "Synchronizing blockchain"):
		return ClassRetryLinear

	case strings.Contains(msg, "is not online"):
		return ClassPeerOffline

	default:
		return ClassTerminal
	}
}

// IsNoWalletSupport detects the "NO_WALLET_SUPPORT" condition via the
// error-string match the spec calls out (§9, Open Questions) as a known
// rough edge: implementers should replace this with a dedicated capability
// probe on the wallet-provider interface instead of string sniffing.
func IsNoWalletSupport(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Method not found")
}
