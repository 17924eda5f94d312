// Package nursery implements the Channel Nursery, C8: for submarine swaps
// that requested "open channel on payment", it connects to the requesting
// peer, opens a channel sized off the invoice amount, and settles the
// user's invoice through that channel once it's active.
package nursery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lightninglabs/swapd/lightning"
	"github.com/lightninglabs/swapd/swapdb"
	"golang.org/x/sync/singleflight"
)

// maxSettleAttempts bounds the exponential settlement retry schedule (spec
// §4.8 step 3): 1x, 2x, 4x base-retry, four attempts total.
const maxSettleAttempts = 4

// ErrAbandoned is returned when the nursery gives up on a ChannelCreation
// after a terminal openChannel error (spec §4.8 step 4).
var ErrAbandoned = errors.New("channel creation abandoned")

// Config groups the nursery's dependencies.
type Config struct {
	Store    *swapdb.DB
	Lightning lightning.Client

	// LocalFundingFeeBuffer pads the invoice amount when sizing the
	// channel the nursery opens (spec §4.8 step 2).
	LocalFundingFeeBuffer uint64
	SatPerVByte           uint64

	// BaseRetry is the unit the exponential settlement schedule scales
	// (spec §4.8 step 3).
	BaseRetry time.Duration
}

// Manager drives the Channel Nursery sub-state machine.
type Manager struct {
	cfg Config

	// settleGroup collapses concurrent invoice-settlement attempts for
	// the same swap into one in-flight call, keyed "channelSettle:<id>"
	// (spec §4.8 step 3).
	settleGroup singleflight.Group
}

// NewManager constructs a Manager.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// AttemptOpen runs step 1-2 of §4.8: connect to the peer if needed, then
// open a channel sized off the swap's invoice amount.
func (m *Manager) AttemptOpen(ctx context.Context, swapID string, addrHints []string) error {
	cc, err := m.cfg.Store.FetchChannelCreation(swapID)
	if err != nil {
		return err
	}
	s, err := m.cfg.Store.FetchSwap(swapID)
	if err != nil {
		return err
	}

	localFunding := s.OnchainAmountExp + m.cfg.LocalFundingFeeBuffer

	txid, vout, err := m.cfg.Lightning.OpenChannel(ctx, lightning.OpenChannelRequest{
		PubKey:          cc.NodePublicKey,
		LocalFundingSat: localFunding,
		Private:         cc.Private,
		SatPerVByte:     m.cfg.SatPerVByte,
	})
	if err != nil {
		return m.handleOpenChannelError(ctx, swapID, cc.NodePublicKey, addrHints, err)
	}

	if err := m.cfg.Store.SetChannelCreationFunding(swapID, txid, vout); err != nil {
		return err
	}
	return m.cfg.Store.SetChannelCreationStatus(swapID, swapdb.ChannelAttempted)
}

// handleOpenChannelError implements §4.8 step 4's error classification.
func (m *Manager) handleOpenChannelError(ctx context.Context, swapID, pubkey string, addrHints []string, openErr error) error {
	switch lightning.ClassifyOpenChannelError(openErr) {
	case lightning.ClassRetryLinear:
		log.Debugf("channel creation %s: retryable error %v", swapID, openErr)
		return nil

	case lightning.ClassPeerOffline:
		if err := m.cfg.Lightning.ConnectPeer(ctx, pubkey, addrHints); err != nil {
			return fmt.Errorf("unable to reconnect peer %s: %w", pubkey, err)
		}
		return nil

	default:
		if err := m.cfg.Store.SetChannelCreationStatus(swapID, swapdb.ChannelAbandoned); err != nil {
			return err
		}
		return fmt.Errorf("%w: swap %s: %v", ErrAbandoned, swapID, openErr)
	}
}

// HandleChannelActive runs step 3 of §4.8: once the funding outpoint is
// seen active, mark the ChannelCreation Created and attempt to settle the
// swap's invoice over the new channel.
func (m *Manager) HandleChannelActive(ctx context.Context, swapID string) error {
	if err := m.cfg.Store.SetChannelCreationStatus(swapID, swapdb.ChannelCreated); err != nil &&
		!errors.Is(err, swapdb.ErrIllegalTransition) {
		return err
	}
	return m.settleInvoice(ctx, swapID)
}

// settleInvoice attempts to pay the swap's invoice over the just-opened
// channel, single-flighted per swap-id and retried on an exponential
// schedule up to maxSettleAttempts (spec §4.8 step 3).
func (m *Manager) settleInvoice(ctx context.Context, swapID string) error {
	key := "channelSettle:" + swapID

	_, err, _ := m.settleGroup.Do(key, func() (interface{}, error) {
		s, err := m.cfg.Store.FetchSwap(swapID)
		if err != nil {
			return nil, err
		}

		_, payErr := m.cfg.Lightning.PayInvoice(ctx, lightning.PayInvoiceRequest{
			Invoice: s.Invoice,
		})
		if payErr == nil || errors.Is(payErr, lightning.ErrInvoiceAlreadyPaid) {
			// Settlement idempotency (spec §4.8): already-paid counts
			// as success.
			return nil, m.cfg.Store.SetChannelCreationStatus(swapID, swapdb.ChannelSettled)
		}

		attempt, incErr := m.cfg.Store.IncrementChannelCreationRetry(swapID)
		if incErr != nil {
			return nil, incErr
		}
		if attempt >= maxSettleAttempts {
			return nil, m.cfg.Store.SetChannelCreationStatus(swapID, swapdb.ChannelAbandoned)
		}

		delay := settleRetryDelay(m.cfg.BaseRetry, attempt)
		log.Debugf("channel settle for swap %s failed (%v), retrying in %v",
			swapID, payErr, delay)
		return nil, payErr
	})
	return err
}

// settleRetryDelay implements the 1x/2x/4x exponential schedule off
// base-retry (spec §4.8 step 3); attempt is 1-indexed.
func settleRetryDelay(base time.Duration, attempt int) time.Duration {
	switch attempt {
	case 1:
		return base
	case 2:
		return base * 2
	default:
		return base * 4
	}
}

// Abandon marks a ChannelCreation Abandoned when its swap expires or the
// invoice was settled by another route (spec §4.8 step 5).
func (m *Manager) Abandon(swapID string) error {
	return m.cfg.Store.SetChannelCreationStatus(swapID, swapdb.ChannelAbandoned)
}

// RetryOpeningChannels is the restart sweep for ChannelCreations still
// Attempted whose swap is InvoicePending (spec §4.8, "On node restart").
func (m *Manager) RetryOpeningChannels(ctx context.Context, addrHints []string) error {
	attempted, err := m.cfg.Store.ChannelCreationsByStatus(swapdb.ChannelAttempted)
	if err != nil {
		return err
	}
	for _, cc := range attempted {
		if err := m.AttemptOpen(ctx, cc.SwapID, addrHints); err != nil {
			log.Warnf("retryOpeningChannels: swap %s: %v", cc.SwapID, err)
		}
	}
	return nil
}

// SettleCreatedChannels is the restart sweep for ChannelCreations Created
// whose swap hasn't reached TransactionClaimed (spec §4.8, "On node
// restart").
func (m *Manager) SettleCreatedChannels(ctx context.Context) error {
	created, err := m.cfg.Store.ChannelCreationsByStatus(swapdb.ChannelCreated)
	if err != nil {
		return err
	}
	for _, cc := range created {
		s, err := m.cfg.Store.FetchSwap(cc.SwapID)
		if err != nil {
			return err
		}
		if s.Status == swapdb.StatusTransactionClaimed {
			continue
		}
		if err := m.settleInvoice(ctx, cc.SwapID); err != nil {
			log.Warnf("settleCreatedChannels: swap %s: %v", cc.SwapID, err)
		}
	}
	return nil
}
