package swapdb

import (
	"fmt"

	"github.com/boltdb/bolt"
)

// CreateSwap persists a brand-new submarine swap. Fails with
// ErrDuplicateSwap if the id is already in use.
func (d *DB) CreateSwap(s *Swap) error {
	if s.Status == "" {
		s.Status = StatusSwapCreated
	}

	return d.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(swapBucket)
		if b.Get([]byte(s.ID)) != nil {
			return ErrDuplicateSwap
		}
		encoded, err := encodeSwap(s)
		if err != nil {
			return err
		}
		return b.Put([]byte(s.ID), encoded)
	})
}

// FetchSwap returns a snapshot of the swap with the given id.
func (d *DB) FetchSwap(id string) (*Swap, error) {
	var s *Swap
	err := d.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(swapBucket).Get([]byte(id))
		if v == nil {
			return ErrSwapNotFound
		}
		decoded, err := decodeSwap(v)
		if err != nil {
			return err
		}
		s = decoded
		return nil
	})
	return s, err
}

// SwapsByStatus returns every submarine swap currently in the given
// status.
func (d *DB) SwapsByStatus(status SwapStatus) ([]*Swap, error) {
	var out []*Swap
	err := d.View(func(tx *bolt.Tx) error {
		return tx.Bucket(swapBucket).ForEach(func(_, v []byte) error {
			s, err := decodeSwap(v)
			if err != nil {
				return err
			}
			if s.Status == status {
				out = append(out, s)
			}
			return nil
		})
	})
	return out, err
}

// SetSwapStatus performs the optimistic, predecessor-checked status
// transition described in spec §4.3. A rejected transition leaves the
// record completely unchanged and returns ErrIllegalTransition; per §7
// this is an invariant violation and callers MUST alert, not retry.
func (d *DB) SetSwapStatus(id string, status SwapStatus) error {
	lock := d.swapLock(id)
	lock.Lock()
	defer lock.Unlock()

	return d.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(swapBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return ErrSwapNotFound
		}
		s, err := decodeSwap(v)
		if err != nil {
			return err
		}

		if !isAllowed(submarinePredecessors, s.Status, status) {
			return fmt.Errorf(
				"%w: swap %s status %s -> %s",
				ErrIllegalTransition, id, s.Status, status,
			)
		}

		s.Status = status
		encoded, err := encodeSwap(s)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), encoded)
	})
}

// SetSwapLockup records the observed lockup transaction (§4.1, §4.6).
func (d *DB) SetSwapLockup(id, txid string, vout uint32, amount uint64, acceptZeroConf bool) error {
	lock := d.swapLock(id)
	lock.Lock()
	defer lock.Unlock()

	return d.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(swapBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return ErrSwapNotFound
		}
		s, err := decodeSwap(v)
		if err != nil {
			return err
		}
		s.LockupTxID = txid
		s.LockupTxVout = vout
		s.OnchainAmountAct = amount
		s.AcceptZeroConf = acceptZeroConf
		encoded, err := encodeSwap(s)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), encoded)
	})
}

// SetSwapInvoice attaches the Lightning invoice and expected amount chosen
// at creation time.
func (d *DB) SetSwapInvoice(id, invoice string, expectedAmount uint64) error {
	lock := d.swapLock(id)
	lock.Lock()
	defer lock.Unlock()

	return d.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(swapBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return ErrSwapNotFound
		}
		s, err := decodeSwap(v)
		if err != nil {
			return err
		}
		s.Invoice = invoice
		s.OnchainAmountExp = expectedAmount
		encoded, err := encodeSwap(s)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), encoded)
	})
}

// SetSwapPreimage records the preimage revealed by a successful Lightning
// payment (submarine) so the cooperative/non-cooperative claim path can use
// it.
func (d *DB) SetSwapPreimage(id string, preimage []byte) error {
	lock := d.swapLock(id)
	lock.Lock()
	defer lock.Unlock()

	return d.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(swapBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return ErrSwapNotFound
		}
		s, err := decodeSwap(v)
		if err != nil {
			return err
		}
		s.Preimage = preimage
		encoded, err := encodeSwap(s)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), encoded)
	})
}

// SwapByWatchedOutput resolves a (txid:vout)-less script lookup back to a
// swap id; used by the Chain Listener (§4.1) to turn a matched output into
// a swap-id without reverse-scanning every swap.
func (d *DB) SwapByWatchedOutput(script []byte) (string, error) {
	var id string
	err := d.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(watchedOutputBucket).Get(script)
		if v == nil {
			return ErrWatchedOutputNotFound
		}
		w, err := decodeWatchedOutput(v)
		if err != nil {
			return err
		}
		id = w.SwapID
		return nil
	})
	return id, err
}

// WatchOutput registers script as belonging to swapID, so future chain
// events matching it can be routed back (§4.1).
func (d *DB) WatchOutput(swapID string, script []byte) error {
	return d.Update(func(tx *bolt.Tx) error {
		encoded, err := encodeWatchedOutput(&WatchedOutput{
			SwapID: swapID,
			Script: script,
		})
		if err != nil {
			return err
		}
		return tx.Bucket(watchedOutputBucket).Put(script, encoded)
	})
}
