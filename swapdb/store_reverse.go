package swapdb

import (
	"fmt"

	"github.com/boltdb/bolt"
)

// CreateReverseSwap persists a brand-new reverse swap.
func (d *DB) CreateReverseSwap(s *ReverseSwap) error {
	if s.Status == "" {
		s.Status = StatusSwapCreated
	}
	return d.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(reverseSwapBucket)
		if b.Get([]byte(s.ID)) != nil {
			return ErrDuplicateSwap
		}
		encoded, err := encodeReverseSwap(s)
		if err != nil {
			return err
		}
		return b.Put([]byte(s.ID), encoded)
	})
}

// FetchReverseSwap returns a snapshot of the reverse swap with the given id.
func (d *DB) FetchReverseSwap(id string) (*ReverseSwap, error) {
	var s *ReverseSwap
	err := d.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(reverseSwapBucket).Get([]byte(id))
		if v == nil {
			return ErrReverseSwapNotFound
		}
		decoded, err := decodeReverseSwap(v)
		if err != nil {
			return err
		}
		s = decoded
		return nil
	})
	return s, err
}

// ReverseSwapsByStatus mirrors SwapsByStatus for reverse swaps.
func (d *DB) ReverseSwapsByStatus(status SwapStatus) ([]*ReverseSwap, error) {
	var out []*ReverseSwap
	err := d.View(func(tx *bolt.Tx) error {
		return tx.Bucket(reverseSwapBucket).ForEach(func(_, v []byte) error {
			s, err := decodeReverseSwap(v)
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

// SetReverseSwapStatus is the reverse-swap analogue of SetSwapStatus,
// checked against the §4.7 diagram.
func (d *DB) SetReverseSwapStatus(id string, status SwapStatus) error {
	lock := d.swapLock(id)
	lock.Lock()
	defer lock.Unlock()

	return d.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(reverseSwapBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return ErrReverseSwapNotFound
		}
		s, err := decodeReverseSwap(v)
		if err != nil {
			return err
		}

		if !isAllowed(reversePredecessors, s.Status, status) {
			return fmt.Errorf(
				"%w: reverse swap %s status %s -> %s",
				ErrIllegalTransition, id, s.Status, status,
			)
		}

		s.Status = status
		encoded, err := encodeReverseSwap(s)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), encoded)
	})
}

// SetReverseSwapLockup records the onchain lockup broadcast by the service.
func (d *DB) SetReverseSwapLockup(id, txid string) error {
	lock := d.swapLock(id)
	lock.Lock()
	defer lock.Unlock()

	return d.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(reverseSwapBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return ErrReverseSwapNotFound
		}
		s, err := decodeReverseSwap(v)
		if err != nil {
			return err
		}
		s.LockupTxID = txid
		encoded, err := encodeReverseSwap(s)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), encoded)
	})
}

// SetReverseSwapPreimage records the preimage observed on-chain or
// committed during a cooperative claim (§4.7).
func (d *DB) SetReverseSwapPreimage(id string, preimage []byte) error {
	lock := d.swapLock(id)
	lock.Lock()
	defer lock.Unlock()

	return d.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(reverseSwapBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return ErrReverseSwapNotFound
		}
		s, err := decodeReverseSwap(v)
		if err != nil {
			return err
		}
		s.Preimage = preimage
		encoded, err := encodeReverseSwap(s)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), encoded)
	})
}
