package swapdb

import (
	"fmt"

	"github.com/boltdb/bolt"
)

// CreateChainSwap persists a brand-new chain swap (SPEC_FULL.md supplement).
func (d *DB) CreateChainSwap(s *ChainSwap) error {
	if s.Status == "" {
		s.Status = StatusSwapCreated
	}
	return d.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(chainSwapBucket)
		if b.Get([]byte(s.ID)) != nil {
			return ErrDuplicateSwap
		}
		encoded, err := encodeChainSwap(s)
		if err != nil {
			return err
		}
		return b.Put([]byte(s.ID), encoded)
	})
}

// FetchChainSwap returns a snapshot of the chain swap with the given id.
func (d *DB) FetchChainSwap(id string) (*ChainSwap, error) {
	var s *ChainSwap
	err := d.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(chainSwapBucket).Get([]byte(id))
		if v == nil {
			return ErrChainSwapNotFound
		}
		decoded, err := decodeChainSwap(v)
		if err != nil {
			return err
		}
		s = decoded
		return nil
	})
	return s, err
}

// SetChainSwapStatus checks the transition against chainSwapPredecessors.
func (d *DB) SetChainSwapStatus(id string, status SwapStatus) error {
	lock := d.swapLock(id)
	lock.Lock()
	defer lock.Unlock()

	return d.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(chainSwapBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return ErrChainSwapNotFound
		}
		s, err := decodeChainSwap(v)
		if err != nil {
			return err
		}

		if !isAllowed(chainSwapPredecessors, s.Status, status) {
			return fmt.Errorf(
				"%w: chain swap %s status %s -> %s",
				ErrIllegalTransition, id, s.Status, status,
			)
		}

		s.Status = status
		encoded, err := encodeChainSwap(s)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), encoded)
	})
}

// SetChainSwapUserLockup records the user's side of the two-HTLC pair.
func (d *DB) SetChainSwapUserLockup(id, txid string) error {
	lock := d.swapLock(id)
	lock.Lock()
	defer lock.Unlock()

	return d.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(chainSwapBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return ErrChainSwapNotFound
		}
		s, err := decodeChainSwap(v)
		if err != nil {
			return err
		}
		s.UserLockupTxID = txid
		encoded, err := encodeChainSwap(s)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), encoded)
	})
}

// SetChainSwapPreimage records the preimage revealed by the user's claim of
// the service-funded leg, which the service then uses to claim the
// user-funded leg in turn (SPEC_FULL.md ChainSwap supplement).
func (d *DB) SetChainSwapPreimage(id string, preimage []byte) error {
	lock := d.swapLock(id)
	lock.Lock()
	defer lock.Unlock()

	return d.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(chainSwapBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return ErrChainSwapNotFound
		}
		s, err := decodeChainSwap(v)
		if err != nil {
			return err
		}
		s.Preimage = preimage
		encoded, err := encodeChainSwap(s)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), encoded)
	})
}

// SetChainSwapServerLockup records the service's side of the two-HTLC pair.
func (d *DB) SetChainSwapServerLockup(id, txid string) error {
	lock := d.swapLock(id)
	lock.Lock()
	defer lock.Unlock()

	return d.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(chainSwapBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return ErrChainSwapNotFound
		}
		s, err := decodeChainSwap(v)
		if err != nil {
			return err
		}
		s.ServerLockupTxID = txid
		encoded, err := encodeChainSwap(s)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), encoded)
	})
}
