package swapdb

import (
	"fmt"

	"github.com/boltdb/bolt"
)

// SetChannelCreation creates or overwrites the ChannelCreation row for a
// submarine swap (§4.3, §4.8). Creation (empty current status) always
// succeeds as Attempted.
func (d *DB) SetChannelCreation(c *ChannelCreation) error {
	if c.Status == "" {
		c.Status = ChannelAttempted
	}
	return d.Update(func(tx *bolt.Tx) error {
		encoded, err := encodeChannelCreation(c)
		if err != nil {
			return err
		}
		return tx.Bucket(channelCreationBucket).Put([]byte(c.SwapID), encoded)
	})
}

// FetchChannelCreation returns the ChannelCreation row for a swap id.
func (d *DB) FetchChannelCreation(swapID string) (*ChannelCreation, error) {
	var c *ChannelCreation
	err := d.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(channelCreationBucket).Get([]byte(swapID))
		if v == nil {
			return ErrChannelCreationNotFound
		}
		decoded, err := decodeChannelCreation(v)
		if err != nil {
			return err
		}
		c = decoded
		return nil
	})
	return c, err
}

// ChannelCreationsByStatus supports the nursery's restart sweeps (§4.8):
// retryOpeningChannels (Attempted) and settleCreatedChannels (Created).
func (d *DB) ChannelCreationsByStatus(status ChannelCreationStatus) ([]*ChannelCreation, error) {
	var out []*ChannelCreation
	err := d.View(func(tx *bolt.Tx) error {
		return tx.Bucket(channelCreationBucket).ForEach(func(_, v []byte) error {
			c, err := decodeChannelCreation(v)
			if err != nil {
				return err
			}
			if c.Status == status {
				out = append(out, c)
			}
			return nil
		})
	})
	return out, err
}

// ChannelCreationByFunding resolves a channel.active event's funding
// outpoint back to the swap id that opened it (§4.8 step 3), scanning the
// same way ChannelCreationsByStatus does since funding outpoints aren't
// separately indexed.
func (d *DB) ChannelCreationByFunding(txid string, vout uint32) (*ChannelCreation, error) {
	var found *ChannelCreation
	err := d.View(func(tx *bolt.Tx) error {
		return tx.Bucket(channelCreationBucket).ForEach(func(_, v []byte) error {
			c, err := decodeChannelCreation(v)
			if err != nil {
				return err
			}
			if c.FundingTxID == txid && c.FundingTxVout == vout {
				found = c
			}
			return nil
		})
	})
	if err == nil && found == nil {
		return nil, ErrChannelCreationNotFound
	}
	return found, err
}

// SetChannelCreationStatus performs the predecessor-checked transition for
// the nursery sub-state machine.
func (d *DB) SetChannelCreationStatus(swapID string, status ChannelCreationStatus) error {
	lock := d.swapLock(swapID)
	lock.Lock()
	defer lock.Unlock()

	return d.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(channelCreationBucket)
		v := b.Get([]byte(swapID))
		if v == nil {
			return ErrChannelCreationNotFound
		}
		c, err := decodeChannelCreation(v)
		if err != nil {
			return err
		}

		if !isChannelCreationAllowed(c.Status, status) {
			return fmt.Errorf(
				"%w: channel creation %s status %s -> %s",
				ErrIllegalTransition, swapID, c.Status, status,
			)
		}

		c.Status = status
		encoded, err := encodeChannelCreation(c)
		if err != nil {
			return err
		}
		return b.Put([]byte(swapID), encoded)
	})
}

// SetChannelCreationFunding records the funding outpoint once openChannel
// broadcasts it (§4.8 step 2).
func (d *DB) SetChannelCreationFunding(swapID, txid string, vout uint32) error {
	lock := d.swapLock(swapID)
	lock.Lock()
	defer lock.Unlock()

	return d.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(channelCreationBucket)
		v := b.Get([]byte(swapID))
		if v == nil {
			return ErrChannelCreationNotFound
		}
		c, err := decodeChannelCreation(v)
		if err != nil {
			return err
		}
		c.FundingTxID = txid
		c.FundingTxVout = vout
		encoded, err := encodeChannelCreation(c)
		if err != nil {
			return err
		}
		return b.Put([]byte(swapID), encoded)
	})
}

// IncrementChannelCreationRetry bumps the retry counter used by the
// nursery's exponential settlement schedule (§4.8 step 3).
func (d *DB) IncrementChannelCreationRetry(swapID string) (int, error) {
	lock := d.swapLock(swapID)
	lock.Lock()
	defer lock.Unlock()

	var newCount int
	err := d.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(channelCreationBucket)
		v := b.Get([]byte(swapID))
		if v == nil {
			return ErrChannelCreationNotFound
		}
		c, err := decodeChannelCreation(v)
		if err != nil {
			return err
		}
		c.RetryCount++
		newCount = c.RetryCount
		encoded, err := encodeChannelCreation(c)
		if err != nil {
			return err
		}
		return b.Put([]byte(swapID), encoded)
	})
	return newCount, err
}

// CreatePair upserts a market's fee policy/limits.
func (d *DB) CreatePair(p *Pair) error {
	return d.Update(func(tx *bolt.Tx) error {
		encoded, err := encodePair(p)
		if err != nil {
			return err
		}
		return tx.Bucket(pairBucket).Put([]byte(pairKey(p.Base, p.Quote)), encoded)
	})
}

// FetchPair returns the fee policy/limits for a (base, quote) market.
func (d *DB) FetchPair(base, quote string) (*Pair, error) {
	var p *Pair
	err := d.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(pairBucket).Get([]byte(pairKey(base, quote)))
		if v == nil {
			return ErrPairNotFound
		}
		decoded, err := decodePair(v)
		if err != nil {
			return err
		}
		p = decoded
		return nil
	})
	return p, err
}

func pairKey(base, quote string) string {
	return base + "/" + quote
}
