package swapdb

// SwapAddress resolves the onchain address and amount, in satoshis, a
// refund or script-fallback claim should pay to for the given swap id,
// probing every swap kind's store in turn. It backs the wallet
// integration's refund/claim broadcaster (spec §4.4, §4.6).
func (d *DB) SwapAddress(swapID string) (string, int64, error) {
	if s, err := d.FetchSwap(swapID); err == nil {
		return s.HTLCAddress, int64(s.OnchainAmountExp), nil
	}
	if r, err := d.FetchReverseSwap(swapID); err == nil {
		return r.LockupAddress, int64(r.OnchainAmount), nil
	}
	if c, err := d.FetchChainSwap(swapID); err == nil {
		return c.UserLockupAddress, int64(c.UserAmount), nil
	}
	return "", 0, ErrSwapNotFound
}
