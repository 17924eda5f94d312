package swapdb

import (
	"encoding/hex"
	"encoding/json"
	"time"
)

type chainSwapRecord struct {
	ID                  string
	Pair                string
	OrderSide           OrderSide
	ReferralID          string
	UserAmount          uint64
	ServerAmount        uint64
	PreimageHash        string
	Preimage            string
	ClaimPublicKey      string
	RefundPublicKey     string
	UserLockupAddress   string
	ServerLockupAddress string
	UserLockupTxID      string
	ServerLockupTxID    string
	TimeoutBlockHeight  uint32
	Status              SwapStatus
	CreatedAt           time.Time
}

func encodeChainSwap(s *ChainSwap) ([]byte, error) {
	r := chainSwapRecord{
		ID:                  s.ID,
		Pair:                s.Pair,
		OrderSide:           s.OrderSide,
		ReferralID:          s.ReferralID,
		UserAmount:          s.UserAmount,
		ServerAmount:        s.ServerAmount,
		PreimageHash:        hex.EncodeToString(s.PreimageHash[:]),
		Preimage:            hex.EncodeToString(s.Preimage),
		UserLockupAddress:   s.UserLockupAddress,
		ServerLockupAddress: s.ServerLockupAddress,
		UserLockupTxID:      s.UserLockupTxID,
		ServerLockupTxID:    s.ServerLockupTxID,
		TimeoutBlockHeight:  s.TimeoutBlockHeight,
		Status:              s.Status,
		CreatedAt:           s.CreatedAt,
	}
	if s.ClaimPublicKey != nil {
		r.ClaimPublicKey = hex.EncodeToString(s.ClaimPublicKey.SerializeCompressed())
	}
	if s.RefundPublicKey != nil {
		r.RefundPublicKey = hex.EncodeToString(s.RefundPublicKey.SerializeCompressed())
	}
	return json.Marshal(r)
}

func decodeChainSwap(data []byte) (*ChainSwap, error) {
	var r chainSwapRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}

	s := &ChainSwap{
		ID:                  r.ID,
		Pair:                r.Pair,
		OrderSide:           r.OrderSide,
		ReferralID:          r.ReferralID,
		UserAmount:          r.UserAmount,
		ServerAmount:        r.ServerAmount,
		UserLockupAddress:   r.UserLockupAddress,
		ServerLockupAddress: r.ServerLockupAddress,
		UserLockupTxID:      r.UserLockupTxID,
		ServerLockupTxID:    r.ServerLockupTxID,
		TimeoutBlockHeight:  r.TimeoutBlockHeight,
		Status:              r.Status,
		CreatedAt:           r.CreatedAt,
	}
	if err := decodeHash32(r.PreimageHash, &s.PreimageHash); err != nil {
		return nil, err
	}
	if r.Preimage != "" {
		preimage, err := hex.DecodeString(r.Preimage)
		if err != nil {
			return nil, err
		}
		s.Preimage = preimage
	}
	if r.ClaimPublicKey != "" {
		pub, err := decodePubKey(r.ClaimPublicKey)
		if err != nil {
			return nil, err
		}
		s.ClaimPublicKey = pub
	}
	if r.RefundPublicKey != "" {
		pub, err := decodePubKey(r.RefundPublicKey)
		if err != nil {
			return nil, err
		}
		s.RefundPublicKey = pub
	}
	return s, nil
}

func encodeChannelCreation(c *ChannelCreation) ([]byte, error) {
	return json.Marshal(c)
}

func decodeChannelCreation(data []byte) (*ChannelCreation, error) {
	var c ChannelCreation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func encodePair(p *Pair) ([]byte, error) {
	return json.Marshal(p)
}

func decodePair(data []byte) (*Pair, error) {
	var p Pair
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

type watchedOutputRecord struct {
	SwapID string
	Script string
}

func encodeWatchedOutput(w *WatchedOutput) ([]byte, error) {
	return json.Marshal(watchedOutputRecord{
		SwapID: w.SwapID,
		Script: hex.EncodeToString(w.Script),
	})
}

func decodeWatchedOutput(data []byte) (*WatchedOutput, error) {
	var r watchedOutputRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	script, err := hex.DecodeString(r.Script)
	if err != nil {
		return nil, err
	}
	return &WatchedOutput{SwapID: r.SwapID, Script: script}, nil
}
