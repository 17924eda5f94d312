package swapdb

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
)

// The wire/on-disk records below mirror the exported entity types but use
// hex strings for key material so they round-trip through encoding/json
// cleanly. lnd's channeldb hand-rolls a tight binary TLV encoding for its
// records; swapd's records are small, low-frequency, and never touch the
// wire protocol, so plain JSON keeps the store trivial to inspect and
// migrate without pulling in a serialization library nothing else in this
// module needs.

type swapRecord struct {
	ID                 string
	Pair               string
	OrderSide          OrderSide
	ReferralID         string
	OnchainAmountExp   uint64
	OnchainAmountAct   uint64
	Invoice            string
	PreimageHash       string
	Preimage           string
	RefundPublicKey    string
	ClaimPrivateKey    string
	HTLCScript         string
	HTLCAddress        string
	TimeoutBlockHeight uint32
	LockupTxID         string
	LockupTxVout       uint32
	AcceptZeroConf     bool
	Status             SwapStatus
	CreatedAt          time.Time
	ChannelCreationID  string
}

func encodeSwap(s *Swap) ([]byte, error) {
	r := swapRecord{
		ID:                 s.ID,
		Pair:               s.Pair,
		OrderSide:          s.OrderSide,
		ReferralID:         s.ReferralID,
		OnchainAmountExp:   s.OnchainAmountExp,
		OnchainAmountAct:   s.OnchainAmountAct,
		Invoice:            s.Invoice,
		PreimageHash:       hex.EncodeToString(s.PreimageHash[:]),
		Preimage:           hex.EncodeToString(s.Preimage),
		HTLCScript:         hex.EncodeToString(s.HTLCScript),
		HTLCAddress:        s.HTLCAddress,
		TimeoutBlockHeight: s.TimeoutBlockHeight,
		LockupTxID:         s.LockupTxID,
		LockupTxVout:       s.LockupTxVout,
		AcceptZeroConf:     s.AcceptZeroConf,
		Status:             s.Status,
		CreatedAt:          s.CreatedAt,
		ChannelCreationID:  s.ChannelCreationID,
	}
	if s.RefundPublicKey != nil {
		r.RefundPublicKey = hex.EncodeToString(s.RefundPublicKey.SerializeCompressed())
	}
	if s.ClaimPrivateKey != nil {
		r.ClaimPrivateKey = hex.EncodeToString(s.ClaimPrivateKey.Serialize())
	}
	return json.Marshal(r)
}

func decodeSwap(data []byte) (*Swap, error) {
	var r swapRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}

	s := &Swap{
		ID:                 r.ID,
		Pair:               r.Pair,
		OrderSide:          r.OrderSide,
		ReferralID:         r.ReferralID,
		OnchainAmountExp:   r.OnchainAmountExp,
		OnchainAmountAct:   r.OnchainAmountAct,
		Invoice:            r.Invoice,
		HTLCAddress:        r.HTLCAddress,
		TimeoutBlockHeight: r.TimeoutBlockHeight,
		LockupTxID:         r.LockupTxID,
		LockupTxVout:       r.LockupTxVout,
		AcceptZeroConf:     r.AcceptZeroConf,
		Status:             r.Status,
		CreatedAt:          r.CreatedAt,
		ChannelCreationID:  r.ChannelCreationID,
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
	if r.HTLCScript != "" {
		script, err := hex.DecodeString(r.HTLCScript)
		if err != nil {
			return nil, err
		}
		s.HTLCScript = script
	}
	if r.RefundPublicKey != "" {
		pub, err := decodePubKey(r.RefundPublicKey)
		if err != nil {
			return nil, err
		}
		s.RefundPublicKey = pub
	}
	if r.ClaimPrivateKey != "" {
		priv, err := decodePrivKey(r.ClaimPrivateKey)
		if err != nil {
			return nil, err
		}
		s.ClaimPrivateKey = priv
		s.ClaimPublicKey = priv.PubKey()
	}

	return s, nil
}

type reverseSwapRecord struct {
	ID                 string
	Pair               string
	OrderSide          OrderSide
	ReferralID         string
	InvoiceAmount      uint64
	OnchainAmount      uint64
	Invoice            string
	PrepayInvoice      string
	PreimageHash       string
	Preimage           string
	ClaimPublicKey     string
	RefundPrivateKey   string
	HTLCScript         string
	LockupAddress      string
	TimeoutBlockHeight uint32
	LockupTxID         string
	Status             SwapStatus
	CreatedAt          time.Time
}

func encodeReverseSwap(s *ReverseSwap) ([]byte, error) {
	r := reverseSwapRecord{
		ID:                 s.ID,
		Pair:               s.Pair,
		OrderSide:          s.OrderSide,
		ReferralID:         s.ReferralID,
		InvoiceAmount:      s.InvoiceAmount,
		OnchainAmount:      s.OnchainAmount,
		Invoice:            s.Invoice,
		PrepayInvoice:      s.PrepayInvoice,
		PreimageHash:       hex.EncodeToString(s.PreimageHash[:]),
		Preimage:           hex.EncodeToString(s.Preimage),
		HTLCScript:         hex.EncodeToString(s.HTLCScript),
		LockupAddress:      s.LockupAddress,
		TimeoutBlockHeight: s.TimeoutBlockHeight,
		LockupTxID:         s.LockupTxID,
		Status:             s.Status,
		CreatedAt:          s.CreatedAt,
	}
	if s.ClaimPublicKey != nil {
		r.ClaimPublicKey = hex.EncodeToString(s.ClaimPublicKey.SerializeCompressed())
	}
	if s.RefundPrivateKey != nil {
		r.RefundPrivateKey = hex.EncodeToString(s.RefundPrivateKey.Serialize())
	}
	return json.Marshal(r)
}

func decodeReverseSwap(data []byte) (*ReverseSwap, error) {
	var r reverseSwapRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}

	s := &ReverseSwap{
		ID:                 r.ID,
		Pair:               r.Pair,
		OrderSide:          r.OrderSide,
		ReferralID:         r.ReferralID,
		InvoiceAmount:      r.InvoiceAmount,
		OnchainAmount:      r.OnchainAmount,
		Invoice:            r.Invoice,
		PrepayInvoice:      r.PrepayInvoice,
		LockupAddress:      r.LockupAddress,
		TimeoutBlockHeight: r.TimeoutBlockHeight,
		LockupTxID:         r.LockupTxID,
		Status:             r.Status,
		CreatedAt:          r.CreatedAt,
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
	if r.HTLCScript != "" {
		script, err := hex.DecodeString(r.HTLCScript)
		if err != nil {
			return nil, err
		}
		s.HTLCScript = script
	}
	if r.ClaimPublicKey != "" {
		pub, err := decodePubKey(r.ClaimPublicKey)
		if err != nil {
			return nil, err
		}
		s.ClaimPublicKey = pub
	}
	if r.RefundPrivateKey != "" {
		priv, err := decodePrivKey(r.RefundPrivateKey)
		if err != nil {
			return nil, err
		}
		s.RefundPrivateKey = priv
		s.RefundPublicKey = priv.PubKey()
	}

	return s, nil
}

func decodeHash32(s string, out *[32]byte) error {
	if s == "" {
		return nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	copy(out[:], b)
	return nil
}

func decodePubKey(s string) (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return btcec.ParsePubKey(b)
}

func decodePrivKey(s string) (*btcec.PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv, nil
}
