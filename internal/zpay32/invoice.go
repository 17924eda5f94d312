// Package zpay32 decodes BOLT11 Lightning payment requests; it has no
// encoder.
// Adapted from the teacher daemon's zpay32 package: the tagged-field
// layout and bech32 plumbing follow BOLT11 exactly, but the field set is
// trimmed to what the Routing-Hints Engine (spec §4.5) and the submarine/
// reverse state machines actually consume, and amount/destination types are
// swapd's own rather than the teacher's lnwire types.
package zpay32

import (
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	signatureBase32Len  = 104
	timestampBase32Len  = 7
	hashBase32Len       = 52
	pubKeyBase32Len     = 53

	fieldTypeP = 1  // payment hash
	fieldTypeD = 13 // description
	fieldTypeN = 19 // payee pubkey
	fieldTypeH = 23 // description hash
	fieldTypeX = 6  // expiry
	fieldTypeR = 3  // routing info
	fieldTypeC = 24 // min final cltv expiry
)

// RoutingHintField is one entry of a BOLT11 `r` tagged field.
type RoutingHintField struct {
	PubKey                    [33]byte
	ShortChannelID            uint64
	FeeBaseMSat               uint32
	FeeProportionalMillionths uint32
	CLTVExpiryDelta           uint16
}

// MessageSigner signs a BOLT11 invoice's hash with the payee's node key.
type MessageSigner struct {
	SignCompact func(hash []byte) ([]byte, error)
}

// Invoice is a decoded, or to-be-encoded, BOLT11 payment request.
type Invoice struct {
	Net             *chaincfg.Params
	MilliSat        *uint64
	Timestamp       time.Time
	PaymentHash     *[32]byte
	Description     *string
	DescriptionHash *[32]byte
	Destination     *btcec.PublicKey
	Expiry          time.Duration
	MinFinalCLTV    uint64
	RoutingInfo     []RoutingHintField
}

func Amount(msat uint64) func(*Invoice)               { return func(i *Invoice) { i.MilliSat = &msat } }
func Description(desc string) func(*Invoice)          { return func(i *Invoice) { i.Description = &desc } }
func DescriptionHash(h [32]byte) func(*Invoice)       { return func(i *Invoice) { i.DescriptionHash = &h } }
func Destination(pub *btcec.PublicKey) func(*Invoice) { return func(i *Invoice) { i.Destination = pub } }
func CLTVExpiry(delta uint64) func(*Invoice)          { return func(i *Invoice) { i.MinFinalCLTV = delta } }
func ExpiresIn(d time.Duration) func(*Invoice)        { return func(i *Invoice) { i.Expiry = d } }
func RoutingInfo(hints []RoutingHintField) func(*Invoice) {
	return func(i *Invoice) { i.RoutingInfo = hints }
}

// NewInvoice constructs a to-be-encoded invoice for the given network and
// payment hash.
func NewInvoice(net *chaincfg.Params, paymentHash [32]byte, timestamp time.Time, opts ...func(*Invoice)) (*Invoice, error) {
	inv := &Invoice{Net: net, PaymentHash: &paymentHash, Timestamp: timestamp}
	for _, opt := range opts {
		opt(inv)
	}
	if err := validate(inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func validate(inv *Invoice) error {
	if inv.Net == nil {
		return fmt.Errorf("invoice is missing network")
	}
	if inv.PaymentHash == nil {
		return fmt.Errorf("invoice is missing payment hash")
	}
	return nil
}

// Decode parses a bech32-encoded BOLT11 string.
func Decode(invoice string) (*Invoice, error) {
	hrp, data, err := decodeBech32(invoice)
	if err != nil {
		return nil, err
	}
	if len(hrp) < 4 || hrp[:2] != "ln" {
		return nil, fmt.Errorf("invalid invoice prefix")
	}

	net, err := netForHRP(hrp[2:])
	if err != nil {
		return nil, err
	}

	decoded := Invoice{Net: net}
	if len(hrp) > 4 {
		amt, err := decodeAmount(hrp[4:])
		if err != nil {
			return nil, err
		}
		decoded.MilliSat = &amt
	}

	invoiceData := data[:len(data)-signatureBase32Len]
	if err := parseData(&decoded, invoiceData); err != nil {
		return nil, err
	}

	sigBase32 := data[len(data)-signatureBase32Len:]
	sigBytes, err := bech32.ConvertBits(sigBase32, 5, 8, true)
	if err != nil {
		return nil, err
	}
	if len(sigBytes) < 65 {
		return nil, fmt.Errorf("signature too short")
	}
	recoveryID := sigBytes[64]

	taggedBytes, err := bech32.ConvertBits(invoiceData, 5, 8, true)
	if err != nil {
		return nil, err
	}
	toSign := append([]byte(hrp), taggedBytes...)
	hash := chainhash.HashB(toSign)

	if decoded.Destination != nil {
		sig, err := ecdsa.ParseDERSignature(sigBytes[:64])
		if err != nil {
			return nil, fmt.Errorf("unable to parse signature: %w", err)
		}
		if !sig.Verify(hash, decoded.Destination) {
			return nil, fmt.Errorf("invalid invoice signature")
		}
	} else {
		headerByte := recoveryID + 27 + 4
		compact := append([]byte{headerByte}, sigBytes[:64]...)
		pub, _, err := ecdsa.RecoverCompact(compact, hash)
		if err != nil {
			return nil, err
		}
		decoded.Destination = pub
	}

	if err := validate(&decoded); err != nil {
		return nil, err
	}
	return &decoded, nil
}

func netForHRP(suffix string) (*chaincfg.Params, error) {
	switch {
	case strings.HasPrefix(suffix, chaincfg.MainNetParams.Bech32HRPSegwit):
		return &chaincfg.MainNetParams, nil
	case strings.HasPrefix(suffix, chaincfg.TestNet3Params.Bech32HRPSegwit):
		return &chaincfg.TestNet3Params, nil
	case strings.HasPrefix(suffix, chaincfg.RegressionNetParams.Bech32HRPSegwit):
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network")
	}
}

func decodeBech32(invoice string) (string, []byte, error) {
	return bech32.DecodeNoLimit(invoice)
}

func parseData(invoice *Invoice, data []byte) error {
	if len(data) < timestampBase32Len {
		return fmt.Errorf("invoice data too short")
	}

	t, err := base32ToUint64(data[:timestampBase32Len])
	if err != nil {
		return err
	}
	invoice.Timestamp = time.Unix(int64(t), 0)

	return parseTaggedFields(invoice, data[timestampBase32Len:])
}

func parseTaggedFields(invoice *Invoice, fields []byte) error {
	index := 0
	for len(fields)-index >= 3 {
		typ := fields[index]
		length := int(fields[index+1])<<5 | int(fields[index+2])
		if len(fields) < index+3+length {
			return fmt.Errorf("invalid tagged field length")
		}
		base32Data := fields[index+3 : index+3+length]
		index += 3 + length

		switch typ {
		case fieldTypeP:
			if invoice.PaymentHash != nil || length != hashBase32Len {
				continue
			}
			b, err := bech32.ConvertBits(base32Data, 5, 8, false)
			if err != nil {
				return err
			}
			var hash [32]byte
			copy(hash[:], b)
			invoice.PaymentHash = &hash

		case fieldTypeH:
			if invoice.DescriptionHash != nil || length != hashBase32Len {
				continue
			}
			b, err := bech32.ConvertBits(base32Data, 5, 8, false)
			if err != nil {
				return err
			}
			var hash [32]byte
			copy(hash[:], b)
			invoice.DescriptionHash = &hash

		case fieldTypeD:
			if invoice.Description != nil {
				continue
			}
			b, err := bech32.ConvertBits(base32Data, 5, 8, false)
			if err != nil {
				return err
			}
			desc := string(b)
			invoice.Description = &desc

		case fieldTypeN:
			if invoice.Destination != nil || length != pubKeyBase32Len {
				continue
			}
			b, err := bech32.ConvertBits(base32Data, 5, 8, false)
			if err != nil {
				return err
			}
			pub, err := btcec.ParsePubKey(b[:33])
			if err != nil {
				return err
			}
			invoice.Destination = pub

		case fieldTypeX:
			expiry, err := base32ToUint64(base32Data)
			if err != nil {
				return err
			}
			invoice.Expiry = time.Duration(expiry) * time.Second

		case fieldTypeC:
			cltv, err := base32ToUint64(base32Data)
			if err != nil {
				return err
			}
			invoice.MinFinalCLTV = cltv

		case fieldTypeR:
			hints, err := parseRoutingInfo(base32Data)
			if err != nil {
				return err
			}
			invoice.RoutingInfo = append(invoice.RoutingInfo, hints...)
		}
	}
	return nil
}

func parseRoutingInfo(data []byte) ([]RoutingHintField, error) {
	b, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, err
	}
	const entrySize = 33 + 8 + 4 + 4 + 2
	var hints []RoutingHintField
	for len(b) >= entrySize {
		var h RoutingHintField
		copy(h.PubKey[:], b[0:33])
		h.ShortChannelID = beUint64(b[33:41])
		h.FeeBaseMSat = beUint32(b[41:45])
		h.FeeProportionalMillionths = beUint32(b[45:49])
		h.CLTVExpiryDelta = beUint16(b[49:51])
		hints = append(hints, h)
		b = b[entrySize:]
	}
	return hints, nil
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}
func beUint32(b []byte) uint32 {
	var v uint32
	for _, x := range b {
		v = v<<8 | uint32(x)
	}
	return v
}
func beUint16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

func base32ToUint64(data []byte) (uint64, error) {
	if len(data) > 13 {
		return 0, fmt.Errorf("cannot fit in 64 bits")
	}
	var v uint64
	for _, d := range data {
		if d >= 32 {
			return 0, fmt.Errorf("invalid base32 digit: %d", d)
		}
		v = v<<5 | uint64(d)
	}
	return v, nil
}

func decodeAmount(hrpAmount string) (uint64, error) {
	if len(hrpAmount) < 1 {
		return 0, fmt.Errorf("empty amount")
	}

	unit := hrpAmount[len(hrpAmount)-1]
	amountStr := hrpAmount[:len(hrpAmount)-1]

	var am uint64
	_, err := fmt.Sscanf(amountStr, "%d", &am)
	if err != nil {
		return 0, err
	}

	switch unit {
	case 'm':
		return am * 100000000, nil
	case 'u':
		return am * 100000, nil
	case 'n':
		return am * 100, nil
	case 'p':
		return am / 10, nil
	default:
		return 0, fmt.Errorf("unknown amount unit %q", unit)
	}
}
