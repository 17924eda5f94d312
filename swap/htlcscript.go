package swap

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// buildSwapScript constructs the fallback script-spend leaf for a
// submarine/reverse HTLC (spec §3, "HTLC-script-or-tree"):
//
//	OP_SIZE 32 OP_EQUALVERIFY
//	OP_SHA256 <paymentHash> OP_EQUAL
//	OP_IF
//	    <claimKey> OP_CHECKSIG
//	OP_ELSE
//	    <timeoutHeight> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	    <refundKey> OP_CHECKSIG
//	OP_ENDIF
//
// This is the non-cooperative fallback path; the cooperative Musig2 path
// (C4) never executes this script at all, it only commits to the same
// payment hash and timeout in its taproot internal key tweak.
func buildSwapScript(paymentHash [32]byte, claimKey, refundKey *btcec.PublicKey, timeoutHeight uint32) ([]byte, error) {
	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_SIZE)
	builder.AddInt64(32)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(paymentHash[:])
	builder.AddOp(txscript.OP_EQUAL)
	builder.AddOp(txscript.OP_IF)

	builder.AddData(claimKey.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIG)

	builder.AddOp(txscript.OP_ELSE)

	builder.AddInt64(int64(timeoutHeight))
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(refundKey.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIG)

	builder.AddOp(txscript.OP_ENDIF)

	return builder.Script()
}

// p2wshAddress wraps script as a P2WSH output and returns its address on
// net. swapd always quotes a segwit address to depositors; the cooperative
// Musig2 claim spends the same output as a key-path taproot spend when the
// HTLC tree is taproot-native, but the witness-script fallback below covers
// any backend that only supports P2WSH.
func p2wshAddress(script []byte, net *chaincfg.Params) (string, []byte, error) {
	scriptHash := sha256.Sum256(script)
	addr, err := btcutil.NewAddressWitnessScriptHash(scriptHash[:], net)
	if err != nil {
		return "", nil, err
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return "", nil, err
	}
	return addr.EncodeAddress(), pkScript, nil
}
