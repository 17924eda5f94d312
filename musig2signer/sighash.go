package musig2signer

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// computeTaprootSigHash derives the BIP341 key-spend sighash for the given
// input of tx, the message both parties' Musig2 nonces commit to. Every
// cooperative session in this package signs exactly this digest, never a
// pre-taproot sighash, since swapd's HTLCs are taproot script/key trees
// (spec §3, "HTLC-script-or-tree").
func computeTaprootSigHash(tx *wire.MsgTx, inputIndex int) ([]byte, error) {
	prevOuts := txscript.NewCannedPrevOutputFetcher(nil, 0)
	hashCache := txscript.NewTxSigHashes(tx, prevOuts)

	return txscript.CalcTaprootSignatureHash(
		hashCache, txscript.SigHashDefault, tx, inputIndex, prevOuts,
	)
}
