package api

import (
	"encoding/hex"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/lightninglabs/swapd/swap"
	"github.com/lightninglabs/swapd/swaperrors"
)

func TestParsePubKeyRoundTrip(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	pub, err := parsePubKey(hex.EncodeToString(priv.PubKey().SerializeCompressed()))
	require.NoError(t, err)
	require.True(t, pub.IsEqual(priv.PubKey()))
}

func TestParsePubKeyRejectsGarbage(t *testing.T) {
	_, err := parsePubKey("not-hex")
	require.Error(t, err)
}

func TestDecodeFixedWrongLength(t *testing.T) {
	var dst [66]byte
	err := decodeFixed(hex.EncodeToString([]byte("short")), dst[:])
	require.Error(t, err)
}

func TestWriteManagerErrorMapsAmountOutOfRange(t *testing.T) {
	rec := httptest.NewRecorder()
	writeManagerError(rec, swap.ErrAmountOutOfRange)
	require.Equal(t, 400, rec.Code)
	require.Contains(t, rec.Body.String(), string(swaperrors.CodeAmountOutOfRange))
}
