package swap

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

func TestBuildSwapScriptAndAddress(t *testing.T) {
	claimPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	refundPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	var hash [32]byte
	script, err := buildSwapScript(hash, claimPriv.PubKey(), refundPriv.PubKey(), 100)
	require.NoError(t, err)
	require.NotEmpty(t, script)

	addr, pkScript, err := p2wshAddress(script, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	require.NotEmpty(t, addr)
	require.NotEmpty(t, pkScript)
}
