package swapdb

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func makeTestDB(t *testing.T) *DB {
	t.Helper()

	dir, err := os.MkdirTemp("", "swapdb-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func TestCreateAndFetchSwap(t *testing.T) {
	db := makeTestDB(t)

	swap := &Swap{
		ID:                 "swap1",
		Pair:               "BTC/BTC",
		OrderSide:          OrderSideBuy,
		OnchainAmountExp:   100000,
		TimeoutBlockHeight: 800000,
		CreatedAt:          time.Now(),
	}
	require.NoError(t, db.CreateSwap(swap))
	require.ErrorIs(t, db.CreateSwap(swap), ErrDuplicateSwap)

	fetched, err := db.FetchSwap("swap1")
	require.NoError(t, err)
	require.Equal(t, swap.Pair, fetched.Pair)
	require.Equal(t, StatusSwapCreated, fetched.Status)
}

func TestSetSwapStatusFollowsDiagram(t *testing.T) {
	db := makeTestDB(t)

	swap := &Swap{ID: "swap2", CreatedAt: time.Now()}
	require.NoError(t, db.CreateSwap(swap))

	// Legal: SwapCreated -> TransactionMempool.
	require.NoError(t, db.SetSwapStatus("swap2", StatusTransactionMempool))

	// Illegal: TransactionMempool -> TransactionClaimed skips required
	// intermediate states.
	err := db.SetSwapStatus("swap2", StatusTransactionClaimed)
	require.ErrorIs(t, err, ErrIllegalTransition)

	// The rejected transition must not have mutated the record.
	fetched, err := db.FetchSwap("swap2")
	require.NoError(t, err)
	require.Equal(t, StatusTransactionMempool, fetched.Status)
}

func TestSwapByWatchedOutput(t *testing.T) {
	db := makeTestDB(t)

	script := []byte{0x00, 0x14, 0x01, 0x02}
	require.NoError(t, db.WatchOutput("swap3", script))

	id, err := db.SwapByWatchedOutput(script)
	require.NoError(t, err)
	require.Equal(t, "swap3", id)

	_, err = db.SwapByWatchedOutput([]byte{0xff})
	require.ErrorIs(t, err, ErrWatchedOutputNotFound)
}

func TestChannelCreationLifecycle(t *testing.T) {
	db := makeTestDB(t)

	cc := &ChannelCreation{SwapID: "swap4", NodePublicKey: "02aa"}
	require.NoError(t, db.SetChannelCreation(cc))

	require.NoError(t, db.SetChannelCreationStatus("swap4", ChannelCreated))
	require.NoError(t, db.SetChannelCreationFunding("swap4", "deadbeef", 0))

	err := db.SetChannelCreationStatus("swap4", ChannelAttempted)
	require.ErrorIs(t, err, ErrIllegalTransition)

	require.NoError(t, db.SetChannelCreationStatus("swap4", ChannelSettled))

	fetched, err := db.FetchChannelCreation("swap4")
	require.NoError(t, err)
	require.Equal(t, ChannelSettled, fetched.Status)
	require.Equal(t, "deadbeef", fetched.FundingTxID)
}
