package nursery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSettleRetryDelay(t *testing.T) {
	base := time.Second
	require.Equal(t, base, settleRetryDelay(base, 1))
	require.Equal(t, 2*base, settleRetryDelay(base, 2))
	require.Equal(t, 4*base, settleRetryDelay(base, 3))
	require.Equal(t, 4*base, settleRetryDelay(base, 4))
}
