package swapdb

import "fmt"

var (
	ErrNoSwapDBExists = fmt.Errorf("swap db has not yet been created")

	ErrSwapNotFound        = fmt.Errorf("unable to locate swap")
	ErrReverseSwapNotFound = fmt.Errorf("unable to locate reverse swap")
	ErrChainSwapNotFound   = fmt.Errorf("unable to locate chain swap")
	ErrDuplicateSwap       = fmt.Errorf("swap with this id already exists")

	ErrChannelCreationNotFound = fmt.Errorf("no channel creation for swap")

	ErrPairNotFound = fmt.Errorf("unable to locate pair")

	// ErrIllegalTransition is returned by setStatus when the requested
	// status is not reachable from the swap's current status. Per §4.3
	// this is fatal: callers must alert, not retry.
	ErrIllegalTransition = fmt.Errorf("illegal swap status transition")

	ErrWatchedOutputNotFound = fmt.Errorf("no swap watches this output")
)
