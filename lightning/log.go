package lightning

import "github.com/btcsuite/btclog"

// log is the package-wide logger, disabled by default until the daemon
// wires a real backend via UseLogger.
var log = btclog.Disabled

// UseLogger plugs a new logger into this package. Should be called before
// the package is used, usually from the daemon's main log.go.
func UseLogger(logger btclog.Logger) {
	log = logger
}
