package main

import (
	"os"

	"github.com/btcsuite/btclog"
	"github.com/lightninglabs/swapd/chainntnfs"
	"github.com/lightninglabs/swapd/eventbus"
	"github.com/lightninglabs/swapd/lightning"
	"github.com/lightninglabs/swapd/musig2signer"
	"github.com/lightninglabs/swapd/nursery"
	"github.com/lightninglabs/swapd/reverseswap"
	"github.com/lightninglabs/swapd/routinghints"
	"github.com/lightninglabs/swapd/swap"
	"github.com/lightninglabs/swapd/swapdb"
	"github.com/lightninglabs/swapd/timeoutwatcher"
)

// subsystemLoggers maps each subsystem's tag to its backend-registered
// logger; setLogLevels applies the single --debuglevel value to all of them.
var subsystemLoggers = make(map[string]btclog.Logger)

var backendLog = btclog.NewBackend(logWriter{})

// logWriter implements an io.Writer that outputs to standard output only;
// no log file is written.
type logWriter struct{}

func (logWriter) Write(b []byte) (int, error) {
	os.Stdout.Write(b)
	return len(b), nil
}

func addSubLogger(tag string) btclog.Logger {
	logger := backendLog.Logger(tag)
	subsystemLoggers[tag] = logger
	return logger
}

var (
	swdLog  = addSubLogger("SWDB")
	chnLog  = addSubLogger("CHNO")
	lnlLog  = addSubLogger("LNLI")
	msgLog  = addSubLogger("MSIG")
	rthLog  = addSubLogger("RTHT")
	subLog  = addSubLogger("SWAP")
	revLog  = addSubLogger("RSWP")
	nrsLog  = addSubLogger("NRSY")
	towLog  = addSubLogger("TOWT")
	busLog  = addSubLogger("EVTB")
	ltndLog = addSubLogger("SWAPD")
)

// setLogLevels sets the log level for every registered subsystem.
func setLogLevels(level string) {
	for _, logger := range subsystemLoggers {
		logger.SetLevel(btclog.LevelFromString(level))
	}

	swapdb.UseLogger(swdLog)
	chainntnfs.UseLogger(chnLog)
	lightning.UseLogger(lnlLog)
	musig2signer.UseLogger(msgLog)
	routinghints.UseLogger(rthLog)
	swap.UseLogger(subLog)
	reverseswap.UseLogger(revLog)
	nursery.UseLogger(nrsLog)
	timeoutwatcher.UseLogger(towLog)
	eventbus.UseLogger(busLog)
}
