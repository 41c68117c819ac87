package kernel

import (
	"os"
	"sync"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// globalLogger holds the package-level structured logger, guarded by an
// RWMutex so SetLogger can swap it at boot without synchronizing every
// caller of getLogger.
var globalLogger struct {
	sync.RWMutex
	log *logiface.Logger[*izerolog.Event]
}

func init() {
	globalLogger.log = izerolog.L.New(
		izerolog.L.WithZerolog(zerolog.New(os.Stderr)),
		logiface.WithLevel[*izerolog.Event](logiface.LevelNotice),
	)
}

// SetLogger replaces the package-level structured logger used for
// diagnostic events: activation loss, unhandled interrupt vectors, and
// similar non-fatal conditions. Safe for concurrent use; intended to be
// called once during boot, before Engine.Start.
func SetLogger(log *logiface.Logger[*izerolog.Event]) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.log = log
}

func getLogger() *logiface.Logger[*izerolog.Event] {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	return globalLogger.log
}
