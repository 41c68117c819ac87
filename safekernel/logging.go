package safekernel

import (
	"os"
	"sync"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// globalLogger holds the package-level structured logger, the same
// package-level-global-plus-RWMutex shape as kernel's own logging.go, kept
// as a separate logger instance so a caller can route bare-kernel and
// safe-kernel diagnostics to different sinks or levels.
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

// SetLogger replaces the package-level structured logger used for process
// failures, suspensions, and syscall-gate rejections. Safe for concurrent
// use; intended to be called once during boot, before Kernel.Start.
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
