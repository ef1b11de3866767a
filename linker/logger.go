package linker

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	nop    = zap.NewNop()
	logger atomic.Pointer[zap.Logger]
)

// Logger is where linking reports instantiation failures and bridged
// imports. Nothing is written until SetLogger installs a logger.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return nop
}

// SetLogger replaces the linker logger. A nil logger silences it again.
// Safe to call while links are in flight.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}
