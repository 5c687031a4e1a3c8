package dispatcher

import (
	"sync"

	"github.com/Swind/go-cycle-dispatcher/core"
)

// =============================================================================
// Global Dispatcher Helper (Singleton)
// =============================================================================

var (
	globalDispatcher *core.Dispatcher
	globalMu         sync.Mutex
)

// InitGlobalDispatcher creates the process-wide dispatcher. A nil config
// uses core.DefaultDispatcherConfig. Later calls are no-ops until
// ShutdownGlobalDispatcher.
func InitGlobalDispatcher(config *core.DispatcherConfig) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalDispatcher != nil {
		return // Already initialized
	}

	if config == nil {
		config = core.DefaultDispatcherConfig()
		config.Name = "global-dispatcher"
	}
	globalDispatcher = core.NewDispatcher(config)
}

// GlobalDispatcher returns the global dispatcher instance.
// It panics if InitGlobalDispatcher has not been called.
func GlobalDispatcher() *core.Dispatcher {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalDispatcher == nil {
		panic("GlobalDispatcher not initialized. Call InitGlobalDispatcher() first.")
	}
	return globalDispatcher
}

// ShutdownGlobalDispatcher shuts the global dispatcher down and clears it.
func ShutdownGlobalDispatcher() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalDispatcher != nil {
		globalDispatcher.Shutdown()
		globalDispatcher = nil
	}
}

// resolve returns d, or the global dispatcher when d is nil.
func resolve(d *core.Dispatcher) *core.Dispatcher {
	if d != nil {
		return d
	}
	return GlobalDispatcher()
}
