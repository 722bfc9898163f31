package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/ransxd/web-download-server/internal/logging"
)

// Guard is the process shutdown hook. Its cleanup runs at most once no
// matter how many of signal, normal return or panic recovery trigger it.
type Guard struct {
	once    sync.Once
	cleanup func()
}

// NewGuard returns a Guard that runs cleanup on shutdown. cleanup must only
// remove the liveness marker: no scanning and no network I/O.
func NewGuard(cleanup func()) *Guard {
	return &Guard{cleanup: cleanup}
}

// Shutdown runs the cleanup if it has not run yet.
func (g *Guard) Shutdown() {
	g.once.Do(g.cleanup)
}

// Watch returns a context that is cancelled when the process receives
// SIGINT or SIGTERM (or the given signals). The cleanup runs before the
// cancellation is observed. The returned stop func releases the signal
// subscription.
func (g *Guard) Watch(parent context.Context, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	go func() {
		defer signal.Stop(ch)
		select {
		case sig := <-ch:
			logging.Info("shutting down...", zap.String("signal", sig.String()))
			g.Shutdown()
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
