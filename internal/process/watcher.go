package process

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/sharedsave/internal/event"
	"github.com/Iron-Ham/sharedsave/internal/logging"
)

// Watcher polls a Detector and emits ProcessStarted and ProcessStopped on
// transitions only.
type Watcher struct {
	name     string
	detector Detector
	interval time.Duration
	sink     event.Sink
	logger   *logging.Logger

	mu      sync.RWMutex
	known   bool
	running bool
}

// NewWatcher creates a Watcher. name is only used in emitted events.
func NewWatcher(name string, detector Detector, interval time.Duration, sink event.Sink, logger *logging.Logger) *Watcher {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Watcher{
		name:     name,
		detector: detector,
		interval: interval,
		sink:     sink,
		logger:   logger.WithComponent("process"),
	}
}

// Running returns the last observed state.
func (w *Watcher) Running() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Run polls immediately and then every interval until ctx is cancelled.
// An application already running at startup produces ProcessStarted.
func (w *Watcher) Run(ctx context.Context) error {
	w.poll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	running, err := w.detector.IsTargetRunning(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("process detection failed, keeping last state", "error", err.Error())
		}
		return
	}

	w.mu.Lock()
	changed := !w.known && running || w.known && running != w.running
	w.known = true
	w.running = running
	w.mu.Unlock()

	if !changed {
		return
	}
	if running {
		w.logger.Info("target started", "name", w.name)
		w.sink.Emit(event.NewProcessStartedEvent(w.name))
	} else {
		w.logger.Info("target stopped", "name", w.name)
		w.sink.Emit(event.NewProcessStoppedEvent(w.name))
	}
}
