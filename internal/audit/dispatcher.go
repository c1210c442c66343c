package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultDrainTimeout bounds how long Close waits for a slow sink.
const DefaultDrainTimeout = 5 * time.Second

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit discard events instead of waiting for buffer space.
	DropIfFull bool
	// Critical lists event types that are never dropped, even with DropIfFull.
	// Emit waits for space (or ctx) for these.
	Critical []string
	// DrainTimeout caps Close. Zero means DefaultDrainTimeout.
	DrainTimeout time.Duration
}

// Dispatcher hands events to one sink from a single worker goroutine, so sink
// latency never lands on a login or refresh.
type Dispatcher struct {
	cfg      Config
	critical map[string]struct{}
	sink     Sink
	logger   *zap.Logger

	queue  chan Event
	stop   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher, or returns nil when cfg is disabled. A nil
// Dispatcher accepts and ignores every call.
func NewDispatcher(cfg Config, sink Sink, logger *zap.Logger) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	cfg.BufferSize = max(cfg.BufferSize, 1)
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}

	critical := make(map[string]struct{}, len(cfg.Critical))
	for _, t := range cfg.Critical {
		critical[t] = struct{}{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:      cfg,
		critical: critical,
		sink:     sink,
		logger:   logger,
		queue:    make(chan Event, cfg.BufferSize),
		stop:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(d.ctx, event)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(d.ctx, event)
		default:
			return
		}
	}
}

// Emit queues event. Non-critical events are dropped when DropIfFull is set
// and the buffer is full; everything else waits for space, ctx or Close.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if _, critical := d.critical[event.EventType]; d.cfg.DropIfFull && !critical {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			if d.dropped.Add(1) == 1 {
				d.logger.Warn("audit buffer full, dropping events",
					zap.Int("buffer_size", d.cfg.BufferSize),
					zap.String("event_type", event.EventType))
			}
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.logger.Warn("audit event abandoned", zap.String("event_type", event.EventType), zap.Error(ctx.Err()))
	case <-d.stop:
	}
}

// Close flushes queued events and stops the worker. After DrainTimeout the
// sink context is cancelled so a context-aware sink can give up.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		timer := time.AfterFunc(d.cfg.DrainTimeout, d.cancel)
		d.wg.Wait()
		timer.Stop()
		d.cancel()
	})
}

// Dropped returns how many events were discarded because the buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
