package userpool

import (
	"context"
	"sync"
	"sync/atomic"
)

// eventDispatcher decouples the engine's hot path from sink latency:
// Emit enqueues and returns, a single worker goroutine delivers. Sinks
// receive the dispatcher's lifecycle context, which stays live through
// the closing drain and is canceled only once shutdown completes, so a
// long-lived sink can tie its own resources to it.
type eventDispatcher struct {
	cfg  EventsConfig
	sink EventSink
	ch   chan AuthEvent
	done chan struct{}

	lifecycle context.Context
	cancel    context.CancelFunc

	wg        sync.WaitGroup
	delivered atomic.Uint64
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newEventDispatcher(cfg EventsConfig, sink EventSink) *eventDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	lifecycle, cancel := context.WithCancel(context.Background())
	d := &eventDispatcher{
		cfg:       cfg,
		sink:      sink,
		ch:        make(chan AuthEvent, cfg.BufferSize),
		done:      make(chan struct{}),
		lifecycle: lifecycle,
		cancel:    cancel,
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *eventDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			// Drain whatever Emit managed to enqueue before close.
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *eventDispatcher) deliver(event AuthEvent) {
	d.sink.Emit(d.lifecycle, event)
	d.delivered.Add(1)
}

// Emit describes the emit operation and its observable behavior.
//
// Emit may return an error when input validation, dependency calls, or security checks fail.
// Emit does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *eventDispatcher) Emit(ctx context.Context, event AuthEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
	case <-d.done:
	}
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *eventDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
		d.cancel()
	})
}

// Delivered describes the delivered operation and its observable behavior.
//
// Delivered may return an error when input validation, dependency calls, or security checks fail.
// Delivered does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *eventDispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}

// Dropped describes the dropped operation and its observable behavior.
//
// Dropped may return an error when input validation, dependency calls, or security checks fail.
// Dropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *eventDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
