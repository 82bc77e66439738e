package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultEmitTimeout bounds a single sink call when Config.EmitTimeout is zero.
const DefaultEmitTimeout = time.Second

// DropCause says why an event never reached the sink.
type DropCause string

const (
	// DropBufferFull: the buffer was full and DropIfFull is set.
	DropBufferFull DropCause = "buffer_full"
	// DropCanceled: a blocking Emit gave up because its context ended.
	DropCanceled DropCause = "canceled"
	// DropSinkTimeout: the sink did not finish within EmitTimeout.
	DropSinkTimeout DropCause = "sink_timeout"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// EmitTimeout is the deadline handed to each Sink.Emit. Sinks that
	// ignore their context can still stall the dispatcher.
	EmitTimeout time.Duration
	// OnDrop is called once for every event that was not delivered.
	OnDrop func(DropCause)
}

// Dispatcher redacts audit events and forwards them to a sink from a
// single goroutine, so request handlers never wait on the sink.
type Dispatcher struct {
	cfg     Config
	sink    Sink
	queue   chan Event
	stop    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
	closed  atomic.Bool
	once    sync.Once
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.EmitTimeout <= 0 {
		cfg.EmitTimeout = DefaultEmitTimeout
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:   cfg,
		sink:  sink,
		queue: make(chan Event, cfg.BufferSize),
		stop:  make(chan struct{}),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

// Emit queues a redacted copy of event. With DropIfFull a full buffer drops
// the event; otherwise Emit waits for room until ctx ends.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	event = event.Redacted()

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.drop(DropBufferFull)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop(DropCanceled)
	case <-d.stop:
	}
}

// Close delivers what is already queued and stops the worker. Each pending
// event is still bounded by EmitTimeout, so Close cannot hang on a stuck
// context-aware sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.wg.Wait()
	})
}

// Dropped returns the number of events that were not delivered.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.EmitTimeout)
	defer cancel()

	d.sink.Emit(ctx, event)
	if ctx.Err() != nil {
		d.drop(DropSinkTimeout)
	}
}

func (d *Dispatcher) drop(cause DropCause) {
	d.dropped.Add(1)
	if d.cfg.OnDrop != nil {
		d.cfg.OnDrop(cause)
	}
}
