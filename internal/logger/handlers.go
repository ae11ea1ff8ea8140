package logger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/examacademy/academy-server/internal/ctxutil"
)

const (
	defaultShipBuffer       = 1024
	defaultShipFlushTimeout = 5 * time.Second
)

// AsyncOptions configures the queue in front of remote log shipping.
type AsyncOptions struct {
	BufferSize   int
	FlushTimeout time.Duration
}

// tracingHandler copies the request id and client IP carried by ctx onto
// every record.
type tracingHandler struct {
	next slog.Handler
}

func (h tracingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h tracingHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ctxutil.GetRequestID(ctx); ok && id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	if ip := ctxutil.GetClientIP(ctx); ip != "" {
		r.AddAttrs(slog.String("client_ip", ip))
	}
	return h.next.Handle(ctx, r)
}

func (h tracingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return tracingHandler{next: h.next.WithAttrs(attrs)}
}

func (h tracingHandler) WithGroup(name string) slog.Handler {
	return tracingHandler{next: h.next.WithGroup(name)}
}

// teeHandler writes each record to every sink that accepts its level.
type teeHandler []slog.Handler

func newTeeHandler(sinks ...slog.Handler) teeHandler {
	tee := make(teeHandler, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			tee = append(tee, s)
		}
	}
	return tee
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range t {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, s := range t {
		if s.Enabled(ctx, r.Level) {
			errs = append(errs, s.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.each(func(s slog.Handler) slog.Handler { return s.WithAttrs(attrs) })
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return t.each(func(s slog.Handler) slog.Handler { return s.WithGroup(name) })
}

func (t teeHandler) each(fn func(slog.Handler) slog.Handler) teeHandler {
	next := make(teeHandler, len(t))
	for i, s := range t {
		next[i] = fn(s)
	}
	return next
}

type queuedRecord struct {
	ctx    context.Context
	record slog.Record
	sink   slog.Handler
}

// shipQueue is the single goroutine that drains records for remote sinks.
// Derived handlers share one queue.
type shipQueue struct {
	mu      sync.RWMutex
	closed  bool
	records chan queuedRecord
	flush   time.Duration
	dropped atomic.Uint64
	done    chan struct{}
}

func newShipQueue(opts AsyncOptions) *shipQueue {
	size := opts.BufferSize
	if size <= 0 {
		size = defaultShipBuffer
	}
	flush := opts.FlushTimeout
	if flush <= 0 {
		flush = defaultShipFlushTimeout
	}
	q := &shipQueue{
		records: make(chan queuedRecord, size),
		flush:   flush,
		done:    make(chan struct{}),
	}
	go q.drain()
	return q
}

func (q *shipQueue) drain() {
	defer close(q.done)
	for rec := range q.records {
		_ = rec.sink.Handle(rec.ctx, rec.record)
	}
}

// push never blocks; a full or closed queue drops the record.
func (q *shipQueue) push(ctx context.Context, r slog.Record, sink slog.Handler) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.dropped.Add(1)
		return
	}
	select {
	case q.records <- queuedRecord{ctx: context.WithoutCancel(ctx), record: r, sink: sink}:
	default:
		q.dropped.Add(1)
	}
}

func (q *shipQueue) close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.records)
	q.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.flush)
		defer cancel()
	}
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AsyncHandler hands records to a background queue so remote shipping
// never runs on a request goroutine.
type AsyncHandler struct {
	queue *shipQueue
	sink  slog.Handler
}

// NewAsyncHandler wraps sink with a fresh queue.
func NewAsyncHandler(sink slog.Handler, opts AsyncOptions) *AsyncHandler {
	return &AsyncHandler{queue: newShipQueue(opts), sink: sink}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.sink.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.sink.Enabled(ctx, r.Level) {
		h.queue.push(ctx, r.Clone(), h.sink)
	}
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{queue: h.queue, sink: h.sink.WithAttrs(attrs)}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{queue: h.queue, sink: h.sink.WithGroup(name)}
}

// Dropped counts records discarded on a full or closed queue.
func (h *AsyncHandler) Dropped() uint64 {
	return h.queue.dropped.Load()
}

// Shutdown stops accepting records and waits for the queue to drain, bounded
// by ctx or the configured flush timeout.
func (h *AsyncHandler) Shutdown(ctx context.Context) error {
	if h == nil || h.queue == nil {
		return nil
	}
	return h.queue.close(ctx)
}
