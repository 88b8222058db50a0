// Package stream provides an asynchronous, buffered output writer.
//
// A Writer accepts bytes immediately and hands them to a single flusher
// goroutine that copies them to the destination in order. Because writes
// return before the bytes reach the destination, a program that calls
// os.Exit right after writing can lose output. The Writer exposes the
// pending byte count, a one-shot drain notification and permanent write
// suppression so that package drain can wait for it before exiting.
package stream

import (
	"errors"
	"io"
	"os"
	"sync"
	"syscall"
	"time"
)

// Writer is an io.Writer that buffers writes in memory and flushes them to
// its destination from a background goroutine.
type Writer struct {
	dst   io.Writer
	name  string
	delay time.Duration
	sync  bool

	mu         sync.Mutex
	queue      [][]byte
	pending    int
	suppressed bool
	discarded  int64
	listeners  []func()
	err        error
	closed     bool

	wake chan struct{}
	done chan struct{}
}

// Option customises a Writer.
type Option func(*Writer)

// WithName labels the writer for logs and metrics.
func WithName(name string) Option {
	return func(w *Writer) {
		w.name = name
	}
}

// WithDelay sleeps before each chunk is written to the destination. It is
// used to emulate a slow transport.
func WithDelay(d time.Duration) Option {
	return func(w *Writer) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithSync makes the writer call Sync on file destinations whenever the
// queue empties, before drain listeners run.
func WithSync() Option {
	return func(w *Writer) {
		w.sync = true
	}
}

// New constructs a Writer over dst and starts its flusher.
func New(dst io.Writer, opts ...Option) *Writer {
	w := &Writer{
		dst:  dst,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	go w.run()
	return w
}

// Name reports the label given with WithName.
func (w *Writer) Name() string {
	return w.name
}

// Write queues a copy of p. It never blocks on the destination. After
// Suppress the bytes are discarded, but the call still reports success.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	if w.suppressed || w.closed {
		w.discarded += int64(len(p))
		w.mu.Unlock()
		return len(p), nil
	}
	if len(p) == 0 {
		w.mu.Unlock()
		return 0, nil
	}
	chunk := make([]byte, len(p))
	copy(chunk, p)
	w.queue = append(w.queue, chunk)
	w.pending += len(chunk)
	w.mu.Unlock()

	w.signal()
	return len(p), nil
}

// WriteString is a convenience wrapper around Write.
func (w *Writer) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// Buffered reports the number of bytes accepted by Write that have not yet
// been handed to the destination, including a chunk being written.
func (w *Writer) Buffered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}

// Suppress turns every later Write into a silent no-op. It cannot be undone.
// Once Suppress returns no concurrent Write can enqueue more bytes.
func (w *Writer) Suppress() {
	w.mu.Lock()
	w.suppressed = true
	w.mu.Unlock()
}

// Suppressed reports whether Suppress has been called.
func (w *Writer) Suppressed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.suppressed
}

// Discarded reports how many bytes were dropped because the writer was
// suppressed or closed.
func (w *Writer) Discarded() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.discarded
}

// OnceDrain registers fn to run once the pending byte count next reaches
// zero. If nothing is pending, fn runs immediately on the calling goroutine.
// Listeners registered later fire on a later drain; each runs at most once.
func (w *Writer) OnceDrain(fn func()) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	if w.pending == 0 {
		w.mu.Unlock()
		fn()
		return
	}
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

// Err returns the first error reported by the destination, if any.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close stops accepting writes, waits for the queue to drain and stops the
// flusher. Close is for the owner of the writer; it is safe to call twice.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return w.Err()
	}
	w.closed = true
	w.mu.Unlock()

	w.signal()
	<-w.done
	return w.Err()
}

func (w *Writer) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for range w.wake {
		for {
			chunk, ok := w.next()
			if !ok {
				break
			}
			if w.delay > 0 {
				time.Sleep(w.delay)
			}
			_, err := w.dst.Write(chunk)
			w.complete(len(chunk), err)
		}
		if w.finished() {
			return
		}
	}
}

func (w *Writer) next() ([]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return nil, false
	}
	chunk := w.queue[0]
	w.queue[0] = nil
	w.queue = w.queue[1:]
	return chunk, true
}

// complete retires a written chunk. The last chunk stays counted in pending
// until the destination has been flushed, so Buffered never reports zero
// while bytes sit in a destination buffer.
func (w *Writer) complete(n int, err error) {
	w.mu.Lock()
	if err != nil && w.err == nil {
		w.err = err
	}
	if len(w.queue) > 0 {
		w.pending -= n
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	w.flushDestination()

	w.mu.Lock()
	w.pending -= n
	// A Write may have raced in while the destination was flushing.
	if w.pending > 0 {
		w.mu.Unlock()
		return
	}
	listeners := w.listeners
	w.listeners = nil
	w.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

func (w *Writer) finished() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed && len(w.queue) == 0
}

type flusher interface {
	Flush() error
}

type syncer interface {
	Sync() error
}

func (w *Writer) flushDestination() {
	var err error
	if f, ok := w.dst.(flusher); ok {
		err = f.Flush()
	}
	if w.sync {
		if s, ok := w.dst.(syncer); ok {
			if syncErr := s.Sync(); syncErr != nil && !isIgnorableSyncError(syncErr) && err == nil {
				err = syncErr
			}
		}
	}
	if err != nil {
		w.mu.Lock()
		if w.err == nil {
			w.err = err
		}
		w.mu.Unlock()
	}
}

// Sync on pipes and ttys returns EINVAL/EBADF even when the bytes were
// delivered.
func isIgnorableSyncError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.EBADF) {
		return true
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr.Err, syscall.EINVAL) || errors.Is(pathErr.Err, syscall.EBADF)
	}
	return false
}
