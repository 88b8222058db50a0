package drain

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Paintersrp/drainexit/stream"
)

type fakeStream struct {
	mu         sync.Mutex
	pending    int
	suppressed bool
	listeners  []func()
	queried    bool
	order      *[]string
	name       string
}

func (f *fakeStream) Buffered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = true
	if f.order != nil {
		*f.order = append(*f.order, "buffered:"+f.name)
	}
	return f.pending
}

func (f *fakeStream) Suppress() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suppressed = true
	if f.order != nil {
		*f.order = append(*f.order, "suppress:"+f.name)
	}
}

func (f *fakeStream) OnceDrain(fn func()) {
	f.mu.Lock()
	if f.pending == 0 {
		f.mu.Unlock()
		fn()
		return
	}
	f.listeners = append(f.listeners, fn)
	f.mu.Unlock()
}

func (f *fakeStream) drain() {
	f.mu.Lock()
	f.pending = 0
	listeners := f.listeners
	f.listeners = nil
	f.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

type exitRecorder struct {
	mu    sync.Mutex
	codes []int
}

func (r *exitRecorder) exit(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, code)
}

func (r *exitRecorder) calls() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.codes...)
}

func TestTerminateEmptyStreamsExitsImmediately(t *testing.T) {
	rec := &exitRecorder{}
	c := New(WithExitFunc(rec.exit))

	term := c.Terminate(0, []Stream{})

	assert.Equal(t, []int{0}, rec.calls())
	assert.Zero(t, term.Pending())
	select {
	case <-term.Done():
	default:
		t.Fatal("termination not done after synchronous exit")
	}
}

func TestTerminateAllDrainedExitsSynchronously(t *testing.T) {
	rec := &exitRecorder{}
	c := New(WithExitFunc(rec.exit))
	a, b := &fakeStream{}, &fakeStream{}

	c.Terminate(123, []Stream{a, b})

	assert.Equal(t, []int{123}, rec.calls())
	assert.True(t, a.suppressed)
	assert.True(t, b.suppressed)
}

func TestTerminateWaitsForPendingStream(t *testing.T) {
	rec := &exitRecorder{}
	c := New(WithExitFunc(rec.exit))
	s := &fakeStream{pending: 42}

	term := c.Terminate(7, []Stream{s})
	assert.Empty(t, rec.calls(), "exited before the stream drained")
	assert.Equal(t, 1, term.Pending())
	assert.Equal(t, 7, term.Status())

	go s.drain()

	select {
	case <-term.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("termination did not complete after drain")
	}
	assert.Equal(t, []int{7}, rec.calls())
}

func TestTerminateWaitsForEveryStream(t *testing.T) {
	rec := &exitRecorder{}
	c := New(WithExitFunc(rec.exit))
	a := &fakeStream{pending: 1}
	b := &fakeStream{}
	d := &fakeStream{pending: 3}

	term := c.Terminate(1, []Stream{a, b, d})
	assert.Equal(t, 2, term.Pending())

	d.drain()
	assert.Empty(t, rec.calls())
	assert.Equal(t, 1, term.Pending())

	a.drain()
	assert.Equal(t, []int{1}, rec.calls())
}

func TestTerminateSuppressesBeforeQuerying(t *testing.T) {
	var order []string
	a := &fakeStream{name: "a", order: &order}
	b := &fakeStream{name: "b", order: &order}
	c := New(WithExitFunc(func(int) {}))

	c.Terminate(0, []Stream{a, b})

	require.GreaterOrEqual(t, len(order), 4)
	assert.Equal(t, []string{"suppress:a", "suppress:b"}, order[:2])
	for _, op := range order[2:] {
		assert.Contains(t, op, "buffered:")
	}
}

func TestTerminateExitsOnceUnderConcurrentDrains(t *testing.T) {
	for i := 0; i < 50; i++ {
		rec := &exitRecorder{}
		c := New(WithExitFunc(rec.exit))
		streams := make([]*fakeStream, 8)
		handles := make([]Stream, 8)
		for j := range streams {
			streams[j] = &fakeStream{pending: j + 1}
			handles[j] = streams[j]
		}

		term := c.Terminate(3, handles)

		var wg sync.WaitGroup
		for _, s := range streams {
			wg.Add(1)
			go func(s *fakeStream) {
				defer wg.Done()
				s.drain()
			}(s)
		}
		wg.Wait()

		<-term.Done()
		require.Equal(t, []int{3}, rec.calls())
	}
}

func TestTerminatePassesStatusThrough(t *testing.T) {
	for _, status := range []int{0, 1, 123, 255, 256, 1024, -1} {
		rec := &exitRecorder{}
		New(WithExitFunc(rec.exit)).Terminate(status, nil)
		assert.Equal(t, []int{status}, rec.calls())
	}
}

func TestBeforeExitHooksRunAfterDrain(t *testing.T) {
	var events []string
	var mu sync.Mutex
	record := func(e string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}
	s := &fakeStream{pending: 5}
	c := New(
		WithExitFunc(func(code int) { record("exit") }),
		WithBeforeExit(func(status int) { record("hook") }),
	)

	c.Terminate(0, []Stream{s})
	mu.Lock()
	assert.Empty(t, events)
	mu.Unlock()

	s.drain()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"hook", "exit"}, events)
}

func TestTerminateDefaultUsesConfiguredStreams(t *testing.T) {
	rec := &exitRecorder{}
	out, errOut := &fakeStream{}, &fakeStream{pending: 2}
	c := New(
		WithExitFunc(rec.exit),
		WithDefaultStreams(func() []Stream { return []Stream{out, errOut} }),
	)

	c.TerminateDefault(9)
	assert.True(t, out.suppressed)
	assert.True(t, errOut.suppressed)
	assert.Empty(t, rec.calls())

	errOut.drain()
	assert.Equal(t, []int{9}, rec.calls())
}

// gatedWriter holds every write until released so the stream keeps pending
// bytes for a while.
type gatedWriter struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	release chan struct{}
}

func (g *gatedWriter) Write(p []byte) (int, error) {
	<-g.release
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.buf.Write(p)
}

func (g *gatedWriter) String() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.buf.String()
}

func TestTerminateWithStreamWriters(t *testing.T) {
	outDst := &gatedWriter{release: make(chan struct{})}
	errDst := &gatedWriter{release: make(chan struct{})}
	out := stream.New(outDst, stream.WithName("stdout"))
	errOut := stream.New(errDst, stream.WithName("stderr"))

	for i := 0; i < 100; i++ {
		_, _ = out.WriteString("[stdout] testing\n")
		_, _ = errOut.WriteString("[stderr] testing\n")
	}

	rec := &exitRecorder{}
	term := New(WithExitFunc(rec.exit)).Terminate(0, []Stream{out, errOut})

	_, _ = out.WriteString("this should not display\n")
	_, _ = errOut.WriteString("this should not display\n")
	assert.Empty(t, rec.calls())

	close(errDst.release)
	close(outDst.release)

	select {
	case <-term.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("termination did not complete")
	}
	assert.Equal(t, []int{0}, rec.calls())
	assert.Equal(t, 100, bytes.Count([]byte(outDst.String()), []byte("[stdout] testing\n")))
	assert.Equal(t, 100, bytes.Count([]byte(errDst.String()), []byte("[stderr] testing\n")))
	assert.NotContains(t, outDst.String(), "should not display")
	assert.NotContains(t, errDst.String(), "should not display")
}

// flushOnly buffers writes until Flush, which waits for release.
type flushOnly struct {
	mu      sync.Mutex
	held    bytes.Buffer
	out     bytes.Buffer
	release chan struct{}
}

func (f *flushOnly) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.held.Write(p)
}

func (f *flushOnly) Flush() error {
	<-f.release
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.held.WriteTo(&f.out)
	return err
}

func (f *flushOnly) flushed() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.String()
}

func TestTerminateWaitsForDestinationFlush(t *testing.T) {
	dst := &flushOnly{release: make(chan struct{})}
	out := stream.New(dst, stream.WithName("stdout"))
	_, _ = out.WriteString("[stdout] testing 0\n")

	// Give the flusher time to hand the chunk to the destination and block
	// in Flush.
	time.Sleep(20 * time.Millisecond)
	require.Positive(t, out.Buffered())

	rec := &exitRecorder{}
	term := New(WithExitFunc(rec.exit)).Terminate(0, []Stream{out})
	assert.Empty(t, rec.calls(), "exit before destination Flush completed")

	close(dst.release)
	select {
	case <-term.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("termination did not complete")
	}
	assert.Equal(t, []int{0}, rec.calls())
	assert.Equal(t, "[stdout] testing 0\n", dst.flushed())
}
