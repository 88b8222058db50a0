package logmux

import (
	"strings"
	"sync"
)

// Source labels used on captured lines.
const (
	SourceStdout = "stdout"
	SourceStderr = "stderr"
	SourceFilter = "filter"
)

// Line is one line of captured output.
type Line struct {
	Text   string
	Source string
}

// Mux fans in lines from several sources into one channel. Unlike a log
// viewer it never drops a line: delivery blocks until the consumer reads,
// because the harness counts every line to detect truncation. Lines from one
// source keep their relative order; no order is imposed across sources.
type Mux struct {
	out chan Line

	mu     sync.Mutex
	counts map[string]int
	inputs sync.WaitGroup
}

// New constructs a mux backed by a channel of the provided size. A size of
// zero results in a minimally buffered channel.
func New(size int) *Mux {
	if size <= 0 {
		size = 1
	}
	return &Mux{
		out:    make(chan Line, size),
		counts: make(map[string]int),
	}
}

// Output exposes the muxed line channel.
func (m *Mux) Output() <-chan Line {
	return m.out
}

// Add registers a new source channel. The mux consumes lines until the
// source channel is closed.
func (m *Mux) Add(source <-chan Line) {
	if source == nil {
		return
	}
	m.inputs.Add(1)
	go func() {
		defer m.inputs.Done()
		for line := range source {
			line = normalize(line)
			m.mu.Lock()
			m.counts[line.Source]++
			m.mu.Unlock()
			m.out <- line
		}
	}()
}

// Close waits for all sources to be drained and closes the output channel.
func (m *Mux) Close() {
	m.inputs.Wait()
	close(m.out)
}

// Counts returns how many lines each source delivered so far.
func (m *Mux) Counts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	dup := make(map[string]int, len(m.counts))
	for k, v := range m.counts {
		dup[k] = v
	}
	return dup
}

func normalize(line Line) Line {
	line.Text = strings.TrimRight(line.Text, "\r")
	if line.Source == "" {
		line.Source = SourceStdout
	}
	return line
}
