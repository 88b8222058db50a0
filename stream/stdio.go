package stream

import (
	"os"
	"sync"
)

var (
	stdoutOnce sync.Once
	stdout     *Writer
	stderrOnce sync.Once
	stderr     *Writer
)

// Stdout returns the process-wide asynchronous writer over os.Stdout.
func Stdout() *Writer {
	stdoutOnce.Do(func() {
		stdout = New(os.Stdout, WithName("stdout"), WithSync())
	})
	return stdout
}

// Stderr returns the process-wide asynchronous writer over os.Stderr.
func Stderr() *Writer {
	stderrOnce.Do(func() {
		stderr = New(os.Stderr, WithName("stderr"), WithSync())
	})
	return stderr
}
