// Package process runs producer programs as local child processes and
// captures everything they write.
//
// Each child is placed in its own process group on Unix so that cancelling
// the run (for example when a scenario times out because a stream never
// drained) kills the producer together with anything it spawned. On Windows
// only the direct child is killed.
//
// In piped mode the producer's stdout and stderr share one OS pipe that feeds
// a filter process, mirroring `producer 2>&1 | grep std`. The filter is the
// slow consumer whose pace the producer must survive without truncation.
package process
