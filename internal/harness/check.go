package harness

import (
	"fmt"
	"os"
	"regexp"
	goruntime "runtime"
	"sort"
	"strings"

	"github.com/Paintersrp/drainexit/internal/config"
	"github.com/Paintersrp/drainexit/internal/producer"
	"github.com/Paintersrp/drainexit/internal/runtime/process"
)

var lineEndings = regexp.MustCompile(`\r?\n`)

// NormalizeLineEndings turns CRLF into LF.
func NormalizeLineEndings(s string) string {
	return lineEndings.ReplaceAllString(s, "\n")
}

// Expected returns the lines a scenario's producer writes before requesting
// termination. Relative order between the two streams is not guaranteed, so
// callers compare it as a multiset.
func Expected(sc *config.Scenario) []string {
	var lines []string
	for i := 0; i < sc.Count; i++ {
		if sc.HasMode(config.ModeStdout) {
			lines = append(lines, producer.Line(producer.ModeStdout, i))
		}
		if sc.HasMode(config.ModeStderr) {
			lines = append(lines, producer.Line(producer.ModeStderr, i))
		}
	}
	return lines
}

// ExpectedExitCode is what the host reports for status. Unix keeps the low
// eight bits only.
func ExpectedExitCode(status int) int {
	if goruntime.GOOS == "windows" {
		return int(uint32(status))
	}
	return status & 0xff
}

// Check compares a captured run against the scenario and records failures
// on res. It only returns an error when a fixture cannot be read.
func Check(sc *config.Scenario, out *process.Result, res *Result) error {
	res.WantExitCode = ExpectedExitCode(sc.Status)
	if out.ExitCode != res.WantExitCode {
		res.fail("exit code %d, want %d", out.ExitCode, res.WantExitCode)
	}

	texts := out.Texts()
	for _, text := range texts {
		if strings.Contains(text, "fail") || strings.Contains(text, "should not display") {
			res.fail("output written after termination was displayed: %q", text)
			break
		}
	}

	if sc.Fixture != "" {
		data, err := os.ReadFile(sc.Fixture)
		if err != nil {
			return fmt.Errorf("read fixture: %w", err)
		}
		want := NormalizeLineEndings(string(data))
		got := joinLines(texts)
		res.WantLines = strings.Count(want, "\n")
		// Lines may interleave differently between runs, so only the
		// length is compared.
		if len(got) != len(want) && !sc.Broken {
			res.fail("output length %d, fixture %s has %d", len(got), sc.Fixture, len(want))
		}
		return nil
	}

	want := Expected(sc)
	res.WantLines = len(want)
	if sc.Broken {
		if len(texts) > len(want) {
			res.fail("captured %d lines, producer only wrote %d", len(texts), len(want))
		}
		return nil
	}
	if missing, extra := diffLines(want, texts); len(missing) > 0 || len(extra) > 0 {
		res.fail("captured %d lines, want %d (%d missing, %d unexpected)%s",
			len(texts), len(want), len(missing), len(extra), sample(missing, extra))
	}
	return nil
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// diffLines compares two line multisets.
func diffLines(want, got []string) (missing, extra []string) {
	counts := make(map[string]int, len(want))
	for _, line := range want {
		counts[line]++
	}
	for _, line := range got {
		if counts[line] > 0 {
			counts[line]--
			continue
		}
		extra = append(extra, line)
	}
	for line, n := range counts {
		for ; n > 0; n-- {
			missing = append(missing, line)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return missing, extra
}

func sample(missing, extra []string) string {
	var b strings.Builder
	if len(missing) > 0 {
		fmt.Fprintf(&b, "; first missing %q", missing[0])
	}
	if len(extra) > 0 {
		fmt.Fprintf(&b, "; first unexpected %q", extra[0])
	}
	return b.String()
}
