package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/Paintersrp/drainexit/internal/harness"
)

// Output formats accepted by ResolveFormat.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// ResolveFormat turns "auto" into text for terminals and JSON otherwise.
func ResolveFormat(format string, out io.Writer) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatAuto:
		if file, ok := out.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
			return FormatText, nil
		}
		return FormatJSON, nil
	case FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want auto, text or json)", format)
	}
}

// ResultRecord is the JSON line emitted per scenario.
type ResultRecord struct {
	Timestamp    time.Time `json:"ts"`
	Scenario     string    `json:"scenario"`
	Level        string    `json:"level"`
	Passed       bool      `json:"passed"`
	ExitCode     int       `json:"exitCode"`
	WantExitCode int       `json:"wantExitCode"`
	Lines        int       `json:"lines"`
	WantLines    int       `json:"wantLines"`
	DurationMS   float64   `json:"durationMs"`
	Command      string    `json:"command"`
	Failures     []string  `json:"failures,omitempty"`
}

// NewResultRecord converts a harness result into a record.
func NewResultRecord(res harness.Result) ResultRecord {
	level := "info"
	if !res.Passed {
		level = "error"
	}
	return ResultRecord{
		Scenario:     res.Name,
		Level:        level,
		Passed:       res.Passed,
		ExitCode:     res.ExitCode,
		WantExitCode: res.WantExitCode,
		Lines:        res.Lines,
		WantLines:    res.WantLines,
		DurationMS:   float64(res.Duration) / float64(time.Millisecond),
		Command:      strings.Join(res.Command, " "),
		Failures:     res.Failures,
	}
}

// EncodeResult encodes a result as JSON, reporting encoder errors to stderr.
func EncodeResult(enc *json.Encoder, stderr io.Writer, res harness.Result) {
	if enc == nil {
		return
	}
	record := NewResultRecord(res)
	record.Timestamp = time.Now()
	if err := enc.Encode(&record); err != nil {
		fmt.Fprintf(stderr, "error: encode result: %v\n", err)
	}
}

// WriteTable renders results as an aligned table followed by a summary line.
func WriteTable(out io.Writer, results []harness.Result) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCENARIO\tRESULT\tEXIT\tLINES\tDURATION\tMESSAGE")
	passed := 0
	for _, res := range results {
		outcome := "FAIL"
		if res.Passed {
			outcome = "ok"
			passed++
		}
		message := "-"
		if len(res.Failures) > 0 {
			message = res.Failures[0]
			if extra := len(res.Failures) - 1; extra > 0 {
				message = fmt.Sprintf("%s (+%d more)", message, extra)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d/%d\t%s\t%s\n",
			res.Name, outcome,
			res.ExitCode, res.WantExitCode,
			res.Lines, res.WantLines,
			res.Duration.Round(time.Millisecond), message)
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d passed, %d failed\n", passed, len(results)-passed)
}
