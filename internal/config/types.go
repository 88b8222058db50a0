package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration wraps time.Duration for YAML unmarshalling.
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// Producer output modes.
const (
	ModeStdout = "stdout"
	ModeStderr = "stderr"
)

const (
	defaultTimeout  = 60 * time.Second
	defaultParallel = 4
	defaultPattern  = "std"
)

// Suite mirrors the harness suite document.
type Suite struct {
	Version   string      `yaml:"version"`
	Parallel  int         `yaml:"parallel"`
	Defaults  Defaults    `yaml:"defaults"`
	Scenarios []*Scenario `yaml:"scenarios"`

	// Dir is the directory fixture paths are resolved against.
	Dir string `yaml:"-"`
}

// Defaults apply to every scenario that leaves the field unset.
type Defaults struct {
	Timeout       Duration `yaml:"timeout"`
	Filter        []string `yaml:"filter"`
	ConsumerDelay Duration `yaml:"consumerDelay"`
	ProducerDelay Duration `yaml:"producerDelay"`
}

// Scenario is one producer run and the checks made against it.
type Scenario struct {
	Name   string   `yaml:"name"`
	Status int      `yaml:"status"`
	Count  int      `yaml:"count"`
	Modes  []string `yaml:"modes"`
	// Pipe routes the merged output through Filter.
	Pipe          bool     `yaml:"pipe"`
	Filter        []string `yaml:"filter"`
	Timeout       Duration `yaml:"timeout"`
	ConsumerDelay Duration `yaml:"consumerDelay"`
	ProducerDelay Duration `yaml:"producerDelay"`
	// Fixture is a file whose normalised length the output must match.
	Fixture string `yaml:"fixture"`
	// Broken runs the producer that exits without draining. Truncation is
	// tolerated; exit status and suppression are still checked.
	Broken bool `yaml:"broken"`
}

// HasMode reports whether the scenario writes to the named stream.
func (s *Scenario) HasMode(mode string) bool {
	for _, m := range s.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// ApplyDefaults fills unset scenario fields from the suite defaults.
func (s *Suite) ApplyDefaults() error {
	if s.Parallel <= 0 {
		s.Parallel = defaultParallel
	}
	if !s.Defaults.Timeout.IsSet() {
		s.Defaults.Timeout = Duration{Duration: defaultTimeout}
	}
	if len(s.Defaults.Filter) == 0 {
		s.Defaults.Filter = []string{"grep", defaultPattern}
	}
	for i, sc := range s.Scenarios {
		if sc == nil {
			return fmt.Errorf("%s: scenario entry is null", scenarioField(i))
		}
		sc.Name = strings.TrimSpace(sc.Name)
		if sc.Name == "" {
			sc.Name = defaultName(sc)
		}
		for j, mode := range sc.Modes {
			sc.Modes[j] = strings.ToLower(strings.TrimSpace(mode))
		}
		if !sc.Timeout.IsSet() {
			sc.Timeout = s.Defaults.Timeout
		}
		if sc.Pipe && len(sc.Filter) == 0 {
			sc.Filter = append([]string(nil), s.Defaults.Filter...)
		}
		if !sc.ConsumerDelay.IsSet() {
			sc.ConsumerDelay = s.Defaults.ConsumerDelay
		}
		if !sc.ProducerDelay.IsSet() {
			sc.ProducerDelay = s.Defaults.ProducerDelay
		}
	}
	return nil
}

// Validate enforces suite invariants.
func (s *Suite) Validate() error {
	if s.Version == "" {
		return fmt.Errorf("%s: is required", fieldPath("version"))
	}
	if len(s.Scenarios) == 0 {
		return fmt.Errorf("%s: must define at least one scenario", fieldPath("scenarios"))
	}
	if s.Defaults.Timeout.Duration < 0 {
		return fmt.Errorf("%s: must be non-negative", fieldPath("defaults", "timeout"))
	}
	seen := make(map[string]int, len(s.Scenarios))
	for i, sc := range s.Scenarios {
		if sc == nil {
			return fmt.Errorf("%s: scenario entry is null", scenarioField(i))
		}
		if prev, ok := seen[sc.Name]; ok {
			return fmt.Errorf("%s: duplicate scenario name %q (also scenarios[%d])", scenarioField(i, "name"), sc.Name, prev)
		}
		seen[sc.Name] = i
		if sc.Count < 0 {
			return fmt.Errorf("%s: must be non-negative", scenarioField(i, "count"))
		}
		for j, mode := range sc.Modes {
			if mode != ModeStdout && mode != ModeStderr {
				return fmt.Errorf("%s: unsupported mode %q (want stdout or stderr)", scenarioField(i, fmt.Sprintf("modes[%d]", j)), mode)
			}
		}
		if sc.Timeout.Duration <= 0 {
			return fmt.Errorf("%s: must be positive", scenarioField(i, "timeout"))
		}
		if sc.ConsumerDelay.Duration < 0 {
			return fmt.Errorf("%s: must be non-negative", scenarioField(i, "consumerDelay"))
		}
		if sc.ProducerDelay.Duration < 0 {
			return fmt.Errorf("%s: must be non-negative", scenarioField(i, "producerDelay"))
		}
		if !sc.Pipe && len(sc.Filter) > 0 {
			return fmt.Errorf("%s: requires pipe: true", scenarioField(i, "filter"))
		}
	}
	return nil
}

func defaultName(sc *Scenario) string {
	name := fmt.Sprintf("status-%d-count-%d", sc.Status, sc.Count)
	if len(sc.Modes) > 0 {
		name += "-" + strings.Join(sc.Modes, "-")
	}
	if sc.Pipe {
		name += "-piped"
	}
	if sc.Broken {
		name += "-broken"
	}
	return name
}

func fieldPath(parts ...string) string {
	return strings.Join(parts, ".")
}

func scenarioField(index int, parts ...string) string {
	pathParts := append([]string{fmt.Sprintf("scenarios[%d]", index)}, parts...)
	return fieldPath(pathParts...)
}
