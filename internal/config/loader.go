package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads a harness suite from the provided path.
func Load(path string) (*Suite, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve suite path: %w", err)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open suite file: %w", err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	var doc Suite
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}
	doc.Dir = filepath.Dir(absPath)

	for _, sc := range doc.Scenarios {
		if sc == nil || sc.Fixture == "" {
			continue
		}
		sc.Fixture = resolvePath(doc.Dir, os.ExpandEnv(sc.Fixture))
	}

	if err := doc.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return &doc, nil
}

func resolvePath(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(base, path))
}

// Default returns the built-in suite: every line count crossed with every
// mode combination, piped through filter, plus exit status passthrough
// checks without a pipe. A nil filter means "grep std".
func Default(filter []string) *Suite {
	suite := &Suite{Version: "1"}
	suite.Defaults.Filter = append([]string(nil), filter...)
	modeSets := [][]string{
		{ModeStdout, ModeStderr},
		{ModeStdout},
		{ModeStderr},
	}
	for _, count := range []int{10, 100, 1000} {
		for _, modes := range modeSets {
			suite.Scenarios = append(suite.Scenarios, &Scenario{
				Count: count,
				Modes: append([]string(nil), modes...),
				Pipe:  true,
			})
		}
	}
	for _, status := range []int{0, 1, 123} {
		suite.Scenarios = append(suite.Scenarios, &Scenario{
			Status: status,
			Count:  10,
			Modes:  []string{ModeStdout, ModeStderr},
		})
	}
	if err := suite.ApplyDefaults(); err != nil {
		panic(fmt.Sprintf("config: default suite: %v", err))
	}
	return suite
}
