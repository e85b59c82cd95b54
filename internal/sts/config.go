// Package sts integrates the NIST SP 800-22 Statistical Test Suite: writing
// its answer file, fetching and building the suite, driving the assess
// binary, and parsing its final report. The suite itself is consumed as a
// black box.
package sts

import (
	"fmt"
	"strings"
)

// Config holds the six answers the assess binary asks for on stdin, in
// prompt order.
type Config struct {
	InputMode     int    // 0 selects "Input File" as the generator
	DataFile      string // path to the data file under test
	TestSelection string // "1" applies every statistical test
	ParamMode     int    // 0 accepts the default test parameters
	Streams       int    // number of bitstreams to carve from the file
	BinaryFormat  bool   // true: packed binary file; false: ASCII '0'/'1'
}

// DefaultConfig returns the configuration used for readout files: all tests,
// default parameters, one binary stream.
func DefaultConfig(dataFile string) Config {
	return Config{
		InputMode:     0,
		DataFile:      dataFile,
		TestSelection: "1",
		ParamMode:     0,
		Streams:       1,
		BinaryFormat:  true,
	}
}

// Render produces the six newline-separated fields consumed by assess.
func (c Config) Render() (string, error) {
	if c.DataFile == "" {
		return "", fmt.Errorf("data file is required")
	}
	if strings.ContainsRune(c.DataFile, '\n') {
		return "", fmt.Errorf("data file path must not contain newlines")
	}
	if c.TestSelection == "" {
		return "", fmt.Errorf("test selection is required")
	}
	if c.Streams < 1 {
		return "", fmt.Errorf("stream count must be at least 1, got %d", c.Streams)
	}

	format := 0
	if c.BinaryFormat {
		format = 1
	}
	return fmt.Sprintf("%d\n%s\n%s\n%d\n%d\n%d\n",
		c.InputMode, c.DataFile, c.TestSelection, c.ParamMode, c.Streams, format), nil
}
