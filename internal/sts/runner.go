package sts

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/hwsec-lab/sramlab/internal/execx"
	"github.com/hwsec-lab/sramlab/internal/fsutil"
	"github.com/hwsec-lab/sramlab/internal/monitoring"
)

// DefaultURL is where NIST publishes the suite.
const DefaultURL = "https://csrc.nist.gov/CSRC/media/Projects/Random-Bit-Generation/documents/sts-2_1_2.zip"

// sourceDir is the directory layout inside the NIST zip.
const sourceDir = "sts-2.1.2/sts-2.1.2"

// Suite manages a local checkout of the NIST STS.
type Suite struct {
	Dir     string // root directory holding the unpacked suite
	URL     string
	builder execx.Builder
	fs      fsutil.FileSystem
}

// NewSuite returns a Suite rooted at dir. Nil builder/fs select the real
// implementations.
func NewSuite(dir string, builder execx.Builder, fs fsutil.FileSystem) *Suite {
	if builder == nil {
		builder = execx.NewRealBuilder()
	}
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	return &Suite{Dir: dir, URL: DefaultURL, builder: builder, fs: fs}
}

// AssessPath returns the path of the built assess binary.
func (s *Suite) AssessPath() string {
	return filepath.Join(s.Dir, sourceDir, "assess")
}

// Install fetches, unpacks, and builds the suite if the assess binary is not
// already present. Each step is an external tool invocation; the first
// failure aborts.
func (s *Suite) Install() error {
	if s.fs.Exists(s.AssessPath()) {
		monitoring.Logf("sts: assess already built at %s", s.AssessPath())
		return nil
	}

	if err := s.fs.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create suite directory: %w", err)
	}

	archive := filepath.Join(s.Dir, "sts.zip")
	steps := []struct {
		name string
		args []string
	}{
		{"curl", []string{"-fsSL", "-o", archive, s.URL}},
		{"unzip", []string{"-q", "-o", archive, "-d", s.Dir}},
		{"make", []string{"-C", filepath.Join(s.Dir, sourceDir), "-f", "makefile"}},
	}
	for _, step := range steps {
		monitoring.Logf("sts: running %s %v", step.name, step.args)
		cmd := s.builder.Command(step.name, step.args...)
		if out, err := cmd.Run(); err != nil {
			return fmt.Errorf("%s failed: %w: %s", step.name, err, out)
		}
	}
	return nil
}

// Assess runs the suite over the configured data file with streams of
// bitLength bits each. The suite writes its results under
// experiments/AlgorithmTesting inside the checkout; exit status propagates.
func (s *Suite) Assess(bitLength int, cfg Config) error {
	if bitLength <= 0 {
		return fmt.Errorf("bit length must be positive, got %d", bitLength)
	}
	answers, err := cfg.Render()
	if err != nil {
		return err
	}

	cmd := s.builder.Command(s.AssessPath(), strconv.Itoa(bitLength))
	cmd.SetDir(filepath.Join(s.Dir, sourceDir))
	cmd.SetStdin([]byte(answers))

	out, err := cmd.Run()
	if err != nil {
		return fmt.Errorf("assess failed with exit code %d: %w: %s", execx.ExitCode(err), err, out)
	}
	return nil
}

// ReportPath returns where assess leaves its summary report.
func (s *Suite) ReportPath() string {
	return filepath.Join(s.Dir, sourceDir, "experiments", "AlgorithmTesting", "finalAnalysisReport.txt")
}

// Report parses the suite's final analysis report.
func (s *Suite) Report() ([]ReportEntry, error) {
	data, err := s.fs.ReadFile(s.ReportPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read final report (did assess run?): %w", err)
	}
	return ParseReport(data)
}
