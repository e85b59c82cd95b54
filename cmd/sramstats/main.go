// sramstats analyses SRAM readouts offline: it runs the statistical battery
// and PUF metrics over readout files or a recorded capture session, and can
// render the HTML/PNG report and drive the external NIST suite.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hwsec-lab/sramlab/db"
	"github.com/hwsec-lab/sramlab/internal/analysis"
	"github.com/hwsec-lab/sramlab/internal/randtest"
	"github.com/hwsec-lab/sramlab/internal/report"
	"github.com/hwsec-lab/sramlab/internal/sts"
)

var (
	sessionID  = flag.String("session", "", "Analyse a recorded session instead of files")
	compareIDs = flag.String("compare", "", "Comma-separated session IDs for an inter-device uniqueness study")
	dbPath     = flag.String("db", "sramlab.db", "Path to the sqlite database (with --session or --compare)")
	title      = flag.String("title", "", "Report title (defaults to the session label or first file)")
	htmlPath   = flag.String("html", "", "Write the HTML report to this file")
	plotsDir   = flag.String("plots", "", "Write PNG plots into this directory")
	asciiMode  = flag.Bool("ascii", false, "Treat input files as ASCII '0'/'1' streams (battery only)")
	stsDir     = flag.String("sts", "", "Also run the external NIST suite installed under this directory")
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`sramstats - offline analysis of SRAM readouts

Usage:
  sramstats [flags] <readout.bin>...
  sramstats --session <id> --db sramlab.db [flags]
  sramstats --compare <id1>,<id2>[,...] --db sramlab.db

Flags:
  --session <id>   Analyse the readouts of a recorded capture session
  --compare <ids>  Uniqueness study across two or more sessions (one per board)
  --db <path>      Database holding the sessions (default: sramlab.db)
  --title <text>   Report title
  --html <file>    Write the HTML report
  --plots <dir>    Write PNG plots
  --ascii          Inputs are ASCII '0'/'1' streams (battery only)
  --sts <dir>      Also run the external NIST STS from this directory`)
}

func run() error {
	paths := flag.Args()
	name := *title

	if *compareIDs != "" {
		if *sessionID != "" || len(paths) > 0 {
			return fmt.Errorf("--compare is mutually exclusive with --session and file arguments")
		}
		return runCompare(*dbPath, *compareIDs)
	}

	if *sessionID != "" {
		if len(paths) > 0 {
			return fmt.Errorf("--session and file arguments are mutually exclusive")
		}
		var err error
		paths, name, err = sessionInputs(*dbPath, *sessionID, name)
		if err != nil {
			return err
		}
	}
	if len(paths) == 0 {
		printUsage()
		return fmt.Errorf("no readouts to analyse")
	}
	if name == "" {
		name = filepath.Base(paths[0])
	}

	if *asciiMode {
		return runASCII(paths)
	}

	res, err := analysis.Session(nil, name, paths)
	if err != nil {
		return err
	}
	fmt.Print(formatSummary(res))

	if *htmlPath != "" {
		f, err := os.Create(*htmlPath)
		if err != nil {
			return fmt.Errorf("failed to create HTML report: %w", err)
		}
		defer f.Close()
		if err := report.WriteHTML(f, res.Report); err != nil {
			return fmt.Errorf("failed to render HTML report: %w", err)
		}
		fmt.Printf("wrote %s\n", *htmlPath)
	}

	if *plotsDir != "" {
		files, err := report.SavePlots(*plotsDir, res.Report)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Printf("wrote %s\n", f)
		}
	}

	if *stsDir != "" {
		return runSTS(*stsDir, paths)
	}
	return nil
}

// sessionInputs resolves a session's readout paths from the database.
func sessionInputs(dbFile, id, name string) ([]string, string, error) {
	database, err := db.OpenDB(dbFile)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	session, err := database.GetSession(id)
	if err != nil {
		return nil, "", err
	}
	readouts, err := database.ListReadouts(id)
	if err != nil {
		return nil, "", err
	}
	if len(readouts) == 0 {
		return nil, "", fmt.Errorf("session %s has no readouts", id)
	}

	paths := make([]string, len(readouts))
	for i, r := range readouts {
		paths[i] = r.Path
	}
	if name == "" {
		name = session.Label
	}
	return paths, name, nil
}

// runCompare runs the uniqueness study across the recorded sessions, one
// session per board.
func runCompare(dbFile, ids string) error {
	sessionIDs := strings.Split(ids, ",")
	if len(sessionIDs) < 2 {
		return fmt.Errorf("--compare needs at least two comma-separated session IDs")
	}

	database, err := db.OpenDB(dbFile)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	devices := make([]analysis.Device, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		id = strings.TrimSpace(id)
		session, err := database.GetSession(id)
		if err != nil {
			return err
		}
		readouts, err := database.ListReadouts(id)
		if err != nil {
			return err
		}
		if len(readouts) == 0 {
			return fmt.Errorf("session %s has no readouts", id)
		}

		paths := make([]string, len(readouts))
		for i, r := range readouts {
			paths[i] = r.Path
		}
		label := session.DeviceLabel
		if label == "" {
			label = session.Label
		}
		if label == "" {
			label = id
		}
		devices = append(devices, analysis.Device{Label: label, Paths: paths})
	}

	comparison, err := analysis.Compare(nil, devices)
	if err != nil {
		return err
	}
	fmt.Print(formatComparison(comparison))
	return nil
}

// runASCII runs only the battery over ASCII bitstream files.
func runASCII(paths []string) error {
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		bits, err := randtest.FromASCII(data)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}

		fmt.Printf("%s (%d bits)\n", p, len(bits))
		for _, r := range randtest.RunAll(bits) {
			fmt.Print(formatResult(r))
		}
	}
	return nil
}

// runSTS installs (if needed) and drives the external NIST suite over the
// concatenation of the readouts, then prints its final report.
func runSTS(dir string, paths []string) error {
	var combined []byte
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		combined = append(combined, data...)
	}

	tmp, err := os.CreateTemp("", "sramstats-*.bin")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(combined); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write suite input: %w", err)
	}
	tmp.Close()

	suite := sts.NewSuite(dir, nil, nil)
	if err := suite.Install(); err != nil {
		return err
	}
	if err := suite.Assess(len(combined)*8, sts.DefaultConfig(tmp.Name())); err != nil {
		return err
	}

	entries, err := suite.Report()
	if err != nil {
		return err
	}
	fmt.Print(sts.Summary(entries))
	return nil
}

func formatResult(r randtest.Result) string {
	status := "PASS"
	if !r.Passed {
		status = "FAIL"
	}
	line := fmt.Sprintf("  %-28s p=%.6f  %s", r.Name, r.P, status)
	if r.Detail != "" {
		line += "  (" + r.Detail + ")"
	}
	return line + "\n"
}

func formatSummary(res *analysis.Result) string {
	var b strings.Builder

	b.WriteString("battery:\n")
	for _, r := range res.Battery {
		b.WriteString(formatResult(r))
	}

	s := res.ByteStats
	fmt.Fprintf(&b, "bytes: n=%d entropy=%.4f bits/byte chi2_p=%.6f mean=%.2f ones=%.4f\n",
		s.Bytes, s.Entropy, s.ChiSquareP, s.Mean, s.OnesFrac)

	if res.Metrics != nil {
		m := res.Metrics
		fmt.Fprintf(&b, "puf: rounds=%d bits=%d uniformity=%.4f±%.4f intra=%.4f (max %.4f) stable=%.4f\n",
			m.Rounds, m.Bits, m.MeanUniformity, m.StdDevUniformity,
			m.MeanIntraDistance, m.MaxIntraDistance, m.StableBitFraction)
	}
	return b.String()
}

func formatComparison(c *analysis.Comparison) string {
	var b strings.Builder
	for _, d := range c.Devices {
		m := d.Metrics
		fmt.Fprintf(&b, "  %-20s rounds=%d uniformity=%.4f intra=%.4f stable=%.4f\n",
			d.Label, m.Rounds, m.MeanUniformity, m.MeanIntraDistance, m.StableBitFraction)
	}
	fmt.Fprintf(&b, "uniqueness=%.4f across %d devices (ideal 0.5)\n", c.Uniqueness, len(c.Devices))
	return b.String()
}
