// Package analysis turns a session's readout files into statistical test
// results, PUF quality metrics, and report data. It is shared by the monitor
// API and the offline CLI.
package analysis

import (
	"fmt"

	"github.com/hwsec-lab/sramlab/db"
	"github.com/hwsec-lab/sramlab/internal/fsutil"
	"github.com/hwsec-lab/sramlab/internal/puf"
	"github.com/hwsec-lab/sramlab/internal/randtest"
	"github.com/hwsec-lab/sramlab/internal/report"
)

// Result holds everything computed from one session's readouts.
type Result struct {
	Battery   []randtest.Result  `json:"battery"`
	ByteStats randtest.ByteStats `json:"byte_stats"`

	// PUF metrics are only computed when at least two equal-length rounds
	// exist; nil otherwise.
	Metrics  *puf.DeviceMetrics `json:"metrics,omitempty"`
	Aliasing []float64          `json:"-"`

	RoundUniformity []float64 `json:"round_uniformity"`

	Report *report.Data `json:"-"`
}

// Session analyses a set of readouts captured from one device. The battery
// and byte statistics run over the concatenation of all rounds; PUF metrics
// compare the rounds against each other.
func Session(fs fsutil.FileSystem, title string, paths []string) (*Result, error) {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}

	readouts, err := loadReadouts(fs, paths)
	if err != nil {
		return nil, err
	}
	var combined []byte
	for _, r := range readouts {
		combined = append(combined, r...)
	}

	res := &Result{
		Battery:         randtest.RunAll(randtest.FromBytes(combined)),
		RoundUniformity: make([]float64, len(readouts)),
	}
	for i, r := range readouts {
		res.RoundUniformity[i] = puf.Uniformity(r)
	}

	stats, err := randtest.ComputeByteStats(combined)
	if err != nil {
		return nil, err
	}
	res.ByteStats = stats

	if len(readouts) >= 2 && equalLengths(readouts) {
		metrics, _, err := puf.Analyze(readouts)
		if err != nil {
			return nil, err
		}
		aliasing, err := puf.BitAliasing(readouts)
		if err != nil {
			return nil, err
		}
		res.Metrics = metrics
		res.Aliasing = aliasing
	}

	rep := report.New(title)
	rep.Battery = res.Battery
	rep.ByteStats = &res.ByteStats
	rep.Metrics = res.Metrics
	rep.Aliasing = res.Aliasing
	rep.RoundUniformity = res.RoundUniformity
	for _, r := range readouts {
		rep.AddBytes(r)
	}
	res.Report = rep

	return res, nil
}

func loadReadouts(fs fsutil.FileSystem, paths []string) ([][]byte, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no readouts to analyse")
	}
	readouts := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := fs.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read readout %s: %w", p, err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("readout %s is empty", p)
		}
		readouts = append(readouts, data)
	}
	return readouts, nil
}

// Device groups one device's readout files for an inter-device comparison.
type Device struct {
	Label string
	Paths []string
}

// DeviceSummary pairs a device label with its per-device metrics.
type DeviceSummary struct {
	Label   string             `json:"label"`
	Metrics *puf.DeviceMetrics `json:"metrics"`
}

// Comparison is the result of a uniqueness study across devices.
type Comparison struct {
	Devices []DeviceSummary `json:"devices"`

	// Uniqueness is the mean pairwise fractional Hamming distance between
	// the devices' majority-vote references. 0.5 for ideal PUFs.
	Uniqueness float64 `json:"uniqueness"`
}

// Compare runs a uniqueness study: each device's rounds collapse into a
// majority-vote reference, and the references are compared pairwise. All
// devices must have readouts of the same size.
func Compare(fs fsutil.FileSystem, devices []Device) (*Comparison, error) {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	if len(devices) < 2 {
		return nil, fmt.Errorf("uniqueness study needs at least two devices, got %d", len(devices))
	}

	comparison := &Comparison{Devices: make([]DeviceSummary, 0, len(devices))}
	references := make([][]byte, 0, len(devices))
	for _, dev := range devices {
		readouts, err := loadReadouts(fs, dev.Paths)
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", dev.Label, err)
		}
		metrics, ref, err := puf.Analyze(readouts)
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", dev.Label, err)
		}
		comparison.Devices = append(comparison.Devices, DeviceSummary{Label: dev.Label, Metrics: metrics})
		references = append(references, ref)
	}

	u, err := puf.Uniqueness(references)
	if err != nil {
		return nil, err
	}
	comparison.Uniqueness = u
	return comparison, nil
}

func equalLengths(readouts [][]byte) bool {
	for _, r := range readouts[1:] {
		if len(r) != len(readouts[0]) {
			return false
		}
	}
	return true
}

// Rows converts the analysis into storable result rows. Battery rows carry
// test p-values; metric rows carry the metric value in the p-value column
// and are informational (always passed).
func (r *Result) Rows(sessionID string) []*db.AnalysisResult {
	rows := make([]*db.AnalysisResult, 0, len(r.Battery)+8)
	for _, t := range r.Battery {
		rows = append(rows, &db.AnalysisResult{
			SessionID: sessionID,
			TestName:  t.Name,
			PValue:    t.P,
			Passed:    t.Passed,
			Detail:    t.Detail,
		})
	}

	rows = append(rows,
		&db.AnalysisResult{SessionID: sessionID, TestName: "bytes.entropy", PValue: r.ByteStats.Entropy, Passed: true},
		&db.AnalysisResult{SessionID: sessionID, TestName: "bytes.chi_square", PValue: r.ByteStats.ChiSquareP, Passed: r.ByteStats.ChiSquareP >= randtest.Alpha},
	)

	if r.Metrics != nil {
		m := r.Metrics
		rows = append(rows,
			&db.AnalysisResult{SessionID: sessionID, TestName: "puf.mean_uniformity", PValue: m.MeanUniformity, Passed: true},
			&db.AnalysisResult{SessionID: sessionID, TestName: "puf.mean_intra_distance", PValue: m.MeanIntraDistance, Passed: true},
			&db.AnalysisResult{SessionID: sessionID, TestName: "puf.max_intra_distance", PValue: m.MaxIntraDistance, Passed: true},
			&db.AnalysisResult{SessionID: sessionID, TestName: "puf.stable_bit_fraction", PValue: m.StableBitFraction, Passed: true},
		)
	}
	return rows
}
