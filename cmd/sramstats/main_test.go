package main

import (
	"strings"
	"testing"

	"github.com/hwsec-lab/sramlab/internal/analysis"
	"github.com/hwsec-lab/sramlab/internal/puf"
	"github.com/hwsec-lab/sramlab/internal/randtest"
)

func TestFormatResult(t *testing.T) {
	pass := formatResult(randtest.Result{Name: "frequency", P: 0.74, Passed: true})
	if !strings.Contains(pass, "frequency") || !strings.Contains(pass, "PASS") {
		t.Errorf("unexpected pass line: %q", pass)
	}

	fail := formatResult(randtest.Result{Name: "runs", Passed: false, Detail: "input too short"})
	if !strings.Contains(fail, "FAIL") || !strings.Contains(fail, "input too short") {
		t.Errorf("unexpected fail line: %q", fail)
	}
}

func TestFormatSummary(t *testing.T) {
	res := &analysis.Result{
		Battery: []randtest.Result{
			{Name: "frequency", P: 0.5, Passed: true},
		},
		ByteStats: randtest.ByteStats{Bytes: 1024, Entropy: 7.8, ChiSquareP: 0.2, Mean: 127.1, OnesFrac: 0.501},
		Metrics:   &puf.DeviceMetrics{Rounds: 3, Bits: 8192, MeanUniformity: 0.49, StableBitFraction: 0.97},
	}

	out := formatSummary(res)
	for _, want := range []string{"battery:", "frequency", "n=1024", "rounds=3", "stable=0.9700"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestFormatComparison(t *testing.T) {
	comparison := &analysis.Comparison{
		Devices: []analysis.DeviceSummary{
			{Label: "board-07", Metrics: &puf.DeviceMetrics{Rounds: 10, MeanUniformity: 0.49, MeanIntraDistance: 0.03, StableBitFraction: 0.95}},
			{Label: "board-12", Metrics: &puf.DeviceMetrics{Rounds: 10, MeanUniformity: 0.51, MeanIntraDistance: 0.02, StableBitFraction: 0.96}},
		},
		Uniqueness: 0.4932,
	}

	out := formatComparison(comparison)
	for _, want := range []string{"board-07", "board-12", "uniqueness=0.4932", "2 devices"} {
		if !strings.Contains(out, want) {
			t.Errorf("comparison missing %q:\n%s", want, out)
		}
	}
}

func TestFormatSummaryWithoutMetrics(t *testing.T) {
	res := &analysis.Result{
		Battery:   []randtest.Result{{Name: "frequency", P: 1, Passed: true}},
		ByteStats: randtest.ByteStats{Bytes: 16},
	}
	out := formatSummary(res)
	if strings.Contains(out, "puf:") {
		t.Errorf("single-round summary should omit PUF metrics:\n%s", out)
	}
}
