// Package report renders capture analysis into a shareable HTML page and a
// set of PNG plots.
package report

import (
	"time"

	"github.com/hwsec-lab/sramlab/internal/puf"
	"github.com/hwsec-lab/sramlab/internal/randtest"
)

// Data aggregates everything a report renders. Fields left zero are omitted
// from the output, so a TRNG capture without PUF metrics still renders.
type Data struct {
	Title     string
	Generated time.Time

	Battery   []randtest.Result
	ByteStats *randtest.ByteStats

	// Histogram counts occurrences of each byte value across the readouts.
	Histogram [256]int

	Metrics  *puf.DeviceMetrics
	Aliasing []float64

	// RoundUniformity is the fractional Hamming weight of each round's
	// readout in capture order.
	RoundUniformity []float64
}

// New builds a Data skeleton with the title and timestamp filled in.
func New(title string) *Data {
	return &Data{Title: title, Generated: time.Now()}
}

// AddBytes folds a readout into the byte histogram.
func (d *Data) AddBytes(readout []byte) {
	for _, b := range readout {
		d.Histogram[b]++
	}
}

func (d *Data) histogramTotal() int {
	total := 0
	for _, c := range d.Histogram {
		total += c
	}
	return total
}
