package report

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// aliasing scatter stays below this many points; larger maps are strided
const maxAliasingPoints = 8000

// WriteHTML renders the report as a single self-describing HTML page.
// Sections without data are omitted.
func WriteHTML(w io.Writer, d *Data) error {
	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)

	if len(d.Battery) > 0 {
		page.AddCharts(batteryChart(d))
	}
	if d.histogramTotal() > 0 {
		page.AddCharts(histogramChart(d))
	}
	if len(d.RoundUniformity) > 0 {
		page.AddCharts(uniformityChart(d))
	}
	if len(d.Aliasing) > 0 {
		page.AddCharts(aliasingChart(d))
	}

	return page.Render(w)
}

func batteryChart(d *Data) *charts.Bar {
	x := make([]string, 0, len(d.Battery))
	y := make([]opts.BarData, 0, len(d.Battery))
	for _, r := range d.Battery {
		x = append(x, r.Name)
		y = append(y, opts.BarData{Value: r.P})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Statistical test p-values", Subtitle: fmt.Sprintf("%s (pass threshold 0.01)", d.Title)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "p-value"}),
	)
	bar.SetXAxis(x).
		AddSeries("p-value", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// histogramChart groups the 256 byte values into 32 buckets so the axis
// stays readable. A uniform source fills every bucket equally.
func histogramChart(d *Data) *charts.Bar {
	const bucketWidth = 8
	x := make([]string, 0, 256/bucketWidth)
	y := make([]opts.BarData, 0, 256/bucketWidth)
	for lo := 0; lo < 256; lo += bucketWidth {
		count := 0
		for v := lo; v < lo+bucketWidth; v++ {
			count += d.Histogram[v]
		}
		x = append(x, fmt.Sprintf("%02x-%02x", lo, lo+bucketWidth-1))
		y = append(y, opts.BarData{Value: count})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "400px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Byte value distribution", Subtitle: fmt.Sprintf("%d bytes", d.histogramTotal())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).AddSeries("count", y)
	return bar
}

func uniformityChart(d *Data) *charts.Line {
	x := make([]string, 0, len(d.RoundUniformity))
	y := make([]opts.LineData, 0, len(d.RoundUniformity))
	for i, u := range d.RoundUniformity {
		x = append(x, fmt.Sprintf("%d", i))
		y = append(y, opts.LineData{Value: u})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "400px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Per-round uniformity", Subtitle: "fractional Hamming weight (0.5 is ideal)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "round"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1}),
	)
	line.SetXAxis(x).AddSeries("uniformity", y)
	return line
}

// aliasingChart renders the per-bit aliasing map as a colored scatter, one
// point per bit laid out 64 columns wide.
func aliasingChart(d *Data) *charts.Scatter {
	const cols = 64

	stride := 1
	if len(d.Aliasing) > maxAliasingPoints {
		stride = int(math.Ceil(float64(len(d.Aliasing)) / float64(maxAliasingPoints)))
	}

	data := make([]opts.ScatterData, 0, len(d.Aliasing)/stride+1)
	for i := 0; i < len(d.Aliasing); i += stride {
		data = append(data, opts.ScatterData{Value: []interface{}{i % cols, i / cols, d.Aliasing[i]}})
	}

	rows := (len(d.Aliasing) + cols - 1) / cols

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Bit aliasing", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Bit aliasing map", Subtitle: fmt.Sprintf("bits=%d stride=%d", len(d.Aliasing), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: cols, Name: "bit column"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: rows, Name: "bit row"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)

	scatter.AddSeries("aliasing", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	return scatter
}
