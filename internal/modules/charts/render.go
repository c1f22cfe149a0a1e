package charts

import (
	"errors"
	"fmt"
	"io"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Image size of every rendered chart.
const (
	Width  = 900
	Height = 500
)

// ErrNotEnoughData is returned when a chart has nothing meaningful to draw.
var ErrNotEnoughData = errors.New("not enough data to draw the chart")

func percentFormatter(v interface{}) string {
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%.1f%%", f*100)
	}
	return ""
}

// pointStyle renders dots only, no connecting line
func pointStyle(col drawing.Color, size float64) chart.Style {
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    size,
		DotColor:    col,
	}
}

func background() chart.Style {
	return chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}}
}

// RenderFrontier draws the efficient frontier, the individual assets and
// the selected portfolio as a PNG.
func RenderFrontier(w io.Writer, d *Dashboard) error {
	if len(d.Frontier) < 2 {
		return fmt.Errorf("frontier: %w", ErrNotEnoughData)
	}

	curve := chart.ContinuousSeries{
		Name:  "Efficient frontier",
		Style: chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 2},
	}
	for _, p := range d.Frontier {
		curve.XValues = append(curve.XValues, p.Volatility)
		curve.YValues = append(curve.YValues, p.Return)
	}

	assets := chart.ContinuousSeries{
		Name:  "Factors",
		Style: pointStyle(chart.ColorAlternateGray, 5),
	}
	labels := chart.AnnotationSeries{Name: "Factor labels"}
	for _, a := range d.Assets {
		assets.XValues = append(assets.XValues, a.Volatility)
		assets.YValues = append(assets.YValues, a.Return)
		labels.Annotations = append(labels.Annotations, chart.Value2{XValue: a.Volatility, YValue: a.Return, Label: a.Label})
	}

	selected := chart.ContinuousSeries{
		Name:    d.Selected.Label,
		Style:   pointStyle(chart.ColorRed, 8),
		XValues: []float64{d.Selected.Volatility},
		YValues: []float64{d.Selected.Return},
	}

	series := []chart.Series{curve, selected}
	if len(d.Assets) > 0 {
		series = []chart.Series{curve, assets, labels, selected}
	}

	graph := chart.Chart{
		Title:      "Efficient Frontier",
		Width:      Width,
		Height:     Height,
		Background: background(),
		XAxis:      chart.XAxis{Name: "Volatility", ValueFormatter: percentFormatter},
		YAxis:      chart.YAxis{Name: "Expected return", ValueFormatter: percentFormatter},
		Series:     series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render frontier chart: %w", err)
	}
	return nil
}

// RenderAllocation draws the weights as a pie. Zero weights are left out.
func RenderAllocation(w io.Writer, d *Dashboard) error {
	values := make([]chart.Value, 0, len(d.Allocation))
	for _, s := range d.Allocation {
		if s.Label == "" || s.Weight <= 0 {
			continue
		}
		values = append(values, chart.Value{
			Value: s.Weight,
			Label: fmt.Sprintf("%s %.1f%%", s.Label, s.Weight*100),
		})
	}
	if len(values) == 0 {
		return fmt.Errorf("allocation: %w", ErrNotEnoughData)
	}

	pie := chart.PieChart{
		Title:      d.Label,
		Width:      Height,
		Height:     Height,
		Background: background(),
		Values:     values,
	}
	if err := pie.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render allocation chart: %w", err)
	}
	return nil
}

// RenderDrawdown draws the drawdown series with a zero reference line.
func RenderDrawdown(w io.Writer, d *Dashboard) error {
	return renderTimeSeries(w, "Drawdown", d.Drawdown, true)
}

// RenderCumulative draws the growth of one unit invested.
func RenderCumulative(w io.Writer, d *Dashboard) error {
	return renderTimeSeries(w, "Cumulative Return", d.Cumulative, false)
}

func renderTimeSeries(w io.Writer, title string, data []ChartDataPoint, zeroLine bool) error {
	if len(data) < 2 {
		return fmt.Errorf("%s: %w", title, ErrNotEnoughData)
	}

	line := chart.TimeSeries{
		Name:  title,
		Style: chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 2},
	}
	for _, p := range data {
		t, err := time.Parse("2006-01-02", p.Time)
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", p.Time, err)
		}
		line.XValues = append(line.XValues, t)
		line.YValues = append(line.YValues, p.Value)
	}

	series := []chart.Series{line}
	yFormatter := chart.ValueFormatter(chart.FloatValueFormatter)
	if zeroLine {
		first, last := line.XValues[0], line.XValues[len(line.XValues)-1]
		series = append(series, chart.TimeSeries{
			Name:    "Zero",
			Style:   chart.Style{StrokeColor: chart.ColorBlack, StrokeWidth: 1, StrokeDashArray: []float64{4, 4}},
			XValues: []time.Time{first, last},
			YValues: []float64{0, 0},
		})
		yFormatter = percentFormatter
	}

	graph := chart.Chart{
		Title:      title,
		Width:      Width,
		Height:     Height,
		Background: background(),
		XAxis:      chart.XAxis{ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01")},
		YAxis:      chart.YAxis{ValueFormatter: yFormatter},
		Series:     series,
	}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render %s chart: %w", title, err)
	}
	return nil
}
