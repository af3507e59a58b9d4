// Package chart renders dashboard charts as PNG images.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"kakeibo/internal/core"
)

// ErrNoData is returned when there is nothing to draw.
var ErrNoData = errors.New("no data to chart")

const (
	defaultWidth  = 800
	defaultHeight = 600
)

type Renderer struct {
	Width  int
	Height int
}

func NewRenderer() *Renderer {
	return &Renderer{Width: defaultWidth, Height: defaultHeight}
}

func color(hex string) drawing.Color {
	hex = strings.TrimPrefix(core.NormalizeColor(hex), "#")
	if hex == "" {
		hex = strings.TrimPrefix(core.UncategorizedColor, "#")
	}
	return drawing.ColorFromHex(hex)
}

func background() chart.Style {
	return chart.Style{
		Padding:   chart.Box{Top: 40, Left: 40, Right: 40, Bottom: 40},
		FillColor: chart.ColorWhite,
	}
}

// Pie draws one wedge per slice in the given order. Empty slices are skipped.
func (r *Renderer) Pie(title string, slices []core.PieSlice) ([]byte, error) {
	var total core.Money
	for _, s := range slices {
		total = total.Add(s.Amount)
	}
	if total.Cents <= 0 {
		return nil, ErrNoData
	}

	values := make([]chart.Value, 0, len(slices))
	for _, s := range slices {
		if s.Amount.Cents <= 0 {
			continue
		}
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s %s (%.1f%%)", s.Name, s.Amount, s.Amount.Float()/total.Float()*100),
			Value: s.Amount.Float(),
			Style: chart.Style{
				FillColor:   color(s.Color),
				StrokeColor: chart.ColorWhite,
				FontSize:    11,
				FontColor:   chart.ColorBlack,
			},
		})
	}

	pie := chart.PieChart{
		Title:      title,
		Width:      r.Width,
		Height:     r.Height,
		Values:     values,
		Background: background(),
	}
	buf := bytes.NewBuffer(nil)
	if err := pie.Render(chart.PNG, buf); err != nil {
		return nil, fmt.Errorf("render pie chart: %w", err)
	}
	return buf.Bytes(), nil
}

// Budgets draws one bar per budgeted category, its height the clamped usage
// percentage.
func (r *Renderer) Budgets(title string, statuses []core.BudgetStatus) ([]byte, error) {
	bars := make([]chart.Value, 0, len(statuses))
	for _, s := range statuses {
		if !s.HasBudget {
			continue
		}
		fill := color(s.Color)
		if s.IsOverBudget {
			fill = chart.ColorRed
		}
		bars = append(bars, chart.Value{
			Label: fmt.Sprintf("%s %d%%", s.CategoryName, s.UsagePercentage),
			Value: float64(s.UsagePercentageForGraph),
			Style: chart.Style{
				FillColor:   fill,
				StrokeColor: fill,
				FontSize:    11,
				FontColor:   chart.ColorBlack,
			},
		})
	}
	if len(bars) == 0 {
		return nil, ErrNoData
	}

	graph := chart.BarChart{
		Title:      title,
		Width:      r.Width,
		Height:     r.Height,
		BarWidth:   60,
		Background: background(),
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: 100},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%.0f%%", v.(float64))
			},
			Style: chart.Style{FontSize: 11, FontColor: chart.ColorBlack},
		},
		Bars: bars,
	}
	buf := bytes.NewBuffer(nil)
	if err := graph.Render(chart.PNG, buf); err != nil {
		return nil, fmt.Errorf("render budget chart: %w", err)
	}
	return buf.Bytes(), nil
}
