// Package report defines the result record of a simulation run and its text
// rendering.
package report

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"blackswan/internal/indicators"
	"blackswan/internal/simulation"
	"blackswan/internal/stats"
	"blackswan/pkg/tradingutils"
)

// Source labels for RunReport.Source
const (
	SourceInline = "inline"
)

// TailRisk holds downside measures of the total-return distribution.
// VaR and ES are positive fractions of the start price.
type TailRisk struct {
	VaR95            float64 `json:"var_95"`
	VaR99            float64 `json:"var_99"`
	ES95             float64 `json:"es_95"`
	ES99             float64 `json:"es_99"`
	LossThreshold    float64 `json:"loss_threshold"`
	LossProbability  float64 `json:"loss_probability"`
	NonPositivePaths int     `json:"nonpositive_paths"`
}

// RunReport is everything produced by one simulation run
type RunReport struct {
	ID           string                      `json:"id"`
	CreatedAt    time.Time                   `json:"created_at"`
	Symbol       string                      `json:"symbol"`
	Source       string                      `json:"source"`
	Observations int                         `json:"observations"`
	StartPrice   float64                     `json:"start_price"`
	NumPaths     int                         `json:"num_paths"`
	NumSteps     int                         `json:"num_steps"`
	Seed         uint64                      `json:"seed,omitempty"`
	FloorAtZero  bool                        `json:"floor_at_zero,omitempty"`
	Stats        simulation.ReturnStatistics `json:"return_stats"`
	Terminal     *stats.Summary              `json:"terminal"`
	Returns      *stats.Summary              `json:"returns"`
	Risk         TailRisk                    `json:"risk"`
	Indicators   *indicators.Summary         `json:"indicators,omitempty"`
	DurationMs   float64                     `json:"duration_ms"`
}

// Render writes a human readable report
func (r *RunReport) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	p := func(format string, args ...interface{}) {
		fmt.Fprintf(tw, format+"\n", args...)
	}

	p("Monte Carlo simulation\t%s", r.Symbol)
	if r.ID != "" {
		p("run\t%s", r.ID)
	}
	p("source\t%s (%d observations)", r.Source, r.Observations)
	p("start price\t%s", price(r.StartPrice))
	p("paths x steps\t%d x %d", r.NumPaths, r.NumSteps)
	p("period return\tmean %s  stddev %s", pct(r.Stats.Mean), pct(r.Stats.StdDev))
	p("")

	if r.Terminal != nil {
		t := r.Terminal
		p("Terminal price")
		p("  mean\t%s", price(t.Mean))
		p("  median\t%s", price(t.Median))
		p("  stddev\t%s", price(t.StdDev))
		p("  range\t[%s, %s]", price(t.Min), price(t.Max))
		if lo, hi, ok := band(t); ok {
			p("  95%% interval\t[%s, %s]", price(lo), price(hi))
		}
		p("  percentiles\t%s", percentileLine(t.Percentiles, price))
		p("")
	}

	if r.Returns != nil {
		p("Total return")
		p("  mean\t%s", pct(r.Returns.Mean))
		p("  stddev\t%s", pct(r.Returns.StdDev))
		p("  percentiles\t%s", percentileLine(r.Returns.Percentiles, pct))
		p("")
	}

	p("Tail risk")
	p("  VaR 95%%\t%s", pct(r.Risk.VaR95))
	p("  ES 95%%\t%s", pct(r.Risk.ES95))
	p("  VaR 99%%\t%s", pct(r.Risk.VaR99))
	p("  ES 99%%\t%s", pct(r.Risk.ES99))
	p("  P(loss >= %s)\t%s", pct(r.Risk.LossThreshold), pct(r.Risk.LossProbability))
	p("  non-positive paths\t%d of %d", r.Risk.NonPositivePaths, r.NumPaths)

	if r.Indicators != nil {
		p("")
		writeIndicators(tw, r.Indicators)
	}

	return tw.Flush()
}

// RenderIndicators writes the Bollinger Band and MACD summary on its own
func RenderIndicators(w io.Writer, s *indicators.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	writeIndicators(tw, s)
	return tw.Flush()
}

func writeIndicators(w io.Writer, s *indicators.Summary) {
	fmt.Fprintln(w, "Bollinger Bands")
	fmt.Fprintf(w, "  upper band max\t%s\n", price(s.UpperBandMax))
	fmt.Fprintf(w, "  lower band min\t%s\n", price(s.LowerBandMin))
	fmt.Fprintf(w, "  middle band mean\t%s\n", price(s.MiddleBandMean))
	fmt.Fprintln(w, "MACD")
	fmt.Fprintf(w, "  max\t%s\n", price(s.MACDMax))
	fmt.Fprintf(w, "  min\t%s\n", price(s.MACDMin))
	fmt.Fprintf(w, "  signal mean\t%s\n", price(s.SignalMean))
}

func band(s *stats.Summary) (lo, hi float64, ok bool) {
	lo, okLo := s.Percentiles[2.5]
	hi, okHi := s.Percentiles[97.5]
	return lo, hi, okLo && okHi
}

func percentileLine(p stats.Percentiles, format func(float64) string) string {
	levels := make([]float64, 0, len(p))
	for q := range p {
		levels = append(levels, q)
	}
	slices.Sort(levels)

	parts := make([]string, len(levels))
	for i, q := range levels {
		parts[i] = fmt.Sprintf("p%g=%s", q, format(p[q]))
	}
	return strings.Join(parts, "  ")
}

func price(v float64) string { return tradingutils.FormatPrice(v, 2) }

func pct(v float64) string { return tradingutils.FormatPercent(v, 2) }
