package pipeline

import (
	"errors"
	"fmt"
	"math"

	"github.com/drakos74/free-brain/internal/buffer"
	"github.com/drakos74/free-brain/internal/config"
	brainmath "github.com/drakos74/free-brain/internal/math"
	"github.com/drakos74/go-ex-machina/xmath"
	"github.com/rs/zerolog/log"
)

// ErrDimension signals a violated alignment invariant between features, labels and timestamps.
var ErrDimension = errors.New("dimension mismatch")

const (
	weekSeconds = 7 * 24 * 3600
	daySeconds  = 24 * 3600
	// ohlcFields is the raw field count per instrument when full candles are streamed
	ohlcFields = 4
)

// Dataset is the aligned output of a full pipeline pass.
// Features, Labels and Times always have the same length.
type Dataset struct {
	Times    []int64
	Features xmath.Matrix
	Labels   xmath.Vector
}

// Pipeline derives normalised feature and label tensors from a raw sample window.
// Normalisation statistics are computed on the first pass and frozen afterwards,
// so that training and inference see a stable input distribution.
type Pipeline struct {
	cfg        config.Config
	numSymbols int
	stats      *buffer.StatsCollector
}

// New creates a pipeline for the given number of instruments.
func New(cfg config.Config, numSymbols int) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		numSymbols: numSymbols,
		stats:      buffer.NewStatsCollector(cfg.FeatureWidth(numSymbols)),
	}
}

// NumSymbols returns the number of instruments the pipeline was built for.
func (p *Pipeline) NumSymbols() int {
	return p.numSymbols
}

// Width returns the feature row width.
func (p *Pipeline) Width() int {
	return p.cfg.FeatureWidth(p.numSymbols)
}

// Stats exposes the frozen normalisation statistics.
func (p *Pipeline) Stats() *buffer.StatsCollector {
	return p.stats
}

// priceColumn maps an instrument index to its closing price column in the raw rows.
func (p *Pipeline) priceColumn(symbol int) int {
	if p.cfg.CloseOnly {
		return 2 + symbol
	}
	return 2 + symbol*ohlcFields + (ohlcFields - 1)
}

// Dataset runs the full pipeline over the window: feature generation,
// warmup trim, label derivation and the final alignment trim.
func (p *Pipeline) Dataset(w *buffer.Window) (*Dataset, error) {
	features, times, err := p.Features(w)
	if err != nil {
		return nil, err
	}
	return p.Labels(features, times)
}

// Features builds the normalised feature matrix from the raw window.
// The first warmup-offset rows are trimmed, as the indicators have not
// accumulated enough history there.
func (p *Pipeline) Features(w *buffer.Window) (xmath.Matrix, []int64, error) {
	width := p.Width()
	rows := w.Rows()
	times := w.Times()
	n := len(rows)
	if n != len(times) {
		return nil, nil, fmt.Errorf("rows %d vs timestamps %d: %w", n, len(times), ErrDimension)
	}
	if n <= p.cfg.WarmupOffset {
		return nil, nil, fmt.Errorf("window %d within warmup %d: %w", n, p.cfg.WarmupOffset, ErrDimension)
	}

	features := xmath.Mat(n).Of(width)

	// temporal fields rescaled into fractional week and day ranges
	for i, row := range rows {
		features[i][0] = frac(row[0] / weekSeconds)
		features[i][1] = frac(row[1] / daySeconds)
	}

	// the running column index is threaded explicitly through the builders
	col := 2
	for s := 0; s < p.numSymbols; s++ {
		series := w.Column(p.priceColumn(s))

		col = p.normalized(features, col, LogReturn(series, 1, p.cfg.LogSmoothPeriod))
		for _, offset := range p.cfg.ExtraLogOffsets {
			col = p.normalized(features, col, LogReturn(series, offset, p.cfg.LogSmoothPeriod))
		}
		for _, period := range p.cfg.EMAPeriods {
			col = p.normalized(features, col, EMA(series, period))
		}
		for _, period := range p.cfg.REMAPeriods {
			col = p.normalized(features, col, REMA(series, period))
		}
		if p.cfg.RSIPeriod > 0 {
			// rsi is already bounded, no normalisation or compression
			col = p.raw(features, col, RSI(series, p.cfg.RSIPeriod))
		}
	}
	if col != width {
		return nil, nil, fmt.Errorf("assembled %d columns for width %d: %w", col, width, ErrDimension)
	}

	return features[p.cfg.WarmupOffset:], times[p.cfg.WarmupOffset:], nil
}

// normalized writes the column values scaled with the frozen (mean,std) and
// compressed into (0,1), returning the next column index.
// The statistics are latched from the post-warmup region on the first pass.
func (p *Pipeline) normalized(features xmath.Matrix, col int, values []float64) int {
	stats := p.stats.Column(col)
	if !stats.Frozen() {
		stats.Freeze(values[p.cfg.WarmupOffset:])
		log.Debug().
			Int("column", col).
			Float64("mean", stats.Mean()).
			Float64("std", stats.StdDev()).
			Msg("froze normalisation stats")
	}
	for i, v := range values {
		features[i][col] = brainmath.Sigmoid(stats.Normalize(v))
	}
	return col + 1
}

// raw writes the column values untouched, returning the next column index.
func (p *Pipeline) raw(features xmath.Matrix, col int, values []float64) int {
	for i, v := range values {
		features[i][col] = v
	}
	return col + 1
}

// Labels derives the forecast target from the designated feature column,
// shifted forward by the label offset. Features and timestamps are trimmed
// by the same offset so that indices stay aligned.
func (p *Pipeline) Labels(features xmath.Matrix, times []int64) (*Dataset, error) {
	offset := p.cfg.LabelOffset
	if len(features) != len(times) {
		return nil, fmt.Errorf("features %d vs timestamps %d: %w", len(features), len(times), ErrDimension)
	}
	if len(features) <= offset {
		return nil, fmt.Errorf("features %d within label offset %d: %w", len(features), offset, ErrDimension)
	}
	forecast := 2 + p.cfg.ForecastIndex
	if forecast >= len(features[0]) {
		return nil, fmt.Errorf("forecast column %d for width %d: %w", forecast, len(features[0]), ErrDimension)
	}

	n := len(features) - offset
	labels := xmath.Vec(n)
	for i := 0; i < n; i++ {
		v := features[i+offset][forecast]
		if p.cfg.NumClasses > 1 {
			v = p.bin(v)
		}
		labels[i] = v
	}

	return &Dataset{
		Times:    times[:n],
		Features: features[:n],
		Labels:   labels,
	}, nil
}

// bin clamps the value to [0,1) and maps it to a 1-based equal-width class.
func (p *Pipeline) bin(v float64) float64 {
	if v < 0 {
		v = 0
	}
	if v >= 1 {
		v = math.Nextafter(1, 0)
	}
	return math.Floor(v*float64(p.cfg.NumClasses)) + 1
}

func frac(v float64) float64 {
	f := math.Mod(v, 1)
	if f < 0 {
		f += 1
	}
	return f
}
