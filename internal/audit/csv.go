package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"chronos/pkg/errors"
)

// WriteDecisionsCSV streams the retained decision log as CSV.
func (r *Recorder) WriteDecisionsCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{
		"id", "symbol", "timestamp", "regime", "confidence",
		"vwap_slope", "atr_percentile", "volatility_ratio", "price_momentum", "volume_trend",
		"reasoning", "degraded", "total_ms",
	}
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	for _, d := range r.Decisions() {
		row := []string{
			d.ID,
			d.Symbol,
			d.Timestamp.UTC().Format(time.RFC3339Nano),
			d.Regime.String(),
			fmt.Sprintf("%.6f", d.Confidence),
			fmt.Sprintf("%.8f", d.Features.VWAPSlope),
			fmt.Sprintf("%.6f", d.Features.ATRPercentile),
			fmt.Sprintf("%.6f", d.Features.VolatilityRatio),
			fmt.Sprintf("%.6f", d.Features.PriceMomentum),
			fmt.Sprintf("%.6f", d.Features.VolumeTrend),
			d.Reasoning,
			fmt.Sprintf("%t", d.Degraded),
			fmt.Sprintf("%.3f", d.TotalMs),
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "write csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}

// WriteTransitionsCSV streams the retained transition log as CSV.
func (r *Recorder) WriteTransitionsCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{
		"id", "symbol", "timestamp", "from_regime", "to_regime",
		"from_confidence", "to_confidence", "dwell_minutes",
	}
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	for _, t := range r.Transitions() {
		row := []string{
			t.ID,
			t.Symbol,
			t.Timestamp.UTC().Format(time.RFC3339Nano),
			t.FromRegime.String(),
			t.ToRegime.String(),
			fmt.Sprintf("%.6f", t.FromConfidence),
			fmt.Sprintf("%.6f", t.ToConfidence),
			fmt.Sprintf("%.2f", t.DwellMinutes),
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "write csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}

// ExportCSV writes both logs into dir with date-stamped filenames and returns
// the created paths.
func (r *Recorder) ExportCSV(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create export dir")
	}
	stamp := time.Now().UTC().Format("20060102_150405")

	var paths []string
	exports := []struct {
		name  string
		write func(io.Writer) error
	}{
		{fmt.Sprintf("regime_decisions_%s.csv", stamp), r.WriteDecisionsCSV},
		{fmt.Sprintf("regime_transitions_%s.csv", stamp), r.WriteTransitionsCSV},
	}
	for _, e := range exports {
		path := filepath.Join(dir, e.name)
		f, err := os.Create(path)
		if err != nil {
			return paths, errors.Wrapf(err, "create %s", path)
		}
		if err := e.write(f); err != nil {
			f.Close()
			return paths, err
		}
		if err := f.Close(); err != nil {
			return paths, errors.Wrapf(err, "close %s", path)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
