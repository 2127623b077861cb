package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"chronos/internal/domain/regime"
	"chronos/internal/metrics"
	"chronos/pkg/clickhouse"
	"chronos/pkg/errors"
)

// RegimeRepository implements regime.Repository for ClickHouse. Decisions
// arrive once per bar per symbol, so they go through a batch writer; single
// row inserts are inefficient in ClickHouse. Transitions are rare and are
// inserted directly.
type RegimeRepository struct {
	conn      driver.Conn
	decisions *clickhouse.BatchWriter
}

// NewRegimeRepository creates a new regime repository. Call Start to enable
// periodic decision flushes and Stop on shutdown.
func NewRegimeRepository(conn driver.Conn) *RegimeRepository {
	r := &RegimeRepository{conn: conn}
	r.decisions = clickhouse.NewBatchWriter(clickhouse.BatchWriterConfig{
		Conn:         conn,
		FlushFunc:    r.flushDecisions,
		TableName:    "regime_decisions",
		MaxBatchSize: 500,
		MaxAge:       5 * time.Second,
	})
	return r
}

// Start launches the background decision flusher
func (r *RegimeRepository) Start(ctx context.Context) {
	r.decisions.Start(ctx)
}

// Stop shuts the writer down and flushes anything that arrived after its
// flush loop exited.
func (r *RegimeRepository) Stop(ctx context.Context) error {
	if err := r.decisions.Stop(ctx); err != nil {
		return err
	}
	return r.decisions.Flush(ctx)
}

// StoreDecision buffers a classification decision for the next batch flush
func (r *RegimeRepository) StoreDecision(ctx context.Context, d *regime.Decision) error {
	return r.decisions.Add(ctx, d)
}

func (r *RegimeRepository) flushDecisions(ctx context.Context, batch []interface{}) error {
	query := `
		INSERT INTO regime_decisions (
			id, symbol, timestamp, regime, confidence,
			vwap_slope, atr_percentile, volatility_ratio, price_momentum, volume_trend,
			reasoning, degraded, total_ms
		)
	`

	start := time.Now()
	prepared, err := r.conn.PrepareBatch(ctx, query)
	if err != nil {
		metrics.RecordDBQuery("clickhouse", "insert_decision", time.Since(start), err)
		return errors.Wrap(err, "failed to prepare decision batch")
	}

	for _, item := range batch {
		d, ok := item.(*regime.Decision)
		if !ok {
			continue
		}
		if err := prepared.Append(
			d.ID,
			d.Symbol,
			d.Timestamp,
			d.Regime.String(),
			d.Confidence,
			d.Features.VWAPSlope,
			d.Features.ATRPercentile,
			d.Features.VolatilityRatio,
			d.Features.PriceMomentum,
			d.Features.VolumeTrend,
			d.Reasoning,
			d.Degraded,
			d.TotalMs,
		); err != nil {
			metrics.RecordDBQuery("clickhouse", "insert_decision", time.Since(start), err)
			return errors.Wrap(err, "failed to append decision to batch")
		}
	}

	err = prepared.Send()
	metrics.RecordDBQuery("clickhouse", "insert_decision", time.Since(start), err)
	if err != nil {
		return errors.Wrap(err, "failed to store regime decisions")
	}

	return nil
}

// StoreTransition stores a regime transition
func (r *RegimeRepository) StoreTransition(ctx context.Context, t *regime.Transition) error {
	query := `
		INSERT INTO regime_transitions (
			id, symbol, timestamp, from_regime, to_regime,
			from_confidence, to_confidence, dwell_minutes,
			vwap_slope, atr_percentile, volatility_ratio, price_momentum, volume_trend
		) VALUES (
			?, ?, ?, ?, ?,
			?, ?, ?,
			?, ?, ?, ?, ?
		)
	`

	start := time.Now()
	err := r.conn.Exec(ctx, query,
		t.ID,
		t.Symbol,
		t.Timestamp,
		t.FromRegime.String(),
		t.ToRegime.String(),
		t.FromConfidence,
		t.ToConfidence,
		t.DwellMinutes,
		t.Features.VWAPSlope,
		t.Features.ATRPercentile,
		t.Features.VolatilityRatio,
		t.Features.PriceMomentum,
		t.Features.VolumeTrend,
	)
	metrics.RecordDBQuery("clickhouse", "insert_transition", time.Since(start), err)

	if err != nil {
		return errors.Wrap(err, "failed to store regime transition")
	}

	return nil
}

// GetLatestDecision retrieves the latest decision for a symbol
func (r *RegimeRepository) GetLatestDecision(ctx context.Context, symbol string) (*regime.Decision, error) {
	query := `
		SELECT
			id, symbol, timestamp, regime, confidence,
			vwap_slope, atr_percentile, volatility_ratio, price_momentum, volume_trend,
			reasoning, degraded, total_ms
		FROM regime_decisions
		WHERE symbol = ?
		ORDER BY timestamp DESC
		LIMIT 1
	`

	row := r.conn.QueryRow(ctx, query, symbol)

	d, err := scanDecision(row)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get latest decision")
	}
	return d, nil
}

// GetDecisionHistory retrieves decisions for a symbol since a given time
func (r *RegimeRepository) GetDecisionHistory(ctx context.Context, symbol string, since time.Time) ([]regime.Decision, error) {
	query := `
		SELECT
			id, symbol, timestamp, regime, confidence,
			vwap_slope, atr_percentile, volatility_ratio, price_momentum, volume_trend,
			reasoning, degraded, total_ms
		FROM regime_decisions
		WHERE symbol = ? AND timestamp >= ?
		ORDER BY timestamp DESC
	`

	rows, err := r.conn.Query(ctx, query, symbol, since)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get decision history")
	}
	defer rows.Close()

	var decisions []regime.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan decision row")
		}
		decisions = append(decisions, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate decision rows")
	}

	return decisions, nil
}

// GetTransitionHistory retrieves transitions for a symbol since a given time
func (r *RegimeRepository) GetTransitionHistory(ctx context.Context, symbol string, since time.Time) ([]regime.Transition, error) {
	query := `
		SELECT
			id, symbol, timestamp, from_regime, to_regime,
			from_confidence, to_confidence, dwell_minutes,
			vwap_slope, atr_percentile, volatility_ratio, price_momentum, volume_trend
		FROM regime_transitions
		WHERE symbol = ? AND timestamp >= ?
		ORDER BY timestamp DESC
	`

	rows, err := r.conn.Query(ctx, query, symbol, since)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transition history")
	}
	defer rows.Close()

	var transitions []regime.Transition
	for rows.Next() {
		var t regime.Transition
		var fromStr, toStr string

		err := rows.Scan(
			&t.ID,
			&t.Symbol,
			&t.Timestamp,
			&fromStr,
			&toStr,
			&t.FromConfidence,
			&t.ToConfidence,
			&t.DwellMinutes,
			&t.Features.VWAPSlope,
			&t.Features.ATRPercentile,
			&t.Features.VolatilityRatio,
			&t.Features.PriceMomentum,
			&t.Features.VolumeTrend,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan transition row")
		}

		if t.FromRegime, err = regime.ParseRegimeType(fromStr); err != nil {
			return nil, errors.Wrap(err, "failed to parse from_regime")
		}
		if t.ToRegime, err = regime.ParseRegimeType(toStr); err != nil {
			return nil, errors.Wrap(err, "failed to parse to_regime")
		}

		transitions = append(transitions, t)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate transition rows")
	}

	return transitions, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDecision(row scanner) (*regime.Decision, error) {
	var d regime.Decision
	var regimeStr string

	err := row.Scan(
		&d.ID,
		&d.Symbol,
		&d.Timestamp,
		&regimeStr,
		&d.Confidence,
		&d.Features.VWAPSlope,
		&d.Features.ATRPercentile,
		&d.Features.VolatilityRatio,
		&d.Features.PriceMomentum,
		&d.Features.VolumeTrend,
		&d.Reasoning,
		&d.Degraded,
		&d.TotalMs,
	)
	if err != nil {
		return nil, err
	}

	if d.Regime, err = regime.ParseRegimeType(regimeStr); err != nil {
		return nil, err
	}
	return &d, nil
}
