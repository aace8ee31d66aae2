package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("record not found")

// Insert statements used by the journal's batch writer.
const (
	InsertDecisionSQL = `
		INSERT OR IGNORE INTO entry_decisions
			(id, action, reason, symbol, side, profile, confidence, lot, price,
			 stop_loss, take_profit, per_trade_risk_pct, order_id, error, latency_us, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	InsertBreakerTransitionSQL = `
		INSERT INTO breaker_transitions (from_status, to_status, reason, changed_at)
		VALUES (?, ?, ?, ?)`

	InsertGuardFixSQL = `
		INSERT INTO guard_fixes (symbol, local_count, broker_count, synced, reason, fixed_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	InsertTradeCloseSQL = `
		INSERT INTO trade_closes (order_id, symbol, profile, profit, closed_at)
		VALUES (?, ?, ?, ?, ?)`
)

// JournalQueries reads back the audit journal for operators.
type JournalQueries struct {
	db *sql.DB
}

func NewJournalQueries(db *sql.DB) *JournalQueries {
	return &JournalQueries{db: db}
}

// DecisionFilter narrows ListDecisions; zero values match everything.
type DecisionFilter struct {
	Symbol string
	Action string
	Since  time.Time
	Limit  int
}

// ListDecisions returns journaled decisions, newest first.
func (q *JournalQueries) ListDecisions(ctx context.Context, f DecisionFilter) ([]DecisionRow, error) {
	query := `
		SELECT id, action, reason, symbol, side, profile, confidence, lot, price,
		       stop_loss, take_profit, per_trade_risk_pct, order_id, error, latency_us, decided_at
		FROM entry_decisions
		WHERE 1=1`
	var args []any
	if f.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, f.Symbol)
	}
	if f.Action != "" {
		query += " AND action = ?"
		args = append(args, f.Action)
	}
	if !f.Since.IsZero() {
		query += " AND decided_at >= ?"
		args = append(args, f.Since.UTC())
	}
	if f.Limit <= 0 {
		f.Limit = 100
	}
	query += " ORDER BY decided_at DESC LIMIT ?"
	args = append(args, f.Limit)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRow
	for rows.Next() {
		var (
			r    DecisionRow
			lot  sql.NullFloat64
			risk sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.Action, &r.Reason, &r.Symbol, &r.Side, &r.Profile, &r.Confidence,
			&lot, &r.Price, &r.StopLoss, &r.TakeProfit, &risk, &r.OrderID, &r.Error, &r.LatencyMicros, &r.DecidedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		if lot.Valid {
			r.Lot = &lot.Float64
		}
		if risk.Valid {
			r.PerTradeRiskPct = &risk.Float64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetDecision returns one decision by id.
func (q *JournalQueries) GetDecision(ctx context.Context, id string) (DecisionRow, error) {
	var (
		r    DecisionRow
		lot  sql.NullFloat64
		risk sql.NullFloat64
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, action, reason, symbol, side, profile, confidence, lot, price,
		       stop_loss, take_profit, per_trade_risk_pct, order_id, error, latency_us, decided_at
		FROM entry_decisions
		WHERE id = ?
	`, id).Scan(&r.ID, &r.Action, &r.Reason, &r.Symbol, &r.Side, &r.Profile, &r.Confidence,
		&lot, &r.Price, &r.StopLoss, &r.TakeProfit, &risk, &r.OrderID, &r.Error, &r.LatencyMicros, &r.DecidedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DecisionRow{}, ErrNotFound
	}
	if err != nil {
		return DecisionRow{}, fmt.Errorf("get decision: %w", err)
	}
	if lot.Valid {
		r.Lot = &lot.Float64
	}
	if risk.Valid {
		r.PerTradeRiskPct = &risk.Float64
	}
	return r, nil
}

// CountByReason aggregates decisions since the given time.
func (q *JournalQueries) CountByReason(ctx context.Context, since time.Time) ([]ReasonCount, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT action, reason, COUNT(*)
		FROM entry_decisions
		WHERE decided_at >= ?
		GROUP BY action, reason
		ORDER BY COUNT(*) DESC, action, reason
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("count decisions: %w", err)
	}
	defer rows.Close()

	var out []ReasonCount
	for rows.Next() {
		var c ReasonCount
		if err := rows.Scan(&c.Action, &c.Reason, &c.Count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListBreakerTransitions returns the latest breaker changes, newest first.
func (q *JournalQueries) ListBreakerTransitions(ctx context.Context, limit int) ([]BreakerTransitionRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, from_status, to_status, reason, changed_at
		FROM breaker_transitions
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query breaker transitions: %w", err)
	}
	defer rows.Close()

	var out []BreakerTransitionRow
	for rows.Next() {
		var r BreakerTransitionRow
		if err := rows.Scan(&r.ID, &r.From, &r.To, &r.Reason, &r.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan breaker transition: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListGuardFixes returns the latest reconciliation fixes, newest first.
func (q *JournalQueries) ListGuardFixes(ctx context.Context, limit int) ([]GuardFixRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, symbol, local_count, broker_count, synced, reason, fixed_at
		FROM guard_fixes
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query guard fixes: %w", err)
	}
	defer rows.Close()

	var out []GuardFixRow
	for rows.Next() {
		var r GuardFixRow
		if err := rows.Scan(&r.ID, &r.Symbol, &r.LocalCount, &r.BrokerCount, &r.Synced, &r.Reason, &r.FixedAt); err != nil {
			return nil, fmt.Errorf("scan guard fix: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RealizedPnL sums settled profit per symbol since the given time.
func (q *JournalQueries) RealizedPnL(ctx context.Context, since time.Time) (map[string]float64, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT symbol, COALESCE(SUM(profit), 0)
		FROM trade_closes
		WHERE closed_at >= ?
		GROUP BY symbol
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query realized pnl: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			sym string
			pnl float64
		)
		if err := rows.Scan(&sym, &pnl); err != nil {
			return nil, fmt.Errorf("scan pnl: %w", err)
		}
		out[sym] = pnl
	}
	return out, rows.Err()
}
