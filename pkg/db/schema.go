package db

import "fmt"

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS entry_decisions (
    id TEXT PRIMARY KEY,
    action TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    symbol TEXT NOT NULL,
    side TEXT NOT NULL DEFAULT '',
    profile TEXT NOT NULL DEFAULT '',
    confidence REAL DEFAULT 0,
    lot REAL,
    price REAL DEFAULT 0,
    stop_loss REAL DEFAULT 0,
    take_profit REAL DEFAULT 0,
    order_id TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    per_trade_risk_pct REAL,
    latency_us INTEGER DEFAULT 0,
    decided_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entry_decisions_symbol ON entry_decisions(symbol, decided_at);

CREATE TABLE IF NOT EXISTS breaker_transitions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    from_status TEXT NOT NULL,
    to_status TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    changed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS guard_fixes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol TEXT NOT NULL DEFAULT '',
    local_count INTEGER NOT NULL,
    broker_count INTEGER NOT NULL,
    synced INTEGER NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    fixed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trade_closes (
    order_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    profile TEXT NOT NULL DEFAULT '',
    profit REAL NOT NULL,
    closed_at DATETIME NOT NULL
);
`

// ApplyMigrations bootstraps the schema; keep lightweight for fast startup.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
