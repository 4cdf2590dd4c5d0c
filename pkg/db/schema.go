// Package db provides SQLite connection management, schema and retry handling
// for the ledger store.
package db

// Schema defines the SQL statements to create database tables.
// Amounts are stored as decimal strings; times as unix milliseconds.
const Schema = `
-- Chart of accounts
CREATE TABLE IF NOT EXISTS accounts (
    code TEXT PRIMARY KEY,             -- e.g. 6601-01
    name TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT ''
);

-- Vouchers (one per accounting transaction)
CREATE TABLE IF NOT EXISTS vouchers (
    id TEXT PRIMARY KEY,
    period TEXT NOT NULL,              -- YYYY-MM
    voucher_type TEXT NOT NULL,
    number INTEGER NOT NULL,           -- monotonic within (period, voucher_type)
    status TEXT NOT NULL DEFAULT 'DRAFT',
    trace_id TEXT NOT NULL,
    vendor TEXT NOT NULL,
    vendor_key TEXT NOT NULL DEFAULT '',  -- lower-cased, whitespace-collapsed vendor
    category TEXT NOT NULL,
    amount TEXT NOT NULL,
    reference TEXT NOT NULL DEFAULT '',
    fingerprint TEXT NOT NULL DEFAULT '',
    approved INTEGER NOT NULL DEFAULT 0,
    reverted INTEGER NOT NULL DEFAULT 0,
    revert_reason TEXT NOT NULL DEFAULT '',
    match_status TEXT NOT NULL DEFAULT 'UNMATCHED',
    matched_shadow_id TEXT NOT NULL DEFAULT '',
    group_id TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    UNIQUE(period, voucher_type, number)
);

CREATE INDEX IF NOT EXISTS idx_vouchers_category
    ON vouchers(category, created_at);

CREATE INDEX IF NOT EXISTS idx_vouchers_vendor
    ON vouchers(vendor_key);

CREATE INDEX IF NOT EXISTS idx_vouchers_match
    ON vouchers(status, match_status, created_at);

CREATE INDEX IF NOT EXISTS idx_vouchers_group
    ON vouchers(group_id);

-- Voucher lines
CREATE TABLE IF NOT EXISTS voucher_lines (
    voucher_id TEXT NOT NULL REFERENCES vouchers(id),
    line_no INTEGER NOT NULL,
    account_code TEXT NOT NULL,
    direction TEXT NOT NULL,           -- DEBIT or CREDIT
    amount TEXT NOT NULL,
    project TEXT NOT NULL DEFAULT '',
    department TEXT NOT NULL DEFAULT '',
    counterparty TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (voucher_id, line_no)
);

CREATE INDEX IF NOT EXISTS idx_voucher_lines_department
    ON voucher_lines(department);

-- Hash chain over vouchers, in append order
CREATE TABLE IF NOT EXISTS chain_blocks (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    voucher_id TEXT NOT NULL UNIQUE REFERENCES vouchers(id),
    prev_hash TEXT NOT NULL,
    content_hash TEXT NOT NULL
);

-- Per account and period aggregates
CREATE TABLE IF NOT EXISTS account_balances (
    account_code TEXT NOT NULL,
    period TEXT NOT NULL,
    opening_debit TEXT NOT NULL DEFAULT '0',
    opening_credit TEXT NOT NULL DEFAULT '0',
    period_debit TEXT NOT NULL DEFAULT '0',
    period_credit TEXT NOT NULL DEFAULT '0',
    ytd_debit TEXT NOT NULL DEFAULT '0',
    ytd_credit TEXT NOT NULL DEFAULT '0',
    closing_debit TEXT NOT NULL DEFAULT '0',
    closing_credit TEXT NOT NULL DEFAULT '0',
    PRIMARY KEY (account_code, period)
);

-- Vendor trust state
CREATE TABLE IF NOT EXISTS vendor_trust (
    vendor TEXT PRIMARY KEY,
    status TEXT NOT NULL DEFAULT 'GRAY',
    consecutive_success INTEGER NOT NULL DEFAULT 0,
    reject_count INTEGER NOT NULL DEFAULT 0,
    consecutive_rejects INTEGER NOT NULL DEFAULT 0,
    risk_level TEXT NOT NULL DEFAULT 'NORMAL',
    updated_at INTEGER NOT NULL
);

-- Shadow entries (externally observed cash movements)
CREATE TABLE IF NOT EXISTS shadow_entries (
    id TEXT PRIMARY KEY,
    amount TEXT NOT NULL,
    vendor_keyword TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'PENDING',
    matched_voucher_id TEXT NOT NULL DEFAULT '',
    conflicts INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_shadow_entries_status
    ON shadow_entries(status, created_at);

-- Sweep history
-- Tracks each grouping, matching and verification sweep
CREATE TABLE IF NOT EXISTS sweep_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL,                -- 'group', 'match' or 'verify'
    started_at INTEGER NOT NULL,
    finished_at INTEGER NOT NULL,
    processed INTEGER NOT NULL DEFAULT 0,
    matched INTEGER NOT NULL DEFAULT 0,
    conflicts INTEGER NOT NULL DEFAULT 0,
    detail TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sweep_history_kind
    ON sweep_history(kind, started_at);

-- Key-value metadata
CREATE TABLE IF NOT EXISTS engine_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// InitializeSchema initializes the database schema.
// It creates all tables if they don't exist.
func InitializeSchema(conn *Connection) error {
	if _, err := conn.db.Exec(Schema); err != nil {
		return err
	}
	return nil
}
