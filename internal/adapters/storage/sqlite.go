package storage

// sqlite.go: estado del bot en SQLite para sobrevivir a un crash.
//
// Tablas:
//   monitors         : una fila por mercado (UPSERT), checkpoints y fase
//   orders           : todas las órdenes con su id local y el del exchange
//   positions        : posiciones abiertas y archivadas (closed_at != NULL)
//   ledger           : fila única con bankroll y exposición
//   bankroll_history : una fila por cada cambio de bankroll
//   meta             : clave/valor; "mode" ata la base a live o dry-run
//
// Prune al arrancar: mercados cerrados hace más de 90 días, con sus órdenes
// y posiciones. El histórico de bankroll no se borra nunca.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/dipbot/internal/domain"
	"github.com/alejandrodnm/dipbot/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS monitors (
    ticker          TEXT PRIMARY KEY,
    event_ticker    TEXT NOT NULL DEFAULT '',
    title           TEXT NOT NULL DEFAULT '',
    kickoff         DATETIME NOT NULL,
    deadline        DATETIME NOT NULL,
    cp_6h_cents     INTEGER,
    cp_6h_at        DATETIME,
    cp_3h_cents     INTEGER,
    cp_3h_at        DATETIME,
    cp_30m_cents    INTEGER,
    cp_30m_at       DATETIME,
    eligibility     TEXT NOT NULL DEFAULT 'unknown',
    favorite_side   TEXT NOT NULL DEFAULT '',
    pregame_cents   INTEGER NOT NULL DEFAULT 0,
    phase           TEXT NOT NULL,
    rejection       TEXT NOT NULL DEFAULT '',
    discovered_at   DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_monitors_phase ON monitors(phase);

CREATE TABLE IF NOT EXISTS orders (
    id               TEXT PRIMARY KEY,   -- UUID local, también client_order_id
    exchange_id      TEXT NOT NULL DEFAULT '',
    ticker           TEXT NOT NULL,
    side             TEXT NOT NULL,
    action           TEXT NOT NULL,      -- buy / sell
    role             TEXT NOT NULL,      -- entry / bracket / flatten
    price_cents      INTEGER NOT NULL,
    requested_size   INTEGER NOT NULL,
    filled_count     INTEGER NOT NULL DEFAULT 0,
    fill_price_cents INTEGER NOT NULL DEFAULT 0,
    status           TEXT NOT NULL,
    position_id      TEXT NOT NULL DEFAULT '',
    cancel_attempted INTEGER NOT NULL DEFAULT 0,
    created_at       DATETIME NOT NULL,
    updated_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_ticker ON orders(ticker);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

CREATE TABLE IF NOT EXISTS positions (
    id                TEXT PRIMARY KEY,
    ticker            TEXT NOT NULL,
    side              TEXT NOT NULL,
    entry_order_id    TEXT NOT NULL,
    entry_price_cents INTEGER NOT NULL,
    size              INTEGER NOT NULL,
    sold_count        INTEGER NOT NULL DEFAULT 0,
    proceeds_cents    INTEGER NOT NULL DEFAULT 0,
    entry_time        DATETIME NOT NULL,
    sell_order_id     TEXT NOT NULL DEFAULT '',
    closed_at         DATETIME
);

CREATE INDEX IF NOT EXISTS idx_positions_ticker ON positions(ticker);

CREATE TABLE IF NOT EXISTS ledger (
    id          INTEGER PRIMARY KEY DEFAULT 1,
    bankroll    REAL NOT NULL,
    exposure    REAL NOT NULL DEFAULT 0,
    updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS bankroll_history (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    ticker      TEXT NOT NULL DEFAULT '',
    reason      TEXT NOT NULL,
    delta       REAL NOT NULL,
    balance     REAL NOT NULL,
    changed_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bankroll_at ON bankroll_history(changed_at DESC);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const retentionClosed = 90 * 24 * time.Hour

var _ ports.StateStorage = (*SQLiteStorage)(nil)

// SQLiteStorage implementa ports.StateStorage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada,
// aplica el schema y limpia mercados cerrados antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// ─── Mode ──────────────────────────────────────────────────────────────────

// BindMode ata la base al modo de ejecución. La primera llamada lo registra;
// después, un modo distinto devuelve ports.ErrModeMismatch sin tocar nada.
func (s *SQLiteStorage) BindMode(ctx context.Context, mode string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO meta (key, value) VALUES ('mode', ?)`, mode,
	); err != nil {
		return fmt.Errorf("storage.BindMode: %w", err)
	}

	var bound string
	if err := s.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = 'mode'`,
	).Scan(&bound); err != nil {
		return fmt.Errorf("storage.BindMode: read: %w", err)
	}
	if bound != mode {
		return fmt.Errorf("storage.BindMode: database is %q, run is %q: %w", bound, mode, ports.ErrModeMismatch)
	}
	return nil
}

// ─── Ledger ──────────────────────────────────────────────────────────────────

// SaveLedger guarda el snapshot (fila única).
func (s *SQLiteStorage) SaveLedger(ctx context.Context, snap domain.LedgerSnapshot) error {
	updated := snap.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger (id, bankroll, exposure, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			bankroll   = excluded.bankroll,
			exposure   = excluded.exposure,
			updated_at = excluded.updated_at`,
		snap.Bankroll, snap.Exposure, updated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveLedger: %w", err)
	}
	return nil
}

// LoadLedger devuelve el último snapshot; ok=false si la tabla está vacía.
func (s *SQLiteStorage) LoadLedger(ctx context.Context) (domain.LedgerSnapshot, bool, error) {
	var snap domain.LedgerSnapshot
	err := s.db.QueryRowContext(ctx,
		`SELECT bankroll, exposure, updated_at FROM ledger WHERE id = 1`,
	).Scan(&snap.Bankroll, &snap.Exposure, &snap.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LedgerSnapshot{}, false, nil
	}
	if err != nil {
		return domain.LedgerSnapshot{}, false, fmt.Errorf("storage.LoadLedger: %w", err)
	}
	return snap, true, nil
}

// ─── Bankroll history ────────────────────────────────────────────────────────

// RecordBankrollChange añade una fila al histórico.
func (s *SQLiteStorage) RecordBankrollChange(ctx context.Context, c domain.BankrollChange) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bankroll_history (ticker, reason, delta, balance, changed_at) VALUES (?,?,?,?,?)`,
		c.Ticker, c.Reason, c.Delta, c.Balance, c.ChangedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.RecordBankrollChange: %w", err)
	}
	return nil
}

// BankrollHistory devuelve los últimos limit cambios, más reciente primero.
func (s *SQLiteStorage) BankrollHistory(ctx context.Context, limit int) ([]domain.BankrollChange, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, reason, delta, balance, changed_at
		FROM bankroll_history
		ORDER BY changed_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.BankrollHistory: query: %w", err)
	}
	defer rows.Close()

	var out []domain.BankrollChange
	for rows.Next() {
		var c domain.BankrollChange
		if err := rows.Scan(&c.Ticker, &c.Reason, &c.Delta, &c.Balance, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("storage.BankrollHistory: scan row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// pruneOld elimina mercados cerrados antiguos para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionClosed)
	stale := `SELECT ticker FROM monitors WHERE phase = ? AND updated_at < ?`
	closed := string(domain.PhaseClosed)
	s.db.ExecContext(ctx, `DELETE FROM orders WHERE ticker IN (`+stale+`)`, closed, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM positions WHERE ticker IN (`+stale+`)`, closed, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM monitors WHERE phase = ? AND updated_at < ?`, closed, cutoff)
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
