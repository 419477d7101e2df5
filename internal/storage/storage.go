// Package storage provides a SQLite-backed audit journal of orders, resolved predictions, and credibility.
// Nothing is read back into the engine on start.
package storage

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hermish/traders-at-mit-2019/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all journal operations.
// Every row is tagged with the run ID of the process that wrote it.
type Storage struct {
	db    *sql.DB
	runID string
	now   func() time.Time
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/newsbot/journal.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "newsbot", "journal.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, runID: uuid.New().String(), now: time.Now}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// RunID identifies rows written by this process.
func (s *Storage) RunID() string {
	return s.runID
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id          TEXT PRIMARY KEY,
			run_id      TEXT NOT NULL,
			side        TEXT NOT NULL,
			ticker      TEXT NOT NULL,
			quantity    REAL NOT NULL,
			price       REAL,
			reason      TEXT NOT NULL,
			news_time   INTEGER NOT NULL,
			recorded_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS resolutions (
			id              TEXT PRIMARY KEY,
			run_id          TEXT NOT NULL,
			source          TEXT NOT NULL,
			ticker          TEXT NOT NULL,
			resolution_time INTEGER NOT NULL,
			drained_at      INTEGER NOT NULL,
			predicted_price REAL NOT NULL,
			realized_price  REAL NOT NULL,
			relative_error  REAL NOT NULL,
			deviation       REAL,
			poisoned        INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS credibility (
			run_id      TEXT NOT NULL,
			source      TEXT NOT NULL,
			deviation   REAL,
			poisoned    INTEGER NOT NULL DEFAULT 0,
			recorded_at INTEGER NOT NULL,
			PRIMARY KEY (run_id, source)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_run ON orders(run_id, news_time)`,
		`CREATE INDEX IF NOT EXISTS idx_resolutions_source ON resolutions(run_id, source)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordOrder appends an emitted order intent.
func (s *Storage) RecordOrder(order models.OrderIntent) error {
	if err := order.Validate(); err != nil {
		return fmt.Errorf("invalid order: %w", err)
	}
	id := order.ID
	if id == "" {
		id = uuid.New().String()
	}
	var price sql.NullFloat64
	if order.Price != nil {
		price = sql.NullFloat64{Float64: *order.Price, Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO orders
			(id, run_id, side, ticker, quantity, price, reason, news_time, recorded_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		id, s.runID, string(order.Side), order.Ticker, order.Quantity, price,
		string(order.Reason), order.NewsTime, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// GetOrders returns this run's orders in emission order.
func (s *Storage) GetOrders() ([]models.OrderIntent, error) {
	rows, err := s.db.Query(`
		SELECT id, side, ticker, quantity, price, reason, news_time
		FROM orders WHERE run_id = ? ORDER BY rowid`, s.runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []models.OrderIntent{}
	for rows.Next() {
		var o models.OrderIntent
		var side, reason string
		var price sql.NullFloat64
		if err := rows.Scan(&o.ID, &side, &o.Ticker, &o.Quantity, &price, &reason, &o.NewsTime); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.Side = models.Side(side)
		o.Reason = models.Reason(reason)
		if price.Valid {
			p := price.Float64
			o.Price = &p
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// RecordResolution appends a scored prediction.
func (s *Storage) RecordResolution(res models.Resolution) error {
	dev, poisoned := encodeDeviation(res.Deviation)
	_, err := s.db.Exec(`
		INSERT INTO resolutions
			(id, run_id, source, ticker, resolution_time, drained_at,
			 predicted_price, realized_price, relative_error, deviation, poisoned)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		uuid.New().String(), s.runID, res.Source, res.Ticker, res.ResolutionTime, res.DrainedAt,
		res.PredictedPrice, res.RealizedPrice, res.RelativeError, dev, boolToInt(poisoned),
	)
	if err != nil {
		return fmt.Errorf("failed to insert resolution: %w", err)
	}
	return nil
}

// GetResolutions returns this run's resolutions for source in drain order.
func (s *Storage) GetResolutions(source string) ([]models.Resolution, error) {
	rows, err := s.db.Query(`
		SELECT source, ticker, resolution_time, drained_at,
		       predicted_price, realized_price, relative_error, deviation, poisoned
		FROM resolutions WHERE run_id = ? AND source = ? ORDER BY rowid`, s.runID, source)
	if err != nil {
		return nil, fmt.Errorf("failed to query resolutions: %w", err)
	}
	defer rows.Close()

	var out []models.Resolution
	for rows.Next() {
		var r models.Resolution
		var dev sql.NullFloat64
		var poisoned int
		if err := rows.Scan(&r.Source, &r.Ticker, &r.ResolutionTime, &r.DrainedAt,
			&r.PredictedPrice, &r.RealizedPrice, &r.RelativeError, &dev, &poisoned); err != nil {
			return nil, fmt.Errorf("failed to scan resolution: %w", err)
		}
		r.Deviation = decodeDeviation(dev, poisoned != 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveCredibility replaces this run's credibility snapshot.
func (s *Storage) SaveCredibility(deviations map[string]float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM credibility WHERE run_id = ?`, s.runID); err != nil {
		return fmt.Errorf("failed to clear credibility: %w", err)
	}
	at := s.now().UnixNano()
	for source, d := range deviations {
		dev, poisoned := encodeDeviation(d)
		if _, err := tx.Exec(`
			INSERT INTO credibility (run_id, source, deviation, poisoned, recorded_at)
			VALUES (?,?,?,?,?)`,
			s.runID, source, dev, boolToInt(poisoned), at,
		); err != nil {
			return fmt.Errorf("failed to insert credibility for %s: %w", source, err)
		}
	}
	return tx.Commit()
}

// GetCredibility returns this run's last saved credibility snapshot.
func (s *Storage) GetCredibility() (map[string]float64, error) {
	rows, err := s.db.Query(`SELECT source, deviation, poisoned FROM credibility WHERE run_id = ?`, s.runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query credibility: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var source string
		var dev sql.NullFloat64
		var poisoned int
		if err := rows.Scan(&source, &dev, &poisoned); err != nil {
			return nil, fmt.Errorf("failed to scan credibility: %w", err)
		}
		out[source] = decodeDeviation(dev, poisoned != 0)
	}
	return out, rows.Err()
}

// Runs lists every run ID in the journal, sorted.
func (s *Storage) Runs() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT run_id FROM orders UNION SELECT DISTINCT run_id FROM resolutions`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()
	var runs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, id)
	}
	sort.Strings(runs)
	return runs, rows.Err()
}

// SQLite has no infinity literal, so a poisoned deviation is stored as NULL plus a flag.
func encodeDeviation(d float64) (sql.NullFloat64, bool) {
	if math.IsInf(d, 0) {
		return sql.NullFloat64{}, true
	}
	return sql.NullFloat64{Float64: d, Valid: true}, false
}

func decodeDeviation(d sql.NullFloat64, poisoned bool) float64 {
	if poisoned {
		return math.Inf(1)
	}
	return d.Float64
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
