package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dougsko/catd/pkg/logging"
)

// Exchange is one request line and its response, as journaled
type Exchange struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Client    int       `json:"client"`
	Remote    string    `json:"remote"`
	Request   string    `json:"request"`
	Response  string    `json:"response"`
	Code      int       `json:"code"`
	Duration  int64     `json:"duration_ms"`
}

// ResponseCode returns the RPRT code of a response line, or 0 for a value
func ResponseCode(response string) int {
	var code int
	if strings.HasPrefix(response, "RPRT ") {
		if _, err := fmt.Sscanf(response, "RPRT %d", &code); err == nil {
			return code
		}
	}
	return 0
}

// Journal keeps a bounded history of client requests in SQLite. It records
// traffic only; no radio state is restored from it.
type Journal struct {
	db         *sql.DB
	dbPath     string
	maxEntries int
}

// NewJournal opens or creates the journal database at dbPath
func NewJournal(dbPath string, maxEntries int) (*Journal, error) {
	j := &Journal{
		dbPath:     dbPath,
		maxEntries: maxEntries,
	}

	if err := j.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize exchange journal: %w", err)
	}

	// the limit may have been lowered since the journal was last open
	if err := j.Cleanup(); err != nil {
		logging.Warnf("storage", "Failed to prune exchange journal: %v", err)
	}

	return j, nil
}

// initialize sets up the database connection and creates tables
func (j *Journal) initialize() error {
	if j.dbPath == "" {
		j.dbPath = "./catd.db"
	}

	if err := os.MkdirAll(filepath.Dir(j.dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	connectionString := j.dbPath + "?_busy_timeout=10000&_journal_mode=WAL"
	db, err := sql.Open("sqlite3", connectionString)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	j.db = db

	if err := j.createTables(); err != nil {
		db.Close()
		return fmt.Errorf("failed to create tables: %w", err)
	}

	logging.Infof("storage", "Exchange journal initialized: %s (max %d entries)", j.dbPath, j.maxEntries)
	return nil
}

// createTables creates the database schema
func (j *Journal) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exchanges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		client INTEGER NOT NULL DEFAULT 0,
		remote TEXT NOT NULL DEFAULT '',
		request TEXT NOT NULL,
		response TEXT NOT NULL,
		code INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS journal_stats (
		id INTEGER PRIMARY KEY,
		total_exchanges INTEGER NOT NULL DEFAULT 0,
		total_failures INTEGER NOT NULL DEFAULT 0,
		last_cleanup DATETIME
	);

	INSERT OR IGNORE INTO journal_stats (id, total_exchanges, total_failures)
	VALUES (1, 0, 0);

	CREATE INDEX IF NOT EXISTS idx_exchanges_timestamp ON exchanges(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_exchanges_code ON exchanges(code);
	`

	_, err := j.db.Exec(schema)
	return err
}

// Record stores an exchange and prunes the oldest entries beyond the limit
func (j *Journal) Record(e Exchange) (int64, error) {
	tx, err := j.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	result, err := tx.Exec(`
		INSERT INTO exchanges (timestamp, client, remote, request, response, code, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Timestamp.UTC(), e.Client, e.Remote, e.Request, e.Response, e.Code, e.Duration,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert exchange: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get exchange ID: %w", err)
	}

	failure := 0
	if e.Code != 0 {
		failure = 1
	}
	if _, err := tx.Exec(`
		UPDATE journal_stats SET
			total_exchanges = total_exchanges + 1,
			total_failures = total_failures + ?
		WHERE id = 1`, failure); err != nil {
		return 0, fmt.Errorf("failed to update stats: %w", err)
	}

	if err := j.cleanup(tx); err != nil {
		logging.Warnf("storage", "Failed to prune exchange journal: %v", err)
	}

	return id, tx.Commit()
}

// Cleanup removes entries beyond the maximum
func (j *Journal) Cleanup() error {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := j.cleanup(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (j *Journal) cleanup(tx *sql.Tx) error {
	if j.maxEntries <= 0 {
		return nil
	}

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM exchanges").Scan(&count); err != nil {
		return err
	}
	if count <= j.maxEntries {
		return nil
	}

	if _, err := tx.Exec(`
		DELETE FROM exchanges
		WHERE id IN (SELECT id FROM exchanges ORDER BY id ASC LIMIT ?)`,
		count-j.maxEntries); err != nil {
		return err
	}

	_, err := tx.Exec("UPDATE journal_stats SET last_cleanup = CURRENT_TIMESTAMP WHERE id = 1")
	return err
}

// Close closes the database connection
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}
