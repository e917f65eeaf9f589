package infra

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/timerapps/timerd/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ sqlcipher.SQLiteDriver

const archiveDBName = "history.db"

// UsageArchive implements domain.HistoryArchive using a SQLCipher
// encrypted SQLite database. Finished days are copied here at rollover;
// the live JSON ledger stays the source of truth for "today".
type UsageArchive struct {
	db     *sql.DB
	dbPath string
}

// NewUsageArchive opens (or creates) the encrypted archive database.
// The key is passed as the SQLCipher passphrase via PRAGMA key.
func NewUsageArchive(dataDir string, key []byte) (*UsageArchive, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, archiveDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to archive database: %w", err)
	}

	a := &UsageArchive{db: db, dbPath: dbPath}
	if err := a.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return a, nil
}

func (a *UsageArchive) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_history (
		date TEXT NOT NULL,
		package TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		minutes_used INTEGER NOT NULL,
		limit_minutes INTEGER NOT NULL,
		limit_reached INTEGER NOT NULL DEFAULT 0,
		blocked_at TEXT,
		session_count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, package)
	);
	`
	_, err := a.db.Exec(schema)
	return err
}

// ArchiveDay stores a finished day's records. Re-archiving the same day
// overwrites, so a retried rollover is harmless.
func (a *UsageArchive) ArchiveDay(date string, records map[string]domain.DailyUsageRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}

	for pkg, rec := range records {
		var blockedAt any
		if rec.BlockedAt != nil {
			blockedAt = rec.BlockedAt.Format(time.RFC3339)
		}
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO usage_history
			(date, package, name, minutes_used, limit_minutes, limit_reached, blocked_at, session_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			date, pkg, rec.Name, rec.TotalMinutesUsed, rec.LimitMinutes,
			rec.LimitReached, blockedAt, len(rec.Sessions),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("archive %s/%s: %w", date, pkg, err)
		}
	}

	return tx.Commit()
}

// TotalsByApp returns lifetime archived minutes per package.
func (a *UsageArchive) TotalsByApp() (map[string]int, error) {
	rows, err := a.db.Query(`SELECT package, SUM(minutes_used) FROM usage_history GROUP BY package`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]int)
	for rows.Next() {
		var pkg string
		var minutes int
		if err := rows.Scan(&pkg, &minutes); err != nil {
			return nil, err
		}
		totals[pkg] = minutes
	}
	return totals, rows.Err()
}

// Close releases the database connection.
func (a *UsageArchive) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Ensure UsageArchive implements domain.HistoryArchive.
var _ domain.HistoryArchive = (*UsageArchive)(nil)
