package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.olrik.dev/devhub/internal/device"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection. It stores device descriptions,
// the connection history and a device event log.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the SQLite database at the specified path
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
	}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		// Checkpoint the WAL to ensure all data is written to the main database file
		db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return db.conn.Close()
	}
	return nil
}

// Flush checkpoints the WAL so other readers see every write
func (db *DB) Flush() error {
	if db.conn != nil {
		_, err := db.conn.Exec("PRAGMA wal_checkpoint(RESTART)")
		return err
	}
	return nil
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

func (db *DB) initSchema() error {
	schema := `
	-- User supplied labels, keyed by device serial
	CREATE TABLE IF NOT EXISTS device_descriptions (
		serial TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Network devices we connected to successfully
	CREATE TABLE IF NOT EXISTS connection_history (
		ip TEXT NOT NULL,
		port INTEGER NOT NULL,
		time_ms INTEGER NOT NULL,
		tagged INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (ip, port)
	);

	-- Connect, repair and disconnect outcomes
	CREATE TABLE IF NOT EXISTS device_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		serial TEXT NOT NULL,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_device_events_timestamp ON device_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_device_events_serial ON device_events(serial);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Descriptions returns every stored label keyed by serial
func (db *DB) Descriptions() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT serial, description FROM device_descriptions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var serial, description string
		if err := rows.Scan(&serial, &description); err != nil {
			return nil, err
		}
		out[serial] = description
	}
	return out, rows.Err()
}

// SetDescription stores the label for serial. An empty text removes it.
func (db *DB) SetDescription(serial, text string) error {
	if strings.TrimSpace(text) == "" {
		_, err := db.conn.Exec(`DELETE FROM device_descriptions WHERE serial = ?`, serial)
		return err
	}
	_, err := db.conn.Exec(
		`INSERT INTO device_descriptions (serial, description, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(serial) DO UPDATE SET description = excluded.description, updated_at = excluded.updated_at`,
		serial, text, time.Now(),
	)
	return err
}

// RecordHistory remembers a successful connection, keeping the tag of an
// existing entry
func (db *DB) RecordHistory(ip string, port int, at time.Time) error {
	return db.retry(func() error {
		_, err := db.conn.Exec(
			`INSERT INTO connection_history (ip, port, time_ms, tagged)
			 VALUES (?, ?, ?, 0)
			 ON CONFLICT(ip, port) DO UPDATE SET time_ms = excluded.time_ms`,
			ip, port, at.UnixMilli(),
		)
		return err
	})
}

// History returns the connection history, tagged entries first and then
// the most recent first
func (db *DB) History() ([]device.HistoryDevice, error) {
	rows, err := db.conn.Query(`SELECT ip, port, time_ms, tagged FROM connection_history`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []device.HistoryDevice
	for rows.Next() {
		var h device.HistoryDevice
		if err := rows.Scan(&h.IP, &h.Port, &h.TimeMs, &h.Tagged); err != nil {
			return nil, err
		}
		list = append(list, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	device.SortHistory(list)
	return list, nil
}

// SetTagged pins or unpins a history entry
func (db *DB) SetTagged(ip string, port int, tagged bool) error {
	res, err := db.conn.Exec(`UPDATE connection_history SET tagged = ? WHERE ip = ? AND port = ?`, tagged, ip, port)
	if err != nil {
		return err
	}
	return requireRow(res, ip, port)
}

// RemoveHistory forgets a history entry
func (db *DB) RemoveHistory(ip string, port int) error {
	res, err := db.conn.Exec(`DELETE FROM connection_history WHERE ip = ? AND port = ?`, ip, port)
	if err != nil {
		return err
	}
	return requireRow(res, ip, port)
}

func requireRow(res sql.Result, ip string, port int) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no history entry for %s:%d", ip, port)
	}
	return nil
}

// DeviceEvent represents a connection lifecycle event
type DeviceEvent struct {
	ID        int64
	Serial    string
	EventType string
	Details   string
	Timestamp time.Time
}

// LogDeviceEvent logs a device event to the database
func (db *DB) LogDeviceEvent(serial, eventType, details string) error {
	return db.retry(func() error {
		_, err := db.conn.Exec(
			`INSERT INTO device_events (serial, event_type, details, timestamp)
			 VALUES (?, ?, ?, ?)`,
			serial, eventType, details, time.Now(),
		)
		return err
	})
}

// GetRecentDeviceEvents retrieves recent device events, newest first
func (db *DB) GetRecentDeviceEvents(limit int) ([]DeviceEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, serial, event_type, details, timestamp
		 FROM device_events
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []DeviceEvent
	for rows.Next() {
		var e DeviceEvent
		if err := rows.Scan(&e.ID, &e.Serial, &e.EventType, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// retry runs fn up to three times while the database is locked by another
// devhub process
func (db *DB) retry(fn func() error) error {
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY") {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		return err
	}
	return fmt.Errorf("database write failed after %d retries: database locked", maxRetries)
}
