package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dougsko/smyd/pkg/logging"
)

// Event is one persisted scheduler or connection event.
type Event struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Type        string    `json:"type"`
	HopIndex    int       `json:"hop_index"`
	EntryName   string    `json:"entry_name,omitempty"`
	FrequencyHz int64     `json:"frequency_hz,omitempty"`
	LevelDbm    float64   `json:"level_dbm,omitempty"`
	Bandwidth   string    `json:"bandwidth,omitempty"`
	Detail      string    `json:"detail,omitempty"`
}

// EventStore persists session events in SQLite so hop history survives daemon
// restarts. The table is trimmed to maxEvents, oldest first.
type EventStore struct {
	db        *sql.DB
	dbPath    string
	maxEvents int
}

// NewEventStore opens (or creates) the event database.
func NewEventStore(dbPath string, maxEvents int) (*EventStore, error) {
	store := &EventStore{
		dbPath:    dbPath,
		maxEvents: maxEvents,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize event store: %w", err)
	}

	return store, nil
}

func (es *EventStore) initialize() error {
	if es.dbPath == "" {
		es.dbPath = "./smyd.db"
	}

	if err := os.MkdirAll(filepath.Dir(es.dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	connectionString := es.dbPath + "?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=on"

	db, err := sql.Open("sqlite3", connectionString)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	es.db = db

	if err := es.createSchema(); err != nil {
		es.db.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}

	logging.Infof("storage", "Event store initialized: %s (max %d events)", es.dbPath, es.maxEvents)
	return nil
}

func (es *EventStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		type TEXT NOT NULL,
		hop_index INTEGER NOT NULL DEFAULT 0,
		entry_name TEXT NOT NULL DEFAULT '',
		frequency_hz INTEGER NOT NULL DEFAULT 0,
		level_dbm REAL NOT NULL DEFAULT 0.0,
		bandwidth TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
	`

	_, err := es.db.Exec(schema)
	return err
}

// Record inserts one event and trims the table to the configured maximum.
func (es *EventStore) Record(ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	_, err := es.db.Exec(`
		INSERT INTO events (timestamp, type, hop_index, entry_name, frequency_hz, level_dbm, bandwidth, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Timestamp, ev.Type, ev.HopIndex, ev.EntryName, ev.FrequencyHz, ev.LevelDbm, ev.Bandwidth, ev.Detail)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return es.trim()
}

func (es *EventStore) trim() error {
	if es.maxEvents <= 0 {
		return nil
	}
	_, err := es.db.Exec(`
		DELETE FROM events WHERE id NOT IN (
			SELECT id FROM events ORDER BY id DESC LIMIT ?
		)`, es.maxEvents)
	if err != nil {
		return fmt.Errorf("failed to trim events: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events, newest first.
func (es *EventStore) RecentEvents(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := es.db.Query(`
		SELECT id, timestamp, type, hop_index, entry_name, frequency_hz, level_dbm, bandwidth, detail
		FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.Type, &ev.HopIndex,
			&ev.EntryName, &ev.FrequencyHz, &ev.LevelDbm, &ev.Bandwidth, &ev.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// EventsByType returns up to limit events of one type, newest first.
func (es *EventStore) EventsByType(eventType string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := es.db.Query(`
		SELECT id, timestamp, type, hop_index, entry_name, frequency_hz, level_dbm, bandwidth, detail
		FROM events WHERE type = ? ORDER BY id DESC LIMIT ?`, eventType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.Type, &ev.HopIndex,
			&ev.EntryName, &ev.FrequencyHz, &ev.LevelDbm, &ev.Bandwidth, &ev.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Count returns the number of stored events.
func (es *EventStore) Count() (int, error) {
	var count int
	err := es.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// Close closes the database.
func (es *EventStore) Close() error {
	if es.db != nil {
		return es.db.Close()
	}
	return nil
}
