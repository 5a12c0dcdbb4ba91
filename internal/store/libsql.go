package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/stratagem/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. event log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Strategies ---

func (s *LibSQLStore) CreateStrategy(ctx context.Context, rec *StrategyRecord) error {
	def, err := json.Marshal(rec.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO strategies (id, name, description, site_id, record_type, definition, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, nullStr(rec.Name), nullStr(rec.Description), nullStr(rec.SiteID),
		nullStr(rec.RecordType), string(def), timeOrNow(rec.CreatedAt), timeOrNow(rec.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetStrategy(ctx context.Context, id string) (*StrategyRecord, error) {
	rec := &StrategyRecord{}
	var name, desc, siteID, recordType sql.NullString
	var defJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, site_id, record_type, definition, created_at, updated_at
		 FROM strategies WHERE id = ?`, id,
	).Scan(&rec.ID, &name, &desc, &siteID, &recordType, &defJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("strategy", id)
	}
	if err != nil {
		return nil, err
	}
	rec.Name = name.String
	rec.Description = desc.String
	rec.SiteID = siteID.String
	rec.RecordType = recordType.String
	if err := json.Unmarshal([]byte(defJSON), &rec.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return rec, nil
}

func (s *LibSQLStore) UpdateStrategy(ctx context.Context, id string, update StrategyUpdate) error {
	var sets []string
	var args []any

	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *update.Description)
	}
	if update.RecordType != nil {
		sets = append(sets, "record_type = ?")
		args = append(args, *update.RecordType)
	}
	if update.Definition != nil {
		def, err := json.Marshal(update.Definition)
		if err != nil {
			return fmt.Errorf("marshal definition: %w", err)
		}
		sets = append(sets, "definition = ?")
		args = append(args, string(def))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE strategies SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "strategy", id)
}

func (s *LibSQLStore) ListStrategies(ctx context.Context, filter StrategyFilter) ([]*StrategyRecord, error) {
	var where []string
	var args []any

	if filter.SiteID != "" {
		where = append(where, "site_id = ?")
		args = append(args, filter.SiteID)
	}
	if filter.RecordType != "" {
		where = append(where, "record_type = ?")
		args = append(args, filter.RecordType)
	}
	if filter.Since != nil {
		where = append(where, "updated_at >= ?")
		args = append(args, *filter.Since)
	}

	query := "SELECT id, name, description, site_id, record_type, definition, created_at, updated_at FROM strategies"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*StrategyRecord
	for rows.Next() {
		rec := &StrategyRecord{}
		var name, desc, siteID, recordType sql.NullString
		var defJSON string
		if err := rows.Scan(&rec.ID, &name, &desc, &siteID, &recordType, &defJSON,
			&rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Name = name.String
		rec.Description = desc.String
		rec.SiteID = siteID.String
		rec.RecordType = recordType.String
		if err := json.Unmarshal([]byte(defJSON), &rec.Definition); err != nil {
			return nil, fmt.Errorf("unmarshal definition: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *LibSQLStore) DeleteStrategy(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM strategies WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "strategy", id)
}

// --- Baselines ---

// SaveBaseline replaces the strategy's saved-signature map wholesale. A save
// is an all-or-nothing moment, so partial baselines are never persisted.
func (s *LibSQLStore) SaveBaseline(ctx context.Context, strategyID string, baseline map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin baseline tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM strategy_baselines WHERE strategy_id = ?`, strategyID); err != nil {
		return fmt.Errorf("clear baseline: %w", err)
	}
	for stepID, sig := range baseline {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO strategy_baselines (strategy_id, step_id, signature) VALUES (?, ?, ?)`,
			strategyID, stepID, sig); err != nil {
			return fmt.Errorf("insert baseline row: %w", err)
		}
	}
	return tx.Commit()
}

func (s *LibSQLStore) GetBaseline(ctx context.Context, strategyID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step_id, signature FROM strategy_baselines WHERE strategy_id = ?`, strategyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	baseline := map[string]string{}
	for rows.Next() {
		var stepID, sig string
		if err := rows.Scan(&stepID, &sig); err != nil {
			return nil, err
		}
		baseline[stepID] = sig
	}
	return baseline, rows.Err()
}

// --- Stream events ---

// AppendEvent delegates to the event log for sequenced appends.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *StreamEvent) error {
	return NewEventLog(s).AppendEvent(ctx, event)
}

// ReplayStrategy delegates to the event log's replay.
func (s *LibSQLStore) ReplayStrategy(ctx context.Context, strategyID string) (*schema.Strategy, error) {
	return NewEventLog(s).ReplayStrategy(ctx, strategyID)
}

func (s *LibSQLStore) GetEvents(ctx context.Context, strategyID string, since int64) ([]*StreamEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, strategy_id, step_id, session_id, event_type, payload, timestamp, sequence
		 FROM stream_events WHERE strategy_id = ? AND sequence > ? ORDER BY sequence ASC`,
		strategyID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStreamEvents(rows)
}

func (s *LibSQLStore) GetEventsByType(ctx context.Context, eventType string, filter StreamEventFilter) ([]*StreamEvent, error) {
	where := []string{"event_type = ?"}
	args := []any{eventType}

	if filter.StrategyID != "" {
		where = append(where, "strategy_id = ?")
		args = append(args, filter.StrategyID)
	}
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, strategy_id, step_id, session_id, event_type, payload, timestamp, sequence
	 FROM stream_events WHERE ` + strings.Join(where, " AND ") + ` ORDER BY timestamp DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStreamEvents(rows)
}

func scanStreamEvents(rows *sql.Rows) ([]*StreamEvent, error) {
	var events []*StreamEvent
	for rows.Next() {
		e := &StreamEvent{}
		var stepID, sessionID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.StrategyID, &stepID, &sessionID, &e.EventType,
			&payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.StepID = stepID.String
		e.SessionID = sessionID.String
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Canvas layouts ---

func (s *LibSQLStore) SaveLayout(ctx context.Context, strategyID string, positions json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO canvas_layouts (strategy_id, positions, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(strategy_id) DO UPDATE SET positions=excluded.positions, updated_at=CURRENT_TIMESTAMP`,
		strategyID, string(positions))
	return err
}

func (s *LibSQLStore) GetLayout(ctx context.Context, strategyID string) (json.RawMessage, error) {
	var positions string
	err := s.db.QueryRowContext(ctx,
		`SELECT positions FROM canvas_layouts WHERE strategy_id = ?`, strategyID,
	).Scan(&positions)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("layout", strategyID)
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(positions), nil
}

var _ Store = (*LibSQLStore)(nil)

// --- Helpers ---

func storeNotFound(resource, id string) *schema.StratagemError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
