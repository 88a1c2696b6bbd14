package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"layerforge/internal/services"
)

// Store persists the run journal in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open connects to the ledger at path, creating it and applying migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("ledger path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun inserts a running run.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("run id is empty")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, name, start_layer, end_layer, mode, model, status, started_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Name,
		run.StartLayer,
		run.EndLayer,
		nullableString(run.Mode),
		nullableString(run.Model),
		services.RunStatusRunning,
		formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun stores the terminal status of a run.
func (s *Store) FinishRun(ctx context.Context, id string, status services.RunStatus, errMsg string, calls, score int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error_message = ?, llm_calls = ?, score = ?, finished_at = ? WHERE id = ?`,
		status,
		nullableString(errMsg),
		calls,
		score,
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", id, services.ErrNotFound)
	}
	return nil
}

// BeginLayer records the start of a layer and returns its row id.
func (s *Store) BeginLayer(ctx context.Context, runID, layer string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO layer_runs (run_id, layer, status, started_at) VALUES (?, ?, ?, ?)`,
		runID, layer, services.RunStatusRunning, formatTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("insert layer run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// FinishLayer stores the outcome of a layer.
func (s *Store) FinishLayer(ctx context.Context, id int64, status services.RunStatus, targets, calls int, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE layer_runs SET status = ?, targets = ?, llm_calls = ?, error_message = ?, finished_at = ? WHERE id = ?`,
		status, targets, calls, nullableString(errMsg), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("finish layer run: %w", err)
	}
	return nil
}

// RecordGeneration appends one target decision.
func (s *Store) RecordGeneration(ctx context.Context, gen Generation) error {
	if gen.CreatedAt.IsZero() {
		gen.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generations (run_id, layer, target, decision, reason, score, llm_calls, model, error_message, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		gen.RunID,
		gen.Layer,
		gen.Target,
		gen.Decision,
		nullableString(gen.Reason),
		gen.Score,
		gen.LLMCalls,
		nullableString(gen.Model),
		nullableString(gen.ErrorMessage),
		formatTime(gen.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	return nil
}

// RecordUsage replaces the usage rows of a run.
func (s *Store) RecordUsage(ctx context.Context, runID string, usage []Usage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin usage tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM usage WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clear usage: %w", err)
	}
	for _, u := range usage {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO usage (run_id, model, requests, failures, input_tokens, output_tokens) VALUES (?, ?, ?, ?, ?, ?)`,
			runID, u.Model, u.Requests, u.Failures, u.InputTokens, u.OutputTokens,
		); err != nil {
			return fmt.Errorf("insert usage: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit usage: %w", err)
	}
	return nil
}

const runColumns = "id, name, start_layer, end_layer, mode, model, status, error_message, llm_calls, score, started_at, finished_at"

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRun fetches a run by id or unique id prefix. A missing run returns nil.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ? OR id LIKE ? ORDER BY id LIMIT 2`, id, id+"%")
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()

	var found []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, run := range found {
		if run.ID == id {
			return run, nil
		}
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	default:
		return nil, services.Wrap(services.ErrValidation, "ledger", "get run", "Run id prefix "+id+" is ambiguous", nil)
	}
}

// LayerRuns lists a run's layers in execution order.
func (s *Store) LayerRuns(ctx context.Context, runID string) ([]LayerRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, layer, status, targets, llm_calls, error_message, started_at, finished_at
         FROM layer_runs WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list layer runs: %w", err)
	}
	defer rows.Close()

	var out []LayerRun
	for rows.Next() {
		var (
			lr          LayerRun
			status      string
			errMsg      sql.NullString
			startedRaw  string
			finishedRaw sql.NullString
		)
		if err := rows.Scan(&lr.ID, &lr.RunID, &lr.Layer, &status, &lr.Targets, &lr.LLMCalls, &errMsg, &startedRaw, &finishedRaw); err != nil {
			return nil, fmt.Errorf("scan layer run: %w", err)
		}
		lr.Status = services.RunStatus(status)
		lr.ErrorMessage = errMsg.String
		lr.StartedAt, _ = parseTimeString(startedRaw)
		lr.FinishedAt = parseNullableTime(finishedRaw)
		out = append(out, lr)
	}
	return out, rows.Err()
}

// Generations lists a run's target decisions in order.
func (s *Store) Generations(ctx context.Context, runID string) ([]Generation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, layer, target, decision, reason, score, llm_calls, model, error_message, created_at
         FROM generations WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var out []Generation
	for rows.Next() {
		var (
			g          Generation
			reason     sql.NullString
			model      sql.NullString
			errMsg     sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&g.ID, &g.RunID, &g.Layer, &g.Target, &g.Decision, &reason, &g.Score, &g.LLMCalls, &model, &errMsg, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		g.Reason = reason.String
		g.Model = model.String
		g.ErrorMessage = errMsg.String
		g.CreatedAt, _ = parseTimeString(createdRaw)
		out = append(out, g)
	}
	return out, rows.Err()
}

// Usage lists a run's per-model usage sorted by model.
func (s *Store) Usage(ctx context.Context, runID string) ([]Usage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT model, requests, failures, input_tokens, output_tokens FROM usage WHERE run_id = ? ORDER BY model`, runID)
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	defer rows.Close()

	var out []Usage
	for rows.Next() {
		var u Usage
		if err := rows.Scan(&u.Model, &u.Requests, &u.Failures, &u.InputTokens, &u.OutputTokens); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// MarkInterrupted fails runs left in the running state by a crashed process.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error_message = ?, finished_at = ? WHERE status = ?`,
		services.RunStatusFailed, "interrupted", formatTime(time.Now()), services.RunStatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted runs: %w", err)
	}
	return res.RowsAffected()
}
