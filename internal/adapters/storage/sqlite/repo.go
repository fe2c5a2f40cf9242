package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hylla/worktally/internal/app"
	"github.com/hylla/worktally/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName is the modernc.org/sqlite driver registration name.
const driverName = "sqlite"

// Repository stores trackables and their time log in sqlite.
type Repository struct {
	db *sql.DB
}

// Open opens or creates the worktally database at path and applies the schema.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newRepository(db)
}

// OpenInMemory opens a private in-memory database. Each call gets its own store.
func OpenInMemory() (*Repository, error) {
	dsn := fmt.Sprintf("file:worktally-%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	return newRepository(db)
}

// newRepository pins the pool to one connection so transactions are serialized.
func newRepository(db *sql.DB) (*Repository, error) {
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close releases the database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate creates the trackables and time_log tables and their indexes when missing.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS trackables (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL DEFAULT 'task',
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			assignee_id TEXT NOT NULL DEFAULT '',
			work_state TEXT NOT NULL DEFAULT 'idle',
			is_working INTEGER NOT NULL DEFAULT 0,
			work_started_at TEXT,
			work_paused_at TEXT,
			work_finished_at TEXT,
			total_time_seconds INTEGER NOT NULL DEFAULT 0 CHECK (total_time_seconds >= 0),
			qa_status TEXT NOT NULL DEFAULT '',
			qa_reviewer_id TEXT NOT NULL DEFAULT '',
			qa_testing_started_at TEXT,
			qa_testing_paused_at TEXT,
			qa_testing_finished_at TEXT,
			qa_total_seconds INTEGER NOT NULL DEFAULT 0 CHECK (qa_total_seconds >= 0),
			version INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS time_log_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			trackable_id TEXT NOT NULL,
			timer TEXT NOT NULL,
			action TEXT NOT NULL,
			duration_seconds INTEGER,
			actor_id TEXT NOT NULL,
			actor_type TEXT NOT NULL DEFAULT 'user',
			occurred_at TEXT NOT NULL,
			FOREIGN KEY(trackable_id) REFERENCES trackables(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trackables_qa_reviewer_status ON trackables(qa_reviewer_id, qa_status);`,
		`CREATE INDEX IF NOT EXISTS idx_trackables_assignee ON trackables(assignee_id, work_state);`,
		`CREATE INDEX IF NOT EXISTS idx_time_log_trackable_timer ON time_log_entries(trackable_id, timer, id);`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// trackableColumns lists columns in scanTrackable order.
const trackableColumns = `
	id, kind, title, description, assignee_id, work_state, is_working, work_started_at, work_paused_at, work_finished_at,
	total_time_seconds, qa_status, qa_reviewer_id, qa_testing_started_at, qa_testing_paused_at, qa_testing_finished_at,
	qa_total_seconds, version, created_at, updated_at`

// CreateTrackable inserts a new trackable.
func (r *Repository) CreateTrackable(ctx context.Context, t domain.Trackable) error {
	return insertTrackable(ctx, r.db, t)
}

// ImportTrackable inserts a restored trackable and its ledger in one transaction.
// Entry ids are reassigned in slice order.
func (r *Repository) ImportTrackable(ctx context.Context, t domain.Trackable, entries []domain.TimeLogEntry) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = insertTrackable(ctx, tx, t); err != nil {
		return err
	}
	for _, entry := range entries {
		entry.TrackableID = t.ID
		if _, err = insertTimeLogEntry(ctx, tx, entry); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// insertTrackable writes one new row.
func insertTrackable(ctx context.Context, execer execerContext, t domain.Trackable) error {
	if t.Version <= 0 {
		t.Version = 1
	}
	_, err := execer.ExecContext(ctx, `
		INSERT INTO trackables(`+trackableColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID,
		string(t.Kind),
		t.Title,
		t.Description,
		t.AssigneeID,
		string(t.WorkState),
		boolInt(t.IsWorking()),
		nullableTS(t.Work.StartedAt),
		nullableTS(t.Work.PausedAt),
		nullableTS(t.Work.FinishedAt),
		t.Work.TotalSeconds,
		string(t.QAStatus),
		t.QAReviewerID,
		nullableTS(t.QA.StartedAt),
		nullableTS(t.QA.PausedAt),
		nullableTS(t.QA.FinishedAt),
		t.QA.TotalSeconds,
		t.Version,
		ts(t.CreatedAt),
		ts(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert trackable: %w", err)
	}
	return nil
}

// GetTrackable returns one trackable.
func (r *Repository) GetTrackable(ctx context.Context, id string) (domain.Trackable, error) {
	return getTrackableByID(ctx, r.db, id)
}

// ListTrackables lists trackables matching filter, oldest first.
func (r *Repository) ListTrackables(ctx context.Context, filter app.TrackableFilter) ([]domain.Trackable, error) {
	return listTrackables(ctx, r.db, filter)
}

// ListTimeLog lists ledger entries in insertion order.
func (r *Repository) ListTimeLog(ctx context.Context, filter app.TimeLogFilter) ([]domain.TimeLogEntry, error) {
	return listTimeLog(ctx, r.db, filter)
}

// ApplyTransition implements app.Repository. The read, fn, row update and ledger
// inserts share one transaction; a version mismatch yields app.ErrConcurrentUpdate.
func (r *Repository) ApplyTransition(ctx context.Context, id string, fn app.TransitionFunc) (out domain.Trackable, entries []domain.TimeLogEntry, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Trackable{}, nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := getTrackableByID(ctx, tx, id)
	if err != nil {
		return domain.Trackable{}, nil, err
	}
	next := current
	entries, err = fn(ctx, txReader{tx: tx}, &next)
	if errors.Is(err, app.ErrNoChange) {
		err = tx.Rollback()
		return current, nil, err
	}
	if err != nil {
		return domain.Trackable{}, nil, err
	}

	next.ID = current.ID
	next.Version = current.Version + 1
	res, err := updateTrackable(ctx, tx, next, current.Version)
	if err != nil {
		return domain.Trackable{}, nil, err
	}
	if err = translateNoRows(res); err != nil {
		if errors.Is(err, app.ErrNotFound) {
			err = app.ErrConcurrentUpdate
		}
		return domain.Trackable{}, nil, err
	}
	for i := range entries {
		entries[i].TrackableID = next.ID
		if entries[i].ID, err = insertTimeLogEntry(ctx, tx, entries[i]); err != nil {
			return domain.Trackable{}, nil, err
		}
	}
	if err = tx.Commit(); err != nil {
		return domain.Trackable{}, nil, err
	}
	return next, entries, nil
}

// txReader exposes transaction-scoped reads to transition functions.
type txReader struct {
	tx *sql.Tx
}

// ListTrackables lists trackables inside the transaction.
func (r txReader) ListTrackables(ctx context.Context, filter app.TrackableFilter) ([]domain.Trackable, error) {
	return listTrackables(ctx, r.tx, filter)
}

// ListTimeLog lists ledger entries inside the transaction.
func (r txReader) ListTimeLog(ctx context.Context, filter app.TimeLogFilter) ([]domain.TimeLogEntry, error) {
	return listTimeLog(ctx, r.tx, filter)
}

// queryRower is the single-row read shared by *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// querier is the multi-row read shared by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}

// execerContext is the write shared by *sql.DB and *sql.Tx.
type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// getTrackableByID returns a trackable by id.
func getTrackableByID(ctx context.Context, q queryRower, id string) (domain.Trackable, error) {
	row := q.QueryRowContext(ctx, `SELECT `+trackableColumns+` FROM trackables WHERE id = ?`, id)
	return scanTrackable(row)
}

// updateTrackable writes every mutable column when the stored version still equals expectVersion.
func updateTrackable(ctx context.Context, execer execerContext, t domain.Trackable, expectVersion int64) (sql.Result, error) {
	query := `
		UPDATE trackables
		SET kind = ?, title = ?, description = ?, assignee_id = ?, work_state = ?, is_working = ?,
			work_started_at = ?, work_paused_at = ?, work_finished_at = ?, total_time_seconds = ?,
			qa_status = ?, qa_reviewer_id = ?, qa_testing_started_at = ?, qa_testing_paused_at = ?,
			qa_testing_finished_at = ?, qa_total_seconds = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`
	args := []any{
		string(t.Kind),
		t.Title,
		t.Description,
		t.AssigneeID,
		string(t.WorkState),
		boolInt(t.IsWorking()),
		nullableTS(t.Work.StartedAt),
		nullableTS(t.Work.PausedAt),
		nullableTS(t.Work.FinishedAt),
		t.Work.TotalSeconds,
		string(t.QAStatus),
		t.QAReviewerID,
		nullableTS(t.QA.StartedAt),
		nullableTS(t.QA.PausedAt),
		nullableTS(t.QA.FinishedAt),
		t.QA.TotalSeconds,
		t.Version,
		ts(t.UpdatedAt),
		t.ID,
		expectVersion,
	}
	res, err := execer.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update trackable: %w", err)
	}
	return res, nil
}

// listTrackables builds the filtered trackable query.
func listTrackables(ctx context.Context, q querier, filter app.TrackableFilter) ([]domain.Trackable, error) {
	var (
		where []string
		args  []any
	)
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if id := strings.TrimSpace(filter.AssigneeID); id != "" {
		where = append(where, "assignee_id = ?")
		args = append(args, id)
	}
	if id := strings.TrimSpace(filter.QAReviewerID); id != "" {
		where = append(where, "qa_reviewer_id = ?")
		args = append(args, id)
	}
	if len(filter.WorkStates) > 0 {
		where = append(where, "work_state IN ("+placeholders(len(filter.WorkStates))+")")
		for _, state := range filter.WorkStates {
			args = append(args, string(state))
		}
	}
	if len(filter.QAStatuses) > 0 {
		where = append(where, "qa_status IN ("+placeholders(len(filter.QAStatuses))+")")
		for _, status := range filter.QAStatuses {
			args = append(args, string(status))
		}
	}
	query := `SELECT ` + trackableColumns + ` FROM trackables`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Trackable, 0)
	for rows.Next() {
		t, err := scanTrackable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// listTimeLog returns ledger entries in insertion order.
func listTimeLog(ctx context.Context, q querier, filter app.TimeLogFilter) ([]domain.TimeLogEntry, error) {
	var (
		where []string
		args  []any
	)
	if id := strings.TrimSpace(filter.TrackableID); id != "" {
		where = append(where, "trackable_id = ?")
		args = append(args, id)
	}
	if filter.Timer != "" {
		where = append(where, "timer = ?")
		args = append(args, string(filter.Timer))
	}
	query := `SELECT id, trackable_id, timer, action, duration_seconds, actor_id, actor_type, occurred_at FROM time_log_entries`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.TimeLogEntry, 0)
	for rows.Next() {
		var (
			entry       domain.TimeLogEntry
			timer       string
			action      string
			actorType   string
			duration    sql.NullInt64
			occurredRaw string
		)
		if err := rows.Scan(&entry.ID, &entry.TrackableID, &timer, &action, &duration, &entry.ActorID, &actorType, &occurredRaw); err != nil {
			return nil, err
		}
		entry.Timer = domain.TimerKind(timer)
		entry.Action = domain.TimeLogAction(action)
		entry.ActorType = domain.NormalizeActorType(domain.ActorType(actorType))
		if duration.Valid {
			d := duration.Int64
			entry.DurationSeconds = &d
		}
		entry.OccurredAt = parseTS(occurredRaw)
		out = append(out, entry)
	}
	return out, rows.Err()
}

// insertTimeLogEntry appends a ledger record and returns its id.
func insertTimeLogEntry(ctx context.Context, execer execerContext, entry domain.TimeLogEntry) (int64, error) {
	var duration any
	if entry.DurationSeconds != nil {
		duration = *entry.DurationSeconds
	}
	res, err := execer.ExecContext(ctx, `
		INSERT INTO time_log_entries(trackable_id, timer, action, duration_seconds, actor_id, actor_type, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		entry.TrackableID,
		string(entry.Timer),
		string(entry.Action),
		duration,
		chooseActorID(entry.ActorID, app.DefaultActorID),
		string(domain.NormalizeActorType(entry.ActorType)),
		ts(normalizeEventTS(entry.OccurredAt)),
	)
	if err != nil {
		return 0, fmt.Errorf("insert time log entry: %w", err)
	}
	return res.LastInsertId()
}

// chooseActorID returns the first non-empty actor id.
func chooseActorID(candidates ...string) string {
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate != "" {
			return candidate
		}
	}
	return app.DefaultActorID
}

// normalizeEventTS ensures event timestamps are always populated and UTC-normalized.
func normalizeEventTS(in time.Time) time.Time {
	if in.IsZero() {
		return time.Now().UTC()
	}
	return in.UTC()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanTrackable decodes one trackables row in trackableColumns order.
func scanTrackable(s scanner) (domain.Trackable, error) {
	var (
		t            domain.Trackable
		kind         string
		workState    string
		isWorking    int
		workStarted  sql.NullString
		workPaused   sql.NullString
		workFinished sql.NullString
		qaStatus     string
		qaStarted    sql.NullString
		qaPaused     sql.NullString
		qaFinished   sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := s.Scan(
		&t.ID,
		&kind,
		&t.Title,
		&t.Description,
		&t.AssigneeID,
		&workState,
		&isWorking,
		&workStarted,
		&workPaused,
		&workFinished,
		&t.Work.TotalSeconds,
		&qaStatus,
		&t.QAReviewerID,
		&qaStarted,
		&qaPaused,
		&qaFinished,
		&t.QA.TotalSeconds,
		&t.Version,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Trackable{}, app.ErrNotFound
		}
		return domain.Trackable{}, err
	}
	t.Kind = domain.TrackableKind(kind)
	t.WorkState = domain.WorkState(workState)
	if t.WorkState == "" {
		t.WorkState = domain.WorkStateIdle
		if isWorking != 0 {
			t.WorkState = domain.WorkStateWorking
		}
	}
	t.QAStatus = domain.QAStatus(qaStatus)
	t.Work.StartedAt = parseNullTS(workStarted)
	t.Work.PausedAt = parseNullTS(workPaused)
	t.Work.FinishedAt = parseNullTS(workFinished)
	t.QA.StartedAt = parseNullTS(qaStarted)
	t.QA.PausedAt = parseNullTS(qaPaused)
	t.QA.FinishedAt = parseNullTS(qaFinished)
	t.CreatedAt = parseTS(createdRaw)
	t.UpdatedAt = parseTS(updatedRaw)
	return t, nil
}

// translateNoRows maps a zero-row update to app.ErrNotFound.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// ts formats t as UTC RFC3339Nano text.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// nullableTS stores nil timestamps as NULL.
func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS reads a stored timestamp, zero on malformed input.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// parseNullTS reads an optional stored timestamp.
func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	ts := parseTS(v.String)
	return &ts
}
