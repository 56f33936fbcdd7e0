package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"refbuild/internal/config"
)

// Store manages accession status persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the tracker database and applies the
// schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.TrackerPath()
	db, err := sql.Open("sqlite", dbPath)
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

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the tracker database location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// EnsureAccessions inserts pending rows for any accessions not yet tracked.
// Existing rows keep their status, which is what makes reruns resumable.
func (s *Store) EnsureAccessions(ctx context.Context, accessions []string) error {
	if len(accessions) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO accessions (accession, status, created_at, updated_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	for _, accession := range accessions {
		if _, err := stmt.ExecContext(ctx, accession, StatusPending, timestamp, timestamp); err != nil {
			return fmt.Errorf("insert accession %s: %w", accession, err)
		}
	}
	return tx.Commit()
}

// Get fetches one accession record; nil when untracked.
func (s *Store) Get(ctx context.Context, accession string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM accessions WHERE accession = ?`, accession)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get accession: %w", err)
	}
	return record, nil
}

// SetStatus transitions an accession, clearing any prior error message.
func (s *Store) SetStatus(ctx context.Context, accession string, status Status) error {
	return s.setStatus(ctx, accession, status, "", nil)
}

// SetFailed transitions an accession to a failure status with its reason.
func (s *Store) SetFailed(ctx context.Context, accession string, status Status, reason string) error {
	return s.setStatus(ctx, accession, status, reason, nil)
}

// RecordArchive transitions an accession and records the archive byte size
// observed at acquisition time; resume checks compare against it.
func (s *Store) RecordArchive(ctx context.Context, accession string, status Status, bytes int64) error {
	return s.setStatus(ctx, accession, status, "", &bytes)
}

func (s *Store) setStatus(ctx context.Context, accession string, status Status, errMsg string, archiveBytes *int64) error {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	var (
		res sql.Result
		err error
	)
	if archiveBytes != nil {
		res, err = s.db.ExecContext(ctx,
			`UPDATE accessions SET status = ?, error_message = ?, archive_bytes = ?, updated_at = ? WHERE accession = ?`,
			status, nullableString(errMsg), *archiveBytes, timestamp, accession)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE accessions SET status = ?, error_message = ?, updated_at = ? WHERE accession = ?`,
			status, nullableString(errMsg), timestamp, accession)
	}
	if err != nil {
		return fmt.Errorf("update accession %s: %w", accession, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("accession %s is not tracked", accession)
	}
	return nil
}

// ArchiveBytes returns the recorded archive size for an accession. The bool
// reports whether a size has been recorded.
func (s *Store) ArchiveBytes(ctx context.Context, accession string) (int64, bool, error) {
	var size sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT archive_bytes FROM accessions WHERE accession = ?`, accession).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query archive bytes: %w", err)
	}
	return size.Int64, size.Valid, nil
}

// List returns records filtered by status set (or all records when no status
// is provided), ordered by accession.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Record, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + recordColumns + ` FROM accessions`
	orderClause := ` ORDER BY accession`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list accessions: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Stats returns a count of accessions grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM accessions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("tracker stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// StartRun inserts a run record and returns it.
func (s *Store) StartRun(ctx context.Context, version, backupDir string) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Version:   version,
		BackupDir: backupDir,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, version, backup_dir, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Version, nullableString(run.BackupDir), run.StartedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun records a run's outcome and completion time.
func (s *Store) FinishRun(ctx context.Context, id, outcome string) error {
	finished := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, outcome = ? WHERE id = ?`,
		finished.Format(time.RFC3339Nano), outcome, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// LatestRun returns the most recently started run, or nil when none exist.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, version, backup_dir, started_at, finished_at, outcome FROM runs ORDER BY started_at DESC LIMIT 1`)

	var (
		run         Run
		backupDir   sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
		outcome     sql.NullString
	)
	err := row.Scan(&run.ID, &run.Version, &backupDir, &startedRaw, &finishedRaw, &outcome)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	run.BackupDir = backupDir.String
	run.Outcome = outcome.String
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = &finished
		}
	}
	return &run, nil
}

const recordColumns = "accession, status, archive_bytes, error_message, created_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		accession    string
		statusStr    string
		archiveBytes sql.NullInt64
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(&accession, &statusStr, &archiveBytes, &errorMessage, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	record := &Record{
		Accession:    accession,
		Status:       Status(statusStr),
		ArchiveBytes: archiveBytes.Int64,
		ErrorMessage: errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		record.UpdatedAt = updated
	}
	return record, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
