package sqlite

import (
	"database/sql"
	"fmt"

	"snapwatch/internal/model"
)

// CaptureRepository implements repository.CaptureRepository for SQLite.
type CaptureRepository struct {
	db *DB
}

// NewCaptureRepository creates a new SQLite capture repository.
func NewCaptureRepository(db *DB) *CaptureRepository {
	return &CaptureRepository{db: db}
}

const captureColumns = `id, filename, filepath, filesize, captured_at, outcome, upload_key, change_ratio, pruned`

// Insert adds a new capture record to the database.
func (r *CaptureRepository) Insert(c *model.Capture) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	var ratio sql.NullFloat64
	if c.ChangeRatio != nil {
		ratio = sql.NullFloat64{Float64: *c.ChangeRatio, Valid: true}
	}

	result, err := r.db.Conn().Exec(`
		INSERT INTO captures (filename, filepath, filesize, captured_at, outcome, upload_key, change_ratio, pruned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.Filename, c.FilePath, c.FileSize, c.CapturedAt.UTC(), c.Outcome, c.UploadKey, ratio, c.Pruned)
	if err != nil {
		return 0, fmt.Errorf("failed to insert capture: %w", err)
	}

	return result.LastInsertId()
}

// GetByFilename retrieves a capture by its filename. It returns nil, nil when
// no such capture exists.
func (r *CaptureRepository) GetByFilename(filename string) (*model.Capture, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`SELECT `+captureColumns+` FROM captures WHERE filename = ?`, filename)
	c, err := scanCapture(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get capture: %w", err)
	}
	return c, nil
}

// Exists checks whether a capture with the filename is journaled.
func (r *CaptureRepository) Exists(filename string) (bool, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM captures WHERE filename = ?`, filename).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check capture: %w", err)
	}
	return count > 0, nil
}

// ListRecent returns the most recent captures, newest first.
func (r *CaptureRepository) ListRecent(limit int) ([]model.Capture, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT `+captureColumns+` FROM captures ORDER BY captured_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query captures: %w", err)
	}
	defer rows.Close()

	var captures []model.Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan capture: %w", err)
		}
		captures = append(captures, *c)
	}

	return captures, rows.Err()
}

// CountByOutcome returns the number of captures per outcome.
func (r *CaptureRepository) CountByOutcome() (map[string]int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT outcome, COUNT(*) FROM captures GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("failed to count captures: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[outcome] = count
	}

	return counts, rows.Err()
}

// MarkPruned flags a capture whose local file was deleted.
func (r *CaptureRepository) MarkPruned(filename string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`UPDATE captures SET pruned = 1 WHERE filename = ?`, filename); err != nil {
		return fmt.Errorf("failed to mark capture pruned: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCapture(row rowScanner) (*model.Capture, error) {
	var c model.Capture
	var ratio sql.NullFloat64
	if err := row.Scan(&c.ID, &c.Filename, &c.FilePath, &c.FileSize, &c.CapturedAt, &c.Outcome, &c.UploadKey, &ratio, &c.Pruned); err != nil {
		return nil, err
	}
	if ratio.Valid {
		v := ratio.Float64
		c.ChangeRatio = &v
	}
	return &c, nil
}
